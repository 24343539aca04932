package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"code-exam-service/internal/domain"
	"code-exam-service/internal/llm"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
)

// GenerationService runs the background pipeline that turns generation jobs
// into pending bank questions. Jobs are processed sequentially; the bottleneck
// is LLM latency, not CPU.
type GenerationService struct {
	jobs      JobRepository
	bank      BankRepository
	generator QuestionGenerator
	context   ContextProvider
	logger    *slog.Logger

	mu       sync.Mutex
	watchers map[string]map[chan domain.GenerationJob]struct{}
}

func NewGenerationService(jobs JobRepository, bank BankRepository, generator QuestionGenerator, ctxProvider ContextProvider, logger *slog.Logger) *GenerationService {
	if ctxProvider == nil {
		ctxProvider = NopContextProvider{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GenerationService{
		jobs:      jobs,
		bank:      bank,
		generator: generator,
		context:   ctxProvider,
		logger:    logger,
		watchers:  make(map[string]map[chan domain.GenerationJob]struct{}),
	}
}

// SubmitJobParams describe a generation request.
type SubmitJobParams struct {
	Language         string
	TrackID          string
	TopicID          string
	TopicName        string
	DifficultyConfig domain.DifficultyConfig
	RequestedBy      string
}

// SubmitJob records a pending job for the worker to pick up.
func (s *GenerationService) SubmitJob(ctx context.Context, params SubmitJobParams) (domain.GenerationJob, error) {
	if params.Language == "" || params.TrackID == "" || params.TopicID == "" || params.TopicName == "" {
		return domain.GenerationJob{}, domain.Validationf("job", "language, trackId, topicId and topicName are required")
	}
	if params.DifficultyConfig.Total() <= 0 {
		return domain.GenerationJob{}, domain.Validationf("difficultyConfig", "at least one tier count must be positive")
	}

	job, err := s.jobs.Create(ctx, domain.GenerationJob{
		ID:               uuid.NewString(),
		Language:         params.Language,
		TrackID:          params.TrackID,
		TopicID:          params.TopicID,
		TopicName:        params.TopicName,
		DifficultyConfig: params.DifficultyConfig,
		Status:           domain.JobPending,
		CreatedBy:        params.RequestedBy,
		CreatedAt:        time.Now(),
	})
	if err != nil {
		return domain.GenerationJob{}, fmt.Errorf("create job: %w", err)
	}
	s.logger.Info("generation job submitted", "jobId", job.ID, "topic", job.TopicName, "requested", job.DifficultyConfig.Total())
	return job, nil
}

// ProcessJob runs one job to completion. Each tier gets its own LLM call; a
// failed tier is logged and skipped. The job completes if at least one
// question was produced across all tiers, otherwise it fails with the last
// captured error.
func (s *GenerationService) ProcessJob(ctx context.Context, jobID string) error {
	job, err := s.markStatus(ctx, jobID, domain.JobInProgress, "")
	if err != nil {
		return err
	}
	s.logger.Info("generation job started", "jobId", jobID, "topic", job.TopicName)

	curriculumContext, err := s.context.TopicContext(ctx, job.Language, job.TrackID, job.TopicID)
	if err != nil {
		s.logger.Warn("curriculum context lookup failed", "jobId", jobID, "error", err)
	}

	avoidTitles := s.existingTitles(ctx, job)
	if len(avoidTitles) > 0 {
		s.logger.Info("deduplicating against existing questions", "jobId", jobID, "titles", len(avoidTitles))
	}

	var collected []domain.Question
	var lastErr error
	for _, tier := range domain.Difficulties {
		count := job.DifficultyConfig.CountFor(tier)
		if count <= 0 {
			continue
		}
		generated, err := s.generator.GenerateQuestions(ctx, llm.GenerateRequest{
			Topic:             job.TopicName,
			Language:          job.Language,
			Difficulty:        tier,
			Count:             count,
			CurriculumContext: curriculumContext,
			AvoidTitles:       avoidTitles,
		})
		if err != nil {
			// Per-tier best effort: skip the tier, keep going.
			s.logger.Error("tier generation failed", "jobId", jobID, "tier", tier, "error", err)
			lastErr = err
			continue
		}
		for _, g := range generated {
			collected = append(collected, domain.Question{
				ID:           uuid.NewString(),
				Language:     job.Language,
				TrackID:      job.TrackID,
				TopicID:      job.TopicID,
				Difficulty:   tier,
				Points:       g.Points,
				Title:        g.Title,
				Description:  g.Description,
				Requirements: g.Requirements,
				TestCases:    g.TestCases,
				SampleAnswer: g.SampleAnswer,
				Status:       domain.ApprovalPending,
				CreatedBy:    job.CreatedBy,
				CreatedAt:    time.Now(),
			})
		}
	}

	if len(collected) == 0 {
		message := "no questions were generated"
		if lastErr != nil {
			message = lastErr.Error()
		}
		if _, err := s.markStatus(ctx, jobID, domain.JobFailed, message); err != nil {
			return err
		}
		return fmt.Errorf("job %s: %w", jobID, domain.ErrGenerationFailed)
	}

	if _, err := s.bank.CreateMany(ctx, collected); err != nil {
		if _, markErr := s.markStatus(ctx, jobID, domain.JobFailed, err.Error()); markErr != nil {
			s.logger.Error("failed to mark job failed", "jobId", jobID, "error", markErr)
		}
		return fmt.Errorf("persist generated questions: %w", err)
	}

	if _, err := s.markStatus(ctx, jobID, domain.JobCompleted, ""); err != nil {
		return err
	}
	s.logger.Info("generation job completed", "jobId", jobID, "saved", len(collected), "requested", job.DifficultyConfig.Total())
	return nil
}

// ProcessPending drains the pending queue once, oldest first.
func (s *GenerationService) ProcessPending(ctx context.Context) error {
	pending, err := s.jobs.FindPending(ctx)
	if err != nil {
		return fmt.Errorf("list pending jobs: %w", err)
	}
	for _, job := range pending {
		if err := s.ProcessJob(ctx, job.ID); err != nil {
			s.logger.Error("job processing failed", "jobId", job.ID, "error", err)
		}
	}
	return nil
}

// Run polls for pending jobs until the context is canceled.
func (s *GenerationService) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.ProcessPending(ctx); err != nil {
				s.logger.Error("worker pass failed", "error", err)
			}
		}
	}
}

// GetJob returns a job by id.
func (s *GenerationService) GetJob(ctx context.Context, id string) (domain.GenerationJob, error) {
	return s.jobs.FindByID(ctx, id)
}

// JobsByUser lists a requester's jobs, newest first.
func (s *GenerationService) JobsByUser(ctx context.Context, userID string) ([]domain.GenerationJob, error) {
	return s.jobs.FindByUser(ctx, userID)
}

// Review approves or rejects a pending bank question.
func (s *GenerationService) Review(ctx context.Context, questionID string, approve bool, reviewedBy string) (domain.Question, error) {
	status := domain.ApprovalRejected
	if approve {
		status = domain.ApprovalApproved
	}
	return s.bank.UpdateStatus(ctx, questionID, status, reviewedBy)
}

// BankStats summarizes bank coverage per topic of a track.
func (s *GenerationService) BankStats(ctx context.Context, language, trackID string) ([]domain.TopicStats, error) {
	return s.bank.StatsByTrack(ctx, language, trackID)
}

// Watch returns a channel receiving the job's status transitions. The caller
// must invoke cancel to avoid leaks.
func (s *GenerationService) Watch(jobID string) (<-chan domain.GenerationJob, func()) {
	ch := make(chan domain.GenerationJob, 8)

	s.mu.Lock()
	if s.watchers[jobID] == nil {
		s.watchers[jobID] = make(map[chan domain.GenerationJob]struct{})
	}
	s.watchers[jobID][ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if set, ok := s.watchers[jobID]; ok {
			if _, ok := set[ch]; ok {
				delete(set, ch)
				close(ch)
			}
			if len(set) == 0 {
				delete(s.watchers, jobID)
			}
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *GenerationService) notify(job domain.GenerationJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.watchers[job.ID] {
		select {
		case ch <- job:
		default:
			// Drop the stale update so a slow watcher never blocks the worker.
			select {
			case <-ch:
			default:
			}
			ch <- job
		}
	}
}

func (s *GenerationService) markStatus(ctx context.Context, jobID string, status domain.JobStatus, message string) (domain.GenerationJob, error) {
	job, err := s.jobs.UpdateStatus(ctx, jobID, status, message)
	if err != nil {
		return domain.GenerationJob{}, fmt.Errorf("mark job %s: %w", status, err)
	}
	s.notify(job)
	return job, nil
}

func (s *GenerationService) existingTitles(ctx context.Context, job domain.GenerationJob) []string {
	existing, err := s.bank.FindByTopic(ctx, job.Language, job.TrackID, job.TopicID)
	if err != nil {
		s.logger.Warn("dedup hint lookup failed", "jobId", job.ID, "error", err)
		return nil
	}
	titles := mapset.NewSet[string]()
	for _, q := range existing {
		if t := strings.TrimSpace(q.Title); t != "" {
			titles.Add(t)
		}
	}
	return titles.ToSlice()
}
