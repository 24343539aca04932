package app

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"time"

	"code-exam-service/internal/domain"
	"code-exam-service/internal/llm"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
)

// ResolveRequest asks for a fixed number of questions for a session snapshot.
type ResolveRequest struct {
	Language string
	TrackID  string
	TopicIDs []string
	// Topics are display names, used in generation prompts.
	Topics []string
	Count  int
	// Difficulty, when set with a single topic, samples the bank per tier
	// instead of pooled. Multi-topic requests have no per-tier allocation rule
	// and fall back to pooled sampling.
	Difficulty *domain.DifficultyConfig
	// AllowGeneration enables the LLM shortfall path (exam). Without it the
	// resolver is bank-only and fails on an empty bank (practice).
	AllowGeneration bool
	Level           string
}

type sourcingStrategy int

const (
	sourceBankOnly sourcingStrategy = iota
	sourceHybrid
	sourceGenerateOnly
)

// Resolver assembles session questions from the bank, topping up via LLM
// generation when allowed. Safe for concurrent use.
type Resolver struct {
	bank      BankRepository
	generator QuestionGenerator
	context   ContextProvider
	logger    *slog.Logger
}

func NewResolver(bank BankRepository, generator QuestionGenerator, ctxProvider ContextProvider, logger *slog.Logger) *Resolver {
	if ctxProvider == nil {
		ctxProvider = NopContextProvider{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		bank:      bank,
		generator: generator,
		context:   ctxProvider,
		logger:    logger,
	}
}

// Resolve returns an ordered, frozen set of questions. The strategy is picked
// from a precomputed availability count: bank-only when the bank covers the
// request, hybrid when it partially covers it, generate-only when it's empty.
func (r *Resolver) Resolve(ctx context.Context, req ResolveRequest) ([]domain.Question, error) {
	if req.Count <= 0 {
		return nil, domain.Validationf("count", "must be positive")
	}
	if len(req.TopicIDs) == 0 {
		return nil, domain.Validationf("topicIds", "at least one topic is required")
	}

	available, err := r.bank.ApprovedCountByTopics(ctx, req.Language, req.TrackID, req.TopicIDs)
	if err != nil {
		return nil, fmt.Errorf("count approved questions: %w", err)
	}

	switch r.strategyFor(available, req) {
	case sourceBankOnly:
		questions, err := r.sampleBank(ctx, req, req.Count)
		if err != nil {
			return nil, err
		}
		if !req.AllowGeneration && len(questions) == 0 {
			return nil, domain.ErrNoApprovedQuestions
		}
		return questions, nil

	case sourceHybrid:
		questions, err := r.sampleBank(ctx, req, available)
		if err != nil {
			return nil, err
		}
		shortfall := req.Count - len(questions)
		r.logger.Info("hybrid sourcing", "fromBank", len(questions), "toGenerate", shortfall)
		generated, err := r.generate(ctx, req, shortfall)
		if err != nil {
			// The bank portion still makes a usable session.
			r.logger.Warn("shortfall generation failed, using bank questions only", "error", err)
			return questions, nil
		}
		return append(questions, generated...), nil

	default: // sourceGenerateOnly
		generated, err := r.generate(ctx, req, req.Count)
		if err != nil {
			return nil, err
		}
		if len(generated) == 0 {
			return nil, domain.ErrGenerationFailed
		}
		return generated, nil
	}
}

func (r *Resolver) strategyFor(available int, req ResolveRequest) sourcingStrategy {
	switch {
	case available >= req.Count || !req.AllowGeneration:
		return sourceBankOnly
	case available > 0:
		return sourceHybrid
	default:
		return sourceGenerateOnly
	}
}

// sampleBank draws up to count approved questions. Multi-topic requests take
// ceil(count/topics) from each topic, pool, shuffle and truncate; a topic
// short on approved questions is not backfilled from its neighbors.
func (r *Resolver) sampleBank(ctx context.Context, req ResolveRequest, count int) ([]domain.Question, error) {
	if count <= 0 {
		return nil, nil
	}

	if req.Difficulty != nil && len(req.TopicIDs) == 1 {
		return r.bank.RandomApprovedByTier(ctx, req.Language, req.TrackID, req.TopicIDs[0], *req.Difficulty)
	}

	perTopic := int(math.Ceil(float64(count) / float64(len(req.TopicIDs))))
	var pool []domain.Question
	for _, topicID := range req.TopicIDs {
		batch, err := r.bank.RandomApproved(ctx, req.Language, req.TrackID, topicID, perTopic)
		if err != nil {
			return nil, fmt.Errorf("sample topic %s: %w", topicID, err)
		}
		pool = append(pool, batch...)
	}

	// Top-level rand is locked, so concurrent resolves may shuffle in parallel.
	rand.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if len(pool) > count {
		pool = pool[:count]
	}
	return pool, nil
}

// generate synthesizes count questions via the LLM, passing every existing
// bank title for the topics as an avoidance hint.
func (r *Resolver) generate(ctx context.Context, req ResolveRequest, count int) ([]domain.Question, error) {
	if count <= 0 {
		return nil, nil
	}

	titles := mapset.NewSet[string]()
	var contexts []string
	for _, topicID := range req.TopicIDs {
		existing, err := r.bank.FindByTopic(ctx, req.Language, req.TrackID, topicID)
		if err != nil {
			r.logger.Warn("dedup hint lookup failed", "topicId", topicID, "error", err)
		}
		for _, q := range existing {
			titles.Add(q.Title)
		}
		if text, err := r.context.TopicContext(ctx, req.Language, req.TrackID, topicID); err == nil && text != "" {
			contexts = append(contexts, text)
		}
	}

	generated, err := r.generator.GenerateQuestions(ctx, llm.GenerateRequest{
		Topic:             strings.Join(req.Topics, ", "),
		Language:          req.Language,
		Count:             count,
		CurriculumContext: strings.Join(contexts, "\n\n---\n\n"),
		AvoidTitles:       titles.ToSlice(),
	})
	if err != nil {
		return nil, err
	}

	questions := make([]domain.Question, 0, len(generated))
	for _, g := range generated {
		questions = append(questions, domain.Question{
			ID:           uuid.NewString(),
			Language:     req.Language,
			TrackID:      req.TrackID,
			Difficulty:   g.Difficulty,
			Points:       g.Points,
			Title:        g.Title,
			Description:  g.Description,
			Requirements: g.Requirements,
			TestCases:    g.TestCases,
			SampleAnswer: g.SampleAnswer,
			Status:       domain.ApprovalPending,
			CreatedBy:    "generator",
			CreatedAt:    time.Now(),
		})
	}
	return questions, nil
}
