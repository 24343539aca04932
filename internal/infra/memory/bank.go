package memory

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"code-exam-service/internal/domain"
)

// Bank is an in-memory question bank, useful for tests and local demos. The
// production deployment uses the Postgres repository instead.
type Bank struct {
	mu        sync.RWMutex
	questions map[string]domain.Question
	rnd       *rand.Rand
	clock     func() time.Time
}

func NewBank() *Bank {
	return &Bank{
		questions: make(map[string]domain.Question),
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
		clock:     time.Now,
	}
}

func (b *Bank) Create(_ context.Context, q domain.Question) (domain.Question, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q.UpdatedAt = b.clock()
	b.questions[q.ID] = q
	return q, nil
}

func (b *Bank) CreateMany(ctx context.Context, qs []domain.Question) ([]domain.Question, error) {
	saved := make([]domain.Question, 0, len(qs))
	for _, q := range qs {
		created, err := b.Create(ctx, q)
		if err != nil {
			return saved, err
		}
		saved = append(saved, created)
	}
	return saved, nil
}

func (b *Bank) FindByID(_ context.Context, id string) (domain.Question, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	q, ok := b.questions[id]
	if !ok {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	return q, nil
}

func (b *Bank) FindByTopic(_ context.Context, language, trackID, topicID string) ([]domain.Question, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []domain.Question
	for _, q := range b.questions {
		if q.Language == language && q.TrackID == trackID && q.TopicID == topicID {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (b *Bank) ApprovedCountByTopics(_ context.Context, language, trackID string, topicIDs []string) (int, error) {
	wanted := make(map[string]bool, len(topicIDs))
	for _, id := range topicIDs {
		wanted[id] = true
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	count := 0
	for _, q := range b.questions {
		if q.Language == language && q.TrackID == trackID && q.Status == domain.ApprovalApproved && wanted[q.TopicID] {
			count++
		}
	}
	return count, nil
}

func (b *Bank) RandomApproved(_ context.Context, language, trackID, topicID string, limit int) ([]domain.Question, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sample(language, trackID, topicID, limit, nil), nil
}

func (b *Bank) RandomApprovedByTier(_ context.Context, language, trackID, topicID string, cfg domain.DifficultyConfig) ([]domain.Question, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.Question
	for _, tier := range domain.Difficulties {
		if count := cfg.CountFor(tier); count > 0 {
			t := tier
			out = append(out, b.sample(language, trackID, topicID, count, &t)...)
		}
	}
	return out, nil
}

// sample draws up to limit approved questions without replacement. Callers
// hold the write lock for rnd.
func (b *Bank) sample(language, trackID, topicID string, limit int, tier *domain.Difficulty) []domain.Question {
	var pool []domain.Question
	for _, q := range b.questions {
		if q.Language != language || q.TrackID != trackID || q.TopicID != topicID || q.Status != domain.ApprovalApproved {
			continue
		}
		if tier != nil && q.Difficulty != *tier {
			continue
		}
		pool = append(pool, q)
	}
	b.rnd.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if len(pool) > limit {
		pool = pool[:limit]
	}
	return pool
}

func (b *Bank) UpdateStatus(_ context.Context, id string, status domain.ApprovalStatus, approvedBy string) (domain.Question, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.questions[id]
	if !ok {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	q.Status = status
	q.ApprovedBy = approvedBy
	q.UpdatedAt = b.clock()
	b.questions[id] = q
	return q, nil
}

func (b *Bank) StatsByTrack(_ context.Context, language, trackID string) ([]domain.TopicStats, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	byTopic := make(map[string]*domain.TopicStats)
	for _, q := range b.questions {
		if q.Language != language || q.TrackID != trackID {
			continue
		}
		stats, ok := byTopic[q.TopicID]
		if !ok {
			stats = &domain.TopicStats{Language: language, TrackID: trackID, TopicID: q.TopicID}
			byTopic[q.TopicID] = stats
		}
		stats.TotalCount++
		switch q.Status {
		case domain.ApprovalApproved:
			stats.ApprovedCount++
			switch q.Difficulty {
			case domain.DifficultyEasy:
				stats.EasyCount++
			case domain.DifficultyMedium:
				stats.MediumCount++
			case domain.DifficultyHard:
				stats.HardCount++
			}
		case domain.ApprovalPending:
			stats.PendingCount++
		}
	}
	out := make([]domain.TopicStats, 0, len(byTopic))
	for _, stats := range byTopic {
		out = append(out, *stats)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TopicID < out[j].TopicID })
	return out, nil
}
