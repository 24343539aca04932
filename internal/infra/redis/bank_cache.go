package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"code-exam-service/internal/app"
	"code-exam-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// BankCache is a read-through Redis decorator over a BankRepository. Only the
// hot read paths used for session assembly are cached; random sampling must
// stay uncached or every learner would see the same draw. Writes pass through
// and invalidate the affected topic.
type BankCache struct {
	app.BankRepository
	client *redis.Client
	ttl    time.Duration
	sf     singleflight.Group
}

func NewBankCache(inner app.BankRepository, client *redis.Client, ttl time.Duration) *BankCache {
	return &BankCache{
		BankRepository: inner,
		client:         client,
		ttl:            ttl,
	}
}

func (c *BankCache) FindByTopic(ctx context.Context, language, trackID, topicID string) ([]domain.Question, error) {
	key := topicKey(language, trackID, topicID)

	if cached, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var questions []domain.Question
		if err := json.Unmarshal(cached, &questions); err == nil {
			return questions, nil
		}
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if cached, err := c.client.Get(ctx, key).Bytes(); err == nil {
			var questions []domain.Question
			if err := json.Unmarshal(cached, &questions); err == nil {
				return questions, nil
			}
		}

		questions, err := c.BankRepository.FindByTopic(ctx, language, trackID, topicID)
		if err != nil {
			return nil, err
		}
		if encoded, err := json.Marshal(questions); err == nil {
			c.client.Set(ctx, key, encoded, c.ttlWithJitter())
		}
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (c *BankCache) Create(ctx context.Context, q domain.Question) (domain.Question, error) {
	created, err := c.BankRepository.Create(ctx, q)
	if err != nil {
		return domain.Question{}, err
	}
	c.invalidate(ctx, created)
	return created, nil
}

func (c *BankCache) CreateMany(ctx context.Context, qs []domain.Question) ([]domain.Question, error) {
	saved, err := c.BankRepository.CreateMany(ctx, qs)
	if err != nil {
		return saved, err
	}
	for _, q := range saved {
		c.invalidate(ctx, q)
	}
	return saved, nil
}

func (c *BankCache) UpdateStatus(ctx context.Context, id string, status domain.ApprovalStatus, approvedBy string) (domain.Question, error) {
	updated, err := c.BankRepository.UpdateStatus(ctx, id, status, approvedBy)
	if err != nil {
		return domain.Question{}, err
	}
	c.invalidate(ctx, updated)
	return updated, nil
}

func (c *BankCache) invalidate(ctx context.Context, q domain.Question) {
	c.client.Del(ctx, topicKey(q.Language, q.TrackID, q.TopicID))
}

func topicKey(language, trackID, topicID string) string {
	return "bank:" + language + ":" + trackID + ":" + topicID
}

func (c *BankCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// up to 10% jitter to spread expirations; top-level rand is locked, so
	// flights for different keys may run this concurrently
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(rand.Int63n(jitterMax+1))
}
