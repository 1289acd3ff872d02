// Package questionbank caches question bank reads in Redis.
package questionbank

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/victornm/examprep/internal/domain"
)

const (
	defaultTTL         = time.Minute
	defaultLoadTimeout = 5 * time.Second
)

// Bank is the uncached source of quizzes and questions.
type Bank interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	ListQuestions(ctx context.Context, quizID string) ([]domain.Question, error)
	GetQuestion(ctx context.Context, questionID string) (domain.Question, error)
}

type Config struct {
	Bank   Bank
	Redis  redis.UniversalClient
	Prefix string
	// TTL bounds how long a question bank edit can go unnoticed when nothing
	// invalidates the entry.
	TTL time.Duration
	// LoadTimeout bounds a shared load from the Bank.
	LoadTimeout time.Duration
}

// Cache is a read-through cache in front of a Bank. Redis failures are logged and
// the read falls through to the Bank; lookups that fail are never cached.
type Cache struct {
	bank   Bank
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
	load   time.Duration

	group singleflight.Group
}

func NewCache(c Config) *Cache {
	ttl := c.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}

	load := c.LoadTimeout
	if load <= 0 {
		load = defaultLoadTimeout
	}

	return &Cache{
		bank:   c.Bank,
		redis:  c.Redis,
		prefix: c.Prefix,
		ttl:    ttl,
		load:   load,
	}
}

func (c *Cache) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	return readThrough(ctx, c, c.key("quiz", quizID), func(ctx context.Context) (domain.Quiz, error) {
		return c.bank.GetQuiz(ctx, quizID)
	})
}

func (c *Cache) ListQuestions(ctx context.Context, quizID string) ([]domain.Question, error) {
	return readThrough(ctx, c, c.key("questions", quizID), func(ctx context.Context) ([]domain.Question, error) {
		return c.bank.ListQuestions(ctx, quizID)
	})
}

func (c *Cache) GetQuestion(ctx context.Context, questionID string) (domain.Question, error) {
	return readThrough(ctx, c, c.key("question", questionID), func(ctx context.Context) (domain.Question, error) {
		return c.bank.GetQuestion(ctx, questionID)
	})
}

// InvalidateQuiz drops the cached quiz and its question list.
func (c *Cache) InvalidateQuiz(ctx context.Context, quizID string) error {
	return c.redis.Del(ctx, c.key("quiz", quizID), c.key("questions", quizID)).Err()
}

// InvalidateQuestion drops the cached question.
func (c *Cache) InvalidateQuestion(ctx context.Context, questionID string) error {
	return c.redis.Del(ctx, c.key("question", questionID)).Err()
}

func (c *Cache) key(kind, id string) string {
	return fmt.Sprintf("%s:bank:%s:%s", c.prefix, kind, id)
}

func readThrough[T any](ctx context.Context, c *Cache, key string, load func(ctx context.Context) (T, error)) (T, error) {
	var v T

	b, err := c.redis.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if err := json.Unmarshal(b, &v); err == nil {
			return v, nil
		}
		slog.WarnContext(ctx, "questionbank: drop undecodable cache entry", "key", key)
	case !stderrors.Is(err, redis.Nil):
		slog.WarnContext(ctx, "questionbank: cache read failed", "key", key, "error", err)
	}

	// Concurrent misses for the same key share one load. The load does not belong
	// to the caller that started it, so each caller only waits on its own ctx.
	ch := c.group.DoChan(key, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.load)
		defer cancel()

		v, err := load(ctx)
		if err != nil {
			return nil, err
		}

		if b, err := json.Marshal(v); err == nil {
			if err := c.redis.Set(ctx, key, b, c.ttl).Err(); err != nil {
				slog.WarnContext(ctx, "questionbank: cache write failed", "key", key, "error", err)
			}
		}

		return v, nil
	})

	select {
	case r := <-ch:
		if r.Err != nil {
			return v, r.Err
		}
		return r.Val.(T), nil
	case <-ctx.Done():
		return v, ctx.Err()
	}
}
