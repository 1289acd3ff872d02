package questionbank_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/examprep/internal/domain"
	"github.com/victornm/examprep/internal/questionbank"
)

type countingBank struct {
	quizzes   atomic.Int32
	questions atomic.Int32
}

func (b *countingBank) GetQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	b.quizzes.Add(1)
	if quizID != "qz1" {
		return domain.Quiz{}, domain.ErrNotFound
	}
	return domain.Quiz{QuizID: "qz1", AssessmentID: "as1", Title: "Algebra", TimeLimit: 10 * time.Minute, Active: true}, nil
}

func (b *countingBank) ListQuestions(context.Context, string) ([]domain.Question, error) {
	b.questions.Add(1)
	return []domain.Question{{
		QuestionID: "q1",
		Number:     1,
		Prompt:     "2 + 2",
		Value:      decimal.RequireFromString("0.5"),
		Candidates: []domain.Candidate{{Letter: "A", Text: "4", Correct: true}, {Letter: "B", Text: "5"}},
	}}, nil
}

func (b *countingBank) GetQuestion(context.Context, string) (domain.Question, error) {
	return domain.Question{}, domain.ErrNotFound
}

func makeCache(t *testing.T) (*questionbank.Cache, *countingBank, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	r := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = r.Close() })

	bank := new(countingBank)
	return questionbank.NewCache(questionbank.Config{
		Bank:   bank,
		Redis:  r,
		Prefix: "test",
		TTL:    time.Minute,
	}), bank, mr
}

func TestCache_ReadThrough(t *testing.T) {
	c, bank, mr := makeCache(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		qz, err := c.GetQuiz(ctx, "qz1")
		require.NoError(t, err)
		assert.Equal(t, 10*time.Minute, qz.TimeLimit)

		qs, err := c.ListQuestions(ctx, "qz1")
		require.NoError(t, err)
		require.Len(t, qs, 1)
		assert.True(t, qs[0].Value.Equal(decimal.RequireFromString("0.5")))
		assert.True(t, qs[0].Candidates[0].Correct)
	}

	assert.Equal(t, int32(1), bank.quizzes.Load())
	assert.Equal(t, int32(1), bank.questions.Load())
	assert.True(t, mr.Exists("test:bank:quiz:qz1"))

	mr.FastForward(2 * time.Minute)
	_, err := c.GetQuiz(ctx, "qz1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), bank.quizzes.Load(), "expired entries should be reloaded")

	require.NoError(t, c.InvalidateQuiz(ctx, "qz1"))
	assert.False(t, mr.Exists("test:bank:questions:qz1"))
}

func TestCache_ErrorsAreNotCached(t *testing.T) {
	c, bank, mr := makeCache(t)
	ctx := context.Background()

	_, err := c.GetQuiz(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = c.GetQuiz(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.Equal(t, int32(2), bank.quizzes.Load())
	assert.False(t, mr.Exists("test:bank:quiz:nope"))
}

func TestCache_FallsThroughWhenRedisIsDown(t *testing.T) {
	c, bank, mr := makeCache(t)
	mr.Close()

	qz, err := c.GetQuiz(context.Background(), "qz1")
	require.NoError(t, err)
	assert.Equal(t, "qz1", qz.QuizID)
	assert.Equal(t, int32(1), bank.quizzes.Load())
}

// slowBank holds ListQuestions until release is closed or the load's ctx ends.
type slowBank struct {
	countingBank
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (b *slowBank) ListQuestions(ctx context.Context, quizID string) ([]domain.Question, error) {
	b.once.Do(func() { close(b.entered) })

	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return b.countingBank.ListQuestions(ctx, quizID)
}

func TestCache_SharedLoadSurvivesCancelledCaller(t *testing.T) {
	mr := miniredis.RunT(t)
	r := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = r.Close() })

	bank := &slowBank{entered: make(chan struct{}), release: make(chan struct{})}
	c := questionbank.NewCache(questionbank.Config{Bank: bank, Redis: r, Prefix: "test"})

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.ListQuestions(first, "qz1")
		firstErr <- err
	}()
	<-bank.entered

	type result struct {
		qs  []domain.Question
		err error
	}
	second := make(chan result, 1)
	go func() {
		qs, err := c.ListQuestions(context.Background(), "qz1")
		second <- result{qs, err}
	}()

	// Give the second caller time to join the load in flight.
	time.Sleep(50 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(bank.release)
	got := <-second
	require.NoError(t, got.err)
	require.Len(t, got.qs, 1)
	assert.Equal(t, "q1", got.qs[0].QuestionID)

	assert.Equal(t, int32(1), bank.questions.Load(), "both callers should share one load")
	assert.True(t, mr.Exists("test:bank:questions:qz1"))
}

func TestCache_InvalidateQuestion(t *testing.T) {
	c, _, mr := makeCache(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("test:bank:question:q1", `{"QuestionID":"q1"}`))
	q, err := c.GetQuestion(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, "q1", q.QuestionID)

	require.NoError(t, c.InvalidateQuestion(ctx, "q1"))
	assert.False(t, mr.Exists("test:bank:question:q1"))

	_, err = c.GetQuestion(ctx, "q1")
	assert.ErrorIs(t, err, domain.ErrNotFound, "the next read goes to the bank")
}
