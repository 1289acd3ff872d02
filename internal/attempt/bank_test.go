package attempt_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/examprep/internal/attempt"
	"github.com/victornm/examprep/internal/domain"
	"github.com/victornm/examprep/internal/errors"
	"github.com/victornm/examprep/internal/questionbank"
)

// withCachedBank serves the views from a Redis cache in front of the fixture's store.
func withCachedBank(t *testing.T, f fixture) fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	r := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = r.Close() })

	cache := questionbank.NewCache(questionbank.Config{Bank: f.store, Redis: r, Prefix: "test", TTL: time.Hour})

	f.svc = attempt.NewService(attempt.Config{
		Bank:     cache,
		Source:   f.store,
		Roster:   f.store,
		Attempts: f.store,
		Answers:  f.store,
		EventBus: f.eb,
		Now:      f.clock.Now,
	})

	return f
}

func TestService_CachedBank(t *testing.T) {
	tests := map[string]struct {
		act    func(t *testing.T, f fixture, attemptID string) error
		assert func(t *testing.T, f fixture, err error)
	}{
		"should refuse a quiz deactivated after it was cached": {
			act: func(t *testing.T, f fixture, _ string) error {
				require.NoError(t, f.store.PutQuiz(context.Background(), domain.Quiz{
					QuizID: "qz1", AssessmentID: "as1", Title: "Algebra", TimeLimit: 10 * time.Minute,
				}))

				_, err := f.svc.Start(context.Background(), attempt.StartRequest{StudentID: "st2", QuizID: "qz1"})
				return err
			},
			assert: func(t *testing.T, _ fixture, err error) {
				assert.ErrorIs(t, err, domain.ErrInactiveQuiz)
			},
		},
		"should refuse an answer to a question moved out after it was cached": {
			act: func(t *testing.T, f fixture, attemptID string) error {
				require.NoError(t, f.store.PutQuestion(context.Background(), "as-archive", q("q2", 2, "1")))

				_, err := f.svc.SubmitAnswer(context.Background(), attempt.SubmitAnswerRequest{
					AttemptID: attemptID, QuestionID: "q2", Letter: "A",
				})
				return err
			},
			assert: func(t *testing.T, _ fixture, err error) {
				require.Error(t, err)
				assert.Equal(t, errors.CodeInvalidArgument, errors.Convert(err).Code)
			},
		},
		"should score against the questions in the store": {
			act: func(t *testing.T, f fixture, attemptID string) error {
				require.NoError(t, f.store.DeleteQuestion(context.Background(), "q3"))

				r, err := f.svc.Finalize(context.Background(), attempt.FinalizeRequest{AttemptID: attemptID})
				if err == nil {
					assertDecimal(t, "2", r.Aggregates.TotalPoints)
				}
				return err
			},
			assert: func(t *testing.T, _ fixture, err error) {
				require.NoError(t, err)
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			f := withCachedBank(t, makeService(t))

			// Reading progress fills the cache with qz1 and its questions.
			v := f.start(t, "st1", "qz1")
			_, err := f.svc.GetInProgress(context.Background(), attempt.GetAttemptRequest{AttemptID: v.Attempt.AttemptID})
			require.NoError(t, err)

			tt.assert(t, f, tt.act(t, f, v.Attempt.AttemptID))
		})
	}
}
