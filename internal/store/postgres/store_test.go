//go:build integration_test

package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/victornm/examprep/internal/domain"
	"github.com/victornm/examprep/internal/store/postgres"
)

type fixture struct {
	store   *postgres.Store
	student string
	quiz    string
}

// makeStore connects to EXAMPREP_POSTGRES_DSN and seeds a student and a two-question
// quiz under fresh IDs, so runs never collide.
func makeStore(t *testing.T) fixture {
	t.Helper()

	dsn := os.Getenv("EXAMPREP_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("EXAMPREP_POSTGRES_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	s := postgres.New(postgres.Config{DB: db})
	require.NoError(t, s.Migrate(ctx))

	f := fixture{
		store:   s,
		student: "st-" + uuid.NewString(),
		quiz:    "qz-" + uuid.NewString(),
	}
	assessment := "as-" + uuid.NewString()

	require.NoError(t, s.PutStudent(ctx, domain.Student{StudentID: f.student, Name: "Lan"}))
	require.NoError(t, s.PutQuiz(ctx, domain.Quiz{QuizID: f.quiz, AssessmentID: assessment, Title: "Algebra", Active: true}))
	for i, v := range []string{"1", "2"} {
		require.NoError(t, s.PutQuestion(ctx, assessment, domain.Question{
			QuestionID: f.quiz + "-q" + v,
			Number:     i + 1,
			Prompt:     "prompt",
			Value:      decimal.RequireFromString(v),
			Candidates: []domain.Candidate{
				{Letter: "A", Text: "one", Correct: true},
				{Letter: "B", Text: "two"},
			},
		}))
	}

	return f
}

func (f fixture) attempt() domain.Attempt {
	return domain.Attempt{
		AttemptID:      uuid.Must(uuid.NewV7()).String(),
		StudentID:      f.student,
		QuizID:         f.quiz,
		StartTime:      time.Now().UTC().Truncate(time.Microsecond),
		TotalQuestions: 2,
	}
}

func TestStore_Catalog(t *testing.T) {
	f := makeStore(t)
	ctx := context.Background()

	questions, err := f.store.ListQuestions(ctx, f.quiz)
	require.NoError(t, err)
	require.Len(t, questions, 2)
	assert.Equal(t, 1, questions[0].Number)
	assert.True(t, questions[1].Value.Equal(decimal.NewFromInt(2)))
	assert.Len(t, questions[0].Candidates, 2)

	_, err = f.store.GetQuiz(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_CreateAttempt_Concurrent(t *testing.T) {
	f := makeStore(t)

	var (
		eg        errgroup.Group
		conflicts = make(chan error, 8)
	)
	for i := 0; i < 8; i++ {
		eg.Go(func() error {
			if err := f.store.CreateAttempt(context.Background(), f.attempt()); err != nil {
				conflicts <- err
			}
			return nil
		})
	}
	require.NoError(t, eg.Wait())
	close(conflicts)

	n := 0
	for err := range conflicts {
		assert.ErrorIs(t, err, domain.ErrConflict)
		n++
	}
	assert.Equal(t, 7, n)
}

func TestStore_AnswerAndFinalize(t *testing.T) {
	f := makeStore(t)
	ctx := context.Background()

	a := f.attempt()
	require.NoError(t, f.store.CreateAttempt(ctx, a))

	ans := domain.Answer{
		AnswerID:   uuid.Must(uuid.NewV7()).String(),
		AttemptID:  a.AttemptID,
		QuestionID: f.quiz + "-q1",
		Letter:     "A",
		Correct:    true,
		Points:     decimal.NewFromInt(1),
		CreateTime: time.Now().UTC(),
	}
	require.NoError(t, f.store.CreateAnswer(ctx, ans))

	dup := ans
	dup.AnswerID = uuid.Must(uuid.NewV7()).String()
	assert.ErrorIs(t, f.store.CreateAnswer(ctx, dup), domain.ErrConflict)

	// Concurrent finalizes: exactly one wins.
	var (
		eg     errgroup.Group
		losers = make(chan error, 4)
	)
	for i := 0; i < 4; i++ {
		eg.Go(func() error {
			_, err := f.store.FinalizeAttempt(ctx, a.AttemptID, time.Now(), func(as []domain.Answer) (domain.Aggregates, error) {
				return domain.Aggregates{
					TotalQuestions:  2,
					Answered:        len(as),
					Correct:         1,
					PercentCorrect:  decimal.NewFromInt(100),
					PointsEarned:    as[0].Points,
					TotalPoints:     decimal.NewFromInt(3),
					PercentOfPoints: decimal.RequireFromString("33.3"),
					PercentComplete: 50,
				}, nil
			})
			if err != nil {
				losers <- err
			}
			return nil
		})
	}
	require.NoError(t, eg.Wait())
	close(losers)

	n := 0
	for err := range losers {
		assert.ErrorIs(t, err, domain.ErrAlreadyFinished)
		n++
	}
	assert.Equal(t, 3, n)

	got, err := f.store.GetAttempt(ctx, a.AttemptID)
	require.NoError(t, err)
	require.True(t, got.Finalized())
	assert.True(t, got.Result.Aggregates.PointsEarned.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, 50, got.Result.Aggregates.PercentComplete)

	late := ans
	late.AnswerID = uuid.Must(uuid.NewV7()).String()
	late.QuestionID = f.quiz + "-q2"
	assert.ErrorIs(t, f.store.CreateAnswer(ctx, late), domain.ErrAttemptFinished)

	_, err = f.store.GetAttempt(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
