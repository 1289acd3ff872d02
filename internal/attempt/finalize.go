package attempt

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/victornm/examprep/internal/domain"
	"github.com/victornm/examprep/internal/errors"
)

type FinalizeRequest struct {
	AttemptID string
	StudentID string
}

// Finalize freezes the attempt and computes its aggregates. Of several concurrent
// calls exactly one succeeds; the rest fail with domain.ErrAlreadyFinished.
func (s *Service) Finalize(ctx context.Context, req FinalizeRequest) (*FinalResult, error) {
	if req.AttemptID == "" {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("attempt_id is required"))
	}

	a, err := s.getOwnedAttempt(ctx, req.AttemptID, req.StudentID)
	if err != nil {
		return nil, err
	}

	if a.Finalized() {
		return nil, alreadyFinished(a.AttemptID)
	}

	questions, err := call(ctx, s, "list questions", func(ctx context.Context) ([]domain.Question, error) {
		return s.source.ListQuestions(ctx, a.QuizID)
	})
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	var answers []domain.Answer
	score := func(as []domain.Answer) (domain.Aggregates, error) {
		answers = as
		return Score(questions, as), nil
	}

	finishTime := s.now()
	finalized, err := call(ctx, s, "finalize attempt", func(ctx context.Context) (domain.Attempt, error) {
		return s.attempts.FinalizeAttempt(ctx, a.AttemptID, finishTime, score)
	})

	switch {
	case stderrors.Is(err, domain.ErrAlreadyFinished):
		return nil, alreadyFinished(a.AttemptID)
	case err != nil:
		return nil, fmt.Errorf("finalize attempt: %w", err)
	}

	agg := finalized.Result.Aggregates

	slog.InfoContext(ctx, "attempt: finalized",
		"attempt_id", finalized.AttemptID,
		"student_id", finalized.StudentID,
		"quiz_id", finalized.QuizID,
		"answered", agg.Answered,
		"correct", agg.Correct,
		"points", agg.PointsEarned.String(),
	)

	s.publish(ctx, domain.EventAttemptFinalized{Attempt: finalized})

	return &FinalResult{
		Attempt:    finalized,
		Aggregates: agg,
		Unanswered: toSummaries(Unanswered(questions, answers)),
	}, nil
}

func alreadyFinished(attemptID string) error {
	return domain.ErrAlreadyFinished.With(errors.WithMessagef("attempt %s is already finalized", attemptID))
}
