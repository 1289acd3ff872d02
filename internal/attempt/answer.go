package attempt

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/victornm/examprep/internal/domain"
	"github.com/victornm/examprep/internal/errors"
)

type SubmitAnswerRequest struct {
	AttemptID  string
	QuestionID string
	Letter     string
	// ResponseSeconds is optional and must not be negative.
	ResponseSeconds *int
	// StudentID, when set, must own the attempt.
	StudentID string
}

func (r SubmitAnswerRequest) validate() error {
	switch {
	case r.AttemptID == "":
		return errors.New(errors.CodeInvalidArgument, errors.WithMessagef("attempt_id is required"))
	case r.QuestionID == "":
		return errors.New(errors.CodeInvalidArgument, errors.WithMessagef("question_id is required"))
	case strings.TrimSpace(r.Letter) == "":
		return errors.New(errors.CodeInvalidArgument, errors.WithMessagef("letter is required"))
	case r.ResponseSeconds != nil && *r.ResponseSeconds < 0:
		return errors.New(errors.CodeInvalidArgument, errors.WithMessagef("response_seconds must not be negative"))
	}

	return nil
}

// SubmitAnswer records the student's choice for one question of an open attempt.
// Every question accepts exactly one answer.
func (s *Service) SubmitAnswer(ctx context.Context, req SubmitAnswerRequest) (*AnswerResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	a, err := s.getOwnedAttempt(ctx, req.AttemptID, req.StudentID)
	if err != nil {
		return nil, err
	}

	if a.Finalized() {
		return nil, domain.ErrAttemptFinished.With(errors.WithMessagef("attempt %s is finalized", a.AttemptID))
	}

	var (
		question  domain.Question
		questions []domain.Question
		prior     *domain.Answer
		eg        errgroup.Group
	)

	eg.Go(func() (err error) {
		question, err = call(ctx, s, "get question", func(ctx context.Context) (domain.Question, error) {
			return s.source.GetQuestion(ctx, req.QuestionID)
		})
		return err
	})

	eg.Go(func() (err error) {
		questions, err = call(ctx, s, "list questions", func(ctx context.Context) ([]domain.Question, error) {
			return s.source.ListQuestions(ctx, a.QuizID)
		})
		return err
	})

	eg.Go(func() (err error) {
		prior, err = call(ctx, s, "find answer", func(ctx context.Context) (*domain.Answer, error) {
			return s.answers.FindAnswer(ctx, a.AttemptID, req.QuestionID)
		})
		return err
	})

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	if !contains(questions, question.QuestionID) {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("question %s is not part of quiz %s", question.QuestionID, a.QuizID))
	}

	if prior != nil {
		return nil, duplicateAnswer(req)
	}

	correct, ok := question.CorrectCandidate()
	if !ok {
		slog.ErrorContext(ctx, "attempt: misconfigured question", "question_id", question.QuestionID)
		return nil, domain.ErrMisconfiguredQuestion.With(
			errors.WithMessagef("question %s must have exactly one correct candidate", question.QuestionID))
	}

	chosen, ok := question.Candidate(strings.TrimSpace(req.Letter))
	if !ok {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("question %s has no candidate %q", question.QuestionID, req.Letter))
	}

	isCorrect := strings.EqualFold(chosen.Letter, correct.Letter)

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate answer ID: %w", err)
	}

	ans := domain.Answer{
		AnswerID:        id.String(),
		AttemptID:       a.AttemptID,
		QuestionID:      question.QuestionID,
		Letter:          chosen.Letter,
		Correct:         isCorrect,
		ResponseSeconds: req.ResponseSeconds,
		Points:          PointsFor(question, isCorrect),
		CreateTime:      s.now(),
	}

	err = exec(ctx, s, "create answer", func(ctx context.Context) error {
		return s.answers.CreateAnswer(ctx, ans)
	})

	switch {
	case stderrors.Is(err, domain.ErrConflict):
		return nil, duplicateAnswer(req)
	case err != nil:
		return nil, fmt.Errorf("create answer: %w", err)
	}

	answers, err := call(ctx, s, "list answers", func(ctx context.Context) ([]domain.Answer, error) {
		return s.answers.ListAnswers(ctx, a.AttemptID)
	})
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}

	slog.InfoContext(ctx, "attempt: answer submitted",
		"attempt_id", a.AttemptID,
		"question_id", ans.QuestionID,
		"correct", ans.Correct,
	)

	s.publish(ctx, domain.EventAnswerSubmitted{
		StudentID: a.StudentID,
		QuizID:    a.QuizID,
		Answer:    ans,
	})

	return &AnswerResult{
		Answer:           ans,
		Correct:          isCorrect,
		CorrectCandidate: toPublicCandidate(correct),
		Progress:         ProgressOf(questions, answers),
	}, nil
}

// getOwnedAttempt loads the attempt and hides it from any student but its owner.
func (s *Service) getOwnedAttempt(ctx context.Context, attemptID, studentID string) (domain.Attempt, error) {
	a, err := call(ctx, s, "get attempt", func(ctx context.Context) (domain.Attempt, error) {
		return s.attempts.GetAttempt(ctx, attemptID)
	})
	if err != nil {
		return domain.Attempt{}, err
	}

	if studentID != "" && a.StudentID != studentID {
		return domain.Attempt{}, domain.ErrNotFound.With(errors.WithMessagef("attempt %s not found", attemptID))
	}

	return a, nil
}

func duplicateAnswer(req SubmitAnswerRequest) error {
	return domain.ErrDuplicateAnswer.With(
		errors.WithMessagef("question %s is already answered in attempt %s", req.QuestionID, req.AttemptID))
}

func contains(questions []domain.Question, questionID string) bool {
	for _, q := range questions {
		if q.QuestionID == questionID {
			return true
		}
	}

	return false
}
