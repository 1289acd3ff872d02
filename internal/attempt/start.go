package attempt

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/victornm/examprep/internal/domain"
	"github.com/victornm/examprep/internal/errors"
)

type StartRequest struct {
	StudentID string
	QuizID    string
}

// Start opens an attempt of the quiz for the student, or resumes the open one.
// Concurrent calls for the same student and quiz converge on a single attempt.
func (s *Service) Start(ctx context.Context, req StartRequest) (*AttemptView, error) {
	if req.StudentID == "" || req.QuizID == "" {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("student_id and quiz_id are required"))
	}

	if err := s.checkStartable(ctx, req); err != nil {
		return nil, err
	}

	open, err := call(ctx, s, "find open attempt", func(ctx context.Context) (*domain.Attempt, error) {
		return s.attempts.FindOpenAttempt(ctx, req.StudentID, req.QuizID)
	})
	if err != nil {
		return nil, fmt.Errorf("find open attempt: %w", err)
	}

	if open != nil {
		return s.resume(ctx, *open)
	}

	questions, err := call(ctx, s, "list questions", func(ctx context.Context) ([]domain.Question, error) {
		return s.source.ListQuestions(ctx, req.QuizID)
	})
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	if len(questions) == 0 {
		return nil, domain.ErrNoQuestions.With(errors.WithMessagef("quiz %s has no questions", req.QuizID))
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate attempt ID: %w", err)
	}

	a := domain.Attempt{
		AttemptID:      id.String(),
		StudentID:      req.StudentID,
		QuizID:         req.QuizID,
		StartTime:      s.now(),
		TotalQuestions: len(questions),
	}

	err = exec(ctx, s, "create attempt", func(ctx context.Context) error {
		return s.attempts.CreateAttempt(ctx, a)
	})

	if stderrors.Is(err, domain.ErrConflict) {
		// Another request opened the attempt first; join it.
		return s.resumeAfterConflict(ctx, req, err)
	}

	if err != nil {
		return nil, fmt.Errorf("create attempt: %w", err)
	}

	slog.InfoContext(ctx, "attempt: started",
		"attempt_id", a.AttemptID,
		"student_id", a.StudentID,
		"quiz_id", a.QuizID,
	)

	s.publish(ctx, domain.EventAttemptStarted{Attempt: a})

	return &AttemptView{
		Attempt:   a,
		Questions: toPublicQuestions(questions),
		Progress:  ProgressOf(questions, nil),
	}, nil
}

func (s *Service) checkStartable(ctx context.Context, req StartRequest) error {
	var (
		quiz domain.Quiz
		eg   errgroup.Group
	)

	eg.Go(func() (err error) {
		quiz, err = call(ctx, s, "get quiz", func(ctx context.Context) (domain.Quiz, error) {
			return s.source.GetQuiz(ctx, req.QuizID)
		})
		return err
	})

	eg.Go(func() error {
		_, err := call(ctx, s, "get student", func(ctx context.Context) (domain.Student, error) {
			return s.roster.GetStudent(ctx, req.StudentID)
		})
		return err
	})

	if err := eg.Wait(); err != nil {
		return err
	}

	if !quiz.Active {
		return domain.ErrInactiveQuiz.With(errors.WithMessagef("quiz %s is not active", req.QuizID))
	}

	return nil
}

func (s *Service) resumeAfterConflict(ctx context.Context, req StartRequest, conflict error) (*AttemptView, error) {
	open, err := call(ctx, s, "find open attempt", func(ctx context.Context) (*domain.Attempt, error) {
		return s.attempts.FindOpenAttempt(ctx, req.StudentID, req.QuizID)
	})
	if err != nil {
		return nil, fmt.Errorf("find open attempt after conflict: %w", err)
	}

	if open == nil {
		// The winner was finalized in between; the caller may start again.
		return nil, conflict
	}

	return s.resume(ctx, *open)
}

func (s *Service) resume(ctx context.Context, a domain.Attempt) (*AttemptView, error) {
	questions, answers, err := s.questionsAndAnswers(ctx, a)
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "attempt: resumed",
		"attempt_id", a.AttemptID,
		"student_id", a.StudentID,
		"quiz_id", a.QuizID,
		"answered", len(answers),
	)

	s.publish(ctx, domain.EventAttemptResumed{Attempt: a})

	return &AttemptView{
		Attempt:   a,
		Resumed:   true,
		Questions: toPublicQuestions(Unanswered(questions, answers)),
		Progress:  ProgressOf(questions, answers),
	}, nil
}

// questionsAndAnswers loads the quiz's current questions and the attempt's answers concurrently.
func (s *Service) questionsAndAnswers(ctx context.Context, a domain.Attempt) ([]domain.Question, []domain.Answer, error) {
	var (
		questions []domain.Question
		answers   []domain.Answer
		eg        errgroup.Group
	)

	eg.Go(func() (err error) {
		questions, err = call(ctx, s, "list questions", func(ctx context.Context) ([]domain.Question, error) {
			return s.bank.ListQuestions(ctx, a.QuizID)
		})
		if err != nil {
			return fmt.Errorf("list questions: %w", err)
		}
		return nil
	})

	eg.Go(func() (err error) {
		answers, err = call(ctx, s, "list answers", func(ctx context.Context) ([]domain.Answer, error) {
			return s.answers.ListAnswers(ctx, a.AttemptID)
		})
		if err != nil {
			return fmt.Errorf("list answers: %w", err)
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		return nil, nil, err
	}

	return questions, answers, nil
}
