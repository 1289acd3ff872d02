package attempt

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/victornm/examprep/internal/domain"
	"github.com/victornm/examprep/internal/errors"
)

type GetAttemptRequest struct {
	AttemptID string
	StudentID string
}

// GetInProgress describes where the student stands in an attempt. The time limit
// is reported, never enforced.
func (s *Service) GetInProgress(ctx context.Context, req GetAttemptRequest) (*ProgressView, error) {
	if req.AttemptID == "" {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("attempt_id is required"))
	}

	a, err := s.getOwnedAttempt(ctx, req.AttemptID, req.StudentID)
	if err != nil {
		return nil, err
	}

	if a.Finalized() {
		finish := a.Result.FinishTime
		return &ProgressView{
			Attempt:    a,
			Finished:   true,
			StartTime:  a.StartTime,
			FinishTime: &finish,
		}, nil
	}

	var (
		student   domain.Student
		quiz      domain.Quiz
		questions []domain.Question
		answers   []domain.Answer
		eg        errgroup.Group
	)

	eg.Go(func() (err error) {
		student, err = call(ctx, s, "get student", func(ctx context.Context) (domain.Student, error) {
			return s.roster.GetStudent(ctx, a.StudentID)
		})
		return err
	})

	eg.Go(func() (err error) {
		quiz, err = call(ctx, s, "get quiz", func(ctx context.Context) (domain.Quiz, error) {
			return s.bank.GetQuiz(ctx, a.QuizID)
		})
		return err
	})

	eg.Go(func() (err error) {
		questions, answers, err = s.questionsAndAnswers(ctx, a)
		return err
	})

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	elapsed := int64(s.now().Sub(a.StartTime) / time.Second)
	if elapsed < 0 {
		elapsed = 0
	}

	v := &ProgressView{
		Attempt:   a,
		StartTime: a.StartTime,
		Student:   student,
		Quiz: QuizSummary{
			QuizID:    quiz.QuizID,
			Title:     quiz.Title,
			TimeLimit: quiz.TimeLimit,
		},
		ElapsedSeconds: elapsed,
		Pending:        toPublicQuestions(Unanswered(questions, answers)),
		Progress:       ProgressOf(questions, answers),
	}

	if quiz.TimeLimit > 0 {
		remaining := int64(quiz.TimeLimit/time.Second) - elapsed
		v.RemainingSeconds = &remaining
		v.Exceeded = remaining < 0
	}

	return v, nil
}

// GetFinalized returns the per-question review of a finalized attempt, ordered by
// question number. Answers to questions that have since left the quiz are still
// reviewed; answers to deleted questions come last.
func (s *Service) GetFinalized(ctx context.Context, req GetAttemptRequest) (*DetailedResult, error) {
	if req.AttemptID == "" {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("attempt_id is required"))
	}

	a, err := s.getOwnedAttempt(ctx, req.AttemptID, req.StudentID)
	if err != nil {
		return nil, err
	}

	if !a.Finalized() {
		return nil, domain.ErrNotFinished.With(errors.WithMessagef("attempt %s is not finalized", a.AttemptID))
	}

	questions, answers, err := s.questionsAndAnswers(ctx, a)
	if err != nil {
		return nil, err
	}

	byID := answeredSet(answers)
	items := make([]ResultItem, 0, len(questions))
	seen := make(map[string]struct{}, len(questions))

	for _, q := range questions {
		seen[q.QuestionID] = struct{}{}
		ans, ok := byID[q.QuestionID]
		items = append(items, resultItem(q, ans, ok))
	}

	for _, ans := range answers {
		if _, ok := seen[ans.QuestionID]; ok {
			continue
		}

		q, err := call(ctx, s, "get question", func(ctx context.Context) (domain.Question, error) {
			return s.bank.GetQuestion(ctx, ans.QuestionID)
		})

		switch {
		case stderrors.Is(err, domain.ErrNotFound):
			it := resultItem(domain.Question{QuestionID: ans.QuestionID}, ans, true)
			it.Removed = true
			items = append(items, it)
		case err != nil:
			return nil, fmt.Errorf("get removed question %s: %w", ans.QuestionID, err)
		default:
			items = append(items, resultItem(q, ans, true))
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Removed != items[j].Removed {
			return !items[i].Removed
		}
		return items[i].Number < items[j].Number
	})

	return &DetailedResult{
		Attempt:    a,
		Aggregates: a.Result.Aggregates,
		Items:      items,
	}, nil
}

func resultItem(q domain.Question, ans domain.Answer, answered bool) ResultItem {
	it := ResultItem{
		QuestionID:  q.QuestionID,
		Number:      q.Number,
		Prompt:      q.Prompt,
		Value:       q.Value,
		Candidates:  q.Candidates,
		Explanation: q.Explanation,
		Points:      decimal.Zero,
	}

	if answered {
		it.Answered = true
		it.Letter = ans.Letter
		it.Correct = ans.Correct
		it.ResponseSeconds = ans.ResponseSeconds
		it.Points = ans.Points
	}

	return it
}

type ListAttemptsRequest struct {
	StudentID string
	// QuizID narrows the history to one quiz when set.
	QuizID string
}

// ListAttempts returns the student's attempt history, newest first.
func (s *Service) ListAttempts(ctx context.Context, req ListAttemptsRequest) ([]domain.Attempt, error) {
	if req.StudentID == "" {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("student_id is required"))
	}

	attempts, err := call(ctx, s, "list attempts", func(ctx context.Context) ([]domain.Attempt, error) {
		return s.attempts.ListAttempts(ctx, req.StudentID, req.QuizID)
	})
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}

	return attempts, nil
}
