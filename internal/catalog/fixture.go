// Package catalog loads students, quizzes and questions from a fixture file into a store.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/victornm/examprep/internal/config"
	"github.com/victornm/examprep/internal/domain"
)

type Writer interface {
	PutStudent(ctx context.Context, st domain.Student) error
	PutQuiz(ctx context.Context, q domain.Quiz) error
	PutQuestion(ctx context.Context, assessmentID string, q domain.Question) error
	ListQuestions(ctx context.Context, quizID string) ([]domain.Question, error)
	DeleteQuestion(ctx context.Context, questionID string) error
}

// Invalidator drops cached copies of what a load rewrites.
type Invalidator interface {
	InvalidateQuiz(ctx context.Context, quizID string) error
	InvalidateQuestion(ctx context.Context, questionID string) error
}

type Option func(*loader)

// WithInvalidator clears cache entries for every quiz and question the load
// writes or deletes.
func WithInvalidator(inv Invalidator) Option {
	return func(l *loader) {
		l.inv = inv
	}
}

type loader struct {
	w   Writer
	inv Invalidator
}

type (
	Fixture struct {
		Students []Student
		Quizzes  []Quiz
	}

	Student struct {
		ID   string
		Name string
	}

	Quiz struct {
		ID           string
		AssessmentID string `mapstructure:"assessment_id"`
		Title        string
		TimeLimit    time.Duration `mapstructure:"time_limit"`
		Active       bool
		Questions    []Question
	}

	Question struct {
		ID          string
		Number      int
		Prompt      string
		Value       string
		Explanation string
		Candidates  []Candidate
	}

	Candidate struct {
		Letter   string
		Text     string
		Correct  bool
		ImageURL string `mapstructure:"image_url"`
	}
)

// LoadFile reads a YAML or JSON fixture and writes it with w. Existing rows are
// overwritten and questions missing from a loaded assessment are deleted.
func LoadFile(ctx context.Context, file string, w Writer, opts ...Option) error {
	var f Fixture
	if err := config.Load(file, &f); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}

	return Load(ctx, f, w, opts...)
}

func Load(ctx context.Context, f Fixture, w Writer, opts ...Option) error {
	l := &loader{w: w}
	for _, opt := range opts {
		opt(l)
	}

	for _, st := range f.Students {
		if err := w.PutStudent(ctx, domain.Student{StudentID: st.ID, Name: st.Name}); err != nil {
			return fmt.Errorf("catalog: put student %s: %w", st.ID, err)
		}
	}

	var (
		questions int
		// kept holds the fixture's question IDs per assessment, and quizOf one
		// quiz to list each assessment through.
		kept   = make(map[string]map[string]struct{})
		quizOf = make(map[string]string)
	)

	for _, qz := range f.Quizzes {
		assessmentID := qz.AssessmentID
		if assessmentID == "" {
			assessmentID = qz.ID
		}

		err := w.PutQuiz(ctx, domain.Quiz{
			QuizID:       qz.ID,
			AssessmentID: assessmentID,
			Title:        qz.Title,
			TimeLimit:    qz.TimeLimit,
			Active:       qz.Active,
		})
		if err != nil {
			return fmt.Errorf("catalog: put quiz %s: %w", qz.ID, err)
		}

		if kept[assessmentID] == nil {
			kept[assessmentID] = make(map[string]struct{})
			quizOf[assessmentID] = qz.ID
		}

		for _, q := range qz.Questions {
			dq, err := q.toDomain()
			if err != nil {
				return fmt.Errorf("catalog: quiz %s: %w", qz.ID, err)
			}

			if err := w.PutQuestion(ctx, assessmentID, dq); err != nil {
				return fmt.Errorf("catalog: put question %s: %w", q.ID, err)
			}
			kept[assessmentID][q.ID] = struct{}{}
			l.invalidateQuestion(ctx, q.ID)
			questions++
		}
	}

	deleted := 0
	for assessmentID, ids := range kept {
		stored, err := w.ListQuestions(ctx, quizOf[assessmentID])
		if err != nil {
			return fmt.Errorf("catalog: list questions of %s: %w", assessmentID, err)
		}

		for _, q := range stored {
			if _, ok := ids[q.QuestionID]; ok {
				continue
			}

			if err := w.DeleteQuestion(ctx, q.QuestionID); err != nil {
				return fmt.Errorf("catalog: delete question %s: %w", q.QuestionID, err)
			}
			l.invalidateQuestion(ctx, q.QuestionID)
			deleted++
		}
	}

	for _, qz := range f.Quizzes {
		l.invalidateQuiz(ctx, qz.ID)
	}

	slog.InfoContext(ctx, "catalog: fixture loaded",
		"students", len(f.Students),
		"quizzes", len(f.Quizzes),
		"questions", questions,
		"deleted_questions", deleted,
	)

	return nil
}

// A failed invalidation leaves the entry to expire with its TTL.
func (l *loader) invalidateQuiz(ctx context.Context, quizID string) {
	if l.inv == nil {
		return
	}

	if err := l.inv.InvalidateQuiz(ctx, quizID); err != nil {
		slog.WarnContext(ctx, "catalog: invalidate quiz failed", "quiz_id", quizID, "error", err)
	}
}

func (l *loader) invalidateQuestion(ctx context.Context, questionID string) {
	if l.inv == nil {
		return
	}

	if err := l.inv.InvalidateQuestion(ctx, questionID); err != nil {
		slog.WarnContext(ctx, "catalog: invalidate question failed", "question_id", questionID, "error", err)
	}
}

func (q Question) toDomain() (domain.Question, error) {
	// An omitted value defaults; an explicit 0 is kept.
	value := domain.DefaultQuestionValue
	if q.Value != "" {
		v, err := decimal.NewFromString(q.Value)
		if err != nil {
			return domain.Question{}, fmt.Errorf("question %s: value %q: %w", q.ID, q.Value, err)
		}
		value = v
	}

	cands := make([]domain.Candidate, 0, len(q.Candidates))
	for _, c := range q.Candidates {
		cands = append(cands, domain.Candidate(c))
	}

	return domain.Question{
		QuestionID:  q.ID,
		Number:      q.Number,
		Prompt:      q.Prompt,
		Candidates:  cands,
		Value:       value,
		Explanation: q.Explanation,
	}, nil
}
