package attempt

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/victornm/examprep/internal/domain"
	"github.com/victornm/examprep/internal/event"
)

const defaultStoreTimeout = 5 * time.Second

// QuestionBank is the read-only source of quizzes and their questions.
type QuestionBank interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	// ListQuestions returns the quiz's questions ordered by number.
	ListQuestions(ctx context.Context, quizID string) ([]domain.Question, error)
	GetQuestion(ctx context.Context, questionID string) (domain.Question, error)
}

// Roster looks up the students allowed to take quizzes.
type Roster interface {
	GetStudent(ctx context.Context, studentID string) (domain.Student, error)
}

// AttemptStore persists attempts. Implementations must reject a second open
// attempt for the same student and quiz with domain.ErrConflict.
type AttemptStore interface {
	// FindOpenAttempt returns nil when the student has no open attempt on the quiz.
	FindOpenAttempt(ctx context.Context, studentID, quizID string) (*domain.Attempt, error)
	CreateAttempt(ctx context.Context, a domain.Attempt) error
	GetAttempt(ctx context.Context, attemptID string) (domain.Attempt, error)
	// ListAttempts returns the student's attempts, newest first. An empty quizID matches every quiz.
	ListAttempts(ctx context.Context, studentID, quizID string) ([]domain.Attempt, error)
	// FinalizeAttempt reads the attempt's answers, scores them and freezes the attempt in
	// one transaction. It fails with domain.ErrAlreadyFinished if the attempt is finalized.
	FinalizeAttempt(ctx context.Context, attemptID string, finishTime time.Time, score domain.Scorer) (domain.Attempt, error)
}

// AnswerStore persists answers. CreateAnswer fails with domain.ErrConflict when the
// question is already answered and with domain.ErrAttemptFinished when the attempt
// has been finalized.
type AnswerStore interface {
	// FindAnswer returns nil when the question has not been answered in the attempt.
	FindAnswer(ctx context.Context, attemptID, questionID string) (*domain.Answer, error)
	CreateAnswer(ctx context.Context, a domain.Answer) error
	ListAnswers(ctx context.Context, attemptID string) ([]domain.Answer, error)
}

type Config struct {
	// Bank serves the views. It may be cached.
	Bank QuestionBank
	// Source decides whether a quiz can be started, answered and scored, so it
	// must not be stale. It defaults to Bank.
	Source   QuestionBank
	Roster   Roster
	Attempts AttemptStore
	Answers  AnswerStore
	EventBus *event.Bus

	// Now defaults to time.Now.
	Now func() time.Time
	// StoreTimeout bounds every store call.
	StoreTimeout time.Duration
}

// Service runs the attempt lifecycle: start or resume, answer, finalize and review.
// It keeps no state between calls; all coordination happens in the stores.
type Service struct {
	bank     QuestionBank
	source   QuestionBank
	roster   Roster
	attempts AttemptStore
	answers  AnswerStore
	eb       *event.Bus

	now     func() time.Time
	timeout time.Duration
}

func NewService(c Config) *Service {
	s := &Service{
		bank:     c.Bank,
		source:   c.Source,
		roster:   c.Roster,
		attempts: c.Attempts,
		answers:  c.Answers,
		eb:       c.EventBus,
		now:      c.Now,
		timeout:  c.StoreTimeout,
	}

	if s.source == nil {
		s.source = s.bank
	}

	if s.now == nil {
		s.now = time.Now
	}

	if s.timeout <= 0 {
		s.timeout = defaultStoreTimeout
	}

	return s
}

func (s *Service) publish(ctx context.Context, e event.Event) {
	if s.eb != nil {
		s.eb.Publish(ctx, e)
	}
}

// call runs a store operation under the store timeout and retries it once
// when the store reports a transient failure.
func call[T any](ctx context.Context, s *Service, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	once := func() (T, error) {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		return fn(ctx)
	}

	v, err := once()
	if err == nil || !stderrors.Is(err, domain.ErrUnavailable) || ctx.Err() != nil {
		return v, err
	}

	slog.WarnContext(ctx, "attempt: retrying store call", "op", op, "error", err)
	return once()
}

func exec(ctx context.Context, s *Service, op string, fn func(ctx context.Context) error) error {
	_, err := call(ctx, s, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})

	return err
}
