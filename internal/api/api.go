package api

import (
	"context"

	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"github.com/victornm/examprep/internal/attempt"
	"github.com/victornm/examprep/internal/auth"
	"github.com/victornm/examprep/internal/domain"
	"github.com/victornm/examprep/internal/errors"
	"github.com/victornm/examprep/internal/event"
)

// Attempts is the attempt lifecycle the API exposes.
type Attempts interface {
	Start(ctx context.Context, req attempt.StartRequest) (*attempt.AttemptView, error)
	SubmitAnswer(ctx context.Context, req attempt.SubmitAnswerRequest) (*attempt.AnswerResult, error)
	Finalize(ctx context.Context, req attempt.FinalizeRequest) (*attempt.FinalResult, error)
	GetInProgress(ctx context.Context, req attempt.GetAttemptRequest) (*attempt.ProgressView, error)
	GetFinalized(ctx context.Context, req attempt.GetAttemptRequest) (*attempt.DetailedResult, error)
	ListAttempts(ctx context.Context, req attempt.ListAttemptsRequest) ([]domain.Attempt, error)
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type Config struct {
	Attempts Attempts
	// GRPC, when set, gets the attempt service registered on it.
	GRPC     grpc.ServiceRegistrar
	EventBus *event.Bus
	// Redis and PubsubPrefix enable attempt notifications; Redis may be nil.
	Redis        Redis
	PubsubPrefix string
}

type API struct {
	attempts Attempts

	redis  Redis
	prefix string
}

var _ AttemptServiceServer = (*API)(nil)

func New(c Config) *API {
	a := &API{
		attempts: c.Attempts,
		redis:    c.Redis,
		prefix:   c.PubsubPrefix,
	}

	if c.GRPC != nil {
		RegisterAttemptServiceServer(c.GRPC, a)
	}

	if c.EventBus != nil && c.Redis != nil {
		c.EventBus.Subscribe(domain.EventNameAttemptFinalized, func(ctx context.Context, e event.Event) error {
			return a.PublishAttemptFinalized(ctx, e.(domain.EventAttemptFinalized))
		})

		c.EventBus.Subscribe(domain.EventNameAnswerSubmitted, func(ctx context.Context, e event.Event) error {
			return a.PublishAnswerSubmitted(ctx, e.(domain.EventAnswerSubmitted))
		})
	}

	return a
}

func (a *API) Start(ctx context.Context, req *StartRequest) (*AttemptView, error) {
	studentID, err := studentFor(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}

	v, err := a.attempts.Start(ctx, attempt.StartRequest{
		StudentID: studentID,
		QuizID:    req.QuizID,
	})
	if err != nil {
		return nil, err
	}

	return toAttemptView(v), nil
}

func (a *API) SubmitAnswer(ctx context.Context, req *SubmitAnswerRequest) (*AnswerResult, error) {
	r, err := a.attempts.SubmitAnswer(ctx, attempt.SubmitAnswerRequest{
		AttemptID:       req.AttemptID,
		QuestionID:      req.QuestionID,
		Letter:          req.Letter,
		ResponseSeconds: req.ResponseSeconds,
		StudentID:       caller(ctx),
	})
	if err != nil {
		return nil, err
	}

	return toAnswerResult(r), nil
}

func (a *API) Finalize(ctx context.Context, req *AttemptRequest) (*FinalResult, error) {
	r, err := a.attempts.Finalize(ctx, attempt.FinalizeRequest{
		AttemptID: req.AttemptID,
		StudentID: caller(ctx),
	})
	if err != nil {
		return nil, err
	}

	return toFinalResult(r), nil
}

func (a *API) GetInProgress(ctx context.Context, req *AttemptRequest) (*ProgressView, error) {
	v, err := a.attempts.GetInProgress(ctx, attempt.GetAttemptRequest{
		AttemptID: req.AttemptID,
		StudentID: caller(ctx),
	})
	if err != nil {
		return nil, err
	}

	return toProgressView(v), nil
}

func (a *API) GetFinalized(ctx context.Context, req *AttemptRequest) (*DetailedResult, error) {
	r, err := a.attempts.GetFinalized(ctx, attempt.GetAttemptRequest{
		AttemptID: req.AttemptID,
		StudentID: caller(ctx),
	})
	if err != nil {
		return nil, err
	}

	return toDetailedResult(r), nil
}

func (a *API) ListAttempts(ctx context.Context, req *ListAttemptsRequest) (*ListAttemptsResponse, error) {
	studentID, err := studentFor(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}

	as, err := a.attempts.ListAttempts(ctx, attempt.ListAttemptsRequest{
		StudentID: studentID,
		QuizID:    req.QuizID,
	})
	if err != nil {
		return nil, err
	}

	return toAttempts(as), nil
}

// studentFor resolves the student a request acts for. An authenticated caller
// may only act for themselves.
func studentFor(ctx context.Context, requested string) (string, error) {
	id, ok := auth.StudentFrom(ctx)
	if !ok {
		return requested, nil
	}

	if requested != "" && requested != id {
		return "", errors.New(errors.CodePermissionDenied,
			errors.WithMessagef("cannot act for student %s", requested))
	}

	return id, nil
}

// caller is the authenticated student, or empty when authentication is off.
func caller(ctx context.Context) string {
	id, _ := auth.StudentFrom(ctx)
	return id
}
