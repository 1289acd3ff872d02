package api

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/victornm/examprep/internal/domain"
)

const maxConcurrent = 10

type (
	Notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}

	AnswerNotification struct {
		AttemptID  string `json:"attempt_id"`
		QuizID     string `json:"quiz_id"`
		QuestionID string `json:"question_id"`
		Correct    bool   `json:"correct"`
	}
)

// StudentChannel is where notifications for a student's own attempts go.
func StudentChannel(prefix, studentID string) string {
	return fmt.Sprintf("%s:student:%s", prefix, studentID)
}

// QuizChannel receives every finalized attempt of a quiz.
func QuizChannel(prefix, quizID string) string {
	return fmt.Sprintf("%s:quiz:%s", prefix, quizID)
}

func (a *API) PublishAttemptFinalized(ctx context.Context, e domain.EventAttemptFinalized) error {
	data := toAttempt(e.Attempt)
	channels := []string{
		StudentChannel(a.prefix, e.Attempt.StudentID),
		QuizChannel(a.prefix, e.Attempt.QuizID),
	}

	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)

	for _, ch := range channels {
		eg.Go(func() error {
			return a.publishNotification(ctx, ch, e.Name(), data)
		})
	}

	return eg.Wait()
}

func (a *API) PublishAnswerSubmitted(ctx context.Context, e domain.EventAnswerSubmitted) error {
	return a.publishNotification(ctx, StudentChannel(a.prefix, e.StudentID), e.Name(), AnswerNotification{
		AttemptID:  e.Answer.AttemptID,
		QuizID:     e.QuizID,
		QuestionID: e.Answer.QuestionID,
		Correct:    e.Answer.Correct,
	})
}

func (a *API) publishNotification(ctx context.Context, channel, event string, data any) error {
	n := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return a.redis.Publish(ctx, channel, b).Err()
}
