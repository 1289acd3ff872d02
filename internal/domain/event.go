package domain

const (
	EventNameAttemptStarted   = "attempt.started"
	EventNameAttemptResumed   = "attempt.resumed"
	EventNameAnswerSubmitted  = "answer.submitted"
	EventNameAttemptFinalized = "attempt.finalized"
)

type EventAttemptStarted struct {
	Attempt Attempt
}

func (EventAttemptStarted) Name() string { return EventNameAttemptStarted }

type EventAttemptResumed struct {
	Attempt Attempt
}

func (EventAttemptResumed) Name() string { return EventNameAttemptResumed }

type EventAnswerSubmitted struct {
	StudentID string
	QuizID    string
	Answer    Answer
}

func (EventAnswerSubmitted) Name() string { return EventNameAnswerSubmitted }

type EventAttemptFinalized struct {
	Attempt Attempt
}

func (EventAttemptFinalized) Name() string { return EventNameAttemptFinalized }
