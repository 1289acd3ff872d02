package domain

import (
	"github.com/victornm/examprep/internal/errors"
)

const (
	ReasonNotFound              = "NOT_FOUND"
	ReasonInactiveQuiz          = "INACTIVE_QUIZ"
	ReasonNoQuestions           = "NO_QUESTIONS"
	ReasonAttemptFinished       = "ATTEMPT_FINISHED"
	ReasonAlreadyFinished       = "ALREADY_FINISHED"
	ReasonNotFinished           = "NOT_FINISHED"
	ReasonDuplicateAnswer       = "DUPLICATE_ANSWER"
	ReasonMisconfiguredQuestion = "MISCONFIGURED_QUESTION"
	ReasonConstraintConflict    = "CONSTRAINT_CONFLICT"
	ReasonStoreUnavailable      = "STORE_UNAVAILABLE"
)

// Sentinels are matched with errors.Is and decorated per call site with With.
var (
	ErrNotFound              = errors.New(errors.CodeNotFound, errors.WithReason(ReasonNotFound))
	ErrInactiveQuiz          = errors.New(errors.CodeFailedPrecondition, errors.WithReason(ReasonInactiveQuiz))
	ErrNoQuestions           = errors.New(errors.CodeFailedPrecondition, errors.WithReason(ReasonNoQuestions))
	ErrAttemptFinished       = errors.New(errors.CodeFailedPrecondition, errors.WithReason(ReasonAttemptFinished))
	ErrAlreadyFinished       = errors.New(errors.CodeFailedPrecondition, errors.WithReason(ReasonAlreadyFinished))
	ErrNotFinished           = errors.New(errors.CodeFailedPrecondition, errors.WithReason(ReasonNotFinished))
	ErrDuplicateAnswer       = errors.New(errors.CodeAlreadyExists, errors.WithReason(ReasonDuplicateAnswer))
	ErrMisconfiguredQuestion = errors.New(errors.CodeInternal, errors.WithReason(ReasonMisconfiguredQuestion))
	ErrConflict              = errors.New(errors.CodeAlreadyExists, errors.WithReason(ReasonConstraintConflict))
	ErrUnavailable           = errors.New(errors.CodeUnavailable, errors.WithReason(ReasonStoreUnavailable))
)
