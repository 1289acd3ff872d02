package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultQuestionValue is the point value of a question that does not declare one.
var DefaultQuestionValue = decimal.RequireFromString("0.5")

type Student struct {
	StudentID string
	Name      string
}

// Quiz references an assessment whose questions make up the quiz.
type Quiz struct {
	QuizID       string
	AssessmentID string
	Title        string
	// TimeLimit is zero when the quiz is untimed.
	TimeLimit time.Duration
	Active    bool
}

type Question struct {
	QuestionID  string
	Number      int
	Prompt      string
	Candidates  []Candidate
	Value       decimal.Decimal
	Explanation string
}

type Candidate struct {
	Letter   string
	Text     string
	Correct  bool
	ImageURL string
}

// CorrectCandidate returns the only candidate marked correct. ok is false when
// zero or several candidates are marked correct.
func (q Question) CorrectCandidate() (c Candidate, ok bool) {
	n := 0
	for _, cand := range q.Candidates {
		if cand.Correct {
			c = cand
			n++
		}
	}

	return c, n == 1
}

// Candidate returns the candidate with the given letter, ignoring case.
func (q Question) Candidate(letter string) (Candidate, bool) {
	for _, c := range q.Candidates {
		if strings.EqualFold(c.Letter, letter) {
			return c, true
		}
	}

	return Candidate{}, false
}

type State int

const (
	StateOpen State = iota + 1
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// Attempt is one student's pass through a quiz.
// Result is nil while the attempt is open and set exactly once by finalization.
type Attempt struct {
	AttemptID      string
	StudentID      string
	QuizID         string
	StartTime      time.Time
	Answered       int
	Correct        int
	TotalQuestions int
	Result         *Result
}

func (a Attempt) State() State {
	if a.Result != nil {
		return StateFinalized
	}

	return StateOpen
}

func (a Attempt) Finalized() bool {
	return a.State() == StateFinalized
}

// Result is the frozen outcome of a finalized attempt.
type Result struct {
	FinishTime time.Time
	Aggregates Aggregates
}

// Aggregates are the score and progress figures computed at finalization.
type Aggregates struct {
	TotalQuestions  int
	Answered        int
	Correct         int
	PercentCorrect  decimal.Decimal
	PointsEarned    decimal.Decimal
	TotalPoints     decimal.Decimal
	PercentOfPoints decimal.Decimal
	PercentComplete int
}

// Scorer computes the aggregates of an attempt from its answers.
type Scorer func(answers []Answer) (Aggregates, error)

// Answer is immutable once written.
type Answer struct {
	AnswerID        string
	AttemptID       string
	QuestionID      string
	Letter          string
	Correct         bool
	ResponseSeconds *int
	Points          decimal.Decimal
	CreateTime      time.Time
}
