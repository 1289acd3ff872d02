package attempt

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/victornm/examprep/internal/domain"
)

// PublicQuestion is a question as shown to a student who has not answered it:
// candidates carry no correctness.
type PublicQuestion struct {
	QuestionID string
	Number     int
	Prompt     string
	Value      decimal.Decimal
	Candidates []PublicCandidate
}

type PublicCandidate struct {
	Letter   string
	Text     string
	ImageURL string
}

type QuestionSummary struct {
	QuestionID string
	Number     int
	Prompt     string
}

type QuizSummary struct {
	QuizID    string
	Title     string
	TimeLimit time.Duration
}

type AttemptView struct {
	Attempt domain.Attempt
	// Resumed is true when an open attempt already existed.
	Resumed bool
	// Questions are the questions still to answer, all of them for a new attempt.
	Questions []PublicQuestion
	Progress  Progress
}

type AnswerResult struct {
	Answer  domain.Answer
	Correct bool
	// CorrectCandidate is revealed only for the question just answered.
	CorrectCandidate PublicCandidate
	Progress         Progress
}

type FinalResult struct {
	Attempt    domain.Attempt
	Aggregates domain.Aggregates
	Unanswered []QuestionSummary
}

// ProgressView describes an attempt being taken. For a finalized attempt only
// Finished, Attempt, StartTime and FinishTime are set.
type ProgressView struct {
	Attempt    domain.Attempt
	Finished   bool
	StartTime  time.Time
	FinishTime *time.Time

	Student        domain.Student
	Quiz           QuizSummary
	ElapsedSeconds int64
	// RemainingSeconds is nil for untimed quizzes and negative once the limit is exceeded.
	RemainingSeconds *int64
	Exceeded         bool
	Pending          []PublicQuestion
	Progress         Progress
}

type DetailedResult struct {
	Attempt    domain.Attempt
	Aggregates domain.Aggregates
	Items      []ResultItem
}

// ResultItem is the review of one question after finalization. The full candidate
// list, correct one included, is safe to reveal at this point.
type ResultItem struct {
	QuestionID  string
	Number      int
	Prompt      string
	Value       decimal.Decimal
	Candidates  []domain.Candidate
	Explanation string

	Answered        bool
	Letter          string
	Correct         bool
	ResponseSeconds *int
	Points          decimal.Decimal

	// Removed is set when the question was deleted from the bank. Only the
	// answer is left to review.
	Removed bool
}

func toPublicQuestions(qs []domain.Question) []PublicQuestion {
	out := make([]PublicQuestion, 0, len(qs))
	for _, q := range qs {
		out = append(out, toPublicQuestion(q))
	}

	return out
}

func toPublicQuestion(q domain.Question) PublicQuestion {
	pq := PublicQuestion{
		QuestionID: q.QuestionID,
		Number:     q.Number,
		Prompt:     q.Prompt,
		Value:      q.Value,
		Candidates: make([]PublicCandidate, 0, len(q.Candidates)),
	}

	for _, c := range q.Candidates {
		pq.Candidates = append(pq.Candidates, toPublicCandidate(c))
	}

	return pq
}

func toPublicCandidate(c domain.Candidate) PublicCandidate {
	return PublicCandidate{
		Letter:   c.Letter,
		Text:     c.Text,
		ImageURL: c.ImageURL,
	}
}

func toSummaries(qs []domain.Question) []QuestionSummary {
	out := make([]QuestionSummary, 0, len(qs))
	for _, q := range qs {
		out = append(out, QuestionSummary{
			QuestionID: q.QuestionID,
			Number:     q.Number,
			Prompt:     q.Prompt,
		})
	}

	return out
}
