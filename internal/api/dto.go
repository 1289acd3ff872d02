package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/victornm/examprep/internal/attempt"
	"github.com/victornm/examprep/internal/domain"
)

// Wire types shared by the gRPC and REST surfaces.
type (
	StartRequest struct {
		StudentID string `json:"student_id"`
		QuizID    string `json:"quiz_id"`
	}

	SubmitAnswerRequest struct {
		AttemptID       string `json:"attempt_id"`
		QuestionID      string `json:"question_id"`
		Letter          string `json:"letter"`
		ResponseSeconds *int   `json:"response_seconds,omitempty"`
	}

	AttemptRequest struct {
		AttemptID string `json:"attempt_id"`
	}

	ListAttemptsRequest struct {
		StudentID string `json:"student_id"`
		QuizID    string `json:"quiz_id,omitempty"`
	}

	Attempt struct {
		AttemptID      string      `json:"attempt_id"`
		StudentID      string      `json:"student_id"`
		QuizID         string      `json:"quiz_id"`
		State          string      `json:"state"`
		StartTime      time.Time   `json:"start_time"`
		FinishTime     *time.Time  `json:"finish_time,omitempty"`
		Answered       int         `json:"answered"`
		Correct        int         `json:"correct"`
		TotalQuestions int         `json:"total_questions"`
		Aggregates     *Aggregates `json:"aggregates,omitempty"`
	}

	Aggregates struct {
		TotalQuestions  int             `json:"total_questions"`
		Answered        int             `json:"answered"`
		Correct         int             `json:"correct"`
		PercentCorrect  decimal.Decimal `json:"percent_correct"`
		PointsEarned    decimal.Decimal `json:"points_earned"`
		TotalPoints     decimal.Decimal `json:"total_points"`
		PercentOfPoints decimal.Decimal `json:"percent_of_points"`
		PercentComplete int             `json:"percent_complete"`
	}

	Question struct {
		QuestionID string          `json:"question_id"`
		Number     int             `json:"number"`
		Prompt     string          `json:"prompt"`
		Value      decimal.Decimal `json:"value"`
		Candidates []Candidate     `json:"candidates"`
	}

	Candidate struct {
		Letter   string `json:"letter"`
		Text     string `json:"text"`
		ImageURL string `json:"image_url,omitempty"`
	}

	QuestionSummary struct {
		QuestionID string `json:"question_id"`
		Number     int    `json:"number"`
		Prompt     string `json:"prompt"`
	}

	Progress struct {
		Answered        int `json:"answered"`
		Total           int `json:"total"`
		Pending         int `json:"pending"`
		PercentComplete int `json:"percent_complete"`
	}

	AttemptView struct {
		Attempt   Attempt    `json:"attempt"`
		Resumed   bool       `json:"resumed"`
		Questions []Question `json:"questions"`
		Progress  Progress   `json:"progress"`
	}

	Answer struct {
		AnswerID        string          `json:"answer_id"`
		QuestionID      string          `json:"question_id"`
		Letter          string          `json:"letter"`
		Correct         bool            `json:"correct"`
		ResponseSeconds *int            `json:"response_seconds,omitempty"`
		Points          decimal.Decimal `json:"points"`
		CreateTime      time.Time       `json:"create_time"`
	}

	AnswerResult struct {
		Answer           Answer    `json:"answer"`
		Correct          bool      `json:"correct"`
		CorrectCandidate Candidate `json:"correct_candidate"`
		Progress         Progress  `json:"progress"`
	}

	FinalResult struct {
		Attempt    Attempt           `json:"attempt"`
		Aggregates Aggregates        `json:"aggregates"`
		Unanswered []QuestionSummary `json:"unanswered"`
	}

	Student struct {
		StudentID string `json:"student_id"`
		Name      string `json:"name"`
	}

	Quiz struct {
		QuizID           string `json:"quiz_id"`
		Title            string `json:"title"`
		TimeLimitSeconds int64  `json:"time_limit_seconds,omitempty"`
	}

	ProgressView struct {
		Attempt          Attempt    `json:"attempt"`
		Finished         bool       `json:"finished"`
		StartTime        time.Time  `json:"start_time"`
		FinishTime       *time.Time `json:"finish_time,omitempty"`
		Student          *Student   `json:"student,omitempty"`
		Quiz             *Quiz      `json:"quiz,omitempty"`
		ElapsedSeconds   int64      `json:"elapsed_seconds"`
		RemainingSeconds *int64     `json:"remaining_seconds,omitempty"`
		Exceeded         bool       `json:"exceeded"`
		Pending          []Question `json:"pending,omitempty"`
		Progress         *Progress  `json:"progress,omitempty"`
	}

	ReviewCandidate struct {
		Letter   string `json:"letter"`
		Text     string `json:"text"`
		Correct  bool   `json:"correct"`
		ImageURL string `json:"image_url,omitempty"`
	}

	ResultItem struct {
		QuestionID      string            `json:"question_id"`
		Number          int               `json:"number"`
		Prompt          string            `json:"prompt"`
		Value           decimal.Decimal   `json:"value"`
		Candidates      []ReviewCandidate `json:"candidates"`
		Explanation     string            `json:"explanation,omitempty"`
		Answered        bool              `json:"answered"`
		Letter          string            `json:"letter,omitempty"`
		Correct         bool              `json:"correct"`
		ResponseSeconds *int              `json:"response_seconds,omitempty"`
		Points          decimal.Decimal   `json:"points"`
		Removed         bool              `json:"removed,omitempty"`
	}

	DetailedResult struct {
		Attempt    Attempt      `json:"attempt"`
		Aggregates Aggregates   `json:"aggregates"`
		Items      []ResultItem `json:"items"`
	}

	ListAttemptsResponse struct {
		Attempts []Attempt `json:"attempts"`
	}
)

func toAttempt(a domain.Attempt) Attempt {
	out := Attempt{
		AttemptID:      a.AttemptID,
		StudentID:      a.StudentID,
		QuizID:         a.QuizID,
		State:          a.State().String(),
		StartTime:      a.StartTime,
		Answered:       a.Answered,
		Correct:        a.Correct,
		TotalQuestions: a.TotalQuestions,
	}

	if a.Result != nil {
		finish := a.Result.FinishTime
		agg := toAggregates(a.Result.Aggregates)
		out.FinishTime = &finish
		out.Aggregates = &agg
	}

	return out
}

func toAggregates(a domain.Aggregates) Aggregates {
	return Aggregates(a)
}

func toQuestions(qs []attempt.PublicQuestion) []Question {
	out := make([]Question, 0, len(qs))
	for _, q := range qs {
		cands := make([]Candidate, 0, len(q.Candidates))
		for _, c := range q.Candidates {
			cands = append(cands, Candidate(c))
		}

		out = append(out, Question{
			QuestionID: q.QuestionID,
			Number:     q.Number,
			Prompt:     q.Prompt,
			Value:      q.Value,
			Candidates: cands,
		})
	}

	return out
}

func toProgress(p attempt.Progress) Progress {
	return Progress(p)
}

func toAttemptView(v *attempt.AttemptView) *AttemptView {
	return &AttemptView{
		Attempt:   toAttempt(v.Attempt),
		Resumed:   v.Resumed,
		Questions: toQuestions(v.Questions),
		Progress:  toProgress(v.Progress),
	}
}

func toAnswerResult(r *attempt.AnswerResult) *AnswerResult {
	return &AnswerResult{
		Answer: Answer{
			AnswerID:        r.Answer.AnswerID,
			QuestionID:      r.Answer.QuestionID,
			Letter:          r.Answer.Letter,
			Correct:         r.Answer.Correct,
			ResponseSeconds: r.Answer.ResponseSeconds,
			Points:          r.Answer.Points,
			CreateTime:      r.Answer.CreateTime,
		},
		Correct:          r.Correct,
		CorrectCandidate: Candidate(r.CorrectCandidate),
		Progress:         toProgress(r.Progress),
	}
}

func toFinalResult(r *attempt.FinalResult) *FinalResult {
	unanswered := make([]QuestionSummary, 0, len(r.Unanswered))
	for _, q := range r.Unanswered {
		unanswered = append(unanswered, QuestionSummary(q))
	}

	return &FinalResult{
		Attempt:    toAttempt(r.Attempt),
		Aggregates: toAggregates(r.Aggregates),
		Unanswered: unanswered,
	}
}

func toProgressView(v *attempt.ProgressView) *ProgressView {
	out := &ProgressView{
		Attempt:    toAttempt(v.Attempt),
		Finished:   v.Finished,
		StartTime:  v.StartTime,
		FinishTime: v.FinishTime,
	}

	if v.Finished {
		return out
	}

	progress := toProgress(v.Progress)
	out.Student = &Student{StudentID: v.Student.StudentID, Name: v.Student.Name}
	out.Quiz = &Quiz{
		QuizID:           v.Quiz.QuizID,
		Title:            v.Quiz.Title,
		TimeLimitSeconds: int64(v.Quiz.TimeLimit / time.Second),
	}
	out.ElapsedSeconds = v.ElapsedSeconds
	out.RemainingSeconds = v.RemainingSeconds
	out.Exceeded = v.Exceeded
	out.Pending = toQuestions(v.Pending)
	out.Progress = &progress

	return out
}

func toDetailedResult(r *attempt.DetailedResult) *DetailedResult {
	items := make([]ResultItem, 0, len(r.Items))
	for _, it := range r.Items {
		cands := make([]ReviewCandidate, 0, len(it.Candidates))
		for _, c := range it.Candidates {
			cands = append(cands, ReviewCandidate(c))
		}

		items = append(items, ResultItem{
			QuestionID:      it.QuestionID,
			Number:          it.Number,
			Prompt:          it.Prompt,
			Value:           it.Value,
			Candidates:      cands,
			Explanation:     it.Explanation,
			Answered:        it.Answered,
			Letter:          it.Letter,
			Correct:         it.Correct,
			ResponseSeconds: it.ResponseSeconds,
			Points:          it.Points,
			Removed:         it.Removed,
		})
	}

	return &DetailedResult{
		Attempt:    toAttempt(r.Attempt),
		Aggregates: toAggregates(r.Aggregates),
		Items:      items,
	}
}

func toAttempts(as []domain.Attempt) *ListAttemptsResponse {
	out := &ListAttemptsResponse{Attempts: make([]Attempt, 0, len(as))}
	for _, a := range as {
		out.Attempts = append(out.Attempts, toAttempt(a))
	}

	return out
}
