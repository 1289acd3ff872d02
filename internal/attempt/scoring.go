package attempt

import (
	"github.com/shopspring/decimal"

	"github.com/victornm/examprep/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Score computes the final aggregates of an attempt. It depends on nothing but its
// arguments: totals come from the quiz's current question list, earned figures from
// the recorded answers.
func Score(questions []domain.Question, answers []domain.Answer) domain.Aggregates {
	agg := domain.Aggregates{
		TotalQuestions: len(questions),
		Answered:       len(answers),
		PointsEarned:   decimal.Zero,
		TotalPoints:    decimal.Zero,
	}

	for _, q := range questions {
		agg.TotalPoints = agg.TotalPoints.Add(q.Value)
	}

	for _, a := range answers {
		if a.Correct {
			agg.Correct++
		}
		agg.PointsEarned = agg.PointsEarned.Add(a.Points)
	}

	agg.PercentCorrect = percent(decimal.NewFromInt(int64(agg.Correct)), decimal.NewFromInt(int64(agg.Answered)), 1)
	agg.PercentOfPoints = percent(agg.PointsEarned, agg.TotalPoints, 1)
	agg.PercentComplete = percentComplete(agg.Answered, agg.TotalQuestions)

	return agg
}

// Progress is how far a student is through the quiz's current question list.
type Progress struct {
	Answered        int
	Total           int
	Pending         int
	PercentComplete int
}

// ProgressOf computes progress of answers against questions. Pending counts the
// questions that have no answer, so answers to questions removed from the quiz
// never make Pending negative.
func ProgressOf(questions []domain.Question, answers []domain.Answer) Progress {
	answered := answeredSet(answers)

	pending := 0
	for _, q := range questions {
		if _, ok := answered[q.QuestionID]; !ok {
			pending++
		}
	}

	return Progress{
		Answered:        len(answers),
		Total:           len(questions),
		Pending:         pending,
		PercentComplete: percentComplete(len(answers), len(questions)),
	}
}

// Unanswered returns the questions, in order, that have no answer.
func Unanswered(questions []domain.Question, answers []domain.Answer) []domain.Question {
	answered := answeredSet(answers)

	out := make([]domain.Question, 0, len(questions))
	for _, q := range questions {
		if _, ok := answered[q.QuestionID]; !ok {
			out = append(out, q)
		}
	}

	return out
}

// PointsFor returns the points a single answer earns.
func PointsFor(q domain.Question, correct bool) decimal.Decimal {
	if !correct {
		return decimal.Zero
	}

	return q.Value
}

func answeredSet(answers []domain.Answer) map[string]domain.Answer {
	m := make(map[string]domain.Answer, len(answers))
	for _, a := range answers {
		m[a.QuestionID] = a
	}

	return m
}

// percent returns part/whole*100 rounded half away from zero, or zero when whole is zero.
func percent(part, whole decimal.Decimal, places int32) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}

	return part.Mul(hundred).Div(whole).Round(places)
}

func percentComplete(answered, total int) int {
	return int(percent(decimal.NewFromInt(int64(answered)), decimal.NewFromInt(int64(total)), 0).IntPart())
}
