package postgres

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/victornm/examprep/internal/domain"
)

const attemptColumns = `
attempt_id::text, student_id, quiz_id, start_time, answered, correct, total_questions,
finish_time, percent_correct, points_earned, total_points, percent_of_points, percent_complete`

func (s *Store) FindOpenAttempt(ctx context.Context, studentID, quizID string) (*domain.Attempt, error) {
	const stmt = `SELECT ` + attemptColumns + `
FROM attempts WHERE student_id = $1 AND quiz_id = $2 AND finish_time IS NULL;`

	a, err := scanAttempt(s.db.QueryRow(ctx, stmt, studentID, quizID))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, translate(fmt.Errorf("select open attempt: %w", err))
	}

	return &a, nil
}

func (s *Store) CreateAttempt(ctx context.Context, a domain.Attempt) error {
	const stmt = `
INSERT INTO attempts (attempt_id, student_id, quiz_id, start_time, answered, correct, total_questions)
VALUES ($1, $2, $3, $4, $5, $6, $7);`

	_, err := s.db.Exec(ctx, stmt, a.AttemptID, a.StudentID, a.QuizID, a.StartTime, a.Answered, a.Correct, a.TotalQuestions)
	if err != nil {
		return translate(fmt.Errorf("insert attempt: %w", err))
	}

	return nil
}

func (s *Store) GetAttempt(ctx context.Context, attemptID string) (domain.Attempt, error) {
	return getAttempt(ctx, s.db, attemptID, false)
}

func (s *Store) ListAttempts(ctx context.Context, studentID, quizID string) ([]domain.Attempt, error) {
	const stmt = `SELECT ` + attemptColumns + `
FROM attempts
WHERE student_id = $1 AND ($2 = '' OR quiz_id = $2)
ORDER BY start_time DESC, attempt_id DESC;`

	rows, err := s.db.Query(ctx, stmt, studentID, quizID)
	if err != nil {
		return nil, translate(fmt.Errorf("select attempts: %w", err))
	}

	attempts, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Attempt, error) {
		return scanAttempt(r)
	})
	if err != nil {
		return nil, translate(fmt.Errorf("collect attempts: %w", err))
	}

	return attempts, nil
}

// FinalizeAttempt locks the attempt row, scores its answers and writes the
// aggregates in one transaction.
func (s *Store) FinalizeAttempt(ctx context.Context, attemptID string, finishTime time.Time, score domain.Scorer) (domain.Attempt, error) {
	var out domain.Attempt

	err := s.inTx(ctx, func(tx pgx.Tx) error {
		a, err := getAttempt(ctx, tx, attemptID, true)
		if err != nil {
			return err
		}

		if a.Finalized() {
			return domain.ErrAlreadyFinished
		}

		answers, err := listAnswers(ctx, tx, attemptID)
		if err != nil {
			return err
		}

		agg, err := score(answers)
		if err != nil {
			return fmt.Errorf("score attempt: %w", err)
		}

		const stmt = `
UPDATE attempts SET
  finish_time = $2,
  answered = $3,
  correct = $4,
  total_questions = $5,
  percent_correct = $6,
  points_earned = $7,
  total_points = $8,
  percent_of_points = $9,
  percent_complete = $10
WHERE attempt_id = $1 AND finish_time IS NULL;`

		tag, err := tx.Exec(ctx, stmt,
			attemptID,
			finishTime,
			agg.Answered,
			agg.Correct,
			agg.TotalQuestions,
			agg.PercentCorrect,
			agg.PointsEarned,
			agg.TotalPoints,
			agg.PercentOfPoints,
			agg.PercentComplete,
		)
		if err != nil {
			return translate(fmt.Errorf("update attempt: %w", err))
		}

		if tag.RowsAffected() != 1 {
			return domain.ErrAlreadyFinished
		}

		a.Answered = agg.Answered
		a.Correct = agg.Correct
		a.TotalQuestions = agg.TotalQuestions
		a.Result = &domain.Result{
			// TIMESTAMPTZ keeps microseconds.
			FinishTime: finishTime.Truncate(time.Microsecond).UTC(),
			Aggregates: agg,
		}
		out = a

		return nil
	})
	if err != nil {
		return domain.Attempt{}, err
	}

	return out, nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func getAttempt(ctx context.Context, q querier, attemptID string, forUpdate bool) (domain.Attempt, error) {
	stmt := `SELECT ` + attemptColumns + ` FROM attempts WHERE attempt_id = $1`
	if forUpdate {
		stmt += ` FOR UPDATE`
	}

	a, err := scanAttempt(q.QueryRow(ctx, stmt, attemptID))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return domain.Attempt{}, notFound("attempt", attemptID)
	}
	if err != nil {
		return domain.Attempt{}, translate(fmt.Errorf("select attempt: %w", err))
	}

	return a, nil
}

func scanAttempt(row pgx.Row) (domain.Attempt, error) {
	var (
		a               domain.Attempt
		finish          *time.Time
		percentCorrect  decimal.NullDecimal
		pointsEarned    decimal.NullDecimal
		totalPoints     decimal.NullDecimal
		percentOfPoints decimal.NullDecimal
		percentComplete *int
	)

	err := row.Scan(
		&a.AttemptID, &a.StudentID, &a.QuizID, &a.StartTime, &a.Answered, &a.Correct, &a.TotalQuestions,
		&finish, &percentCorrect, &pointsEarned, &totalPoints, &percentOfPoints, &percentComplete,
	)
	if err != nil {
		return domain.Attempt{}, err
	}

	a.StartTime = a.StartTime.UTC()

	if finish != nil {
		agg := domain.Aggregates{
			TotalQuestions:  a.TotalQuestions,
			Answered:        a.Answered,
			Correct:         a.Correct,
			PercentCorrect:  percentCorrect.Decimal,
			PointsEarned:    pointsEarned.Decimal,
			TotalPoints:     totalPoints.Decimal,
			PercentOfPoints: percentOfPoints.Decimal,
		}
		if percentComplete != nil {
			agg.PercentComplete = *percentComplete
		}

		a.Result = &domain.Result{
			FinishTime: finish.UTC(),
			Aggregates: agg,
		}
	}

	return a, nil
}
