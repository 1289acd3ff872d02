package sqlite

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/victornm/examprep/internal/domain"
)

const attemptColumns = `
attempt_id, student_id, quiz_id, start_time, answered, correct, total_questions,
finish_time, percent_correct, points_earned, total_points, percent_of_points, percent_complete`

func (s *Store) FindOpenAttempt(ctx context.Context, studentID, quizID string) (*domain.Attempt, error) {
	const stmt = `SELECT ` + attemptColumns + `
FROM attempts WHERE student_id = ? AND quiz_id = ? AND finish_time IS NULL;`

	a, err := scanAttempt(s.db.QueryRowContext(ctx, stmt, studentID, quizID))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &a, nil
}

// CreateAttempt inserts an open attempt. A concurrent open attempt for the same
// student and quiz makes it fail with domain.ErrConflict.
func (s *Store) CreateAttempt(ctx context.Context, a domain.Attempt) error {
	const stmt = `
INSERT INTO attempts (attempt_id, student_id, quiz_id, start_time, answered, correct, total_questions)
VALUES (?, ?, ?, ?, ?, ?, ?);`

	_, err := s.db.ExecContext(ctx, stmt,
		a.AttemptID, a.StudentID, a.QuizID, a.StartTime.UnixMilli(), a.Answered, a.Correct, a.TotalQuestions)
	if err != nil {
		return translate(fmt.Errorf("insert attempt: %w", err))
	}

	return nil
}

func (s *Store) GetAttempt(ctx context.Context, attemptID string) (domain.Attempt, error) {
	return getAttempt(ctx, s.db, attemptID)
}

func (s *Store) ListAttempts(ctx context.Context, studentID, quizID string) ([]domain.Attempt, error) {
	const stmt = `SELECT ` + attemptColumns + `
FROM attempts
WHERE student_id = ? AND (? = '' OR quiz_id = ?)
ORDER BY start_time DESC, attempt_id DESC;`

	rows, err := s.db.QueryContext(ctx, stmt, studentID, quizID, quizID)
	if err != nil {
		return nil, translate(fmt.Errorf("select attempts: %w", err))
	}
	defer rows.Close()

	attempts := []domain.Attempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, translate(fmt.Errorf("iterate attempts: %w", err))
	}

	return attempts, nil
}

// FinalizeAttempt scores the attempt's answers and freezes it in one transaction.
// The update only applies while finish_time is absent, so of two racing calls one
// fails with domain.ErrAlreadyFinished.
func (s *Store) FinalizeAttempt(ctx context.Context, attemptID string, finishTime time.Time, score domain.Scorer) (domain.Attempt, error) {
	var out domain.Attempt

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		a, err := getAttempt(ctx, tx, attemptID)
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
  finish_time = ?,
  answered = ?,
  correct = ?,
  total_questions = ?,
  percent_correct = ?,
  points_earned = ?,
  total_points = ?,
  percent_of_points = ?,
  percent_complete = ?
WHERE attempt_id = ? AND finish_time IS NULL;`

		res, err := tx.ExecContext(ctx, stmt,
			finishTime.UnixMilli(),
			agg.Answered,
			agg.Correct,
			agg.TotalQuestions,
			agg.PercentCorrect.String(),
			agg.PointsEarned.String(),
			agg.TotalPoints.String(),
			agg.PercentOfPoints.String(),
			agg.PercentComplete,
			attemptID,
		)
		if err != nil {
			return translate(fmt.Errorf("update attempt: %w", err))
		}

		n, err := res.RowsAffected()
		if err != nil {
			return translate(fmt.Errorf("rows affected: %w", err))
		}
		if n != 1 {
			return domain.ErrAlreadyFinished
		}

		a.Answered = agg.Answered
		a.Correct = agg.Correct
		a.TotalQuestions = agg.TotalQuestions
		a.Result = &domain.Result{
			FinishTime: time.UnixMilli(finishTime.UnixMilli()).UTC(),
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
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func getAttempt(ctx context.Context, q querier, attemptID string) (domain.Attempt, error) {
	const stmt = `SELECT ` + attemptColumns + ` FROM attempts WHERE attempt_id = ?;`

	a, err := scanAttempt(q.QueryRowContext(ctx, stmt, attemptID))
	if stderrors.Is(err, sql.ErrNoRows) {
		return domain.Attempt{}, notFound("attempt", attemptID)
	}

	return a, err
}

func scanAttempt(row scanner) (domain.Attempt, error) {
	var (
		a               domain.Attempt
		start           int64
		finish          sql.NullInt64
		percentCorrect  decimal.NullDecimal
		pointsEarned    decimal.NullDecimal
		totalPoints     decimal.NullDecimal
		percentOfPoints decimal.NullDecimal
		percentComplete sql.NullInt64
	)

	err := row.Scan(
		&a.AttemptID, &a.StudentID, &a.QuizID, &start, &a.Answered, &a.Correct, &a.TotalQuestions,
		&finish, &percentCorrect, &pointsEarned, &totalPoints, &percentOfPoints, &percentComplete,
	)
	if stderrors.Is(err, sql.ErrNoRows) {
		return domain.Attempt{}, err
	}
	if err != nil {
		return domain.Attempt{}, translate(fmt.Errorf("scan attempt: %w", err))
	}

	a.StartTime = time.UnixMilli(start).UTC()

	if finish.Valid {
		a.Result = &domain.Result{
			FinishTime: time.UnixMilli(finish.Int64).UTC(),
			Aggregates: domain.Aggregates{
				TotalQuestions:  a.TotalQuestions,
				Answered:        a.Answered,
				Correct:         a.Correct,
				PercentCorrect:  percentCorrect.Decimal,
				PointsEarned:    pointsEarned.Decimal,
				TotalPoints:     totalPoints.Decimal,
				PercentOfPoints: percentOfPoints.Decimal,
				PercentComplete: int(percentComplete.Int64),
			},
		}
	}

	return a, nil
}
