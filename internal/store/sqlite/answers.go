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

const answerColumns = `answer_id, attempt_id, question_id, letter, correct, response_seconds, points, create_time`

func (s *Store) FindAnswer(ctx context.Context, attemptID, questionID string) (*domain.Answer, error) {
	const stmt = `SELECT ` + answerColumns + ` FROM answers WHERE attempt_id = ? AND question_id = ?;`

	a, err := scanAnswer(s.db.QueryRowContext(ctx, stmt, attemptID, questionID))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &a, nil
}

// CreateAnswer writes the answer and bumps the attempt's counters. It fails with
// domain.ErrAttemptFinished once the attempt is finalized and with domain.ErrConflict
// when the question already has an answer.
func (s *Store) CreateAnswer(ctx context.Context, a domain.Answer) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var finish sql.NullInt64
		err := tx.QueryRowContext(ctx, `SELECT finish_time FROM attempts WHERE attempt_id = ?;`, a.AttemptID).Scan(&finish)
		if stderrors.Is(err, sql.ErrNoRows) {
			return notFound("attempt", a.AttemptID)
		}
		if err != nil {
			return translate(fmt.Errorf("select attempt: %w", err))
		}

		if finish.Valid {
			return domain.ErrAttemptFinished
		}

		const insStmt = `
INSERT INTO answers (answer_id, attempt_id, question_id, letter, correct, response_seconds, points, create_time)
VALUES (?, ?, ?, ?, ?, ?, ?, ?);`

		var seconds sql.NullInt64
		if a.ResponseSeconds != nil {
			seconds = sql.NullInt64{Int64: int64(*a.ResponseSeconds), Valid: true}
		}

		_, err = tx.ExecContext(ctx, insStmt,
			a.AnswerID, a.AttemptID, a.QuestionID, a.Letter, a.Correct, seconds, a.Points.String(), a.CreateTime.UnixMilli())
		if err != nil {
			return translate(fmt.Errorf("insert answer: %w", err))
		}

		const updStmt = `
UPDATE attempts SET answered = answered + 1, correct = correct + ?
WHERE attempt_id = ? AND finish_time IS NULL;`

		correct := 0
		if a.Correct {
			correct = 1
		}

		if _, err = tx.ExecContext(ctx, updStmt, correct, a.AttemptID); err != nil {
			return translate(fmt.Errorf("update attempt counters: %w", err))
		}

		return nil
	})
}

func (s *Store) ListAnswers(ctx context.Context, attemptID string) ([]domain.Answer, error) {
	return listAnswers(ctx, s.db, attemptID)
}

func listAnswers(ctx context.Context, q querier, attemptID string) ([]domain.Answer, error) {
	const stmt = `SELECT ` + answerColumns + ` FROM answers WHERE attempt_id = ? ORDER BY create_time, answer_id;`

	rows, err := q.QueryContext(ctx, stmt, attemptID)
	if err != nil {
		return nil, translate(fmt.Errorf("select answers: %w", err))
	}
	defer rows.Close()

	answers := []domain.Answer{}
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}

	if err := rows.Err(); err != nil {
		return nil, translate(fmt.Errorf("iterate answers: %w", err))
	}

	return answers, nil
}

func scanAnswer(row scanner) (domain.Answer, error) {
	var (
		a       domain.Answer
		seconds sql.NullInt64
		points  string
		created int64
	)

	err := row.Scan(&a.AnswerID, &a.AttemptID, &a.QuestionID, &a.Letter, &a.Correct, &seconds, &points, &created)
	if stderrors.Is(err, sql.ErrNoRows) {
		return domain.Answer{}, err
	}
	if err != nil {
		return domain.Answer{}, translate(fmt.Errorf("scan answer: %w", err))
	}

	if seconds.Valid {
		v := int(seconds.Int64)
		a.ResponseSeconds = &v
	}

	a.Points, err = decimal.NewFromString(points)
	if err != nil {
		return domain.Answer{}, fmt.Errorf("parse points of answer %s: %w", a.AnswerID, err)
	}
	a.CreateTime = time.UnixMilli(created).UTC()

	return a, nil
}
