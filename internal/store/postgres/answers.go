package postgres

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/victornm/examprep/internal/domain"
)

const answerColumns = `answer_id::text, attempt_id::text, question_id, letter, correct, response_seconds, points, create_time`

func (s *Store) FindAnswer(ctx context.Context, attemptID, questionID string) (*domain.Answer, error) {
	const stmt = `SELECT ` + answerColumns + ` FROM answers WHERE attempt_id = $1 AND question_id = $2;`

	a, err := scanAnswer(s.db.QueryRow(ctx, stmt, attemptID, questionID))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, translate(fmt.Errorf("select answer: %w", err))
	}

	return &a, nil
}

// CreateAnswer holds the attempt row lock while it writes, so an answer can never
// land after a concurrent finalize has read the answer list.
func (s *Store) CreateAnswer(ctx context.Context, a domain.Answer) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		att, err := getAttempt(ctx, tx, a.AttemptID, true)
		if err != nil {
			return err
		}

		if att.Finalized() {
			return domain.ErrAttemptFinished
		}

		const insStmt = `
INSERT INTO answers (answer_id, attempt_id, question_id, letter, correct, response_seconds, points, create_time)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8);`

		_, err = tx.Exec(ctx, insStmt,
			a.AnswerID, a.AttemptID, a.QuestionID, a.Letter, a.Correct, a.ResponseSeconds, a.Points, a.CreateTime)
		if err != nil {
			return translate(fmt.Errorf("insert answer: %w", err))
		}

		const updStmt = `
UPDATE attempts SET answered = answered + 1, correct = correct + CASE WHEN $2 THEN 1 ELSE 0 END
WHERE attempt_id = $1;`

		if _, err = tx.Exec(ctx, updStmt, a.AttemptID, a.Correct); err != nil {
			return translate(fmt.Errorf("update attempt counters: %w", err))
		}

		return nil
	})
}

func (s *Store) ListAnswers(ctx context.Context, attemptID string) ([]domain.Answer, error) {
	return listAnswers(ctx, s.db, attemptID)
}

func listAnswers(ctx context.Context, q querier, attemptID string) ([]domain.Answer, error) {
	const stmt = `SELECT ` + answerColumns + ` FROM answers WHERE attempt_id = $1 ORDER BY create_time, answer_id;`

	rows, err := q.Query(ctx, stmt, attemptID)
	if err != nil {
		return nil, translate(fmt.Errorf("select answers: %w", err))
	}

	answers, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Answer, error) {
		return scanAnswer(r)
	})
	if err != nil {
		return nil, translate(fmt.Errorf("collect answers: %w", err))
	}

	return answers, nil
}

func scanAnswer(row pgx.Row) (domain.Answer, error) {
	var a domain.Answer

	err := row.Scan(&a.AnswerID, &a.AttemptID, &a.QuestionID, &a.Letter, &a.Correct, &a.ResponseSeconds, &a.Points, &a.CreateTime)
	if err != nil {
		return domain.Answer{}, err
	}
	a.CreateTime = a.CreateTime.UTC()

	return a, nil
}
