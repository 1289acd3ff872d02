package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/victornm/examprep/internal/domain"
)

type candidateRecord struct {
	Letter   string `json:"letter"`
	Text     string `json:"text"`
	Correct  bool   `json:"correct"`
	ImageURL string `json:"image_url,omitempty"`
}

func (s *Store) GetStudent(ctx context.Context, studentID string) (domain.Student, error) {
	const stmt = `SELECT student_id, name FROM students WHERE student_id = ?;`

	var st domain.Student
	err := s.db.QueryRowContext(ctx, stmt, studentID).Scan(&st.StudentID, &st.Name)
	if stderrors.Is(err, sql.ErrNoRows) {
		return domain.Student{}, notFound("student", studentID)
	}
	if err != nil {
		return domain.Student{}, translate(fmt.Errorf("select student: %w", err))
	}

	return st, nil
}

func (s *Store) PutStudent(ctx context.Context, st domain.Student) error {
	const stmt = `
INSERT INTO students (student_id, name) VALUES (?, ?)
ON CONFLICT (student_id) DO UPDATE SET name = excluded.name;`

	if _, err := s.db.ExecContext(ctx, stmt, st.StudentID, st.Name); err != nil {
		return translate(fmt.Errorf("upsert student: %w", err))
	}

	return nil
}

func (s *Store) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	const stmt = `
SELECT quiz_id, assessment_id, title, time_limit_seconds, active
FROM quizzes WHERE quiz_id = ?;`

	var (
		q       domain.Quiz
		seconds int64
	)
	err := s.db.QueryRowContext(ctx, stmt, quizID).Scan(&q.QuizID, &q.AssessmentID, &q.Title, &seconds, &q.Active)
	if stderrors.Is(err, sql.ErrNoRows) {
		return domain.Quiz{}, notFound("quiz", quizID)
	}
	if err != nil {
		return domain.Quiz{}, translate(fmt.Errorf("select quiz: %w", err))
	}
	q.TimeLimit = time.Duration(seconds) * time.Second

	return q, nil
}

func (s *Store) PutQuiz(ctx context.Context, q domain.Quiz) error {
	const stmt = `
INSERT INTO quizzes (quiz_id, assessment_id, title, time_limit_seconds, active) VALUES (?, ?, ?, ?, ?)
ON CONFLICT (quiz_id) DO UPDATE SET
  assessment_id = excluded.assessment_id,
  title = excluded.title,
  time_limit_seconds = excluded.time_limit_seconds,
  active = excluded.active;`

	_, err := s.db.ExecContext(ctx, stmt, q.QuizID, q.AssessmentID, q.Title, int64(q.TimeLimit/time.Second), q.Active)
	if err != nil {
		return translate(fmt.Errorf("upsert quiz: %w", err))
	}

	return nil
}

const questionColumns = `question_id, number, prompt, candidates, value, explanation`

// ListQuestions returns the questions of the quiz's assessment ordered by number.
// An unknown quiz has no questions.
func (s *Store) ListQuestions(ctx context.Context, quizID string) ([]domain.Question, error) {
	const stmt = `
SELECT ` + questionColumns + `
FROM questions
WHERE assessment_id = (SELECT assessment_id FROM quizzes WHERE quiz_id = ?)
ORDER BY number, question_id;`

	rows, err := s.db.QueryContext(ctx, stmt, quizID)
	if err != nil {
		return nil, translate(fmt.Errorf("select questions: %w", err))
	}
	defer rows.Close()

	var questions []domain.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}

	if err := rows.Err(); err != nil {
		return nil, translate(fmt.Errorf("iterate questions: %w", err))
	}

	return questions, nil
}

func (s *Store) GetQuestion(ctx context.Context, questionID string) (domain.Question, error) {
	const stmt = `SELECT ` + questionColumns + ` FROM questions WHERE question_id = ?;`

	q, err := scanQuestion(s.db.QueryRowContext(ctx, stmt, questionID))
	if stderrors.Is(err, sql.ErrNoRows) {
		return domain.Question{}, notFound("question", questionID)
	}

	return q, err
}

// PutQuestion adds the question to an assessment or moves it there. The value is
// stored as given, zero included.
func (s *Store) PutQuestion(ctx context.Context, assessmentID string, q domain.Question) error {
	const stmt = `
INSERT INTO questions (question_id, assessment_id, number, prompt, candidates, value, explanation)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (question_id) DO UPDATE SET
  assessment_id = excluded.assessment_id,
  number = excluded.number,
  prompt = excluded.prompt,
  candidates = excluded.candidates,
  value = excluded.value,
  explanation = excluded.explanation;`

	records := make([]candidateRecord, 0, len(q.Candidates))
	for _, c := range q.Candidates {
		records = append(records, candidateRecord(c))
	}

	candidates, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshal candidates: %w", err)
	}

	_, err = s.db.ExecContext(ctx, stmt,
		q.QuestionID, assessmentID, q.Number, q.Prompt, string(candidates), q.Value.String(), q.Explanation)
	if err != nil {
		return translate(fmt.Errorf("upsert question: %w", err))
	}

	return nil
}

// DeleteQuestion removes a question from the bank. Answers that reference it are kept.
func (s *Store) DeleteQuestion(ctx context.Context, questionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM questions WHERE question_id = ?;`, questionID); err != nil {
		return translate(fmt.Errorf("delete question: %w", err))
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanQuestion(row scanner) (domain.Question, error) {
	var (
		q          domain.Question
		candidates string
		value      string
	)

	if err := row.Scan(&q.QuestionID, &q.Number, &q.Prompt, &candidates, &value, &q.Explanation); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return domain.Question{}, err
		}
		return domain.Question{}, translate(fmt.Errorf("scan question: %w", err))
	}

	var records []candidateRecord
	if err := json.Unmarshal([]byte(candidates), &records); err != nil {
		return domain.Question{}, fmt.Errorf("unmarshal candidates of question %s: %w", q.QuestionID, err)
	}

	q.Candidates = make([]domain.Candidate, 0, len(records))
	for _, r := range records {
		q.Candidates = append(q.Candidates, domain.Candidate(r))
	}

	v, err := decimal.NewFromString(value)
	if err != nil {
		return domain.Question{}, fmt.Errorf("parse value of question %s: %w", q.QuestionID, err)
	}
	q.Value = v

	return q, nil
}
