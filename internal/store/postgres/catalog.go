package postgres

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/victornm/examprep/internal/domain"
)

type candidateRecord struct {
	Letter   string `json:"letter"`
	Text     string `json:"text"`
	Correct  bool   `json:"correct"`
	ImageURL string `json:"image_url,omitempty"`
}

func (s *Store) GetStudent(ctx context.Context, studentID string) (domain.Student, error) {
	const stmt = `SELECT student_id, name FROM students WHERE student_id = $1;`

	var st domain.Student
	err := s.db.QueryRow(ctx, stmt, studentID).Scan(&st.StudentID, &st.Name)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return domain.Student{}, notFound("student", studentID)
	}
	if err != nil {
		return domain.Student{}, translate(fmt.Errorf("select student: %w", err))
	}

	return st, nil
}

func (s *Store) PutStudent(ctx context.Context, st domain.Student) error {
	const stmt = `
INSERT INTO students (student_id, name) VALUES ($1, $2)
ON CONFLICT (student_id) DO UPDATE SET name = EXCLUDED.name;`

	if _, err := s.db.Exec(ctx, stmt, st.StudentID, st.Name); err != nil {
		return translate(fmt.Errorf("upsert student: %w", err))
	}

	return nil
}

func (s *Store) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	const stmt = `
SELECT quiz_id, assessment_id, title, time_limit_seconds, active
FROM quizzes WHERE quiz_id = $1;`

	var (
		q       domain.Quiz
		seconds int64
	)
	err := s.db.QueryRow(ctx, stmt, quizID).Scan(&q.QuizID, &q.AssessmentID, &q.Title, &seconds, &q.Active)
	if stderrors.Is(err, pgx.ErrNoRows) {
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
INSERT INTO quizzes (quiz_id, assessment_id, title, time_limit_seconds, active) VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (quiz_id) DO UPDATE SET
  assessment_id = EXCLUDED.assessment_id,
  title = EXCLUDED.title,
  time_limit_seconds = EXCLUDED.time_limit_seconds,
  active = EXCLUDED.active;`

	_, err := s.db.Exec(ctx, stmt, q.QuizID, q.AssessmentID, q.Title, int64(q.TimeLimit/time.Second), q.Active)
	if err != nil {
		return translate(fmt.Errorf("upsert quiz: %w", err))
	}

	return nil
}

const questionColumns = `question_id, number, prompt, candidates, value, explanation`

func (s *Store) ListQuestions(ctx context.Context, quizID string) ([]domain.Question, error) {
	const stmt = `
SELECT ` + questionColumns + `
FROM questions
WHERE assessment_id = (SELECT assessment_id FROM quizzes WHERE quiz_id = $1)
ORDER BY number, question_id;`

	rows, err := s.db.Query(ctx, stmt, quizID)
	if err != nil {
		return nil, translate(fmt.Errorf("select questions: %w", err))
	}

	questions, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Question, error) {
		return scanQuestion(r)
	})
	if err != nil {
		return nil, translate(fmt.Errorf("collect questions: %w", err))
	}

	return questions, nil
}

func (s *Store) GetQuestion(ctx context.Context, questionID string) (domain.Question, error) {
	const stmt = `SELECT ` + questionColumns + ` FROM questions WHERE question_id = $1;`

	q, err := scanQuestion(s.db.QueryRow(ctx, stmt, questionID))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return domain.Question{}, notFound("question", questionID)
	}
	if err != nil {
		return domain.Question{}, translate(fmt.Errorf("select question: %w", err))
	}

	return q, nil
}

func (s *Store) PutQuestion(ctx context.Context, assessmentID string, q domain.Question) error {
	const stmt = `
INSERT INTO questions (question_id, assessment_id, number, prompt, candidates, value, explanation)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (question_id) DO UPDATE SET
  assessment_id = EXCLUDED.assessment_id,
  number = EXCLUDED.number,
  prompt = EXCLUDED.prompt,
  candidates = EXCLUDED.candidates,
  value = EXCLUDED.value,
  explanation = EXCLUDED.explanation;`

	records := make([]candidateRecord, 0, len(q.Candidates))
	for _, c := range q.Candidates {
		records = append(records, candidateRecord(c))
	}

	_, err := s.db.Exec(ctx, stmt, q.QuestionID, assessmentID, q.Number, q.Prompt, records, q.Value, q.Explanation)
	if err != nil {
		return translate(fmt.Errorf("upsert question: %w", err))
	}

	return nil
}

func (s *Store) DeleteQuestion(ctx context.Context, questionID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM questions WHERE question_id = $1;`, questionID); err != nil {
		return translate(fmt.Errorf("delete question: %w", err))
	}

	return nil
}

func scanQuestion(row pgx.Row) (domain.Question, error) {
	var (
		q       domain.Question
		records []candidateRecord
	)

	if err := row.Scan(&q.QuestionID, &q.Number, &q.Prompt, &records, &q.Value, &q.Explanation); err != nil {
		return domain.Question{}, err
	}

	q.Candidates = make([]domain.Candidate, 0, len(records))
	for _, r := range records {
		q.Candidates = append(q.Candidates, domain.Candidate(r))
	}

	return q, nil
}
