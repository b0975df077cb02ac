package quiz

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SQLStore keeps quizzes and results as JSON documents with the columns
// needed for lookups alongside. Works with sqlite and postgres.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) PutQuiz(ctx context.Context, q Quiz) error {
	qj, err := json.Marshal(q)
	if err != nil {
		return err
	}
	created := q.CreatedAt
	if created == 0 {
		created = time.Now().Unix()
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO quizzes (id,title,class_id,quiz_json,created_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title, class_id=EXCLUDED.class_id, quiz_json=EXCLUDED.quiz_json`,
		q.ID, q.Title, q.ClassID, string(qj), created)
	return err
}

func (s *SQLStore) GetQuiz(ctx context.Context, id string) (Quiz, error) {
	var qjson string
	err := s.db.QueryRowContext(ctx, `SELECT quiz_json FROM quizzes WHERE id=$1`, id).Scan(&qjson)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Quiz{}, fmt.Errorf("%w: %s", ErrQuizNotFound, id)
		}
		return Quiz{}, err
	}
	var q Quiz
	if err := json.Unmarshal([]byte(qjson), &q); err != nil {
		return Quiz{}, fmt.Errorf("decode quiz %s: %w", id, err)
	}
	return q, nil
}

func (s *SQLStore) UpsertResult(ctx context.Context, r Result) (Result, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Result{}, err
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT 1 FROM quizzes WHERE id=$1`, r.QuizID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Result{}, fmt.Errorf("%w: %s", ErrQuizNotFound, r.QuizID)
		}
		return Result{}, err
	}

	var prevID string
	err = tx.QueryRowContext(ctx, `SELECT id FROM quiz_results WHERE quiz_id=$1 AND student_id=$2`,
		r.QuizID, r.StudentID).Scan(&prevID)
	switch {
	case err == nil:
		r.ID = prevID
	case !errors.Is(err, sql.ErrNoRows):
		return Result{}, err
	}

	rj, err := json.Marshal(r)
	if err != nil {
		return Result{}, err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO quiz_results (id,quiz_id,student_id,score,total,percentage,result_json,submitted_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (quiz_id, student_id) DO UPDATE SET score=EXCLUDED.score, total=EXCLUDED.total,
		  percentage=EXCLUDED.percentage, result_json=EXCLUDED.result_json, submitted_at=EXCLUDED.submitted_at`,
		r.ID, r.QuizID, r.StudentID, r.Score, r.Total, r.Percentage, string(rj), r.SubmittedAt.UnixMilli())
	if err != nil {
		return Result{}, err
	}
	if err := tx.Commit(); err != nil {
		return Result{}, err
	}
	return r, nil
}

func (s *SQLStore) GetResult(ctx context.Context, quizID, studentID string) (Result, error) {
	var rjson string
	err := s.db.QueryRowContext(ctx, `SELECT result_json FROM quiz_results WHERE quiz_id=$1 AND student_id=$2`,
		quizID, studentID).Scan(&rjson)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Result{}, ErrResultNotFound
		}
		return Result{}, err
	}
	var r Result
	if err := json.Unmarshal([]byte(rjson), &r); err != nil {
		return Result{}, fmt.Errorf("decode result %s/%s: %w", quizID, studentID, err)
	}
	return r, nil
}

func (s *SQLStore) ListResults(ctx context.Context, quizID string) ([]Result, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT result_json FROM quiz_results WHERE quiz_id=$1
		ORDER BY submitted_at DESC, student_id ASC`, quizID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Result{}
	for rows.Next() {
		var rjson string
		if err := rows.Scan(&rjson); err != nil {
			return nil, err
		}
		var r Result
		if err := json.Unmarshal([]byte(rjson), &r); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
