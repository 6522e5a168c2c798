package importer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type queryable interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqlStore writes import rows through a single transaction.
type sqlStore struct {
	q queryable
}

func (s *sqlStore) FindOrCreateCategory(ctx context.Context, name string, parentID *int64) (int64, bool, error) {
	var id int64
	err := s.q.QueryRowContext(ctx, `
		SELECT id
		FROM categories
		WHERE name = $1 AND parent_id IS NOT DISTINCT FROM $2
		LIMIT 1
	`, name, nullableID(parentID)).Scan(&id)
	if err == nil {
		return id, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, fmt.Errorf("lookup category: %w", err)
	}

	err = s.q.QueryRowContext(ctx, `
		INSERT INTO categories (name, parent_id) VALUES ($1, $2) RETURNING id
	`, name, nullableID(parentID)).Scan(&id)
	if err != nil {
		return 0, false, fmt.Errorf("insert category: %w", err)
	}
	return id, true, nil
}

func (s *sqlStore) FindOrCreateQuiz(ctx context.Context, title string, categoryID int64) (int64, bool, error) {
	var id int64
	err := s.q.QueryRowContext(ctx, `
		SELECT id
		FROM quizzes
		WHERE title = $1 AND category_id = $2
		ORDER BY id
		LIMIT 1
	`, title, categoryID).Scan(&id)
	if err == nil {
		return id, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, fmt.Errorf("lookup quiz: %w", err)
	}

	err = s.q.QueryRowContext(ctx, `
		INSERT INTO quizzes (title, category_id) VALUES ($1, $2) RETURNING id
	`, title, categoryID).Scan(&id)
	if err != nil {
		return 0, false, fmt.Errorf("insert quiz: %w", err)
	}
	return id, true, nil
}

func (s *sqlStore) CreateQuestion(ctx context.Context, quizID int64, text string, correctExplanation *string) (int64, error) {
	var id int64
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO questions (quiz_id, text, correct_explanation) VALUES ($1, $2, $3) RETURNING id
	`, quizID, text, nullableText(correctExplanation)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert question: %w", err)
	}
	return id, nil
}

func (s *sqlStore) CreateChoice(ctx context.Context, questionID int64, text string, isCorrect bool, explanation *string) (int64, error) {
	var id int64
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO choices (question_id, text, is_correct, explanation) VALUES ($1, $2, $3, $4) RETURNING id
	`, questionID, text, isCorrect, nullableText(explanation)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert choice: %w", err)
	}
	return id, nil
}

func nullableID(id *int64) interface{} {
	if id == nil {
		return nil
	}
	return *id
}

func nullableText(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}
