package db

import (
	"context"
	"database/sql"
	"fmt"
)

// schemaStatements are applied in order; each one is idempotent.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		full_name TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('user', 'staff')),
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS user_sessions (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		session_token_hash TEXT NOT NULL UNIQUE,
		expires_at TIMESTAMPTZ NOT NULL,
		revoked_at TIMESTAMPTZ,
		ip_address TEXT,
		user_agent TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS categories (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		parent_id BIGINT REFERENCES categories(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS categories_parent_name_uq
		ON categories (parent_id, name) WHERE parent_id IS NOT NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS categories_root_name_uq
		ON categories (name) WHERE parent_id IS NULL`,
	`CREATE TABLE IF NOT EXISTS quizzes (
		id BIGSERIAL PRIMARY KEY,
		title TEXT NOT NULL,
		category_id BIGINT NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS quizzes_category_idx ON quizzes (category_id)`,
	`CREATE TABLE IF NOT EXISTS questions (
		id BIGSERIAL PRIMARY KEY,
		quiz_id BIGINT NOT NULL REFERENCES quizzes(id) ON DELETE CASCADE,
		text TEXT NOT NULL,
		correct_explanation TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS questions_quiz_idx ON questions (quiz_id)`,
	`CREATE TABLE IF NOT EXISTS choices (
		id BIGSERIAL PRIMARY KEY,
		question_id BIGINT NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
		text TEXT NOT NULL,
		is_correct BOOLEAN NOT NULL DEFAULT FALSE,
		explanation TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS choices_question_idx ON choices (question_id)`,
	`CREATE TABLE IF NOT EXISTS quiz_results (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		quiz_id BIGINT NOT NULL REFERENCES quizzes(id) ON DELETE CASCADE,
		score INT NOT NULL,
		total INT NOT NULL,
		taken_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CHECK (score >= 0 AND score <= total)
	)`,
	`CREATE INDEX IF NOT EXISTS quiz_results_user_idx ON quiz_results (user_id, taken_at DESC)`,
	`CREATE INDEX IF NOT EXISTS quiz_results_quiz_idx ON quiz_results (quiz_id)`,
	`CREATE TABLE IF NOT EXISTS quiz_answers (
		id BIGSERIAL PRIMARY KEY,
		result_id BIGINT NOT NULL REFERENCES quiz_results(id) ON DELETE CASCADE,
		question_id BIGINT NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
		choice_id BIGINT NOT NULL REFERENCES choices(id) ON DELETE CASCADE,
		is_correct BOOLEAN NOT NULL,
		UNIQUE (result_id, question_id)
	)`,
}

// EnsureSchema creates missing tables and indexes inside one transaction.
func EnsureSchema(ctx context.Context, conn *sql.DB) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, stmt := range schemaStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}
