package importer

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"quizhub/internal/logger"

	"github.com/google/uuid"
)

// Store is the write side an import needs. Category and quiz lookups are
// find-or-create; questions and choices are always inserted.
type Store interface {
	FindOrCreateCategory(ctx context.Context, name string, parentID *int64) (id int64, created bool, err error)
	FindOrCreateQuiz(ctx context.Context, title string, categoryID int64) (id int64, created bool, err error)
	CreateQuestion(ctx context.Context, quizID int64, text string, correctExplanation *string) (int64, error)
	CreateChoice(ctx context.Context, questionID int64, text string, isCorrect bool, explanation *string) (int64, error)
}

type Report struct {
	ImportID          string `json:"import_id"`
	Source            string `json:"source"`
	Rows              int    `json:"rows"`
	CategoriesCreated int    `json:"categories_created"`
	QuizzesCreated    int    `json:"quizzes_created"`
	QuestionsCreated  int    `json:"questions_created"`
	ChoicesCreated    int    `json:"choices_created"`
	// NoCorrectLines lists rows whose correct_choice matched no choice column.
	NoCorrectLines []int `json:"no_correct_lines,omitempty"`
}

type Importer struct {
	db  *sql.DB
	log *logger.Logger
}

func New(conn *sql.DB, log *logger.Logger) *Importer {
	if log == nil {
		log = logger.Nop()
	}
	return &Importer{db: conn, log: log.With("component", "importer")}
}

// ImportFile reads path and writes every row inside one transaction. Any
// malformed row or write failure leaves the database untouched.
func (im *Importer) ImportFile(ctx context.Context, path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open import file: %w", err)
	}
	defer f.Close()

	rows, err := ReadRows(path, f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}

	importID := uuid.NewString()
	log := im.log.With("import_id", importID, "source", filepath.Base(path))
	log.Info("import started", "rows", len(rows))

	tx, err := im.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin import tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	report, err := Apply(ctx, &sqlStore{q: tx}, rows)
	if err != nil {
		log.Error("import aborted", "error", err)
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit import: %w", err)
	}

	report.ImportID = importID
	report.Source = filepath.Base(path)
	if len(report.NoCorrectLines) > 0 {
		log.Warn("questions imported without a correct choice", "lines", report.NoCorrectLines)
	}
	log.Info("import complete",
		"categories_created", report.CategoriesCreated,
		"quizzes_created", report.QuizzesCreated,
		"questions_created", report.QuestionsCreated,
		"choices_created", report.ChoicesCreated,
	)
	return report, nil
}

// Apply writes already-parsed rows through st, stopping at the first failure.
func Apply(ctx context.Context, st Store, rows []Row) (*Report, error) {
	report := &Report{}
	for _, row := range rows {
		if err := applyRow(ctx, st, row, report); err != nil {
			return nil, &RowError{Line: row.Line, Err: err}
		}
		report.Rows++
	}
	return report, nil
}

func applyRow(ctx context.Context, st Store, row Row, report *Report) error {
	var parentID *int64
	for _, name := range row.CategoryPath {
		id, created, err := st.FindOrCreateCategory(ctx, name, parentID)
		if err != nil {
			return fmt.Errorf("category %q: %w", name, err)
		}
		if created {
			report.CategoriesCreated++
		}
		cur := id
		parentID = &cur
	}

	quizID, created, err := st.FindOrCreateQuiz(ctx, row.Title(), *parentID)
	if err != nil {
		return fmt.Errorf("quiz %q: %w", row.Title(), err)
	}
	if created {
		report.QuizzesCreated++
	}

	questionID, err := st.CreateQuestion(ctx, quizID, row.Question, optional(row.ExplanationCorrect))
	if err != nil {
		return fmt.Errorf("question: %w", err)
	}
	report.QuestionsCreated++
	if !row.HasCorrectChoice() {
		report.NoCorrectLines = append(report.NoCorrectLines, row.Line)
	}

	correct := letterIndex(row.CorrectLetter)
	for i, text := range row.Choices {
		isCorrect := i == correct
		explanation := row.ExplanationWrong
		if isCorrect {
			explanation = row.ExplanationCorrect
		}
		if _, err := st.CreateChoice(ctx, questionID, text, isCorrect, optional(explanation)); err != nil {
			return fmt.Errorf("choice %s: %w", Letters[i], err)
		}
		report.ChoicesCreated++
	}
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
