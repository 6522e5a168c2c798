package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"quizhub/internal/db"
	"quizhub/internal/logger"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrCategoryNotFound = errors.New("category not found")
	ErrCategoryExists   = errors.New("category already exists under this parent")
	ErrQuizNotFound     = errors.New("quiz not found")
	ErrQuestionNotFound = errors.New("question not found")
	ErrChoiceNotFound   = errors.New("choice not found")
)

type Service struct {
	db  *sql.DB
	log *logger.Logger
}

type Category struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	ParentID *int64 `json:"parent_id,omitempty"`
	Path     string `json:"path"`
}

type QuizListItem struct {
	ID            int64  `json:"id"`
	Title         string `json:"title"`
	CategoryID    int64  `json:"category_id"`
	CategoryPath  string `json:"category_path"`
	QuestionCount int    `json:"question_count"`
}

// QuizDetail is the quiz-taking view; it never carries correctness or explanations.
type QuizDetail struct {
	ID           int64          `json:"id"`
	Title        string         `json:"title"`
	CategoryID   int64          `json:"category_id"`
	CategoryPath string         `json:"category_path"`
	Questions    []QuestionView `json:"questions"`
}

type QuestionView struct {
	ID      int64        `json:"id"`
	Text    string       `json:"text"`
	Choices []ChoiceView `json:"choices"`
}

type ChoiceView struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

type Quiz struct {
	ID         int64  `json:"id"`
	Title      string `json:"title"`
	CategoryID int64  `json:"category_id"`
}

type ChoiceInput struct {
	Text        string
	IsCorrect   bool
	Explanation string
}

type CreateQuestionInput struct {
	QuizID             int64
	Text               string
	CorrectExplanation string
	Choices            []ChoiceInput
}

type AdminChoice struct {
	ID          int64   `json:"id"`
	Text        string  `json:"text"`
	IsCorrect   bool    `json:"is_correct"`
	Explanation *string `json:"explanation,omitempty"`
}

type AdminQuestion struct {
	ID                 int64         `json:"id"`
	QuizID             int64         `json:"quiz_id"`
	Text               string        `json:"text"`
	CorrectExplanation *string       `json:"correct_explanation,omitempty"`
	Choices            []AdminChoice `json:"choices"`
}

func NewService(conn *sql.DB, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{db: conn, log: log.With("component", "catalog")}
}

func (s *Service) loadTree(ctx context.Context) (*Tree, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, parent_id FROM categories`)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	tree := NewTree()
	for rows.Next() {
		var (
			id     int64
			name   string
			parent sql.NullInt64
		)
		if err := rows.Scan(&id, &name, &parent); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		var parentID *int64
		if parent.Valid {
			parentID = &parent.Int64
		}
		tree.Add(id, name, parentID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return tree, nil
}

func (s *Service) ListQuizzes(ctx context.Context) ([]QuizListItem, error) {
	tree, err := s.loadTree(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT q.id, q.title, q.category_id, COUNT(qs.id)
		FROM quizzes q
		LEFT JOIN questions qs ON qs.quiz_id = q.id
		GROUP BY q.id, q.title, q.category_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query quizzes: %w", err)
	}
	defer rows.Close()

	items := make([]QuizListItem, 0)
	for rows.Next() {
		var it QuizListItem
		if err := rows.Scan(&it.ID, &it.Title, &it.CategoryID, &it.QuestionCount); err != nil {
			return nil, fmt.Errorf("scan quiz: %w", err)
		}
		path, err := tree.Path(it.CategoryID)
		if err != nil {
			return nil, fmt.Errorf("resolve path for quiz %d: %w", it.ID, err)
		}
		it.CategoryPath = path
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quizzes: %w", err)
	}

	sortQuizzes(items)
	return items, nil
}

func sortQuizzes(items []QuizListItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].CategoryPath != items[j].CategoryPath {
			return items[i].CategoryPath < items[j].CategoryPath
		}
		if items[i].Title != items[j].Title {
			return items[i].Title < items[j].Title
		}
		return items[i].ID < items[j].ID
	})
}

// GetQuiz loads a quiz for taking. firstOnly narrows it to the lowest-id question.
func (s *Service) GetQuiz(ctx context.Context, quizID int64, firstOnly bool) (*QuizDetail, error) {
	var out QuizDetail
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, category_id FROM quizzes WHERE id = $1
	`, quizID).Scan(&out.ID, &out.Title, &out.CategoryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("load quiz: %w", err)
	}

	tree, err := s.loadTree(ctx)
	if err != nil {
		return nil, err
	}
	if out.CategoryPath, err = tree.Path(out.CategoryID); err != nil {
		return nil, fmt.Errorf("resolve quiz path: %w", err)
	}

	limit := "ALL"
	if firstOnly {
		limit = "1"
	}
	rows, err := s.db.QueryContext(ctx, `
		WITH qs AS (
			SELECT id, text FROM questions WHERE quiz_id = $1 ORDER BY id LIMIT `+limit+`
		)
		SELECT qs.id, qs.text, c.id, c.text
		FROM qs
		LEFT JOIN choices c ON c.question_id = qs.id
		ORDER BY qs.id, c.id
	`, quizID)
	if err != nil {
		return nil, fmt.Errorf("query quiz questions: %w", err)
	}
	defer rows.Close()

	out.Questions = make([]QuestionView, 0)
	for rows.Next() {
		var (
			qID        int64
			qText      string
			choiceID   sql.NullInt64
			choiceText sql.NullString
		)
		if err := rows.Scan(&qID, &qText, &choiceID, &choiceText); err != nil {
			return nil, fmt.Errorf("scan quiz question: %w", err)
		}
		n := len(out.Questions)
		if n == 0 || out.Questions[n-1].ID != qID {
			out.Questions = append(out.Questions, QuestionView{ID: qID, Text: qText, Choices: make([]ChoiceView, 0, 4)})
			n++
		}
		if choiceID.Valid {
			out.Questions[n-1].Choices = append(out.Questions[n-1].Choices, ChoiceView{ID: choiceID.Int64, Text: choiceText.String})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quiz questions: %w", err)
	}
	return &out, nil
}

func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	tree, err := s.loadTree(ctx)
	if err != nil {
		return nil, err
	}
	return tree.Categories()
}

func (s *Service) CreateCategory(ctx context.Context, name string, parentID *int64) (*Category, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.Contains(name, PathSeparator) {
		return nil, fmt.Errorf("%w: category name must be non-empty and must not contain %q", ErrInvalidInput, PathSeparator)
	}

	if parentID != nil {
		if err := s.ensureExists(ctx, `SELECT 1 FROM categories WHERE id = $1`, *parentID, ErrCategoryNotFound); err != nil {
			return nil, err
		}
	}

	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO categories (name, parent_id) VALUES ($1, $2) RETURNING id
	`, name, nullableID(parentID)).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrCategoryExists
		}
		return nil, fmt.Errorf("insert category: %w", err)
	}

	tree, err := s.loadTree(ctx)
	if err != nil {
		return nil, err
	}
	path, err := tree.Path(id)
	if err != nil {
		return nil, fmt.Errorf("resolve new category path: %w", err)
	}

	s.log.Info("category created", "category_id", id, "path", path)
	return &Category{ID: id, Name: name, ParentID: parentID, Path: path}, nil
}

// DeleteCategory removes a category; descendants, quizzes and their content cascade.
func (s *Service) DeleteCategory(ctx context.Context, categoryID int64) error {
	return s.deleteByID(ctx, `DELETE FROM categories WHERE id = $1`, categoryID, ErrCategoryNotFound)
}

func (s *Service) CreateQuiz(ctx context.Context, title string, categoryID int64) (*Quiz, error) {
	title = strings.TrimSpace(title)
	if title == "" || categoryID <= 0 {
		return nil, fmt.Errorf("%w: title and category_id are required", ErrInvalidInput)
	}
	if err := s.ensureExists(ctx, `SELECT 1 FROM categories WHERE id = $1`, categoryID, ErrCategoryNotFound); err != nil {
		return nil, err
	}

	q := Quiz{Title: title, CategoryID: categoryID}
	if err := s.db.QueryRowContext(ctx, `
		INSERT INTO quizzes (title, category_id) VALUES ($1, $2) RETURNING id
	`, title, categoryID).Scan(&q.ID); err != nil {
		return nil, fmt.Errorf("insert quiz: %w", err)
	}
	s.log.Info("quiz created", "quiz_id", q.ID, "category_id", categoryID)
	return &q, nil
}

func (s *Service) DeleteQuiz(ctx context.Context, quizID int64) error {
	return s.deleteByID(ctx, `DELETE FROM quizzes WHERE id = $1`, quizID, ErrQuizNotFound)
}

// CreateQuestion inserts a question and its choices atomically. A choice set
// without exactly one correct entry is accepted but logged.
func (s *Service) CreateQuestion(ctx context.Context, in CreateQuestionInput) (*AdminQuestion, error) {
	in.Text = strings.TrimSpace(in.Text)
	if in.QuizID <= 0 || in.Text == "" || len(in.Choices) == 0 {
		return nil, fmt.Errorf("%w: quiz_id, text and at least one choice are required", ErrInvalidInput)
	}
	correct := 0
	for i := range in.Choices {
		in.Choices[i].Text = strings.TrimSpace(in.Choices[i].Text)
		if in.Choices[i].Text == "" {
			return nil, fmt.Errorf("%w: choice %d has no text", ErrInvalidInput, i+1)
		}
		if in.Choices[i].IsCorrect {
			correct++
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin question tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT 1 FROM quizzes WHERE id = $1`, in.QuizID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("check quiz: %w", err)
	}

	out := AdminQuestion{QuizID: in.QuizID, Text: in.Text, CorrectExplanation: optionalText(in.CorrectExplanation)}
	if err := tx.QueryRowContext(ctx, `
		INSERT INTO questions (quiz_id, text, correct_explanation) VALUES ($1, $2, $3) RETURNING id
	`, in.QuizID, in.Text, nullableText(out.CorrectExplanation)).Scan(&out.ID); err != nil {
		return nil, fmt.Errorf("insert question: %w", err)
	}

	out.Choices = make([]AdminChoice, 0, len(in.Choices))
	for _, c := range in.Choices {
		ch := AdminChoice{Text: c.Text, IsCorrect: c.IsCorrect, Explanation: optionalText(c.Explanation)}
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO choices (question_id, text, is_correct, explanation) VALUES ($1, $2, $3, $4) RETURNING id
		`, out.ID, ch.Text, ch.IsCorrect, nullableText(ch.Explanation)).Scan(&ch.ID); err != nil {
			return nil, fmt.Errorf("insert choice: %w", err)
		}
		out.Choices = append(out.Choices, ch)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit question: %w", err)
	}

	if correct != 1 {
		s.log.Warn("question does not have exactly one correct choice", "question_id", out.ID, "correct_choices", correct)
	}
	return &out, nil
}

func (s *Service) DeleteQuestion(ctx context.Context, questionID int64) error {
	return s.deleteByID(ctx, `DELETE FROM questions WHERE id = $1`, questionID, ErrQuestionNotFound)
}

// SetChoiceCorrect flips a choice's correctness. Answers already recorded keep
// the correctness they were graded with.
func (s *Service) SetChoiceCorrect(ctx context.Context, choiceID int64, isCorrect bool) error {
	var questionID int64
	err := s.db.QueryRowContext(ctx, `
		UPDATE choices SET is_correct = $2 WHERE id = $1 RETURNING question_id
	`, choiceID, isCorrect).Scan(&questionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrChoiceNotFound
		}
		return fmt.Errorf("update choice: %w", err)
	}

	var correct int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM choices WHERE question_id = $1 AND is_correct
	`, questionID).Scan(&correct); err != nil {
		return fmt.Errorf("count correct choices: %w", err)
	}
	if correct != 1 {
		s.log.Warn("question does not have exactly one correct choice", "question_id", questionID, "correct_choices", correct)
	}
	return nil
}

func (s *Service) ensureExists(ctx context.Context, query string, id int64, notFound error) error {
	var one int
	if err := s.db.QueryRowContext(ctx, query, id).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return notFound
		}
		return fmt.Errorf("check existence: %w", err)
	}
	return nil
}

func (s *Service) deleteByID(ctx context.Context, query string, id int64, notFound error) error {
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func optionalText(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func nullableText(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func nullableID(id *int64) interface{} {
	if id == nil {
		return nil
	}
	return *id
}
