package attempt

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"quizhub/internal/logger"
)

var (
	ErrQuizNotFound   = errors.New("quiz not found")
	ErrEmptyQuiz      = errors.New("quiz has no questions")
	ErrResultNotFound = errors.New("result not found")
	ErrInvalidInput   = errors.New("invalid input")
)

type queryable interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type Service struct {
	db  *sql.DB
	log *logger.Logger
}

// Result is the immutable header of one scored attempt.
type Result struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	QuizID     int64     `json:"quiz_id"`
	QuizTitle  string    `json:"quiz_title"`
	Score      int       `json:"score"`
	Total      int       `json:"total"`
	Percentage float64   `json:"percentage"`
	TakenAt    time.Time `json:"taken_at"`
}

type ResultChoice struct {
	ID          int64   `json:"id"`
	Text        string  `json:"text"`
	IsCorrect   bool    `json:"is_correct"`
	Picked      bool    `json:"picked"`
	Explanation *string `json:"explanation,omitempty"`
}

// ResultQuestion is one question of a result. AnsweredCorrectly is the
// correctness recorded at submission, independent of later edits to choices.
type ResultQuestion struct {
	ID                 int64          `json:"id"`
	Text               string         `json:"text"`
	CorrectExplanation *string        `json:"correct_explanation,omitempty"`
	PickedChoiceID     *int64         `json:"picked_choice_id,omitempty"`
	AnsweredCorrectly  *bool          `json:"answered_correctly,omitempty"`
	Choices            []ResultChoice `json:"choices"`
}

type ResultView struct {
	Result    Result           `json:"result"`
	Questions []ResultQuestion `json:"questions"`
}

func NewService(conn *sql.DB, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{db: conn, log: log.With("component", "attempt")}
}

// Submit grades answers for quizID and stores the result with its answer rows
// in one transaction. Every call creates a new result.
func (s *Service) Submit(ctx context.Context, userID, quizID int64, answers map[int64]int64) (*Result, error) {
	if userID <= 0 || quizID <= 0 {
		return nil, ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin submit tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var title string
	if err := tx.QueryRowContext(ctx, `SELECT title FROM quizzes WHERE id = $1`, quizID).Scan(&title); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("load quiz: %w", err)
	}

	keys, err := loadAnswerKeys(ctx, tx, quizID)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, ErrEmptyQuiz
	}

	grade := GradeSubmission(keys, answers)

	res := &Result{
		UserID:     userID,
		QuizID:     quizID,
		QuizTitle:  title,
		Score:      grade.Score,
		Total:      grade.Total,
		Percentage: Percentage(grade.Score, grade.Total),
	}
	if err := tx.QueryRowContext(ctx, `
		INSERT INTO quiz_results (user_id, quiz_id, score, total)
		VALUES ($1, $2, $3, $4)
		RETURNING id, taken_at
	`, userID, quizID, grade.Score, grade.Total).Scan(&res.ID, &res.TakenAt); err != nil {
		return nil, fmt.Errorf("insert quiz result: %w", err)
	}

	for _, a := range grade.Answers {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO quiz_answers (result_id, question_id, choice_id, is_correct)
			VALUES ($1, $2, $3, $4)
		`, res.ID, a.QuestionID, a.ChoiceID, a.IsCorrect); err != nil {
			return nil, fmt.Errorf("insert quiz answer: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit submit: %w", err)
	}

	s.log.Info("quiz submitted",
		"result_id", res.ID,
		"user_id", userID,
		"quiz_id", quizID,
		"score", res.Score,
		"total", res.Total,
		"answered", len(grade.Answers),
	)
	return res, nil
}

func loadAnswerKeys(ctx context.Context, q queryable, quizID int64) ([]AnswerKey, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT q.id, c.id, c.is_correct
		FROM questions q
		LEFT JOIN choices c ON c.question_id = q.id
		WHERE q.quiz_id = $1
		ORDER BY q.id ASC, c.id ASC
	`, quizID)
	if err != nil {
		return nil, fmt.Errorf("query answer keys: %w", err)
	}
	defer rows.Close()

	keys := make([]AnswerKey, 0)
	for rows.Next() {
		var (
			questionID int64
			choiceID   sql.NullInt64
			isCorrect  sql.NullBool
		)
		if err := rows.Scan(&questionID, &choiceID, &isCorrect); err != nil {
			return nil, fmt.Errorf("scan answer key: %w", err)
		}
		if len(keys) == 0 || keys[len(keys)-1].QuestionID != questionID {
			keys = append(keys, AnswerKey{QuestionID: questionID, Choices: make(map[int64]bool)})
		}
		if choiceID.Valid {
			keys[len(keys)-1].Choices[choiceID.Int64] = isCorrect.Bool
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate answer keys: %w", err)
	}
	return keys, nil
}

func (s *Service) GetResultOwner(ctx context.Context, resultID int64) (int64, error) {
	var userID int64
	if err := s.db.QueryRowContext(ctx, `
		SELECT user_id
		FROM quiz_results
		WHERE id = $1
	`, resultID).Scan(&userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrResultNotFound
		}
		return 0, fmt.Errorf("load result owner: %w", err)
	}
	return userID, nil
}

// GetResult rebuilds a result for display: every question of the quiz in id
// order with all its choices and the one picked, if any.
func (s *Service) GetResult(ctx context.Context, resultID int64) (*ResultView, error) {
	res, err := s.loadResult(ctx, resultID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT
			q.id,
			q.text,
			q.correct_explanation,
			c.id,
			c.text,
			c.is_correct,
			c.explanation,
			a.choice_id,
			a.is_correct
		FROM questions q
		LEFT JOIN choices c ON c.question_id = q.id
		LEFT JOIN quiz_answers a ON a.result_id = $1 AND a.question_id = q.id
		WHERE q.quiz_id = $2
		ORDER BY q.id ASC, c.id ASC
	`, resultID, res.QuizID)
	if err != nil {
		return nil, fmt.Errorf("query result questions: %w", err)
	}
	defer rows.Close()

	view := &ResultView{Result: *res, Questions: make([]ResultQuestion, 0)}
	for rows.Next() {
		var (
			questionID    int64
			questionText  string
			correctExpl   sql.NullString
			choiceID      sql.NullInt64
			choiceText    sql.NullString
			choiceCorrect sql.NullBool
			choiceExpl    sql.NullString
			pickedID      sql.NullInt64
			pickedCorrect sql.NullBool
		)
		if err := rows.Scan(
			&questionID, &questionText, &correctExpl,
			&choiceID, &choiceText, &choiceCorrect, &choiceExpl,
			&pickedID, &pickedCorrect,
		); err != nil {
			return nil, fmt.Errorf("scan result question: %w", err)
		}

		n := len(view.Questions)
		if n == 0 || view.Questions[n-1].ID != questionID {
			q := ResultQuestion{
				ID:                 questionID,
				Text:               questionText,
				CorrectExplanation: stringPtr(correctExpl),
				Choices:            make([]ResultChoice, 0, 4),
			}
			if pickedID.Valid {
				id := pickedID.Int64
				ok := pickedCorrect.Bool
				q.PickedChoiceID = &id
				q.AnsweredCorrectly = &ok
			}
			view.Questions = append(view.Questions, q)
			n++
		}
		if !choiceID.Valid {
			continue
		}

		q := &view.Questions[n-1]
		choice := ResultChoice{
			ID:          choiceID.Int64,
			Text:        choiceText.String,
			IsCorrect:   choiceCorrect.Bool,
			Picked:      pickedID.Valid && pickedID.Int64 == choiceID.Int64,
			Explanation: stringPtr(choiceExpl),
		}
		if choice.IsCorrect && choice.Explanation == nil {
			choice.Explanation = q.CorrectExplanation
		}
		q.Choices = append(q.Choices, choice)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate result questions: %w", err)
	}
	return view, nil
}

func (s *Service) loadResult(ctx context.Context, resultID int64) (*Result, error) {
	var res Result
	if err := s.db.QueryRowContext(ctx, `
		SELECT r.id, r.user_id, r.quiz_id, z.title, r.score, r.total, r.taken_at
		FROM quiz_results r
		JOIN quizzes z ON z.id = r.quiz_id
		WHERE r.id = $1
	`, resultID).Scan(&res.ID, &res.UserID, &res.QuizID, &res.QuizTitle, &res.Score, &res.Total, &res.TakenAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrResultNotFound
		}
		return nil, fmt.Errorf("load result: %w", err)
	}
	res.Percentage = Percentage(res.Score, res.Total)
	return &res, nil
}

// ListResults returns userID's results, newest first.
func (s *Service) ListResults(ctx context.Context, userID int64) ([]Result, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.user_id, r.quiz_id, z.title, r.score, r.total, r.taken_at
		FROM quiz_results r
		JOIN quizzes z ON z.id = r.quiz_id
		WHERE r.user_id = $1
		ORDER BY r.taken_at DESC, r.id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	out := make([]Result, 0)
	for rows.Next() {
		var res Result
		if err := rows.Scan(&res.ID, &res.UserID, &res.QuizID, &res.QuizTitle, &res.Score, &res.Total, &res.TakenAt); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		res.Percentage = Percentage(res.Score, res.Total)
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return out, nil
}

// AnswerMap returns the picked choice per answered question of a result.
func (s *Service) AnswerMap(ctx context.Context, resultID int64) (map[int64]int64, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM quiz_results WHERE id = $1)`, resultID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check result: %w", err)
	}
	if !exists {
		return nil, ErrResultNotFound
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT question_id, choice_id
		FROM quiz_answers
		WHERE result_id = $1
	`, resultID)
	if err != nil {
		return nil, fmt.Errorf("query answers: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]int64)
	for rows.Next() {
		var questionID, choiceID int64
		if err := rows.Scan(&questionID, &choiceID); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		out[questionID] = choiceID
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate answers: %w", err)
	}
	return out, nil
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid || v.String == "" {
		return nil
	}
	s := v.String
	return &s
}
