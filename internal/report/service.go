package report

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"quizhub/internal/attempt"
	"quizhub/internal/logger"

	"github.com/xuri/excelize/v2"
)

var ErrQuizNotFound = errors.New("quiz not found")

type Service struct {
	db  *sql.DB
	log *logger.Logger
}

type QuizSummary struct {
	QuizID            int64   `json:"quiz_id"`
	QuizTitle         string  `json:"quiz_title"`
	Participants      int     `json:"participants"`
	Attempts          int     `json:"attempts"`
	AveragePercentage float64 `json:"average_percentage"`
	HighestPercentage float64 `json:"highest_percentage"`
	LowestPercentage  float64 `json:"lowest_percentage"`
}

// ResultRow is one stored result of a quiz as it appears in exports.
type ResultRow struct {
	ResultID int64
	UserID   int64
	Username string
	FullName string
	Score    int
	Total    int
	TakenAt  time.Time
}

func NewService(conn *sql.DB, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{db: conn, log: log.With("component", "report")}
}

func (s *Service) SummaryByQuiz(ctx context.Context, quizID int64) (*QuizSummary, error) {
	title, err := s.quizTitle(ctx, quizID)
	if err != nil {
		return nil, err
	}
	rows, err := s.loadResultRows(ctx, quizID)
	if err != nil {
		s.log.Error("load results for summary failed", "quiz_id", quizID, "error", err)
		return nil, err
	}
	summary := summarize(rows)
	summary.QuizID = quizID
	summary.QuizTitle = title
	return &summary, nil
}

// ExportResultsExcel renders every result of a quiz as an xlsx workbook.
func (s *Service) ExportResultsExcel(ctx context.Context, quizID int64) ([]byte, error) {
	if _, err := s.quizTitle(ctx, quizID); err != nil {
		return nil, err
	}
	rows, err := s.loadResultRows(ctx, quizID)
	if err != nil {
		s.log.Error("load results for export failed", "quiz_id", quizID, "error", err)
		return nil, err
	}
	return s.renderExport(quizID, rows)
}

func (s *Service) renderExport(quizID int64, rows []ResultRow) ([]byte, error) {
	data, err := buildResultsWorkbook(rows)
	if err != nil {
		s.log.Error("build results workbook failed", "quiz_id", quizID, "error", err)
		return nil, err
	}
	s.log.Info("results exported", "quiz_id", quizID, "rows", len(rows), "bytes", len(data))
	return data, nil
}

func (s *Service) quizTitle(ctx context.Context, quizID int64) (string, error) {
	var title string
	if err := s.db.QueryRowContext(ctx, `SELECT title FROM quizzes WHERE id = $1`, quizID).Scan(&title); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrQuizNotFound
		}
		return "", fmt.Errorf("load quiz: %w", err)
	}
	return title, nil
}

func (s *Service) loadResultRows(ctx context.Context, quizID int64) ([]ResultRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.user_id, u.username, u.full_name, r.score, r.total, r.taken_at
		FROM quiz_results r
		JOIN users u ON u.id = r.user_id
		WHERE r.quiz_id = $1
		ORDER BY r.taken_at ASC, r.id ASC
	`, quizID)
	if err != nil {
		return nil, fmt.Errorf("query quiz results: %w", err)
	}
	defer rows.Close()

	out := make([]ResultRow, 0)
	for rows.Next() {
		var it ResultRow
		if err := rows.Scan(&it.ResultID, &it.UserID, &it.Username, &it.FullName, &it.Score, &it.Total, &it.TakenAt); err != nil {
			return nil, fmt.Errorf("scan quiz result: %w", err)
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quiz results: %w", err)
	}
	return out, nil
}

func summarize(rows []ResultRow) QuizSummary {
	var out QuizSummary
	if len(rows) == 0 {
		return out
	}

	users := make(map[int64]struct{}, len(rows))
	sum := 0.0
	out.LowestPercentage = math.Inf(1)
	for _, it := range rows {
		users[it.UserID] = struct{}{}
		p := attempt.Percentage(it.Score, it.Total)
		sum += p
		if p > out.HighestPercentage {
			out.HighestPercentage = p
		}
		if p < out.LowestPercentage {
			out.LowestPercentage = p
		}
	}
	out.Participants = len(users)
	out.Attempts = len(rows)
	out.AveragePercentage = round2(sum / float64(len(rows)))
	out.HighestPercentage = round2(out.HighestPercentage)
	out.LowestPercentage = round2(out.LowestPercentage)
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func buildResultsWorkbook(rows []ResultRow) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	headers := []string{"result_id", "username", "full_name", "score", "total", "percentage", "taken_at"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for i, it := range rows {
		row := i + 2
		values := []any{
			it.ResultID,
			it.Username,
			it.FullName,
			it.Score,
			it.Total,
			round2(attempt.Percentage(it.Score, it.Total)),
			it.TakenAt.UTC().Format("2006-01-02 15:04:05"),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
	_ = f.SetColWidth(sheet, "A", "G", 20)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write excel: %w", err)
	}
	return buf.Bytes(), nil
}
