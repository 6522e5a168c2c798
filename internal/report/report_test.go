package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"quizhub/internal/logger"

	"github.com/go-chi/chi/v5"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type mockReportService struct {
	summaryFn func(ctx context.Context, quizID int64) (*QuizSummary, error)
	exportFn  func(ctx context.Context, quizID int64) ([]byte, error)
}

func (m *mockReportService) SummaryByQuiz(ctx context.Context, quizID int64) (*QuizSummary, error) {
	if m.summaryFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.summaryFn(ctx, quizID)
}

func (m *mockReportService) ExportResultsExcel(ctx context.Context, quizID int64) ([]byte, error) {
	if m.exportFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.exportFn(ctx, quizID)
}

func withChiParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestSummarize(t *testing.T) {
	rows := []ResultRow{
		{ResultID: 1, UserID: 1, Score: 1, Total: 4},
		{ResultID: 2, UserID: 1, Score: 4, Total: 4},
		{ResultID: 3, UserID: 2, Score: 2, Total: 3},
	}
	got := summarize(rows)

	if got.Participants != 2 || got.Attempts != 3 {
		t.Fatalf("unexpected counts: %+v", got)
	}
	if got.HighestPercentage != 100 || got.LowestPercentage != 25 {
		t.Fatalf("unexpected bounds: %+v", got)
	}
	if got.AveragePercentage != 63.89 {
		t.Fatalf("expected average 63.89, got %v", got.AveragePercentage)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	got := summarize(nil)
	if got.Attempts != 0 || got.LowestPercentage != 0 || got.AveragePercentage != 0 {
		t.Fatalf("empty summary should be zero, got %+v", got)
	}
}

func TestBuildResultsWorkbook(t *testing.T) {
	taken := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	data, err := buildResultsWorkbook([]ResultRow{
		{ResultID: 11, UserID: 1, Username: "alice", FullName: "Alice", Score: 3, Total: 4, TakenAt: taken},
	})
	if err != nil {
		t.Fatalf("build workbook: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header + 1 row, got %d", len(rows))
	}
	if rows[0][0] != "result_id" || rows[0][5] != "percentage" {
		t.Fatalf("unexpected header: %v", rows[0])
	}
	want := []string{"11", "alice", "Alice", "3", "4", "75", "2026-03-01 09:30:00"}
	for i, v := range want {
		if rows[1][i] != v {
			t.Fatalf("column %d: expected %q, got %q", i, v, rows[1][i])
		}
	}
}

func TestRenderExportLogsWithComponent(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	svc := NewService(nil, &logger.Logger{SugaredLogger: zap.New(core).Sugar()})

	data, err := svc.renderExport(3, []ResultRow{{ResultID: 1, UserID: 2, Username: "ana", Score: 1, Total: 2, TakenAt: time.Now()}})
	if err != nil || len(data) == 0 {
		t.Fatalf("render export: len=%d err=%v", len(data), err)
	}

	entries := logs.FilterMessage("results exported").All()
	if len(entries) != 1 {
		t.Fatalf("expected one export log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["component"] != "report" || fields["quiz_id"] != int64(3) || fields["rows"] != int64(1) {
		t.Fatalf("unexpected log fields: %v", fields)
	}
}

func TestSummaryHandler(t *testing.T) {
	h := NewHandler(&mockReportService{
		summaryFn: func(ctx context.Context, quizID int64) (*QuizSummary, error) {
			if quizID == 9 {
				return nil, ErrQuizNotFound
			}
			return &QuizSummary{QuizID: quizID, Attempts: 2}, nil
		},
	})

	w := httptest.NewRecorder()
	h.Summary(w, withChiParam(httptest.NewRequest(http.MethodGet, "/", nil), "id", "3"))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["data"].(map[string]interface{})["attempts"] != float64(2) {
		t.Fatalf("unexpected body: %v", body)
	}

	w = httptest.NewRecorder()
	h.Summary(w, withChiParam(httptest.NewRequest(http.MethodGet, "/", nil), "id", "9"))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	h.Summary(w, withChiParam(httptest.NewRequest(http.MethodGet, "/", nil), "id", "x"))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for non-numeric id, got %d", w.Code)
	}
}

func TestExportResultsHandler(t *testing.T) {
	h := NewHandler(&mockReportService{
		exportFn: func(ctx context.Context, quizID int64) ([]byte, error) {
			return []byte("xlsx-bytes"), nil
		},
	})

	w := httptest.NewRecorder()
	h.ExportResults(w, withChiParam(httptest.NewRequest(http.MethodGet, "/", nil), "id", "4"))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != xlsxContentType {
		t.Fatalf("unexpected content type %q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); cd != `attachment; filename="quiz-4-results.xlsx"` {
		t.Fatalf("unexpected disposition %q", cd)
	}
	if w.Body.String() != "xlsx-bytes" {
		t.Fatalf("unexpected body %q", w.Body.String())
	}
}
