package attempt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"quizhub/internal/auth"

	"github.com/go-chi/chi/v5"
)

type mockAttemptService struct {
	submitFn         func(ctx context.Context, userID, quizID int64, answers map[int64]int64) (*Result, error)
	getResultOwnerFn func(ctx context.Context, resultID int64) (int64, error)
	getResultFn      func(ctx context.Context, resultID int64) (*ResultView, error)
	listResultsFn    func(ctx context.Context, userID int64) ([]Result, error)
	answerMapFn      func(ctx context.Context, resultID int64) (map[int64]int64, error)
}

func (m *mockAttemptService) Submit(ctx context.Context, userID, quizID int64, answers map[int64]int64) (*Result, error) {
	if m.submitFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.submitFn(ctx, userID, quizID, answers)
}

func (m *mockAttemptService) GetResultOwner(ctx context.Context, resultID int64) (int64, error) {
	if m.getResultOwnerFn == nil {
		return 0, errors.New("not implemented")
	}
	return m.getResultOwnerFn(ctx, resultID)
}

func (m *mockAttemptService) GetResult(ctx context.Context, resultID int64) (*ResultView, error) {
	if m.getResultFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.getResultFn(ctx, resultID)
}

func (m *mockAttemptService) ListResults(ctx context.Context, userID int64) ([]Result, error) {
	if m.listResultsFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.listResultsFn(ctx, userID)
}

func (m *mockAttemptService) AnswerMap(ctx context.Context, resultID int64) (map[int64]int64, error) {
	if m.answerMapFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.answerMapFn(ctx, resultID)
}

func withChiParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func withUser(r *http.Request, id int64, role string) *http.Request {
	return r.WithContext(auth.ContextWithUser(r.Context(), &auth.User{ID: id, Username: "u", Role: role, IsActive: true}))
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestSubmitJSONReturnsCreatedWithLocation(t *testing.T) {
	var got map[int64]int64
	h := NewHandler(&mockAttemptService{
		submitFn: func(ctx context.Context, userID, quizID int64, answers map[int64]int64) (*Result, error) {
			if userID != 7 || quizID != 3 {
				t.Fatalf("unexpected ids user=%d quiz=%d", userID, quizID)
			}
			got = answers
			return &Result{ID: 55, UserID: userID, QuizID: quizID, Score: 1, Total: 2, TakenAt: time.Now()}, nil
		},
	})

	body := []byte(`{"answers":{"10":101,"20":"200","x":5,"30":"abc"}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/quizzes/3/submit", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req = withUser(withChiParam(req, "id", "3"), 7, auth.RoleUser)
	w := httptest.NewRecorder()

	h.Submit(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", w.Code, w.Body.String())
	}
	if loc := w.Header().Get("Location"); loc != "/api/v1/results/55" {
		t.Fatalf("unexpected Location %q", loc)
	}
	if len(got) != 2 || got[10] != 101 || got[20] != 200 {
		t.Fatalf("unexpected parsed answers: %v", got)
	}
}

func TestSubmitFormRedirectsToResult(t *testing.T) {
	var got map[int64]int64
	h := NewHandler(&mockAttemptService{
		submitFn: func(ctx context.Context, userID, quizID int64, answers map[int64]int64) (*Result, error) {
			got = answers
			return &Result{ID: 9}, nil
		},
	})

	form := url.Values{}
	form.Set("question_10", "101")
	form.Set("question_bad", "1")
	form.Set("question_20", "")
	form.Set("csrf", "token")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/quizzes/3/submit", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req = withUser(withChiParam(req, "id", "3"), 7, auth.RoleUser)
	w := httptest.NewRecorder()

	h.Submit(w, req)

	if w.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/api/v1/results/9" {
		t.Fatalf("unexpected Location %q", loc)
	}
	if len(got) != 1 || got[10] != 101 {
		t.Fatalf("unexpected parsed answers: %v", got)
	}
}

func TestSubmitEmptyQuizRecordsNothing(t *testing.T) {
	h := NewHandler(&mockAttemptService{
		submitFn: func(ctx context.Context, userID, quizID int64, answers map[int64]int64) (*Result, error) {
			return nil, ErrEmptyQuiz
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/quizzes/4/submit", strings.NewReader(`{"answers":{}}`))
	req.Header.Set("Content-Type", "application/json")
	req = withUser(withChiParam(req, "id", "4"), 7, auth.RoleUser)
	w := httptest.NewRecorder()

	h.Submit(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Header().Get("Location") != "" {
		t.Fatalf("empty quiz must not point to a result")
	}
	data := decodeBody(t, w)["data"].(map[string]interface{})
	if data["status"] != "empty_quiz" {
		t.Fatalf("expected empty_quiz status, got %v", data["status"])
	}
}

func TestSubmitErrors(t *testing.T) {
	tests := []struct {
		name   string
		param  string
		body   string
		err    error
		status int
	}{
		{name: "non-numeric quiz id", param: "abc", body: `{}`, status: http.StatusNotFound},
		{name: "zero quiz id", param: "0", body: `{}`, status: http.StatusNotFound},
		{name: "bad json", param: "1", body: `{`, status: http.StatusBadRequest},
		{name: "missing quiz", param: "1", body: `{"answers":{}}`, err: ErrQuizNotFound, status: http.StatusNotFound},
		{name: "storage failure", param: "1", body: `{"answers":{}}`, err: errors.New("boom"), status: http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandler(&mockAttemptService{
				submitFn: func(ctx context.Context, userID, quizID int64, answers map[int64]int64) (*Result, error) {
					return nil, tc.err
				},
			})
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			req = withUser(withChiParam(req, "id", tc.param), 7, auth.RoleUser)
			w := httptest.NewRecorder()

			h.Submit(w, req)

			if w.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, w.Code)
			}
		})
	}
}

func TestSubmitRequiresUser(t *testing.T) {
	h := NewHandler(&mockAttemptService{})
	req := withChiParam(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`)), "id", "1")
	w := httptest.NewRecorder()

	h.Submit(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestResultAccess(t *testing.T) {
	const ownerID = 7
	svc := &mockAttemptService{
		getResultOwnerFn: func(ctx context.Context, resultID int64) (int64, error) {
			if resultID == 404 {
				return 0, ErrResultNotFound
			}
			return ownerID, nil
		},
		getResultFn: func(ctx context.Context, resultID int64) (*ResultView, error) {
			if resultID == 404 {
				return nil, ErrResultNotFound
			}
			return &ResultView{Result: Result{ID: resultID, UserID: ownerID, Score: 1, Total: 1}}, nil
		},
	}

	tests := []struct {
		name   string
		userID int64
		role   string
		param  string
		status int
	}{
		{name: "owner", userID: ownerID, role: auth.RoleUser, param: "5", status: http.StatusOK},
		{name: "other user sees not found", userID: 8, role: auth.RoleUser, param: "5", status: http.StatusNotFound},
		{name: "staff", userID: 1, role: auth.RoleStaff, param: "5", status: http.StatusOK},
		{name: "missing", userID: ownerID, role: auth.RoleUser, param: "404", status: http.StatusNotFound},
		{name: "staff missing", userID: 1, role: auth.RoleStaff, param: "404", status: http.StatusNotFound},
		{name: "zero id", userID: ownerID, role: auth.RoleUser, param: "0", status: http.StatusNotFound},
		{name: "non-numeric id", userID: ownerID, role: auth.RoleUser, param: "abc", status: http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandler(svc)
			req := withUser(withChiParam(httptest.NewRequest(http.MethodGet, "/", nil), "id", tc.param), tc.userID, tc.role)
			w := httptest.NewRecorder()

			h.Result(w, req)

			if w.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, w.Code)
			}
		})
	}
}

func TestForeignResultLooksMissing(t *testing.T) {
	h := NewHandler(&mockAttemptService{
		getResultOwnerFn: func(ctx context.Context, resultID int64) (int64, error) {
			if resultID == 5 {
				return 7, nil
			}
			return 0, ErrResultNotFound
		},
	})

	foreign := httptest.NewRecorder()
	h.Result(foreign, withUser(withChiParam(httptest.NewRequest(http.MethodGet, "/", nil), "id", "5"), 8, auth.RoleUser))
	missing := httptest.NewRecorder()
	h.Result(missing, withUser(withChiParam(httptest.NewRequest(http.MethodGet, "/", nil), "id", "6"), 8, auth.RoleUser))

	if foreign.Code != missing.Code {
		t.Fatalf("foreign (%d) and missing (%d) results must be indistinguishable", foreign.Code, missing.Code)
	}
	fe := decodeBody(t, foreign)["error"].(map[string]interface{})
	me := decodeBody(t, missing)["error"].(map[string]interface{})
	if fe["message"] != me["message"] {
		t.Fatalf("error messages differ: %v vs %v", fe["message"], me["message"])
	}
}

func TestAnswersReturnsMap(t *testing.T) {
	h := NewHandler(&mockAttemptService{
		getResultOwnerFn: func(ctx context.Context, resultID int64) (int64, error) { return 7, nil },
		answerMapFn: func(ctx context.Context, resultID int64) (map[int64]int64, error) {
			return map[int64]int64{10: 101}, nil
		},
	})

	w := httptest.NewRecorder()
	h.Answers(w, withUser(withChiParam(httptest.NewRequest(http.MethodGet, "/", nil), "id", "5"), 7, auth.RoleUser))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	data := decodeBody(t, w)["data"].(map[string]interface{})
	if data["10"] != float64(101) {
		t.Fatalf("unexpected answer map: %v", data)
	}
}

func TestMyResultsUsesCurrentUser(t *testing.T) {
	h := NewHandler(&mockAttemptService{
		listResultsFn: func(ctx context.Context, userID int64) ([]Result, error) {
			if userID != 7 {
				t.Fatalf("expected user 7, got %d", userID)
			}
			return []Result{{ID: 2}, {ID: 1}}, nil
		},
	})

	w := httptest.NewRecorder()
	h.MyResults(w, withUser(httptest.NewRequest(http.MethodGet, "/", nil), 7, auth.RoleUser))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if items := decodeBody(t, w)["data"].([]interface{}); len(items) != 2 {
		t.Fatalf("expected 2 results, got %d", len(items))
	}
}
