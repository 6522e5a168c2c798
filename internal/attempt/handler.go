package attempt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"quizhub/internal/app/apiresp"
	"quizhub/internal/auth"

	"github.com/go-chi/chi/v5"
)

const formQuestionPrefix = "question_"

type attemptService interface {
	Submit(ctx context.Context, userID, quizID int64, answers map[int64]int64) (*Result, error)
	GetResultOwner(ctx context.Context, resultID int64) (int64, error)
	GetResult(ctx context.Context, resultID int64) (*ResultView, error)
	ListResults(ctx context.Context, userID int64) ([]Result, error)
	AnswerMap(ctx context.Context, resultID int64) (map[int64]int64, error)
}

type Handler struct {
	svc attemptService
}

type submitRequest struct {
	Answers map[string]json.RawMessage `json:"answers"`
}

type emptyQuizResponse struct {
	Status  string `json:"status"`
	QuizID  int64  `json:"quiz_id"`
	Message string `json:"message"`
}

func NewHandler(svc attemptService) *Handler {
	return &Handler{svc: svc}
}

// ResultPath is the canonical URL of a stored result.
func ResultPath(resultID int64) string {
	return fmt.Sprintf("/api/v1/results/%d", resultID)
}

// Submit accepts either a JSON body {"answers": {"<question id>": <choice id>}}
// or a form post with question_<id>=<choice id> fields.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}

	quizID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || quizID <= 0 {
		apiresp.WriteError(w, r, http.StatusNotFound, ErrQuizNotFound.Error())
		return
	}

	jsonBody := isJSONRequest(r)
	var answers map[int64]int64
	if jsonBody {
		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
			return
		}
		answers = parseJSONAnswers(req.Answers)
	} else {
		if err := r.ParseForm(); err != nil {
			apiresp.WriteError(w, r, http.StatusBadRequest, "invalid form body")
			return
		}
		answers = parseFormAnswers(r.PostForm)
	}

	res, err := h.svc.Submit(r.Context(), user.ID, quizID, answers)
	if err != nil {
		if errors.Is(err, ErrEmptyQuiz) {
			apiresp.WriteOK(w, r, http.StatusOK, emptyQuizResponse{
				Status:  "empty_quiz",
				QuizID:  quizID,
				Message: "this quiz has no questions yet",
			})
			return
		}
		writeServiceError(w, r, err)
		return
	}

	location := ResultPath(res.ID)
	if !jsonBody {
		http.Redirect(w, r, location, http.StatusSeeOther)
		return
	}
	w.Header().Set("Location", location)
	apiresp.WriteOK(w, r, http.StatusCreated, res)
}

func (h *Handler) Result(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	resultID, ok := parseResultID(w, r)
	if !ok {
		return
	}
	if err := h.authorizeResultAccess(r, user, resultID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	view, err := h.svc.GetResult(r.Context(), resultID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, view)
}

func (h *Handler) Answers(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	resultID, ok := parseResultID(w, r)
	if !ok {
		return
	}
	if err := h.authorizeResultAccess(r, user, resultID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	answers, err := h.svc.AnswerMap(r.Context(), resultID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, answers)
}

func (h *Handler) MyResults(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	items, err := h.svc.ListResults(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, items)
}

// authorizeResultAccess hides results from anyone but their owner and staff.
// A foreign result is reported as missing.
func (h *Handler) authorizeResultAccess(r *http.Request, user *auth.User, resultID int64) error {
	if user.IsStaff() {
		return nil
	}
	ownerID, err := h.svc.GetResultOwner(r.Context(), resultID)
	if err != nil {
		return err
	}
	if ownerID != user.ID {
		return ErrResultNotFound
	}
	return nil
}

func parseResultID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		apiresp.WriteError(w, r, http.StatusNotFound, ErrResultNotFound.Error())
		return 0, false
	}
	return id, true
}

func isJSONRequest(r *http.Request) bool {
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	return strings.HasPrefix(strings.TrimSpace(ct), "application/json")
}

func parseJSONAnswers(raw map[string]json.RawMessage) map[int64]int64 {
	out := make(map[int64]int64, len(raw))
	for k, v := range raw {
		questionID, err := strconv.ParseInt(strings.TrimSpace(k), 10, 64)
		if err != nil || questionID <= 0 {
			continue
		}
		choiceID, err := strconv.ParseInt(strings.Trim(strings.TrimSpace(string(v)), `"`), 10, 64)
		if err != nil || choiceID <= 0 {
			continue
		}
		out[questionID] = choiceID
	}
	return out
}

func parseFormAnswers(form map[string][]string) map[int64]int64 {
	out := make(map[int64]int64)
	for k, vals := range form {
		if !strings.HasPrefix(k, formQuestionPrefix) || len(vals) == 0 {
			continue
		}
		questionID, err := strconv.ParseInt(strings.TrimPrefix(k, formQuestionPrefix), 10, 64)
		if err != nil || questionID <= 0 {
			continue
		}
		choiceID, err := strconv.ParseInt(strings.TrimSpace(vals[0]), 10, 64)
		if err != nil || choiceID <= 0 {
			continue
		}
		out[questionID] = choiceID
	}
	return out
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		apiresp.WriteError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrQuizNotFound), errors.Is(err, ErrResultNotFound):
		apiresp.WriteError(w, r, http.StatusNotFound, err.Error())
	default:
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
	}
}
