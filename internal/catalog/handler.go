package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"quizhub/internal/app/apiresp"

	"github.com/go-chi/chi/v5"
)

type catalogService interface {
	ListQuizzes(ctx context.Context) ([]QuizListItem, error)
	GetQuiz(ctx context.Context, quizID int64, firstOnly bool) (*QuizDetail, error)
	ListCategories(ctx context.Context) ([]Category, error)
	CreateCategory(ctx context.Context, name string, parentID *int64) (*Category, error)
	DeleteCategory(ctx context.Context, categoryID int64) error
	CreateQuiz(ctx context.Context, title string, categoryID int64) (*Quiz, error)
	DeleteQuiz(ctx context.Context, quizID int64) error
	CreateQuestion(ctx context.Context, in CreateQuestionInput) (*AdminQuestion, error)
	DeleteQuestion(ctx context.Context, questionID int64) error
	SetChoiceCorrect(ctx context.Context, choiceID int64, isCorrect bool) error
}

type Handler struct {
	svc catalogService
}

type createCategoryRequest struct {
	Name     string `json:"name"`
	ParentID *int64 `json:"parent_id"`
}

type createQuizRequest struct {
	Title      string `json:"title"`
	CategoryID int64  `json:"category_id"`
}

type choiceRequest struct {
	Text        string `json:"text"`
	IsCorrect   bool   `json:"is_correct"`
	Explanation string `json:"explanation"`
}

type createQuestionRequest struct {
	Text               string          `json:"text"`
	CorrectExplanation string          `json:"correct_explanation"`
	Choices            []choiceRequest `json:"choices"`
}

type setCorrectRequest struct {
	IsCorrect *bool `json:"is_correct"`
}

func NewHandler(svc catalogService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) ListQuizzes(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListQuizzes(r.Context())
	if err != nil {
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, items)
}

// GetQuiz serves the quiz-taking form. ?only=first narrows to the first question.
func (h *Handler) GetQuiz(w http.ResponseWriter, r *http.Request) {
	quizID, ok := parseIDParam(w, r, "id", ErrQuizNotFound)
	if !ok {
		return
	}
	firstOnly := strings.EqualFold(strings.TrimSpace(r.URL.Query().Get("only")), "first")

	quiz, err := h.svc.GetQuiz(r.Context(), quizID, firstOnly)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, quiz)
}

func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListCategories(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, items)
}

func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req createCategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	item, err := h.svc.CreateCategory(r.Context(), req.Name, req.ParentID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusCreated, item)
}

func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id", ErrCategoryNotFound)
	if !ok {
		return
	}
	if err := h.svc.DeleteCategory(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, map[string]interface{}{"deleted": id})
}

func (h *Handler) CreateQuiz(w http.ResponseWriter, r *http.Request) {
	var req createQuizRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	item, err := h.svc.CreateQuiz(r.Context(), req.Title, req.CategoryID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusCreated, item)
}

func (h *Handler) DeleteQuiz(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id", ErrQuizNotFound)
	if !ok {
		return
	}
	if err := h.svc.DeleteQuiz(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, map[string]interface{}{"deleted": id})
}

func (h *Handler) CreateQuestion(w http.ResponseWriter, r *http.Request) {
	quizID, ok := parseIDParam(w, r, "id", ErrQuizNotFound)
	if !ok {
		return
	}
	var req createQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	in := CreateQuestionInput{
		QuizID:             quizID,
		Text:               req.Text,
		CorrectExplanation: req.CorrectExplanation,
		Choices:            make([]ChoiceInput, 0, len(req.Choices)),
	}
	for _, c := range req.Choices {
		in.Choices = append(in.Choices, ChoiceInput{Text: c.Text, IsCorrect: c.IsCorrect, Explanation: c.Explanation})
	}

	item, err := h.svc.CreateQuestion(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusCreated, item)
}

func (h *Handler) DeleteQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id", ErrQuestionNotFound)
	if !ok {
		return
	}
	if err := h.svc.DeleteQuestion(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, map[string]interface{}{"deleted": id})
}

func (h *Handler) SetChoiceCorrect(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id", ErrChoiceNotFound)
	if !ok {
		return
	}
	var req setCorrectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IsCorrect == nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "is_correct is required")
		return
	}
	if err := h.svc.SetChoiceCorrect(r.Context(), id, *req.IsCorrect); err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, map[string]interface{}{"choice_id": id, "is_correct": *req.IsCorrect})
}

// parseIDParam treats an id that cannot exist the same as a missing row.
func parseIDParam(w http.ResponseWriter, r *http.Request, name string, notFound error) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		apiresp.WriteError(w, r, http.StatusNotFound, notFound.Error())
		return 0, false
	}
	return id, true
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		apiresp.WriteError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrCategoryNotFound), errors.Is(err, ErrQuizNotFound),
		errors.Is(err, ErrQuestionNotFound), errors.Is(err, ErrChoiceNotFound):
		apiresp.WriteError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrCategoryExists):
		apiresp.WriteError(w, r, http.StatusConflict, err.Error())
	default:
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
	}
}
