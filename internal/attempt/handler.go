package attempt

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"examprep/internal/app/apiresp"
	"examprep/internal/exam"
	"examprep/internal/question"

	"github.com/go-chi/chi/v5"
)

type contextKey string

const sessionContextKey contextKey = "quiz_session"

const SessionCookieName = "examprep_session"

type Handler struct {
	svc attemptService
}

type attemptService interface {
	StartSession() string
	HasSession(sessionID string) bool
	SelectExam(ctx context.Context, sessionID, examID string) (*exam.View, error)
	Current(ctx context.Context, sessionID string) (*exam.View, error)
	JumpTo(ctx context.Context, sessionID string, questionNo int) (*exam.View, error)
	Next(ctx context.Context, sessionID string) (*exam.View, error)
	Previous(ctx context.Context, sessionID string) (*exam.View, error)
	Reset(ctx context.Context, sessionID string) (*exam.View, error)
	Submit(ctx context.Context, sessionID, option string) (*SubmitResult, error)
	Finish(ctx context.Context, sessionID string) (*FinishResult, error)
	Result(ctx context.Context, sessionID string) (*exam.Grade, error)
	Review(ctx context.Context, sessionID string) (*exam.Review, error)
	ImagePath(ctx context.Context, sessionID string, questionNo int) (string, error)
}

type selectExamRequest struct {
	ExamID string `json:"exam_id"`
}

type submitAnswerRequest struct {
	Option string `json:"option"`
}

func NewHandler(svc attemptService) *Handler {
	return &Handler{svc: svc}
}

// Session attaches the caller's quiz session to the request context. A
// missing or unknown cookie gets a fresh session.
func (h *Handler) Session(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := readSessionID(r)
		if id == "" || !h.svc.HasSession(id) {
			id = h.svc.StartSession()
			http.SetCookie(w, &http.Cookie{
				Name:     SessionCookieName,
				Value:    id,
				Path:     "/",
				HttpOnly: true,
				Secure:   false,
				SameSite: http.SameSiteLaxMode,
			})
		}
		next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), id)))
	})
}

func SessionID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionContextKey).(string)
	return id, ok && id != ""
}

// ContextWithSession injects a session id into context.
// Useful for tests.
func ContextWithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionContextKey, sessionID)
}

func (h *Handler) SelectExam(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionOrFail(w, r)
	if !ok {
		return
	}
	var req selectExamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ExamID == "" {
		apiresp.WriteErrorCode(w, r, http.StatusBadRequest, "invalid_exam_id", "exam_id is required")
		return
	}
	v, err := h.svc.SelectExam(r.Context(), id, req.ExamID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, v)
}

func (h *Handler) Current(w http.ResponseWriter, r *http.Request) {
	h.viewAction(w, r, h.svc.Current)
}

func (h *Handler) Next(w http.ResponseWriter, r *http.Request) {
	h.viewAction(w, r, h.svc.Next)
}

func (h *Handler) Previous(w http.ResponseWriter, r *http.Request) {
	h.viewAction(w, r, h.svc.Previous)
}

func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	h.viewAction(w, r, h.svc.Reset)
}

func (h *Handler) JumpTo(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionOrFail(w, r)
	if !ok {
		return
	}
	no, ok := parseQuestionNo(w, r)
	if !ok {
		return
	}
	v, err := h.svc.JumpTo(r.Context(), id, no)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, v)
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionOrFail(w, r)
	if !ok {
		return
	}
	var req submitAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	out, err := h.svc.Submit(r.Context(), id, req.Option)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, out)
}

func (h *Handler) Finish(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionOrFail(w, r)
	if !ok {
		return
	}
	out, err := h.svc.Finish(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, out)
}

func (h *Handler) Result(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionOrFail(w, r)
	if !ok {
		return
	}
	g, err := h.svc.Result(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, g)
}

func (h *Handler) Review(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionOrFail(w, r)
	if !ok {
		return
	}
	rv, err := h.svc.Review(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, rv)
}

func (h *Handler) Image(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionOrFail(w, r)
	if !ok {
		return
	}
	no, ok := parseQuestionNo(w, r)
	if !ok {
		return
	}
	path, err := h.svc.ImagePath(r.Context(), id, no)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "private, max-age=300")
	http.ServeFile(w, r, path)
}

func (h *Handler) viewAction(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, sessionID string) (*exam.View, error)) {
	id, ok := h.sessionOrFail(w, r)
	if !ok {
		return
	}
	v, err := fn(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, v)
}

func (h *Handler) sessionOrFail(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := SessionID(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusInternalServerError, "session middleware not installed")
		return "", false
	}
	return id, true
}

func parseQuestionNo(w http.ResponseWriter, r *http.Request) (int, bool) {
	no, err := strconv.Atoi(chi.URLParam(r, "questionNo"))
	if err != nil {
		apiresp.WriteErrorCode(w, r, http.StatusBadRequest, "invalid_question_no", "invalid question number")
		return 0, false
	}
	return no, true
}

func readSessionID(r *http.Request) string {
	c, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// WriteError maps a quiz error to its status and envelope code.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	writeServiceError(w, r, err)
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusForError(err)
	if status == http.StatusInternalServerError {
		apiresp.WriteError(w, r, status, "internal error")
		return
	}
	apiresp.WriteErrorCode(w, r, status, code, err.Error())
}

func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, question.ErrInvalidExamID):
		return http.StatusBadRequest, "invalid_exam_id"
	case errors.Is(err, question.ErrExamDataMissing):
		return http.StatusNotFound, "exam_data_missing"
	case errors.Is(err, question.ErrMalformedTable):
		return http.StatusUnprocessableEntity, "malformed_table"
	case errors.Is(err, exam.ErrNoQuestions):
		return http.StatusUnprocessableEntity, "no_questions"
	case errors.Is(err, exam.ErrInvalidSelection):
		return http.StatusBadRequest, "invalid_selection"
	case errors.Is(err, exam.ErrQuestionOutOfRange):
		return http.StatusBadRequest, "question_out_of_range"
	case errors.Is(err, exam.ErrAlreadyLocked):
		return http.StatusConflict, "already_locked"
	case errors.Is(err, exam.ErrNoExamSelected):
		return http.StatusConflict, "no_exam_selected"
	case errors.Is(err, exam.ErrSessionFinished):
		return http.StatusConflict, "session_finished"
	case errors.Is(err, ErrSessionExpired):
		return http.StatusGone, "session_expired"
	case errors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound, "session_not_found"
	case errors.Is(err, ErrImageNotFound):
		return http.StatusNotFound, "image_not_found"
	default:
		return http.StatusInternalServerError, ""
	}
}
