package question

import (
	"context"
	"errors"
	"net/http"

	"examprep/internal/app/apiresp"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc catalogService
}

type catalogService interface {
	ListExams(ctx context.Context) ([]string, error)
	Report(ctx context.Context, examID string) (*LoadReport, error)
}

func NewHandler(svc catalogService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) ListExams(w http.ResponseWriter, r *http.Request) {
	exams, err := h.svc.ListExams(r.Context())
	if err != nil {
		apiresp.WriteError(w, r, http.StatusInternalServerError, "failed to list exams")
		return
	}
	if len(exams) == 0 {
		apiresp.WriteErrorCode(w, r, http.StatusNotFound, "no_exams_found", ErrNoExamsFound.Error())
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, map[string]any{"exams": exams})
}

func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.Report(r.Context(), chi.URLParam(r, "examID"))
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidExamID):
			apiresp.WriteErrorCode(w, r, http.StatusBadRequest, "invalid_exam_id", err.Error())
		case errors.Is(err, ErrExamDataMissing):
			apiresp.WriteErrorCode(w, r, http.StatusNotFound, "exam_data_missing", err.Error())
		case errors.Is(err, ErrMalformedTable):
			apiresp.WriteErrorCode(w, r, http.StatusUnprocessableEntity, "malformed_table", err.Error())
		default:
			apiresp.WriteError(w, r, http.StatusInternalServerError, "failed to load exam")
		}
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, report)
}
