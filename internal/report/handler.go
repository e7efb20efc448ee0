package report

import (
	"context"
	"mime"
	"net/http"
	"strconv"

	"examprep/internal/app/apiresp"
	"examprep/internal/attempt"
	"examprep/internal/exam"
)

type Handler struct {
	svc reviewService
}

type reviewService interface {
	Review(ctx context.Context, sessionID string) (*exam.Review, error)
}

func NewHandler(svc reviewService) *Handler {
	return &Handler{svc: svc}
}

// ExportResult streams the caller's session review as an XLSX download.
func (h *Handler) ExportResult(w http.ResponseWriter, r *http.Request) {
	id, ok := attempt.SessionID(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusInternalServerError, "session middleware not installed")
		return
	}
	rv, err := h.svc.Review(r.Context(), id)
	if err != nil {
		attempt.WriteError(w, r, err)
		return
	}
	data, err := ResultWorkbook(rv)
	if err != nil {
		apiresp.WriteError(w, r, http.StatusInternalServerError, "failed to build result workbook")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": rv.ExamID + "-result.xlsx"})
	if disposition == "" {
		disposition = "attachment"
	}
	w.Header().Set("Content-Disposition", disposition)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
