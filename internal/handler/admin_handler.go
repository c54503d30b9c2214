package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/learning-journal/internal/errorlog"
)

// ErrorLogService は管理者ダッシュボードのエラーログ一覧を提供する。
type ErrorLogService interface {
	List(ctx context.Context, page, perPage int) (*errorlog.Page, error)
}

var _ ErrorLogService = (*errorlog.Service)(nil)

// AdminHandler は管理者向けのHTTPハンドラー。
type AdminHandler struct {
	responder
	errorLogs ErrorLogService
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(errorLogs ErrorLogService, rec ErrorRecorder) *AdminHandler {
	return &AdminHandler{
		responder: responder{errors: rec},
		errorLogs: errorLogs,
	}
}

type errorLogResponse struct {
	ID        string    `json:"id"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Path      string    `json:"path"`
	Method    string    `json:"method"`
	UserID    string    `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ListErrorLogs はエラーログを新しい順にページ単位で返す。
// GET /api/admin/error-logs?page=1&per_page=50
func (h *AdminHandler) ListErrorLogs(w http.ResponseWriter, r *http.Request) {
	page, err := h.errorLogs.List(r.Context(), queryInt(r, "page", 1), queryInt(r, "per_page", 0))
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	entries := make([]errorLogResponse, len(page.Entries))
	for i, e := range page.Entries {
		entries[i] = errorLogResponse{
			ID:        e.ID,
			Level:     e.Level,
			Message:   e.Message,
			Path:      e.Path,
			Method:    e.Method,
			UserID:    e.UserID,
			CreatedAt: e.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries":  entries,
		"total":    page.Total,
		"page":     page.Page,
		"per_page": page.PerPage,
	})
}
