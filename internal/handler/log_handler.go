package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/learning-journal/internal/journal"
	"github.com/hitoshi/learning-journal/internal/model"
)

// logDateLayout はlog_dateの入出力形式。
const logDateLayout = "2006-01-02"

type resourceRequest struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

type logRequest struct {
	Title        string            `json:"title"`
	Body         string            `json:"body"`
	LogDate      string            `json:"log_date"`
	MinutesSpent int               `json:"minutes_spent"`
	Tags         []string          `json:"tags"`
	Resources    []resourceRequest `json:"resources"`
}

func (req logRequest) toInput() journal.LogInput {
	resources := make([]journal.ResourceInput, len(req.Resources))
	for i, res := range req.Resources {
		resources[i] = journal.ResourceInput{URL: res.URL, Title: res.Title}
	}
	return journal.LogInput{
		Title:        req.Title,
		Body:         req.Body,
		LogDate:      req.LogDate,
		MinutesSpent: req.MinutesSpent,
		Tags:         req.Tags,
		Resources:    resources,
	}
}

type resourceResponse struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

type logResponse struct {
	ID           string             `json:"id"`
	UnitID       string             `json:"unit_id"`
	UserID       string             `json:"user_id"`
	Title        string             `json:"title"`
	Body         string             `json:"body"`
	LogDate      string             `json:"log_date"`
	MinutesSpent int                `json:"minutes_spent"`
	Tags         []string           `json:"tags"`
	Resources    []resourceResponse `json:"resources"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

func toLogResponse(l *model.Log) logResponse {
	tags := l.Tags
	if tags == nil {
		tags = []string{}
	}
	resources := make([]resourceResponse, len(l.Resources))
	for i, res := range l.Resources {
		resources[i] = resourceResponse{ID: res.ID, URL: res.URL, Title: res.Title}
	}
	return logResponse{
		ID:           l.ID,
		UnitID:       l.UnitID,
		UserID:       l.UserID,
		Title:        l.Title,
		Body:         l.Body,
		LogDate:      l.LogDate.Format(logDateLayout),
		MinutesSpent: l.MinutesSpent,
		Tags:         tags,
		Resources:    resources,
		CreatedAt:    l.CreatedAt,
		UpdatedAt:    l.UpdatedAt,
	}
}

// ListLogs はユニットのログ一覧を返す。
// GET /api/units/{id}/logs
func (h *JournalHandler) ListLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := h.service.ListLogs(r.Context(), viewerID(r), chi.URLParam(r, "id"))
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	results := make([]logResponse, len(logs))
	totalMinutes := 0
	for i, l := range logs {
		results[i] = toLogResponse(l)
		totalMinutes += l.MinutesSpent
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"logs":          results,
		"total_minutes": totalMinutes,
	})
}

// CreateLog はユニットにログを追加する。
// POST /api/units/{id}/logs
func (h *JournalHandler) CreateLog(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req logRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.serviceError(w, r, err)
		return
	}

	log, err := h.service.CreateLog(r.Context(), userID, chi.URLParam(r, "id"), req.toInput())
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLogResponse(log))
}

// GetLog はログを返す。
// GET /api/logs/{id}
func (h *JournalHandler) GetLog(w http.ResponseWriter, r *http.Request) {
	log, err := h.service.GetLog(r.Context(), viewerID(r), chi.URLParam(r, "id"))
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLogResponse(log))
}

// UpdateLog はログを更新する。
// PUT /api/logs/{id}
func (h *JournalHandler) UpdateLog(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req logRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.serviceError(w, r, err)
		return
	}

	log, err := h.service.UpdateLog(r.Context(), userID, chi.URLParam(r, "id"), req.toInput())
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLogResponse(log))
}

// DeleteLog はログを削除する。
// DELETE /api/logs/{id}
func (h *JournalHandler) DeleteLog(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteLog(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		h.serviceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
