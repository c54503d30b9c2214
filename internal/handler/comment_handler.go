package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/learning-journal/internal/model"
)

type commentRequest struct {
	Body string `json:"body"`
}

type commentResponse struct {
	ID        string    `json:"id"`
	UnitID    string    `json:"unit_id"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

func toCommentResponse(c *model.Comment) commentResponse {
	return commentResponse{
		ID:        c.ID,
		UnitID:    c.UnitID,
		UserID:    c.UserID,
		UserName:  c.UserName,
		Body:      c.Body,
		CreatedAt: c.CreatedAt,
	}
}

// ListComments はユニットのコメント一覧を返す。
// GET /api/units/{id}/comments
func (h *JournalHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	comments, err := h.service.ListComments(r.Context(), viewerID(r), chi.URLParam(r, "id"))
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	results := make([]commentResponse, len(comments))
	for i, c := range comments {
		results[i] = toCommentResponse(c)
	}
	writeJSON(w, http.StatusOK, map[string]any{"comments": results})
}

// AddComment はユニットにコメントを投稿する。
// POST /api/units/{id}/comments
func (h *JournalHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req commentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.serviceError(w, r, err)
		return
	}

	comment, err := h.service.AddComment(r.Context(), userID, chi.URLParam(r, "id"), req.Body)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCommentResponse(comment))
}

// DeleteComment はコメントを削除する。
// DELETE /api/comments/{id}
func (h *JournalHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteComment(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		h.serviceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
