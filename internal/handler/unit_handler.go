package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/learning-journal/internal/journal"
	"github.com/hitoshi/learning-journal/internal/model"
)

// JournalService はユニット・ログ・コメント・いいねのハンドラーが必要とするサービスインターフェース。
type JournalService interface {
	CreateUnit(ctx context.Context, userID string, in journal.UnitInput) (*model.Unit, error)
	GetUnit(ctx context.Context, viewerID, unitID string) (*journal.UnitDetail, error)
	ListUnits(ctx context.Context, viewerID, ownerID string) ([]model.UnitSummary, error)
	UpdateUnit(ctx context.Context, userID, unitID string, in journal.UnitInput) (*model.Unit, error)
	DeleteUnit(ctx context.Context, userID, unitID string) error

	Like(ctx context.Context, userID, unitID string) (int, error)
	Unlike(ctx context.Context, userID, unitID string) (int, error)
	ListComments(ctx context.Context, viewerID, unitID string) ([]*model.Comment, error)
	AddComment(ctx context.Context, userID, unitID, body string) (*model.Comment, error)
	DeleteComment(ctx context.Context, userID, commentID string) error

	CreateLog(ctx context.Context, userID, unitID string, in journal.LogInput) (*model.Log, error)
	GetLog(ctx context.Context, viewerID, logID string) (*model.Log, error)
	ListLogs(ctx context.Context, viewerID, unitID string) ([]*model.Log, error)
	UpdateLog(ctx context.Context, userID, logID string, in journal.LogInput) (*model.Log, error)
	DeleteLog(ctx context.Context, userID, logID string) error
}

var _ JournalService = (*journal.Service)(nil)

// JournalHandler はユニット・ログ・コメント・いいねのHTTPハンドラー。
type JournalHandler struct {
	responder
	service JournalService
}

// NewJournalHandler はJournalHandlerを生成する。
func NewJournalHandler(service JournalService, rec ErrorRecorder) *JournalHandler {
	return &JournalHandler{
		responder: responder{errors: rec},
		service:   service,
	}
}

type unitRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	IsPublic    *bool    `json:"is_public"`
	Tags        []string `json:"tags"`
}

func (req unitRequest) toInput() journal.UnitInput {
	return journal.UnitInput{
		Title:       req.Title,
		Description: req.Description,
		IsPublic:    req.IsPublic,
		Tags:        req.Tags,
	}
}

type unitResponse struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	IsPublic     bool      `json:"is_public"`
	Tags         []string  `json:"tags"`
	LikeCount    int       `json:"like_count"`
	CommentCount *int      `json:"comment_count,omitempty"`
	LikedByMe    *bool     `json:"liked_by_me,omitempty"`
	IsOwner      *bool     `json:"is_owner,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toUnitResponse(u *model.Unit) unitResponse {
	tags := u.Tags
	if tags == nil {
		tags = []string{}
	}
	return unitResponse{
		ID:          u.ID,
		UserID:      u.UserID,
		Title:       u.Title,
		Description: u.Description,
		IsPublic:    u.IsPublic,
		Tags:        tags,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

func toUnitSummaryResponse(s model.UnitSummary) unitResponse {
	resp := toUnitResponse(&s.Unit)
	resp.LikeCount = s.LikeCount
	commentCount, likedByMe := s.CommentCount, s.LikedByMe
	resp.CommentCount = &commentCount
	resp.LikedByMe = &likedByMe
	return resp
}

// ListMyUnits は本人のユニット一覧（非公開を含む）を返す。
// GET /api/units
func (h *JournalHandler) ListMyUnits(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	h.writeUnitList(w, r, userID, userID)
}

// ListUserUnits は指定ユーザーのユニット一覧を返す。本人以外には公開ユニットのみ。
// GET /api/users/{id}/units
func (h *JournalHandler) ListUserUnits(w http.ResponseWriter, r *http.Request) {
	h.writeUnitList(w, r, viewerID(r), chi.URLParam(r, "id"))
}

func (h *JournalHandler) writeUnitList(w http.ResponseWriter, r *http.Request, viewer, owner string) {
	units, err := h.service.ListUnits(r.Context(), viewer, owner)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	results := make([]unitResponse, len(units))
	for i, u := range units {
		results[i] = toUnitSummaryResponse(u)
	}
	writeJSON(w, http.StatusOK, map[string]any{"units": results})
}

// CreateUnit はユニットを作成する。
// POST /api/units
func (h *JournalHandler) CreateUnit(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req unitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.serviceError(w, r, err)
		return
	}

	unit, err := h.service.CreateUnit(r.Context(), userID, req.toInput())
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUnitResponse(unit))
}

// GetUnit はユニット詳細を返す。
// GET /api/units/{id}
func (h *JournalHandler) GetUnit(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.GetUnit(r.Context(), viewerID(r), chi.URLParam(r, "id"))
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	resp := toUnitResponse(detail.Unit)
	resp.LikeCount = detail.LikeCount
	isOwner := detail.IsOwner
	resp.IsOwner = &isOwner
	writeJSON(w, http.StatusOK, resp)
}

// UpdateUnit はユニットを更新する。
// PUT /api/units/{id}
func (h *JournalHandler) UpdateUnit(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req unitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.serviceError(w, r, err)
		return
	}

	unit, err := h.service.UpdateUnit(r.Context(), userID, chi.URLParam(r, "id"), req.toInput())
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUnitResponse(unit))
}

// DeleteUnit はユニットを削除する。
// DELETE /api/units/{id}
func (h *JournalHandler) DeleteUnit(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteUnit(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		h.serviceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type likeResponse struct {
	LikeCount int  `json:"like_count"`
	LikedByMe bool `json:"liked_by_me"`
}

// Like はユニットにいいねする。
// POST /api/units/{id}/like
func (h *JournalHandler) Like(w http.ResponseWriter, r *http.Request) {
	h.toggleLike(w, r, true)
}

// Unlike はいいねを取り消す。
// DELETE /api/units/{id}/like
func (h *JournalHandler) Unlike(w http.ResponseWriter, r *http.Request) {
	h.toggleLike(w, r, false)
}

func (h *JournalHandler) toggleLike(w http.ResponseWriter, r *http.Request, like bool) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	op := h.service.Unlike
	if like {
		op = h.service.Like
	}
	count, err := op(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, likeResponse{LikeCount: count, LikedByMe: like})
}
