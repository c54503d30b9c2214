package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/learning-journal/internal/middleware"
	"github.com/hitoshi/learning-journal/internal/model"
	"github.com/hitoshi/learning-journal/internal/user"
)

// UserService はユーザーハンドラーが必要とするサービスインターフェース。
type UserService interface {
	GetMe(ctx context.Context, userID string) (*model.User, error)
	GetProfile(ctx context.Context, viewerID, targetID string) (*model.User, error)
	UpdateProfile(ctx context.Context, userID string, in user.ProfileUpdate) (*model.User, error)
	Search(ctx context.Context, query string, limit int) ([]*model.User, error)
	// Withdraw は退会処理を実行する。連携アカウントと学習記録はCASCADE削除される。
	Withdraw(ctx context.Context, userID string) error
}

var _ UserService = (*user.Service)(nil)

// UserHandler はプロフィール・検索・退会のHTTPハンドラー。
type UserHandler struct {
	responder
	service UserService
	cookie  middleware.CookieConfig
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserService, cookie middleware.CookieConfig, rec ErrorRecorder) *UserHandler {
	return &UserHandler{
		responder: responder{errors: rec},
		service:   service,
		cookie:    cookie,
	}
}

type userResponse struct {
	ID                string    `json:"id"`
	Email             string    `json:"email,omitempty"`
	Name              string    `json:"name"`
	Image             string    `json:"image"`
	Bio               string    `json:"bio"`
	Age               *int      `json:"age"`
	IsPublic          bool      `json:"is_public"`
	PrimaryAuthMethod string    `json:"primary_auth_method,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// toUserResponse はユーザーをレスポンスに変換する。
// privateがfalseの場合、メールアドレスと認証方法は含めない。
func toUserResponse(u *model.User, private bool) userResponse {
	if u == nil {
		return userResponse{}
	}
	resp := userResponse{
		ID:        u.ID,
		Name:      u.Name,
		Image:     u.Image,
		Bio:       u.Bio,
		Age:       u.Age,
		IsPublic:  u.IsPublic,
		CreatedAt: u.CreatedAt,
	}
	if private {
		resp.Email = u.Email
		resp.PrimaryAuthMethod = u.PrimaryAuthMethod
	}
	return resp
}

// GetMe は本人のプロフィールを返す。
// GET /api/users/me
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	u, err := h.service.GetMe(r.Context(), userID)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u, true))
}

// updateProfileRequest はプロフィール更新リクエスト。未指定の項目は変更しない。
// ageにnullを指定すると年齢を削除する。
type updateProfileRequest struct {
	Name     *string         `json:"name"`
	Bio      *string         `json:"bio"`
	Age      json.RawMessage `json:"age"`
	Image    *string         `json:"image"`
	IsPublic *bool           `json:"is_public"`
}

func (req updateProfileRequest) toProfileUpdate() (user.ProfileUpdate, error) {
	in := user.ProfileUpdate{
		Name:     req.Name,
		Bio:      req.Bio,
		Image:    req.Image,
		IsPublic: req.IsPublic,
	}
	switch {
	case len(req.Age) == 0:
	case string(req.Age) == "null":
		in.ClearAge = true
	default:
		var age int
		if err := json.Unmarshal(req.Age, &age); err != nil {
			return in, model.NewValidationError("年齢は整数で指定してください。")
		}
		in.Age = &age
	}
	return in, nil
}

// UpdateMe は本人のプロフィールを更新する。
// PUT /api/users/me
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req updateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.serviceError(w, r, err)
		return
	}
	in, err := req.toProfileUpdate()
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	u, err := h.service.UpdateProfile(r.Context(), userID, in)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u, true))
}

// Withdraw は退会処理を実行し、セッションCookieを削除する。
// DELETE /api/users/me
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Withdraw(r.Context(), userID); err != nil {
		h.serviceError(w, r, err)
		return
	}

	middleware.ClearSessionCookie(w, h.cookie)
	w.WriteHeader(http.StatusNoContent)
}

// GetProfile は他ユーザーの公開プロフィールを返す。
// GET /api/users/{id}
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	viewer := viewerID(r)
	u, err := h.service.GetProfile(r.Context(), viewer, chi.URLParam(r, "id"))
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u, u.ID == viewer))
}

// Search は公開ユーザーを検索する。
// GET /api/users/search?q=xxx&limit=20
func (h *UserHandler) Search(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.Search(r.Context(), r.URL.Query().Get("q"), queryInt(r, "limit", 0))
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	results := make([]userResponse, len(users))
	for i, u := range users {
		results[i] = toUserResponse(u, false)
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": results})
}
