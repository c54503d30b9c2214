package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/learning-journal/internal/auth"
	"github.com/hitoshi/learning-journal/internal/middleware"
)

// MethodService は認証手段の管理に必要なサービスインターフェース。
type MethodService interface {
	ListMethods(ctx context.Context, userID string) (*auth.AuthMethods, error)
	SetPassword(ctx context.Context, userID, password string) error
	ChangePassword(ctx context.Context, userID, current, newPassword, confirm string) error
	UnlinkProvider(ctx context.Context, userID, provider string) (*auth.AuthMethods, error)
}

var _ MethodService = (*auth.MethodRegistry)(nil)

// SessionReissuer は認証手段の変更後にセッショントークンを発行し直す。
type SessionReissuer interface {
	Reissue(ctx context.Context, userID string) (*auth.Session, error)
}

// AccountHandler はパスワード設定・変更とプロバイダー連携解除のHTTPハンドラー。
type AccountHandler struct {
	responder
	methods  MethodService
	sessions SessionReissuer
	cookie   middleware.CookieConfig
}

// NewAccountHandler はAccountHandlerを生成する。
func NewAccountHandler(methods MethodService, sessions SessionReissuer, cookie middleware.CookieConfig, rec ErrorRecorder) *AccountHandler {
	return &AccountHandler{
		responder: responder{errors: rec},
		methods:   methods,
		sessions:  sessions,
		cookie:    cookie,
	}
}

type methodsResponse struct {
	HasPassword bool     `json:"has_password"`
	Providers   []string `json:"providers"`
	Primary     string   `json:"primary_auth_method"`
}

func toMethodsResponse(m *auth.AuthMethods) methodsResponse {
	providers := m.Providers
	if providers == nil {
		providers = []string{}
	}
	return methodsResponse{
		HasPassword: m.HasPassword,
		Providers:   providers,
		Primary:     m.Primary,
	}
}

// ListMethods はユーザーの認証手段を返す。
// GET /api/account/methods
func (h *AccountHandler) ListMethods(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	methods, err := h.methods.ListMethods(r.Context(), userID)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMethodsResponse(methods))
}

type setPasswordRequest struct {
	Password string `json:"password"`
}

// SetPassword は初回パスワードを設定する。
// POST /api/account/password
func (h *AccountHandler) SetPassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req setPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.serviceError(w, r, err)
		return
	}

	if err := h.methods.SetPassword(r.Context(), userID, req.Password); err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.respondWithMethods(w, r, userID)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// ChangePassword はパスワードを変更する。
// PUT /api/account/password
func (h *AccountHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.serviceError(w, r, err)
		return
	}

	if err := h.methods.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword, req.ConfirmPassword); err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.respondWithMethods(w, r, userID)
}

// UnlinkProvider はプロバイダー連携を解除する。
// DELETE /api/account/providers/{provider}
func (h *AccountHandler) UnlinkProvider(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	methods, err := h.methods.UnlinkProvider(r.Context(), userID, chi.URLParam(r, "provider"))
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.reissue(r.Context(), w, userID)
	writeJSON(w, http.StatusOK, toMethodsResponse(methods))
}

// respondWithMethods はセッションを再発行し、最新の認証手段を返す。
func (h *AccountHandler) respondWithMethods(w http.ResponseWriter, r *http.Request, userID string) {
	h.reissue(r.Context(), w, userID)
	methods, err := h.methods.ListMethods(r.Context(), userID)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMethodsResponse(methods))
}

// reissue はprimary_auth_methodの変更をセッションCookieに反映する。
// 失敗しても変更自体は完了しているため、警告ログのみ残す。
func (h *AccountHandler) reissue(ctx context.Context, w http.ResponseWriter, userID string) {
	if h.sessions == nil {
		return
	}
	session, err := h.sessions.Reissue(ctx, userID)
	if err != nil {
		slog.Warn("failed to reissue session after auth method change",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return
	}
	middleware.SetSessionCookie(w, h.cookie, session.Token, session.ExpiresAt)
}
