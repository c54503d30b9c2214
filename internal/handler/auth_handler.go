package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/learning-journal/internal/auth"
	"github.com/hitoshi/learning-journal/internal/middleware"
	"github.com/hitoshi/learning-journal/internal/model"
)

const (
	oauthStateCookie = "oauth_state"
	oauthStateMaxAge = 10 * time.Minute
)

// AuthService は認証ハンドラーが必要とするサービスインターフェース。
type AuthService interface {
	Providers() []string
	GetLoginURL(provider, state string) (string, error)
	HandleCallback(ctx context.Context, provider, code string) (*auth.Session, error)
	Login(ctx context.Context, email, password string) (*auth.Session, error)
	Register(ctx context.Context, email, password, name string) (*auth.Session, error)
	Reissue(ctx context.Context, userID string) (*auth.Session, error)
	CurrentUser(ctx context.Context, userID string) (*model.User, error)
}

var _ AuthService = (*auth.Service)(nil)

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	// BaseURL はOAuth完了後のリダイレクト先（フロントエンド）。
	BaseURL string
	Cookie  middleware.CookieConfig
}

// AuthHandler は登録・ログイン・OAuth・セッション関連のHTTPハンドラー。
type AuthHandler struct {
	responder
	service AuthService
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthService, config AuthHandlerConfig, rec ErrorRecorder) *AuthHandler {
	return &AuthHandler{
		responder: responder{errors: rec},
		service:   service,
		config:    config,
	}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type sessionResponse struct {
	User              userResponse `json:"user"`
	PrimaryAuthMethod string       `json:"primary_auth_method"`
	ExpiresAt         time.Time    `json:"expires_at"`
	UserCreated       bool         `json:"user_created"`
	AccountLinked     bool         `json:"account_linked"`
}

// Register はメールアドレスとパスワードで新規登録し、セッションCookieを発行する。
// POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.serviceError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		h.serviceError(w, r, model.NewValidationError("メールアドレスとパスワードを入力してください。"))
		return
	}

	session, err := h.service.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.startSession(w, http.StatusCreated, session)
}

// Login はメールアドレスとパスワードでサインインする。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.serviceError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		h.serviceError(w, r, model.NewValidationError("メールアドレスとパスワードを入力してください。"))
		return
	}

	session, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.startSession(w, http.StatusOK, session)
}

func (h *AuthHandler) startSession(w http.ResponseWriter, status int, session *auth.Session) {
	middleware.SetSessionCookie(w, h.config.Cookie, session.Token, session.ExpiresAt)
	writeJSON(w, status, sessionResponse{
		User:              toUserResponse(session.User, true),
		PrimaryAuthMethod: session.PrimaryAuthMethod,
		ExpiresAt:         session.ExpiresAt,
		UserCreated:       session.UserCreated,
		AccountLinked:     session.AccountLinked,
	})
}

// Providers は有効なOAuthプロバイダーの一覧を返す。
// GET /auth/providers
func (h *AuthHandler) Providers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"providers": h.service.Providers()})
}

// OAuthLogin は指定プロバイダーのOAuthフローを開始する。
// GET /auth/{provider}/login
func (h *AuthHandler) OAuthLogin(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	state, err := generateState()
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	loginURL, err := h.service.GetLoginURL(provider, state)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	// stateはプロバイダー名と組にして保存し、別プロバイダーのコールバックでの再利用を防ぐ
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    provider + ":" + state,
		Path:     "/auth",
		MaxAge:   int(oauthStateMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.config.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, loginURL, http.StatusTemporaryRedirect)
}

// OAuthCallback はOAuthコールバックを処理し、アカウントを統合してセッションCookieを発行する。
// 結果はフロントエンドへのリダイレクトで伝える。
// GET /auth/{provider}/callback?code=xxx&state=yyy
func (h *AuthHandler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	query := r.URL.Query()

	stateCookie, err := r.Cookie(oauthStateCookie)
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	if err != nil || query.Get("state") == "" || stateCookie.Value != provider+":"+query.Get("state") {
		slog.Warn("oauth state mismatch", slog.String("provider", provider))
		h.redirectWithError(w, r, model.ErrCodeTokenInvalid)
		return
	}

	if providerErr := query.Get("error"); providerErr != "" {
		slog.Info("oauth authorization denied",
			slog.String("provider", provider),
			slog.String("reason", providerErr),
		)
		h.redirectWithError(w, r, "OAUTH_DENIED")
		return
	}

	code := query.Get("code")
	if code == "" {
		h.redirectWithError(w, r, model.ErrCodeValidationFailed)
		return
	}

	session, err := h.service.HandleCallback(r.Context(), provider, code)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			h.redirectWithError(w, r, apiErr.Code)
			return
		}
		slog.Error("oauth callback failed",
			slog.String("provider", provider),
			slog.String("error", err.Error()),
		)
		h.redirectWithError(w, r, "OAUTH_FAILED")
		return
	}

	middleware.SetSessionCookie(w, h.config.Cookie, session.Token, session.ExpiresAt)
	http.Redirect(w, r, h.config.BaseURL, http.StatusTemporaryRedirect)
}

func (h *AuthHandler) redirectWithError(w http.ResponseWriter, r *http.Request, code string) {
	target := strings.TrimRight(h.config.BaseURL, "/") + "/login?" + url.Values{"error": {code}}.Encode()
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}

// Logout はセッションCookieを削除する。トークンはステートレスなので失効処理はない。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	middleware.ClearSessionCookie(w, h.config.Cookie)
	w.WriteHeader(http.StatusNoContent)
}

type meResponse struct {
	User              userResponse `json:"user"`
	PrimaryAuthMethod string       `json:"primary_auth_method"`
	ExpiresAt         *time.Time   `json:"expires_at,omitempty"`
}

// Me は現在のログインユーザーとセッションのprimary_auth_methodを返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewTokenInvalidError())
		return
	}

	user, err := h.service.CurrentUser(r.Context(), claims.UserID())
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeUserNotFound {
			// 退会済みユーザーのトークン
			middleware.ClearSessionCookie(w, h.config.Cookie)
			middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewTokenInvalidError())
			return
		}
		h.serviceError(w, r, err)
		return
	}

	resp := meResponse{
		User:              toUserResponse(user, true),
		PrimaryAuthMethod: claims.PrimaryAuthMethod,
	}
	if claims.ExpiresAt != nil {
		exp := claims.ExpiresAt.Time
		resp.ExpiresAt = &exp
	}
	writeJSON(w, http.StatusOK, resp)
}

// generateState はOAuthのstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
