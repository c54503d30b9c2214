// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/learning-journal/internal/auth"
	"github.com/hitoshi/learning-journal/internal/model"
)

// SessionCookieName はセッショントークンを保持するCookieの名前。
const SessionCookieName = "session_token"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	userIDContextKey = contextKey("user_id")
	claimsContextKey = contextKey("claims")
)

// TokenCodec はセッショントークンの検証と再発行に必要なインターフェース。
// auth.TokenIssuerの部分集合として定義する。
type TokenCodec interface {
	Decode(token string) (*auth.Claims, error)
	NeedsRefresh(claims *auth.Claims, now time.Time) bool
	Refresh(claims *auth.Claims) (string, time.Time, error)
}

// CookieConfig はセッションCookieの属性。
type CookieConfig struct {
	Secure bool
	Domain string
}

// SetSessionCookie はHttpOnlyのセッションCookieを書き込む。
func SetSessionCookie(w http.ResponseWriter, cfg CookieConfig, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Domain:   cfg.Domain,
		Expires:  expiresAt,
		MaxAge:   int(time.Until(expiresAt).Seconds()),
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie はセッションCookieを削除する。
func ClearSessionCookie(w http.ResponseWriter, cfg CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   cfg.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// NewSessionMiddleware はCookieのセッショントークンを検証するミドルウェアを返す。
// 認証済みユーザーIDとクレームをリクエストコンテキストに注入する。
// 発行からupdateAgeを過ぎたトークンは再発行してCookieを更新する。
// トークンが無い・不正な場合は401を返す。
func NewSessionMiddleware(codec TokenCodec, cookieCfg CookieConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := claimsFromRequest(r, codec)
			if err != nil {
				writeUnauthorized(w, err)
				return
			}

			if codec.NeedsRefresh(claims, time.Now()) {
				token, expiresAt, err := codec.Refresh(claims)
				if err != nil {
					// 再発行に失敗しても現在のトークンは有効なので処理を続行する
					slog.Warn("failed to refresh session token",
						slog.String("user_id", claims.UserID()),
						slog.String("error", err.Error()),
					)
				} else {
					SetSessionCookie(w, cookieCfg, token, expiresAt)
				}
			}

			annotateUserID(r.Context(), claims.UserID())
			next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
		})
	}
}

// NewOptionalSessionMiddleware はトークンがあれば検証してコンテキストに注入するが、
// 無い・不正な場合も匿名リクエストとして通過させるミドルウェアを返す。
// 公開コンテンツの閲覧で閲覧者を識別するために使う。
func NewOptionalSessionMiddleware(codec TokenCodec) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := claimsFromRequest(r, codec)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
		})
	}
}

func claimsFromRequest(r *http.Request, codec TokenCodec) (*auth.Claims, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil, model.NewTokenInvalidError()
	}
	return codec.Decode(cookie.Value)
}

func writeUnauthorized(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		apiErr = model.NewTokenInvalidError()
	}
	WriteErrorResponse(w, http.StatusUnauthorized, apiErr)
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ClaimsFromContext はリクエストコンテキストからセッションクレームを取得する。
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*auth.Claims)
	return claims, ok && claims != nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

// ContextWithClaims はクレームとそのユーザーIDをコンテキストに注入する。
func ContextWithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	ctx = context.WithValue(ctx, claimsContextKey, claims)
	return ContextWithUserID(ctx, claims.UserID())
}
