package middleware

import (
	"log/slog"
	"net/http"

	"github.com/hitoshi/learning-journal/internal/model"
)

// NewAdminMiddleware は管理者のメールアドレスを持つユーザーだけを通すミドルウェアを返す。
// SessionMiddlewareの後に配置する。adminEmailsは正規化済みのメールアドレス。
// 合成メールアドレスのセッションは一致しても管理者として扱わない。
func NewAdminMiddleware(adminEmails []string) func(next http.Handler) http.Handler {
	admins := make(map[string]struct{}, len(adminEmails))
	for _, email := range adminEmails {
		admins[model.NormalizeEmail(email)] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewTokenInvalidError())
				return
			}
			_, listed := admins[model.NormalizeEmail(claims.Email)]
			if !listed || claims.EmailSynthetic {
				slog.Warn("admin access denied",
					slog.String("user_id", claims.UserID()),
					slog.String("path", r.URL.Path),
				)
				WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
