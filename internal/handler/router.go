package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/learning-journal/internal/metrics"
	"github.com/hitoshi/learning-journal/internal/middleware"
	"github.com/hitoshi/learning-journal/internal/ratelimit"
)

// 固定ウィンドウ制限のスコープ。
const (
	scopeRegister       = "auth_register"
	scopeLogin          = "auth_login"
	scopeAccountMethods = "account_methods"
)

// HealthChecker はDB接続の疎通確認を行う。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger
	// HealthChecker がnilの場合はDB未接続として/healthは503を返す。
	HealthChecker HealthChecker

	// ミドルウェア依存
	Tokens            middleware.TokenCodec
	Cookie            middleware.CookieConfig
	CSRF              middleware.CSRFConfig
	CORSAllowedOrigin string
	AdminEmails       []string
	RateLimiter       *middleware.RateLimiter
	AuthLimiter       ratelimit.Limiter
	// TrustedProxies が空の場合、固定ウィンドウ制限はRemoteAddrだけで判定する。
	TrustedProxies middleware.TrustedProxies

	// Metrics と MetricsHandler はnil可。
	Metrics        *metrics.Collector
	MetricsHandler http.Handler
	Errors         ErrorRecorder

	AuthService AuthService
	AuthConfig  AuthHandlerConfig
	Methods     MethodService
	Users       UserService
	Journal     JournalService
	ErrorLogs   ErrorLogService
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → Metrics → SecurityHeaders → CORS → CSRF → Session → RateLimit
//
// 公開コンテンツの閲覧はOptionalSessionで閲覧者を識別し、匿名でもアクセスできる。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
	}
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig, deps.Errors)
	accountHandler := NewAccountHandler(deps.Methods, deps.AuthService, deps.Cookie, deps.Errors)
	userHandler := NewUserHandler(deps.Users, deps.Cookie, deps.Errors)
	journalHandler := NewJournalHandler(deps.Journal, deps.Errors)
	adminHandler := NewAdminHandler(deps.ErrorLogs, deps.Errors)

	session := middleware.NewSessionMiddleware(deps.Tokens, deps.Cookie)
	optionalSession := middleware.NewOptionalSessionMiddleware(deps.Tokens)
	limit := fixedWindow(deps)

	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF))

		r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF))

		// --- 認証 ---
		r.With(limit(scopeRegister)).Post("/auth/register", authHandler.Register)
		r.With(limit(scopeLogin)).Post("/auth/login", authHandler.Login)
		r.Get("/auth/providers", authHandler.Providers)
		r.Get("/auth/{provider}/login", authHandler.OAuthLogin)
		r.Get("/auth/{provider}/callback", authHandler.OAuthCallback)
		r.Post("/auth/logout", authHandler.Logout)
		r.With(session).Get("/auth/me", authHandler.Me)

		// --- 公開コンテンツの閲覧（匿名可） ---
		r.Group(func(r chi.Router) {
			r.Use(optionalSession)

			r.Get("/api/users/search", userHandler.Search)
			r.Get("/api/users/{id}", userHandler.GetProfile)
			r.Get("/api/users/{id}/units", journalHandler.ListUserUnits)
			r.Get("/api/units/{id}", journalHandler.GetUnit)
			r.Get("/api/units/{id}/logs", journalHandler.ListLogs)
			r.Get("/api/units/{id}/comments", journalHandler.ListComments)
			r.Get("/api/logs/{id}", journalHandler.GetLog)
		})

		// --- 認証が必要なルート ---
		r.Group(func(r chi.Router) {
			r.Use(session)
			if deps.RateLimiter != nil {
				r.Use(deps.RateLimiter.GeneralMiddleware())
			}

			// 認証手段の変更（総当たり対策として固定ウィンドウ制限を追加）
			r.Get("/api/account/methods", accountHandler.ListMethods)
			r.Group(func(r chi.Router) {
				r.Use(limit(scopeAccountMethods))
				r.Post("/api/account/password", accountHandler.SetPassword)
				r.Put("/api/account/password", accountHandler.ChangePassword)
				r.Delete("/api/account/providers/{provider}", accountHandler.UnlinkProvider)
			})

			r.Get("/api/users/me", userHandler.GetMe)
			r.Put("/api/users/me", userHandler.UpdateMe)
			r.Delete("/api/users/me", userHandler.Withdraw)

			r.Get("/api/units", journalHandler.ListMyUnits)
			r.Post("/api/units", journalHandler.CreateUnit)
			r.Put("/api/units/{id}", journalHandler.UpdateUnit)
			r.Delete("/api/units/{id}", journalHandler.DeleteUnit)
			r.Post("/api/units/{id}/like", journalHandler.Like)
			r.Delete("/api/units/{id}/like", journalHandler.Unlike)
			r.Post("/api/units/{id}/comments", journalHandler.AddComment)
			r.Post("/api/units/{id}/logs", journalHandler.CreateLog)

			r.Put("/api/logs/{id}", journalHandler.UpdateLog)
			r.Delete("/api/logs/{id}", journalHandler.DeleteLog)
			r.Delete("/api/comments/{id}", journalHandler.DeleteComment)
		})

		// --- 管理者 ---
		r.Group(func(r chi.Router) {
			r.Use(session)
			r.Use(middleware.NewAdminMiddleware(deps.AdminEmails))

			r.Get("/api/admin/error-logs", adminHandler.ListErrorLogs)
		})
	})

	return r
}

// fixedWindow はスコープごとの固定ウィンドウ制限ミドルウェアを返す関数を作る。
// AuthLimiterが未設定の場合は制限しない。
func fixedWindow(deps *RouterDeps) func(scope string) func(http.Handler) http.Handler {
	var recorder middleware.LimitRecorder
	if deps.Metrics != nil {
		recorder = deps.Metrics
	}
	return func(scope string) func(http.Handler) http.Handler {
		if deps.AuthLimiter == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return middleware.NewFixedWindowMiddleware(deps.AuthLimiter, scope, deps.TrustedProxies, recorder)
	}
}

// healthHandler はDB疎通を確認するヘルスチェックハンドラーを返す。
// GET /health
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":   "degraded",
				"database": "unavailable",
			})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := checker.PingContext(ctx); err != nil {
			slog.Warn("health check failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":   "degraded",
				"database": "unreachable",
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status":   "ok",
			"database": "ok",
		})
	}
}
