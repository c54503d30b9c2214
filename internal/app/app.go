package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/learning-journal/internal/auth"
	"github.com/hitoshi/learning-journal/internal/config"
	"github.com/hitoshi/learning-journal/internal/database"
	"github.com/hitoshi/learning-journal/internal/errorlog"
	"github.com/hitoshi/learning-journal/internal/handler"
	"github.com/hitoshi/learning-journal/internal/journal"
	"github.com/hitoshi/learning-journal/internal/logger"
	"github.com/hitoshi/learning-journal/internal/metrics"
	"github.com/hitoshi/learning-journal/internal/middleware"
	"github.com/hitoshi/learning-journal/internal/ratelimit"
	"github.com/hitoshi/learning-journal/internal/repository"
	"github.com/hitoshi/learning-journal/internal/resource"
	"github.com/hitoshi/learning-journal/internal/security"
	"github.com/hitoshi/learning-journal/internal/user"
	"github.com/hitoshi/learning-journal/internal/worker/cleanup"
)

// rateLimitKeyPrefix はRedis上のレート制限カウンタの名前空間。
const rateLimitKeyPrefix = "learning-journal:ratelimit"

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandCleanup:
		return runCleanup(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DBに接続できなくても起動し、/healthは縮退状態を返す。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.Connect(ctx, db, connectConfig(cfg)); err != nil {
		slog.Error("database unavailable, serving in degraded mode",
			slog.String("error", err.Error()),
		)
	} else {
		slog.Info("database connection established")
	}

	srv, err := newServer(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer srv.Close()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      srv.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	case <-ctx.Done():
	}
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// server は組み立て済みのHTTPハンドラーと、停止時に解放するリソースを保持する。
type server struct {
	handler http.Handler
	closers []func()
}

// Close は保持しているリソースを逆順に解放する。
func (s *server) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// newServer はリポジトリ・サービス・ミドルウェアをワイヤリングしてルーターを構築する。
func newServer(ctx context.Context, cfg *config.Config, db *sql.DB) (*server, error) {
	s := &server{}

	// 1. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// 2. リポジトリ
	users := repository.NewPostgresUserRepo(db)
	accounts := repository.NewPostgresLinkedAccountRepo(db)
	tx := repository.NewPostgresTxRunner(db)

	// 3. セキュリティ
	sanitizer := security.NewContentSanitizer()
	ssrfGuard := security.NewSSRFGuard()

	// 4. 認証
	hasher := auth.NewPasswordHasher(cfg.BcryptCost)
	tokens := auth.NewTokenIssuer(cfg.SessionSecret, cfg.SessionMaxAge, cfg.SessionUpdateAge)
	authService := auth.NewService(auth.ServiceDeps{
		Providers: oauthProviders(cfg),
		Verifier:  auth.NewCredentialVerifier(users, accounts, hasher),
		Merger:    auth.NewIdentityMerger(tx),
		Tokens:    tokens,
		Users:     users,
		Metrics:   collector,
	})
	slog.Info("oauth providers configured", slog.Any("providers", authService.Providers()))

	// 5. ドメインサービス
	userService := user.NewService(users, sanitizer, ssrfGuard)
	journalService := journal.NewService(journal.Deps{
		Units:     repository.NewPostgresUnitRepo(db),
		Logs:      repository.NewPostgresLogRepo(db),
		Comments:  repository.NewPostgresCommentRepo(db),
		Likes:     repository.NewPostgresLikeRepo(db),
		Sanitizer: sanitizer,
		URLs:      ssrfGuard,
		Titles:    resource.NewMetadataFetcher(ssrfGuard),
	})
	errorLogs := errorlog.NewService(repository.NewPostgresErrorLogRepo(db), collector)

	// 6. レート制限
	authLimiter, closeLimiter := newAuthLimiter(ctx, cfg)
	s.closers = append(s.closers, closeLimiter)

	generalLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral), collector)
	s.closers = append(s.closers, generalLimiter.Stop)

	// 7. ルーター
	cookie := middleware.CookieConfig{Secure: cfg.CookieSecure, Domain: cfg.CookieDomain}
	s.handler = handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		HealthChecker:     db,
		Tokens:            tokens,
		Cookie:            cookie,
		CSRF:              middleware.CSRFConfig{CookieSecure: cfg.CookieSecure, CookieDomain: cfg.CookieDomain},
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		AdminEmails:       cfg.AdminEmails,
		RateLimiter:       generalLimiter,
		AuthLimiter:       authLimiter,
		TrustedProxies:    middleware.TrustedProxies(cfg.TrustedProxies),
		Metrics:           collector,
		MetricsHandler:    metrics.Handler(reg),
		Errors:            errorLogs,

		AuthService: authService,
		AuthConfig:  handler.AuthHandlerConfig{BaseURL: cfg.BaseURL, Cookie: cookie},
		Methods:     auth.NewMethodRegistry(tx, hasher),
		Users:       userService,
		Journal:     journalService,
		ErrorLogs:   errorLogs,
	})

	return s, nil
}

// oauthProviders はクライアントIDとシークレットが設定されたプロバイダーだけを返す。
func oauthProviders(cfg *config.Config) []auth.OAuthProvider {
	var providers []auth.OAuthProvider
	if cfg.Google.Enabled() {
		providers = append(providers, auth.NewGoogleProvider(oauthConfig(cfg.Google)))
	}
	if cfg.GitHub.Enabled() {
		providers = append(providers, auth.NewGitHubProvider(oauthConfig(cfg.GitHub)))
	}
	if cfg.Discord.Enabled() {
		providers = append(providers, auth.NewDiscordProvider(oauthConfig(cfg.Discord)))
	}
	return providers
}

func oauthConfig(c config.OAuthClient) auth.OAuthConfig {
	return auth.OAuthConfig{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURL,
	}
}

// newAuthLimiter は認証系エンドポイントの固定ウィンドウ制限を生成する。
// REDIS_URLが設定されていればRedisを使い、接続できない場合はインメモリにフォールバックする。
func newAuthLimiter(ctx context.Context, cfg *config.Config) (ratelimit.Limiter, func()) {
	if cfg.RedisURL != "" {
		client, err := ratelimit.NewRedisClient(ctx, cfg.RedisURL)
		if err == nil {
			slog.Info("rate limiter backend: redis")
			limiter := ratelimit.NewRedisLimiter(client, rateLimitKeyPrefix, cfg.RateLimitAuth, cfg.RateLimitWindow)
			return limiter, func() { client.Close() }
		}
		slog.Warn("redis unavailable, falling back to in-memory rate limiter",
			slog.String("error", err.Error()),
		)
	}
	limiter := ratelimit.NewMemoryLimiter(cfg.RateLimitAuth, cfg.RateLimitWindow)
	return limiter, limiter.Close
}

func connectConfig(cfg *config.Config) database.ConnectConfig {
	return database.ConnectConfig{
		Timeout:  cfg.DBConnectTimeout,
		Attempts: cfg.DBConnectRetries,
		Backoff:  cfg.DBConnectBackoff,
	}
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runCleanup は保持期間を過ぎたエラーログを削除して終了する。
func runCleanup(cfg *config.Config) error {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.Connect(ctx, db, connectConfig(cfg)); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	job := cleanup.NewJob(db, slog.Default(), cfg.ErrorLogRetentionDays)
	if _, err := job.Run(ctx); err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "***"
	}
	if u.User == nil {
		return u.String()
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
