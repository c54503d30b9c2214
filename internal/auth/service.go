// Package auth は認証とアカウント統合のルールエンジンを提供する。
//
// パスワード認証（CredentialVerifier）、OAuthプロフィールの正規化（Normalize）、
// メールアドレスによるアカウント統合（IdentityMerger）、認証手段の管理（MethodRegistry）、
// セッショントークンの発行（TokenIssuer）から構成される。
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/hitoshi/learning-journal/internal/model"
	"github.com/hitoshi/learning-journal/internal/repository"
)

// サインイン結果のメトリクスラベル。
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// SignInRecorder はサインイン結果を記録する。
type SignInRecorder interface {
	RecordSignIn(method, outcome string)
}

type noopRecorder struct{}

func (noopRecorder) RecordSignIn(string, string) {}

// Session はサインイン成功時に発行されるセッション情報。
type Session struct {
	Token             string
	ExpiresAt         time.Time
	User              *model.User
	PrimaryAuthMethod string
	UserCreated       bool
	AccountLinked     bool
}

// ServiceDeps はServiceの依存コンポーネント。
type ServiceDeps struct {
	Providers []OAuthProvider
	Verifier  *CredentialVerifier
	Merger    *IdentityMerger
	Tokens    *TokenIssuer
	Users     repository.UserRepository
	Metrics   SignInRecorder
}

// Service はサインインの各経路を束ね、セッショントークンを発行する。
type Service struct {
	providers map[string]OAuthProvider
	verifier  *CredentialVerifier
	merger    *IdentityMerger
	tokens    *TokenIssuer
	users     repository.UserRepository
	metrics   SignInRecorder
}

// NewService はServiceを生成する。
func NewService(deps ServiceDeps) *Service {
	providers := make(map[string]OAuthProvider, len(deps.Providers))
	for _, p := range deps.Providers {
		providers[p.Name()] = p
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopRecorder{}
	}
	return &Service{
		providers: providers,
		verifier:  deps.Verifier,
		merger:    deps.Merger,
		tokens:    deps.Tokens,
		users:     deps.Users,
		metrics:   metrics,
	}
}

// Providers は有効なOAuthプロバイダー名を昇順で返す。
func (s *Service) Providers() []string {
	names := make([]string, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetLoginURL は指定プロバイダーのOAuth認証URLを生成する。
func (s *Service) GetLoginURL(provider, state string) (string, error) {
	p, ok := s.providers[provider]
	if !ok {
		return "", model.NewUnknownProviderError(provider)
	}
	return p.GetLoginURL(state), nil
}

// HandleCallback はOAuthコールバックを処理し、アカウントを統合してセッションを発行する。
func (s *Service) HandleCallback(ctx context.Context, provider, code string) (*Session, error) {
	p, ok := s.providers[provider]
	if !ok {
		return nil, model.NewUnknownProviderError(provider)
	}

	session, err := s.handleCallback(ctx, p, code)
	s.record(provider, err)
	return session, err
}

func (s *Service) handleCallback(ctx context.Context, p OAuthProvider, code string) (*Session, error) {
	result, err := p.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	profile, err := Normalize(result.Profile)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize profile: %w", err)
	}

	in := SignIn{Profile: profile}
	if result.Token != nil {
		in.AccessToken = result.Token.AccessToken
		in.RefreshToken = result.Token.RefreshToken
		in.ExpiresAt = TokenExpiry(result.Token)
	}
	return s.signIn(ctx, in)
}

// Login はメールアドレスとパスワードでサインインする。
// 未登録のメールアドレスはその場でユーザーが作成される。
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	session, err := s.login(ctx, email, password)
	s.record(model.AuthMethodEmail, err)
	return session, err
}

func (s *Service) login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.verifier.Verify(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return s.signInUser(ctx, user)
}

// Register はメールアドレスとパスワードで新規登録し、そのままサインインする。
func (s *Service) Register(ctx context.Context, email, password, name string) (*Session, error) {
	user, err := s.verifier.Register(ctx, email, password, name)
	if err != nil {
		s.record(model.AuthMethodEmail, err)
		return nil, err
	}
	session, err := s.signInUser(ctx, user)
	s.record(model.AuthMethodEmail, err)
	if session != nil {
		session.UserCreated = true
	}
	return session, err
}

// signInUser は検証済みユーザーをcredentialsとして統合する。
func (s *Service) signInUser(ctx context.Context, user *model.User) (*Session, error) {
	profile, err := Normalize(CredentialsProfile(user))
	if err != nil {
		return nil, fmt.Errorf("failed to normalize credentials profile: %w", err)
	}
	return s.signIn(ctx, SignIn{Profile: profile})
}

func (s *Service) signIn(ctx context.Context, in SignIn) (*Session, error) {
	merged, err := s.merger.MergeSignIn(ctx, in)
	if err != nil {
		return nil, err
	}

	user, err := s.CurrentUser(ctx, merged.UserID)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.tokens.Issue(TokenInputFromUser(user, merged.PrimaryAuthMethod))
	if err != nil {
		return nil, err
	}

	slog.Info("user signed in",
		slog.String("user_id", user.ID),
		slog.String("primary_auth_method", merged.PrimaryAuthMethod),
	)
	return &Session{
		Token:             token,
		ExpiresAt:         expiresAt,
		User:              user,
		PrimaryAuthMethod: merged.PrimaryAuthMethod,
		UserCreated:       merged.UserCreated,
		AccountLinked:     merged.AccountLinked,
	}, nil
}

// Reissue は最新のユーザー情報でセッショントークンを発行し直す。
// パスワード設定や連携解除でprimary_auth_methodが変わった後に使用する。
func (s *Service) Reissue(ctx context.Context, userID string) (*Session, error) {
	user, err := s.CurrentUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.tokens.Issue(TokenInputFromUser(user, ""))
	if err != nil {
		return nil, err
	}
	return &Session{
		Token:             token,
		ExpiresAt:         expiresAt,
		User:              user,
		PrimaryAuthMethod: user.PrimaryAuthMethod,
	}, nil
}

// CurrentUser はユーザーIDからユーザーを取得する。
func (s *Service) CurrentUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

func (s *Service) record(method string, err error) {
	if err != nil {
		s.metrics.RecordSignIn(method, OutcomeFailure)
		return
	}
	s.metrics.RecordSignIn(method, OutcomeSuccess)
}
