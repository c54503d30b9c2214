package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
)

const (
	defaultGoogleUserInfoURL  = "https://www.googleapis.com/oauth2/v3/userinfo"
	defaultGitHubUserInfoURL  = "https://api.github.com/user"
	defaultDiscordAuthURL     = "https://discord.com/api/oauth2/authorize"
	defaultDiscordTokenURL    = "https://discord.com/api/oauth2/token"
	defaultDiscordUserInfoURL = "https://discord.com/api/users/@me"

	maxUserInfoBytes = 1 << 20
)

// OAuthResult はコード交換の結果。ユーザー情報は正規化前のまま保持する。
type OAuthResult struct {
	Profile RawProfile
	Token   *oauth2.Token
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// Name はプロバイダー名（google, github, discord）を返す。
	Name() string
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthResult, error)
}

// OAuthConfig はOAuthプロバイダーの設定。
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// テスト用にオーバーライド可能なURL
	AuthURL     string
	TokenURL    string
	UserInfoURL string

	// HTTPClient はトークン交換とユーザー情報取得に使用する（nilの場合はデフォルト）。
	HTTPClient *http.Client
}

// OAuth2Provider はgolang.org/x/oauth2によるOAuthプロバイダー実装。
type OAuth2Provider struct {
	name        string
	config      *oauth2.Config
	userInfoURL string
	httpClient  *http.Client
}

// NewGoogleProvider はGoogle用のOAuth2Providerを生成する。
func NewGoogleProvider(cfg OAuthConfig) *OAuth2Provider {
	return newOAuth2Provider(ProviderGoogle, cfg, google.Endpoint, defaultGoogleUserInfoURL,
		[]string{"openid", "email", "profile"})
}

// NewGitHubProvider はGitHub用のOAuth2Providerを生成する。
func NewGitHubProvider(cfg OAuthConfig) *OAuth2Provider {
	return newOAuth2Provider(ProviderGitHub, cfg, github.Endpoint, defaultGitHubUserInfoURL,
		[]string{"read:user", "user:email"})
}

// NewDiscordProvider はDiscord用のOAuth2Providerを生成する。
func NewDiscordProvider(cfg OAuthConfig) *OAuth2Provider {
	endpoint := oauth2.Endpoint{
		AuthURL:   defaultDiscordAuthURL,
		TokenURL:  defaultDiscordTokenURL,
		AuthStyle: oauth2.AuthStyleInParams,
	}
	return newOAuth2Provider(ProviderDiscord, cfg, endpoint, defaultDiscordUserInfoURL,
		[]string{"identify", "email"})
}

func newOAuth2Provider(name string, cfg OAuthConfig, endpoint oauth2.Endpoint, userInfoURL string, scopes []string) *OAuth2Provider {
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	if cfg.UserInfoURL != "" {
		userInfoURL = cfg.UserInfoURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &OAuth2Provider{
		name: name,
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
		userInfoURL: userInfoURL,
		httpClient:  client,
	}
}

// Name はプロバイダー名を返す。
func (p *OAuth2Provider) Name() string {
	return p.name
}

// GetLoginURL はOAuthの認証URLを生成する。
func (p *OAuth2Provider) GetLoginURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// ExchangeCode は認可コードをアクセストークンに交換し、ユーザー情報を取得する。
func (p *OAuth2Provider) ExchangeCode(ctx context.Context, code string) (*OAuthResult, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to exchange token: %w", p.name, err)
	}

	payload, err := p.fetchUserInfo(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to fetch user info: %w", p.name, err)
	}

	return &OAuthResult{
		Profile: RawProfile{Kind: p.name, Payload: payload},
		Token:   token,
	}, nil
}

// fetchUserInfo はアクセストークンでユーザー情報エンドポイントのレスポンスを取得する。
func (p *OAuth2Provider) fetchUserInfo(ctx context.Context, token *oauth2.Token) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create user info request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.config.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("user info request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUserInfoBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read user info response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user info fetch failed with status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// TokenExpiry はトークンの有効期限を返す。期限がない場合はnil。
func TokenExpiry(token *oauth2.Token) *time.Time {
	if token == nil || token.Expiry.IsZero() {
		return nil
	}
	t := token.Expiry
	return &t
}

// compile-time interface check
var _ OAuthProvider = (*OAuth2Provider)(nil)
