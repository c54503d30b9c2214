package auth

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hitoshi/learning-journal/internal/model"
)

// サインイン手段の種別。OAuthプロバイダー名はそのままprimary_auth_methodの値になる。
const (
	KindCredentials = "credentials"
	ProviderGoogle  = "google"
	ProviderGitHub  = "github"
	ProviderDiscord = "discord"
)

const discordAvatarURL = "https://cdn.discordapp.com/avatars/%s/%s.png"

// IsOAuthProvider は対応しているOAuthプロバイダー名かを返す。
func IsOAuthProvider(name string) bool {
	switch name {
	case ProviderGoogle, ProviderGitHub, ProviderDiscord:
		return true
	}
	return false
}

// RawProfile はサインイン元ごとに形式の異なるプロフィールを種別付きで保持する。
// Payloadは種別ごとのJSON（OAuthの場合はユーザー情報エンドポイントのレスポンス）。
type RawProfile struct {
	Kind    string
	Payload json.RawMessage
}

// Profile は正規化済みのプロフィール。
type Profile struct {
	Provider          string
	ProviderID        string
	Name              string
	Email             string
	Image             string
	PrimaryAuthMethod string
	// SyntheticEmail はEmailがプロバイダーから取得できず合成された値であることを示す。
	SyntheticEmail bool
}

// IsCredentials はパスワード認証由来のプロフィールかを返す。
func (p Profile) IsCredentials() bool {
	return p.Provider == KindCredentials
}

type credentialsPayload struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Image string `json:"image"`
}

type googlePayload struct {
	Sub     string `json:"sub"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture string `json:"picture"`
}

type githubPayload struct {
	ID        json.Number `json:"id"`
	Login     string      `json:"login"`
	Name      string      `json:"name"`
	Email     string      `json:"email"`
	AvatarURL string      `json:"avatar_url"`
}

type discordPayload struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name"`
	Email      string `json:"email"`
	Avatar     string `json:"avatar"`
}

// CredentialsProfile は検証済みユーザーからcredentials種別のRawProfileを組み立てる。
func CredentialsProfile(user *model.User) RawProfile {
	payload, _ := json.Marshal(credentialsPayload{
		ID:    user.ID,
		Name:  user.Name,
		Email: user.Email,
		Image: user.Image,
	})
	return RawProfile{Kind: KindCredentials, Payload: payload}
}

// Normalize は種別ごとのプロフィールを共通形式に変換する。
// PrimaryAuthMethodは今回認証した方法で、credentialsは"email"、OAuthはプロバイダー名になる。
func Normalize(raw RawProfile) (Profile, error) {
	var (
		p   Profile
		err error
	)
	switch raw.Kind {
	case KindCredentials:
		p, err = normalizeCredentials(raw.Payload)
	case ProviderGoogle:
		p, err = normalizeGoogle(raw.Payload)
	case ProviderGitHub:
		p, err = normalizeGitHub(raw.Payload)
	case ProviderDiscord:
		p, err = normalizeDiscord(raw.Payload)
	default:
		return Profile{}, model.NewUnknownProviderError(raw.Kind)
	}
	if err != nil {
		return Profile{}, err
	}

	p.Email = model.NormalizeEmail(p.Email)
	if p.ProviderID == "" {
		return Profile{}, fmt.Errorf("%s profile has no account id", raw.Kind)
	}
	if p.Email == "" {
		return Profile{}, fmt.Errorf("%s profile has no email", raw.Kind)
	}
	return p, nil
}

func normalizeCredentials(payload []byte) (Profile, error) {
	var c credentialsPayload
	if err := json.Unmarshal(payload, &c); err != nil {
		return Profile{}, fmt.Errorf("failed to parse credentials profile: %w", err)
	}
	return Profile{
		Provider:          KindCredentials,
		ProviderID:        c.ID,
		Name:              c.Name,
		Email:             c.Email,
		Image:             c.Image,
		PrimaryAuthMethod: model.AuthMethodEmail,
	}, nil
}

func normalizeGoogle(payload []byte) (Profile, error) {
	var g googlePayload
	if err := json.Unmarshal(payload, &g); err != nil {
		return Profile{}, fmt.Errorf("failed to parse google profile: %w", err)
	}
	return Profile{
		Provider:          ProviderGoogle,
		ProviderID:        g.Sub,
		Name:              g.Name,
		Email:             g.Email,
		Image:             g.Picture,
		PrimaryAuthMethod: ProviderGoogle,
	}, nil
}

// normalizeGitHub は公開メールアドレスのないGitHubアカウントに {login}@github.com を合成する。
// 合成したアドレスは実在するメールボックスではないためSyntheticEmailを立てる。
func normalizeGitHub(payload []byte) (Profile, error) {
	var g githubPayload
	if err := json.Unmarshal(payload, &g); err != nil {
		return Profile{}, fmt.Errorf("failed to parse github profile: %w", err)
	}
	p := Profile{
		Provider:          ProviderGitHub,
		ProviderID:        g.ID.String(),
		Name:              g.Name,
		Email:             g.Email,
		Image:             g.AvatarURL,
		PrimaryAuthMethod: ProviderGitHub,
	}
	if p.Name == "" {
		p.Name = g.Login
	}
	if strings.TrimSpace(p.Email) == "" && g.Login != "" {
		p.Email = g.Login + "@github.com"
		p.SyntheticEmail = true
	}
	return p, nil
}

func normalizeDiscord(payload []byte) (Profile, error) {
	var d discordPayload
	if err := json.Unmarshal(payload, &d); err != nil {
		return Profile{}, fmt.Errorf("failed to parse discord profile: %w", err)
	}
	p := Profile{
		Provider:          ProviderDiscord,
		ProviderID:        d.ID,
		Name:              d.GlobalName,
		Email:             d.Email,
		PrimaryAuthMethod: ProviderDiscord,
	}
	if p.Name == "" {
		p.Name = d.Username
	}
	if d.Avatar != "" && d.ID != "" {
		p.Image = fmt.Sprintf(discordAvatarURL, d.ID, d.Avatar)
	}
	return p, nil
}
