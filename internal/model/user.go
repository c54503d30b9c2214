// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// AuthMethodEmail はメールアドレス+パスワード認証を表すprimary_auth_methodの値。
const AuthMethodEmail = "email"

// User はサービス利用ユーザーを表す。
// PasswordHashはパスワード認証を一度でも設定した場合のみ空でない。
type User struct {
	ID                string
	Email             string
	EmailSynthetic    bool // Emailがプロバイダーのログイン名から合成されたもの
	Name              string
	PasswordHash      string
	PrimaryAuthMethod string
	Bio               string
	Age               *int
	Image             string
	IsPublic          bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// HasPassword はパスワードハッシュが設定済みかを返す。
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// LinkedAccount は外部OAuthプロバイダーのアカウントとユーザーの紐付けを表す。
// (Provider, ProviderAccountID) と (UserID, Provider) はそれぞれ一意。
type LinkedAccount struct {
	ID                string
	UserID            string
	Provider          string
	ProviderAccountID string
	Type              string
	AccessToken       string
	RefreshToken      string
	ExpiresAt         *time.Time
	CreatedAt         time.Time
}

// AccountTypeOAuth はOAuthで作成された紐付けの種別。
const AccountTypeOAuth = "oauth"

// NormalizeEmail はメールアドレスを比較用に正規化する（前後の空白除去と小文字化）。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
