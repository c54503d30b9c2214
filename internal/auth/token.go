package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/learning-journal/internal/model"
)

// Claims はセッショントークンのクレーム。subjectがユーザーID。
type Claims struct {
	PrimaryAuthMethod string `json:"primary_auth_method"`
	Name              string `json:"name,omitempty"`
	Email             string `json:"email,omitempty"`
	EmailSynthetic    bool   `json:"email_synthetic,omitempty"`
	Image             string `json:"image,omitempty"`
	jwt.RegisteredClaims
}

// UserID はトークンの対象ユーザーIDを返す。
func (c *Claims) UserID() string {
	return c.Subject
}

// TokenInput はトークン発行時の入力。
type TokenInput struct {
	UserID            string
	PrimaryAuthMethod string
	Name              string
	Email             string
	EmailSynthetic    bool
	Image             string
}

// TokenInputFromUser はユーザーとprimary_auth_methodからTokenInputを組み立てる。
func TokenInputFromUser(user *model.User, primary string) TokenInput {
	if primary == "" {
		primary = user.PrimaryAuthMethod
	}
	return TokenInput{
		UserID:            user.ID,
		PrimaryAuthMethod: primary,
		Name:              user.Name,
		Email:             user.Email,
		EmailSynthetic:    user.EmailSynthetic,
		Image:             user.Image,
	}
}

// TokenIssuer はHS256署名のセッショントークンを発行・検証する。
type TokenIssuer struct {
	secret    []byte
	maxAge    time.Duration
	updateAge time.Duration
	now       func() time.Time
}

// NewTokenIssuer はTokenIssuerを生成する。
// maxAgeはトークンの有効期間、updateAgeは再発行（スライド）までの経過時間。
func NewTokenIssuer(secret string, maxAge, updateAge time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret:    []byte(secret),
		maxAge:    maxAge,
		updateAge: updateAge,
		now:       time.Now,
	}
}

// MaxAge はトークンの有効期間を返す。
func (i *TokenIssuer) MaxAge() time.Duration {
	return i.maxAge
}

// Issue はトークンを発行し、有効期限とともに返す。
func (i *TokenIssuer) Issue(in TokenInput) (string, time.Time, error) {
	if in.UserID == "" {
		return "", time.Time{}, fmt.Errorf("user ID is required")
	}
	issuedAt := i.now().Truncate(time.Second)
	expiresAt := issuedAt.Add(i.maxAge)

	claims := &Claims{
		PrimaryAuthMethod: in.PrimaryAuthMethod,
		Name:              in.Name,
		Email:             in.Email,
		EmailSynthetic:    in.EmailSynthetic,
		Image:             in.Image,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   in.UserID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return token, expiresAt, nil
}

// Decode はトークンを検証してクレームを返す。
// 期限切れはTOKEN_EXPIRED、それ以外の不正はTOKEN_INVALIDを返す。
func (i *TokenIssuer) Decode(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, model.NewTokenExpiredError()
		}
		return nil, model.NewTokenInvalidError()
	}
	if claims.Subject == "" || claims.IssuedAt == nil {
		return nil, model.NewTokenInvalidError()
	}
	return claims, nil
}

// NeedsRefresh は発行からupdateAge以上経過しており再発行すべきかを返す。
func (i *TokenIssuer) NeedsRefresh(claims *Claims, now time.Time) bool {
	if claims == nil || claims.IssuedAt == nil {
		return false
	}
	return now.Sub(claims.IssuedAt.Time) >= i.updateAge
}

// Refresh はクレームの内容を引き継いで新しいトークンを発行する。
func (i *TokenIssuer) Refresh(claims *Claims) (string, time.Time, error) {
	return i.Issue(TokenInput{
		UserID:            claims.Subject,
		PrimaryAuthMethod: claims.PrimaryAuthMethod,
		Name:              claims.Name,
		Email:             claims.Email,
		EmailSynthetic:    claims.EmailSynthetic,
		Image:             claims.Image,
	})
}
