package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/learning-journal/internal/model"
	"github.com/hitoshi/learning-journal/internal/repository"
)

// CredentialVerifier はメールアドレスとパスワードによる認証を提供する。
type CredentialVerifier struct {
	users    repository.UserRepository
	accounts repository.LinkedAccountRepository
	hasher   *PasswordHasher
	now      func() time.Time
}

// NewCredentialVerifier はCredentialVerifierを生成する。
func NewCredentialVerifier(
	users repository.UserRepository,
	accounts repository.LinkedAccountRepository,
	hasher *PasswordHasher,
) *CredentialVerifier {
	return &CredentialVerifier{
		users:    users,
		accounts: accounts,
		hasher:   hasher,
		now:      time.Now,
	}
}

// Verify はメールアドレスとパスワードを検証してユーザーを返す。
//
// 未登録のメールアドレスの場合はその組でユーザーを自動作成する。
// パスワード未設定（OAuthのみ）のユーザーはNO_PASSWORD_SETを返し、
// 利用可能なプロバイダー名を詳細に含める。
func (v *CredentialVerifier) Verify(ctx context.Context, email, password string) (*model.User, error) {
	email = model.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, model.NewInvalidCredentialsError()
	}

	user, err := v.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	if user == nil {
		user, err = v.provision(ctx, email, password)
		if !errors.Is(err, repository.ErrUniqueViolation) {
			return user, err
		}
		// 同一メールアドレスの同時作成に負けた場合は作成済みの行で1回だけ検証し直す
		slog.Warn("concurrent credentials provisioning, retrying against existing user",
			slog.String("email", email),
		)
		user, err = v.users.FindByEmail(ctx, email)
		if err != nil {
			return nil, fmt.Errorf("failed to find user: %w", err)
		}
		if user == nil {
			return nil, fmt.Errorf("user disappeared after unique violation: %s", email)
		}
	}

	return v.check(ctx, user, password)
}

// check は既存ユーザーに対してパスワードを照合する。
func (v *CredentialVerifier) check(ctx context.Context, user *model.User, password string) (*model.User, error) {
	if user.HasPassword() {
		if !v.hasher.Compare(user.PasswordHash, password) {
			return nil, model.NewInvalidCredentialsError()
		}
		return user, nil
	}

	accounts, err := v.accounts.ListByUserID(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list linked accounts: %w", err)
	}
	if len(accounts) == 0 {
		return nil, model.NewInvalidCredentialsError()
	}
	providers := make([]string, 0, len(accounts))
	for _, acc := range accounts {
		providers = append(providers, acc.Provider)
	}
	return nil, model.NewNoPasswordSetError(providers)
}

// provision は未登録のメールアドレスとパスワードでユーザーを作成する。
func (v *CredentialVerifier) provision(ctx context.Context, email, password string) (*model.User, error) {
	user, err := v.newPasswordUser(email, password, "")
	if err != nil {
		return nil, err
	}
	if err := v.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	slog.Info("user created",
		slog.String("user_id", user.ID),
		slog.String("auth_method", model.AuthMethodEmail),
	)
	return user, nil
}

// Register はメールアドレスとパスワードで新規ユーザーを登録する。
// 登録済みのメールアドレスはALREADY_REGISTEREDを返す。
func (v *CredentialVerifier) Register(ctx context.Context, email, password, name string) (*model.User, error) {
	email = model.NormalizeEmail(email)

	existing, err := v.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if existing != nil {
		return nil, model.NewAlreadyRegisteredError()
	}

	user, err := v.newPasswordUser(email, password, name)
	if err != nil {
		return nil, err
	}
	if err := v.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUniqueViolation) {
			return nil, model.NewAlreadyRegisteredError()
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("user registered", slog.String("user_id", user.ID))
	return user, nil
}

// newPasswordUser は入力値を検証し、パスワード認証のユーザーを組み立てる。
func (v *CredentialVerifier) newPasswordUser(email, password, name string) (*model.User, error) {
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, model.NewValidationError("invalid email address")
	}
	if err := validatePasswordLength(password); err != nil {
		return nil, err
	}
	hash, err := v.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}
	now := v.now()
	return &model.User{
		ID:                uuid.New().String(),
		Email:             email,
		Name:              name,
		PasswordHash:      hash,
		PrimaryAuthMethod: model.AuthMethodEmail,
		IsPublic:          true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}
