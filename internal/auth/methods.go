package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/learning-journal/internal/model"
	"github.com/hitoshi/learning-journal/internal/repository"
)

// AuthMethods はユーザーが利用可能な認証手段の一覧。
type AuthMethods struct {
	HasPassword bool
	Providers   []string
	Primary     string
}

// Total は有効な認証手段の数を返す。
func (m AuthMethods) Total() int {
	n := len(m.Providers)
	if m.HasPassword {
		n++
	}
	return n
}

// MethodRegistry はパスワードと連携プロバイダーを管理する。
// ユーザーは常に1つ以上の認証手段を持つ。
type MethodRegistry struct {
	tx     repository.TxRunner
	hasher *PasswordHasher
}

// NewMethodRegistry はMethodRegistryを生成する。
func NewMethodRegistry(tx repository.TxRunner, hasher *PasswordHasher) *MethodRegistry {
	return &MethodRegistry{tx: tx, hasher: hasher}
}

// ListMethods はユーザーの認証手段を返す。プロバイダーは連携の古い順。
func (r *MethodRegistry) ListMethods(ctx context.Context, userID string) (*AuthMethods, error) {
	var methods *AuthMethods
	err := r.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		user, accounts, err := loadUserAccounts(ctx, repos, userID)
		if err != nil {
			return err
		}
		methods = methodsOf(user, accounts)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return methods, nil
}

// SetPassword はパスワード未設定のユーザーに初回パスワードを設定し、primaryをemailにする。
func (r *MethodRegistry) SetPassword(ctx context.Context, userID, password string) error {
	err := r.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		user, err := findUser(ctx, repos, userID)
		if err != nil {
			return err
		}
		if user.HasPassword() {
			return model.NewPasswordAlreadySetError()
		}
		if err := validatePasswordLength(password); err != nil {
			return err
		}
		hash, err := r.hasher.Hash(password)
		if err != nil {
			return err
		}
		if err := repos.Users.UpdatePassword(ctx, user.ID, hash, model.AuthMethodEmail); err != nil {
			return fmt.Errorf("failed to store password: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.Info("password set", slog.String("user_id", userID))
	return nil
}

// ChangePassword はパスワードを変更する。
// 確認用との不一致、文字数不足、現在のパスワード不一致の順に検証する。
// パスワード未設定のユーザーは現在のパスワードを問わず初回設定として扱う。
func (r *MethodRegistry) ChangePassword(ctx context.Context, userID, current, newPassword, confirm string) error {
	if newPassword != confirm {
		return model.NewPasswordMismatchError()
	}
	if err := validatePasswordLength(newPassword); err != nil {
		return err
	}

	err := r.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		user, err := findUser(ctx, repos, userID)
		if err != nil {
			return err
		}

		primary := user.PrimaryAuthMethod
		if user.HasPassword() {
			if !r.hasher.Compare(user.PasswordHash, current) {
				return model.NewWrongCurrentPasswordError()
			}
		} else {
			primary = model.AuthMethodEmail
		}

		hash, err := r.hasher.Hash(newPassword)
		if err != nil {
			return err
		}
		if err := repos.Users.UpdatePassword(ctx, user.ID, hash, primary); err != nil {
			return fmt.Errorf("failed to store password: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.Info("password changed", slog.String("user_id", userID))
	return nil
}

// UnlinkProvider はプロバイダー連携を解除する。
// 解除後に認証手段が残らない場合はLAST_AUTH_METHODを返す。
// primaryは残った連携のうち最も古いもの、なければemailに再計算する。
func (r *MethodRegistry) UnlinkProvider(ctx context.Context, userID, provider string) (*AuthMethods, error) {
	var methods *AuthMethods
	err := r.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		user, accounts, err := loadUserAccounts(ctx, repos, userID)
		if err != nil {
			return err
		}

		current := methodsOf(user, accounts)
		if current.Total() <= 1 {
			return model.NewLastAuthMethodError()
		}

		remaining := make([]*model.LinkedAccount, 0, len(accounts))
		for _, acc := range accounts {
			if acc.Provider != provider {
				remaining = append(remaining, acc)
			}
		}
		if len(remaining) == len(accounts) {
			return model.NewProviderNotLinkedError(provider)
		}

		if _, err := repos.Accounts.DeleteByUserAndProvider(ctx, user.ID, provider); err != nil {
			return fmt.Errorf("failed to delete linked account: %w", err)
		}

		primary := model.AuthMethodEmail
		if len(remaining) > 0 {
			primary = remaining[0].Provider
		}
		if err := repos.Users.UpdatePrimaryAuthMethod(ctx, user.ID, primary); err != nil {
			return fmt.Errorf("failed to update primary auth method: %w", err)
		}

		user.PrimaryAuthMethod = primary
		methods = methodsOf(user, remaining)
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("provider unlinked",
		slog.String("user_id", userID),
		slog.String("provider", provider),
		slog.String("primary_auth_method", methods.Primary),
	)
	return methods, nil
}

func findUser(ctx context.Context, repos repository.Repos, userID string) (*model.User, error) {
	user, err := repos.Users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

func loadUserAccounts(ctx context.Context, repos repository.Repos, userID string) (*model.User, []*model.LinkedAccount, error) {
	user, err := findUser(ctx, repos, userID)
	if err != nil {
		return nil, nil, err
	}
	accounts, err := repos.Accounts.ListByUserID(ctx, user.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list linked accounts: %w", err)
	}
	return user, accounts, nil
}

func methodsOf(user *model.User, accounts []*model.LinkedAccount) *AuthMethods {
	providers := make([]string, 0, len(accounts))
	for _, acc := range accounts {
		providers = append(providers, acc.Provider)
	}
	return &AuthMethods{
		HasPassword: user.HasPassword(),
		Providers:   providers,
		Primary:     user.PrimaryAuthMethod,
	}
}
