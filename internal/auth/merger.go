package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/learning-journal/internal/model"
	"github.com/hitoshi/learning-journal/internal/repository"
)

// SignIn はIdentityMergerへの入力。
// OAuthの場合はプロバイダーから受け取ったトークンも含む。
type SignIn struct {
	Profile      Profile
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
}

// MergeResult はサインインの統合結果。
type MergeResult struct {
	UserID            string
	PrimaryAuthMethod string
	UserCreated       bool
	AccountLinked     bool
}

// IdentityMerger はサインインを既存ユーザーに統合するか新規作成するかを決定する。
// ユーザーはメールアドレスで同定し、同一メールアドレスのユーザーを重複作成しない。
type IdentityMerger struct {
	tx  repository.TxRunner
	now func() time.Time
}

// NewIdentityMerger はIdentityMergerを生成する。
func NewIdentityMerger(tx repository.TxRunner) *IdentityMerger {
	return &IdentityMerger{tx: tx, now: time.Now}
}

// MergeSignIn はサインインをユーザーに統合する。
//
// credentialsの場合は検証済みユーザーをそのまま受け入れ、書き込みは行わない。
// OAuthの場合は1トランザクション内で以下を行う:
//   - ユーザーが存在しなければプロバイダーをprimaryとして作成し紐付ける
//   - 存在し同じプロバイダーの紐付けがあればトークンのみ更新する
//   - 存在し紐付けがなければ紐付けを作成する
//
// 既存ユーザーの場合もprimary_auth_methodは今回のプロバイダーで上書きする。
// 同時初回サインインによる一意制約違反は1回だけ再試行する。
func (m *IdentityMerger) MergeSignIn(ctx context.Context, in SignIn) (*MergeResult, error) {
	if in.Profile.IsCredentials() {
		return &MergeResult{
			UserID:            in.Profile.ProviderID,
			PrimaryAuthMethod: in.Profile.PrimaryAuthMethod,
		}, nil
	}
	if !IsOAuthProvider(in.Profile.Provider) {
		return nil, model.NewUnknownProviderError(in.Profile.Provider)
	}

	result, err := m.mergeOAuth(ctx, in)
	if errors.Is(err, repository.ErrUniqueViolation) {
		slog.Warn("sign-in merge hit unique violation, retrying",
			slog.String("provider", in.Profile.Provider),
			slog.String("error", err.Error()),
		)
		result, err = m.mergeOAuth(ctx, in)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to merge sign-in: %w", err)
	}
	return result, nil
}

func (m *IdentityMerger) mergeOAuth(ctx context.Context, in SignIn) (*MergeResult, error) {
	p := in.Profile
	result := &MergeResult{PrimaryAuthMethod: p.Provider}

	err := m.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		user, err := m.resolveUser(ctx, repos, p)
		if err != nil {
			return err
		}

		now := m.now()
		if user == nil {
			user = &model.User{
				ID:                uuid.New().String(),
				Email:             p.Email,
				EmailSynthetic:    p.SyntheticEmail,
				Name:              p.Name,
				Image:             p.Image,
				PrimaryAuthMethod: p.Provider,
				IsPublic:          true,
				CreatedAt:         now,
				UpdatedAt:         now,
			}
			if err := repos.Users.Create(ctx, user); err != nil {
				return fmt.Errorf("failed to create user: %w", err)
			}
			result.UserCreated = true
		}
		result.UserID = user.ID

		accounts, err := repos.Accounts.ListByUserID(ctx, user.ID)
		if err != nil {
			return fmt.Errorf("failed to list linked accounts: %w", err)
		}

		var existing *model.LinkedAccount
		for _, acc := range accounts {
			if acc.Provider == p.Provider {
				existing = acc
				break
			}
		}

		if existing != nil {
			if in.AccessToken != "" {
				if err := repos.Accounts.UpdateTokens(ctx, existing.ID, in.AccessToken, in.RefreshToken, in.ExpiresAt); err != nil {
					return fmt.Errorf("failed to update account tokens: %w", err)
				}
			}
		} else {
			account := &model.LinkedAccount{
				ID:                uuid.New().String(),
				UserID:            user.ID,
				Provider:          p.Provider,
				ProviderAccountID: p.ProviderID,
				Type:              model.AccountTypeOAuth,
				AccessToken:       in.AccessToken,
				RefreshToken:      in.RefreshToken,
				ExpiresAt:         in.ExpiresAt,
				CreatedAt:         now,
			}
			if err := repos.Accounts.Create(ctx, account); err != nil {
				return fmt.Errorf("failed to link account: %w", err)
			}
			result.AccountLinked = true
		}

		if !result.UserCreated && user.PrimaryAuthMethod != p.Provider {
			if err := repos.Users.UpdatePrimaryAuthMethod(ctx, user.ID, p.Provider); err != nil {
				return fmt.Errorf("failed to update primary auth method: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	switch {
	case result.UserCreated:
		slog.Info("user created",
			slog.String("user_id", result.UserID),
			slog.String("provider", p.Provider),
			slog.Bool("synthetic_email", p.SyntheticEmail),
		)
	case result.AccountLinked:
		slog.Info("account linked",
			slog.String("user_id", result.UserID),
			slog.String("provider", p.Provider),
		)
	}
	return result, nil
}

// resolveUser はサインインの対象ユーザーを特定する。
// プロバイダーアカウントが既に紐付いていればその所有者を優先し、
// なければ正規化済みメールアドレスで検索する。
// 合成メールアドレスはログイン名から誰でも作れるため、既存ユーザーへの統合には使わない。
func (m *IdentityMerger) resolveUser(ctx context.Context, repos repository.Repos, p Profile) (*model.User, error) {
	link, err := repos.Accounts.FindByProviderAccount(ctx, p.Provider, p.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("failed to find linked account: %w", err)
	}
	if link != nil {
		user, err := repos.Users.FindByID(ctx, link.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to find user: %w", err)
		}
		if user != nil {
			return user, nil
		}
	}

	user, err := repos.Users.FindByEmail(ctx, p.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user != nil && p.SyntheticEmail {
		slog.Warn("synthetic email collides with existing user",
			slog.String("provider", p.Provider),
			slog.String("user_id", user.ID),
		)
		return nil, model.NewAlreadyRegisteredError()
	}
	return user, nil
}
