package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/learning-journal/internal/model"
)

const accountColumns = `id, user_id, provider, provider_account_id, type,
	COALESCE(access_token, ''), COALESCE(refresh_token, ''), expires_at, created_at`

// PostgresLinkedAccountRepo はPostgreSQLを使用したlinked_accountsリポジトリ。
type PostgresLinkedAccountRepo struct {
	db Querier
}

// NewPostgresLinkedAccountRepo はPostgresLinkedAccountRepoを生成する。
func NewPostgresLinkedAccountRepo(db Querier) *PostgresLinkedAccountRepo {
	return &PostgresLinkedAccountRepo{db: db}
}

func scanAccount(row interface{ Scan(dest ...any) error }) (*model.LinkedAccount, error) {
	acc := &model.LinkedAccount{}
	var expiresAt sql.NullTime
	err := row.Scan(
		&acc.ID, &acc.UserID, &acc.Provider, &acc.ProviderAccountID, &acc.Type,
		&acc.AccessToken, &acc.RefreshToken, &expiresAt, &acc.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		acc.ExpiresAt = &t
	}
	return acc, nil
}

// FindByProviderAccount はproviderとprovider_account_idで紐付けを検索する。
// 見つからない場合はnilを返す。
func (r *PostgresLinkedAccountRepo) FindByProviderAccount(ctx context.Context, provider, providerAccountID string) (*model.LinkedAccount, error) {
	acc, err := scanAccount(r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM linked_accounts
		 WHERE provider = $1 AND provider_account_id = $2`,
		provider, providerAccountID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find linked account: %w", err)
	}
	return acc, nil
}

// ListByUserID はユーザーの紐付けを作成順に返す。
func (r *PostgresLinkedAccountRepo) ListByUserID(ctx context.Context, userID string) ([]*model.LinkedAccount, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM linked_accounts
		 WHERE user_id = $1
		 ORDER BY created_at ASC, id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list linked accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*model.LinkedAccount
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan linked account: %w", err)
		}
		accounts = append(accounts, acc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate linked accounts: %w", err)
	}
	return accounts, nil
}

// Create は紐付けを作成する。
func (r *PostgresLinkedAccountRepo) Create(ctx context.Context, acc *model.LinkedAccount) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO linked_accounts
		 (id, user_id, provider, provider_account_id, type, access_token, refresh_token, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		acc.ID, acc.UserID, acc.Provider, acc.ProviderAccountID, acc.Type,
		nullString(acc.AccessToken), nullString(acc.RefreshToken), acc.ExpiresAt, acc.CreatedAt,
	)
	if err != nil {
		return wrapUniqueViolation(err, "failed to insert linked account")
	}
	return nil
}

// UpdateTokens はキャッシュしているトークンを更新する。
func (r *PostgresLinkedAccountRepo) UpdateTokens(ctx context.Context, id, accessToken, refreshToken string, expiresAt *time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE linked_accounts
		 SET access_token = $2, refresh_token = COALESCE($3, refresh_token), expires_at = $4
		 WHERE id = $1`,
		id, nullString(accessToken), nullString(refreshToken), expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update linked account tokens: %w", err)
	}
	return nil
}

// DeleteByUserAndProvider はユーザーの指定プロバイダーの紐付けを削除し、削除件数を返す。
func (r *PostgresLinkedAccountRepo) DeleteByUserAndProvider(ctx context.Context, userID, provider string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM linked_accounts WHERE user_id = $1 AND provider = $2`,
		userID, provider,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete linked account: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ LinkedAccountRepository = (*PostgresLinkedAccountRepo)(nil)
