package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/learning-journal/internal/model"
)

const userColumns = `id, email, email_synthetic, name, COALESCE(password_hash, ''), primary_auth_method,
	bio, age, image, is_public, created_at, updated_at`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db        Querier
	forUpdate bool
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db Querier) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

func scanUser(row interface{ Scan(dest ...any) error }) (*model.User, error) {
	user := &model.User{}
	var age sql.NullInt64
	err := row.Scan(
		&user.ID, &user.Email, &user.EmailSynthetic, &user.Name, &user.PasswordHash, &user.PrimaryAuthMethod,
		&user.Bio, &age, &user.Image, &user.IsPublic, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if age.Valid {
		v := int(age.Int64)
		user.Age = &v
	}
	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	if r.forUpdate {
		query += ` FOR UPDATE`
	}
	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByEmail は正規化済みメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	if r.forUpdate {
		query += ` FOR UPDATE`
	}
	user, err := scanUser(r.db.QueryRowContext(ctx, query, model.NormalizeEmail(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user, nil
}

// Create はユーザーを作成する。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, email_synthetic, name, password_hash, primary_auth_method, bio, age, image, is_public, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		user.ID, model.NormalizeEmail(user.Email), user.EmailSynthetic, user.Name, nullString(user.PasswordHash), user.PrimaryAuthMethod,
		user.Bio, user.Age, user.Image, user.IsPublic, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return wrapUniqueViolation(err, "failed to insert user")
	}
	return nil
}

// UpdatePrimaryAuthMethod はprimary_auth_methodを更新する。
func (r *PostgresUserRepo) UpdatePrimaryAuthMethod(ctx context.Context, id, method string) error {
	return r.execOne(ctx, "failed to update primary auth method",
		`UPDATE users SET primary_auth_method = $2, updated_at = $3 WHERE id = $1`,
		id, method, time.Now(),
	)
}

// UpdatePassword はパスワードハッシュとprimary_auth_methodを同時に更新する。
func (r *PostgresUserRepo) UpdatePassword(ctx context.Context, id, passwordHash, primaryAuthMethod string) error {
	return r.execOne(ctx, "failed to update password",
		`UPDATE users SET password_hash = $2, primary_auth_method = $3, updated_at = $4 WHERE id = $1`,
		id, passwordHash, primaryAuthMethod, time.Now(),
	)
}

// UpdateProfile はプロフィール項目を更新する。
func (r *PostgresUserRepo) UpdateProfile(ctx context.Context, user *model.User) error {
	return r.execOne(ctx, "failed to update profile",
		`UPDATE users SET name = $2, bio = $3, age = $4, image = $5, is_public = $6, updated_at = $7
		 WHERE id = $1`,
		user.ID, user.Name, user.Bio, user.Age, user.Image, user.IsPublic, user.UpdatedAt,
	)
}

// SearchPublic は公開プロフィールのユーザーを名前またはメールアドレスの部分一致で検索する。
func (r *PostgresUserRepo) SearchPublic(ctx context.Context, query string, limit int) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE is_public AND (lower(name) LIKE $1 OR email LIKE $1)
		 ORDER BY name, id
		 LIMIT $2`,
		"%"+escapeLike(strings.ToLower(query))+"%", limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

// DeleteByID は指定IDのユーザーを削除する。
// 関連するlinked_accounts、units、logs等はCASCADE削除される。
func (r *PostgresUserRepo) DeleteByID(ctx context.Context, id string) error {
	return r.execOne(ctx, "failed to delete user", `DELETE FROM users WHERE id = $1`, id)
}

// execOne は1行更新を期待するSQLを実行する。対象が存在しない場合はエラーを返す。
func (r *PostgresUserRepo) execOne(ctx context.Context, msg, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", msg, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s: user not found: %v", msg, args[0])
	}
	return nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
