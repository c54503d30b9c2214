package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/learning-journal/internal/model"
)

// PostgresCommentRepo はPostgreSQLを使用したコメントリポジトリ。
type PostgresCommentRepo struct {
	db Querier
}

// NewPostgresCommentRepo はPostgresCommentRepoを生成する。
func NewPostgresCommentRepo(db Querier) *PostgresCommentRepo {
	return &PostgresCommentRepo{db: db}
}

// FindByID は指定IDのコメントを取得する。見つからない場合はnilを返す。
func (r *PostgresCommentRepo) FindByID(ctx context.Context, id string) (*model.Comment, error) {
	c := &model.Comment{}
	err := r.db.QueryRowContext(ctx,
		`SELECT c.id, c.unit_id, c.user_id, u.name, c.body, c.created_at
		 FROM comments c JOIN users u ON u.id = c.user_id
		 WHERE c.id = $1`,
		id,
	).Scan(&c.ID, &c.UnitID, &c.UserID, &c.UserName, &c.Body, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find comment: %w", err)
	}
	return c, nil
}

// ListByUnit はユニットのコメントを投稿順に返す。
func (r *PostgresCommentRepo) ListByUnit(ctx context.Context, unitID string) ([]*model.Comment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT c.id, c.unit_id, c.user_id, u.name, c.body, c.created_at
		 FROM comments c JOIN users u ON u.id = c.user_id
		 WHERE c.unit_id = $1
		 ORDER BY c.created_at, c.id`,
		unitID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	var comments []*model.Comment
	for rows.Next() {
		c := &model.Comment{}
		if err := rows.Scan(&c.ID, &c.UnitID, &c.UserID, &c.UserName, &c.Body, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate comments: %w", err)
	}
	return comments, nil
}

// Create はコメントを作成する。
func (r *PostgresCommentRepo) Create(ctx context.Context, c *model.Comment) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO comments (id, unit_id, user_id, body, created_at) VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.UnitID, c.UserID, c.Body, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert comment: %w", err)
	}
	return nil
}

// Delete はコメントを削除する。
func (r *PostgresCommentRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM comments WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete comment: %w", err)
	}
	return nil
}

// PostgresLikeRepo はPostgreSQLを使用したいいねリポジトリ。
type PostgresLikeRepo struct {
	db Querier
}

// NewPostgresLikeRepo はPostgresLikeRepoを生成する。
func NewPostgresLikeRepo(db Querier) *PostgresLikeRepo {
	return &PostgresLikeRepo{db: db}
}

// Like はいいねを冪等に登録する。
func (r *PostgresLikeRepo) Like(ctx context.Context, unitID, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO likes (unit_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		unitID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert like: %w", err)
	}
	return nil
}

// Unlike はいいねを冪等に解除する。
func (r *PostgresLikeRepo) Unlike(ctx context.Context, unitID, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM likes WHERE unit_id = $1 AND user_id = $2`, unitID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete like: %w", err)
	}
	return nil
}

// Count はユニットのいいね数を返す。
func (r *PostgresLikeRepo) Count(ctx context.Context, unitID string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM likes WHERE unit_id = $1`, unitID,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count likes: %w", err)
	}
	return n, nil
}

// compile-time interface checks
var (
	_ CommentRepository = (*PostgresCommentRepo)(nil)
	_ LikeRepository    = (*PostgresLikeRepo)(nil)
)
