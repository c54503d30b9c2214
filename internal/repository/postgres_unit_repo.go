package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/learning-journal/internal/model"
)

// unitTagsSubquery はユニットのタグ名を配列で取得するサブクエリ。
const unitTagsSubquery = `COALESCE((SELECT array_agg(t.name ORDER BY t.name)
	FROM unit_tags ut JOIN tags t ON t.id = ut.tag_id WHERE ut.unit_id = u.id), '{}')`

// PostgresUnitRepo はPostgreSQLを使用したユニットリポジトリ。
type PostgresUnitRepo struct {
	db *sql.DB
}

// NewPostgresUnitRepo はPostgresUnitRepoを生成する。
func NewPostgresUnitRepo(db *sql.DB) *PostgresUnitRepo {
	return &PostgresUnitRepo{db: db}
}

// FindByID は指定IDのユニットをタグ付きで取得する。見つからない場合はnilを返す。
func (r *PostgresUnitRepo) FindByID(ctx context.Context, id string) (*model.Unit, error) {
	unit := &model.Unit{}
	err := r.db.QueryRowContext(ctx,
		`SELECT u.id, u.user_id, u.title, u.description, u.is_public, u.created_at, u.updated_at, `+unitTagsSubquery+`
		 FROM units u WHERE u.id = $1`,
		id,
	).Scan(&unit.ID, &unit.UserID, &unit.Title, &unit.Description, &unit.IsPublic,
		&unit.CreatedAt, &unit.UpdatedAt, pq.Array(&unit.Tags))

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find unit: %w", err)
	}
	return unit, nil
}

// ListByOwner はownerIDのユニット一覧をいいね数・コメント数付きでcreated_at降順に返す。
func (r *PostgresUnitRepo) ListByOwner(ctx context.Context, ownerID, viewerID string, includePrivate bool) ([]model.UnitSummary, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT u.id, u.user_id, u.title, u.description, u.is_public, u.created_at, u.updated_at, `+unitTagsSubquery+`,
		        (SELECT COUNT(*) FROM likes l WHERE l.unit_id = u.id),
		        (SELECT COUNT(*) FROM comments c WHERE c.unit_id = u.id),
		        EXISTS (SELECT 1 FROM likes l WHERE l.unit_id = u.id AND l.user_id::text = $2)
		 FROM units u
		 WHERE u.user_id = $1 AND (u.is_public OR $3)
		 ORDER BY u.created_at DESC, u.id`,
		ownerID, viewerID, includePrivate,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list units: %w", err)
	}
	defer rows.Close()

	var units []model.UnitSummary
	for rows.Next() {
		var s model.UnitSummary
		if err := rows.Scan(&s.ID, &s.UserID, &s.Title, &s.Description, &s.IsPublic,
			&s.CreatedAt, &s.UpdatedAt, pq.Array(&s.Tags),
			&s.LikeCount, &s.CommentCount, &s.LikedByMe); err != nil {
			return nil, fmt.Errorf("failed to scan unit: %w", err)
		}
		units = append(units, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate units: %w", err)
	}
	return units, nil
}

// Create はユニットとタグを同一トランザクションで作成する。
func (r *PostgresUnitRepo) Create(ctx context.Context, unit *model.Unit) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO units (id, user_id, title, description, is_public, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		unit.ID, unit.UserID, unit.Title, unit.Description, unit.IsPublic, unit.CreatedAt, unit.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert unit: %w", err)
	}
	if err := replaceTags(ctx, tx, "unit_tags", "unit_id", unit.ID, unit.Tags); err != nil {
		return err
	}
	return tx.Commit()
}

// Update はユニットを更新し、タグを置き換える。
func (r *PostgresUnitRepo) Update(ctx context.Context, unit *model.Unit) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE units SET title = $2, description = $3, is_public = $4, updated_at = $5 WHERE id = $1`,
		unit.ID, unit.Title, unit.Description, unit.IsPublic, unit.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update unit: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("unit not found: %s", unit.ID)
	}
	if err := replaceTags(ctx, tx, "unit_tags", "unit_id", unit.ID, unit.Tags); err != nil {
		return err
	}
	return tx.Commit()
}

// Delete はユニットを削除する。
func (r *PostgresUnitRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM units WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete unit: %w", err)
	}
	return nil
}

// compile-time interface check
var _ UnitRepository = (*PostgresUnitRepo)(nil)
