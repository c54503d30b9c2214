package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hitoshi/learning-journal/internal/model"
)

const logColumns = `l.id, l.unit_id, l.user_id, l.title, l.body, l.log_date, l.minutes_spent, l.created_at, l.updated_at,
	COALESCE((SELECT array_agg(t.name ORDER BY t.name)
		FROM log_tags lt JOIN tags t ON t.id = lt.tag_id WHERE lt.log_id = l.id), '{}')`

// PostgresLogRepo はPostgreSQLを使用した学習ログリポジトリ。
type PostgresLogRepo struct {
	db *sql.DB
}

// NewPostgresLogRepo はPostgresLogRepoを生成する。
func NewPostgresLogRepo(db *sql.DB) *PostgresLogRepo {
	return &PostgresLogRepo{db: db}
}

func scanLog(row interface{ Scan(dest ...any) error }) (*model.Log, error) {
	l := &model.Log{}
	err := row.Scan(&l.ID, &l.UnitID, &l.UserID, &l.Title, &l.Body, &l.LogDate, &l.MinutesSpent,
		&l.CreatedAt, &l.UpdatedAt, pq.Array(&l.Tags))
	if err != nil {
		return nil, err
	}
	return l, nil
}

// FindByID は指定IDのログをタグ・リソース付きで取得する。見つからない場合はnilを返す。
func (r *PostgresLogRepo) FindByID(ctx context.Context, id string) (*model.Log, error) {
	l, err := scanLog(r.db.QueryRowContext(ctx,
		`SELECT `+logColumns+` FROM logs l WHERE l.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find log: %w", err)
	}

	resources, err := r.listResources(ctx, []string{l.ID})
	if err != nil {
		return nil, err
	}
	l.Resources = resources[l.ID]
	return l, nil
}

// ListByUnit はユニットのログをlog_date降順で返す。
func (r *PostgresLogRepo) ListByUnit(ctx context.Context, unitID string) ([]*model.Log, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+logColumns+` FROM logs l WHERE l.unit_id = $1
		 ORDER BY l.log_date DESC, l.created_at DESC`,
		unitID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list logs: %w", err)
	}
	defer rows.Close()

	var logs []*model.Log
	var ids []string
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan log: %w", err)
		}
		logs = append(logs, l)
		ids = append(ids, l.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate logs: %w", err)
	}
	if len(ids) == 0 {
		return logs, nil
	}

	resources, err := r.listResources(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, l := range logs {
		l.Resources = resources[l.ID]
	}
	return logs, nil
}

// listResources は複数ログのリソースをまとめて取得し、ログID別に返す。
func (r *PostgresLogRepo) listResources(ctx context.Context, logIDs []string) (map[string][]model.Resource, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, log_id, url, title FROM resources
		 WHERE log_id::text = ANY($1::text[]) ORDER BY url, id`,
		pq.Array(logIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]model.Resource)
	for rows.Next() {
		var res model.Resource
		if err := rows.Scan(&res.ID, &res.LogID, &res.URL, &res.Title); err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		out[res.LogID] = append(out[res.LogID], res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate resources: %w", err)
	}
	return out, nil
}

// Create はログとタグ・リソースを同一トランザクションで作成する。
func (r *PostgresLogRepo) Create(ctx context.Context, l *model.Log) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO logs (id, unit_id, user_id, title, body, log_date, minutes_spent, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		l.ID, l.UnitID, l.UserID, l.Title, l.Body, l.LogDate, l.MinutesSpent, l.CreatedAt, l.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert log: %w", err)
	}
	if err := replaceTags(ctx, tx, "log_tags", "log_id", l.ID, l.Tags); err != nil {
		return err
	}
	if err := replaceResources(ctx, tx, l); err != nil {
		return err
	}
	return tx.Commit()
}

// Update はログを更新し、タグ・リソースを置き換える。
func (r *PostgresLogRepo) Update(ctx context.Context, l *model.Log) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE logs SET title = $2, body = $3, log_date = $4, minutes_spent = $5, updated_at = $6
		 WHERE id = $1`,
		l.ID, l.Title, l.Body, l.LogDate, l.MinutesSpent, l.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update log: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("log not found: %s", l.ID)
	}
	if err := replaceTags(ctx, tx, "log_tags", "log_id", l.ID, l.Tags); err != nil {
		return err
	}
	if err := replaceResources(ctx, tx, l); err != nil {
		return err
	}
	return tx.Commit()
}

// replaceResources はログのリソースを全件置き換える。IDが未設定のリソースには採番する。
func replaceResources(ctx context.Context, q Querier, l *model.Log) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM resources WHERE log_id = $1`, l.ID); err != nil {
		return fmt.Errorf("failed to clear resources: %w", err)
	}
	for i := range l.Resources {
		res := &l.Resources[i]
		if res.ID == "" {
			res.ID = uuid.New().String()
		}
		res.LogID = l.ID
		if _, err := q.ExecContext(ctx,
			`INSERT INTO resources (id, log_id, url, title) VALUES ($1, $2, $3, $4)`,
			res.ID, res.LogID, res.URL, res.Title,
		); err != nil {
			return fmt.Errorf("failed to insert resource: %w", err)
		}
	}
	return nil
}

// Delete はログを削除する。
func (r *PostgresLogRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM logs WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete log: %w", err)
	}
	return nil
}

// compile-time interface check
var _ LogRepository = (*PostgresLogRepo)(nil)
