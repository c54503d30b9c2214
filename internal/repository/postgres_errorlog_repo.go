package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/learning-journal/internal/model"
)

// PostgresErrorLogRepo はPostgreSQLを使用したエラーログリポジトリ。
type PostgresErrorLogRepo struct {
	db Querier
}

// NewPostgresErrorLogRepo はPostgresErrorLogRepoを生成する。
func NewPostgresErrorLogRepo(db Querier) *PostgresErrorLogRepo {
	return &PostgresErrorLogRepo{db: db}
}

// Create はエラーログを1件記録する。
func (r *PostgresErrorLogRepo) Create(ctx context.Context, entry *model.ErrorLog) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO error_logs (id, level, message, path, method, user_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.Level, entry.Message, entry.Path, entry.Method, nullString(entry.UserID), entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert error log: %w", err)
	}
	return nil
}

// List はcreated_at降順でエラーログを返し、総件数も返す。
func (r *PostgresErrorLogRepo) List(ctx context.Context, limit, offset int) ([]*model.ErrorLog, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM error_logs`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count error logs: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, level, message, path, method, user_id, created_at
		 FROM error_logs
		 ORDER BY created_at DESC, id
		 LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list error logs: %w", err)
	}
	defer rows.Close()

	var entries []*model.ErrorLog
	for rows.Next() {
		e := &model.ErrorLog{}
		var userID sql.NullString
		if err := rows.Scan(&e.ID, &e.Level, &e.Message, &e.Path, &e.Method, &userID, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan error log: %w", err)
		}
		e.UserID = userID.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate error logs: %w", err)
	}
	return entries, total, nil
}

// compile-time interface check
var _ ErrorLogRepository = (*PostgresErrorLogRepo)(nil)
