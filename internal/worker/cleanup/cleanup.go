// Package cleanup は保持期間を過ぎたエラーログを削除するジョブを提供する。
// cleanupサブコマンドからcronなどで日次実行することを想定する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// DefaultRetentionDays はエラーログの既定の保持日数。
const DefaultRetentionDays = 30

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付ける。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Job は保持期間を超過したerror_logsの行を削除する。冪等。
type Job struct {
	db            Executor
	logger        *slog.Logger
	RetentionDays int
}

// NewJob はJobを生成する。retentionDaysが0以下の場合はDefaultRetentionDaysを使う。
func NewJob(db Executor, logger *slog.Logger, retentionDays int) *Job {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &Job{
		db:            db,
		logger:        logger,
		RetentionDays: retentionDays,
	}
}

// Run はcreated_atがRetentionDays日より古いエラーログを削除し、削除件数を返す。
func (j *Job) Run(ctx context.Context) (int64, error) {
	start := time.Now()
	interval := fmt.Sprintf("%d days", j.RetentionDays)

	result, err := j.db.ExecContext(ctx,
		`DELETE FROM error_logs WHERE created_at < now() - $1::interval`,
		interval,
	)
	if err != nil {
		j.logger.Error("error log cleanup failed",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return 0, fmt.Errorf("failed to delete expired error logs: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get deleted count: %w", err)
	}

	j.logger.Info("error log cleanup completed",
		slog.Int64("deleted_count", deleted),
		slog.Int("retention_days", j.RetentionDays),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return deleted, nil
}
