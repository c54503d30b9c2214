package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// PostgresTxRunner はPostgreSQLトランザクションでリポジトリ操作をまとめて実行する。
type PostgresTxRunner struct {
	db TxBeginner
}

// NewPostgresTxRunner はPostgresTxRunnerを生成する。
func NewPostgresTxRunner(db TxBeginner) *PostgresTxRunner {
	return &PostgresTxRunner{db: db}
}

// WithinTx はfnをトランザクション内で実行する。
// トランザクション内のユーザー読み取りはFOR UPDATEで行ロックを取得する。
func (r *PostgresTxRunner) WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repos) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	repos := Repos{
		Users:    &PostgresUserRepo{db: tx, forUpdate: true},
		Accounts: NewPostgresLinkedAccountRepo(tx),
	}

	if err := fn(ctx, repos); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return wrapUniqueViolation(err, "failed to commit transaction")
	}
	return nil
}

// compile-time interface check
var _ TxRunner = (*PostgresTxRunner)(nil)
