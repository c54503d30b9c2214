// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/hitoshi/learning-journal/internal/model"
)

// ErrUniqueViolation は一意制約違反を表す。
// 同一メールアドレスでの同時初回サインインなど、競合の検出に使用する。
var ErrUniqueViolation = errors.New("unique constraint violation")

// Querier は*sql.DBと*sql.Txの共通インターフェース。
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail は正規化済みメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	// トランザクション内で呼ばれた場合は行ロック（FOR UPDATE）を取得する。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。メールアドレス重複時はErrUniqueViolationをラップして返す。
	Create(ctx context.Context, user *model.User) error

	// UpdatePrimaryAuthMethod はprimary_auth_methodを更新する。
	UpdatePrimaryAuthMethod(ctx context.Context, id, method string) error

	// UpdatePassword はパスワードハッシュとprimary_auth_methodを同時に更新する。
	UpdatePassword(ctx context.Context, id, passwordHash, primaryAuthMethod string) error

	// UpdateProfile は表示名・自己紹介・年齢・画像・公開設定を更新する。
	UpdateProfile(ctx context.Context, user *model.User) error

	// SearchPublic は公開プロフィールのユーザーを名前またはメールアドレスの部分一致で検索する。
	SearchPublic(ctx context.Context, query string, limit int) ([]*model.User, error)

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するlinked_accounts、units、logs等はCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// LinkedAccountRepository は外部プロバイダー紐付け情報の永続化インターフェース。
type LinkedAccountRepository interface {
	// FindByProviderAccount はproviderとprovider_account_idで紐付けを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAccount(ctx context.Context, provider, providerAccountID string) (*model.LinkedAccount, error)

	// ListByUserID はユーザーの紐付けをcreated_at昇順（同時刻はid昇順）で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.LinkedAccount, error)

	// Create は紐付けを作成する。一意制約違反時はErrUniqueViolationをラップして返す。
	Create(ctx context.Context, account *model.LinkedAccount) error

	// UpdateTokens はキャッシュしているアクセストークン等を更新する。
	UpdateTokens(ctx context.Context, id, accessToken, refreshToken string, expiresAt *time.Time) error

	// DeleteByUserAndProvider はユーザーの指定プロバイダーの紐付けを削除し、削除件数を返す。
	DeleteByUserAndProvider(ctx context.Context, userID, provider string) (int64, error)
}

// Repos はトランザクション単位で利用するリポジトリの組。
type Repos struct {
	Users    UserRepository
	Accounts LinkedAccountRepository
}

// TxRunner はリポジトリ操作を1つのトランザクションで実行する。
// fnがエラーを返した場合はロールバックし、そのエラーをそのまま返す。
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repos) error) error
}

// UnitRepository はユニットの永続化インターフェース。
type UnitRepository interface {
	// FindByID は指定IDのユニットをタグ付きで取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Unit, error)

	// ListByOwner はownerIDのユニット一覧をいいね数・コメント数付きで返す。
	// includePrivateがfalseの場合は公開ユニットのみを返す。
	// viewerIDはLikedByMeの算出に使用する（空文字可）。
	ListByOwner(ctx context.Context, ownerID, viewerID string, includePrivate bool) ([]model.UnitSummary, error)

	// Create はユニットとタグを同一トランザクションで作成する。
	Create(ctx context.Context, unit *model.Unit) error

	// Update はユニットを更新し、タグを置き換える。
	Update(ctx context.Context, unit *model.Unit) error

	// Delete はユニットを削除する。logs、unit_tags、comments、likesはCASCADE削除される。
	Delete(ctx context.Context, id string) error
}

// LogRepository は学習ログの永続化インターフェース。
type LogRepository interface {
	// FindByID は指定IDのログをタグ・リソース付きで取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Log, error)

	// ListByUnit はユニットのログをlog_date降順で返す。
	ListByUnit(ctx context.Context, unitID string) ([]*model.Log, error)

	// Create はログとタグ・リソースを同一トランザクションで作成する。
	Create(ctx context.Context, log *model.Log) error

	// Update はログを更新し、タグ・リソースを置き換える。
	Update(ctx context.Context, log *model.Log) error

	// Delete はログを削除する。log_tags、resourcesはCASCADE削除される。
	Delete(ctx context.Context, id string) error
}

// CommentRepository はコメントの永続化インターフェース。
type CommentRepository interface {
	FindByID(ctx context.Context, id string) (*model.Comment, error)
	ListByUnit(ctx context.Context, unitID string) ([]*model.Comment, error)
	Create(ctx context.Context, comment *model.Comment) error
	Delete(ctx context.Context, id string) error
}

// LikeRepository はいいねの永続化インターフェース。
type LikeRepository interface {
	// Like はいいねを冪等に登録する。
	Like(ctx context.Context, unitID, userID string) error
	// Unlike はいいねを冪等に解除する。
	Unlike(ctx context.Context, unitID, userID string) error
	// Count はユニットのいいね数を返す。
	Count(ctx context.Context, unitID string) (int, error)
}

// ErrorLogRepository は管理者向けエラーログの永続化インターフェース。
type ErrorLogRepository interface {
	Create(ctx context.Context, entry *model.ErrorLog) error
	// List はcreated_at降順でエラーログを返し、総件数も返す。
	List(ctx context.Context, limit, offset int) ([]*model.ErrorLog, int, error)
}
