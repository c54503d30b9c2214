package model

import (
	"fmt"
	"strings"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string         // エラーコード
	Message  string         // エラーメッセージ
	Category string         // カテゴリ: auth, validation, journal, system
	Action   string         // ユーザー向け対処方法
	Details  map[string]any // 追加情報（任意）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Is はerrors.Isでエラーコード単位の比較を可能にする。
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// 定義済みエラーコード
const (
	ErrCodeInvalidCredentials   = "INVALID_CREDENTIALS"
	ErrCodeNoPasswordSet        = "NO_PASSWORD_SET"
	ErrCodeAlreadyRegistered    = "ALREADY_REGISTERED"
	ErrCodePasswordAlreadySet   = "PASSWORD_ALREADY_SET"
	ErrCodePasswordMismatch     = "PASSWORD_MISMATCH"
	ErrCodePasswordTooShort     = "PASSWORD_TOO_SHORT"
	ErrCodeWrongCurrentPassword = "WRONG_CURRENT_PASSWORD"
	ErrCodeLastAuthMethod       = "LAST_AUTH_METHOD"
	ErrCodeProviderNotLinked    = "PROVIDER_NOT_LINKED"
	ErrCodeUnknownProvider      = "UNKNOWN_PROVIDER"
	ErrCodeTokenExpired         = "TOKEN_EXPIRED"
	ErrCodeTokenInvalid         = "TOKEN_INVALID"
	ErrCodeStoreUnavailable     = "STORE_UNAVAILABLE"
	ErrCodeUserNotFound         = "USER_NOT_FOUND"
	ErrCodeUnitNotFound         = "UNIT_NOT_FOUND"
	ErrCodeLogNotFound          = "LOG_NOT_FOUND"
	ErrCodeCommentNotFound      = "COMMENT_NOT_FOUND"
	ErrCodeForbidden            = "FORBIDDEN"
	ErrCodeCSRFInvalid          = "CSRF_INVALID"
	ErrCodeValidationFailed     = "VALIDATION_FAILED"
)

// MinPasswordLength はパスワードの最小文字数。
const MinPasswordLength = 8

// NewInvalidCredentialsError はメールアドレスまたはパスワード不一致のエラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewNoPasswordSetError はOAuthのみで登録されたユーザーがパスワードでログインしようとした場合のエラーを生成する。
// details.available_providers に利用可能なプロバイダー名を列挙する。
func NewNoPasswordSetError(providers []string) *APIError {
	return &APIError{
		Code:     ErrCodeNoPasswordSet,
		Message:  fmt.Sprintf("このアカウントにはパスワードが設定されていません。%s でログインしてください。", strings.Join(providers, ", ")),
		Category: "auth",
		Action:   "連携済みのプロバイダーでログインし、設定画面からパスワードを設定してください。",
		Details:  map[string]any{"available_providers": providers},
	}
}

// NewAlreadyRegisteredError は登録済みメールアドレスでの再登録エラーを生成する。
func NewAlreadyRegisteredError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyRegistered,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "auth",
		Action:   "ログイン画面からログインしてください。",
	}
}

// NewPasswordAlreadySetError はパスワード設定済みユーザーへの初回設定エラーを生成する。
func NewPasswordAlreadySetError() *APIError {
	return &APIError{
		Code:     ErrCodePasswordAlreadySet,
		Message:  "パスワードは既に設定されています。",
		Category: "auth",
		Action:   "パスワード変更を利用してください。",
	}
}

// NewPasswordMismatchError は新しいパスワードと確認用パスワードの不一致エラーを生成する。
func NewPasswordMismatchError() *APIError {
	return &APIError{
		Code:     ErrCodePasswordMismatch,
		Message:  "新しいパスワードと確認用パスワードが一致しません。",
		Category: "validation",
		Action:   "同じパスワードを2回入力してください。",
	}
}

// NewPasswordTooShortError はパスワード長不足のエラーを生成する。
func NewPasswordTooShortError() *APIError {
	return &APIError{
		Code:     ErrCodePasswordTooShort,
		Message:  fmt.Sprintf("パスワードは%d文字以上で指定してください。", MinPasswordLength),
		Category: "validation",
		Action:   "より長いパスワードを入力してください。",
	}
}

// NewWrongCurrentPasswordError は現在のパスワード不一致エラーを生成する。
func NewWrongCurrentPasswordError() *APIError {
	return &APIError{
		Code:     ErrCodeWrongCurrentPassword,
		Message:  "現在のパスワードが正しくありません。",
		Category: "auth",
		Action:   "現在のパスワードを確認してください。",
	}
}

// NewLastAuthMethodError は最後の認証手段を削除しようとした場合のエラーを生成する。
func NewLastAuthMethodError() *APIError {
	return &APIError{
		Code:     ErrCodeLastAuthMethod,
		Message:  "最後のログイン手段は解除できません。",
		Category: "auth",
		Action:   "パスワードを設定するか別のプロバイダーを連携してから解除してください。",
	}
}

// NewProviderNotLinkedError は連携されていないプロバイダーの解除エラーを生成する。
func NewProviderNotLinkedError(provider string) *APIError {
	return &APIError{
		Code:     ErrCodeProviderNotLinked,
		Message:  fmt.Sprintf("%s は連携されていません。", provider),
		Category: "auth",
		Action:   "連携済みのプロバイダーを確認してください。",
	}
}

// NewUnknownProviderError は未対応または無効化されたプロバイダーのエラーを生成する。
func NewUnknownProviderError(provider string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownProvider,
		Message:  fmt.Sprintf("未対応のプロバイダーです: %s", provider),
		Category: "auth",
		Action:   "google、github、discord のいずれかを利用してください。",
	}
}

// NewTokenExpiredError はセッショントークンの期限切れエラーを生成する。
func NewTokenExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeTokenExpired,
		Message:  "セッションの有効期限が切れました。",
		Category: "auth",
		Action:   "再度ログインしてください。",
	}
}

// NewTokenInvalidError は改ざんまたは不正な形式のトークンのエラーを生成する。
func NewTokenInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeTokenInvalid,
		Message:  "セッションが無効です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewStoreUnavailableError はデータストアに接続できない場合のエラーを生成する。
func NewStoreUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeStoreUnavailable,
		Message:  "データベースに接続できません。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewUnitNotFoundError はUnitが見つからない場合のエラーを生成する。
func NewUnitNotFoundError(unitID string) *APIError {
	return &APIError{
		Code:     ErrCodeUnitNotFound,
		Message:  fmt.Sprintf("指定されたユニットが見つかりません: %s", unitID),
		Category: "journal",
		Action:   "ユニットIDを確認してください。",
	}
}

// NewLogNotFoundError はログが見つからない場合のエラーを生成する。
func NewLogNotFoundError(logID string) *APIError {
	return &APIError{
		Code:     ErrCodeLogNotFound,
		Message:  fmt.Sprintf("指定されたログが見つかりません: %s", logID),
		Category: "journal",
		Action:   "ログIDを確認してください。",
	}
}

// NewCommentNotFoundError はコメントが見つからない場合のエラーを生成する。
func NewCommentNotFoundError(commentID string) *APIError {
	return &APIError{
		Code:     ErrCodeCommentNotFound,
		Message:  fmt.Sprintf("指定されたコメントが見つかりません: %s", commentID),
		Category: "journal",
		Action:   "コメントIDを確認してください。",
	}
}

// NewForbiddenError は他人のリソースを操作しようとした場合のエラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "自分のリソースのみ操作できます。",
	}
}

// NewCSRFInvalidError はCSRFトークンが無い・一致しない場合のエラーを生成する。
func NewCSRFInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFInvalid,
		Message:  "CSRFトークンの検証に失敗しました。",
		Category: "auth",
		Action:   "ページを再読み込みしてから再度お試しください。",
	}
}

// NewValidationError は入力値検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  fmt.Sprintf("入力内容が不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}
