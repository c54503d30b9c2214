package auth

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/learning-journal/internal/model"
)

// MinBcryptCost はパスワードハッシュに使用するbcryptコストの下限。
const MinBcryptCost = 10

// PasswordHasher はbcryptによるパスワードハッシュ化と照合を提供する。
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher はPasswordHasherを生成する。
// costがMinBcryptCost未満の場合はMinBcryptCostを使用する。
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < MinBcryptCost {
		cost = MinBcryptCost
	}
	return &PasswordHasher{cost: cost}
}

// Hash はパスワードをハッシュ化する。
// bcryptの上限（72バイト）を超える場合は入力値検証エラーを返す。
func (h *PasswordHasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", model.NewValidationError("password must be at most 72 bytes")
	}
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// Compare はハッシュと平文パスワードを定数時間で照合する。
func (h *PasswordHasher) Compare(hash, password string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// validatePasswordLength はパスワードが最小文字数を満たすかを検証する。
func validatePasswordLength(password string) error {
	if utf8.RuneCountInString(password) < model.MinPasswordLength {
		return model.NewPasswordTooShortError()
	}
	return nil
}
