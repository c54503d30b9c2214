package repository

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// pqUniqueViolation はPostgreSQLのunique_violationエラーコード。
const pqUniqueViolation = "23505"

// wrapUniqueViolation は一意制約違反をErrUniqueViolationでラップする。
// それ以外のエラーはmsgを付けてラップする。
func wrapUniqueViolation(err error, msg string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
		return fmt.Errorf("%s: %w (%s)", msg, ErrUniqueViolation, pqErr.Constraint)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// nullString は空文字列をNULLとして保存するための変換。
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// likeEscaper はLIKEパターンのメタ文字をエスケープする。
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// escapeLike はユーザー入力をLIKEパターンの固定文字列として扱えるようにする。
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
