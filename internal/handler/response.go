// Package handler はHTTPハンドラーとルーティングを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hitoshi/learning-journal/internal/errorlog"
	"github.com/hitoshi/learning-journal/internal/middleware"
	"github.com/hitoshi/learning-journal/internal/model"
)

// maxRequestBodySize はJSONリクエストボディの上限（1MB）。
const maxRequestBodySize = 1 << 20

// ErrorRecorder は予期しないエラーを管理者向けエラーログに記録する。
type ErrorRecorder interface {
	Record(ctx context.Context, e errorlog.Entry)
}

// responder はレスポンスの書き込みとエラー処理を各ハンドラーに提供する。
type responder struct {
	errors ErrorRecorder
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// decodeJSON はリクエストボディをvにデコードする。不正なJSONはVALIDATION_FAILEDを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return model.NewValidationError("リクエストボディのJSONが不正です。")
	}
	return nil
}

// serviceError はサービス層のエラーをレスポンスに変換する。
// APIError以外は内部エラーとしてログとエラーログに記録し、詳細は返さない。
func (rs responder) serviceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, middleware.StatusForAPIError(apiErr), apiErr)
		return
	}

	userID, _ := middleware.UserIDFromContext(r.Context())
	slog.Error("internal server error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("user_id", userID),
		slog.String("error", err.Error()),
	)
	if rs.errors != nil {
		rs.errors.Record(r.Context(), errorlog.Entry{
			Level:   errorlog.LevelError,
			Message: err.Error(),
			Path:    r.URL.Path,
			Method:  r.Method,
			UserID:  userID,
		})
	}
	middleware.WriteInternalServerError(w)
}

// requireUserID はセッションのユーザーIDを返す。無い場合は401を書き込んでfalseを返す。
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewTokenInvalidError())
		return "", false
	}
	return userID, true
}

// viewerID は閲覧者のユーザーIDを返す。匿名の場合は空文字。
func viewerID(r *http.Request) string {
	userID, _ := middleware.UserIDFromContext(r.Context())
	return userID
}

// queryInt はクエリパラメータを整数として読む。未指定・不正値はdefを返す。
func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	return v
}
