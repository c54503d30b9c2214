// Package errorlog は管理者ダッシュボード向けのエラーログ記録と一覧を提供する。
package errorlog

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/learning-journal/internal/model"
	"github.com/hitoshi/learning-journal/internal/repository"
)

const (
	// LevelError はハンドラーで捕捉した予期しないエラーのレベル。
	LevelError = "error"

	defaultPerPage   = 50
	maxPerPage       = 200
	maxMessageLength = 2000
)

// Entry は記録するエラーの内容。
type Entry struct {
	Level   string
	Message string
	Path    string
	Method  string
	UserID  string
}

// Page はエラーログ一覧の1ページ分。
type Page struct {
	Entries []*model.ErrorLog
	Total   int
	Page    int
	PerPage int
}

// Counter は記録件数を数える。metrics.Collectorが満たす。
type Counter interface {
	RecordErrorLogged()
}

// Service はエラーログのサービス層。
type Service struct {
	repo    repository.ErrorLogRepository
	counter Counter
	now     func() time.Time
}

// NewService はServiceを生成する。counterはnil可。
func NewService(repo repository.ErrorLogRepository, counter Counter) *Service {
	return &Service{repo: repo, counter: counter, now: time.Now}
}

// Record はエラーを記録する。記録自体の失敗はログに残して握りつぶす。
func (s *Service) Record(ctx context.Context, e Entry) {
	level := e.Level
	if level == "" {
		level = LevelError
	}
	entry := &model.ErrorLog{
		ID:        uuid.NewString(),
		Level:     level,
		Message:   truncate(e.Message, maxMessageLength),
		Path:      e.Path,
		Method:    e.Method,
		UserID:    e.UserID,
		CreatedAt: s.now(),
	}

	// リクエストのキャンセルに巻き込まれないよう切り離す
	if err := s.repo.Create(context.WithoutCancel(ctx), entry); err != nil {
		slog.Warn("failed to record error log",
			slog.String("path", e.Path),
			slog.String("error", err.Error()),
		)
		return
	}
	if s.counter != nil {
		s.counter.RecordErrorLogged()
	}
}

// List はエラーログを新しい順に返す。pageは1始まり。
func (s *Service) List(ctx context.Context, page, perPage int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	entries, total, err := s.repo.List(ctx, perPage, (page-1)*perPage)
	if err != nil {
		return nil, fmt.Errorf("failed to list error logs: %w", err)
	}
	if entries == nil {
		entries = []*model.ErrorLog{}
	}
	return &Page{Entries: entries, Total: total, Page: page, PerPage: perPage}, nil
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
