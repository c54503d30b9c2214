// Package journal はユニット（学習目標）・学習ログ・コメント・いいねのドメインロジックを提供する。
//
// 公開範囲のルール:
//   - 非公開ユニットとそのログ・コメントは所有者以外には存在しないものとして扱う
//   - 変更操作は所有者のみ可能（コメントは投稿者またはユニット所有者が削除できる）
package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/learning-journal/internal/model"
	"github.com/hitoshi/learning-journal/internal/repository"
	"github.com/hitoshi/learning-journal/internal/resource"
)

// Sanitizer はユーザー入力テキストのサニタイズを行う。
type Sanitizer interface {
	SanitizeRich(raw string) string
	SanitizePlain(raw string) string
}

// URLValidator はリソースURLの静的検証を行う。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// Deps はServiceの依存関係。
type Deps struct {
	Units     repository.UnitRepository
	Logs      repository.LogRepository
	Comments  repository.CommentRepository
	Likes     repository.LikeRepository
	Sanitizer Sanitizer
	URLs      URLValidator
	// Titles はリソースのタイトル補完に使う。nilの場合は補完しない。
	Titles resource.TitleLookup
}

// Service は学習記録のサービス層。
type Service struct {
	units     repository.UnitRepository
	logs      repository.LogRepository
	comments  repository.CommentRepository
	likes     repository.LikeRepository
	sanitizer Sanitizer
	urls      URLValidator
	titles    resource.TitleLookup
	now       func() time.Time
	newID     func() string
}

// NewService はServiceを生成する。
func NewService(deps Deps) *Service {
	return &Service{
		units:     deps.Units,
		logs:      deps.Logs,
		comments:  deps.Comments,
		likes:     deps.Likes,
		sanitizer: deps.Sanitizer,
		urls:      deps.URLs,
		titles:    deps.Titles,
		now:       time.Now,
		newID:     newUUID,
	}
}

// visibleUnit はviewerが閲覧できるユニットを返す。
// 存在しない、または他人の非公開ユニットの場合はUNIT_NOT_FOUNDを返す。
func (s *Service) visibleUnit(ctx context.Context, viewerID, unitID string) (*model.Unit, error) {
	unit, err := s.units.FindByID(ctx, unitID)
	if err != nil {
		return nil, fmt.Errorf("failed to find unit: %w", err)
	}
	if unit == nil || (!unit.IsPublic && unit.UserID != viewerID) {
		return nil, model.NewUnitNotFoundError(unitID)
	}
	return unit, nil
}

// ownedUnit はuserIDが所有するユニットを返す。
// 閲覧できるが所有していない場合はFORBIDDENを返す。
func (s *Service) ownedUnit(ctx context.Context, userID, unitID string) (*model.Unit, error) {
	unit, err := s.visibleUnit(ctx, userID, unitID)
	if err != nil {
		return nil, err
	}
	if unit.UserID != userID {
		return nil, model.NewForbiddenError()
	}
	return unit, nil
}
