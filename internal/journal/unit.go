package journal

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/learning-journal/internal/model"
)

// UnitInput はユニット作成・更新の入力。IsPublicがnilの場合、作成時は公開、更新時は変更しない。
type UnitInput struct {
	Title       string
	Description string
	IsPublic    *bool
	Tags        []string
}

// UnitDetail はユニット詳細の表示用データ。
type UnitDetail struct {
	Unit      *model.Unit
	LikeCount int
	IsOwner   bool
}

func (s *Service) applyUnitInput(unit *model.Unit, in UnitInput) error {
	title := s.sanitizer.SanitizePlain(in.Title)
	if err := requireText("タイトル", title, maxTitleLength); err != nil {
		return err
	}
	description := s.sanitizer.SanitizePlain(in.Description)
	if err := limitText("説明", description, maxDescriptionLength); err != nil {
		return err
	}
	tags, err := normalizeTags(in.Tags)
	if err != nil {
		return err
	}

	unit.Title = title
	unit.Description = description
	unit.Tags = tags
	if in.IsPublic != nil {
		unit.IsPublic = *in.IsPublic
	}
	return nil
}

// CreateUnit はユニットを作成する。
func (s *Service) CreateUnit(ctx context.Context, userID string, in UnitInput) (*model.Unit, error) {
	now := s.now()
	unit := &model.Unit{
		ID:        s.newID(),
		UserID:    userID,
		IsPublic:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.applyUnitInput(unit, in); err != nil {
		return nil, err
	}

	if err := s.units.Create(ctx, unit); err != nil {
		return nil, fmt.Errorf("failed to create unit: %w", err)
	}

	slog.Info("unit created",
		slog.String("user_id", userID),
		slog.String("unit_id", unit.ID),
	)
	return unit, nil
}

// GetUnit はviewerから見たユニット詳細を返す。
func (s *Service) GetUnit(ctx context.Context, viewerID, unitID string) (*UnitDetail, error) {
	unit, err := s.visibleUnit(ctx, viewerID, unitID)
	if err != nil {
		return nil, err
	}
	count, err := s.likes.Count(ctx, unit.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count likes: %w", err)
	}
	return &UnitDetail{
		Unit:      unit,
		LikeCount: count,
		IsOwner:   unit.UserID == viewerID,
	}, nil
}

// ListUnits はownerIDのユニット一覧を返す。本人の場合のみ非公開ユニットを含む。
func (s *Service) ListUnits(ctx context.Context, viewerID, ownerID string) ([]model.UnitSummary, error) {
	units, err := s.units.ListByOwner(ctx, ownerID, viewerID, viewerID == ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list units: %w", err)
	}
	if units == nil {
		units = []model.UnitSummary{}
	}
	return units, nil
}

// UpdateUnit は所有者のユニットを更新する。
func (s *Service) UpdateUnit(ctx context.Context, userID, unitID string, in UnitInput) (*model.Unit, error) {
	unit, err := s.ownedUnit(ctx, userID, unitID)
	if err != nil {
		return nil, err
	}
	if err := s.applyUnitInput(unit, in); err != nil {
		return nil, err
	}
	unit.UpdatedAt = s.now()

	if err := s.units.Update(ctx, unit); err != nil {
		return nil, fmt.Errorf("failed to update unit: %w", err)
	}
	return unit, nil
}

// DeleteUnit は所有者のユニットを削除する。ログ・コメント・いいねも削除される。
func (s *Service) DeleteUnit(ctx context.Context, userID, unitID string) error {
	if _, err := s.ownedUnit(ctx, userID, unitID); err != nil {
		return err
	}
	if err := s.units.Delete(ctx, unitID); err != nil {
		return fmt.Errorf("failed to delete unit: %w", err)
	}

	slog.Info("unit deleted",
		slog.String("user_id", userID),
		slog.String("unit_id", unitID),
	)
	return nil
}
