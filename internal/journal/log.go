package journal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/learning-journal/internal/model"
)

// titleLookupConcurrency はリソースタイトル補完の同時取得数の上限。
const titleLookupConcurrency = 4

// ResourceInput はログに添付するリソースの入力。
type ResourceInput struct {
	URL   string
	Title string
}

// LogInput はログ作成・更新の入力。
type LogInput struct {
	Title        string
	Body         string
	LogDate      string
	MinutesSpent int
	Tags         []string
	Resources    []ResourceInput
}

func (s *Service) applyLogInput(ctx context.Context, log *model.Log, in LogInput) error {
	title := s.sanitizer.SanitizePlain(in.Title)
	if err := requireText("タイトル", title, maxTitleLength); err != nil {
		return err
	}
	body := s.sanitizer.SanitizeRich(in.Body)
	if err := limitText("本文", body, maxLogBodyLength); err != nil {
		return err
	}
	logDate, err := parseLogDate(in.LogDate, s.now())
	if err != nil {
		return err
	}
	if in.MinutesSpent < 0 || in.MinutesSpent > maxMinutesPerLog {
		return model.NewValidationError(fmt.Sprintf("学習時間は0〜%d分で入力してください。", maxMinutesPerLog))
	}
	tags, err := normalizeTags(in.Tags)
	if err != nil {
		return err
	}
	resources, err := s.buildResources(log.ID, in.Resources)
	if err != nil {
		return err
	}
	s.fillResourceTitles(ctx, resources)

	log.Title = title
	log.Body = body
	log.LogDate = logDate
	log.MinutesSpent = in.MinutesSpent
	log.Tags = tags
	log.Resources = resources
	return nil
}

// buildResources はリソースURLを検証し、空のURLを除外したリソース一覧を組み立てる。
func (s *Service) buildResources(logID string, inputs []ResourceInput) ([]model.Resource, error) {
	resources := make([]model.Resource, 0, len(inputs))
	for _, in := range inputs {
		rawURL := strings.TrimSpace(in.URL)
		if rawURL == "" {
			continue
		}
		if err := s.urls.ValidateURL(rawURL); err != nil {
			return nil, model.NewValidationError(fmt.Sprintf("リソースURLが不正です: %s", rawURL))
		}
		title := s.sanitizer.SanitizePlain(in.Title)
		if err := limitText("リソースのタイトル", title, maxTitleLength); err != nil {
			return nil, err
		}
		resources = append(resources, model.Resource{
			ID:    s.newID(),
			LogID: logID,
			URL:   rawURL,
			Title: title,
		})
	}
	if len(resources) > maxResources {
		return nil, model.NewValidationError(fmt.Sprintf("リソースは%d件までです。", maxResources))
	}
	return resources, nil
}

// fillResourceTitles はタイトル未入力のリソースについてリンク先からタイトルを補完する。
// 取得に失敗したリソースはタイトル空のまま残す。
func (s *Service) fillResourceTitles(ctx context.Context, resources []model.Resource) {
	if s.titles == nil {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(titleLookupConcurrency)
	for i := range resources {
		if resources[i].Title != "" {
			continue
		}
		g.Go(func() error {
			title := s.titles.LookupTitle(gctx, resources[i].URL)
			resources[i].Title = s.sanitizer.SanitizePlain(title)
			return nil
		})
	}
	_ = g.Wait()
}

// CreateLog は所有者のユニットにログを追加する。
func (s *Service) CreateLog(ctx context.Context, userID, unitID string, in LogInput) (*model.Log, error) {
	if _, err := s.ownedUnit(ctx, userID, unitID); err != nil {
		return nil, err
	}

	now := s.now()
	log := &model.Log{
		ID:        s.newID(),
		UnitID:    unitID,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.applyLogInput(ctx, log, in); err != nil {
		return nil, err
	}

	if err := s.logs.Create(ctx, log); err != nil {
		return nil, fmt.Errorf("failed to create log: %w", err)
	}

	slog.Info("log created",
		slog.String("user_id", userID),
		slog.String("unit_id", unitID),
		slog.String("log_id", log.ID),
		slog.Int("resources", len(log.Resources)),
	)
	return log, nil
}

// visibleLog はviewerが閲覧できるログを返す。公開範囲は親ユニットに従う。
func (s *Service) visibleLog(ctx context.Context, viewerID, logID string) (*model.Log, *model.Unit, error) {
	log, err := s.logs.FindByID(ctx, logID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find log: %w", err)
	}
	if log == nil {
		return nil, nil, model.NewLogNotFoundError(logID)
	}
	unit, err := s.visibleUnit(ctx, viewerID, log.UnitID)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeUnitNotFound {
			return nil, nil, model.NewLogNotFoundError(logID)
		}
		return nil, nil, err
	}
	return log, unit, nil
}

// GetLog はviewerから見たログを返す。
func (s *Service) GetLog(ctx context.Context, viewerID, logID string) (*model.Log, error) {
	log, _, err := s.visibleLog(ctx, viewerID, logID)
	if err != nil {
		return nil, err
	}
	return log, nil
}

// ListLogs はユニットのログを日付の新しい順に返す。
func (s *Service) ListLogs(ctx context.Context, viewerID, unitID string) ([]*model.Log, error) {
	if _, err := s.visibleUnit(ctx, viewerID, unitID); err != nil {
		return nil, err
	}
	logs, err := s.logs.ListByUnit(ctx, unitID)
	if err != nil {
		return nil, fmt.Errorf("failed to list logs: %w", err)
	}
	if logs == nil {
		logs = []*model.Log{}
	}
	return logs, nil
}

// UpdateLog は所有者のログを更新する。タグとリソースは入力で置き換える。
func (s *Service) UpdateLog(ctx context.Context, userID, logID string, in LogInput) (*model.Log, error) {
	log, unit, err := s.visibleLog(ctx, userID, logID)
	if err != nil {
		return nil, err
	}
	if unit.UserID != userID {
		return nil, model.NewForbiddenError()
	}
	if err := s.applyLogInput(ctx, log, in); err != nil {
		return nil, err
	}
	log.UpdatedAt = s.now()

	if err := s.logs.Update(ctx, log); err != nil {
		return nil, fmt.Errorf("failed to update log: %w", err)
	}
	return log, nil
}

// DeleteLog は所有者のログを削除する。
func (s *Service) DeleteLog(ctx context.Context, userID, logID string) error {
	_, unit, err := s.visibleLog(ctx, userID, logID)
	if err != nil {
		return err
	}
	if unit.UserID != userID {
		return model.NewForbiddenError()
	}
	if err := s.logs.Delete(ctx, logID); err != nil {
		return fmt.Errorf("failed to delete log: %w", err)
	}
	return nil
}
