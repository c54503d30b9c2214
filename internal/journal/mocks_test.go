package journal

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hitoshi/learning-journal/internal/model"
	"github.com/hitoshi/learning-journal/internal/repository"
	"github.com/hitoshi/learning-journal/internal/security"
)

// --- モック ---

type mockUnitRepo struct {
	findByIDFn    func(ctx context.Context, id string) (*model.Unit, error)
	listByOwnerFn func(ctx context.Context, ownerID, viewerID string, includePrivate bool) ([]model.UnitSummary, error)
	createFn      func(ctx context.Context, unit *model.Unit) error
	updateFn      func(ctx context.Context, unit *model.Unit) error
	deleteFn      func(ctx context.Context, id string) error
}

var _ repository.UnitRepository = (*mockUnitRepo)(nil)

func (m *mockUnitRepo) FindByID(ctx context.Context, id string) (*model.Unit, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockUnitRepo) ListByOwner(ctx context.Context, ownerID, viewerID string, includePrivate bool) ([]model.UnitSummary, error) {
	if m.listByOwnerFn != nil {
		return m.listByOwnerFn(ctx, ownerID, viewerID, includePrivate)
	}
	return nil, nil
}
func (m *mockUnitRepo) Create(ctx context.Context, unit *model.Unit) error {
	if m.createFn != nil {
		return m.createFn(ctx, unit)
	}
	return nil
}
func (m *mockUnitRepo) Update(ctx context.Context, unit *model.Unit) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, unit)
	}
	return nil
}
func (m *mockUnitRepo) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

type mockLogRepo struct {
	findByIDFn   func(ctx context.Context, id string) (*model.Log, error)
	listByUnitFn func(ctx context.Context, unitID string) ([]*model.Log, error)
	createFn     func(ctx context.Context, log *model.Log) error
	updateFn     func(ctx context.Context, log *model.Log) error
	deleteFn     func(ctx context.Context, id string) error
}

var _ repository.LogRepository = (*mockLogRepo)(nil)

func (m *mockLogRepo) FindByID(ctx context.Context, id string) (*model.Log, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockLogRepo) ListByUnit(ctx context.Context, unitID string) ([]*model.Log, error) {
	if m.listByUnitFn != nil {
		return m.listByUnitFn(ctx, unitID)
	}
	return nil, nil
}
func (m *mockLogRepo) Create(ctx context.Context, log *model.Log) error {
	if m.createFn != nil {
		return m.createFn(ctx, log)
	}
	return nil
}
func (m *mockLogRepo) Update(ctx context.Context, log *model.Log) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, log)
	}
	return nil
}
func (m *mockLogRepo) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

type mockCommentRepo struct {
	findByIDFn   func(ctx context.Context, id string) (*model.Comment, error)
	listByUnitFn func(ctx context.Context, unitID string) ([]*model.Comment, error)
	createFn     func(ctx context.Context, comment *model.Comment) error
	deleteFn     func(ctx context.Context, id string) error
}

var _ repository.CommentRepository = (*mockCommentRepo)(nil)

func (m *mockCommentRepo) FindByID(ctx context.Context, id string) (*model.Comment, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockCommentRepo) ListByUnit(ctx context.Context, unitID string) ([]*model.Comment, error) {
	if m.listByUnitFn != nil {
		return m.listByUnitFn(ctx, unitID)
	}
	return nil, nil
}
func (m *mockCommentRepo) Create(ctx context.Context, comment *model.Comment) error {
	if m.createFn != nil {
		return m.createFn(ctx, comment)
	}
	return nil
}
func (m *mockCommentRepo) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

// memLikeRepo はいいねをメモリ上に保持する。
type memLikeRepo struct {
	likes map[string]map[string]bool
	err   error
}

var _ repository.LikeRepository = (*memLikeRepo)(nil)

func newMemLikeRepo() *memLikeRepo {
	return &memLikeRepo{likes: make(map[string]map[string]bool)}
}

func (m *memLikeRepo) Like(ctx context.Context, unitID, userID string) error {
	if m.err != nil {
		return m.err
	}
	if m.likes[unitID] == nil {
		m.likes[unitID] = make(map[string]bool)
	}
	m.likes[unitID][userID] = true
	return nil
}
func (m *memLikeRepo) Unlike(ctx context.Context, unitID, userID string) error {
	if m.err != nil {
		return m.err
	}
	delete(m.likes[unitID], userID)
	return nil
}
func (m *memLikeRepo) Count(ctx context.Context, unitID string) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	return len(m.likes[unitID]), nil
}

// stubTitles はURLごとに固定のタイトルを返す。
type stubTitles struct {
	titles map[string]string
}

func (s *stubTitles) LookupTitle(ctx context.Context, rawURL string) string {
	return s.titles[rawURL]
}

// --- ヘルパー ---

var fixedNow = time.Date(2024, 6, 15, 10, 30, 0, 0, time.UTC)

type testEnv struct {
	units    *mockUnitRepo
	logs     *mockLogRepo
	comments *mockCommentRepo
	likes    *memLikeRepo
	titles   *stubTitles
}

func newTestEnv() *testEnv {
	return &testEnv{
		units:    &mockUnitRepo{},
		logs:     &mockLogRepo{},
		comments: &mockCommentRepo{},
		likes:    newMemLikeRepo(),
		titles:   &stubTitles{titles: map[string]string{}},
	}
}

func (e *testEnv) service() *Service {
	svc := NewService(Deps{
		Units:     e.units,
		Logs:      e.logs,
		Comments:  e.comments,
		Likes:     e.likes,
		Sanitizer: security.NewContentSanitizer(),
		URLs:      security.NewSSRFGuard(),
		Titles:    e.titles,
	})
	svc.now = func() time.Time { return fixedNow }
	seq := 0
	svc.newID = func() string {
		seq++
		return fmt.Sprintf("id-%d", seq)
	}
	return svc
}

// withUnits はIDで引けるユニットをモックに登録する。
func (e *testEnv) withUnits(units ...*model.Unit) {
	e.units.findByIDFn = func(ctx context.Context, id string) (*model.Unit, error) {
		for _, u := range units {
			if u.ID == id {
				copied := *u
				return &copied, nil
			}
		}
		return nil, nil
	}
}

func (e *testEnv) withLogs(logs ...*model.Log) {
	e.logs.findByIDFn = func(ctx context.Context, id string) (*model.Log, error) {
		for _, l := range logs {
			if l.ID == id {
				copied := *l
				return &copied, nil
			}
		}
		return nil, nil
	}
}

func publicUnit(id, owner string) *model.Unit {
	return &model.Unit{ID: id, UserID: owner, Title: "Go入門", IsPublic: true}
}

func privateUnit(id, owner string) *model.Unit {
	return &model.Unit{ID: id, UserID: owner, Title: "秘密の学習", IsPublic: false}
}

func ptr[T any](v T) *T { return &v }

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError with code %s, got %v", code, err)
	}
	if apiErr.Code != code {
		t.Errorf("code = %s, want %s", apiErr.Code, code)
	}
}
