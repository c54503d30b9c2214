package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/learning-journal/internal/auth"
	"github.com/hitoshi/learning-journal/internal/errorlog"
	"github.com/hitoshi/learning-journal/internal/journal"
	"github.com/hitoshi/learning-journal/internal/middleware"
	"github.com/hitoshi/learning-journal/internal/model"
	"github.com/hitoshi/learning-journal/internal/user"
)

// --- モック定義 ---

type mockAuthService struct {
	providersFn      func() []string
	getLoginURLFn    func(provider, state string) (string, error)
	handleCallbackFn func(ctx context.Context, provider, code string) (*auth.Session, error)
	loginFn          func(ctx context.Context, email, password string) (*auth.Session, error)
	registerFn       func(ctx context.Context, email, password, name string) (*auth.Session, error)
	reissueFn        func(ctx context.Context, userID string) (*auth.Session, error)
	currentUserFn    func(ctx context.Context, userID string) (*model.User, error)
}

func (m *mockAuthService) Providers() []string {
	if m.providersFn != nil {
		return m.providersFn()
	}
	return nil
}

func (m *mockAuthService) GetLoginURL(provider, state string) (string, error) {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(provider, state)
	}
	return "", model.NewUnknownProviderError(provider)
}

func (m *mockAuthService) HandleCallback(ctx context.Context, provider, code string) (*auth.Session, error) {
	if m.handleCallbackFn != nil {
		return m.handleCallbackFn(ctx, provider, code)
	}
	return nil, model.NewUnknownProviderError(provider)
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*auth.Session, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password)
	}
	return nil, model.NewInvalidCredentialsError()
}

func (m *mockAuthService) Register(ctx context.Context, email, password, name string) (*auth.Session, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, email, password, name)
	}
	return nil, model.NewAlreadyRegisteredError()
}

func (m *mockAuthService) Reissue(ctx context.Context, userID string) (*auth.Session, error) {
	if m.reissueFn != nil {
		return m.reissueFn(ctx, userID)
	}
	return testSession(userID, "email"), nil
}

func (m *mockAuthService) CurrentUser(ctx context.Context, userID string) (*model.User, error) {
	if m.currentUserFn != nil {
		return m.currentUserFn(ctx, userID)
	}
	return nil, model.NewUserNotFoundError()
}

type mockMethodService struct {
	listMethodsFn    func(ctx context.Context, userID string) (*auth.AuthMethods, error)
	setPasswordFn    func(ctx context.Context, userID, password string) error
	changePasswordFn func(ctx context.Context, userID, current, newPassword, confirm string) error
	unlinkFn         func(ctx context.Context, userID, provider string) (*auth.AuthMethods, error)
}

func (m *mockMethodService) ListMethods(ctx context.Context, userID string) (*auth.AuthMethods, error) {
	if m.listMethodsFn != nil {
		return m.listMethodsFn(ctx, userID)
	}
	return &auth.AuthMethods{}, nil
}

func (m *mockMethodService) SetPassword(ctx context.Context, userID, password string) error {
	if m.setPasswordFn != nil {
		return m.setPasswordFn(ctx, userID, password)
	}
	return nil
}

func (m *mockMethodService) ChangePassword(ctx context.Context, userID, current, newPassword, confirm string) error {
	if m.changePasswordFn != nil {
		return m.changePasswordFn(ctx, userID, current, newPassword, confirm)
	}
	return nil
}

func (m *mockMethodService) UnlinkProvider(ctx context.Context, userID, provider string) (*auth.AuthMethods, error) {
	if m.unlinkFn != nil {
		return m.unlinkFn(ctx, userID, provider)
	}
	return &auth.AuthMethods{}, nil
}

type mockUserService struct {
	getMeFn         func(ctx context.Context, userID string) (*model.User, error)
	getProfileFn    func(ctx context.Context, viewerID, targetID string) (*model.User, error)
	updateProfileFn func(ctx context.Context, userID string, in user.ProfileUpdate) (*model.User, error)
	searchFn        func(ctx context.Context, query string, limit int) ([]*model.User, error)
	withdrawFn      func(ctx context.Context, userID string) error
}

func (m *mockUserService) GetMe(ctx context.Context, userID string) (*model.User, error) {
	if m.getMeFn != nil {
		return m.getMeFn(ctx, userID)
	}
	return nil, model.NewUserNotFoundError()
}

func (m *mockUserService) GetProfile(ctx context.Context, viewerID, targetID string) (*model.User, error) {
	if m.getProfileFn != nil {
		return m.getProfileFn(ctx, viewerID, targetID)
	}
	return nil, model.NewUserNotFoundError()
}

func (m *mockUserService) UpdateProfile(ctx context.Context, userID string, in user.ProfileUpdate) (*model.User, error) {
	if m.updateProfileFn != nil {
		return m.updateProfileFn(ctx, userID, in)
	}
	return nil, model.NewUserNotFoundError()
}

func (m *mockUserService) Search(ctx context.Context, query string, limit int) ([]*model.User, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, query, limit)
	}
	return nil, nil
}

func (m *mockUserService) Withdraw(ctx context.Context, userID string) error {
	if m.withdrawFn != nil {
		return m.withdrawFn(ctx, userID)
	}
	return nil
}

// mockJournalService は必要なメソッドだけ関数フィールドで差し替える。
// 未設定のメソッドは対象が見つからないエラーを返す。
type mockJournalService struct {
	createUnitFn    func(ctx context.Context, userID string, in journal.UnitInput) (*model.Unit, error)
	getUnitFn       func(ctx context.Context, viewerID, unitID string) (*journal.UnitDetail, error)
	listUnitsFn     func(ctx context.Context, viewerID, ownerID string) ([]model.UnitSummary, error)
	updateUnitFn    func(ctx context.Context, userID, unitID string, in journal.UnitInput) (*model.Unit, error)
	deleteUnitFn    func(ctx context.Context, userID, unitID string) error
	likeFn          func(ctx context.Context, userID, unitID string) (int, error)
	unlikeFn        func(ctx context.Context, userID, unitID string) (int, error)
	listCommentsFn  func(ctx context.Context, viewerID, unitID string) ([]*model.Comment, error)
	addCommentFn    func(ctx context.Context, userID, unitID, body string) (*model.Comment, error)
	deleteCommentFn func(ctx context.Context, userID, commentID string) error
	createLogFn     func(ctx context.Context, userID, unitID string, in journal.LogInput) (*model.Log, error)
	getLogFn        func(ctx context.Context, viewerID, logID string) (*model.Log, error)
	listLogsFn      func(ctx context.Context, viewerID, unitID string) ([]*model.Log, error)
	updateLogFn     func(ctx context.Context, userID, logID string, in journal.LogInput) (*model.Log, error)
	deleteLogFn     func(ctx context.Context, userID, logID string) error
}

func (m *mockJournalService) CreateUnit(ctx context.Context, userID string, in journal.UnitInput) (*model.Unit, error) {
	if m.createUnitFn != nil {
		return m.createUnitFn(ctx, userID, in)
	}
	return nil, model.NewValidationError("not configured")
}

func (m *mockJournalService) GetUnit(ctx context.Context, viewerID, unitID string) (*journal.UnitDetail, error) {
	if m.getUnitFn != nil {
		return m.getUnitFn(ctx, viewerID, unitID)
	}
	return nil, model.NewUnitNotFoundError(unitID)
}

func (m *mockJournalService) ListUnits(ctx context.Context, viewerID, ownerID string) ([]model.UnitSummary, error) {
	if m.listUnitsFn != nil {
		return m.listUnitsFn(ctx, viewerID, ownerID)
	}
	return []model.UnitSummary{}, nil
}

func (m *mockJournalService) UpdateUnit(ctx context.Context, userID, unitID string, in journal.UnitInput) (*model.Unit, error) {
	if m.updateUnitFn != nil {
		return m.updateUnitFn(ctx, userID, unitID, in)
	}
	return nil, model.NewUnitNotFoundError(unitID)
}

func (m *mockJournalService) DeleteUnit(ctx context.Context, userID, unitID string) error {
	if m.deleteUnitFn != nil {
		return m.deleteUnitFn(ctx, userID, unitID)
	}
	return model.NewUnitNotFoundError(unitID)
}

func (m *mockJournalService) Like(ctx context.Context, userID, unitID string) (int, error) {
	if m.likeFn != nil {
		return m.likeFn(ctx, userID, unitID)
	}
	return 0, model.NewUnitNotFoundError(unitID)
}

func (m *mockJournalService) Unlike(ctx context.Context, userID, unitID string) (int, error) {
	if m.unlikeFn != nil {
		return m.unlikeFn(ctx, userID, unitID)
	}
	return 0, model.NewUnitNotFoundError(unitID)
}

func (m *mockJournalService) ListComments(ctx context.Context, viewerID, unitID string) ([]*model.Comment, error) {
	if m.listCommentsFn != nil {
		return m.listCommentsFn(ctx, viewerID, unitID)
	}
	return nil, model.NewUnitNotFoundError(unitID)
}

func (m *mockJournalService) AddComment(ctx context.Context, userID, unitID, body string) (*model.Comment, error) {
	if m.addCommentFn != nil {
		return m.addCommentFn(ctx, userID, unitID, body)
	}
	return nil, model.NewUnitNotFoundError(unitID)
}

func (m *mockJournalService) DeleteComment(ctx context.Context, userID, commentID string) error {
	if m.deleteCommentFn != nil {
		return m.deleteCommentFn(ctx, userID, commentID)
	}
	return model.NewCommentNotFoundError(commentID)
}

func (m *mockJournalService) CreateLog(ctx context.Context, userID, unitID string, in journal.LogInput) (*model.Log, error) {
	if m.createLogFn != nil {
		return m.createLogFn(ctx, userID, unitID, in)
	}
	return nil, model.NewUnitNotFoundError(unitID)
}

func (m *mockJournalService) GetLog(ctx context.Context, viewerID, logID string) (*model.Log, error) {
	if m.getLogFn != nil {
		return m.getLogFn(ctx, viewerID, logID)
	}
	return nil, model.NewLogNotFoundError(logID)
}

func (m *mockJournalService) ListLogs(ctx context.Context, viewerID, unitID string) ([]*model.Log, error) {
	if m.listLogsFn != nil {
		return m.listLogsFn(ctx, viewerID, unitID)
	}
	return nil, model.NewUnitNotFoundError(unitID)
}

func (m *mockJournalService) UpdateLog(ctx context.Context, userID, logID string, in journal.LogInput) (*model.Log, error) {
	if m.updateLogFn != nil {
		return m.updateLogFn(ctx, userID, logID, in)
	}
	return nil, model.NewLogNotFoundError(logID)
}

func (m *mockJournalService) DeleteLog(ctx context.Context, userID, logID string) error {
	if m.deleteLogFn != nil {
		return m.deleteLogFn(ctx, userID, logID)
	}
	return model.NewLogNotFoundError(logID)
}

type mockErrorLogService struct {
	listFn func(ctx context.Context, page, perPage int) (*errorlog.Page, error)
}

func (m *mockErrorLogService) List(ctx context.Context, page, perPage int) (*errorlog.Page, error) {
	if m.listFn != nil {
		return m.listFn(ctx, page, perPage)
	}
	return &errorlog.Page{Page: page, PerPage: perPage}, nil
}

// recordingErrors は記録されたエラーログを保持する。
type recordingErrors struct {
	mu      sync.Mutex
	entries []errorlog.Entry
}

func (r *recordingErrors) Record(_ context.Context, e errorlog.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func (r *recordingErrors) recorded() []errorlog.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]errorlog.Entry(nil), r.entries...)
}

// --- ヘルパー ---

var testTime = time.Date(2024, 6, 15, 10, 30, 0, 0, time.UTC)

func testUser(id string) *model.User {
	return &model.User{
		ID:                id,
		Email:             id + "@example.com",
		Name:              "User " + id,
		PrimaryAuthMethod: "email",
		IsPublic:          true,
		CreatedAt:         testTime,
		UpdatedAt:         testTime,
	}
}

func testSession(userID, primary string) *auth.Session {
	return &auth.Session{
		Token:             "token-" + userID,
		ExpiresAt:         time.Now().Add(30 * 24 * time.Hour),
		User:              testUser(userID),
		PrimaryAuthMethod: primary,
	}
}

// withUser はセッションミドルウェアを通過した状態のリクエストを作る。
func withUser(req *http.Request, userID string) *http.Request {
	return req.WithContext(middleware.ContextWithUserID(req.Context(), userID))
}

// withURLParams はchiのURLパラメータを設定する。
func withURLParams(req *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func assertErrorCode(t *testing.T, w *httptest.ResponseRecorder, wantStatus int, wantCode string) {
	t.Helper()
	if w.Code != wantStatus {
		t.Errorf("status = %d, want %d (body=%s)", w.Code, wantStatus, w.Body.String())
	}
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	if body.Code != wantCode {
		t.Errorf("code = %q, want %q", body.Code, wantCode)
	}
}

func findCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
