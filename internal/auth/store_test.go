package auth

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hitoshi/learning-journal/internal/model"
	"github.com/hitoshi/learning-journal/internal/repository"
)

// memStore はusers / linked_accountsのインメモリ実装。
// 一意制約を再現し、WithinTxではエラー時に変更を巻き戻す。
type memStore struct {
	mu       sync.Mutex
	users    map[string]*model.User
	accounts map[string]*model.LinkedAccount
	seq      int

	// beforeCreateUser が設定されている場合、ユーザー作成の直前に呼ばれる。
	// 同時サインインの競合を再現するために使用する。
	beforeCreateUser func(s *memStore, user *model.User)
	txCount          int

	// 他のトランザクションでコミット済みの行。ロールバックしても残る。
	concurrentUsers    []*model.User
	concurrentAccounts []*model.LinkedAccount
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[string]*model.User),
		accounts: make(map[string]*model.LinkedAccount),
	}
}

func (s *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repos) error) error {
	s.mu.Lock()
	s.txCount++
	users := make(map[string]*model.User, len(s.users))
	for k, v := range s.users {
		c := *v
		users[k] = &c
	}
	accounts := make(map[string]*model.LinkedAccount, len(s.accounts))
	for k, v := range s.accounts {
		c := *v
		accounts[k] = &c
	}
	s.mu.Unlock()

	if err := fn(ctx, s.repos()); err != nil {
		s.mu.Lock()
		s.users = users
		s.accounts = accounts
		for _, u := range s.concurrentUsers {
			s.users[u.ID] = u
		}
		for _, a := range s.concurrentAccounts {
			s.accounts[a.ID] = a
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *memStore) repos() repository.Repos {
	return repository.Repos{Users: (*memUsers)(s), Accounts: (*memAccounts)(s)}
}

// commitConcurrent は別リクエストが先にコミットした行を再現する。
func (s *memStore) commitConcurrent(u *model.User, accounts ...*model.LinkedAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.Email = model.NormalizeEmail(u.Email)
	s.users[u.ID] = u
	s.concurrentUsers = append(s.concurrentUsers, u)
	for _, a := range accounts {
		s.accounts[a.ID] = a
		s.concurrentAccounts = append(s.concurrentAccounts, a)
	}
}

// addUser はテスト用にユーザーを直接登録する。
func (s *memStore) addUser(u *model.User) *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.Email = model.NormalizeEmail(u.Email)
	c := *u
	s.users[u.ID] = &c
	return u
}

// addAccount はテスト用に紐付けを直接登録する。
func (s *memStore) addAccount(userID, provider, accountID string, createdAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	id := fmt.Sprintf("acc-%03d", s.seq)
	s.accounts[id] = &model.LinkedAccount{
		ID: id, UserID: userID, Provider: provider, ProviderAccountID: accountID,
		Type: model.AccountTypeOAuth, CreatedAt: createdAt,
	}
}

func (s *memStore) countUsersByEmail(email string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, u := range s.users {
		if u.Email == model.NormalizeEmail(email) {
			n++
		}
	}
	return n
}

func (s *memStore) user(id string) *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil
	}
	c := *u
	return &c
}

func (s *memStore) providersOf(userID string) []string {
	accounts, _ := (*memAccounts)(s).ListByUserID(context.Background(), userID)
	out := make([]string, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, a.Provider)
	}
	return out
}

type memUsers memStore

func (r *memUsers) FindByID(_ context.Context, id string) (*model.User, error) {
	return (*memStore)(r).user(id), nil
}

func (r *memUsers) FindByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == model.NormalizeEmail(email) {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

func (r *memUsers) Create(_ context.Context, user *model.User) error {
	if hook := r.beforeCreateUser; hook != nil {
		r.beforeCreateUser = nil
		hook((*memStore)(r), user)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	email := model.NormalizeEmail(user.Email)
	for _, u := range r.users {
		if u.Email == email {
			return fmt.Errorf("failed to insert user: %w (users_email_key)", repository.ErrUniqueViolation)
		}
	}
	c := *user
	c.Email = email
	r.users[user.ID] = &c
	return nil
}

func (r *memUsers) update(id string, fn func(u *model.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return fmt.Errorf("user not found: %s", id)
	}
	fn(u)
	return nil
}

func (r *memUsers) UpdatePrimaryAuthMethod(_ context.Context, id, method string) error {
	return r.update(id, func(u *model.User) { u.PrimaryAuthMethod = method })
}

func (r *memUsers) UpdatePassword(_ context.Context, id, hash, primary string) error {
	return r.update(id, func(u *model.User) {
		u.PasswordHash = hash
		u.PrimaryAuthMethod = primary
	})
}

func (r *memUsers) UpdateProfile(_ context.Context, user *model.User) error {
	return r.update(user.ID, func(u *model.User) { u.Name = user.Name })
}

func (r *memUsers) SearchPublic(context.Context, string, int) ([]*model.User, error) {
	return nil, nil
}

func (r *memUsers) DeleteByID(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.users, id)
	return nil
}

type memAccounts memStore

func (r *memAccounts) FindByProviderAccount(_ context.Context, provider, accountID string) (*model.LinkedAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.Provider == provider && a.ProviderAccountID == accountID {
			c := *a
			return &c, nil
		}
	}
	return nil, nil
}

func (r *memAccounts) ListByUserID(_ context.Context, userID string) ([]*model.LinkedAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.LinkedAccount
	for _, a := range r.accounts {
		if a.UserID == userID {
			c := *a
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *memAccounts) Create(_ context.Context, acc *model.LinkedAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if (a.Provider == acc.Provider && a.ProviderAccountID == acc.ProviderAccountID) ||
			(a.UserID == acc.UserID && a.Provider == acc.Provider) {
			return fmt.Errorf("failed to insert linked account: %w", repository.ErrUniqueViolation)
		}
	}
	c := *acc
	r.accounts[acc.ID] = &c
	return nil
}

func (r *memAccounts) UpdateTokens(_ context.Context, id, access, refresh string, expiresAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return fmt.Errorf("linked account not found: %s", id)
	}
	a.AccessToken = access
	if refresh != "" {
		a.RefreshToken = refresh
	}
	a.ExpiresAt = expiresAt
	return nil
}

func (r *memAccounts) DeleteByUserAndProvider(_ context.Context, userID, provider string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, a := range r.accounts {
		if a.UserID == userID && a.Provider == provider {
			delete(r.accounts, id)
			n++
		}
	}
	return n, nil
}

// compile-time interface checks
var (
	_ repository.TxRunner                = (*memStore)(nil)
	_ repository.UserRepository          = (*memUsers)(nil)
	_ repository.LinkedAccountRepository = (*memAccounts)(nil)
)
