package auth

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hitoshi/learning-journal/internal/model"
	"github.com/hitoshi/learning-journal/internal/repository"
)

func oauthSignIn(provider, accountID, email string) SignIn {
	return SignIn{
		Profile: Profile{
			Provider:          provider,
			ProviderID:        accountID,
			Name:              "Bob",
			Email:             email,
			PrimaryAuthMethod: provider,
		},
		AccessToken: "access-" + provider,
	}
}

// シナリオB: Googleで新規作成し、同じメールアドレスのGitHubで統合される
func TestMergeSignIn_GoogleThenGitHub_SameUserTwoAccounts(t *testing.T) {
	store := newMemStore()
	m := NewIdentityMerger(store)
	ctx := context.Background()

	first, err := m.MergeSignIn(ctx, oauthSignIn(ProviderGoogle, "g-1", "bob@example.com"))
	if err != nil {
		t.Fatalf("google sign-in failed: %v", err)
	}
	if !first.UserCreated || !first.AccountLinked {
		t.Errorf("first sign-in should create user and link: %+v", first)
	}
	if got := store.user(first.UserID).PrimaryAuthMethod; got != ProviderGoogle {
		t.Errorf("primary = %q, want google", got)
	}
	if got := store.providersOf(first.UserID); len(got) != 1 {
		t.Errorf("linked accounts = %v, want 1", got)
	}

	second, err := m.MergeSignIn(ctx, oauthSignIn(ProviderGitHub, "gh-1", "bob@example.com"))
	if err != nil {
		t.Fatalf("github sign-in failed: %v", err)
	}
	if second.UserID != first.UserID {
		t.Errorf("github sign-in resolved to %s, want %s", second.UserID, first.UserID)
	}
	if second.UserCreated || !second.AccountLinked {
		t.Errorf("second sign-in should only link: %+v", second)
	}
	if got := store.user(first.UserID).PrimaryAuthMethod; got != ProviderGitHub {
		t.Errorf("primary = %q, want github", got)
	}
	if got := store.providersOf(first.UserID); len(got) != 2 {
		t.Errorf("linked accounts = %v, want 2", got)
	}
	if n := store.countUsersByEmail("bob@example.com"); n != 1 {
		t.Errorf("users with email = %d, want 1", n)
	}
}

// 同じプロバイダーでの再サインインは紐付けを増やさずprimaryだけ更新する
func TestMergeSignIn_SameProviderAgain_IdempotentButUpdatesPrimary(t *testing.T) {
	store := newMemStore()
	hash, _ := testHasher().Hash("Password123!")
	user := store.addUser(&model.User{ID: "u-1", Email: "kate@example.com", PasswordHash: hash, PrimaryAuthMethod: model.AuthMethodEmail})
	store.addAccount(user.ID, ProviderGoogle, "g-kate", time.Now())

	result, err := NewIdentityMerger(store).MergeSignIn(context.Background(), oauthSignIn(ProviderGoogle, "g-kate", "kate@example.com"))
	if err != nil {
		t.Fatalf("MergeSignIn failed: %v", err)
	}
	if result.UserCreated || result.AccountLinked {
		t.Errorf("expected no writes besides primary: %+v", result)
	}
	if got := store.providersOf(user.ID); len(got) != 1 {
		t.Errorf("linked accounts = %v, want 1", got)
	}
	if got := store.user(user.ID).PrimaryAuthMethod; got != ProviderGoogle {
		t.Errorf("primary = %q, want google (last login wins)", got)
	}
}

// 既存のパスワードユーザーにOAuthを紐付けるとprimaryがプロバイダーに変わる
func TestMergeSignIn_ExistingPasswordUser_LinksAndOverridesEmailPrimary(t *testing.T) {
	store := newMemStore()
	store.addUser(&model.User{ID: "u-2", Email: "leo@example.com", PasswordHash: "hash", PrimaryAuthMethod: model.AuthMethodEmail})

	result, err := NewIdentityMerger(store).MergeSignIn(context.Background(), oauthSignIn(ProviderDiscord, "d-1", "LEO@example.com"))
	if err != nil {
		t.Fatalf("MergeSignIn failed: %v", err)
	}
	if result.UserID != "u-2" || !result.AccountLinked {
		t.Errorf("unexpected result: %+v", result)
	}
	if got := store.user("u-2").PrimaryAuthMethod; got != ProviderDiscord {
		t.Errorf("primary = %q, want discord", got)
	}
}

// credentialsは検証済みユーザーをそのまま受け入れ、書き込みを行わない
func TestMergeSignIn_Credentials_AcceptsAsIs(t *testing.T) {
	store := newMemStore()
	user := store.addUser(&model.User{ID: "u-3", Email: "mia@example.com", PasswordHash: "hash", PrimaryAuthMethod: ProviderGoogle})

	profile, err := Normalize(CredentialsProfile(user))
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	result, err := NewIdentityMerger(store).MergeSignIn(context.Background(), SignIn{Profile: profile})
	if err != nil {
		t.Fatalf("MergeSignIn failed: %v", err)
	}
	if result.UserID != "u-3" || result.PrimaryAuthMethod != model.AuthMethodEmail {
		t.Errorf("unexpected result: %+v", result)
	}
	if store.txCount != 0 {
		t.Errorf("credentials merge opened %d transactions, want 0", store.txCount)
	}
	if got := store.user("u-3").PrimaryAuthMethod; got != ProviderGoogle {
		t.Errorf("stored primary = %q, want google", got)
	}
}

// 同時初回サインインの一意制約違反は1回だけ再試行し、既存ユーザーに統合される
func TestMergeSignIn_UniqueViolation_RetriesOnceAgainstExistingRow(t *testing.T) {
	store := newMemStore()
	store.beforeCreateUser = func(s *memStore, u *model.User) {
		// 別リクエストが先に同じメールアドレスのユーザーを作成した状態を再現する
		s.commitConcurrent(
			&model.User{ID: "other", Email: u.Email, PrimaryAuthMethod: ProviderGitHub},
			&model.LinkedAccount{ID: "acc-other", UserID: "other", Provider: ProviderGitHub, ProviderAccountID: "gh-9"},
		)
	}

	result, err := NewIdentityMerger(store).MergeSignIn(context.Background(), oauthSignIn(ProviderGoogle, "g-9", "nina@example.com"))
	if err != nil {
		t.Fatalf("MergeSignIn failed: %v", err)
	}
	if result.UserID != "other" || result.UserCreated {
		t.Errorf("expected merge into existing user, got %+v", result)
	}
	if store.txCount != 2 {
		t.Errorf("transactions = %d, want 2", store.txCount)
	}
	if n := store.countUsersByEmail("nina@example.com"); n != 1 {
		t.Errorf("users with email = %d, want 1", n)
	}
	if got := store.providersOf("other"); len(got) != 2 {
		t.Errorf("linked accounts = %v, want 2", got)
	}
}

// failingTx は常に一意制約違反を返すTxRunner。
type failingTx struct{ calls int }

func (f *failingTx) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repos) error) error {
	f.calls++
	return fmt.Errorf("commit: %w", repository.ErrUniqueViolation)
}

// 再試行でも失敗した場合はエラーを返す
func TestMergeSignIn_UniqueViolationTwice_Surfaces(t *testing.T) {
	tx := &failingTx{}
	_, err := NewIdentityMerger(tx).MergeSignIn(context.Background(), oauthSignIn(ProviderGoogle, "g-1", "oscar@example.com"))
	if !errors.Is(err, repository.ErrUniqueViolation) {
		t.Fatalf("expected ErrUniqueViolation, got %v", err)
	}
	if tx.calls != 2 {
		t.Errorf("attempts = %d, want 2", tx.calls)
	}
}

// 紐付け済みのプロバイダーアカウントはメールアドレスが変わっても同じユーザーに解決される
func TestMergeSignIn_KnownProviderAccount_ResolvesByLink(t *testing.T) {
	store := newMemStore()
	store.addUser(&model.User{ID: "u-4", Email: "old@example.com", PrimaryAuthMethod: ProviderGoogle})
	store.addAccount("u-4", ProviderGoogle, "g-stable", time.Now())

	result, err := NewIdentityMerger(store).MergeSignIn(context.Background(), oauthSignIn(ProviderGoogle, "g-stable", "new@example.com"))
	if err != nil {
		t.Fatalf("MergeSignIn failed: %v", err)
	}
	if result.UserID != "u-4" || result.UserCreated {
		t.Errorf("unexpected result: %+v", result)
	}
	if n := store.countUsersByEmail("new@example.com"); n != 0 {
		t.Errorf("a new user was created for the changed email")
	}
}

func TestMergeSignIn_UnknownProvider(t *testing.T) {
	_, err := NewIdentityMerger(newMemStore()).MergeSignIn(context.Background(), oauthSignIn("myspace", "1", "x@example.com"))
	assertAPIErrorCode(t, err, model.ErrCodeUnknownProvider)
}

// 既存紐付けのトークンは再サインイン時に更新される
func TestMergeSignIn_ExistingLink_RefreshesTokens(t *testing.T) {
	store := newMemStore()
	store.addUser(&model.User{ID: "u-5", Email: "pat@example.com", PrimaryAuthMethod: ProviderGitHub})
	store.addAccount("u-5", ProviderGitHub, "gh-5", time.Now())

	in := oauthSignIn(ProviderGitHub, "gh-5", "pat@example.com")
	in.AccessToken = "fresh-token"
	if _, err := NewIdentityMerger(store).MergeSignIn(context.Background(), in); err != nil {
		t.Fatalf("MergeSignIn failed: %v", err)
	}

	accounts, _ := (*memAccounts)(store).ListByUserID(context.Background(), "u-5")
	if accounts[0].AccessToken != "fresh-token" {
		t.Errorf("access token = %q, want fresh-token", accounts[0].AccessToken)
	}
}

// 合成メールアドレスは既存ユーザーへの統合に使わず、衝突はALREADY_REGISTEREDになる
func TestMergeSignIn_SyntheticEmail_DoesNotMergeIntoExistingUser(t *testing.T) {
	store := newMemStore()
	victim := store.addUser(&model.User{ID: "u-9", Email: "octo@github.com", PasswordHash: "hash", PrimaryAuthMethod: model.AuthMethodEmail})

	in := oauthSignIn(ProviderGitHub, "gh-attacker", "octo@github.com")
	in.Profile.SyntheticEmail = true

	_, err := NewIdentityMerger(store).MergeSignIn(context.Background(), in)
	assertAPIErrorCode(t, err, model.ErrCodeAlreadyRegistered)

	if got := store.providersOf(victim.ID); len(got) != 0 {
		t.Errorf("existing user gained linked accounts %v", got)
	}
	if got := store.user(victim.ID).PrimaryAuthMethod; got != model.AuthMethodEmail {
		t.Errorf("primary = %q, want email", got)
	}
}

// 合成メールアドレスでも同じGitHubアカウントでの再サインインは紐付けから解決される
func TestMergeSignIn_SyntheticEmail_NewUserFlaggedAndResolvedByLink(t *testing.T) {
	store := newMemStore()
	m := NewIdentityMerger(store)
	ctx := context.Background()

	in := oauthSignIn(ProviderGitHub, "gh-5", "octo@github.com")
	in.Profile.SyntheticEmail = true

	first, err := m.MergeSignIn(ctx, in)
	if err != nil {
		t.Fatalf("first sign-in failed: %v", err)
	}
	if !first.UserCreated {
		t.Fatalf("expected user to be created: %+v", first)
	}
	if !store.user(first.UserID).EmailSynthetic {
		t.Error("created user should be flagged as synthetic email")
	}

	second, err := m.MergeSignIn(ctx, in)
	if err != nil {
		t.Fatalf("second sign-in failed: %v", err)
	}
	if second.UserID != first.UserID || second.UserCreated || second.AccountLinked {
		t.Errorf("second sign-in should resolve by link: %+v", second)
	}
}
