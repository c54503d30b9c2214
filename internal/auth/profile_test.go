package auth

import (
	"encoding/json"
	"testing"

	"github.com/hitoshi/learning-journal/internal/model"
)

func TestNormalize_Providers(t *testing.T) {
	tests := []struct {
		name string
		raw  RawProfile
		want Profile
	}{
		{
			name: "google",
			raw: RawProfile{Kind: ProviderGoogle, Payload: json.RawMessage(
				`{"sub":"g-123","name":"Bob","email":"Bob@Example.com","picture":"https://img/bob.png"}`)},
			want: Profile{Provider: ProviderGoogle, ProviderID: "g-123", Name: "Bob",
				Email: "bob@example.com", Image: "https://img/bob.png", PrimaryAuthMethod: ProviderGoogle},
		},
		{
			name: "github with public email",
			raw: RawProfile{Kind: ProviderGitHub, Payload: json.RawMessage(
				`{"id":4242,"login":"octo","name":"Octo Cat","email":"octo@example.com","avatar_url":"https://gh/a.png"}`)},
			want: Profile{Provider: ProviderGitHub, ProviderID: "4242", Name: "Octo Cat",
				Email: "octo@example.com", Image: "https://gh/a.png", PrimaryAuthMethod: ProviderGitHub},
		},
		{
			name: "github without email synthesizes login address",
			raw: RawProfile{Kind: ProviderGitHub, Payload: json.RawMessage(
				`{"id":7,"login":"Hidden","name":"","email":null}`)},
			want: Profile{Provider: ProviderGitHub, ProviderID: "7", Name: "Hidden",
				Email: "hidden@github.com", PrimaryAuthMethod: ProviderGitHub, SyntheticEmail: true},
		},
		{
			name: "discord with avatar",
			raw: RawProfile{Kind: ProviderDiscord, Payload: json.RawMessage(
				`{"id":"80351","username":"nelly","global_name":"Nelly","email":"nelly@example.com","avatar":"8342729096ea3675442027381ff50dfe"}`)},
			want: Profile{Provider: ProviderDiscord, ProviderID: "80351", Name: "Nelly", Email: "nelly@example.com",
				Image:             "https://cdn.discordapp.com/avatars/80351/8342729096ea3675442027381ff50dfe.png",
				PrimaryAuthMethod: ProviderDiscord},
		},
		{
			name: "discord without avatar or global name",
			raw: RawProfile{Kind: ProviderDiscord, Payload: json.RawMessage(
				`{"id":"1","username":"plain","email":"plain@example.com","avatar":null}`)},
			want: Profile{Provider: ProviderDiscord, ProviderID: "1", Name: "plain",
				Email: "plain@example.com", PrimaryAuthMethod: ProviderDiscord},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.raw)
			if err != nil {
				t.Fatalf("Normalize failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Normalize =\n%+v\nwant\n%+v", got, tt.want)
			}
		})
	}
}

// パスワード認証のセッションは保存済みのprimaryに関係なく"email"になる
func TestNormalize_CredentialsAlwaysEmailPrimary(t *testing.T) {
	for _, stored := range []string{ProviderGoogle, ProviderGitHub, model.AuthMethodEmail, ""} {
		t.Run("stored="+stored, func(t *testing.T) {
			user := &model.User{ID: "u-1", Email: "ivy@example.com", Name: "Ivy", PrimaryAuthMethod: stored}

			got, err := Normalize(CredentialsProfile(user))
			if err != nil {
				t.Fatalf("Normalize failed: %v", err)
			}
			if !got.IsCredentials() || got.ProviderID != "u-1" {
				t.Errorf("unexpected profile: %+v", got)
			}
			if got.PrimaryAuthMethod != model.AuthMethodEmail {
				t.Errorf("primary = %q, want %q", got.PrimaryAuthMethod, model.AuthMethodEmail)
			}
		})
	}
}

func TestNormalize_InvalidProfiles(t *testing.T) {
	tests := []struct {
		name string
		raw  RawProfile
	}{
		{"missing google sub", RawProfile{Kind: ProviderGoogle, Payload: json.RawMessage(`{"email":"a@example.com"}`)}},
		{"missing discord email", RawProfile{Kind: ProviderDiscord, Payload: json.RawMessage(`{"id":"1","username":"x"}`)}},
		{"github without email or login", RawProfile{Kind: ProviderGitHub, Payload: json.RawMessage(`{"id":1}`)}},
		{"malformed json", RawProfile{Kind: ProviderGoogle, Payload: json.RawMessage(`{`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Normalize(tt.raw); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestNormalize_UnknownKind_ReturnsUnknownProvider(t *testing.T) {
	_, err := Normalize(RawProfile{Kind: "myspace", Payload: json.RawMessage(`{}`)})
	assertAPIErrorCode(t, err, model.ErrCodeUnknownProvider)
}
