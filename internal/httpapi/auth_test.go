package httpapi

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"provisionpos/backend/internal/domain"
)

type settingsStub struct {
	mu      sync.Mutex
	hash    string
	updates int
}

func newSettingsStub(t *testing.T, pin string) *settingsStub {
	t.Helper()
	hash, err := SeedPINHash(pin)
	if err != nil {
		t.Fatalf("seed pin hash: %v", err)
	}
	return &settingsStub{hash: hash}
}

func (s *settingsStub) GetSettings(_ context.Context) (*domain.StoreSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &domain.StoreSettings{PINHash: s.hash, LowStockThreshold: 5}, nil
}

func (s *settingsStub) UpdatePINHash(_ context.Context, pinHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hash = pinHash
	s.updates++
	return nil
}

func TestLoginIssuesTokenForCorrectPIN(t *testing.T) {
	settings := newSettingsStub(t, "1234")
	manager := NewAuthManager("test-secret", time.Hour, settings)

	resp, err := manager.Login(context.Background(), domain.LoginRequest{PIN: "1234"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if strings.TrimSpace(resp.AccessToken) == "" {
		t.Fatalf("expected access token in response")
	}

	if err := manager.ParseToken(resp.AccessToken); err != nil {
		t.Fatalf("expected issued token to parse, got %v", err)
	}
}

func TestLoginRejectsWrongPIN(t *testing.T) {
	settings := newSettingsStub(t, "1234")
	manager := NewAuthManager("test-secret", time.Hour, settings)

	if _, err := manager.Login(context.Background(), domain.LoginRequest{PIN: "9999"}); err == nil {
		t.Fatalf("expected login with wrong PIN to fail")
	}
	if _, err := manager.Login(context.Background(), domain.LoginRequest{PIN: ""}); err == nil {
		t.Fatalf("expected login with empty PIN to fail")
	}
}

func TestChangePINVerifiesOldAndStoresHash(t *testing.T) {
	settings := newSettingsStub(t, "1234")
	manager := NewAuthManager("test-secret", time.Hour, settings)

	err := manager.ChangePIN(context.Background(), domain.ChangePINRequest{
		OldPIN: "0000",
		NewPIN: "2846",
	})
	if err == nil {
		t.Fatalf("expected change with wrong old PIN to fail")
	}

	err = manager.ChangePIN(context.Background(), domain.ChangePINRequest{
		OldPIN: "1234",
		NewPIN: "2846",
	})
	if err != nil {
		t.Fatalf("change PIN failed: %v", err)
	}
	if settings.updates != 1 {
		t.Fatalf("expected 1 hash update, got %d", settings.updates)
	}
	if settings.hash == "2846" || !strings.HasPrefix(settings.hash, "$2") {
		t.Fatalf("expected stored bcrypt hash, got %s", settings.hash)
	}

	if _, err := manager.Login(context.Background(), domain.LoginRequest{PIN: "2846"}); err != nil {
		t.Fatalf("login with new PIN failed: %v", err)
	}
	if _, err := manager.Login(context.Background(), domain.LoginRequest{PIN: "1234"}); err == nil {
		t.Fatalf("expected old PIN to stop working")
	}
}

func TestChangePINRejectsWeakNewPIN(t *testing.T) {
	settings := newSettingsStub(t, "1234")
	manager := NewAuthManager("test-secret", time.Hour, settings)

	for _, weak := range []string{"1111", "1234", "4321", "12", "123456789", "12a4"} {
		err := manager.ChangePIN(context.Background(), domain.ChangePINRequest{
			OldPIN: "1234",
			NewPIN: weak,
		})
		if err == nil {
			t.Fatalf("expected weak PIN %q to be rejected", weak)
		}
	}
	if settings.updates != 0 {
		t.Fatalf("expected no hash updates, got %d", settings.updates)
	}
}

func TestParseTokenRejectsTamperedAndForeignTokens(t *testing.T) {
	settings := newSettingsStub(t, "1234")
	manager := NewAuthManager("test-secret", time.Hour, settings)

	resp, err := manager.Login(context.Background(), domain.LoginRequest{PIN: "1234"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if err := manager.ParseToken(resp.AccessToken + "x"); err == nil {
		t.Fatalf("expected tampered token to be rejected")
	}

	other := NewAuthManager("a-completely-different-secret", time.Hour, settings)
	if err := other.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}

func TestValidatePINStrength(t *testing.T) {
	for _, pin := range []string{"2846", "80413", "73019284"} {
		if err := ValidatePINStrength(pin); err != nil {
			t.Fatalf("expected PIN %q to be accepted, got %v", pin, err)
		}
	}
	for _, pin := range []string{"", "123", "123456789", "0000", "1234", "9876", "12x4"} {
		if err := ValidatePINStrength(pin); err == nil {
			t.Fatalf("expected PIN %q to be rejected", pin)
		}
	}
}
