package httpapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"provisionpos/backend/internal/domain"
)

// SettingsStore is the slice of the repository the auth layer needs: the
// persisted operator PIN hash.
type SettingsStore interface {
	GetSettings(ctx context.Context) (*domain.StoreSettings, error)
	UpdatePINHash(ctx context.Context, pinHash string) error
}

type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	settings SettingsStore
}

type posClaims struct {
	jwtlib.RegisteredClaims
}

func NewAuthManager(secret string, tokenTTL time.Duration, settings SettingsStore) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}

	return &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		settings: settings,
	}
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	pin := strings.TrimSpace(req.PIN)
	if pin == "" {
		return domain.LoginResponse{}, errors.New("invalid credentials")
	}

	settings, err := a.settings.GetSettings(ctx)
	if err != nil {
		return domain.LoginResponse{}, errors.New("invalid credentials")
	}
	if !verifyPIN(settings.PINHash, pin) {
		return domain.LoginResponse{}, errors.New("invalid credentials")
	}

	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	token, err := a.sign(expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return domain.LoginResponse{
		AccessToken: token,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ChangePIN(ctx context.Context, req domain.ChangePINRequest) error {
	oldPIN := strings.TrimSpace(req.OldPIN)
	newPIN := strings.TrimSpace(req.NewPIN)

	settings, err := a.settings.GetSettings(ctx)
	if err != nil {
		return err
	}
	if !verifyPIN(settings.PINHash, oldPIN) {
		return errors.New("invalid credentials")
	}
	if err := ValidatePINStrength(newPIN); err != nil {
		return err
	}

	hash, err := hashPIN(newPIN)
	if err != nil {
		return fmt.Errorf("failed to hash PIN")
	}
	return a.settings.UpdatePINHash(ctx, hash)
}

func (a *AuthManager) ParseToken(tokenStr string) error {
	claims := &posClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return errors.New("invalid or expired token")
	}
	return nil
}

func (a *AuthManager) sign(expiresAt time.Time) (string, error) {
	claims := posClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   "operator",
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "provisionpos",
		},
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// ValidatePINStrength enforces 4 to 8 digits and rejects trivially guessable
// PINs: repeated digits and ascending or descending runs.
func ValidatePINStrength(pin string) error {
	if len(pin) < 4 || len(pin) > 8 {
		return fmt.Errorf("PIN must be 4 to 8 digits")
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return fmt.Errorf("PIN must contain digits only")
		}
	}

	allSame := true
	ascending := true
	descending := true
	for i := 1; i < len(pin); i++ {
		if pin[i] != pin[0] {
			allSame = false
		}
		if pin[i] != pin[i-1]+1 {
			ascending = false
		}
		if pin[i] != pin[i-1]-1 {
			descending = false
		}
	}
	if allSame || ascending || descending {
		return fmt.Errorf("PIN is too predictable")
	}
	return nil
}

// SeedPINHash hashes the boot PIN for first-run settings bootstrap.
func SeedPINHash(pin string) (string, error) {
	return hashPIN(pin)
}

func verifyPIN(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPINHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPIN(pin string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPINHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
