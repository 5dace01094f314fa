package service

import (
	"errors"
	"testing"
	"time"

	"github.com/stemsi/exstem-quiz/internal/config"
	"golang.org/x/crypto/bcrypt"
)

func authConfig() *config.Config {
	return &config.Config{
		AdminPassword: "admin",
		JWTSecret:     "test-secret",
		JWTExpiry:     time.Hour,
		BcryptCost:    bcrypt.MinCost,
	}
}

func TestCheckAdminPassword(t *testing.T) {
	svc := NewAuthService(authConfig())

	tests := []struct {
		password string
		want     error
	}{
		{"", ErrEmptyPassword},
		{"Admin", ErrInvalidPassword},
		{"admin ", ErrInvalidPassword},
		{"admin", nil},
	}
	for _, tt := range tests {
		if err := svc.CheckAdminPassword(tt.password); !errors.Is(err, tt.want) {
			t.Errorf("CheckAdminPassword(%q) = %v, want %v", tt.password, err, tt.want)
		}
	}
}

func TestCheckAdminPasswordHash(t *testing.T) {
	cfg := authConfig()
	svc := NewAuthService(cfg)

	hash, err := svc.HashPassword("s3cret-pass")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	cfg.AdminPassHash = hash

	if err := svc.CheckAdminPassword("s3cret-pass"); err != nil {
		t.Errorf("hashed password rejected: %v", err)
	}
	// The hash takes precedence over the plaintext password.
	if err := svc.CheckAdminPassword("admin"); !errors.Is(err, ErrInvalidPassword) {
		t.Errorf("plaintext accepted alongside hash: %v", err)
	}
}

func TestCandidateTokenCarriesSession(t *testing.T) {
	svc := NewAuthService(authConfig())
	sid := svc.NewSessionID()

	token, err := svc.GenerateCandidateToken(sid)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.TokenType != TokenTypeCandidate || claims.SessionID != sid {
		t.Errorf("claims = %+v", claims)
	}
}

func TestValidateTokenRejectsForeignSecret(t *testing.T) {
	other := authConfig()
	other.JWTSecret = "another-secret"

	token, err := NewAuthService(other).GenerateAdminToken()
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := NewAuthService(authConfig()).ValidateToken(token); err == nil {
		t.Error("token signed with another secret was accepted")
	}
}
