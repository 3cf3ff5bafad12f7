package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"
)

func newTestService(t *testing.T) *AuthService {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return NewAuthServiceWithKey(key, &key.PublicKey, time.Minute, time.Hour)
}

func TestGenerateAndValidateTokenPair(t *testing.T) {
	svc := newTestService(t)

	pair, err := svc.GenerateTokenPair("user-1", true)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	access, err := svc.ValidateToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("validate access: %v", err)
	}
	if access.UserID != "user-1" || access.TokenType != TokenTypeAccess || !access.MustChangePassword {
		t.Fatalf("unexpected access claims: %+v", access)
	}

	refresh, err := svc.ValidateToken(pair.RefreshToken)
	if err != nil {
		t.Fatalf("validate refresh: %v", err)
	}
	if refresh.TokenType != TokenTypeRefresh || refresh.ID == "" {
		t.Fatalf("refresh token must carry a jti: %+v", refresh)
	}
}

func TestValidateTokenRejectsForeignKey(t *testing.T) {
	a := newTestService(t)
	b := newTestService(t)

	pair, err := a.GenerateTokenPair("user-1", false)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := b.ValidateToken(pair.AccessToken); err == nil {
		t.Fatal("expected signature error")
	}
	if _, err := a.ValidateToken(""); err == nil {
		t.Fatal("expected error for empty token")
	}
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !CheckPasswordHash("s3cret-pass", hash) {
		t.Fatal("expected match")
	}
	if CheckPasswordHash("other", hash) {
		t.Fatal("expected mismatch")
	}
}
