package auth

import (
	"testing"
	"time"
)

func TestGenerateAndValidateToken(t *testing.T) {
	manager := NewServiceTokenManager([]byte("test-secret"), time.Hour)

	token, err := manager.GenerateToken("panel", "quota:read,quota:write")
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	claims, err := manager.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken error: %v", err)
	}
	if claims.Subject != "panel" {
		t.Fatalf("expected subject panel, got %q", claims.Subject)
	}
	if claims.Issuer != "quotad" {
		t.Fatalf("expected issuer quotad, got %q", claims.Issuer)
	}
}

func TestValidateTokenRejectsWrongKey(t *testing.T) {
	manager := NewServiceTokenManager([]byte("test-secret"), time.Hour)
	other := NewServiceTokenManager([]byte("other-secret"), time.Hour)

	token, err := manager.GenerateToken("panel", "quota:read")
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	if _, err := other.ValidateToken(token); err == nil {
		t.Fatal("expected validation to fail with the wrong key")
	}
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	manager := NewServiceTokenManager([]byte("test-secret"), -time.Minute)

	token, err := manager.GenerateToken("panel", "quota:read")
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	if _, err := manager.ValidateToken(token); err == nil {
		t.Fatal("expected validation to fail for an expired token")
	}
}

func TestHasScope(t *testing.T) {
	claims := &ServiceTokenClaims{Scope: "quota:read,quota:write"}

	if !claims.HasScope("quota:write") {
		t.Fatal("expected quota:write to be present")
	}
	if claims.HasScope("settings:write") {
		t.Fatal("expected settings:write to be absent")
	}
}
