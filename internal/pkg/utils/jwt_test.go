package utils

import (
	"testing"
	"time"
)

func TestJWTManager_GenerateAndVerify(t *testing.T) {
	manager := NewJWTManager("test-secret", time.Hour, "lanchat-test")

	token, expiresAt, err := manager.Generate("user-1", "alice")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	if token == "" {
		t.Fatal("Expected non-empty token")
	}
	if !expiresAt.After(time.Now()) {
		t.Error("Expected expiry in the future")
	}

	claims, err := manager.Verify(token)
	if err != nil {
		t.Fatalf("Failed to verify token: %v", err)
	}
	if claims.UserID != "user-1" {
		t.Errorf("Expected user ID 'user-1', got '%s'", claims.UserID)
	}
	if claims.Username != "alice" {
		t.Errorf("Expected username 'alice', got '%s'", claims.Username)
	}
}

func TestJWTManager_VerifyExpired(t *testing.T) {
	manager := NewJWTManager("test-secret", -time.Minute, "lanchat-test")

	token, _, err := manager.Generate("user-1", "alice")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	if _, err := manager.Verify(token); err != ErrExpiredToken {
		t.Errorf("Expected ErrExpiredToken, got %v", err)
	}
}

func TestJWTManager_VerifyWrongSecret(t *testing.T) {
	manager := NewJWTManager("secret-a", time.Hour, "lanchat-test")
	other := NewJWTManager("secret-b", time.Hour, "lanchat-test")

	token, _, err := manager.Generate("user-1", "alice")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	if _, err := other.Verify(token); err != ErrInvalidToken {
		t.Errorf("Expected ErrInvalidToken, got %v", err)
	}
}
