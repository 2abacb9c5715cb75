package utils

import "testing"

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("1234")
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}
	if hash == "1234" {
		t.Error("Hash must not equal the plaintext")
	}

	if !CheckPassword("1234", hash) {
		t.Error("Expected correct password to verify")
	}
	if CheckPassword("4321", hash) {
		t.Error("Expected wrong password to fail")
	}
}

func TestHashPassword_TooShort(t *testing.T) {
	if _, err := HashPassword("abc"); err != ErrPasswordTooShort {
		t.Errorf("Expected ErrPasswordTooShort, got %v", err)
	}
}

func TestValidatePassword(t *testing.T) {
	if err := ValidatePassword("1234"); err != nil {
		t.Errorf("Expected 4-char password to be valid, got %v", err)
	}

	long := make([]byte, 73)
	for i := range long {
		long[i] = 'a'
	}
	if err := ValidatePassword(string(long)); err != ErrPasswordTooLong {
		t.Errorf("Expected ErrPasswordTooLong, got %v", err)
	}
}
