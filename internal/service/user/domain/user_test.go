// internal/service/user/domain/user_test.go
package domain

import "testing"

func TestNewUserHashesPassword(t *testing.T) {
	user, err := NewUser("alice", "alice@example.com", "s3cret-pass")
	if err != nil {
		t.Fatalf("new user: %v", err)
	}
	if user.PasswordHash == "" || user.PasswordHash == "s3cret-pass" {
		t.Error("password must be stored hashed")
	}
	if !user.CheckPassword("s3cret-pass") {
		t.Error("correct password must verify")
	}
	if user.CheckPassword("wrong-pass") {
		t.Error("wrong password must not verify")
	}
}

func TestNewUserRejectsShortPassword(t *testing.T) {
	if _, err := NewUser("alice", "", "short"); err == nil {
		t.Fatal("expected error for short password")
	}
}

func TestNewUserRejectsEmptyUsername(t *testing.T) {
	if _, err := NewUser("", "", "long-enough-pass"); err == nil {
		t.Fatal("expected error for empty username")
	}
}

func TestSetPasswordReplacesHash(t *testing.T) {
	user, _ := NewUser("alice", "", "original-pass")
	old := user.PasswordHash
	if err := user.SetPassword("replacement-pass"); err != nil {
		t.Fatalf("set password: %v", err)
	}
	if user.PasswordHash == old {
		t.Error("hash must change")
	}
	if !user.CheckPassword("replacement-pass") || user.CheckPassword("original-pass") {
		t.Error("only the new password must verify")
	}
}
