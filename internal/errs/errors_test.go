package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestNewFormatsCause(t *testing.T) {
	err := New(AuthNoUser, "no user named %q", "peppy")
	if err.Category != AuthNoUser {
		t.Fatalf("Category = %v, want %v", err.Category, AuthNoUser)
	}
	want := `AUTH_NO_USER: no user named "peppy"`
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("eof")
	err := Wrap(DecodeTruncated, cause)
	if err.Unwrap() != cause {
		t.Fatal("Unwrap() did not return the wrapped cause")
	}
}

func TestIsMatchesDirectCategory(t *testing.T) {
	err := New(ChatSilenced, "silenced")
	if !Is(err, ChatSilenced) {
		t.Fatal("Is() should match the error's own category")
	}
	if Is(err, ChatDMBlocked) {
		t.Fatal("Is() should not match a different category")
	}
}

func TestIsFollowsWrappedChain(t *testing.T) {
	inner := New(AuthBadPassword, "bad password")
	outer := fmt.Errorf("login failed: %w", inner)

	if !Is(outer, AuthBadPassword) {
		t.Fatal("Is() should unwrap a standard-library-wrapped chain to find the category")
	}
}

func TestIsReturnsFalseForPlainError(t *testing.T) {
	if Is(errors.New("plain"), AuthNoUser) {
		t.Fatal("Is() should return false for an error with no category")
	}
}
