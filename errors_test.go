package drive

import (
	"errors"
	"fmt"
	"testing"
)

func TestHaltError(t *testing.T) {
	err := NewHaltError(42, "state root mismatch")
	if err.Height != 42 {
		t.Errorf("expected height 42, got %d", err.Height)
	}
	if err.Reason != "state root mismatch" {
		t.Errorf("unexpected reason: %s", err.Reason)
	}

	expected := "HALT at height 42: state root mismatch"
	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}
}

func TestWrapHalt(t *testing.T) {
	cause := errors.New("disk full")
	err := WrapHalt(7, "execution failed", cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected WrapHalt to unwrap to its cause")
	}
	expected := "HALT at height 7: execution failed: disk full"
	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}
}

func TestIsHalt(t *testing.T) {
	haltErr := NewHaltError(10, "divergence")

	// Direct.
	h, ok := IsHalt(haltErr)
	if !ok {
		t.Fatal("expected IsHalt to return true")
	}
	if h.Height != 10 {
		t.Errorf("expected height 10, got %d", h.Height)
	}

	// Wrapped.
	wrapped := fmt.Errorf("wrapped: %w", haltErr)
	h2, ok2 := IsHalt(wrapped)
	if !ok2 {
		t.Fatal("expected IsHalt to unwrap wrapped error")
	}
	if h2.Height != 10 {
		t.Errorf("expected height 10, got %d", h2.Height)
	}

	// Non-halt error.
	if _, ok := IsHalt(fmt.Errorf("just a regular error")); ok {
		t.Fatal("expected IsHalt to return false for non-halt error")
	}

	// Nil.
	if _, ok := IsHalt(nil); ok {
		t.Fatal("expected IsHalt to return false for nil")
	}
}

func TestInvalidArgumentError(t *testing.T) {
	err := NewInvalidArgumentError("State Transition is not specified", nil)
	if err.Error() != "Invalid argument: State Transition is not specified" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if err.GetCode() != CodeInvalidArgument {
		t.Errorf("expected code %d, got %d", CodeInvalidArgument, err.GetCode())
	}
	if err.GetData() != nil {
		t.Errorf("expected no data, got %v", err.GetData())
	}
}

func TestRateLimiterQuotaExceededError(t *testing.T) {
	err := NewRateLimiterQuotaExceededError("alice", "rateLimitBanned")
	if err.UserID != "alice" {
		t.Errorf("expected user alice, got %s", err.UserID)
	}
	if err.GetData()["userId"] != "alice" {
		t.Errorf("unexpected data %v", err.GetData())
	}
	tags := err.GetTags()
	if len(tags) != 2 || tags["rateLimitBanned"] != "alice" || tags["bannedUserIds"] != "alice" {
		t.Errorf("unexpected tags %v", tags)
	}
}

func TestRateLimiterBannedError(t *testing.T) {
	err := NewRateLimiterBannedError("bob")
	if err.GetCode() != CodeRateLimiterBanned {
		t.Errorf("expected code %d, got %d", CodeRateLimiterBanned, err.GetCode())
	}
	if err.GetData()["userId"] != "bob" {
		t.Errorf("unexpected data %v", err.GetData())
	}
	if len(err.GetTags()) != 0 {
		t.Errorf("expected no tags, got %v", err.GetTags())
	}
}

func TestAsAbciError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code uint32
	}{
		{"invalid argument", NewInvalidArgumentError("x", nil), CodeInvalidArgument},
		{"quota", NewRateLimiterQuotaExceededError("a", "k"), CodeRateLimiterQuotaExceed},
		{"banned", NewRateLimiterBannedError("a"), CodeRateLimiterBanned},
		{"wrapped", fmt.Errorf("ctx: %w", NewRateLimiterBannedError("a")), CodeRateLimiterBanned},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a, ok := AsAbciError(tc.err)
			if !ok {
				t.Fatal("expected AsAbciError to match")
			}
			if a.Code != tc.code {
				t.Errorf("expected code %d, got %d", tc.code, a.Code)
			}
		})
	}

	if _, ok := AsAbciError(errors.New("boom")); ok {
		t.Fatal("expected plain error not to match")
	}
	if _, ok := AsAbciError(nil); ok {
		t.Fatal("expected nil not to match")
	}
}
