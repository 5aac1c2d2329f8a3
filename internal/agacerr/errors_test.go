package agacerr

import (
	"errors"
	"strings"
	"testing"
)

func TestIsMatchesWrappedKind(t *testing.T) {
	cause := errors.New("boom")
	err := NewActionFailed("click", "/div[1]", cause)

	if !Is(err, ActionFailed) {
		t.Fatal("expected Is to match ActionFailed")
	}
	if Is(err, Timeout) {
		t.Fatal("did not expect Is to match Timeout")
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to find the wrapped cause via Unwrap")
	}
}

func TestErrorMessageIncludesContext(t *testing.T) {
	err := NewActionFailed("click", "/div[1]", errors.New("boom"))
	msg := err.Error()
	if msg == "" {
		t.Fatal("expected a non-empty error message")
	}
	if !strings.Contains(msg, "click") || !strings.Contains(msg, "boom") {
		t.Fatalf("expected the message to name the action and the cause, got %q", msg)
	}
}

func TestIsHandlesPlainErrors(t *testing.T) {
	if Is(errors.New("plain"), Timeout) {
		t.Fatal("a plain error should never match a Kind")
	}
}
