package handlers

import (
	"errors"
	"testing"
)

func TestGuessActionExtractsFirstQuotedValue(t *testing.T) {
	g := guessAction(`fill the email field with "first@example.com" or "second@example.com"`)
	if g.action != "fill" {
		t.Fatalf("expected fill, got %q", g.action)
	}
	if g.value != "first@example.com" {
		t.Fatalf("expected the first quoted value, got %q", g.value)
	}
}

func TestGuessActionDefaultsToClick(t *testing.T) {
	g := guessAction("do something ambiguous")
	if g.action != "click" {
		t.Fatalf("expected default guess of click, got %q", g.action)
	}
}

func TestGuessActionRecognizesNavigate(t *testing.T) {
	g := guessAction("navigate to the pricing page")
	if g.action != "navigate" {
		t.Fatalf("expected navigate, got %q", g.action)
	}
}

func TestClassifyFailure(t *testing.T) {
	cases := map[string]string{
		"request timeout exceeded":       "timeout",
		"element not found for xpath":    "not found",
		"element is not clickable here":  "not clickable",
		"some other dispatcher problem":  "generic failure",
	}
	for msg, want := range cases {
		got := classifyFailure(errors.New(msg))
		if got != want {
			t.Errorf("classifyFailure(%q) = %q, want %q", msg, got, want)
		}
	}
}

func TestActionTypeForMapsKnownMethods(t *testing.T) {
	if actionTypeFor("click") != "click" {
		t.Fatal("click method should map to click action")
	}
	if actionTypeFor("scrollIntoView") != "scroll" {
		t.Fatal("scrollIntoView should map to the scroll action type")
	}
}
