package handlers

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/agac/browser-action-core/internal/model"
)

func TestStripInlineAttributesRemovesStyleAndEventHandlers(t *testing.T) {
	in := `<html><body><div class="x" style="color:red" onclick="doStuff()">hi</div></body></html>`
	out := stripInlineAttributes(in)
	for _, bad := range []string{`class="x"`, `style="color:red"`, `onclick=`} {
		if strings.Contains(out, bad) {
			t.Errorf("expected %q to be stripped, got: %s", bad, out)
		}
	}
	if !strings.Contains(out, "hi") {
		t.Errorf("expected text content to survive stripping, got: %s", out)
	}
}

func TestStripInlineAttributesKeepsPlainFragmentContent(t *testing.T) {
	// html.Parse is very forgiving, but stripInlineAttributes should
	// never panic or return an empty string for ordinary fragments.
	out := stripInlineAttributes("<div>plain</div>")
	if !strings.Contains(out, "plain") {
		t.Errorf("expected content preserved, got: %s", out)
	}
}

func TestSelectContentSlicePrefersMainContentContainer(t *testing.T) {
	in := `<html><body>
		<nav>site nav</nav>
		<main><p>the real content</p></main>
		<footer>site footer</footer>
	</body></html>`
	out, err := selectContentSlice(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(out, "site nav") || strings.Contains(out, "site footer") {
		t.Errorf("expected nav/footer to be excluded, got: %s", out)
	}
	if !strings.Contains(out, "the real content") {
		t.Errorf("expected main content preserved, got: %s", out)
	}
}

func TestSelectContentSliceFallsBackToBodyWithoutMainContainer(t *testing.T) {
	in := `<html><body><p>just a paragraph</p></body></html>`
	out, err := selectContentSlice(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "just a paragraph") {
		t.Errorf("expected body content preserved, got: %s", out)
	}
}

func TestValidateAgainstFieldsRejectsMissingRequired(t *testing.T) {
	payload, _ := json.Marshal(map[string]any{"title": "only this"})
	fields := []model.FieldSpec{
		{Name: "title", Type: "string", Required: true},
		{Name: "price", Type: "number", Required: true},
	}
	if err := validateAgainstFields(payload, fields); err == nil {
		t.Fatal("expected an error for a missing required field")
	}
}

func TestValidateAgainstFieldsAcceptsCompletePayload(t *testing.T) {
	payload, _ := json.Marshal(map[string]any{"title": "ok", "price": 9.99})
	fields := []model.FieldSpec{
		{Name: "title", Type: "string", Required: true},
		{Name: "price", Type: "number", Required: true},
	}
	if err := validateAgainstFields(payload, fields); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
