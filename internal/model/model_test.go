package model

import "testing"

func TestEncodedIdRoundTrip(t *testing.T) {
	id := NewEncodedId(3, 1024)
	if string(id) != "3-1024" {
		t.Fatalf("unexpected encoding: %s", id)
	}
	ord, backend, err := id.Split()
	if err != nil {
		t.Fatalf("split failed: %v", err)
	}
	if ord != 3 || backend != 1024 {
		t.Fatalf("got ordinal=%d backend=%d", ord, backend)
	}
}

func TestEncodedIdSplitRejectsBadShape(t *testing.T) {
	if _, _, err := EncodedId("not-an-id").Split(); err == nil {
		t.Fatal("expected an error for a non-numeric backend id")
	}
	if _, _, err := EncodedId("no-dash-here-at-all").Split(); err == nil {
		t.Fatal("expected an error for a malformed encoded id")
	}
}

func TestIsSupportedMethod(t *testing.T) {
	if !IsSupportedMethod(MethodClick) {
		t.Fatal("click should be supported")
	}
	if !IsSupportedMethod(MethodNotSupported) {
		t.Fatal("not-supported sentinel should be accepted")
	}
	if IsSupportedMethod(MethodType("teleport")) {
		t.Fatal("unknown method should not be supported")
	}
}

func TestObserveResultXPathFromSelector(t *testing.T) {
	r := ObserveResult{Selector: "xpath=/html/body/div[1]"}
	if got := r.XPathFromSelector(); got != "/html/body/div[1]" {
		t.Fatalf("got %q", got)
	}

	empty := ObserveResult{Selector: "xpath="}
	if got := empty.XPathFromSelector(); got != "" {
		t.Fatalf("expected empty path, got %q", got)
	}
}
