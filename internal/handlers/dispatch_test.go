package handlers

import "testing"

func TestCleanXPath(t *testing.T) {
	cases := map[string]string{
		"xpath=/html/body/div[1]": "/html/body/div[1]",
		"xpath=html/body":         "/html/body",
		"xpath=":                 "",
		"/already/absolute":       "/already/absolute",
	}
	for in, want := range cases {
		if got := cleanXPath(in); got != want {
			t.Errorf("cleanXPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsEnterLike(t *testing.T) {
	for _, key := range []string{"Enter", "Space", " "} {
		if !isEnterLike(key) {
			t.Errorf("expected %q to be enter-like", key)
		}
	}
	if isEnterLike("Tab") {
		t.Error("Tab should not be enter-like")
	}
}

func TestParsePercent(t *testing.T) {
	v, err := parsePercent("50%")
	if err != nil || v != 50 {
		t.Fatalf("parsePercent(50%%) = %v, %v", v, err)
	}
	v, err = parsePercent("  75  ")
	if err != nil || v != 75 {
		t.Fatalf("parsePercent(75) = %v, %v", v, err)
	}
	if _, err := parsePercent("not-a-number"); err == nil {
		t.Fatal("expected an error for a non-numeric percentage")
	}
}
