package axtree

import "testing"

func TestResolveFrameChainRejectsRelativeXPath(t *testing.T) {
	_, _, err := ResolveFrameChain(nil, "html/body/div")
	if err == nil {
		t.Fatal("expected an error for a non-absolute xpath")
	}
}

func TestResolveFrameChainNoIframeStepsReturnsFullTail(t *testing.T) {
	// A path with no "iframe[n]" steps never needs to touch the frame
	// tree, so a nil root is safe here.
	frames, tail, err := ResolveFrameChain(nil, "/html[1]/body[1]/div[2]")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frames) != 0 {
		t.Fatalf("expected no frames crossed, got %d", len(frames))
	}
	if tail != "/html[1]/body[1]/div[2]" {
		t.Fatalf("expected the full path as tail, got %q", tail)
	}
}

func TestStripPredicateSuffix(t *testing.T) {
	cases := map[string]string{
		"iframe[2]":             "iframe[2]",
		"iframe[2][@id='x']":    "iframe[2]",
		"div":                   "div",
		"div[@class='a'][3]":    "div[@class='a']",
	}
	for in, want := range cases {
		if got := stripPredicateSuffix(in); got != want {
			t.Errorf("stripPredicateSuffix(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIframeStepPatternMatching(t *testing.T) {
	if !iframeStepPattern.MatchString("iframe") {
		t.Error("bare 'iframe' should match")
	}
	if !iframeStepPattern.MatchString("iframe[3]") {
		t.Error("'iframe[3]' should match")
	}
	if iframeStepPattern.MatchString("div[3]") {
		t.Error("'div[3]' should not match")
	}
	if iframeStepPattern.MatchString("iframely") {
		t.Error("'iframely' should not match (not an exact step)")
	}
}
