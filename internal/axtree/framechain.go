package axtree

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/playwright-community/playwright-go"
)

// iframeStepPattern matches one absolute-XPath step addressing the
// nth iframe child, e.g. "iframe[2]" or "iframe". Index defaults to 1
// when omitted, matching XPath's own convention.
var iframeStepPattern = regexp.MustCompile(`^iframe(?:\[(\d+)\])?$`)

// ResolveFrameChain walks an absolute XPath's steps looking for
// "iframe[n]" segments, descending into each one's content frame via
// Playwright's live frame tree, and returns every frame crossed plus
// the XPath tail relative to the innermost frame reached (spec 4.E).
// A path with no iframe steps returns (nil, fullPath): the tail should
// be evaluated against root directly.
func ResolveFrameChain(root playwright.Frame, xpath string) ([]playwright.Frame, string, error) {
	if !strings.HasPrefix(xpath, "/") {
		return nil, "", fmt.Errorf("frame chain resolution requires an absolute xpath, got %q", xpath)
	}
	steps := strings.Split(strings.TrimPrefix(xpath, "/"), "/")

	var frames []playwright.Frame
	current := root
	consumed := 0
	for i, raw := range steps {
		step := stripPredicateSuffix(raw)
		m := iframeStepPattern.FindStringSubmatch(step)
		if m == nil {
			continue
		}
		idx := 1
		if m[1] != "" {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				return nil, "", fmt.Errorf("bad iframe index in step %q: %w", raw, err)
			}
			idx = n
		}

		child, err := nthIframeContentFrame(current, idx)
		if err != nil {
			return nil, "", fmt.Errorf("resolve %s at step %d: %w", raw, i, err)
		}
		frames = append(frames, child)
		current = child
		consumed = i + 1
	}

	tail := "/" + strings.Join(steps[consumed:], "/")
	if consumed == 0 {
		tail = xpath
	}
	return frames, tail, nil
}

// stripPredicateSuffix removes any bracketed tag-index suffix for
// matching purposes is a no-op here since iframeStepPattern already
// handles the "iframe[n]" bracket itself; this only strips a second,
// unrelated predicate like "iframe[n][@id='x']" down to "iframe[n]".
func stripPredicateSuffix(step string) string {
	first := strings.Index(step, "][")
	if first == -1 {
		return step
	}
	return step[:first+1]
}

// nthIframeContentFrame returns the content frame of the nth (1-based)
// iframe or frame element among parent's direct child frames whose
// frame element tag is iframe/frame, in document order.
func nthIframeContentFrame(parent playwright.Frame, idx int) (playwright.Frame, error) {
	children := parent.ChildFrames()
	count := 0
	for _, c := range children {
		el, err := c.FrameElement()
		if err != nil {
			continue
		}
		tag, err := el.Evaluate("el => el.tagName.toLowerCase()", nil)
		if err != nil {
			continue
		}
		tagStr, _ := tag.(string)
		if tagStr != "iframe" && tagStr != "frame" {
			continue
		}
		count++
		if count == idx {
			return c, nil
		}
	}
	return nil, fmt.Errorf("no iframe child at index %d (found %d candidates)", idx, count)
}
