package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/agac/browser-action-core/internal/agacerr"
	"github.com/agac/browser-action-core/internal/model"
)

// dispatch invokes method against the element selected by xpath in
// frame, per the closed method set described in spec §6. It returns
// the cause prefixed with the method name (or an agacerr Unsupported
// error for a method outside the set); callers wrap it with agacerr.
func dispatch(frame playwright.Frame, method model.MethodType, xpath string, args []string) error {
	cleaned := cleanXPath(xpath)
	locator := frame.Locator("xpath=" + cleaned).First()

	switch method {
	case model.MethodClick:
		if err := clickViaEvaluate(frame, cleaned); err != nil {
			return fmt.Errorf("click: %w", err)
		}
		return nil

	case model.MethodFill, model.MethodType_:
		value := ""
		if len(args) > 0 {
			value = args[0]
		}
		if err := locator.Fill(value, playwright.LocatorFillOptions{Force: playwright.Bool(true)}); err != nil {
			if clearErr := locator.Clear(); clearErr == nil {
				if typeErr := locator.Type(value); typeErr == nil {
					return nil
				}
			}
			return fmt.Errorf("fill: %w", err)
		}
		return nil

	case model.MethodPress:
		key := ""
		if len(args) > 0 {
			key = args[0]
		}
		if err := locator.Press(key); err != nil {
			if pageErr := frame.Page().Keyboard().Press(key); pageErr != nil {
				return fmt.Errorf("press: %w", err)
			}
		}
		if isEnterLike(key) {
			// Navigation handler runs separately, after dispatch
			// returns, per spec 4.H's "post-wait" step.
			return nil
		}
		return nil

	case model.MethodHover:
		if err := locator.Hover(); err != nil {
			return fmt.Errorf("hover: %w", err)
		}
		return nil

	case model.MethodSelectOption:
		if len(args) == 0 {
			return fmt.Errorf("selectOption requires an argument")
		}
		if _, err := locator.SelectOption(playwright.SelectOptionValues{Values: &args}); err != nil {
			return fmt.Errorf("selectOption: %w", err)
		}
		return nil

	case model.MethodCheck:
		if err := locator.Check(); err != nil {
			return fmt.Errorf("check: %w", err)
		}
		return nil

	case model.MethodUncheck:
		if err := locator.Uncheck(); err != nil {
			return fmt.Errorf("uncheck: %w", err)
		}
		return nil

	case model.MethodFocus:
		if err := locator.Focus(); err != nil {
			return fmt.Errorf("focus: %w", err)
		}
		return nil

	case model.MethodBlur:
		if _, err := locator.Evaluate("el => el.blur()", nil); err != nil {
			return fmt.Errorf("blur: %w", err)
		}
		return nil

	case model.MethodScrollIntoView:
		if err := scrollViaHelper(frame, cleaned, "scrollIntoView", nil); err != nil {
			return fmt.Errorf("scrollIntoView: %w", err)
		}
		return nil

	case model.MethodScrollTo:
		if len(args) == 0 {
			return fmt.Errorf("scrollTo requires a percentage argument")
		}
		pct, err := parsePercent(args[0])
		if err != nil {
			return fmt.Errorf("scrollTo: %w", err)
		}
		if err := scrollViaHelper(frame, cleaned, "scrollTo", []any{pct}); err != nil {
			return fmt.Errorf("scrollTo: %w", err)
		}
		return nil

	case model.MethodScroll, model.MethodNextChunk:
		if err := scrollViaHelper(frame, cleaned, "nextChunk", nil); err != nil {
			return fmt.Errorf("nextChunk: %w", err)
		}
		return nil

	case model.MethodPrevChunk:
		if err := scrollViaHelper(frame, cleaned, "prevChunk", nil); err != nil {
			return fmt.Errorf("prevChunk: %w", err)
		}
		return nil

	default:
		return agacerr.NewUnsupported(string(method))
	}
}

func cleanXPath(selector string) string {
	xp := strings.TrimPrefix(selector, "xpath=")
	if xp != "" && !strings.HasPrefix(xp, "/") {
		xp = "/" + xp
	}
	return xp
}

func isEnterLike(key string) bool {
	return key == "Enter" || key == "Space" || key == " "
}

func parsePercent(s string) (float64, error) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "%")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("bad percentage %q: %w", s, err)
	}
	return v, nil
}

// clickViaEvaluate calls el.click() in-page, matching spec 4.H's "click
// evaluates el.click() in the page; on failure it raises a ClickError".
func clickViaEvaluate(frame playwright.Frame, xpath string) error {
	script := fmt.Sprintf(`() => {
		const node = window.__agacHelpers && window.__agacHelpers.getNodeFromXpath(%q);
		if (!node) throw new Error('element not found for xpath');
		node.click();
	}`, xpath)
	_, err := frame.Evaluate(script, nil)
	return err
}

// scrollViaHelper drives the real scrolling element (window if the
// target resolves to <html>/<body>) through the injected helper.
func scrollViaHelper(frame playwright.Frame, xpath, kind string, extra []any) error {
	args := "[]"
	if len(extra) > 0 {
		parts := make([]string, len(extra))
		for i, e := range extra {
			parts[i] = fmt.Sprintf("%v", e)
		}
		args = "[" + strings.Join(parts, ",") + "]"
	}
	script := fmt.Sprintf(`() => {
		const node = window.__agacHelpers && window.__agacHelpers.getNodeFromXpath(%q);
		const target = node && (node.tagName === 'HTML' || node.tagName === 'BODY') ? window : (node || window);
		const kind = %q;
		const args = %s;
		if (kind === 'scrollIntoView') {
			if (target === window) return;
			target.scrollIntoView({ behavior: 'instant', block: 'center' });
		} else if (kind === 'scrollTo') {
			const pct = args[0] || 0;
			const max = target === window ? (document.documentElement.scrollHeight - window.innerHeight) : (target.scrollHeight - target.clientHeight);
			const y = max * (pct / 100);
			if (target === window) window.scrollTo(0, y); else target.scrollTop = y;
		} else if (kind === 'nextChunk') {
			const delta = (target === window ? window.innerHeight : target.clientHeight) * 0.8;
			if (target === window) window.scrollBy(0, delta); else target.scrollTop += delta;
		} else if (kind === 'prevChunk') {
			const delta = (target === window ? window.innerHeight : target.clientHeight) * 0.8;
			if (target === window) window.scrollBy(0, -delta); else target.scrollTop -= delta;
		}
	}`, xpath, kind, args)
	_, err := frame.Evaluate(script, nil)
	return err
}

// waitForNewPageOrSettle implements spec 4.H's post-action navigation
// handling: wait briefly for a new tab; if one opens on a real URL,
// close it and navigate the current page there instead (single-tab
// discipline), then wait for DOM settle.
func waitForNewPageOrSettle(ctx context.Context, bctx playwright.BrowserContext, current playwright.Page, settle func(context.Context, time.Duration) error) error {
	deadline := time.NewTimer(1500 * time.Millisecond)
	defer deadline.Stop()

	newPageCh := make(chan playwright.Page, 1)
	bctx.OnPage(func(p playwright.Page) {
		select {
		case newPageCh <- p:
		default:
		}
	})

	select {
	case np := <-newPageCh:
		url := np.URL()
		if url != "" && url != "about:blank" {
			_ = np.Close()
			if _, err := current.Goto(url); err != nil {
				return agacerr.NewActionFailed("navigate", "", err)
			}
		}
	case <-deadline.C:
	case <-ctx.Done():
		return ctx.Err()
	}
	return settle(ctx, 30*time.Second)
}
