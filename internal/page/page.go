// Package page implements the Page/Context Facade (spec component
// 4.J): it owns the CDP session pool, the frame-ordinal registry, and
// the script-injection state, and is the one entry point handlers use
// to reach a live browser tab.
//
// Grounded on the teacher's internal/browser/browser.go Controller,
// generalized from a fixed click/fill/scroll surface to the
// accessibility-grounded observe/act/extract surface, and on
// playwright_ai/core/page.py's Page wrapper for the ordinal registry
// and reinject-on-navigate behavior.
package page

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog"

	"github.com/agac/browser-action-core/internal/agacerr"
	"github.com/agac/browser-action-core/internal/cdp"
	"github.com/agac/browser-action-core/internal/domscript"
	"github.com/agac/browser-action-core/internal/settle"
)

// Page wraps one live Playwright page with the pieces the core
// handlers need: session pooling, ordinal assignment, and script
// injection. Not safe for concurrent use by design (spec's
// single-threaded cooperative model) — callers on the same Page must
// serialize their own calls.
type Page struct {
	mu sync.Mutex

	raw  playwright.Page
	pool *cdp.Pool
	log  zerolog.Logger

	ordinals    map[string]int // frameId -> ordinal
	nextOrdinal int

	injectedFrames map[string]bool
}

// New wraps raw, creating its own CDP session pool. Ordinals are handed
// out from 0, so the main frame gets ordinal 0 when it is the first
// frame id looked up.
func New(bctx playwright.BrowserContext, raw playwright.Page, log zerolog.Logger) *Page {
	p := &Page{
		raw:            raw,
		pool:           cdp.New(bctx, raw, log),
		log:            log.With().Str("component", "page_facade").Logger(),
		ordinals:       map[string]int{},
		injectedFrames: map[string]bool{},
	}
	if mf := raw.MainFrame(); mf != nil {
		p.ordinals[mf.URL()] = 0 // keyed by the bare URL, which frame-id lookups do not use; nextOrdinal stays 0
	}
	raw.OnFrameDetached(func(f playwright.Frame) {
		if fid, err := frameID(f); err == nil {
			p.pool.Release(fid)
		}
	})
	return p
}

// OrdinalForFrameID implements axtree.FrameOrdinals: returns frameID's
// stable ordinal, assigning the next one on first sight. Assignment is
// monotonic for the lifetime of the Page; ResetFrameOrdinals is the
// only way to start over.
func (p *Page) OrdinalForFrameID(frameID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ord, ok := p.ordinals[frameID]; ok {
		return ord
	}
	ord := p.nextOrdinal
	p.nextOrdinal++
	p.ordinals[frameID] = ord
	return ord
}

// ResetFrameOrdinals clears the ordinal registry. Call this after a
// full page navigation where frame identity is expected to have
// changed wholesale; a conscious operation per the concurrency model's
// "resetting is a conscious operation" guarantee.
func (p *Page) ResetFrameOrdinals() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ordinals = map[string]int{}
	p.nextOrdinal = 0
}

// Pool exposes the session pool to handlers that need a raw CDP
// session (axtree, settle). Only the pool itself opens or detaches
// sessions; everything else borrows through here.
func (p *Page) Pool() *cdp.Pool { return p.pool }

// Raw exposes the underlying Playwright page for conveniences the
// facade doesn't wrap (screenshot, content, title, url, close).
func (p *Page) Raw() playwright.Page { return p.raw }

// EnsureInjected injects the domscript helper blob into frame if it
// hasn't been (or the page reports the flag missing, e.g. after a
// cross-origin navigation cleared window state), guarded by the
// injected flag itself so concurrent callers never double-inject.
func (p *Page) EnsureInjected(frame playwright.Frame) error {
	fid, err := frameID(frame)
	if err != nil {
		return err
	}
	p.mu.Lock()
	already := p.injectedFrames[fid]
	p.mu.Unlock()
	if already {
		if present, _ := frame.Evaluate(fmt.Sprintf("() => !!window.%s", domscript.InjectedFlag), nil); present == true {
			return nil
		}
	}
	if _, err := frame.Evaluate(domscript.Source, nil); err != nil {
		return agacerr.NewCDPError("Page.injectHelpers", err)
	}
	p.mu.Lock()
	p.injectedFrames[fid] = true
	p.mu.Unlock()
	return nil
}

// EnsureInjectedAllFrames runs EnsureInjected over the page's main
// frame and every live child frame, per spec 4.G step 2.
func (p *Page) EnsureInjectedAllFrames() error {
	if err := p.EnsureInjected(p.raw.MainFrame()); err != nil {
		return err
	}
	for _, f := range p.raw.MainFrame().ChildFrames() {
		if err := p.EnsureInjected(f); err != nil {
			p.log.Warn().Err(err).Str("frame_url", f.URL()).Msg("helper injection failed for child frame")
		}
	}
	return nil
}

// WaitForSettledDOM blocks until the DOM-settle waiter (4.F) reports no
// inflight network activity and no pending document loads, or timeout
// elapses.
func (p *Page) WaitForSettledDOM(ctx context.Context, timeout time.Duration) error {
	sess, err := p.pool.PageSession()
	if err != nil {
		return agacerr.NewCDPError("Page.getSession", err)
	}
	w := settle.New(p.log)
	return w.Wait(ctx, sess, timeout)
}

// Goto navigates the page, resets frame ordinals (navigation changes
// frame identity wholesale), and waits for the DOM to settle.
func (p *Page) Goto(ctx context.Context, url string, timeout time.Duration) error {
	if _, err := p.raw.Goto(url); err != nil {
		return agacerr.NewActionFailed("navigate", "", err)
	}
	p.ResetFrameOrdinals()
	p.mu.Lock()
	p.injectedFrames = map[string]bool{}
	p.mu.Unlock()
	return p.WaitForSettledDOM(ctx, timeout)
}

// Close releases every pooled CDP session. Safe to call more than
// once.
func (p *Page) Close() {
	p.pool.Cleanup()
}

func frameID(f playwright.Frame) (string, error) {
	if f == nil {
		return "", agacerr.NewCDPError("Frame.id", fmt.Errorf("nil frame"))
	}
	// playwright-go does not expose the CDP frame id on Frame, so
	// Name()+"@"+URL() is used as the key instead (the observe handler
	// builds its frame descriptors with the same key). It serves only
	// as an identity key (detach handling, injected-flag bookkeeping)
	// and changes when the frame navigates.
	return f.Name() + "@" + f.URL(), nil
}
