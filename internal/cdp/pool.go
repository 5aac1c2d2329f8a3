// Package cdp implements the CDP session pool (spec component 4.A): at
// most one CDP session per (Page, Frame), with same-process frames
// transparently aliasing the page's session.
//
// Grounded on playwright_ai/cdp/manager.py's CDPSessionPool (the
// same-process/OOP aliasing fallback) and the teacher's
// internal/snapshot/snapshot.go use of context.NewCDPSession(page).
package cdp

import (
	"fmt"
	"strings"
	"sync"

	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog"
)

// Session wraps a playwright CDPSession with the typed Send signature
// the rest of the core expects, plus a record of whether it is an
// alias of the page session (same-process frame) or a real dedicated
// session (OOP frame or the page itself).
type Session struct {
	raw     playwright.CDPSession
	FrameID string
	Aliased bool
}

// Send issues a raw CDP command. params may be nil.
func (s *Session) Send(method string, params map[string]any) (map[string]any, error) {
	if params == nil {
		params = map[string]any{}
	}
	result, err := s.raw.Send(method, params)
	if err != nil {
		return nil, err
	}
	m, ok := result.(map[string]any)
	if !ok {
		return map[string]any{}, nil
	}
	return m, nil
}

// On subscribes to a raw CDP event (e.g. "Network.requestWillBeSent")
// and adapts playwright's untyped event payload to a map. The returned
// func removes the listener; callers (settle.Waiter in particular) must
// call it on every exit path.
func (s *Session) On(method string, handler func(params map[string]any)) (unsubscribe func()) {
	wrapped := func(ev interface{}) {
		m, ok := ev.(map[string]any)
		if !ok {
			m = map[string]any{}
		}
		handler(m)
	}
	s.raw.On(method, wrapped)
	return func() {
		s.raw.RemoveListener(method, wrapped)
	}
}

// Pool serves one CDP session per (Page, Frame). It is owned
// exclusively by a single page.Page instance; nothing outside the pool
// opens or detaches sessions.
type Pool struct {
	mu      sync.Mutex
	browser playwright.BrowserContext
	page    playwright.Page
	log     zerolog.Logger

	pageSession *Session
	byFrameID   map[string]*Session // only non-aliased, real OOP sessions
}

// New creates a pool bound to a single page's browser context.
func New(bctx playwright.BrowserContext, page playwright.Page, log zerolog.Logger) *Pool {
	return &Pool{
		browser:   bctx,
		page:      page,
		log:       log.With().Str("component", "cdp_pool").Logger(),
		byFrameID: make(map[string]*Session),
	}
}

// PageSession returns (creating if needed) the session for the main
// page.
func (p *Pool) PageSession() (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pageSessionLocked()
}

func (p *Pool) pageSessionLocked() (*Session, error) {
	if p.pageSession != nil {
		return p.pageSession, nil
	}
	raw, err := p.browser.NewCDPSession(p.page)
	if err != nil {
		return nil, fmt.Errorf("open page CDP session: %w", err)
	}
	p.pageSession = &Session{raw: raw, FrameID: "", Aliased: false}
	return p.pageSession, nil
}

// FrameSession returns the session that should be used to address
// frameID. If the frame turns out to be same-process (opening a
// dedicated session fails with a "no separate CDP session" style
// error), it is aliased to the page session and all subsequent calls
// return that instead.
func (p *Pool) FrameSession(frame playwright.Frame, frameID string) (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s, ok := p.byFrameID[frameID]; ok {
		return s, nil
	}

	raw, err := p.browser.NewCDPSession(frame)
	if err != nil {
		if looksLikeSameProcessError(err) {
			p.log.Debug().Str("frame_id", frameID).Msg("frame has no separate CDP session, aliasing page session")
			pageSess, perr := p.pageSessionLocked()
			if perr != nil {
				return nil, perr
			}
			// Cache a thin alias record so repeat lookups skip the
			// NewCDPSession attempt entirely.
			alias := &Session{raw: pageSess.raw, FrameID: frameID, Aliased: true}
			p.byFrameID[frameID] = alias
			return alias, nil
		}
		return nil, fmt.Errorf("open frame CDP session for %s: %w", frameID, err)
	}
	sess := &Session{raw: raw, FrameID: frameID, Aliased: false}
	p.byFrameID[frameID] = sess
	return sess, nil
}

// Release drops a frame's cached session, e.g. in response to a
// frame-detached event. It does not attempt to detach an aliased
// session, since that would detach the (still-live) page session.
func (p *Pool) Release(frameID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.byFrameID[frameID]
	if !ok {
		return
	}
	delete(p.byFrameID, frameID)
	if !s.Aliased {
		_ = s.raw.Detach()
	}
}

// Cleanup detaches every still-live, non-aliased session, including
// the page session. Safe to call more than once.
func (p *Pool) Cleanup() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, s := range p.byFrameID {
		if !s.Aliased {
			_ = s.raw.Detach()
		}
		delete(p.byFrameID, id)
	}
	if p.pageSession != nil {
		_ = p.pageSession.raw.Detach()
		p.pageSession = nil
	}
}

func looksLikeSameProcessError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "does not have a separate cdp session") ||
		strings.Contains(msg, "no separate cdp session") ||
		strings.Contains(msg, "session attached to frame with same process")
}
