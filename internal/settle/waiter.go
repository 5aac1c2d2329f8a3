// Package settle implements the DOM-settle waiter (spec component
// 4.F): it publishes one "settled" event per call, defined as no
// inflight network request and no pending main-document load for a
// quiet window, or the overall timeout elapsing first.
//
// Grounded on playwright_ai/core/page.py's _wait_for_settled_dom,
// translated from asyncio tasks/events to goroutines, channels, and
// context.Context cancellation the way the teacher's internal/browser
// and internal/agent packages use context throughout.
package settle

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultQuietMs   = 500
	defaultTimeout   = 30 * time.Second
	stallSweepPeriod = 500 * time.Millisecond
	stallAge         = 2000 * time.Millisecond
)

// EventSource is the minimal CDP surface the waiter needs: raw event
// subscription plus the handful of domain-enable calls its protocol
// requires. Implemented by cdp.Session in production, and by a
// scripted fake in tests.
type EventSource interface {
	Send(method string, params map[string]any) (map[string]any, error)
	On(method string, handler func(params map[string]any)) (unsubscribe func())
}

type inflightEntry struct {
	url       string
	startedAt time.Time
}

// Waiter tracks in-flight network activity and per-frame document
// loads for one CDP target and exposes a single blocking Wait call.
type Waiter struct {
	mu        sync.Mutex
	inflight  map[string]inflightEntry
	docByFrame map[string]string // frameId -> requestId

	quiet time.Duration
	log   zerolog.Logger
}

// Option configures a Waiter away from the spec's documented defaults.
type Option func(*Waiter)

// WithQuietWindow overrides the default 500ms quiet window.
func WithQuietWindow(d time.Duration) Option {
	return func(w *Waiter) { w.quiet = d }
}

// New constructs a Waiter. Call Wait once per DOM-settle check; it is
// not safe to call Wait concurrently on the same Waiter.
func New(log zerolog.Logger, opts ...Option) *Waiter {
	w := &Waiter{
		inflight:   map[string]inflightEntry{},
		docByFrame: map[string]string{},
		quiet:      defaultQuietMs * time.Millisecond,
		log:        log.With().Str("component", "dom_settle_waiter").Logger(),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Wait enables Network/Page/Target auto-attach on source, subscribes to
// the events that drive the inflight/docByFrame bookkeeping, and blocks
// until the DOM is settled or timeout elapses (default 30s if ctx
// carries no earlier deadline). Every listener and timer is guaranteed
// removed on return, success or timeout alike.
func (w *Waiter) Wait(ctx context.Context, source EventSource, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if _, err := source.Send("Network.enable", nil); err != nil {
		w.log.Warn().Err(err).Msg("Network.enable failed")
	}
	if _, err := source.Send("Page.enable", nil); err != nil {
		w.log.Warn().Err(err).Msg("Page.enable failed")
	}
	if _, err := source.Send("Target.setAutoAttach", map[string]any{
		"autoAttach": true, "waitForDebuggerOnStart": false, "flatten": true,
	}); err != nil {
		w.log.Warn().Err(err).Msg("Target.setAutoAttach failed")
	}

	settled := make(chan struct{}, 1)
	var quietTimer *time.Timer
	var quietTimerMu sync.Mutex

	stopQuietTimer := func() {
		quietTimerMu.Lock()
		defer quietTimerMu.Unlock()
		if quietTimer != nil {
			quietTimer.Stop()
			quietTimer = nil
		}
	}
	signalSettled := func() {
		select {
		case settled <- struct{}{}:
		default:
		}
	}
	armQuietTimerLocked := func() {
		quietTimerMu.Lock()
		defer quietTimerMu.Unlock()
		if quietTimer != nil {
			quietTimer.Stop()
		}
		quietTimer = time.AfterFunc(w.quiet, signalSettled)
	}

	maybeArmQuietTimer := func() {
		w.mu.Lock()
		empty := len(w.inflight) == 0
		w.mu.Unlock()
		if empty {
			armQuietTimerLocked()
		} else {
			stopQuietTimer()
		}
	}

	track := func(params map[string]any) {
		requestID, _ := params["requestId"].(string)
		if requestID == "" {
			return
		}
		url, _ := requestStringField(params, "request", "url")
		frameID, _ := params["frameId"].(string)
		reqType, _ := params["type"].(string)
		isDocument := reqType == "Document"

		w.mu.Lock()
		w.inflight[requestID] = inflightEntry{url: url, startedAt: timeNow()}
		if isDocument && frameID != "" {
			w.docByFrame[frameID] = requestID
		}
		w.mu.Unlock()
		stopQuietTimer()
	}

	untrack := func(params map[string]any) {
		requestID, _ := params["requestId"].(string)
		if requestID == "" {
			return
		}
		w.mu.Lock()
		delete(w.inflight, requestID)
		w.mu.Unlock()
		maybeArmQuietTimer()
	}

	untrackByFrame := func(params map[string]any) {
		frameID, _ := params["frameId"].(string)
		if frameID == "" {
			return
		}
		w.mu.Lock()
		if reqID, ok := w.docByFrame[frameID]; ok {
			delete(w.inflight, reqID)
			delete(w.docByFrame, frameID)
		}
		w.mu.Unlock()
		maybeArmQuietTimer()
	}

	var unsubs []func()
	sub := func(method string, handler func(map[string]any)) {
		unsubs = append(unsubs, source.On(method, handler))
	}
	sub("Network.requestWillBeSent", track)
	sub("Network.loadingFinished", untrack)
	sub("Network.loadingFailed", untrack)
	sub("Network.requestServedFromCache", untrack)
	sub("Network.responseReceived", func(params map[string]any) {
		if url, ok := requestStringField(params, "response", "url"); ok && hasPrefix(url, "data:") {
			untrack(params)
		}
	})
	sub("Page.frameStoppedLoading", untrackByFrame)

	defer func() {
		stopQuietTimer()
		for _, u := range unsubs {
			u()
		}
	}()

	sweepTicker := time.NewTicker(stallSweepPeriod)
	defer sweepTicker.Stop()

	// Start from a settled assumption: if nothing is inflight yet,
	// arm the quiet timer immediately rather than waiting for the
	// first event to trigger it.
	maybeArmQuietTimer()

	for {
		select {
		case <-settled:
			return nil
		case <-ctx.Done():
			w.logStillInflight()
			return nil
		case <-sweepTicker.C:
			w.sweepStalled()
			maybeArmQuietTimer()
		}
	}
}

func (w *Waiter) sweepStalled() {
	cutoff := timeNow().Add(-stallAge)
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, entry := range w.inflight {
		if entry.startedAt.Before(cutoff) {
			delete(w.inflight, id)
			for frameID, reqID := range w.docByFrame {
				if reqID == id {
					delete(w.docByFrame, frameID)
				}
			}
		}
	}
}

func (w *Waiter) logStillInflight() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.inflight) == 0 {
		return
	}
	urls := make([]string, 0, len(w.inflight))
	for _, e := range w.inflight {
		urls = append(urls, e.url)
	}
	w.log.Warn().Strs("urls", urls).Msg("DOM settle timed out with requests still inflight")
}

func requestStringField(params map[string]any, objKey, field string) (string, bool) {
	obj, ok := params[objKey].(map[string]any)
	if !ok {
		return "", false
	}
	s, ok := obj[field].(string)
	return s, ok
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// timeNow exists so the stall sweep's age comparisons go through one
// call site; production code just wraps time.Now.
func timeNow() time.Time { return time.Now() }
