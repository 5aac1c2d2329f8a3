package settle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeSource is a scripted EventSource: Send always succeeds, and
// tests drive handlers directly via Emit instead of real CDP traffic.
type fakeSource struct {
	mu       sync.Mutex
	handlers map[string][]func(map[string]any)
}

func newFakeSource() *fakeSource {
	return &fakeSource{handlers: map[string][]func(map[string]any){}}
}

func (f *fakeSource) Send(method string, params map[string]any) (map[string]any, error) {
	return map[string]any{}, nil
}

func (f *fakeSource) On(method string, handler func(params map[string]any)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[method] = append(f.handlers[method], handler)
	idx := len(f.handlers[method]) - 1
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.handlers[method][idx] = nil
	}
}

func (f *fakeSource) Emit(method string, params map[string]any) {
	f.mu.Lock()
	hs := append([]func(map[string]any){}, f.handlers[method]...)
	f.mu.Unlock()
	for _, h := range hs {
		if h != nil {
			h(params)
		}
	}
}

func TestWaiterSettlesImmediatelyWithNoTraffic(t *testing.T) {
	w := New(zerolog.Nop(), WithQuietWindow(10*time.Millisecond))
	src := newFakeSource()

	start := time.Now()
	err := w.Wait(context.Background(), src, 2*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("expected a fast settle, took %v", elapsed)
	}
}

func TestWaiterWaitsForInflightRequestToFinish(t *testing.T) {
	// The quiet window is longer than the 20ms before the request
	// starts, so the timer armed at the start of Wait cannot fire first.
	w := New(zerolog.Nop(), WithQuietWindow(100*time.Millisecond))
	src := newFakeSource()

	done := make(chan error, 1)
	go func() {
		done <- w.Wait(context.Background(), src, 2*time.Second)
	}()

	time.Sleep(20 * time.Millisecond)
	src.Emit("Network.requestWillBeSent", map[string]any{
		"requestId": "req-1",
		"request":   map[string]any{"url": "https://example.com/a"},
		"type":      "XHR",
	})

	select {
	case <-done:
		t.Fatal("waiter settled while a request was still inflight")
	case <-time.After(50 * time.Millisecond):
	}

	src.Emit("Network.loadingFinished", map[string]any{"requestId": "req-1"})

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter never settled after request finished")
	}
}

func TestWaiterTimesOutWithStuckRequest(t *testing.T) {
	w := New(zerolog.Nop(), WithQuietWindow(10*time.Millisecond))
	src := newFakeSource()

	done := make(chan error, 1)
	go func() {
		done <- w.Wait(context.Background(), src, 80*time.Millisecond)
	}()

	src.Emit("Network.requestWillBeSent", map[string]any{
		"requestId": "stuck",
		"request":   map[string]any{"url": "https://example.com/stuck"},
		"type":      "XHR",
	})

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("timeout path should resolve without an error, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter never returned after its outer timeout")
	}
}
