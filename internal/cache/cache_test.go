package cache

import (
	"path/filepath"
	"testing"
)

func TestPutGetRoundTrip(t *testing.T) {
	c, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	key := Key([]byte("prompt"), []byte("page-state"))
	if err := c.Put(key, []byte("cached response")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok := c.Get(key)
	if !ok {
		t.Fatal("expected a cache hit")
	}
	if string(got) != "cached response" {
		t.Fatalf("got %q", got)
	}
}

func TestGetMiss(t *testing.T) {
	c, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := c.Get("never-written"); ok {
		t.Fatal("expected a miss for an unwritten key")
	}
}

func TestKeyIsDeterministic(t *testing.T) {
	a := Key([]byte("x"), []byte("y"))
	b := Key([]byte("x"), []byte("y"))
	if a != b {
		t.Fatal("same input parts should yield the same key")
	}
	c := Key([]byte("x"), []byte("z"))
	if a == c {
		t.Fatal("different input parts should yield different keys")
	}
}

func TestNewCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "cache")
	if _, err := New(dir); err != nil {
		t.Fatalf("New should create missing parent directories: %v", err)
	}
}
