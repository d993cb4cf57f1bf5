package rendercache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPutThenGetRoundTrips(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, 0) // never expire

	content := json.RawMessage(`{"name":"x"}`)
	if err := c.Put("spore1", "rendered", content, time.Now()); err != nil {
		t.Fatalf("Put: %v", err)
	}

	entry, err := c.Get("spore1", time.Now())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if entry == nil {
		t.Fatal("expected a cache hit")
	}
	if entry.RenderedOutput != "rendered" {
		t.Errorf("got %q, want \"rendered\"", entry.RenderedOutput)
	}
	if string(entry.DobContent) != string(content) {
		t.Errorf("got %s, want %s", entry.DobContent, content)
	}
}

func TestPutWritesDobExtensionedFile(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, 0)
	if err := c.Put("aabbcc", "rendered", json.RawMessage(`{}`), time.Now()); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "aabbcc.dob")); err != nil {
		t.Errorf("expected cache entry at <dir>/<spore_id>.dob, got: %v", err)
	}
}

func TestGetMissingIsNilNil(t *testing.T) {
	c := New(t.TempDir(), 0)
	entry, err := c.Get("nonexistent", time.Now())
	if err != nil || entry != nil {
		t.Errorf("got (%v, %v), want (nil, nil)", entry, err)
	}
}

func TestGetExpiredIsMiss(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, 1) // 1 second TTL
	now := time.Unix(1_700_000_000, 0)

	if err := c.Put("spore1", "rendered", json.RawMessage(`{}`), now); err != nil {
		t.Fatalf("Put: %v", err)
	}

	later := now.Add(10 * time.Second)
	entry, err := c.Get("spore1", later)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if entry != nil {
		t.Error("expired entry should be a miss")
	}
}

func TestGetMalformedEntryIsMissNotError(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, 0)
	if err := os.WriteFile(filepath.Join(dir, "bad.dob"), []byte("only one line\n"), 0o644); err != nil {
		t.Fatalf("seed malformed file: %v", err)
	}

	entry, err := c.Get("bad", time.Now())
	if err != nil {
		t.Errorf("malformed entry should not be an error, got %v", err)
	}
	if entry != nil {
		t.Error("malformed entry should be a cache miss")
	}
}

func TestSweepRemovesOnlyExpiredEntries(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, 1)
	now := time.Unix(1_700_000_000, 0)

	if err := c.Put("expired", "x", json.RawMessage(`{}`), now); err != nil {
		t.Fatalf("Put expired: %v", err)
	}

	fresh := New(dir, 1_000_000)
	if err := fresh.Put("fresh", "y", json.RawMessage(`{}`), now); err != nil {
		t.Fatalf("Put fresh: %v", err)
	}

	removed, err := c.Sweep(now.Add(10 * time.Second))
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, err := os.Stat(filepath.Join(dir, "expired.dob")); !os.IsNotExist(err) {
		t.Error("expired entry file should have been removed")
	}
	if _, err := os.Stat(filepath.Join(dir, "fresh.dob")); err != nil {
		t.Error("fresh entry file should still exist")
	}
}
