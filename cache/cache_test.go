package cache

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type payload struct {
	Universities []string `json:"universities"`
	Total        int      `json:"total"`
}

func testCache(t *testing.T, ttl time.Duration) *Cache {
	t.Helper()
	return New(t.TempDir(), ttl, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestKey_OrderAndCaseInsensitive(t *testing.T) {
	// WHAT: Equivalent queries produce the same key; different queries do
	// not.
	// WHY: The key is the cache identity; order or casing noise would
	// defeat reuse, and collisions would serve wrong answers.
	a := Key([]string{"France", "Japan"}, []string{"CS2040", "MA1001"}, "Engineering")
	b := Key([]string{"japan", "FRANCE"}, []string{" ma1001", "cs2040"}, "engineering")
	if a != b {
		t.Fatalf("equivalent queries hashed differently: %s vs %s", a, b)
	}

	c := Key([]string{"France"}, []string{"CS2040", "MA1001"}, "Engineering")
	if a == c {
		t.Fatal("different queries share a key")
	}
}

func TestCache_PutGetRoundTrip(t *testing.T) {
	// WHAT: A stored value reads back intact before its TTL elapses.
	c := testCache(t, time.Hour)
	key := Key([]string{"France"}, []string{"CS2040"}, "")

	want := payload{Universities: []string{"Sorbonne", "Lyon"}, Total: 2}
	if err := c.Put(key, want); err != nil {
		t.Fatalf("put: %v", err)
	}

	var got payload
	if !c.Get(key, &got) {
		t.Fatal("expected a cache hit")
	}
	if got.Total != 2 || len(got.Universities) != 2 {
		t.Fatalf("payload mangled: %+v", got)
	}
}

func TestCache_MissOnAbsent(t *testing.T) {
	c := testCache(t, time.Hour)
	var got payload
	if c.Get("nope", &got) {
		t.Fatal("expected a miss for an absent key")
	}
}

func TestCache_ExpiredIsMiss(t *testing.T) {
	// WHAT: Entries older than the TTL read as misses.
	// WHY: Stale vacancy data is worse than a slow fresh answer.
	c := testCache(t, time.Millisecond)
	key := Key(nil, []string{"CS2040"}, "")
	if err := c.Put(key, payload{Total: 1}); err != nil {
		t.Fatalf("put: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	var got payload
	if c.Get(key, &got) {
		t.Fatal("expected an expired entry to miss")
	}
}

func TestCache_CorruptAndMismatchedAreMisses(t *testing.T) {
	// WHAT: Garbage files and old envelope versions never error, they miss.
	dir := t.TempDir()
	c := New(dir, time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))

	os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{oops"), 0o644)
	stale, _ := json.Marshal(map[string]any{"version": 99, "data": map[string]int{"total": 1}})
	os.WriteFile(filepath.Join(dir, "old.json"), stale, 0o644)

	var got payload
	if c.Get("bad", &got) || c.Get("old", &got) {
		t.Fatal("corrupt or versioned-out entries should miss")
	}
}

func TestCache_InvalidateAndClear(t *testing.T) {
	c := testCache(t, time.Hour)
	k1 := Key(nil, []string{"CS2040"}, "")
	k2 := Key(nil, []string{"MA1001"}, "")
	c.Put(k1, payload{Total: 1})
	c.Put(k2, payload{Total: 2})

	if err := c.Invalidate(k1); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	var got payload
	if c.Get(k1, &got) {
		t.Fatal("invalidated entry still readable")
	}
	if !c.Get(k2, &got) {
		t.Fatal("unrelated entry lost")
	}

	n, err := c.Clear()
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if n != 1 {
		t.Fatalf("cleared %d entries, want 1", n)
	}
	if err := c.Invalidate("never-existed"); err != nil {
		t.Fatalf("invalidate missing: %v", err)
	}
}
