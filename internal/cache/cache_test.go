package cache

import (
	"testing"
	"time"
)

func TestGetSetDelete(t *testing.T) {
	c := NewLRUCache[string](10, time.Minute)

	if _, found := c.Get("missing"); found {
		t.Fatal("expected miss on empty cache")
	}

	c.Set("a", "one")
	v, found := c.Get("a")
	if !found || v != "one" {
		t.Fatalf("got %q found=%v", v, found)
	}

	c.Set("a", "two")
	if v, _ := c.Get("a"); v != "two" {
		t.Fatalf("overwrite failed, got %q", v)
	}

	c.Delete("a")
	if _, found := c.Get("a"); found {
		t.Fatal("expected miss after delete")
	}
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)

	// Touch a so b becomes the eviction candidate.
	c.Get("a")
	c.Set("c", 3)

	if _, found := c.Get("b"); found {
		t.Fatal("expected b to be evicted")
	}
	if _, found := c.Get("a"); !found {
		t.Fatal("expected a to survive")
	}
	if c.Size() != 2 {
		t.Fatalf("size = %d", c.Size())
	}
}

func TestTTLExpiry(t *testing.T) {
	c := NewLRUCache[int](10, 10*time.Millisecond)
	c.Set("a", 1)
	c.Set("b", 2)

	time.Sleep(20 * time.Millisecond)

	if _, found := c.Get("a"); found {
		t.Fatal("expected expired entry to miss")
	}
	if removed := c.CleanExpired(); removed != 1 {
		t.Fatalf("CleanExpired removed %d, want 1 (a was dropped on read)", removed)
	}
	if c.Size() != 0 {
		t.Fatalf("size = %d after cleanup", c.Size())
	}
}
