package services

import (
	"context"
	"testing"
)

func TestLRUResolveCache(t *testing.T) {
	c, err := NewLRUResolveCache(2)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	ctx := context.Background()

	if _, ok, _ := c.Get(ctx, "gov_registry:g-1"); ok {
		t.Fatal("empty cache reported a hit")
	}

	if err := c.Set(ctx, "gov_registry:g-1", "complex-a"); err != nil {
		t.Fatal(err)
	}
	id, ok, err := c.Get(ctx, "gov_registry:g-1")
	if err != nil || !ok || id != "complex-a" {
		t.Fatalf("Get = (%q, %v, %v), want hit on complex-a", id, ok, err)
	}

	// Capacity 2: the oldest entry is evicted, not an error.
	_ = c.Set(ctx, "gov_registry:g-2", "complex-b")
	_ = c.Set(ctx, "gov_registry:g-3", "complex-c")
	if _, ok, _ := c.Get(ctx, "gov_registry:g-1"); ok {
		t.Fatal("evicted entry still resolvable")
	}
}
