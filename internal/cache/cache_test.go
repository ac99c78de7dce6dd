package cache

import (
	"context"
	"testing"
	"time"
)

func TestCache_SetGet(t *testing.T) {
	c := New[string, int](time.Minute)
	defer c.Close()

	ctx := context.Background()
	c.Set(ctx, "a", 1, time.Minute)

	got, ok := c.Get(ctx, "a")
	if !ok {
		t.Fatal("Get() miss, want hit")
	}
	if got != 1 {
		t.Errorf("Get() = %d, want 1", got)
	}

	if _, ok := c.Get(ctx, "missing"); ok {
		t.Error("Get(missing) hit, want miss")
	}
}

func TestCache_Expiry(t *testing.T) {
	c := New[uint64, string](time.Minute)
	defer c.Close()

	ctx := context.Background()
	c.Set(ctx, 100, "price", 10*time.Millisecond)

	if _, ok := c.Get(ctx, 100); !ok {
		t.Fatal("Get() miss before expiry")
	}

	time.Sleep(20 * time.Millisecond)

	if _, ok := c.Get(ctx, 100); ok {
		t.Error("Get() hit after expiry")
	}
}

func TestCache_Delete(t *testing.T) {
	c := New[string, int](time.Minute)
	defer c.Close()

	ctx := context.Background()
	c.Set(ctx, "a", 1, time.Minute)
	c.Delete(ctx, "a")

	if _, ok := c.Get(ctx, "a"); ok {
		t.Error("Get() hit after delete")
	}
}

func TestCache_JanitorCollectsExpired(t *testing.T) {
	c := New[int, int](10 * time.Millisecond)
	defer c.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		c.Set(ctx, i, i, 5*time.Millisecond)
	}

	time.Sleep(50 * time.Millisecond)

	if got := c.Len(); got != 0 {
		t.Errorf("Len() = %d after janitor, want 0", got)
	}
}

func TestCache_CloseIdempotent(t *testing.T) {
	c := New[string, int](time.Minute)
	c.Close()
	c.Close() // must not panic
}
