package cache_test

import (
	"testing"
	"time"

	"github.com/vaibhav071104/vaultguard/internal/infra/cache"
)

func TestCache_SetGet(t *testing.T) {
	c := cache.New[string](time.Minute)

	c.Set("k", "v")
	got, ok := c.Get("k")
	if !ok || got != "v" {
		t.Errorf("expected hit with 'v', got %q ok=%v", got, ok)
	}
}

func TestCache_Miss(t *testing.T) {
	c := cache.New[int](time.Minute)

	if _, ok := c.Get("absent"); ok {
		t.Error("expected miss for absent key")
	}
}

func TestCache_Expiry(t *testing.T) {
	c := cache.New[string](20 * time.Millisecond)

	c.Set("k", "v")
	time.Sleep(40 * time.Millisecond)

	if _, ok := c.Get("k"); ok {
		t.Error("expected expired entry to miss")
	}
}

func TestCache_Delete(t *testing.T) {
	c := cache.New[string](time.Minute)

	c.Set("k", "v")
	c.Delete("k")

	if _, ok := c.Get("k"); ok {
		t.Error("expected miss after delete")
	}
}
