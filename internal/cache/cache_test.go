package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

type image struct {
	Filename string
	PNG      []byte
}

func TestCache_GetSet(t *testing.T) {
	c := New[*image](5*time.Second, 100)

	key := MakeKey("session1", "3", "第一籤")
	c.Set(key, &image{Filename: "媽祖靈籤_第一籤.png", PNG: []byte{0x89, 'P', 'N', 'G'}})

	got, ok := c.Get(key)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.Filename != "媽祖靈籤_第一籤.png" {
		t.Errorf("unexpected filename: %s", got.Filename)
	}
	if string(got.PNG[1:]) != "PNG" {
		t.Errorf("unexpected body: %v", got.PNG)
	}
}

func TestCache_Miss(t *testing.T) {
	c := New[string](5*time.Second, 100)

	got, ok := c.Get("nonexistent")
	if ok || got != "" {
		t.Error("expected zero-value miss for nonexistent key")
	}
}

func TestCache_TTLExpiration(t *testing.T) {
	c := New[string](time.Minute, 100)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("key", "data")
	if _, ok := c.Get("key"); !ok {
		t.Fatal("expected cache hit before expiry")
	}

	now = now.Add(61 * time.Second)
	if _, ok := c.Get("key"); ok {
		t.Error("expected cache miss after TTL expiration")
	}
	if c.Len() != 0 {
		t.Error("expected expired entry to be removed")
	}
}

func TestCache_InvalidatePrefix(t *testing.T) {
	c := New[string](5*time.Second, 100)

	c.Set(MakeKey("s1", "1", "a"), "x")
	c.Set(MakeKey("s1", "2", "b"), "x")
	c.Set(MakeKey("s10", "1", "a"), "x")
	c.Set(MakeKey("s2", "1", "a"), "x")

	if n := c.InvalidatePrefix(MakeKey("s1") + ":"); n != 2 {
		t.Errorf("expected 2 invalidated, got %d", n)
	}
	if _, ok := c.Get(MakeKey("s1", "1", "a")); ok {
		t.Error("expected s1 entries to be invalidated")
	}
	if _, ok := c.Get(MakeKey("s10", "1", "a")); !ok {
		t.Error("s10 must not match the s1: prefix")
	}
	if _, ok := c.Get(MakeKey("s2", "1", "a")); !ok {
		t.Error("expected s2 entry to remain")
	}
}

func TestCache_EmptyPrefixIsIgnored(t *testing.T) {
	c := New[string](5*time.Second, 100)
	c.Set("a", "x")
	c.Set("b", "x")

	if n := c.InvalidatePrefix(""); n != 0 {
		t.Errorf("empty prefix invalidated %d entries", n)
	}
	if c.Len() != 2 {
		t.Errorf("expected 2 entries, got %d", c.Len())
	}
}

func TestCache_MaxEntries(t *testing.T) {
	c := New[int](5*time.Second, 3)

	c.Set("key1", 1)
	c.Set("key2", 2)
	c.Set("key3", 3)

	for _, k := range []string{"key1", "key2", "key3"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("expected %s to be in cache", k)
		}
	}

	// Adding a 4th should evict the oldest (key1)
	c.Set("key4", 4)

	if _, ok := c.Get("key1"); ok {
		t.Error("expected key1 to be evicted (oldest entry)")
	}
	if _, ok := c.Get("key4"); !ok {
		t.Error("expected key4 to be in cache")
	}
}

func TestCache_OverwriteExistingKey(t *testing.T) {
	c := New[string](5*time.Second, 2)

	c.Set("key", "v1")
	c.Set("other", "o")
	c.Set("key", "v2")

	got, ok := c.Get("key")
	if !ok || got != "v2" {
		t.Errorf("expected updated value v2, got %q", got)
	}
	if _, ok := c.Get("other"); !ok {
		t.Error("overwrite should not evict")
	}
}

func TestCache_Delete(t *testing.T) {
	c := New[string](5*time.Second, 10)
	c.Set("key", "v")
	c.Delete("key")
	if _, ok := c.Get("key"); ok {
		t.Error("expected key to be deleted")
	}
}

func TestMakeKey(t *testing.T) {
	if got := MakeKey("sid", "4", "第二籤"); got != "sid:4:第二籤" {
		t.Errorf("unexpected key %q", got)
	}
}

func TestCache_ThreadSafety(t *testing.T) {
	const maxEntries = 50
	c := New[int](5*time.Second, maxEntries)

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(3)
		go func(n int) {
			defer wg.Done()
			c.Set(MakeKey(fmt.Sprintf("s%d", n%10), fmt.Sprint(n)), n)
		}(i)
		go func(n int) {
			defer wg.Done()
			c.Get(MakeKey(fmt.Sprintf("s%d", n%10), fmt.Sprint(n)))
		}(i)
		go func(n int) {
			defer wg.Done()
			if n%20 == 0 {
				c.InvalidatePrefix(fmt.Sprintf("s%d:", n%10))
			}
		}(i)
	}
	wg.Wait()

	if c.Len() > maxEntries {
		t.Errorf("cache exceeded maxEntries: got %d, max %d", c.Len(), maxEntries)
	}
}
