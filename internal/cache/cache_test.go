package cache

import (
	"sync"
	"testing"
	"time"
)

func TestGetSet(t *testing.T) {
	c := New[int64, string](time.Minute)
	defer c.Close()

	if _, ok := c.Get(1); ok {
		t.Fatal("expected miss on empty cache")
	}
	c.Set(1, "sad")
	v, ok := c.Get(1)
	if !ok || v != "sad" {
		t.Fatalf("Get(1) = %q, %v", v, ok)
	}

	st := c.Stats()
	if st.Hits != 1 || st.Misses != 1 || st.Keys != 1 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestExpiry(t *testing.T) {
	c := New[string, int](time.Minute)
	defer c.Close()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("k", 7)
	now = now.Add(30 * time.Second)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("entry expired too early")
	}
	now = now.Add(31 * time.Second)
	if _, ok := c.Get("k"); ok {
		t.Fatal("entry should have expired")
	}
	if st := c.Stats(); st.Evictions != 1 || st.Keys != 0 {
		t.Errorf("unexpected stats after expiry %+v", st)
	}
}

func TestCleanupSweepsExpired(t *testing.T) {
	c := New[string, int](time.Hour)
	defer c.Close()

	now := time.Now()
	c.now = func() time.Time { return now }
	c.Set("a", 1)
	c.Set("b", 2)
	now = now.Add(2 * time.Hour)
	c.cleanup()

	if st := c.Stats(); st.Keys != 0 || st.Evictions != 2 {
		t.Errorf("unexpected stats after cleanup %+v", st)
	}
}

func TestDisabled(t *testing.T) {
	c := New[int, int](0)
	defer c.Close()

	c.Set(1, 1)
	if _, ok := c.Get(1); ok {
		t.Error("disabled cache must always miss")
	}
	if c.Enabled() {
		t.Error("expected disabled cache")
	}
}

func TestDeleteAndClear(t *testing.T) {
	c := New[int, int](time.Minute)
	defer c.Close()

	c.Set(1, 1)
	c.Set(2, 2)
	c.Delete(1)
	if _, ok := c.Get(1); ok {
		t.Error("deleted key still present")
	}
	c.Clear()
	if _, ok := c.Get(2); ok {
		t.Error("cleared key still present")
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := New[int, int](time.Minute)
	defer c.Close()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Set(j%10, n)
				c.Get(j % 10)
			}
		}(i)
	}
	wg.Wait()
	if st := c.Stats(); st.Keys != 10 {
		t.Errorf("expected 10 keys, got %d", st.Keys)
	}
}
