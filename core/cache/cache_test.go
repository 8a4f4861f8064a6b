package cache

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type testKey struct {
	ID    int
	Class string
}

func (k testKey) String() string { return fmt.Sprintf("%d/%s", k.ID, k.Class) }

func put(t *testing.T, c *Cache[testKey, int], k testKey, v int) {
	t.Helper()
	if _, err := c.GetOrResolve(k, func() (int, error) { return v, nil }); err != nil {
		t.Fatalf("GetOrResolve(%v): %v", k, err)
	}
}

func TestCache_BasicOperations(t *testing.T) {
	c, err := New[testKey, int](Config{MaxSize: 3})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	put(t, c, testKey{1, "a"}, 1)
	put(t, c, testKey{2, "a"}, 2)

	if v, ok := c.Get(testKey{1, "a"}); !ok || v != 1 {
		t.Errorf("Get(1/a) = %d, %v; want 1, true", v, ok)
	}
	if _, ok := c.Get(testKey{1, "b"}); ok {
		t.Error("Get(1/b) should return false")
	}
	if n := c.Len(); n != 2 {
		t.Errorf("Len() = %d; want 2", n)
	}
}

func TestCache_Eviction(t *testing.T) {
	c, err := New[testKey, int](Config{MaxSize: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	put(t, c, testKey{1, ""}, 1)
	put(t, c, testKey{2, ""}, 2)
	c.Get(testKey{1, ""})        // 1 is now most recently used
	put(t, c, testKey{3, ""}, 3) // evicts 2

	if _, ok := c.Get(testKey{2, ""}); ok {
		t.Error("Get(2) should return false after eviction")
	}
	if _, ok := c.Get(testKey{1, ""}); !ok {
		t.Error("Get(1) should survive eviction")
	}
	if s := c.Stats(); s.Evictions != 1 || s.Size != 2 || s.MaxSize != 2 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestCache_UnlimitedSize(t *testing.T) {
	c, err := New[testKey, int](Config{MaxSize: 0})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < 1000; i++ {
		put(t, c, testKey{i, ""}, i)
	}
	if n := c.Len(); n != 1000 {
		t.Errorf("Len() = %d; want 1000", n)
	}
	if s := c.Stats(); s.Evictions != 0 {
		t.Errorf("unbounded cache evicted %d entries", s.Evictions)
	}
}

func TestCache_NegativeMaxSize(t *testing.T) {
	c, err := New[testKey, int](Config{MaxSize: -5})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s := c.Stats(); s.MaxSize != 0 {
		t.Errorf("MaxSize = %d; want 0", s.MaxSize)
	}
}

func TestCache_GetOrResolve(t *testing.T) {
	c, _ := New[testKey, string](DefaultConfig())
	calls := 0
	resolve := func() (string, error) {
		calls++
		return "mesh", nil
	}

	for i := 0; i < 3; i++ {
		v, err := c.GetOrResolve(testKey{7, "1"}, resolve)
		if err != nil || v != "mesh" {
			t.Fatalf("GetOrResolve = %q, %v", v, err)
		}
	}
	if calls != 1 {
		t.Errorf("resolve called %d times; want 1", calls)
	}
	if s := c.Stats(); s.Misses != 1 || s.Hits != 2 {
		t.Errorf("Stats() = %+v; want 1 miss, 2 hits", s)
	}
}

func TestCache_GetOrResolveErrorNotCached(t *testing.T) {
	c, _ := New[testKey, int](DefaultConfig())
	boom := errors.New("boom")
	if _, err := c.GetOrResolve(testKey{1, ""}, func() (int, error) { return 0, boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if c.Len() != 0 {
		t.Error("failed resolution was cached")
	}
	v, err := c.GetOrResolve(testKey{1, ""}, func() (int, error) { return 5, nil })
	if err != nil || v != 5 {
		t.Errorf("retry = %d, %v", v, err)
	}
}

func TestCache_SingleResolutionUnderConcurrency(t *testing.T) {
	c, _ := New[testKey, int](DefaultConfig())
	var calls atomic.Int32
	start := make(chan struct{})
	release := make(chan struct{})

	var wg sync.WaitGroup
	results := make([]int, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			v, err := c.GetOrResolve(testKey{42, "x"}, func() (int, error) {
				calls.Add(1)
				<-release
				return 99, nil
			})
			if err != nil {
				t.Errorf("GetOrResolve: %v", err)
			}
			results[i] = v
		}(i)
	}
	close(start)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Errorf("resolve ran %d times; want 1", n)
	}
	for i, v := range results {
		if v != 99 {
			t.Errorf("caller %d got %d", i, v)
		}
	}
}

func TestStats_HitRate(t *testing.T) {
	if r := (Stats{}).HitRate(); r != 0 {
		t.Errorf("empty HitRate = %v", r)
	}
	if r := (Stats{Hits: 3, Misses: 1}).HitRate(); r != 0.75 {
		t.Errorf("HitRate = %v; want 0.75", r)
	}
}
