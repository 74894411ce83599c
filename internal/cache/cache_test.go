package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMemory_TTLExpiry(t *testing.T) {
	c := NewMemory()
	now := time.Now()
	c.now = func() time.Time { return now }

	ctx := context.Background()
	c.Set(ctx, "k", []byte("v"), 60*time.Second)

	if v, ok := c.Get(ctx, "k"); !ok || string(v) != "v" {
		t.Fatalf("expected hit with v, got %q ok=%v", v, ok)
	}

	now = now.Add(59 * time.Second)
	if _, ok := c.Get(ctx, "k"); !ok {
		t.Fatalf("expected hit within ttl")
	}

	now = now.Add(2 * time.Second)
	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatalf("expected miss after ttl elapsed")
	}
}

func TestMemory_NoTTLNeverExpires(t *testing.T) {
	c := NewMemory()
	now := time.Now()
	c.now = func() time.Time { return now }

	ctx := context.Background()
	c.Set(ctx, "k", []byte("v"), 0)

	now = now.Add(24 * time.Hour)
	if _, ok := c.Get(ctx, "k"); !ok {
		t.Fatalf("expected entry without ttl to persist")
	}
}

func TestMemory_KeysGlob(t *testing.T) {
	c := NewMemory()
	now := time.Now()
	c.now = func() time.Time { return now }

	ctx := context.Background()
	c.Set(ctx, "field:app1:addr1:score", []byte("1"), time.Minute)
	c.Set(ctx, "field:app1:addr2:score", []byte("2"), time.Minute)
	c.Set(ctx, "core:addr1", []byte("3"), time.Minute)
	c.Set(ctx, "field:app2:addr1:rep", []byte("4"), time.Second)

	now = now.Add(30 * time.Second) // expires the app2 entry only

	keys := c.Keys(ctx, "field:app1:*")
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %v", keys)
	}
	if keys := c.Keys(ctx, "field:*"); len(keys) != 2 {
		t.Fatalf("expected expired key excluded, got %v", keys)
	}
}

func TestMemory_Delete(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()
	c.Set(ctx, "k", []byte("v"), time.Minute)
	c.Delete(ctx, "k")
	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatalf("expected miss after delete")
	}
}

func TestLoader_SingleFlight(t *testing.T) {
	c := NewMemory()
	loader := NewLoader(c)
	ctx := context.Background()

	var calls int64
	release := make(chan struct{})
	fn := func(ctx context.Context) ([]byte, error) {
		atomic.AddInt64(&calls, 1)
		<-release
		return []byte("computed"), nil
	}

	const workers = 8
	var wg sync.WaitGroup
	results := make([][]byte, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := loader.GetOrCompute(ctx, "k", time.Minute, fn)
			if err != nil {
				t.Errorf("worker %d: %v", i, err)
				return
			}
			results[i] = v
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Fatalf("expected 1 upstream call, got %d", got)
	}
	for i, v := range results {
		if string(v) != "computed" {
			t.Fatalf("worker %d got %q", i, v)
		}
	}

	// Subsequent call is a pure cache hit.
	if v, err := loader.GetOrCompute(ctx, "k", time.Minute, fn); err != nil || string(v) != "computed" {
		t.Fatalf("cache hit failed: %q %v", v, err)
	}
	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Fatalf("expected no further upstream calls, got %d", got)
	}
}

func TestLoader_ErrorNotCached(t *testing.T) {
	loader := NewLoader(NewMemory())
	ctx := context.Background()

	wantErr := errors.New("upstream down")
	if _, err := loader.GetOrCompute(ctx, "k", time.Minute, func(ctx context.Context) ([]byte, error) {
		return nil, wantErr
	}); !errors.Is(err, wantErr) {
		t.Fatalf("expected upstream error, got %v", err)
	}

	v, err := loader.GetOrCompute(ctx, "k", time.Minute, func(ctx context.Context) ([]byte, error) {
		return []byte("ok"), nil
	})
	if err != nil || string(v) != "ok" {
		t.Fatalf("expected recompute after error, got %q %v", v, err)
	}
}
