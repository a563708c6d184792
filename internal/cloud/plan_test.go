package cloud

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakePlanFetcher struct {
	calls atomic.Int32
	err   error
	plan  Plan
}

func (f *fakePlanFetcher) FetchPlan(ctx context.Context) (*Plan, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	plan := f.plan
	return &plan, nil
}

func TestCachedPlan_ServesFromCacheWithinTTL(t *testing.T) {
	fetcher := &fakePlanFetcher{plan: Plan{Upgraded: true}}
	cache := NewCachedPlan(fetcher, testLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		plan, err := cache.Get(ctx)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if !plan.Upgraded {
			t.Fatal("Upgraded = false, want true")
		}
	}
	if fetcher.calls.Load() != 1 {
		t.Errorf("fetcher calls = %d, want 1", fetcher.calls.Load())
	}
}

func TestCachedPlan_RefetchesAfterTTL(t *testing.T) {
	fetcher := &fakePlanFetcher{plan: Plan{Upgraded: true}}
	cache := &CachedPlan{fetcher: fetcher, ttl: time.Millisecond, logger: testLogger()}
	ctx := context.Background()

	if _, err := cache.Get(ctx); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := cache.Get(ctx); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if fetcher.calls.Load() != 2 {
		t.Errorf("fetcher calls = %d, want 2", fetcher.calls.Load())
	}
}

func TestCachedPlan_StaleFallbackOnError(t *testing.T) {
	fetcher := &fakePlanFetcher{plan: Plan{Upgraded: true}}
	cache := &CachedPlan{fetcher: fetcher, ttl: time.Millisecond, logger: testLogger()}
	ctx := context.Background()

	if _, err := cache.Get(ctx); err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	time.Sleep(5 * time.Millisecond)
	fetcher.err = errors.New("backend unreachable")

	plan, err := cache.Get(ctx)
	if err != nil {
		t.Fatalf("Get() with stale cache error = %v, want stale value", err)
	}
	if !plan.Upgraded {
		t.Error("stale plan lost the upgraded flag")
	}
}

func TestCachedPlan_ErrorWithoutCacheFails(t *testing.T) {
	fetcher := &fakePlanFetcher{err: errors.New("backend unreachable")}
	cache := NewCachedPlan(fetcher, testLogger())

	if _, err := cache.Get(context.Background()); err == nil {
		t.Fatal("Get() without cache did not surface fetch error")
	}
}

func TestCachedPlan_InvalidateForcesRefetch(t *testing.T) {
	fetcher := &fakePlanFetcher{plan: Plan{Upgraded: true}}
	cache := NewCachedPlan(fetcher, testLogger())
	ctx := context.Background()

	if _, err := cache.Get(ctx); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	cache.Invalidate()
	if _, err := cache.Get(ctx); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if fetcher.calls.Load() != 2 {
		t.Errorf("fetcher calls = %d, want 2", fetcher.calls.Load())
	}
}
