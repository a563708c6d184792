package cloud

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const planCacheTTL = 5 * time.Minute

// Plan is the billing entitlement the sharing backend reports for the
// signed-in account.
type Plan struct {
	Upgraded  bool      `json:"upgraded"`
	CheckedAt time.Time `json:"-"`
}

// PlanFetcher is the one backend capability the cache needs.
type PlanFetcher interface {
	FetchPlan(ctx context.Context) (*Plan, error)
}

// CachedPlan caches the entitlement flag with a TTL so repeated gate checks
// do not hit the backend. A failed refresh falls back to the stale value
// when one exists.
type CachedPlan struct {
	fetcher PlanFetcher
	ttl     time.Duration
	logger  *slog.Logger

	mu     sync.RWMutex
	cached *Plan
}

func NewCachedPlan(fetcher PlanFetcher, logger *slog.Logger) *CachedPlan {
	return &CachedPlan{
		fetcher: fetcher,
		ttl:     planCacheTTL,
		logger:  logger,
	}
}

// Get returns the cached plan if fresh, otherwise refetches.
func (p *CachedPlan) Get(ctx context.Context) (*Plan, error) {
	p.mu.RLock()
	if p.cached != nil && time.Since(p.cached.CheckedAt) < p.ttl {
		plan := p.cached
		p.mu.RUnlock()
		return plan, nil
	}
	p.mu.RUnlock()

	return p.Refresh(ctx)
}

// Refresh forces a fetch regardless of cache freshness.
func (p *CachedPlan) Refresh(ctx context.Context) (*Plan, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	plan, err := p.fetcher.FetchPlan(ctx)
	if err != nil {
		p.logger.Warn("plan check failed", "error", err)
		if p.cached != nil {
			p.logger.Info("using stale plan entitlement")
			return p.cached, nil
		}
		return nil, err
	}

	plan.CheckedAt = time.Now()
	p.cached = plan
	return plan, nil
}

// Invalidate clears the cached plan, e.g. after sign-in or sign-out.
func (p *CachedPlan) Invalidate() {
	p.mu.Lock()
	p.cached = nil
	p.mu.Unlock()
}
