package analytics

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"tenderlens/internal/cache"
	"tenderlens/internal/timewindow"
)

// ViewCache memoizes encoded views. *cache.Tiered satisfies it.
type ViewCache interface {
	Load(ctx context.Context, key string, dst any) bool
	Store(ctx context.Context, key string, value any, ttl time.Duration)
	InvalidatePrefix(ctx context.Context, prefix string) int
}

// Dashboard resolves the request window, serves each view from the cache when
// possible and computes the rest concurrently. A nil cache disables caching.
type Dashboard struct {
	engine *Engine
	cache  ViewCache
	ttl    time.Duration
	loc    *time.Location
	now    func() time.Time
	log    logrus.FieldLogger
}

type DashboardOption func(*Dashboard)

func WithCacheTTL(ttl time.Duration) DashboardOption {
	return func(d *Dashboard) {
		if ttl > 0 {
			d.ttl = ttl
		}
	}
}

// WithLocation sets the reporting timezone for windows and calendar buckets.
func WithLocation(loc *time.Location) DashboardOption {
	return func(d *Dashboard) { d.loc = timewindow.EnsureLocation(loc) }
}

func WithNow(now func() time.Time) DashboardOption {
	return func(d *Dashboard) { d.now = now }
}

func WithDashboardLogger(log logrus.FieldLogger) DashboardOption {
	return func(d *Dashboard) {
		if log != nil {
			d.log = log
		}
	}
}

func NewDashboard(engine *Engine, viewCache ViewCache, opts ...DashboardOption) *Dashboard {
	d := &Dashboard{
		engine: engine,
		cache:  viewCache,
		ttl:    cache.TTLMedium,
		loc:    time.UTC,
		now:    time.Now,
		log:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// TenantPrefix is the cache key prefix shared by every view of one tenant.
func TenantPrefix(tenantID string) string {
	return "dash:" + url.QueryEscape(tenantID) + ":"
}

// CacheKey identifies one view for one tenant, window and filter set.
func CacheKey(tenantID string, w timewindow.Window, f Filters, kind Kind) string {
	var b strings.Builder
	b.WriteString(TenantPrefix(tenantID))
	b.WriteString(w.Key())
	b.WriteByte(':')
	b.WriteString(url.QueryEscape(f.Area))
	b.WriteByte(':')
	b.WriteString(url.QueryEscape(f.Industry))
	b.WriteByte(':')
	b.WriteString(string(kind))
	return b.String()
}

// Window resolves the filters against the dashboard clock and timezone.
func (d *Dashboard) Window(f Filters) (timewindow.Window, error) {
	return timewindow.Resolve(f.Normalize().Range(), d.now(), d.loc)
}

// Get returns all seven views. The only error is timewindow.ErrInvalidRange;
// failed views come back as their empty shapes.
func (d *Dashboard) Get(ctx context.Context, tenantID string, filters Filters) (*Result, error) {
	f := filters.Normalize()
	w, err := timewindow.Resolve(f.Range(), d.now(), d.loc)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res.Trend = memoize(gctx, d, tenantID, w, f, KindTrend, d.engine.trend)
		return nil
	})
	g.Go(func() error {
		res.Regional = memoize(gctx, d, tenantID, w, f, KindRegional, d.engine.regional)
		return nil
	})
	g.Go(func() error {
		res.Industry = memoize(gctx, d, tenantID, w, f, KindIndustry, d.engine.industry)
		return nil
	})
	g.Go(func() error {
		res.Budget = memoize(gctx, d, tenantID, w, f, KindBudget, d.engine.budget)
		return nil
	})
	g.Go(func() error {
		res.TimePattern = memoize(gctx, d, tenantID, w, f, KindTimePattern, d.engine.timePattern)
		return nil
	})
	g.Go(func() error {
		res.Keyword = memoize(gctx, d, tenantID, w, f, KindKeyword, d.engine.keyword)
		return nil
	})
	g.Go(func() error {
		res.Anomaly = memoize(gctx, d, tenantID, w, f, KindAnomaly, d.engine.anomaly)
		return nil
	})
	_ = g.Wait()

	return res, nil
}

// View serves a single view by kind.
func (d *Dashboard) View(ctx context.Context, tenantID string, filters Filters, kind Kind) (any, error) {
	f := filters.Normalize()
	w, err := timewindow.Resolve(f.Range(), d.now(), d.loc)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindTrend:
		return memoize(ctx, d, tenantID, w, f, kind, d.engine.trend), nil
	case KindRegional:
		return memoize(ctx, d, tenantID, w, f, kind, d.engine.regional), nil
	case KindIndustry:
		return memoize(ctx, d, tenantID, w, f, kind, d.engine.industry), nil
	case KindBudget:
		return memoize(ctx, d, tenantID, w, f, kind, d.engine.budget), nil
	case KindTimePattern:
		return memoize(ctx, d, tenantID, w, f, kind, d.engine.timePattern), nil
	case KindKeyword:
		return memoize(ctx, d, tenantID, w, f, kind, d.engine.keyword), nil
	case KindAnomaly:
		return memoize(ctx, d, tenantID, w, f, kind, d.engine.anomaly), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

// Invalidate drops every cached view of tenantID, e.g. after an upload.
func (d *Dashboard) Invalidate(ctx context.Context, tenantID string) int {
	if d.cache == nil {
		return 0
	}
	removed := d.cache.InvalidatePrefix(ctx, TenantPrefix(tenantID))
	d.log.WithFields(logrus.Fields{"tenant_id": tenantID, "removed": removed}).Debug("dashboard cache invalidated")
	return removed
}

// memoize serves kind from the cache or computes and stores it. Empty views
// produced by a failure are not cached.
func memoize[V any](ctx context.Context, d *Dashboard, tenantID string, w timewindow.Window, f Filters, kind Kind,
	compute func(context.Context, string, timewindow.Window, Filters) (V, error)) V {
	key := CacheKey(tenantID, w, f, kind)
	if d.cache != nil {
		var cached V
		if d.cache.Load(ctx, key, &cached) {
			return cached
		}
	}

	view, err := compute(ctx, tenantID, w, f)
	if err == nil && d.cache != nil {
		d.cache.Store(ctx, key, view, d.ttl)
	}
	return view
}
