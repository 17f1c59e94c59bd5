// Package analytics computes the dashboard views from a tenant's tender
// records and memoizes them per tenant and filter set.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"tenderlens/internal/timewindow"
	"tenderlens/models"
)

// DefaultQueryTimeout bounds one aggregation, fetch included.
const DefaultQueryTimeout = 10 * time.Second

// RecordFetcher loads the tenant's records inside a window.
type RecordFetcher interface {
	FetchTenders(ctx context.Context, q models.TenderQuery) ([]models.TenderRecord, error)
}

// Recorder receives per-view timings. *metrics.Recorder satisfies it.
type Recorder interface {
	RecordAggregation(kind string, duration time.Duration, failed bool)
}

// AggregationFailure is logged whenever a view falls back to its empty shape.
type AggregationFailure struct {
	Kind     Kind
	TenantID string
	Filters  Filters
	Err      error
}

func (e *AggregationFailure) Error() string {
	return fmt.Sprintf("aggregation %s for tenant %s (%s): %v", e.Kind, e.TenantID, e.Filters, e.Err)
}

func (e *AggregationFailure) Unwrap() error { return e.Err }

var errPanic = errors.New("aggregation panicked")

// Engine runs the seven aggregations. Its exported methods never fail: on any
// error the view's empty shape is returned and the cause is logged.
type Engine struct {
	fetcher RecordFetcher
	log     logrus.FieldLogger
	metrics Recorder
	timeout time.Duration
}

type EngineOption func(*Engine)

func WithLogger(log logrus.FieldLogger) EngineOption {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

func WithRecorder(r Recorder) EngineOption {
	return func(e *Engine) { e.metrics = r }
}

func WithQueryTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

func NewEngine(fetcher RecordFetcher, opts ...EngineOption) *Engine {
	e := &Engine{
		fetcher: fetcher,
		log:     logrus.StandardLogger(),
		timeout: DefaultQueryTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var kindColumns = map[Kind][]string{
	KindTrend:       {models.ColPublishTime, models.ColBudget},
	KindRegional:    {models.ColArea, models.ColCity},
	KindIndustry:    {models.ColIndustry},
	KindBudget:      {models.ColIndustry, models.ColBudget, models.ColBidAmount},
	KindTimePattern: {models.ColPublishTime, models.ColBidOpenTime},
	KindKeyword:     {models.ColTitle, models.ColDetail},
	KindAnomaly: {models.ColID, models.ColTitle, models.ColPublishTime, models.ColBidOpenTime,
		models.ColBudget, models.ColBidAmount},
}

// aggregate fetches the records for kind and applies compute. Any fetch
// error, timeout or panic becomes an *AggregationFailure and the empty view.
func aggregate[V any](ctx context.Context, e *Engine, kind Kind, tenantID string, w timewindow.Window, f Filters,
	empty func() V, compute func([]models.TenderRecord) V) (view V, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errPanic, r)
		}
		if err != nil {
			err = &AggregationFailure{Kind: kind, TenantID: tenantID, Filters: f, Err: err}
			view = empty()
			e.log.WithFields(logrus.Fields{
				"tenant_id": tenantID,
				"kind":      string(kind),
				"filters":   f.String(),
				"window":    w.Key(),
			}).WithError(err).Error("aggregation failed, serving empty view")
		}
		if e.metrics != nil {
			e.metrics.RecordAggregation(string(kind), time.Since(start), err != nil)
		}
	}()

	if tenantID == "" {
		return empty(), errors.New("empty tenant id")
	}
	if e.fetcher == nil {
		return empty(), errors.New("no record fetcher configured")
	}

	fetchCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	records, err := e.fetcher.FetchTenders(fetchCtx, models.TenderQuery{
		TenantID: tenantID,
		From:     w.StartUnix(),
		To:       w.EndUnix(),
		Area:     f.AreaFilter(),
		Industry: f.IndustryFilter(),
		Columns:  kindColumns[kind],
	})
	if err != nil {
		return empty(), fmt.Errorf("fetch: %w", err)
	}
	if err := fetchCtx.Err(); err != nil {
		return empty(), err
	}
	return compute(records), nil
}

func (e *Engine) trend(ctx context.Context, tenantID string, w timewindow.Window, f Filters) (TrendView, error) {
	return aggregate(ctx, e, KindTrend, tenantID, w, f, EmptyTrend, func(rs []models.TenderRecord) TrendView {
		return ComputeTrend(rs, w)
	})
}

func (e *Engine) regional(ctx context.Context, tenantID string, w timewindow.Window, f Filters) (RegionalView, error) {
	return aggregate(ctx, e, KindRegional, tenantID, w, f, EmptyRegional, func(rs []models.TenderRecord) RegionalView {
		return ComputeRegional(rs, f.AreaFilter() == "")
	})
}

func (e *Engine) industry(ctx context.Context, tenantID string, w timewindow.Window, f Filters) (IndustryView, error) {
	return aggregate(ctx, e, KindIndustry, tenantID, w, f, EmptyIndustry, ComputeIndustry)
}

func (e *Engine) budget(ctx context.Context, tenantID string, w timewindow.Window, f Filters) (BudgetView, error) {
	return aggregate(ctx, e, KindBudget, tenantID, w, f, EmptyBudget, ComputeBudget)
}

func (e *Engine) timePattern(ctx context.Context, tenantID string, w timewindow.Window, f Filters) (TimePatternView, error) {
	return aggregate(ctx, e, KindTimePattern, tenantID, w, f, EmptyTimePattern, func(rs []models.TenderRecord) TimePatternView {
		return ComputeTimePattern(rs, w.Location())
	})
}

func (e *Engine) keyword(ctx context.Context, tenantID string, w timewindow.Window, f Filters) (KeywordView, error) {
	return aggregate(ctx, e, KindKeyword, tenantID, w, f, EmptyKeyword, ComputeKeyword)
}

func (e *Engine) anomaly(ctx context.Context, tenantID string, w timewindow.Window, f Filters) (AnomalyView, error) {
	return aggregate(ctx, e, KindAnomaly, tenantID, w, f, EmptyAnomaly, func(rs []models.TenderRecord) AnomalyView {
		return ComputeAnomaly(rs, w)
	})
}
