// Package ingest validates, cleans and stores uploaded tender datasets.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tenderlens/db"
	"tenderlens/internal/sanitize"
	"tenderlens/models"
)

// MaxReportedWarnings bounds the warnings echoed back in a Result.
const MaxReportedWarnings = 100

type Store interface {
	UpsertTenders(ctx context.Context, tenantID string, records []models.TenderRecord) (int, []db.RecordError, error)
}

// Invalidator drops cached dashboard views of a tenant.
type Invalidator interface {
	Invalidate(ctx context.Context, tenantID string) int
}

type Recorder interface {
	RecordImport(outcome string, n int)
}

// RecordWarning is a cleaning warning tied to the record it came from.
type RecordWarning struct {
	ID string `json:"id"`
	sanitize.Warning
}

type Result struct {
	BatchID      string          `json:"batchId"`
	Success      bool            `json:"success"`
	Count        int             `json:"count"`
	Total        int             `json:"total"`
	Valid        int             `json:"valid"`
	Invalid      int             `json:"invalid"`
	Duplicates   int             `json:"duplicates"`
	Truncated    int             `json:"truncated"`
	Failed       int             `json:"failed"`
	WarningCount int             `json:"warningCount"`
	Warnings     []RecordWarning `json:"warnings"`
	Message      string          `json:"message"`
}

func (r *Result) addWarning(w RecordWarning) {
	r.WarningCount++
	if len(r.Warnings) < MaxReportedWarnings {
		r.Warnings = append(r.Warnings, w)
	}
}

type Service struct {
	store   Store
	cache   Invalidator
	metrics Recorder
	log     logrus.FieldLogger
	loc     *time.Location
	newID   func() string
}

type Option func(*Service)

func WithInvalidator(inv Invalidator) Option {
	return func(s *Service) { s.cache = inv }
}

func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.metrics = r }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Service) { s.log = log }
}

// WithLocation sets the zone date strings without an offset are read in.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.loc = loc }
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store: store,
		log:   logrus.StandardLogger(),
		loc:   time.UTC,
		newID: func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Import validates data (a decoded JSON value), cleans every valid record and
// upserts them for tenantID. Validation problems are returned as errors
// wrapping ErrInvalidPayload. Once anything is written the tenant's cached
// views are invalidated.
func (s *Service) Import(ctx context.Context, tenantID string, data any) (*Result, error) {
	if tenantID == "" {
		return nil, errors.New("import: empty tenant id")
	}
	v, err := Validate(data)
	if err != nil {
		return nil, err
	}

	res := &Result{
		BatchID:    s.newID(),
		Total:      v.Total,
		Valid:      v.Valid,
		Invalid:    v.Invalid,
		Duplicates: v.Duplicates,
		Warnings:   []RecordWarning{},
	}
	log := s.log.WithFields(logrus.Fields{
		"batch_id":  res.BatchID,
		"tenant_id": tenantID,
	})

	records := make([]models.TenderRecord, 0, len(v.Records))
	for _, raw := range v.Records {
		rec, warnings, truncated, err := Normalize(raw, s.loc)
		id := sanitize.Stringify(raw["id"])
		for _, w := range warnings {
			res.addWarning(RecordWarning{ID: id, Warning: w})
		}
		res.Truncated += truncated
		if err != nil {
			// the normalizer already warned about the field
			res.Valid--
			res.Invalid++
			continue
		}
		records = append(records, rec)
	}

	if len(records) > 0 {
		saved, failed, err := s.store.UpsertTenders(ctx, tenantID, records)
		if err != nil {
			log.WithError(err).Error("upload failed")
			return nil, fmt.Errorf("import batch %s: %w", res.BatchID, err)
		}
		res.Count = saved
		res.Failed = len(failed)
		for _, f := range failed {
			log.WithField("record_id", f.ID).WithError(f.Err).Warn("record rejected by store")
		}
	}

	if res.Count > 0 && s.cache != nil {
		dropped := s.cache.Invalidate(ctx, tenantID)
		log.WithField("cache_entries", dropped).Debug("dashboard cache invalidated")
	}

	res.Success = true
	res.Message = fmt.Sprintf("imported %d of %d records", res.Count, res.Total)
	s.record(res)
	log.WithFields(logrus.Fields{
		"total":      res.Total,
		"imported":   res.Count,
		"invalid":    res.Invalid,
		"duplicates": res.Duplicates,
		"truncated":  res.Truncated,
		"failed":     res.Failed,
		"warnings":   res.WarningCount,
	}).Info("upload processed")
	return res, nil
}

func (s *Service) record(res *Result) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordImport("imported", res.Count)
	s.metrics.RecordImport("invalid", res.Invalid)
	s.metrics.RecordImport("duplicate", res.Duplicates)
	s.metrics.RecordImport("truncated", res.Truncated)
	s.metrics.RecordImport("failed", res.Failed)
}
