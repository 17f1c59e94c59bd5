package ingest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"tenderlens/db"
	"tenderlens/internal/ingest"
	"tenderlens/models"
)

var cst = time.FixedZone("CST", 8*3600)

// decode reads a payload the way the upload handler does.
func decode(t *testing.T, payload string) any {
	t.Helper()
	dec := json.NewDecoder(bytes.NewBufferString(payload))
	dec.UseNumber()
	var v any
	require.NoError(t, dec.Decode(&v))
	return v
}

type MockStore struct {
	mu       sync.Mutex
	tenant   string
	received []models.TenderRecord
	rejected map[string]bool
	err      error
}

func (m *MockStore) UpsertTenders(ctx context.Context, tenantID string, records []models.TenderRecord) (int, []db.RecordError, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, nil, m.err
	}
	m.tenant = tenantID
	m.received = append(m.received, records...)
	var failed []db.RecordError
	for _, r := range records {
		if m.rejected[r.ID] {
			failed = append(failed, db.RecordError{ID: r.ID, Err: errors.New("value too long")})
		}
	}
	return len(records) - len(failed), failed, nil
}

type MockInvalidator struct {
	tenants []string
}

func (m *MockInvalidator) Invalidate(ctx context.Context, tenantID string) int {
	m.tenants = append(m.tenants, tenantID)
	return 7
}

type MockRecorder struct {
	counts map[string]int
}

func (m *MockRecorder) RecordImport(outcome string, n int) {
	if m.counts == nil {
		m.counts = map[string]int{}
	}
	m.counts[outcome] += n
}

func newService(store ingest.Store, inv ingest.Invalidator, rec ingest.Recorder) (*ingest.Service, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	opts := []ingest.Option{ingest.WithLogger(logger), ingest.WithLocation(cst), ingest.WithRecorder(rec)}
	if inv != nil {
		opts = append(opts, ingest.WithInvalidator(inv))
	}
	return ingest.NewService(store, opts...), hook
}

func TestValidateRejectsBadShapes(t *testing.T) {
	_, err := ingest.Validate(map[string]any{"id": "1"})
	require.ErrorIs(t, err, ingest.ErrNotArray)
	require.ErrorIs(t, err, ingest.ErrInvalidPayload)

	_, err = ingest.Validate([]any{})
	require.ErrorIs(t, err, ingest.ErrEmptyData)

	_, err = ingest.Validate([]any{map[string]any{"id": "1", "title": "t"}, "junk"})
	require.ErrorIs(t, err, ingest.ErrNoValidRecords)
}

func TestValidateCountsDuplicatesAcrossAllItems(t *testing.T) {
	data := decode(t, `[
		{"id": "1", "title": "a", "area": "浙江", "buyer": "b", "publishTime": 1704067200},
		{"id": "1", "title": "a2", "area": "浙江", "buyer": "b", "publishTime": 1704067200},
		{"id": "2", "title": "", "area": "浙江", "buyer": "b", "publishTime": 1704067200},
		{"id": "2"},
		{"title": "no id"},
		null
	]`)

	v, err := ingest.Validate(data)
	require.NoError(t, err)
	require.Equal(t, 6, v.Total)
	require.Equal(t, 2, v.Valid)
	require.Equal(t, 4, v.Invalid)
	require.Equal(t, 2, v.Unique)
	require.Equal(t, 2, v.Duplicates)
	require.Equal(t, []string{"1", "2"}, v.DuplicateIDs)
}

func TestValidateTreatsZeroAsMissing(t *testing.T) {
	_, err := ingest.Validate(decode(t, `[{"id": "1", "title": "a", "area": "x", "buyer": "b", "publishTime": 0}]`))
	require.ErrorIs(t, err, ingest.ErrNoValidRecords)
}

func TestNormalize(t *testing.T) {
	raw := decode(t, `{
		"id": "abc%2F123",
		"title": "  医院设备采购  ",
		"area": "浙江",
		"buyer": "某医院",
		"buyerTel": "0571-12345678-0571-12345678-0571-12345678-0571-12345678",
		"publishTime": 1704067200000,
		"bidOpenTime": "2024-01-15",
		"bidEndTime": "someday",
		"budget": "１,２００,０００元",
		"bidAmount": "面议",
		"detail": "long text"
	}`).(map[string]any)

	rec, warnings, truncated, err := ingest.Normalize(raw, cst)
	require.NoError(t, err)

	require.Equal(t, "abc/123", rec.ID)
	require.Equal(t, "医院设备采购", rec.Title)
	require.Len(t, rec.BuyerTel, 50)
	require.Equal(t, 1, truncated)
	require.Equal(t, int64(1704067200), rec.PublishTime)
	require.NotNil(t, rec.BidOpenTime)
	require.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, cst).Unix(), *rec.BidOpenTime)
	require.Nil(t, rec.BidEndTime)
	require.Nil(t, rec.SignEndTime)
	require.True(t, rec.Budget.Valid)
	require.Equal(t, "1200000", rec.Budget.Decimal.String())
	require.False(t, rec.BidAmount.Valid)
	require.Equal(t, "long text", rec.Detail)

	require.Equal(t, models.DateSource{Original: "2024-01-15", Formatted: "2024-01-15"}, rec.Meta["bidOpenTime"])
	require.Equal(t, "2024-01-01", rec.Meta["publishTime"].Formatted)
	require.NotContains(t, rec.Meta, "bidEndTime")

	fields := make([]string, 0, len(warnings))
	for _, w := range warnings {
		fields = append(fields, w.Field)
	}
	require.ElementsMatch(t, []string{"bidEndTime", "bidAmount"}, fields)
}

func TestNormalizeTruncatesByRunes(t *testing.T) {
	raw := map[string]any{
		"id":          "1",
		"title":       strings.Repeat("标", 501),
		"area":        "浙江",
		"buyer":       "b",
		"publishTime": float64(1704067200),
	}
	rec, _, truncated, err := ingest.Normalize(raw, cst)
	require.NoError(t, err)
	require.Equal(t, 1, truncated)
	require.Equal(t, strings.Repeat("标", 500), rec.Title)
}

func TestNormalizeKeepsUndecodableID(t *testing.T) {
	raw := map[string]any{"id": "100%", "title": "t", "area": "a", "buyer": "b", "publishTime": float64(1704067200)}
	rec, _, _, err := ingest.Normalize(raw, cst)
	require.NoError(t, err)
	require.Equal(t, "100%", rec.ID)
}

func TestNormalizeZeroAmountIsAbsent(t *testing.T) {
	raw := map[string]any{"id": "1", "title": "t", "area": "a", "buyer": "b", "publishTime": float64(1704067200), "budget": "0"}
	rec, warnings, _, err := ingest.Normalize(raw, cst)
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.False(t, rec.Budget.Valid)
}

func TestNormalizeRejectsUnreadablePublishTime(t *testing.T) {
	raw := map[string]any{"id": "1", "title": "t", "area": "a", "buyer": "b", "publishTime": "1970-01-01"}
	_, _, _, err := ingest.Normalize(raw, cst)
	require.Error(t, err)
}

func TestImport(t *testing.T) {
	store := &MockStore{rejected: map[string]bool{"3": true}}
	inv := &MockInvalidator{}
	rec := &MockRecorder{}
	svc, hook := newService(store, inv, rec)

	data := decode(t, `[
		{"id": "1", "title": "a", "area": "浙江", "buyer": "b", "publishTime": 1704067200, "budget": "abc"},
		{"id": "2", "title": "b", "area": "江苏", "buyer": "b", "publishTime": "not a date"},
		{"id": "3", "title": "c", "area": "广东", "buyer": "b", "publishTime": "2024-02-01"},
		{"id": "1", "title": "a again", "area": "浙江", "buyer": "b", "publishTime": 1704067200},
		{"title": "missing id"}
	]`)

	res, err := svc.Import(context.Background(), "tenant-a", data)
	require.NoError(t, err)

	require.True(t, res.Success)
	require.NotEmpty(t, res.BatchID)
	require.Equal(t, 5, res.Total)
	require.Equal(t, 3, res.Valid)
	require.Equal(t, 2, res.Invalid)
	require.Equal(t, 1, res.Duplicates)
	require.Equal(t, 2, res.Count)
	require.Equal(t, 1, res.Failed)
	require.Equal(t, 2, res.WarningCount)
	require.Equal(t, "1", res.Warnings[0].ID)
	require.Equal(t, "budget", res.Warnings[0].Field)
	require.Equal(t, "2", res.Warnings[1].ID)

	require.Equal(t, "tenant-a", store.tenant)
	require.Len(t, store.received, 3)
	require.Equal(t, "a again", store.received[2].Title)

	require.Equal(t, []string{"tenant-a"}, inv.tenants)
	require.Equal(t, 2, rec.counts["imported"])
	require.Equal(t, 2, rec.counts["invalid"])
	require.Equal(t, 1, rec.counts["failed"])

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	require.Equal(t, "upload processed", entry.Message)
	require.Equal(t, res.BatchID, entry.Data["batch_id"])
}

func TestImportValidationErrorWritesNothing(t *testing.T) {
	store := &MockStore{}
	inv := &MockInvalidator{}
	svc, _ := newService(store, inv, &MockRecorder{})

	_, err := svc.Import(context.Background(), "tenant-a", decode(t, `{"id": "1"}`))
	require.ErrorIs(t, err, ingest.ErrInvalidPayload)
	require.Empty(t, store.received)
	require.Empty(t, inv.tenants)
}

func TestImportStoreFailure(t *testing.T) {
	store := &MockStore{err: errors.New("connection refused")}
	inv := &MockInvalidator{}
	svc, hook := newService(store, inv, &MockRecorder{})

	_, err := svc.Import(context.Background(), "tenant-a",
		decode(t, `[{"id": "1", "title": "a", "area": "x", "buyer": "b", "publishTime": 1704067200}]`))
	require.ErrorContains(t, err, "connection refused")
	require.Empty(t, inv.tenants)
	require.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}

func TestImportNothingWrittenKeepsCache(t *testing.T) {
	store := &MockStore{}
	inv := &MockInvalidator{}
	svc, _ := newService(store, inv, &MockRecorder{})

	res, err := svc.Import(context.Background(), "tenant-a",
		decode(t, `[{"id": "1", "title": "a", "area": "x", "buyer": "b", "publishTime": "yesterday"}]`))
	require.NoError(t, err)
	require.Zero(t, res.Count)
	require.Equal(t, 1, res.Invalid)
	require.Empty(t, inv.tenants)
}

func TestImportRequiresTenant(t *testing.T) {
	svc, _ := newService(&MockStore{}, nil, &MockRecorder{})
	_, err := svc.Import(context.Background(), "", []any{})
	require.Error(t, err)
}

func TestImportCapsReportedWarnings(t *testing.T) {
	items := make([]any, 0, ingest.MaxReportedWarnings+5)
	for i := 0; i < ingest.MaxReportedWarnings+5; i++ {
		items = append(items, map[string]any{
			"id": json.Number(strings.Repeat("9", i+1)), "title": "t", "area": "a", "buyer": "b",
			"publishTime": float64(1704067200), "budget": "n/a",
		})
	}
	svc, _ := newService(&MockStore{}, nil, &MockRecorder{})

	res, err := svc.Import(context.Background(), "tenant-a", items)
	require.NoError(t, err)
	require.Equal(t, ingest.MaxReportedWarnings+5, res.WarningCount)
	require.Len(t, res.Warnings, ingest.MaxReportedWarnings)
}
