package analytics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"tenderlens/internal/timewindow"
	"tenderlens/models"
)

var cst = time.FixedZone("CST", 8*3600)

func at(year int, month time.Month, day, hour int) int64 {
	return time.Date(year, month, day, hour, 0, 0, 0, cst).Unix()
}

func amount(v int64) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.NewFromInt(v))
}

func ptr(v int64) *int64 { return &v }

func window(t *testing.T, start, end string) timewindow.Window {
	t.Helper()
	w, err := timewindow.Resolve(timewindow.Range{StartDate: start, EndDate: end}, time.Now(), cst)
	require.NoError(t, err)
	return w
}

// fakeStore filters records the way the SQL store does.
type fakeStore struct {
	mu      sync.Mutex
	records map[string][]models.TenderRecord
	queries []models.TenderQuery
	fail    func(q models.TenderQuery) error
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[string][]models.TenderRecord{}}
}

func (s *fakeStore) add(tenantID string, recs ...models.TenderRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range recs {
		r.TenantID = tenantID
		s.records[tenantID] = append(s.records[tenantID], r)
	}
}

func (s *fakeStore) FetchTenders(ctx context.Context, q models.TenderQuery) ([]models.TenderRecord, error) {
	s.mu.Lock()
	s.queries = append(s.queries, q)
	fail := s.fail
	all := append([]models.TenderRecord(nil), s.records[q.TenantID]...)
	s.mu.Unlock()

	if fail != nil {
		if err := fail(q); err != nil {
			return nil, err
		}
	}
	out := []models.TenderRecord{}
	for _, r := range all {
		if r.PublishTime < q.From || r.PublishTime > q.To {
			continue
		}
		if q.Area != "" && r.Area != q.Area {
			continue
		}
		if q.Industry != "" && r.Industry != q.Industry {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *fakeStore) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queries)
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
