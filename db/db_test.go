package db

import (
	"context"
	"os"
	"sort"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"tenderlens/db/migrations"
	"tenderlens/models"
)

func TestSelectList(t *testing.T) {
	cols, err := selectList([]string{models.ColID, models.ColArea, models.ColBudget})
	require.NoError(t, err)
	require.Equal(t, "id, COALESCE(area, '') AS area, budget", cols)

	_, err = selectList([]string{"id; DROP TABLE tender_project"})
	require.Error(t, err)

	all, err := selectList(nil)
	require.NoError(t, err)
	require.Contains(t, all, "source_meta")
}

func TestTenantWindowClauses(t *testing.T) {
	w := tenantWindow("t1", 100, 200, "all", "医疗")
	require.Equal(t, " WHERE tenant_id = $1 AND publish_time >= $2 AND publish_time <= $3 AND industry = $4", w.String())
	require.Equal(t, []interface{}{"t1", int64(100), int64(200), "医疗"}, w.args)

	w = tenantWindow("t1", 0, 0, "浙江省", "")
	require.Equal(t, " WHERE tenant_id = $1 AND area = $2", w.String())
}

func TestEscapeLike(t *testing.T) {
	require.Equal(t, `100\%\_a\\b`, escapeLike(`100%_a\b`))
}

func TestRecordError(t *testing.T) {
	inner := context.DeadlineExceeded
	err := RecordError{ID: "p-1", Err: inner}
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Contains(t, err.Error(), "p-1")
}

// Integration tests need a disposable Postgres database.
func openTestDB(t *testing.T) *Storage {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	conn, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	ctx := context.Background()
	require.NoError(t, migrations.Run(ctx, conn.DB))
	_, err = conn.ExecContext(ctx, "DELETE FROM tender_project WHERE tenant_id LIKE 'test-%'")
	require.NoError(t, err)
	return NewStorage(conn)
}

func int64p(v int64) *int64 { return &v }

func TestStorageIntegration(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()

	records := []models.TenderRecord{
		{
			ID: "p-1", Title: "医院设备采购", Area: "浙江", City: "杭州", Industry: "医疗",
			Buyer: "某医院", PublishTime: 1704067200, BidOpenTime: int64p(1704067200 + 10*86400),
			Budget:    decimal.NewNullDecimal(decimal.NewFromInt(1000)),
			BidAmount: decimal.NewNullDecimal(decimal.NewFromInt(900)),
			Meta:      models.SourceMeta{"publishTime": {Original: "2024-01-01"}},
		},
		{ID: "p-2", Title: "学校改造工程", Area: "江苏", Industry: "教育", Buyer: "某学校", PublishTime: 1706745600},
	}
	saved, failed, err := s.UpsertTenders(ctx, "test-a", records)
	require.NoError(t, err)
	require.Empty(t, failed)
	require.Equal(t, 2, saved)

	_, _, err = s.UpsertTenders(ctx, "test-b", records[:1])
	require.NoError(t, err)

	// re-upload replaces by (tenant, id)
	records[0].Title = "医院设备采购（更正）"
	saved, _, err = s.UpsertTenders(ctx, "test-a", records[:1])
	require.NoError(t, err)
	require.Equal(t, 1, saved)

	got, err := s.FetchTenders(ctx, models.TenderQuery{TenantID: "test-a", From: 1704067200, To: 1706745600})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "医院设备采购（更正）", got[0].Title)
	require.Equal(t, "2024-01-01", got[0].Meta["publishTime"].Original)
	require.True(t, got[0].Budget.Valid)
	require.False(t, got[1].Budget.Valid)

	got, err = s.FetchTenders(ctx, models.TenderQuery{TenantID: "test-a", From: 1704067200, To: 1706745600,
		Industry: "教育", Columns: []string{models.ColID, models.ColIndustry}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "p-2", got[0].ID)

	page, total, err := s.ListTenders(ctx, models.ProjectFilter{TenantID: "test-a", Search: "学校", Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, "p-2", page[0].ID)

	opts, err := s.FilterOptions(ctx, "test-a")
	require.NoError(t, err)
	require.Equal(t, []string{"医疗", "教育"}, sortedCopy(opts.Industries))
	require.Equal(t, int64(1704067200), opts.DateRange.Min)

	s.now = func() time.Time { return time.Unix(1735689600, 0) }
	empty, err := s.FilterOptions(ctx, "test-nobody")
	require.NoError(t, err)
	require.Empty(t, empty.Industries)
	require.Equal(t, int64(1735689600), empty.DateRange.Max)
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
