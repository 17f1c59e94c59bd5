package analytics

import (
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"tenderlens/internal/timewindow"
	"tenderlens/models"
)

var propertyIndustries = []string{"", "医疗", "教育", "建筑", "信息技术", "能源", "交通", "环保", "水利", OtherLabel}

// buildRecords turns generated columns into records; the shortest slice wins.
func buildRecords(industries []int, days []int, budgets []int64, bids []int64) []models.TenderRecord {
	n := len(industries)
	for _, l := range []int{len(days), len(budgets), len(bids)} {
		if l < n {
			n = l
		}
	}
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, cst)
	records := make([]models.TenderRecord, 0, n)
	for i := 0; i < n; i++ {
		pub := base.AddDate(0, 0, days[i]).Unix()
		records = append(records, models.TenderRecord{
			ID:          string(rune('a'+i%26)) + strings.Repeat("x", i/26),
			Industry:    propertyIndustries[industries[i]%len(propertyIndustries)],
			PublishTime: pub,
			BidOpenTime: ptr(pub + int64(days[i]-180)*secondsPerDay),
			Budget:      amount(budgets[i]),
			BidAmount:   amount(bids[i]),
		})
	}
	return records
}

func TestAggregationProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	w, err := timewindow.Resolve(timewindow.Range{StartDate: "2024-01-01", EndDate: "2024-12-31"}, time.Now(), cst)
	if err != nil {
		t.Fatal(err)
	}

	properties.Property("trend always has twelve slots and counts every in-window record", prop.ForAll(
		func(industries []int, days []int, budgets []int64, bids []int64) bool {
			records := buildRecords(industries, days, budgets, bids)
			v := ComputeTrend(records, w)
			if len(v.Months) != 12 || len(v.ProjectCounts) != 12 || len(v.BudgetSums) != 12 || len(v.AvgBudgets) != 12 {
				return false
			}
			total := 0
			for _, c := range v.ProjectCounts {
				total += c
			}
			return total == len(records)
		},
		gen.SliceOf(gen.IntRange(0, 20)),
		gen.SliceOf(gen.IntRange(0, 365)),
		gen.SliceOf(gen.Int64Range(0, 5_000_000)),
		gen.SliceOf(gen.Int64Range(0, 5_000_000)),
	))

	properties.Property("industry buckets account for every record", prop.ForAll(
		func(industries []int, days []int, budgets []int64, bids []int64) bool {
			records := buildRecords(industries, days, budgets, bids)
			v := ComputeIndustry(records)
			if len(v.Labels) != len(v.Data) || len(v.Labels) > topIndustries+1 {
				return false
			}
			sum := 0
			for i, n := range v.Data {
				if n <= 0 {
					return false
				}
				if v.Labels[i] == OtherLabel && i != len(v.Labels)-1 {
					return false
				}
				sum += n
			}
			return sum == len(records)
		},
		gen.SliceOf(gen.IntRange(0, 20)),
		gen.SliceOf(gen.IntRange(0, 365)),
		gen.SliceOf(gen.Int64Range(0, 5_000_000)),
		gen.SliceOf(gen.Int64Range(0, 5_000_000)),
	))

	properties.Property("anomaly lists never exceed ten entries", prop.ForAll(
		func(industries []int, days []int, budgets []int64, bids []int64) bool {
			v := ComputeAnomaly(buildRecords(industries, days, budgets, bids), w)
			return len(v.BudgetAnomalies) <= maxAnomalies &&
				len(v.TimeAnomalies) <= maxAnomalies &&
				len(v.ValueAnomalies) <= maxAnomalies &&
				len(v.DataQualityIssues) <= maxAnomalies
		},
		gen.SliceOf(gen.IntRange(0, 20)),
		gen.SliceOf(gen.IntRange(0, 365)),
		gen.SliceOf(gen.Int64Range(1, 5_000_000)),
		gen.SliceOf(gen.Int64Range(1, 5_000_000)),
	))

	properties.Property("one tenant's keys never fall under another tenant's prefix", prop.ForAll(
		func(a, b string) bool {
			if a == b {
				return true
			}
			key := CacheKey(a, w, Filters{Area: AllValues, Industry: AllValues}, KindTrend)
			return !strings.HasPrefix(key, TenantPrefix(b)) && strings.HasPrefix(key, TenantPrefix(a))
		},
		gen.AnyString(),
		gen.AnyString(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
