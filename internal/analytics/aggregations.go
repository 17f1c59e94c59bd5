package analytics

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tenderlens/internal/sanitize"
	"tenderlens/internal/timewindow"
	"tenderlens/models"
)

const (
	topIndustries = 5
	topCities     = 15
	secondsPerDay = 86400
)

var tenThousand = decimal.NewFromInt(10000)

// toWan converts base currency units to 万元 with two decimals.
func toWan(d decimal.Decimal) float64 {
	return d.Div(tenThousand).Round(2).InexactFloat64()
}

func amountOf(nd decimal.NullDecimal) (decimal.Decimal, bool) {
	if !nd.Valid {
		return decimal.Zero, false
	}
	return sanitize.CleanAmount(nd.Decimal)
}

func publishOf(r models.TenderRecord) (int64, bool) {
	return sanitize.CleanTimestamp(r.PublishTime)
}

func bidOpenOf(r models.TenderRecord) (int64, bool) {
	if r.BidOpenTime == nil {
		return 0, false
	}
	return sanitize.CleanTimestamp(*r.BidOpenTime)
}

func orElse(v, fallback string) string {
	if v = strings.TrimSpace(v); v == "" {
		return fallback
	}
	return v
}

// ceilDays rounds a non-negative second span up to whole days.
func ceilDays(secs int64) int64 {
	return (secs + secondsPerDay - 1) / secondsPerDay
}

func sortedCounts(counts map[string]int) []NameValue {
	out := make([]NameValue, 0, len(counts))
	for name, n := range counts {
		out = append(out, NameValue{Name: name, Value: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// ComputeTrend buckets in-window records by month of year. A window spanning
// two years folds both into the same twelve slots.
func ComputeTrend(records []models.TenderRecord, w timewindow.Window) TrendView {
	view := EmptyTrend()
	loc := w.Location()
	sums := make([]decimal.Decimal, 12)

	for _, r := range records {
		pub, ok := publishOf(r)
		if !ok || !w.Contains(pub) {
			continue
		}
		m := int(time.Unix(pub, 0).In(loc).Month()) - 1
		view.ProjectCounts[m]++
		if b, ok := amountOf(r.Budget); ok {
			sums[m] = sums[m].Add(b)
		}
	}

	for m := range sums {
		view.BudgetSums[m] = toWan(sums[m])
		if view.ProjectCounts[m] > 0 {
			view.AvgBudgets[m] = toWan(sums[m].Div(decimal.NewFromInt(int64(view.ProjectCounts[m]))))
		}
	}
	return view
}

// ComputeRegional counts records per standardized province. Cities are only
// broken down when no area filter is active.
func ComputeRegional(records []models.TenderRecord, withCities bool) RegionalView {
	view := EmptyRegional()
	provinces := map[string]int{}
	cities := map[string]int{}

	for _, r := range records {
		provinces[sanitize.StandardizeAreaName(r.Area)]++
		if withCities {
			cities[orElse(r.City, UnknownLabel)]++
		}
	}

	view.Provinces = sortedCounts(provinces)
	if withCities {
		top := sortedCounts(cities)
		if len(top) > topCities {
			top = top[:topCities]
		}
		view.TopCities = top
	}
	return view
}

// ComputeIndustry keeps the five largest named industries and folds the rest,
// together with unclassified records, into a trailing "其他" bucket.
func ComputeIndustry(records []models.TenderRecord) IndustryView {
	view := EmptyIndustry()
	counts := map[string]int{}
	other := 0

	for _, r := range records {
		name := orElse(r.Industry, OtherLabel)
		if name == OtherLabel {
			other++
			continue
		}
		counts[name]++
	}

	for i, nv := range sortedCounts(counts) {
		if i < topIndustries {
			view.Labels = append(view.Labels, nv.Name)
			view.Data = append(view.Data, nv.Value)
			continue
		}
		other += nv.Value
	}
	if other > 0 {
		view.Labels = append(view.Labels, OtherLabel)
		view.Data = append(view.Data, other)
	}
	return view
}

type budgetGroup struct {
	name   string
	budget decimal.Decimal
	actual decimal.Decimal
}

// ComputeBudget compares summed budget with summed bid amount for the five
// industries with the largest budgets.
func ComputeBudget(records []models.TenderRecord) BudgetView {
	view := EmptyBudget()
	groups := map[string]*budgetGroup{}

	for _, r := range records {
		budget, ok := amountOf(r.Budget)
		if !ok || !budget.IsPositive() {
			continue
		}
		actual, ok := amountOf(r.BidAmount)
		if !ok || !actual.IsPositive() {
			continue
		}
		name := orElse(r.Industry, OtherLabel)
		g, ok := groups[name]
		if !ok {
			g = &budgetGroup{name: name}
			groups[name] = g
		}
		g.budget = g.budget.Add(budget)
		g.actual = g.actual.Add(actual)
	}

	ordered := make([]*budgetGroup, 0, len(groups))
	for _, g := range groups {
		ordered = append(ordered, g)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if c := ordered[i].budget.Cmp(ordered[j].budget); c != 0 {
			return c > 0
		}
		return ordered[i].name < ordered[j].name
	})
	if len(ordered) > topIndustries {
		ordered = ordered[:topIndustries]
	}

	for _, g := range ordered {
		view.Industries = append(view.Industries, g.name)
		view.BudgetValues = append(view.BudgetValues, toWan(g.budget))
		view.ActualValues = append(view.ActualValues, toWan(g.actual))
		view.DiffPercentages = append(view.DiffPercentages, formatDiff(diffPercent(g.budget, g.actual)))
	}
	return view
}

var hundred = decimal.NewFromInt(100)

// diffPercent is (actual-budget)/budget*100, or zero for a zero budget.
func diffPercent(budget, actual decimal.Decimal) decimal.Decimal {
	if budget.IsZero() {
		return decimal.Zero
	}
	return actual.Sub(budget).Mul(hundred).Div(budget)
}

// formatDiff renders a signed percentage with one decimal, e.g. "+51.0%".
func formatDiff(d decimal.Decimal) string {
	r := d.Round(1)
	if r.IsPositive() {
		return "+" + r.StringFixed(1) + "%"
	}
	return r.StringFixed(1) + "%"
}

// ComputeTimePattern distributes publish times over weekdays and hours in loc
// and buckets the publish-to-bid-open period.
func ComputeTimePattern(records []models.TenderRecord, loc *time.Location) TimePatternView {
	view := EmptyTimePattern()
	loc = timewindow.EnsureLocation(loc)

	var (
		totalDays int64
		pairs     int64
	)
	for _, r := range records {
		pub, ok := publishOf(r)
		if !ok {
			continue
		}
		t := time.Unix(pub, 0).In(loc)
		view.DayOfWeekDistribution.Data[int(t.Weekday())]++
		view.HourDistribution.Data[t.Hour()]++

		open, ok := bidOpenOf(r)
		if !ok {
			continue
		}
		diff := open - pub
		if diff < 0 {
			diff = -diff
		}
		days := ceilDays(diff)
		totalDays += days
		pairs++
		view.ProcessPeriods.Distribution.Data[periodBucket(days)]++
	}

	if pairs > 0 {
		view.ProcessPeriods.Average = fmt.Sprintf("%.1f", float64(totalDays)/float64(pairs))
	}
	return view
}

func periodBucket(days int64) int {
	switch {
	case days <= 7:
		return 0
	case days <= 14:
		return 1
	case days <= 30:
		return 2
	case days <= 60:
		return 3
	default:
		return 4
	}
}
