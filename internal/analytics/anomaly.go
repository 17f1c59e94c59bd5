package analytics

import (
	"sort"

	"github.com/shopspring/decimal"

	"tenderlens/internal/timewindow"
	"tenderlens/models"
)

// Fixed heuristic thresholds, not statistically derived.
var (
	overBudgetPercent  = decimal.NewFromInt(50)
	underBudgetPercent = decimal.NewFromInt(-30)
	tinyBid            = decimal.NewFromInt(100)
	largeBudget        = decimal.NewFromInt(100000)
	extremeMultiple    = decimal.NewFromInt(10)
)

const (
	longProcessDays  = 180
	shortProcessDays = 3
	maxAnomalies     = 10
)

const (
	AnomalyOverBudget   = "超预算"
	AnomalyUnderBudget  = "低于预算"
	AnomalyExtreme      = "极端差异"
	AnomalyLongProcess  = "流程过长"
	AnomalyShortProcess = "流程过短"
	IssueOpenBeforePub  = "开标早于发布"
)

type rankedBudget struct {
	item BudgetAnomaly
	abs  decimal.Decimal
}

type rankedValue struct {
	item ValueAnomaly
	skew decimal.Decimal
}

type rankedTime struct {
	item     TimeAnomaly
	distance int64
}

// ComputeAnomaly runs the budget, value and time detectors in one pass.
// Bid-open times before the publish time are reported as data quality issues
// and never as time anomalies.
func ComputeAnomaly(records []models.TenderRecord, w timewindow.Window) AnomalyView {
	view := EmptyAnomaly()

	var (
		budgets     []rankedBudget
		values      []rankedValue
		times       []rankedTime
		issues      []DataQualityIssue
		budgetSum   decimal.Decimal
		bidSum      decimal.Decimal
		budgetCount int
		bidCount    int
	)

	for _, r := range records {
		budget, hasBudget := amountOf(r.Budget)
		hasBudget = hasBudget && budget.IsPositive()
		bid, hasBid := amountOf(r.BidAmount)
		hasBid = hasBid && bid.IsPositive()

		if hasBudget {
			budgetSum = budgetSum.Add(budget)
			budgetCount++
		}
		if hasBid {
			bidSum = bidSum.Add(bid)
			bidCount++
		}

		if hasBudget && hasBid {
			diff := diffPercent(budget, bid)
			anomalyType := ""
			switch {
			case diff.GreaterThan(overBudgetPercent):
				anomalyType = AnomalyOverBudget
			case diff.LessThan(underBudgetPercent):
				anomalyType = AnomalyUnderBudget
			}
			if anomalyType != "" {
				budgets = append(budgets, rankedBudget{
					item: BudgetAnomaly{
						ID:             r.ID,
						Title:          r.Title,
						Budget:         budget.Round(2).InexactFloat64(),
						BidAmount:      bid.Round(2).InexactFloat64(),
						DiffPercentage: formatDiff(diff),
						AnomalyType:    anomalyType,
					},
					abs: diff.Abs(),
				})
			}

			if (bid.LessThan(tinyBid) && budget.GreaterThan(largeBudget)) || bid.GreaterThan(budget.Mul(extremeMultiple)) {
				ratio := bid.Div(budget)
				skew := ratio
				if ratio.LessThan(decimal.NewFromInt(1)) {
					skew = budget.Div(bid)
				}
				values = append(values, rankedValue{
					item: ValueAnomaly{
						ID:          r.ID,
						Title:       r.Title,
						Budget:      budget.Round(2).InexactFloat64(),
						BidAmount:   bid.Round(2).InexactFloat64(),
						Ratio:       ratio.StringFixed(2),
						AnomalyType: AnomalyExtreme,
					},
					skew: skew,
				})
			}
		}

		pub, okPub := publishOf(r)
		open, okOpen := bidOpenOf(r)
		if !okPub || !okOpen {
			continue
		}
		diff := open - pub
		if diff < 0 {
			issues = append(issues, DataQualityIssue{
				ID:          r.ID,
				Title:       r.Title,
				PublishTime: w.Format(pub),
				BidOpenTime: w.Format(open),
				DiffDays:    -ceilDays(-diff),
				Issue:       IssueOpenBeforePub,
			})
			continue
		}
		days := ceilDays(diff)
		switch {
		case days > longProcessDays:
			times = append(times, rankedTime{item: timeAnomaly(r, w, pub, open, days, AnomalyLongProcess), distance: days - longProcessDays})
		case days < shortProcessDays:
			times = append(times, rankedTime{item: timeAnomaly(r, w, pub, open, days, AnomalyShortProcess), distance: shortProcessDays - days})
		}
	}

	sort.Slice(budgets, func(i, j int) bool {
		if c := budgets[i].abs.Cmp(budgets[j].abs); c != 0 {
			return c > 0
		}
		return budgets[i].item.ID < budgets[j].item.ID
	})
	for i := 0; i < len(budgets) && i < maxAnomalies; i++ {
		view.BudgetAnomalies = append(view.BudgetAnomalies, budgets[i].item)
	}

	sort.Slice(values, func(i, j int) bool {
		if c := values[i].skew.Cmp(values[j].skew); c != 0 {
			return c > 0
		}
		return values[i].item.ID < values[j].item.ID
	})
	for i := 0; i < len(values) && i < maxAnomalies; i++ {
		view.ValueAnomalies = append(view.ValueAnomalies, values[i].item)
	}

	sort.Slice(times, func(i, j int) bool {
		if times[i].distance != times[j].distance {
			return times[i].distance > times[j].distance
		}
		return times[i].item.ID < times[j].item.ID
	})
	for i := 0; i < len(times) && i < maxAnomalies; i++ {
		view.TimeAnomalies = append(view.TimeAnomalies, times[i].item)
	}

	sort.Slice(issues, func(i, j int) bool {
		if issues[i].DiffDays != issues[j].DiffDays {
			return issues[i].DiffDays < issues[j].DiffDays
		}
		return issues[i].ID < issues[j].ID
	})
	if len(issues) > maxAnomalies {
		issues = issues[:maxAnomalies]
	}
	view.DataQualityIssues = append(view.DataQualityIssues, issues...)

	view.Statistics = AnomalyStatistics{
		BudgetCount:    budgetCount,
		BidAmountCount: bidCount,
		TotalProjects:  len(records),
	}
	if budgetCount > 0 {
		view.Statistics.AvgBudget = budgetSum.Div(decimal.NewFromInt(int64(budgetCount))).Round(2).InexactFloat64()
	}
	if bidCount > 0 {
		view.Statistics.AvgBidAmount = bidSum.Div(decimal.NewFromInt(int64(bidCount))).Round(2).InexactFloat64()
	}
	return view
}

func timeAnomaly(r models.TenderRecord, w timewindow.Window, pub, open, days int64, kind string) TimeAnomaly {
	return TimeAnomaly{
		ID:          r.ID,
		Title:       r.Title,
		PublishTime: w.Format(pub),
		BidOpenTime: w.Format(open),
		DiffDays:    days,
		AnomalyType: kind,
	}
}
