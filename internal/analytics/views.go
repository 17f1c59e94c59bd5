package analytics

import (
	"errors"
	"fmt"
	"strings"

	"tenderlens/internal/timewindow"
)

// Kind names one of the dashboard views. It doubles as the cache key suffix.
type Kind string

const (
	KindTrend       Kind = "trend"
	KindRegional    Kind = "regional"
	KindIndustry    Kind = "industry"
	KindBudget      Kind = "budget"
	KindTimePattern Kind = "timePattern"
	KindKeyword     Kind = "keyword"
	KindAnomaly     Kind = "anomaly"
)

// Kinds lists every view in response order.
var Kinds = []Kind{KindTrend, KindRegional, KindIndustry, KindBudget, KindTimePattern, KindKeyword, KindAnomaly}

var ErrUnknownKind = errors.New("unknown view kind")

func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

const (
	AllValues    = "all"
	OtherLabel   = "其他"
	UnknownLabel = "未知"
)

// Filters are the dashboard query parameters.
type Filters struct {
	TimeRange string `json:"timeRange"`
	StartDate string `json:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty"`
	Area      string `json:"area"`
	Industry  string `json:"industry"`
}

// Normalize trims values and maps empty dimension filters to "all".
func (f Filters) Normalize() Filters {
	f.TimeRange = strings.TrimSpace(f.TimeRange)
	f.StartDate = strings.TrimSpace(f.StartDate)
	f.EndDate = strings.TrimSpace(f.EndDate)
	f.Area = strings.TrimSpace(f.Area)
	f.Industry = strings.TrimSpace(f.Industry)
	if f.Area == "" {
		f.Area = AllValues
	}
	if f.Industry == "" {
		f.Industry = AllValues
	}
	return f
}

func (f Filters) Range() timewindow.Range {
	return timewindow.Range{TimeRange: f.TimeRange, StartDate: f.StartDate, EndDate: f.EndDate}
}

func (f Filters) AreaFilter() string     { return dimension(f.Area) }
func (f Filters) IndustryFilter() string { return dimension(f.Industry) }

func (f Filters) String() string {
	return fmt.Sprintf("timeRange=%s start=%s end=%s area=%s industry=%s",
		f.TimeRange, f.StartDate, f.EndDate, f.Area, f.Industry)
}

func dimension(v string) string {
	v = strings.TrimSpace(v)
	if v == AllValues {
		return ""
	}
	return v
}

// NameValue is one chart slice.
type NameValue struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

type LabelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

type TrendView struct {
	Months        []string  `json:"months"`
	ProjectCounts []int     `json:"projectCounts"`
	BudgetSums    []float64 `json:"budgetSums"`
	AvgBudgets    []float64 `json:"avgBudgets"`
}

func EmptyTrend() TrendView {
	v := TrendView{
		Months:        make([]string, 12),
		ProjectCounts: make([]int, 12),
		BudgetSums:    make([]float64, 12),
		AvgBudgets:    make([]float64, 12),
	}
	for i := range v.Months {
		v.Months[i] = fmt.Sprintf("%d月", i+1)
	}
	return v
}

type RegionalView struct {
	Provinces []NameValue `json:"provinces"`
	TopCities []NameValue `json:"topCities"`
}

func EmptyRegional() RegionalView {
	return RegionalView{Provinces: []NameValue{}, TopCities: []NameValue{}}
}

type IndustryView struct {
	Labels []string `json:"labels"`
	Data   []int    `json:"data"`
}

func EmptyIndustry() IndustryView {
	return IndustryView{Labels: []string{}, Data: []int{}}
}

type BudgetView struct {
	Industries      []string  `json:"industries"`
	BudgetValues    []float64 `json:"budgetValues"`
	ActualValues    []float64 `json:"actualValues"`
	DiffPercentages []string  `json:"diffPercentages"`
}

func EmptyBudget() BudgetView {
	return BudgetView{Industries: []string{}, BudgetValues: []float64{}, ActualValues: []float64{}, DiffPercentages: []string{}}
}

type Distribution struct {
	Labels []string `json:"labels"`
	Data   []int    `json:"data"`
}

type ProcessPeriods struct {
	Average      string       `json:"average"`
	Distribution Distribution `json:"distribution"`
}

type TimePatternView struct {
	DayOfWeekDistribution Distribution   `json:"dayOfWeekDistribution"`
	HourDistribution      Distribution   `json:"hourDistribution"`
	ProcessPeriods        ProcessPeriods `json:"processPeriods"`
}

var (
	weekdayLabels = []string{"周日", "周一", "周二", "周三", "周四", "周五", "周六"}
	periodLabels  = []string{"7天内", "8-14天", "15-30天", "31-60天", "60天以上"}
)

func EmptyTimePattern() TimePatternView {
	hours := make([]string, 24)
	for h := range hours {
		hours[h] = fmt.Sprintf("%d时", h)
	}
	return TimePatternView{
		DayOfWeekDistribution: Distribution{Labels: append([]string(nil), weekdayLabels...), Data: make([]int, 7)},
		HourDistribution:      Distribution{Labels: hours, Data: make([]int, 24)},
		ProcessPeriods: ProcessPeriods{
			Average:      "0",
			Distribution: Distribution{Labels: append([]string(nil), periodLabels...), Data: make([]int, len(periodLabels))},
		},
	}
}

type KeywordView struct {
	TopKeywords      []LabelCount `json:"topKeywords"`
	IndustryKeywords []LabelCount `json:"industryKeywords"`
}

func EmptyKeyword() KeywordView {
	return KeywordView{TopKeywords: []LabelCount{}, IndustryKeywords: []LabelCount{}}
}

type BudgetAnomaly struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	Budget         float64 `json:"budget"`
	BidAmount      float64 `json:"bidAmount"`
	DiffPercentage string  `json:"diffPercentage"`
	AnomalyType    string  `json:"anomalyType"`
}

type TimeAnomaly struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	PublishTime string `json:"publishTime"`
	BidOpenTime string `json:"bidOpenTime"`
	DiffDays    int64  `json:"diffDays"`
	AnomalyType string `json:"anomalyType"`
}

type ValueAnomaly struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Budget      float64 `json:"budget"`
	BidAmount   float64 `json:"bidAmount"`
	Ratio       string  `json:"ratio"`
	AnomalyType string  `json:"anomalyType"`
}

// DataQualityIssue flags a record whose fields contradict each other.
type DataQualityIssue struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	PublishTime string `json:"publishTime"`
	BidOpenTime string `json:"bidOpenTime"`
	DiffDays    int64  `json:"diffDays"`
	Issue       string `json:"issue"`
}

type AnomalyStatistics struct {
	AvgBudget      float64 `json:"avgBudget"`
	AvgBidAmount   float64 `json:"avgBidAmount"`
	BudgetCount    int     `json:"budgetCount"`
	BidAmountCount int     `json:"bidAmountCount"`
	TotalProjects  int     `json:"totalProjects"`
}

type AnomalyView struct {
	BudgetAnomalies   []BudgetAnomaly    `json:"budgetAnomalies"`
	TimeAnomalies     []TimeAnomaly      `json:"timeAnomalies"`
	ValueAnomalies    []ValueAnomaly     `json:"valueAnomalies"`
	DataQualityIssues []DataQualityIssue `json:"dataQualityIssues"`
	Statistics        AnomalyStatistics  `json:"statistics"`
}

func EmptyAnomaly() AnomalyView {
	return AnomalyView{
		BudgetAnomalies:   []BudgetAnomaly{},
		TimeAnomalies:     []TimeAnomaly{},
		ValueAnomalies:    []ValueAnomaly{},
		DataQualityIssues: []DataQualityIssue{},
	}
}

// Result is the full dashboard payload.
type Result struct {
	Trend       TrendView       `json:"trend"`
	Regional    RegionalView    `json:"regional"`
	Industry    IndustryView    `json:"industry"`
	Budget      BudgetView      `json:"budget"`
	TimePattern TimePatternView `json:"timePattern"`
	Keyword     KeywordView     `json:"keyword"`
	Anomaly     AnomalyView     `json:"anomaly"`
}
