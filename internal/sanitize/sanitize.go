// Package sanitize normalizes raw tender fields before they reach storage or
// aggregation. All functions are pure.
package sanitize

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/width"
)

const (
	// MillisecondThreshold separates second and millisecond epoch values.
	MillisecondThreshold = 10_000_000_000
	MinYear              = 1990
	MaxYear              = 2050
)

// MaxAmount is the sanity ceiling for budget and bid amounts (base currency unit).
var MaxAmount = decimal.NewFromInt(10_000_000_000)

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02",
	"2006/01/02 15:04:05",
	time.RFC3339,
}

// Warning is a non-fatal cleaning problem. The offending field is dropped and
// the record continues without it.
type Warning struct {
	Field  string `json:"field"`
	Value  string `json:"value"`
	Reason string `json:"reason"`
}

func (w Warning) Error() string {
	return fmt.Sprintf("field %s: %s (%q)", w.Field, w.Reason, w.Value)
}

// CleanTimestamp converts a raw timestamp to unix seconds. Date strings are
// read as UTC.
func CleanTimestamp(raw any) (int64, bool) {
	return CleanTimestampIn(raw, time.UTC)
}

// CleanTimestampIn is CleanTimestamp with date strings read in loc.
func CleanTimestampIn(raw any, loc *time.Location) (int64, bool) {
	if loc == nil {
		loc = time.UTC
	}
	var secs float64
	switch v := raw.(type) {
	case nil:
		return 0, false
	case float64:
		secs = v
	case float32:
		secs = float64(v)
	case int:
		secs = float64(v)
	case int64:
		secs = float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		secs = f
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, false
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			secs = f
			break
		}
		t, ok := parseDateString(s, loc)
		if !ok {
			return 0, false
		}
		return checkYear(t.Unix())
	default:
		return 0, false
	}
	if math.IsNaN(secs) || math.IsInf(secs, 0) {
		return 0, false
	}
	if math.Abs(secs) > MillisecondThreshold {
		secs /= 1000
	}
	return checkYear(int64(math.Floor(secs)))
}

func parseDateString(s string, loc *time.Location) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if layout == time.RFC3339 {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
			continue
		}
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func checkYear(secs int64) (int64, bool) {
	year := time.Unix(secs, 0).UTC().Year()
	if year < MinYear || year > MaxYear {
		return 0, false
	}
	return secs, true
}

// CleanAmount parses a currency amount. Strings lose every character except
// digits, the decimal point and a leading minus; full-width digits are folded
// to ASCII first.
func CleanAmount(raw any) (decimal.Decimal, bool) {
	var d decimal.Decimal
	switch v := raw.(type) {
	case nil:
		return decimal.Zero, false
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return decimal.Zero, false
		}
		d = decimal.NewFromFloat(v)
	case float32:
		return CleanAmount(float64(v))
	case int:
		d = decimal.NewFromInt(int64(v))
	case int64:
		d = decimal.NewFromInt(v)
	case decimal.Decimal:
		d = v
	case json.Number:
		parsed, err := decimal.NewFromString(v.String())
		if err != nil {
			return decimal.Zero, false
		}
		d = parsed
	case string:
		digits := numericOnly(width.Narrow.String(strings.TrimSpace(v)))
		if digits == "" || digits == "-" || digits == "." {
			return decimal.Zero, false
		}
		parsed, err := decimal.NewFromString(digits)
		if err != nil {
			return decimal.Zero, false
		}
		d = parsed
	default:
		return decimal.Zero, false
	}
	if d.IsNegative() || d.GreaterThan(MaxAmount) {
		return decimal.Zero, false
	}
	return d, true
}

func numericOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.':
			b.WriteRune(r)
		case r == '-' && b.Len() == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// TruncateField coerces raw to a string and cuts it to maxLen runes.
// Truncation is silent and lossy; callers that care compare lengths.
func TruncateField(raw any, maxLen int) string {
	s := Stringify(raw)
	if maxLen <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	n := 0
	for i := range s {
		if n == maxLen {
			return s[:i]
		}
		n++
	}
	return s
}

// Stringify renders JSON-decoded scalars without float noise.
func Stringify(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}
