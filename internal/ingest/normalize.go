package ingest

import (
	"errors"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"tenderlens/internal/sanitize"
	"tenderlens/models"
)

// MaxLengths caps text fields in runes, keyed by upload field name.
var MaxLengths = map[string]int{
	"id":           255,
	"title":        500,
	"area":         50,
	"city":         50,
	"district":     50,
	"buyer":        300,
	"buyerClass":   100,
	"industry":     100,
	"subtype":      100,
	"winner":       300,
	"buyerTel":     50,
	"buyerPerson":  50,
	"agency":       300,
	"agencyTel":    50,
	"agencyPerson": 50,
	"site":         255,
}

var errBadPublishTime = errors.New("publishTime is not a valid timestamp")

const dateLayout = "2006-01-02"

type normalizer struct {
	loc       *time.Location
	rec       models.TenderRecord
	warnings  []sanitize.Warning
	truncated int
}

// Normalize turns one validated upload record into a TenderRecord. Fields
// that cannot be cleaned are dropped with a warning; a record whose
// publishTime cannot be read is rejected.
func Normalize(raw map[string]any, loc *time.Location) (models.TenderRecord, []sanitize.Warning, int, error) {
	if loc == nil {
		loc = time.UTC
	}
	n := &normalizer{loc: loc}

	n.rec.ID = decodeID(n.text(raw, "id"))
	n.rec.Title = n.text(raw, "title")
	n.rec.Area = n.text(raw, "area")
	n.rec.City = n.text(raw, "city")
	n.rec.District = n.text(raw, "district")
	n.rec.Buyer = n.text(raw, "buyer")
	n.rec.BuyerClass = n.text(raw, "buyerClass")
	n.rec.Industry = n.text(raw, "industry")
	n.rec.Subtype = n.text(raw, "subtype")
	n.rec.Winner = n.text(raw, "winner")
	n.rec.BuyerTel = n.text(raw, "buyerTel")
	n.rec.BuyerPerson = n.text(raw, "buyerPerson")
	n.rec.Agency = n.text(raw, "agency")
	n.rec.AgencyTel = n.text(raw, "agencyTel")
	n.rec.AgencyPerson = n.text(raw, "agencyPerson")
	n.rec.Site = n.text(raw, "site")
	n.rec.Detail = sanitize.Stringify(raw["detail"])

	publish := n.timestamp(raw, "publishTime")
	if publish == nil {
		return models.TenderRecord{}, n.warnings, n.truncated, errBadPublishTime
	}
	n.rec.PublishTime = *publish
	n.rec.BidOpenTime = n.timestamp(raw, "bidOpenTime")
	n.rec.BidEndTime = n.timestamp(raw, "bidEndTime")
	n.rec.SignEndTime = n.timestamp(raw, "signEndTime")

	n.rec.Budget = n.amount(raw, "budget")
	n.rec.BidAmount = n.amount(raw, "bidAmount")

	return n.rec, n.warnings, n.truncated, nil
}

func (n *normalizer) warn(field string, raw any, reason string) {
	n.warnings = append(n.warnings, sanitize.Warning{
		Field:  field,
		Value:  sanitize.TruncateField(raw, 64),
		Reason: reason,
	})
}

func (n *normalizer) text(raw map[string]any, field string) string {
	v, ok := raw[field]
	if !ok || v == nil {
		return ""
	}
	s := strings.TrimSpace(sanitize.Stringify(v))
	limit := MaxLengths[field]
	if utf8.RuneCountInString(s) > limit {
		n.truncated++
	}
	return sanitize.TruncateField(s, limit)
}

// timestamp returns nil for absent values. Parsed values also record the
// original input in the source metadata.
func (n *normalizer) timestamp(raw map[string]any, field string) *int64 {
	v := raw[field]
	if !present(v) {
		return nil
	}
	secs, ok := sanitize.CleanTimestampIn(v, n.loc)
	if !ok {
		n.warn(field, v, "unreadable or out-of-range timestamp")
		return nil
	}
	if n.rec.Meta == nil {
		n.rec.Meta = models.SourceMeta{}
	}
	n.rec.Meta[field] = models.DateSource{
		Original:  sanitize.Stringify(v),
		Formatted: time.Unix(secs, 0).In(n.loc).Format(dateLayout),
	}
	return &secs
}

// amount treats zero like an absent value.
func (n *normalizer) amount(raw map[string]any, field string) decimal.NullDecimal {
	v := raw[field]
	if !present(v) {
		return decimal.NullDecimal{}
	}
	d, ok := sanitize.CleanAmount(v)
	if !ok {
		n.warn(field, v, "not a valid amount")
		return decimal.NullDecimal{}
	}
	if d.IsZero() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

// decodeID undoes percent-encoding left over from scraped URLs.
func decodeID(id string) string {
	if !strings.Contains(id, "%") {
		return id
	}
	decoded, err := url.PathUnescape(id)
	if err != nil {
		return id
	}
	return decoded
}
