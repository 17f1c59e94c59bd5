package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"tenderlens/internal/sanitize"
)

var (
	ErrInvalidPayload = errors.New("invalid upload payload")

	ErrNotArray       = fmt.Errorf("%w: data must be an array", ErrInvalidPayload)
	ErrEmptyData      = fmt.Errorf("%w: data array is empty", ErrInvalidPayload)
	ErrNoValidRecords = fmt.Errorf("%w: no record has id, title, area, buyer and publishTime", ErrInvalidPayload)
)

// RequiredFields must be present and non-empty on every imported record.
var RequiredFields = []string{"id", "title", "area", "buyer", "publishTime"}

// Validation summarizes an upload before any record is cleaned.
type Validation struct {
	Total        int
	Valid        int
	Invalid      int
	Unique       int
	Duplicates   int
	DuplicateIDs []string
	Records      []map[string]any
}

// Validate checks the shape of a decoded upload. Duplicate ids are counted
// across the whole array, valid or not; duplicates are still imported and the
// last occurrence wins.
func Validate(data any) (*Validation, error) {
	items, ok := data.([]any)
	if !ok {
		return nil, ErrNotArray
	}
	if len(items) == 0 {
		return nil, ErrEmptyData
	}

	v := &Validation{Total: len(items)}
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		rec, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if hasRequired(rec) {
			v.Records = append(v.Records, rec)
		}
		if !present(rec["id"]) {
			continue
		}
		id := sanitize.Stringify(rec["id"])
		if _, dup := seen[id]; dup {
			v.DuplicateIDs = append(v.DuplicateIDs, id)
			continue
		}
		seen[id] = struct{}{}
	}
	if len(v.Records) == 0 {
		return nil, ErrNoValidRecords
	}

	v.Valid = len(v.Records)
	v.Invalid = v.Total - v.Valid
	v.Unique = len(seen)
	v.Duplicates = len(v.DuplicateIDs)
	return v, nil
}

func hasRequired(rec map[string]any) bool {
	for _, f := range RequiredFields {
		if !present(rec[f]) {
			return false
		}
	}
	return true
}

// present treats zero numbers, false and blank strings as missing.
func present(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(x) != ""
	case json.Number:
		f, err := x.Float64()
		return err != nil || f != 0
	case float64:
		return x != 0
	case bool:
		return x
	default:
		return true
	}
}
