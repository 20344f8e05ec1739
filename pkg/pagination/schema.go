package pagination

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/Sternrassler/apipager/pkg/client"
)

// Schema maps the logical pagination fields to the names a specific API uses.
type Schema struct {
	PageNumber   string `yaml:"page_number"`
	PageLimit    string `yaml:"page_limit"`
	TotalRecords string `yaml:"total_records"`
	Records      string `yaml:"records"`
}

// DefaultSchema returns the field names used when an API does not say otherwise.
func DefaultSchema() Schema {
	return Schema{
		PageNumber:   "page",
		PageLimit:    "limit",
		TotalRecords: "total",
		Records:      "records",
	}
}

// Validate checks that every logical field is mapped.
func (s Schema) Validate() error {
	fields := map[string]string{
		"page_number":   s.PageNumber,
		"page_limit":    s.PageLimit,
		"total_records": s.TotalRecords,
		"records":       s.Records,
	}
	for logical, actual := range fields {
		if actual == "" {
			return fmt.Errorf("%w: schema field %s is not mapped", client.ErrInvalidArgument, logical)
		}
	}
	return nil
}

// Record is one opaque JSON object from a records list.
type Record map[string]any

// Page is one parsed response.
type Page struct {
	Records []Record

	// PageNumber, Limit and TotalRecords are zero when the response omits them.
	PageNumber   int
	Limit        int
	TotalRecords int

	// SchemaMismatch is set when the records field was absent or not a list.
	SchemaMismatch bool

	// Skipped counts records-list items that were not JSON objects.
	Skipped int
}

// ParsePage decodes a response body using schema. A body that is not JSON is
// a decode error. Missing pagination fields are not: they leave the page
// with zero values and, for the records list, SchemaMismatch set. A top-level
// JSON array is taken as the records list of a page without totals. Data
// after the first JSON value makes the body invalid.
func ParsePage(body []byte, schema Schema) (*Page, error) {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, &client.RequestError{Kind: client.KindDecode, Err: err}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		if err == nil {
			err = errors.New("unexpected data after JSON value")
		}
		return nil, &client.RequestError{Kind: client.KindDecode, Err: err}
	}

	switch v := doc.(type) {
	case []any:
		page := &Page{}
		page.Records, page.Skipped = toRecords(v)
		return page, nil
	case map[string]any:
		page := &Page{
			PageNumber:   intField(v, schema.PageNumber),
			Limit:        intField(v, schema.PageLimit),
			TotalRecords: intField(v, schema.TotalRecords),
		}
		if records, ok := v[schema.Records].([]any); ok {
			page.Records, page.Skipped = toRecords(records)
		} else {
			page.SchemaMismatch = true
		}
		return page, nil
	default:
		return &Page{SchemaMismatch: true}, nil
	}
}

// toRecords keeps the object items of a JSON list, in order, and reports
// how many items it dropped.
func toRecords(items []any) ([]Record, int) {
	records := make([]Record, 0, len(items))
	for _, item := range items {
		if obj, ok := item.(map[string]any); ok {
			records = append(records, Record(obj))
		}
	}
	return records, len(items) - len(records)
}

// intField reads a numeric field, accepting JSON numbers and numeric strings.
// Anything else, including values outside the int range, reads as 0.
func intField(obj map[string]any, field string) int {
	if field == "" {
		return 0
	}
	switch v := obj[field].(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil && n >= math.MinInt && n <= math.MaxInt {
			return int(n)
		}
		if f, err := v.Float64(); err == nil && f > math.MinInt && f < math.MaxInt {
			return int(f)
		}
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}

// TotalPages computes 1 + floor(total/limit), capped at math.MaxInt. It
// returns 0 (unknown) when either input is not positive.
func TotalPages(total, limit int) int {
	if total <= 0 || limit <= 0 {
		return 0
	}
	q := total / limit
	if q == math.MaxInt {
		return q
	}
	return 1 + q
}
