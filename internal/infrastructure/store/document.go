package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

var (
	ErrNotFound     = errors.New("document not found")
	ErrInsufficient = errors.New("adjustment would make field negative")
	ErrRemote       = errors.New("remote store call failed")
)

// Collection names shared by every backend
const (
	CollectionProducts = "products"
	CollectionCarts    = "carts"
	CollectionInvoices = "invoices"
	CollectionSalesLog = "sales_log"
)

// Document is a JSON-shaped record. Numbers are float64, timestamps are
// Unix milliseconds.
type Document map[string]any

// SnapshotFunc receives the full document after every change, or nil once
// the document no longer exists.
type SnapshotFunc func(doc Document)

// DocumentStore is the remote document database used by every service.
type DocumentStore interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Set(ctx context.Context, collection, id string, doc Document) error
	// Update merges fields into an existing document.
	Update(ctx context.Context, collection, id string, fields Document) error
	// AtomicAdjust adds delta to a numeric field and returns the new value.
	// A negative delta that would take the field below zero fails with
	// ErrInsufficient and leaves the document untouched.
	AtomicAdjust(ctx context.Context, collection, id, field string, delta int) (int, error)
	Delete(ctx context.Context, collection, id string) error
	// Take deletes the document and returns its last stored state in one
	// step, or ErrNotFound when it did not exist.
	Take(ctx context.Context, collection, id string) (Document, error)
	Query(ctx context.Context, collection string, q Query) ([]Document, error)
	Subscribe(ctx context.Context, collection, id string, fn SnapshotFunc) (unsubscribe func(), err error)
}

// Remote wraps a backend failure so callers can detect it with errors.Is(err, ErrRemote).
func Remote(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %v", ErrRemote, op, err)
}

// Clone deep-copies a document through its JSON form, which also normalizes
// typed values (ints, structs, slices) into the shapes every backend returns.
func Clone(doc Document) (Document, error) {
	if doc == nil {
		return nil, nil
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	var out Document
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return out, nil
}

// String returns the string field or "".
func (d Document) String(field string) string {
	s, _ := d[field].(string)
	return s
}

// Int returns the numeric field truncated to int, 0 when absent or not numeric.
func (d Document) Int(field string) int {
	f, ok := Number(d[field])
	if !ok {
		return 0
	}
	return int(f)
}

// Int64 is Int for wide values such as millisecond timestamps.
func (d Document) Int64(field string) int64 {
	f, ok := Number(d[field])
	if !ok {
		return 0
	}
	return int64(f)
}

// Time reads a millisecond timestamp field.
func (d Document) Time(field string) time.Time {
	ms := d.Int64(field)
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// Strings returns a string slice field, skipping non-string entries.
func (d Document) Strings(field string) []string {
	raw, ok := d[field].([]any)
	if !ok {
		if typed, ok := d[field].([]string); ok {
			return append([]string(nil), typed...)
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Millis converts a time to the stored timestamp form.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

// Number coerces JSON-ish numeric values (including numeric strings) to float64.
// NaN and infinities are rejected.
func Number(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
