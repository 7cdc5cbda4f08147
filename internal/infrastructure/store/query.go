package store

import (
	"fmt"
	"sort"
	"strings"
)

// Op is a comparison operator for query filters.
type Op string

const (
	OpEqual        Op = "=="
	OpLess         Op = "<"
	OpLessEqual    Op = "<="
	OpGreater      Op = ">"
	OpGreaterEqual Op = ">="
	// OpContains matches when an array field holds Value.
	OpContains Op = "array-contains"
)

// Filter compares one document field against a value.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// OrderBy sorts query results on one field.
type OrderBy struct {
	Field string
	Desc  bool
}

// Query selects documents within a collection. Zero Limit means no limit.
type Query struct {
	Filters []Filter
	OrderBy []OrderBy
	Limit   int
}

// Where is a shorthand for building a single-filter query.
func Where(field string, op Op, value any) Query {
	return Query{Filters: []Filter{{Field: field, Op: op, Value: value}}}
}

func (q Query) validate() error {
	for _, f := range q.Filters {
		switch f.Op {
		case OpEqual, OpLess, OpLessEqual, OpGreater, OpGreaterEqual, OpContains:
		default:
			return fmt.Errorf("unsupported operator %q", f.Op)
		}
		if f.Field == "" {
			return fmt.Errorf("filter field is required")
		}
	}
	return nil
}

// Matches reports whether doc satisfies every filter of q.
func (q Query) Matches(doc Document) bool {
	for _, f := range q.Filters {
		if !matchFilter(doc, f) {
			return false
		}
	}
	return true
}

func matchFilter(doc Document, f Filter) bool {
	actual, ok := doc[f.Field]
	if !ok {
		return false
	}
	if f.Op == OpContains {
		list, ok := actual.([]any)
		if !ok {
			return false
		}
		for _, v := range list {
			if compare(v, f.Value) == 0 {
				return true
			}
		}
		return false
	}

	c := compare(actual, f.Value)
	switch f.Op {
	case OpEqual:
		return c == 0
	case OpLess:
		return c < 0
	case OpLessEqual:
		return c <= 0
	case OpGreater:
		return c > 0
	case OpGreaterEqual:
		return c >= 0
	}
	return false
}

// compare orders numbers numerically and everything else by string form.
func compare(a, b any) int {
	fa, okA := Number(a)
	fb, okB := Number(b)
	if okA && okB {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

// Apply filters, orders and limits docs in memory. Backends without native
// query support (and the memory store) share it.
func (q Query) Apply(docs []Document) []Document {
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if q.Matches(d) {
			out = append(out, d)
		}
	}
	if len(q.OrderBy) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			for _, o := range q.OrderBy {
				c := compare(out[i][o.Field], out[j][o.Field])
				if c == 0 {
					continue
				}
				if o.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}
