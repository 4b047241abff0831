package datastores

import (
	"cmp"
	"slices"
	"strings"
)

// rank orders values of different types: null < bool < number < string.
func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case int64, float64:
		return 2 //nolint: mnd // value type order
	case string:
		return 3 //nolint: mnd // value type order
	default:
		return 4 //nolint: mnd // value type order
	}
}

// compareValues compares two normalized values. Numbers compare by value
// regardless of their integer or float representation.
func compareValues(a, b any) int {
	if c := cmp.Compare(rank(a), rank(b)); c != 0 {
		return c
	}
	switch a := a.(type) {
	case bool:
		b := b.(bool) //nolint: errcheck // same rank
		switch {
		case a == b:
			return 0
		case !a:
			return -1
		default:
			return 1
		}
	case int64:
		if b, ok := b.(int64); ok {
			return cmp.Compare(a, b)
		}
		return cmp.Compare(float64(a), b.(float64)) //nolint: errcheck // same rank
	case float64:
		if b, ok := b.(int64); ok {
			return cmp.Compare(a, float64(b))
		}
		return cmp.Compare(a, b.(float64)) //nolint: errcheck // same rank
	case string:
		return strings.Compare(a, b.(string)) //nolint: errcheck // same rank
	}
	return 0
}

func (q *Query) matches(d *Document) bool {
	for _, f := range q.Where {
		v, ok := d.Fields[f.Field]
		if !ok {
			return false
		}
		want, _ := normalize(f.Value)
		if compareValues(v, want) != 0 {
			return false
		}
	}
	for _, o := range q.OrderBy {
		if _, ok := d.Fields[o.Field]; !ok {
			return false
		}
	}
	return true
}

func (q *Query) compare(a, b *Document) int {
	for _, o := range q.OrderBy {
		c := compareValues(a.Fields[o.Field], b.Fields[o.Field])
		if o.Desc {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return strings.Compare(string(a.ID), string(b.ID))
}

// apply filters, sorts and limits docs. The result holds copies.
func (q *Query) apply(docs []*Document) []*Document {
	out := make([]*Document, 0, len(docs))
	for _, d := range docs {
		if d != nil && q.matches(d) {
			out = append(out, d.clone())
		}
	}
	slices.SortFunc(out, q.compare)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}
