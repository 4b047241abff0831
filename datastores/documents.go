// Package datastores is a small document database: named collections of
// schemaless documents keyed by opaque generated identifiers, equality
// queries with ordering, and realtime snapshot subscriptions.
package datastores

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math"
	"regexp"
	"time"
)

type (
	// DocumentID is the opaque identifier the store assigns to a document.
	DocumentID string

	// Fields is the content of a document.
	Fields map[string]any

	Document struct {
		ID         DocumentID
		Fields     Fields
		CreateTime time.Time
		UpdateTime time.Time
	}
)

// Get returns the value of field name, or nil if the document lacks it.
func (d *Document) Get(name string) any { return d.Fields[name] }

func (d *Document) clone() *Document {
	c := *d
	c.Fields = maps.Clone(d.Fields)
	return &c
}

type (
	// Filter matches documents whose Field equals Value.
	Filter struct {
		Field string
		Value any
	}

	Order struct {
		Field string
		Desc  bool
	}

	// Query selects documents of a collection. The zero Query selects all of
	// them ordered by document id.
	Query struct {
		Where   []Filter
		OrderBy []Order
		Limit   int
	}
)

// Snapshot is the full result of a watched query at ReadTime.
type Snapshot struct {
	Documents []*Document
	ReadTime  time.Time
	Err       error
}

type Collection interface {
	// Add stores f under a freshly generated identifier.
	Add(ctx context.Context, f Fields) (DocumentID, error)
	Query(ctx context.Context, q Query) ([]*Document, error)
	// Set replaces the whole content of the document, creating it if needed.
	Set(ctx context.Context, id DocumentID, f Fields) error
	// Update merges f into an existing document.
	Update(ctx context.Context, id DocumentID, f Fields) error
	Delete(ctx context.Context, id DocumentID) error
	// Watch delivers a snapshot of q now and after every change to the
	// collection, until ctx is done. The channel is then closed.
	Watch(ctx context.Context, q Query) (<-chan Snapshot, error)
}

type Database interface {
	Collection(name string) Collection
	Close() error
}

var (
	ErrObjectNotFound   = errors.New("store: object not found")
	ErrInvalidQuery     = errors.New("store: invalid query")
	ErrUnsupportedValue = errors.New("store: unsupported value")
	ErrClosed           = errors.New("store: closed")
)

var fieldName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func (q *Query) validate() error {
	for _, f := range q.Where {
		if !fieldName.MatchString(f.Field) {
			return fmt.Errorf("%w: field %q", ErrInvalidQuery, f.Field)
		}
		if _, err := normalize(f.Value); err != nil {
			return err
		}
	}
	for _, o := range q.OrderBy {
		if !fieldName.MatchString(o.Field) {
			return fmt.Errorf("%w: field %q", ErrInvalidQuery, o.Field)
		}
	}
	if q.Limit < 0 {
		return fmt.Errorf("%w: negative limit", ErrInvalidQuery)
	}
	return nil
}

// normalizeFields returns a copy of f holding only the canonical value types:
// nil, bool, string, int64 and float64.
func normalizeFields(f Fields) (Fields, error) {
	out := make(Fields, len(f))
	for k, v := range f {
		if !fieldName.MatchString(k) {
			return nil, fmt.Errorf("%w: field name %q", ErrUnsupportedValue, k)
		}
		n, err := normalize(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = n
	}
	return out, nil
}

func normalize(v any) (any, error) {
	switch v := v.(type) {
	case nil, bool, string, int64, float64:
		return v, nil
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint:
		if uint64(v) > math.MaxInt64 {
			return nil, fmt.Errorf("%w: %d overflows int64", ErrUnsupportedValue, v)
		}
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return nil, fmt.Errorf("%w: %d overflows int64", ErrUnsupportedValue, v)
		}
		return int64(v), nil
	case float32:
		return float64(v), nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
}

// Int64 converts a numeric field value to int64. Floats are accepted when
// they hold an integral value.
func Int64(v any) (int64, bool) {
	switch v := v.(type) {
	case int64:
		return v, true
	case float64:
		if v != math.Trunc(v) || v < math.MinInt64 || v >= math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	default:
		n, err := normalize(v)
		if err != nil {
			return 0, false
		}
		i, ok := n.(int64)
		return i, ok
	}
}
