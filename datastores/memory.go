package datastores

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"
)

// Memory is a [Database] keeping its collections in process memory.
type Memory struct {
	mu          sync.Mutex
	closed      bool
	collections map[string]*memCollection
}

var _ Database = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{collections: make(map[string]*memCollection)}
}

func (m *Memory) Collection(name string) Collection {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[name]
	if !ok {
		c = newMemCollection(m.closed)
		m.collections[name] = c
	}
	return c
}

// Close ends every watch. Later operations fail with [ErrClosed].
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for _, c := range m.collections {
		c.close()
	}
	return nil
}

// memCollection implements [Collection].
type memCollection struct {
	mu     sync.Mutex
	closed bool
	index  map[DocumentID]int
	docs   []*Document
	watch  *broadcaster
}

func newMemCollection(closed bool) *memCollection {
	c := &memCollection{index: make(map[DocumentID]int), watch: newBroadcaster()}
	if closed {
		c.close()
	}
	return c
}

func (c *memCollection) close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.watch.close()
}

func (c *memCollection) Add(ctx context.Context, f Fields) (DocumentID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f, err := normalizeFields(f)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrClosed
	}
	now := time.Now()
	d := &Document{Fields: f, CreateTime: now, UpdateTime: now}
retry:
	d.ID = newDocumentID()
	if _, loaded := c.index[d.ID]; loaded {
		goto retry
	}
	c.index[d.ID] = len(c.docs)
	c.docs = append(c.docs, d)
	c.mu.Unlock()

	c.watch.notify()
	return d.ID, nil
}

func (c *memCollection) Query(ctx context.Context, q Query) ([]*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := q.validate(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	return q.apply(c.docs), nil
}

func (c *memCollection) Set(ctx context.Context, id DocumentID, f Fields) error {
	return c.write(ctx, id, f, func(d *Document, f Fields, _ bool) bool {
		d.Fields = f
		return true
	})
}

func (c *memCollection) Update(ctx context.Context, id DocumentID, f Fields) error {
	return c.write(ctx, id, f, func(d *Document, f Fields, exists bool) bool {
		if !exists {
			return false
		}
		maps.Copy(d.Fields, f)
		return true
	})
}

// write applies fn to a copy of the document id, or to a new empty document
// when there is none, and stores the copy if fn reports success.
func (c *memCollection) write(ctx context.Context, id DocumentID, f Fields, fn func(d *Document, f Fields, exists bool) bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := normalizeFields(f)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	now := time.Now()
	i, ok := c.index[id]
	d := &Document{ID: id, CreateTime: now}
	if ok {
		d = c.docs[i].clone()
	}
	if !fn(d, f, ok) {
		c.mu.Unlock()
		return ErrObjectNotFound
	}
	d.UpdateTime = now
	if ok {
		c.docs[i] = d
	} else {
		c.index[id] = len(c.docs)
		c.docs = append(c.docs, d)
	}
	c.mu.Unlock()

	c.watch.notify()
	return nil
}

func (c *memCollection) Delete(ctx context.Context, id DocumentID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	index, ok := c.index[id]
	if ok {
		delete(c.index, id)
		c.docs = slices.Delete(c.docs, index, index+1)
		for i := index; i < len(c.docs); i++ {
			c.index[c.docs[i].ID] = i
		}
	}
	c.mu.Unlock()

	if ok {
		c.watch.notify()
	}
	return nil
}

func (c *memCollection) Watch(ctx context.Context, q Query) (<-chan Snapshot, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	return c.watch.watch(ctx, q, c.Query), nil
}
