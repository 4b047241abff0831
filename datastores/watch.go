package datastores

import (
	"context"
	"sync"
	"time"
)

// broadcaster wakes the watchers of a collection after every change.
// A watcher re-runs its query when woken, so bursts of changes collapse into
// a single snapshot of the latest state.
type broadcaster struct {
	mu       sync.Mutex
	watchers map[*watcher]struct{}
	quit     chan struct{}
	closed   bool
}

func newBroadcaster() *broadcaster {
	return &broadcaster{watchers: make(map[*watcher]struct{}), quit: make(chan struct{})}
}

// close ends every watch.
func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.quit)
	}
}

func (b *broadcaster) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

type watcher struct{ dirty chan struct{} }

func (b *broadcaster) add(w *watcher) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.watchers[w] = struct{}{}
}

func (b *broadcaster) remove(w *watcher) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.watchers, w)
}

func (b *broadcaster) notify() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for w := range b.watchers {
		select {
		case w.dirty <- struct{}{}:
		default:
		}
	}
}

// watch runs query for q on every notification and sends the result to the
// returned channel until ctx is done.
func (b *broadcaster) watch(
	ctx context.Context,
	q Query,
	query func(context.Context, Query) ([]*Document, error),
) <-chan Snapshot {
	w := &watcher{dirty: make(chan struct{}, 1)}
	w.dirty <- struct{}{}
	b.add(w)

	out := make(chan Snapshot)
	go func() {
		defer close(out)
		defer b.remove(w)
		for {
			select {
			case <-ctx.Done():
				return
			case <-b.quit:
				return
			case <-w.dirty:
			}

			docs, err := query(ctx, q)
			if ctx.Err() != nil {
				return
			}
			select {
			case out <- Snapshot{Documents: docs, ReadTime: time.Now(), Err: err}:
			case <-ctx.Done():
				return
			case <-b.quit:
				return
			}
		}
	}()
	return out
}
