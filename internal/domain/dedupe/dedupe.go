// Package dedupe remembers the outcome of admin writes by idempotency key so
// a retried request replays the first result instead of writing twice.
package dedupe

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
)

// Deduper maps an idempotency key to the id of the record it produced.
type Deduper interface {
	// Lookup returns the recorded result for key, if any.
	Lookup(ctx context.Context, key string) (string, bool)

	// Record stores result under key. Recording an existing key keeps the
	// first result.
	Record(ctx context.Context, key, result string)

	// Forget drops key so a later request with it runs again.
	Forget(ctx context.Context, key string)

	// ForgetResult drops every key whose recorded result is result. Used
	// when the record it names is deleted.
	ForgetResult(ctx context.Context, result string)

	Size() int64
}

type entry struct {
	key    string
	result string
}

// inMemoryDeduper keeps at most maxSize keys and evicts the oldest first.
// maxSize <= 0 means unbounded.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List // front = oldest
	maxSize int
	size    atomic.Int64
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: 10000,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]*list.Element)
	d.order = list.New()
	return d
}

func (d *inMemoryDeduper) Lookup(_ context.Context, key string) (string, bool) {
	if key == "" {
		return "", false
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	el, ok := d.seen[key]
	if !ok {
		return "", false
	}
	return el.Value.(*entry).result, true
}

func (d *inMemoryDeduper) Record(_ context.Context, key, result string) {
	if key == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.seen[key]; exists {
		return
	}
	if d.maxSize > 0 && len(d.seen) >= d.maxSize {
		d.evictOldest()
	}
	d.seen[key] = d.order.PushBack(&entry{key: key, result: result})
	d.size.Add(1)
}

func (d *inMemoryDeduper) Forget(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, exists := d.seen[key]; exists {
		d.remove(el)
	}
}

func (d *inMemoryDeduper) ForgetResult(_ context.Context, result string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for el := d.order.Front(); el != nil; {
		next := el.Next()
		if el.Value.(*entry).result == result {
			d.remove(el)
		}
		el = next
	}
}

// evictOldest must be called with d.mu held.
func (d *inMemoryDeduper) evictOldest() {
	if el := d.order.Front(); el != nil {
		d.remove(el)
	}
}

func (d *inMemoryDeduper) remove(el *list.Element) {
	d.order.Remove(el)
	delete(d.seen, el.Value.(*entry).key)
	d.size.Add(-1)
}

// Size returns the current number of entries in the deduper.
func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
