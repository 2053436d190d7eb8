package repository

import "sync"

// Feed fans committed changes out to subscribers. Stores embed it and call
// Publish after a write commits and outside of any store lock.
type Feed struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(Change)
}

// Subscribe registers fn and returns a func that unregisters it.
func (f *Feed) Subscribe(fn func(Change)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subs == nil {
		f.subs = make(map[int]func(Change))
	}
	id := f.nextID
	f.nextID++
	f.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
		})
	}
}

// Publish calls every subscriber with c.
func (f *Feed) Publish(c Change) {
	f.mu.RLock()
	fns := make([]func(Change), 0, len(f.subs))
	for _, fn := range f.subs {
		fns = append(fns, fn)
	}
	f.mu.RUnlock()

	for _, fn := range fns {
		fn(c)
	}
}

// Subscribers returns how many subscribers are registered.
func (f *Feed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}
