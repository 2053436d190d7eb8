package repository

import (
	"context"
	"reflect"
	"sync"

	"github.com/okian/scoreboard/pkg/logger"
)

// Watch delivers the result of load to fn now and again after every committed
// change, skipping results equal to the last one delivered. Changes that
// arrive while a reload is running are coalesced into one more reload.
//
// fn runs on the watcher goroutine. Watch stops when ctx is done or the
// returned stop func is called; stop waits for the goroutine to exit.
func Watch[T any](ctx context.Context, s Store, load func(context.Context) (T, error), fn func(T)) (stop func(), err error) {
	last, err := load(ctx)
	if err != nil {
		return nil, err
	}
	fn(last)

	signal := make(chan struct{}, 1)
	unsubscribe := s.Subscribe(func(Change) {
		select {
		case signal <- struct{}{}:
		default:
		}
	})

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		log := logger.Get().Named("watch")
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-signal:
			}

			next, err := load(ctx)
			if err != nil {
				if ctx.Err() == nil {
					log.Warn(ctx, "reload failed", logger.Error(err))
				}
				continue
			}
			if reflect.DeepEqual(next, last) {
				continue
			}
			last = next
			fn(next)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			unsubscribe()
			close(done)
			wg.Wait()
		})
	}, nil
}
