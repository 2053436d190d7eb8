package worker_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	queue "github.com/okian/scoreboard/internal/adapters/mq/queue"
	worker "github.com/okian/scoreboard/internal/adapters/mq/worker"
	logging "github.com/okian/scoreboard/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logging.Init()
}

// recorder checks that no two commands ever run at once.
type recorder struct {
	mu      sync.Mutex
	running atomic.Int32
	overlap atomic.Bool
	order   []string
}

func (r *recorder) Execute(ctx context.Context, cmd queue.Command) (any, error) {
	if r.running.Add(1) > 1 {
		r.overlap.Store(true)
	}
	defer r.running.Add(-1)

	time.Sleep(time.Millisecond)
	r.mu.Lock()
	r.order = append(r.order, cmd.Kind)
	r.mu.Unlock()

	switch cmd.Kind {
	case "fail":
		return nil, errors.New("boom")
	case "panic":
		panic("executor bug")
	}
	return "done:" + cmd.Kind, nil
}

func await(c queue.Command) queue.Result {
	select {
	case r := <-c.Reply:
		return r
	case <-time.After(2 * time.Second):
		return queue.Result{Err: errors.New("no reply")}
	}
}

func TestWorker(t *testing.T) {
	convey.Convey("Given a running worker", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		q := queue.NewInMemoryQueue(queue.WithCapacity(64))
		rec := &recorder{}
		w := worker.NewWorker(q, rec, worker.WithName("test"))
		go w.Run(ctx)

		convey.Convey("When many commands are enqueued concurrently", func() {
			var cmds []queue.Command
			var mu sync.Mutex
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					c := queue.NewCommand("write", nil, time.Time{})
					if q.Enqueue(ctx, c) == nil {
						mu.Lock()
						cmds = append(cmds, c)
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			convey.Convey("Then each gets a reply and none overlapped", func() {
				for _, c := range cmds {
					r := await(c)
					convey.So(r.Err, convey.ShouldBeNil)
					convey.So(r.Value, convey.ShouldEqual, "done:write")
				}
				convey.So(cmds, convey.ShouldHaveLength, 20)
				convey.So(rec.overlap.Load(), convey.ShouldBeFalse)
			})
		})

		convey.Convey("When the executor fails", func() {
			c := queue.NewCommand("fail", nil, time.Time{})
			convey.So(q.Enqueue(ctx, c), convey.ShouldBeNil)

			convey.Convey("Then the error is the reply", func() {
				r := await(c)
				convey.So(r.Err, convey.ShouldNotBeNil)
				convey.So(r.Err.Error(), convey.ShouldEqual, "boom")
			})
		})

		convey.Convey("When the executor panics", func() {
			c := queue.NewCommand("panic", nil, time.Time{})
			next := queue.NewCommand("after", nil, time.Time{})
			convey.So(q.Enqueue(ctx, c), convey.ShouldBeNil)
			convey.So(q.Enqueue(ctx, next), convey.ShouldBeNil)

			convey.Convey("Then the worker survives and keeps going", func() {
				convey.So(errors.Is(await(c).Err, worker.ErrPanic), convey.ShouldBeTrue)
				convey.So(await(next).Err, convey.ShouldBeNil)
			})
		})

		convey.Convey("When a command's deadline has already passed", func() {
			c := queue.NewCommand("late", nil, time.Now().Add(-time.Second))
			convey.So(q.Enqueue(ctx, c), convey.ShouldBeNil)

			convey.Convey("Then it is skipped", func() {
				convey.So(errors.Is(await(c).Err, worker.ErrExpired), convey.ShouldBeTrue)
				rec.mu.Lock()
				defer rec.mu.Unlock()
				convey.So(rec.order, convey.ShouldNotContain, "late")
			})
		})

		convey.Convey("When the queue is closed with work pending", func() {
			c := queue.NewCommand("last", nil, time.Time{})
			convey.So(q.Enqueue(ctx, c), convey.ShouldBeNil)
			convey.So(q.Close(), convey.ShouldBeNil)

			convey.Convey("Then shutdown drains it first", func() {
				sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer scancel()
				convey.So(w.Shutdown(sctx), convey.ShouldBeNil)
				convey.So(await(c).Value, convey.ShouldEqual, "done:last")
			})
		})
	})

	convey.Convey("Given a worker blocked on a slow command", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(4))
		release := make(chan struct{})
		running := make(chan struct{})
		w := worker.NewWorker(q, worker.ExecutorFunc(func(ctx context.Context, cmd queue.Command) (any, error) {
			if cmd.Kind == "slow" {
				close(running)
				<-release
			}
			return nil, nil
		}))
		go w.Run(context.Background())

		slow := queue.NewCommand("slow", nil, time.Time{})
		pending := queue.NewCommand("pending", nil, time.Time{})
		convey.So(q.Enqueue(context.Background(), slow), convey.ShouldBeNil)
		convey.So(q.Enqueue(context.Background(), pending), convey.ShouldBeNil)
		<-running

		convey.Convey("When shutdown times out", func() {
			sctx, scancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
			defer scancel()
			go func() {
				time.Sleep(50 * time.Millisecond)
				close(release)
			}()
			err := w.Shutdown(sctx)

			convey.Convey("Then it reports the timeout and abandons the rest", func() {
				convey.So(errors.Is(err, context.DeadlineExceeded), convey.ShouldBeTrue)
				convey.So(errors.Is(await(pending).Err, worker.ErrStopped), convey.ShouldBeTrue)
			})
		})
	})
}
