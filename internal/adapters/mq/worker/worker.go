// Package worker runs queued admin commands one at a time. Exactly one
// worker consumes the command queue, so writes never interleave.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/scoreboard/internal/adapters/mq/queue"
	"github.com/okian/scoreboard/pkg/logger"
	"github.com/okian/scoreboard/pkg/metrics"
)

// Executor performs one command. The worker owns ordering; executors only
// see one command at a time.
type Executor interface {
	Execute(ctx context.Context, cmd queue.Command) (any, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, cmd queue.Command) (any, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, cmd queue.Command) (any, error) {
	return f(ctx, cmd)
}

// Queue defines how the worker receives commands.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Command
}

// Worker is the single writer.
type Worker struct {
	queue Queue
	exec  Executor
	name  string
	now   func() time.Time

	started      atomic.Bool
	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewWorker creates a new worker with configuration options.
func NewWorker(q Queue, exec Executor, opts ...Option) *Worker {
	w := &Worker{
		queue:    q,
		exec:     exec,
		name:     "writer",
		now:      time.Now,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(logger.String("worker", w.name))
	return w
}

// Run consumes commands until the queue is closed and drained, ctx is
// cancelled, or Shutdown gives up waiting.
func (w *Worker) Run(ctx context.Context) {
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	defer close(w.done)

	commands := w.queue.Dequeue(ctx)
	for {
		// A stop request wins over queued work.
		select {
		case <-ctx.Done():
			w.abandon(commands, ctx.Err())
			return
		case <-w.shutdown:
			w.abandon(commands, ErrStopped)
			return
		default:
		}

		select {
		case <-ctx.Done():
			w.abandon(commands, ctx.Err())
			return
		case <-w.shutdown:
			w.abandon(commands, ErrStopped)
			return
		case cmd, ok := <-commands:
			if !ok {
				return
			}
			w.process(ctx, cmd)
		}
	}
}

// Shutdown waits for Run to drain a closed queue. If ctx expires first the
// worker is stopped and pending commands are answered with ErrStopped.
func (w *Worker) Shutdown(ctx context.Context) error {
	if !w.started.Load() {
		return nil
	}
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.shutdownOnce.Do(func() { close(w.shutdown) })
		w.logger.Warn(ctx, "shutdown timed out")
		<-w.done
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Done is closed when Run has returned.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

func (w *Worker) process(ctx context.Context, cmd queue.Command) {
	start := w.now()
	metrics.UpdateQueueSize(len(w.queue.Dequeue(ctx)))

	if !cmd.Deadline.IsZero() && !start.Before(cmd.Deadline) {
		w.reply(cmd, queue.Result{Err: ErrExpired})
		metrics.RecordCommand(cmd.Kind, "expired", 0)
		w.logger.Warn(ctx, "command expired before it ran",
			logger.String("command_id", cmd.ID),
			logger.String("kind", cmd.Kind),
			logger.Duration("waited", start.Sub(cmd.EnqueuedAt)),
		)
		return
	}

	runCtx := ctx
	if !cmd.Deadline.IsZero() {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithDeadline(ctx, cmd.Deadline)
		defer cancel()
	}

	value, err := w.safeExecute(runCtx, cmd)
	latency := float64(w.now().Sub(start).Microseconds()) / 1000

	status := "ok"
	if err != nil {
		status = "error"
		w.logger.Debug(ctx, "command failed",
			logger.String("command_id", cmd.ID),
			logger.String("kind", cmd.Kind),
			logger.Error(err),
		)
	}
	metrics.RecordCommand(cmd.Kind, status, latency)
	w.reply(cmd, queue.Result{Value: value, Err: err})
}

// safeExecute keeps a panicking executor from killing the only writer.
func (w *Worker) safeExecute(ctx context.Context, cmd queue.Command) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error(ctx, "command panicked",
				logger.String("command_id", cmd.ID),
				logger.String("kind", cmd.Kind),
				logger.Any("panic", r),
			)
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return w.exec.Execute(ctx, cmd)
}

func (w *Worker) reply(cmd queue.Command, r queue.Result) {
	if cmd.Reply == nil {
		return
	}
	select {
	case cmd.Reply <- r:
	default:
	}
}

// abandon answers whatever is still buffered without running it.
func (w *Worker) abandon(commands <-chan queue.Command, cause error) {
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		cause = fmt.Errorf("%w: %v", ErrStopped, cause)
	}
	for {
		select {
		case cmd, ok := <-commands:
			if !ok {
				return
			}
			w.reply(cmd, queue.Result{Err: cause})
		default:
			return
		}
	}
}
