// Package saga runs a multi-write operation as ordered steps, each with a
// compensating action that undoes it when a later step fails.
package saga

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/scoreboard/pkg/logger"
	"github.com/okian/scoreboard/pkg/metrics"
)

// ErrCompensationFailed means a rollback did not complete; the written state
// is partial and only the consistency checker will surface it.
var ErrCompensationFailed = errors.New("saga compensation failed")

// Step is one physical write plus its inverse. Compensate may be nil for a
// step that needs no undo.
type Step struct {
	Name       string
	Do         func(ctx context.Context) error
	Compensate func(ctx context.Context) error
}

// Error describes a failed saga.
type Error struct {
	Saga       string
	Step       string
	Cause      error
	Undo       []error // compensation failures, in the order they happened
	RolledBack int     // steps successfully compensated
}

func (e *Error) Error() string {
	if len(e.Undo) > 0 {
		return fmt.Sprintf("saga %s: step %s: %v (rollback incomplete: %v)", e.Saga, e.Step, e.Cause, errors.Join(e.Undo...))
	}
	return fmt.Sprintf("saga %s: step %s: %v", e.Saga, e.Step, e.Cause)
}

// Unwrap exposes the cause and, when rollback failed, ErrCompensationFailed.
func (e *Error) Unwrap() []error {
	if len(e.Undo) > 0 {
		return []error{e.Cause, ErrCompensationFailed}
	}
	return []error{e.Cause}
}

// Saga is an ordered list of steps.
type Saga struct {
	name   string
	steps  []Step
	logger logger.Logger
}

// Option configures a Saga.
type Option func(*Saga)

// WithLogger sets the logger used for rollback reports.
func WithLogger(l logger.Logger) Option {
	return func(s *Saga) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates an empty saga.
func New(name string, opts ...Option) *Saga {
	s := &Saga{name: name}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("saga")
	}
	return s
}

// Add appends a step.
func (s *Saga) Add(step Step) *Saga {
	s.steps = append(s.steps, step)
	return s
}

// Len returns the number of steps.
func (s *Saga) Len() int { return len(s.steps) }

// Run executes steps in order. When a step fails the completed ones are
// compensated in reverse order. Compensation runs even if ctx is already
// done, so a cancelled caller does not strand a half-written operation.
func (s *Saga) Run(ctx context.Context) error {
	for i, step := range s.steps {
		if err := ctx.Err(); err != nil {
			return s.rollback(ctx, i, step.Name, err)
		}
		if err := step.Do(ctx); err != nil {
			return s.rollback(ctx, i, step.Name, err)
		}
	}
	return nil
}

func (s *Saga) rollback(ctx context.Context, failed int, stepName string, cause error) error {
	sagaErr := &Error{Saga: s.name, Step: stepName, Cause: cause}
	metrics.RecordSagaCompensation(s.name)

	undoCtx := context.WithoutCancel(ctx)
	for i := failed - 1; i >= 0; i-- {
		step := s.steps[i]
		if step.Compensate == nil {
			sagaErr.RolledBack++
			continue
		}
		if err := step.Compensate(undoCtx); err != nil {
			sagaErr.Undo = append(sagaErr.Undo, fmt.Errorf("undo %s: %w", step.Name, err))
			continue
		}
		sagaErr.RolledBack++
	}

	if len(sagaErr.Undo) > 0 {
		metrics.RecordSagaCompensationFailure(s.name)
		s.logger.Error(ctx, "saga rollback incomplete; stored aggregates may drift",
			logger.String("saga", s.name),
			logger.String("step", stepName),
			logger.Int("rolled_back", sagaErr.RolledBack),
			logger.Error(sagaErr),
		)
	} else {
		s.logger.Warn(ctx, "saga rolled back",
			logger.String("saga", s.name),
			logger.String("step", stepName),
			logger.Int("rolled_back", sagaErr.RolledBack),
			logger.Error(cause),
		)
	}
	return sagaErr
}
