// Package pool runs CPU-bound wallet work on a fixed set of workers.
//
// Callers block until a worker is free; waiting callers are served in
// arrival order. A worker that panics fails only the job it was running
// and is replaced. A pool of size zero runs every job on the caller's
// goroutine.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	goerrors "github.com/go-errors/errors"
	pkgsync "polycry.pt/poly-go/sync"
)

var (
	// ErrPoolClosed is returned for jobs submitted after Close.
	ErrPoolClosed = errors.New("worker pool closed")

	// ErrWorkerCrashed is returned when the job's worker panicked.
	ErrWorkerCrashed = errors.New("worker crashed")
)

// Job is a unit of work.
type Job func(ctx context.Context) (any, error)

type outcome struct {
	value any
	err   error
}

type task struct {
	ctx  context.Context
	job  Job
	done chan outcome
}

// Pool is a fixed-size worker pool.
type Pool struct {
	size    int
	tasks   chan *task
	closer  *pkgsync.Closer
	wg      sync.WaitGroup
	crashes atomic.Int64
	logger  *slog.Logger
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the pool logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pool) {
		p.logger = l
	}
}

// New starts a pool with size workers.
func New(size int, opts ...Option) *Pool {
	if size < 0 {
		size = 0
	}
	p := &Pool{
		size:   size,
		tasks:  make(chan *task),
		closer: new(pkgsync.Closer),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.size
}

// Crashes returns how many jobs have panicked.
func (p *Pool) Crashes() int64 {
	return p.crashes.Load()
}

// Do runs job on a worker and waits for its result. Cancelling ctx only
// abandons the wait for a free worker; a job that has started always runs
// to completion.
func (p *Pool) Do(ctx context.Context, job Job) (any, error) {
	if p.closer.IsClosed() {
		return nil, ErrPoolClosed
	}
	if p.size == 0 {
		o := p.run(ctx, job)
		return o.value, o.err
	}

	t := &task{ctx: ctx, job: job, done: make(chan outcome, 1)}
	select {
	case p.tasks <- t:
	case <-p.closer.Closed():
		return nil, ErrPoolClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	o := <-t.done
	return o.value, o.err
}

// Run is a typed wrapper around Do.
func Run[T any](ctx context.Context, p *Pool, fn func(ctx context.Context) (T, error)) (T, error) {
	v, err := p.Do(ctx, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil || v == nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Close stops the workers after their current jobs and rejects new ones.
func (p *Pool) Close() error {
	err := p.closer.Close()
	p.wg.Wait()
	return err
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case t := <-p.tasks:
			o := p.run(t.ctx, t.job)
			t.done <- o
			if errors.Is(o.err, ErrWorkerCrashed) {
				p.wg.Add(1)
				go p.worker()
				return
			}
		case <-p.closer.Closed():
			return
		}
	}
}

func (p *Pool) run(ctx context.Context, job Job) (o outcome) {
	defer func() {
		if r := recover(); r != nil {
			p.crashes.Add(1)
			stack := goerrors.Wrap(r, 2)
			p.logger.Error("worker crashed",
				"panic", fmt.Sprint(r),
				"stack", stack.ErrorStack(),
			)
			o = outcome{err: fmt.Errorf("%w: %v", ErrWorkerCrashed, r)}
		}
	}()
	v, err := job(ctx)
	return outcome{value: v, err: err}
}
