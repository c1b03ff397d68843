// Package workerpool runs processing tasks on a fixed number of goroutines
// with a bounded queue and a graceful, time-limited drain.
package workerpool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"schedule-backend/internal/shared/metrics"
	"schedule-backend/internal/shared/telemetry"
)

const (
	defaultSize          = 5
	defaultQueueSize     = 100
	defaultShutdownGrace = 60 * time.Second
	defaultForceWait     = 5 * time.Second
)

var (
	ErrPoolClosed   = eris.New("worker pool is shut down")
	ErrNotStarted   = eris.New("worker pool not started")
	ErrQueueFull    = eris.New("worker pool queue is full")
	ErrKeyInFlight  = eris.New("task with the same key is already queued or running")
	ErrForcedCancel = eris.New("worker pool grace period exceeded; remaining tasks cancelled")
)

// Task is one unit of work. The context is cancelled when the pool is
// force-stopped.
type Task func(ctx context.Context)

// Options configures a Pool.
type Options struct {
	Name          string
	Size          int
	QueueSize     int
	ShutdownGrace time.Duration
	// ForceWait bounds how long Shutdown waits for tasks to observe cancellation.
	ForceWait time.Duration
}

type job struct {
	key string
	run Task
}

// Pool is a bounded worker pool. Tasks are keyed; at most one task per key is
// queued or running at a time.
type Pool struct {
	opts Options

	mu      sync.Mutex
	started bool
	closed  bool
	active  map[string]struct{}
	running int

	tasks  chan job
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// New constructs a Pool. Call Start before Submit.
func New(opts Options) *Pool {
	if opts.Size <= 0 {
		opts.Size = defaultSize
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = defaultShutdownGrace
	}
	if opts.ForceWait <= 0 {
		opts.ForceWait = defaultForceWait
	}
	if opts.Name == "" {
		opts.Name = "processing"
	}
	return &Pool{
		opts:   opts,
		active: make(map[string]struct{}),
		tasks:  make(chan job, opts.QueueSize),
	}
}

// Start launches the workers. Cancelling ctx cancels running tasks.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true
	p.ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.opts.Size; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	telemetry.Info("worker_pool.started", map[string]any{
		"pool":       p.opts.Name,
		"size":       p.opts.Size,
		"queue_size": p.opts.QueueSize,
	})
}

// Submit enqueues a task without blocking.
func (p *Pool) Submit(key string, run Task) error {
	if run == nil {
		return eris.New("nil task")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.closed:
		metrics.IncPoolRejected("closed")
		return ErrPoolClosed
	case !p.started:
		metrics.IncPoolRejected("not_started")
		return ErrNotStarted
	}
	if key != "" {
		if _, ok := p.active[key]; ok {
			metrics.IncPoolRejected("duplicate")
			return eris.Wrapf(ErrKeyInFlight, "key %s", key)
		}
	}
	select {
	case p.tasks <- job{key: key, run: run}:
		if key != "" {
			p.active[key] = struct{}{}
		}
		return nil
	default:
		metrics.IncPoolRejected("full")
		return ErrQueueFull
	}
}

// Stats reports queued and running task counts.
func (p *Pool) Stats() (queued, running int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tasks), p.running
}

// Shutdown stops accepting tasks and waits up to the grace period for queued
// and running tasks. After that, remaining tasks are cancelled and
// ErrForcedCancel is returned. ctx can shorten the wait.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	started := p.started
	close(p.tasks)
	p.mu.Unlock()

	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	grace := time.NewTimer(p.opts.ShutdownGrace)
	defer grace.Stop()

	select {
	case <-done:
		p.cancel()
		telemetry.Info("worker_pool.stopped", map[string]any{"pool": p.opts.Name})
		return nil
	case <-grace.C:
	case <-ctx.Done():
	}

	queued, running := p.Stats()
	p.cancel()
	telemetry.Error("worker_pool.forced_shutdown", map[string]any{
		"pool":           p.opts.Name,
		"grace":          p.opts.ShutdownGrace.String(),
		"queued_tasks":   queued,
		"running_tasks":  running,
		"cancelled_keys": p.activeKeys(),
	})

	select {
	case <-done:
	case <-time.After(p.opts.ForceWait):
		telemetry.Error("worker_pool.abandoned", map[string]any{
			"pool": p.opts.Name,
			"note": fmt.Sprintf("tasks still running %s after cancellation", p.opts.ForceWait),
		})
	}
	return ErrForcedCancel
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for j := range p.tasks {
		p.run(j)
	}
}

func (p *Pool) run(j job) {
	p.mu.Lock()
	p.running++
	p.mu.Unlock()
	metrics.PoolTaskStarted()

	defer func() {
		if r := recover(); r != nil {
			telemetry.Error("worker_pool.task_panic", map[string]any{
				"pool":  p.opts.Name,
				"key":   j.key,
				"panic": fmt.Sprint(r),
			})
		}
		metrics.PoolTaskDone()
		p.mu.Lock()
		p.running--
		if j.key != "" {
			delete(p.active, j.key)
		}
		p.mu.Unlock()
	}()

	j.run(p.ctx)
}

func (p *Pool) activeKeys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]string, 0, len(p.active))
	for k := range p.active {
		keys = append(keys, k)
	}
	return keys
}
