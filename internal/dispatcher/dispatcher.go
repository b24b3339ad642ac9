// Package dispatcher runs keyed units of work on a bounded worker pool.
//
// A fixed set of core workers drains a bounded FIFO queue. When the queue is
// full, extra burst workers are started up to MaxWorkers; they exit after
// KeepAlive without work. Past that point Submit fails with ErrBackpressure
// instead of blocking the caller.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrBackpressure     = errors.New("dispatcher backlog is full")
	ErrDispatcherClosed = errors.New("dispatcher is shut down")
	ErrAlreadyScheduled = errors.New("task already queued or running")
	ErrTaskPanicked     = errors.New("task panicked")
)

// ShutdownError lists the ids that were still queued or running when the
// shutdown grace period ran out.
type ShutdownError struct {
	Unfinished []string
}

func (e *ShutdownError) Error() string {
	return fmt.Sprintf("dispatcher shutdown timed out with %d unfinished tasks", len(e.Unfinished))
}

type Task func(ctx context.Context, id string) error

// FailureHandler receives ids whose task returned an error or panicked.
type FailureHandler func(ctx context.Context, id string, err error)

type Config struct {
	CoreWorkers   int
	MaxWorkers    int
	QueueCapacity int
	KeepAlive     time.Duration
	ShutdownGrace time.Duration
}

func DefaultConfig() Config {
	return Config{
		CoreWorkers:   5,
		MaxWorkers:    10,
		QueueCapacity: 100,
		KeepAlive:     60 * time.Second,
		ShutdownGrace: 60 * time.Second,
	}
}

func (c Config) Validate() error {
	switch {
	case c.CoreWorkers < 1:
		return fmt.Errorf("core workers must be at least 1, got %d", c.CoreWorkers)
	case c.MaxWorkers < c.CoreWorkers:
		return fmt.Errorf("max workers (%d) must not be below core workers (%d)", c.MaxWorkers, c.CoreWorkers)
	case c.QueueCapacity < 0:
		return fmt.Errorf("queue capacity must not be negative, got %d", c.QueueCapacity)
	case c.KeepAlive <= 0:
		return fmt.Errorf("keep alive must be positive, got %s", c.KeepAlive)
	case c.ShutdownGrace <= 0:
		return fmt.Errorf("shutdown grace must be positive, got %s", c.ShutdownGrace)
	}
	return nil
}

type Stats struct {
	Queued  int
	Running int
	Workers int
}

type Dispatcher struct {
	cfg       Config
	task      Task
	onFailure FailureHandler
	queue     chan string

	mu        sync.Mutex
	scheduled map[string]struct{}
	running   map[string]struct{}
	workers   int
	closed    bool

	abandoned atomic.Bool
	wg        sync.WaitGroup
	logger    *slog.Logger
}

func New(cfg Config, task Task, onFailure FailureHandler, logger *slog.Logger) (*Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if onFailure == nil {
		onFailure = func(context.Context, string, error) {}
	}

	d := &Dispatcher{
		cfg:       cfg,
		task:      task,
		onFailure: onFailure,
		queue:     make(chan string, cfg.QueueCapacity),
		scheduled: make(map[string]struct{}),
		running:   make(map[string]struct{}),
		logger:    logger,
	}

	d.mu.Lock()
	for i := 0; i < cfg.CoreWorkers; i++ {
		d.startWorker("", false)
	}
	d.mu.Unlock()

	return d, nil
}

// Submit hands id to the pool without blocking.
func (d *Dispatcher) Submit(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDispatcherClosed
	}
	if _, ok := d.scheduled[id]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyScheduled, id)
	}

	select {
	case d.queue <- id:
		d.scheduled[id] = struct{}{}
		return nil
	default:
	}

	if d.workers < d.cfg.MaxWorkers {
		d.scheduled[id] = struct{}{}
		d.startWorker(id, true)
		d.logger.Info("Started burst worker",
			slog.String("task_id", id),
			slog.Int("workers", d.workers))
		return nil
	}

	return ErrBackpressure
}

func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{
		Queued:  len(d.queue),
		Running: len(d.running),
		Workers: d.workers,
	}
}

// startWorker must be called with d.mu held.
func (d *Dispatcher) startWorker(first string, burst bool) {
	d.workers++
	d.wg.Add(1)
	go d.worker(first, burst)
}

func (d *Dispatcher) worker(first string, burst bool) {
	defer d.wg.Done()
	defer func() {
		d.mu.Lock()
		d.workers--
		d.mu.Unlock()
	}()

	if first != "" {
		d.run(first)
	}

	if !burst {
		for id := range d.queue {
			d.run(id)
		}
		return
	}

	idle := time.NewTimer(d.cfg.KeepAlive)
	defer idle.Stop()
	for {
		select {
		case id, ok := <-d.queue:
			if !ok {
				return
			}
			d.run(id)
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(d.cfg.KeepAlive)
		case <-idle.C:
			return
		}
	}
}

func (d *Dispatcher) run(id string) {
	if d.abandoned.Load() {
		return
	}

	d.mu.Lock()
	d.running[id] = struct{}{}
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		delete(d.running, id)
		delete(d.scheduled, id)
		d.mu.Unlock()
	}()

	ctx := context.Background()
	if err := d.execute(ctx, id); err != nil {
		d.fail(ctx, id, err)
	}
}

func (d *Dispatcher) execute(ctx context.Context, id string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Task panicked",
				slog.String("task_id", id),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			err = fmt.Errorf("%w: %v", ErrTaskPanicked, r)
		}
	}()
	return d.task(ctx, id)
}

func (d *Dispatcher) fail(ctx context.Context, id string, cause error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Failure handler panicked",
				slog.String("task_id", id),
				slog.Any("panic", r))
		}
	}()
	d.onFailure(ctx, id, cause)
}

// Shutdown stops admitting work and waits for queued and running tasks until
// ctx is done or ShutdownGrace passes, whichever comes first.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, d.cfg.ShutdownGrace)
	defer cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("Dispatcher shutdown complete")
		return nil
	case <-ctx.Done():
	}

	d.abandoned.Store(true)

	d.mu.Lock()
	unfinished := make([]string, 0, len(d.scheduled))
	for id := range d.scheduled {
		unfinished = append(unfinished, id)
	}
	d.mu.Unlock()
	sort.Strings(unfinished)

	d.logger.Warn("Dispatcher shutdown grace expired",
		slog.Int("unfinished", len(unfinished)),
		slog.Any("task_ids", unfinished))

	return &ShutdownError{Unfinished: unfinished}
}
