// Package sender serializes update handling per user and retries outbound calls.
package sender

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/weatherbot/core/logger"
)

var (
	// ErrQueueClosed is returned when a job is submitted after Close.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull indicates the key's queue is saturated and the job was not accepted.
	ErrQueueFull = errors.New("telegram sender: queue full")
)

// Options controls the behaviour of the dispatcher.
type Options struct {
	// QueueSize bounds pending jobs per key.
	QueueSize int
}

type job struct {
	ctx    context.Context
	action string
	run    func(context.Context) error
	done   chan error
}

type mailbox struct {
	jobs []job
}

// Dispatcher runs jobs in FIFO order per key. Each key with pending work
// gets its own goroutine, so different keys never wait on each other.
type Dispatcher struct {
	opts   Options
	mu     sync.Mutex
	boxes  map[int64]*mailbox
	closed bool
	wg     sync.WaitGroup
	errs   atomic.Uint64
	panics atomic.Uint64
}

// NewDispatcher creates a dispatcher with sane defaults if options are zeroed.
func NewDispatcher(opts Options) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	return &Dispatcher{
		opts:  opts,
		boxes: make(map[int64]*mailbox),
	}
}

// Submit queues run behind earlier jobs of the same key. The returned channel
// yields the job's result exactly once; callers may ignore it.
func (d *Dispatcher) Submit(ctx context.Context, key int64, action string, run func(context.Context) error) (<-chan error, error) {
	if run == nil {
		return nil, errors.New("telegram sender: nil run function")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrQueueClosed
	}
	box, active := d.boxes[key]
	if active && len(box.jobs) >= d.opts.QueueSize {
		return nil, ErrQueueFull
	}

	j := job{ctx: ctx, action: action, run: run, done: make(chan error, 1)}
	if !active {
		box = &mailbox{}
		d.boxes[key] = box
		d.wg.Add(1)
		go d.drain(key, box)
	}
	box.jobs = append(box.jobs, j)
	return j.done, nil
}

// Active returns the number of keys with queued or running jobs.
func (d *Dispatcher) Active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.boxes)
}

// ErrorCount returns the number of failed jobs.
func (d *Dispatcher) ErrorCount() uint64 {
	return d.errs.Load()
}

// PanicCount returns the number of jobs that panicked.
func (d *Dispatcher) PanicCount() uint64 {
	return d.panics.Load()
}

// Close rejects new jobs and waits until every queued job has run.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) drain(key int64, box *mailbox) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		if len(box.jobs) == 0 {
			delete(d.boxes, key)
			d.mu.Unlock()
			return
		}
		j := box.jobs[0]
		box.jobs[0] = job{}
		box.jobs = box.jobs[1:]
		d.mu.Unlock()

		j.done <- d.execute(j)
	}
}

func (d *Dispatcher) execute(j job) (err error) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			d.panics.Add(1)
			err = &PanicError{Value: rec, Stack: debug.Stack()}
		}
		if err != nil {
			d.errs.Add(1)
			d.logFailure(j, err, time.Since(start))
		}
	}()
	return j.run(j.ctx)
}

func (d *Dispatcher) logFailure(j job, err error, elapsed time.Duration) {
	attrs := append(sendLogAttrs(j.ctx, j.action),
		slog.String("error", SanitizeError(err)),
		slog.String("error_kind", ClassifyError(err)),
		slog.Int("elapsed_ms", durationToMS(elapsed)),
	)
	var pe *PanicError
	if errors.As(err, &pe) {
		attrs = append(attrs, slog.String("stack", logger.SanitizeLimit(string(pe.Stack), 2048)))
	}
	logger.Error(j.ctx, "tg.sender", "dispatch.fail", attrs...)
}
