package worker

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"ysocial/internal/metrics"
)

var ErrClosed = errors.New("пул задач остановлен")

type task struct {
	id   uuid.UUID
	key  string
	name string
	fn   func(ctx context.Context) error
	// nil for fire-and-forget tasks
	done chan error
}

// Pool executes store writes on a fixed set of workers. Every key is routed
// to the same worker, so tasks submitted for one entity run in submission
// order; tasks for different entities may interleave.
type Pool struct {
	queues  []chan *task
	group   errgroup.Group
	log     *slog.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	closed bool

	errMu sync.Mutex
	errs  []error
}

func NewPool(workers, queueSize int, log *slog.Logger, m *metrics.Metrics) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}

	p := &Pool{
		queues:  make([]chan *task, workers),
		log:     log,
		metrics: m,
	}
	for i := range p.queues {
		queue := make(chan *task, queueSize)
		p.queues[i] = queue
		p.group.Go(func() error {
			p.run(i, queue)
			return nil
		})
	}

	log.Debug("пул задач запущен", slog.Int("workers", workers), slog.Int("queue_size", queueSize))
	return p
}

func (p *Pool) run(worker int, queue <-chan *task) {
	for t := range queue {
		err := p.exec(t)
		p.metrics.QueueDepth.Dec()

		if err != nil {
			p.metrics.WriteTasks.WithLabelValues("error").Inc()
			p.record(err)
			p.log.Error("ошибка при выполнении задачи",
				slog.Int("worker", worker),
				slog.String("task", t.name),
				slog.String("key", t.key),
				slog.String("task_id", t.id.String()),
				slog.Any("error", err),
			)
		} else {
			p.metrics.WriteTasks.WithLabelValues("ok").Inc()
		}

		if t.done != nil {
			t.done <- err
		}
	}
}

func (p *Pool) exec(t *task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("паника в задаче %s: %v", t.name, r)
		}
	}()
	if t.fn == nil {
		return nil
	}
	return t.fn(context.Background())
}

func (p *Pool) record(err error) {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	p.errs = append(p.errs, err)
}

func (p *Pool) shard(key string) chan *task {
	h := fnv.New32a()
	h.Write([]byte(key))
	return p.queues[h.Sum32()%uint32(len(p.queues))]
}

func (p *Pool) enqueue(queue chan *task, t *task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrClosed
	}
	p.metrics.QueueDepth.Inc()
	queue <- t
	return nil
}

// Submit queues fn behind every task already submitted for key and returns
// without waiting. Failures are logged and reported by Err and Close.
func (p *Pool) Submit(key, name string, fn func(ctx context.Context) error) error {
	t := &task{id: uuid.New(), key: key, name: name, fn: fn}
	return p.enqueue(p.shard(key), t)
}

// Do queues fn like Submit and waits for its result. ctx is checked only
// before queueing; a queued task always runs and Do returns its result.
func (p *Pool) Do(ctx context.Context, key, name string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t := &task{id: uuid.New(), key: key, name: name, fn: fn, done: make(chan error, 1)}
	if err := p.enqueue(p.shard(key), t); err != nil {
		return err
	}
	return <-t.done
}

// Flush waits until every task submitted before the call has run.
func (p *Pool) Flush(ctx context.Context) error {
	start := time.Now()
	barriers := make([]chan error, 0, len(p.queues))
	for _, queue := range p.queues {
		t := &task{id: uuid.New(), key: "flush", name: "flush", done: make(chan error, 1)}
		if err := p.enqueue(queue, t); err != nil {
			return err
		}
		barriers = append(barriers, t.done)
	}

	for _, done := range barriers {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	p.log.Debug("очереди задач сброшены", slog.Duration("elapsed", time.Since(start)))
	return nil
}

// Err returns the failures recorded so far, joined.
func (p *Pool) Err() error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	return errors.Join(p.errs...)
}

// Close stops accepting tasks, drains the queues and returns the recorded failures.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return p.Err()
	}
	p.closed = true
	for _, queue := range p.queues {
		close(queue)
	}
	p.mu.Unlock()

	_ = p.group.Wait()
	p.log.Debug("пул задач остановлен")
	return p.Err()
}
