package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"tgrelay/pkg/logger"
)

// DefaultWorkers is the pool size used when none is configured.
const DefaultWorkers = 4

// Pool runs a fixed number of workers over a Queue. Tasks are executed at
// most once; a failing task is logged and dropped.
type Pool struct {
	queue   *Queue
	workers int
	handler Handler
	log     zerolog.Logger

	wg      sync.WaitGroup
	started atomic.Bool

	// taskCtx outlives the caller's context so queued tasks can drain after
	// shutdown begins. Shutdown cancels it once the drain deadline passes.
	taskCtx    context.Context
	cancelTask context.CancelFunc

	processed atomic.Int64
	failed    atomic.Int64
}

// NewPool creates a pool of workers goroutines over queue.
func NewPool(queue *Queue, workers int, handler Handler, log zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	taskCtx, cancel := context.WithCancel(context.Background())
	return &Pool{
		queue:      queue,
		workers:    workers,
		handler:    handler,
		log:        logger.Component(log, "worker-pool"),
		taskCtx:    taskCtx,
		cancelTask: cancel,
	}
}

// Start launches the workers. When ctx is cancelled the queue is closed and
// the workers exit after draining what is left.
func (p *Pool) Start(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return ErrPoolStarted
	}

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	go func() {
		select {
		case <-ctx.Done():
			p.queue.Close()
		case <-p.taskCtx.Done():
		}
	}()

	p.log.Info().Int("workers", p.workers).Msg("worker pool started")
	return nil
}

// submit queues a new task built from name and payload and returns its id.
func (p *Pool) submit(name string, payload any) (string, error) {
	t := NewTask(name, payload)
	if err := p.queue.Push(t); err != nil {
		return "", err
	}
	return t.ID, nil
}

func (p *Pool) worker(n int) {
	defer p.wg.Done()

	for {
		t, ok := p.queue.Pop()
		if !ok {
			p.log.Debug().Int("worker", n).Msg("worker exiting")
			return
		}
		p.execute(n, t)
	}
}

func (p *Pool) execute(n int, t *Task) {
	start := time.Now()
	log := p.log.With().Str("task_id", t.ID).Str("task", t.Name).Int("worker", n).Logger()

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		err = p.handler(p.taskCtx, t)
	}()

	if err != nil {
		p.failed.Add(1)
		log.Error().Err(err).Dur("duration", time.Since(start)).Msg("task failed, dropped")
		return
	}
	p.processed.Add(1)
	log.Debug().Dur("duration", time.Since(start)).Dur("queued", start.Sub(t.EnqueuedAt)).Msg("task done")
}

// Shutdown closes the queue and waits for the workers to drain it. If ctx
// ends first, in-flight tasks are cancelled, the remaining queued tasks are
// discarded and their count is returned with ctx's error.
func (p *Pool) Shutdown(ctx context.Context) (dropped int, err error) {
	p.queue.Close()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancelTask()
		p.log.Info().Int64("processed", p.processed.Load()).Int64("failed", p.failed.Load()).Msg("worker pool stopped")
		return 0, nil
	case <-ctx.Done():
	}

	dropped = len(p.queue.Drain())
	p.cancelTask()
	<-done
	p.log.Warn().Int("dropped", dropped).Msg("worker pool stopped before queue drained")
	return dropped, ctx.Err()
}

// Stats returns the current counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:   p.workers,
		Pending:   p.queue.Len(),
		Processed: p.processed.Load(),
		Failed:    p.failed.Load(),
		Closed:    p.queue.Closed(),
	}
}
