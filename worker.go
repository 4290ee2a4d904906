package creamery

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stripe/stripe-go/v79"
	"go.uber.org/zap"
)

var ErrWorkerPoolClosed = errors.New("worker pool is shut down")

const (
	defaultQueueSize = 1000
	// processTimeout bounds one event once it left the queue.
	processTimeout = 30 * time.Second
)

type EventProcessor interface {
	ProcessEvent(ctx context.Context, event *stripe.Event) error
}

// WorkerPool runs payment events on a fixed number of goroutines.
type WorkerPool struct {
	mu     sync.RWMutex
	closed bool

	tasks     chan func()
	wg        sync.WaitGroup
	logger    *zap.Logger
	processor EventProcessor
}

func NewWorkerPool(size int, processor EventProcessor, logger *zap.Logger) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	wp := &WorkerPool{
		tasks:     make(chan func(), defaultQueueSize),
		logger:    logger,
		processor: processor,
	}

	wp.wg.Add(size)
	for i := 0; i < size; i++ {
		go wp.worker()
	}

	return wp
}

func (wp *WorkerPool) worker() {
	defer wp.wg.Done()
	for task := range wp.tasks {
		task()
	}
}

// Submit queues event. It blocks while the queue is full and fails once the
// pool is shut down. ctx only bounds that wait: a queued event keeps its
// values but not its cancellation, so it still runs while the pool drains.
func (wp *WorkerPool) Submit(ctx context.Context, event *stripe.Event) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.closed {
		return ErrWorkerPoolClosed
	}

	detached := context.WithoutCancel(ctx)
	task := func() {
		taskCtx, cancel := context.WithTimeout(detached, processTimeout)
		defer cancel()
		if err := wp.processor.ProcessEvent(taskCtx, event); err != nil {
			wp.logger.Error("Failed to process event",
				zap.Error(err),
				zap.String("event_type", string(event.Type)),
				zap.String("event_id", event.ID))
		}
	}

	select {
	case wp.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting events and waits for the queued ones to finish.
func (wp *WorkerPool) Shutdown() {
	wp.mu.Lock()
	if wp.closed {
		wp.mu.Unlock()
		return
	}
	wp.closed = true
	close(wp.tasks)
	wp.mu.Unlock()

	wp.wg.Wait()
}
