package trigger

import (
	"context"
	"log"
	"sync"

	"github.com/avesia/backend/internal/metrics"
	"github.com/avesia/backend/internal/results"
)

const (
	defaultQueueSize = 256
	defaultWorkers   = 4
)

// Dispatcher decouples ingress from trigger evaluation. Ingress must ACK
// immediately, so results go through a bounded queue and a small worker
// pool; when the queue is full the result is dropped and counted.
type Dispatcher struct {
	evaluator *Evaluator
	queue     chan results.DetectionResult
	workers   int
	metrics   *metrics.Metrics

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewDispatcher(evaluator *Evaluator, queueSize, workers int, m *metrics.Metrics) *Dispatcher {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Dispatcher{
		evaluator: evaluator,
		queue:     make(chan results.DetectionResult, queueSize),
		workers:   workers,
		metrics:   m,
	}
}

// Start launches the worker pool.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}
	log.Printf("[DEBUG] dispatcher: started %d workers (queue %d)", d.workers, cap(d.queue))
}

// Stop cancels the workers and waits for in-flight evaluations to finish.
func (d *Dispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
}

// Enqueue hands a result to the pool without blocking. Returns false when
// the queue is full; the caller already ACKed, so the result is just lost.
func (d *Dispatcher) Enqueue(r results.DetectionResult) bool {
	select {
	case d.queue <- r:
		if d.metrics != nil {
			d.metrics.QueueDepth.Set(float64(len(d.queue)))
		}
		return true
	default:
		if d.metrics != nil {
			d.metrics.DispatcherDrops.Inc()
		}
		return false
	}
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case r := <-d.queue:
			if d.metrics != nil {
				d.metrics.QueueDepth.Set(float64(len(d.queue)))
			}
			d.evaluator.Process(ctx, r)
		}
	}
}
