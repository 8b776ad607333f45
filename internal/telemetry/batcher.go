package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/vigil-sec/vigil/internal/logger"
	"github.com/vigil-sec/vigil/internal/metrics"
	"github.com/vigil-sec/vigil/internal/models"
)

// DispatchFunc receives a full batch of records for analysis. It is
// invoked on its own goroutine so a slow consumer never stalls the
// batching loop.
type DispatchFunc func(ctx context.Context, batch []models.RequestRecord)

// Batcher accumulates request records and hands them off in batches.
// Enqueue never blocks the request path: when the queue is full the
// record is dropped and counted.
type Batcher struct {
	queue    chan models.RequestRecord
	size     int
	interval time.Duration
	poll     time.Duration
	dispatch DispatchFunc
}

// NewBatcher creates a batcher that flushes when size records are
// buffered or interval has elapsed with a non-empty batch.
func NewBatcher(capacity, size int, interval time.Duration, dispatch DispatchFunc) *Batcher {
	return &Batcher{
		queue:    make(chan models.RequestRecord, capacity),
		size:     size,
		interval: interval,
		poll:     time.Second,
		dispatch: dispatch,
	}
}

// SetPollInterval adjusts how often the consumer wakes when idle.
// Call before Run.
func (b *Batcher) SetPollInterval(d time.Duration) {
	if d > 0 {
		b.poll = d
	}
}

// Enqueue offers a record to the batcher. Returns false when the queue
// is full and the record was dropped.
func (b *Batcher) Enqueue(rec models.RequestRecord) bool {
	select {
	case b.queue <- rec:
		return true
	default:
		metrics.IncTelemetryDropped()
		logger.WithFields(map[string]interface{}{
			"client_ip": rec.ClientIP,
			"path":      rec.Path,
		}).Warn("telemetry queue full, dropping record")
		return false
	}
}

// Run consumes the queue until ctx is cancelled, flushing on size or
// elapsed time. A final flush drains whatever is pending on shutdown.
func (b *Batcher) Run(ctx context.Context) {
	batch := make([]models.RequestRecord, 0, b.size)
	lastFlush := time.Now()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		out := batch
		batch = make([]models.RequestRecord, 0, b.size)
		lastFlush = time.Now()
		metrics.IncBatchFlushed()
		logger.WithFields(map[string]interface{}{"batch_size": len(out)}).Debug("flushing telemetry batch")
		go b.dispatch(ctx, out)
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case rec := <-b.queue:
			batch = append(batch, rec)
			if len(batch) >= b.size {
				flush()
			}
		case <-time.After(b.poll):
		}

		if len(batch) > 0 && time.Since(lastFlush) >= b.interval {
			flush()
		}
	}
}

// Dedup collapses identical telemetry lines into "line,count" entries,
// preserving first-seen order.
func Dedup(records []models.RequestRecord) []string {
	counts := make(map[string]int, len(records))
	order := make([]string, 0, len(records))
	for _, rec := range records {
		line := rec.CSVLine()
		if counts[line] == 0 {
			order = append(order, line)
		}
		counts[line]++
	}

	out := make([]string, 0, len(order))
	for _, line := range order {
		out = append(out, fmt.Sprintf("%s,%d", line, counts[line]))
	}
	return out
}
