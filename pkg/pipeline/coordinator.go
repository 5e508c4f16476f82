package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/keypath"
	"github.com/wehubfusion/Daedalus/pkg/source"
)

// Coordinator distributes records across workers.
type Coordinator struct {
	workers    []chan<- Message[keypath.Record]
	bufferSize int
	stats      chan<- Event
	logger     *zap.Logger
}

// NewCoordinator creates a coordinator over the given worker inputs.
func NewCoordinator(workers []chan<- Message[keypath.Record], bufferSize int, stats chan<- Event, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		workers:    workers,
		bufferSize: max(bufferSize, 1),
		stats:      stats,
		logger:     logger.With(zap.String("stage", string(StageCoordinator))),
	}
}

// Dispatch sends every record of src to a worker and then one end-of-stream
// message to each worker, even when reading the source fails. It returns the
// number of records dispatched.
func (c *Coordinator) Dispatch(ctx context.Context, src source.Source) (int, error) {
	c.stats <- lifecycle(EventStarted, StageCoordinator, CoordinatorIndex)

	var (
		n   int
		err error
	)
	if src.IsLarge() {
		n, err = c.roundRobin(ctx, src)
	} else {
		n, err = c.partition(ctx, src)
	}
	if err != nil {
		c.logger.Error("Failed to read source", zap.Int("dispatched", n), zap.Error(err))
	}

	// The finish event precedes the sentinels so it reaches the collector
	// before any sink can complete.
	c.stats <- lifecycle(EventFinished, StageCoordinator, CoordinatorIndex)
	for _, w := range c.workers {
		w <- EndOfStream[keypath.Record]()
	}

	c.logger.Info("Dispatch complete", zap.Int("records", n), zap.Int("workers", len(c.workers)))
	return n, err
}

// roundRobin streams records one at a time into per-worker buffers.
func (c *Coordinator) roundRobin(ctx context.Context, src source.Source) (int, error) {
	pending := make([][]keypath.Record, len(c.workers))
	next, n := 0, 0
	var errs []error

	for rec, err := range src.Stream(ctx) {
		if err != nil {
			errs = append(errs, err)
			break
		}
		pending[next] = append(pending[next], rec)
		if len(pending[next]) >= c.bufferSize {
			c.workers[next] <- Batch(pending[next])
			pending[next] = nil
		}
		next = (next + 1) % len(c.workers)
		n++
	}

	for i, items := range pending {
		if len(items) > 0 {
			c.workers[i] <- Batch(items)
		}
	}
	return n, errors.Join(errs...)
}

// partition splits the whole source into contiguous chunks, one per worker.
func (c *Coordinator) partition(ctx context.Context, src source.Source) (int, error) {
	records, err := src.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load records: %w", err)
	}

	for i, chunk := range chunk(records, len(c.workers)) {
		if len(chunk) > 0 {
			c.workers[i] <- Batch(chunk)
		}
	}
	return len(records), nil
}

// chunk splits items into n contiguous parts of ceil(len/n) items; trailing
// parts may be short or empty.
func chunk[T any](items []T, n int) [][]T {
	parts := make([][]T, n)
	if len(items) == 0 || n == 0 {
		return parts
	}

	size := (len(items) + n - 1) / n
	for i := range parts {
		lo := min(i*size, len(items))
		hi := min(lo+size, len(items))
		parts[i] = items[lo:hi:hi]
	}
	return parts
}
