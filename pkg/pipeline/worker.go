package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/keypath"
	"github.com/wehubfusion/Daedalus/pkg/rdf"
)

// errMissingSentinel is returned when a worker's input closes without an
// end-of-stream message.
var errMissingSentinel = errors.New("input closed before end of stream")

// Transformer turns one record into triples. transform.Engine implements it.
type Transformer interface {
	Transform(record keypath.Record) ([]rdf.Triple, error)
}

// WorkerState is the observable state of a worker.
type WorkerState int32

const (
	WorkerIdle WorkerState = iota
	WorkerBuffering
	WorkerDraining
	WorkerStopped
)

func (s WorkerState) String() string {
	switch s {
	case WorkerIdle:
		return "idle"
	case WorkerBuffering:
		return "buffering"
	case WorkerDraining:
		return "draining"
	case WorkerStopped:
		return "stopped"
	}
	return "unknown"
}

// Worker buffers records from the coordinator, transforms them in batches and
// forwards the triples to its paired sink.
type Worker struct {
	index       int
	transformer Transformer
	in          chan Message[keypath.Record]
	out         Consumer
	bufferSize  int
	stats       chan<- Event
	logger      *zap.Logger
	tracer      trace.Tracer

	state   atomic.Int32
	buffer  []keypath.Record
	batches int
	errs    []error
}

func newWorker(index int, transformer Transformer, queueSize, bufferSize int, out Consumer,
	stats chan<- Event, logger *zap.Logger, tracer trace.Tracer) *Worker {
	return &Worker{
		index:       index,
		transformer: transformer,
		in:          make(chan Message[keypath.Record], queueSize),
		out:         out,
		bufferSize:  bufferSize,
		stats:       stats,
		logger:      logger.With(zap.Int("worker", index)),
		tracer:      tracer,
		buffer:      make([]keypath.Record, 0, bufferSize),
	}
}

// Index returns the worker's index.
func (w *Worker) Index() int {
	return w.index
}

// State returns the current state.
func (w *Worker) State() WorkerState {
	return WorkerState(w.state.Load())
}

// Input returns the channel the coordinator sends to.
func (w *Worker) Input() chan<- Message[keypath.Record] {
	return w.in
}

// Run consumes messages until end of stream. It returns the joined errors of
// every aborted batch; those batches do not stop the worker.
func (w *Worker) Run(ctx context.Context) error {
	w.stats <- lifecycle(EventStarted, StageTransform, w.index)
	w.logger.Debug("Worker started")

	for msg := range w.in {
		switch msg.Kind() {
		case KindBatch:
			for _, rec := range msg.Items() {
				w.buffer = append(w.buffer, rec)
				w.setState(WorkerBuffering)
				if len(w.buffer) >= w.bufferSize {
					w.drain(ctx)
				}
			}
		case KindEndOfStream:
			w.drain(ctx)
			w.stats <- lifecycle(EventFinished, StageTransform, w.index)
			if err := w.out.Consume(ctx, EndOfStream[rdf.Triple]()); err != nil {
				w.errs = append(w.errs, err)
			}
			w.setState(WorkerStopped)
			w.logger.Debug("Worker stopped", zap.Int("batches", w.batches))
			return errors.Join(w.errs...)
		default:
			panic(fmt.Sprintf("worker %d: unexpected message kind %v", w.index, msg.Kind()))
		}
	}

	w.setState(WorkerStopped)
	w.errs = append(w.errs, fmt.Errorf("worker %d: %w", w.index, errMissingSentinel))
	return errors.Join(w.errs...)
}

// drain transforms the buffered records. The first failing record aborts the
// rest of the batch; triples of the records before it are still forwarded.
func (w *Worker) drain(ctx context.Context) {
	if len(w.buffer) == 0 {
		w.setState(WorkerIdle)
		return
	}

	w.setState(WorkerDraining)
	w.batches++

	ctx, span := w.tracer.Start(ctx, "worker.drain", trace.WithAttributes(
		attribute.Int("worker", w.index),
		attribute.Int("batch", w.batches),
		attribute.Int("records", len(w.buffer)),
	))
	defer span.End()

	var triples []rdf.Triple
	records := 0
	for _, rec := range w.buffer {
		out, err := w.transformer.Transform(rec)
		if err != nil {
			err = fmt.Errorf("worker %d batch %d record %d: %w", w.index, w.batches, records, err)
			w.errs = append(w.errs, err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "batch aborted")
			w.logger.Warn("Transform failed, aborting batch",
				zap.Int("batch", w.batches),
				zap.Int("skipped", len(w.buffer)-records),
				zap.Error(err))
			break
		}
		triples = append(triples, out...)
		records++
	}
	clear(w.buffer)
	w.buffer = w.buffer[:0]

	span.SetAttributes(attribute.Int("triples", len(triples)))

	if len(triples) > 0 {
		if err := w.out.Consume(ctx, Batch(triples)); err != nil {
			w.errs = append(w.errs, err)
		}
	}

	w.stats <- Event{
		Kind:    EventTransformBatch,
		Stage:   StageTransform,
		Worker:  w.index,
		Batch:   w.batches,
		Records: records,
		Triples: len(triples),
	}
	w.setState(WorkerIdle)
}

func (w *Worker) setState(s WorkerState) {
	w.state.Store(int32(s))
}
