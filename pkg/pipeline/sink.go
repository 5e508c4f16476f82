package pipeline

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/concurrency"
	derrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/rdf"
)

// GraphWriter persists one segment. graphIRI names the graph the triples
// belong to and is empty for the default graph. storage.SegmentWriter
// implements it.
type GraphWriter interface {
	Write(ctx context.Context, segmentPath string, format rdf.Format, graphIRI string, triples []rdf.Triple) error
}

// Consumer receives the triple stream of one worker.
type Consumer interface {
	Consume(ctx context.Context, msg Message[rdf.Triple]) error
}

// queue hands messages to a sink running in its own goroutine.
type queue chan Message[rdf.Triple]

func (q queue) Consume(_ context.Context, msg Message[rdf.Triple]) error {
	q <- msg
	return nil
}

// Sink accumulates triples into a graph and spills it as segments.
type Sink struct {
	index     int
	writer    GraphWriter
	namer     *SegmentNamer
	format    rdf.Format
	graphIRI  string
	threshold int
	buffer    []rdf.Triple
	bufSize   int
	graph     *rdf.Graph
	limiter   *concurrency.Limiter
	onFailure func(error)
	stats     chan<- Event
	logger    *zap.Logger
	tracer    trace.Tracer

	started  bool
	finished bool
	segments int
	failed   int
	written  int
}

type sinkConfig struct {
	index     int
	writer    GraphWriter
	namer     *SegmentNamer
	format    rdf.Format
	graphIRI  string
	threshold int
	bufSize   int
	limiter   *concurrency.Limiter
	onFailure func(error)
	stats     chan<- Event
	logger    *zap.Logger
	tracer    trace.Tracer
}

func newSink(cfg sinkConfig) *Sink {
	return &Sink{
		index:     cfg.index,
		writer:    cfg.writer,
		namer:     cfg.namer,
		format:    cfg.format,
		graphIRI:  cfg.graphIRI,
		threshold: cfg.threshold,
		bufSize:   cfg.bufSize,
		buffer:    make([]rdf.Triple, 0, cfg.bufSize),
		graph:     rdf.NewGraph(cfg.graphIRI),
		limiter:   cfg.limiter,
		onFailure: cfg.onFailure,
		stats:     cfg.stats,
		logger:    cfg.logger.With(zap.Int("sink", cfg.index)),
		tracer:    cfg.tracer,
	}
}

// Index returns the sink's index.
func (s *Sink) Index() int {
	return s.index
}

// Resident returns the number of triples held in the current graph.
func (s *Sink) Resident() int {
	return s.graph.Len()
}

// Run consumes q until end of stream.
func (s *Sink) Run(ctx context.Context, q <-chan Message[rdf.Triple]) error {
	for msg := range q {
		if err := s.Consume(ctx, msg); err != nil {
			return err
		}
		if msg.Kind() == KindEndOfStream {
			return nil
		}
	}
	return fmt.Errorf("sink %d: %w", s.index, errMissingSentinel)
}

// Consume handles one message from the paired worker.
func (s *Sink) Consume(ctx context.Context, msg Message[rdf.Triple]) error {
	if s.finished {
		return fmt.Errorf("sink %d: %s message after end of stream", s.index, msg.Kind())
	}
	if !s.started {
		s.started = true
		s.stats <- lifecycle(EventStarted, StageExport, s.index)
	}

	switch msg.Kind() {
	case KindBatch:
		s.buffer = append(s.buffer, msg.Items()...)
		if len(s.buffer) >= s.bufSize {
			s.flush(ctx)
		}
	case KindEndOfStream:
		s.finish(ctx)
	default:
		panic(fmt.Sprintf("sink %d: unexpected message kind %v", s.index, msg.Kind()))
	}
	return nil
}

// flush merges the buffer into the graph one triple at a time, spilling
// whenever the graph reaches the threshold. The check is per triple, so a
// spill can split a buffer and the rest of it starts the next segment; this
// keeps every segment at most threshold triples.
func (s *Sink) flush(ctx context.Context) {
	for _, t := range s.buffer {
		s.graph.Add(t)
		if s.graph.Len() >= s.threshold {
			s.spill(ctx)
		}
	}
	clear(s.buffer)
	s.buffer = s.buffer[:0]
}

func (s *Sink) finish(ctx context.Context) {
	s.flush(ctx)
	if s.graph.Len() > 0 {
		s.spill(ctx)
	}
	s.graph.Close()
	s.finished = true

	s.logger.Debug("Sink finished",
		zap.Int("segments", s.segments),
		zap.Int("failed", s.failed),
		zap.Int("triples", s.written))

	s.stats <- lifecycle(EventFinished, StageExport, s.index)
	s.stats <- Event{Kind: EventSinkDone, Stage: StageExport, Worker: s.index}
}

// spill writes the graph as the next segment, then closes and replaces it.
// A failed write is reported and the run continues.
func (s *Sink) spill(ctx context.Context) {
	path := s.namer.Next()
	count := s.graph.Len()

	ctx, span := s.tracer.Start(ctx, "sink.spill", trace.WithAttributes(
		attribute.Int("sink", s.index),
		attribute.String("segment", path),
		attribute.Int("triples", count),
	))
	defer span.End()

	err := s.write(ctx, path, s.graph)

	s.graph.Close()
	s.graph = rdf.NewGraph(s.graphIRI)

	ev := Event{
		Kind:    EventExportBatch,
		Stage:   StageExport,
		Worker:  s.index,
		Batch:   s.namer.Count(),
		Triples: count,
		Segment: path,
	}

	if err != nil {
		err = derrors.SerializationFailure(path, err)
		s.failed++
		ev.Failed = true
		span.RecordError(err)
		span.SetStatus(codes.Error, "segment write failed")
		s.logger.Error("Failed to write segment",
			zap.String("segment", path),
			zap.Int("triples", count),
			zap.Error(err))
		if s.onFailure != nil {
			s.onFailure(err)
		}
	} else {
		s.segments++
		s.written += count
		s.logger.Info("Segment written",
			zap.String("segment", path),
			zap.Int("triples", count))
	}

	s.stats <- ev
}

func (s *Sink) write(ctx context.Context, path string, g *rdf.Graph) error {
	if s.limiter == nil {
		return s.writer.Write(ctx, path, s.format, g.Identifier(), g.Triples())
	}
	return s.limiter.Do(ctx, func() error {
		return s.writer.Write(ctx, path, s.format, g.Identifier(), g.Triples())
	})
}
