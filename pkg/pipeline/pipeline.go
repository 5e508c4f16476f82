// Package pipeline runs the concurrent record-to-segment flow: a coordinator
// feeding a pool of transform workers, each paired with a sink that spills
// its graph into segments, and a collector aggregating stats events.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/concurrency"
	"github.com/wehubfusion/Daedalus/pkg/descriptor"
	"github.com/wehubfusion/Daedalus/pkg/keypath"
	"github.com/wehubfusion/Daedalus/pkg/source"
	"github.com/wehubfusion/Daedalus/pkg/transform"
)

type runIDKey struct{}

// ContextWithRunID attaches a run ID to ctx. Run does this for every context
// it hands to writers.
func ContextWithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunID returns the run ID carried by ctx, or "".
func RunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// Report summarizes one run.
type Report struct {
	RunID            string
	Workers          int
	Dispatched       int
	Records          int
	TriplesGenerated int
	TriplesWritten   int
	Segments         int
	FailedSegments   int
	Runtime          map[Stage]time.Duration
	Elapsed          time.Duration
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithPrometheus mirrors collector counters into m.
func WithPrometheus(m *PrometheusMetrics) Option {
	return func(p *Pipeline) { p.prom = m }
}

// WithFailureReporter registers a hook called for every failed segment write.
func WithFailureReporter(fn func(error)) Option {
	return func(p *Pipeline) { p.onFailure = fn }
}

// WithWriteLimiter bounds concurrent segment writes across all sinks.
func WithWriteLimiter(l *concurrency.Limiter) Option {
	return func(p *Pipeline) { p.limiter = l }
}

// WithTransformerFactory overrides the per-worker transformer. The default
// builds a transform.Engine over the descriptor.
func WithTransformerFactory(fn func(worker int) Transformer) Option {
	return func(p *Pipeline) { p.newTransformer = fn }
}

// Pipeline turns a record source into graph segments.
type Pipeline struct {
	cfg            Config
	writer         GraphWriter
	graphIRI       string
	logger         *zap.Logger
	tracer         trace.Tracer
	prom           *PrometheusMetrics
	limiter        *concurrency.Limiter
	onFailure      func(error)
	newTransformer func(worker int) Transformer
}

// NewPipeline validates cfg and creates a pipeline. Unsupported formats are
// rejected here, before any I/O.
func NewPipeline(cfg Config, desc *descriptor.Descriptor, writer GraphWriter, logger *zap.Logger, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	if writer == nil {
		return nil, fmt.Errorf("graph writer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pipeline{
		cfg:      cfg,
		writer:   writer,
		graphIRI: cfg.GraphIRI,
		logger:   logger,
		tracer:   otel.Tracer("daedalus/pipeline"),
	}
	if desc != nil {
		if p.graphIRI == "" {
			p.graphIRI = desc.GraphIRI()
		}
		p.newTransformer = func(worker int) Transformer {
			return transform.NewEngine(desc, logger.With(zap.Int("worker", worker)))
		}
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.newTransformer == nil {
		return nil, fmt.Errorf("descriptor is required")
	}
	return p, nil
}

// Config returns the validated configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Run dispatches src through the workers and sinks and waits for every
// sink to complete. The returned error joins the aborted batches and any
// source read failure; the report is always returned.
func (p *Pipeline) Run(ctx context.Context, src source.Source) (*Report, error) {
	start := time.Now()
	runID := uuid.NewString()
	logger := p.logger.With(zap.String("run_id", runID))
	n := p.cfg.Workers

	ctx = ContextWithRunID(ctx, runID)
	ctx, span := p.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.Int("workers", n),
		attribute.String("format", string(p.cfg.Format)),
		attribute.String("sink_mode", string(p.cfg.SinkMode)),
	))
	defer span.End()

	logger.Info("Starting pipeline",
		zap.Int("workers", n),
		zap.Int("buffer_size", p.cfg.BufferSize),
		zap.Int("segment_threshold", p.cfg.SegmentThreshold),
		zap.String("sink_mode", string(p.cfg.SinkMode)),
		zap.String("format", string(p.cfg.Format)))

	stats := make(chan Event, p.cfg.StatsBufferSize)
	collector := NewCollector(stats, n, logger, p.prom)
	go collector.Run()

	var wg sync.WaitGroup
	errs := make([]error, 2*n)
	inputs := make([]chan<- Message[keypath.Record], n)

	for i := range n {
		sink := newSink(sinkConfig{
			index:     i,
			writer:    p.writer,
			namer:     NewSegmentNamer(p.cfg.OutputPath, p.cfg.Format, i),
			format:    p.cfg.Format,
			graphIRI:  p.graphIRI,
			threshold: p.cfg.SegmentThreshold,
			bufSize:   p.cfg.BufferSize,
			limiter:   p.limiter,
			onFailure: p.onFailure,
			stats:     stats,
			logger:    logger,
			tracer:    p.tracer,
		})

		var out Consumer = sink
		if p.cfg.SinkMode == SinkModeChannel {
			q := make(queue, p.cfg.QueueSize)
			out = q
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs[n+i] = sink.Run(ctx, q)
			}()
		}

		w := newWorker(i, p.newTransformer(i), p.cfg.QueueSize, p.cfg.BufferSize, out, stats, logger, p.tracer)
		inputs[i] = w.Input()
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = w.Run(ctx)
		}()
	}

	coordinator := NewCoordinator(inputs, p.cfg.BufferSize, stats, logger)
	dispatched, dispatchErr := coordinator.Dispatch(ctx, src)

	wg.Wait()
	<-collector.Done()

	records, generated := collector.TransformStats()
	segments, failed := collector.Segments()
	report := &Report{
		RunID:            runID,
		Workers:          n,
		Dispatched:       dispatched,
		Records:          records,
		TriplesGenerated: generated,
		TriplesWritten:   collector.ExportStats(),
		Segments:         segments,
		FailedSegments:   failed,
		Runtime: map[Stage]time.Duration{
			StageCoordinator: collector.Runtime(ForStage(StageCoordinator)),
			StageTransform:   collector.Runtime(ForStage(StageTransform)),
			StageExport:      collector.Runtime(ForStage(StageExport)),
		},
		Elapsed: time.Since(start),
	}

	span.SetAttributes(
		attribute.Int("records", report.Records),
		attribute.Int("triples_written", report.TriplesWritten),
		attribute.Int("segments", report.Segments),
	)

	err := errors.Join(append([]error{dispatchErr}, errs...)...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "run completed with errors")
	}

	logger.Info("Pipeline finished",
		zap.Int("dispatched", report.Dispatched),
		zap.Int("records", report.Records),
		zap.Int("triples_generated", report.TriplesGenerated),
		zap.Int("triples_written", report.TriplesWritten),
		zap.Int("segments", report.Segments),
		zap.Int("failed_segments", report.FailedSegments),
		zap.Duration("elapsed", report.Elapsed))

	return report, err
}
