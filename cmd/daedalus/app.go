package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	inats "github.com/wehubfusion/Daedalus/internal/nats"
	"github.com/wehubfusion/Daedalus/internal/reporting"
	"github.com/wehubfusion/Daedalus/internal/tracing"
	"github.com/wehubfusion/Daedalus/pkg/concurrency"
	"github.com/wehubfusion/Daedalus/pkg/descriptor"
	"github.com/wehubfusion/Daedalus/pkg/pipeline"
	"github.com/wehubfusion/Daedalus/pkg/rdf"
	"github.com/wehubfusion/Daedalus/pkg/source"
	"github.com/wehubfusion/Daedalus/pkg/storage"
)

type options struct {
	input          string
	output         string
	descriptor     string
	graph          string
	format         string
	workers        int
	inlineSinks    bool
	bufferSize     int
	segmentSize    int
	queueSize      int
	largeThreshold int64

	blobConnectionString string
	blobContainer        string
	natsURL              string
	natsSubject          string
	otlpEndpoint         string
	metricsAddr          string
	sentryDSN            string
	logLevel             string
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	if lvl == zapcore.DebugLevel {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// pipelineConfig applies flags over the environment-derived concurrency
// settings. A zero flag keeps the environment value.
func pipelineConfig(opts *options, cc *concurrency.Config, format rdf.Format) pipeline.Config {
	cfg := pipeline.DefaultConfig().
		WithWorkers(cc.Workers).
		WithBufferSize(cc.BufferSize).
		WithSegmentThreshold(cc.SegmentSize).
		WithFormat(format).
		WithOutputPath(opts.output).
		WithGraphIRI(opts.graph)

	if opts.workers > 0 {
		cfg = cfg.WithWorkers(opts.workers)
	}
	if opts.bufferSize > 0 {
		cfg = cfg.WithBufferSize(opts.bufferSize)
	}
	if opts.segmentSize > 0 {
		cfg = cfg.WithSegmentThreshold(opts.segmentSize)
	}
	if opts.queueSize > 0 {
		cfg = cfg.WithQueueSize(opts.queueSize)
	}
	if opts.inlineSinks {
		cfg = cfg.WithSinkMode(pipeline.SinkModeInline)
	}
	return cfg
}

func openStore(opts *options, logger *zap.Logger) (storage.Store, error) {
	if opts.blobConnectionString == "" {
		return storage.NewFileStore(""), nil
	}
	return storage.NewBlobStore(opts.blobConnectionString, opts.blobContainer, logger)
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", zap.String("addr", addr), zap.Error(err))
		}
	}()
	logger.Info("Serving metrics", zap.String("addr", addr))
	return srv
}

func run(ctx context.Context, opts *options, stdout io.Writer) error {
	logger, err := newLogger(opts.logLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	undo := concurrency.InitializeForKubernetes(logger)
	defer undo()
	cc := concurrency.LoadConfig()
	logger.Debug("Concurrency configuration", zap.Stringer("config", cc))

	format, err := rdf.ParseFormat(opts.format)
	if err != nil {
		return err
	}

	desc, err := descriptor.Load(opts.descriptor)
	if err != nil {
		return err
	}

	if opts.otlpEndpoint != "" {
		tc := tracing.DefaultConfig(Version)
		tc.OTLPEndpoint = opts.otlpEndpoint
		shutdown, err := tracing.SetupTracing(ctx, tc, logger)
		if err != nil {
			return err
		}
		defer func() { _ = tracing.ShutdownTracing(shutdown, logger) }()
	}

	reporter, err := reporting.New(reporting.Config{DSN: opts.sentryDSN, Release: Version}, logger)
	if err != nil {
		return err
	}
	defer reporter.Flush(2 * time.Second)

	store, err := openStore(opts, logger)
	if err != nil {
		return err
	}

	cfg := pipelineConfig(opts, cc, format)
	graphIRI := cfg.GraphIRI
	if graphIRI == "" {
		graphIRI = desc.GraphIRI()
	}
	manifest := storage.NewManifest(format, graphIRI)
	writerOpts := []storage.WriterOption{
		storage.WithManifest(manifest),
		storage.WithPrefixes(desc.Prefixes()),
	}

	if opts.natsURL != "" {
		nc := inats.DefaultConnectionConfig(opts.natsURL)
		nc.Subject = opts.natsSubject
		conn, err := inats.Connect(ctx, nc, logger)
		if err != nil {
			return err
		}
		defer func() { _ = inats.Close(conn) }()
		writerOpts = append(writerOpts, storage.WithNotifier(
			storage.NewNATSNotifier(conn, nc.Subject, nc.PublishMaxRetries, logger)))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom, err := pipeline.NewPrometheusMetrics(reg)
	if err != nil {
		return err
	}
	if opts.metricsAddr != "" {
		srv := serveMetrics(opts.metricsAddr, reg, logger)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	p, err := pipeline.NewPipeline(cfg, desc, storage.NewSegmentWriter(store, logger, writerOpts...), logger,
		pipeline.WithPrometheus(prom),
		pipeline.WithFailureReporter(reporter.Report),
		pipeline.WithWriteLimiter(concurrency.NewLimiter(cc.MaxConcurrentWrites)),
	)
	if err != nil {
		return err
	}

	src := source.NewJSONFile(opts.input, opts.largeThreshold, logger)
	report, runErr := p.Run(ctx, src)

	manifestPath := storage.ManifestPath(opts.output)
	if _, err := manifest.Save(ctx, store, manifestPath, logger); err != nil {
		logger.Error("Failed to save manifest", zap.String("path", manifestPath), zap.Error(err))
		runErr = errors.Join(runErr, err)
	}

	printReport(stdout, report, manifestPath)
	return runErr
}

func printReport(w io.Writer, r *pipeline.Report, manifestPath string) {
	fmt.Fprintf(w, "run %s\n", r.RunID)
	fmt.Fprintf(w, "  workers:           %d\n", r.Workers)
	fmt.Fprintf(w, "  records:           %d of %d\n", r.Records, r.Dispatched)
	fmt.Fprintf(w, "  triples generated: %d\n", r.TriplesGenerated)
	fmt.Fprintf(w, "  triples written:   %d\n", r.TriplesWritten)
	fmt.Fprintf(w, "  segments:          %d (%d failed)\n", r.Segments, r.FailedSegments)
	fmt.Fprintf(w, "  transform time:    %s\n", r.Runtime[pipeline.StageTransform].Round(time.Millisecond))
	fmt.Fprintf(w, "  export time:       %s\n", r.Runtime[pipeline.StageExport].Round(time.Millisecond))
	fmt.Fprintf(w, "  elapsed:           %s\n", r.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "  manifest:          %s\n", manifestPath)
}
