package pipeline

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// PrometheusMetrics mirrors collector counters into Prometheus.
type PrometheusMetrics struct {
	Records          *prometheus.CounterVec
	TriplesGenerated *prometheus.CounterVec
	TriplesWritten   *prometheus.CounterVec
	Segments         *prometheus.CounterVec
	StageSeconds     *prometheus.GaugeVec
}

// NewPrometheusMetrics creates the pipeline collectors and registers them.
func NewPrometheusMetrics(reg prometheus.Registerer) (*PrometheusMetrics, error) {
	m := &PrometheusMetrics{
		Records: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "daedalus",
				Subsystem: "pipeline",
				Name:      "records_total",
				Help:      "Records transformed, by worker",
			},
			[]string{"worker"},
		),
		TriplesGenerated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "daedalus",
				Subsystem: "pipeline",
				Name:      "triples_generated_total",
				Help:      "Triples produced by transformation, by worker",
			},
			[]string{"worker"},
		),
		TriplesWritten: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "daedalus",
				Subsystem: "pipeline",
				Name:      "triples_written_total",
				Help:      "Triples written to segments, by sink",
			},
			[]string{"sink"},
		),
		Segments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "daedalus",
				Subsystem: "pipeline",
				Name:      "segments_total",
				Help:      "Segments spilled, by sink and status",
			},
			[]string{"sink", "status"},
		),
		StageSeconds: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "daedalus",
				Subsystem: "pipeline",
				Name:      "stage_duration_seconds",
				Help:      "Wall time of the last run, by stage",
			},
			[]string{"stage"},
		),
	}

	for _, c := range []prometheus.Collector{m.Records, m.TriplesGenerated, m.TriplesWritten, m.Segments, m.StageSeconds} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

type filter struct {
	stage  Stage
	worker *int
	batch  *int
}

func (f filter) matches(ev Event) bool {
	if f.stage != "" && ev.Stage != f.stage {
		return false
	}
	if f.worker != nil && ev.Worker != *f.worker {
		return false
	}
	if f.batch != nil && ev.Batch != *f.batch {
		return false
	}
	return true
}

// FilterOption narrows a collector query.
type FilterOption func(*filter)

// ForStage restricts a query to one stage.
func ForStage(s Stage) FilterOption {
	return func(f *filter) { f.stage = s }
}

// ForWorker restricts a query to one worker or sink index.
func ForWorker(index int) FilterOption {
	return func(f *filter) { f.worker = &index }
}

// ForBatch restricts a query to one batch number.
func ForBatch(n int) FilterOption {
	return func(f *filter) { f.batch = &n }
}

func newFilter(opts []FilterOption) filter {
	var f filter
	for _, opt := range opts {
		opt(&f)
	}
	return f
}

// Collector drains the stats channel until every sink has reported
// completion. Queries are safe to call concurrently with Run.
type Collector struct {
	events <-chan Event
	sinks  int
	logger *zap.Logger
	prom   *PrometheusMetrics
	done   chan struct{}

	mu         sync.RWMutex
	lifecycle  []Event
	transforms []Event
	exports    []Event
	completed  map[int]struct{}
}

// NewCollector creates a collector expecting completion from sinks distinct
// sink indices. prom may be nil.
func NewCollector(events <-chan Event, sinks int, logger *zap.Logger, prom *PrometheusMetrics) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{
		events:    events,
		sinks:     sinks,
		logger:    logger,
		prom:      prom,
		done:      make(chan struct{}),
		completed: make(map[int]struct{}),
	}
}

// Run consumes events until the completion barrier is reached or the
// channel is closed, then closes Done.
func (c *Collector) Run() {
	defer close(c.done)

	for c.Completed() < c.sinks {
		ev, ok := <-c.events
		if !ok {
			c.logger.Warn("Stats channel closed before all sinks completed",
				zap.Int("completed", c.Completed()),
				zap.Int("expected", c.sinks))
			break
		}
		c.record(ev)
	}

	if c.prom != nil {
		for _, stage := range []Stage{StageCoordinator, StageTransform, StageExport} {
			c.prom.StageSeconds.WithLabelValues(string(stage)).Set(c.Runtime(ForStage(stage)).Seconds())
		}
	}
}

// Done is closed once Run returns.
func (c *Collector) Done() <-chan struct{} {
	return c.done
}

// Completed returns the number of distinct sinks that have finished.
func (c *Collector) Completed() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.completed)
}

func (c *Collector) record(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev.Kind {
	case EventStarted, EventFinished:
		c.lifecycle = append(c.lifecycle, ev)
	case EventTransformBatch:
		c.transforms = append(c.transforms, ev)
		if c.prom != nil {
			label := strconv.Itoa(ev.Worker)
			c.prom.Records.WithLabelValues(label).Add(float64(ev.Records))
			c.prom.TriplesGenerated.WithLabelValues(label).Add(float64(ev.Triples))
		}
	case EventExportBatch:
		c.exports = append(c.exports, ev)
		if c.prom != nil {
			label := strconv.Itoa(ev.Worker)
			status := "ok"
			if ev.Failed {
				status = "failed"
			} else {
				c.prom.TriplesWritten.WithLabelValues(label).Add(float64(ev.Triples))
			}
			c.prom.Segments.WithLabelValues(label, status).Inc()
		}
	case EventSinkDone:
		if _, seen := c.completed[ev.Worker]; seen {
			c.logger.Warn("Duplicate sink completion", zap.Int("sink", ev.Worker))
		}
		c.completed[ev.Worker] = struct{}{}
	default:
		c.logger.Warn("Unknown stats event", zap.Int("kind", int(ev.Kind)))
	}
}

// Runtime returns the latest finish minus the earliest start over the
// matching lifecycle events, or zero when either is missing.
func (c *Collector) Runtime(opts ...FilterOption) time.Duration {
	f := newFilter(opts)

	c.mu.RLock()
	defer c.mu.RUnlock()

	var start, end time.Time
	for _, ev := range c.lifecycle {
		if !f.matches(ev) {
			continue
		}
		switch ev.Kind {
		case EventStarted:
			if start.IsZero() || ev.Time.Before(start) {
				start = ev.Time
			}
		case EventFinished:
			if ev.Time.After(end) {
				end = ev.Time
			}
		}
	}
	if start.IsZero() || end.IsZero() {
		return 0
	}
	return end.Sub(start)
}

// TransformStats sums records and triples over the matching drains.
func (c *Collector) TransformStats(opts ...FilterOption) (records, triples int) {
	f := newFilter(opts)

	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, ev := range c.transforms {
		if f.matches(ev) {
			records += ev.Records
			triples += ev.Triples
		}
	}
	return records, triples
}

// ExportStats sums the triples of successfully written segments.
func (c *Collector) ExportStats(opts ...FilterOption) int {
	f := newFilter(opts)

	c.mu.RLock()
	defer c.mu.RUnlock()

	triples := 0
	for _, ev := range c.exports {
		if f.matches(ev) && !ev.Failed {
			triples += ev.Triples
		}
	}
	return triples
}

// Segments counts written and failed segments.
func (c *Collector) Segments(opts ...FilterOption) (written, failed int) {
	f := newFilter(opts)

	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, ev := range c.exports {
		if !f.matches(ev) {
			continue
		}
		if ev.Failed {
			failed++
		} else {
			written++
		}
	}
	return written, failed
}
