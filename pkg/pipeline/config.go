package pipeline

import (
	"fmt"

	"github.com/wehubfusion/Daedalus/pkg/concurrency"
	"github.com/wehubfusion/Daedalus/pkg/rdf"
)

// SinkMode selects how a worker hands triples to its sink.
type SinkMode string

const (
	// SinkModeChannel runs each sink in its own goroutine behind a bounded queue.
	SinkModeChannel SinkMode = "channel"

	// SinkModeInline has the worker call its sink synchronously.
	SinkModeInline SinkMode = "inline"
)

// Config holds the pipeline configuration.
type Config struct {
	// Workers is the number of worker/sink pairs.
	Workers int

	// BufferSize is the number of records a worker buffers before it
	// transforms them, and the number of triples a sink buffers before it
	// merges them into its graph.
	BufferSize int

	// SegmentThreshold is the graph size in triples that triggers a spill.
	SegmentThreshold int

	// QueueSize is the capacity of the coordinator-to-worker and
	// worker-to-sink channels.
	QueueSize int

	// SinkMode is the worker-to-sink wiring policy.
	SinkMode SinkMode

	// Format is the serialization format of every segment.
	Format rdf.Format

	// OutputPath is the base name segments are derived from.
	OutputPath string

	// GraphIRI names the graph. Empty falls back to the descriptor's graph.
	GraphIRI string

	// StatsBufferSize is the capacity of the stats channel.
	StatsBufferSize int
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() Config {
	return Config{
		Workers:          concurrency.DefaultWorkers(),
		BufferSize:       concurrency.DefaultBufferSize,
		SegmentThreshold: concurrency.DefaultSegmentSize,
		QueueSize:        16,
		SinkMode:         SinkModeChannel,
		Format:           rdf.DefaultFormat,
		StatsBufferSize:  256,
	}
}

// Validate fills unset fields with defaults and rejects configurations the
// pipeline cannot run.
func (c *Config) Validate() error {
	defaults := DefaultConfig()

	if c.Workers <= 0 {
		c.Workers = defaults.Workers
	}
	if c.BufferSize <= 0 {
		c.BufferSize = defaults.BufferSize
	}
	if c.SegmentThreshold <= 0 {
		c.SegmentThreshold = defaults.SegmentThreshold
	}
	if c.QueueSize <= 0 {
		c.QueueSize = defaults.QueueSize
	}
	if c.StatsBufferSize <= 0 {
		c.StatsBufferSize = defaults.StatsBufferSize
	}
	if c.SinkMode == "" {
		c.SinkMode = defaults.SinkMode
	}

	switch c.SinkMode {
	case SinkModeChannel, SinkModeInline:
	default:
		return fmt.Errorf("unknown sink mode %q", c.SinkMode)
	}

	format, err := rdf.ParseFormat(string(c.Format))
	if err != nil {
		return err
	}
	c.Format = format

	if c.OutputPath == "" {
		return fmt.Errorf("output path is required")
	}
	return nil
}

// WithWorkers returns a copy of the config with the worker count set.
func (c Config) WithWorkers(n int) Config {
	c.Workers = n
	return c
}

// WithBufferSize returns a copy of the config with the buffer size set.
func (c Config) WithBufferSize(n int) Config {
	c.BufferSize = n
	return c
}

// WithSegmentThreshold returns a copy of the config with the spill threshold set.
func (c Config) WithSegmentThreshold(n int) Config {
	c.SegmentThreshold = n
	return c
}

// WithQueueSize returns a copy of the config with the channel capacity set.
func (c Config) WithQueueSize(n int) Config {
	c.QueueSize = n
	return c
}

// WithSinkMode returns a copy of the config with the wiring policy set.
func (c Config) WithSinkMode(m SinkMode) Config {
	c.SinkMode = m
	return c
}

// WithFormat returns a copy of the config with the output format set.
func (c Config) WithFormat(f rdf.Format) Config {
	c.Format = f
	return c
}

// WithOutputPath returns a copy of the config with the segment base path set.
func (c Config) WithOutputPath(path string) Config {
	c.OutputPath = path
	return c
}

// WithGraphIRI returns a copy of the config with the graph IRI set.
func (c Config) WithGraphIRI(iri string) Config {
	c.GraphIRI = iri
	return c
}
