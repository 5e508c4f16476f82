package concurrency

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
)

// ConfigSource indicates where the configuration came from
type ConfigSource string

const (
	ConfigSourceEnvVar     ConfigSource = "environment_variable"
	ConfigSourceAutoDetect ConfigSource = "auto_detect"
	ConfigSourceDefault    ConfigSource = "default"
)

const (
	// DefaultBufferSize is the number of records or triples buffered before a drain.
	DefaultBufferSize = 1000

	// DefaultSegmentSize is the number of triples a sink holds before it spills.
	DefaultSegmentSize = 1_000_000
)

// Config holds concurrency configuration parameters
type Config struct {
	// Workers is the number of worker/sink pairs.
	Workers int

	// BufferSize is the drain threshold for workers and sinks.
	BufferSize int

	// SegmentSize is the spill threshold in triples.
	SegmentSize int

	// MaxConcurrentWrites bounds segment writes across all sinks.
	MaxConcurrentWrites int

	// Source records whether Workers came from the environment.
	Source        ConfigSource
	IsKubernetes  bool
	EffectiveCPUs int
}

// LoadConfig loads concurrency configuration with priority: env vars > auto-detection > defaults
func LoadConfig() *Config {
	config := &Config{}

	config.IsKubernetes = isKubernetes()

	// Respects cgroup limits once InitializeForKubernetes has run
	config.EffectiveCPUs = GetEffectiveCPUs()

	if workers := getEnvInt("DAEDALUS_WORKERS", 0); workers > 0 {
		config.Workers = workers
		config.Source = ConfigSourceEnvVar
	} else {
		config.Workers = defaultWorkers(config.EffectiveCPUs)
		config.Source = ConfigSourceAutoDetect
	}

	config.BufferSize = getEnvInt("DAEDALUS_BUFFER_SIZE", DefaultBufferSize)
	if config.BufferSize < 1 {
		config.BufferSize = DefaultBufferSize
	}

	config.SegmentSize = getEnvInt("DAEDALUS_SEGMENT_SIZE", DefaultSegmentSize)
	if config.SegmentSize < 1 {
		config.SegmentSize = DefaultSegmentSize
	}

	if writes := getEnvInt("DAEDALUS_MAX_CONCURRENT_WRITES", 0); writes > 0 {
		config.MaxConcurrentWrites = writes
	} else {
		config.MaxConcurrentWrites = getDefaultMaxConcurrentWrites(config.IsKubernetes, config.Workers)
	}

	return config
}

// DefaultWorkers returns one worker per CPU, leaving one CPU for the
// coordinator and the collector.
func DefaultWorkers() int {
	return defaultWorkers(GetEffectiveCPUs())
}

func defaultWorkers(cpus int) int {
	return max(cpus-1, 1)
}

// isKubernetes detects if the application is running in Kubernetes
func isKubernetes() bool {
	// Kubernetes sets this environment variable in all containers
	return os.Getenv("KUBERNETES_SERVICE_HOST") != ""
}

// getDefaultMaxConcurrentWrites returns sensible defaults based on environment
func getDefaultMaxConcurrentWrites(isK8s bool, workers int) int {
	if isK8s {
		// Conservative for Kubernetes where the volume is usually shared
		return max(workers/2, 1)
	}
	return workers
}

// getEnvInt retrieves an integer from environment variable with default fallback
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// String returns a formatted string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Workers: %d, BufferSize: %d, SegmentSize: %d, MaxConcurrentWrites: %d, IsK8s: %t, CPUs: %d, Source: %s}",
		c.Workers,
		c.BufferSize,
		c.SegmentSize,
		c.MaxConcurrentWrites,
		c.IsKubernetes,
		c.EffectiveCPUs,
		c.Source,
	)
}

// GetEffectiveCPUs returns the effective number of CPUs available
func GetEffectiveCPUs() int {
	return runtime.GOMAXPROCS(0)
}
