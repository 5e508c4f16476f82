// Package reporting forwards segment write failures to Sentry.
package reporting

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
)

// Config configures the Sentry client.
type Config struct {
	DSN         string
	Release     string
	Environment string
	RunID       string
}

// Reporter captures errors on its own hub so tests and embedders do not share
// global Sentry state. A Reporter without a DSN only logs.
type Reporter struct {
	hub     *sentry.Hub
	enabled bool
	logger  *zap.Logger
}

// New creates a Reporter. An empty DSN yields a reporter that does not send.
func New(config Config, logger *zap.Logger) (*Reporter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:         config.DSN,
		Release:     config.Release,
		Environment: config.Environment,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sentry client: %w", err)
	}

	scope := sentry.NewScope()
	if config.RunID != "" {
		scope.SetTag("run_id", config.RunID)
	}
	return &Reporter{
		hub:     sentry.NewHub(client, scope),
		enabled: config.DSN != "",
		logger:  logger,
	}, nil
}

// Enabled reports whether events are sent.
func (r *Reporter) Enabled() bool { return r.enabled }

// Report captures err. Its signature matches pipeline.WithFailureReporter.
func (r *Reporter) Report(err error) {
	if err == nil {
		return
	}
	if !r.enabled {
		r.logger.Debug("Sentry disabled, failure not reported", zap.Error(err))
		return
	}
	if id := r.hub.CaptureException(err); id != nil {
		r.logger.Debug("Failure reported", zap.String("event_id", string(*id)))
	}
}

// Flush waits up to timeout for buffered events to be sent.
func (r *Reporter) Flush(timeout time.Duration) bool {
	if !r.enabled {
		return true
	}
	return r.hub.Flush(timeout)
}
