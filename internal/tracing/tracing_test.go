package tracing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig("1.2.3")

	assert.Equal(t, ServiceName, config.ServiceName)
	assert.Equal(t, "1.2.3", config.ServiceVersion)
	assert.Equal(t, "development", config.Environment)
	assert.Equal(t, "127.0.0.1:4318", config.OTLPEndpoint)
	assert.True(t, config.Insecure)
	assert.Equal(t, 1.0, config.SampleRatio)
}

func TestSetupTracingRequiresEndpoint(t *testing.T) {
	config := DefaultConfig("dev")
	config.OTLPEndpoint = ""

	shutdown, err := SetupTracing(context.Background(), config, nil)
	assert.ErrorIs(t, err, errNoEndpoint)
	assert.Nil(t, shutdown)
}

// The exporter connects lazily, so setup succeeds without a collector.
func TestSetupAndShutdown(t *testing.T) {
	previous := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	shutdown, err := SetupTracing(context.Background(), DefaultConfig("dev"), zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	_, span := otel.Tracer("daedalus/test").Start(context.Background(), "noop")
	span.End()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	// Export may fail without a collector; shutdown must still return.
	_ = shutdown(ctx)
}

func TestShutdownTracing(t *testing.T) {
	tests := []struct {
		name     string
		shutdown func(context.Context) error
		wantErr  bool
	}{
		{name: "nil shutdown"},
		{name: "clean", shutdown: func(context.Context) error { return nil }},
		{name: "failing", shutdown: func(context.Context) error { return errors.New("exporter closed") }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ShutdownTracing(tt.shutdown, nil)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
