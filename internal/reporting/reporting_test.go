package reporting

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		dsn         string
		wantErr     bool
		wantEnabled bool
	}{
		{name: "no dsn", dsn: ""},
		{name: "valid dsn", dsn: "https://public@sentry.example.com/1", wantEnabled: true},
		{name: "malformed dsn", dsn: "::not a dsn", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := New(Config{DSN: tt.dsn, RunID: "run-1"}, nil)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantEnabled, r.Enabled())
		})
	}
}

func TestReportWithoutDSN(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	r, err := New(Config{}, zap.New(core))
	require.NoError(t, err)

	r.Report(nil)
	r.Report(errors.New("segment write failed"))

	entries := logs.FilterMessage("Sentry disabled, failure not reported").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "segment write failed", entries[0].ContextMap()["error"])
	assert.True(t, r.Flush(time.Millisecond))
}
