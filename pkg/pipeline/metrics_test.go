package pipeline

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorQueries(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	events := make(chan Event, 32)

	for _, ev := range []Event{
		{Kind: EventStarted, Stage: StageCoordinator, Worker: CoordinatorIndex, Time: t0},
		{Kind: EventFinished, Stage: StageCoordinator, Worker: CoordinatorIndex, Time: t0.Add(time.Second)},
		{Kind: EventStarted, Stage: StageTransform, Worker: 0, Time: t0},
		{Kind: EventFinished, Stage: StageTransform, Worker: 0, Time: t0.Add(2 * time.Second)},
		{Kind: EventStarted, Stage: StageTransform, Worker: 1, Time: t0.Add(time.Second)},
		{Kind: EventFinished, Stage: StageTransform, Worker: 1, Time: t0.Add(5 * time.Second)},
		{Kind: EventTransformBatch, Stage: StageTransform, Worker: 0, Batch: 1, Records: 2, Triples: 4},
		{Kind: EventTransformBatch, Stage: StageTransform, Worker: 0, Batch: 2, Records: 1, Triples: 3},
		{Kind: EventTransformBatch, Stage: StageTransform, Worker: 1, Batch: 1, Records: 5, Triples: 10},
		{Kind: EventExportBatch, Stage: StageExport, Worker: 0, Batch: 1, Triples: 7},
		{Kind: EventExportBatch, Stage: StageExport, Worker: 1, Batch: 1, Triples: 10, Failed: true},
		{Kind: EventSinkDone, Stage: StageExport, Worker: 0},
		{Kind: EventSinkDone, Stage: StageExport, Worker: 0},
		{Kind: EventSinkDone, Stage: StageExport, Worker: 1},
	} {
		events <- ev
	}

	c := NewCollector(events, 2, nil, nil)
	go c.Run()
	waitDone(t, c)

	assert.Equal(t, 2, c.Completed())

	assert.Equal(t, time.Second, c.Runtime(ForStage(StageCoordinator)))
	assert.Equal(t, 5*time.Second, c.Runtime(ForStage(StageTransform)))
	assert.Equal(t, 2*time.Second, c.Runtime(ForStage(StageTransform), ForWorker(0)))
	assert.Equal(t, 4*time.Second, c.Runtime(ForStage(StageTransform), ForWorker(1)))
	assert.Zero(t, c.Runtime(ForStage(StageExport)))

	tests := []struct {
		name    string
		opts    []FilterOption
		records int
		triples int
	}{
		{name: "all", records: 8, triples: 17},
		{name: "worker 0", opts: []FilterOption{ForWorker(0)}, records: 3, triples: 7},
		{name: "batch 1", opts: []FilterOption{ForBatch(1)}, records: 7, triples: 14},
		{name: "worker 0 batch 2", opts: []FilterOption{ForWorker(0), ForBatch(2)}, records: 1, triples: 3},
		{name: "unknown worker", opts: []FilterOption{ForWorker(9)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, triples := c.TransformStats(tt.opts...)
			assert.Equal(t, tt.records, records)
			assert.Equal(t, tt.triples, triples)
		})
	}

	assert.Equal(t, 7, c.ExportStats())
	assert.Equal(t, 0, c.ExportStats(ForWorker(1)))

	written, failed := c.Segments()
	assert.Equal(t, 1, written)
	assert.Equal(t, 1, failed)
}

func TestCollectorBarrierWaitsForDistinctSinks(t *testing.T) {
	events := make(chan Event, 8)
	c := NewCollector(events, 2, nil, nil)
	go c.Run()

	events <- Event{Kind: EventSinkDone, Worker: 0}
	events <- Event{Kind: EventSinkDone, Worker: 0}

	select {
	case <-c.Done():
		require.FailNow(t, "barrier released before the second sink completed")
	case <-time.After(50 * time.Millisecond):
	}

	events <- Event{Kind: EventSinkDone, Worker: 1}
	waitDone(t, c)
	assert.Equal(t, 2, c.Completed())
}

func TestCollectorClosedChannel(t *testing.T) {
	events := make(chan Event)
	c := NewCollector(events, 3, nil, nil)
	go c.Run()

	close(events)
	waitDone(t, c)
	assert.Zero(t, c.Completed())
}

func TestCollectorPrometheus(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewPrometheusMetrics(reg)
	require.NoError(t, err)

	_, err = NewPrometheusMetrics(reg)
	assert.Error(t, err, "collectors register once per registry")

	events := make(chan Event, 8)
	events <- Event{Kind: EventTransformBatch, Worker: 0, Records: 3, Triples: 6}
	events <- Event{Kind: EventExportBatch, Worker: 0, Triples: 6}
	events <- Event{Kind: EventExportBatch, Worker: 0, Triples: 2, Failed: true}
	events <- Event{Kind: EventSinkDone, Worker: 0}

	c := NewCollector(events, 1, nil, m)
	go c.Run()
	waitDone(t, c)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.Records.WithLabelValues("0")))
	assert.Equal(t, 6.0, testutil.ToFloat64(m.TriplesGenerated.WithLabelValues("0")))
	assert.Equal(t, 6.0, testutil.ToFloat64(m.TriplesWritten.WithLabelValues("0")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Segments.WithLabelValues("0", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Segments.WithLabelValues("0", "failed")))
}
