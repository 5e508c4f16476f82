package pipeline

import "time"

// CoordinatorIndex is the worker index carried by coordinator events.
const CoordinatorIndex = -1

// Stage identifies the pipeline stage an event belongs to.
type Stage string

const (
	StageCoordinator Stage = "coordinator"
	StageTransform   Stage = "transform"
	StageExport      Stage = "export"
)

// EventKind classifies stats events.
type EventKind int

const (
	// EventStarted and EventFinished bracket a stage's lifetime for one index.
	EventStarted EventKind = iota
	EventFinished
	// EventTransformBatch summarizes one worker drain.
	EventTransformBatch
	// EventExportBatch summarizes one sink spill.
	EventExportBatch
	// EventSinkDone is the last event a sink emits.
	EventSinkDone
)

// Event is a stats message sent to the collector.
type Event struct {
	Kind   EventKind
	Stage  Stage
	Worker int
	Time   time.Time

	// Batch is the 1-based drain or segment number.
	Batch   int
	Records int
	Triples int

	// Segment and Failed describe an export batch.
	Segment string
	Failed  bool
}

func lifecycle(kind EventKind, stage Stage, worker int) Event {
	return Event{Kind: kind, Stage: stage, Worker: worker, Time: time.Now()}
}
