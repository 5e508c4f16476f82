package storage

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/pipeline"
	"github.com/wehubfusion/Daedalus/pkg/rdf"
)

var _ pipeline.GraphWriter = (*SegmentWriter)(nil)

// WriterOption configures a SegmentWriter.
type WriterOption func(*SegmentWriter)

// WithNotifier announces every stored segment through n.
func WithNotifier(n Notifier) WriterOption {
	return func(w *SegmentWriter) { w.notifier = n }
}

// WithManifest records every write outcome in m.
func WithManifest(m *Manifest) WriterOption {
	return func(w *SegmentWriter) { w.manifest = m }
}

// WithPrefixes sets the prefixes used for compact serializations.
func WithPrefixes(prefixes map[string]string) WriterOption {
	return func(w *SegmentWriter) { w.prefixes = prefixes }
}

// WithGraphIRI names the graph in quad-aware formats, overriding the graph
// passed to Write.
func WithGraphIRI(iri string) WriterOption {
	return func(w *SegmentWriter) { w.graphIRI = iri }
}

// SegmentWriter serializes segments and hands them to a Store.
type SegmentWriter struct {
	store    Store
	notifier Notifier
	manifest *Manifest
	prefixes map[string]string
	graphIRI string
	logger   *zap.Logger
}

// NewSegmentWriter creates a writer backed by store.
func NewSegmentWriter(store Store, logger *zap.Logger, opts ...WriterOption) *SegmentWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &SegmentWriter{store: store, logger: logger}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write serializes triples in format and stores them at segmentPath. The
// configured graph IRI, if any, takes precedence over graphIRI. A
// notification failure is logged and does not fail the write.
func (w *SegmentWriter) Write(ctx context.Context, segmentPath string, format rdf.Format, graphIRI string, triples []rdf.Triple) error {
	runID := pipeline.RunID(ctx)
	if w.graphIRI != "" {
		graphIRI = w.graphIRI
	}

	var buf bytes.Buffer
	opts := rdf.Options{Prefixes: w.prefixes, GraphIRI: graphIRI}
	if err := rdf.Serialize(&buf, format, triples, opts); err != nil {
		w.recordFailure(runID, segmentPath, len(triples), err)
		return fmt.Errorf("failed to serialize segment: %w", err)
	}

	metadata := map[string]string{
		"run_id":  runID,
		"format":  string(format),
		"triples": strconv.Itoa(len(triples)),
	}
	location, err := w.store.Put(ctx, segmentPath, buf.Bytes(), format.MIMEType(), metadata)
	if err != nil {
		w.recordFailure(runID, segmentPath, len(triples), err)
		return err
	}

	now := time.Now().UTC()
	if w.manifest != nil {
		w.manifest.Record(runID, ManifestEntry{
			Segment:   segmentPath,
			Location:  location,
			Status:    StatusWritten,
			Triples:   len(triples),
			Bytes:     buf.Len(),
			WrittenAt: now,
		})
	}

	if w.notifier != nil {
		event := SegmentEvent{
			ID:        uuid.NewString(),
			RunID:     runID,
			Segment:   segmentPath,
			Location:  location,
			Format:    string(format),
			MIMEType:  format.MIMEType(),
			Triples:   len(triples),
			Bytes:     buf.Len(),
			WrittenAt: now,
		}
		if err := w.notifier.Notify(ctx, event); err != nil {
			w.logger.Warn("Failed to publish segment event",
				zap.String("segment", segmentPath),
				zap.Error(err))
		}
	}
	return nil
}

func (w *SegmentWriter) recordFailure(runID, segmentPath string, triples int, err error) {
	if w.manifest == nil {
		return
	}
	w.manifest.Record(runID, ManifestEntry{
		Segment:   segmentPath,
		Status:    StatusFailed,
		Triples:   triples,
		Error:     err.Error(),
		WrittenAt: time.Now().UTC(),
	})
}
