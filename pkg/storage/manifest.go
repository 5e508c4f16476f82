package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/rdf"
)

const (
	StatusWritten = "written"
	StatusFailed  = "failed"
)

// ManifestEntry records the outcome of one segment write.
type ManifestEntry struct {
	Segment   string    `json:"segment"`
	Location  string    `json:"location,omitempty"`
	Status    string    `json:"status"`
	Triples   int       `json:"triples"`
	Bytes     int       `json:"bytes,omitempty"`
	Error     string    `json:"error,omitempty"`
	WrittenAt time.Time `json:"written_at"`
}

// Manifest lists every segment of a run. It is safe for concurrent use by
// all sinks.
type Manifest struct {
	RunID     string          `json:"run_id"`
	Format    rdf.Format      `json:"format"`
	GraphIRI  string          `json:"graph,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	Segments  []ManifestEntry `json:"segments"`

	mu sync.Mutex
}

// NewManifest creates an empty manifest.
func NewManifest(format rdf.Format, graphIRI string) *Manifest {
	return &Manifest{
		Format:    format,
		GraphIRI:  graphIRI,
		CreatedAt: time.Now().UTC(),
	}
}

// ManifestPath derives the manifest location from the segment base path:
// "out/graph.ttl" gives "out/graph_manifest.json".
func ManifestPath(base string) string {
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + "_manifest.json"
}

// Record adds an entry. The run ID of the first entry carrying one is kept.
func (m *Manifest) Record(runID string, entry ManifestEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.RunID == "" {
		m.RunID = runID
	}
	m.Segments = append(m.Segments, entry)
}

// Entries returns a copy of the entries ordered by segment path.
func (m *Manifest) Entries() []ManifestEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]ManifestEntry, len(m.Segments))
	copy(out, m.Segments)
	sort.Slice(out, func(i, j int) bool { return out[i].Segment < out[j].Segment })
	return out
}

// Totals returns the number of written and failed segments and the triples
// in written segments.
func (m *Manifest) Totals() (written, failed, triples int) {
	for _, e := range m.Entries() {
		if e.Status == StatusWritten {
			written++
			triples += e.Triples
		} else {
			failed++
		}
	}
	return written, failed, triples
}

// Save writes the manifest as JSON to path in store.
func (m *Manifest) Save(ctx context.Context, store Store, path string, logger *zap.Logger) (string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	m.mu.Lock()
	sort.Slice(m.Segments, func(i, j int) bool { return m.Segments[i].Segment < m.Segments[j].Segment })
	data, err := json.MarshalIndent(m, "", "  ")
	runID := m.RunID
	count := len(m.Segments)
	m.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("failed to marshal manifest: %w", err)
	}

	location, err := store.Put(ctx, path, data, "application/json", map[string]string{
		"run_id":        runID,
		"segment_count": strconv.Itoa(count),
	})
	if err != nil {
		return "", fmt.Errorf("failed to store manifest: %w", err)
	}

	logger.Info("Manifest written",
		zap.String("location", location),
		zap.String("run_id", runID),
		zap.Int("segments", count))
	return location, nil
}

// ReadManifest decodes a manifest written by Save.
func ReadManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &m, nil
}
