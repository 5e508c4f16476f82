package pipeline

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/keypath"
	"github.com/wehubfusion/Daedalus/pkg/rdf"
)

type memWriter struct {
	mu       sync.Mutex
	segments map[string][]rdf.Triple
	graphs   map[string]string
	order    []string
	fail     func(path string) error
}

func newMemWriter() *memWriter {
	return &memWriter{segments: make(map[string][]rdf.Triple), graphs: make(map[string]string)}
}

func (m *memWriter) Write(_ context.Context, path string, _ rdf.Format, graphIRI string, triples []rdf.Triple) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail != nil {
		if err := m.fail(path); err != nil {
			return err
		}
	}
	m.segments[path] = slices.Clone(triples)
	m.graphs[path] = graphIRI
	m.order = append(m.order, path)
	return nil
}

func (m *memWriter) sizes() []int {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]int, 0, len(m.order))
	for _, p := range m.order {
		out = append(out, len(m.segments[p]))
	}
	return out
}

func (m *memWriter) all() []rdf.Triple {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []rdf.Triple
	for _, p := range m.order {
		out = append(out, m.segments[p]...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

type recorder struct {
	mu   sync.Mutex
	msgs []Message[rdf.Triple]
}

func (r *recorder) Consume(_ context.Context, msg Message[rdf.Triple]) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

type transformerFunc func(keypath.Record) ([]rdf.Triple, error)

func (f transformerFunc) Transform(r keypath.Record) ([]rdf.Triple, error) {
	return f(r)
}

func triple(i int) rdf.Triple {
	return rdf.NewTriple(
		rdf.NewIRI(fmt.Sprintf("http://example.org/s%d", i)),
		rdf.NewIRI("http://example.org/p"),
		rdf.NewLiteral(fmt.Sprint(i), ""),
	)
}

func triples(n int) []rdf.Triple {
	out := make([]rdf.Triple, n)
	for i := range out {
		out[i] = triple(i)
	}
	return out
}

func drainEvents(ch chan Event) []Event {
	var out []Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func kinds(events []Event) []EventKind {
	out := make([]EventKind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}

func testSink(t *testing.T, writer GraphWriter, threshold, bufSize int, stats chan Event) *Sink {
	t.Helper()
	return newSink(sinkConfig{
		index:     0,
		writer:    writer,
		namer:     NewSegmentNamer("out/graph.nt", rdf.FormatNTriples, 0),
		format:    rdf.FormatNTriples,
		threshold: threshold,
		bufSize:   bufSize,
		stats:     stats,
		logger:    zap.NewNop(),
		tracer:    otel.Tracer("test"),
	})
}

func waitDone(t *testing.T, c *Collector) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		require.FailNow(t, "collector did not reach its completion barrier")
	}
}
