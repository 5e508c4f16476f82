package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/wehubfusion/Daedalus/pkg/rdf"
)

// SegmentNamer produces the output path of each segment spilled by one sink.
// For a base "out/graph.ttl" sink 2 writes out/graph_2_1.ttl, out/graph_2_2.ttl
// and so on. A base without an extension takes the format's extension.
type SegmentNamer struct {
	prefix  string
	ext     string
	sink    int
	counter int
}

// NewSegmentNamer creates a namer for the given sink.
func NewSegmentNamer(base string, format rdf.Format, sink int) *SegmentNamer {
	dir, file := filepath.Split(base)
	ext := filepath.Ext(file)
	stem := strings.TrimSuffix(file, ext)
	if ext == "" {
		ext = format.Extension()
	}
	return &SegmentNamer{
		prefix: dir + stem,
		ext:    ext,
		sink:   sink,
	}
}

// Next returns the path of the next segment.
func (n *SegmentNamer) Next() string {
	n.counter++
	return fmt.Sprintf("%s_%d_%d%s", n.prefix, n.sink, n.counter, n.ext)
}

// Count returns how many names have been handed out.
func (n *SegmentNamer) Count() int {
	return n.counter
}
