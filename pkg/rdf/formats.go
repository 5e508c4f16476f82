package rdf

import (
	"bufio"
	"io"
	"sort"
	"strings"

	derrors "github.com/wehubfusion/Daedalus/pkg/errors"
)

// Format specifies the output serialization format.
type Format string

const (
	// FormatTurtle produces Turtle (.ttl) output.
	FormatTurtle Format = "turtle"

	// FormatN3 produces Notation3 output using the Turtle subset.
	FormatN3 Format = "n3"

	// FormatNTriples produces N-Triples (.nt) output.
	FormatNTriples Format = "nt"

	// FormatNQuads produces N-Quads (.nq) output.
	FormatNQuads Format = "nquads"

	// FormatTriG produces TriG (.trig) output.
	FormatTriG Format = "trig"

	// FormatXML produces RDF/XML with one rdf:Description per subject.
	FormatXML Format = "xml"

	// FormatPrettyXML produces RDF/XML with typed node elements.
	FormatPrettyXML Format = "pretty-xml"

	// FormatTriX produces TriX XML output.
	FormatTriX Format = "trix"

	// FormatJSONLD produces JSON-LD (.jsonld) output.
	FormatJSONLD Format = "json-ld"
)

// DefaultFormat is used when no format is requested.
const DefaultFormat = FormatTurtle

// FormatInfo provides metadata about an export format.
type FormatInfo struct {
	// Name is the format identifier.
	Name Format

	// MIMEType is the standard MIME type.
	MIMEType string

	// Extension is the file extension (with dot).
	Extension string

	// Description describes the format.
	Description string

	write writeFunc
}

type writeFunc func(w *bufio.Writer, triples []Triple, opts Options) error

// FormatRegistry contains metadata for all supported formats.
var FormatRegistry = map[Format]FormatInfo{
	FormatTurtle: {
		Name:        FormatTurtle,
		MIMEType:    "text/turtle",
		Extension:   ".ttl",
		Description: "Turtle - Terse RDF Triple Language",
		write:       writeTurtle,
	},
	FormatN3: {
		Name:        FormatN3,
		MIMEType:    "text/n3",
		Extension:   ".n3",
		Description: "Notation3 - Turtle-compatible subset",
		write:       writeTurtle,
	},
	FormatNTriples: {
		Name:        FormatNTriples,
		MIMEType:    "application/n-triples",
		Extension:   ".nt",
		Description: "N-Triples - Line-based RDF format",
		write:       writeNTriples,
	},
	FormatNQuads: {
		Name:        FormatNQuads,
		MIMEType:    "application/n-quads",
		Extension:   ".nq",
		Description: "N-Quads - Line-based RDF format with named graphs",
		write:       writeNQuads,
	},
	FormatTriG: {
		Name:        FormatTriG,
		MIMEType:    "application/trig",
		Extension:   ".trig",
		Description: "TriG - Turtle with named graphs",
		write:       writeTriG,
	},
	FormatXML: {
		Name:        FormatXML,
		MIMEType:    "application/rdf+xml",
		Extension:   ".rdf",
		Description: "RDF/XML - one description per subject",
		write:       writeRDFXML,
	},
	FormatPrettyXML: {
		Name:        FormatPrettyXML,
		MIMEType:    "application/rdf+xml",
		Extension:   ".rdf",
		Description: "RDF/XML - typed node elements",
		write:       writePrettyRDFXML,
	},
	FormatTriX: {
		Name:        FormatTriX,
		MIMEType:    "application/trix",
		Extension:   ".trix",
		Description: "TriX - Triples in XML",
		write:       writeTriX,
	},
	FormatJSONLD: {
		Name:        FormatJSONLD,
		MIMEType:    "application/ld+json",
		Extension:   ".jsonld",
		Description: "JSON-LD - JSON for Linked Data",
		write:       writeJSONLD,
	},
}

var formatAliases = map[string]Format{
	"ttl":       FormatTurtle,
	"ntriples":  FormatNTriples,
	"n-triples": FormatNTriples,
	"nq":        FormatNQuads,
	"rdfxml":    FormatXML,
	"rdf/xml":   FormatXML,
	"jsonld":    FormatJSONLD,
}

// GetFormatInfo returns metadata for a format.
func GetFormatInfo(format Format) (FormatInfo, bool) {
	info, ok := FormatRegistry[format]
	return info, ok
}

// ParseFormat validates name against the recognized formats. An empty name
// selects DefaultFormat.
func ParseFormat(name string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return DefaultFormat, nil
	}
	if _, ok := FormatRegistry[Format(normalized)]; ok {
		return Format(normalized), nil
	}
	if f, ok := formatAliases[normalized]; ok {
		return f, nil
	}
	return "", derrors.UnsupportedFormat(name)
}

// Formats returns every recognized format sorted by name.
func Formats() []Format {
	formats := make([]Format, 0, len(FormatRegistry))
	for f := range FormatRegistry {
		formats = append(formats, f)
	}
	sort.Slice(formats, func(i, j int) bool { return formats[i] < formats[j] })
	return formats
}

// Extension returns the file extension of the format, or ".rdf" if unknown.
func (f Format) Extension() string {
	if info, ok := FormatRegistry[f]; ok {
		return info.Extension
	}
	return ".rdf"
}

// MIMEType returns the MIME type of the format.
func (f Format) MIMEType() string {
	if info, ok := FormatRegistry[f]; ok {
		return info.MIMEType
	}
	return "application/octet-stream"
}

// Options controls serialization.
type Options struct {
	// Prefixes maps prefix names to namespaces used for compact output.
	Prefixes map[string]string

	// GraphIRI names the graph in quad-aware formats.
	GraphIRI string
}

// Serialize writes triples to w in the given format.
func Serialize(w io.Writer, format Format, triples []Triple, opts Options) error {
	info, ok := FormatRegistry[format]
	if !ok {
		return derrors.UnsupportedFormat(string(format))
	}

	bw := bufio.NewWriter(w)
	if err := info.write(bw, triples, opts); err != nil {
		return err
	}
	return bw.Flush()
}

// SerializeGraph writes the graph contents, using the graph identifier when
// opts does not name one.
func SerializeGraph(w io.Writer, format Format, g *Graph, opts Options) error {
	if opts.GraphIRI == "" {
		opts.GraphIRI = g.Identifier()
	}
	return Serialize(w, format, g.Triples(), opts)
}
