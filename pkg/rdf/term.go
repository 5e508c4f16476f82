// Package rdf holds the triple data model, an in-memory graph with explicit
// lifecycle, and serializers for the supported RDF formats.
package rdf

import (
	"strings"
)

// Well-known namespaces.
const (
	NamespaceRDF  = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	NamespaceRDFS = "http://www.w3.org/2000/01/rdf-schema#"
	NamespaceXSD  = "http://www.w3.org/2001/XMLSchema#"
	NamespaceOWL  = "http://www.w3.org/2002/07/owl#"

	// RDFType is the rdf:type predicate
	RDFType = NamespaceRDF + "type"

	// XSDString is the implicit datatype of plain literals
	XSDString = NamespaceXSD + "string"
)

// DefaultPrefixes returns the namespace prefixes every descriptor can rely on.
func DefaultPrefixes() map[string]string {
	return map[string]string{
		"rdf":  NamespaceRDF,
		"rdfs": NamespaceRDFS,
		"xsd":  NamespaceXSD,
		"owl":  NamespaceOWL,
	}
}

// TermKind distinguishes IRIs from literals.
type TermKind uint8

const (
	// KindIRI is an IRI reference
	KindIRI TermKind = iota

	// KindLiteral is a literal value with an optional datatype
	KindLiteral
)

// Term is an immutable RDF term.
type Term struct {
	Kind     TermKind
	Value    string
	Datatype string
}

// NewIRI creates an IRI term.
func NewIRI(iri string) Term {
	return Term{Kind: KindIRI, Value: iri}
}

// NewLiteral creates a literal term. An empty datatype denotes a plain literal.
func NewLiteral(lexical, datatype string) Term {
	return Term{Kind: KindLiteral, Value: lexical, Datatype: datatype}
}

// IsIRI reports whether the term is an IRI.
func (t Term) IsIRI() bool {
	return t.Kind == KindIRI
}

// IsLiteral reports whether the term is a literal.
func (t Term) IsLiteral() bool {
	return t.Kind == KindLiteral
}

// isPlain reports whether a literal needs no datatype annotation.
func (t Term) isPlain() bool {
	return t.Datatype == "" || t.Datatype == XSDString
}

// NTriples renders the term in N-Triples syntax.
func (t Term) NTriples() string {
	if t.IsIRI() {
		return "<" + escapeIRI(t.Value) + ">"
	}
	if t.isPlain() {
		return `"` + escapeString(t.Value) + `"`
	}
	return `"` + escapeString(t.Value) + `"^^<` + escapeIRI(t.Datatype) + ">"
}

// String returns the N-Triples form of the term.
func (t Term) String() string {
	return t.NTriples()
}

// Triple is an immutable (subject, predicate, object) statement.
type Triple struct {
	Subject   Term
	Predicate Term
	Object    Term
}

// NewTriple creates a triple.
func NewTriple(subject, predicate, object Term) Triple {
	return Triple{Subject: subject, Predicate: predicate, Object: object}
}

// String returns the triple as an N-Triples statement without the line break.
func (t Triple) String() string {
	return t.Subject.NTriples() + " " + t.Predicate.NTriples() + " " + t.Object.NTriples() + " ."
}

// escapeString escapes special characters in strings for RDF serialization.
func escapeString(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	s = strings.ReplaceAll(s, "\r", "\\r")
	s = strings.ReplaceAll(s, "\t", "\\t")
	return s
}

var iriEscaper = strings.NewReplacer(
	" ", "%20",
	"<", "%3C",
	">", "%3E",
	`"`, "%22",
	"{", "%7B",
	"}", "%7D",
	"|", "%7C",
	"^", "%5E",
	"`", "%60",
	"\\", "%5C",
)

// escapeIRI percent-encodes characters that are not allowed inside <...>.
func escapeIRI(iri string) string {
	return iriEscaper.Replace(iri)
}
