package rdf

// Graph is an in-memory set of triples. Insertion order is kept so that
// serializations are stable. A closed graph releases its storage and rejects
// further additions.
type Graph struct {
	identifier string
	triples    []Triple
	index      map[Triple]struct{}
	closed     bool
}

// NewGraph creates an empty graph. identifier is the named-graph IRI and may be empty.
func NewGraph(identifier string) *Graph {
	return &Graph{
		identifier: identifier,
		index:      make(map[Triple]struct{}),
	}
}

// Identifier returns the named-graph IRI.
func (g *Graph) Identifier() string {
	return g.identifier
}

// Add inserts t and reports whether it was not already present.
func (g *Graph) Add(t Triple) bool {
	if g.closed {
		return false
	}
	if _, exists := g.index[t]; exists {
		return false
	}
	g.index[t] = struct{}{}
	g.triples = append(g.triples, t)
	return true
}

// Contains reports whether t is in the graph.
func (g *Graph) Contains(t Triple) bool {
	_, ok := g.index[t]
	return ok
}

// Len returns the number of distinct triples.
func (g *Graph) Len() int {
	return len(g.triples)
}

// Triples returns the triples in insertion order. The slice must not be modified.
func (g *Graph) Triples() []Triple {
	return g.triples
}

// Close releases the graph storage.
func (g *Graph) Close() {
	g.closed = true
	g.triples = nil
	g.index = nil
}

// Closed reports whether Close was called.
func (g *Graph) Closed() bool {
	return g.closed
}
