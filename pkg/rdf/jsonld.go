package rdf

import (
	"bufio"
	"encoding/json"
)

// JSONLDDocument represents a JSON-LD document structure.
type JSONLDDocument struct {
	Context map[string]any `json:"@context,omitempty"`
	ID      string         `json:"@id,omitempty"`
	Graph   []JSONLDNode   `json:"@graph"`
}

// JSONLDNode represents a node in a JSON-LD graph. Properties are keyed by
// the expanded predicate IRI.
type JSONLDNode struct {
	ID         string
	Type       []string
	Properties map[string][]any
}

// MarshalJSON implements custom JSON marshaling for JSONLDNode.
func (n JSONLDNode) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(n.Properties)+2)
	m["@id"] = n.ID
	if len(n.Type) > 0 {
		m["@type"] = n.Type
	}
	for k, v := range n.Properties {
		m[k] = v
	}
	return json.Marshal(m)
}

func jsonLDObject(t Term) any {
	if t.IsIRI() {
		return map[string]string{"@id": t.Value}
	}
	if t.isPlain() {
		return map[string]string{"@value": t.Value}
	}
	return map[string]string{"@value": t.Value, "@type": t.Datatype}
}

func writeJSONLD(w *bufio.Writer, triples []Triple, opts Options) error {
	doc := JSONLDDocument{
		ID:    opts.GraphIRI,
		Graph: make([]JSONLDNode, 0),
	}
	if len(opts.Prefixes) > 0 {
		doc.Context = make(map[string]any, len(opts.Prefixes))
		for k, v := range opts.Prefixes {
			doc.Context[k] = v
		}
	}

	for _, group := range groupBySubject(triples) {
		node := JSONLDNode{
			ID:         group.subject.Value,
			Properties: make(map[string][]any),
		}
		for _, pg := range group.predicates {
			for _, obj := range pg.objects {
				if pg.predicate.Value == RDFType && obj.IsIRI() {
					node.Type = append(node.Type, obj.Value)
					continue
				}
				node.Properties[pg.predicate.Value] = append(node.Properties[pg.predicate.Value], jsonLDObject(obj))
			}
		}
		doc.Graph = append(doc.Graph, node)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
