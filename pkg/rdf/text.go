package rdf

import (
	"bufio"
	"sort"
	"strings"
)

func writeNTriples(w *bufio.Writer, triples []Triple, _ Options) error {
	for _, t := range triples {
		w.WriteString(t.String())
		w.WriteByte('\n')
	}
	return nil
}

func writeNQuads(w *bufio.Writer, triples []Triple, opts Options) error {
	if opts.GraphIRI == "" {
		return writeNTriples(w, triples, opts)
	}

	graph := NewIRI(opts.GraphIRI).NTriples()
	for _, t := range triples {
		w.WriteString(t.Subject.NTriples())
		w.WriteByte(' ')
		w.WriteString(t.Predicate.NTriples())
		w.WriteByte(' ')
		w.WriteString(t.Object.NTriples())
		w.WriteByte(' ')
		w.WriteString(graph)
		w.WriteString(" .\n")
	}
	return nil
}

func writeTurtle(w *bufio.Writer, triples []Triple, opts Options) error {
	c := newCompactor(opts.Prefixes)
	c.writePrefixes(w)
	writeTurtleBody(w, c, triples, "")
	return nil
}

func writeTriG(w *bufio.Writer, triples []Triple, opts Options) error {
	c := newCompactor(opts.Prefixes)
	c.writePrefixes(w)

	if opts.GraphIRI != "" {
		w.WriteString(c.iri(opts.GraphIRI))
		w.WriteByte(' ')
	}
	w.WriteString("{\n")
	writeTurtleBody(w, c, triples, "    ")
	w.WriteString("}\n")
	return nil
}

// writeTurtleBody groups triples by subject, then by predicate, in first
// appearance order.
func writeTurtleBody(w *bufio.Writer, c *compactor, triples []Triple, indent string) {
	for _, group := range groupBySubject(triples) {
		w.WriteString(indent)
		w.WriteString(c.iri(group.subject.Value))
		w.WriteByte('\n')

		for i, pg := range group.predicates {
			w.WriteString(indent)
			w.WriteString("    ")
			if pg.predicate.Value == RDFType {
				w.WriteString("a")
			} else {
				w.WriteString(c.iri(pg.predicate.Value))
			}
			w.WriteByte(' ')
			for j, obj := range pg.objects {
				if j > 0 {
					w.WriteString(", ")
				}
				w.WriteString(c.term(obj))
			}
			if i == len(group.predicates)-1 {
				w.WriteString(" .\n")
			} else {
				w.WriteString(" ;\n")
			}
		}
		w.WriteByte('\n')
	}
}

type predicateGroup struct {
	predicate Term
	objects   []Term
}

type subjectGroup struct {
	subject    Term
	predicates []*predicateGroup
}

func groupBySubject(triples []Triple) []*subjectGroup {
	var groups []*subjectGroup
	bySubject := make(map[Term]*subjectGroup)
	byPredicate := make(map[[2]Term]*predicateGroup)

	for _, t := range triples {
		sg, ok := bySubject[t.Subject]
		if !ok {
			sg = &subjectGroup{subject: t.Subject}
			bySubject[t.Subject] = sg
			groups = append(groups, sg)
		}
		key := [2]Term{t.Subject, t.Predicate}
		pg, ok := byPredicate[key]
		if !ok {
			pg = &predicateGroup{predicate: t.Predicate}
			byPredicate[key] = pg
			sg.predicates = append(sg.predicates, pg)
		}
		pg.objects = append(pg.objects, t.Object)
	}
	return groups
}

// compactor abbreviates IRIs with the longest matching namespace.
type compactor struct {
	names      []string
	namespaces map[string]string
}

func newCompactor(prefixes map[string]string) *compactor {
	c := &compactor{namespaces: make(map[string]string, len(prefixes))}
	for name, ns := range prefixes {
		if ns == "" {
			continue
		}
		c.names = append(c.names, name)
		c.namespaces[name] = ns
	}
	sort.Strings(c.names)
	return c
}

func (c *compactor) writePrefixes(w *bufio.Writer) {
	for _, name := range c.names {
		w.WriteString("@prefix ")
		w.WriteString(name)
		w.WriteString(": <")
		w.WriteString(escapeIRI(c.namespaces[name]))
		w.WriteString("> .\n")
	}
	if len(c.names) > 0 {
		w.WriteByte('\n')
	}
}

// qname returns prefix and local name for iri, or ok=false.
func (c *compactor) qname(iri string) (prefix, local string, ok bool) {
	best := -1
	for _, name := range c.names {
		ns := c.namespaces[name]
		if !strings.HasPrefix(iri, ns) || !isLocalName(iri[len(ns):]) {
			continue
		}
		if len(ns) > best {
			best = len(ns)
			prefix, local, ok = name, iri[len(ns):], true
		}
	}
	return prefix, local, ok
}

func (c *compactor) iri(iri string) string {
	if prefix, local, ok := c.qname(iri); ok {
		return prefix + ":" + local
	}
	return "<" + escapeIRI(iri) + ">"
}

func (c *compactor) term(t Term) string {
	if t.IsIRI() {
		return c.iri(t.Value)
	}
	if t.isPlain() {
		return `"` + escapeString(t.Value) + `"`
	}
	return `"` + escapeString(t.Value) + `"^^` + c.iri(t.Datatype)
}

// isLocalName accepts the portable subset of Turtle local names.
func isLocalName(s string) bool {
	if s == "" || strings.HasSuffix(s, ".") {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		case (r == '-' || r == '.') && i > 0:
		default:
			return false
		}
	}
	return true
}
