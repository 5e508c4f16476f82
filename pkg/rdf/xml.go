package rdf

import (
	"bufio"
	"encoding/xml"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const trixNamespace = "http://www.w3.org/2004/03/trix/trix-1/"

// xmlNamespaces assigns XML namespace prefixes to predicate and type IRIs.
type xmlNamespaces struct {
	byNamespace map[string]string
	names       []string
	generated   int
}

func newXMLNamespaces(prefixes map[string]string) *xmlNamespaces {
	ns := &xmlNamespaces{byNamespace: map[string]string{NamespaceRDF: "rdf"}}
	ns.names = append(ns.names, "rdf")

	declared := make([]string, 0, len(prefixes))
	for name := range prefixes {
		declared = append(declared, name)
	}
	sort.Strings(declared)
	for _, name := range declared {
		iri := prefixes[name]
		if iri == "" || name == "rdf" || !isNCName(name) {
			continue
		}
		if _, exists := ns.byNamespace[iri]; exists {
			continue
		}
		ns.byNamespace[iri] = name
		ns.names = append(ns.names, name)
	}
	return ns
}

// split divides iri into namespace and an NCName local part.
func splitIRI(iri string) (string, string, bool) {
	idx := strings.LastIndexAny(iri, "#/")
	if idx < 0 || idx == len(iri)-1 {
		return "", "", false
	}
	local := iri[idx+1:]
	if !isNCName(local) {
		return "", "", false
	}
	return iri[:idx+1], local, true
}

// qname returns an element name for iri, registering a generated prefix when needed.
func (n *xmlNamespaces) qname(iri string) (string, error) {
	ns, local, ok := splitIRI(iri)
	if !ok {
		return "", fmt.Errorf("cannot express %q as an XML element name", iri)
	}
	prefix, exists := n.byNamespace[ns]
	if !exists {
		n.generated++
		prefix = "ns" + strconv.Itoa(n.generated)
		n.byNamespace[ns] = prefix
		n.names = append(n.names, prefix)
	}
	return prefix + ":" + local, nil
}

func (n *xmlNamespaces) namespaceOf(prefix string) string {
	for iri, p := range n.byNamespace {
		if p == prefix {
			return iri
		}
	}
	return ""
}

func isNCName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case (r >= '0' && r <= '9') || r == '-' || r == '.':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func escapeXML(s string) string {
	var sb strings.Builder
	_ = xml.EscapeText(&sb, []byte(s))
	return sb.String()
}

func writeRDFXML(w *bufio.Writer, triples []Triple, opts Options) error {
	return writeRDFXMLDocument(w, triples, opts, false)
}

func writePrettyRDFXML(w *bufio.Writer, triples []Triple, opts Options) error {
	return writeRDFXMLDocument(w, triples, opts, true)
}

// writeRDFXMLDocument renders the body first so that every generated
// namespace is known when the root element is written.
func writeRDFXMLDocument(w *bufio.Writer, triples []Triple, opts Options, typedNodes bool) error {
	ns := newXMLNamespaces(opts.Prefixes)
	var body strings.Builder

	for _, group := range groupBySubject(triples) {
		element := "rdf:Description"
		skipType := Term{}

		if typedNodes {
			if typeIRI, ok := firstType(group); ok {
				if name, err := ns.qname(typeIRI.Value); err == nil {
					element = name
					skipType = typeIRI
				}
			}
		}

		fmt.Fprintf(&body, "  <%s rdf:about=\"%s\">\n", element, escapeXML(group.subject.Value))
		for _, pg := range group.predicates {
			name, err := ns.qname(pg.predicate.Value)
			if err != nil {
				return err
			}
			for _, obj := range pg.objects {
				if pg.predicate.Value == RDFType && obj == skipType {
					skipType = Term{}
					continue
				}
				writeXMLProperty(&body, name, obj)
			}
		}
		fmt.Fprintf(&body, "  </%s>\n", element)
	}

	w.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<rdf:RDF")
	for _, prefix := range ns.names {
		fmt.Fprintf(w, "\n   xmlns:%s=\"%s\"", prefix, escapeXML(ns.namespaceOf(prefix)))
	}
	w.WriteString(">\n")
	w.WriteString(body.String())
	w.WriteString("</rdf:RDF>\n")
	return nil
}

func firstType(group *subjectGroup) (Term, bool) {
	for _, pg := range group.predicates {
		if pg.predicate.Value != RDFType {
			continue
		}
		for _, obj := range pg.objects {
			if obj.IsIRI() {
				return obj, true
			}
		}
	}
	return Term{}, false
}

func writeXMLProperty(sb *strings.Builder, name string, obj Term) {
	switch {
	case obj.IsIRI():
		fmt.Fprintf(sb, "    <%s rdf:resource=\"%s\"/>\n", name, escapeXML(obj.Value))
	case obj.isPlain():
		fmt.Fprintf(sb, "    <%s>%s</%s>\n", name, escapeXML(obj.Value), name)
	default:
		fmt.Fprintf(sb, "    <%s rdf:datatype=\"%s\">%s</%s>\n", name, escapeXML(obj.Datatype), escapeXML(obj.Value), name)
	}
}

func writeTriX(w *bufio.Writer, triples []Triple, opts Options) error {
	w.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	fmt.Fprintf(w, "<TriX xmlns=\"%s\">\n  <graph>\n", trixNamespace)
	if opts.GraphIRI != "" {
		fmt.Fprintf(w, "    <uri>%s</uri>\n", escapeXML(opts.GraphIRI))
	}
	for _, t := range triples {
		w.WriteString("    <triple>\n")
		writeTriXTerm(w, t.Subject)
		writeTriXTerm(w, t.Predicate)
		writeTriXTerm(w, t.Object)
		w.WriteString("    </triple>\n")
	}
	w.WriteString("  </graph>\n</TriX>\n")
	return nil
}

func writeTriXTerm(w *bufio.Writer, t Term) {
	switch {
	case t.IsIRI():
		fmt.Fprintf(w, "      <uri>%s</uri>\n", escapeXML(t.Value))
	case t.isPlain():
		fmt.Fprintf(w, "      <plainLiteral>%s</plainLiteral>\n", escapeXML(t.Value))
	default:
		fmt.Fprintf(w, "      <typedLiteral datatype=\"%s\">%s</typedLiteral>\n", escapeXML(t.Datatype), escapeXML(t.Value))
	}
}
