// Package descriptor loads and indexes the declarative mapping that drives
// triple generation: namespace prefixes, entity definitions and the predicate
// rules attached to each feature keypath.
package descriptor

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	derrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/keypath"
	"github.com/wehubfusion/Daedalus/pkg/literal"
	"github.com/wehubfusion/Daedalus/pkg/rdf"
)

// ObjectKind tells whether a rule produces IRI or literal objects.
type ObjectKind string

const (
	ObjectLiteral ObjectKind = "literal"
	ObjectEntity  ObjectKind = "entity"
)

// Rule is one candidate predicate mapping for a feature.
type Rule struct {
	Predicate     string            `yaml:"predicate"`
	ObjectType    ObjectKind        `yaml:"object_type"`
	DataType      string            `yaml:"data_type"`
	Score         float64           `yaml:"score"`
	Substitutions map[string]string `yaml:"substitutions"`
	Function      string            `yaml:"function"`
	Script        string            `yaml:"script"`

	fn *literal.Function
}

// LiteralFunction returns the compiled function applied to literal values, or nil.
func (r *Rule) LiteralFunction() *literal.Function {
	return r.fn
}

// SubstitutionPath returns the keypath of a substitution, falling back to
// its name when no keypath is given.
func (r *Rule) SubstitutionPath(name string) string {
	if path := r.Substitutions[name]; path != "" {
		return path
	}
	return name
}

// Property binds a feature keypath to its candidate rules in declaration order.
type Property struct {
	Keypath string
	Rules   []*Rule
}

// SelectRule returns the rule with the highest score. Ties go to the rule
// declared last.
func (p *Property) SelectRule() *Rule {
	var best *Rule
	for _, r := range p.Rules {
		if best == nil || r.Score >= best.Score {
			best = r
		}
	}
	return best
}

// Entity is a named, typed subject definition.
type Entity struct {
	Name       string
	Type       string
	Template   string
	Properties []*Property

	variables []string
}

// Variables returns the template variable names in order of appearance.
func (e *Entity) Variables() []string {
	return e.variables
}

// Descriptor is a validated, read-only mapping configuration. It is safe for
// concurrent use.
type Descriptor struct {
	prefixes map[string]string
	graph    string
	entities []*Entity
	byName   map[string]*Entity
	byType   map[string]*Entity
}

type rawDescriptor struct {
	Prefixes map[string]string `yaml:"prefixes"`
	Graph    string            `yaml:"graph"`
	Entities yaml.Node         `yaml:"entities"`
}

type rawEntity struct {
	Type        string    `yaml:"type"`
	URITemplate string    `yaml:"uri_template"`
	Template    string    `yaml:"template"`
	Properties  yaml.Node `yaml:"properties"`
	Features    yaml.Node `yaml:"features"`
}

// Load reads and parses a descriptor file. YAML and JSON are both accepted.
func Load(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read descriptor: %w", err)
	}
	d, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("descriptor %s: %w", path, err)
	}
	return d, nil
}

// Parse decodes and validates a descriptor document.
func Parse(data []byte) (*Descriptor, error) {
	var raw rawDescriptor
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, derrors.NewError(derrors.CodeInvalidDescriptor, "failed to decode descriptor", err)
	}

	d := &Descriptor{
		prefixes: rdf.DefaultPrefixes(),
		graph:    raw.Graph,
		byName:   make(map[string]*Entity),
		byType:   make(map[string]*Entity),
	}
	for name, ns := range raw.Prefixes {
		d.prefixes[name] = ns
	}

	entities, err := decodeEntities(&raw.Entities)
	if err != nil {
		return nil, err
	}
	for _, e := range entities {
		if _, dup := d.byName[e.Name]; dup {
			return nil, derrors.InvalidDescriptor(fmt.Sprintf("entity %q declared twice", e.Name))
		}
		d.entities = append(d.entities, e)
		d.byName[e.Name] = e
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

func decodeEntities(node *yaml.Node) ([]*Entity, error) {
	if node.Kind == 0 {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, derrors.InvalidDescriptor("entities must be a mapping")
	}

	entities := make([]*Entity, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value

		var raw rawEntity
		if err := node.Content[i+1].Decode(&raw); err != nil {
			return nil, derrors.NewError(derrors.CodeInvalidDescriptor, fmt.Sprintf("entity %q", name), err)
		}

		e := &Entity{
			Name:     name,
			Type:     raw.Type,
			Template: raw.URITemplate,
		}
		if e.Template == "" {
			e.Template = raw.Template
		}

		props := &raw.Properties
		if props.Kind == 0 {
			props = &raw.Features
		}
		properties, err := decodeProperties(name, props)
		if err != nil {
			return nil, err
		}
		e.Properties = properties
		e.variables = TemplateVariableNames(e.Template)

		entities = append(entities, e)
	}
	return entities, nil
}

func decodeProperties(entity string, node *yaml.Node) ([]*Property, error) {
	if node.Kind == 0 {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, derrors.InvalidDescriptor(fmt.Sprintf("entity %q: properties must be a mapping", entity))
	}

	properties := make([]*Property, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		prop := &Property{Keypath: node.Content[i].Value}
		value := node.Content[i+1]

		switch value.Kind {
		case yaml.SequenceNode:
			if err := value.Decode(&prop.Rules); err != nil {
				return nil, derrors.NewError(derrors.CodeInvalidDescriptor,
					fmt.Sprintf("entity %q property %q", entity, prop.Keypath), err)
			}
		case yaml.MappingNode:
			rule := &Rule{}
			if err := value.Decode(rule); err != nil {
				return nil, derrors.NewError(derrors.CodeInvalidDescriptor,
					fmt.Sprintf("entity %q property %q", entity, prop.Keypath), err)
			}
			prop.Rules = []*Rule{rule}
		default:
			return nil, derrors.InvalidDescriptor(
				fmt.Sprintf("entity %q property %q: expected a rule or a list of rules", entity, prop.Keypath))
		}

		properties = append(properties, prop)
	}
	return properties, nil
}

// Prefixes returns a copy of the prefix table, including the defaults.
func (d *Descriptor) Prefixes() map[string]string {
	out := make(map[string]string, len(d.prefixes))
	for k, v := range d.prefixes {
		out[k] = v
	}
	return out
}

// GraphIRI returns the declared named graph, resolved when prefixed.
func (d *Descriptor) GraphIRI() string {
	if d.graph == "" {
		return ""
	}
	if iri, err := d.Resolve(d.graph); err == nil {
		return iri
	}
	return d.graph
}

// Entities returns the entities in declaration order.
func (d *Descriptor) Entities() []*Entity {
	return d.entities
}

// Entity looks up an entity by name.
func (d *Descriptor) Entity(name string) (*Entity, bool) {
	e, ok := d.byName[name]
	return e, ok
}

// EntityByType looks up the entity declaring the given RDF type. The type may
// be prefixed or a full IRI.
func (d *Descriptor) EntityByType(typeTerm string) (*Entity, bool) {
	if typeTerm == "" {
		return nil, false
	}
	if iri, err := d.Resolve(typeTerm); err == nil {
		if e, ok := d.byType[iri]; ok {
			return e, true
		}
	}
	e, ok := d.byType[typeTerm]
	return e, ok
}

// IsPrefixed reports whether term is written as prefix:local rather than as
// an absolute IRI.
func IsPrefixed(term string) bool {
	_, _, ok := splitPrefixed(term)
	return ok
}

func splitPrefixed(term string) (prefix, local string, ok bool) {
	if strings.HasPrefix(term, "<") && strings.HasSuffix(term, ">") {
		return "", "", false
	}
	idx := strings.IndexByte(term, ':')
	if idx < 0 {
		return "", "", false
	}
	if strings.HasPrefix(term[idx+1:], "//") {
		return "", "", false
	}
	return term[:idx], term[idx+1:], true
}

// Resolve expands a prefixed term into an IRI. Absolute IRIs and <...>
// references are returned as is.
func (d *Descriptor) Resolve(term string) (string, error) {
	if strings.HasPrefix(term, "<") && strings.HasSuffix(term, ">") {
		return term[1 : len(term)-1], nil
	}

	prefix, local, ok := splitPrefixed(term)
	if !ok {
		return term, nil
	}
	ns, declared := d.prefixes[prefix]
	if !declared {
		return "", derrors.UnknownPrefix(prefix, term)
	}
	return ns + local, nil
}

// Validate checks everything evaluation relies on and compiles literal
// functions. It indexes entities by type as a side effect.
func (d *Descriptor) Validate() error {
	for _, e := range d.entities {
		if e.Type == "" {
			return derrors.InvalidDescriptor(fmt.Sprintf("entity %q has no type", e.Name))
		}
		typeIRI, err := d.Resolve(e.Type)
		if err != nil {
			return fmt.Errorf("entity %q type: %w", e.Name, err)
		}
		d.byType[typeIRI] = e

		if len(e.variables) == 0 {
			return derrors.InvalidDescriptor(fmt.Sprintf("entity %q: uri_template %q has no variables", e.Name, e.Template))
		}
		for _, v := range e.variables {
			if _, err := keypath.Parse(v); err != nil {
				return derrors.NewError(derrors.CodeInvalidDescriptor, fmt.Sprintf("entity %q template variable", e.Name), err)
			}
		}
	}

	for _, e := range d.entities {
		for _, p := range e.Properties {
			if err := d.validateProperty(e, p); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Descriptor) validateProperty(e *Entity, p *Property) error {
	where := fmt.Sprintf("entity %q property %q", e.Name, p.Keypath)

	if _, err := keypath.Parse(p.Keypath); err != nil {
		return derrors.NewError(derrors.CodeInvalidDescriptor, where, err)
	}
	if len(p.Rules) == 0 {
		return derrors.InvalidDescriptor(where + ": no predicate rules")
	}

	for _, r := range p.Rules {
		if r.Predicate == "" {
			return derrors.InvalidDescriptor(where + ": rule without predicate")
		}
		if _, err := d.Resolve(r.Predicate); err != nil {
			return fmt.Errorf("%s: %w", where, err)
		}

		switch r.ObjectType {
		case "":
			r.ObjectType = ObjectLiteral
		case ObjectLiteral, ObjectEntity:
		default:
			return derrors.InvalidDescriptor(fmt.Sprintf("%s: unknown object_type %q", where, r.ObjectType))
		}

		if r.DataType != "" {
			if _, err := d.Resolve(r.DataType); err != nil {
				return fmt.Errorf("%s: data_type: %w", where, err)
			}
		}

		if target, ok := d.EntityByType(r.DataType); ok {
			for _, v := range target.variables {
				if _, covered := r.Substitutions[v]; !covered {
					return derrors.InvalidDescriptor(fmt.Sprintf(
						"%s: substitutions do not cover variable %q of entity %q", where, v, target.Name))
				}
			}
		}
		for name := range r.Substitutions {
			if _, err := keypath.Parse(r.SubstitutionPath(name)); err != nil {
				return derrors.NewError(derrors.CodeInvalidDescriptor, where+": substitution "+name, err)
			}
		}

		if err := compileFunction(r); err != nil {
			return derrors.NewError(derrors.CodeInvalidDescriptor, where, err)
		}
	}
	return nil
}

func compileFunction(r *Rule) error {
	var err error
	switch {
	case r.Function != "" && r.Script != "":
		return fmt.Errorf("function and script are mutually exclusive")
	case r.Function != "":
		r.fn, err = literal.Builtin(r.Function)
	case r.Script != "":
		r.fn, err = literal.Compile(r.Script)
	}
	return err
}
