// Package transform turns records into triples according to a descriptor.
package transform

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/descriptor"
	derrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/keypath"
	"github.com/wehubfusion/Daedalus/pkg/literal"
	"github.com/wehubfusion/Daedalus/pkg/rdf"
)

var rdfType = rdf.NewIRI(rdf.RDFType)

// Engine produces the triples of one record at a time. The descriptor is
// shared read-only; the script runtime is private, so each goroutine needs
// its own Engine.
type Engine struct {
	desc    *descriptor.Descriptor
	logger  *zap.Logger
	runtime *literal.Runtime
	noJS    bool
}

// NewEngine creates an engine for desc. A nil logger disables logging.
func NewEngine(desc *descriptor.Descriptor, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		desc:   desc,
		logger: logger,
	}
}

// feature is a property whose rule has been selected and whose objects have
// been resolved for the current record.
type feature struct {
	predicate rdf.Term
	objects   []rdf.Term
}

// Transform returns the triples for every entity found in record, in entity
// declaration order, then subject order, then feature order, then match
// order. Template mismatches and entity-level prefix errors abort the record.
func (e *Engine) Transform(record keypath.Record) ([]rdf.Triple, error) {
	var triples []rdf.Triple

	for _, ent := range e.desc.Entities() {
		subjects, err := e.subjects(ent, record)
		if err != nil {
			return nil, fmt.Errorf("entity %q: %w", ent.Name, err)
		}
		if len(subjects) == 0 {
			continue
		}

		typeIRI, err := e.desc.Resolve(ent.Type)
		if err != nil {
			return nil, fmt.Errorf("entity %q: %w", ent.Name, err)
		}
		typeTerm := rdf.NewIRI(typeIRI)

		features := make([]feature, 0, len(ent.Properties))
		for _, prop := range ent.Properties {
			f, ok, err := e.resolveFeature(ent, prop, record)
			if err != nil {
				return nil, fmt.Errorf("entity %q property %q: %w", ent.Name, prop.Keypath, err)
			}
			if ok {
				features = append(features, f)
			}
		}

		for _, s := range subjects {
			subject := rdf.NewIRI(s)
			triples = append(triples, rdf.NewTriple(subject, rdfType, typeTerm))
			for _, f := range features {
				for _, obj := range f.objects {
					triples = append(triples, rdf.NewTriple(subject, f.predicate, obj))
				}
			}
		}
	}

	return triples, nil
}

// subjects builds the entity IRIs for record. No matches means the entity is
// absent.
func (e *Engine) subjects(ent *descriptor.Entity, record keypath.Record) ([]string, error) {
	subs, counts := gather(ent.Variables(), func(v string) string { return v }, record)

	count, err := uniformCount(ent.Template, ent.Variables(), counts)
	if err != nil || count == 0 {
		return nil, err
	}

	uris, err := descriptor.SubstituteTemplate(ent.Template, subs, count)
	if err != nil {
		return nil, err
	}
	for i, u := range uris {
		iri, err := e.desc.Resolve(u)
		if err != nil {
			return nil, err
		}
		uris[i] = iri
	}
	return uris, nil
}

// resolveFeature evaluates one property. ok is false when the feature has no
// matches or its predicate cannot be resolved.
func (e *Engine) resolveFeature(ent *descriptor.Entity, prop *descriptor.Property, record keypath.Record) (feature, bool, error) {
	matches := keypath.Evaluate(record, prop.Keypath)
	if len(matches) == 0 {
		return feature{}, false, nil
	}

	rule := prop.SelectRule()
	predicate, err := e.desc.Resolve(rule.Predicate)
	if err != nil {
		e.logger.Warn("Skipping feature with unresolvable predicate",
			zap.String("entity", ent.Name),
			zap.String("keypath", prop.Keypath),
			zap.Error(err))
		return feature{}, false, nil
	}

	f := feature{predicate: rdf.NewIRI(predicate)}
	target, isEntity := e.desc.EntityByType(rule.DataType)

	for _, m := range matches {
		var objects []rdf.Term
		switch {
		case isEntity:
			objects, err = e.entityObjects(target, rule, prop.Keypath, m)
			if err != nil {
				return feature{}, false, err
			}
		case rule.ObjectType == descriptor.ObjectEntity:
			if obj, ok := e.iriObject(rule, m); ok {
				objects = []rdf.Term{obj}
			}
		default:
			if obj, ok := e.literalObject(rule, m); ok {
				objects = []rdf.Term{obj}
			}
		}
		f.objects = append(f.objects, objects...)
	}

	return f, len(f.objects) > 0, nil
}

// entityObjects resolves a sub-object into IRIs of the referenced entity.
// A substitution without matches skips the object.
func (e *Engine) entityObjects(target *descriptor.Entity, rule *descriptor.Rule, base string, m keypath.Match) ([]rdf.Term, error) {
	variables := target.Variables()
	subs, counts := gather(variables, func(v string) string {
		return descriptor.RelativePath(rule.SubstitutionPath(v), base)
	}, m.Value)

	for i, c := range counts {
		if c == 0 {
			e.logger.Debug("Skipping object without substitution value",
				zap.String("path", m.Path),
				zap.String("variable", variables[i]))
			return nil, nil
		}
	}

	count, err := uniformCount(target.Template, variables, counts)
	if err != nil {
		return nil, err
	}
	uris, err := descriptor.SubstituteTemplate(target.Template, subs, count)
	if err != nil {
		return nil, err
	}

	objects := make([]rdf.Term, 0, len(uris))
	for _, u := range uris {
		iri, err := e.desc.Resolve(u)
		if err != nil {
			e.logger.Warn("Skipping object with unknown prefix",
				zap.String("path", m.Path),
				zap.Error(err))
			continue
		}
		objects = append(objects, rdf.NewIRI(iri))
	}
	return objects, nil
}

func (e *Engine) iriObject(rule *descriptor.Rule, m keypath.Match) (rdf.Term, bool) {
	lex, ok := descriptor.FormatValue(m.Value)
	if !ok || lex == "" {
		return rdf.Term{}, false
	}
	iri, err := e.desc.Resolve(lex)
	if err != nil {
		e.logger.Warn("Skipping object with unknown prefix",
			zap.String("path", m.Path),
			zap.Error(err))
		return rdf.Term{}, false
	}
	return rdf.NewIRI(iri), true
}

func (e *Engine) literalObject(rule *descriptor.Rule, m keypath.Match) (rdf.Term, bool) {
	lex, ok := descriptor.FormatValue(m.Value)
	if !ok {
		e.logger.Debug("Skipping non-scalar literal", zap.String("path", m.Path))
		return rdf.Term{}, false
	}

	if fn := rule.LiteralFunction(); fn != nil {
		lex = e.applyFunction(fn, lex, m.Path)
	}

	var datatype string
	if rule.DataType != "" {
		dt, err := e.desc.Resolve(rule.DataType)
		if err != nil {
			e.logger.Warn("Skipping literal with unknown datatype prefix",
				zap.String("path", m.Path),
				zap.Error(err))
			return rdf.Term{}, false
		}
		datatype = dt
	}
	return rdf.NewLiteral(lex, datatype), true
}

// applyFunction keeps the original value when the function fails.
func (e *Engine) applyFunction(fn *literal.Function, lex, path string) string {
	if fn.IsScript() && e.runtime == nil {
		if e.noJS {
			return lex
		}
		rt, err := literal.NewRuntime(literal.DefaultTimeout)
		if err != nil {
			e.logger.Error("Failed to create script runtime", zap.Error(err))
			e.noJS = true
			return lex
		}
		e.runtime = rt
	}

	out, err := e.runtime.Apply(fn, lex)
	if err != nil {
		e.logger.Warn("Literal function failed, keeping original value",
			zap.String("function", fn.Name()),
			zap.String("path", path),
			zap.Error(err))
		return lex
	}
	return out
}

// gather evaluates every variable's keypath against scope and renders the
// scalar matches.
func gather(variables []string, pathOf func(string) string, scope any) (map[string][]string, []int) {
	subs := make(map[string][]string, len(variables))
	counts := make([]int, len(variables))

	for i, v := range variables {
		matches := keypath.Evaluate(scope, pathOf(v))
		values := make([]string, 0, len(matches))
		for _, m := range matches {
			if s, ok := descriptor.FormatValue(m.Value); ok {
				values = append(values, s)
			}
		}
		subs[v] = values
		counts[i] = len(values)
	}
	return subs, counts
}

func uniformCount(template string, variables []string, counts []int) (int, error) {
	if len(counts) == 0 {
		return 0, nil
	}
	for i := 1; i < len(counts); i++ {
		if counts[i] != counts[0] {
			return 0, derrors.TemplateMismatch(template, variables[i], counts[i], counts[0])
		}
	}
	return counts[0], nil
}
