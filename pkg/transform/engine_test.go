package transform

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wehubfusion/Daedalus/pkg/descriptor"
	derrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/keypath"
	"github.com/wehubfusion/Daedalus/pkg/rdf"
)

const (
	ex   = "http://example.org/"
	foaf = "http://xmlns.com/foaf/0.1/"
)

func newEngine(t *testing.T, doc string) *Engine {
	t.Helper()
	d, err := descriptor.Parse([]byte(doc))
	require.NoError(t, err)
	return NewEngine(d, nil)
}

func record(t *testing.T, raw string) keypath.Record {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var rec any
	require.NoError(t, dec.Decode(&rec))
	return rec
}

func iri(s string) rdf.Term { return rdf.NewIRI(s) }

func lit(s string) rdf.Term { return rdf.NewLiteral(s, "") }

const personDescriptor = `
prefixes:
  ex: http://example.org/
  foaf: http://xmlns.com/foaf/0.1/
entities:
  Person:
    type: ex:PersonType
    uri_template: "ex:{id}"
    properties:
      /name:
        - predicate: foaf:name
          score: 1
      /tags/[*]:
        - predicate: ex:tag
`

func TestTransformPerson(t *testing.T) {
	e := newEngine(t, personDescriptor)

	triples, err := e.Transform(record(t, `{"id": "42", "name": "Ada"}`))
	require.NoError(t, err)

	assert.Equal(t, []rdf.Triple{
		rdf.NewTriple(iri(ex+"42"), iri(rdf.RDFType), iri(ex+"PersonType")),
		rdf.NewTriple(iri(ex+"42"), iri(foaf+"name"), lit("Ada")),
	}, triples)
}

func TestTransformWildcardFeature(t *testing.T) {
	e := newEngine(t, personDescriptor)

	triples, err := e.Transform(record(t, `{"id": "1", "tags": ["a", "b"]}`))
	require.NoError(t, err)

	assert.Equal(t, []rdf.Triple{
		rdf.NewTriple(iri(ex+"1"), iri(rdf.RDFType), iri(ex+"PersonType")),
		rdf.NewTriple(iri(ex+"1"), iri(ex+"tag"), lit("a")),
		rdf.NewTriple(iri(ex+"1"), iri(ex+"tag"), lit("b")),
	}, triples)
}

func TestTransformAbsentEntity(t *testing.T) {
	e := newEngine(t, personDescriptor)

	triples, err := e.Transform(record(t, `{"name": "nobody"}`))
	require.NoError(t, err)
	assert.Empty(t, triples)
}

func TestTransformIsIdempotent(t *testing.T) {
	e := newEngine(t, personDescriptor)
	rec := record(t, `{"id": "7", "name": "Grace", "tags": ["x", "y", "z"]}`)

	first, err := e.Transform(rec)
	require.NoError(t, err)
	second, err := e.Transform(rec)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestTransformPredicateSelection(t *testing.T) {
	tests := []struct {
		name  string
		rules string
		want  string
	}{
		{
			name:  "higher score declared last",
			rules: "        - predicate: ex:low\n          score: 1\n        - predicate: ex:high\n          score: 2\n",
			want:  ex + "high",
		},
		{
			name:  "higher score declared first",
			rules: "        - predicate: ex:high\n          score: 2\n        - predicate: ex:low\n          score: 1\n",
			want:  ex + "high",
		},
		{
			name:  "tie picks last declared",
			rules: "        - predicate: ex:first\n          score: 1\n        - predicate: ex:second\n          score: 1\n",
			want:  ex + "second",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := "prefixes: {ex: 'http://example.org/'}\nentities:\n  P:\n    type: ex:P\n    uri_template: 'ex:{id}'\n" +
				"    properties:\n      /v:\n" + tt.rules
			e := newEngine(t, doc)

			for i := 0; i < 3; i++ {
				triples, err := e.Transform(record(t, `{"id": "1", "v": "x"}`))
				require.NoError(t, err)
				require.Len(t, triples, 2)
				assert.Equal(t, tt.want, triples[1].Predicate.Value)
			}
		})
	}
}

const tweetDescriptor = `
prefixes:
  ex: http://example.org/
entities:
  Tweet:
    type: ex:Tweet
    uri_template: "ex:tweet/{/id_str}"
    properties:
      /created:
        - predicate: ex:created
          data_type: xsd:dateTime
      /entities/user_mentions/[*]:
        - predicate: ex:mentions
          object_type: entity
          data_type: ex:User
          substitutions:
            /id_str: /entities/user_mentions/[*]/id_str
      /url:
        - predicate: ex:link
          object_type: entity
      /lang:
        - predicate: ex:lang
          function: upper
      /slug:
        - predicate: ex:slug
          script: "value.split('-').join('_')"
  User:
    type: ex:User
    uri_template: "ex:user/{/id_str}"
    properties:
      /screen_name:
        - predicate: ex:nick
`

func TestTransformEntityObjects(t *testing.T) {
	e := newEngine(t, tweetDescriptor)

	rec := record(t, `{
		"id_str": "100",
		"created": "2020-01-01T00:00:00Z",
		"entities": {"user_mentions": [{"id_str": "7"}, {"name": "no id"}, {"id_str": "9"}]},
		"url": "ex:page/1",
		"lang": "en",
		"slug": "a-b-c"
	}`)

	triples, err := e.Transform(rec)
	require.NoError(t, err)

	tweet := iri(ex + "tweet/100")
	assert.Equal(t, []rdf.Triple{
		rdf.NewTriple(tweet, iri(rdf.RDFType), iri(ex+"Tweet")),
		rdf.NewTriple(tweet, iri(ex+"created"), rdf.NewLiteral("2020-01-01T00:00:00Z", rdf.NamespaceXSD+"dateTime")),
		rdf.NewTriple(tweet, iri(ex+"mentions"), iri(ex+"user/7")),
		rdf.NewTriple(tweet, iri(ex+"mentions"), iri(ex+"user/9")),
		rdf.NewTriple(tweet, iri(ex+"link"), iri(ex+"page/1")),
		rdf.NewTriple(tweet, iri(ex+"lang"), lit("EN")),
		rdf.NewTriple(tweet, iri(ex+"slug"), lit("a_b_c")),
		rdf.NewTriple(iri(ex+"user/100"), iri(rdf.RDFType), iri(ex+"User")),
	}, triples)
}

func TestTransformEntityOrder(t *testing.T) {
	e := newEngine(t, tweetDescriptor)

	triples, err := e.Transform(record(t, `{"id_str": "5", "screen_name": "ada"}`))
	require.NoError(t, err)

	require.Len(t, triples, 3)
	assert.Equal(t, ex+"tweet/5", triples[0].Subject.Value)
	assert.Equal(t, ex+"user/5", triples[1].Subject.Value)
	assert.Equal(t, ex+"nick", triples[2].Predicate.Value)
}

func TestTransformMultipleSubjects(t *testing.T) {
	doc := `
prefixes: {ex: 'http://example.org/'}
entities:
  Item:
    type: ex:Item
    uri_template: "ex:{/items/[*]/sku}"
    properties:
      /store:
        - predicate: ex:store
`
	e := newEngine(t, doc)

	triples, err := e.Transform(record(t, `{"store": "s1", "items": [{"sku": "a"}, {"sku": "b"}]}`))
	require.NoError(t, err)

	assert.Equal(t, []rdf.Triple{
		rdf.NewTriple(iri(ex+"a"), iri(rdf.RDFType), iri(ex+"Item")),
		rdf.NewTriple(iri(ex+"a"), iri(ex+"store"), lit("s1")),
		rdf.NewTriple(iri(ex+"b"), iri(rdf.RDFType), iri(ex+"Item")),
		rdf.NewTriple(iri(ex+"b"), iri(ex+"store"), lit("s1")),
	}, triples)
}

func TestTransformEntityTemplateMismatch(t *testing.T) {
	doc := `
prefixes: {ex: 'http://example.org/'}
entities:
  Pair:
    type: ex:Pair
    uri_template: "ex:{/a/[*]}/{/b/[*]}"
`
	e := newEngine(t, doc)

	triples, err := e.Transform(record(t, `{"a": [1, 2], "b": [1]}`))
	assert.True(t, derrors.IsTemplateMismatch(err))
	assert.Nil(t, triples)
}

func TestTransformObjectTemplateMismatch(t *testing.T) {
	doc := `
prefixes: {ex: 'http://example.org/'}
entities:
  A:
    type: ex:A
    uri_template: "ex:a/{id}"
    properties:
      /refs/[*]:
        - predicate: ex:ref
          data_type: ex:B
          substitutions:
            x: /refs/[*]/xs/[*]
            y: /refs/[*]/y
  B:
    type: ex:B
    uri_template: "ex:b/{x}/{y}"
`
	e := newEngine(t, doc)

	_, err := e.Transform(record(t, `{"id": "1", "refs": [{"xs": [1, 2], "y": "q"}]}`))
	assert.True(t, derrors.IsTemplateMismatch(err))

	triples, err := e.Transform(record(t, `{"id": "1", "refs": [{"xs": [1], "y": "q"}]}`))
	require.NoError(t, err)
	assert.Equal(t, iri(ex+"b/1/q"), triples[len(triples)-1].Object)
}

func TestTransformUnknownPrefixInData(t *testing.T) {
	doc := `
prefixes: {ex: 'http://example.org/'}
entities:
  A:
    type: ex:A
    uri_template: "{/iri}"
    properties:
      /link:
        - predicate: ex:link
          object_type: entity
`
	e := newEngine(t, doc)

	_, err := e.Transform(record(t, `{"iri": "zz:1"}`))
	assert.True(t, derrors.IsUnknownPrefix(err), "entity level prefix errors abort the record")

	triples, err := e.Transform(record(t, `{"iri": "http://x.org/1", "link": "zz:2"}`))
	require.NoError(t, err, "object level prefix errors only skip the triple")
	require.Len(t, triples, 1)
	assert.Equal(t, iri(rdf.RDFType), triples[0].Predicate)
}

func TestTransformSkipsNonScalarLiterals(t *testing.T) {
	e := newEngine(t, personDescriptor)

	triples, err := e.Transform(record(t, `{"id": "3", "name": {"first": "A"}, "tags": ["a", {"b": 1}, null]}`))
	require.NoError(t, err)

	assert.Equal(t, []rdf.Triple{
		rdf.NewTriple(iri(ex+"3"), iri(rdf.RDFType), iri(ex+"PersonType")),
		rdf.NewTriple(iri(ex+"3"), iri(ex+"tag"), lit("a")),
	}, triples)
}

func TestTransformNumericValues(t *testing.T) {
	doc := `
prefixes: {ex: 'http://example.org/'}
entities:
  A:
    type: ex:A
    uri_template: "ex:{id}"
    properties:
      /age:
        - predicate: ex:age
          data_type: xsd:integer
`
	e := newEngine(t, doc)

	triples, err := e.Transform(record(t, `{"id": 12, "age": 36}`))
	require.NoError(t, err)
	require.Len(t, triples, 2)
	assert.Equal(t, ex+"12", triples[0].Subject.Value)
	assert.Equal(t, rdf.NewLiteral("36", rdf.NamespaceXSD+"integer"), triples[1].Object)
}

func TestTransformLargeIntegerIDs(t *testing.T) {
	doc := `
prefixes: {ex: 'http://example.org/'}
entities:
  Tweet:
    type: ex:Tweet
    uri_template: "ex:{id}"
    properties:
      /id:
        - predicate: ex:id
          data_type: xsd:integer
`
	e := newEngine(t, doc)

	tests := []struct {
		raw  string
		want string
	}{
		{raw: `{"id": 1234567890123456789}`, want: "1234567890123456789"},
		{raw: `{"id": 1234567890123456790}`, want: "1234567890123456790"},
	}

	subjects := map[string]bool{}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			triples, err := e.Transform(record(t, tt.raw))
			require.NoError(t, err)
			require.Len(t, triples, 2)
			assert.Equal(t, ex+tt.want, triples[0].Subject.Value)
			assert.Equal(t, rdf.NewLiteral(tt.want, rdf.NamespaceXSD+"integer"), triples[1].Object)
			subjects[triples[0].Subject.Value] = true
		})
	}
	assert.Len(t, subjects, 2)
}

func TestTransformFailingScriptKeepsValue(t *testing.T) {
	doc := `
prefixes: {ex: 'http://example.org/'}
entities:
  A:
    type: ex:A
    uri_template: "ex:{id}"
    properties:
      /v:
        - predicate: ex:v
          script: "value.nope()"
`
	e := newEngine(t, doc)

	triples, err := e.Transform(record(t, `{"id": "1", "v": "keep"}`))
	require.NoError(t, err)
	require.Len(t, triples, 2)
	assert.Equal(t, lit("keep"), triples[1].Object)
}
