// Package keypath evaluates slash-separated path expressions against nested records.
//
// A keypath is a sequence of segments separated by "/":
//   - a literal key selects a field of a map
//   - [N] selects the N-th element of a sequence
//   - [*] expands over every element of a sequence
//
// Evaluation never fails on missing data: a path that does not resolve simply
// produces no matches.
package keypath

import (
	"fmt"
	"strconv"
	"strings"
)

// Record is an untyped tree of map[string]any, []any and scalar values.
type Record = any

// RootPath is the concrete path of the record itself.
const RootPath = "/"

// SegmentKind identifies how a segment selects children.
type SegmentKind int

const (
	// SegmentKey selects a map field by name
	SegmentKey SegmentKind = iota

	// SegmentIndex selects a single sequence element
	SegmentIndex

	// SegmentWildcard selects every sequence element
	SegmentWildcard
)

// String returns the string representation of the segment kind
func (k SegmentKind) String() string {
	switch k {
	case SegmentKey:
		return "key"
	case SegmentIndex:
		return "index"
	case SegmentWildcard:
		return "wildcard"
	}
	return "unknown"
}

// Segment is one parsed step of a keypath.
type Segment struct {
	Kind  SegmentKind
	Key   string
	Index int
}

// String renders the segment in keypath syntax.
func (s Segment) String() string {
	switch s.Kind {
	case SegmentIndex:
		return "[" + strconv.Itoa(s.Index) + "]"
	case SegmentWildcard:
		return "[*]"
	default:
		return s.Key
	}
}

// Keypath is a parsed path expression.
type Keypath struct {
	raw      string
	segments []Segment
}

// Parse parses a keypath. The leading slash is optional and "/" or "" denote
// the root of the record.
func Parse(path string) (Keypath, error) {
	kp := Keypath{raw: path}

	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return kp, nil
	}

	parts := strings.Split(trimmed, "/")
	kp.segments = make([]Segment, 0, len(parts))
	for _, part := range parts {
		seg, err := parseSegment(part)
		if err != nil {
			return Keypath{}, fmt.Errorf("keypath %q: %w", path, err)
		}
		kp.segments = append(kp.segments, seg)
	}

	return kp, nil
}

// MustParse is like Parse but panics on malformed input.
func MustParse(path string) Keypath {
	kp, err := Parse(path)
	if err != nil {
		panic(err)
	}
	return kp
}

func parseSegment(part string) (Segment, error) {
	if part == "" {
		return Segment{}, fmt.Errorf("empty segment")
	}

	if !strings.HasPrefix(part, "[") || !strings.HasSuffix(part, "]") {
		return Segment{Kind: SegmentKey, Key: part}, nil
	}

	inner := part[1 : len(part)-1]
	if inner == "*" {
		return Segment{Kind: SegmentWildcard}, nil
	}

	idx, err := strconv.Atoi(inner)
	if err != nil || idx < 0 {
		return Segment{}, fmt.Errorf("invalid index segment %q", part)
	}

	return Segment{Kind: SegmentIndex, Index: idx}, nil
}

// Segments returns the parsed segments.
func (k Keypath) Segments() []Segment {
	return k.segments
}

// Len returns the number of segments.
func (k Keypath) Len() int {
	return len(k.segments)
}

// IsRoot reports whether the keypath selects the whole record.
func (k Keypath) IsRoot() bool {
	return len(k.segments) == 0
}

// HasWildcard reports whether any segment is [*].
func (k Keypath) HasWildcard() bool {
	for _, seg := range k.segments {
		if seg.Kind == SegmentWildcard {
			return true
		}
	}
	return false
}

// String returns the normalized keypath with a leading slash.
func (k Keypath) String() string {
	if len(k.segments) == 0 {
		return RootPath
	}

	var sb strings.Builder
	for _, seg := range k.segments {
		sb.WriteByte('/')
		sb.WriteString(seg.String())
	}
	return sb.String()
}

// Match is one resolved value together with its concrete path.
type Match struct {
	Path  string
	Value any
}

// Evaluate resolves keypath against record. A malformed keypath or a path
// that does not resolve returns no matches.
func Evaluate(record Record, path string) []Match {
	kp, err := Parse(path)
	if err != nil {
		return nil
	}
	return kp.Evaluate(record)
}

// Evaluate resolves the keypath against record.
func (k Keypath) Evaluate(record Record) []Match {
	return k.Expand(record).Matches()
}

// Values returns only the values of Evaluate, in match order.
func Values(record Record, path string) []any {
	matches := Evaluate(record, path)
	if len(matches) == 0 {
		return nil
	}

	values := make([]any, len(matches))
	for i, m := range matches {
		values[i] = m.Value
	}
	return values
}

// joinPath appends a segment to a concrete path.
func joinPath(parent, segment string) string {
	if parent == RootPath {
		return RootPath + segment
	}
	return parent + "/" + segment
}
