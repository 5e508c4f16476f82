package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"os"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/keypath"
)

// DefaultLargeThreshold is the file size above which a JSON file is streamed
// line by line.
const DefaultLargeThreshold int64 = 20 * 1024 * 1024

// maxLineSize bounds a single JSON-lines record.
const maxLineSize = 64 * 1024 * 1024

// JSONFile reads records from a JSON document or a JSON-lines file.
type JSONFile struct {
	path      string
	threshold int64
	logger    *zap.Logger
}

// NewJSONFile creates a source for path. A non-positive threshold selects
// DefaultLargeThreshold.
func NewJSONFile(path string, threshold int64, logger *zap.Logger) *JSONFile {
	if threshold <= 0 {
		threshold = DefaultLargeThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JSONFile{path: path, threshold: threshold, logger: logger}
}

// Path returns the file path.
func (j *JSONFile) Path() string {
	return j.path
}

// IsLarge reports whether the file exceeds the streaming threshold. A file
// that cannot be inspected is not large; All reports the error.
func (j *JSONFile) IsLarge() bool {
	info, err := os.Stat(j.path)
	if err != nil {
		return false
	}
	return info.Size() > j.threshold
}

// Stream yields one record per line. Blank lines are ignored and invalid
// lines are logged and skipped.
func (j *JSONFile) Stream(ctx context.Context) iter.Seq2[keypath.Record, error] {
	return func(yield func(keypath.Record, error) bool) {
		f, err := os.Open(j.path)
		if err != nil {
			yield(nil, fmt.Errorf("failed to open input: %w", err))
			return
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

		line := 0
		for scanner.Scan() {
			line++
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			raw := bytes.TrimSpace(scanner.Bytes())
			if len(raw) == 0 {
				continue
			}
			if !gjson.ValidBytes(raw) {
				j.logger.Warn("Skipping invalid JSON line",
					zap.String("path", j.path),
					zap.Int("line", line))
				continue
			}

			if !yield(decode(gjson.ParseBytes(raw)), nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(nil, fmt.Errorf("failed to read input: %w", err))
		}
	}
}

// All parses the whole file. A top-level array yields its elements; any
// other value is a single record.
func (j *JSONFile) All(ctx context.Context) ([]keypath.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(j.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("input %s is not valid JSON", j.path)
	}

	doc := gjson.ParseBytes(data)
	if !doc.IsArray() {
		return []keypath.Record{decode(doc)}, nil
	}

	var records []keypath.Record
	doc.ForEach(func(_, value gjson.Result) bool {
		records = append(records, decode(value))
		return true
	})
	return records, nil
}

// decode converts r into a record tree. Numbers stay json.Number with their
// source text, so integers wider than a float64 mantissa keep every digit.
func decode(r gjson.Result) any {
	switch r.Type {
	case gjson.String:
		return r.Str
	case gjson.Number:
		return json.Number(r.Raw)
	case gjson.True:
		return true
	case gjson.False:
		return false
	case gjson.JSON:
		if r.IsArray() {
			out := []any{}
			r.ForEach(func(_, v gjson.Result) bool {
				out = append(out, decode(v))
				return true
			})
			return out
		}
		out := map[string]any{}
		r.ForEach(func(k, v gjson.Result) bool {
			out[k.Str] = decode(v)
			return true
		})
		return out
	default:
		return nil
	}
}
