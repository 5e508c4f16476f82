// Package source provides the record sources consumed by the pipeline.
package source

import (
	"context"
	"iter"

	"github.com/wehubfusion/Daedalus/pkg/keypath"
)

// Source yields records for one pipeline run. Large sources are consumed
// through Stream, which may only be iterated once; others are materialized
// with All.
type Source interface {
	IsLarge() bool
	Stream(ctx context.Context) iter.Seq2[keypath.Record, error]
	All(ctx context.Context) ([]keypath.Record, error)
}

// Slice is an in-memory source.
type Slice struct {
	Records []keypath.Record
	Large   bool
}

// NewSlice creates an in-memory source that is not streamed.
func NewSlice(records ...keypath.Record) *Slice {
	return &Slice{Records: records}
}

// IsLarge reports the configured streaming flag.
func (s *Slice) IsLarge() bool {
	return s.Large
}

// Stream yields the records in order.
func (s *Slice) Stream(ctx context.Context) iter.Seq2[keypath.Record, error] {
	return func(yield func(keypath.Record, error) bool) {
		for _, r := range s.Records {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			if !yield(r, nil) {
				return
			}
		}
	}
}

// All returns the records.
func (s *Slice) All(ctx context.Context) ([]keypath.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.Records, nil
}
