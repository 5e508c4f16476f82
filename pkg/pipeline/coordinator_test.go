package pipeline

import (
	"context"
	"errors"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wehubfusion/Daedalus/pkg/keypath"
	"github.com/wehubfusion/Daedalus/pkg/source"
)

type failingSource struct {
	before []keypath.Record
	large  bool
}

var errSourceBroken = errors.New("source broken")

func (f failingSource) IsLarge() bool { return f.large }

func (f failingSource) Stream(context.Context) iter.Seq2[keypath.Record, error] {
	return func(yield func(keypath.Record, error) bool) {
		for _, r := range f.before {
			if !yield(r, nil) {
				return
			}
		}
		yield(nil, errSourceBroken)
	}
}

func (f failingSource) All(context.Context) ([]keypath.Record, error) {
	return nil, errSourceBroken
}

// dispatch runs the coordinator over n buffered worker channels and returns
// the batches each worker received, excluding the sentinel.
func dispatch(t *testing.T, src source.Source, n, bufferSize int) ([][][]keypath.Record, int, error) {
	t.Helper()

	chans := make([]chan Message[keypath.Record], n)
	inputs := make([]chan<- Message[keypath.Record], n)
	for i := range chans {
		chans[i] = make(chan Message[keypath.Record], 64)
		inputs[i] = chans[i]
	}
	stats := make(chan Event, 8)

	c := NewCoordinator(inputs, bufferSize, stats, nil)
	count, err := c.Dispatch(context.Background(), src)

	got := make([][][]keypath.Record, n)
	for i, ch := range chans {
		sentinels := 0
		for len(ch) > 0 {
			msg := <-ch
			switch msg.Kind() {
			case KindBatch:
				require.Zero(t, sentinels, "batch after end of stream")
				got[i] = append(got[i], msg.Items())
			case KindEndOfStream:
				sentinels++
			}
		}
		assert.Equal(t, 1, sentinels, "worker %d sentinels", i)
	}

	events := drainEvents(stats)
	require.Len(t, events, 2)
	for _, ev := range events {
		assert.Equal(t, CoordinatorIndex, ev.Worker)
		assert.Equal(t, StageCoordinator, ev.Stage)
	}
	return got, count, err
}

func numberedRecords(n int) []keypath.Record {
	out := make([]keypath.Record, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func TestCoordinatorRoundRobin(t *testing.T) {
	src := &source.Slice{Records: numberedRecords(7), Large: true}

	got, count, err := dispatch(t, src, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, 7, count)

	assert.Equal(t, [][][]keypath.Record{
		{{0, 3}, {6}},
		{{1, 4}},
		{{2, 5}},
	}, got)
}

func TestCoordinatorPartition(t *testing.T) {
	tests := []struct {
		name    string
		records int
		workers int
		want    [][][]keypath.Record
	}{
		{
			name:    "uneven split",
			records: 7,
			workers: 3,
			want: [][][]keypath.Record{
				{{0, 1, 2}},
				{{3, 4, 5}},
				{{6}},
			},
		},
		{
			name:    "fewer records than workers",
			records: 2,
			workers: 3,
			want:    [][][]keypath.Record{{{0}}, {{1}}, nil},
		},
		{
			name:    "no records",
			records: 0,
			workers: 2,
			want:    [][][]keypath.Record{nil, nil},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := source.NewSlice(numberedRecords(tt.records)...)
			got, count, err := dispatch(t, src, tt.workers, 1000)
			require.NoError(t, err)
			assert.Equal(t, tt.records, count)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCoordinatorSourceFailureStillTerminates(t *testing.T) {
	t.Run("stream", func(t *testing.T) {
		src := failingSource{before: numberedRecords(3), large: true}
		got, count, err := dispatch(t, src, 2, 10)
		assert.ErrorIs(t, err, errSourceBroken)
		assert.Equal(t, 3, count)
		assert.Equal(t, [][][]keypath.Record{{{0, 2}}, {{1}}}, got)
	})

	t.Run("all", func(t *testing.T) {
		got, count, err := dispatch(t, failingSource{}, 2, 10)
		assert.ErrorIs(t, err, errSourceBroken)
		assert.Zero(t, count)
		assert.Equal(t, [][][]keypath.Record{nil, nil}, got)
	})
}

func TestChunk(t *testing.T) {
	assert.Equal(t, [][]int{{1, 2}, {3, 4}, {5}}, chunk([]int{1, 2, 3, 4, 5}, 3))
	assert.Equal(t, [][]int{{1, 2, 3}}, chunk([]int{1, 2, 3}, 1))
	assert.Equal(t, [][]int{{1}, {2}, {}, {}}, chunk([]int{1, 2}, 4))
	assert.Equal(t, [][]int{nil, nil}, chunk([]int(nil), 2))
}
