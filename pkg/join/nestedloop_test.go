package join_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"edgeflow.io/edgeflow/pkg/join"
	"edgeflow.io/edgeflow/pkg/recordschema"
	"edgeflow.io/edgeflow/pkg/tuplebuf"
	"edgeflow.io/edgeflow/pkg/window"
)

func mustSchema(t *testing.T, fields ...recordschema.Field) *recordschema.Schema {
	t.Helper()
	s, err := recordschema.New(fields...)
	require.NoError(t, err)
	return s
}

func buildSides(t *testing.T) (left, right *recordschema.Schema, out *recordschema.Schema, leftLayout, rightLayout *recordschema.RowLayout) {
	left = mustSchema(t,
		recordschema.Field{Name: "left_ts", Type: recordschema.UInt64},
		recordschema.Field{Name: "left_value", Type: recordschema.UInt64},
	)
	right = mustSchema(t,
		recordschema.Field{Name: "right_ts", Type: recordschema.UInt64},
		recordschema.Field{Name: "right_value", Type: recordschema.UInt64},
	)
	out = mustSchema(t,
		recordschema.Field{Name: "start_ts", Type: recordschema.UInt64},
		recordschema.Field{Name: "end_ts", Type: recordschema.UInt64},
		recordschema.Field{Name: "key", Type: recordschema.UInt64},
		recordschema.Field{Name: "left_ts", Type: recordschema.UInt64},
		recordschema.Field{Name: "left_value", Type: recordschema.UInt64},
		recordschema.Field{Name: "right_ts", Type: recordschema.UInt64},
		recordschema.Field{Name: "right_value", Type: recordschema.UInt64},
	)
	leftLayout = recordschema.NewRowLayout(left)
	rightLayout = recordschema.NewRowLayout(right)
	return
}

func buildRow(t *testing.T, layout *recordschema.RowLayout, fields map[string]uint64) window.Record {
	t.Helper()
	buf := make([]byte, layout.Schema().RecordSizeBytes())
	for name, v := range fields {
		require.NoError(t, layout.WriteUint64(buf, 0, name, v))
	}
	return window.Record(buf)
}

// TestDoActionSingleKeySingleWindow reproduces the seed scenario: a
// tumbling window of size 1000, a single join key with two records on
// each side landing in the same [0,1000) slice, and a watermark advance
// from 0 to 1000 that closes exactly that one window.
func TestDoActionSingleKeySingleWindow(t *testing.T) {
	leftSchema, rightSchema, outSchema, leftLayout, rightLayout := buildSides(t)

	wt := window.NewTumbling(1000, window.TimeCharacteristic{Kind: window.EventTime, Field: "ts"})
	action := join.New(1, join.InnerJoin, wt, leftSchema, rightSchema, outSchema, 7, nil)

	left := window.NewKeyedState()
	right := window.NewKeyedState()

	const key uint64 = 1
	ls := left.StoreFor(key)
	ls.Lock()
	ls.Append(0, 1000, buildRow(t, leftLayout, map[string]uint64{"left_ts": 100, "left_value": 10}))
	ls.Append(0, 1000, buildRow(t, leftLayout, map[string]uint64{"left_ts": 400, "left_value": 40}))
	ls.Unlock()

	rs := right.StoreFor(key)
	rs.Lock()
	rs.Append(0, 1000, buildRow(t, rightLayout, map[string]uint64{"right_ts": 200, "right_value": 20}))
	rs.Append(0, 1000, buildRow(t, rightLayout, map[string]uint64{"right_ts": 600, "right_value": 60}))
	rs.Unlock()

	pool := tuplebuf.NewPool(4, 4096)

	var dispatched []*tuplebuf.Buffer
	emit := func(buf *tuplebuf.Buffer) error {
		dispatched = append(dispatched, buf)
		return nil
	}

	emitted, err := action.DoAction(left, right, 1000, 0, pool, emit)
	require.NoError(t, err)
	require.Equal(t, 4, emitted)
	require.Len(t, dispatched, 1)

	buf := dispatched[0]
	require.EqualValues(t, 4, buf.NumberOfTuples())
	require.EqualValues(t, 1000, buf.WatermarkTS())
	require.EqualValues(t, 1, buf.SequenceNumber())
	require.EqualValues(t, 7, buf.OriginID())

	outLayout := recordschema.NewRowLayout(outSchema)
	wantLeftVal := []uint64{10, 10, 40, 40}
	wantRightVal := []uint64{20, 60, 20, 60}
	for row := 0; row < 4; row++ {
		start, err := outLayout.ReadUint64(buf.Bytes(), row, "start_ts")
		require.NoError(t, err)
		require.EqualValues(t, 0, start)
		end, err := outLayout.ReadUint64(buf.Bytes(), row, "end_ts")
		require.NoError(t, err)
		require.EqualValues(t, 1000, end)
		k, err := outLayout.ReadUint64(buf.Bytes(), row, "key")
		require.NoError(t, err)
		require.EqualValues(t, key, k)
		lv, err := outLayout.ReadUint64(buf.Bytes(), row, "left_value")
		require.NoError(t, err)
		require.Equal(t, wantLeftVal[row], lv)
		rv, err := outLayout.ReadUint64(buf.Bytes(), row, "right_value")
		require.NoError(t, err)
		require.Equal(t, wantRightVal[row], rv)
	}

	// the first window's cutoff is 0 (largestClosed == slide), which is a
	// no-op per the removal boundary rule: nothing is evicted yet.
	ls.Lock()
	require.False(t, ls.Empty())
	ls.Unlock()

	// advancing the watermark again past the next window edge produces a
	// nonzero cutoff and evicts the now-aged-out [0,1000) slice, even
	// though no new records landed in [1000,2000).
	emitted, err = action.DoAction(left, right, 2000, 1000, pool, emit)
	require.NoError(t, err)
	require.Equal(t, 0, emitted)

	ls.Lock()
	require.True(t, ls.Empty())
	ls.Unlock()
	rs.Lock()
	require.True(t, rs.Empty())
	rs.Unlock()
}

// TestDoActionNoAdvanceIsNoop covers the boundary behavior: a trigger
// where currentWatermark == lastWatermark must close no windows and must
// not touch either side's slice store.
func TestDoActionNoAdvanceIsNoop(t *testing.T) {
	leftSchema, rightSchema, outSchema, leftLayout, _ := buildSides(t)
	wt := window.NewTumbling(1000, window.TimeCharacteristic{Kind: window.EventTime, Field: "ts"})
	action := join.New(2, join.InnerJoin, wt, leftSchema, rightSchema, outSchema, 1, nil)

	left := window.NewKeyedState()
	right := window.NewKeyedState()
	ls := left.StoreFor(uint64(1))
	ls.Lock()
	ls.Append(0, 1000, buildRow(t, leftLayout, map[string]uint64{"left_ts": 1, "left_value": 1}))
	ls.Unlock()

	pool := tuplebuf.NewPool(2, 4096)
	emit := func(buf *tuplebuf.Buffer) error { t.Fatal("must not emit"); return nil }

	emitted, err := action.DoAction(left, right, 500, 500, pool, emit)
	require.NoError(t, err)
	require.Equal(t, 0, emitted)

	ls.Lock()
	require.False(t, ls.Empty())
	ls.Unlock()
}

// TestDoActionCartesianIgnoresKeyMismatch checks that CartesianProduct
// pairs every left key with every right key regardless of equality.
func TestDoActionCartesianIgnoresKeyMismatch(t *testing.T) {
	leftSchema, rightSchema, outSchema, leftLayout, rightLayout := buildSides(t)
	wt := window.NewTumbling(1000, window.TimeCharacteristic{Kind: window.EventTime, Field: "ts"})
	action := join.New(3, join.CartesianProduct, wt, leftSchema, rightSchema, outSchema, 1, nil)

	left := window.NewKeyedState()
	right := window.NewKeyedState()

	ls := left.StoreFor(uint64(1))
	ls.Lock()
	ls.Append(0, 1000, buildRow(t, leftLayout, map[string]uint64{"left_ts": 1, "left_value": 1}))
	ls.Unlock()

	rs := right.StoreFor(uint64(2))
	rs.Lock()
	rs.Append(0, 1000, buildRow(t, rightLayout, map[string]uint64{"right_ts": 1, "right_value": 2}))
	rs.Unlock()

	pool := tuplebuf.NewPool(2, 4096)
	var dispatched []*tuplebuf.Buffer
	emit := func(buf *tuplebuf.Buffer) error {
		dispatched = append(dispatched, buf)
		return nil
	}

	emitted, err := action.DoAction(left, right, 1000, 0, pool, emit)
	require.NoError(t, err)
	require.Equal(t, 1, emitted)
	require.Len(t, dispatched, 1)
}
