package hashjoin_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"edgeflow.io/edgeflow/pkg/join/hashjoin"
	"edgeflow.io/edgeflow/pkg/recordschema"
	"edgeflow.io/edgeflow/pkg/tuplebuf"
)

func mustSchema(t *testing.T, fields ...recordschema.Field) *recordschema.Schema {
	t.Helper()
	s, err := recordschema.New(fields...)
	require.NoError(t, err)
	return s
}

func buildRow(t *testing.T, schema *recordschema.Schema, values map[string]uint64) []byte {
	t.Helper()
	layout := recordschema.NewRowLayout(schema)
	buf := make([]byte, schema.RecordSizeBytes())
	for name, v := range values {
		require.NoError(t, layout.WriteUint64(buf, 0, name, v))
	}
	return buf
}

func newTestHandler(t *testing.T) (*hashjoin.Handler, *recordschema.Schema, *recordschema.Schema, *recordschema.Schema) {
	t.Helper()
	leftSchema := mustSchema(t,
		recordschema.Field{Name: "left_key", Type: recordschema.UInt64},
		recordschema.Field{Name: "left_value", Type: recordschema.UInt64},
	)
	rightSchema := mustSchema(t,
		recordschema.Field{Name: "right_key", Type: recordschema.UInt64},
		recordschema.Field{Name: "right_value", Type: recordschema.UInt64},
	)
	outSchema := mustSchema(t,
		recordschema.Field{Name: "start_ts", Type: recordschema.UInt64},
		recordschema.Field{Name: "end_ts", Type: recordschema.UInt64},
		recordschema.Field{Name: "key", Type: recordschema.UInt64},
		recordschema.Field{Name: "left_key", Type: recordschema.UInt64},
		recordschema.Field{Name: "left_value", Type: recordschema.UInt64},
		recordschema.Field{Name: "right_key", Type: recordschema.UInt64},
		recordschema.Field{Name: "right_value", Type: recordschema.UInt64},
	)
	h := hashjoin.NewHandler(1, leftSchema, rightSchema, outSchema, "left_key", "right_key", 1, 9, nil)
	return h, leftSchema, rightSchema, outSchema
}

// TestProbeMatchesAndDeletesWindow reproduces the seed scenario: one
// partition, two tuples per side, exactly one matching key. Probing the
// sole partition must emit the match and, because it is the only
// partition, delete the window afterward.
func TestProbeMatchesAndDeletesWindow(t *testing.T) {
	h, leftSchema, rightSchema, outSchema := newTestHandler(t)

	_, err := h.CreateWindow(42, 0, 1000)
	require.NoError(t, err)

	require.NoError(t, h.Append(42, hashjoin.Left, 0, buildRow(t, leftSchema, map[string]uint64{"left_key": 1, "left_value": 10})))
	require.NoError(t, h.Append(42, hashjoin.Left, 0, buildRow(t, leftSchema, map[string]uint64{"left_key": 2, "left_value": 20})))
	require.NoError(t, h.Append(42, hashjoin.Right, 0, buildRow(t, rightSchema, map[string]uint64{"right_key": 1, "right_value": 100})))
	require.NoError(t, h.Append(42, hashjoin.Right, 0, buildRow(t, rightSchema, map[string]uint64{"right_key": 3, "right_value": 300})))

	pool := tuplebuf.NewPool(2, 4096)
	var dispatched []*tuplebuf.Buffer
	emit := func(buf *tuplebuf.Buffer) error {
		dispatched = append(dispatched, buf)
		return nil
	}

	emitted, err := h.Probe(42, 0, pool, emit)
	require.NoError(t, err)
	require.Equal(t, 1, emitted)
	require.Len(t, dispatched, 1)

	outLayout := recordschema.NewRowLayout(outSchema)
	buf := dispatched[0]
	require.EqualValues(t, 1, buf.NumberOfTuples())
	require.EqualValues(t, 1000, buf.WatermarkTS())
	require.EqualValues(t, 9, buf.OriginID())

	k, err := outLayout.ReadUint64(buf.Bytes(), 0, "key")
	require.NoError(t, err)
	require.EqualValues(t, 1, k)
	lv, err := outLayout.ReadUint64(buf.Bytes(), 0, "left_value")
	require.NoError(t, err)
	require.EqualValues(t, 10, lv)
	rv, err := outLayout.ReadUint64(buf.Bytes(), 0, "right_value")
	require.NoError(t, err)
	require.EqualValues(t, 100, rv)

	_, ok := h.Window(42)
	require.False(t, ok, "single-partition window must be deleted once its only partition is probed")
}

// TestProbeEmptySideFinishesWithoutScanning covers the "one side has no
// pages" fast path: the partition must still be marked finished (and the
// window deleted) even though nothing was ever compared.
func TestProbeEmptySideFinishesWithoutScanning(t *testing.T) {
	h, leftSchema, _, _ := newTestHandler(t)

	_, err := h.CreateWindow(7, 0, 1000)
	require.NoError(t, err)
	require.NoError(t, h.Append(7, hashjoin.Left, 0, buildRow(t, leftSchema, map[string]uint64{"left_key": 1, "left_value": 10})))

	pool := tuplebuf.NewPool(2, 4096)
	emit := func(buf *tuplebuf.Buffer) error { t.Fatal("must not emit when one side is empty"); return nil }

	emitted, err := h.Probe(7, 0, pool, emit)
	require.NoError(t, err)
	require.Equal(t, 0, emitted)

	_, ok := h.Window(7)
	require.False(t, ok)
}

// TestProbeUnknownWindowErrors ensures probing a window ID that was
// never created (or already deleted) reports an error rather than
// silently doing nothing.
func TestProbeUnknownWindowErrors(t *testing.T) {
	h, _, _, _ := newTestHandler(t)
	pool := tuplebuf.NewPool(1, 4096)
	_, err := h.Probe(999, 0, pool, func(*tuplebuf.Buffer) error { return nil })
	require.Error(t, err)
}

// TestWithDeletionFalseKeepsWindow checks that disabling WithDeletion
// leaves a fully-probed window's state intact for a later replay.
func TestWithDeletionFalseKeepsWindow(t *testing.T) {
	h, leftSchema, rightSchema, _ := newTestHandler(t)
	h.WithDeletion = false

	_, err := h.CreateWindow(3, 0, 1000)
	require.NoError(t, err)
	require.NoError(t, h.Append(3, hashjoin.Left, 0, buildRow(t, leftSchema, map[string]uint64{"left_key": 1, "left_value": 1})))
	require.NoError(t, h.Append(3, hashjoin.Right, 0, buildRow(t, rightSchema, map[string]uint64{"right_key": 1, "right_value": 2})))

	pool := tuplebuf.NewPool(1, 4096)
	_, err = h.Probe(3, 0, pool, func(buf *tuplebuf.Buffer) error { return nil })
	require.NoError(t, err)

	_, ok := h.Window(3)
	require.True(t, ok, "WithDeletion=false must retain the window after its last partition is probed")
}
