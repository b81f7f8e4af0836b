package recordschema_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"edgeflow.io/edgeflow/pkg/recordschema"
)

func mustLayout(t *testing.T, fields ...recordschema.Field) *recordschema.RowLayout {
	t.Helper()
	s, err := recordschema.New(fields...)
	require.NoError(t, err)
	return recordschema.NewRowLayout(s)
}

func TestRowLayoutWriteReadRoundTrip(t *testing.T) {
	layout := mustLayout(t,
		recordschema.Field{Name: "id", Type: recordschema.UInt64},
		recordschema.Field{Name: "ts", Type: recordschema.Int64},
		recordschema.Field{Name: "reading", Type: recordschema.Float64},
	)
	buf := make([]byte, layout.Schema().RecordSizeBytes()*2)

	require.NoError(t, layout.WriteUint64(buf, 0, "id", 42))
	require.NoError(t, layout.WriteInt64(buf, 0, "ts", -7))
	require.NoError(t, layout.WriteFloat64(buf, 0, "reading", 3.25))

	require.NoError(t, layout.WriteUint64(buf, 1, "id", 43))
	require.NoError(t, layout.WriteInt64(buf, 1, "ts", 9000))
	require.NoError(t, layout.WriteFloat64(buf, 1, "reading", -1.5))

	id, err := layout.ReadUint64(buf, 0, "id")
	require.NoError(t, err)
	require.EqualValues(t, 42, id)

	ts, err := layout.ReadInt64(buf, 0, "ts")
	require.NoError(t, err)
	require.EqualValues(t, -7, ts)

	reading, err := layout.ReadFloat64(buf, 0, "reading")
	require.NoError(t, err)
	require.InDelta(t, 3.25, reading, 1e-9)

	id, err = layout.ReadUint64(buf, 1, "id")
	require.NoError(t, err)
	require.EqualValues(t, 43, id)
}

func TestRowLayoutRejectsUnknownField(t *testing.T) {
	layout := mustLayout(t, recordschema.Field{Name: "id", Type: recordschema.UInt64})
	buf := make([]byte, layout.Schema().RecordSizeBytes())

	require.Error(t, layout.WriteUint64(buf, 0, "nope", 1))
	_, err := layout.ReadUint64(buf, 0, "nope")
	require.Error(t, err)
}

func TestCopyFieldCopiesVerbatimBytes(t *testing.T) {
	srcLayout := mustLayout(t,
		recordschema.Field{Name: "key", Type: recordschema.UInt64},
		recordschema.Field{Name: "other", Type: recordschema.Int32},
	)
	dstLayout := mustLayout(t, recordschema.Field{Name: "copied_key", Type: recordschema.UInt64})

	src := make([]byte, srcLayout.Schema().RecordSizeBytes())
	require.NoError(t, srcLayout.WriteUint64(src, 0, "key", 0xDEADBEEF))

	dst := make([]byte, dstLayout.Schema().RecordSizeBytes())
	require.NoError(t, recordschema.CopyField(dst, dstLayout, 0, "copied_key", src, srcLayout, 0, "key"))

	got, err := dstLayout.ReadUint64(dst, 0, "copied_key")
	require.NoError(t, err)
	require.EqualValues(t, 0xDEADBEEF, got)
}

func TestCopyFieldRejectsWidthMismatch(t *testing.T) {
	srcLayout := mustLayout(t, recordschema.Field{Name: "narrow", Type: recordschema.Int32})
	dstLayout := mustLayout(t, recordschema.Field{Name: "wide", Type: recordschema.Int64})

	src := make([]byte, srcLayout.Schema().RecordSizeBytes())
	dst := make([]byte, dstLayout.Schema().RecordSizeBytes())

	err := recordschema.CopyField(dst, dstLayout, 0, "wide", src, srcLayout, 0, "narrow")
	require.Error(t, err)
}
