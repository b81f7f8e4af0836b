package recordschema_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"edgeflow.io/edgeflow/pkg/recordschema"
)

func TestNewComputesOffsetsAndSize(t *testing.T) {
	s, err := recordschema.New(
		recordschema.Field{Name: "a", Type: recordschema.Int8},
		recordschema.Field{Name: "b", Type: recordschema.Int32},
		recordschema.Field{Name: "c", Type: recordschema.Int64},
	)
	require.NoError(t, err)
	require.EqualValues(t, 13, s.RecordSizeBytes())

	off, ok := s.Offset("a")
	require.True(t, ok)
	require.Equal(t, 0, off)

	off, ok = s.Offset("b")
	require.True(t, ok)
	require.Equal(t, 1, off)

	off, ok = s.Offset("c")
	require.True(t, ok)
	require.Equal(t, 5, off)

	_, ok = s.Offset("nope")
	require.False(t, ok)
}

func TestNewRejectsEmptyDuplicateAndInvalidFields(t *testing.T) {
	tests := []struct {
		name   string
		fields []recordschema.Field
	}{
		{"no fields", nil},
		{"empty name", []recordschema.Field{{Name: "", Type: recordschema.Int64}}},
		{"duplicate name", []recordschema.Field{
			{Name: "a", Type: recordschema.Int64},
			{Name: "a", Type: recordschema.Int32},
		}},
		{"invalid type", []recordschema.Field{{Name: "a", Type: recordschema.Invalid}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := recordschema.New(tc.fields...)
			require.Error(t, err)
		})
	}
}

func TestWidthAndStringCoverAllPhysicalTypes(t *testing.T) {
	widths := map[recordschema.PhysicalType]int{
		recordschema.Int8:    1,
		recordschema.UInt8:   1,
		recordschema.Bool:    1,
		recordschema.Int16:   2,
		recordschema.UInt16:  2,
		recordschema.Int32:   4,
		recordschema.UInt32:  4,
		recordschema.Float32: 4,
		recordschema.Int64:   8,
		recordschema.UInt64:  8,
		recordschema.Float64: 8,
	}
	for typ, width := range widths {
		require.Equal(t, width, typ.Width(), typ.String())
		require.NotEqual(t, "INVALID", typ.String())
	}
	require.Equal(t, 0, recordschema.Invalid.Width())
	require.Equal(t, "INVALID", recordschema.Invalid.String())
}

func TestConcatOrdersLeftThenRightFields(t *testing.T) {
	left, err := recordschema.New(recordschema.Field{Name: "k", Type: recordschema.UInt64})
	require.NoError(t, err)
	right, err := recordschema.New(
		recordschema.Field{Name: "v1", Type: recordschema.Float64},
		recordschema.Field{Name: "v2", Type: recordschema.Int32},
	)
	require.NoError(t, err)

	out, err := recordschema.Concat(left, right)
	require.NoError(t, err)
	require.Equal(t, 3, out.Len())

	names := make([]string, out.Len())
	for i := 0; i < out.Len(); i++ {
		f, _ := out.Get(i)
		names[i] = f.Name
	}
	require.Equal(t, []string{"k", "v1", "v2"}, names)
}

func TestConcatRejectsConflictingFieldNames(t *testing.T) {
	left, err := recordschema.New(recordschema.Field{Name: "k", Type: recordschema.UInt64})
	require.NoError(t, err)
	right, err := recordschema.New(recordschema.Field{Name: "k", Type: recordschema.Int32})
	require.NoError(t, err)

	_, err = recordschema.Concat(left, right)
	require.Error(t, err)
}
