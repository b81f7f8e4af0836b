package window_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"edgeflow.io/edgeflow/pkg/window"
)

func TestStoreAppendCreatesSortedSlices(t *testing.T) {
	s := window.NewStore()
	s.Lock()
	defer s.Unlock()

	s.Append(100, 200, window.Record("c"))
	s.Append(0, 100, window.Record("a"))
	s.Append(50, 150, window.Record("b"))

	slices := s.Slices()
	require.Len(t, slices, 3)
	require.Equal(t, uint64(0), slices[0].StartTs)
	require.Equal(t, uint64(50), slices[1].StartTs)
	require.Equal(t, uint64(100), slices[2].StartTs)
}

func TestStoreAppendMergesIntoExistingSlice(t *testing.T) {
	s := window.NewStore()
	s.Lock()
	defer s.Unlock()

	s.Append(0, 100, window.Record("a"))
	s.Append(0, 100, window.Record("b"))

	slices := s.Slices()
	require.Len(t, slices, 1)
	require.Equal(t, []window.Record{window.Record("a"), window.Record("b")}, slices[0].Records)
}

func TestRemoveSlicesUntilDropsClosedSlicesOnly(t *testing.T) {
	s := window.NewStore()
	s.Lock()
	defer s.Unlock()

	s.Append(0, 100, window.Record("a"))
	s.Append(100, 200, window.Record("b"))
	s.Append(200, 300, window.Record("c"))

	s.RemoveSlicesUntil(200)

	slices := s.Slices()
	require.Len(t, slices, 1)
	require.Equal(t, uint64(200), slices[0].StartTs)
}

func TestRemoveSlicesUntilZeroIsNoOp(t *testing.T) {
	s := window.NewStore()
	s.Lock()
	s.Append(0, 100, window.Record("a"))
	s.Unlock()

	s.Lock()
	s.RemoveSlicesUntil(0)
	slices := s.Slices()
	s.Unlock()

	require.Len(t, slices, 1)
}

func TestKeyedStateCreatesStorePerKeyOnce(t *testing.T) {
	k := window.NewKeyedState()

	a := k.StoreFor("x")
	b := k.StoreFor("x")
	c := k.StoreFor("y")

	require.Same(t, a, b)
	require.NotSame(t, a, c)
	require.ElementsMatch(t, []interface{}{"x", "y"}, k.Keys())
}
