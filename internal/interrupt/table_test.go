package interrupt

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTable(delivery Delivery, defaultHits *atomic.Int32) *Table {
	return NewTable(map[Vector]Handler{
		SecureFault: func(Fault) { defaultHits.Add(1) },
		HardFault:   nil,
	}, delivery)
}

func TestTable_RouteAndRestore(t *testing.T) {
	var defHits, ovrHits atomic.Int32
	tbl := newTestTable(DeliverSync, &defHits)

	require.NoError(t, tbl.Route(SecureFault, func(Fault) { ovrHits.Add(1) }))
	assert.True(t, tbl.Borrowed(SecureFault))

	require.NoError(t, tbl.Raise(Fault{Vector: SecureFault}))
	assert.Equal(t, int32(1), ovrHits.Load())
	assert.Equal(t, int32(0), defHits.Load())

	require.NoError(t, tbl.Restore(SecureFault))
	assert.False(t, tbl.Borrowed(SecureFault))
	assert.Equal(t, 1, tbl.RestoreCount(SecureFault))

	require.NoError(t, tbl.Raise(Fault{Vector: SecureFault}))
	assert.Equal(t, int32(1), defHits.Load())
}

func TestTable_DoubleRouteDetected(t *testing.T) {
	var defHits atomic.Int32
	tbl := newTestTable(DeliverSync, &defHits)

	require.NoError(t, tbl.Route(SecureFault, func(Fault) {}))
	err := tbl.Route(SecureFault, func(Fault) {})
	require.ErrorIs(t, err, ErrBorrowed)
	assert.Equal(t, []Vector{SecureFault}, tbl.Leaks())
}

func TestTable_RestoreWhenNotBorrowedIsNoop(t *testing.T) {
	var defHits atomic.Int32
	tbl := newTestTable(DeliverSync, &defHits)

	require.NoError(t, tbl.Restore(SecureFault))
	assert.Equal(t, 0, tbl.RestoreCount(SecureFault))
	assert.Empty(t, tbl.Leaks())
}

func TestTable_UnknownVector(t *testing.T) {
	var defHits atomic.Int32
	tbl := newTestTable(DeliverSync, &defHits)

	assert.False(t, tbl.Implements(BusFault))
	assert.ErrorIs(t, tbl.Route(BusFault, func(Fault) {}), ErrNoVector)
	assert.ErrorIs(t, tbl.Restore(BusFault), ErrNoVector)
	assert.ErrorIs(t, tbl.Raise(Fault{Vector: BusFault}), ErrNoVector)
}

func TestTable_NilDefaultSwallowsFault(t *testing.T) {
	var defHits atomic.Int32
	tbl := newTestTable(DeliverSync, &defHits)
	assert.NoError(t, tbl.Raise(Fault{Vector: HardFault}))
}

func TestTable_AsyncDelivery(t *testing.T) {
	var defHits atomic.Int32
	tbl := newTestTable(DeliverAsync, &defHits)

	got := make(chan Fault, 1)
	require.NoError(t, tbl.Route(SecureFault, func(f Fault) { got <- f }))
	require.NoError(t, tbl.Raise(Fault{Vector: SecureFault, Addr: 0x5002_1010}))
	tbl.Quiesce()

	f := <-got
	assert.Equal(t, uint64(0x5002_1010), f.Addr)
}

func TestTable_LeaksSortedAndCleared(t *testing.T) {
	tbl := NewTable(map[Vector]Handler{
		HardFault:   nil,
		BusFault:    nil,
		SecureFault: nil,
	}, DeliverSync)

	require.NoError(t, tbl.Route(SecureFault, func(Fault) {}))
	require.NoError(t, tbl.Route(HardFault, func(Fault) {}))
	assert.Equal(t, []Vector{HardFault, SecureFault}, tbl.Leaks())

	require.NoError(t, tbl.Restore(HardFault))
	require.NoError(t, tbl.Restore(SecureFault))
	assert.Empty(t, tbl.Leaks())
}

func TestTable_RestoreCountAcrossCycles(t *testing.T) {
	var defHits atomic.Int32
	tbl := newTestTable(DeliverSync, &defHits)

	for i := 0; i < 5; i++ {
		require.NoError(t, tbl.Route(SecureFault, func(Fault) {}))
		require.NoError(t, tbl.Restore(SecureFault))
		require.NoError(t, tbl.Restore(SecureFault))
	}
	assert.Equal(t, 5, tbl.RestoreCount(SecureFault))
}

func TestTable_RaiseWhileRestoring(t *testing.T) {
	var defHits, ovrHits atomic.Int32
	tbl := newTestTable(DeliverAsync, &defHits)
	require.NoError(t, tbl.Route(SecureFault, func(Fault) { ovrHits.Add(1) }))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			_ = tbl.Raise(Fault{Vector: SecureFault})
		}
	}()
	require.NoError(t, tbl.Restore(SecureFault))
	<-done
	tbl.Quiesce()

	// Every raise reached exactly one of the two handlers.
	assert.Equal(t, int32(100), defHits.Load()+ovrHits.Load())
	assert.Empty(t, tbl.Leaks())
}

func TestVector_String(t *testing.T) {
	assert.Equal(t, "SecureFault", SecureFault.String())
	assert.Equal(t, "EXC42", Vector(42).String())
}
