package pmm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserveBelowLocksOutLowFrames(t *testing.T) {
	b := New()
	b.ReserveBelow(10)

	for f := uint32(0); f < 10; f++ {
		assert.True(t, b.IsUsed(f), "frame %d should be reserved", f)
	}
	assert.False(t, b.IsUsed(10))
}

func TestGetFreeFrameSkipsReservedRange(t *testing.T) {
	b := New()
	b.ReserveBelow(5)

	f := b.GetFreeFrame()
	assert.Equal(t, uint32(5), f)
}

func TestMarkUsedThenGetFreeFrameAdvances(t *testing.T) {
	b := New()
	b.ReserveBelow(0)

	require.NoError(t, b.MarkUsed(0))
	require.NoError(t, b.MarkUsed(1))
	f := b.GetFreeFrame()
	assert.Equal(t, uint32(2), f)
}

func TestFreeFrameClearsBit(t *testing.T) {
	b := New()
	require.NoError(t, b.MarkUsed(100))
	assert.True(t, b.IsUsed(100))
	b.FreeFrame(100)
	assert.False(t, b.IsUsed(100))
}

func TestMarkUsedOutOfRangeErrors(t *testing.T) {
	b := New()
	err := b.MarkUsed(NumFrames)
	assert.Error(t, err)
}

func TestIsUsedOutOfRangeIsFalse(t *testing.T) {
	b := New()
	assert.False(t, b.IsUsed(NumFrames+1))
}

func TestGetFreeFrameCrossesWordBoundary(t *testing.T) {
	b := New()
	b.ReserveBelow(0)
	for f := uint32(0); f < 32; f++ {
		require.NoError(t, b.MarkUsed(f))
	}
	assert.Equal(t, uint32(32), b.GetFreeFrame())
}

func TestGetFreeFramePanicsWhenExhausted(t *testing.T) {
	b := New()
	b.ReserveBelow(NumFrames)
	assert.Panics(t, func() { b.GetFreeFrame() })
}
