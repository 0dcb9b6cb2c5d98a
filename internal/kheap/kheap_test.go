package kheap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHeap(size uint32) *Heap {
	h := New(0x1000, size)
	h.Init()
	return h
}

func TestAllocReturnsAddressesWithinArena(t *testing.T) {
	h := newTestHeap(4096)
	p := h.Alloc(64, 1)
	assert.GreaterOrEqual(t, p, uint32(0x1000))
	assert.True(t, h.IsUsed(p))
}

func TestAllocRespectsAlignment(t *testing.T) {
	h := newTestHeap(4096)
	p := h.Alloc(1, 16)
	assert.Equal(t, uint32(0), p%16)
}

func TestDeallocFreesBlockForReuse(t *testing.T) {
	h := newTestHeap(4096)
	p1 := h.Alloc(32, 1)
	h.Dealloc(p1)
	assert.False(t, h.IsUsed(p1))

	p2 := h.Alloc(32, 1)
	assert.Equal(t, p1, p2, "freed block should be reused by the next same-size allocation")
}

func TestAllocCoalescesAdjacentFreeBlocks(t *testing.T) {
	h := newTestHeap(4096)
	p1 := h.Alloc(16, 1)
	p2 := h.Alloc(16, 1)
	_ = h.Alloc(16, 1) // keep a used block after p2 so coalescing must skip over it otherwise

	h.Dealloc(p1)
	h.Dealloc(p2)

	big := h.Alloc(40, 1) // larger than either freed block alone
	assert.Equal(t, p1, big)
}

func TestAllocPanicsWhenExhausted(t *testing.T) {
	h := newTestHeap(16) // too small for a 64-byte block plus its header
	assert.Panics(t, func() { h.Alloc(64, 1) })
}

func TestHasInitGatesUsability(t *testing.T) {
	h := New(0x1000, 4096)
	assert.False(t, h.HasInit())
	h.Init()
	assert.True(t, h.HasInit())
}

func TestDeallocOutOfRangePointerIsNoOp(t *testing.T) {
	h := newTestHeap(4096)
	require.NotPanics(t, func() { h.Dealloc(0) })
	require.NotPanics(t, func() { h.Dealloc(0xFFFFFFFF) })
}
