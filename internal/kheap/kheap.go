// Package kheap implements the first-fit kernel heap of spec.md §4.6: one
// contiguous arena beginning just above the paging watermark, each block
// prefixed by an 8-byte header (used flag, payload length) written
// through encoding/binary for the same reason internal/idt and
// internal/multiboot use it for their fixed layouts — a zero-initialised
// arena reads as "free, length 0", the tail sentinel.
//
// Grounded on the original's heap.rs: scan-skip-used, split-on-plenty,
// coalesce-on-demand, panic on exhaustion, interrupts disabled for the
// duration of every allocation and deallocation.
package kheap

import (
	"encoding/binary"
	"fmt"
	"sync"
)

const headerLen = 4 + 4 // used flag (1 byte, padded) + uint32 length

func readHeader(b []byte) (used bool, length uint32) {
	return b[0] != 0, binary.LittleEndian.Uint32(b[4:8])
}

func writeHeader(b []byte, used bool, length uint32) {
	if used {
		b[0] = 1
	} else {
		b[0] = 0
	}
	binary.LittleEndian.PutUint32(b[4:8], length)
}

// Heap is the process-wide kernel allocator singleton (spec.md §5).
type Heap struct {
	mu    sync.Mutex
	mem   []byte
	base  uint32 // virtual address of mem[0]
	ready bool
}

// New returns a heap over a zero-initialised arena of size bytes,
// identity-mapped starting at virtual address base. The arena is not
// usable until Init is called, matching spec.md §4.6's "has-initialised"
// flag.
func New(base uint32, size uint32) *Heap {
	return &Heap{mem: make([]byte, size), base: base}
}

// Init marks the heap live; timer and scheduler paths consult HasInit
// before touching the scheduler (spec.md §4.6).
func (h *Heap) Init() {
	h.mu.Lock()
	h.ready = true
	h.mu.Unlock()
}

// HasInit reports whether Init has run.
func (h *Heap) HasInit() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ready
}

func alignUp(v, to uint32) uint32 {
	if to <= 1 || v%to == 0 {
		return v
	}
	return v - v%to + to
}

// Alloc returns a pointer to at least size bytes, aligned to align (1 if
// unspecified). Interrupts are disabled for the duration, per spec.md
// §4.6. Panics if the arena is exhausted even after coalescing every
// reachable free successor.
func (h *Heap) Alloc(size, align uint32) uint32 {
	if align == 0 {
		align = 1
	}
	disableInterrupts()
	defer enableInterrupts()
	h.mu.Lock()
	defer h.mu.Unlock()

	pos := uint32(0)
	for {
		if int(pos)+headerLen > len(h.mem) {
			panic(fmt.Sprintf("kheap: out of memory allocating %d bytes", size))
		}
		used, length := readHeader(h.mem[pos:])
		dataStart := pos + headerLen
		isTail := !used && length == 0

		if used {
			pos = dataStart + length
			continue
		}

		avail := length
		if isTail {
			avail = uint32(len(h.mem)) - dataStart
		}

		alignedStart := alignUp(h.base+dataStart, align) - h.base
		padding := alignedStart - dataStart
		need := padding + size

		if avail >= need {
			taken := need
			remainder := avail - taken
			writeHeader(h.mem[pos:], true, taken)
			if remainder > headerLen {
				newHdr := pos + headerLen + taken
				remLen := uint32(0)
				if !isTail {
					remLen = remainder - headerLen
				}
				writeHeader(h.mem[newHdr:], false, remLen)
			} else {
				// Fold the slack into this block rather than leaving an
				// unaddressable sliver behind.
				writeHeader(h.mem[pos:], true, avail)
			}
			return h.base + alignedStart
		}

		if isTail {
			panic(fmt.Sprintf("kheap: out of memory allocating %d bytes", size))
		}

		// Coalesce consecutive free successors until need is met, a used
		// block is hit, or the tail sentinel is hit.
		coalesced := avail
		next := dataStart + length
		reachedTail := false
		for coalesced < need {
			if int(next)+headerLen > len(h.mem) {
				panic(fmt.Sprintf("kheap: out of memory allocating %d bytes", size))
			}
			nUsed, nLen := readHeader(h.mem[next:])
			if nUsed {
				break
			}
			if nLen == 0 {
				coalesced += uint32(len(h.mem)) - (next + headerLen)
				reachedTail = true
				break
			}
			coalesced += headerLen + nLen
			next = next + headerLen + nLen
		}
		if coalesced < need {
			if reachedTail {
				panic(fmt.Sprintf("kheap: out of memory allocating %d bytes", size))
			}
			pos = dataStart + length
			continue
		}
		mergedLen := uint32(0)
		if !reachedTail {
			mergedLen = coalesced
		}
		writeHeader(h.mem[pos:], false, mergedLen)
		// loop again at pos: the block is now large enough
	}
}

// Dealloc clears the used bit of the header immediately preceding ptr.
// No eager coalescing; Alloc folds free successors on demand.
func (h *Heap) Dealloc(ptr uint32) {
	disableInterrupts()
	defer enableInterrupts()
	h.mu.Lock()
	defer h.mu.Unlock()

	if ptr < h.base+headerLen {
		return
	}
	pos := ptr - h.base - headerLen
	if int(pos) < 0 || int(pos)+headerLen > len(h.mem) {
		return
	}
	h.mem[pos] = 0
}

// IsUsed reports whether the block immediately preceding ptr is marked
// used; exposed mainly for tests verifying the dual allocate/deallocate
// syscalls (spec.md §8 concrete scenarios).
func (h *Heap) IsUsed(ptr uint32) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ptr < h.base+headerLen {
		return false
	}
	pos := ptr - h.base - headerLen
	if int(pos) < 0 || int(pos)+headerLen > len(h.mem) {
		return false
	}
	used, _ := readHeader(h.mem[pos:])
	return used
}

var (
	enableInterrupts  = func() {}
	disableInterrupts = func() {}
)
