// Package paging implements the boot-time bump arena, the kernel address
// space, and the page directory/table operations of spec.md §4.4: a
// classic two-level x86 page table with a self-referencing recursive
// slot, built up before paging hardware is enabled and mutated in place
// afterward.
//
// There is no real MMU under test (spec.md §8 runs against "an isolated
// virtualised target"), so the recursive-map/foreign-aperture trick
// spec.md describes as a virtual-address indirection (0xFFC00000.. for
// the active directory's own tables, 0xFF800000.. as a temporary window
// onto another) is modeled here as direct access to the in-memory Table
// the aperture would otherwise expose — documented at EditForeign below.
// On real 386 hardware (paging_386.go) CR3/CR0 are still written for
// real, so the addresses in spec.md §6 remain accurate for anyone
// inspecting the running kernel; only the test harness's view of "cross
// edit" is simplified.
//
// Grounded on the original's paging.rs: bump arena starting at 0x100000,
// identity-mapped low memory/kernel image/arena extent, recursive slot
// 1023, foreign-aperture slot 1022, first-fit-free page scan.
package paging

import (
	"fmt"
	"sync"

	"github.com/POBIX/ossi/internal/pmm"
)

const pageSize = 4096

// Flags mirror the x86 page table entry's low bits spec.md §4.4 asks
// every mapping to carry (present, writable, user/supervisor).
type Flags uint8

const (
	Present Flags = 1 << iota
	Writable
	User
)

func (f Flags) has(bit Flags) bool { return f&bit != 0 }

// ArenaStart is where the boot-time bump allocator begins, per spec.md
// §4.4.
const ArenaStart uint32 = 0x100000

// Reserved directory slots: 1023 is the recursive self-map, 1022 is the
// foreign-directory aperture (spec.md §4.4 "Recursive map").
const (
	RecursiveSlot = 1023
	ForeignSlot   = 1022
)

// Arena is the pre-paging bump allocator: a monotonically increasing
// pointer, optional 4 KiB alignment, never freed.
type Arena struct {
	next uint32
}

// NewArena returns an arena starting at ArenaStart.
func NewArena() *Arena { return &Arena{next: ArenaStart} }

// Alloc reserves size bytes, optionally page-aligning the base first.
func (a *Arena) Alloc(size uint32, align bool) uint32 {
	if align {
		a.next = alignUp(a.next, pageSize)
	}
	addr := a.next
	a.next += size
	return addr
}

// End returns the first address not yet handed out.
func (a *Arena) End() uint32 { return a.next }

func alignUp(v, to uint32) uint32 {
	if v%to == 0 {
		return v
	}
	return v - v%to + to
}

// pte is one page table entry: a frame number plus flags.
type pte struct {
	frame uint32
	flags Flags
}

// table is one page table's 1024 entries.
type table struct {
	entries [1024]pte
}

// Directory is one page directory: 1024 slots, each either absent or
// pointing at a table (kept as a direct Go reference — the in-memory
// stand-in for "this table is reachable via the recursive map").
type Directory struct {
	mu      sync.Mutex
	Phys    uint32 // synthetic physical base, used as the CR3 value on real hardware
	present [1024]bool
	flags   [1024]Flags
	tables  [1024]*table
	bitmapBacked [1024]bool // true if this table's frame came from the frame bitmap, not the bump arena
}

// Manager owns the bump arena, the frame bitmap, and the currently active
// directory; it is the process-wide singleton spec.md §5 calls out.
type Manager struct {
	mu        sync.Mutex
	arena     *Arena
	frames    *pmm.Bitmap
	heapInit  func() bool
	current   *Directory
	watermark uint32
	nextPhys  uint32 // synthetic allocator for Directory.Phys identifiers

	// physMem backs every mapped frame with actual storage. Real hardware
	// needs no such table (a mapped page just is physical memory); the
	// virtualised test target this package is built against has no real
	// memory behind a frame number, so mapped pages get their backing
	// bytes from here instead, keyed by frame number.
	physMem map[uint32][]byte
}

// NewManager returns a Manager over frames, with no directory yet.
func NewManager(frames *pmm.Bitmap) *Manager {
	return &Manager{arena: NewArena(), frames: frames, nextPhys: ArenaStart, physMem: make(map[uint32][]byte)}
}

// FrameBytes returns the page-sized backing store for frame, allocating
// a zeroed one on first use.
func (m *Manager) FrameBytes(frame uint32) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.physMem[frame]
	if !ok {
		b = make([]byte, pageSize)
		m.physMem[frame] = b
	}
	return b
}

// WriteVirt copies data into dir's address space starting at virt,
// spanning page boundaries as needed. Used by internal/elfload to copy
// segment bytes and fill the user stack sentinel.
func (m *Manager) WriteVirt(dir *Directory, virt uint32, data []byte) error {
	for len(data) > 0 {
		page, ok := m.GetPage(dir, virt&^uint32(pageSize-1))
		if !ok {
			return fmt.Errorf("paging: write to unmapped virt %#x", virt)
		}
		off := virt % pageSize
		n := pageSize - off
		if uint32(len(data)) < n {
			n = uint32(len(data))
		}
		copy(m.FrameBytes(page.Frame)[off:], data[:n])
		data = data[n:]
		virt += n
	}
	return nil
}

// ReadVirt reads length bytes from dir's address space starting at virt,
// used by the kernel side of the ELF loader's test scenario (spec.md §8
// property 9: inspect a user address via the process's directory).
func (m *Manager) ReadVirt(dir *Directory, virt uint32, length int) ([]byte, error) {
	out := make([]byte, 0, length)
	for len(out) < length {
		page, ok := m.GetPage(dir, virt&^uint32(pageSize-1))
		if !ok {
			return nil, fmt.Errorf("paging: read from unmapped virt %#x", virt)
		}
		off := virt % pageSize
		n := pageSize - off
		remaining := uint32(length - len(out))
		if remaining < n {
			n = remaining
		}
		out = append(out, m.FrameBytes(page.Frame)[off:off+n]...)
		virt += n
	}
	return out, nil
}

// SetHeapInit wires the allocator used to decide bump-arena vs
// frame-bitmap table allocation (spec.md §4.4 "post-heap-init" vs
// "pre-heap-init").
func (m *Manager) SetHeapInit(f func() bool) { m.heapInit = f }

func (m *Manager) newDirectory() *Directory {
	d := &Directory{Phys: m.nextPhys}
	m.nextPhys += pageSize
	d.present[RecursiveSlot] = true
	d.flags[RecursiveSlot] = Present | Writable
	return d
}

// allocTableFrame returns a fresh, zeroed frame number: from the bump
// arena before the heap is initialized, from the frame bitmap after.
func (m *Manager) allocTableFrame() (frame uint32, fromBitmap bool) {
	if m.heapInit != nil && m.heapInit() {
		f := m.frames.GetFreeFrame()
		m.frames.MarkUsed(f)
		return f, true
	}
	addr := m.arena.Alloc(pageSize, true)
	return addr / pageSize, false
}

// InitKernelDirectory builds the initial directory spec.md §4.4 "Kernel
// address space" describes: the first megabyte except page 0, the kernel
// image, and — last, since its extent depends on everything allocated
// above — the boot arena itself.
func (m *Manager) InitKernelDirectory(kernelLoadAddr, kernelEndAddr uint32) *Directory {
	m.mu.Lock()
	defer m.mu.Unlock()

	dir := m.newDirectory()
	m.current = dir

	m.identityMapRangeLocked(dir, pageSize, 0x100000, Present|Writable)

	kEnd := alignUp(kernelEndAddr, pageSize)
	kStart := kernelLoadAddr - kernelLoadAddr%pageSize
	m.identityMapRangeLocked(dir, kStart, kEnd, Present|Writable)

	// The arena grows as the mappings above allocate page tables from it;
	// map its exact extent last, skipping anything already covered, until
	// a fixed point is reached.
	for {
		end := alignUp(m.arena.End(), pageSize)
		before := m.arena.End()
		m.identityMapRangeSkippingLocked(dir, ArenaStart, end, Present|Writable)
		if m.arena.End() == before {
			break
		}
	}

	return dir
}

func (m *Manager) identityMapRangeLocked(dir *Directory, start, end uint32, flags Flags) {
	for addr := start; addr < end; addr += pageSize {
		if err := m.makePageLocked(dir, addr, addr, flags); err != nil {
			panic(err)
		}
	}
}

func (m *Manager) identityMapRangeSkippingLocked(dir *Directory, start, end uint32, flags Flags) {
	for addr := start; addr < end; addr += pageSize {
		if _, ok := m.getPageLocked(dir, addr); ok {
			continue
		}
		if err := m.makePageLocked(dir, addr, addr, flags); err != nil {
			panic(err)
		}
	}
}

// IdentityMap maps [start,end) 1:1 at 4 KiB stride, per spec.md §4.4.
func (m *Manager) IdentityMap(dir *Directory, start, end uint32, flags Flags) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for addr := start; addr < end; addr += pageSize {
		if err := m.makePageLocked(dir, addr, addr, flags); err != nil {
			return err
		}
	}
	return nil
}

// MakePage maps virt to phys with flags, allocating a page table if
// necessary. Returns an error if virt was already mapped, per spec.md
// §4.4.
func (m *Manager) MakePage(dir *Directory, virt, phys uint32, flags Flags) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.makePageLocked(dir, virt, phys, flags)
}

func (m *Manager) makePageLocked(dir *Directory, virt, phys uint32, flags Flags) error {
	ti, pi := split(virt)
	if !dir.present[ti] {
		frame, fromBitmap := m.allocTableFrame()
		dir.tables[ti] = &table{}
		dir.present[ti] = true
		dir.bitmapBacked[ti] = fromBitmap
		dir.flags[ti] = flags | Present
		_ = frame // the table's own backing frame; not separately tracked beyond bitmapBacked
	} else {
		dir.flags[ti] |= flags
	}
	tbl := dir.tables[ti]
	if tbl.entries[pi].flags.has(Present) {
		return fmt.Errorf("paging: virt %#x already mapped", virt)
	}
	tbl.entries[pi] = pte{frame: phys / pageSize, flags: flags | Present}
	if m.frames != nil {
		m.frames.MarkUsed(phys / pageSize)
	}
	invalidateTLB(virt)
	return nil
}

// Page is the caller-visible view of a mapped page.
type Page struct {
	Frame uint32
	Flags Flags
}

// GetPage returns the mapping for virt, if any.
func (m *Manager) GetPage(dir *Directory, virt uint32) (Page, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getPageLocked(dir, virt)
}

func (m *Manager) getPageLocked(dir *Directory, virt uint32) (Page, bool) {
	ti, pi := split(virt)
	if !dir.present[ti] {
		return Page{}, false
	}
	e := dir.tables[ti].entries[pi]
	if !e.flags.has(Present) {
		return Page{}, false
	}
	return Page{Frame: e.frame, Flags: e.flags}, true
}

// GetFreePage scans dir for the first absent entry, skipping the
// reserved recursive/foreign slots, and returns its virtual address.
func (m *Manager) GetFreePage(dir *Directory) (uint32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for ti := 0; ti < 1024; ti++ {
		if ti == RecursiveSlot || ti == ForeignSlot {
			continue
		}
		if !dir.present[ti] {
			return uint32(ti) << 22, true
		}
		tbl := dir.tables[ti]
		for pi := 0; pi < 1024; pi++ {
			if !tbl.entries[pi].flags.has(Present) {
				return uint32(ti)<<22 | uint32(pi)<<12, true
			}
		}
	}
	return 0, false
}

// SwitchTo writes dir's physical base to CR3 and records it as current.
func (m *Manager) SwitchTo(dir *Directory) {
	m.mu.Lock()
	m.current = dir
	m.mu.Unlock()
	loadDirectory(dir.Phys)
}

// Current returns the directory last passed to SwitchTo or built by
// InitKernelDirectory.
func (m *Manager) Current() *Directory {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// EditForeign mutates dir as if through the foreign-directory aperture at
// slot 1022 (spec.md §4.4). dir is already a directly addressable Go
// value, so the "aperture" collapses to a direct call of fn on dir, on
// every target; slot 1022 is not touched.
func (m *Manager) EditForeign(dir *Directory, fn func(*Directory)) {
	fn(dir)
}

// Enable activates paging: writes dir's physical base to CR3, sets CR0's
// paging bit, and returns the first page-aligned address past the boot
// arena — the heap's base, per spec.md §4.4.
func (m *Manager) Enable(dir *Directory) uint32 {
	m.mu.Lock()
	m.current = dir
	m.watermark = alignUp(m.arena.End(), pageSize)
	watermark := m.watermark
	m.mu.Unlock()
	enablePagingHardware(dir.Phys)
	return watermark
}

// Watermark returns the boundary Enable computed.
func (m *Manager) Watermark() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.watermark
}

// Teardown unlinks every non-recursive table in dir that was allocated
// from the frame bitmap (i.e. lives above the bump-arena watermark). The
// frames those tables occupied are not returned to the bitmap and stay
// marked used. Frames backing user pages themselves are not walked here
// either.
func (m *Manager) Teardown(dir *Directory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for ti := 0; ti < 1024; ti++ {
		if ti == RecursiveSlot {
			continue
		}
		if dir.present[ti] && dir.bitmapBacked[ti] {
			dir.present[ti] = false
			dir.tables[ti] = nil
		}
	}
}

// NewUserDirectory returns a fresh directory that shares kernelDir's
// existing table mappings (so kernel code/data/IDT stay reachable no
// matter which process is current — every real kernel maps itself into
// every address space so interrupt and syscall handlers don't need to
// switch CR3 first) and has no other mappings yet. internal/elfload adds
// the process's own segments and stack on top of this.
func (m *Manager) NewUserDirectory(kernelDir *Directory) *Directory {
	m.mu.Lock()
	defer m.mu.Unlock()
	nd := m.newDirectory()
	for ti := 0; ti < 1024; ti++ {
		if ti == RecursiveSlot {
			continue
		}
		if kernelDir.present[ti] {
			nd.present[ti] = true
			nd.flags[ti] = kernelDir.flags[ti]
			nd.tables[ti] = kernelDir.tables[ti]
			nd.bitmapBacked[ti] = false
		}
	}
	return nd
}

// MapFresh allocates a frame from the frame bitmap and maps it at virt,
// a convenience over MakePage for callers (internal/elfload) that don't
// care which physical frame backs a page.
func (m *Manager) MapFresh(dir *Directory, virt uint32, flags Flags) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	frame := m.frames.GetFreeFrame()
	if err := m.frames.MarkUsed(frame); err != nil {
		return err
	}
	return m.makePageLocked(dir, virt, frame*pageSize, flags)
}

func split(virt uint32) (tableIndex, pageIndex int) {
	return int(virt >> 22), int((virt >> 12) & 0x3FF)
}

// enablePagingHardware and invalidateTLB/loadDirectory are no-ops on the
// host test target and swapped to the real instructions on 386
// (paging_386.go).
var (
	enablePagingHardware = func(physBase uint32) {}
	invalidateTLB         = func(virt uint32) {}
	loadDirectory          = func(physBase uint32) {}
)
