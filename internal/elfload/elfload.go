// Package elfload implements the static ELF loader of spec.md §4.10: a
// 32-bit, little-endian, load-only loader that maps each PT_LOAD segment
// into a fresh address space, fills a sentinel-patterned user stack, and
// registers a trampoline process that enters ring 3 at the entry point.
//
// Per spec.md §9's open question ("whether the ELF loader should attempt
// relocation processing"), it does not: only statically linked programs
// are supported, matching the original's scope and spec.md §6's explicit
// "section headers and dynamic information are ignored".
//
// ELF parsing itself is grounded on bobuhiro11-gokvm's machine.go, the
// one pack example that loads an executable via the standard library's
// debug/elf rather than a hand-rolled parser.
package elfload

import (
	"bytes"
	"debug/elf"
	"fmt"
	"io"

	"github.com/POBIX/ossi/internal/flatfs"
	"github.com/POBIX/ossi/internal/paging"
)

const (
	// UserStackSize is fixed at 16 KiB, per spec.md §4.10.
	UserStackSize = 16 * 1024
	// UserStackTop is an arbitrary but fixed virtual address below the
	// kernel's reserved recursive/foreign window (0xFF800000..) that
	// every process's stack is placed at; real position independence
	// would need relocation support, explicitly out of scope here.
	UserStackTop = 0xC0000000

	stackSentinel uint32 = 0xDEADBEEF
)

// Scheduler is the subset of internal/sched the loader registers the
// newly loaded process with.
type Scheduler interface {
	Register(esp, eip uint32, dir *paging.Directory)
}

// Loader builds process address spaces from ELF images.
type Loader struct {
	pg        *paging.Manager
	kernelDir *paging.Directory
	sched     Scheduler

	// trampolineAddr is the address of the shared asm routine that, for
	// every newly loaded process, acknowledges the timer interrupt and
	// enters user mode at the ELF entry point. It hands off to
	// enterUserMode, which never returns, so a return from the entry
	// point is not handled. Set once by internal/kernel's 386
	// wiring; tests exercise everything up to registration without it.
	trampolineAddr uint32
}

// New returns a Loader that builds process address spaces on top of
// pg/kernelDir and registers finished processes with sched.
func New(pg *paging.Manager, kernelDir *paging.Directory, sched Scheduler) *Loader {
	return &Loader{pg: pg, kernelDir: kernelDir, sched: sched}
}

// SetTrampoline wires the real entry-to-userspace routine; called once
// from internal/kernel on the 386 target.
func (l *Loader) SetTrampoline(addr uint32) { l.trampolineAddr = addr }

func alignUp(v, to uint32) uint32 {
	if v%to == 0 {
		return v
	}
	return v - v%to + to
}

// Load parses image, maps its PT_LOAD segments into a fresh address
// space, sets up a sentinel-filled user stack, and registers the
// resulting process. It does not run the process — NextProgram dispatch
// does that on the next tick.
func (l *Loader) Load(image []byte) (*paging.Directory, error) {
	f, err := elf.NewFile(bytes.NewReader(image))
	if err != nil {
		panic(fmt.Sprintf("elfload: not a valid ELF image: %v", err))
	}
	if f.Class != elf.ELFCLASS32 || f.Data != elf.ELFDATA2LSB {
		panic("elfload: only 32-bit little-endian images are supported")
	}

	dir := l.pg.NewUserDirectory(l.kernelDir)

	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		if err := l.mapSegment(dir, prog); err != nil {
			return nil, err
		}
	}

	stackBase, err := l.setupStack(dir)
	if err != nil {
		return nil, err
	}

	entry := uint32(f.Entry)
	stackBase = l.pushLaunchWords(dir, stackBase, entry)

	eip := l.trampolineAddr
	l.sched.Register(stackBase, eip, dir)
	return dir, nil
}

func (l *Loader) mapSegment(dir *paging.Directory, prog *elf.Prog) error {
	virtStart := uint32(prog.Vaddr) &^ (4096 - 1)
	sizeBytes := alignUp(uint32(prog.Vaddr)+uint32(prog.Memsz)-virtStart, 4096)

	for off := uint32(0); off < sizeBytes; off += 4096 {
		if err := l.pg.MapFresh(dir, virtStart+off, paging.Present|paging.Writable|paging.User); err != nil {
			return fmt.Errorf("elfload: mapping segment at %#x: %w", virtStart+off, err)
		}
	}

	data := make([]byte, prog.Filesz)
	if _, err := io.ReadFull(prog.Open(), data); err != nil {
		return fmt.Errorf("elfload: reading segment data: %w", err)
	}
	return l.writeForeign(dir, uint32(prog.Vaddr), data)
}

// writeForeign copies data into dir starting at virt. dir is freshly
// created and not yet the active directory; rather than switching into
// it, every write here goes through paging.EditForeign.
func (l *Loader) writeForeign(dir *paging.Directory, virt uint32, data []byte) error {
	var err error
	l.pg.EditForeign(dir, func(d *paging.Directory) {
		err = l.pg.WriteVirt(d, virt, data)
	})
	return err
}

func (l *Loader) setupStack(dir *paging.Directory) (top uint32, err error) {
	stackBase := uint32(UserStackTop - UserStackSize)
	for off := uint32(0); off < UserStackSize; off += 4096 {
		if err := l.pg.MapFresh(dir, stackBase+off, paging.Present|paging.Writable|paging.User); err != nil {
			return 0, fmt.Errorf("elfload: mapping user stack: %w", err)
		}
	}

	pattern := make([]byte, UserStackSize)
	sentinel := stackSentinel
	for i := 0; i < len(pattern); i += 4 {
		pattern[i] = byte(sentinel)
		pattern[i+1] = byte(sentinel >> 8)
		pattern[i+2] = byte(sentinel >> 16)
		pattern[i+3] = byte(sentinel >> 24)
	}
	if err := l.writeForeign(dir, stackBase, pattern); err != nil {
		return 0, err
	}

	return UserStackTop &^ 0xF, nil
}

// pushLaunchWords writes the entry point and a reserved slot for the
// saved kernel stack pointer just below top, per spec.md §4.10
// ("pre-push the header's entry point onto it and one word reserving the
// saved kernel stack"), returning the new stack pointer.
func (l *Loader) pushLaunchWords(dir *paging.Directory, top, entry uint32) uint32 {
	top -= 4
	_ = l.writeForeign(dir, top, le32(0)) // reserved: the trampoline neither reads nor fills this word
	top -= 4
	_ = l.writeForeign(dir, top, le32(entry))
	return top
}

func le32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

// ExecuteFile wraps Load by reading path from fs into a sector-sized
// buffer and loading it, per spec.md §4.10's execute_file.
func (l *Loader) ExecuteFile(fs *flatfs.FS, dev interface {
	ReadSectors(lba uint32, count uint8, buf []byte)
}, path string) (*paging.Directory, error) {
	entry, err := fs.Lookup(path)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, int(entry.SectorCount)*512)
	dev.ReadSectors(entry.FirstSector, uint8(entry.SectorCount), buf)
	return l.Load(buf)
}
