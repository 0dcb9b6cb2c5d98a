// Package syscall implements the software-interrupt gateway of spec.md
// §4.9: a single vector (0x80, privilege level 3), a tagged request
// built on the caller's stack, and a dispatcher that switches over the
// tag and disables interrupts for the duration of the handler body.
//
// Grounded on the original's syscall.rs, which macro-generates a
// trait-object dispatch keyed by a single global CURR_CALL; reimplemented
// as an ordinary Go type switch over a closed Tag enum, keeping the same
// "one vector, one dispatch point, every kernel facility reachable only
// through it" shape.
package syscall

import (
	"fmt"

	"github.com/POBIX/ossi/internal/ata"
	"github.com/POBIX/ossi/internal/console"
	"github.com/POBIX/ossi/internal/elfload"
	"github.com/POBIX/ossi/internal/flatfs"
	"github.com/POBIX/ossi/internal/idt"
	"github.com/POBIX/ossi/internal/keyboard"
	"github.com/POBIX/ossi/internal/kheap"
	"github.com/POBIX/ossi/internal/paging"
	"github.com/POBIX/ossi/internal/pic"
)

// Vector is the software interrupt number, per spec.md §4.9/§6.
const Vector = 0x80

// Tag names one of the closed set of operations spec.md §4.9 lists.
type Tag uint32

const (
	TagPrint Tag = iota
	TagDisableInterrupts
	TagEnableInterrupts
	TagQueryInterrupts
	TagHalt
	TagNoop
	TagOutb
	TagOutw
	TagOutl
	TagInb
	TagInw
	TagInl
	TagReadSectors
	TagWriteSectors
	TagInstallHandler
	TagAckInterrupt
	TagMaskLine
	TagAlloc
	TagDealloc
	TagRunProgram
	TagQueryHeapInit
	TagQueryAnyProcesses
	TagQueryAddressSpace
	TagSubscribeKeyEvents
	TagConsole
	TagKeyState
	TagFSHeader
	TagDirList
	TagExecuteFile
)

// Request is built on the caller's stack, per spec.md §4.9: "The caller
// builds a request object on its stack and loads its address and a tag
// into two registers before executing the trap." Args holds the
// tag-specific payload.
type Request struct {
	Tag  Tag
	Args any
}

// Per-tag argument and result payloads.
type (
	PrintArgs     struct{ Text string }
	PortArgs      struct {
		Port  uint16
		Value uint32
	}
	InArgs           struct{ Port uint16 }
	SectorArgs       struct {
		LBA   uint32
		Count uint8
		Buf   []byte
	}
	InstallHandlerArgs struct {
		Vector  int
		Handler idt.Handler
		Priv    idt.Privilege
		Kind    idt.Kind
	}
	AckInterruptArgs struct{ Line int }
	MaskLineArgs     struct {
		Line   int
		Masked bool
	}
	AllocArgs      struct{ Size, Align uint32 }
	DeallocArgs    struct{ Ptr uint32 }
	RunProgramArgs struct{ Image []byte }
	SubscribeKeyArgs struct {
		Handler func(keyboard.Key)
	}
	ExecuteFileArgs struct{ Path string }
)

// Scheduler is the subset of internal/sched the dispatcher needs for
// "query any processes loaded"/"query current address space".
type Scheduler interface {
	Len() int
}

// Dispatcher wires every kernel facility the syscall gateway reaches.
type Dispatcher struct {
	IDT     *idt.Table
	PIC     *pic.PIC
	Heap    *kheap.Heap
	ATA     *ata.Driver
	Console *console.Console
	Keyboard *keyboard.Keyboard
	FS      *flatfs.FS
	Paging  *paging.Manager
	Loader  *elfload.Loader
	Sched   Scheduler

	CurrentDir func() *paging.Directory
}

// Dispatch runs req's operation. Per spec.md §4.9, interrupts are
// disabled for the handler body's duration and re-enabled on exit;
// syscalls never block.
func (d *Dispatcher) Dispatch(req Request) (uint32, error) {
	disableInterrupts()
	defer enableInterrupts()

	switch req.Tag {
	case TagPrint:
		a := req.Args.(PrintArgs)
		d.Console.Print(a.Text)
		return 0, nil

	case TagDisableInterrupts:
		d.IDT.Disable()
		return 0, nil
	case TagEnableInterrupts:
		d.IDT.Enable()
		return 0, nil
	case TagQueryInterrupts:
		if d.IDT.IsEnabled() {
			return 1, nil
		}
		return 0, nil

	case TagHalt:
		halt()
		return 0, nil
	case TagNoop:
		return 0, nil

	case TagOutb:
		a := req.Args.(PortArgs)
		rawBus.Out8(a.Port, uint8(a.Value))
		return 0, nil
	case TagOutw:
		a := req.Args.(PortArgs)
		rawBus.Out16(a.Port, uint16(a.Value))
		return 0, nil
	case TagOutl:
		a := req.Args.(PortArgs)
		rawBus.Out32(a.Port, a.Value)
		return 0, nil
	case TagInb:
		a := req.Args.(InArgs)
		return uint32(rawBus.In8(a.Port)), nil
	case TagInw:
		a := req.Args.(InArgs)
		return uint32(rawBus.In16(a.Port)), nil
	case TagInl:
		a := req.Args.(InArgs)
		return rawBus.In32(a.Port), nil

	case TagReadSectors:
		a := req.Args.(SectorArgs)
		d.ATA.ReadSectors(a.LBA, a.Count, a.Buf)
		return 0, nil
	case TagWriteSectors:
		a := req.Args.(SectorArgs)
		d.ATA.WriteSectors(a.LBA, a.Count, a.Buf)
		return 0, nil

	case TagInstallHandler:
		a := req.Args.(InstallHandlerArgs)
		if err := d.IDT.Install(a.Vector, a.Handler, a.Priv, a.Kind); err != nil {
			return 0, err
		}
		return 0, nil
	case TagAckInterrupt:
		a := req.Args.(AckInterruptArgs)
		d.PIC.EndOfInterrupt(a.Line)
		return 0, nil
	case TagMaskLine:
		a := req.Args.(MaskLineArgs)
		d.PIC.SetMask(a.Line, a.Masked)
		return 0, nil

	case TagAlloc:
		a := req.Args.(AllocArgs)
		return d.Heap.Alloc(a.Size, a.Align), nil
	case TagDealloc:
		a := req.Args.(DeallocArgs)
		d.Heap.Dealloc(a.Ptr)
		return 0, nil

	case TagRunProgram:
		a := req.Args.(RunProgramArgs)
		if _, err := d.Loader.Load(a.Image); err != nil {
			return 0, err
		}
		return 0, nil
	case TagExecuteFile:
		a := req.Args.(ExecuteFileArgs)
		if _, err := d.Loader.ExecuteFile(d.FS, d.ATA, a.Path); err != nil {
			return 0, err
		}
		return 0, nil

	case TagQueryHeapInit:
		if d.Heap.HasInit() {
			return 1, nil
		}
		return 0, nil
	case TagQueryAnyProcesses:
		if d.Sched != nil && d.Sched.Len() > 0 {
			return 1, nil
		}
		return 0, nil
	case TagQueryAddressSpace:
		if d.CurrentDir == nil {
			return 0, nil
		}
		return d.CurrentDir().Phys, nil

	case TagSubscribeKeyEvents:
		a := req.Args.(SubscribeKeyArgs)
		return uint32(d.Keyboard.Subscribe(a.Handler)), nil
	case TagKeyState:
		if d.Keyboard.CapsLock() {
			return 1, nil
		}
		return 0, nil
	case TagConsole:
		row, col := d.Console.Cursor()
		return uint32(row)<<16 | uint32(col), nil

	case TagFSHeader:
		a := req.Args.(ExecuteFileArgs)
		entry, err := d.FS.Lookup(a.Path)
		if err != nil {
			return 0, err
		}
		return entry.FirstSector, nil
	case TagDirList:
		return uint32(len(d.FS.List())), nil

	default:
		panic(fmt.Sprintf("syscall: unknown tag %d", req.Tag))
	}
}

// rawBus is the PortBus backing the byte/word/long port I/O tags; set by
// internal/kernel to mach.HW on the 386 target.
var rawBus portBus

type portBus interface {
	In8(uint16) uint8
	Out8(uint16, uint8)
	In16(uint16) uint16
	Out16(uint16, uint16)
	In32(uint16) uint32
	Out32(uint16, uint32)
}

// SetBus wires the port I/O tags to an actual mach.PortBus.
func SetBus(b portBus) { rawBus = b }

var (
	enableInterrupts  = func() {}
	disableInterrupts = func() {}
	halt              = func() {}
)
