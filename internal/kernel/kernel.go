// Package kernel assembles every internal package into the boot
// sequence spec.md §4 lays out end to end: validate the multiboot
// info, remap the PICs, build the IDT (exceptions, timer IRQ, the
// syscall gate), bring up paging and the kernel heap, build the GDT and
// TSS, start the scheduler and its drivers, and load the demo shell.
//
// cmd/kernel's job is limited to the handful of things only a real
// 386 build can do (read the multiboot registers the boot stub left
// behind, supply a trap-stub entry address, point the TSS at a linear
// address); everything else lives here so it stays host-testable.
package kernel

import (
	"fmt"

	"github.com/POBIX/ossi/internal/ata"
	"github.com/POBIX/ossi/internal/console"
	"github.com/POBIX/ossi/internal/elfload"
	"github.com/POBIX/ossi/internal/flatfs"
	"github.com/POBIX/ossi/internal/gdt"
	"github.com/POBIX/ossi/internal/idt"
	"github.com/POBIX/ossi/internal/keyboard"
	"github.com/POBIX/ossi/internal/kheap"
	"github.com/POBIX/ossi/internal/mach"
	"github.com/POBIX/ossi/internal/multiboot"
	"github.com/POBIX/ossi/internal/paging"
	"github.com/POBIX/ossi/internal/pic"
	"github.com/POBIX/ossi/internal/pmm"
	"github.com/POBIX/ossi/internal/sched"
	"github.com/POBIX/ossi/internal/syscall"
	"github.com/POBIX/ossi/internal/timer"
)

// maxHeapSize caps the kernel heap at 50MiB, per spec.md §6's resource
// limits.
const maxHeapSize = 50 * 1024 * 1024

// Config carries everything Boot needs that a real machine only knows
// at run time: the decoded multiboot record, the kernel image's own
// load range (so paging can identity-map it and the frame bitmap can
// reserve it), the trap-stub entry address the IDT vectors jump to, a
// linear address for the TSS, and the raw VGA text buffer.
type Config struct {
	Multiboot      multiboot.Info
	KernelLoadAddr uint32
	KernelEndAddr  uint32
	KernelStackTop uint32
	StubAddr       uint32
	TSSLinearAddr  uint32
	TrampolineAddr uint32
	ConsoleBuf     []byte
	RequestedHeap  uint32
}

// Kernel holds every subsystem Boot wires together, so cmd/kernel (or a
// test) can reach into any of them after boot.
type Kernel struct {
	IDT       *idt.Table
	PIC       *pic.PIC
	Frames    *pmm.Bitmap
	Paging    *paging.Manager
	KernelDir *paging.Directory
	Heap      *kheap.Heap
	GDT       *gdt.Table
	Timer     *timer.Timer
	Sched     *sched.Scheduler
	Console   *console.Console
	Keyboard  *keyboard.Keyboard
	ATA       *ata.Driver
	FS        *flatfs.FS
	Loader    *elfload.Loader
	Syscall   *syscall.Dispatcher
}

// Boot runs the full sequence described in spec.md §4 against bus (the
// real port-I/O bus on 386, internal/mach/machtest.Bus under test) and
// returns the assembled Kernel. It panics on conditions that are not
// recoverable this early in boot — an empty memory map (mem_upper of
// zero), an out-of-memory bitmap, a failure to map the heap or to install
// a vector. The multiboot magic is checked by the caller before Boot, and
// ELF images are only parsed later, by RunShell.
func Boot(bus mach.PortBus, cfg Config) *Kernel {
	if cfg.Multiboot.MemUpperKB == 0 {
		panic(fmt.Sprintf("kernel: boot: empty memory map (mem_upper=0)"))
	}

	k := &Kernel{}

	k.PIC = pic.New(bus)
	k.PIC.Remap()

	k.IDT = idt.New(cfg.StubAddr)

	k.Frames = pmm.New()
	k.Paging = paging.NewManager(k.Frames)
	k.KernelDir = k.Paging.InitKernelDirectory(cfg.KernelLoadAddr, cfg.KernelEndAddr)
	heapBase := k.Paging.Enable(k.KernelDir)
	k.Frames.ReserveBelow(heapBase / 4096)

	heapSize := cfg.RequestedHeap
	if heapSize == 0 || heapSize > maxHeapSize {
		heapSize = maxHeapSize
	}
	if err := k.Paging.IdentityMap(k.KernelDir, heapBase, heapBase+heapSize, paging.Present|paging.Writable); err != nil {
		panic(fmt.Sprintf("kernel: boot: mapping heap arena: %v", err))
	}
	k.Heap = kheap.New(heapBase, heapSize)
	k.Heap.Init()
	k.Paging.SetHeapInit(k.Heap.HasInit)

	k.GDT = gdt.New(cfg.KernelStackTop)
	if cfg.TSSLinearAddr != 0 {
		k.GDT.InstallTSS(cfg.TSSLinearAddr)
	}

	k.Sched = sched.New(k.PIC, k.Paging)
	k.Timer = timer.New(k.PIC, k.Sched, k.Heap.HasInit)
	if err := k.IDT.Install(idt.IRQBase+timer.Line, k.Timer.Handle, idt.Ring0, idt.KindInterrupt); err != nil {
		panic(fmt.Sprintf("kernel: boot: installing timer vector: %v", err))
	}

	k.Console = console.New(cfg.ConsoleBuf)
	k.Keyboard = keyboard.New()
	k.ATA = ata.New(bus)
	k.FS = flatfs.Load(k.ATA)
	k.Loader = elfload.New(k.Paging, k.KernelDir, k.Sched)
	if cfg.TrampolineAddr != 0 {
		k.Loader.SetTrampoline(cfg.TrampolineAddr)
	}

	k.Syscall = &syscall.Dispatcher{
		IDT:        k.IDT,
		PIC:        k.PIC,
		Heap:       k.Heap,
		ATA:        k.ATA,
		Console:    k.Console,
		Keyboard:   k.Keyboard,
		FS:         k.FS,
		Paging:     k.Paging,
		Loader:     k.Loader,
		Sched:      k.Sched,
		CurrentDir: k.Paging.Current,
	}
	syscall.SetBus(bus)
	if err := k.IDT.Install(syscall.Vector, k.dispatchSyscall, idt.Ring3, idt.KindTrap); err != nil {
		panic(fmt.Sprintf("kernel: boot: installing syscall vector: %v", err))
	}

	idt.Activate(k.IDT)
	k.IDT.Enable()
	return k
}

// RunShell loads the flat-FS entry named path as the first (and, for
// the demo shell, only) user process and hands it to the scheduler.
// Per spec.md's concrete walkthrough, this is the last step of boot:
// everything after it runs under the timer-driven round robin.
func (k *Kernel) RunShell(path string) error {
	_, err := k.Loader.ExecuteFile(k.FS, k.ATA, path)
	return err
}
