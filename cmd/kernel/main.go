// Command kernel is the 386 boot target: the thin, architecture-specific
// glue spec.md §1 scopes as work "only a real 386 build can do" — reading
// the multiboot registers the boot stub left behind, building the GDT/
// TSS and the IDT's per-vector stub table at real linear addresses, and
// handing everything else to internal/kernel.Boot, which is ordinary,
// host-testable Go.
//
// The multiboot-compliant loader and the assembly boot stub that
// establishes a flat 32-bit segment setup, a boot-time stack, and calls
// kmain below are explicitly out of this repository's scope (spec.md §1:
// "the multiboot header parser" is an external collaborator, described
// only where it touches the core) — the same way a linker script
// supplies KERNEL_LOAD_ADDR/KERNEL_END_ADDR (spec.md §4.4/§6) to every
// implementation of this kernel, including the original. kernelLoadAddr/
// kernelEndAddr (main_386.s) read those two linker-provided symbols
// directly, the same "ask the linker for an address" trick the Go
// runtime itself uses for runtime·text/etext.
//
//go:build 386

package main

import (
	"fmt"
	"unsafe"

	"github.com/POBIX/ossi/internal/elfload"
	"github.com/POBIX/ossi/internal/gdt"
	"github.com/POBIX/ossi/internal/idt"
	"github.com/POBIX/ossi/internal/kernel"
	"github.com/POBIX/ossi/internal/mach"
	"github.com/POBIX/ossi/internal/multiboot"
)

// bootStackSize backs this kernel's single ring-0 stack: the one the TSS
// points esp0 at, and the one every interrupt, exception, and syscall
// runs on regardless of which process was interrupted (spec.md §4.7).
const bootStackSize = 16 * 1024

var bootStack [bootStackSize]byte

// gdtBuf/tssBuf back the two structures that must live at a real,
// never-moving linear address for the CPU to consult: the LGDT target
// and the TSS the GDT's TSS descriptor points at. Package-level arrays,
// never stack allocated, so the Go GC's non-moving heap keeps their
// addresses stable for the life of the kernel.
var (
	gdtBuf [8 * 6]byte // six 8-byte segment descriptors
	tssBuf [128]byte   // generous upper bound on gdt.TSS's encoded size
)

// bootMagic/bootInfoPtr are populated by the (external, out-of-scope)
// boot stub before it calls kmain — EAX (multiboot magic) and EBX
// (multiboot info record pointer) exactly as GRUB left them, the one
// register-to-global handoff this repository's boot boundary requires.
var (
	bootMagic   uint32
	bootInfoPtr uint32
)

// requestedHeapBytes is the byte count the demo build asks the kernel
// heap for; spec.md §6 caps this at 50 MiB regardless (internal/kernel
// enforces the cap).
const requestedHeapBytes = 16 * 1024 * 1024

// shellPath is the flat-FS entry the demo command shell is loaded from,
// per spec.md §1's "demo command shell" collaborator.
const shellPath = "/shell"

// vgaTextBase/vgaTextBytes locate the standard 80x25 VGA text buffer
// internal/console drives, per spec.md §6.
const (
	vgaTextBase  = 0xB8000
	vgaTextBytes = 80 * 25 * 2
)

func main() {
	kmain(bootMagic, bootInfoPtr)
}

// kmain is the real multiboot entry point: the (out-of-scope) boot stub
// calls this directly with the saved EAX/EBX. It never returns.
func kmain(magic, infoPtr uint32) {
	info, err := multiboot.Parse(magic, physBytes(infoPtr, 12))
	if err != nil {
		panic(fmt.Sprintf("kernel: multiboot: %v", err))
	}

	stubBase := idt.BuildStubTable()
	kernelStackTop := uint32(uintptr(unsafe.Pointer(&bootStack[0]))) + bootStackSize

	gt := gdt.New(kernelStackTop)
	tssAddr := addrOf(tssBuf[:])
	gt.InstallTSS(tssAddr)
	copy(gdtBuf[:], gt.Bytes())
	copy(tssBuf[:], gt.TSSBytes())
	gdt.Load(addrOf(gdtBuf[:]), uint16(len(gdtBuf)-1))

	k := kernel.Boot(mach.HW, kernel.Config{
		Multiboot:      info,
		KernelLoadAddr: kernelLoadAddr(),
		KernelEndAddr:  kernelEndAddr(),
		KernelStackTop: kernelStackTop,
		StubAddr:       stubBase,
		TSSLinearAddr:  tssAddr,
		TrampolineAddr: elfload.TrampolineAddr(),
		ConsoleBuf:     physBytes(vgaTextBase, vgaTextBytes),
		RequestedHeap:  requestedHeapBytes,
	})

	if err := k.RunShell(shellPath); err != nil {
		panic(fmt.Sprintf("kernel: loading %s: %v", shellPath, err))
	}

	// Every process from here on runs only between timer ticks (spec.md
	// §1); this loop is what the CPU executes whenever none of them are
	// scheduled — between that and the next tick, there is nothing left
	// for ring 0 to do but wait.
	for {
		mach.Sti()
		mach.Halt()
	}
}

// addrOf returns buf's first byte's linear address. buf must back a
// package-level (never stack-allocated, never moved) array.
func addrOf(buf []byte) uint32 {
	return uint32(uintptr(unsafe.Pointer(&buf[0])))
}

// physBytes views n bytes starting at a physical/linear address as a Go
// byte slice. Valid only before paging remaps that address away from
// identity, or for addresses paging keeps identity-mapped (low memory,
// the VGA buffer, the multiboot info record) — every caller in this file
// satisfies one of those two conditions.
func physBytes(addr uint32, n int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(addr))), n)
}

// kernelLoadAddr/kernelEndAddr are implemented in main_386.s: each reads
// a symbol the link step (outside plain `go build`, per this file's
// package doc) is expected to provide at the kernel image's first and
// one-past-last byte.
func kernelLoadAddr() uint32
func kernelEndAddr() uint32
