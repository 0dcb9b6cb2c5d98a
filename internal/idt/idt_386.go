//go:build 386

package idt

import (
	"encoding/binary"
	"reflect"
	"unsafe"

	"github.com/POBIX/ossi/internal/mach"
)

// init points Enable/Disable at the real sti/cli instructions and
// IsEnabled's reconciliation at the real EFLAGS read, the same
// swap-the-hook-on-import pattern internal/kheap and internal/paging use
// for their own 386-only wiring.
func init() {
	enableInterrupts = mach.Sti
	disableInterrupts = mach.Cli
	readEflags = mach.ReadEflags
}

// commonTrapEntry is the single shared trampoline body every per-vector
// stub jumps into: implemented in idt_386.s, since from the stub's JMP
// onward nothing runs under an ordinary Go calling convention until the
// CALL into dispatchFromStub below returns.
func commonTrapEntry()

func commonTrapEntryAddr() uint32 {
	return uint32(reflect.ValueOf(commonTrapEntry).Pointer())
}

// stubTable backs every per-vector entry stub BuildStubTable writes.
// Heap-resident (a package-level array, never stack allocated) so its
// address is stable across the Go GC's lifetime — the same "take this
// object's real address and never let it move" requirement
// gdt.InstallTSS has for the TSS. Writable and, since this kernel's page
// entries carry no execute-disable bit (spec.md §3), therefore also
// executable once identity-mapped.
var stubTable [NumVectors * StubStride]byte

const (
	opPushImm32 = 0x68
	opJmpRel32  = 0xE9
	opNop       = 0x90
)

// BuildStubTable writes 256 tiny entry stubs into stubTable, one per
// vector:
//
//	[PUSHL $0]      ; only when HasErrorCode(vector) is false
//	PUSHL $vector
//	JMP   commonTrapEntry
//
// padding the rest of each StubStride-byte slot with NOPs. It returns the
// table's base linear address — the stubBase New uses to compute every
// vector's real gate target.
func BuildStubTable() uint32 {
	base := uint32(uintptr(unsafe.Pointer(&stubTable[0])))
	target := commonTrapEntryAddr()

	for v := 0; v < NumVectors; v++ {
		slot := stubTable[v*StubStride : (v+1)*StubStride]
		for i := range slot {
			slot[i] = opNop
		}

		n := 0
		if !HasErrorCode(v) {
			slot[n] = opPushImm32
			binary.LittleEndian.PutUint32(slot[n+1:], 0)
			n += 5
		}
		slot[n] = opPushImm32
		binary.LittleEndian.PutUint32(slot[n+1:], uint32(v))
		n += 5

		slot[n] = opJmpRel32
		nextInstr := base + uint32(v)*StubStride + uint32(n) + 5
		binary.LittleEndian.PutUint32(slot[n+1:], target-nextInstr)
	}

	return base
}

// HasErrorCode reports whether the CPU automatically pushes an error
// code for vector before the handler runs, per spec.md §4.1's list of
// exceptions that do. Every other vector — every IRQ and the syscall
// gate included — gets a software-pushed dummy zero instead, so every
// vector's stack layout matches trapframe.Frame regardless of whether
// the hardware contributed the error-code word itself.
func HasErrorCode(vector int) bool {
	for _, exc := range architecturalExceptions {
		if exc.vector == vector {
			return exc.hasError
		}
	}
	return false
}
