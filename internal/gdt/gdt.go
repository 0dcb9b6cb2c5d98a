// Package gdt builds the six-entry global descriptor table and the
// task-state segment of spec.md §4.7, and constructs the interrupt-return
// frame that enters user mode.
//
// spec.md §4.7 is explicit that entering user mode "constructs an
// interrupt-return frame ... and executes a return-from-interrupt" — the
// iret path, not the sysexit/SYSENTER MSR path the original's
// userspace.rs actually uses. Per the precedence spec.md establishes over
// its own source material, the iret approach is what's implemented here;
// the segment descriptor layout (six selectors, TSS at index 5, ss0/esp0
// wired to the kernel stack) is still grounded on userspace.rs, only the
// transfer mechanism differs.
//
// Descriptor encoding follows the same encoding/binary-over-hand-packing
// discipline as internal/idt's gate descriptors.
package gdt

import (
	"bytes"
	"encoding/binary"
)

// Selector indices into the table (already shifted left 3, RPL folded
// into the low two bits for ring-3 selectors).
const (
	NullSelector       uint16 = 0x00
	KernelCodeSelector uint16 = 0x08
	KernelDataSelector uint16 = 0x10
	UserCodeSelector   uint16 = 0x18 | 3
	UserDataSelector   uint16 = 0x20 | 3
	TSSSelector        uint16 = 0x28
)

const numEntries = 6

type segDescriptor struct {
	LimitLow       uint16
	BaseLow        uint16
	BaseMid        uint8
	Access         uint8
	FlagsLimitHigh uint8
	BaseHigh       uint8
}

func (d segDescriptor) bytes() []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, d)
	return buf.Bytes()
}

func nullDescriptor() segDescriptor { return segDescriptor{} }

// flatDescriptor builds a 4 GiB flat segment (base 0, limit 0xFFFFF with
// 4 KiB granularity) with the given access byte.
func flatDescriptor(access uint8) segDescriptor {
	const limit = 0xFFFFF
	return segDescriptor{
		LimitLow:       uint16(limit & 0xFFFF),
		BaseLow:        0,
		BaseMid:        0,
		Access:         access,
		FlagsLimitHigh: 0xC0 | uint8((limit>>16)&0xF), // granularity+32-bit, limit bits 16-19
		BaseHigh:       0,
	}
}

const (
	accessPresent  = 1 << 7
	accessCode     = 1 << 3
	accessReadable = 1 << 1 // or writable for data segments
	accessDPLShift = 5
)

func codeAccess(dpl uint8) uint8 {
	return accessPresent | (dpl << accessDPLShift) | 1<<4 /*code/data*/ | accessCode | accessReadable
}

func dataAccess(dpl uint8) uint8 {
	return accessPresent | (dpl << accessDPLShift) | 1<<4 | accessReadable
}

// TSS is the architecturally defined task-state segment; only the fields
// spec.md §4.7 actually touches (ss0, esp0) are set, the rest stays zero
// as it would after a fresh allocation.
type TSS struct {
	linkPrev uint32
	ESP0     uint32
	SS0      uint32
	_        [22]uint32 // esp1/ss1, esp2/ss2, cr3, eip, eflags, general/segment regs, ldt — unused in this kernel; the trailing iomap-base word is not included
}

func (t *TSS) bytes() []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, *t)
	return buf.Bytes()
}

func tssDescriptor(base uint32, limit uint32) segDescriptor {
	const tssAccess = accessPresent | 0x9 // present, DPL0, 32-bit TSS (type 0x9)
	return segDescriptor{
		LimitLow:       uint16(limit & 0xFFFF),
		BaseLow:        uint16(base & 0xFFFF),
		BaseMid:        uint8((base >> 16) & 0xFF),
		Access:         tssAccess,
		FlagsLimitHigh: uint8((limit >> 16) & 0xF),
		BaseHigh:       uint8((base >> 24) & 0xFF),
	}
}

// Table owns the six descriptors and the TSS they describe.
type Table struct {
	entries [numEntries]segDescriptor
	tss     TSS
}

// New builds the table with kernelStackTop as the ring-0 stack the CPU
// switches to on any privilege-level-raising trap.
func New(kernelStackTop uint32) *Table {
	t := &Table{}
	t.entries[0] = nullDescriptor()
	t.entries[1] = flatDescriptor(codeAccess(0))
	t.entries[2] = flatDescriptor(dataAccess(0))
	t.entries[3] = flatDescriptor(codeAccess(3))
	t.entries[4] = flatDescriptor(dataAccess(3))
	t.tss.SS0 = uint32(KernelDataSelector)
	t.tss.ESP0 = kernelStackTop
	return t
}

// InstallTSS points the table's TSS descriptor (index 5) at tssLinearAddr
// — the address of fixed storage the caller copies TSSBytes into (in
// cmd/kernel, a package-level buffer), since a Go value doesn't otherwise
// expose a stable address to hand the CPU.
func (t *Table) InstallTSS(tssLinearAddr uint32) {
	t.entries[5] = tssDescriptor(tssLinearAddr, uint32(binary.Size(t.tss))-1)
}

// SetKernelStack updates the ring-0 stack pointer in this Table's TSS
// value. The CPU only sees the new value once TSSBytes is copied into the
// storage the TSS descriptor points at again.
func (t *Table) SetKernelStack(esp0 uint32) { t.tss.ESP0 = esp0 }

// Bytes returns the table serialized for LGDT.
func (t *Table) Bytes() []byte {
	buf := make([]byte, 0, numEntries*8)
	for _, e := range t.entries {
		buf = append(buf, e.bytes()...)
	}
	return buf
}

// TSSBytes returns the TSS serialized for the kernel to copy into its
// linear-addressed backing storage before InstallTSS.
func (t *Table) TSSBytes() []byte { return t.tss.bytes() }

// UserFrame is the interrupt-return frame entering user mode pushes,
// per spec.md §4.7: user data selector, user stack, flags with
// interrupts enabled, user code selector, target instruction pointer.
type UserFrame struct {
	EIP    uint32
	CS     uint32
	EFlags uint32
	ESP    uint32
	SS     uint32
}

const eflagsIF = 1 << 9

// BuildUserFrame constructs the frame EnterUser pushes to transfer
// control to entry running on userStack.
func BuildUserFrame(entry, userStack uint32) UserFrame {
	return UserFrame{
		EIP:    entry,
		CS:     uint32(UserCodeSelector),
		EFlags: eflagsIF,
		ESP:    userStack,
		SS:     uint32(UserDataSelector),
	}
}
