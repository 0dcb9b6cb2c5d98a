// Package idt implements the interrupt dispatch table of spec.md §4.1: a
// 256-entry table of gate descriptors loaded once into the CPU's
// interrupt-descriptor register, then mutated in place as handlers are
// installed — a change takes effect on the very next interrupt, there is
// no separate "commit" step.
//
// Gate descriptor layout and the split-offset encoding (low 16 bits of the
// handler address, then selector/flags, then high 16 bits) are grounded on
// TamaGo's GateDescriptor, which marshals the same eight-byte x86 gate
// shape through encoding/binary rather than hand-packing bytes.
package idt

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/POBIX/ossi/internal/trapframe"
)

// NumVectors is the fixed size of the table; spec.md §4.1 is explicit that
// it "has 256 entries, all initialised to not present".
const NumVectors = 256

// StubStride is the fixed byte spacing between two consecutive per-vector
// entry stubs in the table BuildStubTable (idt_386.go) generates. A real
// CPU gate descriptor must point directly at machine code for its own
// vector — there is no hardware-level indirection — so New computes each
// vector's gate target as stubBase + vector*StubStride rather than
// pointing every gate at the same address.
const StubStride = 16

// Hardware IRQ vectors after the PIC remap in internal/pic: lines 0..15
// land on 0x20..0x2F.
const (
	IRQBase    = 0x20
	SyscallVector = 0x80
)

// Privilege is the descriptor privilege level a gate is callable from.
type Privilege uint8

const (
	Ring0 Privilege = 0
	Ring3 Privilege = 3
)

// Kind distinguishes interrupt gates (which clear IF on entry) from trap
// gates (which don't); spec.md doesn't force a choice per vector beyond
// "a gate descriptor", so exceptions and IRQs use interrupt gates (matching
// the original's uniform gate type), while internal/kernel installs the
// syscall vector as a trap gate, since the syscall dispatcher explicitly
// disables interrupts itself (§4.9).
type Kind uint8

const (
	KindInterrupt Kind = 0xE
	KindTrap      Kind = 0xF
)

// Handler is invoked with the full trap frame for the vector raised. It
// returns the frame to resume with — ordinarily the same frame, unmodified.
type Handler func(*trapframe.Frame) *trapframe.Frame

const gateDescSize = 8

// gateDescriptor is the raw eight-byte x86 interrupt/trap gate, present
// flag folded into attrs bit 7 (present), bits 5-6 (DPL) and bits 0-4
// (gate type), matching the classic IA-32 IDT gate layout.
type gateDescriptor struct {
	OffsetLow  uint16
	Selector   uint16
	Zero       uint8
	Attributes uint8
	OffsetHigh uint16
}

func (g gateDescriptor) bytes() []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, g)
	return buf.Bytes()
}

const kernelCodeSelector = 0x08 // internal/gdt: selector 1, RPL 0

// Table owns the 256-descriptor IDT and the Go-side handler registry; each
// descriptor points at its own tiny per-vector entry stub (all funnelling
// into one shared trampoline body), so the Go registry — not the gate
// itself — is what actually dispatches by vector.
type Table struct {
	mu       sync.Mutex
	raw      [NumVectors]gateDescriptor
	handlers [NumVectors]Handler
	present  [NumVectors]bool
	enabled  bool // process-wide "interrupts on" mirror, spec.md §4.1
}

var (
	globalMu sync.Mutex
	global   *Table
)

// New returns a Table with all 256 entries marked not-present and the 22
// architectural exceptions pre-installed as panicking stubs, per spec.md
// §4.1. stubBase is the base address of the per-vector entry-stub table
// (idt_386.go's BuildStubTable): each vector's gate points at
// stubBase+vector*StubStride, a tiny stub that pushes the vector number
// and jumps to the single shared trampoline body every one of those
// stubs funnels into. Tests pass a sentinel base — the table's
// bookkeeping (descriptor bytes, enable mirror, handler registry) is
// exercised independently of the real stub table.
func New(stubBase uint32) *Table {
	t := &Table{}
	for v := 0; v < NumVectors; v++ {
		t.raw[v] = encodeGate(stubAddrFor(stubBase, v), kernelCodeSelector, Ring0, KindInterrupt)
		t.raw[v].Attributes &^= 0x80 // not present until installLocked re-encodes it
	}
	for _, exc := range architecturalExceptions {
		t.installLocked(exc.vector, panicStub(exc), Ring0, KindInterrupt)
	}
	return t
}

func stubAddrFor(stubBase uint32, vector int) uint32 {
	return stubBase + uint32(vector)*StubStride
}

func encodeGate(addr uint32, selector uint16, priv Privilege, kind Kind) gateDescriptor {
	return gateDescriptor{
		OffsetLow:  uint16(addr & 0xFFFF),
		Selector:   selector,
		Zero:       0,
		Attributes: 0x80 | (uint8(priv) << 5) | uint8(kind),
		OffsetHigh: uint16(addr >> 16),
	}
}

// Install writes a gate descriptor for vector and registers handler as the
// Go-side dispatch target. Per spec.md §4.1, mutation takes effect
// immediately — there is no separate load step after the initial LIDT.
func (t *Table) Install(vector int, handler Handler, priv Privilege, kind Kind) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.installLocked(vector, handler, priv, kind)
}

func (t *Table) installLocked(vector int, handler Handler, priv Privilege, kind Kind) error {
	if vector < 0 || vector >= NumVectors {
		return fmt.Errorf("idt: vector %d out of range", vector)
	}
	addr := uint32(t.raw[vector].OffsetLow) | uint32(t.raw[vector].OffsetHigh)<<16
	t.raw[vector] = encodeGate(addr, kernelCodeSelector, priv, kind)
	t.handlers[vector] = handler
	t.present[vector] = true
	return nil
}

// Dispatch is the Go-side half of every trampoline: look up the installed
// handler for frame.Vector and invoke it. Called with interrupts already
// disabled by the CPU's gate-entry semantics.
func (t *Table) Dispatch(frame *trapframe.Frame) *trapframe.Frame {
	t.mu.Lock()
	h := t.handlers[frame.Vector]
	present := t.present[frame.Vector]
	t.mu.Unlock()
	if !present || h == nil {
		panic(fmt.Sprintf("idt: unhandled vector %#x", frame.Vector))
	}
	return h(frame)
}

// Bytes returns the table serialized for LIDT, base-aligned and
// contiguous, built via encoding/binary rather than manual byte packing.
func (t *Table) Bytes() []byte {
	buf := make([]byte, 0, NumVectors*gateDescSize)
	for _, g := range t.raw {
		buf = append(buf, g.bytes()...)
	}
	return buf
}

// Enable and Disable are raw flag manipulations (sti/cli) that also
// maintain the process-wide "interrupts on" mirror IsEnabled reports
// (spec.md §4.1).
func (t *Table) Enable() {
	t.mu.Lock()
	t.enabled = true
	t.mu.Unlock()
	enableInterrupts()
}

func (t *Table) Disable() {
	t.mu.Lock()
	t.enabled = false
	t.mu.Unlock()
	disableInterrupts()
}

// IsEnabled reports the process-wide "interrupts on" mirror (spec.md
// §4.1), reconciled against the real EFLAGS.IF bit when running on real
// hardware (readEflags is wired by idt_386.go's init) — a raw CLI/STI
// executed outside of Disable/Enable would otherwise leave the mirror
// stale.
func (t *Table) IsEnabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if readEflags != nil {
		t.enabled = readEflags()&eflagsIF != 0
	}
	return t.enabled
}

// eflagsIF is the interrupt-enable bit within EFLAGS (bit 9).
const eflagsIF = 1 << 9

// enableInterrupts/disableInterrupts are swapped out in tests; production
// wiring (idt_386.go's init) points them at mach.Sti/mach.Cli.
// readEflags backs IsEnabled's hardware reconciliation; nil under test,
// where the software mirror alone is authoritative.
var (
	enableInterrupts  = func() {}
	disableInterrupts = func() {}
	readEflags        func() uint32
)

// active is the Table the shared assembly trampoline (commonTrapEntry,
// idt_386.s) dispatches through. Set once by Activate during boot,
// matching Design Notes §9's write-once-then-stable bootstrap for the
// handler table: the table itself stays mutable via Install afterwards,
// only this pointer is fixed at bootstrap.
var active *Table

// Activate points dispatchFromStub's call target at t. Called once from
// internal/kernel, after New, and before Enable.
func Activate(t *Table) { active = t }

// dispatchFromStub is commonTrapEntry's only Go-side call target. It runs
// on the interrupted (or TSS-switched kernel) stack with interrupts
// already cleared by gate-entry semantics, so it must not do anything
// that could fault before active is known good.
//
//go:nosplit
func dispatchFromStub(f *trapframe.Frame) {
	if active == nil {
		panic("idt: trap received before Activate")
	}
	active.Dispatch(f)
}

// Global returns the process-wide table, constructing it on first use.
// Most of the kernel operates on this singleton; Table itself stays
// independently testable via New.
func Global(stubAddr uint32) *Table {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		global = New(stubAddr)
	}
	return global
}

// exception describes one of the 22 architecturally defined x86
// exceptions: its vector, name (for the panic message), and whether the
// CPU pushes an error code (those handlers need the extra 32-bit
// argument spec.md §4.1 calls out).
type exception struct {
	vector   int
	name     string
	hasError bool
}

var architecturalExceptions = []exception{
	{0x00, "divide error", false},
	{0x01, "debug", false},
	{0x02, "non-maskable interrupt", false},
	{0x03, "breakpoint", false},
	{0x04, "overflow", false},
	{0x05, "bound range exceeded", false},
	{0x06, "invalid opcode", false},
	{0x07, "device not available", false},
	{0x08, "double fault", true},
	{0x09, "coprocessor segment overrun", false},
	{0x0A, "invalid TSS", true},
	{0x0B, "segment not present", true},
	{0x0C, "stack-segment fault", true},
	{0x0D, "general protection fault", true},
	{0x0E, "page fault", true},
	{0x0F, "reserved", false},
	{0x10, "x87 floating-point exception", false},
	{0x11, "alignment check", true},
	{0x12, "machine check", false},
	{0x13, "SIMD floating-point exception", false},
	{0x14, "virtualization exception", false},
	{0x15, "control protection exception", true},
}

// panicStub builds the default handler spec.md §4.1 mandates for every
// architectural exception: print the name and, if applicable, the error
// code, then halt. Unrecoverable per the error taxonomy in spec.md §7.
func panicStub(exc exception) Handler {
	return func(f *trapframe.Frame) *trapframe.Frame {
		if exc.hasError {
			panic(fmt.Sprintf("exception: %s (vector %#x, error code %#x)", exc.name, exc.vector, f.ErrorCode))
		}
		panic(fmt.Sprintf("exception: %s (vector %#x)", exc.name, exc.vector))
	}
}
