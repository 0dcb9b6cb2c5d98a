// Package machtest provides an in-memory mach.PortBus for exercising
// hardware-facing components (pic, ata, keyboard, timer wiring) without
// real I/O ports, the "isolated virtualised target" spec.md §8 asks for.
package machtest

import "github.com/POBIX/ossi/internal/mach"

// Bus is a fake PortBus backed by a plain map, plus optional per-port
// callbacks so a test can model device behaviour (e.g. an ATA controller
// that flips its status register once data is "ready").
type Bus struct {
	regs8  map[uint16]uint8
	regs16 map[uint16]uint16
	regs32 map[uint16]uint32

	OnOut8 func(port uint16, v uint8)
	Waits  int
}

var _ mach.PortBus = (*Bus)(nil)

// New returns an empty fake bus; all ports read back as zero until written.
func New() *Bus {
	return &Bus{
		regs8:  make(map[uint16]uint8),
		regs16: make(map[uint16]uint16),
		regs32: make(map[uint16]uint32),
	}
}

func (b *Bus) In8(port uint16) uint8 { return b.regs8[port] }

func (b *Bus) Out8(port uint16, v uint8) {
	b.regs8[port] = v
	if b.OnOut8 != nil {
		b.OnOut8(port, v)
	}
}

func (b *Bus) In16(port uint16) uint16 { return b.regs16[port] }

func (b *Bus) Out16(port uint16, v uint16) { b.regs16[port] = v }

func (b *Bus) In32(port uint16) uint32 { return b.regs32[port] }

func (b *Bus) Out32(port uint16, v uint32) { b.regs32[port] = v }

func (b *Bus) Wait() { b.Waits++ }

// Set8/Get8 let a test poke or inspect a port directly, e.g. to simulate a
// controller flipping its status register asynchronously.
func (b *Bus) Set8(port uint16, v uint8) { b.regs8[port] = v }
func (b *Bus) Get8(port uint16) uint8    { return b.regs8[port] }
