//go:build 386

package mach

// hwBus is the real port bus: every method is a single IN/OUT instruction,
// implemented in hwbus_386.s. This is the only PortBus implementation that
// ever touches actual hardware; it is wired in by internal/kernel and never
// imported directly by a component package (those take a PortBus).
type hwBus struct{}

// HW is the production port bus. Only cmd/kernel (via internal/kernel)
// should ever reference it.
var HW PortBus = hwBus{}

func (hwBus) In8(port uint16) uint8    { return inb(port) }
func (hwBus) Out8(port uint16, v uint8) { outb(port, v) }
func (hwBus) In16(port uint16) uint16   { return inw(port) }
func (hwBus) Out16(port uint16, v uint16) { outw(port, v) }
func (hwBus) In32(port uint16) uint32   { return inl(port) }
func (hwBus) Out32(port uint16, v uint32) { outl(port, v) }
func (hwBus) Wait()                     { outb(0x80, 0) }

// inb/outb/... are implemented in hwbus_386.s: each is a single IN/OUT
// instruction, the same shape TamaGo's amd64 package declares load_idt()
// and irq_enable()/irq_disable() (bodies in irq.s) rather than inlining
// assembly into Go control flow.
func inb(port uint16) uint8
func outb(port uint16, v uint8)
func inw(port uint16) uint16
func outw(port uint16, v uint16)
func inl(port uint16) uint32
func outl(port uint16, v uint32)

// Cli/Sti/ReadEflags/Halt/Lidt/Lgdt/Ltr/LoadCR3/EnablePagingBit/Invlpg are
// the remaining raw primitives every other internal package is built on;
// bodies also live in hwbus_386.s. ReadEflags backs internal/idt's
// interrupts-on mirror reconciliation (spec.md §4.1).
func Cli()
func Sti()
func ReadEflags() uint32
func Halt()
func Lidt(base uint32, limit uint16)
func Lgdt(base uint32, limit uint16)
func Ltr(selector uint16)
func LoadCR3(phys uint32)
func EnablePagingBit()
func Invlpg(addr uint32)
