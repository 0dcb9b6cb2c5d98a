// Package timer implements the tick-driven preemption source of spec.md
// §4.3: a handler installed on the PIC's line 0 that saves the
// interrupted context, fires a tick event, and — once the heap is live
// and at least one process is registered — asks the scheduler for the
// next context, which it returns on the same tick; the handler's tail
// then unmasks line 0, sends EOI and writes that context's stack and
// instruction pointers into the frame it returns.
//
// Grounded on the original's timer.rs, which wires an IRQ0 handler that
// increments a tick counter, fires an Event<()>, and otherwise defers to
// process::next_program; restructured here to go through the canonical
// trapframe.Frame/Context pair (spec.md Design Notes §9) instead of a
// bespoke saved-register struct.
package timer

import (
	"sync"

	"github.com/POBIX/ossi/internal/events"
	"github.com/POBIX/ossi/internal/trapframe"
)

// Line is the PIC IRQ line the timer is wired to.
const Line = 0

// Scheduler is the subset of internal/sched's Scheduler the timer drives.
// Declared here, rather than imported, to keep the dependency edge
// pointing from timer to sched's interface only — sched depends on
// trapframe, not on timer.
type Scheduler interface {
	NextProgram(saved trapframe.Context) trapframe.Context
	Len() int
}

// EOISource is the interrupt-controller operations the handler's tail
// needs: end-of-interrupt and unmasking line 0 back on after a switch.
type EOISource interface {
	EndOfInterrupt(line int)
	SetMask(line int, masked bool)
}

// Timer owns the tick counter, the tick event bus, and the bookkeeping
// spec.md §4.3 describes for deciding whether to hand off to the
// scheduler at all.
type Timer struct {
	mu    sync.Mutex
	ticks uint64
	tick  events.Bus[uint64]

	heapInit func() bool
	sched    Scheduler
	pic      EOISource
}

// New returns a Timer. heapInit reports whether the kernel heap has
// finished initializing — until it has, the handler must not touch the
// scheduler (spec.md §4.6: "timer and scheduler paths skip scheduler work
// until the allocator is live").
func New(pic EOISource, sched Scheduler, heapInit func() bool) *Timer {
	return &Timer{pic: pic, sched: sched, heapInit: heapInit}
}

// Ticks returns the current tick count.
func (t *Timer) Ticks() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ticks
}

// Subscribe registers fn to be called, with the new tick count, on every
// timer interrupt.
func (t *Timer) Subscribe(fn func(uint64)) events.Token {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tick.Subscribe(fn)
}

// Handle is the Go-side body of the IRQ0 handler, installed into the IDT
// at vector idt.IRQBase+Line. frame carries the interrupted context
// exactly as pushed by the shared trap stub (spec.md Design Notes §9).
//
// Step 1 of spec.md §4.3 ("save the full general-register state") is
// already done by the time Handle runs — it is the job of the shared
// trap entry stub, not of this handler, matching the "route every entry
// through the same save/restore routine" redesign note.
func (t *Timer) Handle(frame *trapframe.Frame) *trapframe.Frame {
	t.mu.Lock()
	t.ticks++
	ticks := t.ticks
	t.mu.Unlock()
	t.tick.Invoke(ticks)

	if t.heapInit == nil || !t.heapInit() || t.sched == nil || t.sched.Len() == 0 {
		t.pic.EndOfInterrupt(Line)
		return frame
	}

	saved := trapframe.Context{
		ESP: frame.UserESP,
		EIP: frame.EIP,
	}
	resumed := t.sched.NextProgram(saved)

	t.pic.SetMask(Line, false)
	t.pic.EndOfInterrupt(Line)

	frame.UserESP = resumed.ESP
	frame.EIP = resumed.EIP
	return frame
}
