//go:build 386

package elfload

import (
	"reflect"

	"github.com/POBIX/ossi/internal/gdt"
)

// trampolineBody is the shared resume routine spec.md §4.10 describes:
// it runs once, in ring 0, as the very first dispatch of a newly loaded
// process (the scheduler's saved EIP for that process is this routine's
// address). It acknowledges the timer interrupt that caused it to be
// scheduled, then calls enterUserMode below. Implemented in
// trampoline_386.s — no Go calling convention applies to trampolineBody
// itself, since it is jumped to directly off the scheduler's saved EIP
// rather than CALLed.
func trampolineBody()

// TrampolineAddr returns trampolineBody's entry address, the value
// internal/elfload registers as a new process's resume EIP.
func TrampolineAddr() uint32 {
	return uint32(reflect.ValueOf(trampolineBody).Pointer())
}

// enterUserMode is trampolineBody's only Go-side call target, the same
// asm-stub-calls-a-nosplit-Go-function split internal/idt's
// commonTrapEntry/dispatchFromStub pair uses. It builds the iret frame
// spec.md §4.7 describes (gdt.BuildUserFrame) and executes it
// (gdt.EnterUser) — the single source of truth for entering ring 3,
// rather than duplicating the push sequence in hand-written assembly.
// Never returns.
//
//go:nosplit
func enterUserMode(entry, userESP uint32) {
	gdt.EnterUser(gdt.BuildUserFrame(entry, userESP))
}
