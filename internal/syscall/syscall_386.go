//go:build 386

package syscall

import "github.com/POBIX/ossi/internal/mach"

func init() {
	enableInterrupts = mach.Sti
	disableInterrupts = mach.Cli
	halt = mach.Halt
	rawBus = mach.HW
}
