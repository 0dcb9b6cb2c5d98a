//go:build 386

package kheap

import "github.com/POBIX/ossi/internal/mach"

func init() {
	enableInterrupts = mach.Sti
	disableInterrupts = mach.Cli
}
