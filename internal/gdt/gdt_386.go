//go:build 386

package gdt

import "github.com/POBIX/ossi/internal/mach"

// Load installs the table (base/limit already computed by the caller,
// which knows the linear address this Table's Bytes() were copied to)
// and the task register.
func Load(base uint32, limit uint16) {
	mach.Lgdt(base, limit)
	mach.Ltr(TSSSelector)
}

// EnterUser transfers control to frame via iret; declared here with no
// body, implemented in gdt_386.s, since only assembly can push an
// arbitrary five-word interrupt-return frame and execute IRET without
// Go's own call/return machinery interfering.
func EnterUser(frame UserFrame)
