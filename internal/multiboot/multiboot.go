// Package multiboot validates and decodes the multiboot information record
// the boot loader hands the kernel, per spec.md §6 "Boot": a magic constant
// in EAX (must equal 0x2BADB002) and, in EBX, a pointer to an information
// record whose flags bit 0 must be set (basic memory info valid) before
// mem_lower/mem_upper are trusted. This is the kernel's only boot-time
// configuration surface — there is no config file and no environment.
//
// Grounded on the original's grub.rs, trimmed to the fields spec.md §3/§6
// actually consume (flags, mem_lower, mem_upper); the rest of the
// multiboot1 info record (framebuffer, drives, VBE) is parsed by nobody in
// this kernel and so is not modelled, matching spec.md's scoping of the
// multiboot header parser as an external collaborator.
package multiboot

import (
	"encoding/binary"
	"fmt"
)

// Magic is the value the boot loader must leave in EAX.
const Magic uint32 = 0x2BADB002

// flagMemInfo is bit 0 of Info.Flags: mem_lower/mem_upper are valid.
const flagMemInfo = 1 << 0

// Info is the validated, Go-native view of the fields spec.md needs.
type Info struct {
	Flags    uint32
	MemLowerKB uint32
	MemUpperKB uint32
}

// ErrBadMagic and ErrNoMemInfo are the two checks spec.md §6 requires the
// kernel to panic on; the caller (cmd/kernel's kmain) converts them to a
// panic itself, so the check is testable as an ordinary error here.
var (
	ErrBadMagic   = fmt.Errorf("multiboot: bad magic")
	ErrNoMemInfo  = fmt.Errorf("multiboot: basic memory info flag (bit 0) not set")
)

// rawSize is the number of leading bytes of the multiboot1 info record
// Parse reads: flags, mem_lower, mem_upper, three little-endian uint32s.
const rawSize = 12

// Parse validates magic and decodes the leading fields of a multiboot
// info record already copied into a byte slice. Kept separate from the
// raw memory read (cmd/kernel's physBytes) so the validation logic is
// testable without unsafe memory access.
func Parse(magic uint32, raw []byte) (Info, error) {
	if magic != Magic {
		return Info{}, ErrBadMagic
	}
	if len(raw) < rawSize {
		return Info{}, fmt.Errorf("multiboot: info record truncated: got %d bytes, want >= %d", len(raw), rawSize)
	}
	info := Info{
		Flags:      binary.LittleEndian.Uint32(raw[0:4]),
		MemLowerKB: binary.LittleEndian.Uint32(raw[4:8]),
		MemUpperKB: binary.LittleEndian.Uint32(raw[8:12]),
	}
	if info.Flags&flagMemInfo == 0 {
		return Info{}, ErrNoMemInfo
	}
	return info, nil
}
