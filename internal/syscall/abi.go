// ABI decoding: spec.md §4.9/§6 fixes the trap convention ("general
// registers carry tag, request-pointer; return value in the
// accumulator") but not the shape of what request-pointer points at —
// that is this kernel's own wire format, not something spec.md mandates,
// so it is defined here rather than guessed from the original (which
// uses Rust trait objects with no equivalent concept in Go).
//
// Convention: EAX carries the Tag. For tags whose arguments fit in a
// single register, EBX carries it directly (a port number, a line
// number, a byte count). For tags needing two scalars, EBX carries the
// first and ECX the second. For tags with variable-length data, EBX is a
// pointer into the caller's address space to a small fixed descriptor, decoded here via encoding/binary — the
// same fixed-layout-over-encoding/binary discipline used everywhere else
// in this module.
package syscall

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/POBIX/ossi/internal/paging"
)

type printDescriptor struct {
	TextPtr uint32
	TextLen uint32
}

type sectorDescriptor struct {
	LBA    uint32
	Count  uint32
	BufPtr uint32
}

type pathDescriptor struct {
	PathPtr uint32
	PathLen uint32
}

func readDescriptor(pg *paging.Manager, dir *paging.Directory, ptr uint32, out any) error {
	n := binary.Size(out)
	raw, err := pg.ReadVirt(dir, ptr, n)
	if err != nil {
		return err
	}
	return binary.Read(bytes.NewReader(raw), binary.LittleEndian, out)
}

func readPath(pg *paging.Manager, dir *paging.Directory, ptr, length uint32) (string, error) {
	raw, err := pg.ReadVirt(dir, ptr, int(length))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Decode builds a typed Request from the trap-time registers, per the
// convention documented above. pg/dir resolve EBX-as-pointer arguments
// against the trapping process's own address space.
func Decode(pg *paging.Manager, dir *paging.Directory, tag Tag, ebx, ecx uint32) (Request, error) {
	switch tag {
	case TagNoop, TagHalt, TagEnableInterrupts, TagDisableInterrupts,
		TagQueryInterrupts, TagQueryHeapInit, TagQueryAnyProcesses, TagQueryAddressSpace,
		TagDirList:
		return Request{Tag: tag}, nil

	case TagAckInterrupt:
		return Request{Tag: tag, Args: AckInterruptArgs{Line: int(ebx)}}, nil
	case TagMaskLine:
		return Request{Tag: tag, Args: MaskLineArgs{Line: int(ebx), Masked: ecx != 0}}, nil
	case TagAlloc:
		return Request{Tag: tag, Args: AllocArgs{Size: ebx, Align: ecx}}, nil
	case TagDealloc:
		return Request{Tag: tag, Args: DeallocArgs{Ptr: ebx}}, nil
	case TagKeyState:
		return Request{Tag: tag}, nil
	case TagConsole:
		return Request{Tag: tag}, nil

	case TagInb, TagInw, TagInl:
		return Request{Tag: tag, Args: InArgs{Port: uint16(ebx)}}, nil
	case TagOutb, TagOutw, TagOutl:
		return Request{Tag: tag, Args: PortArgs{Port: uint16(ebx), Value: ecx}}, nil

	case TagPrint:
		var d printDescriptor
		if err := readDescriptor(pg, dir, ebx, &d); err != nil {
			return Request{}, err
		}
		text, err := readPath(pg, dir, d.TextPtr, d.TextLen)
		if err != nil {
			return Request{}, err
		}
		return Request{Tag: tag, Args: PrintArgs{Text: text}}, nil

	case TagReadSectors, TagWriteSectors:
		var d sectorDescriptor
		if err := readDescriptor(pg, dir, ebx, &d); err != nil {
			return Request{}, err
		}
		buf := make([]byte, int(d.Count)*512)
		if tag == TagWriteSectors {
			raw, err := pg.ReadVirt(dir, d.BufPtr, len(buf))
			if err != nil {
				return Request{}, err
			}
			copy(buf, raw)
		}
		return Request{Tag: tag, Args: SectorArgs{LBA: d.LBA, Count: uint8(d.Count), Buf: buf}}, nil

	case TagRunProgram, TagExecuteFile, TagFSHeader:
		var d pathDescriptor
		if err := readDescriptor(pg, dir, ebx, &d); err != nil {
			return Request{}, err
		}
		path, err := readPath(pg, dir, d.PathPtr, d.PathLen)
		if err != nil {
			return Request{}, err
		}
		if tag == TagRunProgram {
			return Request{Tag: tag, Args: RunProgramArgs{Image: []byte(path)}}, nil
		}
		return Request{Tag: tag, Args: ExecuteFileArgs{Path: path}}, nil

	default:
		return Request{}, fmt.Errorf("syscall: cannot decode tag %d", tag)
	}
}
