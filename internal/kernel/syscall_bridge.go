package kernel

import (
	"github.com/POBIX/ossi/internal/syscall"
	"github.com/POBIX/ossi/internal/trapframe"
)

// dispatchSyscall is the IDT handler installed at syscall.Vector. It
// decodes the trap-time registers per internal/syscall's ABI
// convention, runs the request, and writes the result back into EAX —
// "return value in the accumulator", per spec.md §4.9.
func (k *Kernel) dispatchSyscall(f *trapframe.Frame) *trapframe.Frame {
	tag := syscall.Tag(f.Regs.EAX)

	req, err := syscall.Decode(k.Paging, k.Paging.Current(), tag, f.Regs.EBX, f.Regs.ECX)
	if err != nil {
		f.Regs.EAX = ^uint32(0)
		return f
	}

	result, err := k.Syscall.Dispatch(req)
	if err != nil {
		f.Regs.EAX = ^uint32(0)
		return f
	}
	f.Regs.EAX = result
	return f
}
