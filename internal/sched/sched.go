// Package sched implements the round-robin process scheduler of spec.md
// §4.8: an ordered sequence of process contexts plus a cursor, driven
// exclusively by internal/timer's tick handler.
//
// Grounded on the original's process.rs (register/next_program/
// unregister_prev/kill_process, PROCESSES+CURR_INDEX under a lock),
// restructured to use the canonical trapframe.Context (spec.md Design
// Notes §9) instead of a bespoke Context struct, and to hold
// *paging.Directory values directly rather than raw pointers (Design
// Notes §9: "each such singleton is an owned value behind a mutex").
package sched

import (
	"sync"

	"github.com/POBIX/ossi/internal/paging"
	"github.com/POBIX/ossi/internal/trapframe"
)

// TimerLine is the PIC line the scheduler masks around Register, per
// spec.md §4.8 ("disables the timer line ... re-enables the timer
// line").
const TimerLine = 0

// PIC is the subset of internal/pic the scheduler drives.
type PIC interface {
	SetMask(line int, masked bool)
}

// AddressSpace is the subset of internal/paging.Manager the scheduler
// drives.
type AddressSpace interface {
	SwitchTo(dir *paging.Directory)
}

// killSentinel marks a context whose instruction pointer should never
// actually be resumed: UnregisterPrev writes it into the predecessor
// slot as a stand-in for the original's "kill_process" kernel routine.
// Since this package has no real machine-code address to splice in (the
// original's kill_process is an assembly routine reachable only from a
// live process's own address space), the sentinel is checked and handled
// entirely inside NextProgram instead.
const killSentinel = ^uint32(0)

// Scheduler is the process-wide singleton (spec.md §5).
type Scheduler struct {
	mu     sync.Mutex
	ctxs   []trapframe.Context
	dirs   []*paging.Directory
	cursor int

	pic    PIC
	space  AddressSpace
}

// New returns an empty scheduler.
func New(pic PIC, space AddressSpace) *Scheduler {
	return &Scheduler{pic: pic, space: space}
}

// Len reports the number of registered processes.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ctxs)
}

// Register admits a new process. If it is the only process, Register
// runs NextProgram at once, which selects it and switches to its address
// space; the returned context is discarded, and the process is entered
// by the timer path's next NextProgram call.
//
// Decision (spec.md §9 Open Question: whether the scheduler should
// update the predecessor context when it is the only process): it should
// not. NextProgram's predecessor-slot write is skipped whenever exactly
// one process is registered, so admitting the first process never
// clobbers its own just-registered context with a placeholder "saved"
// value from a thread that never ran.
func (s *Scheduler) Register(esp, eip uint32, dir *paging.Directory) {
	s.pic.SetMask(TimerLine, true)

	s.mu.Lock()
	first := len(s.ctxs) == 0
	s.ctxs = append(s.ctxs, trapframe.Context{ESP: esp, EIP: eip})
	s.dirs = append(s.dirs, dir)
	s.cursor = (s.cursor + 1) % len(s.ctxs)
	s.mu.Unlock()

	if first {
		s.NextProgram(trapframe.Context{})
	}

	s.pic.SetMask(TimerLine, false)
}

// NextProgram is the scheduler's single entry point from the timer path.
// It saves the interrupted context into the predecessor slot (unless
// there is only one process, see Register's doc comment), selects the
// process at the cursor, advances the cursor, switches address space,
// and returns the context to resume.
func (s *Scheduler) NextProgram(saved trapframe.Context) trapframe.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextProgramLocked(saved)
}

func (s *Scheduler) nextProgramLocked(saved trapframe.Context) trapframe.Context {
	n := len(s.ctxs)
	if n == 0 {
		return trapframe.Context{}
	}
	if n > 1 {
		pred := (s.cursor - 1 + n) % n
		if s.ctxs[pred].EIP != killSentinel { // keep UnregisterPrev's mark
			s.ctxs[pred] = saved
		}
	}

	cur := s.cursor
	s.cursor = (s.cursor + 1) % n

	if s.ctxs[cur].EIP == killSentinel {
		s.removeLocked(cur)
		return s.nextProgramLocked(saved)
	}

	ctx := s.ctxs[cur]
	s.space.SwitchTo(s.dirs[cur])
	return ctx
}

// UnregisterPrev marks the predecessor process (the one the cursor just
// advanced past) to be torn down on its next turn, per spec.md §4.8.
func (s *Scheduler) UnregisterPrev() {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.ctxs)
	if n == 0 {
		return
	}
	pred := (s.cursor - 1 + n) % n
	s.ctxs[pred].EIP = killSentinel
}

func (s *Scheduler) removeLocked(idx int) {
	s.ctxs = append(s.ctxs[:idx], s.ctxs[idx+1:]...)
	s.dirs = append(s.dirs[:idx], s.dirs[idx+1:]...)
	n := len(s.ctxs)
	if n == 0 {
		s.cursor = 0
		return
	}
	if s.cursor > idx {
		s.cursor--
	}
	s.cursor %= n
}
