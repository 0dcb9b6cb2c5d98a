package idt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/POBIX/ossi/internal/trapframe"
)

const testStubBase = 0x10000

func TestNewMarksArchitecturalExceptionsPresent(t *testing.T) {
	tbl := New(testStubBase)
	for _, exc := range architecturalExceptions {
		require.True(t, tbl.present[exc.vector], "vector %#x should be pre-installed", exc.vector)
	}
	require.False(t, tbl.present[0x21], "vector 0x21 should start absent")
}

func TestNewPointsEachGateAtItsOwnStub(t *testing.T) {
	tbl := New(testStubBase)
	for _, v := range []int{0, 1, 42, 255} {
		addr := uint32(tbl.raw[v].OffsetLow) | uint32(tbl.raw[v].OffsetHigh)<<16
		assert.Equal(t, stubAddrFor(testStubBase, v), addr)
	}
	// Distinct vectors must land on distinct addresses: a real CPU has no
	// other way to tell handlers apart.
	addr0 := uint32(tbl.raw[0].OffsetLow) | uint32(tbl.raw[0].OffsetHigh)<<16
	addr1 := uint32(tbl.raw[1].OffsetLow) | uint32(tbl.raw[1].OffsetHigh)<<16
	assert.NotEqual(t, addr0, addr1)
}

func TestInstallRejectsOutOfRangeVector(t *testing.T) {
	tbl := New(testStubBase)
	err := tbl.Install(NumVectors, func(f *trapframe.Frame) *trapframe.Frame { return f }, Ring0, KindInterrupt)
	assert.Error(t, err)
	err = tbl.Install(-1, func(f *trapframe.Frame) *trapframe.Frame { return f }, Ring0, KindInterrupt)
	assert.Error(t, err)
}

func TestInstallPreservesGateAddress(t *testing.T) {
	tbl := New(testStubBase)
	before := tbl.raw[0x30]
	beforeAddr := uint32(before.OffsetLow) | uint32(before.OffsetHigh)<<16

	require.NoError(t, tbl.Install(0x30, func(f *trapframe.Frame) *trapframe.Frame { return f }, Ring3, KindTrap))

	after := tbl.raw[0x30]
	afterAddr := uint32(after.OffsetLow) | uint32(after.OffsetHigh)<<16
	assert.Equal(t, beforeAddr, afterAddr, "Install must not move the gate's target address")
	assert.Equal(t, uint8(0x80|(uint8(Ring3)<<5)|uint8(KindTrap)), after.Attributes)
}

func TestDispatchInvokesInstalledHandler(t *testing.T) {
	tbl := New(testStubBase)
	called := false
	require.NoError(t, tbl.Install(0x40, func(f *trapframe.Frame) *trapframe.Frame {
		called = true
		return f
	}, Ring0, KindInterrupt))

	frame := &trapframe.Frame{Vector: 0x40}
	tbl.Dispatch(frame)
	assert.True(t, called)
}

func TestDispatchPanicsOnUnhandledVector(t *testing.T) {
	tbl := New(testStubBase)
	assert.Panics(t, func() {
		tbl.Dispatch(&trapframe.Frame{Vector: 0x50})
	})
}

func TestPanicStubReportsVectorAndErrorCode(t *testing.T) {
	tbl := New(testStubBase)
	assert.PanicsWithValue(t,
		"exception: general protection fault (vector 0xd, error code 0x7)",
		func() {
			tbl.Dispatch(&trapframe.Frame{Vector: 0x0D, ErrorCode: 0x7})
		})
}

func TestBytesLengthMatchesTable(t *testing.T) {
	tbl := New(testStubBase)
	assert.Len(t, tbl.Bytes(), NumVectors*gateDescSize)
}

func TestEnableDisableTracksMirror(t *testing.T) {
	tbl := New(testStubBase)
	assert.False(t, tbl.IsEnabled())
	tbl.Enable()
	assert.True(t, tbl.IsEnabled())
	tbl.Disable()
	assert.False(t, tbl.IsEnabled())
}

func TestActivateAndDispatchFromStub(t *testing.T) {
	saved := active
	defer func() { active = saved }()

	tbl := New(testStubBase)
	called := false
	require.NoError(t, tbl.Install(0x60, func(f *trapframe.Frame) *trapframe.Frame {
		called = true
		return f
	}, Ring0, KindInterrupt))

	Activate(tbl)
	dispatchFromStub(&trapframe.Frame{Vector: 0x60})
	assert.True(t, called)
}

func TestDispatchFromStubPanicsBeforeActivate(t *testing.T) {
	saved := active
	active = nil
	defer func() { active = saved }()

	assert.PanicsWithValue(t, "idt: trap received before Activate", func() {
		dispatchFromStub(&trapframe.Frame{Vector: 0x21})
	})
}

func TestGlobalReturnsSameTable(t *testing.T) {
	saved := global
	global = nil
	defer func() { global = saved }()

	a := Global(testStubBase)
	b := Global(0xDEAD)
	assert.Same(t, a, b)
}
