package syscall

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/POBIX/ossi/internal/console"
	"github.com/POBIX/ossi/internal/keyboard"
	"github.com/POBIX/ossi/internal/kheap"
)

func TestDispatchPrintWritesToConsole(t *testing.T) {
	c := console.New(make([]byte, console.Width*console.Height*2))
	d := &Dispatcher{Console: c}

	_, err := d.Dispatch(Request{Tag: TagPrint, Args: PrintArgs{Text: "hi"}})
	require.NoError(t, err)

	ch, _ := c.CharAt(0, 0)
	assert.Equal(t, byte('h'), ch)
}

func TestDispatchHaltCallsHook(t *testing.T) {
	savedHalt := halt
	defer func() { halt = savedHalt }()
	called := false
	halt = func() { called = true }

	d := &Dispatcher{}
	_, err := d.Dispatch(Request{Tag: TagHalt})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestDispatchAllocDealloc(t *testing.T) {
	h := kheap.New(0x1000, 4096)
	h.Init()
	d := &Dispatcher{Heap: h}

	ptr, err := d.Dispatch(Request{Tag: TagAlloc, Args: AllocArgs{Size: 16, Align: 1}})
	require.NoError(t, err)
	assert.True(t, h.IsUsed(ptr))

	_, err = d.Dispatch(Request{Tag: TagDealloc, Args: DeallocArgs{Ptr: ptr}})
	require.NoError(t, err)
	assert.False(t, h.IsUsed(ptr))
}

func TestDispatchQueryHeapInit(t *testing.T) {
	h := kheap.New(0x1000, 4096)
	d := &Dispatcher{Heap: h}

	v, err := d.Dispatch(Request{Tag: TagQueryHeapInit})
	require.NoError(t, err)
	assert.Equal(t, uint32(0), v)

	h.Init()
	v, err = d.Dispatch(Request{Tag: TagQueryHeapInit})
	require.NoError(t, err)
	assert.Equal(t, uint32(1), v)
}

func TestDispatchKeyStateReflectsCapsLock(t *testing.T) {
	kb := keyboard.New()
	d := &Dispatcher{Keyboard: kb}

	v, err := d.Dispatch(Request{Tag: TagKeyState})
	require.NoError(t, err)
	assert.Equal(t, uint32(0), v)

	kb.Handle(0x3A) // caps lock make code
	v, err = d.Dispatch(Request{Tag: TagKeyState})
	require.NoError(t, err)
	assert.Equal(t, uint32(1), v)
}

func TestDispatchConsoleReturnsPackedCursor(t *testing.T) {
	c := console.New(make([]byte, console.Width*console.Height*2))
	c.Print("abc")
	d := &Dispatcher{Console: c}

	v, err := d.Dispatch(Request{Tag: TagConsole})
	require.NoError(t, err)
	assert.Equal(t, uint32(0)<<16|uint32(3), v)
}

func TestDispatchUnknownTagPanics(t *testing.T) {
	d := &Dispatcher{}
	assert.Panics(t, func() {
		d.Dispatch(Request{Tag: Tag(9999)})
	})
}
