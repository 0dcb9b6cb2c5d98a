package keyboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandleLowercaseLetter(t *testing.T) {
	k := New()
	var got Key
	k.Subscribe(func(key Key) { got = key })

	k.Handle(0x1E) // 'a' make code

	assert.Equal(t, Key{Rune: 'a', Pressed: true}, got)
}

func TestHandleCapsLockTogglesUppercase(t *testing.T) {
	k := New()
	var got Key
	k.Subscribe(func(key Key) { got = key })

	k.Handle(scCapsLockMake)
	assert.True(t, k.CapsLock())

	k.Handle(0x1E) // 'a'
	assert.Equal(t, Key{Rune: 'A', Pressed: true}, got)

	k.Handle(scCapsLockMake)
	assert.False(t, k.CapsLock())
}

func TestHandleShiftUppercasesLetter(t *testing.T) {
	k := New()
	var got Key
	k.Subscribe(func(key Key) { got = key })

	k.Handle(scLeftShiftMake)
	k.Handle(0x1E) // 'a'
	assert.Equal(t, Key{Rune: 'A', Pressed: true}, got)

	k.Handle(scLeftShiftBreak)
	k.Handle(0x1E)
	assert.Equal(t, Key{Rune: 'a', Pressed: true}, got)
}

func TestHandleShiftPlusCapsLockCancelOut(t *testing.T) {
	k := New()
	var got Key
	k.Subscribe(func(key Key) { got = key })

	k.Handle(scCapsLockMake)
	k.Handle(scLeftShiftMake)
	k.Handle(0x1E) // 'a'
	assert.Equal(t, Key{Rune: 'a', Pressed: true}, got)
}

func TestHandleShiftedSymbol(t *testing.T) {
	k := New()
	var got Key
	k.Subscribe(func(key Key) { got = key })

	k.Handle(scLeftShiftMake)
	k.Handle(0x02) // '1' make code
	assert.Equal(t, Key{Rune: '!', Pressed: true}, got)
}

func TestHandleBreakCodeProducesNoEvent(t *testing.T) {
	k := New()
	called := false
	k.Subscribe(func(Key) { called = true })

	k.Handle(0x1E | 0x80) // break code for 'a'
	assert.False(t, called)
}

func TestHandleUnknownScancodeIgnored(t *testing.T) {
	k := New()
	called := false
	k.Subscribe(func(Key) { called = true })

	k.Handle(0xFF)
	assert.False(t, called)
}
