// Package keyboard translates PS/2 set-1 scancodes into key events and
// fires them through a pub/sub bus, per spec.md §4.9's "subscribe-to key
// events (returning singleton references)" syscall and the concrete
// scenario "press the 'a' scancode while caps-lock is active → the
// subscribed handler observes 'A'".
//
// Grounded on the original's keyboard.rs, which holds a scancode-to-ASCII
// table plus shift/caps-lock state and publishes through events::Event;
// reimplemented over internal/events.Bus.
package keyboard

import "github.com/POBIX/ossi/internal/events"

const (
	scLeftShiftMake    = 0x2A
	scLeftShiftBreak   = 0xAA
	scRightShiftMake   = 0x36
	scRightShiftBreak  = 0xB6
	scCapsLockMake     = 0x3A
	breakBit    byte   = 0x80
)

// Key is a single translated keypress.
type Key struct {
	Rune    rune
	Pressed bool
}

// Keyboard holds shift/caps-lock state and the scancode table.
type Keyboard struct {
	shiftDown bool
	capsLock  bool
	bus       events.Bus[Key]
}

// New returns a Keyboard with no modifiers active.
func New() *Keyboard {
	return &Keyboard{}
}

// Subscribe registers fn to be called for every translated keypress.
func (k *Keyboard) Subscribe(fn func(Key)) events.Token {
	return k.bus.Subscribe(fn)
}

// CapsLock reports whether caps lock is currently active.
func (k *Keyboard) CapsLock() bool { return k.capsLock }

// Handle processes one scancode byte from the PS/2 controller.
func (k *Keyboard) Handle(code byte) {
	switch code {
	case scLeftShiftMake, scRightShiftMake:
		k.shiftDown = true
		return
	case scLeftShiftBreak, scRightShiftBreak:
		k.shiftDown = false
		return
	case scCapsLockMake:
		k.capsLock = !k.capsLock
		return
	}

	if code&breakBit != 0 {
		return // key release, no further events for ordinary keys
	}

	r, ok := scancodeTable[code]
	if !ok {
		return
	}
	upper := k.shiftDown != k.capsLock // caps lock and shift cancel each other for letters
	if upper && r >= 'a' && r <= 'z' {
		r -= 'a' - 'A'
	} else if !upper && r >= 'a' && r <= 'z' {
		// already lowercase
	} else if k.shiftDown {
		if shifted, ok := shiftedSymbols[r]; ok {
			r = shifted
		}
	}
	k.bus.Invoke(Key{Rune: r, Pressed: true})
}

// scancodeTable maps PS/2 set-1 make codes to their unshifted,
// caps-lock-off rune.
var scancodeTable = map[byte]rune{
	0x1E: 'a', 0x30: 'b', 0x2E: 'c', 0x20: 'd', 0x12: 'e',
	0x21: 'f', 0x22: 'g', 0x23: 'h', 0x17: 'i', 0x24: 'j',
	0x25: 'k', 0x26: 'l', 0x32: 'm', 0x31: 'n', 0x18: 'o',
	0x19: 'p', 0x10: 'q', 0x13: 'r', 0x1F: 's', 0x14: 't',
	0x16: 'u', 0x2F: 'v', 0x11: 'w', 0x2D: 'x', 0x15: 'y',
	0x2C: 'z',
	0x02: '1', 0x03: '2', 0x04: '3', 0x05: '4', 0x06: '5',
	0x07: '6', 0x08: '7', 0x09: '8', 0x0A: '9', 0x0B: '0',
	0x39: ' ', 0x1C: '\n',
}

var shiftedSymbols = map[rune]rune{
	'1': '!', '2': '@', '3': '#', '4': '$', '5': '%',
	'6': '^', '7': '&', '8': '*', '9': '(', '0': ')',
}
