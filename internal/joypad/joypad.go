package joypad

import (
	"github.com/joshtello/gameboy-emulator/internal/interrupts"
)

// Button masks in the pressed-state byte (1 = held). The low nibble is the
// direction group, the high nibble the button group, matching the JOYP
// matrix layout.
const (
	Right  byte = 1 << 0
	Left   byte = 1 << 1
	Up     byte = 1 << 2
	Down   byte = 1 << 3
	A      byte = 1 << 4
	B      byte = 1 << 5
	Select byte = 1 << 6
	Start  byte = 1 << 7
)

// Requester raises an IF bit.
type Requester func(bit int)

// Joypad implements the JOYP register (FF00). The guest writes the group
// select bits (4-5, active low); reads return the selected nibble with
// pressed inputs pulled low. A press edge on any line raises IF.Joypad.
type Joypad struct {
	sel     byte // bits 4-5 as last written
	pressed byte // current host state, 1 = held

	req Requester
}

func New(req Requester) *Joypad {
	return &Joypad{sel: 0x30, req: req}
}

func (j *Joypad) Reset() { j.sel, j.pressed = 0x30, 0 }

// Write stores the select bits; the input lines themselves are read-only.
func (j *Joypad) Write(v byte) { j.sel = v & 0x30 }

// Read returns the register value: bits 6-7 always set, the select bits as
// written, and the low nibble pulled down by pressed inputs of the selected
// group(s). Selecting both groups ANDs their nibbles.
func (j *Joypad) Read() byte {
	v := 0xC0 | j.sel | 0x0F
	if j.sel&0x10 == 0 { // directions selected
		v &^= j.pressed & 0x0F
	}
	if j.sel&0x20 == 0 { // buttons selected
		v &^= (j.pressed >> 4) & 0x0F
	}
	return v
}

// SetState replaces the host input state. Newly pressed lines raise the
// joypad interrupt (high-to-low transition on the matrix).
func (j *Joypad) SetState(pressed byte) {
	if pressed&^j.pressed != 0 && j.req != nil {
		j.req(interrupts.Joypad)
	}
	j.pressed = pressed
}

// Pressed returns the current host input state.
func (j *Joypad) Pressed() byte { return j.pressed }

// Snapshot/Restore expose state for save states.
func (j *Joypad) Snapshot() (sel, pressed byte) { return j.sel, j.pressed }
func (j *Joypad) Restore(sel, pressed byte)     { j.sel, j.pressed = sel&0x30, pressed }
