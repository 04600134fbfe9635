package cpu

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/joshtello/gameboy-emulator/internal/bus"
	"github.com/joshtello/gameboy-emulator/internal/interrupts"
)

// CPU implements the SM83 core: fetch/decode/execute over the base and
// CB-prefixed opcode tables, interrupt dispatch at step boundaries, and the
// HALT/EI edge behaviors. Step returns the cycles consumed and feeds them to
// the bus so the timer and PPU advance in lockstep.
type CPU struct {
	// 8-bit registers; F holds Z/N/H/C in its upper nibble, lower nibble
	// always zero
	A, F byte
	B, C byte
	D, E byte
	H, L byte

	SP uint16
	PC uint16

	IME    bool
	halted bool
	// locked is set by an undefined opcode; the core then only burns cycles
	locked bool
	// EI takes effect after the following instruction
	eiPending bool
	// the HALT bug makes the next fetch skip the PC increment once
	haltBug bool

	bus *bus.Bus
	log *logrus.Logger
}

func New(b *bus.Bus) *CPU {
	c := &CPU{bus: b}
	c.log = logrus.New()
	c.log.SetLevel(logrus.WarnLevel)
	c.Reset()
	return c
}

// Reset restores DMG post-boot register state (as left by the boot ROM).
func (c *CPU) Reset() {
	c.A, c.F = 0x01, 0xB0
	c.B, c.C = 0x00, 0x13
	c.D, c.E = 0x00, 0xD8
	c.H, c.L = 0x01, 0x4D
	c.SP = 0xFFFE
	c.PC = 0x0100
	c.IME = false
	c.halted = false
	c.locked = false
	c.eiPending = false
	c.haltBug = false
}

// SetPC sets the program counter (boot stubs and tools).
func (c *CPU) SetPC(pc uint16) { c.PC = pc }

// Bus exposes the underlying bus.
func (c *CPU) Bus() *bus.Bus { return c.bus }

// Halted reports whether the core is sleeping on an interrupt.
func (c *CPU) Halted() bool { return c.halted }

// Locked reports whether an undefined opcode froze the core.
func (c *CPU) Locked() bool { return c.locked }

// SetLogger replaces the CPU logger.
func (c *CPU) SetLogger(l *logrus.Logger) {
	if l != nil {
		c.log = l
	}
}

// Flag bits in F.
const (
	flagZ byte = 1 << 7
	flagN byte = 1 << 6
	flagH byte = 1 << 5
	flagC byte = 1 << 4
)

func (c *CPU) setZNHC(z, n, h, carry bool) {
	var f byte
	if z {
		f |= flagZ
	}
	if n {
		f |= flagN
	}
	if h {
		f |= flagH
	}
	if carry {
		f |= flagC
	}
	c.F = f
}

func (c *CPU) carry() bool { return c.F&flagC != 0 }

// --- register pairs ---

func (c *CPU) af() uint16     { return uint16(c.A)<<8 | uint16(c.F&0xF0) }
func (c *CPU) setAF(v uint16) { c.A = byte(v >> 8); c.F = byte(v) & 0xF0 }
func (c *CPU) bc() uint16     { return uint16(c.B)<<8 | uint16(c.C) }
func (c *CPU) setBC(v uint16) { c.B = byte(v >> 8); c.C = byte(v) }
func (c *CPU) de() uint16     { return uint16(c.D)<<8 | uint16(c.E) }
func (c *CPU) setDE(v uint16) { c.D = byte(v >> 8); c.E = byte(v) }
func (c *CPU) hl() uint16     { return uint16(c.H)<<8 | uint16(c.L) }
func (c *CPU) setHL(v uint16) { c.H = byte(v >> 8); c.L = byte(v) }

// rr16 reads pair idx 0-3 as BC/DE/HL/SP (the 16-bit arithmetic encoding).
func (c *CPU) rr16(idx byte) uint16 {
	switch idx {
	case 0:
		return c.bc()
	case 1:
		return c.de()
	case 2:
		return c.hl()
	default:
		return c.SP
	}
}

func (c *CPU) setRR16(idx byte, v uint16) {
	switch idx {
	case 0:
		c.setBC(v)
	case 1:
		c.setDE(v)
	case 2:
		c.setHL(v)
	default:
		c.SP = v
	}
}

// reg8 reads operand index 0-7 as B,C,D,E,H,L,(HL),A.
func (c *CPU) reg8(idx byte) byte {
	switch idx {
	case 0:
		return c.B
	case 1:
		return c.C
	case 2:
		return c.D
	case 3:
		return c.E
	case 4:
		return c.H
	case 5:
		return c.L
	case 6:
		return c.read8(c.hl())
	default:
		return c.A
	}
}

func (c *CPU) setReg8(idx, v byte) {
	switch idx {
	case 0:
		c.B = v
	case 1:
		c.C = v
	case 2:
		c.D = v
	case 3:
		c.E = v
	case 4:
		c.H = v
	case 5:
		c.L = v
	case 6:
		c.write8(c.hl(), v)
	default:
		c.A = v
	}
}

// --- memory access ---

func (c *CPU) read8(addr uint16) byte     { return c.bus.Read(addr) }
func (c *CPU) write8(addr uint16, v byte) { c.bus.Write(addr, v) }

func (c *CPU) fetch8() byte {
	b := c.read8(c.PC)
	c.PC++
	return b
}

func (c *CPU) fetch16() uint16 {
	lo := uint16(c.fetch8())
	hi := uint16(c.fetch8())
	return lo | hi<<8
}

func (c *CPU) read16(addr uint16) uint16 { return c.bus.ReadWord(addr) }
func (c *CPU) write16(addr, v uint16)    { c.bus.WriteWord(addr, v) }

func (c *CPU) push16(v uint16) {
	c.SP -= 2
	c.write16(c.SP, v)
}

func (c *CPU) pop16() uint16 {
	v := c.read16(c.SP)
	c.SP += 2
	return v
}

// --- 8-bit ALU primitives ---

func (c *CPU) add8(a, b byte) (res byte, z, n, h, cy bool) {
	r := uint16(a) + uint16(b)
	res = byte(r)
	z = res == 0
	h = (a&0x0F)+(b&0x0F) > 0x0F
	cy = r > 0xFF
	return
}

func (c *CPU) adc8(a, b byte, carryIn bool) (res byte, z, n, h, cy bool) {
	ci := byte(0)
	if carryIn {
		ci = 1
	}
	r := uint16(a) + uint16(b) + uint16(ci)
	res = byte(r)
	z = res == 0
	h = (a&0x0F)+(b&0x0F)+ci > 0x0F
	cy = r > 0xFF
	return
}

func (c *CPU) sub8(a, b byte) (res byte, z, n, h, cy bool) {
	res = a - b
	z = res == 0
	n = true
	h = a&0x0F < b&0x0F
	cy = a < b
	return
}

func (c *CPU) sbc8(a, b byte, carryIn bool) (res byte, z, n, h, cy bool) {
	ci := byte(0)
	if carryIn {
		ci = 1
	}
	res = a - b - ci
	z = res == 0
	n = true
	h = uint16(a&0x0F) < uint16(b&0x0F)+uint16(ci)
	cy = uint16(a) < uint16(b)+uint16(ci)
	return
}

// --- stepping ---

// Step services at most one interrupt, or sleeps, or executes one
// instruction, and returns the cycles consumed. The elapsed cycles are fed
// to the bus (timer, PPU) before returning.
func (c *CPU) Step() (cycles int) {
	defer func() {
		if cycles > 0 {
			c.bus.Tick(cycles)
		}
	}()

	if c.locked {
		return 4
	}

	if c.halted {
		if c.bus.IRQ().Pending() == 0 {
			return 4
		}
		// a pending request wakes the core; with IME clear it resumes
		// without servicing
		c.halted = false
	}

	if c.IME && c.bus.IRQ().Pending() != 0 {
		return c.serviceInterrupt()
	}

	delayed := c.eiPending
	op := c.fetchOpcode()
	cycles = c.execute(op)
	if delayed && c.eiPending {
		c.eiPending = false
		c.IME = true
	}
	return cycles
}

// fetchOpcode reads the next opcode; under the HALT bug the PC increment is
// suppressed once so the byte executes twice.
func (c *CPU) fetchOpcode() byte {
	op := c.read8(c.PC)
	if c.haltBug {
		c.haltBug = false
		return op
	}
	c.PC++
	return op
}

// serviceInterrupt dispatches the highest-priority pending interrupt:
// IME off, IF bit cleared, PC pushed, vector entered. 20 cycles.
func (c *CPU) serviceInterrupt() int {
	irq := c.bus.IRQ()
	bit := irq.Next()
	if bit < 0 {
		return 0
	}
	irq.Acknowledge(bit)
	c.IME = false
	c.halted = false
	c.push16(c.PC)
	c.PC = interrupts.Vector(bit)
	return 20
}

// cond evaluates branch condition idx 0-3 as NZ, Z, NC, C.
func (c *CPU) cond(idx byte) bool {
	switch idx {
	case 0:
		return c.F&flagZ == 0
	case 1:
		return c.F&flagZ != 0
	case 2:
		return c.F&flagC == 0
	default:
		return c.F&flagC != 0
	}
}

// aluOp applies ALU group 0-7 (ADD/ADC/SUB/SBC/AND/XOR/OR/CP) to A.
func (c *CPU) aluOp(group, src byte) {
	switch group {
	case 0: // ADD
		r, z, n, h, cy := c.add8(c.A, src)
		c.A = r
		c.setZNHC(z, n, h, cy)
	case 1: // ADC
		r, z, n, h, cy := c.adc8(c.A, src, c.carry())
		c.A = r
		c.setZNHC(z, n, h, cy)
	case 2: // SUB
		r, z, n, h, cy := c.sub8(c.A, src)
		c.A = r
		c.setZNHC(z, n, h, cy)
	case 3: // SBC
		r, z, n, h, cy := c.sbc8(c.A, src, c.carry())
		c.A = r
		c.setZNHC(z, n, h, cy)
	case 4: // AND
		c.A &= src
		c.setZNHC(c.A == 0, false, true, false)
	case 5: // XOR
		c.A ^= src
		c.setZNHC(c.A == 0, false, false, false)
	case 6: // OR
		c.A |= src
		c.setZNHC(c.A == 0, false, false, false)
	default: // CP
		_, z, n, h, cy := c.sub8(c.A, src)
		c.setZNHC(z, n, h, cy)
	}
}

func (c *CPU) execute(op byte) int {
	// the two regular quadrants decode by bit fields
	switch {
	case op == 0x76: // HALT
		if !c.IME && c.bus.IRQ().Pending() != 0 {
			// documented HALT bug: no halt, next byte executes twice
			c.haltBug = true
		} else {
			c.halted = true
		}
		return 4
	case op >= 0x40 && op < 0x80: // LD r,r'
		src := op & 7
		dst := op >> 3 & 7
		c.setReg8(dst, c.reg8(src))
		if src == 6 || dst == 6 {
			return 8
		}
		return 4
	case op >= 0x80 && op < 0xC0: // ALU A,r
		c.aluOp(op>>3&7, c.reg8(op&7))
		if op&7 == 6 {
			return 8
		}
		return 4
	}

	switch op {
	case 0x00: // NOP
		return 4
	case 0x10: // STOP (second byte is padding)
		c.fetch8()
		return 4

	// 16-bit immediate loads
	case 0x01, 0x11, 0x21, 0x31:
		c.setRR16(op>>4&3, c.fetch16())
		return 12
	case 0x08: // LD (a16),SP
		c.write16(c.fetch16(), c.SP)
		return 20

	// 8-bit immediate loads
	case 0x06, 0x0E, 0x16, 0x1E, 0x26, 0x2E, 0x36, 0x3E:
		idx := op >> 3 & 7
		c.setReg8(idx, c.fetch8())
		if idx == 6 {
			return 12
		}
		return 8

	// indirect loads through BC/DE
	case 0x02:
		c.write8(c.bc(), c.A)
		return 8
	case 0x12:
		c.write8(c.de(), c.A)
		return 8
	case 0x0A:
		c.A = c.read8(c.bc())
		return 8
	case 0x1A:
		c.A = c.read8(c.de())
		return 8

	// post-increment/decrement HL loads
	case 0x22:
		hl := c.hl()
		c.write8(hl, c.A)
		c.setHL(hl + 1)
		return 8
	case 0x2A:
		hl := c.hl()
		c.A = c.read8(hl)
		c.setHL(hl + 1)
		return 8
	case 0x32:
		hl := c.hl()
		c.write8(hl, c.A)
		c.setHL(hl - 1)
		return 8
	case 0x3A:
		hl := c.hl()
		c.A = c.read8(hl)
		c.setHL(hl - 1)
		return 8

	// high-RAM loads
	case 0xE0:
		c.write8(0xFF00+uint16(c.fetch8()), c.A)
		return 12
	case 0xF0:
		c.A = c.read8(0xFF00 + uint16(c.fetch8()))
		return 12
	case 0xE2:
		c.write8(0xFF00+uint16(c.C), c.A)
		return 8
	case 0xF2:
		c.A = c.read8(0xFF00 + uint16(c.C))
		return 8

	// absolute loads
	case 0xEA:
		c.write8(c.fetch16(), c.A)
		return 16
	case 0xFA:
		c.A = c.read8(c.fetch16())
		return 16

	// 8-bit INC/DEC (C flag preserved)
	case 0x04, 0x0C, 0x14, 0x1C, 0x24, 0x2C, 0x34, 0x3C:
		idx := op >> 3 & 7
		old := c.reg8(idx)
		v := old + 1
		c.setReg8(idx, v)
		c.setZNHC(v == 0, false, old&0x0F == 0x0F, c.carry())
		if idx == 6 {
			return 12
		}
		return 4
	case 0x05, 0x0D, 0x15, 0x1D, 0x25, 0x2D, 0x35, 0x3D:
		idx := op >> 3 & 7
		old := c.reg8(idx)
		v := old - 1
		c.setReg8(idx, v)
		c.setZNHC(v == 0, true, old&0x0F == 0x00, c.carry())
		if idx == 6 {
			return 12
		}
		return 4

	// 16-bit INC/DEC (no flags)
	case 0x03, 0x13, 0x23, 0x33:
		idx := op >> 4 & 3
		c.setRR16(idx, c.rr16(idx)+1)
		return 8
	case 0x0B, 0x1B, 0x2B, 0x3B:
		idx := op >> 4 & 3
		c.setRR16(idx, c.rr16(idx)-1)
		return 8

	// ADD HL,rr (Z preserved)
	case 0x09, 0x19, 0x29, 0x39:
		hl := c.hl()
		rr := c.rr16(op >> 4 & 3)
		sum := uint32(hl) + uint32(rr)
		h := (hl&0x0FFF)+(rr&0x0FFF) > 0x0FFF
		c.setHL(uint16(sum))
		c.setZNHC(c.F&flagZ != 0, false, h, sum > 0xFFFF)
		return 8

	// rotates on A (Z always cleared)
	case 0x07: // RLCA
		carry := c.A >> 7
		c.A = c.A<<1 | carry
		c.setZNHC(false, false, false, carry == 1)
		return 4
	case 0x0F: // RRCA
		carry := c.A & 1
		c.A = c.A>>1 | carry<<7
		c.setZNHC(false, false, false, carry == 1)
		return 4
	case 0x17: // RLA
		carry := c.A >> 7
		c.A <<= 1
		if c.carry() {
			c.A |= 1
		}
		c.setZNHC(false, false, false, carry == 1)
		return 4
	case 0x1F: // RRA
		carry := c.A & 1
		c.A >>= 1
		if c.carry() {
			c.A |= 0x80
		}
		c.setZNHC(false, false, false, carry == 1)
		return 4

	case 0x27: // DAA
		a := c.A
		carry := c.carry()
		if c.F&flagN == 0 {
			if carry || a > 0x99 {
				a += 0x60
				carry = true
			}
			if a&0x0F > 0x09 {
				a += 0x06
			}
		} else {
			if carry {
				a -= 0x60
			}
			if c.F&flagH != 0 {
				a -= 0x06
			}
		}
		c.A = a
		c.setZNHC(a == 0, c.F&flagN != 0, false, carry)
		return 4
	case 0x2F: // CPL
		c.A = ^c.A
		c.F = c.F&(flagZ|flagC) | flagN | flagH
		return 4
	case 0x37: // SCF
		c.F = c.F&flagZ | flagC
		return 4
	case 0x3F: // CCF
		c.F = c.F&(flagZ|flagC) ^ flagC
		return 4

	// ALU with immediate
	case 0xC6, 0xCE, 0xD6, 0xDE, 0xE6, 0xEE, 0xF6, 0xFE:
		c.aluOp(op>>3&7, c.fetch8())
		return 8

	// jumps
	case 0xC3: // JP a16
		c.PC = c.fetch16()
		return 16
	case 0xE9: // JP HL
		c.PC = c.hl()
		return 4
	case 0x18: // JR r8
		off := int8(c.fetch8())
		c.PC += uint16(int16(off))
		return 12
	case 0x20, 0x28, 0x30, 0x38: // JR cc,r8
		off := int8(c.fetch8())
		if c.cond(op >> 3 & 3) {
			c.PC += uint16(int16(off))
			return 12
		}
		return 8
	case 0xC2, 0xCA, 0xD2, 0xDA: // JP cc,a16
		addr := c.fetch16()
		if c.cond(op >> 3 & 3) {
			c.PC = addr
			return 16
		}
		return 12

	// calls and returns
	case 0xCD: // CALL a16
		addr := c.fetch16()
		c.push16(c.PC)
		c.PC = addr
		return 24
	case 0xC4, 0xCC, 0xD4, 0xDC: // CALL cc,a16
		addr := c.fetch16()
		if c.cond(op >> 3 & 3) {
			c.push16(c.PC)
			c.PC = addr
			return 24
		}
		return 12
	case 0xC9: // RET
		c.PC = c.pop16()
		return 16
	case 0xD9: // RETI (enable is immediate, unlike EI)
		c.PC = c.pop16()
		c.IME = true
		return 16
	case 0xC0, 0xC8, 0xD0, 0xD8: // RET cc
		if c.cond(op >> 3 & 3) {
			c.PC = c.pop16()
			return 20
		}
		return 8
	case 0xC7, 0xCF, 0xD7, 0xDF, 0xE7, 0xEF, 0xF7, 0xFF: // RST n
		c.push16(c.PC)
		c.PC = uint16(op & 0x38)
		return 16

	// stack
	case 0xC5:
		c.push16(c.bc())
		return 16
	case 0xD5:
		c.push16(c.de())
		return 16
	case 0xE5:
		c.push16(c.hl())
		return 16
	case 0xF5:
		c.push16(c.af())
		return 16
	case 0xC1:
		c.setBC(c.pop16())
		return 12
	case 0xD1:
		c.setDE(c.pop16())
		return 12
	case 0xE1:
		c.setHL(c.pop16())
		return 12
	case 0xF1: // POP AF forces the flag low nibble to zero
		c.setAF(c.pop16())
		return 12

	// SP arithmetic; H and C come from the unsigned low-byte add
	case 0xE8: // ADD SP,r8
		off := c.fetch8()
		_, _, _, h, cy := c.add8(byte(c.SP), off)
		c.SP += uint16(int16(int8(off)))
		c.setZNHC(false, false, h, cy)
		return 16
	case 0xF8: // LD HL,SP+r8
		off := c.fetch8()
		_, _, _, h, cy := c.add8(byte(c.SP), off)
		c.setHL(c.SP + uint16(int16(int8(off))))
		c.setZNHC(false, false, h, cy)
		return 12
	case 0xF9: // LD SP,HL
		c.SP = c.hl()
		return 8

	// interrupt master enable
	case 0xF3: // DI
		c.IME = false
		c.eiPending = false
		return 4
	case 0xFB: // EI
		c.eiPending = true
		return 4

	case 0xCB:
		return c.executeCB()

	default:
		// 0xD3, 0xDB, 0xDD, 0xE3, 0xE4, 0xEB, 0xEC, 0xED, 0xF4, 0xFC, 0xFD:
		// no documented encoding; the hardware locks up
		c.locked = true
		c.log.Warn(fmt.Sprintf("undefined opcode 0x%02X at 0x%04X; CPU locked", op, c.PC-1))
		return 4
	}
}

// executeCB runs the CB-prefixed table: rotates, shifts, swap, and the
// BIT/RES/SET bit operations.
func (c *CPU) executeCB() int {
	op := c.fetch8()
	idx := op & 7
	y := op >> 3 & 7
	cycles := 8
	if idx == 6 {
		cycles = 16
	}

	switch op >> 6 {
	case 0: // rotate/shift/swap; Z follows the result
		v := c.reg8(idx)
		var res byte
		var carry bool
		switch y {
		case 0: // RLC
			res = v<<1 | v>>7
			carry = v&0x80 != 0
		case 1: // RRC
			res = v>>1 | v<<7
			carry = v&0x01 != 0
		case 2: // RL
			res = v << 1
			if c.carry() {
				res |= 0x01
			}
			carry = v&0x80 != 0
		case 3: // RR
			res = v >> 1
			if c.carry() {
				res |= 0x80
			}
			carry = v&0x01 != 0
		case 4: // SLA
			res = v << 1
			carry = v&0x80 != 0
		case 5: // SRA
			res = v>>1 | v&0x80
			carry = v&0x01 != 0
		case 6: // SWAP
			res = v<<4 | v>>4
		default: // SRL
			res = v >> 1
			carry = v&0x01 != 0
		}
		c.setReg8(idx, res)
		c.setZNHC(res == 0, false, false, carry)
	case 1: // BIT y,r (C preserved)
		if idx == 6 {
			cycles = 12
		}
		c.F = c.F&flagC | flagH
		if c.reg8(idx)&(1<<y) == 0 {
			c.F |= flagZ
		}
	case 2: // RES y,r
		c.setReg8(idx, c.reg8(idx)&^(1<<y))
	default: // SET y,r
		c.setReg8(idx, c.reg8(idx)|1<<y)
	}
	return cycles
}

// --- save state ---

// State is the serializable CPU snapshot.
type State struct {
	A, F, B, C, D, E, H, L byte
	SP, PC                 uint16
	IME, Halted, Locked    bool
	EIPending, HaltBug     bool
}

func (c *CPU) Snapshot() State {
	return State{
		A: c.A, F: c.F, B: c.B, C: c.C, D: c.D, E: c.E, H: c.H, L: c.L,
		SP: c.SP, PC: c.PC,
		IME: c.IME, Halted: c.halted, Locked: c.locked,
		EIPending: c.eiPending, HaltBug: c.haltBug,
	}
}

func (c *CPU) Restore(s State) {
	c.A, c.F = s.A, s.F&0xF0
	c.B, c.C, c.D, c.E, c.H, c.L = s.B, s.C, s.D, s.E, s.H, s.L
	c.SP, c.PC = s.SP, s.PC
	c.IME, c.halted, c.locked = s.IME, s.Halted, s.Locked
	c.eiPending, c.haltBug = s.EIPending, s.HaltBug
}
