package bus

import (
	"bytes"
	"encoding/gob"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/joshtello/gameboy-emulator/internal/cart"
	"github.com/joshtello/gameboy-emulator/internal/interrupts"
	"github.com/joshtello/gameboy-emulator/internal/joypad"
	"github.com/joshtello/gameboy-emulator/internal/ppu"
	"github.com/joshtello/gameboy-emulator/internal/timer"
)

// Bus decodes the 16-bit address space and owns every subsystem behind it:
// the cartridge controller, VRAM/OAM (inside the PPU), WRAM, HRAM, the I/O
// register file, and the interrupt controller. The CPU sees only Read/Write
// plus Tick, which distributes elapsed cycles to the timer and the PPU.
type Bus struct {
	cart cart.Cartridge

	wram [0x2000]byte // 0xC000-0xDFFF
	hram [0x7F]byte   // 0xFF80-0xFFFE

	// serial, audio and otherwise unhandled I/O registers keep their last
	// written value (no emulation behind them)
	ioRegs [0x80]byte
	dma    byte // FF46 readback

	ppu    *ppu.PPU
	timer  *timer.Timer
	joypad *joypad.Joypad
	irq    *interrupts.Controller

	serialW io.Writer
	log     *logrus.Logger
}

// New wires a bus around the given cartridge.
func New(c cart.Cartridge) *Bus {
	b := &Bus{cart: c, dma: 0xFF}
	b.irq = interrupts.New()
	b.ppu = ppu.New(b.irq.Request)
	b.timer = timer.New(b.irq.Request)
	b.joypad = joypad.New(b.irq.Request)
	b.log = logrus.New()
	b.log.SetLevel(logrus.WarnLevel)
	b.log.Formatter = &logrus.TextFormatter{
		DisableColors:    true,
		DisableTimestamp: true,
	}
	return b
}

// PPU exposes the picture unit to the machine and host shell.
func (b *Bus) PPU() *ppu.PPU { return b.ppu }

// Joypad exposes the input matrix to the machine.
func (b *Bus) Joypad() *joypad.Joypad { return b.joypad }

// IRQ exposes the interrupt controller.
func (b *Bus) IRQ() *interrupts.Controller { return b.irq }

// Cart returns the mounted cartridge (battery persistence probes it).
func (b *Bus) Cart() cart.Cartridge { return b.cart }

// SetLogger replaces the bus logger.
func (b *Bus) SetLogger(l *logrus.Logger) {
	if l != nil {
		b.log = l
	}
}

// SetSerialWriter attaches a sink for bytes sent over the serial port;
// useful for test ROMs that report results via FF01/FF02.
func (b *Bus) SetSerialWriter(w io.Writer) { b.serialW = w }

// Tick distributes elapsed CPU cycles. The order is fixed: timer, then PPU.
func (b *Bus) Tick(cycles int) {
	b.timer.Step(cycles)
	b.ppu.Step(cycles)
}

func (b *Bus) Read(addr uint16) byte {
	switch {
	case addr < 0x8000:
		return b.cart.Read(addr)
	case addr < 0xA000:
		return b.ppu.Read(addr)
	case addr < 0xC000:
		return b.cart.Read(addr)
	case addr < 0xE000:
		return b.wram[addr-0xC000]
	case addr < 0xFE00:
		// echo of 0xC000-0xDDFF
		return b.wram[addr-0xE000]
	case addr < 0xFEA0:
		return b.ppu.Read(addr)
	case addr < 0xFF00:
		return 0xFF
	case addr < 0xFF80:
		return b.readIO(addr)
	case addr < 0xFFFF:
		return b.hram[addr-0xFF80]
	default:
		return b.irq.ReadIE()
	}
}

func (b *Bus) Write(addr uint16, value byte) {
	switch {
	case addr < 0x8000:
		b.cart.Write(addr, value)
	case addr < 0xA000:
		b.ppu.Write(addr, value)
	case addr < 0xC000:
		b.cart.Write(addr, value)
	case addr < 0xE000:
		b.wram[addr-0xC000] = value
	case addr < 0xFE00:
		b.wram[addr-0xE000] = value
	case addr < 0xFEA0:
		b.ppu.Write(addr, value)
	case addr < 0xFF00:
		// unusable region
	case addr < 0xFF80:
		b.writeIO(addr, value)
	case addr < 0xFFFF:
		b.hram[addr-0xFF80] = value
	default:
		b.irq.WriteIE(value)
	}
}

// ReadWord reads a little-endian 16-bit value.
func (b *Bus) ReadWord(addr uint16) uint16 {
	return uint16(b.Read(addr)) | uint16(b.Read(addr+1))<<8
}

// WriteWord writes a little-endian 16-bit value.
func (b *Bus) WriteWord(addr uint16, v uint16) {
	b.Write(addr, byte(v))
	b.Write(addr+1, byte(v>>8))
}

func (b *Bus) readIO(addr uint16) byte {
	switch {
	case addr == 0xFF00:
		return b.joypad.Read()
	case addr >= 0xFF04 && addr <= 0xFF07:
		return b.timer.Read(addr)
	case addr == 0xFF0F:
		return b.irq.ReadIF()
	case addr >= 0xFF40 && addr <= 0xFF45:
		return b.ppu.Read(addr)
	case addr == 0xFF46:
		return b.dma
	case addr >= 0xFF47 && addr <= 0xFF4B:
		return b.ppu.Read(addr)
	default:
		// serial (FF01-FF02), audio (FF10-FF3F) and the rest: last written
		return b.ioRegs[addr-0xFF00]
	}
}

func (b *Bus) writeIO(addr uint16, value byte) {
	switch {
	case addr == 0xFF00:
		b.joypad.Write(value)
	case addr == 0xFF02:
		b.ioRegs[0x02] = value
		// a transfer start with internal clock pushes SB to the sink;
		// the transfer itself never progresses
		if value&0x81 == 0x81 && b.serialW != nil {
			b.serialW.Write([]byte{b.ioRegs[0x01]})
		}
	case addr >= 0xFF04 && addr <= 0xFF07:
		b.timer.Write(addr, value)
	case addr == 0xFF0F:
		b.irq.WriteIF(value)
	case addr >= 0xFF40 && addr <= 0xFF45:
		b.ppu.Write(addr, value)
	case addr == 0xFF46:
		b.dma = value
		b.dmaTransfer(value)
	case addr >= 0xFF47 && addr <= 0xFF4B:
		b.ppu.Write(addr, value)
	default:
		b.ioRegs[addr-0xFF00] = value
	}
}

// dmaTransfer copies 160 bytes from source<<8 into OAM. Modeled as
// instantaneous at the instruction boundary.
func (b *Bus) dmaTransfer(source byte) {
	base := uint16(source) << 8
	for i := 0; i < 0xA0; i++ {
		b.ppu.WriteOAM(i, b.Read(base+uint16(i)))
	}
}

// Reset restores post-boot I/O state without touching the cartridge.
func (b *Bus) Reset() {
	b.wram = [0x2000]byte{}
	b.hram = [0x7F]byte{}
	b.ioRegs = [0x80]byte{}
	b.dma = 0xFF
	b.irq.Reset()
	b.timer.Reset()
	b.joypad.Reset()
	b.ppu.Reset()
}

// --- save state ---

type busState struct {
	WRAM   [0x2000]byte
	HRAM   [0x7F]byte
	IORegs [0x80]byte
	DMA    byte

	IF, IE      byte
	Timer       timer.State
	JoypadSel   byte
	JoypadState byte

	PPU  []byte
	Cart []byte
}

func (b *Bus) SaveState() []byte {
	iflags, ie := b.irq.Snapshot()
	sel, pressed := b.joypad.Snapshot()
	s := busState{
		WRAM: b.wram, HRAM: b.hram, IORegs: b.ioRegs, DMA: b.dma,
		IF: iflags, IE: ie,
		Timer:     b.timer.Snapshot(),
		JoypadSel: sel, JoypadState: pressed,
		PPU:  b.ppu.SaveState(),
		Cart: b.cart.SaveState(),
	}
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(s)
	return buf.Bytes()
}

func (b *Bus) LoadState(data []byte) {
	var s busState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		b.log.WithError(err).Warn("discarding bus state")
		return
	}
	b.wram, b.hram, b.ioRegs, b.dma = s.WRAM, s.HRAM, s.IORegs, s.DMA
	b.irq.Restore(s.IF, s.IE)
	b.timer.Restore(s.Timer)
	b.joypad.Restore(s.JoypadSel, s.JoypadState)
	b.ppu.LoadState(s.PPU)
	b.cart.LoadState(s.Cart)
}
