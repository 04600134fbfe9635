package ppu

import (
	"bytes"
	"encoding/gob"

	"github.com/joshtello/gameboy-emulator/internal/interrupts"
)

// InterruptRequester is the callback used to raise IF bits.
type InterruptRequester func(bit int)

// Display geometry and line timing. One dot is one CPU clock.
const (
	ScreenWidth  = 160
	ScreenHeight = 144

	dotsPerLine  = 456
	oamScanDots  = 80  // mode 2
	transferDots = 172 // mode 3
	linesTotal   = 154
)

// STAT mode values (bits 1:0).
const (
	modeHBlank   = 0
	modeVBlank   = 1
	modeOAMScan  = 2
	modeTransfer = 3
)

// LCDC bit masks.
const (
	lcdcBGEnable     = 1 << 0
	lcdcOBJEnable    = 1 << 1
	lcdcOBJSize      = 1 << 2
	lcdcBGMap        = 1 << 3
	lcdcTileData     = 1 << 4
	lcdcWindowEnable = 1 << 5
	lcdcWindowMap    = 1 << 6
	lcdcEnable       = 1 << 7
)

// PPU owns VRAM, OAM and the LCD register file, and runs the scanline state
// machine. Step consumes CPU cycles and crosses exactly the mode and line
// boundaries covered by them; a visible scanline is rendered into the
// framebuffer on each mode 3 -> 0 transition.
type PPU struct {
	vram [0x2000]byte // 0x8000-0x9FFF
	oam  [0xA0]byte   // 0xFE00-0xFE9F

	lcdc byte // FF40
	stat byte // FF41
	scy  byte // FF42
	scx  byte // FF43
	ly   byte // FF44
	lyc  byte // FF45
	bgp  byte // FF47
	obp0 byte // FF48
	obp1 byte // FF49
	wy   byte // FF4A
	wx   byte // FF4B

	dot        int  // dots into the current line [0..455]
	winLine    byte // window-internal line counter
	frameReady bool

	// 2-bit shades after palette mapping, row-major 160x144
	fb [ScreenWidth * ScreenHeight]byte

	req InterruptRequester
}

func New(req InterruptRequester) *PPU {
	p := &PPU{req: req}
	p.Reset()
	return p
}

// Reset restores post-boot register values. LCDC comes up enabled with BG on,
// matching the hand-off state of the boot ROM.
func (p *PPU) Reset() {
	p.lcdc = 0x91
	p.stat = 0
	p.scy, p.scx = 0, 0
	p.ly, p.lyc = 0, 0
	p.bgp = 0xFC
	p.obp0, p.obp1 = 0xFF, 0xFF
	p.wy, p.wx = 0, 0
	p.dot = 0
	p.winLine = 0
	p.frameReady = false
	p.stat = p.stat&^0x03 | modeOAMScan
	p.syncCoincidence(false)
	for i := range p.fb {
		p.fb[i] = 0
	}
}

// Framebuffer returns the 160x144 shade buffer (values 0..3, 0 lightest).
func (p *PPU) Framebuffer() []byte { return p.fb[:] }

// FrameReady reports whether a full frame has been produced since the last
// AckFrame.
func (p *PPU) FrameReady() bool { return p.frameReady }

// AckFrame clears the frame latch; the host calls it after consuming the
// framebuffer.
func (p *PPU) AckFrame() { p.frameReady = false }

// LY returns the current scanline.
func (p *PPU) LY() byte { return p.ly }

// Mode returns the current STAT mode bits.
func (p *PPU) Mode() byte { return p.stat & 0x03 }

// Step advances the state machine by the given cycle count, handling every
// mode boundary and line wrap that falls inside it.
func (p *PPU) Step(cycles int) {
	if p.lcdc&lcdcEnable == 0 {
		return
	}
	for cycles > 0 {
		next := p.dotsUntilBoundary()
		if cycles < next {
			p.dot += cycles
			return
		}
		cycles -= next
		p.dot += next
		switch {
		case p.dot >= dotsPerLine:
			p.dot = 0
			p.advanceLine()
		case p.dot == oamScanDots+transferDots:
			// end of pixel transfer: the line is complete
			p.renderScanline()
			p.setMode(modeHBlank)
		case p.dot == oamScanDots:
			p.setMode(modeTransfer)
		}
	}
}

// dotsUntilBoundary returns the distance to the next observable event on the
// current line.
func (p *PPU) dotsUntilBoundary() int {
	if p.ly >= ScreenHeight {
		return dotsPerLine - p.dot
	}
	switch {
	case p.dot < oamScanDots:
		return oamScanDots - p.dot
	case p.dot < oamScanDots+transferDots:
		return oamScanDots + transferDots - p.dot
	default:
		return dotsPerLine - p.dot
	}
}

func (p *PPU) advanceLine() {
	p.ly++
	switch {
	case p.ly == ScreenHeight:
		// entering VBlank
		p.frameReady = true
		p.request(interrupts.VBlank)
		if p.stat&(1<<4) != 0 {
			p.request(interrupts.LCDSTAT)
		}
		p.setMode(modeVBlank)
	case p.ly >= linesTotal:
		p.ly = 0
		p.winLine = 0
		p.setMode(modeOAMScan)
	case p.ly > ScreenHeight:
		// still in VBlank; no mode change
	default:
		p.setMode(modeOAMScan)
	}
	p.syncCoincidence(true)
}

func (p *PPU) setMode(mode byte) {
	if p.stat&0x03 == mode {
		return
	}
	p.stat = p.stat&^0x03 | mode
	switch mode {
	case modeHBlank:
		if p.stat&(1<<3) != 0 {
			p.request(interrupts.LCDSTAT)
		}
	case modeOAMScan:
		if p.stat&(1<<5) != 0 {
			p.request(interrupts.LCDSTAT)
		}
	}
}

// syncCoincidence keeps STAT bit 2 equal to (LY == LYC) and, when asked,
// raises the LYC STAT source on a fresh match.
func (p *PPU) syncCoincidence(interrupt bool) {
	if p.ly == p.lyc {
		p.stat |= 1 << 2
		if interrupt && p.stat&(1<<6) != 0 {
			p.request(interrupts.LCDSTAT)
		}
	} else {
		p.stat &^= 1 << 2
	}
}

func (p *PPU) request(bit int) {
	if p.req != nil && p.lcdc&lcdcEnable != 0 {
		p.req(bit)
	}
}

// Read handles VRAM, OAM and the PPU register file. Access is permissive:
// the CPU may read VRAM/OAM in any mode (instruction-boundary fidelity makes
// strict mode locking unnecessary).
func (p *PPU) Read(addr uint16) byte {
	switch {
	case addr >= 0x8000 && addr <= 0x9FFF:
		return p.vram[addr-0x8000]
	case addr >= 0xFE00 && addr <= 0xFE9F:
		return p.oam[addr-0xFE00]
	case addr == 0xFF40:
		return p.lcdc
	case addr == 0xFF41:
		// bit 7 reads as 1 on DMG
		return 0x80 | p.stat
	case addr == 0xFF42:
		return p.scy
	case addr == 0xFF43:
		return p.scx
	case addr == 0xFF44:
		return p.ly
	case addr == 0xFF45:
		return p.lyc
	case addr == 0xFF47:
		return p.bgp
	case addr == 0xFF48:
		return p.obp0
	case addr == 0xFF49:
		return p.obp1
	case addr == 0xFF4A:
		return p.wy
	case addr == 0xFF4B:
		return p.wx
	default:
		return 0xFF
	}
}

// Write handles VRAM, OAM and the PPU register file.
func (p *PPU) Write(addr uint16, value byte) {
	switch {
	case addr >= 0x8000 && addr <= 0x9FFF:
		p.vram[addr-0x8000] = value
	case addr >= 0xFE00 && addr <= 0xFE9F:
		p.oam[addr-0xFE00] = value
	case addr == 0xFF40:
		prev := p.lcdc
		p.lcdc = value
		if prev&lcdcEnable != 0 && value&lcdcEnable == 0 {
			// LCD off: LY and the state machine freeze at zero
			p.ly = 0
			p.dot = 0
			p.winLine = 0
			p.stat = p.stat &^ 0x03
			p.syncCoincidence(false)
		} else if prev&lcdcEnable == 0 && value&lcdcEnable != 0 {
			p.ly = 0
			p.dot = 0
			p.winLine = 0
			p.setMode(modeOAMScan)
			p.syncCoincidence(false)
		}
	case addr == 0xFF41:
		// mode and coincidence bits are read-only
		p.stat = p.stat&0x07 | value&0x78
	case addr == 0xFF42:
		p.scy = value
	case addr == 0xFF43:
		p.scx = value
	case addr == 0xFF44:
		// LY is not guest-writable; a write resets the line counter
		p.ly = 0
		p.dot = 0
		p.winLine = 0
		if p.lcdc&lcdcEnable != 0 {
			p.setMode(modeOAMScan)
		}
		p.syncCoincidence(false)
	case addr == 0xFF45:
		p.lyc = value
		p.syncCoincidence(true)
	case addr == 0xFF47:
		p.bgp = value
	case addr == 0xFF48:
		p.obp0 = value
	case addr == 0xFF49:
		p.obp1 = value
	case addr == 0xFF4A:
		p.wy = value
	case addr == 0xFF4B:
		p.wx = value
	}
}

// WriteOAM stores a byte by OAM index; used by the DMA transfer.
func (p *PPU) WriteOAM(index int, value byte) {
	if index >= 0 && index < len(p.oam) {
		p.oam[index] = value
	}
}

// --- save state ---

type ppuState struct {
	VRAM    [0x2000]byte
	OAM     [0xA0]byte
	LCDC    byte
	STAT    byte
	SCY     byte
	SCX     byte
	LY      byte
	LYC     byte
	BGP     byte
	OBP0    byte
	OBP1    byte
	WY      byte
	WX      byte
	Dot     int
	WinLine byte
	FB      [ScreenWidth * ScreenHeight]byte
}

func (p *PPU) SaveState() []byte {
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(ppuState{
		VRAM: p.vram, OAM: p.oam,
		LCDC: p.lcdc, STAT: p.stat, SCY: p.scy, SCX: p.scx,
		LY: p.ly, LYC: p.lyc, BGP: p.bgp, OBP0: p.obp0, OBP1: p.obp1,
		WY: p.wy, WX: p.wx, Dot: p.dot, WinLine: p.winLine, FB: p.fb,
	})
	return buf.Bytes()
}

func (p *PPU) LoadState(data []byte) {
	var s ppuState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	p.vram, p.oam = s.VRAM, s.OAM
	p.lcdc, p.stat, p.scy, p.scx = s.LCDC, s.STAT, s.SCY, s.SCX
	p.ly, p.lyc, p.bgp, p.obp0, p.obp1 = s.LY, s.LYC, s.BGP, s.OBP0, s.OBP1
	p.wy, p.wx, p.dot, p.winLine = s.WY, s.WX, s.Dot, s.WinLine
	p.fb = s.FB
	p.frameReady = false
}
