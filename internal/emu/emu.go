package emu

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash"
	"github.com/sirupsen/logrus"

	"github.com/joshtello/gameboy-emulator/internal/bus"
	"github.com/joshtello/gameboy-emulator/internal/cart"
	"github.com/joshtello/gameboy-emulator/internal/cpu"
	"github.com/joshtello/gameboy-emulator/internal/joypad"
	"github.com/joshtello/gameboy-emulator/internal/ppu"
)

// CyclesPerFrame is the dot count of one full frame (154 lines x 456 dots).
const CyclesPerFrame = 70224

// Buttons is the host-side input state.
type Buttons struct {
	A, B, Start, Select   bool
	Up, Down, Left, Right bool
}

// Machine owns the whole core: the bus (and through it cartridge, PPU,
// timer, joypad, interrupts) and the CPU. The host drives it one frame at a
// time and reads the framebuffer back.
type Machine struct {
	cfg Config

	bus *bus.Bus
	cpu *cpu.CPU

	romPath string
	rgba    []byte // scratch RGBA conversion of the shade framebuffer

	log *logrus.Logger
}

// Shades maps framebuffer values 0..3 to the classic gray ramp.
var Shades = [4]byte{0xFF, 0xC0, 0x60, 0x00}

func New(cfg Config) *Machine {
	m := &Machine{
		cfg:  cfg,
		rgba: make([]byte, ppu.ScreenWidth*ppu.ScreenHeight*4),
	}
	m.log = logrus.New()
	m.log.Formatter = &logrus.TextFormatter{
		DisableColors:    true,
		DisableTimestamp: true,
	}
	if cfg.Verbose {
		m.log.SetLevel(logrus.DebugLevel)
	}
	return m
}

// Loaded reports whether a cartridge is mounted.
func (m *Machine) Loaded() bool { return m.cpu != nil }

// LoadCartridge mounts a ROM image and resets the machine. This is the only
// host-facing operation that can fail.
func (m *Machine) LoadCartridge(rom []byte) error {
	c, err := cart.New(rom)
	if err != nil {
		return fmt.Errorf("load cartridge: %w", err)
	}
	h, _ := cart.ParseHeader(rom)
	m.log.WithFields(logrus.Fields{
		"title": h.Title,
		"type":  h.CartTypeStr,
		"banks": h.ROMBanks,
		"ram":   h.RAMSizeBytes,
	}).Info("cartridge loaded")
	if !cart.HeaderChecksumOK(rom) {
		m.log.Debug("header checksum mismatch (common for homebrew)")
	}

	b := bus.New(c)
	b.SetLogger(m.log)
	m.bus = b
	m.cpu = cpu.New(b)
	m.cpu.SetLogger(m.log)
	m.applyPostBootIO()
	return nil
}

// LoadROMFromFile mounts a ROM from disk (plain, .zip, .7z or .gz).
func (m *Machine) LoadROMFromFile(path string) error {
	rom, err := cart.LoadFile(path)
	if err != nil {
		return err
	}
	if err := m.LoadCartridge(rom); err != nil {
		return err
	}
	m.romPath = path
	return nil
}

// ROMPath returns the path of the mounted ROM file, if it came from disk.
func (m *Machine) ROMPath() string { return m.romPath }

// Reset restores post-boot state. Cartridge ROM and external RAM survive.
func (m *Machine) Reset() {
	if m.cpu == nil {
		return
	}
	m.cpu.Reset()
	m.bus.Reset()
	m.applyPostBootIO()
}

// applyPostBootIO writes the documented post-boot I/O defaults so guests can
// start from PC=0x0100 without a boot ROM.
func (m *Machine) applyPostBootIO() {
	b := m.bus
	b.Write(0xFF00, 0xCF) // JOYP: no group selected
	b.Write(0xFF05, 0x00) // TIMA
	b.Write(0xFF06, 0x00) // TMA
	b.Write(0xFF07, 0x00) // TAC
	b.Write(0xFF40, 0x91) // LCDC: LCD+BG on, tiledata 8000
	b.Write(0xFF42, 0x00) // SCY
	b.Write(0xFF43, 0x00) // SCX
	b.Write(0xFF45, 0x00) // LYC
	b.Write(0xFF47, 0xFC) // BGP
	b.Write(0xFF48, 0xFF) // OBP0
	b.Write(0xFF49, 0xFF) // OBP1
	b.Write(0xFF4A, 0x00) // WY
	b.Write(0xFF4B, 0x00) // WX
	b.Write(0xFFFF, 0x00) // IE
}

// RunFrame executes CPU steps until the PPU completes a frame and returns
// the 160x144 shade framebuffer (values 0..3). With the LCD disabled the
// frame latch never sets, so a cycle budget bounds the loop.
func (m *Machine) RunFrame() []byte {
	if m.cpu == nil {
		return m.blankFrame()
	}
	p := m.bus.PPU()
	budget := 2 * CyclesPerFrame
	for !p.FrameReady() && budget > 0 {
		budget -= m.cpu.Step()
	}
	p.AckFrame()
	return p.Framebuffer()
}

// blankFrame is what the host sees before any cartridge is mounted.
func (m *Machine) blankFrame() []byte {
	return make([]byte, ppu.ScreenWidth*ppu.ScreenHeight)
}

// Framebuffer returns the current shade framebuffer without advancing time.
func (m *Machine) Framebuffer() []byte {
	if m.bus == nil {
		return m.blankFrame()
	}
	return m.bus.PPU().Framebuffer()
}

// RGBA converts the shade framebuffer to RGBA for the host blit.
func (m *Machine) RGBA() []byte {
	fb := m.Framebuffer()
	for i, shade := range fb {
		g := Shades[shade&0x03]
		m.rgba[i*4+0] = g
		m.rgba[i*4+1] = g
		m.rgba[i*4+2] = g
		m.rgba[i*4+3] = 0xFF
	}
	return m.rgba
}

// FrameHash returns a 64-bit digest of the shade framebuffer; headless runs
// assert on it and the UI uses it to skip redundant blits.
func (m *Machine) FrameHash() uint64 {
	return xxhash.Sum64(m.Framebuffer())
}

// SetButtons pushes host input into the joypad matrix. Call before RunFrame.
func (m *Machine) SetButtons(btn Buttons) {
	if m.bus == nil {
		return
	}
	var mask byte
	if btn.Right {
		mask |= joypad.Right
	}
	if btn.Left {
		mask |= joypad.Left
	}
	if btn.Up {
		mask |= joypad.Up
	}
	if btn.Down {
		mask |= joypad.Down
	}
	if btn.A {
		mask |= joypad.A
	}
	if btn.B {
		mask |= joypad.B
	}
	if btn.Select {
		mask |= joypad.Select
	}
	if btn.Start {
		mask |= joypad.Start
	}
	m.bus.Joypad().SetState(mask)
}

// SetSerialWriter attaches a sink for serial port bytes (test ROM output).
func (m *Machine) SetSerialWriter(w io.Writer) {
	if m.bus != nil {
		m.bus.SetSerialWriter(w)
	}
}

// CPU exposes the core for tools and tests.
func (m *Machine) CPU() *cpu.CPU { return m.cpu }

// Bus exposes the memory map for tools and tests.
func (m *Machine) Bus() *bus.Bus { return m.bus }

// --- battery RAM ---

// SaveBattery returns a copy of external cartridge RAM if the controller is
// battery backed.
func (m *Machine) SaveBattery() ([]byte, bool) {
	if m.bus == nil {
		return nil, false
	}
	bb, ok := m.bus.Cart().(cart.BatteryBacked)
	if !ok {
		return nil, false
	}
	data := bb.SaveRAM()
	if len(data) == 0 {
		return nil, false
	}
	m.log.WithField("bytes", len(data)).Debug("battery RAM saved")
	return data, true
}

// LoadBattery restores external cartridge RAM.
func (m *Machine) LoadBattery(data []byte) bool {
	if m.bus == nil {
		return false
	}
	bb, ok := m.bus.Cart().(cart.BatteryBacked)
	if !ok {
		return false
	}
	bb.LoadRAM(data)
	m.log.WithField("bytes", len(data)).Debug("battery RAM loaded")
	return true
}

// --- save states ---

type machineState struct {
	CPU cpu.State
	Bus []byte
}

// SaveState serializes the whole machine at an instruction boundary.
func (m *Machine) SaveState() []byte {
	if m.cpu == nil {
		return nil
	}
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(machineState{
		CPU: m.cpu.Snapshot(),
		Bus: m.bus.SaveState(),
	})
	return buf.Bytes()
}

func (m *Machine) LoadState(data []byte) error {
	if m.cpu == nil {
		return fmt.Errorf("no cartridge mounted")
	}
	var s machineState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return fmt.Errorf("decode state: %w", err)
	}
	m.cpu.Restore(s.CPU)
	m.bus.LoadState(s.Bus)
	return nil
}

func (m *Machine) SaveStateToFile(path string) error {
	data := m.SaveState()
	if len(data) == 0 {
		return fmt.Errorf("nothing to save")
	}
	return os.WriteFile(path, data, 0o644)
}

func (m *Machine) LoadStateFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return m.LoadState(data)
}
