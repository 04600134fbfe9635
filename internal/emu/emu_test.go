package emu

import (
	"bytes"
	"testing"

	"github.com/joshtello/gameboy-emulator/internal/cart"
)

// buildROM assembles a bootable image: the given code at 0x0100 and a valid
// enough header for the requested cartridge type.
func buildROM(code []byte, cartType byte, banks int) []byte {
	if banks < 2 {
		banks = 2
	}
	rom := make([]byte, banks*cart.BankSize)
	copy(rom[0x0134:], "TEST")
	rom[0x0147] = cartType
	sizeCode := byte(0)
	for b := 2; b < banks; b *= 2 {
		sizeCode++
	}
	rom[0x0148] = sizeCode
	if cartType != 0x00 {
		rom[0x0149] = 0x03 // 32 KiB RAM
	}
	copy(rom[0x0100:], code)
	return rom
}

func TestLoadCartridgeRejectsBadImages(t *testing.T) {
	m := New(Config{})
	if err := m.LoadCartridge(nil); err == nil {
		t.Fatalf("empty image should fail")
	}
	if err := m.LoadCartridge(make([]byte, 100)); err == nil {
		t.Fatalf("undersized image should fail")
	}
	if m.Loaded() {
		t.Fatalf("failed load must not mount a machine")
	}
}

func TestResetState(t *testing.T) {
	m := New(Config{})
	if err := m.LoadCartridge(buildROM(nil, 0x00, 2)); err != nil {
		t.Fatal(err)
	}
	c := m.CPU()
	if c.A != 0x01 || c.F != 0xB0 || c.SP != 0xFFFE || c.PC != 0x0100 {
		t.Fatalf("post-boot CPU state wrong: A=%02X F=%02X SP=%04X PC=%04X",
			c.A, c.F, c.SP, c.PC)
	}
	if m.Bus().Read(0xFF40) != 0x91 || m.Bus().Read(0xFF47) != 0xFC {
		t.Fatalf("post-boot IO wrong: LCDC=%02X BGP=%02X",
			m.Bus().Read(0xFF40), m.Bus().Read(0xFF47))
	}
	if m.Bus().Read(0xFF44) != 0 {
		t.Fatalf("LY got %d want 0", m.Bus().Read(0xFF44))
	}
}

func TestRunFrameProducesAFrame(t *testing.T) {
	// JR -2: spin forever
	m := New(Config{})
	if err := m.LoadCartridge(buildROM([]byte{0x18, 0xFE}, 0x00, 2)); err != nil {
		t.Fatal(err)
	}
	fb := m.RunFrame()
	if len(fb) != 160*144 {
		t.Fatalf("framebuffer size got %d want %d", len(fb), 160*144)
	}
	if m.Bus().PPU().FrameReady() {
		t.Fatalf("frame latch not cleared after RunFrame")
	}
}

func TestVBlankInterruptScenario(t *testing.T) {
	// IME on, IE=VBlank, tight JR -2 loop. After one frame the CPU must have
	// vectored to 0x40 exactly once with the loop address on the stack.
	//
	//   0x0100: EI
	//   0x0101: JR -2         ; loops on itself
	//   0x0040: JR -2         ; park the handler too
	rom := buildROM([]byte{0xFB, 0x18, 0xFE}, 0x00, 2)
	rom[0x0040] = 0x18
	rom[0x0041] = 0xFE
	m := New(Config{})
	if err := m.LoadCartridge(rom); err != nil {
		t.Fatal(err)
	}
	m.Bus().Write(0xFFFF, 0x01)

	c := m.CPU()
	entered := false
	var spAtEntry uint16
	cycles := 0
	for cycles < CyclesPerFrame+100 {
		cycles += c.Step()
		if !entered && c.PC == 0x0040 {
			entered = true
			spAtEntry = c.SP
		}
	}
	if !entered {
		t.Fatalf("CPU never vectored to 0x40")
	}
	if spAtEntry != 0xFFFE-2 {
		t.Fatalf("SP at entry got %04X want FFFC", spAtEntry)
	}
	if ret := m.Bus().ReadWord(spAtEntry); ret != 0x0101 {
		t.Fatalf("return address got %04X want 0101 (the jump instruction)", ret)
	}
}

func TestMBC1BankSelectScenario(t *testing.T) {
	// LD A,2; LD (0x2000),A  -- then 0x4000 must read from image offset 0x8000
	rom := buildROM([]byte{0x3E, 0x02, 0xEA, 0x00, 0x20}, 0x01, 8) // 128 KiB
	rom[0x8000] = 0x5D
	m := New(Config{})
	if err := m.LoadCartridge(rom); err != nil {
		t.Fatal(err)
	}
	c := m.CPU()
	c.Step()
	c.Step()
	if got := m.Bus().Read(0x4000); got != 0x5D {
		t.Fatalf("banked read got %02X want 5D", got)
	}
}

func TestFrameHashStableAndSensitive(t *testing.T) {
	m := New(Config{})
	if err := m.LoadCartridge(buildROM([]byte{0x18, 0xFE}, 0x00, 2)); err != nil {
		t.Fatal(err)
	}
	m.RunFrame()
	h1 := m.FrameHash()
	if h2 := m.FrameHash(); h2 != h1 {
		t.Fatalf("hash changed without a new frame: %x vs %x", h1, h2)
	}
	// scribble a tile into VRAM; the next frame must hash differently
	for i := 0; i < 16; i++ {
		m.Bus().Write(0x8000+uint16(i), 0xFF)
	}
	m.Bus().Write(0x9800, 0x00) // ensure map points at tile 0
	m.RunFrame()
	if h3 := m.FrameHash(); h3 == h1 {
		t.Fatalf("hash unchanged after VRAM edit")
	}
}

func TestButtonsReachJoypadRegister(t *testing.T) {
	m := New(Config{})
	if err := m.LoadCartridge(buildROM(nil, 0x00, 2)); err != nil {
		t.Fatal(err)
	}
	m.SetButtons(Buttons{Start: true})
	m.Bus().Write(0xFF00, 0x10) // select buttons
	if got := m.Bus().Read(0xFF00); got&0x08 != 0 {
		t.Fatalf("start not pulled low: JOYP=%02X", got)
	}
}

func TestSerialSink(t *testing.T) {
	// LD A,'O'; LD (0xFF01),A; LD A,0x81; LD (0xFF02),A
	code := []byte{0x3E, 'O', 0xE0, 0x01, 0x3E, 0x81, 0xE0, 0x02}
	m := New(Config{})
	if err := m.LoadCartridge(buildROM(code, 0x00, 2)); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	m.SetSerialWriter(&out)
	for i := 0; i < 4; i++ {
		m.CPU().Step()
	}
	if out.String() != "O" {
		t.Fatalf("serial sink got %q want O", out.String())
	}
}

func TestBatteryRoundTrip(t *testing.T) {
	m := New(Config{})
	if err := m.LoadCartridge(buildROM(nil, 0x03, 8)); err != nil {
		t.Fatal(err)
	}
	m.Bus().Write(0x0000, 0x0A) // enable RAM
	m.Bus().Write(0xA000, 0x77)
	data, ok := m.SaveBattery()
	if !ok {
		t.Fatalf("battery save unavailable for MBC1+RAM+BATTERY")
	}

	n := New(Config{})
	if err := n.LoadCartridge(buildROM(nil, 0x03, 8)); err != nil {
		t.Fatal(err)
	}
	if !n.LoadBattery(data) {
		t.Fatalf("battery load failed")
	}
	n.Bus().Write(0x0000, 0x0A)
	if got := n.Bus().Read(0xA000); got != 0x77 {
		t.Fatalf("restored battery RAM got %02X want 77", got)
	}
}

func TestSaveStateRoundTrip(t *testing.T) {
	m := New(Config{})
	if err := m.LoadCartridge(buildROM([]byte{0x18, 0xFE}, 0x00, 2)); err != nil {
		t.Fatal(err)
	}
	m.RunFrame()
	m.Bus().Write(0xC000, 0x42)
	pc := m.CPU().PC
	state := m.SaveState()

	n := New(Config{})
	if err := n.LoadCartridge(buildROM([]byte{0x18, 0xFE}, 0x00, 2)); err != nil {
		t.Fatal(err)
	}
	if err := n.LoadState(state); err != nil {
		t.Fatal(err)
	}
	if n.CPU().PC != pc {
		t.Fatalf("restored PC got %04X want %04X", n.CPU().PC, pc)
	}
	if got := n.Bus().Read(0xC000); got != 0x42 {
		t.Fatalf("restored WRAM got %02X want 42", got)
	}
}

func TestResetPreservesCartridgeRAM(t *testing.T) {
	m := New(Config{})
	if err := m.LoadCartridge(buildROM(nil, 0x03, 8)); err != nil {
		t.Fatal(err)
	}
	m.Bus().Write(0x0000, 0x0A)
	m.Bus().Write(0xA000, 0x99)
	m.Reset()
	m.Bus().Write(0x0000, 0x0A)
	if got := m.Bus().Read(0xA000); got != 0x99 {
		t.Fatalf("external RAM lost on reset: got %02X want 99", got)
	}
}

func TestLCDOffStillReturnsFrames(t *testing.T) {
	// LD A,0x00; LDH (0x40),A; JR -2  -- LCD disabled, RunFrame must not hang
	code := []byte{0x3E, 0x00, 0xE0, 0x40, 0x18, 0xFE}
	m := New(Config{})
	if err := m.LoadCartridge(buildROM(code, 0x00, 2)); err != nil {
		t.Fatal(err)
	}
	fb := m.RunFrame()
	if len(fb) != 160*144 {
		t.Fatalf("framebuffer size got %d", len(fb))
	}
}
