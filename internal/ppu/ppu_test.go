package ppu

import "testing"

// requestRecorder captures IF bits raised by the PPU.
type requestRecorder struct {
	vblank int
	stat   int
}

func (r *requestRecorder) fn(bit int) {
	switch bit {
	case 0:
		r.vblank++
	case 1:
		r.stat++
	}
}

func statMode(p *PPU) byte { return p.Read(0xFF41) & 0x03 }

func TestModeSequenceWithinLine(t *testing.T) {
	p := New(nil)
	if got := statMode(p); got != 2 {
		t.Fatalf("mode at line start got %d want 2", got)
	}
	p.Step(79)
	if got := statMode(p); got != 2 {
		t.Fatalf("mode at dot 79 got %d want 2", got)
	}
	p.Step(1)
	if got := statMode(p); got != 3 {
		t.Fatalf("mode at dot 80 got %d want 3", got)
	}
	p.Step(172)
	if got := statMode(p); got != 0 {
		t.Fatalf("mode at dot 252 got %d want 0", got)
	}
	p.Step(203)
	if got := statMode(p); got != 0 {
		t.Fatalf("mode at dot 455 got %d want 0", got)
	}
	p.Step(1)
	if p.LY() != 1 || statMode(p) != 2 {
		t.Fatalf("after line wrap LY=%d mode=%d want LY=1 mode=2", p.LY(), statMode(p))
	}
}

func TestLYProgressionAndVBlank(t *testing.T) {
	rec := &requestRecorder{}
	p := New(rec.fn)
	p.Step(144 * dotsPerLine)
	if p.LY() != 144 || statMode(p) != 1 {
		t.Fatalf("at VBlank entry LY=%d mode=%d want 144/1", p.LY(), statMode(p))
	}
	if rec.vblank != 1 {
		t.Fatalf("VBlank raised %d times want 1", rec.vblank)
	}
	if !p.FrameReady() {
		t.Fatalf("frame not ready at VBlank entry")
	}
	p.Step(10 * dotsPerLine)
	if p.LY() != 0 || statMode(p) != 2 {
		t.Fatalf("after frame wrap LY=%d mode=%d want 0/2", p.LY(), statMode(p))
	}
}

func TestFrameLengthIs70224Dots(t *testing.T) {
	p := New(nil)
	p.Step(70224)
	if p.LY() != 0 || p.dot != 0 {
		t.Fatalf("after one frame LY=%d dot=%d want 0/0", p.LY(), p.dot)
	}
}

func TestSTATVBlankSource(t *testing.T) {
	rec := &requestRecorder{}
	p := New(rec.fn)
	p.Write(0xFF41, 1<<4) // VBlank STAT source
	p.Step(144 * dotsPerLine)
	if rec.stat == 0 {
		t.Fatalf("STAT not raised for VBlank source")
	}
}

func TestSTATHBlankAndOAMSources(t *testing.T) {
	rec := &requestRecorder{}
	p := New(rec.fn)
	p.Write(0xFF41, 1<<3) // HBlank source
	p.Step(oamScanDots + transferDots)
	if rec.stat != 1 {
		t.Fatalf("HBlank source raised %d want 1", rec.stat)
	}

	rec2 := &requestRecorder{}
	q := New(rec2.fn)
	q.Write(0xFF41, 1<<5) // OAM source
	q.Step(dotsPerLine)   // entry to line 1 mode 2
	if rec2.stat != 1 {
		t.Fatalf("OAM source raised %d want 1", rec2.stat)
	}
}

func TestLYCCoincidence(t *testing.T) {
	rec := &requestRecorder{}
	p := New(rec.fn)
	p.Write(0xFF45, 2)    // LYC=2
	p.Write(0xFF41, 1<<6) // LYC source
	if p.Read(0xFF41)&0x04 != 0 {
		t.Fatalf("coincidence set with LY=0 LYC=2")
	}
	p.Step(2 * dotsPerLine)
	if p.Read(0xFF41)&0x04 == 0 {
		t.Fatalf("coincidence clear with LY=2 LYC=2")
	}
	if rec.stat != 1 {
		t.Fatalf("LYC STAT raised %d want 1", rec.stat)
	}
	p.Step(dotsPerLine)
	if p.Read(0xFF41)&0x04 != 0 {
		t.Fatalf("coincidence still set with LY=3")
	}
}

func TestLYWriteResetsLine(t *testing.T) {
	p := New(nil)
	p.Step(5 * dotsPerLine)
	if p.LY() != 5 {
		t.Fatalf("LY got %d want 5", p.LY())
	}
	p.Write(0xFF44, 0x77) // value ignored, counter resets
	if p.Read(0xFF44) != 0 {
		t.Fatalf("LY after write got %d want 0", p.Read(0xFF44))
	}
}

func TestLCDOffFreezesAndSilences(t *testing.T) {
	rec := &requestRecorder{}
	p := New(rec.fn)
	p.Write(0xFF40, 0x11) // LCD off
	if p.Read(0xFF44) != 0 || statMode(p) != 0 {
		t.Fatalf("LCD off: LY=%d mode=%d want 0/0", p.Read(0xFF44), statMode(p))
	}
	p.Step(3 * 70224)
	if p.Read(0xFF44) != 0 || rec.vblank != 0 || rec.stat != 0 {
		t.Fatalf("LCD off stepped: LY=%d vblank=%d stat=%d", p.Read(0xFF44), rec.vblank, rec.stat)
	}
	// Turning the LCD back on restarts at LY=0 mode 2
	p.Write(0xFF40, 0x91)
	if p.Read(0xFF44) != 0 || statMode(p) != 2 {
		t.Fatalf("LCD on: LY=%d mode=%d want 0/2", p.Read(0xFF44), statMode(p))
	}
}

func TestSTATModeBitsReadOnly(t *testing.T) {
	p := New(nil)
	p.Write(0xFF41, 0xFF)
	// bits 3-6 stored, mode/coincidence preserved, bit 7 reads as 1
	if got := p.Read(0xFF41); got&0x78 != 0x78 {
		t.Fatalf("STAT sources got %02X", got)
	}
	if got := p.Read(0xFF41); got&0x80 == 0 {
		t.Fatalf("STAT bit7 should read as 1")
	}
	if got := statMode(p); got != 2 {
		t.Fatalf("STAT mode overwritten by write: %d", got)
	}
}

func TestVRAMAndOAMAccess(t *testing.T) {
	p := New(nil)
	p.Write(0x8123, 0x42)
	if got := p.Read(0x8123); got != 0x42 {
		t.Fatalf("VRAM readback got %02X want 42", got)
	}
	p.Write(0xFE05, 0x99)
	if got := p.Read(0xFE05); got != 0x99 {
		t.Fatalf("OAM readback got %02X want 99", got)
	}
}
