package ppu

import "testing"

// TestTimingInvariants walks several frames in uneven increments and checks
// that (LY, mode, dot) always agree with the line timing table and that the
// STAT coincidence bit tracks LY==LYC.
func TestTimingInvariants(t *testing.T) {
	p := New(nil)
	p.Write(0xFF45, 40) // LYC

	steps := []int{1, 3, 4, 7, 12, 80, 172, 204, 455, 456, 500, 1023}
	total := 0
	for total < 3*70224 {
		for _, n := range steps {
			p.Step(n)
			total += n

			ly := p.LY()
			if ly > 153 {
				t.Fatalf("LY out of range: %d", ly)
			}
			if p.dot < 0 || p.dot >= dotsPerLine {
				t.Fatalf("dot out of range: %d", p.dot)
			}
			mode := p.Mode()
			var want byte
			switch {
			case ly >= 144:
				want = modeVBlank
			case p.dot < oamScanDots:
				want = modeOAMScan
			case p.dot < oamScanDots+transferDots:
				want = modeTransfer
			default:
				want = modeHBlank
			}
			if mode != want {
				t.Fatalf("LY=%d dot=%d mode=%d want %d", ly, p.dot, mode, want)
			}

			coincidence := p.Read(0xFF41)&0x04 != 0
			if coincidence != (ly == 40) {
				t.Fatalf("coincidence bit %t with LY=%d LYC=40", coincidence, ly)
			}
		}
	}
}
