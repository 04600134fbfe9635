package ppu

// renderScanline synthesizes the visible line LY into the framebuffer:
// background, then window, then up to 10 sprites in OAM order.
func (p *PPU) renderScanline() {
	y := int(p.ly)
	if y >= ScreenHeight {
		return
	}
	row := p.fb[y*ScreenWidth : (y+1)*ScreenWidth]

	// raw BG/window color indices before palette mapping, for sprite priority
	var bgIndex [ScreenWidth]byte

	windowUsed := p.renderBackground(y, row, &bgIndex)
	if windowUsed {
		p.winLine++
	}
	p.renderSprites(y, row, &bgIndex)
}

// renderBackground fills the line with background and window pixels and
// reports whether the window contributed (its private line counter advances
// only then).
func (p *PPU) renderBackground(y int, row []byte, bgIndex *[ScreenWidth]byte) bool {
	if p.lcdc&lcdcBGEnable == 0 {
		// BG and window both disabled: color 0 across the line
		for x := 0; x < ScreenWidth; x++ {
			bgIndex[x] = 0
			row[x] = 0
		}
		return false
	}

	bgMap := uint16(0x9800)
	if p.lcdc&lcdcBGMap != 0 {
		bgMap = 0x9C00
	}
	winMap := uint16(0x9800)
	if p.lcdc&lcdcWindowMap != 0 {
		winMap = 0x9C00
	}

	windowOnLine := p.lcdc&lcdcWindowEnable != 0 && y >= int(p.wy) && int(p.wx) <= 166
	winStart := int(p.wx) - 7
	windowUsed := false

	for x := 0; x < ScreenWidth; x++ {
		var ci byte
		if windowOnLine && x >= winStart {
			wx := x - winStart
			ci = p.tilePixel(winMap, wx, int(p.winLine))
			windowUsed = true
		} else {
			bx := (x + int(p.scx)) & 0xFF
			by := (y + int(p.scy)) & 0xFF
			ci = p.tilePixel(bgMap, bx, by)
		}
		bgIndex[x] = ci
		row[x] = p.bgp >> (ci * 2) & 0x03
	}
	return windowUsed
}

// tilePixel resolves one pixel of a 32x32 tilemap at map-local coordinates,
// honoring the LCDC tiledata addressing mode.
func (p *PPU) tilePixel(mapBase uint16, x, y int) byte {
	tileIndex := p.vram[mapBase-0x8000+uint16(y/8)*32+uint16(x/8)]
	var tileAddr uint16
	if p.lcdc&lcdcTileData != 0 {
		tileAddr = 0x8000 + uint16(tileIndex)*16
	} else {
		tileAddr = uint16(0x9000 + int(int8(tileIndex))*16)
	}
	lo := p.vram[tileAddr-0x8000+uint16(y%8)*2]
	hi := p.vram[tileAddr-0x8000+uint16(y%8)*2+1]
	bit := 7 - byte(x%8)
	return (hi>>bit)&1<<1 | (lo>>bit)&1
}

type sprite struct {
	x, y       int
	tile, attr byte
}

// renderSprites overlays the line's sprites. Selection is the first 10 OAM
// entries whose Y range covers the line; on a pixel conflict the earliest
// OAM entry wins (no X sorting on this hardware revision).
func (p *PPU) renderSprites(y int, row []byte, bgIndex *[ScreenWidth]byte) {
	if p.lcdc&lcdcOBJEnable == 0 {
		return
	}
	height := 8
	if p.lcdc&lcdcOBJSize != 0 {
		height = 16
	}

	var line [10]sprite
	n := 0
	for i := 0; i < 40 && n < 10; i++ {
		sy := int(p.oam[i*4]) - 16
		if y < sy || y >= sy+height {
			continue
		}
		line[n] = sprite{
			y:    sy,
			x:    int(p.oam[i*4+1]) - 8,
			tile: p.oam[i*4+2],
			attr: p.oam[i*4+3],
		}
		n++
	}

	for x := 0; x < ScreenWidth; x++ {
		for s := 0; s < n; s++ {
			sp := line[s]
			if x < sp.x || x >= sp.x+8 {
				continue
			}
			srow := y - sp.y
			col := x - sp.x
			if sp.attr&(1<<6) != 0 { // Y flip
				srow = height - 1 - srow
			}
			if sp.attr&(1<<5) != 0 { // X flip
				col = 7 - col
			}
			tile := sp.tile
			if height == 16 {
				tile &= 0xFE
				if srow >= 8 {
					tile++
				}
			}
			base := uint16(tile)*16 + uint16(srow&7)*2
			lo := p.vram[base]
			hi := p.vram[base+1]
			bit := 7 - byte(col)
			ci := (hi>>bit)&1<<1 | (lo>>bit)&1
			if ci == 0 {
				continue // transparent: the next candidate may own the pixel
			}
			// the first opaque candidate owns the pixel, visible or not
			if sp.attr&(1<<7) == 0 || bgIndex[x] == 0 {
				pal := p.obp0
				if sp.attr&(1<<4) != 0 {
					pal = p.obp1
				}
				row[x] = pal >> (ci * 2) & 0x03
			}
			break
		}
	}
}
