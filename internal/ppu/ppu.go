// Package ppu implements the DMG pixel-processing unit: VRAM/OAM storage,
// LCDC/STAT/SCY/SCX/LY/LYC/BGP/OBP0/OBP1/WY/WX registers, the four-mode
// scanline state machine, and the BG/Window/Sprite scanline compositor that
// produces a 160x144 RGBA framebuffer.
package ppu

// InterruptRequester is a callback signature used to request IF bits
// (0:VBlank, 1:STAT, ...).
type InterruptRequester func(bit int)

// Mode durations in dots, per the scanline state machine.
const (
	modeOAMDots     = 83
	modePixelDots    = 175
	modeHBlankDots  = 207
	modeVBlankDots  = 456 // per VBlank line; 10 lines total

	ScreenW = 160
	ScreenH = 144
)

// gColors is the fixed DMG 4-shade palette, encoded as 0xRRGGBBAA.
var gColors = [4]uint32{0x9BBC0FFF, 0x8BAC0FFF, 0x306230FF, 0x0F380FFF}

// LineRegs is the register snapshot captured at the start of a visible
// scanline's pixel-transfer mode, used to render that line with values
// stable against mid-line CPU writes.
type LineRegs struct {
	LCDC, SCY, SCX, BGP, OBP0, OBP1, WY, WX byte
	WinLine                                 byte
}

// Sprite describes one OAM entry selected for the current scanline.
type Sprite struct {
	X, Y     int
	Tile     byte
	Attr     byte
	OAMIndex int
}

// PPU owns VRAM/OAM, the LCD registers, the mode timer, and the framebuffer.
type PPU struct {
	vram [0x2000]byte // 0x8000-0x9FFF
	oam  [0xA0]byte   // 0xFE00-0xFE9F

	lcdc byte
	stat byte
	scy  byte
	scx  byte
	ly   byte
	lyc  byte
	bgp  byte
	obp0 byte
	obp1 byte
	wy   byte
	wx   byte

	dot int

	req InterruptRequester

	lineRegs       [154]LineRegs
	winLineCounter byte

	fb [ScreenW * ScreenH * 4]byte // RGBA
}

func New(req InterruptRequester) *PPU {
	p := &PPU{req: req}
	for i := range p.fb {
		if i%4 == 3 {
			p.fb[i] = 0xFF
		}
	}
	return p
}

func (p *PPU) mode() byte { return p.stat & 0x03 }

func (p *PPU) setMode(m byte) {
	p.stat = (p.stat &^ 0x03) | (m & 0x03)
}

// CPURead returns bytes for VRAM, OAM, and PPU IO registers.
func (p *PPU) CPURead(addr uint16) byte {
	switch {
	case addr >= 0x8000 && addr <= 0x9FFF:
		if p.mode() == 3 {
			return 0xFF
		}
		return p.vram[addr-0x8000]
	case addr >= 0xFE00 && addr <= 0xFE9F:
		m := p.mode()
		if m == 2 || m == 3 {
			return 0xFF
		}
		return p.oam[addr-0xFE00]
	case addr == 0xFF40:
		return p.lcdc
	case addr == 0xFF41:
		return 0x80 | (p.stat & 0x7F)
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

// CPUWrite handles writes to VRAM, OAM, and PPU IO registers.
func (p *PPU) CPUWrite(addr uint16, value byte) {
	switch {
	case addr >= 0x8000 && addr <= 0x9FFF:
		if p.mode() == 3 {
			return
		}
		p.vram[addr-0x8000] = value
	case addr >= 0xFE00 && addr <= 0xFE9F:
		m := p.mode()
		if m == 2 || m == 3 {
			return
		}
		p.oam[addr-0xFE00] = value
	case addr == 0xFF40:
		prev := p.lcdc
		p.lcdc = value
		if (p.lcdc&0x80) == 0 && (prev&0x80) != 0 {
			p.ly = 0
			p.dot = 0
			p.setMode(0)
			p.updateLYC()
		} else if (p.lcdc&0x80) != 0 && (prev&0x80) == 0 {
			p.ly = 0
			p.dot = 0
			p.winLineCounter = 0
			p.setMode(2)
			p.updateLYC()
		}
	case addr == 0xFF41:
		p.stat = (p.stat & 0x07) | (value & 0x78)
	case addr == 0xFF42:
		p.scy = value
	case addr == 0xFF43:
		p.scx = value
	case addr == 0xFF44:
		// Writing any value resets LY, per hardware.
		p.ly = 0
		p.dot = 0
		p.winLineCounter = 0
		p.updateLYC()
		if (p.lcdc & 0x80) != 0 {
			p.setMode(2)
		}
	case addr == 0xFF45:
		p.lyc = value
		p.updateLYC()
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

// DMAWriteOAM writes directly into OAM, bypassing the CPU mode restriction;
// used by the Bus's OAM DMA block copy.
func (p *PPU) DMAWriteOAM(idx int, value byte) {
	if idx >= 0 && idx < len(p.oam) {
		p.oam[idx] = value
	}
}

// DMAReadOAM reads directly from OAM, bypassing the CPU mode restriction.
func (p *PPU) DMAReadOAM(idx int) byte {
	if idx >= 0 && idx < len(p.oam) {
		return p.oam[idx]
	}
	return 0xFF
}

// Tick advances the PPU by the given number of dots (CPU cycles).
func (p *PPU) Tick(cycles int) {
	if cycles <= 0 {
		return
	}
	if (p.lcdc & 0x80) == 0 {
		return
	}
	for i := 0; i < cycles; i++ {
		p.dot++
		switch p.mode() {
		case 2: // OAM scan
			if p.dot >= modeOAMDots {
				p.dot = 0
				p.setMode(3)
			}
		case 3: // Pixel transfer
			if p.dot >= modePixelDots {
				p.dot = 0
				p.renderScanline()
				p.setMode(0)
				if (p.stat & (1 << 3)) != 0 {
					p.request(1)
				}
			}
		case 0: // H-Blank
			if p.dot >= modeHBlankDots {
				p.dot = 0
				p.ly++
				p.updateLYC()
				if p.ly == 144 {
					p.setMode(1)
					p.request(0)
					if (p.stat & (1 << 4)) != 0 {
						p.request(1)
					}
				} else {
					p.setMode(2)
					if (p.stat & (1 << 5)) != 0 {
						p.request(1)
					}
					p.updateWindowLine()
				}
			}
		case 1: // V-Blank
			if p.dot >= modeVBlankDots {
				p.dot = 0
				p.ly++
				if p.ly > 153 {
					p.ly = 0
					p.winLineCounter = 0
					p.updateLYC()
					p.setMode(2)
					if (p.stat & (1 << 5)) != 0 {
						p.request(1)
					}
				} else {
					p.updateLYC()
				}
			}
		}
	}
}

func (p *PPU) request(bit int) {
	if p.req != nil {
		p.req(bit)
	}
}

func (p *PPU) updateLYC() {
	if p.ly == p.lyc {
		p.stat |= 1 << 2
		if (p.stat & (1 << 6)) != 0 {
			p.request(1)
		}
	} else {
		p.stat &^= 1 << 2
	}
}

func (p *PPU) updateWindowLine() {
	windowVisible := (p.lcdc&0x20) != 0 && (p.lcdc&0x01) != 0 && p.ly >= p.wy && p.wx <= 166
	if windowVisible {
		if p.ly == p.wy {
			p.winLineCounter = 0
		} else if p.ly > p.wy {
			p.winLineCounter++
		}
	}
}

// LineRegs returns the captured register snapshot for scanline y (0..153).
func (p *PPU) LineRegs(y int) LineRegs {
	if y < 0 || y >= len(p.lineRegs) {
		return LineRegs{}
	}
	return p.lineRegs[y]
}

// Framebuffer returns the RGBA pixel buffer (160*144*4 bytes).
func (p *PPU) Framebuffer() []byte { return p.fb[:] }

// RawVRAM returns VRAM bytes without CPU access restrictions, for rendering.
func (p *PPU) RawVRAM(addr uint16) byte {
	if addr >= 0x8000 && addr <= 0x9FFF {
		return p.vram[addr-0x8000]
	}
	return 0xFF
}

// RawOAM returns OAM bytes without CPU access restrictions, for rendering.
func (p *PPU) RawOAM(addr uint16) byte {
	if addr >= 0xFE00 && addr <= 0xFE9F {
		return p.oam[addr-0xFE00]
	}
	return 0xFF
}

// decodeTileRow spreads two bit-plane bytes into 8 two-bit color indices,
// Morton-style: pixel x (0=leftmost) is bit pair at position 14-2x.
func decodeTileRow(lo, hi byte) [8]byte {
	var row [8]byte
	for x := 0; x < 8; x++ {
		bit := 7 - byte(x)
		row[x] = ((hi>>bit)&1)<<1 | ((lo >> bit) & 1)
	}
	return row
}

func shade(pal byte, ci byte) uint32 {
	p := (pal >> (ci * 2)) & 0x03
	return gColors[p]
}

func (p *PPU) setPixel(x, y int, c uint32) {
	i := (y*ScreenW + x) * 4
	p.fb[i+0] = byte(c >> 24)
	p.fb[i+1] = byte(c >> 16)
	p.fb[i+2] = byte(c >> 8)
	p.fb[i+3] = byte(c)
}

// renderScanline composes BG, Window, and Sprites for the current LY into
// the framebuffer, using the register snapshot captured for this line.
func (p *PPU) renderScanline() {
	y := int(p.ly)
	if y < 0 || y >= ScreenH {
		return
	}
	lr := LineRegs{
		LCDC: p.lcdc, SCY: p.scy, SCX: p.scx,
		BGP: p.bgp, OBP0: p.obp0, OBP1: p.obp1,
		WY: p.wy, WX: p.wx, WinLine: p.winLineCounter,
	}
	p.lineRegs[y] = lr

	var bgColorIdx [ScreenW]byte

	if (lr.LCDC & 0x80) == 0 {
		for x := 0; x < ScreenW; x++ {
			p.setPixel(x, y, gColors[0])
		}
		return
	}

	bgEnabled := (lr.LCDC & 0x01) != 0
	if bgEnabled {
		mapBase := uint16(0x9800)
		if (lr.LCDC & 0x08) != 0 {
			mapBase = 0x9C00
		}
		tileData8000 := (lr.LCDC & 0x10) != 0
		bgY := byte(uint16(y) + uint16(lr.SCY))
		tileRow := uint16(bgY>>3) & 31
		fineY := bgY & 7
		for x := 0; x < ScreenW; x++ {
			bgX := byte(uint16(x) + uint16(lr.SCX))
			tileCol := uint16(bgX>>3) & 31
			tileNum := p.RawVRAM(mapBase + tileRow*32 + tileCol)
			lo, hi := p.tileRowBytes(tileNum, tileData8000, fineY)
			row := decodeTileRow(lo, hi)
			ci := row[bgX&7]
			bgColorIdx[x] = ci
			p.setPixel(x, y, shade(lr.BGP, ci))
		}
	} else {
		for x := 0; x < ScreenW; x++ {
			p.setPixel(x, y, gColors[0])
		}
	}

	windowEnabled := (lr.LCDC&0x20) != 0 && bgEnabled
	if windowEnabled && y >= int(lr.WY) {
		mapBase := uint16(0x9800)
		if (lr.LCDC & 0x40) != 0 {
			mapBase = 0x9C00
		}
		tileData8000 := (lr.LCDC & 0x10) != 0
		winXStart := int(lr.WX) - 7
		fineY := lr.WinLine & 7
		tileRow := uint16(lr.WinLine>>3) & 31
		for x := winXStart; x < ScreenW; x++ {
			if x < 0 {
				continue
			}
			winX := byte(x - winXStart)
			tileCol := uint16(winX>>3) & 31
			tileNum := p.RawVRAM(mapBase + tileRow*32 + tileCol)
			lo, hi := p.tileRowBytes(tileNum, tileData8000, fineY)
			row := decodeTileRow(lo, hi)
			ci := row[winX&7]
			bgColorIdx[x] = ci
			p.setPixel(x, y, shade(lr.BGP, ci))
		}
	}

	if (lr.LCDC & 0x02) != 0 {
		p.renderSprites(y, lr, bgColorIdx)
	}
}

// tileRowBytes fetches the two bit-plane bytes for the given tile number and
// row, honoring LCDC's addressing mode (0x8000 unsigned vs 0x8800 signed).
func (p *PPU) tileRowBytes(tileNum byte, tileData8000 bool, fineY byte) (lo, hi byte) {
	var base uint16
	if tileData8000 {
		base = 0x8000 + uint16(tileNum)*16 + uint16(fineY)*2
	} else {
		base = 0x9000 + uint16(int8(tileNum))*16 + uint16(fineY)*2
	}
	return p.RawVRAM(base), p.RawVRAM(base + 1)
}

// ScanlineSprites scans OAM for entries intersecting scanline y, in OAM
// order, capped to the first 10 matches.
func (p *PPU) ScanlineSprites(y int, tall bool) []Sprite {
	h := 8
	if tall {
		h = 16
	}
	out := make([]Sprite, 0, 10)
	for i := 0; i < 40 && len(out) < 10; i++ {
		base := uint16(0xFE00 + i*4)
		sy := int(p.RawOAM(base)) - 16
		sx := int(p.RawOAM(base+1)) - 8
		tile := p.RawOAM(base + 2)
		attr := p.RawOAM(base + 3)
		if sy <= y && y < sy+h {
			out = append(out, Sprite{X: sx, Y: sy, Tile: tile, Attr: attr, OAMIndex: i})
		}
	}
	return out
}

func (p *PPU) renderSprites(y int, lr LineRegs, bgColorIdx [ScreenW]byte) {
	tall := (lr.LCDC & 0x04) != 0
	sprites := p.ScanlineSprites(y, tall)
	if len(sprites) == 0 {
		return
	}
	type paintedPixel struct {
		found bool
		x     int
		idx   int
	}
	best := make([]paintedPixel, ScreenW)
	colorIdx := make([]byte, ScreenW)
	pal := make([]byte, ScreenW)
	for _, s := range sprites {
		for col := 0; col < 8; col++ {
			x := s.X + col
			if x < 0 || x >= ScreenW {
				continue
			}
			row := y - s.Y
			effCol := col
			if (s.Attr & (1 << 6)) != 0 { // Y flip
				if tall {
					row = 15 - row
				} else {
					row = 7 - row
				}
			}
			if (s.Attr & (1 << 5)) != 0 { // X flip
				effCol = 7 - col
			}
			tIndex := s.Tile
			if tall {
				tIndex &= 0xFE
				if row >= 8 {
					tIndex++
				}
			}
			lo, hi := p.tileRowBytes(tIndex, true, byte(row&7))
			tileRow := decodeTileRow(lo, hi)
			ci := tileRow[effCol]
			if ci == 0 {
				continue
			}
			if (s.Attr&(1<<7)) != 0 && bgColorIdx[x] != 0 {
				continue // behind BG
			}
			b := best[x]
			if b.found && (s.X > b.x || (s.X == b.x && s.OAMIndex >= b.idx)) {
				continue
			}
			best[x] = paintedPixel{found: true, x: s.X, idx: s.OAMIndex}
			colorIdx[x] = ci
			if (s.Attr & (1 << 4)) != 0 {
				pal[x] = 1
			} else {
				pal[x] = 0
			}
		}
	}
	for x := 0; x < ScreenW; x++ {
		if !best[x].found {
			continue
		}
		obp := lr.OBP0
		if pal[x] == 1 {
			obp = lr.OBP1
		}
		p.setPixel(x, y, shade(obp, colorIdx[x]))
	}
}
