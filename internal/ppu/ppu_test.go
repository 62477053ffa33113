package ppu

import "testing"

func statMode(p *PPU) byte { return p.CPURead(0xFF41) & 0x03 }

func TestPPUModeSequenceOneLine(t *testing.T) {
	var irqs []int
	p := New(func(bit int) { irqs = append(irqs, bit) })
	p.CPUWrite(0xFF40, 0x80)
	if m := statMode(p); m != 2 {
		t.Fatalf("expected mode 2 after LCD on, got %d", m)
	}
	p.Tick(83)
	if m := statMode(p); m != 3 {
		t.Fatalf("expected mode 3 at dot 83, got %d", m)
	}
	p.Tick(175)
	if m := statMode(p); m != 0 {
		t.Fatalf("expected mode 0 at dot 258, got %d", m)
	}
	p.Tick(207)
	if ly := p.CPURead(0xFF44); ly != 1 {
		t.Fatalf("expected LY=1, got %d", ly)
	}
	if m := statMode(p); m != 2 {
		t.Fatalf("expected mode 2 at new line, got %d", m)
	}
	_ = irqs
}

func TestPPUVBlankAndIF(t *testing.T) {
	var got []int
	p := New(func(bit int) { got = append(got, bit) })
	p.CPUWrite(0xFF41, 1<<4) // STAT VBlank enable
	p.CPUWrite(0xFF40, 0x80)
	// 144 lines at 465 dots/line (83+175+207)
	p.Tick(144 * (83 + 175 + 207))
	vb, st := 0, 0
	for _, b := range got {
		if b == 0 {
			vb++
		} else if b == 1 {
			st++
		}
	}
	if vb == 0 {
		t.Fatalf("expected VBlank IRQ at LY=144")
	}
	if st == 0 {
		t.Fatalf("expected STAT IRQ on VBlank when enabled")
	}
	if ly := p.CPURead(0xFF44); ly != 144 {
		t.Fatalf("expected LY=144, got %d", ly)
	}
}

func TestPPUVBlankWraps(t *testing.T) {
	p := New(func(bit int) {})
	p.CPUWrite(0xFF40, 0x80)
	p.Tick(144 * (83 + 175 + 207))
	p.Tick(10 * modeVBlankDots)
	if ly := p.CPURead(0xFF44); ly != 0 {
		t.Fatalf("expected LY=0 after VBlank wrap, got %d", ly)
	}
	if m := statMode(p); m != 2 {
		t.Fatalf("expected mode 2 after VBlank wrap, got %d", m)
	}
}

func TestPPULYCCoincidence(t *testing.T) {
	var got []int
	p := New(func(bit int) { got = append(got, bit) })
	p.CPUWrite(0xFF41, 1<<6) // LYC interrupt enable
	p.CPUWrite(0xFF45, 1)
	p.CPUWrite(0xFF40, 0x80)
	p.Tick(83 + 175 + 207) // finish line 0 -> LY=1
	hasLYC := false
	for _, b := range got {
		if b == 1 {
			hasLYC = true
		}
	}
	if !hasLYC {
		t.Fatalf("expected STAT IRQ on LYC=LY coincidence at LY=1")
	}
	if stat := p.CPURead(0xFF41); (stat & (1 << 2)) == 0 {
		t.Fatalf("expected coincidence flag set")
	}
}

func TestPPUDisabledHoldsLYZero(t *testing.T) {
	p := New(func(bit int) {})
	// LCD stays off (bit7 clear)
	p.Tick(100000)
	if ly := p.CPURead(0xFF44); ly != 0 {
		t.Fatalf("expected LY=0 while disabled, got %d", ly)
	}
}

func TestPPUWriteLYResets(t *testing.T) {
	p := New(func(bit int) {})
	p.CPUWrite(0xFF40, 0x80)
	p.Tick(300)
	p.CPUWrite(0xFF44, 0x99)
	if ly := p.CPURead(0xFF44); ly != 0 {
		t.Fatalf("expected LY reset to 0, got %d", ly)
	}
	if m := statMode(p); m != 2 {
		t.Fatalf("expected mode 2 after LY reset, got %d", m)
	}
}

func TestPPUVRAMOAMAccessRestrictions(t *testing.T) {
	p := New(func(bit int) {})
	p.CPUWrite(0xFF40, 0x80)
	p.Tick(83 + 175) // now in mode 0
	p.CPUWrite(0x8000, 0x11)
	p.CPUWrite(0xFE00, 0x22)
	p.Tick(207)     // new line, mode 2
	p.Tick(83)      // mode 3
	p.CPUWrite(0x8000, 0xAA)
	p.CPUWrite(0xFE00, 0xBB)
	if got := p.CPURead(0x8000); got != 0xFF {
		t.Fatalf("VRAM read during mode3 got %02X want FF", got)
	}
	if got := p.CPURead(0xFE00); got != 0xFF {
		t.Fatalf("OAM read during mode3 got %02X want FF", got)
	}
	p.Tick(175) // back to mode 0
	if got := p.CPURead(0x8000); got != 0x11 {
		t.Fatalf("VRAM value changed despite blocked write: got %02X want 11", got)
	}
	if got := p.CPURead(0xFE00); got != 0x22 {
		t.Fatalf("OAM value changed despite blocked write: got %02X want 22", got)
	}
}

func TestScanlineSpritesCap(t *testing.T) {
	p := New(func(bit int) {})
	for i := 0; i < 16; i++ {
		base := uint16(0xFE00 + i*4)
		p.oam[base-0xFE00] = 16   // Y=16 -> sy=0, covers LY 0..7
		p.oam[base-0xFE00+1] = byte(8 + i)
		p.oam[base-0xFE00+2] = 0
		p.oam[base-0xFE00+3] = 0
	}
	sprites := p.ScanlineSprites(0, false)
	if len(sprites) != 10 {
		t.Fatalf("expected 10 sprites, got %d", len(sprites))
	}
	for i, s := range sprites {
		if s.OAMIndex != i {
			t.Fatalf("expected OAM order, sprite %d has index %d", i, s.OAMIndex)
		}
	}
}
