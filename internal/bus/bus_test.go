package bus

import (
	"testing"

	"github.com/dmgboy/dmgcore/internal/cart"
)

func newTestBus(romLen int) *Bus {
	rom := make([]byte, romLen)
	c := cart.NewROMOnly(rom)
	return New(c)
}

func TestBus_ROMAndWRAM(t *testing.T) {
	rom := make([]byte, 0x8000)
	rom[0x0100] = 0x42
	b := New(cart.NewROMOnly(rom))

	if got := b.Read(0x0100); got != 0x42 {
		t.Fatalf("ROM read got %02x, want 42", got)
	}
	b.Write(0xC000, 0x99)
	if got := b.Read(0xC000); got != 0x99 {
		t.Fatalf("WRAM read got %02x, want 99", got)
	}
	b.Write(0xFF80, 0xAB)
	if got := b.Read(0xFF80); got != 0xAB {
		t.Fatalf("HRAM read got %02x, want AB", got)
	}
	if got := b.Read(0xA123); got != 0xFF {
		t.Fatalf("Ext RAM (ROM-only) got %02x, want FF", got)
	}
}

func TestBus_ForbiddenRanges(t *testing.T) {
	b := newTestBus(0x8000)
	b.Write(0xC000, 0x55)
	b.Write(0xE000, 0x77) // echo RAM write must be dropped, not mirrored
	if got := b.Read(0xC000); got != 0x55 {
		t.Fatalf("echo write leaked into WRAM: got %02x want 55", got)
	}
	if got := b.Read(0xE050); got != 0xFF {
		t.Fatalf("echo read got %02x want FF", got)
	}
	if got := b.Read(0xFEB0); got != 0xFF {
		t.Fatalf("unusable range read got %02x want FF", got)
	}
	b.Write(0xFEB0, 0x12) // must be a no-op
	if got := b.Read(0xFEB0); got != 0xFF {
		t.Fatalf("unusable range write was not dropped")
	}
}

func TestBus_VRAMAndOAM(t *testing.T) {
	b := newTestBus(0x8000)
	b.Write(0x8000, 0x11)
	if got := b.Read(0x8000); got != 0x11 {
		t.Fatalf("VRAM read got %02x, want 11", got)
	}
	b.Write(0xFE00, 0x22)
	if got := b.Read(0xFE00); got != 0x22 {
		t.Fatalf("OAM read got %02x, want 22", got)
	}
}

func TestBus_IFAndIE(t *testing.T) {
	b := newTestBus(0x8000)
	b.Write(0xFF0F, 0x3F)
	if got := b.Read(0xFF0F); got != 0xE0|0x1F {
		t.Fatalf("IF read got %02x, want FF", got)
	}
	b.Write(0xFFFF, 0x1B)
	if got := b.Read(0xFFFF); got != 0x1B {
		t.Fatalf("IE read got %02x, want 1B", got)
	}
}

func TestBus_JOYP(t *testing.T) {
	b := newTestBus(0x8000)
	if got := b.Read(0xFF00); got&0x0F != 0x0F {
		t.Fatalf("JOYP default lower bits got %02x want 0x0F", got)
	}
	b.Write(0xFF00, 0x20) // select D-pad (P14=0)
	b.SetButtonState(0xFF &^ ((JoypRight | JoypUp) << 4))
	got := b.Read(0xFF00)
	if got&0x0F != 0x0A {
		t.Fatalf("JOYP D-Pad got %02x want 0x0A", got&0x0F)
	}

	b.Write(0xFF00, 0x10) // select buttons (P15=0)
	b.SetButtonState(0xFF &^ (JoypA | JoypSelectBtn))
	got = b.Read(0xFF00)
	if got&0x0F != 0x0A {
		t.Fatalf("JOYP Buttons got %02x want 0x0A", got&0x0F)
	}
}

func TestBus_JoypadInterruptOnFallingEdge(t *testing.T) {
	b := newTestBus(0x8000)
	b.Write(0xFF0F, 0)
	b.Write(0xFF00, 0x20) // D-pad selected
	b.SetButtonState(0xFF)
	b.Write(0xFF0F, 0) // clear any spurious IF
	b.SetButtonState(0xFF &^ (JoypDown << 4))
	if (b.Read(0xFF0F) & (1 << 4)) == 0 {
		t.Fatalf("expected joypad IF bit on falling edge")
	}
}

func TestBus_TimerBasicRW(t *testing.T) {
	b := newTestBus(0x8000)
	b.Write(0xFF04, 0x12) // DIV write resets to 0
	if got := b.Read(0xFF04); got != 0x00 {
		t.Fatalf("DIV got %02x want 00", got)
	}
	b.Write(0xFF05, 0x77)
	if got := b.Read(0xFF05); got != 0x77 {
		t.Fatalf("TIMA got %02x want 77", got)
	}
	b.Write(0xFF06, 0x88)
	if got := b.Read(0xFF06); got != 0x88 {
		t.Fatalf("TMA got %02x want 88", got)
	}
	b.Write(0xFF07, 0xFD)
	if got := b.Read(0xFF07); got != (0xF8 | (0xFD & 0x07)) {
		t.Fatalf("TAC got %02x want %02x", got, 0xF8|(0xFD&0x07))
	}
}

func TestBus_TimerEdge_OnDIVAndTACWrites(t *testing.T) {
	b := newTestBus(0x8000)
	b.tac = 0x05
	b.tima = 0x10
	b.divInternal = 0x0008
	if !b.timerInput() {
		t.Fatalf("expected timerInput true")
	}
	b.Write(0xFF04, 0x00)
	if got := b.tima; got != 0x11 {
		t.Fatalf("TIMA not incremented on DIV falling edge: got %02X want 11", got)
	}

	b.tima = 0x20
	b.divInternal = 0x0008
	b.tac = 0x05
	b.Write(0xFF07, 0x06)
	if got := b.tima; got != 0x21 {
		t.Fatalf("TIMA not incremented on TAC falling edge: got %02X want 21", got)
	}
}

func TestBus_TIMAOverflow_ReloadTiming_AndCancellation(t *testing.T) {
	b := newTestBus(0x8000)
	b.tac = 0x05
	b.tma = 0xAB
	b.tima = 0xFF
	b.divInternal = 0x000F
	b.Tick(1) // falling edge on next tick -> overflow
	if got := b.tima; got != 0x00 {
		t.Fatalf("after overflow, TIMA got %02X want 00", got)
	}
	for i := 0; i < 3; i++ {
		b.Tick(1)
		if got := b.tima; got != 0x00 {
			t.Fatalf("during delay cycle %d, TIMA got %02X want 00", i, got)
		}
		if (b.Read(0xFF0F) & (1 << 2)) != 0 {
			t.Fatalf("during delay IF timer bit set prematurely")
		}
	}
	b.Tick(1)
	if got := b.tima; got != 0xAB {
		t.Fatalf("after delay, TIMA got %02X want AB", got)
	}
	if (b.Read(0xFF0F) & (1 << 2)) == 0 {
		t.Fatalf("timer IF bit not set on reload")
	}

	b.Write(0xFF0F, 0)
	b.tima = 0xFF
	b.divInternal = 0x000F
	b.Tick(1)
	b.Write(0xFF05, 0x77) // cancel reload
	for i := 0; i < 8; i++ {
		b.Tick(1)
	}
	if got := b.tima; got != 0x77 {
		t.Fatalf("TIMA write during delay not retained: got %02X want 77", got)
	}
	if (b.Read(0xFF0F) & (1 << 2)) != 0 {
		t.Fatalf("timer IF bit set despite cancellation")
	}
}

func TestBus_OAMDMA(t *testing.T) {
	b := newTestBus(0x8000)
	for i := 0; i < 0xA0; i++ {
		b.Write(0xC000+uint16(i), byte(i))
	}
	b.Write(0xFF46, 0xC0)
	if got := b.Read(0xFE00); got != 0xFF {
		t.Fatalf("OAM read during DMA got %02X want FF", got)
	}
	b.Write(0xFE00, 0xEE) // ignored during DMA
	b.Tick(160)
	for i := 0; i < 0xA0; i++ {
		if got := b.Read(0xFE00 + uint16(i)); got != byte(i) {
			t.Fatalf("OAM[%02X] got %02X want %02X", i, got, byte(i))
		}
	}
	b.Write(0xFE00, 0x99)
	if got := b.Read(0xFE00); got != 0x99 {
		t.Fatalf("OAM write post-DMA failed: got %02X", got)
	}
}

func TestBus_BootROMOverlayAndDisable(t *testing.T) {
	rom := make([]byte, 0x8000)
	rom[0x0000] = 0xAA // cartridge byte at 0x0000
	b := New(cart.NewROMOnly(rom))
	boot := make([]byte, 0x100)
	boot[0] = 0x55
	b.SetBootROM(boot)
	if got := b.Read(0x0000); got != 0x55 {
		t.Fatalf("boot overlay not mapped: got %02X want 55", got)
	}
	b.Write(0xFF50, 0x01)
	if got := b.Read(0x0000); got != 0xAA {
		t.Fatalf("boot overlay not unmapped: got %02X want AA", got)
	}
	b.Write(0xFF50, 0x02) // second write must not reactivate or otherwise change anything
	if got := b.Read(0x0000); got != 0xAA {
		t.Fatalf("boot overlay re-enabled by second FF50 write: got %02X", got)
	}
}

func TestBus_PPURegistersRouteThrough(t *testing.T) {
	b := newTestBus(0x8000)
	b.Write(0xFF40, 0x91)
	if got := b.Read(0xFF40); got != 0x91 {
		t.Fatalf("LCDC round-trip got %02X want 91", got)
	}
	b.Write(0xFF44, 0x50) // any write resets LY
	if got := b.Read(0xFF44); got != 0x00 {
		t.Fatalf("LY write-reset got %02X want 00", got)
	}
}
