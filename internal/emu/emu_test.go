package emu

import "testing"

func blankROM() []byte {
	rom := make([]byte, 0x8000)
	rom[0x0147] = 0x00 // ROM ONLY
	rom[0x0148] = 0x00 // 32KiB
	rom[0x0149] = 0x00 // no RAM
	return rom
}

func TestMachine_LoadCartridge_NoBootStartsAt0100(t *testing.T) {
	m := New(Config{})
	rom := blankROM()
	if err := m.LoadCartridge(rom, nil); err != nil {
		t.Fatalf("LoadCartridge: %v", err)
	}
	if m.cpu.PC != 0x0100 {
		t.Fatalf("PC got %#04x want 0x0100", m.cpu.PC)
	}
	if m.bus.Read(0xFF40) != 0x91 {
		t.Fatalf("LCDC default got %#02x want 0x91", m.bus.Read(0xFF40))
	}
}

func TestMachine_LoadCartridge_WithBootStartsAt0000(t *testing.T) {
	m := New(Config{})
	rom := blankROM()
	rom[0x0000] = 0xAA
	boot := make([]byte, 0x100)
	boot[0] = 0x55
	if err := m.LoadCartridge(rom, boot); err != nil {
		t.Fatalf("LoadCartridge: %v", err)
	}
	if m.cpu.PC != 0x0000 {
		t.Fatalf("PC got %#04x want 0x0000", m.cpu.PC)
	}
	if got := m.bus.Read(0x0000); got != 0x55 {
		t.Fatalf("boot overlay not mapped, got %#02x want 0x55", got)
	}
}

func TestMachine_RunFrame_FiresFrameCallback(t *testing.T) {
	m := New(Config{})
	rom := blankROM()
	// an infinite JR -2 loop at 0x0100 so the CPU just burns cycles
	rom[0x0100] = 0x18
	rom[0x0101] = 0xFE
	if err := m.LoadCartridge(rom, nil); err != nil {
		t.Fatalf("LoadCartridge: %v", err)
	}
	fired := 0
	m.SetFrameCallback(func() { fired++ })
	if err := m.RunFrame(); err != nil {
		t.Fatalf("RunFrame: %v", err)
	}
	if fired != 1 {
		t.Fatalf("expected exactly 1 frame callback, got %d", fired)
	}
}

func TestMachine_Tick_FatalOnUnknownOpcode(t *testing.T) {
	m := New(Config{})
	rom := blankROM()
	rom[0x0100] = 0xD3 // unassigned opcode
	if err := m.LoadCartridge(rom, nil); err != nil {
		t.Fatalf("LoadCartridge: %v", err)
	}
	var fatal error
	m.SetFatalErrorCallback(func(err error) { fatal = err })
	if err := m.Tick(); err == nil {
		t.Fatalf("expected Tick to return an error")
	}
	if fatal == nil {
		t.Fatalf("expected fatal callback to fire")
	}
}

func TestMachine_SetButtons_RoutesToBus(t *testing.T) {
	m := New(Config{})
	rom := blankROM()
	if err := m.LoadCartridge(rom, nil); err != nil {
		t.Fatalf("LoadCartridge: %v", err)
	}
	m.bus.Write(0xFF00, 0x20) // select D-pad
	m.SetButtons(Buttons{Down: true})
	if got := m.bus.Read(0xFF00) & 0x0F; got != 0x07 {
		t.Fatalf("JOYP got %02x want 07 (Down pressed)", got)
	}
}

func TestMachine_SkipBoot_IgnoresSuppliedBootImage(t *testing.T) {
	m := New(Config{SkipBoot: true})
	rom := blankROM()
	boot := make([]byte, 0x100)
	boot[0] = 0x55
	if err := m.LoadCartridge(rom, boot); err != nil {
		t.Fatalf("LoadCartridge: %v", err)
	}
	if m.cpu.PC != 0x0100 {
		t.Fatalf("SkipBoot should still land at 0x0100, got %#04x", m.cpu.PC)
	}
}
