package cart

import "testing"

func TestMBC3_ROMBanking(t *testing.T) {
	rom := make([]byte, 256*1024)
	for bank := 0; bank < 16; bank++ {
		rom[bank*0x4000] = byte(bank)
	}
	m := NewMBC3(rom, 0)

	if got := m.Read(0x4000); got != 0x01 {
		t.Fatalf("default bank1 read got %02X want 01", got)
	}
	m.Write(0x2000, 0x05)
	if got := m.Read(0x4000); got != 0x05 {
		t.Fatalf("bank5 read got %02X want 05", got)
	}
	m.Write(0x2000, 0x00) // coerced to 1
	if got := m.Read(0x4000); got != 0x01 {
		t.Fatalf("bank0->1 remap failed: got %02X", got)
	}
}

func TestMBC3_RAMBanking(t *testing.T) {
	rom := make([]byte, 0x8000)
	m := NewMBC3(rom, 4*0x2000)

	m.Write(0x0000, 0x0A) // RAM enable
	m.Write(0x4000, 0x02) // RAM bank 2
	m.Write(0xA000, 0x42)
	if got := m.Read(0xA000); got != 0x42 {
		t.Fatalf("RAM bank2 RW failed: got %02X", got)
	}

	m.Write(0x4000, 0x00) // back to bank 0: should read the zero-initialized byte
	if got := m.Read(0xA000); got != 0x00 {
		t.Fatalf("RAM bank0 contaminated by bank2 write: got %02X", got)
	}
}

func TestMBC3_RAMDisabled_ReturnsFF(t *testing.T) {
	rom := make([]byte, 0x8000)
	m := NewMBC3(rom, 0x2000)
	if got := m.Read(0xA000); got != 0xFF {
		t.Fatalf("disabled RAM read got %02X want FF", got)
	}
}

func TestMBC3_RTCSelect_ReturnsFF(t *testing.T) {
	rom := make([]byte, 0x8000)
	m := NewMBC3(rom, 0x2000)
	m.Write(0x0000, 0x0A) // RAM enable (irrelevant to RTC path)
	m.Write(0x4000, 0x08) // select RTC seconds register
	if got := m.Read(0xA000); got != 0xFF {
		t.Fatalf("RTC register read got %02X want FF (unimplemented)", got)
	}
	m.Write(0xA000, 0x55) // write should be dropped, not touch RAM bank 0
	m.Write(0x4000, 0x00)
	if got := m.Read(0xA000); got != 0x00 {
		t.Fatalf("RTC write leaked into RAM bank 0: got %02X", got)
	}
}
