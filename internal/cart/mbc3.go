package cart

// MBC3 implements ROM/RAM banking. The real clock cartridge's RTC registers
// are out of scope (spec Non-goal: real-time clock accuracy): selecting a
// bank-select value with bit 3 set addresses the RTC and reads back FF.
// Banking behavior:
// - 0000-1FFF: RAM enable (0x0A in low nibble)
// - 2000-3FFF: ROM bank low 7 bits (0 maps to 1)
// - 4000-5FFF: RAM bank select (0-3) or RTC register select (bit3 set)
// - 6000-7FFF: Latch clock (no-op; no RTC)
// - A000-BFFF: External RAM access when enabled and RAM present, else RTC (FF)
// ROM: bank 0 fixed at 0000-3FFF; switchable 4000-7FFF uses bank (1..127)

type MBC3 struct {
	rom []byte
	ram []byte

	ramEnabled bool
	romBank    byte // 7 bits (1..127)
	bankSelect byte // raw 4000-5FFF write: RAM bank 0-3, or RTC select with bit3 set
}

func NewMBC3(rom []byte, ramSize int) *MBC3 {
	m := &MBC3{rom: rom}
	if ramSize > 0 {
		m.ram = make([]byte, ramSize)
	}
	m.romBank = 1
	return m
}

func (m *MBC3) Read(addr uint16) byte {
	switch {
	case addr < 0x4000:
		if int(addr) < len(m.rom) {
			return m.rom[addr]
		}
		return 0xFF
	case addr < 0x8000:
		bank := int(m.romBank & 0x7F)
		if bank == 0 {
			bank = 1
		}
		off := bank*0x4000 + int(addr-0x4000)
		if off >= 0 && off < len(m.rom) {
			return m.rom[off]
		}
		return 0xFF
	case addr >= 0xA000 && addr <= 0xBFFF:
		if (m.bankSelect & 0x08) != 0 { // RTC register selected: unimplemented
			return 0xFF
		}
		if !m.ramEnabled || len(m.ram) == 0 {
			return 0xFF
		}
		rb := int(m.bankSelect & 0x03)
		off := rb*0x2000 + int(addr-0xA000)
		if off >= 0 && off < len(m.ram) {
			return m.ram[off]
		}
		return 0xFF
	default:
		return 0xFF
	}
}

func (m *MBC3) Write(addr uint16, value byte) {
	switch {
	case addr < 0x2000:
		m.ramEnabled = (value & 0x0F) == 0x0A
	case addr < 0x4000:
		v := value & 0x7F
		if v == 0 {
			v = 1
		}
		m.romBank = v
	case addr < 0x6000:
		// RAM bank 0-3, or RTC register select 08-0C (RTC itself unimplemented)
		m.bankSelect = value
	case addr < 0x8000:
		// Latch clock: no-op without RTC
		_ = value
	case addr >= 0xA000 && addr <= 0xBFFF:
		if (m.bankSelect & 0x08) != 0 { // RTC selected: writes go nowhere
			return
		}
		if !m.ramEnabled || len(m.ram) == 0 {
			return
		}
		rb := int(m.bankSelect & 0x03)
		off := rb*0x2000 + int(addr-0xA000)
		if off >= 0 && off < len(m.ram) {
			m.ram[off] = value
		}
	}
}

// BatteryBacked implementation (RTC not persisted here)
func (m *MBC3) SaveRAM() []byte {
	if len(m.ram) == 0 {
		return nil
	}
	out := make([]byte, len(m.ram))
	copy(out, m.ram)
	return out
}

func (m *MBC3) LoadRAM(data []byte) {
	if len(m.ram) == 0 || len(data) == 0 {
		return
	}
	copy(m.ram, data)
}
