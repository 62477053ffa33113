// Package bus implements the DMG memory bus: address-range dispatch across
// cartridge ROM/RAM, WRAM, the PPU's VRAM/OAM/registers, the timer, the
// joypad latch, OAM DMA, and the boot-ROM overlay.
package bus

import (
	"github.com/dmgboy/dmgcore/internal/cart"
	"github.com/dmgboy/dmgcore/internal/ppu"
)

// Joypad button bits, shared by both the D-pad and button nibbles of P1.
const (
	JoypRight     byte = 1 << 0
	JoypLeft      byte = 1 << 1
	JoypUp        byte = 1 << 2
	JoypDown      byte = 1 << 3
	JoypA         byte = 1 << 0
	JoypB         byte = 1 << 1
	JoypSelectBtn byte = 1 << 2
	JoypStart     byte = 1 << 3
)

type Bus struct {
	cart cart.Cartridge
	ppu  *ppu.PPU

	wram [0x2000]byte // 0xC000-0xDFFF
	hram [0x7F]byte   // 0xFF80-0xFFFE

	ie byte // 0xFFFF
	ifr byte // 0xFF0F (low 5 bits meaningful)

	p1Select byte // bits 4-5 as written
	buttons  byte // external button mask: bit0=A,1=B,2=Select,3=Start,4=Right,5=Left,6=Up,7=Down; 1=released

	bootROM     []byte
	bootEnabled bool

	dmaActive     bool
	dmaCyclesLeft int
	dmaSrcBase    uint16
	dmaIndex      int

	// Timer (FF04-FF07)
	divInternal uint16
	tima        byte
	tma         byte
	tac         byte

	timaReloadPending int // cycles remaining until TIMA reloads from TMA, 0 = none
}

// New creates a Bus wired to the given cartridge. The PPU raises interrupts
// (VBlank, STAT) straight through the Bus's own IF register; the timer and
// joypad do the same internally.
func New(c cart.Cartridge) *Bus {
	b := &Bus{cart: c, buttons: 0xFF}
	b.p1Select = 0x30
	b.ppu = ppu.New(b.requestInterrupt)
	return b
}

// PPU exposes the owned PPU for the Machine's frame presentation.
func (b *Bus) PPU() *ppu.PPU { return b.ppu }

// Cart exposes the cartridge, e.g. for battery-RAM persistence.
func (b *Bus) Cart() cart.Cartridge { return b.cart }

func (b *Bus) requestInterrupt(bit int) {
	b.ifr |= 1 << uint(bit)
}

// SetBootROM installs a 256-byte boot image overlaid at 0x0000-0x00FF until
// FF50 is written with a non-zero value.
func (b *Bus) SetBootROM(data []byte) {
	if len(data) >= 0x100 {
		b.bootROM = make([]byte, 0x100)
		copy(b.bootROM, data[:0x100])
		b.bootEnabled = true
	} else {
		b.bootROM = nil
		b.bootEnabled = false
	}
}

func (b *Bus) Read(addr uint16) byte {
	switch {
	case addr < 0x8000:
		if b.bootEnabled && addr < 0x100 {
			return b.bootROM[addr]
		}
		return b.cart.Read(addr)
	case addr >= 0x8000 && addr <= 0x9FFF:
		return b.ppu.CPURead(addr)
	case addr >= 0xA000 && addr <= 0xBFFF:
		return b.cart.Read(addr)
	case addr >= 0xC000 && addr <= 0xDFFF:
		return b.wram[addr-0xC000]
	case addr >= 0xE000 && addr <= 0xFDFF:
		return 0xFF // echo RAM: forbidden
	case addr >= 0xFE00 && addr <= 0xFE9F:
		if b.dmaActive {
			return 0xFF
		}
		return b.ppu.CPURead(addr)
	case addr >= 0xFEA0 && addr <= 0xFEFF:
		return 0xFF // unusable: forbidden
	case addr == 0xFFFF:
		return b.ie
	case addr >= 0xFF00 && addr <= 0xFF7F:
		return b.readIO(addr)
	case addr >= 0xFF80 && addr <= 0xFFFE:
		return b.hram[addr-0xFF80]
	default:
		return 0xFF
	}
}

func (b *Bus) Write(addr uint16, value byte) {
	switch {
	case addr < 0x8000:
		b.cart.Write(addr, value)
	case addr >= 0x8000 && addr <= 0x9FFF:
		b.ppu.CPUWrite(addr, value)
	case addr >= 0xA000 && addr <= 0xBFFF:
		b.cart.Write(addr, value)
	case addr >= 0xC000 && addr <= 0xDFFF:
		b.wram[addr-0xC000] = value
	case addr >= 0xE000 && addr <= 0xFDFF:
		// echo RAM: forbidden, writes dropped
	case addr >= 0xFE00 && addr <= 0xFE9F:
		if b.dmaActive {
			return
		}
		b.ppu.CPUWrite(addr, value)
	case addr >= 0xFEA0 && addr <= 0xFEFF:
		// unusable: forbidden, writes dropped
	case addr == 0xFFFF:
		b.ie = value
	case addr >= 0xFF00 && addr <= 0xFF7F:
		b.writeIO(addr, value)
	case addr >= 0xFF80 && addr <= 0xFFFE:
		b.hram[addr-0xFF80] = value
	}
}

func (b *Bus) Read16(addr uint16) uint16 {
	lo := uint16(b.Read(addr))
	hi := uint16(b.Read(addr + 1))
	return lo | (hi << 8)
}

func (b *Bus) Write16(addr uint16, v uint16) {
	b.Write(addr, byte(v))
	b.Write(addr+1, byte(v>>8))
}

func (b *Bus) readIO(addr uint16) byte {
	switch {
	case addr == 0xFF00:
		return b.readP1()
	case addr == 0xFF04:
		return byte(b.divInternal >> 8)
	case addr == 0xFF05:
		return b.tima
	case addr == 0xFF06:
		return b.tma
	case addr == 0xFF07:
		return 0xF8 | (b.tac & 0x07)
	case addr == 0xFF0F:
		return 0xE0 | (b.ifr & 0x1F)
	case addr >= 0xFF40 && addr <= 0xFF4B:
		return b.ppu.CPURead(addr)
	default:
		return 0xFF
	}
}

func (b *Bus) writeIO(addr uint16, value byte) {
	switch {
	case addr == 0xFF00:
		b.p1Select = value & 0x30
	case addr == 0xFF04:
		b.setDivider(0)
	case addr == 0xFF05:
		b.tima = value
		b.timaReloadPending = 0 // write cancels a pending reload
	case addr == 0xFF06:
		b.tma = value
	case addr == 0xFF07:
		b.setTAC(value & 0x07)
	case addr == 0xFF0F:
		b.ifr = value & 0x1F
	case addr == 0xFF46:
		b.startOAMDMA(value)
	case addr >= 0xFF40 && addr <= 0xFF45, addr >= 0xFF47 && addr <= 0xFF4B:
		b.ppu.CPUWrite(addr, value)
	case addr == 0xFF50:
		if value != 0 {
			b.bootEnabled = false
		}
	}
}

func (b *Bus) readP1() byte {
	sel := b.p1Select
	lines := byte(0x0F)
	if (sel & 0x10) == 0 { // P14: D-pad selected
		lines &= b.buttons >> 4
	}
	if (sel & 0x20) == 0 { // P15: buttons selected
		lines &= b.buttons
	}
	return 0xC0 | sel | (lines & 0x0F)
}

// SetButtonState updates the external button mask (1=released) and raises a
// joypad interrupt when any currently-selected line newly goes low.
func (b *Bus) SetButtonState(mask byte) {
	before := b.readP1() & 0x0F
	b.buttons = mask
	after := b.readP1() & 0x0F
	if (before &^ after) != 0 {
		b.requestInterrupt(4)
	}
}

func (b *Bus) startOAMDMA(srcHigh byte) {
	b.dmaActive = true
	b.dmaCyclesLeft = 160
	b.dmaSrcBase = uint16(srcHigh) << 8
	b.dmaIndex = 0
}

// Tick advances the timer, PPU, and any in-flight OAM DMA by cycles dots.
func (b *Bus) Tick(cycles int) {
	for i := 0; i < cycles; i++ {
		b.tickTimer1()
		b.ppu.Tick(1)
		b.tickDMA1()
	}
}

func (b *Bus) tickDMA1() {
	if !b.dmaActive {
		return
	}
	// Model as one byte copied per cycle until 160 bytes are moved; this is
	// an approximation of the real 160-cycle DMA but keeps OAM blocked for
	// the whole transfer and yields a byte-exact result at completion.
	if b.dmaIndex < 160 {
		v := b.dmaRead(b.dmaSrcBase + uint16(b.dmaIndex))
		b.ppu.DMAWriteOAM(b.dmaIndex, v)
		b.dmaIndex++
	}
	b.dmaCyclesLeft--
	if b.dmaCyclesLeft <= 0 {
		b.dmaActive = false
	}
}

// dmaRead reads a DMA source byte without routing through OAM-blocking logic.
func (b *Bus) dmaRead(addr uint16) byte {
	switch {
	case addr < 0x8000:
		return b.cart.Read(addr)
	case addr >= 0x8000 && addr <= 0x9FFF:
		return b.ppu.RawVRAM(addr)
	case addr >= 0xA000 && addr <= 0xBFFF:
		return b.cart.Read(addr)
	case addr >= 0xC000 && addr <= 0xDFFF:
		return b.wram[addr-0xC000]
	case addr >= 0xE000 && addr <= 0xFDFF:
		return b.wram[addr-0xE000]
	default:
		return 0xFF
	}
}

// timerInput reports the falling-edge-detector input: TAC-enabled AND the
// divider bit selected by TAC's low 2 bits.
func (b *Bus) timerInput() bool {
	if (b.tac & 0x04) == 0 {
		return false
	}
	var bit uint
	switch b.tac & 0x03 {
	case 0:
		bit = 9
	case 1:
		bit = 3
	case 2:
		bit = 5
	case 3:
		bit = 7
	}
	return (b.divInternal>>bit)&1 != 0
}

func (b *Bus) setDivider(v uint16) {
	before := b.timerInput()
	b.divInternal = v
	after := b.timerInput()
	if before && !after {
		b.incrementTIMA()
	}
}

func (b *Bus) setTAC(v byte) {
	before := b.timerInput()
	b.tac = v
	after := b.timerInput()
	if before && !after {
		b.incrementTIMA()
	}
}

func (b *Bus) incrementTIMA() {
	if b.tima == 0xFF {
		b.tima = 0
		b.timaReloadPending = 4
	} else {
		b.tima++
	}
}

func (b *Bus) tickTimer1() {
	before := b.timerInput()
	b.divInternal++
	after := b.timerInput()
	if before && !after {
		b.incrementTIMA()
	}
	if b.timaReloadPending > 0 {
		b.timaReloadPending--
		if b.timaReloadPending == 0 {
			b.tima = b.tma
			b.requestInterrupt(2)
		}
	}
}
