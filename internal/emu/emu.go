// Package emu wires the CPU, Bus, and PPU together into a single-tick
// Machine: one cpu.Step() per Tick, cycles flow into the bus (which drives
// the PPU and timer) as a side effect of that step, and a frame callback
// fires on VBlank entry.
package emu

import (
	"time"

	"github.com/dmgboy/dmgcore/internal/bus"
	"github.com/dmgboy/dmgcore/internal/cart"
	"github.com/dmgboy/dmgcore/internal/cpu"
)

// Buttons is the host's view of the eight DMG input lines.
type Buttons struct {
	A, B, Start, Select   bool
	Up, Down, Left, Right bool
}

// mask packs Buttons into the bus's external button convention: one bit
// per line, 1 = released.
func (b Buttons) mask() byte {
	m := byte(0xFF)
	clear := func(pressed bool, bit byte) {
		if pressed {
			m &^= bit
		}
	}
	clear(b.A, bus.JoypA)
	clear(b.B, bus.JoypB)
	clear(b.Select, bus.JoypSelectBtn)
	clear(b.Start, bus.JoypStart)
	clear(b.Right, bus.JoypRight<<4)
	clear(b.Left, bus.JoypLeft<<4)
	clear(b.Up, bus.JoypUp<<4)
	clear(b.Down, bus.JoypDown<<4)
	return m
}

// Config carries the host-supplied options named in the external interface:
// a debug flag surfaced to tooling, an MBC override, a boot-ROM skip, and a
// framelimiter hint. FrameLimiterHack is never used to skip core cycles —
// pacing belongs entirely to the host loop.
type Config struct {
	Debug            bool
	ForceMBC         cart.MBCKind
	SkipBoot         bool
	FrameLimiterHack bool
}

// Machine owns the CPU, Bus (and through it, the PPU) for one loaded
// cartridge and drives them one CPU instruction at a time.
type Machine struct {
	cfg Config

	bus    *bus.Bus
	cpu    *cpu.CPU
	header *cart.Header

	onFrame   func()
	onFatal   func(error)
	onMetrics func(frame uint64, instructionsPS float64, ppuModeSwitches uint64)

	lastVBlank bool
	lastMode   byte

	frameCount       uint64
	instrSinceSample uint64
	modeSwitchSince  uint64
	lastSample       time.Time
}

// New creates an unloaded Machine; call LoadCartridge before ticking it.
func New(cfg Config) *Machine {
	return &Machine{cfg: cfg}
}

// LoadCartridge parses the ROM header, builds the matching MBC, and puts
// the CPU in either boot-ROM or post-boot-ROM state depending on cfg and
// on whether a boot image was supplied.
func (m *Machine) LoadCartridge(rom []byte, boot []byte) error {
	c, h, err := cart.NewCartridge(rom, m.cfg.ForceMBC)
	if err != nil {
		return err
	}
	m.header = h

	b := bus.New(c)
	useBoot := !m.cfg.SkipBoot && len(boot) >= 0x100
	if useBoot {
		b.SetBootROM(boot)
	}

	cp := cpu.New(b)
	if useBoot {
		cp.SP = 0xFFFE
		cp.PC = 0x0000
		cp.IME = false
	} else {
		cp.ResetNoBoot()
		applyPostBootIO(b)
	}

	m.bus = b
	m.cpu = cp
	m.lastVBlank = false
	m.lastMode = 0
	m.frameCount = 0
	m.instrSinceSample = 0
	m.modeSwitchSince = 0
	m.lastSample = time.Time{}
	return nil
}

// applyPostBootIO sets the DMG post-boot register defaults so a ROM started
// at 0x0100 without a boot image still has the LCD enabled and the IO
// registers at their documented power-on-after-boot values.
func applyPostBootIO(b *bus.Bus) {
	b.Write(0xFF00, 0xCF)
	b.Write(0xFF05, 0x00)
	b.Write(0xFF06, 0x00)
	b.Write(0xFF07, 0xF8)
	b.Write(0xFF40, 0x91)
	b.Write(0xFF42, 0x00)
	b.Write(0xFF43, 0x00)
	b.Write(0xFF45, 0x00)
	b.Write(0xFF47, 0xFC)
	b.Write(0xFF48, 0xFF)
	b.Write(0xFF49, 0xFF)
	b.Write(0xFF4A, 0x00)
	b.Write(0xFF4B, 0x00)
	b.Write(0xFFFF, 0x00)
}

// Header exposes the parsed cartridge header, e.g. for a title bar.
func (m *Machine) Header() *cart.Header { return m.header }

// Bus exposes the owned Bus, e.g. for internal/diag's struct-graph dump.
func (m *Machine) Bus() *bus.Bus { return m.bus }

// CPU exposes the owned CPU, e.g. for cmd/gbdebug's register/step commands.
func (m *Machine) CPU() *cpu.CPU { return m.cpu }

// SetFrameCallback installs the callback fired once per VBlank entry.
func (m *Machine) SetFrameCallback(fn func()) { m.onFrame = fn }

// SetFatalErrorCallback installs the callback fired when Tick returns an
// UnknownOpcodeError; the host is expected to stop driving the machine.
func (m *Machine) SetFatalErrorCallback(fn func(error)) { m.onFatal = fn }

// SetMetricsCallback installs the callback pushed once per frame (on VBlank
// entry) with the running frame count, the instructions/sec and PPU
// mode-switches/sec observed since the previous push. internal/debugsrv
// wraps this into a Snapshot.
func (m *Machine) SetMetricsCallback(fn func(frame uint64, instructionsPS float64, ppuModeSwitches uint64)) {
	m.onMetrics = fn
}

// SetButtons updates the input latch; a falling edge on any selected line
// raises a joypad interrupt inside the bus.
func (m *Machine) SetButtons(b Buttons) {
	if m.bus == nil {
		return
	}
	m.bus.SetButtonState(b.mask())
}

// Framebuffer returns the PPU's current 160x144 RGBA pixel buffer.
func (m *Machine) Framebuffer() []byte { return m.bus.PPU().Framebuffer() }

// Tick executes exactly one CPU instruction (or interrupt service, or one
// HALT/STOP idle step). The cycles it consumes drive the PPU and timer as a
// side effect inside the bus. The frame callback fires once, on the
// transition into VBlank mode; the metrics callback, if installed, fires
// right after it with the instructions/sec and PPU mode-switches/sec
// observed since the last frame.
func (m *Machine) Tick() error {
	if m.cpu == nil {
		return nil
	}
	_, err := m.cpu.Step()
	if err != nil {
		if m.onFatal != nil {
			m.onFatal(err)
		}
		return err
	}
	m.instrSinceSample++

	mode := m.bus.PPU().CPURead(0xFF41) & 0x03
	if mode != m.lastMode {
		m.modeSwitchSince++
		m.lastMode = mode
	}

	inVBlank := mode == 1
	if inVBlank && !m.lastVBlank {
		m.frameCount++
		if m.onFrame != nil {
			m.onFrame()
		}
		m.reportMetrics()
	}
	m.lastVBlank = inVBlank
	return nil
}

// reportMetrics pushes one Snapshot's worth of counters to onMetrics and
// resets the per-sample accumulators. Called only from Tick, so it never
// races with the goroutine driving the emulator.
func (m *Machine) reportMetrics() {
	if m.onMetrics == nil {
		return
	}
	now := time.Now()
	elapsed := now.Sub(m.lastSample).Seconds()
	if m.lastSample.IsZero() || elapsed <= 0 {
		elapsed = 1.0 / 60.0 // one DMG frame, as a reasonable first-sample default
	}
	instructionsPS := float64(m.instrSinceSample) / elapsed
	modeSwitchesPS := uint64(float64(m.modeSwitchSince) / elapsed)
	m.onMetrics(m.frameCount, instructionsPS, modeSwitchesPS)

	m.lastSample = now
	m.instrSinceSample = 0
	m.modeSwitchSince = 0
}

// RunFrame ticks until one full frame has been presented (or a fatal error
// occurs), returning that error if any.
func (m *Machine) RunFrame() error {
	fired := false
	prevOnFrame := m.onFrame
	m.SetFrameCallback(func() {
		fired = true
		if prevOnFrame != nil {
			prevOnFrame()
		}
	})
	defer m.SetFrameCallback(prevOnFrame)
	for !fired {
		if err := m.Tick(); err != nil {
			return err
		}
	}
	return nil
}

// SaveBattery returns a copy of cartridge RAM for battery-backed carts.
func (m *Machine) SaveBattery() ([]byte, bool) {
	if m.bus == nil {
		return nil, false
	}
	if bb, ok := m.bus.Cart().(cart.BatteryBacked); ok {
		data := bb.SaveRAM()
		if len(data) == 0 {
			return nil, false
		}
		return data, true
	}
	return nil, false
}

// LoadBattery restores previously-saved cartridge RAM, if supported.
func (m *Machine) LoadBattery(data []byte) bool {
	if m.bus == nil {
		return false
	}
	if bb, ok := m.bus.Cart().(cart.BatteryBacked); ok {
		bb.LoadRAM(data)
		return true
	}
	return false
}
