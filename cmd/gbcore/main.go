// Command gbcore is the ebiten-backed host for the DMG core: it loads a
// ROM (and optional boot image), wires battery RAM persistence, and either
// opens a window or runs headless for scripted testing.
package main

import (
	"flag"
	"fmt"
	"hash/crc32"
	"image"
	"image/png"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dmgboy/dmgcore/internal/cart"
	"github.com/dmgboy/dmgcore/internal/debugsrv"
	"github.com/dmgboy/dmgcore/internal/diag"
	"github.com/dmgboy/dmgcore/internal/emu"
	"github.com/dmgboy/dmgcore/internal/ui"
)

type cliFlags struct {
	ROMPath  string
	BootROM  string
	Scale    int
	Title    string
	SaveRAM  bool
	Debug    bool
	MemViz   string
	ForceMBC string
	SkipBoot bool
	FrameLimiterHack bool

	Headless bool
	Frames   int
	PNGOut   string
	Expect   string
}

func parseFlags() cliFlags {
	var f cliFlags
	flag.StringVar(&f.ROMPath, "rom", "", "path to ROM (.gb)")
	flag.StringVar(&f.BootROM, "bootrom", "", "optional DMG boot ROM (256 bytes)")
	flag.IntVar(&f.Scale, "scale", 3, "window scale")
	flag.StringVar(&f.Title, "title", "gbcore", "window title")
	flag.BoolVar(&f.SaveRAM, "save", true, "persist battery RAM to <rom>.sav on exit, load on start")
	flag.BoolVar(&f.Debug, "debug", false, "start the live-stats dashboard")
	flag.StringVar(&f.MemViz, "memviz", "", "write a one-shot struct-graph .dot file to this path and exit")
	flag.StringVar(&f.ForceMBC, "force-mbc", "auto", "override MBC detection: auto|none|mbc1|mbc3")
	flag.BoolVar(&f.SkipBoot, "skip-boot", false, "ignore any supplied boot ROM and start at 0x0100")
	flag.BoolVar(&f.FrameLimiterHack, "framelimiter-hack", false, "hint only; the core never skips cycles for pacing")

	flag.BoolVar(&f.Headless, "headless", false, "run without a window")
	flag.IntVar(&f.Frames, "frames", 300, "frames to run in headless mode")
	flag.StringVar(&f.PNGOut, "outpng", "", "write the final framebuffer to a PNG at this path")
	flag.StringVar(&f.Expect, "expect", "", "assert the final framebuffer CRC32 (hex)")
	flag.Parse()
	return f
}

func parseMBCKind(s string) cart.MBCKind {
	switch strings.ToLower(s) {
	case "none":
		return cart.KindNone
	case "mbc1":
		return cart.KindMBC1
	case "mbc3":
		return cart.KindMBC3
	default:
		return cart.KindAuto
	}
}

func mustRead(path string) []byte {
	if path == "" {
		return nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("read %s: %v", path, err)
	}
	return b
}

func savePathFor(romPath string) string {
	if romPath == "" {
		return ""
	}
	return strings.TrimSuffix(romPath, ".gb") + ".sav"
}

func saveFramePNG(pix []byte, w, h int, path string) error {
	img := &image.RGBA{
		Pix:    append([]byte(nil), pix...),
		Stride: 4 * w,
		Rect:   image.Rect(0, 0, w, h),
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

func runHeadless(m *emu.Machine, frames int, pngPath, expectCRC string) error {
	if frames <= 0 {
		frames = 1
	}
	start := time.Now()
	for i := 0; i < frames; i++ {
		if err := m.RunFrame(); err != nil {
			return err
		}
	}
	dur := time.Since(start)

	fb := m.Framebuffer()
	crc := crc32.ChecksumIEEE(fb)
	fps := float64(frames) / dur.Seconds()
	log.Printf("headless: frames=%d elapsed=%s fps=%.2f fb_crc32=%08x", frames, dur.Truncate(time.Millisecond), fps, crc)

	if pngPath != "" {
		if err := saveFramePNG(fb, 160, 144, pngPath); err != nil {
			return fmt.Errorf("write PNG: %w", err)
		}
		log.Printf("wrote %s", pngPath)
	}
	if expectCRC != "" {
		want := strings.TrimPrefix(strings.ToLower(expectCRC), "0x")
		got := fmt.Sprintf("%08x", crc)
		if got != want {
			return fmt.Errorf("checksum mismatch: got %s, want %s", got, want)
		}
	}
	return nil
}

func main() {
	f := parseFlags()
	rom := mustRead(f.ROMPath)
	boot := mustRead(f.BootROM)

	if len(rom) >= 0x150 {
		if h, err := cart.ParseHeader(rom); err == nil {
			log.Printf("ROM: %q type=%s banks=%d ram=%dB", h.Title, h.CartTypeStr, h.ROMBanks, h.RAMSizeBytes)
		}
	}

	cfg := emu.Config{
		Debug:            f.Debug,
		ForceMBC:         parseMBCKind(f.ForceMBC),
		SkipBoot:         f.SkipBoot,
		FrameLimiterHack: f.FrameLimiterHack,
	}
	m := emu.New(cfg)
	m.SetFatalErrorCallback(func(err error) {
		log.Fatalf("core fatal error: %v", err)
	})

	if len(rom) == 0 {
		log.Fatal("no ROM given: pass -rom path/to/game.gb")
	}
	if err := m.LoadCartridge(rom, boot); err != nil {
		log.Fatalf("load cartridge: %v", err)
	}

	savPath := savePathFor(f.ROMPath)
	if f.SaveRAM && savPath != "" {
		if data, err := os.ReadFile(savPath); err == nil {
			if m.LoadBattery(data) {
				log.Printf("loaded save RAM: %s (%d bytes)", savPath, len(data))
			}
		}
	}

	if f.Debug {
		srv := debugsrv.New("", "")
		srv.Start()
		m.SetMetricsCallback(func(frame uint64, instructionsPS float64, ppuModeSwitches uint64) {
			srv.Report(debugsrv.Snapshot{
				Frame:           frame,
				InstructionsPS:  instructionsPS,
				PPUModeSwitches: ppuModeSwitches,
			})
		})
	}

	if f.MemViz != "" {
		if err := diag.Dump(f.MemViz, m.Bus()); err != nil {
			log.Fatalf("memviz dump: %v", err)
		}
		log.Printf("wrote %s", f.MemViz)
		return
	}

	exitCode := 0
	if f.Headless {
		if err := runHeadless(m, f.Frames, f.PNGOut, f.Expect); err != nil {
			log.Print(err)
			exitCode = 1
		}
	} else {
		app := ui.NewApp(ui.Config{Title: f.Title, Scale: f.Scale}, m)
		if err := app.Run(); err != nil {
			log.Print(err)
			exitCode = 1
		}
	}

	if f.SaveRAM && savPath != "" {
		if data, ok := m.SaveBattery(); ok {
			if err := os.WriteFile(savPath, data, 0644); err == nil {
				log.Printf("wrote %s", savPath)
			}
		}
	}
	os.Exit(exitCode)
}
