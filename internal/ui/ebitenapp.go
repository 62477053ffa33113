// Package ui hosts the emulator core behind an ebiten window: keyboard to
// Buttons mapping, one RunFrame per update, and the 160x144 texture blit.
package ui

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"

	"github.com/dmgboy/dmgcore/internal/emu"
)

type App struct {
	cfg Config
	m   *emu.Machine
	tex *ebiten.Image

	paused bool
	fast   bool

	lastErr error
}

func NewApp(cfg Config, m *emu.Machine) *App {
	if cfg.Scale <= 0 {
		cfg.Scale = 3
	}
	if cfg.Title == "" {
		cfg.Title = "dmgcore"
	}
	ebiten.SetWindowTitle(cfg.Title)
	ebiten.SetWindowSize(160*cfg.Scale, 144*cfg.Scale)
	return &App{cfg: cfg, m: m}
}

func (a *App) Run() error {
	a.m.SetFatalErrorCallback(func(err error) { a.lastErr = err })
	return ebiten.RunGame(a)
}

func (a *App) Update() error {
	if a.lastErr != nil {
		return a.lastErr
	}

	var btn emu.Buttons
	if ebiten.IsKeyPressed(ebiten.KeyArrowRight) {
		btn.Right = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyArrowLeft) {
		btn.Left = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyArrowUp) {
		btn.Up = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyArrowDown) {
		btn.Down = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyZ) {
		btn.A = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyX) {
		btn.B = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyEnter) {
		btn.Start = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyShiftRight) {
		btn.Select = true
	}
	a.m.SetButtons(btn)

	if ebiten.IsKeyPressed(ebiten.KeyP) {
		a.paused = !a.paused
	}
	a.fast = ebiten.IsKeyPressed(ebiten.KeyTab)

	if ebiten.IsKeyPressed(ebiten.KeyF12) {
		_ = a.saveScreenshot()
	}

	if a.paused {
		return nil
	}
	frames := 1
	if a.fast {
		frames = 5
	}
	for i := 0; i < frames; i++ {
		if err := a.m.RunFrame(); err != nil {
			a.lastErr = err
			return err
		}
	}
	return nil
}

func (a *App) Draw(screen *ebiten.Image) {
	if a.tex == nil {
		a.tex = ebiten.NewImage(160, 144)
	}
	a.tex.WritePixels(a.m.Framebuffer())
	screen.DrawImage(a.tex, nil)
	if a.paused {
		ebitenutil.DebugPrintAt(screen, "PAUSED", 4, 4)
	}
}

func (a *App) Layout(outsideW, outsideH int) (int, int) { return 160, 144 }

func (a *App) saveScreenshot() error {
	fb := a.m.Framebuffer()
	img := &image.RGBA{
		Pix:    append([]byte(nil), fb...),
		Stride: 4 * 160,
		Rect:   image.Rect(0, 0, 160, 144),
	}
	name := fmt.Sprintf("screenshot_%s.png", time.Now().Format("20060102_150405"))
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}
