// Command gbdebug is a raw-terminal REPL around the core: step instructions,
// inspect registers and memory, and set PC breakpoints, without a window.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/term/termios"
	"golang.org/x/sys/unix"

	"github.com/dmgboy/dmgcore/internal/cart"
	"github.com/dmgboy/dmgcore/internal/emu"
)

// rawTerm puts stdin into cbreak mode for the session (so a stray Ctrl-C
// or resize doesn't leave the shell in a bad state) and restores canonical
// mode on exit. It only needs that one mode switch, unlike a full console
// UI with geometry tracking.
type rawTerm struct {
	fd      uintptr
	canAttr unix.Termios
}

func newRawTerm(f *os.File) (*rawTerm, error) {
	rt := &rawTerm{fd: f.Fd()}
	if err := termios.Tcgetattr(rt.fd, &rt.canAttr); err != nil {
		return nil, err
	}
	cbreakAttr := rt.canAttr
	termios.Cfmakecbreak(&cbreakAttr)
	if err := termios.Tcsetattr(rt.fd, termios.TCIFLUSH, &cbreakAttr); err != nil {
		return nil, err
	}
	return rt, nil
}

func (rt *rawTerm) restore() {
	_ = termios.Tcsetattr(rt.fd, termios.TCIFLUSH, &rt.canAttr)
}

func main() {
	romPath := flag.String("rom", "", "path to ROM (.gb)")
	bootPath := flag.String("bootrom", "", "optional DMG boot ROM (256 bytes)")
	forceMBC := flag.String("force-mbc", "auto", "override MBC detection: auto|none|mbc1|mbc3")
	skipBoot := flag.Bool("skip-boot", false, "ignore any supplied boot ROM and start at 0x0100")
	flag.Parse()

	if *romPath == "" {
		log.Fatal("no ROM given: pass -rom path/to/game.gb")
	}
	rom, err := os.ReadFile(*romPath)
	if err != nil {
		log.Fatalf("read ROM: %v", err)
	}
	var boot []byte
	if *bootPath != "" {
		boot, err = os.ReadFile(*bootPath)
		if err != nil {
			log.Fatalf("read boot ROM: %v", err)
		}
	}

	cfg := emu.Config{ForceMBC: parseMBCKind(*forceMBC), SkipBoot: *skipBoot}
	m := emu.New(cfg)
	var fatal error
	m.SetFatalErrorCallback(func(e error) { fatal = e })
	if err := m.LoadCartridge(rom, boot); err != nil {
		log.Fatalf("load cartridge: %v", err)
	}

	rt, err := newRawTerm(os.Stdin)
	if err != nil {
		log.Fatalf("terminal setup: %v", err)
	}
	defer rt.restore()

	d := &debugger{m: m, out: os.Stdout}
	d.printRegs()

	breakpoints := map[uint16]bool{}
	scan := bufio.NewScanner(os.Stdin)
	fmt.Fprint(d.out, "(gbdebug) ")
	for scan.Scan() {
		line := strings.TrimSpace(scan.Text())
		fields := strings.Fields(line)
		if len(fields) == 0 {
			fmt.Fprint(d.out, "(gbdebug) ")
			continue
		}
		switch fields[0] {
		case "step", "s":
			n := 1
			if len(fields) > 1 {
				n, _ = strconv.Atoi(fields[1])
			}
			for i := 0; i < n && fatal == nil; i++ {
				if err := m.Tick(); err != nil {
					fmt.Fprintf(d.out, "fatal: %v\n", err)
					break
				}
			}
			d.printRegs()
		case "regs", "r":
			d.printRegs()
		case "break", "b":
			if len(fields) < 2 {
				fmt.Fprintln(d.out, "usage: break <addr>")
				break
			}
			addr, err := parseU16(fields[1])
			if err != nil {
				fmt.Fprintf(d.out, "bad address: %v\n", err)
				break
			}
			breakpoints[addr] = true
			fmt.Fprintf(d.out, "breakpoint set at 0x%04X\n", addr)
		case "continue", "c":
			for fatal == nil {
				if err := m.Tick(); err != nil {
					fmt.Fprintf(d.out, "fatal: %v\n", err)
					break
				}
				if breakpoints[m.CPU().PC] {
					fmt.Fprintf(d.out, "hit breakpoint at 0x%04X\n", m.CPU().PC)
					break
				}
			}
			d.printRegs()
		case "mem", "m":
			if len(fields) < 2 {
				fmt.Fprintln(d.out, "usage: mem <addr> [count]")
				break
			}
			addr, err := parseU16(fields[1])
			if err != nil {
				fmt.Fprintf(d.out, "bad address: %v\n", err)
				break
			}
			count := 16
			if len(fields) > 2 {
				count, _ = strconv.Atoi(fields[2])
			}
			d.printMem(addr, count)
		case "quit", "q":
			return
		case "help", "h":
			fmt.Fprintln(d.out, "commands: step [n], regs, break <addr>, continue, mem <addr> [count], quit")
		default:
			fmt.Fprintf(d.out, "unknown command %q (try 'help')\n", fields[0])
		}
		fmt.Fprint(d.out, "(gbdebug) ")
	}
}

type debugger struct {
	m   *emu.Machine
	out *os.File
}

func (d *debugger) printRegs() {
	c := d.m.CPU()
	fmt.Fprintf(d.out, "PC=%04X SP=%04X A=%02X F=%02X B=%02X C=%02X D=%02X E=%02X H=%02X L=%02X\n",
		c.PC, c.SP, c.A, c.F, c.B, c.C, c.D, c.E, c.H, c.L)
}

func (d *debugger) printMem(addr uint16, count int) {
	b := d.m.Bus()
	for i := 0; i < count; i++ {
		fmt.Fprintf(d.out, "%04X: %02X\n", addr, b.Read(addr))
		addr++
	}
}

func parseU16(s string) (uint16, error) {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
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
