// Package diag provides a one-shot struct-graph dump of the emulator's live
// state, used by cmd/gbcore's -memviz flag as an offline debugging aid. It
// is never on the hot path: Dump is meant to be called once, typically right
// before the host exits or right after loading a ROM.
package diag

import (
	"os"

	"github.com/bradleyjkemp/memviz"
)

// Dump renders root's struct graph (following pointers) to a Graphviz .dot
// file at path. root is usually the emu.Machine or internal/bus.Bus.
func Dump(path string, root interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	memviz.Map(f, root)
	return nil
}
