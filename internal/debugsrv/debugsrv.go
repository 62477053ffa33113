// Package debugsrv is an optional live-stats HTTP server started by
// cmd/gbcore's -debug flag. It never touches emulator state directly: the
// Machine pushes a Snapshot once per frame under a mutex, and the HTTP
// goroutine only ever reads the latest copy, preserving the core's
// single-mutator ordering guarantee.
package debugsrv

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-echarts/statsview"
	"github.com/go-echarts/statsview/viewer"
	"github.com/rs/cors"
)

// Snapshot is the per-frame sample the Machine reports.
type Snapshot struct {
	Frame           uint64
	InstructionsPS  float64
	PPUModeSwitches uint64
}

// Server owns the latest Snapshot, the statsview runtime dashboard (on
// StatsAddr), and a small CORS-wrapped JSON endpoint for core-specific
// metrics (on SnapshotAddr, a separate listener so it never fights
// statsview's own internal http.Server for the same port).
type Server struct {
	StatsAddr    string
	SnapshotAddr string

	mu   sync.Mutex
	last Snapshot
}

// New creates a debug server. Empty addrs fall back to the teacher's
// conventional statsview port and the next one up for core metrics.
func New(statsAddr, snapshotAddr string) *Server {
	if statsAddr == "" {
		statsAddr = "localhost:12600"
	}
	if snapshotAddr == "" {
		snapshotAddr = "localhost:12601"
	}
	return &Server{StatsAddr: statsAddr, SnapshotAddr: snapshotAddr}
}

// Report records the latest per-frame sample. Called once per VBlank from
// the main loop; safe to call from the single emulator goroutine only.
func (s *Server) Report(snap Snapshot) {
	s.mu.Lock()
	s.last = snap
	s.mu.Unlock()
}

func (s *Server) snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Start launches the statsview runtime dashboard and the core-metrics JSON
// endpoint as two background goroutines; it returns immediately.
func (s *Server) Start() {
	viewer.SetConfiguration(viewer.WithAddr(s.StatsAddr))
	mgr := statsview.New()
	go mgr.Start()

	mux := http.NewServeMux()
	mux.HandleFunc("/debug/core", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s.snapshot())
	})
	handler := cors.AllowAll().Handler(mux)
	go func() {
		_ = http.ListenAndServe(s.SnapshotAddr, handler)
	}()

	fmt.Printf("debug dashboard: http://%s/debug/statsview  core metrics: http://%s/debug/core\n",
		s.StatsAddr, s.SnapshotAddr)
}
