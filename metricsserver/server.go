// Package metricsserver exposes /gc/stats, /ic/stats, and /jit/stats as JSON
// over a small debug HTTP endpoint, gated by config.Metrics.Enabled.
package metricsserver

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"

	"github.com/aerocore/aerocore/corelog"
	"github.com/aerocore/aerocore/gc"
	"github.com/aerocore/aerocore/iccache"
)

// GCSource is satisfied by *gc.GC.
type GCSource interface {
	Stats() gc.Stats
	CurrentPhase() gc.Phase
	HeapSize() int
	UsedMemory() int
}

// ICSource is satisfied by *iccache.Manager.
type ICSource interface {
	Stats() iccache.ManagerStats
}

// Server is a tiny JSON debug endpoint, not meant to survive exposure to
// untrusted networks (no auth): bind it to loopback, per Defaults.ListenAddr.
type Server struct {
	addr   string
	router *httprouter.Router
	srv    *http.Server
	gc     GCSource
	ic     ICSource
}

func New(addr string, gcSrc GCSource, icSrc ICSource) *Server {
	s := &Server{addr: addr, router: httprouter.New(), gc: gcSrc, ic: icSrc}
	s.router.GET("/gc/stats", s.handleGCStats)
	s.router.GET("/ic/stats", s.handleICStats)
	s.router.GET("/jit/stats", s.handleJITStats)
	return s
}

// Start binds the listener and serves in a background goroutine. Call Stop
// to shut it down gracefully.
func (s *Server) Start() error {
	handler := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet},
	}).Handler(s.router)
	handler = rateLimited(handler, 50, 10)

	s.srv = &http.Server{Addr: s.addr, Handler: handler}
	ln, err := newListener(s.addr)
	if err != nil {
		return err
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			corelog.Error("metricsserver: serve failed", "err", err)
		}
	}()
	corelog.Info("metricsserver: listening", "addr", s.addr)
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleGCStats(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, map[string]any{
		"phase":        s.gc.CurrentPhase().String(),
		"heap_size":    s.gc.HeapSize(),
		"used_memory":  s.gc.UsedMemory(),
		"stats":        s.gc.Stats(),
	})
}

func (s *Server) handleICStats(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, s.ic.Stats())
}

func (s *Server) handleJITStats(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	// The JIT generator keeps no state between compiles, and neither it nor
	// the code cache it feeds keeps counters, so there is nothing to report.
	writeJSON(w, map[string]any{"note": "no JIT or code cache counters are collected"})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		corelog.Error("metricsserver: encode failed", "err", err)
	}
}
