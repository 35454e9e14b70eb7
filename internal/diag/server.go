// Package diag runs the debug/diagnostics HTTP server shared by the cmd/
// tools: the expvar handler (a packetcache.Cache's counters appear there
// only once BindExpvar is called, which the cmd/ tools do not do), pprof, and a live statsviz dashboard, the way the teacher's
// server.MetricsServer wires them up.
package diag

import (
	"context"
	"expvar"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"sync"
	"time"

	"github.com/arl/statsviz"
	gopsutilcpu "github.com/shirou/gopsutil/v3/cpu"
	gopsutilmem "github.com/shirou/gopsutil/v3/mem"

	"github.com/e57io/e57cv/config"
)

// Server is the debug/diagnostics HTTP server: expvar metrics, pprof
// profiling endpoints, and a statsviz live dashboard.
type Server struct {
	server  *http.Server
	logger  *slog.Logger
	mu      sync.Mutex
	started bool
}

// New builds a Server from cfg. Handlers are registered per the enabled
// flags; neither New nor Start consults cfg.Enabled.
func New(cfg config.DebugConfig, logger *slog.Logger) *Server {
	logger = logger.With("component", "diag")
	mux := http.NewServeMux()

	if cfg.PProfEnabled {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	mux.Handle("/metrics", expvar.Handler())
	mux.HandleFunc("/host", func(w http.ResponseWriter, r *http.Request) {
		percents, _ := gopsutilcpu.Percent(0, false)
		vm, _ := gopsutilmem.VirtualMemory()
		cpuPct := 0.0
		if len(percents) > 0 {
			cpuPct = percents[0]
		}
		memUsed := uint64(0)
		if vm != nil {
			memUsed = vm.Used
		}
		fmt.Fprintf(w, "cpu_percent %.2f\nmem_used_bytes %d\n", cpuPct, memUsed)
	})

	if cfg.StatsvizEnabled {
		_ = statsviz.Register(mux, statsviz.Root("/viz"), statsviz.SendFrequency(250*time.Millisecond))
	}

	addr := cfg.ListenAddress
	if addr == "" {
		addr = "127.0.0.1:6060"
	}

	return &Server{
		server: &http.Server{Addr: addr, Handler: mux},
		logger: logger,
	}
}

// Start runs the server, blocking until Stop is called or it fails.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	s.logger.Info("diagnostics server listening", "address", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.logger.Error("diagnostics server failed", "error", err)
		return fmt.Errorf("diagnostics server: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("diagnostics server shutdown failed", "error", err)
	}
}
