// Package memdiag logs heap statistics while an extraction runs and can
// expose pprof over HTTP.
//
// A nil *Tracker is valid and does nothing, so callers can pass one through
// unconditionally.
package memdiag

import (
	"context"
	"errors"
	"net/http"
	"net/http/pprof"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/eunmann/osm-addr-index/pkg/humanfmt"
	"github.com/eunmann/osm-addr-index/pkg/logging"
)

// Config controls memory diagnostics.
type Config struct {
	// Enabled turns on periodic heap logging at debug level.
	Enabled bool

	// PprofAddr, if set, serves /debug/pprof/ on this address while the
	// tracker runs.
	PprofAddr string

	// LogInterval is the period between heap log lines.
	LogInterval time.Duration
}

// DefaultConfig returns a disabled configuration.
func DefaultConfig() Config {
	return Config{LogInterval: 5 * time.Second}
}

// Stats is the subset of runtime.MemStats worth logging.
type Stats struct {
	HeapAlloc     uint64
	HeapInuse     uint64
	HeapIdle      uint64
	HeapReleased  uint64
	Sys           uint64
	NumGC         uint32
	GCCPUFraction float64
}

// Read samples the runtime.
func Read() Stats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return Stats{
		HeapAlloc:     m.HeapAlloc,
		HeapInuse:     m.HeapInuse,
		HeapIdle:      m.HeapIdle,
		HeapReleased:  m.HeapReleased,
		Sys:           m.Sys,
		NumGC:         m.NumGC,
		GCCPUFraction: m.GCCPUFraction,
	}
}

// Tracker logs heap usage periodically and on phase changes.
type Tracker struct {
	cfg Config
	log zerolog.Logger

	mu       sync.Mutex
	phase    string
	peakHeap uint64

	stop   chan struct{}
	done   chan struct{}
	server *http.Server
}

// NewTracker returns nil when diagnostics are disabled.
func NewTracker(cfg Config) *Tracker {
	if !cfg.Enabled && cfg.PprofAddr == "" {
		return nil
	}
	if cfg.LogInterval <= 0 {
		cfg.LogInterval = DefaultConfig().LogInterval
	}
	return &Tracker{
		cfg:   cfg,
		log:   logging.WithPhase("memdiag"),
		phase: "init",
	}
}

// Start begins periodic logging and the pprof server, if configured.
func (t *Tracker) Start() {
	if t == nil || t.stop != nil {
		return
	}
	t.stop = make(chan struct{})
	t.done = make(chan struct{})

	if t.cfg.PprofAddr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
		t.server = &http.Server{Addr: t.cfg.PprofAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			t.log.Info().Str("addr", t.cfg.PprofAddr).Msg("starting pprof server")
			if err := t.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				t.log.Error().Err(err).Msg("pprof server failed")
			}
		}()
	}

	go t.loop()
}

// Stop ends periodic logging, shuts down pprof and logs a final sample.
func (t *Tracker) Stop() {
	if t == nil || t.stop == nil {
		return
	}
	select {
	case <-t.stop:
		return
	default:
	}
	close(t.stop)
	<-t.done
	if t.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = t.server.Shutdown(ctx)
	}
}

func (t *Tracker) loop() {
	defer close(t.done)
	ticker := time.NewTicker(t.cfg.LogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			t.LogNow("shutdown")
			return
		case <-ticker.C:
			t.LogNow("periodic")
		}
	}
}

// SetPhase records the current phase and logs a sample.
func (t *Tracker) SetPhase(phase string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.phase = phase
	t.mu.Unlock()
	t.LogNow("phase_change")
}

// observe updates the peak and returns the phase.
func (t *Tracker) observe(s Stats) (phase string, peak uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s.HeapAlloc > t.peakHeap {
		t.peakHeap = s.HeapAlloc
	}
	return t.phase, t.peakHeap
}

// LogNow logs the current heap statistics.
func (t *Tracker) LogNow(reason string) {
	if t == nil || !t.cfg.Enabled {
		return
	}
	s := Read()
	phase, peak := t.observe(s)
	t.log.Debug().
		Str("reason", reason).
		Str("run_phase", phase).
		Str("heap_alloc", humanfmt.Bytes(int64(s.HeapAlloc))).
		Str("heap_inuse", humanfmt.Bytes(int64(s.HeapInuse))).
		Str("heap_idle", humanfmt.Bytes(int64(s.HeapIdle))).
		Str("sys_total", humanfmt.Bytes(int64(s.Sys))).
		Str("peak_heap", humanfmt.Bytes(int64(peak))).
		Uint32("num_gc", s.NumGC).
		Float64("gc_cpu_pct", s.GCCPUFraction*100).
		Msg("memory stats")
}

// LogWithEstimate logs heap usage next to an estimate of what the caller
// believes it holds, and warns when the heap is more than twice the
// estimate once the estimate passes 100 MiB.
func (t *Tracker) LogWithEstimate(reason string, estimate int64) {
	if t == nil || !t.cfg.Enabled {
		return
	}
	s := Read()
	phase, peak := t.observe(s)

	var ratio float64
	if estimate > 0 {
		ratio = float64(s.HeapAlloc) / float64(estimate)
	}
	t.log.Debug().
		Str("reason", reason).
		Str("run_phase", phase).
		Str("heap_alloc", humanfmt.Bytes(int64(s.HeapAlloc))).
		Str("estimate", humanfmt.Bytes(estimate)).
		Float64("heap_vs_estimate", ratio).
		Str("peak_heap", humanfmt.Bytes(int64(peak))).
		Msg("memory stats with estimate")

	if ratio > 2 && estimate > 100*humanfmt.MiB {
		t.log.Warn().
			Str("heap_alloc", humanfmt.Bytes(int64(s.HeapAlloc))).
			Str("estimate", humanfmt.Bytes(estimate)).
			Float64("ratio", ratio).
			Msg("heap usage significantly exceeds aggregator estimate")
	}
}

// PeakHeap returns the largest HeapAlloc sampled so far.
func (t *Tracker) PeakHeap() uint64 {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peakHeap
}
