package logging

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/eunmann/osm-addr-index/pkg/humanfmt"
	"github.com/rs/zerolog"
)

// ByteProgress tracks progress through an input of known size and
// rate-limits progress log lines. It is safe for concurrent use.
type ByteProgress struct {
	total     int64
	done      atomic.Int64
	startTime time.Time
	interval  time.Duration
	log       zerolog.Logger
	phase     string

	mu      sync.Mutex
	lastLog time.Time
}

// NewByteProgress creates a tracker for total bytes that logs at most once
// per interval. A non-positive interval disables periodic logging.
func NewByteProgress(phase string, total int64, interval time.Duration, log zerolog.Logger) *ByteProgress {
	now := time.Now()
	return &ByteProgress{
		total:     total,
		startTime: now,
		interval:  interval,
		log:       log,
		phase:     phase,
		lastLog:   now,
	}
}

// Update records the absolute number of bytes processed so far and logs a
// progress line if the interval has elapsed. extra may add fields.
func (bp *ByteProgress) Update(done int64, extra func(*zerolog.Event)) {
	bp.done.Store(done)
	if bp.interval <= 0 {
		return
	}

	bp.mu.Lock()
	now := time.Now()
	if now.Sub(bp.lastLog) < bp.interval {
		bp.mu.Unlock()
		return
	}
	bp.lastLog = now
	bp.mu.Unlock()

	e := bp.log.Info().
		Str("event", "progress").
		Str("phase", bp.phase).
		Int64("bytes_done", done).
		Int64("bytes_total", bp.total).
		Float64("progress_pct", bp.Pct())
	if eta := bp.ETA(); eta > 0 {
		e = e.Int64("eta_ms", eta.Milliseconds())
		if IsPrettyMode() {
			e = e.Str("eta_h", humanfmt.Duration(eta))
		}
	}
	if IsPrettyMode() {
		e = e.Str("throughput_h", humanfmt.Throughput(done, bp.Elapsed()))
	}
	if extra != nil {
		extra(e)
	}
	e.Msg("scan progress")
}

// Done returns the bytes processed so far.
func (bp *ByteProgress) Done() int64 {
	return bp.done.Load()
}

// Pct returns the progress percentage (0-100). Unknown totals report 0.
func (bp *ByteProgress) Pct() float64 {
	if bp.total <= 0 {
		return 0
	}
	pct := float64(bp.done.Load()) * 100.0 / float64(bp.total)
	if pct > 100 {
		pct = 100
	}
	return pct
}

// ETA extrapolates the remaining time from the average rate so far.
func (bp *ByteProgress) ETA() time.Duration {
	done := bp.done.Load()
	if done <= 0 || bp.total <= 0 || done >= bp.total {
		return 0
	}
	elapsed := bp.Elapsed()
	return time.Duration(float64(elapsed) * float64(bp.total-done) / float64(done))
}

// Elapsed returns time since tracking started.
func (bp *ByteProgress) Elapsed() time.Duration {
	return time.Since(bp.startTime)
}

// CompletionEvent helps build consistent completion log events.
type CompletionEvent struct {
	log     zerolog.Logger
	event   string
	phase   string
	elapsed time.Duration
	fields  map[string]any
}

// NewCompletionEvent creates a new completion event builder.
func NewCompletionEvent(log zerolog.Logger, event, phase string, elapsed time.Duration) *CompletionEvent {
	return &CompletionEvent{
		log:     log,
		event:   event,
		phase:   phase,
		elapsed: elapsed,
		fields:  make(map[string]any),
	}
}

// Str adds a string field.
func (ce *CompletionEvent) Str(key, val string) *CompletionEvent {
	ce.fields[key] = val
	return ce
}

// Int adds an int field.
func (ce *CompletionEvent) Int(key string, val int) *CompletionEvent {
	ce.fields[key] = val
	return ce
}

// Bytes adds byte count with optional human-readable companion.
func (ce *CompletionEvent) Bytes(key string, bytes int64) *CompletionEvent {
	ce.fields[key] = bytes
	if IsPrettyMode() {
		ce.fields[key+"_h"] = humanfmt.Bytes(bytes)
	}
	return ce
}

// Count adds count with optional human-readable companion.
func (ce *CompletionEvent) Count(key string, n int64) *CompletionEvent {
	ce.fields[key] = n
	if IsPrettyMode() {
		ce.fields[key+"_h"] = humanfmt.Count(n)
	}
	return ce
}

// Throughput adds throughput fields.
func (ce *CompletionEvent) Throughput(bytes int64) *CompletionEvent {
	if ce.elapsed > 0 {
		ce.fields["throughput_bps"] = float64(bytes) / ce.elapsed.Seconds()
		if IsPrettyMode() {
			ce.fields["throughput_h"] = humanfmt.Throughput(bytes, ce.elapsed)
		}
	}
	return ce
}

// Log emits the completion event at info level.
func (ce *CompletionEvent) Log(msg string) {
	ce.emit(ce.log.Info(), msg)
}

// LogWarn emits the completion event at warn level.
func (ce *CompletionEvent) LogWarn(msg string) {
	ce.emit(ce.log.Warn(), msg)
}

func (ce *CompletionEvent) emit(e *zerolog.Event, msg string) {
	e = e.Str("event", ce.event).
		Str("phase", ce.phase).
		Int64("duration_ms", ce.elapsed.Milliseconds())
	if IsPrettyMode() {
		e = e.Str("duration_h", humanfmt.Duration(ce.elapsed))
	}
	for k, v := range ce.fields {
		e = e.Interface(k, v)
	}
	e.Msg(msg)
}

// PhaseComplete logs a phase completion event.
func PhaseComplete(log zerolog.Logger, phase string, elapsed time.Duration) *CompletionEvent {
	return NewCompletionEvent(log, "phase_completed", phase, elapsed)
}

// FileCreated logs a file creation completion event.
func FileCreated(log zerolog.Logger, phase string, elapsed time.Duration) *CompletionEvent {
	return NewCompletionEvent(log, "file_created", phase, elapsed)
}
