// Package ledger tracks subsystem failures and recovery. It keeps a bounded
// error history per system tag, rate-limits user-facing notifications, and
// caps recovery attempts so a broken calculator cannot retry forever.
package ledger

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sherman-jordan/pf2e-visioner-sub010/internal/config"
	"github.com/sherman-jordan/pf2e-visioner-sub010/internal/notify"
)

const historyCap = 200

// System tags recognized by the integration layer.
const (
	TagVisibility  = "visibility"
	TagCover       = "cover"
	TagPersistence = "persistence"
)

// Entry is one recorded failure.
type Entry struct {
	Tag             string         `json:"tag"`
	Error           string         `json:"error"`
	Context         map[string]any `json:"context,omitempty"`
	FallbackApplied bool           `json:"fallbackApplied"`
	Timestamp       time.Time      `json:"timestamp"`
}

// Status is the rolling health of one system tag.
type Status struct {
	Available        bool      `json:"available"`
	ErrorCount       int       `json:"errorCount"`
	RecoveryAttempts int       `json:"recoveryAttempts"`
	LastError        time.Time `json:"lastError,omitempty"`
}

// Result reports what the ledger did with a failure.
type Result struct {
	FallbackApplied bool
	Notified        bool
}

// Probe reports whether the underlying system is currently usable.
// Registered per tag; recovery re-runs it.
type Probe func() bool

type systemState struct {
	available        bool
	errorCount       int
	recoveryAttempts int
	lastError        time.Time
}

// DiagnosticsWriter receives ledger events for time-series export.
// Optional; nil disables export.
type DiagnosticsWriter interface {
	WriteEvent(kind, tag string, fields map[string]any)
}

// Ledger is process-wide shared state; all access is mutex-guarded.
type Ledger struct {
	mu      sync.Mutex
	history []Entry
	systems map[string]*systemState
	probes  map[string]Probe

	fallbackNotices int
	recoveryNotices int

	notifyOpts   config.NotificationOptions
	recoveryOpts config.RecoveryOptions

	sink notify.Sink
	diag DiagnosticsWriter
	log  zerolog.Logger
}

// New creates a ledger. sink may be nil to suppress notifications.
func New(notifyOpts config.NotificationOptions, recoveryOpts config.RecoveryOptions, sink notify.Sink, log zerolog.Logger) *Ledger {
	return &Ledger{
		systems:      make(map[string]*systemState),
		probes:       make(map[string]Probe),
		notifyOpts:   notifyOpts,
		recoveryOpts: recoveryOpts,
		sink:         sink,
		log:          log,
	}
}

// SetDiagnostics attaches a time-series writer for ledger events.
func (l *Ledger) SetDiagnostics(d DiagnosticsWriter) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.diag = d
}

// RegisterProbe installs the availability probe for a system tag.
// The tag starts available.
func (l *Ledger) RegisterProbe(tag string, p Probe) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.probes[tag] = p
	if _, ok := l.systems[tag]; !ok {
		l.systems[tag] = &systemState{available: true}
	}
}

// HandleSystemError records a failure for the tagged system, marks it
// unavailable, and emits a rate-limited fallback notification.
// fallbackApplied reports whether the caller applied a fallback result.
func (l *Ledger) HandleSystemError(tag string, err error, ctx map[string]any, fallbackApplied bool) Result {
	l.mu.Lock()

	st := l.ensureSystem(tag)
	st.available = false
	st.errorCount++
	st.lastError = time.Now()

	entry := Entry{
		Tag:             tag,
		Error:           err.Error(),
		Context:         ctx,
		FallbackApplied: fallbackApplied,
		Timestamp:       st.lastError,
	}
	l.history = append(l.history, entry)
	if len(l.history) > historyCap {
		l.history = l.history[len(l.history)-historyCap:]
	}

	notified := false
	if l.notifyOpts.NotifyFallback && l.fallbackNotices < l.notifyOpts.MaxPerSession {
		l.fallbackNotices++
		notified = true
	}

	diag := l.diag
	l.mu.Unlock()

	l.log.Warn().
		Str("system", tag).
		Err(err).
		Bool("fallbackApplied", fallbackApplied).
		Msg("System error recorded")

	if notified && l.sink != nil {
		l.sink.Notify(notify.Message{
			Severity: notify.SeverityWarning,
			System:   tag,
			Text:     "calculation degraded, using fallback result",
		})
	}
	if diag != nil {
		diag.WriteEvent("error", tag, map[string]any{
			"fallbackApplied": fallbackApplied,
			"error":           err.Error(),
		})
	}

	return Result{FallbackApplied: fallbackApplied, Notified: notified}
}

// AttemptSystemRecovery re-probes the tagged system. Returns true when the
// system is available after the attempt. Attempts are capped; past the cap
// the call is a no-op returning the current availability.
func (l *Ledger) AttemptSystemRecovery(tag string) bool {
	l.mu.Lock()

	st := l.ensureSystem(tag)
	if st.available {
		l.mu.Unlock()
		return true
	}
	if st.recoveryAttempts >= l.recoveryOpts.MaxAttempts {
		l.mu.Unlock()
		return false
	}
	st.recoveryAttempts++

	probe := l.probes[tag]
	l.mu.Unlock()

	if probe == nil || !probe() {
		l.log.Debug().Str("system", tag).Msg("Recovery probe failed")
		return false
	}

	l.mu.Lock()
	st.available = true
	st.recoveryAttempts = 0
	notified := false
	if l.notifyOpts.NotifyRecovery && l.recoveryNotices < l.notifyOpts.MaxPerSession {
		l.recoveryNotices++
		notified = true
	}
	diag := l.diag
	l.mu.Unlock()

	l.log.Info().Str("system", tag).Msg("System recovered")

	if notified && l.sink != nil {
		l.sink.Notify(notify.Message{
			Severity: notify.SeverityInfo,
			System:   tag,
			Text:     "system recovered, live calculations restored",
		})
	}
	if diag != nil {
		diag.WriteEvent("recovery", tag, nil)
	}

	return true
}

// IsAvailable reports the current availability of a system tag.
// Unknown tags are available.
func (l *Ledger) IsAvailable(tag string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.systems[tag]
	if !ok {
		return true
	}
	return st.available
}

// GetSystemStatus returns a snapshot of every tracked system.
func (l *Ledger) GetSystemStatus() map[string]Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]Status, len(l.systems))
	for tag, st := range l.systems {
		out[tag] = Status{
			Available:        st.available,
			ErrorCount:       st.errorCount,
			RecoveryAttempts: st.recoveryAttempts,
			LastError:        st.lastError,
		}
	}
	return out
}

// GetErrorHistory returns recorded entries most-recent-first. An empty tag
// returns all systems.
func (l *Ledger) GetErrorHistory(tag string) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, 0, len(l.history))
	for i := len(l.history) - 1; i >= 0; i-- {
		if tag != "" && l.history[i].Tag != tag {
			continue
		}
		out = append(out, l.history[i])
	}
	return out
}

// caller must hold mu
func (l *Ledger) ensureSystem(tag string) *systemState {
	st, ok := l.systems[tag]
	if !ok {
		st = &systemState{available: true}
		l.systems[tag] = st
	}
	return st
}
