// Package notify defines the user-facing notification sink consumed by the
// error ledger. The engine never renders UI; sinks forward messages to
// whatever surface the host provides.
package notify

import (
	"github.com/rs/zerolog"
)

// Severity of a user-facing message.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Message is one user-facing notification.
type Message struct {
	Severity Severity `json:"severity"`
	System   string   `json:"system,omitempty"` // "visibility" or "cover" when applicable
	Text     string   `json:"text"`
}

// Sink accepts user-facing messages. Implementations must not block the
// caller: the ledger emits from calculation paths.
type Sink interface {
	Notify(msg Message)
}

// LogSink writes notifications to a structured logger. Default sink.
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink creates a sink backed by zerolog.
func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log}
}

// Notify implements Sink.
func (s *LogSink) Notify(msg Message) {
	evt := s.log.Info()
	switch msg.Severity {
	case SeverityWarning:
		evt = s.log.Warn()
	case SeverityError:
		evt = s.log.Error()
	}
	evt.Str("system", msg.System).Msg(msg.Text)
}

// MultiSink fans a notification out to several sinks.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink combines sinks. Nil entries are skipped.
func NewMultiSink(sinks ...Sink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Notify implements Sink.
func (m *MultiSink) Notify(msg Message) {
	for _, s := range m.sinks {
		s.Notify(msg)
	}
}
