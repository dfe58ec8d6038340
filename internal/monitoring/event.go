// Package monitoring carries structured setup-session events (notices, state
// changes, discarded loads) to an injected sink instead of ambient globals.
package monitoring

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// EventType identifies the kind of event.
type EventType string

const (
	EventGeocodeResolved   EventType = "geocode_resolved"
	EventGeocodeMissed     EventType = "geocode_missed"
	EventProviderDegraded  EventType = "provider_degraded"
	EventParcelsLoaded     EventType = "parcels_loaded"
	EventParcelsCleared    EventType = "parcels_cleared"
	EventParcelLoadStale   EventType = "parcel_load_stale"
	EventParcelFetchFailed EventType = "parcel_fetch_failed"
	EventSelectionChanged  EventType = "selection_changed"
	EventBoundarySaved     EventType = "boundary_saved"
	EventBoundaryFailed    EventType = "boundary_failed"
	EventStepChanged       EventType = "step_changed"
)

// Severity levels. Notices are non-blocking user-facing messages.
const (
	SeverityDebug  = "debug"
	SeverityInfo   = "info"
	SeverityNotice = "notice"
	SeverityError  = "error"
)

// Event is a single structured observation emitted by a core component.
type Event struct {
	Type      EventType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Sink receives events. Implementations must not block the caller.
type Sink interface {
	Emit(e Event)
}

// Emit stamps e and forwards it to sink when sink is non-nil.
func Emit(sink Sink, typ EventType, severity, msg string, details map[string]any) {
	if sink == nil {
		return
	}
	sink.Emit(Event{
		Type:      typ,
		Severity:  severity,
		Message:   msg,
		Details:   details,
		Timestamp: time.Now().UTC(),
	})
}

// Nop discards all events.
type Nop struct{}

// Emit implements Sink.
func (Nop) Emit(Event) {}

// LogSink writes events to a zap logger.
type LogSink struct {
	log *zap.Logger
}

// NewLogSink returns a LogSink writing to log, or the global logger when nil.
func NewLogSink(log *zap.Logger) *LogSink {
	if log == nil {
		log = zap.L()
	}
	return &LogSink{log: log.With(zap.String("component", "events"))}
}

// Emit implements Sink.
func (s *LogSink) Emit(e Event) {
	fields := []zap.Field{
		zap.String("event", string(e.Type)),
		zap.Time("at", e.Timestamp),
	}
	if len(e.Details) > 0 {
		fields = append(fields, zap.Any("details", e.Details))
	}
	switch e.Severity {
	case SeverityDebug:
		s.log.Debug(e.Message, fields...)
	case SeverityNotice:
		s.log.Warn(e.Message, fields...)
	case SeverityError:
		s.log.Error(e.Message, fields...)
	default:
		s.log.Info(e.Message, fields...)
	}
}

// Recorder keeps the most recent events in memory, bounded by capacity.
// It backs the HTTP API's notice feed and tests.
type Recorder struct {
	mu       sync.Mutex
	events   []Event
	capacity int
}

// NewRecorder creates a Recorder holding at most capacity events.
func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = 256
	}
	return &Recorder{capacity: capacity}
}

// Emit implements Sink.
func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	if over := len(r.events) - r.capacity; over > 0 {
		r.events = append([]Event(nil), r.events[over:]...)
	}
}

// Events returns a copy of the recorded events, oldest first.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns recorded events matching typ.
func (r *Recorder) OfType(typ EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// Fanout forwards every event to each sink in order.
type Fanout []Sink

// Emit implements Sink.
func (f Fanout) Emit(e Event) {
	for _, s := range f {
		if s != nil {
			s.Emit(e)
		}
	}
}
