package events

import (
	"sync"
	"time"
)

// Event names emitted by the session manager.
const (
	StationConnected    = "station_connected"
	StationDisconnected = "station_disconnected"
	TransactionStarted  = "transaction_started"
	TransactionStopped  = "transaction_stopped"
	MeterValues         = "meter_values"
	CommandResult       = "command_result"
)

// Sink receives domain events. Emit must not block the caller for long and never fails.
type Sink interface {
	Emit(name string, payload interface{})
}

// Event is the envelope published to subscribers.
type Event struct {
	Name      string      `json:"event"`
	Payload   interface{} `json:"payload"`
	EmittedAt time.Time   `json:"emittedAt"`
}

// Noop discards events.
type Noop struct{}

// Emit implements Sink.
func (Noop) Emit(string, interface{}) {}

// Multi fans an event out to several sinks in order.
type Multi []Sink

// Emit implements Sink.
func (m Multi) Emit(name string, payload interface{}) {
	for _, s := range m {
		if s != nil {
			s.Emit(name, payload)
		}
	}
}

// Recorder keeps emitted events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements Sink.
func (r *Recorder) Emit(name string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Name: name, Payload: payload, EmittedAt: time.Now().UTC()})
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Names returns the recorded event names in emission order.
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Name)
	}
	return out
}
