// Package events carries bridge diagnostics (drops, transmissions,
// receptions, state changes) to MQTT and the journal. The tasks that emit
// events log them themselves.
package events

import (
	"sync"
	"time"
)

type Kind string

const (
	KindConnected    Kind = "connected"
	KindDisconnected Kind = "disconnected"
	KindState        Kind = "state"
	KindEnqueued     Kind = "enqueued"
	KindDrop         Kind = "drop"
	KindNotified     Kind = "notified"
	KindTx           Kind = "tx"
	KindTxError      Kind = "tx_error"
	KindRx           Kind = "rx"
	KindRxError      Kind = "rx_error"
	KindAckSent      Kind = "ack_sent"
	KindDecodeError  Kind = "decode_error"
	KindDutyCycle    Kind = "duty_cycle"
	KindBeacon       Kind = "beacon"
)

// Event is a single diagnostic record. Only the fields relevant to Kind
// are set.
type Event struct {
	Time    time.Time `json:"time"`
	Source  string    `json:"source"`
	Kind    Kind      `json:"kind"`
	Queue   string    `json:"queue,omitempty"`
	MsgType string    `json:"msgType,omitempty"`
	Seq     *uint8    `json:"seq,omitempty"`
	Message string    `json:"message,omitempty"`
	RSSI    int16     `json:"rssi,omitempty"`
	SNR     int8      `json:"snr,omitempty"`
	Bytes   int       `json:"bytes,omitempty"`
	State   string    `json:"state,omitempty"`
	Detail  string    `json:"detail,omitempty"`
}

// Sink consumes diagnostic events. Emit must not block the caller for long.
type Sink interface {
	Emit(Event)
}

type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

type fanout []Sink

func (f fanout) Emit(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	for _, s := range f {
		s.Emit(e)
	}
}

// Fanout delivers each event to every non-nil sink in order.
func Fanout(sinks ...Sink) Sink {
	out := make(fanout, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// Recorder keeps every emitted event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Count returns how many recorded events have the given kind.
func (r *Recorder) Count(k Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == k {
			n++
		}
	}
	return n
}

// SeqOf returns a pointer suitable for Event.Seq.
func SeqOf(seq uint8) *uint8 { return &seq }
