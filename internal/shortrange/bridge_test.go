package shortrange

import (
	"bytes"
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/dumacp/go-logs/pkg/logs"
	"github.com/dumacp/go-lorabridge/internal/events"
	"github.com/dumacp/go-lorabridge/internal/protocol"
	"github.com/dumacp/go-lorabridge/internal/queue"
)

type mockPeripheral struct {
	events chan Event

	mux        sync.Mutex
	started    bool
	advertised int
	notified   [][]byte
	startErr   error
	notifyErr  error
}

func newMockPeripheral() *mockPeripheral {
	return &mockPeripheral{events: make(chan Event, 16)}
}

func (m *mockPeripheral) Start() error {
	m.mux.Lock()
	defer m.mux.Unlock()
	if m.startErr != nil {
		return m.startErr
	}
	m.started = true
	return nil
}

func (m *mockPeripheral) Advertise() error {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.advertised++
	return nil
}

func (m *mockPeripheral) Events() <-chan Event { return m.events }

func (m *mockPeripheral) Notify(data []byte) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	if m.notifyErr != nil {
		return m.notifyErr
	}
	m.notified = append(m.notified, append([]byte(nil), data...))
	return nil
}

func (m *mockPeripheral) notifications() [][]byte {
	m.mux.Lock()
	defer m.mux.Unlock()
	return append([][]byte(nil), m.notified...)
}

func (m *mockPeripheral) advertisements() int {
	m.mux.Lock()
	defer m.mux.Unlock()
	return m.advertised
}

func initTestLogs() {
	logs.LogInfo = logs.New(os.Stderr, "", 0)
	logs.LogBuild = logs.New(os.Stderr, "", 0)
	logs.LogWarn = logs.New(os.Stderr, "", 0)
	logs.LogError = logs.New(os.Stderr, "", 0)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type harness struct {
	p      *mockPeripheral
	out    *queue.Queue
	in     *queue.Queue
	rec    *events.Recorder
	bridge *Bridge
	done   chan error
	cancel context.CancelFunc
}

func startBridge(t *testing.T) *harness {
	t.Helper()
	initTestLogs()
	h := &harness{
		p:    newMockPeripheral(),
		out:  queue.New("outbound", queue.DefaultOutboundCapacity),
		in:   queue.New("inbound", queue.DefaultInboundCapacity),
		rec:  &events.Recorder{},
		done: make(chan error, 1),
	}
	h.bridge = New(h.p, h.out, h.in, h.rec)
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.bridge.Run(ctx) }()
	waitFor(t, "advertising", func() bool { return h.bridge.State() == sAdvertising })
	t.Cleanup(func() {
		cancel()
		<-h.done
	})
	return h
}

func mustMarshal(t *testing.T, msg protocol.Message) []byte {
	t.Helper()
	b, err := protocol.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestWriteEnqueuesOutbound(t *testing.T) {
	h := startBridge(t)

	h.p.events <- Event{Kind: EventConnected}
	h.p.events <- Event{Kind: EventWrite, Attr: RxUUID, Data: mustMarshal(t, protocol.Text{Seq: 5, Text: "HELP"})}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, err := h.out.Recv(ctx)
	if err != nil {
		t.Fatalf("outbound Recv() error = %v", err)
	}
	if want := (protocol.Text{Seq: 5, Text: "HELP"}); msg != want {
		t.Errorf("outbound = %v, want %v", msg, want)
	}
	if h.in.Len() != 0 || len(h.p.notifications()) != 0 {
		t.Error("unexpected inbound activity")
	}
}

func TestWriteIgnored(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
		kind events.Kind
	}{
		{"other attribute", Event{Kind: EventWrite, Attr: TxUUID, Data: []byte{0x03, 0x01}}, ""},
		{"oversize", Event{Kind: EventWrite, Attr: RxUUID, Data: append([]byte{0x03, 0x01}, make([]byte, 63)...)}, ""},
		{"malformed", Event{Kind: EventWrite, Attr: RxUUID, Data: []byte{0x07}}, events.KindDecodeError},
		{"empty", Event{Kind: EventWrite, Attr: RxUUID}, events.KindDecodeError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := startBridge(t)
			h.p.events <- Event{Kind: EventConnected}
			h.p.events <- tt.ev
			// A valid write afterwards proves the bad one was processed and skipped.
			h.p.events <- Event{Kind: EventWrite, Attr: RxUUID, Data: []byte{0x03, 0x09}}

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			msg, err := h.out.Recv(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if msg != (protocol.Ack{Seq: 9}) {
				t.Errorf("outbound = %v, want Ack{seq=9}", msg)
			}
			if h.out.Len() != 0 {
				t.Errorf("outbound Len() = %d, want 0", h.out.Len())
			}
			if tt.kind != "" && h.rec.Count(tt.kind) != 1 {
				t.Errorf("%s events = %d, want 1", tt.kind, h.rec.Count(tt.kind))
			}
		})
	}
}

func TestOutboundFullDrops(t *testing.T) {
	h := startBridge(t)
	h.p.events <- Event{Kind: EventConnected}
	for i := 0; i < queue.DefaultOutboundCapacity+1; i++ {
		h.p.events <- Event{Kind: EventWrite, Attr: RxUUID, Data: []byte{0x03, byte(i)}}
	}
	waitFor(t, "drop", func() bool { return h.rec.Count(events.KindDrop) == 1 })

	if h.out.Len() != queue.DefaultOutboundCapacity {
		t.Fatalf("outbound Len() = %d, want %d", h.out.Len(), queue.DefaultOutboundCapacity)
	}
	for i := 0; i < queue.DefaultOutboundCapacity; i++ {
		msg, _ := h.out.TryRecv()
		if msg != (protocol.Ack{Seq: uint8(i)}) {
			t.Errorf("outbound #%d = %v", i, msg)
		}
	}
}

func TestInboundHeldWhileDisconnected(t *testing.T) {
	h := startBridge(t)

	held := protocol.Text{Seq: 7, Text: "OK"}
	h.in.TrySend(held)
	// Events while disconnected must not drain the inbound queue.
	h.p.events <- Event{Kind: EventDisconnected}
	h.p.events <- Event{Kind: EventWrite, Attr: RxUUID, Data: []byte{0x03, 0x01}}
	waitFor(t, "write", func() bool { return h.out.Len() == 1 })
	if h.in.Len() != 1 {
		t.Fatalf("inbound Len() = %d, want 1", h.in.Len())
	}

	h.p.events <- Event{Kind: EventConnected}
	waitFor(t, "notification", func() bool { return len(h.p.notifications()) == 1 })
	if got := h.p.notifications()[0]; !bytes.Equal(got, mustMarshal(t, held)) {
		t.Errorf("notified % X, want % X", got, mustMarshal(t, held))
	}
	if h.in.Len() != 0 {
		t.Errorf("inbound Len() = %d, want 0", h.in.Len())
	}
}

func TestInboundFlushedWhileConnected(t *testing.T) {
	h := startBridge(t)
	h.p.events <- Event{Kind: EventConnected}
	waitFor(t, "connected", func() bool { return h.bridge.State() == sConnected })

	msgs := []protocol.Message{
		protocol.Ack{Seq: 1},
		protocol.Text{Seq: 2, Text: "HELLO"},
		protocol.Gps{Seq: 3, Lat: 6164910, Lon: -75601660},
	}
	for _, m := range msgs {
		h.in.TrySend(m)
	}
	waitFor(t, "notifications", func() bool { return len(h.p.notifications()) == len(msgs) })
	for i, m := range msgs {
		if got := h.p.notifications()[i]; !bytes.Equal(got, mustMarshal(t, m)) {
			t.Errorf("notification #%d = % X, want % X", i, got, mustMarshal(t, m))
		}
	}
}

func TestDisconnectReadvertises(t *testing.T) {
	h := startBridge(t)
	h.p.events <- Event{Kind: EventConnected}
	h.p.events <- Event{Kind: EventDisconnected}
	waitFor(t, "re-advertise", func() bool { return h.p.advertisements() == 2 })
	if h.bridge.State() != sAdvertising {
		t.Errorf("State() = %s, want %s", h.bridge.State(), sAdvertising)
	}

	h.in.TrySend(protocol.Ack{Seq: 4})
	time.Sleep(50 * time.Millisecond)
	if h.in.Len() != 1 {
		t.Errorf("inbound consumed while disconnected")
	}
	if h.rec.Count(events.KindConnected) != 1 || h.rec.Count(events.KindDisconnected) != 1 {
		t.Errorf("connection events = %d/%d, want 1/1", h.rec.Count(events.KindConnected), h.rec.Count(events.KindDisconnected))
	}
}

func TestNotifyErrorContinues(t *testing.T) {
	h := startBridge(t)
	h.p.mux.Lock()
	h.p.notifyErr = errors.New("link lost")
	h.p.mux.Unlock()

	h.p.events <- Event{Kind: EventConnected}
	h.in.TrySend(protocol.Ack{Seq: 1})
	waitFor(t, "tx error", func() bool { return h.rec.Count(events.KindTxError) == 1 })

	h.p.mux.Lock()
	h.p.notifyErr = nil
	h.p.mux.Unlock()
	h.in.TrySend(protocol.Ack{Seq: 2})
	waitFor(t, "notification", func() bool { return len(h.p.notifications()) == 1 })
}

func TestStartFailure(t *testing.T) {
	initTestLogs()
	p := newMockPeripheral()
	p.startErr = errors.New("no adapter")
	b := New(p, queue.New("outbound", 5), queue.New("inbound", 10), nil)

	err := b.Run(context.Background())
	if !errors.Is(err, p.startErr) {
		t.Errorf("Run() error = %v, want %v", err, p.startErr)
	}
	if b.State() != sIdle {
		t.Errorf("State() = %s, want %s", b.State(), sIdle)
	}
}

func TestEventsClosed(t *testing.T) {
	initTestLogs()
	p := newMockPeripheral()
	close(p.events)
	b := New(p, queue.New("outbound", 5), queue.New("inbound", 10), nil)
	if err := b.Run(context.Background()); !errors.Is(err, ErrPeripheralClosed) {
		t.Errorf("Run() error = %v, want %v", err, ErrPeripheralClosed)
	}
}
