// Package shortrange bridges the phone-facing GATT service and the two
// hand-off queues.
package shortrange

import (
	"context"
	"errors"
	"fmt"

	"github.com/dumacp/go-logs/pkg/logs"
	"github.com/dumacp/go-lorabridge/internal/events"
	"github.com/dumacp/go-lorabridge/internal/protocol"
	"github.com/dumacp/go-lorabridge/internal/queue"
	"github.com/looplab/fsm"
)

const source = "shortrange"

var ErrPeripheralClosed = errors.New("peripheral event stream closed")

// Bridge moves frames written by the central onto the outbound queue and
// notifies the central with messages taken from the inbound queue.
type Bridge struct {
	p    Peripheral
	out  *queue.Queue
	in   *queue.Queue
	sink events.Sink
	fsm  *fsm.FSM
	buf  [protocol.MaxFrameSize]byte
}

func New(p Peripheral, out, in *queue.Queue, sink events.Sink) *Bridge {
	if sink == nil {
		sink = events.Discard
	}
	b := &Bridge{p: p, out: out, in: in, sink: sink}
	b.initFSM()
	return b
}

// State returns the current connection state.
func (b *Bridge) State() string {
	return b.fsm.Current()
}

// Run brings up the peripheral and serves it until ctx is done. A failure
// to start the peripheral or to advertise the first time is returned.
func (b *Bridge) Run(ctx context.Context) error {
	if err := b.p.Start(); err != nil {
		return fmt.Errorf("ble start: %w", err)
	}
	if err := b.p.Advertise(); err != nil {
		return fmt.Errorf("ble advertise: %w", err)
	}
	b.fsm.Event(startEvent)
	b.emitState()
	logs.LogInfo.Println("ble service registered, advertising")

	evs := b.p.Events()
	for {
		// The inbound queue is only consumed while a central is connected.
		var inC <-chan protocol.Message
		if b.fsm.Is(sConnected) {
			inC = b.in.C()
		}
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-evs:
			if !ok {
				return ErrPeripheralClosed
			}
			b.handle(ev)
			if b.fsm.Is(sConnected) {
				if msg, ok := b.in.TryRecv(); ok {
					b.notify(msg)
				}
			}
		case msg := <-inC:
			b.notify(msg)
		}
	}
}

func (b *Bridge) handle(ev Event) {
	switch ev.Kind {
	case EventConnected:
		if b.fsm.Is(sConnected) {
			return
		}
		b.fsm.Event(connectEvent)
		b.emitState()
		b.sink.Emit(events.Event{Source: source, Kind: events.KindConnected})
	case EventDisconnected:
		if !b.fsm.Is(sConnected) {
			return
		}
		b.fsm.Event(disconnectEvent)
		b.emitState()
		b.sink.Emit(events.Event{Source: source, Kind: events.KindDisconnected})
		if err := b.p.Advertise(); err != nil {
			logs.LogError.Printf("ble advertise error: %s", err)
		}
	case EventWrite:
		b.handleWrite(ev)
	}
}

func (b *Bridge) handleWrite(ev Event) {
	if ev.Attr != RxUUID {
		logs.LogWarn.Printf("ble write to attribute 0x%04X ignored", ev.Attr)
		return
	}
	if len(ev.Data) > protocol.MaxFrameSize {
		logs.LogWarn.Printf("ble write of %d bytes exceeds %d, discarded", len(ev.Data), protocol.MaxFrameSize)
		return
	}
	msg, err := protocol.Decode(ev.Data)
	if err != nil {
		logs.LogWarn.Printf("ble frame decode error: %s", err)
		b.sink.Emit(events.Event{Source: source, Kind: events.KindDecodeError, Bytes: len(ev.Data), Detail: err.Error()})
		return
	}
	if !b.out.TrySend(msg) {
		logs.LogWarn.Printf("%s queue full, dropped %s", b.out.Name(), msg)
		b.sink.Emit(events.Event{
			Source: source, Kind: events.KindDrop, Queue: b.out.Name(),
			MsgType: msg.Type().String(), Seq: events.SeqOf(msg.Sequence()), Message: fmt.Sprint(msg),
		})
		return
	}
	b.sink.Emit(events.Event{
		Source: source, Kind: events.KindEnqueued, Queue: b.out.Name(),
		MsgType: msg.Type().String(), Seq: events.SeqOf(msg.Sequence()), Message: fmt.Sprint(msg),
	})
}

func (b *Bridge) notify(msg protocol.Message) {
	n, err := protocol.Encode(msg, b.buf[:])
	if err != nil {
		logs.LogError.Printf("encode %s error: %s", msg, err)
		b.sink.Emit(events.Event{Source: source, Kind: events.KindTxError, Message: fmt.Sprint(msg), Detail: err.Error()})
		return
	}
	if err := b.p.Notify(b.buf[:n]); err != nil {
		logs.LogError.Printf("ble notify %s error: %s", msg, err)
		b.sink.Emit(events.Event{Source: source, Kind: events.KindTxError, Message: fmt.Sprint(msg), Detail: err.Error()})
		return
	}
	b.sink.Emit(events.Event{
		Source: source, Kind: events.KindNotified, MsgType: msg.Type().String(),
		Seq: events.SeqOf(msg.Sequence()), Message: fmt.Sprint(msg), Bytes: n,
	})
}

func (b *Bridge) emitState() {
	b.sink.Emit(events.Event{Source: source, Kind: events.KindState, State: b.fsm.Current()})
}
