// Package longrange bridges the hand-off queues and the long-range radio,
// acknowledging every Text and Gps frame it receives.
package longrange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dumacp/go-logs/pkg/logs"
	"github.com/dumacp/go-lorabridge/internal/events"
	"github.com/dumacp/go-lorabridge/internal/protocol"
	"github.com/dumacp/go-lorabridge/internal/queue"
	"github.com/dumacp/go-lorabridge/internal/radio"
	"github.com/looplab/fsm"
)

const (
	source     = "longrange"
	errBackoff = 100 * time.Millisecond
)

type Options struct {
	PowerDBm   int8
	Modulation radio.Modulation
	// DutyCycle accounts transmit airtime; nil disables accounting.
	DutyCycle *radio.DutyCycle
}

// Bridge transmits messages taken from the outbound queue and delivers
// received messages to the inbound queue.
type Bridge struct {
	r    radio.Transceiver
	out  *queue.Queue
	in   *queue.Queue
	opts Options
	sink events.Sink
	fsm  *fsm.FSM
	now  func() time.Time

	txBuf [protocol.MaxFrameSize]byte
	rxBuf [protocol.MaxFrameSize]byte
}

type rxResult struct {
	n   int
	q   radio.SignalQuality
	err error
}

func New(r radio.Transceiver, out, in *queue.Queue, opts Options, sink events.Sink) *Bridge {
	if sink == nil {
		sink = events.Discard
	}
	b := &Bridge{r: r, out: out, in: in, opts: opts, sink: sink, now: time.Now}
	b.initFSM()
	return b
}

func (b *Bridge) State() string {
	return b.fsm.Current()
}

func (b *Bridge) DutyCycle() *radio.DutyCycle {
	return b.opts.DutyCycle
}

// Run arms the receiver and then, on every iteration, races a pending
// receive against the outbound queue. It returns nil when ctx is done and
// an error when the receiver cannot be armed or the radio is closed.
func (b *Bridge) Run(ctx context.Context) error {
	if err := b.r.StartReceive(radio.RxContinuous); err != nil {
		return fmt.Errorf("lora start receive: %w", err)
	}
	b.fsm.Event(startEvent)
	b.emitState()

	for {
		rxCtx, cancel := context.WithCancel(ctx)
		rxDone := make(chan rxResult, 1)
		go func() {
			n, q, err := b.r.Receive(rxCtx, b.rxBuf[:])
			rxDone <- rxResult{n: n, q: q, err: err}
		}()

		var res rxResult
		select {
		case <-ctx.Done():
			cancel()
			<-rxDone
			return nil
		case res = <-rxDone:
			cancel()
		case msg := <-b.out.C():
			cancel()
			// rxBuf is owned by the receive goroutine until it reports back.
			res = <-rxDone
			b.transmit(ctx, msg)
		}

		if err := b.handleReceive(ctx, res); err != nil {
			return err
		}
	}
}

func (b *Bridge) handleReceive(ctx context.Context, res rxResult) error {
	if res.err != nil {
		switch {
		case errors.Is(res.err, context.Canceled), errors.Is(res.err, context.DeadlineExceeded):
			return nil
		case errors.Is(res.err, radio.ErrClosed):
			return res.err
		}
		logs.LogWarn.Printf("lora receive error: %s", res.err)
		b.sink.Emit(events.Event{Source: source, Kind: events.KindRxError, Detail: res.err.Error()})
		select {
		case <-ctx.Done():
		case <-time.After(errBackoff):
		}
		return nil
	}

	msg, err := protocol.Decode(b.rxBuf[:res.n])
	if err != nil {
		logs.LogWarn.Printf("lora frame decode error (%s): %s", res.q, err)
		b.sink.Emit(events.Event{
			Source: source, Kind: events.KindDecodeError, Bytes: res.n,
			RSSI: res.q.RSSI, SNR: res.q.SNR, Detail: err.Error(),
		})
		return nil
	}
	logs.LogInfo.Printf("lora rx %s (%s)", msg, res.q)
	b.sink.Emit(events.Event{
		Source: source, Kind: events.KindRx, MsgType: msg.Type().String(),
		Seq: events.SeqOf(msg.Sequence()), Message: fmt.Sprint(msg),
		RSSI: res.q.RSSI, SNR: res.q.SNR, Bytes: res.n,
	})

	switch msg.(type) {
	case protocol.Text, protocol.Gps:
		ack := protocol.Ack{Seq: msg.Sequence()}
		if b.transmit(ctx, ack) {
			b.sink.Emit(events.Event{Source: source, Kind: events.KindAckSent, Seq: events.SeqOf(ack.Seq), Message: fmt.Sprint(ack)})
		}
	}
	if !b.in.TrySend(msg) {
		logs.LogWarn.Printf("%s queue full, dropped %s", b.in.Name(), msg)
		b.sink.Emit(events.Event{
			Source: source, Kind: events.KindDrop, Queue: b.in.Name(),
			MsgType: msg.Type().String(), Seq: events.SeqOf(msg.Sequence()), Message: fmt.Sprint(msg),
		})
	}
	return nil
}

// transmit encodes and sends msg, then re-arms continuous receive. Failures
// are reported and the message is not retried.
func (b *Bridge) transmit(ctx context.Context, msg protocol.Message) bool {
	n, err := protocol.Encode(msg, b.txBuf[:])
	if err != nil {
		logs.LogError.Printf("encode %s error: %s", msg, err)
		b.sink.Emit(events.Event{Source: source, Kind: events.KindTxError, Message: fmt.Sprint(msg), Detail: err.Error()})
		return false
	}

	b.fsm.Event(txEvent)
	defer func() {
		if err := b.r.StartReceive(radio.RxContinuous); err != nil {
			logs.LogError.Printf("lora re-arm receive error: %s", err)
		}
		b.fsm.Event(rxEvent)
	}()

	if err := b.r.Transmit(ctx, b.opts.PowerDBm, b.txBuf[:n]); err != nil {
		logs.LogError.Printf("lora tx %s error: %s", msg, err)
		b.sink.Emit(events.Event{Source: source, Kind: events.KindTxError, Message: fmt.Sprint(msg), Detail: err.Error()})
		return false
	}
	logs.LogInfo.Printf("lora tx %s at %d dBm", msg, b.opts.PowerDBm)
	b.sink.Emit(events.Event{
		Source: source, Kind: events.KindTx, MsgType: msg.Type().String(),
		Seq: events.SeqOf(msg.Sequence()), Message: fmt.Sprint(msg), Bytes: n,
	})
	b.account(n)
	return true
}

func (b *Bridge) account(n int) {
	dc := b.opts.DutyCycle
	if dc == nil || b.opts.Modulation.SpreadingFactor == 0 {
		return
	}
	toa := b.opts.Modulation.TimeOnAir(n)
	used, over := dc.Add(b.now(), toa)
	if over {
		logs.LogWarn.Printf("lora duty cycle exceeded: %s of airtime used, budget %s", used, dc.Budget())
		b.sink.Emit(events.Event{
			Source: source, Kind: events.KindDutyCycle,
			Detail: fmt.Sprintf("used=%s budget=%s", used, dc.Budget()),
		})
	}
}

func (b *Bridge) emitState() {
	b.sink.Emit(events.Event{Source: source, Kind: events.KindState, State: b.fsm.Current()})
}
