// Package beacon reads the bridge's own position from a GPS receiver and
// queues it for long-range transmission as Gps messages.
package beacon

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dumacp/go-logs/pkg/logs"
	"github.com/dumacp/go-lorabridge/internal/events"
	"github.com/dumacp/go-lorabridge/internal/protocol"
	"github.com/dumacp/go-lorabridge/internal/queue"
	"github.com/looplab/fsm"
	"github.com/tarm/serial"
)

const source = "beacon"

const (
	maxReadFails    = 6
	portReadTimeout = 3 * time.Second
)

// Opener opens the receiver's sentence stream.
type Opener func() (io.ReadCloser, error)

// SerialOpener opens a serial NMEA receiver.
func SerialOpener(port string, baud int) Opener {
	return func() (io.ReadCloser, error) {
		return serial.OpenPort(&serial.Config{
			Name:        port,
			Baud:        baud,
			ReadTimeout: portReadTimeout,
		})
	}
}

type Options struct {
	// DistanceMin in metres.
	DistanceMin    int
	Interval       time.Duration
	ReconnectDelay time.Duration
}

type Beacon struct {
	open    Opener
	out     *queue.Queue
	sink    events.Sink
	opts    Options
	fsm     *fsm.FSM
	tracker *Tracker
	filter  plausibility
	seq     uint8
}

func New(open Opener, out *queue.Queue, opts Options, sink events.Sink) *Beacon {
	if sink == nil {
		sink = events.Discard
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 3 * time.Second
	}
	return &Beacon{
		open:    open,
		out:     out,
		sink:    sink,
		opts:    opts,
		fsm:     initFSM(),
		tracker: NewTracker(opts.DistanceMin, opts.Interval),
	}
}

func (b *Beacon) State() string {
	return b.fsm.Current()
}

// Run reads sentences until ctx is done, reopening the receiver whenever
// reading fails.
func (b *Beacon) Run(ctx context.Context) error {
	var (
		port      io.ReadCloser
		reader    *bufio.Reader
		countFail int
	)
	defer func() {
		if port != nil {
			port.Close()
		}
	}()

	current := ""
	for {
		if ctx.Err() != nil {
			return nil
		}
		if current != b.fsm.Current() {
			logs.LogInfo.Printf("current state beacon: %v", b.fsm.Current())
			current = b.fsm.Current()
			b.sink.Emit(events.Event{Source: source, Kind: events.KindState, State: current})
		}
		switch b.fsm.Current() {
		case sStart:
			b.fsm.Event(startEvent)
		case sConnect:
			var err error
			port, err = b.open()
			if err != nil {
				logs.LogError.Printf("beacon serial error open: %s", err)
				if !sleep(ctx, b.opts.ReconnectDelay) {
					return nil
				}
				break
			}
			reader = bufio.NewReader(port)
			countFail = 0
			b.fsm.Event(connectOKEvent)
		case sRun:
			line, err := listen(reader)
			if line != "" {
				countFail = 0
				b.handle(line, time.Now())
			}
			if err != nil {
				countFail++
				if countFail > maxReadFails {
					logs.LogWarn.Printf("error listen port: %s", err)
					b.fsm.Event(readFailEvent)
				}
			}
		case sClose:
			if port != nil {
				port.Close()
				port = nil
			}
			if !sleep(ctx, b.opts.ReconnectDelay) {
				return nil
			}
			b.fsm.Event(startEvent)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func listen(reader *bufio.Reader) (string, error) {
	v, err := reader.ReadBytes(0x0D)
	return strings.TrimSpace(string(v)), err
}

func (b *Beacon) handle(line string, now time.Time) {
	fix, err := parseSentence(line)
	if err != nil {
		if !errors.Is(err, ErrNotPosition) {
			logs.LogBuild.Println(err)
		}
		return
	}
	if !b.filter.accept(fix) {
		logs.LogWarn.Printf("implausible fix discarded: %.6f,%.6f", fix.Lat, fix.Lon)
		return
	}
	if !b.tracker.Offer(fix, now) {
		return
	}
	b.send(fix)
}

func (b *Beacon) send(fix Fix) {
	msg := protocol.Gps{
		Seq: b.seq,
		Lat: protocol.FixedPoint(fix.Lat),
		Lon: protocol.FixedPoint(fix.Lon),
	}
	b.seq++
	ev := events.Event{Source: source, Queue: b.out.Name(), MsgType: msg.Type().String(),
		Seq: events.SeqOf(msg.Seq), Message: fmt.Sprint(msg)}
	if !b.out.TrySend(msg) {
		logs.LogWarn.Printf("%s queue full, own position dropped", b.out.Name())
		ev.Kind = events.KindDrop
		b.sink.Emit(ev)
		return
	}
	logs.LogInfo.Printf("own position queued: %s", msg)
	ev.Kind = events.KindBeacon
	b.sink.Emit(ev)
}
