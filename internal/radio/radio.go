// Package radio defines the long-range transceiver the bridge drives, along
// with LoRa modulation settings, airtime accounting and a simulated radio.
package radio

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrClosed          = errors.New("radio closed")
	ErrPayloadTooLarge = errors.New("payload too large")
	ErrNotArmed        = errors.New("receiver not armed")
)

// SignalQuality of a received frame.
type SignalQuality struct {
	RSSI int16 // dBm
	SNR  int8  // dB
}

func (q SignalQuality) String() string {
	return fmt.Sprintf("rssi=%ddBm snr=%ddB", q.RSSI, q.SNR)
}

type RxMode int

const (
	RxContinuous RxMode = iota
	RxSingle
)

func (m RxMode) String() string {
	switch m {
	case RxContinuous:
		return "continuous"
	case RxSingle:
		return "single"
	default:
		return fmt.Sprintf("RxMode(%d)", int(m))
	}
}

// Transceiver is a half-duplex long-range radio.
type Transceiver interface {
	// Transmit sends data at the given power and returns once the frame is
	// on air or the driver failed.
	Transmit(ctx context.Context, powerDBm int8, data []byte) error
	// Receive blocks until a frame arrives or ctx is done. The frame is
	// copied into buf.
	Receive(ctx context.Context, buf []byte) (int, SignalQuality, error)
	// StartReceive (re)arms the receiver.
	StartReceive(mode RxMode) error
}

// Bus serialises access to the transceiver. Every command holds it for a
// single operation.
type Bus struct {
	mu sync.Mutex
}

// Do runs fn with the bus held.
func (b *Bus) Do(fn func() error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return fn()
}

type guarded struct {
	t   Transceiver
	bus *Bus
}

// Guard wraps t so that Transmit and StartReceive run under bus. Receive
// only waits on frames already pulled off the radio by the driver and does
// not take the bus.
func Guard(t Transceiver, bus *Bus) Transceiver {
	return &guarded{t: t, bus: bus}
}

func (g *guarded) Transmit(ctx context.Context, powerDBm int8, data []byte) error {
	return g.bus.Do(func() error {
		return g.t.Transmit(ctx, powerDBm, data)
	})
}

func (g *guarded) Receive(ctx context.Context, buf []byte) (int, SignalQuality, error) {
	return g.t.Receive(ctx, buf)
}

func (g *guarded) StartReceive(mode RxMode) error {
	return g.bus.Do(func() error {
		return g.t.StartReceive(mode)
	})
}
