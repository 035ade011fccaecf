package radio

import (
	"context"
	"sync"
)

// Transmission is one frame sent through a Sim.
type Transmission struct {
	PowerDBm int8
	Data     []byte
}

type simFrame struct {
	data []byte
	q    SignalQuality
}

// Sim is an in-memory transceiver. Frames transmitted on one side of a pair
// are delivered to the other; frames can also be injected directly.
type Sim struct {
	mu       sync.Mutex
	peer     *Sim
	rx       chan simFrame
	closed   chan struct{}
	once     sync.Once
	txLog    []Transmission
	arms     []RxMode
	txErr    error
	startErr error
	quality  SignalQuality
}

func NewSim() *Sim {
	return &Sim{
		rx:      make(chan simFrame, 32),
		closed:  make(chan struct{}),
		quality: SignalQuality{RSSI: -60, SNR: 9},
	}
}

// NewSimPair returns two transceivers sharing one simulated channel.
func NewSimPair() (*Sim, *Sim) {
	a, b := NewSim(), NewSim()
	a.peer, b.peer = b, a
	return a, b
}

func (s *Sim) Transmit(ctx context.Context, powerDBm int8, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-s.closed:
		return ErrClosed
	default:
	}
	s.mu.Lock()
	if s.txErr != nil {
		err := s.txErr
		s.mu.Unlock()
		return err
	}
	frame := append([]byte(nil), data...)
	s.txLog = append(s.txLog, Transmission{PowerDBm: powerDBm, Data: frame})
	peer, q := s.peer, s.quality
	s.mu.Unlock()

	if peer != nil {
		peer.Inject(frame, q)
	}
	return nil
}

func (s *Sim) Receive(ctx context.Context, buf []byte) (int, SignalQuality, error) {
	select {
	case f := <-s.rx:
		if len(f.data) > len(buf) {
			return 0, f.q, ErrPayloadTooLarge
		}
		return copy(buf, f.data), f.q, nil
	case <-s.closed:
		return 0, SignalQuality{}, ErrClosed
	case <-ctx.Done():
		return 0, SignalQuality{}, ctx.Err()
	}
}

func (s *Sim) StartReceive(mode RxMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.arms = append(s.arms, mode)
	return nil
}

// Inject delivers data as if it had been received over the air. Frames are
// dropped when the receive buffer is full.
func (s *Sim) Inject(data []byte, q SignalQuality) {
	select {
	case s.rx <- simFrame{data: append([]byte(nil), data...), q: q}:
	default:
	}
}

// TxLog returns the frames transmitted so far.
func (s *Sim) TxLog() []Transmission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Transmission(nil), s.txLog...)
}

// Arms returns the receive modes requested so far.
func (s *Sim) Arms() []RxMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RxMode(nil), s.arms...)
}

// FailTransmit makes subsequent transmissions return err (nil clears it).
func (s *Sim) FailTransmit(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txErr = err
}

// FailStartReceive makes StartReceive return err (nil clears it).
func (s *Sim) FailStartReceive(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startErr = err
}

// SetQuality sets the signal quality reported to the peer.
func (s *Sim) SetQuality(q SignalQuality) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quality = q
}

func (s *Sim) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}
