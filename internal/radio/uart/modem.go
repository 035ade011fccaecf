// Package uart drives a LoRa modem module that speaks line-oriented AT
// commands over a serial port.
package uart

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dumacp/go-logs/pkg/logs"
	"github.com/dumacp/go-lorabridge/internal/radio"
	"github.com/tarm/serial"
)

const (
	DefaultBaud           = 115200
	DefaultCommandTimeout = 3 * time.Second
	// MaxPayload is the largest frame the modem accepts in AT+SEND.
	MaxPayload = 240
)

var ErrTimeout = errors.New("modem command timeout")

// CommandError is a +ERR=<code> reply.
type CommandError struct {
	Cmd  string
	Code int
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: modem error %d", e.Cmd, e.Code)
}

type Config struct {
	Port           string
	Baud           int
	Modulation     radio.Modulation
	CommandTimeout time.Duration
}

type rxFrame struct {
	data []byte
	q    radio.SignalQuality
}

// Modem implements radio.Transceiver on top of the AT command set.
type Modem struct {
	rw      io.ReadWriteCloser
	timeout time.Duration

	cmdMux  sync.Mutex
	replies chan string
	frames  chan rxFrame
	done    chan struct{}
	once    sync.Once

	mux      sync.Mutex
	armed    bool
	mode     radio.RxMode
	power    int8
	powerSet bool
}

// Open opens the serial port and configures the modem for mod.
func Open(cfg Config) (*Modem, error) {
	if cfg.Baud <= 0 {
		cfg.Baud = DefaultBaud
	}
	port, err := serial.OpenPort(&serial.Config{
		Name: cfg.Port,
		Baud: cfg.Baud,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Port, err)
	}
	m := New(port, cfg.CommandTimeout)
	if err := m.Configure(context.Background(), cfg.Modulation); err != nil {
		m.Close()
		return nil, err
	}
	return m, nil
}

// New starts a modem on an already open port.
func New(rw io.ReadWriteCloser, timeout time.Duration) *Modem {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	m := &Modem{
		rw:      rw,
		timeout: timeout,
		replies: make(chan string, 4),
		frames:  make(chan rxFrame, 8),
		done:    make(chan struct{}),
	}
	go m.readLoop()
	return m
}

// Configure checks the modem answers and programs band and modulation.
func (m *Modem) Configure(ctx context.Context, mod radio.Modulation) error {
	if err := mod.Validate(); err != nil {
		return err
	}
	bw, _ := radio.BandwidthCode(mod.BandwidthHz)
	cmds := []string{
		"AT",
		fmt.Sprintf("AT+BAND=%d", mod.FrequencyHz),
		fmt.Sprintf("AT+PARAMETER=%d,%d,%d,%d", mod.SpreadingFactor, bw, mod.CodingRate-4, mod.PreambleLength),
	}
	for _, cmd := range cmds {
		if err := m.Command(ctx, cmd); err != nil {
			return err
		}
	}
	logs.LogInfo.Printf("lora modem configured: %d Hz SF%d BW%d CR4/%d preamble %d",
		mod.FrequencyHz, mod.SpreadingFactor, mod.BandwidthHz, mod.CodingRate, mod.PreambleLength)
	return nil
}

// Command sends one AT command and waits for +OK or +ERR.
func (m *Modem) Command(ctx context.Context, cmd string) error {
	m.cmdMux.Lock()
	defer m.cmdMux.Unlock()

drain:
	for {
		select {
		case <-m.replies:
		default:
			break drain
		}
	}

	logs.LogBuild.Printf("lora modem <- %s", cmd)
	if _, err := io.WriteString(m.rw, cmd+"\r\n"); err != nil {
		return fmt.Errorf("%s: %w", cmd, err)
	}

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()
	select {
	case reply := <-m.replies:
		if strings.HasPrefix(reply, "+ERR=") {
			code, _ := strconv.Atoi(strings.TrimPrefix(reply, "+ERR="))
			return &CommandError{Cmd: cmd, Code: code}
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("%s: %w", cmd, ErrTimeout)
	case <-m.done:
		return radio.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Modem) Transmit(ctx context.Context, powerDBm int8, data []byte) error {
	if len(data) > MaxPayload {
		return fmt.Errorf("%w: %d bytes", radio.ErrPayloadTooLarge, len(data))
	}
	m.mux.Lock()
	setPower := !m.powerSet || m.power != powerDBm
	m.mux.Unlock()
	if setPower {
		if err := m.Command(ctx, fmt.Sprintf("AT+CRFOP=%d", powerDBm)); err != nil {
			return err
		}
		m.mux.Lock()
		m.power, m.powerSet = powerDBm, true
		m.mux.Unlock()
	}
	cmd := fmt.Sprintf("AT+SEND=0,%d,%s", len(data), strings.ToUpper(hex.EncodeToString(data)))
	return m.Command(ctx, cmd)
}

func (m *Modem) StartReceive(mode radio.RxMode) error {
	if err := m.Command(context.Background(), "AT+MODE=0"); err != nil {
		return err
	}
	m.mux.Lock()
	m.armed, m.mode = true, mode
	m.mux.Unlock()
	return nil
}

func (m *Modem) Receive(ctx context.Context, buf []byte) (int, radio.SignalQuality, error) {
	select {
	case f := <-m.frames:
		if len(f.data) > len(buf) {
			return 0, f.q, fmt.Errorf("%w: %d bytes", radio.ErrPayloadTooLarge, len(f.data))
		}
		return copy(buf, f.data), f.q, nil
	case <-m.done:
		return 0, radio.SignalQuality{}, radio.ErrClosed
	case <-ctx.Done():
		return 0, radio.SignalQuality{}, ctx.Err()
	}
}

func (m *Modem) Close() error {
	var err error
	m.once.Do(func() {
		close(m.done)
		err = m.rw.Close()
	})
	return err
}

func (m *Modem) readLoop() {
	defer m.once.Do(func() {
		close(m.done)
		m.rw.Close()
	})
	reader := bufio.NewReader(m.rw)
	for {
		line, err := reader.ReadString('\n')
		if s := strings.TrimSpace(line); len(s) > 0 {
			m.handleLine(s)
		}
		if err != nil {
			select {
			case <-m.done:
			default:
				logs.LogError.Printf("lora modem read error: %s", err)
			}
			return
		}
	}
}

func (m *Modem) handleLine(line string) {
	logs.LogBuild.Printf("lora modem -> %s", line)
	switch {
	case line == "+OK" || strings.HasPrefix(line, "+ERR="):
		select {
		case m.replies <- line:
		default:
			logs.LogWarn.Printf("lora modem unexpected reply %q", line)
		}
	case strings.HasPrefix(line, "+RCV="):
		data, q, err := parseRCV(line)
		if err != nil {
			logs.LogWarn.Printf("lora modem: %s", err)
			return
		}
		m.mux.Lock()
		armed := m.armed
		if armed && m.mode == radio.RxSingle {
			m.armed = false
		}
		m.mux.Unlock()
		if !armed {
			logs.LogBuild.Printf("lora modem frame while receiver disarmed, dropped")
			return
		}
		select {
		case m.frames <- rxFrame{data: data, q: q}:
		default:
			logs.LogWarn.Printf("lora modem rx buffer full, frame dropped")
		}
	case line == "+READY":
		logs.LogInfo.Println("lora modem ready")
	}
}

// parseRCV parses +RCV=<addr>,<len>,<hex>,<rssi>,<snr>.
func parseRCV(line string) ([]byte, radio.SignalQuality, error) {
	var q radio.SignalQuality
	fields := strings.Split(strings.TrimPrefix(line, "+RCV="), ",")
	if len(fields) != 5 {
		return nil, q, fmt.Errorf("malformed frame %q", line)
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, q, fmt.Errorf("malformed length in %q: %w", line, err)
	}
	data, err := hex.DecodeString(fields[2])
	if err != nil {
		return nil, q, fmt.Errorf("malformed payload in %q: %w", line, err)
	}
	if len(data) != n {
		return nil, q, fmt.Errorf("length %d does not match payload of %d bytes", n, len(data))
	}
	rssi, err := strconv.ParseInt(fields[3], 10, 16)
	if err != nil {
		return nil, q, fmt.Errorf("malformed rssi in %q: %w", line, err)
	}
	snr, err := strconv.ParseInt(fields[4], 10, 8)
	if err != nil {
		return nil, q, fmt.Errorf("malformed snr in %q: %w", line, err)
	}
	q.RSSI, q.SNR = int16(rssi), int8(snr)
	return data, q, nil
}
