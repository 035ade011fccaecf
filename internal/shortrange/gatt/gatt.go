// Package gatt exposes the bridge service on the host Bluetooth adapter.
package gatt

import (
	"errors"
	"sync"

	"github.com/dumacp/go-logs/pkg/logs"
	"github.com/dumacp/go-lorabridge/internal/protocol"
	"github.com/dumacp/go-lorabridge/internal/shortrange"
	"tinygo.org/x/bluetooth"
)

var ErrNotStarted = errors.New("gatt peripheral not started")

var (
	serviceUUID = bluetooth.New16BitUUID(shortrange.ServiceUUID)
	txUUID      = bluetooth.New16BitUUID(shortrange.TxUUID)
	rxUUID      = bluetooth.New16BitUUID(shortrange.RxUUID)
)

// Peripheral implements shortrange.Peripheral with tinygo bluetooth.
type Peripheral struct {
	adapter *bluetooth.Adapter
	name    string
	events  chan shortrange.Event

	mux     sync.Mutex
	started bool
	tx      bluetooth.Characteristic
	adv     *bluetooth.Advertisement

	watcher Watcher

	connMux   sync.Mutex
	connected bool
	peer      string
}

// New returns a peripheral on the default adapter that follows link state
// through BlueZ.
func New(name string) *Peripheral {
	p := newPeripheral(name, NewBlueZWatcher())
	p.adapter = bluetooth.DefaultAdapter
	return p
}

func newPeripheral(name string, w Watcher) *Peripheral {
	if name == "" {
		name = shortrange.DefaultLocalName
	}
	return &Peripheral{
		name:    name,
		events:  make(chan shortrange.Event, 16),
		watcher: w,
	}
}

func (p *Peripheral) Start() error {
	// The handler must be in place before Enable.
	p.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		p.link(ConnChange{Address: device.Address.String(), Connected: connected})
	})
	if err := p.adapter.Enable(); err != nil {
		return err
	}
	if err := p.watch(); err != nil {
		logs.LogWarn.Printf("ble link watcher unavailable, relying on connect handler: %s", err)
	}

	p.mux.Lock()
	defer p.mux.Unlock()
	err := p.adapter.AddService(&bluetooth.Service{
		UUID: serviceUUID,
		Characteristics: []bluetooth.CharacteristicConfig{
			{
				UUID:       rxUUID,
				Flags:      bluetooth.CharacteristicWritePermission | bluetooth.CharacteristicWriteWithoutResponsePermission,
				Value:      make([]byte, protocol.MaxFrameSize),
				WriteEvent: p.onWrite,
			},
			{
				Handle: &p.tx,
				UUID:   txUUID,
				Flags:  bluetooth.CharacteristicNotifyPermission | bluetooth.CharacteristicReadPermission,
				Value:  make([]byte, protocol.MaxFrameSize),
			},
		},
	})
	if err != nil {
		return err
	}
	p.started = true
	return nil
}

// onWrite runs on the Bluetooth stack's goroutine. Some stacks never report
// the connection of a peripheral-role link, so the first write counts as one.
func (p *Peripheral) onWrite(client bluetooth.Connection, offset int, value []byte) {
	if offset != 0 {
		logs.LogWarn.Printf("ble write at offset %d ignored", offset)
		return
	}
	p.link(ConnChange{Connected: true})
	data := make([]byte, len(value))
	copy(data, value)
	p.emit(shortrange.Event{Kind: shortrange.EventWrite, Attr: shortrange.RxUUID, Data: data})
}

func (p *Peripheral) Advertise() error {
	p.mux.Lock()
	defer p.mux.Unlock()
	if !p.started {
		return ErrNotStarted
	}
	if p.adv == nil {
		p.adv = p.adapter.DefaultAdvertisement()
		if err := p.adv.Configure(bluetooth.AdvertisementOptions{
			LocalName:    p.name,
			ServiceUUIDs: []bluetooth.UUID{serviceUUID},
		}); err != nil {
			p.adv = nil
			return err
		}
	}
	return p.adv.Start()
}

func (p *Peripheral) Events() <-chan shortrange.Event { return p.events }

func (p *Peripheral) Notify(data []byte) error {
	p.mux.Lock()
	defer p.mux.Unlock()
	if !p.started {
		return ErrNotStarted
	}
	_, err := p.tx.Write(data)
	return err
}

func (p *Peripheral) watch() error {
	if p.watcher == nil {
		return nil
	}
	changes, err := p.watcher.Watch()
	if err != nil {
		return err
	}
	go func() {
		for c := range changes {
			p.link(c)
		}
	}()
	return nil
}

// link turns a link change into a connection event. Only the first central
// is tracked; a disconnect from any other device is ignored. An empty
// address comes from an implicit connect and matches any disconnect.
func (p *Peripheral) link(c ConnChange) {
	p.connMux.Lock()
	if c.Connected {
		if p.connected {
			p.connMux.Unlock()
			return
		}
		p.connected = true
		p.peer = c.Address
		p.connMux.Unlock()
		logs.LogInfo.Printf("ble central connected: %s", c.Address)
		p.emit(shortrange.Event{Kind: shortrange.EventConnected})
		return
	}
	if !p.connected || (p.peer != "" && c.Address != "" && p.peer != c.Address) {
		p.connMux.Unlock()
		return
	}
	p.connected = false
	p.peer = ""
	p.connMux.Unlock()
	logs.LogInfo.Printf("ble central disconnected: %s", c.Address)
	p.emit(shortrange.Event{Kind: shortrange.EventDisconnected})
}

// Close stops the link watcher.
func (p *Peripheral) Close() error {
	if p.watcher == nil {
		return nil
	}
	return p.watcher.Close()
}

func (p *Peripheral) emit(ev shortrange.Event) {
	select {
	case p.events <- ev:
	default:
		logs.LogWarn.Printf("ble event %s dropped, bridge busy", ev.Kind)
	}
}
