package shortrange

import "fmt"

// GATT layout of the bridge service.
const (
	ServiceUUID uint16 = 0x1234
	// TxUUID is notified with frames going to the phone.
	TxUUID uint16 = 0x5678
	// RxUUID is written by the phone with frames for the long-range link.
	RxUUID uint16 = 0x5679

	DefaultLocalName = "LoRa-Bridge"
)

type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventWrite
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventWrite:
		return "write"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is reported by a Peripheral. Attr and Data are set for EventWrite.
type Event struct {
	Kind EventKind
	Attr uint16
	Data []byte
}

// Peripheral is the short-range radio stack seen from the bridge: a GATT
// server exposing the bridge service to a single central.
type Peripheral interface {
	// Start brings up the stack and registers the service.
	Start() error
	// Advertise (re)starts advertising so a central can connect.
	Advertise() error
	Events() <-chan Event
	// Notify sends data on the TX attribute.
	Notify(data []byte) error
}
