package protocol

import "fmt"

// MessageType is the tag carried in byte 0 of every frame.
type MessageType uint8

const (
	TypeText MessageType = 0x01
	TypeGps  MessageType = 0x02
	TypeAck  MessageType = 0x03
)

func (t MessageType) String() string {
	switch t {
	case TypeText:
		return "TEXT"
	case TypeGps:
		return "GPS"
	case TypeAck:
		return "ACK"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02X)", uint8(t))
	}
}

// Message is the closed union of frames understood by the bridge: Text, Gps
// and Ack. Seq is an opaque correlation tag assigned by the sender; it is not
// checked for uniqueness.
type Message interface {
	Type() MessageType
	Sequence() uint8
	isMessage()
}

// Text carries up to MaxTextLength characters of Alphabet. Lowercase ASCII
// letters are accepted and folded to uppercase on encode.
type Text struct {
	Seq  uint8
	Text string
}

// Gps carries a position in degrees × 1e6.
type Gps struct {
	Seq uint8
	Lat int32
	Lon int32
}

// Ack confirms receipt of the Text or Gps frame with the same Seq.
type Ack struct {
	Seq uint8
}

func (Text) Type() MessageType { return TypeText }
func (Gps) Type() MessageType  { return TypeGps }
func (Ack) Type() MessageType  { return TypeAck }

func (m Text) Sequence() uint8 { return m.Seq }
func (m Gps) Sequence() uint8  { return m.Seq }
func (m Ack) Sequence() uint8  { return m.Seq }

func (Text) isMessage() {}
func (Gps) isMessage()  {}
func (Ack) isMessage()  {}

func (m Text) String() string {
	return fmt.Sprintf("Text{seq=%d text=%q}", m.Seq, m.Text)
}

func (m Gps) String() string {
	return fmt.Sprintf("Gps{seq=%d lat=%.6f lon=%.6f}", m.Seq, Degrees(m.Lat), Degrees(m.Lon))
}

func (m Ack) String() string {
	return fmt.Sprintf("Ack{seq=%d}", m.Seq)
}

// Degrees converts a fixed-point coordinate to degrees.
func Degrees(v int32) float64 {
	return float64(v) / 1e6
}

// FixedPoint converts degrees to the fixed-point wire representation,
// rounding to the nearest micro-degree.
func FixedPoint(deg float64) int32 {
	if deg < 0 {
		return int32(deg*1e6 - 0.5)
	}
	return int32(deg*1e6 + 0.5)
}
