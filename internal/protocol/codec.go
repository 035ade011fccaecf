package protocol

import (
	"encoding/binary"
	"fmt"
)

// FrameLen returns the encoded size of msg without encoding it. Text
// messages are sized by character count only; alphabet membership is not
// checked.
func FrameLen(msg Message) (int, error) {
	switch m := msg.(type) {
	case Text:
		n := len([]rune(m.Text))
		if n > MaxTextLength {
			return 0, ErrTextTooLong
		}
		return TextHeaderSize + PackedLen(n), nil
	case Gps:
		return GpsFrameSize, nil
	case Ack:
		return AckFrameSize, nil
	default:
		return 0, ErrUnknownMessageType
	}
}

// Encode serialises msg into buf and returns the number of bytes written.
func Encode(msg Message, buf []byte) (int, error) {
	switch m := msg.(type) {
	case Text:
		return encodeText(m, buf)
	case Gps:
		if len(buf) < GpsFrameSize {
			return 0, fmt.Errorf("%w: gps needs %d bytes, have %d", ErrBufferTooSmall, GpsFrameSize, len(buf))
		}
		buf[0] = byte(TypeGps)
		buf[1] = m.Seq
		binary.LittleEndian.PutUint32(buf[2:6], uint32(m.Lat))
		binary.LittleEndian.PutUint32(buf[6:10], uint32(m.Lon))
		return GpsFrameSize, nil
	case Ack:
		if len(buf) < AckFrameSize {
			return 0, fmt.Errorf("%w: ack needs %d bytes, have %d", ErrBufferTooSmall, AckFrameSize, len(buf))
		}
		buf[0] = byte(TypeAck)
		buf[1] = m.Seq
		return AckFrameSize, nil
	default:
		return 0, ErrUnknownMessageType
	}
}

func encodeText(m Text, buf []byte) (int, error) {
	syms, err := symbols(m.Text)
	if err != nil {
		return 0, err
	}
	packedLen := PackedLen(len(syms))
	total := TextHeaderSize + packedLen
	if len(buf) < total {
		return 0, fmt.Errorf("%w: text needs %d bytes, have %d", ErrBufferTooSmall, total, len(buf))
	}
	buf[0] = byte(TypeText)
	buf[1] = m.Seq
	buf[2] = byte(len(syms))
	buf[3] = byte(packedLen)
	pack(buf[TextHeaderSize:total], syms)
	return total, nil
}

// Marshal encodes msg into a newly allocated slice of exactly the frame length.
func Marshal(msg Message) ([]byte, error) {
	var scratch [MaxFrameSize]byte
	n, err := Encode(msg, scratch[:])
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, scratch[:n])
	return out, nil
}

// Decode parses a frame. Bytes past the end of the declared frame are
// ignored.
func Decode(buf []byte) (Message, error) {
	if len(buf) == 0 {
		return nil, ErrEmptyBuffer
	}
	switch MessageType(buf[0]) {
	case TypeText:
		if len(buf) < TextHeaderSize {
			return nil, fmt.Errorf("%w: text header needs %d bytes, have %d", ErrBufferTooSmall, TextHeaderSize, len(buf))
		}
		count := int(buf[2])
		packedLen := int(buf[3])
		if len(buf) < TextHeaderSize+packedLen {
			return nil, fmt.Errorf("%w: declared %d packed bytes, have %d", ErrBufferTooSmall, packedLen, len(buf)-TextHeaderSize)
		}
		if count > MaxTextLength {
			return nil, fmt.Errorf("%w: declared %d characters", ErrTextTooLong, count)
		}
		text, err := unpack(buf[TextHeaderSize:TextHeaderSize+packedLen], count)
		if err != nil {
			return nil, err
		}
		return Text{Seq: buf[1], Text: text}, nil
	case TypeGps:
		if len(buf) < GpsFrameSize {
			return nil, fmt.Errorf("%w: gps needs %d bytes, have %d", ErrBufferTooSmall, GpsFrameSize, len(buf))
		}
		return Gps{
			Seq: buf[1],
			Lat: int32(binary.LittleEndian.Uint32(buf[2:6])),
			Lon: int32(binary.LittleEndian.Uint32(buf[6:10])),
		}, nil
	case TypeAck:
		if len(buf) < AckFrameSize {
			return nil, fmt.Errorf("%w: ack needs %d bytes, have %d", ErrBufferTooSmall, AckFrameSize, len(buf))
		}
		return Ack{Seq: buf[1]}, nil
	default:
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnknownMessageType, buf[0])
	}
}
