package protocol

// Wire layout of the long-range frames. All multi-byte integers are little-endian.
//
//	Text: Type(1)=0x01 | Seq(1) | CharCount(1) | PackedLen(1) | Packed(PackedLen)
//	Gps:  Type(1)=0x02 | Seq(1) | Lat(4, i32) | Lon(4, i32)
//	Ack:  Type(1)=0x03 | Seq(1)
const (
	// MaxTextLength is the maximum number of characters carried by a Text message.
	MaxTextLength = 50

	// MaxFrameSize bounds any frame exchanged on either link (BLE attribute size and
	// LoRa receive buffer).
	MaxFrameSize = 64

	TextHeaderSize = 4
	GpsFrameSize   = 10
	AckFrameSize   = 2

	// MaxTextFrameSize is 4 + ceil(50*6/8) = 42 bytes.
	MaxTextFrameSize = TextHeaderSize + (MaxTextLength*bitsPerSymbol+7)/8

	bitsPerSymbol = 6
	symbolMask    = 0x3F
)

// Alphabet holds the 64 symbols a Text message can carry; the index of a
// symbol is its 6-bit code.
const Alphabet = " ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789.,!?-:;'\"@#$%&*()[]{}=+/<>_"
