package protocol

import "errors"

var (
	ErrTextTooLong            = errors.New("text too long")
	ErrUnsupportedCharacter   = errors.New("character not in supported alphabet")
	ErrBufferTooSmall         = errors.New("buffer too small")
	ErrEmptyBuffer            = errors.New("empty buffer")
	ErrInsufficientPackedData = errors.New("insufficient packed data")
	ErrUnknownMessageType     = errors.New("unknown message type")
)
