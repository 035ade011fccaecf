package protocol

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// PackedLen returns the number of bytes needed to hold n 6-bit symbols.
func PackedLen(n int) int {
	return (n*bitsPerSymbol + 7) / 8
}

// symbolOf maps a character to its 6-bit code, folding ASCII lowercase to
// uppercase first.
func symbolOf(r rune) (byte, bool) {
	if r >= 'a' && r <= 'z' {
		r -= 'a' - 'A'
	}
	if r >= utf8.RuneSelf {
		return 0, false
	}
	i := strings.IndexByte(Alphabet, byte(r))
	if i < 0 {
		return 0, false
	}
	return byte(i), true
}

// symbols validates text and returns its 6-bit codes.
func symbols(text string) ([]byte, error) {
	if utf8.RuneCountInString(text) > MaxTextLength {
		return nil, ErrTextTooLong
	}
	out := make([]byte, 0, len(text))
	pos := 0
	for _, r := range text {
		v, ok := symbolOf(r)
		if !ok {
			return nil, fmt.Errorf("%w: %q at position %d", ErrUnsupportedCharacter, r, pos)
		}
		out = append(out, v)
		pos++
	}
	return out, nil
}

// pack concatenates the 6-bit codes MSB-first into dst, which must hold at
// least PackedLen(len(syms)) bytes. Trailing bits of the last byte stay zero.
func pack(dst []byte, syms []byte) {
	n := PackedLen(len(syms))
	for i := 0; i < n; i++ {
		dst[i] = 0
	}
	bit := 0
	for _, v := range syms {
		idx, off := bit/8, bit%8
		if off <= 2 {
			dst[idx] |= v << (2 - off)
		} else {
			dst[idx] |= v >> (off - 2)
			dst[idx+1] |= v << (10 - off)
		}
		bit += bitsPerSymbol
	}
}

// Pack returns the 6-bit packed form of text.
func Pack(text string) ([]byte, error) {
	syms, err := symbols(text)
	if err != nil {
		return nil, err
	}
	out := make([]byte, PackedLen(len(syms)))
	pack(out, syms)
	return out, nil
}

// Unpack decodes count characters from packed.
func Unpack(packed []byte, count int) (string, error) {
	return unpack(packed, count)
}

// unpack reads count 6-bit codes from packed and maps them back through
// Alphabet.
func unpack(packed []byte, count int) (string, error) {
	if count*bitsPerSymbol > len(packed)*8 {
		return "", ErrInsufficientPackedData
	}
	var sb strings.Builder
	sb.Grow(count)
	bit := 0
	for i := 0; i < count; i++ {
		idx, off := bit/8, bit%8
		var v byte
		if off <= 2 {
			v = packed[idx] >> (2 - off)
		} else {
			v = packed[idx]<<(off-2) | packed[idx+1]>>(10-off)
		}
		sb.WriteByte(Alphabet[v&symbolMask])
		bit += bitsPerSymbol
	}
	return sb.String(), nil
}
