package protocol

import (
	"bytes"
	"testing"
)

func TestPack(t *testing.T) {
	tests := []struct {
		text string
		want []byte
	}{
		{"", []byte{}},
		{" ", []byte{0x00}},
		{"_", []byte{0xFC}},
		{"SOS", []byte{0x4C, 0xF4, 0xC0}},
		{"HELP", []byte{0x20, 0x53, 0x10}},
		{"____", []byte{0xFF, 0xFF, 0xFF}},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := Pack(tt.text)
			if err != nil {
				t.Fatalf("Pack(%q) error = %v", tt.text, err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Pack(%q) = % X, want % X", tt.text, got, tt.want)
			}
			back, err := Unpack(got, len(tt.text))
			if err != nil {
				t.Fatalf("Unpack() error = %v", err)
			}
			if back != tt.text {
				t.Errorf("Unpack() = %q, want %q", back, tt.text)
			}
		})
	}
}

func TestPackClearsDestination(t *testing.T) {
	dst := bytes.Repeat([]byte{0xFF}, 3)
	pack(dst, []byte{0, 0, 0, 0})
	if !bytes.Equal(dst, []byte{0, 0, 0}) {
		t.Errorf("pack() = % X, want 00 00 00", dst)
	}
}

func TestUnpackInsufficient(t *testing.T) {
	if _, err := Unpack([]byte{0xFF}, 2); err != ErrInsufficientPackedData {
		t.Errorf("Unpack() error = %v, want %v", err, ErrInsufficientPackedData)
	}
}

func TestPackedLen(t *testing.T) {
	tests := []struct{ n, want int }{
		{0, 0}, {1, 1}, {2, 2}, {3, 3}, {4, 3}, {5, 4}, {8, 6}, {50, 38},
	}
	for _, tt := range tests {
		if got := PackedLen(tt.n); got != tt.want {
			t.Errorf("PackedLen(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
}
