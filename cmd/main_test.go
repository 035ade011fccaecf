package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/dumacp/go-lorabridge/internal/protocol"
)

func executeCommand(args ...string) (string, error) {
	root := newRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestFrameEncode(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"text", []string{"frame", "encode", "text", "--seq", "42", "sos"}, "012A03034CF4C0"},
		{"gps", []string{"frame", "encode", "gps", "--seq", "1", "--lat", "4.123456", "--lon", "-73.456789"}, "020140EB3E006B239FFB"},
		{"ack", []string{"frame", "encode", "ack", "--seq", "200"}, "03C8"},
		{"empty text", []string{"frame", "encode", "text", "--seq", "9", ""}, "01090000"},
		{"gps corner", []string{"frame", "encode", "gps", "--lat", "90", "--lon", "-180"}, "0200804A5D05006B45F5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := executeCommand(tt.args...)
			if err != nil {
				t.Fatalf("error = %s", err)
			}
			if got := strings.TrimSpace(out); got != tt.want {
				t.Errorf("output = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFrameEncodeErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want error
	}{
		{"unsupported character", []string{"frame", "encode", "text", "a|b"}, protocol.ErrUnsupportedCharacter},
		{"too long", []string{"frame", "encode", "text", strings.Repeat("A", 51)}, protocol.ErrTextTooLong},
		{"unknown type", []string{"frame", "encode", "ping"}, nil},
		{"missing text", []string{"frame", "encode", "text"}, nil},
		{"latitude above range", []string{"frame", "encode", "gps", "--lat", "90.5"}, nil},
		{"latitude below range", []string{"frame", "encode", "gps", "--lat", "-3000"}, nil},
		{"longitude above range", []string{"frame", "encode", "gps", "--lon", "2200"}, nil},
		{"longitude below range", []string{"frame", "encode", "gps", "--lon", "-180.1"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executeCommand(tt.args...)
			if err == nil {
				t.Fatal("expected an error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestFrameDecode(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"spaced", []string{"frame", "decode", "01 2A 03 03 4C F4 C0"}, `Text{seq=42 text="SOS"}`},
		{"split args", []string{"frame", "decode", "03", "C8"}, "Ack{seq=200}"},
		{"lowercase", []string{"frame", "decode", "03c8"}, "Ack{seq=200}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := executeCommand(tt.args...)
			if err != nil {
				t.Fatalf("error = %s", err)
			}
			if got := strings.TrimSpace(out); got != tt.want {
				t.Errorf("output = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFrameDecodeErrors(t *testing.T) {
	if _, err := executeCommand("frame", "decode", "zz"); err == nil {
		t.Error("invalid hex accepted")
	}
	if _, err := executeCommand("frame", "decode", "07"); !errors.Is(err, protocol.ErrUnknownMessageType) {
		t.Errorf("error = %v, want %v", err, protocol.ErrUnknownMessageType)
	}
}

func TestVersion(t *testing.T) {
	out, err := executeCommand("version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, versionString) {
		t.Errorf("output = %q", out)
	}
}
