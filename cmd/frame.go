package main

import (
	"encoding/hex"
	"fmt"
	"math"
	"strings"

	"github.com/dumacp/go-lorabridge/internal/protocol"
	"github.com/spf13/cobra"
)

func newFrameCmd() *cobra.Command {
	frame := &cobra.Command{
		Use:   "frame",
		Short: "Encode and decode wire frames as hex",
	}
	frame.AddCommand(newFrameEncodeCmd(), newFrameDecodeCmd())
	return frame
}

func newFrameEncodeCmd() *cobra.Command {
	var (
		seq      uint8
		lat, lon float64
	)
	encode := &cobra.Command{
		Use:   "encode (text <message> | gps | ack)",
		Short: "Print the frame for a message",
		Example: `  lorabridge frame encode text --seq 42 SOS
  lorabridge frame encode gps --seq 1 --lat 4.123456 --lon -73.456789
  lorabridge frame encode ack --seq 200`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var msg protocol.Message
			switch strings.ToLower(args[0]) {
			case "text":
				if len(args) != 2 {
					return fmt.Errorf("text needs the message as argument")
				}
				msg = protocol.Text{Seq: seq, Text: args[1]}
			case "gps":
				if lat < -90 || lat > 90 || math.IsNaN(lat) {
					return fmt.Errorf("latitude %v outside [-90, 90]", lat)
				}
				if lon < -180 || lon > 180 || math.IsNaN(lon) {
					return fmt.Errorf("longitude %v outside [-180, 180]", lon)
				}
				msg = protocol.Gps{Seq: seq, Lat: protocol.FixedPoint(lat), Lon: protocol.FixedPoint(lon)}
			case "ack":
				msg = protocol.Ack{Seq: seq}
			default:
				return fmt.Errorf("unknown message type %q", args[0])
			}
			data, err := protocol.Marshal(msg)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.ToUpper(hex.EncodeToString(data)))
			return nil
		},
	}
	encode.Flags().Uint8Var(&seq, "seq", 0, "sequence number")
	encode.Flags().Float64Var(&lat, "lat", 0, "latitude in degrees")
	encode.Flags().Float64Var(&lon, "lon", 0, "longitude in degrees")
	return encode
}

func newFrameDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "decode <hex>",
		Short:   "Print the message carried by a frame",
		Example: "  lorabridge frame decode \"01 2A 03 03 4C F4 C0\"",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := strings.Join(args, "")
			raw = strings.NewReplacer(" ", "", ":", "").Replace(raw)
			data, err := hex.DecodeString(raw)
			if err != nil {
				return fmt.Errorf("invalid hex: %w", err)
			}
			msg, err := protocol.Decode(data)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
}
