package radio

import (
	"fmt"
	"time"
)

// Band is a licence-free frequency range.
type Band struct {
	Name  string
	MinHz uint32
	MaxHz uint32
}

// Bands the transmit frequency must fall in.
var Bands = []Band{
	{Name: "ISM433", MinHz: 433_050_000, MaxHz: 434_790_000},
	{Name: "ISM868", MinHz: 863_000_000, MaxHz: 870_000_000},
	{Name: "ISM915", MinHz: 902_000_000, MaxHz: 928_000_000},
}

// BandOf returns the band containing hz.
func BandOf(hz uint32) (Band, bool) {
	for _, b := range Bands {
		if hz >= b.MinHz && hz <= b.MaxHz {
			return b, true
		}
	}
	return Band{}, false
}

const (
	DefaultFrequencyHz     = 433_920_000
	DefaultPowerDBm        = 14
	MinPowerDBm            = -4
	MaxPowerDBm            = 20
	DefaultSpreadingFactor = 10
	DefaultBandwidthHz     = 125_000
	DefaultCodingRate      = 5
	DefaultPreamble        = 8
)

// Modulation holds the LoRa physical layer parameters. CodingRate is the
// denominator of 4/CR (5..8).
type Modulation struct {
	FrequencyHz     uint32
	SpreadingFactor int
	BandwidthHz     int
	CodingRate      int
	PreambleLength  int
	CRC             bool
	ImplicitHeader  bool
}

func DefaultModulation() Modulation {
	return Modulation{
		FrequencyHz:     DefaultFrequencyHz,
		SpreadingFactor: DefaultSpreadingFactor,
		BandwidthHz:     DefaultBandwidthHz,
		CodingRate:      DefaultCodingRate,
		PreambleLength:  DefaultPreamble,
		CRC:             true,
	}
}

// BandwidthCode returns the index used by modem firmware for the bandwidth
// (7 = 125 kHz, 8 = 250 kHz, 9 = 500 kHz).
func BandwidthCode(hz int) (int, bool) {
	switch hz {
	case 7_800:
		return 0, true
	case 10_400:
		return 1, true
	case 15_600:
		return 2, true
	case 20_800:
		return 3, true
	case 31_250:
		return 4, true
	case 41_700:
		return 5, true
	case 62_500:
		return 6, true
	case 125_000:
		return 7, true
	case 250_000:
		return 8, true
	case 500_000:
		return 9, true
	}
	return 0, false
}

func (m Modulation) Validate() error {
	if m.SpreadingFactor < 6 || m.SpreadingFactor > 12 {
		return fmt.Errorf("spreading factor %d out of range 6..12", m.SpreadingFactor)
	}
	if _, ok := BandwidthCode(m.BandwidthHz); !ok {
		return fmt.Errorf("unsupported bandwidth %d Hz", m.BandwidthHz)
	}
	if m.CodingRate < 5 || m.CodingRate > 8 {
		return fmt.Errorf("coding rate 4/%d out of range 4/5..4/8", m.CodingRate)
	}
	if m.PreambleLength < 6 || m.PreambleLength > 65535 {
		return fmt.Errorf("preamble length %d out of range", m.PreambleLength)
	}
	return nil
}

// SymbolDuration is 2^SF / BW.
func (m Modulation) SymbolDuration() time.Duration {
	return time.Duration((int64(1) << m.SpreadingFactor) * int64(time.Second) / int64(m.BandwidthHz))
}

// LowDataRateOptimize reports whether symbols are long enough (>= 16 ms)
// for the radio to enable low data rate optimisation.
func (m Modulation) LowDataRateOptimize() bool {
	return m.SymbolDuration() >= 16*time.Millisecond
}

// TimeOnAir returns the airtime of a payloadLen byte frame.
func (m Modulation) TimeOnAir(payloadLen int) time.Duration {
	sf := m.SpreadingFactor
	crc, ih, de := 0, 0, 0
	if m.CRC {
		crc = 1
	}
	if m.ImplicitHeader {
		ih = 1
	}
	if m.LowDataRateOptimize() {
		de = 1
	}

	num := 8*payloadLen - 4*sf + 28 + 16*crc - 20*ih
	den := 4 * (sf - 2*de)
	blocks := 0
	if num > 0 {
		blocks = (num + den - 1) / den
	}
	payloadSymbols := 8 + blocks*m.CodingRate

	// Quarter symbols: the preamble adds 4.25 symbols to the programmed length.
	quarters := int64(4*m.PreambleLength+17) + int64(4*payloadSymbols)
	return time.Duration(quarters * int64(m.SymbolDuration()) / 4)
}
