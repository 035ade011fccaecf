package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dumacp/go-logs/pkg/logs"
	"github.com/dumacp/go-lorabridge/internal/queue"
	"github.com/dumacp/go-lorabridge/internal/radio"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. LORABRIDGE_BLE_NAME.
const EnvPrefix = "LORABRIDGE"

// Config is the complete bridge configuration.
type Config struct {
	LoRa    LoRaConfig    `mapstructure:"lora"`
	Radio   RadioConfig   `mapstructure:"radio"`
	BLE     BLEConfig     `mapstructure:"ble"`
	Queues  QueuesConfig  `mapstructure:"queues"`
	MQTT    MQTTConfig    `mapstructure:"mqtt"`
	Journal JournalConfig `mapstructure:"journal"`
	Beacon  BeaconConfig  `mapstructure:"beacon"`
}

// LoRaConfig holds the long-range link settings. TxPowerDBm and FrequencyHz
// are resolved from raw values with fallback to defaults.
type LoRaConfig struct {
	TxPowerDBm       int8    `mapstructure:"-"`
	FrequencyHz      uint32  `mapstructure:"-"`
	SpreadingFactor  int     `mapstructure:"spreading_factor"`
	BandwidthHz      int     `mapstructure:"bandwidth_hz"`
	CodingRate       int     `mapstructure:"coding_rate"`
	Preamble         int     `mapstructure:"preamble"`
	DutyCyclePercent float64 `mapstructure:"duty_cycle_percent"`
}

// RadioConfig selects the transceiver driver.
type RadioConfig struct {
	// Driver is "uart" for an AT-command modem or "sim" for an in-memory radio.
	Driver string `mapstructure:"driver"`
	Port   string `mapstructure:"port"`
	Baud   int    `mapstructure:"baud"`
}

// BLEConfig selects the short-range transport.
type BLEConfig struct {
	// Transport is "gatt" for the host adapter or "websocket" for emulation.
	Transport  string `mapstructure:"transport"`
	Name       string `mapstructure:"name"`
	ListenAddr string `mapstructure:"listen_addr"`
}

type QueuesConfig struct {
	OutboundCapacity int `mapstructure:"outbound_capacity"`
	InboundCapacity  int `mapstructure:"inbound_capacity"`
}

type MQTTConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Broker  string `mapstructure:"broker"`
}

type JournalConfig struct {
	// Path of the SQLite journal; empty disables it.
	Path string `mapstructure:"path"`
}

// BeaconConfig controls the optional own-position beacon.
type BeaconConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Port        string        `mapstructure:"port"`
	Baud        int           `mapstructure:"baud"`
	Interval    time.Duration `mapstructure:"interval"`
	DistanceMin int           `mapstructure:"distance_min"`
}

// Modulation returns the radio parameters described by c.
func (c *LoRaConfig) Modulation() radio.Modulation {
	return radio.Modulation{
		FrequencyHz:     c.FrequencyHz,
		SpreadingFactor: c.SpreadingFactor,
		BandwidthHz:     c.BandwidthHz,
		CodingRate:      c.CodingRate,
		PreambleLength:  c.Preamble,
		CRC:             true,
	}
}

func Default() *Config {
	return &Config{
		LoRa: LoRaConfig{
			TxPowerDBm:       radio.DefaultPowerDBm,
			FrequencyHz:      radio.DefaultFrequencyHz,
			SpreadingFactor:  radio.DefaultSpreadingFactor,
			BandwidthHz:      radio.DefaultBandwidthHz,
			CodingRate:       radio.DefaultCodingRate,
			Preamble:         radio.DefaultPreamble,
			DutyCyclePercent: 1.0,
		},
		Radio: RadioConfig{
			Driver: "uart",
			Port:   "/dev/ttyLORA",
			Baud:   115200,
		},
		BLE: BLEConfig{
			Transport:  "gatt",
			Name:       "LoRa-Bridge",
			ListenAddr: ":8086",
		},
		Queues: QueuesConfig{
			OutboundCapacity: queue.DefaultOutboundCapacity,
			InboundCapacity:  queue.DefaultInboundCapacity,
		},
		MQTT: MQTTConfig{
			Enabled: false,
			Broker:  "tcp://127.0.0.1:1883",
		},
		Beacon: BeaconConfig{
			Enabled:     false,
			Port:        "/dev/ttyGPS",
			Baud:        9600,
			Interval:    10 * time.Minute,
			DistanceMin: 50,
		},
	}
}

// SetDefaults registers defaults and environment bindings on the global viper.
func SetDefaults() {
	setDefaults(viper.GetViper())
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("lora.tx_power_dbm", d.LoRa.TxPowerDBm)
	v.SetDefault("lora.frequency_hz", d.LoRa.FrequencyHz)
	v.SetDefault("lora.spreading_factor", d.LoRa.SpreadingFactor)
	v.SetDefault("lora.bandwidth_hz", d.LoRa.BandwidthHz)
	v.SetDefault("lora.coding_rate", d.LoRa.CodingRate)
	v.SetDefault("lora.preamble", d.LoRa.Preamble)
	v.SetDefault("lora.duty_cycle_percent", d.LoRa.DutyCyclePercent)

	v.SetDefault("radio.driver", d.Radio.Driver)
	v.SetDefault("radio.port", d.Radio.Port)
	v.SetDefault("radio.baud", d.Radio.Baud)

	v.SetDefault("ble.transport", d.BLE.Transport)
	v.SetDefault("ble.name", d.BLE.Name)
	v.SetDefault("ble.listen_addr", d.BLE.ListenAddr)

	v.SetDefault("queues.outbound_capacity", d.Queues.OutboundCapacity)
	v.SetDefault("queues.inbound_capacity", d.Queues.InboundCapacity)

	v.SetDefault("mqtt.enabled", d.MQTT.Enabled)
	v.SetDefault("mqtt.broker", d.MQTT.Broker)

	v.SetDefault("journal.path", d.Journal.Path)

	v.SetDefault("beacon.enabled", d.Beacon.Enabled)
	v.SetDefault("beacon.port", d.Beacon.Port)
	v.SetDefault("beacon.baud", d.Beacon.Baud)
	v.SetDefault("beacon.interval", d.Beacon.Interval)
	v.SetDefault("beacon.distance_min", d.Beacon.DistanceMin)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Build-time variable names used by deployed devices.
	v.BindEnv("lora.tx_power_dbm", EnvPrefix+"_LORA_TX_POWER_DBM", "LORA_TX_POWER_DBM")
	v.BindEnv("lora.frequency_hz", EnvPrefix+"_LORA_FREQUENCY_HZ", "LORA_TX_FREQUENCY")
}

// Load reads the global viper into a Config. Invalid transmit power or
// frequency values fall back to their defaults and are reported as
// warnings; other invalid values are errors.
func Load() (*Config, []Warning, error) {
	return load(viper.GetViper())
}

func load(v *viper.Viper) (*Config, []Warning, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, err
	}

	var warnings []Warning
	power, w := ResolveTxPower(v.GetString("lora.tx_power_dbm"))
	if w != nil {
		warnings = append(warnings, *w)
	}
	freq, w := ResolveFrequency(v.GetString("lora.frequency_hz"))
	if w != nil {
		warnings = append(warnings, *w)
	}
	cfg.LoRa.TxPowerDBm, cfg.LoRa.FrequencyHz = power, freq

	for _, w := range warnings {
		logs.LogWarn.Println(w)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, warnings, ValidationErrors(errs)
	}
	return &cfg, warnings, nil
}

// Warning reports a configuration value that was replaced by its default.
type Warning struct {
	Field   string
	Value   string
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s (got: %q), using default", w.Field, w.Message, w.Value)
}

// ResolveTxPower parses a transmit power in dBm. Empty, unparseable or
// out-of-range values resolve to the default; only the last two warn.
func ResolveTxPower(raw string) (int8, *Warning) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return radio.DefaultPowerDBm, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return radio.DefaultPowerDBm, &Warning{Field: "lora.tx_power_dbm", Value: raw, Message: "not an integer"}
	}
	if v < radio.MinPowerDBm || v > radio.MaxPowerDBm {
		return radio.DefaultPowerDBm, &Warning{
			Field: "lora.tx_power_dbm", Value: raw,
			Message: fmt.Sprintf("must be between %d and %d dBm", radio.MinPowerDBm, radio.MaxPowerDBm),
		}
	}
	return int8(v), nil
}

// ResolveFrequency parses a transmit frequency in Hz and checks it lies in
// one of radio.Bands.
func ResolveFrequency(raw string) (uint32, *Warning) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return radio.DefaultFrequencyHz, nil
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return radio.DefaultFrequencyHz, &Warning{Field: "lora.frequency_hz", Value: raw, Message: "not a frequency in Hz"}
	}
	if _, ok := radio.BandOf(uint32(v)); !ok {
		return radio.DefaultFrequencyHz, &Warning{
			Field: "lora.frequency_hz", Value: raw,
			Message: "outside 433.05-434.79, 863-870 and 902-928 MHz",
		}
	}
	return uint32(v), nil
}
