package config

import (
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"spreading factor", func(c *Config) { c.LoRa.SpreadingFactor = 13 }, "lora"},
		{"bandwidth", func(c *Config) { c.LoRa.BandwidthHz = 100000 }, "lora"},
		{"duty cycle", func(c *Config) { c.LoRa.DutyCyclePercent = 101 }, "lora.duty_cycle_percent"},
		{"driver", func(c *Config) { c.Radio.Driver = "spi" }, "radio.driver"},
		{"uart port", func(c *Config) { c.Radio.Port = "" }, "radio.port"},
		{"uart baud", func(c *Config) { c.Radio.Baud = 0 }, "radio.baud"},
		{"transport", func(c *Config) { c.BLE.Transport = "usb" }, "ble.transport"},
		{"name", func(c *Config) { c.BLE.Name = "" }, "ble.name"},
		{"listen addr", func(c *Config) { c.BLE.Transport = "websocket"; c.BLE.ListenAddr = "" }, "ble.listen_addr"},
		{"inbound", func(c *Config) { c.Queues.InboundCapacity = -1 }, "queues.inbound_capacity"},
		{"broker", func(c *Config) { c.MQTT.Enabled = true; c.MQTT.Broker = "" }, "mqtt.broker"},
		{"beacon port", func(c *Config) { c.Beacon.Enabled = true; c.Beacon.Port = "" }, "beacon.port"},
		{"beacon interval", func(c *Config) { c.Beacon.Enabled = true; c.Beacon.Interval = 0 }, "beacon.interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			errs := cfg.Validate()
			if len(errs) != 1 {
				t.Fatalf("Validate() = %v, want exactly one error", errs)
			}
			if errs[0].Field != tt.field {
				t.Errorf("Field = %q, want %q", errs[0].Field, tt.field)
			}
		})
	}
}

func TestValidateSimIgnoresPort(t *testing.T) {
	cfg := Default()
	cfg.Radio.Driver = "sim"
	cfg.Radio.Port = ""
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("Validate() = %v, want none", errs)
	}
}

func TestValidationErrorsError(t *testing.T) {
	errs := ValidationErrors{
		{Field: "a", Value: 1, Message: "bad"},
		{Field: "b", Value: "x", Message: "worse"},
	}
	msg := errs.Error()
	if !strings.HasPrefix(msg, "2 validation errors:") {
		t.Errorf("Error() = %q", msg)
	}
	if !strings.Contains(msg, "b: worse (got: x)") {
		t.Errorf("Error() = %q, missing second error", msg)
	}
	if got := errs[:1].Error(); got != "a: bad (got: 1)" {
		t.Errorf("single Error() = %q", got)
	}
}
