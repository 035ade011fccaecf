package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

func ValidRadioDrivers() []string {
	return []string{"uart", "sim"}
}

func ValidBLETransports() []string {
	return []string{"gatt", "websocket"}
}

// Validate checks c for invalid values and returns every failure found.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError

	if err := c.LoRa.Modulation().Validate(); err != nil {
		errs = append(errs, ValidationError{Field: "lora", Value: c.LoRa.SpreadingFactor, Message: err.Error()})
	}
	if c.LoRa.DutyCyclePercent < 0 || c.LoRa.DutyCyclePercent > 100 {
		errs = append(errs, ValidationError{Field: "lora.duty_cycle_percent", Value: c.LoRa.DutyCyclePercent, Message: "must be between 0 and 100"})
	}

	if !slices.Contains(ValidRadioDrivers(), c.Radio.Driver) {
		errs = append(errs, ValidationError{
			Field: "radio.driver", Value: c.Radio.Driver,
			Message: fmt.Sprintf("must be one of %s", strings.Join(ValidRadioDrivers(), ", ")),
		})
	}
	if c.Radio.Driver == "uart" {
		if c.Radio.Port == "" {
			errs = append(errs, ValidationError{Field: "radio.port", Value: c.Radio.Port, Message: "required for the uart driver"})
		}
		if c.Radio.Baud <= 0 {
			errs = append(errs, ValidationError{Field: "radio.baud", Value: c.Radio.Baud, Message: "must be positive"})
		}
	}

	if !slices.Contains(ValidBLETransports(), c.BLE.Transport) {
		errs = append(errs, ValidationError{
			Field: "ble.transport", Value: c.BLE.Transport,
			Message: fmt.Sprintf("must be one of %s", strings.Join(ValidBLETransports(), ", ")),
		})
	}
	if c.BLE.Name == "" {
		errs = append(errs, ValidationError{Field: "ble.name", Value: c.BLE.Name, Message: "must not be empty"})
	}
	if c.BLE.Transport == "websocket" && c.BLE.ListenAddr == "" {
		errs = append(errs, ValidationError{Field: "ble.listen_addr", Value: c.BLE.ListenAddr, Message: "required for the websocket transport"})
	}

	if c.Queues.OutboundCapacity < 1 {
		errs = append(errs, ValidationError{Field: "queues.outbound_capacity", Value: c.Queues.OutboundCapacity, Message: "must be at least 1"})
	}
	if c.Queues.InboundCapacity < 1 {
		errs = append(errs, ValidationError{Field: "queues.inbound_capacity", Value: c.Queues.InboundCapacity, Message: "must be at least 1"})
	}

	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		errs = append(errs, ValidationError{Field: "mqtt.broker", Value: c.MQTT.Broker, Message: "required when mqtt is enabled"})
	}

	if c.Beacon.Enabled {
		if c.Beacon.Port == "" {
			errs = append(errs, ValidationError{Field: "beacon.port", Value: c.Beacon.Port, Message: "required when the beacon is enabled"})
		}
		if c.Beacon.Interval <= 0 {
			errs = append(errs, ValidationError{Field: "beacon.interval", Value: c.Beacon.Interval, Message: "must be positive"})
		}
		if c.Beacon.DistanceMin < 0 {
			errs = append(errs, ValidationError{Field: "beacon.distance_min", Value: c.Beacon.DistanceMin, Message: "must not be negative"})
		}
	}
	return errs
}
