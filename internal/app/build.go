package app

import (
	"fmt"
	"io"

	"github.com/AsynkronIT/protoactor-go/actor"
	"github.com/dumacp/go-logs/pkg/logs"
	"github.com/dumacp/go-lorabridge/internal/beacon"
	"github.com/dumacp/go-lorabridge/internal/config"
	"github.com/dumacp/go-lorabridge/internal/journal"
	"github.com/dumacp/go-lorabridge/internal/pubsub"
	"github.com/dumacp/go-lorabridge/internal/radio"
	"github.com/dumacp/go-lorabridge/internal/radio/uart"
	"github.com/dumacp/go-lorabridge/internal/shortrange"
	"github.com/dumacp/go-lorabridge/internal/shortrange/gatt"
	"github.com/dumacp/go-lorabridge/internal/shortrange/wsgatt"
)

// Open builds the components selected by cfg. The returned function
// releases them.
func Open(root *actor.RootContext, cfg *config.Config) (*Components, func(), error) {
	comps := &Components{}
	var closers []io.Closer
	release := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				logs.LogWarn.Printf("close error: %s", err)
			}
		}
	}

	r, err := openRadio(cfg)
	if err != nil {
		return nil, nil, err
	}
	comps.Radio = r
	closers = append(closers, r)

	comps.Peripheral = openPeripheral(cfg)
	if c, ok := comps.Peripheral.(io.Closer); ok {
		closers = append(closers, c)
	}

	if cfg.Journal.Path != "" {
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			release()
			return nil, nil, err
		}
		comps.Journal = j
		closers = append(closers, j)
	}

	if cfg.MQTT.Enabled {
		g, err := pubsub.Spawn(root, pubsub.NewDialer(cfg.MQTT.Broker))
		if err != nil {
			release()
			return nil, nil, err
		}
		comps.Gateway = g
	}

	if cfg.Beacon.Enabled {
		comps.GPS = beacon.SerialOpener(cfg.Beacon.Port, cfg.Beacon.Baud)
	}
	return comps, release, nil
}

type closableRadio interface {
	radio.Transceiver
	io.Closer
}

func openRadio(cfg *config.Config) (closableRadio, error) {
	switch cfg.Radio.Driver {
	case "uart":
		m, err := uart.Open(uart.Config{
			Port:       cfg.Radio.Port,
			Baud:       cfg.Radio.Baud,
			Modulation: cfg.LoRa.Modulation(),
		})
		if err != nil {
			return nil, fmt.Errorf("lora modem: %w", err)
		}
		band, _ := radio.BandOf(cfg.LoRa.FrequencyHz)
		logs.LogInfo.Printf("lora modem ready on %s, %d Hz (%s), %d dBm",
			cfg.Radio.Port, cfg.LoRa.FrequencyHz, band.Name, cfg.LoRa.TxPowerDBm)
		return m, nil
	case "sim":
		logs.LogWarn.Println("using simulated radio, nothing is transmitted")
		return radio.NewSim(), nil
	}
	return nil, fmt.Errorf("unknown radio driver %q", cfg.Radio.Driver)
}

func openPeripheral(cfg *config.Config) shortrange.Peripheral {
	if cfg.BLE.Transport == "websocket" {
		logs.LogInfo.Printf("short-range link emulated over websocket at %s", cfg.BLE.ListenAddr)
		return wsgatt.New(cfg.BLE.ListenAddr, cfg.BLE.Name)
	}
	return gatt.New(cfg.BLE.Name)
}

// Spawn starts the supervisor under root.
func Spawn(root *actor.RootContext, cfg *config.Config, comps *Components) (*actor.PID, error) {
	props := actor.PropsFromFunc(NewActor(cfg, *comps).Receive)
	return root.SpawnNamed(props, "lorabridge")
}
