// Package app supervises the bridge: it creates the links between the two
// bridge tasks, spawns their actors and reports status.
package app

import (
	"encoding/json"
	"time"

	"github.com/AsynkronIT/protoactor-go/actor"
	"github.com/dumacp/go-logs/pkg/logs"
	"github.com/dumacp/go-lorabridge/internal/beacon"
	"github.com/dumacp/go-lorabridge/internal/config"
	"github.com/dumacp/go-lorabridge/internal/events"
	"github.com/dumacp/go-lorabridge/internal/journal"
	"github.com/dumacp/go-lorabridge/internal/longrange"
	"github.com/dumacp/go-lorabridge/internal/pubsub"
	"github.com/dumacp/go-lorabridge/internal/queue"
	"github.com/dumacp/go-lorabridge/internal/radio"
	"github.com/dumacp/go-lorabridge/internal/shortrange"
)

const (
	nameShortRange = "shortrange"
	nameLongRange  = "longrange"
	nameBeacon     = "beacon"
)

// Components are the collaborators the supervisor wires together.
// Optional ones are nil when disabled.
type Components struct {
	Peripheral shortrange.Peripheral
	Radio      radio.Transceiver
	GPS        beacon.Opener
	Gateway    *pubsub.Gateway
	Journal    *journal.Journal
	// Sink receives every event besides the gateway and journal; used by tests.
	Sink events.Sink
	// Outbound and Inbound replace the process-wide links when both are set.
	Outbound, Inbound *queue.Queue
}

// MsgStatusRequest asks the supervisor for a Status. The reply goes to the
// sender, or is published on the status topic when there is none.
type MsgStatusRequest struct{}

type supervisor struct {
	cfg   *config.Config
	comps Components

	out, in    *queue.Queue
	bus        radio.Bus
	shortRange *shortrange.Bridge
	longRange  *longrange.Bridge
	beacon     *beacon.Beacon
	terminated []string
}

// NewActor returns the supervisor actor.
func NewActor(cfg *config.Config, comps Components) actor.Actor {
	return &supervisor{cfg: cfg, comps: comps}
}

func (s *supervisor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		logs.LogInfo.Printf("actor started \"%s\"", ctx.Self().Id)
		s.start(ctx)
	case *MsgStatusRequest:
		st := s.status()
		if ctx.Sender() != nil {
			ctx.Respond(st)
			break
		}
		if s.comps.Gateway == nil {
			break
		}
		data, err := json.Marshal(st)
		if err != nil {
			logs.LogError.Printf("status marshal error: %s", err)
			break
		}
		s.comps.Gateway.Publish(pubsub.TopicStatus, data)
	case *actor.Terminated:
		logs.LogError.Printf("actor terminated: %s", msg.Who.GetId())
		s.terminated = append(s.terminated, msg.Who.GetId())
	case *actor.Stopping:
		logs.LogInfo.Printf("actor stopping \"%s\"", ctx.Self().Id)
	}
}

func (s *supervisor) sink() events.Sink {
	// The tasks log their own activity, so no log sink here.
	var sinks []events.Sink
	if s.comps.Gateway != nil {
		sinks = append(sinks, s.comps.Gateway)
	}
	if s.comps.Journal != nil {
		sinks = append(sinks, s.comps.Journal)
	}
	if s.comps.Sink != nil {
		sinks = append(sinks, s.comps.Sink)
	}
	return events.Fanout(sinks...)
}

func (s *supervisor) start(ctx actor.Context) {
	s.out, s.in = s.comps.Outbound, s.comps.Inbound
	if s.out == nil || s.in == nil {
		s.out, s.in = queue.InitLinks(s.cfg.Queues.OutboundCapacity, s.cfg.Queues.InboundCapacity)
	}
	sink := s.sink()

	s.shortRange = shortrange.New(s.comps.Peripheral, s.out, s.in, sink)
	s.longRange = longrange.New(radio.Guard(s.comps.Radio, &s.bus), s.out, s.in, longrange.Options{
		PowerDBm:   s.cfg.LoRa.TxPowerDBm,
		Modulation: s.cfg.LoRa.Modulation(),
		DutyCycle:  radio.NewDutyCycle(s.cfg.LoRa.DutyCyclePercent, radio.DefaultDutyCycleWindow),
	}, sink)

	s.spawn(ctx, nameShortRange, shortrange.NewActor(s.shortRange))
	s.spawn(ctx, nameLongRange, longrange.NewActor(s.longRange))

	if s.comps.GPS != nil {
		s.beacon = beacon.New(s.comps.GPS, s.out, beacon.Options{
			DistanceMin: s.cfg.Beacon.DistanceMin,
			Interval:    s.cfg.Beacon.Interval,
		}, sink)
		s.spawn(ctx, nameBeacon, beacon.NewActor(s.beacon))
	}

	if s.comps.Gateway != nil {
		s.comps.Gateway.Subscribe(pubsub.TopicRequestInfoState, ctx.Self(), func([]byte) interface{} {
			return &MsgStatusRequest{}
		})
	}
}

func (s *supervisor) spawn(ctx actor.Context, name string, a actor.Actor) {
	props := actor.PropsFromFunc(a.Receive)
	pid, err := ctx.SpawnNamed(props, name)
	if err != nil {
		logs.LogError.Panic(err)
	}
	ctx.Watch(pid)
}

// Status is a snapshot of the bridge.
type Status struct {
	Time       time.Time           `json:"time"`
	ShortRange string              `json:"shortRange"`
	LongRange  string              `json:"longRange"`
	Beacon     string              `json:"beacon,omitempty"`
	Outbound   queue.Stats         `json:"outbound"`
	Inbound    queue.Stats         `json:"inbound"`
	DutyCycle  float64             `json:"dutyCycle"`
	Terminated []string            `json:"terminated,omitempty"`
	Journal    map[events.Kind]int `json:"journal,omitempty"`
}

func (s *supervisor) status() *Status {
	now := time.Now()
	st := &Status{
		Time:       now,
		ShortRange: s.shortRange.State(),
		LongRange:  s.longRange.State(),
		Outbound:   s.out.Stats(),
		Inbound:    s.in.Stats(),
		Terminated: append([]string(nil), s.terminated...),
	}
	if dc := s.longRange.DutyCycle(); dc != nil {
		st.DutyCycle = dc.Utilization(now)
	}
	if s.beacon != nil {
		st.Beacon = s.beacon.State()
	}
	if s.comps.Journal != nil {
		counts, err := s.comps.Journal.Counts()
		if err != nil {
			logs.LogWarn.Printf("journal counts error: %s", err)
		} else {
			st.Journal = counts
		}
	}
	return st
}
