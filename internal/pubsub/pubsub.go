// Package pubsub is the MQTT gateway of the appliance. It publishes bridge
// diagnostics on the local broker and routes request topics to actors.
package pubsub

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/AsynkronIT/protoactor-go/actor"
	"github.com/dumacp/go-logs/pkg/logs"
	"github.com/dumacp/go-lorabridge/internal/events"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	clientID              = "lorabridge"
	TopicAppliance        = "appliance/lorabridge"
	TopicEvents           = "EVENTS/lorabridge"
	TopicStatus           = TopicAppliance + "/STATUS"
	TopicRequestInfoState = TopicAppliance + "/RequestInfoState"
)

const tokenTimeout = 3 * time.Second

// Dialer builds an unconnected client. onConnect must run after every
// (re)connection so subscriptions survive broker restarts.
type Dialer func(onConnect mqtt.OnConnectHandler) mqtt.Client

// MsgPublish asks the gateway to publish Data on Topic.
type MsgPublish struct {
	Topic string
	Data  []byte
}

// MsgSubscribe registers PID for Topic. Each payload is passed through
// Parse and the result is sent to PID.
type MsgSubscribe struct {
	Topic string
	PID   *actor.PID
	Parse func([]byte) interface{}
}

type ping struct{}
type pong struct{}

type pubsubActor struct {
	dial          Dialer
	client        mqtt.Client
	root          *actor.RootContext
	mux           sync.Mutex
	subscriptions map[string]*MsgSubscribe
}

// NewActor returns the gateway actor. It connects with dial when started.
func NewActor(dial Dialer) actor.Actor {
	return &pubsubActor{
		dial:          dial,
		subscriptions: make(map[string]*MsgSubscribe),
	}
}

// Gateway is a handle to a spawned gateway actor, safe for concurrent use.
type Gateway struct {
	root *actor.RootContext
	pid  *actor.PID
}

// Spawn starts the gateway under root and waits until it is running.
func Spawn(root *actor.RootContext, dial Dialer) (*Gateway, error) {
	props := actor.PropsFromProducer(func() actor.Actor { return NewActor(dial) })
	pid, err := root.SpawnNamed(props, "pubsub-actor")
	if err != nil {
		return nil, err
	}
	if _, err := root.RequestFuture(pid, &ping{}, 1*time.Second).Result(); err != nil {
		return nil, fmt.Errorf("pubsub gateway not responding: %w", err)
	}
	return &Gateway{root: root, pid: pid}, nil
}

func (g *Gateway) PID() *actor.PID {
	return g.pid
}

// Publish function to publish messages in pubsub gateway
func (g *Gateway) Publish(topic string, data []byte) {
	g.root.Send(g.pid, &MsgPublish{Topic: topic, Data: data})
}

// Subscribe subscribe to topics
func (g *Gateway) Subscribe(topic string, pid *actor.PID, parse func([]byte) interface{}) {
	g.root.Send(g.pid, &MsgSubscribe{Topic: topic, PID: pid, Parse: parse})
}

// Emit publishes e as JSON on TopicEvents.
func (g *Gateway) Emit(e events.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		logs.LogError.Printf("pubsub event marshal error: %s", err)
		return
	}
	g.Publish(TopicEvents, data)
}

func (ps *pubsubActor) subscribe(topic string, subs *MsgSubscribe) error {
	root := ps.root
	handler := func(client mqtt.Client, m mqtt.Message) {
		logs.LogBuild.Printf("local topic -> %q", m.Topic())
		m.Ack()
		msg := subs.Parse(m.Payload())
		if msg == nil {
			return
		}
		root.Send(subs.PID, msg)
	}
	tk := ps.client.Subscribe(topic, 1, handler)
	if !tk.WaitTimeout(tokenTimeout) {
		return fmt.Errorf("subscribe %q timeout", topic)
	}
	return tk.Error()
}

// onConnect re-subscribes every registered topic.
func (ps *pubsubActor) onConnect(c mqtt.Client) {
	logs.LogInfo.Println("pubsub connected to broker")
	ps.mux.Lock()
	subs := make(map[string]*MsgSubscribe, len(ps.subscriptions))
	for k, v := range ps.subscriptions {
		subs[k] = v
	}
	ps.mux.Unlock()
	for topic, s := range subs {
		if err := ps.subscribe(topic, s); err != nil {
			logs.LogError.Printf("subscription error in topic %q: %s", topic, err)
		}
	}
}

// Receive function
func (ps *pubsubActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		logs.LogInfo.Printf("Starting, actor, pid: %v\n", ctx.Self())
		ps.root = ctx.ActorSystem().Root
		ps.client = ps.dial(ps.onConnect)
		if err := connect(ps.client); err != nil {
			// the client keeps retrying in background
			logs.LogError.Printf("pubsub connect error: %s", err)
		}
	case *ping:
		if ctx.Sender() != nil {
			ctx.Respond(&pong{})
		}
	case *MsgSubscribe:
		ps.mux.Lock()
		ps.subscriptions[msg.Topic] = msg
		ps.mux.Unlock()
		if !ps.client.IsConnected() {
			logs.LogWarn.Printf("pubsub is not connected, deferred subscription in topic %q", msg.Topic)
			break
		}
		logs.LogBuild.Printf("subscription in topic -> %q", msg.Topic)
		if err := ps.subscribe(msg.Topic, msg); err != nil {
			logs.LogError.Printf("subscription error in topic %q: %s", msg.Topic, err)
		}
	case *MsgPublish:
		if !ps.client.IsConnected() {
			logs.LogBuild.Printf("pubsub is not connected, discard message in topic %q", msg.Topic)
			break
		}
		tk := ps.client.Publish(msg.Topic, 0, false, msg.Data)
		if !tk.WaitTimeout(tokenTimeout) {
			logs.LogError.Printf("timeout error with message in topic %q", msg.Topic)
		} else if tk.Error() != nil {
			logs.LogError.Printf("end error: %s, with message in topic %q", tk.Error(), msg.Topic)
		}
	case *actor.Stopping:
		if ps.client != nil {
			ps.client.Disconnect(600)
		}
		logs.LogError.Println("Stopping, actor is about to shut down")
	case *actor.Stopped:
		logs.LogError.Println("Stopped, actor and its children are stopped")
	case *actor.Restarting:
		logs.LogError.Println("Restarting, actor is about to restart")
	}
}

// NewDialer returns a Dialer for broker with the appliance client options.
func NewDialer(broker string) Dialer {
	return func(onConnect mqtt.OnConnectHandler) mqtt.Client {
		opt := mqtt.NewClientOptions().AddBroker(broker)
		opt.SetAutoReconnect(true)
		opt.SetConnectRetry(true)
		opt.SetClientID(fmt.Sprintf("%s-%d", clientID, time.Now().Unix()))
		opt.SetKeepAlive(30 * time.Second)
		opt.SetConnectRetryInterval(10 * time.Second)
		opt.SetOnConnectHandler(onConnect)
		return mqtt.NewClient(opt)
	}
}

func connect(c mqtt.Client) error {
	tk := c.Connect()
	if !tk.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("connect wait error")
	}
	if err := tk.Error(); err != nil {
		return err
	}
	return nil
}
