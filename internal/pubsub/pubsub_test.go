package pubsub

import (
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/AsynkronIT/protoactor-go/actor"
	"github.com/dumacp/go-logs/pkg/logs"
	"github.com/dumacp/go-lorabridge/internal/events"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                       { return true }
func (t *fakeToken) WaitTimeout(_ time.Duration) bool { return true }
func (t *fakeToken) Error() error                     { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type fakeMessage struct {
	mqtt.Message
	topic   string
	payload []byte
}

func (m *fakeMessage) Topic() string   { return m.topic }
func (m *fakeMessage) Payload() []byte { return m.payload }
func (m *fakeMessage) Ack()            {}

type published struct {
	topic string
	data  []byte
}

// fakeClient is an in-memory broker connection. Methods not overridden
// panic through the nil embedded interface.
type fakeClient struct {
	mqtt.Client
	onConnect  mqtt.OnConnectHandler
	connectErr error

	mux       sync.Mutex
	connected bool
	published []published
	handlers  map[string]mqtt.MessageHandler
}

func (c *fakeClient) IsConnected() bool {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.connected
}

func (c *fakeClient) Connect() mqtt.Token {
	if c.connectErr != nil {
		return &fakeToken{err: c.connectErr}
	}
	c.mux.Lock()
	c.connected = true
	c.mux.Unlock()
	if c.onConnect != nil {
		c.onConnect(c)
	}
	return &fakeToken{}
}

func (c *fakeClient) Disconnect(uint) {
	c.mux.Lock()
	c.connected = false
	c.mux.Unlock()
}

func (c *fakeClient) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	c.mux.Lock()
	defer c.mux.Unlock()
	c.published = append(c.published, published{topic: topic, data: payload.([]byte)})
	return &fakeToken{}
}

func (c *fakeClient) Subscribe(topic string, _ byte, cb mqtt.MessageHandler) mqtt.Token {
	c.mux.Lock()
	defer c.mux.Unlock()
	if c.handlers == nil {
		c.handlers = make(map[string]mqtt.MessageHandler)
	}
	c.handlers[topic] = cb
	return &fakeToken{}
}

func (c *fakeClient) deliver(topic string, payload []byte) bool {
	c.mux.Lock()
	h, ok := c.handlers[topic]
	c.mux.Unlock()
	if !ok {
		return false
	}
	h(c, &fakeMessage{topic: topic, payload: payload})
	return true
}

func (c *fakeClient) publishedOn(topic string) [][]byte {
	c.mux.Lock()
	defer c.mux.Unlock()
	var out [][]byte
	for _, p := range c.published {
		if p.topic == topic {
			out = append(out, p.data)
		}
	}
	return out
}

func initLogs() {
	logs.LogInfo = logs.New(os.Stderr, "", 0)
	logs.LogBuild = logs.New(os.Stderr, "", 0)
	logs.LogWarn = logs.New(os.Stderr, "", 0)
	logs.LogError = logs.New(os.Stderr, "", 0)
}

func spawn(t *testing.T, c *fakeClient) (*actor.ActorSystem, *Gateway) {
	t.Helper()
	initLogs()
	sys := actor.NewActorSystem()
	g, err := Spawn(sys.Root, func(onConnect mqtt.OnConnectHandler) mqtt.Client {
		c.onConnect = onConnect
		return c
	})
	if err != nil {
		t.Fatalf("Spawn() error = %s", err)
	}
	t.Cleanup(func() { sys.Root.PoisonFuture(g.PID()).Wait() })
	return sys, g
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestGatewayEmit(t *testing.T) {
	c := &fakeClient{}
	_, g := spawn(t, c)

	seq := uint8(7)
	g.Emit(events.Event{Source: "longrange", Kind: events.KindAckSent, MsgType: "ack", Seq: &seq})

	waitFor(t, func() bool { return len(c.publishedOn(TopicEvents)) == 1 })

	var got events.Event
	if err := json.Unmarshal(c.publishedOn(TopicEvents)[0], &got); err != nil {
		t.Fatalf("payload is not an event: %s", err)
	}
	if got.Kind != events.KindAckSent || got.Source != "longrange" || got.Seq == nil || *got.Seq != 7 {
		t.Errorf("published event = %+v", got)
	}
}

type statusRequest struct {
	body string
}

func TestGatewaySubscribe(t *testing.T) {
	c := &fakeClient{}
	sys, g := spawn(t, c)

	received := make(chan *statusRequest, 1)
	pid := sys.Root.Spawn(actor.PropsFromFunc(func(ctx actor.Context) {
		if msg, ok := ctx.Message().(*statusRequest); ok {
			received <- msg
		}
	}))

	g.Subscribe(TopicRequestInfoState, pid, func(b []byte) interface{} {
		return &statusRequest{body: string(b)}
	})
	waitFor(t, func() bool { return c.deliver(TopicRequestInfoState, []byte("now")) })

	select {
	case msg := <-received:
		if msg.body != "now" {
			t.Errorf("body = %q, want %q", msg.body, "now")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not receive the request")
	}
}

func TestGatewayParseNilIsDropped(t *testing.T) {
	c := &fakeClient{}
	sys, g := spawn(t, c)

	received := make(chan interface{}, 1)
	pid := sys.Root.Spawn(actor.PropsFromFunc(func(ctx actor.Context) {
		if _, ok := ctx.Message().(*statusRequest); ok {
			received <- ctx.Message()
		}
	}))
	g.Subscribe("x", pid, func([]byte) interface{} { return nil })
	waitFor(t, func() bool { return c.deliver("x", nil) })

	select {
	case <-received:
		t.Fatal("nil parse result was delivered")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestGatewayDisconnected(t *testing.T) {
	c := &fakeClient{connectErr: errors.New("connection refused")}
	_, g := spawn(t, c)

	g.Publish(TopicStatus, []byte("{}"))
	g.Subscribe(TopicRequestInfoState, g.PID(), func([]byte) interface{} { return nil })
	time.Sleep(50 * time.Millisecond)

	if n := len(c.publishedOn(TopicStatus)); n != 0 {
		t.Errorf("published %d messages while disconnected", n)
	}

	// a later connection subscribes the deferred topics
	c.connectErr = nil
	c.Connect()
	if !c.deliver(TopicRequestInfoState, nil) {
		t.Error("deferred subscription not registered on connect")
	}
}
