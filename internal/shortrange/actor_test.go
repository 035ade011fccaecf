package shortrange

import (
	"errors"
	"testing"
	"time"

	"github.com/AsynkronIT/protoactor-go/actor"
	"github.com/dumacp/go-lorabridge/internal/queue"
)

func TestActorStopsOnStartFailure(t *testing.T) {
	initTestLogs()
	p := newMockPeripheral()
	p.startErr = errors.New("no adapter")
	b := New(p, queue.New("outbound", 5), queue.New("inbound", 10), nil)

	terminated := make(chan string, 1)
	sys := actor.NewActorSystem()
	props := actor.PropsFromFunc(func(ctx actor.Context) {
		switch msg := ctx.Message().(type) {
		case *actor.Started:
			pid, err := ctx.SpawnNamed(actor.PropsFromFunc(NewActor(b).Receive), "ble")
			if err != nil {
				t.Errorf("error = %s", err)
				return
			}
			ctx.Watch(pid)
		case *actor.Terminated:
			terminated <- msg.Who.GetId()
		}
	})
	if _, err := sys.Root.SpawnNamed(props, "test-shortrange"); err != nil {
		t.Fatalf("error = %s", err)
	}

	select {
	case id := <-terminated:
		if id != "test-shortrange/ble" {
			t.Errorf("terminated = %q, want %q", id, "test-shortrange/ble")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("bridge actor was not terminated")
	}
}
