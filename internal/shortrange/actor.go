package shortrange

import (
	"context"
	"errors"

	"github.com/AsynkronIT/protoactor-go/actor"
	"github.com/dumacp/go-logs/pkg/logs"
)

type msgFatal struct {
	err error
}

type bridgeActor struct {
	bridge *Bridge
	cancel context.CancelFunc
}

// NewActor wraps b in an actor. The bridge loop starts with the actor and
// a loop failure stops the actor for good.
func NewActor(b *Bridge) actor.Actor {
	return &bridgeActor{bridge: b}
}

func (a *bridgeActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		logs.LogInfo.Printf("actor started \"%s\"", ctx.Self().Id)
		runCtx, cancel := context.WithCancel(context.Background())
		a.cancel = cancel
		root, self := ctx.ActorSystem().Root, ctx.Self()
		go func() {
			if err := a.run(runCtx); err != nil {
				root.Send(self, &msgFatal{err: err})
			}
		}()
	case *msgFatal:
		logs.LogError.Printf("short-range bridge stopped: %s", msg.err)
		ctx.Stop(ctx.Self())
	case *actor.Stopping:
		logs.LogInfo.Printf("actor stopping \"%s\"", ctx.Self().Id)
		if a.cancel != nil {
			a.cancel()
		}
	case *actor.Stopped:
		logs.LogInfo.Println("Stopped, short-range bridge actor is stopped")
	}
}

func (a *bridgeActor) run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logs.LogError.Println("Recovered in short-range bridge,", r)
			switch x := r.(type) {
			case string:
				err = errors.New(x)
			case error:
				err = x
			default:
				err = errors.New("unknown panic")
			}
		}
	}()
	return a.bridge.Run(ctx)
}
