package beacon

import (
	"context"
	"errors"

	"github.com/AsynkronIT/protoactor-go/actor"
	"github.com/dumacp/go-logs/pkg/logs"
)

type msgFatal struct {
	err error
}

type beaconActor struct {
	beacon *Beacon
	cancel context.CancelFunc
}

func NewActor(b *Beacon) actor.Actor {
	return &beaconActor{beacon: b}
}

func (a *beaconActor) Receive(ctx actor.Context) {
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
		logs.LogError.Printf("beacon read failed: %s", msg.err)
		ctx.Stop(ctx.Self())
	case *actor.Stopping:
		logs.LogInfo.Printf("actor stopping \"%s\"", ctx.Self().Id)
		if a.cancel != nil {
			a.cancel()
		}
	}
}

func (a *beaconActor) run(ctx context.Context) (errx error) {
	defer func() {
		if r := recover(); r != nil {
			logs.LogError.Println("Recovered in beacon,", r)
			switch x := r.(type) {
			case string:
				errx = errors.New(x)
			case error:
				errx = x
			default:
				errx = errors.New("unknown panic")
			}
		}
	}()
	return a.beacon.Run(ctx)
}
