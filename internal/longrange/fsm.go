package longrange

import (
	"fmt"

	"github.com/dumacp/go-logs/pkg/logs"
	"github.com/looplab/fsm"
)

const (
	sIdle     = "sIdle"
	sReceive  = "sReceive"
	sTransmit = "sTransmit"
)

const (
	startEvent = "startEvent"
	txEvent    = "txEvent"
	rxEvent    = "rxEvent"
)

func leaveState(state string) string {
	return fmt.Sprintf("leave_%s", state)
}

func (b *Bridge) initFSM() {
	b.fsm = fsm.NewFSM(
		sIdle,
		fsm.Events{
			{Name: startEvent, Src: []string{sIdle}, Dst: sReceive},
			{Name: txEvent, Src: []string{sReceive}, Dst: sTransmit},
			{Name: rxEvent, Src: []string{sTransmit}, Dst: sReceive},
		},
		fsm.Callbacks{
			"enter_state": func(e *fsm.Event) {
				logs.LogBuild.Printf("FSM LORA state Src: %v, state Dst: %v", e.Src, e.Dst)
			},
			leaveState(sIdle): func(e *fsm.Event) {
				logs.LogInfo.Println("lora receiver armed")
			},
		},
	)
}
