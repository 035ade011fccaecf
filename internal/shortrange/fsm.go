package shortrange

import (
	"fmt"

	"github.com/dumacp/go-logs/pkg/logs"
	"github.com/looplab/fsm"
)

const (
	sIdle        = "sIdle"
	sAdvertising = "sAdvertising"
	sConnected   = "sConnected"
)

const (
	startEvent      = "startEvent"
	connectEvent    = "connectEvent"
	disconnectEvent = "disconnectEvent"
)

func enterState(state string) string {
	return fmt.Sprintf("enter_%s", state)
}

func (b *Bridge) initFSM() {
	b.fsm = fsm.NewFSM(
		sIdle,
		fsm.Events{
			{Name: startEvent, Src: []string{sIdle}, Dst: sAdvertising},
			{Name: connectEvent, Src: []string{sAdvertising}, Dst: sConnected},
			{Name: disconnectEvent, Src: []string{sConnected}, Dst: sAdvertising},
		},
		fsm.Callbacks{
			"enter_state": func(e *fsm.Event) {
				logs.LogBuild.Printf("FSM BLE state Src: %v, state Dst: %v", e.Src, e.Dst)
			},
			enterState(sConnected): func(e *fsm.Event) {
				logs.LogInfo.Println("ble central connected")
			},
			enterState(sAdvertising): func(e *fsm.Event) {
				if e.Src == sConnected {
					logs.LogInfo.Println("ble central disconnected")
				}
			},
		},
	)
}
