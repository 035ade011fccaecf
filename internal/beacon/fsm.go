package beacon

import (
	"fmt"

	"github.com/dumacp/go-logs/pkg/logs"
	"github.com/looplab/fsm"
)

const (
	sStart   = "sStart"
	sConnect = "sConnect"
	sRun     = "sRun"
	sClose   = "sClose"
)

const (
	startEvent     = "startEvent"
	connectOKEvent = "connectOKEvent"
	readFailEvent  = "readFailEvent"
)

func enterState(state string) string {
	return fmt.Sprintf("enter_%s", state)
}

func initFSM() *fsm.FSM {
	return fsm.NewFSM(
		sStart,
		fsm.Events{
			{Name: startEvent, Src: []string{sStart, sClose}, Dst: sConnect},
			{Name: connectOKEvent, Src: []string{sConnect}, Dst: sRun},
			{Name: readFailEvent, Src: []string{sRun}, Dst: sClose},
		},
		fsm.Callbacks{
			"enter_state": func(e *fsm.Event) {
				logs.LogBuild.Printf("FSM beacon state Src: %v, state Dst: %v", e.Src, e.Dst)
			},
			enterState(sRun): func(e *fsm.Event) {
				logs.LogInfo.Println("beacon reading position")
			},
		},
	)
}
