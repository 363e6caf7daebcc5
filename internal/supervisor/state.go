package supervisor

import (
	"context"

	"github.com/looplab/fsm"
)

// ConnectionState mirrors the fsm.FSM's current string state as a
// comparable value for callers that don't want to deal in strings.
type ConnectionState uint8

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	Reconnecting
	Error
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

func parseState(s string) ConnectionState {
	switch s {
	case "connecting":
		return Connecting
	case "connected":
		return Connected
	case "reconnecting":
		return Reconnecting
	case "error":
		return Error
	default:
		return Disconnected
	}
}

// newMachine builds the state machine described in spec.md §4.3:
// Disconnected → Connecting → Connected; Connected → Reconnecting →
// Connecting → Connected; any state → Error. onTransition fires after
// every legal edge, including into Error.
func newMachine(onTransition func(ctx context.Context, prev, next ConnectionState)) *fsm.FSM {
	return fsm.NewFSM(
		Disconnected.String(),
		fsm.Events{
			{Name: "connect", Src: []string{Disconnected.String(), Error.String()}, Dst: Connecting.String()},
			{Name: "connected", Src: []string{Connecting.String()}, Dst: Connected.String()},
			{Name: "lost", Src: []string{Connected.String()}, Dst: Reconnecting.String()},
			{Name: "retry", Src: []string{Reconnecting.String()}, Dst: Connecting.String()},
			{Name: "retry_failed", Src: []string{Connecting.String()}, Dst: Reconnecting.String()},
			{Name: "disconnect", Src: []string{Connecting.String(), Connected.String(), Reconnecting.String()}, Dst: Disconnected.String()},
			{Name: "fail", Src: []string{Disconnected.String(), Connecting.String(), Connected.String(), Reconnecting.String()}, Dst: Error.String()},
		},
		fsm.Callbacks{
			"enter_state": func(ctx context.Context, e *fsm.Event) {
				if onTransition != nil {
					onTransition(ctx, parseState(e.Src), parseState(e.Dst))
				}
			},
		},
	)
}
