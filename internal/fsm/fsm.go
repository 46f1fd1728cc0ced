// Package fsm defines the turn lifecycle states and the legal transitions between them.
package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle             State = "idle"
	StateRecording        State = "recording"
	StateThinking         State = "thinking"
	StateAwaitingResponse State = "awaiting_response"
	StateResponding       State = "responding"
	StateFallback         State = "fallback"
	StateReinitializing   State = "reinitializing"
)

const (
	EventStart          Event = "start"
	EventStop           Event = "stop"
	EventEmpty          Event = "empty"
	EventDispatch       Event = "dispatch"
	EventReply          Event = "reply"
	EventNotInitialized Event = "not_initialized"
	EventFail           Event = "fail"
	EventFinished       Event = "finished"
	EventReinitialized  Event = "reinitialized"
	// EventAbort forces Idle from any state after a fatal local misconfiguration.
	EventAbort Event = "abort"
)

// Transition returns the state reached by applying event to current.
func Transition(current State, event Event) (State, error) {
	if event == EventAbort {
		if !known(current) {
			return current, fmt.Errorf("unknown state %q", current)
		}
		return StateIdle, nil
	}

	switch current {
	case StateIdle:
		switch event {
		case EventStart:
			return StateRecording, nil
		}
	case StateRecording:
		switch event {
		case EventStop:
			return StateThinking, nil
		case EventEmpty, EventFail:
			return StateIdle, nil
		}
	case StateThinking:
		switch event {
		case EventDispatch:
			return StateAwaitingResponse, nil
		}
	case StateAwaitingResponse:
		switch event {
		case EventReply:
			return StateResponding, nil
		case EventNotInitialized:
			return StateReinitializing, nil
		case EventFail:
			return StateFallback, nil
		}
	case StateResponding, StateFallback:
		switch event {
		case EventFinished:
			return StateIdle, nil
		}
	case StateReinitializing:
		switch event {
		case EventReinitialized:
			return StateIdle, nil
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
	return current, invalidTransition(current, event)
}

// Busy reports whether a turn is in flight in state s.
func Busy(s State) bool {
	return s != StateIdle && s != StateReinitializing
}

// States lists every lifecycle state.
func States() []State {
	return []State{
		StateIdle, StateRecording, StateThinking, StateAwaitingResponse,
		StateResponding, StateFallback, StateReinitializing,
	}
}

func known(s State) bool {
	switch s {
	case StateIdle, StateRecording, StateThinking, StateAwaitingResponse,
		StateResponding, StateFallback, StateReinitializing:
		return true
	default:
		return false
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
