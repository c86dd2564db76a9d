package fsm

import "fmt"

type State string

type Event string

const (
	StateNotStarted State = "not_started"
	StateStarted    State = "started"
	StateRunning    State = "running"
	StateCanceled   State = "canceled"
	StateStopped    State = "stopped"
)

const (
	EventStart   Event = "start"
	EventRun     Event = "run"
	EventRunDone Event = "run_done"
	EventStop    Event = "stop"
	EventCancel  Event = "cancel"
)

func Transition(current State, event Event) (State, error) {
	switch current {
	case StateNotStarted:
		switch event {
		case EventStart:
			return StateStarted, nil
		case EventRun:
			return current, fmt.Errorf("adaptor is not started")
		default:
			return current, invalidTransition(current, event)
		}
	case StateStarted:
		switch event {
		case EventStart:
			return current, fmt.Errorf("adaptor is already started")
		case EventRun:
			return StateRunning, nil
		case EventStop:
			return StateStopped, nil
		case EventCancel:
			return StateCanceled, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateRunning:
		switch event {
		case EventRunDone:
			return StateStarted, nil
		case EventCancel:
			return StateCanceled, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateCanceled:
		switch event {
		// A canceled adaptor must still allow graceful teardown.
		case EventStop:
			return StateStopped, nil
		case EventCancel:
			return current, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateStopped:
		switch event {
		case EventStop:
			return current, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
