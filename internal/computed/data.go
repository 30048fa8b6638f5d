// Package computed tracks derived values that are produced asynchronously.
//
// A Slot holds the state of one derived value, keyed by the inputs it was
// computed from. Changing the key supersedes the running computation: its
// task is cancelled and whatever it eventually returns is discarded.
package computed

import (
	"encoding/json"
	"fmt"
)

// State enumerates the variants of Data.
type State int

const (
	NotStarted State = iota
	InProgress
	Failed
	Completed
)

func (state State) String() string {
	switch state {
	case NotStarted:
		return "not_started"
	case InProgress:
		return "in_progress"
	case Failed:
		return "failed"
	case Completed:
		return "completed"
	default:
		return fmt.Sprintf("state(%d)", int(state))
	}
}

// Terminal reports whether the state is Failed or Completed.
func (state State) Terminal() bool {
	return state == Failed || state == Completed
}

// Data is the tagged union of a derived value. Value is meaningful only when
// State is Completed; Err only when State is Failed.
type Data[T any] struct {
	State State
	Value T
	Err   string
}

func Pending[T any]() Data[T] {
	return Data[T]{State: InProgress}
}

func Done[T any](value T) Data[T] {
	return Data[T]{State: Completed, Value: value}
}

func Failure[T any](message string) Data[T] {
	return Data[T]{State: Failed, Err: message}
}

// Get returns the value and whether the data is Completed.
func (data Data[T]) Get() (T, bool) {
	if data.State != Completed {
		var zero T
		return zero, false
	}
	return data.Value, true
}

// KeyOf derives a dependency key from the inputs of a computation. Inputs
// that encode to the same JSON share a key.
func KeyOf(inputs ...any) (string, error) {
	encoded, err := json.Marshal(inputs)
	if err != nil {
		return "", fmt.Errorf("encode dependency key: %w", err)
	}
	return string(encoded), nil
}
