package ecs

import (
	"errors"
	"fmt"
)

// ErrInvalidState is wrapped by every error returned when an action targets
// an engine, world or entity that is already in a terminal state.
var ErrInvalidState = errors.New("invalid state")

var (
	ErrEngineStopped   = fmt.Errorf("%w: the engine has been stopped", ErrInvalidState)
	ErrEngineRunning   = fmt.Errorf("%w: the engine is already running", ErrInvalidState)
	ErrWorldDestroyed  = fmt.Errorf("%w: the world has been destroyed", ErrInvalidState)
	ErrEntityDestroyed = fmt.Errorf("%w: the entity has been destroyed", ErrInvalidState)
)

// Construction failure kinds, matched with errors.Is on a *ConstructionError.
var (
	ErrNotInstantiable = errors.New("cannot be instantiated")
	ErrInaccessible    = errors.New("cannot be accessed")
)

// ConstructionError reports a unit type the factory could not build.
type ConstructionError struct {
	Unit string // "attribute" or "extension"
	Type string
	Kind error // ErrNotInstantiable or ErrInaccessible
	Err  error // underlying cause, may be nil
}

func (e *ConstructionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s %v: %v", e.Unit, e.Type, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s %v", e.Unit, e.Type, e.Kind)
}

func (e *ConstructionError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// EventError is produced when an event handler returns an error or panics
// inside the consumer loop.
type EventError struct {
	Event string
	Err   error
}

func (e *EventError) Error() string {
	return fmt.Sprintf("event %s: %v", e.Event, e.Err)
}

func (e *EventError) Unwrap() error { return e.Err }
