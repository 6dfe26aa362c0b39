package ecs

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/polyengine/polyengine/internal/config"
	"github.com/polyengine/polyengine/internal/core/event"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// FaultPolicy decides what the consumer loop does when an event fails.
type FaultPolicy int

const (
	FaultHalt FaultPolicy = iota // stop the loop and return the error from Run
	FaultSkip                    // log the error and handle the next event
)

func ParseFaultPolicy(s string) (FaultPolicy, error) {
	switch s {
	case "", "halt":
		return FaultHalt, nil
	case "skip":
		return FaultSkip, nil
	}
	return FaultHalt, fmt.Errorf("unknown fault policy %q", s)
}

// Engine owns the extensions, the worlds and the event queue. Every
// structural change is an event handled by the single goroutine in Run,
// so world and entity state needs no locking on that path. The world
// list lock only protects snapshot reads from other goroutines.
type Engine struct {
	log        *zap.Logger
	queue      *event.Queue
	full       event.FullPolicy
	fault      FaultPolicy
	extensions []Extension
	dispatch   dispatcher

	mu     sync.RWMutex
	worlds []*World

	started       atomic.Bool
	running       atomic.Bool
	handling      atomic.Bool // set while the consumer runs a handler
	stopped       atomic.Bool
	stopRequested atomic.Bool
	done          chan struct{}
}

// New builds every extension in order and queues the start event. A
// construction failure aborts New. The loop does not run until Run.
func New(cfg config.EngineConfig, log *zap.Logger, types ...ExtensionType) (*Engine, error) {
	full, err := event.ParseFullPolicy(cfg.QueueFullPolicy)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	fault, err := ParseFaultPolicy(cfg.FaultPolicy)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}

	e := &Engine{
		log:    log,
		queue:  event.NewQueue(cfg.QueueCapacity, full),
		full:   full,
		fault:  fault,
		worlds: make([]*World, 0, 8),
		done:   make(chan struct{}),
	}

	extensions := make([]Extension, 0, len(types))
	for _, t := range types {
		x, err := newExtension(t, ExtensionBase{engine: e})
		if err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
		extensions = append(extensions, x)
	}
	e.extensions = extensions
	e.dispatch = newDispatcher(extensions)

	if err := e.queue.Push(e.startEvent()); err != nil {
		return nil, fmt.Errorf("engine: queue start event: %w", err)
	}
	return e, nil
}

// ── Events ────────────────────────────────────────────────────────

func (e *Engine) startEvent() event.Event {
	return event.Named{Name: "engine.start", Fn: func() error {
		for i, x := range e.extensions {
			if err := x.Init(); err != nil {
				return fmt.Errorf("init extension %d (%T): %w", i, x, err)
			}
		}
		e.log.Info("engine started",
			zap.Int("extensions", len(e.extensions)),
			zap.Int("entity_listeners", len(e.dispatch.entity)),
			zap.Int("world_listeners", len(e.dispatch.world)))
		return nil
	}}
}

// stopEvent tears down every live world before any extension terminates.
// Teardown keeps going past failures; they are returned together.
func (e *Engine) stopEvent() event.Event {
	return event.Named{Name: "engine.stop", Fn: func() (errs error) {
		defer func() {
			e.running.Store(false)
			e.stopped.Store(true)
		}()
		for _, w := range e.Worlds() {
			errs = multierr.Append(errs, w.teardown())
		}
		for i, x := range e.extensions {
			if err := x.Term(); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("term extension %d (%T): %w", i, x, err))
			}
		}
		return errs
	}}
}

// ── Actions ───────────────────────────────────────────────────────

// Run is the consumer loop. It blocks until the stop event has been
// handled, or until an event fails under FaultHalt.
func (e *Engine) Run() error {
	if e.stopped.Load() {
		return ErrEngineStopped
	}
	if !e.started.CompareAndSwap(false, true) {
		return ErrEngineRunning
	}
	defer close(e.done)

	e.running.Store(true)
	for e.running.Load() {
		ev, ok := e.queue.Pop()
		if !ok {
			break
		}
		if err := e.handle(ev); err != nil {
			if e.fault == FaultSkip {
				e.log.Error("event failed, skipped", zap.Error(err))
				continue
			}
			e.log.Error("event failed, halting engine", zap.Error(err))
			e.running.Store(false)
			e.stopped.Store(true)
			e.closeQueue()
			return err
		}
	}
	e.closeQueue()
	e.log.Info("engine stopped")
	return nil
}

func (e *Engine) handle(ev event.Event) (err error) {
	e.handling.Store(true)
	defer func() {
		e.handling.Store(false)
		if r := recover(); r != nil {
			e.log.Error("event panicked", zap.String("event", eventName(ev)),
				zap.Any("panic", r), zap.Stack("stack"))
			err = &EventError{Event: eventName(ev), Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if err := ev.Handle(); err != nil {
		return &EventError{Event: eventName(ev), Err: err}
	}
	return nil
}

func (e *Engine) closeQueue() {
	if pending := e.queue.Close(); len(pending) > 0 {
		e.log.Warn("discarded events queued after stop", zap.Int("count", len(pending)))
	}
}

// Stop requests the stop sequence. Only the first call queues the stop
// event; later calls return nil until the engine has fully stopped, after
// which they return ErrEngineStopped.
func (e *Engine) Stop() error {
	if e.stopped.Load() {
		return ErrEngineStopped
	}
	if !e.stopRequested.CompareAndSwap(false, true) {
		return nil
	}
	if err := e.Send(e.stopEvent()); err != nil {
		e.stopRequested.Store(false)
		return err
	}
	e.log.Debug("engine stop requested")
	return nil
}

// Send queues ev behind every event sent before it. Under the block
// policy, a send made while a handler is running skips the capacity
// limit: waiting there would stall the consumer on itself.
func (e *Engine) Send(ev event.Event) error {
	if e.stopped.Load() {
		return ErrEngineStopped
	}
	push := e.queue.Push
	if e.full == event.Block && e.handling.Load() {
		push = e.queue.PushOverflow
	}
	if err := push(ev); err != nil {
		if errors.Is(err, event.ErrClosed) {
			return ErrEngineStopped
		}
		return err
	}
	return nil
}

// Flush waits until every event sent before it has been handled. It must
// not be called from the consumer goroutine, and it waits for Run to be
// started.
func (e *Engine) Flush() error {
	reached := make(chan struct{})
	err := e.Send(event.Named{Name: "engine.flush", Fn: func() error {
		close(reached)
		return nil
	}})
	if err != nil {
		return err
	}
	select {
	case <-reached:
		return nil
	case <-e.done:
		select {
		case <-reached:
			return nil
		default:
			return ErrEngineStopped
		}
	}
}

// AddWorld creates a world. It becomes visible in Worlds once its create
// event has been handled.
func (e *Engine) AddWorld() (*World, error) {
	if e.stopped.Load() {
		return nil, ErrEngineStopped
	}
	return newWorld(e)
}

// ── Queries ───────────────────────────────────────────────────────

// Worlds returns a snapshot of the live worlds in creation order.
func (e *Engine) Worlds() []*World {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.worlds)
}

// Extensions returns the extensions in registration order.
func (e *Engine) Extensions() []Extension {
	return slices.Clone(e.extensions)
}

func (e *Engine) Logger() *zap.Logger   { return e.log }
func (e *Engine) Running() bool         { return e.running.Load() }
func (e *Engine) Stopped() bool         { return e.stopped.Load() }
func (e *Engine) Done() <-chan struct{} { return e.done }
func (e *Engine) Pending() int          { return e.queue.Len() }

// GetExtension returns the first extension assignable to T.
func GetExtension[T any](e *Engine) (T, bool) {
	for _, x := range e.extensions {
		if t, ok := x.(T); ok {
			return t, true
		}
	}
	var zero T
	return zero, false
}

// ── Internal ──────────────────────────────────────────────────────

func (e *Engine) addWorld(w *World) {
	e.mu.Lock()
	e.worlds = append(e.worlds, w)
	e.mu.Unlock()
}

func (e *Engine) removeWorld(w *World) {
	e.mu.Lock()
	if i := slices.Index(e.worlds, w); i >= 0 {
		e.worlds = slices.Delete(e.worlds, i, i+1)
	}
	e.mu.Unlock()
}

func eventName(ev event.Event) string {
	if s, ok := ev.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", ev)
}
