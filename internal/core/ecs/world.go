package ecs

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/polyengine/polyengine/internal/core/event"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// World is a container of entities with its own active/destroyed
// lifecycle. Every transition is queued on the engine; the calling
// goroutine only performs the synchronous state checks.
type World struct {
	id     uuid.UUID
	engine *Engine

	mu       sync.RWMutex
	entities []*Entity

	active           atomic.Bool
	destroyed        atomic.Bool
	destroyRequested atomic.Bool
}

func newWorld(e *Engine) (*World, error) {
	w := &World{
		id:       uuid.New(),
		engine:   e,
		entities: make([]*Entity, 0, 32),
	}
	if err := e.Send(w.createEvent()); err != nil {
		return nil, err
	}
	return w, nil
}

// ── Events ────────────────────────────────────────────────────────

func (w *World) createEvent() event.Event {
	return event.Named{Name: "world.create " + w.id.String(), Fn: func() error {
		w.engine.addWorld(w)
		w.engine.log.Debug("world created", zap.Stringer("world", w.id))
		w.engine.dispatch.worldCreated(w)
		return nil
	}}
}

func (w *World) destroyEvent() event.Event {
	return event.Named{Name: "world.destroy " + w.id.String(), Fn: w.teardown}
}

// teardown destroys every live entity, then the world itself. It is also
// run directly by the engine's stop event.
func (w *World) teardown() error {
	if w.destroyed.Load() {
		return nil
	}
	var errs error
	for _, en := range w.Entities() {
		errs = multierr.Append(errs, en.teardown())
	}
	w.destroyed.Store(true)
	w.engine.removeWorld(w)
	w.engine.log.Debug("world destroyed", zap.Stringer("world", w.id))
	w.engine.dispatch.worldDestroyed(w)
	return errs
}

// The target state is checked again when the event runs: a queued
// activate may land after the world was destroyed or already activated.
func (w *World) activateEvent() event.Event {
	return event.Named{Name: "world.activate " + w.id.String(), Fn: func() error {
		if w.destroyed.Load() || w.active.Load() {
			return nil
		}
		w.active.Store(true)
		w.engine.log.Debug("world activated", zap.Stringer("world", w.id))
		w.engine.dispatch.worldActivated(w)
		return nil
	}}
}

func (w *World) deactivateEvent() event.Event {
	return event.Named{Name: "world.deactivate " + w.id.String(), Fn: func() error {
		if w.destroyed.Load() || !w.active.Load() {
			return nil
		}
		w.active.Store(false)
		w.engine.log.Debug("world deactivated", zap.Stringer("world", w.id))
		w.engine.dispatch.worldDeactivated(w)
		return nil
	}}
}

// ── Actions ───────────────────────────────────────────────────────

// Destroy queues the destroy cascade. Repeated calls before it runs are
// no-ops.
func (w *World) Destroy() error {
	if w.destroyed.Load() {
		return ErrWorldDestroyed
	}
	if !w.destroyRequested.CompareAndSwap(false, true) {
		return nil
	}
	if err := w.engine.Send(w.destroyEvent()); err != nil {
		w.destroyRequested.Store(false)
		return err
	}
	return nil
}

func (w *World) Activate() error {
	if w.destroyed.Load() {
		return ErrWorldDestroyed
	}
	if w.active.Load() {
		return nil
	}
	return w.engine.Send(w.activateEvent())
}

func (w *World) Deactivate() error {
	if w.destroyed.Load() {
		return ErrWorldDestroyed
	}
	if !w.active.Load() {
		return nil
	}
	return w.engine.Send(w.deactivateEvent())
}

// AddEntity builds an entity with one attribute per type, in order. The
// attributes exist when AddEntity returns; their Init runs with the
// entity's create event.
func (w *World) AddEntity(types ...AttributeType) (*Entity, error) {
	if w.destroyed.Load() {
		return nil, ErrWorldDestroyed
	}
	return newEntity(w, types)
}

// ── Queries ───────────────────────────────────────────────────────

func (w *World) ID() uuid.UUID   { return w.id }
func (w *World) Engine() *Engine { return w.engine }
func (w *World) Active() bool    { return w.active.Load() }
func (w *World) Destroyed() bool { return w.destroyed.Load() }

// Entities returns a snapshot of the live entities in creation order.
func (w *World) Entities() []*Entity {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return slices.Clone(w.entities)
}

// ── Internal ──────────────────────────────────────────────────────

func (w *World) addEntity(en *Entity) {
	w.mu.Lock()
	w.entities = append(w.entities, en)
	w.mu.Unlock()
}

func (w *World) removeEntity(en *Entity) {
	w.mu.Lock()
	if i := slices.Index(w.entities, en); i >= 0 {
		w.entities = slices.Delete(w.entities, i, i+1)
	}
	w.mu.Unlock()
}
