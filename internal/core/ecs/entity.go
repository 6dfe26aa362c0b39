package ecs

import (
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/polyengine/polyengine/internal/core/event"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Entity is a container of attributes owned by exactly one world. The
// attribute list is fixed when the entity is built.
type Entity struct {
	id         uuid.UUID
	world      *World
	engine     *Engine
	attributes []Attribute

	destroyed        atomic.Bool
	destroyRequested atomic.Bool
}

func newEntity(w *World, types []AttributeType) (*Entity, error) {
	en := &Entity{
		id:     uuid.New(),
		world:  w,
		engine: w.engine,
	}
	attributes := make([]Attribute, 0, len(types))
	for _, t := range types {
		a, err := newAttribute(t, AttributeBase{engine: w.engine, world: w, entity: en})
		if err != nil {
			return nil, fmt.Errorf("add entity: %w", err)
		}
		attributes = append(attributes, a)
	}
	en.attributes = attributes

	if err := w.engine.Send(en.createEvent()); err != nil {
		return nil, err
	}
	return en, nil
}

// ── Events ────────────────────────────────────────────────────────

// A create or destroy that lands after its world was destroyed is a no-op:
// the world cascade already decided the entity's fate.
func (en *Entity) createEvent() event.Event {
	return event.Named{Name: "entity.create " + en.id.String(), Fn: func() error {
		if en.world.destroyed.Load() {
			return nil
		}
		en.world.addEntity(en)
		for i, a := range en.attributes {
			if err := a.Init(); err != nil {
				err = fmt.Errorf("init attribute %d (%T): %w", i, a, err)
				return multierr.Append(err, en.abandon(i))
			}
		}
		en.engine.log.Debug("entity created",
			zap.Stringer("entity", en.id),
			zap.Stringer("world", en.world.id),
			zap.Int("attributes", len(en.attributes)))
		en.engine.dispatch.entityCreated(en)
		return nil
	}}
}

func (en *Entity) destroyEvent() event.Event {
	return event.Named{Name: "entity.destroy " + en.id.String(), Fn: en.teardown}
}

// teardown runs every attribute's Term even if some fail.
func (en *Entity) teardown() error {
	if en.world.destroyed.Load() || en.destroyed.Load() {
		return nil
	}
	en.destroyed.Store(true)
	var errs error
	for i, a := range en.attributes {
		if err := a.Term(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("term attribute %d (%T): %w", i, a, err))
		}
	}
	en.world.removeEntity(en)
	en.engine.log.Debug("entity destroyed",
		zap.Stringer("entity", en.id),
		zap.Stringer("world", en.world.id))
	en.engine.dispatch.entityDestroyed(en)
	return errs
}

// abandon undoes a create whose attribute n failed to Init: the first n
// attributes are terminated in order and the entity leaves its world
// without any listener hearing of it.
func (en *Entity) abandon(n int) error {
	en.destroyed.Store(true)
	var errs error
	for i, a := range en.attributes[:n] {
		if err := a.Term(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("term attribute %d (%T): %w", i, a, err))
		}
	}
	en.world.removeEntity(en)
	en.engine.log.Debug("entity create abandoned",
		zap.Stringer("entity", en.id),
		zap.Stringer("world", en.world.id),
		zap.Int("initialized", n))
	return errs
}

// ── Actions ───────────────────────────────────────────────────────

// Destroy queues the entity's destroy event. Repeated calls before it runs
// are no-ops.
func (en *Entity) Destroy() error {
	if en.destroyed.Load() {
		return ErrEntityDestroyed
	}
	if !en.destroyRequested.CompareAndSwap(false, true) {
		return nil
	}
	if err := en.engine.Send(en.destroyEvent()); err != nil {
		en.destroyRequested.Store(false)
		return err
	}
	return nil
}

// ── Queries ───────────────────────────────────────────────────────

func (en *Entity) ID() uuid.UUID   { return en.id }
func (en *Entity) World() *World   { return en.world }
func (en *Entity) Engine() *Engine { return en.engine }
func (en *Entity) Destroyed() bool { return en.destroyed.Load() }

// Attributes returns the attributes in construction order.
func (en *Entity) Attributes() []Attribute {
	return slices.Clone(en.attributes)
}
