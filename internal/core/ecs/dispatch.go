package ecs

// EntityListener receives entity lifecycle notifications.
type EntityListener interface {
	OnEntityCreated(entity *Entity)
	OnEntityDestroyed(entity *Entity)
}

// WorldListener receives world lifecycle notifications.
type WorldListener interface {
	OnWorldCreated(world *World)
	OnWorldDestroyed(world *World)
	OnWorldActivated(world *World)
	OnWorldDeactivated(world *World)
}

// dispatcher holds the listener capabilities of the engine's extensions,
// resolved once at construction and kept in registration order.
type dispatcher struct {
	entity []EntityListener
	world  []WorldListener
}

func newDispatcher(extensions []Extension) dispatcher {
	var d dispatcher
	for _, x := range extensions {
		if l, ok := x.(EntityListener); ok {
			d.entity = append(d.entity, l)
		}
		if l, ok := x.(WorldListener); ok {
			d.world = append(d.world, l)
		}
	}
	return d
}

func (d *dispatcher) entityCreated(e *Entity) {
	for _, l := range d.entity {
		l.OnEntityCreated(e)
	}
}

func (d *dispatcher) entityDestroyed(e *Entity) {
	for _, l := range d.entity {
		l.OnEntityDestroyed(e)
	}
}

func (d *dispatcher) worldCreated(w *World) {
	for _, l := range d.world {
		l.OnWorldCreated(w)
	}
}

func (d *dispatcher) worldDestroyed(w *World) {
	for _, l := range d.world {
		l.OnWorldDestroyed(w)
	}
}

func (d *dispatcher) worldActivated(w *World) {
	for _, l := range d.world {
		l.OnWorldActivated(w)
	}
}

func (d *dispatcher) worldDeactivated(w *World) {
	for _, l := range d.world {
		l.OnWorldDeactivated(w)
	}
}
