package ecs

import (
	"sync"
	"testing"
	"time"

	"github.com/polyengine/polyengine/internal/config"
	"go.uber.org/zap/zaptest"
)

// record is one observed hook or notification.
type record struct {
	who    string
	what   string
	world  *World
	entity *Entity
}

type recorder struct {
	mu      sync.Mutex
	records []record
}

func (r *recorder) add(rec record) {
	r.mu.Lock()
	r.records = append(r.records, rec)
	r.mu.Unlock()
}

func (r *recorder) all() []record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]record, len(r.records))
	copy(out, r.records)
	return out
}

// labels returns "who.what" for every record, in order.
func (r *recorder) labels() []string {
	var out []string
	for _, rec := range r.all() {
		out = append(out, rec.who+"."+rec.what)
	}
	return out
}

func (r *recorder) count(who, what string) int {
	n := 0
	for _, rec := range r.all() {
		if rec.who == who && rec.what == what {
			n++
		}
	}
	return n
}

func indexOf(labels []string, label string) int {
	for i, l := range labels {
		if l == label {
			return i
		}
	}
	return -1
}

// ── Extensions ────────────────────────────────────────────────────

type plainExt struct {
	ExtensionBase
	name string
	rec  *recorder
}

func (x *plainExt) Init() error { x.rec.add(record{who: x.name, what: "init"}); return nil }
func (x *plainExt) Term() error { x.rec.add(record{who: x.name, what: "term"}); return nil }

type worldExt struct{ plainExt }

func (x *worldExt) OnWorldCreated(w *World) {
	x.rec.add(record{who: x.name, what: "world_created", world: w})
}
func (x *worldExt) OnWorldDestroyed(w *World) {
	x.rec.add(record{who: x.name, what: "world_destroyed", world: w})
}
func (x *worldExt) OnWorldActivated(w *World) {
	x.rec.add(record{who: x.name, what: "world_activated", world: w})
}
func (x *worldExt) OnWorldDeactivated(w *World) {
	x.rec.add(record{who: x.name, what: "world_deactivated", world: w})
}

type entityExt struct{ plainExt }

func (x *entityExt) OnEntityCreated(en *Entity) {
	x.rec.add(record{who: x.name, what: "entity_created", entity: en})
}
func (x *entityExt) OnEntityDestroyed(en *Entity) {
	x.rec.add(record{who: x.name, what: "entity_destroyed", entity: en})
}

type fullExt struct {
	worldExt
}

func (x *fullExt) OnEntityCreated(en *Entity) {
	x.rec.add(record{who: x.name, what: "entity_created", entity: en})
}
func (x *fullExt) OnEntityDestroyed(en *Entity) {
	x.rec.add(record{who: x.name, what: "entity_destroyed", entity: en})
}

func plainType(name string, rec *recorder) ExtensionType {
	return ExtensionOf(name, func(b ExtensionBase) *plainExt {
		return &plainExt{ExtensionBase: b, name: name, rec: rec}
	})
}

func worldType(name string, rec *recorder) ExtensionType {
	return ExtensionOf(name, func(b ExtensionBase) *worldExt {
		return &worldExt{plainExt{ExtensionBase: b, name: name, rec: rec}}
	})
}

func entityType(name string, rec *recorder) ExtensionType {
	return ExtensionOf(name, func(b ExtensionBase) *entityExt {
		return &entityExt{plainExt{ExtensionBase: b, name: name, rec: rec}}
	})
}

func fullType(name string, rec *recorder) ExtensionType {
	return ExtensionOf(name, func(b ExtensionBase) *fullExt {
		return &fullExt{worldExt{plainExt{ExtensionBase: b, name: name, rec: rec}}}
	})
}

// ── Attributes ────────────────────────────────────────────────────

type tracer struct {
	AttributeBase
	name    string
	rec     *recorder
	initErr error
}

func (p *tracer) Init() error {
	p.rec.add(record{who: p.name, what: "init", entity: p.Entity()})
	return p.initErr
}

func (p *tracer) Term() error {
	p.rec.add(record{who: p.name, what: "term", entity: p.Entity()})
	return nil
}

// marker is a second concrete attribute type for query tests.
type marker struct {
	AttributeBase
}

type named interface {
	Attribute
	Name() string
}

func (p *tracer) Name() string { return p.name }

func tracerType(name string, rec *recorder) AttributeType {
	return AttributeOf(name, func(b AttributeBase) *tracer {
		return &tracer{AttributeBase: b, name: name, rec: rec}
	})
}

func failingTracerType(name string, rec *recorder, err error) AttributeType {
	return AttributeOf(name, func(b AttributeBase) *tracer {
		return &tracer{AttributeBase: b, name: name, rec: rec, initErr: err}
	})
}

var markerType = AttributeOf("marker", func(b AttributeBase) *marker {
	return &marker{AttributeBase: b}
})

// ── Engine harness ────────────────────────────────────────────────

func testConfig() config.EngineConfig {
	return config.EngineConfig{QueueFullPolicy: "block", FaultPolicy: "halt"}
}

func newEngine(t *testing.T, cfg config.EngineConfig, types ...ExtensionType) *Engine {
	t.Helper()
	e, err := New(cfg, zaptest.NewLogger(t), types...)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e
}

type running struct {
	*Engine
	result chan error
}

// start runs the engine loop in the background and stops it at cleanup.
func start(t *testing.T, e *Engine) *running {
	t.Helper()
	r := &running{Engine: e, result: make(chan error, 1)}
	go func() { r.result <- e.Run() }()
	t.Cleanup(func() {
		_ = e.Stop()
		select {
		case <-e.Done():
		case <-time.After(5 * time.Second):
			t.Error("engine did not stop")
		}
	})
	return r
}

func startEngine(t *testing.T, types ...ExtensionType) *running {
	t.Helper()
	return start(t, newEngine(t, testConfig(), types...))
}

// wait returns Run's result.
func (r *running) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-r.result:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

func flush(t *testing.T, e *Engine) {
	t.Helper()
	if err := e.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

func mustWorld(t *testing.T, e *Engine) *World {
	t.Helper()
	w, err := e.AddWorld()
	if err != nil {
		t.Fatalf("add world: %v", err)
	}
	return w
}

func mustEntity(t *testing.T, w *World, types ...AttributeType) *Entity {
	t.Helper()
	en, err := w.AddEntity(types...)
	if err != nil {
		t.Fatalf("add entity: %v", err)
	}
	return en
}
