package ecs

import (
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/polyengine/polyengine/internal/config"
	"github.com/polyengine/polyengine/internal/core/event"
	"golang.org/x/sync/errgroup"
)

func TestWorldVisibleAfterCreateEvent(t *testing.T) {
	rec := &recorder{}
	e := newEngine(t, testConfig(), worldType("wl", rec))

	// Nothing is handled before Run, so the world cannot be visible yet.
	w := mustWorld(t, e)
	if got := e.Worlds(); len(got) != 0 {
		t.Fatalf("worlds before drain = %d, want 0", len(got))
	}

	start(t, e)
	flush(t, e)

	if got := e.Worlds(); len(got) != 1 || got[0] != w {
		t.Fatalf("worlds = %v, want [%p]", got, w)
	}
	if n := rec.count("wl", "world_created"); n != 1 {
		t.Fatalf("world_created calls = %d, want 1", n)
	}
	for _, r := range rec.all() {
		if r.what == "world_created" && r.world != w {
			t.Fatalf("world_created got %p, want %p", r.world, w)
		}
	}
}

func TestExtensionInitOrder(t *testing.T) {
	rec := &recorder{}
	r := startEngine(t, plainType("a", rec), worldType("b", rec), entityType("c", rec))
	flush(t, r.Engine)

	want := []string{"a.init", "b.init", "c.init"}
	if got := rec.labels(); !slices.Equal(got, want) {
		t.Fatalf("labels = %v, want %v", got, want)
	}
	if !r.Running() {
		t.Fatal("engine not running")
	}
	if got := len(r.Extensions()); got != 3 {
		t.Fatalf("extensions = %d", got)
	}
}

func TestStopTearsDownWorldsBeforeExtensions(t *testing.T) {
	rec := &recorder{}
	r := startEngine(t, fullType("x", rec), plainType("y", rec))

	w1 := mustWorld(t, r.Engine)
	w2 := mustWorld(t, r.Engine)
	e1 := mustEntity(t, w1, tracerType("a1", rec), tracerType("a2", rec))
	e2 := mustEntity(t, w2, tracerType("b1", rec))
	flush(t, r.Engine)

	if err := r.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := r.wait(t); err != nil {
		t.Fatalf("run: %v", err)
	}

	labels := rec.labels()
	xTerm, yTerm := indexOf(labels, "x.term"), indexOf(labels, "y.term")
	if xTerm < 0 || yTerm < 0 || xTerm > yTerm {
		t.Fatalf("extension terms out of order: %v", labels)
	}
	for _, l := range []string{"a1.term", "a2.term", "b1.term", "x.world_destroyed"} {
		i := indexOf(labels, l)
		if i < 0 {
			t.Fatalf("missing %s in %v", l, labels)
		}
		if i > xTerm {
			t.Fatalf("%s ran after extension term: %v", l, labels)
		}
	}
	// w1 is first in the world list so its cascade runs first
	if indexOf(labels, "a2.term") > indexOf(labels, "b1.term") {
		t.Fatalf("worlds not torn down in list order: %v", labels)
	}

	if !r.Stopped() || r.Running() {
		t.Fatalf("stopped=%v running=%v", r.Stopped(), r.Running())
	}
	if len(r.Worlds()) != 0 {
		t.Fatalf("worlds left: %d", len(r.Worlds()))
	}
	for _, w := range []*World{w1, w2} {
		if !w.Destroyed() || len(w.Entities()) != 0 {
			t.Fatalf("world %s not torn down", w.ID())
		}
	}
	if !e1.Destroyed() || !e2.Destroyed() {
		t.Fatal("entities not destroyed")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	rec := &recorder{}
	r := startEngine(t, plainType("x", rec))

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			// a late caller may already see the engine fully stopped
			if err := r.Stop(); err != nil && !errors.Is(err, ErrEngineStopped) {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent stop: %v", err)
	}
	if err := r.wait(t); err != nil {
		t.Fatalf("run: %v", err)
	}
	if n := rec.count("x", "term"); n != 1 {
		t.Fatalf("term calls = %d, want 1", n)
	}
	if err := r.Stop(); !errors.Is(err, ErrEngineStopped) {
		t.Fatalf("stop after stopped = %v", err)
	}
}

func TestActionsAfterStopFail(t *testing.T) {
	r := startEngine(t)
	w := mustWorld(t, r.Engine)
	if err := r.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := r.wait(t); err != nil {
		t.Fatal(err)
	}

	if _, err := r.AddWorld(); !errors.Is(err, ErrEngineStopped) {
		t.Errorf("add world: %v", err)
	}
	if err := r.Send(event.Func(func() error { return nil })); !errors.Is(err, ErrEngineStopped) {
		t.Errorf("send: %v", err)
	}
	if err := r.Flush(); !errors.Is(err, ErrEngineStopped) {
		t.Errorf("flush: %v", err)
	}
	if err := w.Activate(); !errors.Is(err, ErrWorldDestroyed) {
		t.Errorf("activate: %v", err)
	}
	if !errors.Is(ErrEngineStopped, ErrInvalidState) {
		t.Error("ErrEngineStopped does not wrap ErrInvalidState")
	}
}

func TestRunTwice(t *testing.T) {
	r := startEngine(t)
	flush(t, r.Engine)
	if err := r.Run(); !errors.Is(err, ErrEngineRunning) {
		t.Fatalf("second run = %v", err)
	}
}

func TestStopBeforeRun(t *testing.T) {
	rec := &recorder{}
	e := newEngine(t, testConfig(), plainType("x", rec))
	if err := e.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := e.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := rec.labels(); !slices.Equal(got, []string{"x.init", "x.term"}) {
		t.Fatalf("labels = %v", got)
	}
}

func TestNewFailsOnBadExtension(t *testing.T) {
	rec := &recorder{}
	tests := []struct {
		name string
		typ  ExtensionType
		kind error
	}{
		{"nil constructor", ExtensionType{Name: "abstract"}, ErrNotInstantiable},
		{"nil result", ExtensionType{Name: "empty", New: func(ExtensionBase) (Extension, error) {
			var x *plainExt
			return x, nil
		}}, ErrNotInstantiable},
		{"constructor error", ExtensionType{Name: "broken", New: func(ExtensionBase) (Extension, error) {
			return nil, errors.New("boom")
		}}, ErrNotInstantiable},
		{"inaccessible", ExtensionType{Name: "private", New: func(ExtensionBase) (Extension, error) {
			return nil, fmt.Errorf("license check: %w", ErrInaccessible)
		}}, ErrInaccessible},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := New(testConfig(), nil, plainType("ok", rec), tt.typ)
			if e != nil {
				t.Fatal("engine returned despite failure")
			}
			var ce *ConstructionError
			if !errors.As(err, &ce) {
				t.Fatalf("err = %v, want *ConstructionError", err)
			}
			if ce.Type != tt.typ.Name || ce.Unit != "extension" {
				t.Fatalf("construction error = %+v", ce)
			}
			if !errors.Is(err, tt.kind) {
				t.Fatalf("err = %v, want kind %v", err, tt.kind)
			}
		})
	}
	if n := rec.count("ok", "init"); n != 0 {
		t.Fatalf("init ran %d times on an engine that failed to build", n)
	}
}

func TestNewRejectsBadPolicies(t *testing.T) {
	if _, err := New(config.EngineConfig{QueueFullPolicy: "drop"}, nil); err == nil {
		t.Error("expected queue policy error")
	}
	if _, err := New(config.EngineConfig{FaultPolicy: "retry"}, nil); err == nil {
		t.Error("expected fault policy error")
	}
}

func TestFaultHaltStopsEngine(t *testing.T) {
	rec := &recorder{}
	boom := errors.New("boom")
	r := startEngine(t, plainType("x", rec))
	w := mustWorld(t, r.Engine)
	mustEntity(t, w, failingTracerType("bad", rec, boom))

	err := r.wait(t)
	var ee *EventError
	if !errors.As(err, &ee) || !errors.Is(err, boom) {
		t.Fatalf("run = %v, want EventError wrapping boom", err)
	}
	if !r.Stopped() {
		t.Fatal("engine not marked stopped")
	}
	if _, err := r.AddWorld(); !errors.Is(err, ErrEngineStopped) {
		t.Fatalf("add world after halt = %v", err)
	}
	if n := rec.count("x", "term"); n != 0 {
		t.Fatalf("extension terminated on halt: %d", n)
	}
}

func TestFaultSkipContinues(t *testing.T) {
	rec := &recorder{}
	cfg := testConfig()
	cfg.FaultPolicy = "skip"
	r := start(t, newEngine(t, cfg, entityType("x", rec)))

	if err := r.Send(event.Func(func() error { panic("listener bug") })); err != nil {
		t.Fatal(err)
	}
	w := mustWorld(t, r.Engine)
	mustEntity(t, w, failingTracerType("bad", rec, errors.New("boom")))
	good := mustEntity(t, w, tracerType("good", rec))
	flush(t, r.Engine)

	if n := rec.count("good", "init"); n != 1 {
		t.Fatalf("good init = %d, want 1", n)
	}
	created := 0
	for _, rr := range rec.all() {
		if rr.what == "entity_created" {
			created++
			if rr.entity != good {
				t.Fatal("failed entity was announced")
			}
		}
	}
	if created != 1 {
		t.Fatalf("entity_created = %d, want 1", created)
	}

	if err := r.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := r.wait(t); err != nil {
		t.Fatalf("run = %v", err)
	}
	if n := rec.count("x", "term"); n != 1 {
		t.Fatalf("term = %d", n)
	}
}

func TestRejectPolicyRollsBackRequests(t *testing.T) {
	cfg := testConfig()
	cfg.QueueCapacity = 2
	cfg.QueueFullPolicy = "reject"
	e := newEngine(t, cfg)

	w := mustWorld(t, e) // start + world create fill the queue
	if _, err := e.AddWorld(); !errors.Is(err, event.ErrFull) {
		t.Fatalf("add world on full queue = %v", err)
	}
	if err := w.Destroy(); !errors.Is(err, event.ErrFull) {
		t.Fatalf("destroy on full queue = %v", err)
	}
	if err := e.Stop(); !errors.Is(err, event.ErrFull) {
		t.Fatalf("stop on full queue = %v", err)
	}

	start(t, e)
	for {
		err := e.Flush()
		if err == nil {
			break
		}
		if !errors.Is(err, event.ErrFull) {
			t.Fatalf("flush: %v", err)
		}
	}

	// the rejected requests left no guard behind
	if err := w.Destroy(); err != nil {
		t.Fatalf("destroy after drain: %v", err)
	}
	flush(t, e)
	if !w.Destroyed() {
		t.Fatal("world not destroyed")
	}
	if err := e.Stop(); err != nil {
		t.Fatalf("stop after drain: %v", err)
	}
}

func TestConcurrentAddAndDestroy(t *testing.T) {
	rec := &recorder{}
	r := startEngine(t, entityType("x", rec))
	w := mustWorld(t, r.Engine)

	const workers, perWorker = 8, 50
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for j := 0; j < perWorker; j++ {
				en, err := w.AddEntity(tracerType("p", rec))
				if err != nil {
					return err
				}
				if j%2 == 0 {
					if err := en.Destroy(); err != nil {
						return err
					}
					// second destroy before the first is handled is a no-op
					if err := en.Destroy(); err != nil && !errors.Is(err, ErrEntityDestroyed) {
						return err
					}
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	flush(t, r.Engine)

	var want []*Entity
	destroyed := map[*Entity]int{}
	for _, rr := range rec.all() {
		switch rr.what {
		case "entity_created":
			want = append(want, rr.entity)
		case "entity_destroyed":
			destroyed[rr.entity]++
		}
	}
	want = slices.DeleteFunc(want, func(en *Entity) bool { return destroyed[en] > 0 })

	got := w.Entities()
	if !slices.Equal(got, want) {
		t.Fatalf("entities = %d, want %d in creation order", len(got), len(want))
	}
	if len(got) != workers*perWorker/2 {
		t.Fatalf("live entities = %d, want %d", len(got), workers*perWorker/2)
	}
	for en, n := range destroyed {
		if n != 1 {
			t.Fatalf("entity %s destroyed %d times", en.ID(), n)
		}
	}
	if n := rec.count("p", "term"); n != workers*perWorker/2 {
		t.Fatalf("term calls = %d", n)
	}
}

func TestGetExtension(t *testing.T) {
	rec := &recorder{}
	r := startEngine(t, plainType("a", rec), worldType("b", rec))

	wl, ok := GetExtension[WorldListener](r.Engine)
	if !ok {
		t.Fatal("world listener not found")
	}
	if wl.(*worldExt).name != "b" {
		t.Fatalf("got %s", wl.(*worldExt).name)
	}
	if _, ok := GetExtension[EntityListener](r.Engine); ok {
		t.Fatal("unexpected entity listener")
	}
	p, ok := GetExtension[*plainExt](r.Engine)
	if !ok || p.Engine() != r.Engine {
		t.Fatal("plain extension not bound to engine")
	}
}

func TestBoundedQueueSendFromHandler(t *testing.T) {
	rec := &recorder{}
	cfg := testConfig()
	cfg.QueueCapacity = 1
	r := start(t, newEngine(t, cfg, entityType("x", rec)))
	w := mustWorld(t, r.Engine)
	flush(t, r.Engine)

	added := make(chan error, 1)
	err := r.Send(event.Func(func() error {
		for i := 0; i < 3; i++ {
			if _, err := w.AddEntity(tracerType(fmt.Sprintf("a%d", i), rec)); err != nil {
				added <- err
				return err
			}
		}
		added <- nil
		return nil
	}))
	if err != nil {
		t.Fatal(err)
	}

	flushed := make(chan error, 1)
	go func() { flushed <- r.Flush() }()
	select {
	case err := <-flushed:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("engine stalled on a send from its own handler")
	}
	if err := <-added; err != nil {
		t.Fatalf("add entity from handler: %v", err)
	}
	if n := len(w.Entities()); n != 3 {
		t.Fatalf("entities = %d, want 3", n)
	}
	if n := rec.count("x", "entity_created"); n != 3 {
		t.Fatalf("entity_created = %d, want 3", n)
	}
}
