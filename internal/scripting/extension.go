package scripting

import (
	"fmt"

	"github.com/polyengine/polyengine/internal/core/ecs"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

const Name = "lua"

// Extension hosts the Lua VM and forwards lifecycle notifications to the
// optional globals on_world_created, on_world_destroyed, on_world_activated,
// on_world_deactivated, on_entity_created and on_entity_destroyed.
type Extension struct {
	ecs.ExtensionBase
	lua *Engine
	// tables is captured once the scripts are loaded and never changes, so
	// attribute constructors on any goroutine can read it.
	tables map[string]struct{}
}

// Type returns the descriptor registered under Name. Scripts are loaded
// when the extension is constructed, so a broken script fails engine
// construction.
func Type(scriptsDir string) ecs.ExtensionType {
	return ecs.ExtensionType{
		Name: Name,
		New: func(base ecs.ExtensionBase) (ecs.Extension, error) {
			vm, err := NewEngine(scriptsDir, base.Engine().Logger())
			if err != nil {
				return nil, err
			}
			x := &Extension{ExtensionBase: base, lua: vm, tables: make(map[string]struct{})}
			for _, name := range vm.GlobalTables() {
				x.tables[name] = struct{}{}
			}
			return x, nil
		},
	}
}

// Lua exposes the VM. Only the engine goroutine may use it.
func (x *Extension) Lua() *Engine { return x.lua }

// Scripted reports whether the loaded scripts define a global table name.
// Tables created later, e.g. by on_engine_init, do not count.
func (x *Extension) Scripted(name string) bool {
	_, ok := x.tables[name]
	return ok
}

func (x *Extension) Init() error {
	_, err := x.lua.Call("on_engine_init")
	return err
}

// Term runs after every attribute has been terminated, so closing the VM
// here cannot strand a scripted attribute.
func (x *Extension) Term() error {
	_, err := x.lua.Call("on_engine_term")
	x.lua.Close()
	return err
}

func (x *Extension) OnWorldCreated(w *ecs.World)     { x.notify("on_world_created", worldArgs(w)...) }
func (x *Extension) OnWorldDestroyed(w *ecs.World)   { x.notify("on_world_destroyed", worldArgs(w)...) }
func (x *Extension) OnWorldActivated(w *ecs.World)   { x.notify("on_world_activated", worldArgs(w)...) }
func (x *Extension) OnWorldDeactivated(w *ecs.World) { x.notify("on_world_deactivated", worldArgs(w)...) }

func (x *Extension) OnEntityCreated(en *ecs.Entity) {
	x.notify("on_entity_created", entityArgs(en)...)
}

func (x *Extension) OnEntityDestroyed(en *ecs.Entity) {
	x.notify("on_entity_destroyed", entityArgs(en)...)
}

// notify logs script errors instead of failing the event: a listener hook
// has no caller to report to.
func (x *Extension) notify(fn string, args ...lua.LValue) {
	if _, err := x.lua.Call(fn, args...); err != nil {
		x.Engine().Logger().Error("lua listener failed", zap.String("hook", fn), zap.Error(err))
	}
}

func worldArgs(w *ecs.World) []lua.LValue {
	return []lua.LValue{lua.LString(w.ID().String())}
}

func entityArgs(en *ecs.Entity) []lua.LValue {
	return []lua.LValue{lua.LString(en.ID().String()), lua.LString(en.World().ID().String())}
}

// AttributeType returns a descriptor for an attribute implemented by the
// global Lua table of the same name. The table's init(entity_id, world_id)
// and term(entity_id, world_id) functions are both optional. Construction
// runs on the caller's goroutine and never touches the VM.
func AttributeType(name string) ecs.AttributeType {
	return ecs.AttributeType{
		Name: name,
		New: func(base ecs.AttributeBase) (ecs.Attribute, error) {
			x, ok := ecs.GetExtension[*Extension](base.Engine())
			if !ok {
				return nil, fmt.Errorf("lua extension not registered: %w", ecs.ErrInaccessible)
			}
			if !x.Scripted(name) {
				return nil, fmt.Errorf("no lua table %q", name)
			}
			return &Attribute{AttributeBase: base, name: name, lua: x.lua}, nil
		},
	}
}

// Attribute delegates its hooks to a Lua table.
type Attribute struct {
	ecs.AttributeBase
	name string
	lua  *Engine
}

func (a *Attribute) Name() string { return a.name }

func (a *Attribute) Init() error {
	_, err := a.lua.CallField(a.name, "init", entityArgs(a.Entity())...)
	return err
}

func (a *Attribute) Term() error {
	_, err := a.lua.CallField(a.name, "term", entityArgs(a.Entity())...)
	return err
}
