package scripting

import (
	"fmt"
	"os"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Engine wraps a single gopher-lua VM. Single-goroutine access only: after
// NewEngine returns, only the ecs engine goroutine may call into it.
type Engine struct {
	vm  *lua.LState
	log *zap.Logger
}

// NewEngine creates a Lua VM and loads every script under scriptsDir: the
// top level first, then the core, attributes and extensions subdirectories.
// Missing directories are skipped.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log}
	e.registerAPI()

	dirs := []string{scriptsDir}
	for _, sub := range []string{"core", "attributes", "extensions"} {
		dirs = append(dirs, filepath.Join(scriptsDir, sub))
	}
	for _, dir := range dirs {
		if err := e.loadDir(dir); err != nil {
			vm.Close()
			return nil, fmt.Errorf("load scripts: %w", err)
		}
	}
	return e, nil
}

func (e *Engine) registerAPI() {
	e.vm.SetGlobal("log_info", e.vm.NewFunction(func(L *lua.LState) int {
		e.log.Info(L.CheckString(1), zap.String("source", "lua"))
		return 0
	}))
	e.vm.SetGlobal("log_warn", e.vm.NewFunction(func(L *lua.LState) int {
		e.log.Warn(L.CheckString(1), zap.String("source", "lua"))
		return 0
	}))
}

// loadDir loads all .lua files in a directory.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// DoString runs a chunk of Lua source in the VM.
func (e *Engine) DoString(src string) error {
	return e.vm.DoString(src)
}

// HasTable reports whether a global table with the given name exists.
func (e *Engine) HasTable(name string) bool {
	_, ok := e.vm.GetGlobal(name).(*lua.LTable)
	return ok
}

// GlobalTables returns the names of every global holding a table.
func (e *Engine) GlobalTables() []string {
	var names []string
	e.vm.G.Global.ForEach(func(k, v lua.LValue) {
		if _, ok := v.(*lua.LTable); !ok {
			return
		}
		if name, ok := k.(lua.LString); ok {
			names = append(names, string(name))
		}
	})
	return names
}

// Call invokes a global function if it is defined. The bool reports
// whether the function existed.
func (e *Engine) Call(name string, args ...lua.LValue) (bool, error) {
	fn := e.vm.GetGlobal(name)
	if fn.Type() != lua.LTFunction {
		return false, nil
	}
	if err := e.vm.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, args...); err != nil {
		return true, fmt.Errorf("lua %s: %w", name, err)
	}
	return true, nil
}

// CallField invokes table.field(args...) if both exist.
func (e *Engine) CallField(table, field string, args ...lua.LValue) (bool, error) {
	tbl, ok := e.vm.GetGlobal(table).(*lua.LTable)
	if !ok {
		return false, nil
	}
	fn := tbl.RawGetString(field)
	if fn.Type() != lua.LTFunction {
		return false, nil
	}
	if err := e.vm.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, args...); err != nil {
		return true, fmt.Errorf("lua %s.%s: %w", table, field, err)
	}
	return true, nil
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.vm.Close()
}
