package scripting

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// ErrUnknownBehaviour is returned when a steering function is not defined by
// any loaded script.
var ErrUnknownBehaviour = errors.New("unknown behaviour")

// Engine wraps a single gopher-lua VM that hosts steering behaviours.
// Single-goroutine access only: the script system is never thread-safe.
type Engine struct {
	vm     *lua.LState
	log    *zap.Logger
	loaded []string
}

// NewEngine creates a Lua engine and loads every .lua file in scriptsDir.
// A missing directory yields an engine with no behaviours.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log}
	vm.SetGlobal("log_info", vm.NewFunction(e.luaLog))

	if err := e.loadDir(scriptsDir); err != nil {
		vm.Close()
		return nil, fmt.Errorf("load scripts: %w", err)
	}
	return e, nil
}

// loadDir loads all .lua files in a directory, in name order.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.loaded = append(e.loaded, entry.Name())
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// LoadString runs a chunk of Lua source in the engine's VM.
func (e *Engine) LoadString(src string) error {
	return e.vm.DoString(src)
}

// Scripts returns the file names loaded at startup.
func (e *Engine) Scripts() []string { return e.loaded }

// Has reports whether fn is a global Lua function.
func (e *Engine) Has(fn string) bool {
	_, ok := e.vm.GetGlobal(fn).(*lua.LFunction)
	return ok
}

func (e *Engine) luaLog(L *lua.LState) int {
	e.log.Info("lua", zap.String("msg", L.CheckString(1)))
	return 0
}

// SteerInput is the state handed to a steering behaviour.
type SteerInput struct {
	Entity uint64
	X, Y   float64
	VX, VY float64
	DT     float64 // seconds
}

// Steer calls the Lua function fn with a table describing in and returns the
// new velocity. The function returns either two numbers or a table with
// vx/vy fields; a missing field keeps the input velocity.
func (e *Engine) Steer(fn string, in SteerInput) (vx, vy float64, err error) {
	f, ok := e.vm.GetGlobal(fn).(*lua.LFunction)
	if !ok {
		return in.VX, in.VY, fmt.Errorf("%w: %s", ErrUnknownBehaviour, fn)
	}

	t := e.vm.NewTable()
	t.RawSetString("entity", lua.LNumber(in.Entity))
	t.RawSetString("x", lua.LNumber(in.X))
	t.RawSetString("y", lua.LNumber(in.Y))
	t.RawSetString("vx", lua.LNumber(in.VX))
	t.RawSetString("vy", lua.LNumber(in.VY))
	t.RawSetString("dt", lua.LNumber(in.DT))

	if err := e.vm.CallByParam(lua.P{
		Fn:      f,
		NRet:    2,
		Protect: true,
	}, t); err != nil {
		return in.VX, in.VY, fmt.Errorf("lua %s: %w", fn, err)
	}
	first := e.vm.Get(-2)
	second := e.vm.Get(-1)
	e.vm.Pop(2)

	if rt, ok := first.(*lua.LTable); ok {
		return numberOr(rt.RawGetString("vx"), in.VX), numberOr(rt.RawGetString("vy"), in.VY), nil
	}
	return numberOr(first, in.VX), numberOr(second, in.VY), nil
}

func numberOr(v lua.LValue, fallback float64) float64 {
	if n, ok := v.(lua.LNumber); ok {
		return float64(n)
	}
	return fallback
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.vm.Close()
}
