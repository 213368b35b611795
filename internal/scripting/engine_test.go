package scripting

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zaptest"
)

func writeScript(t *testing.T, dir, name, src string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestEngineLoadsDirectory(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "b_drift.lua", `
function drift(s)
  return s.vx + 1, s.vy - 1
end
`)
	writeScript(t, dir, "a_stop.lua", `
function stop(s)
  return { vx = 0, vy = 0 }
end
`)
	writeScript(t, dir, "notes.txt", "not lua")

	e, err := NewEngine(dir, zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	if got := e.Scripts(); len(got) != 2 || got[0] != "a_stop.lua" || got[1] != "b_drift.lua" {
		t.Fatalf("Scripts() = %v", got)
	}
	if !e.Has("drift") || !e.Has("stop") || e.Has("missing") {
		t.Fatal("Has() disagrees with loaded scripts")
	}

	vx, vy, err := e.Steer("drift", SteerInput{VX: 2, VY: 3})
	if err != nil || vx != 3 || vy != 2 {
		t.Fatalf("drift = (%v, %v, %v)", vx, vy, err)
	}
	vx, vy, err = e.Steer("stop", SteerInput{VX: 2, VY: 3})
	if err != nil || vx != 0 || vy != 0 {
		t.Fatalf("stop = (%v, %v, %v)", vx, vy, err)
	}
}

func TestEngineMissingDirectory(t *testing.T) {
	e, err := NewEngine(filepath.Join(t.TempDir(), "nope"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()
	if len(e.Scripts()) != 0 {
		t.Fatalf("Scripts() = %v", e.Scripts())
	}
}

func TestEngineSyntaxError(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "broken.lua", "function (")
	if _, err := NewEngine(dir, zaptest.NewLogger(t)); err == nil {
		t.Fatal("expected load error")
	}
}

func TestSteerErrorsKeepVelocity(t *testing.T) {
	e, err := NewEngine(t.TempDir(), zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	in := SteerInput{VX: 4, VY: -1}
	vx, vy, err := e.Steer("nothing", in)
	if !errors.Is(err, ErrUnknownBehaviour) || vx != 4 || vy != -1 {
		t.Fatalf("unknown = (%v, %v, %v)", vx, vy, err)
	}

	if err := e.LoadString(`function boom(s) error("bad") end`); err != nil {
		t.Fatal(err)
	}
	vx, vy, err = e.Steer("boom", in)
	if err == nil || vx != 4 || vy != -1 {
		t.Fatalf("boom = (%v, %v, %v)", vx, vy, err)
	}

	if err := e.LoadString(`function half(s) return { vx = s.vx / 2 } end`); err != nil {
		t.Fatal(err)
	}
	vx, vy, err = e.Steer("half", in)
	if err != nil || vx != 2 || vy != -1 {
		t.Fatalf("half = (%v, %v, %v)", vx, vy, err)
	}
}
