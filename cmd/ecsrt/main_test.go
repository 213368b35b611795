package main

import (
	"path/filepath"
	"testing"

	"github.com/l1jgo/ecsrt/internal/config"
	"github.com/l1jgo/ecsrt/internal/core/ecs"
	"github.com/l1jgo/ecsrt/internal/data"
	"github.com/l1jgo/ecsrt/internal/factory"
	"github.com/l1jgo/ecsrt/internal/scripting"
	"github.com/l1jgo/ecsrt/internal/sim"
	"go.uber.org/zap/zaptest"
)

func TestNewLogger(t *testing.T) {
	for _, cfg := range []config.LoggingConfig{
		{Level: "debug", Format: "json"},
		{Level: "warn", Format: "console"},
		{Level: "nonsense"},
	} {
		log, err := newLogger(cfg)
		if err != nil {
			t.Fatalf("newLogger(%+v): %v", cfg, err)
		}
		_ = log.Sync()
	}
}

func TestStartProfileOff(t *testing.T) {
	if stop := startProfile(config.ProfileConfig{}); stop != nil {
		t.Fatal("profiling started with no mode")
	}
}

// TestShippedWorld loads the repository's config, blueprints and scripts and
// runs the resulting world for a few ticks.
func TestShippedWorld(t *testing.T) {
	root := filepath.Join("..", "..")
	cfg, err := config.Load(filepath.Join(root, "config", "ecsrt.toml"))
	if err != nil {
		t.Fatal(err)
	}
	log := zaptest.NewLogger(t)

	engine, err := scripting.NewEngine(filepath.Join(root, cfg.World.Scripts), log)
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close()
	if !engine.Has("orbit") {
		t.Fatal("orbit behaviour missing")
	}

	table, err := data.LoadBlueprintTable(filepath.Join(root, cfg.World.Blueprints))
	if err != nil {
		t.Fatal(err)
	}

	m := ecs.NewManager(ecs.WithLogger(log), ecs.WithMaxWorkerThreads(cfg.Scheduler.WorkerThreads))
	sim.Register(m, sim.Arena{Width: cfg.World.Width, Height: cfg.World.Height}, engine, log)
	m.FinalizeSystemList()
	defer m.Shutdown()

	spawner := factory.New(table, log)
	want := 0
	for _, sp := range cfg.World.Spawn {
		if _, err := spawner.SpawnN(m, sp.Blueprint, sp.Count); err != nil {
			t.Fatal(err)
		}
		want += sp.Count
	}
	if m.EntityCount() != want {
		t.Fatalf("entities = %d, want %d", m.EntityCount(), want)
	}
	for i := 0; i < 30; i++ {
		m.UpdateSystems(cfg.Scheduler.TickRate.Duration)
	}
	if m.TickCount() != 30 {
		t.Fatalf("ticks = %d", m.TickCount())
	}
}
