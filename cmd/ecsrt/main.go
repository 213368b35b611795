package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/l1jgo/ecsrt/internal/config"
	"github.com/l1jgo/ecsrt/internal/core/ecs"
	"github.com/l1jgo/ecsrt/internal/core/event"
	coresys "github.com/l1jgo/ecsrt/internal/core/system"
	"github.com/l1jgo/ecsrt/internal/data"
	"github.com/l1jgo/ecsrt/internal/factory"
	"github.com/l1jgo/ecsrt/internal/persist"
	"github.com/l1jgo/ecsrt/internal/scripting"
	"github.com/l1jgo/ecsrt/internal/sim"
	"github.com/l1jgo/ecsrt/internal/snapshot"
	"github.com/pkg/profile"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

var numbers = message.NewPrinter(language.English)

func printBanner(workers int, rate time.Duration) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m               ecsrt  v0.1.0               \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m     entity-component scheduling runtime   \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1mworkers:\033[0m %d \033[90m(tick %s)\033[0m\n\n", workers, rate)
}

func printSection(title string) {
	lineLen := max(46-len(title)-1, 3)
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := numbers.Sprintf("%d", count)
	dotsLen := max(42-len(label)-len(numStr), 3)
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main loop ──────────────────────────────────────────────────────

func run() error {
	cfgPath := "config/ecsrt.toml"
	if p := os.Getenv("ECSRT_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	if stop := startProfile(cfg.Profile); stop != nil {
		defer stop()
	}

	printBanner(cfg.Scheduler.WorkerThreads, cfg.Scheduler.TickRate.Duration)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Storage is optional; without it the runtime only simulates.
	var repo *persist.SnapshotRepo
	if cfg.Database.Enabled {
		printSection("database")
		dbCtx, dbCancel := context.WithTimeout(ctx, 30*time.Second)
		db, err := persist.NewDB(dbCtx, cfg.Database, log)
		if err != nil {
			dbCancel()
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		printOK("PostgreSQL connected")

		version, err := persist.RunMigrations(dbCtx, db.Pool)
		dbCancel()
		if err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		printStat("schema version", int(version))
		repo = persist.NewSnapshotRepo(db)
		fmt.Println()
	}

	printSection("scripts")
	engine, err := scripting.NewEngine(cfg.World.Scripts, log)
	if err != nil {
		return fmt.Errorf("scripting: %w", err)
	}
	defer engine.Close()
	printStat("lua scripts", len(engine.Scripts()))
	fmt.Println()

	printSection("systems")
	m := ecs.NewManager(
		ecs.WithLogger(log.Named("ecs")),
		ecs.WithMaxWorkerThreads(cfg.Scheduler.WorkerThreads),
	)
	systems := sim.Register(m, sim.Arena{Width: cfg.World.Width, Height: cfg.World.Height}, engine, log)
	m.FinalizeSystemList()
	defer m.Shutdown()
	printStat("systems", m.SystemCount())
	printStat("worker threads", m.MaxWorkerThreads())
	fmt.Println()

	printSection("world")
	blueprints, err := data.LoadBlueprintTable(cfg.World.Blueprints)
	if err != nil {
		return fmt.Errorf("load blueprints: %w", err)
	}
	printStat("blueprints", blueprints.Count())
	spawner := factory.New(blueprints, log)
	m.SetEntityFactory(spawner)

	restored := false
	if repo != nil && cfg.Snapshot.RestoreLatest {
		n, err := restoreLatest(ctx, m, repo, log)
		if err != nil {
			return err
		}
		restored = n > 0
		printStat("restored entities", n)
	}
	if !restored {
		for _, sp := range cfg.World.Spawn {
			ids, err := spawner.SpawnN(m, sp.Blueprint, sp.Count)
			if err != nil {
				return fmt.Errorf("spawn: %w", err)
			}
			printStat("spawned "+sp.Blueprint, len(ids))
		}
	}
	printStat("entities", m.EntityCount())
	fmt.Println()

	bus := event.NewBus()
	systems.Lifetime.SetEventBus(bus)
	var expiredSinceReport int
	event.Subscribe(bus, func(event.EntityExpired) { expiredSinceReport++ })
	event.Subscribe(bus, func(ev event.SnapshotSaved) {
		log.Info("snapshot saved",
			zap.Stringer("id", ev.ID),
			zap.Uint64("tick", ev.Tick),
			zap.Int("records", ev.Records))
	})

	runner := coresys.NewRunner(m, cfg.Scheduler.TickRate.Duration)
	runner.OnTick(func(uint64) {
		bus.SwapBuffers()
		bus.DispatchAll()
	})
	runner.Every(600, func(tick uint64) {
		log.Info("tick",
			zap.Uint64("tick", tick),
			zap.Int("entities", m.EntityCount()),
			zap.Int("expired", expiredSinceReport),
			zap.Uint64("expired_total", systems.Lifetime.Expired()))
		expiredSinceReport = 0
	})
	if repo != nil && cfg.Snapshot.Enabled {
		runner.Every(cfg.Snapshot.IntervalTicks, func(tick uint64) {
			if err := saveSnapshot(ctx, m, repo, bus, tick, cfg.Snapshot.Keep); err != nil {
				log.Error("snapshot failed", zap.Uint64("tick", tick), zap.Error(err))
			}
		})
	}

	printReady("running (Ctrl+C to stop)")
	err = runner.Run(ctx, cfg.Scheduler.MaxTicks)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run: %w", err)
	}

	log.Info("shutting down",
		zap.Uint64("ticks", runner.Ticks()),
		zap.Int("entities", m.EntityCount()))
	if repo != nil && cfg.Snapshot.Enabled {
		// ctx is already cancelled on a signal; the final save gets its own.
		if err := saveSnapshot(context.Background(), m, repo, nil, runner.Ticks(), cfg.Snapshot.Keep); err != nil {
			log.Error("final snapshot failed", zap.Error(err))
		}
	}
	return nil
}

func restoreLatest(ctx context.Context, m *ecs.Manager, repo *persist.SnapshotRepo, log *zap.Logger) (int, error) {
	loadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	snap, err := repo.LatestSnapshot(loadCtx)
	if errors.Is(err, persist.ErrSnapshotNotFound) {
		log.Info("no snapshot to restore")
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load snapshot: %w", err)
	}
	ids, err := snapshot.Restore(m, snap)
	if err != nil {
		return 0, fmt.Errorf("restore snapshot %s: %w", snap.ID, err)
	}
	log.Info("snapshot restored",
		zap.Stringer("id", snap.ID),
		zap.Uint64("tick", snap.Tick),
		zap.Int("entities", len(ids)))
	return len(ids), nil
}

func saveSnapshot(ctx context.Context, m *ecs.Manager, repo *persist.SnapshotRepo, bus *event.Bus, tick uint64, keep int) error {
	snap, err := snapshot.Capture(m, tick)
	if err != nil {
		return err
	}
	saveCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := repo.SaveSnapshot(saveCtx, snap); err != nil {
		return err
	}
	event.Emit(bus, event.SnapshotSaved{ID: snap.ID, Tick: snap.Tick, Records: len(snap.Records)})
	if keep > 0 {
		if _, err := repo.PruneSnapshots(saveCtx, keep); err != nil {
			return err
		}
	}
	return nil
}

// startProfile starts pkg/profile for the configured mode and returns its
// stop function, or nil when profiling is off.
func startProfile(cfg config.ProfileConfig) func() {
	var mode func(*profile.Profile)
	switch cfg.Mode {
	case "cpu":
		mode = profile.CPUProfile
	case "mem":
		mode = profile.MemProfile
	case "mutex":
		mode = profile.MutexProfile
	case "block":
		mode = profile.BlockProfile
	case "trace":
		mode = profile.TraceProfile
	default:
		return nil
	}
	p := profile.Start(mode, profile.ProfilePath(cfg.Path), profile.NoShutdownHook, profile.Quiet)
	return p.Stop
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
