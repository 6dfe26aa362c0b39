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

	"github.com/polyengine/polyengine/internal/builtin"
	"github.com/polyengine/polyengine/internal/config"
	"github.com/polyengine/polyengine/internal/core/ecs"
	"github.com/polyengine/polyengine/internal/data"
	"github.com/polyengine/polyengine/internal/journal"
	"github.com/polyengine/polyengine/internal/persist"
	"github.com/polyengine/polyengine/internal/scripting"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printSection(title string) {
	lineLen := 46 - len(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := 42 - len(label) - len(numStr)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

// ── Main ──────────────────────────────────────────────────────────

func run() error {
	// 1. Load config
	cfgPath := "config/engine.toml"
	if p := os.Getenv("POLYENGINE_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	// 3. Register unit types
	printSection("Units")
	reg := ecs.NewRegistry()
	if err := reg.RegisterExtension(builtin.LoggerType()); err != nil {
		return err
	}
	if err := reg.RegisterExtension(scripting.Type(cfg.Scripting.Dir)); err != nil {
		return err
	}
	for _, name := range cfg.Scripting.Attributes {
		if err := reg.RegisterAttribute(scripting.AttributeType(name)); err != nil {
			return fmt.Errorf("register scripted attribute: %w", err)
		}
	}

	// 4. Journal storage, only when a database is configured
	if cfg.Database.DSN != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		db, err := persist.NewDB(ctx, cfg.Database, log)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		if err := persist.RunMigrations(ctx, db.Pool, log); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		repo := persist.NewJournalRepo(db)
		if err := reg.RegisterExtension(journal.Type(repo, cfg.Database.JournalBatchSize)); err != nil {
			return err
		}
		printOK("lifecycle journal on PostgreSQL")
	}
	printStat("Extension types", len(reg.ExtensionNames()))
	printStat("Attribute types", len(reg.AttributeNames()))

	// 5. Build the engine
	types, err := reg.Extensions(cfg.Engine.Extensions...)
	if err != nil {
		return fmt.Errorf("resolve extensions: %w", err)
	}
	eng, err := ecs.New(cfg.Engine, log, types...)
	if err != nil {
		return err
	}

	var bp *data.Blueprint
	if cfg.Bootstrap.Blueprint != "" {
		bp, err = data.LoadBlueprint(cfg.Bootstrap.Blueprint)
		if err != nil {
			return err
		}
	}

	// 6. Run the loop until a signal or a halting fault
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(eng.Run)
	g.Go(func() error {
		select {
		case <-eng.Done():
			return nil
		case <-gctx.Done():
		}
		log.Info("shutdown requested")
		if err := eng.Stop(); err != nil && !errors.Is(err, ecs.ErrEngineStopped) {
			return err
		}
		return nil
	})

	printSection("Engine")
	printOK(fmt.Sprintf("event loop started (%d extensions)", len(types)))
	if bp != nil {
		if worlds, ok := bootstrap(eng, reg, bp, log); ok {
			printStat("Worlds", len(worlds))
			printStat("Entities", bp.EntityCount())
		}
	}
	fmt.Println()

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("engine stopped")
	return nil
}

// bootstrap spawns the blueprint. On failure it logs and stops the engine,
// so the errgroup unwinds instead of serving a half-populated engine.
func bootstrap(eng *ecs.Engine, reg *ecs.Registry, bp *data.Blueprint, log *zap.Logger) ([]*ecs.World, bool) {
	worlds, err := bp.Spawn(eng, reg)
	if err == nil {
		return worlds, true
	}
	log.Error("bootstrap blueprint failed", zap.Error(err))
	if err := eng.Stop(); err != nil && !errors.Is(err, ecs.ErrEngineStopped) {
		log.Error("stop after bootstrap failure", zap.Error(err))
	}
	return nil, false
}

// newLogger builds a core by hand: JSON for log shippers, otherwise a
// compact colored console line. Unknown levels fall back to info.
func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("logging.level %q: %w", cfg.Level, err)
		}
	}

	var enc zapcore.Encoder
	switch cfg.Format {
	case "json":
		enc = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	case "", "console":
		ec := zap.NewDevelopmentEncoderConfig()
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		ec.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		ec.ConsoleSeparator = "  "
		ec.CallerKey = zapcore.OmitKey
		enc = zapcore.NewConsoleEncoder(ec)
	default:
		return nil, fmt.Errorf("logging.format %q: want console or json", cfg.Format)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(os.Stderr), level)
	return zap.New(core, zap.ErrorOutput(zapcore.Lock(os.Stderr))).Named("polyengine"), nil
}
