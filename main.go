package main

import (
	"context"
	"flag"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/pthm-cable/botlife/archive"
	"github.com/pthm-cable/botlife/config"
	"github.com/pthm-cable/botlife/runner"
	"github.com/pthm-cable/botlife/sim"
	"github.com/pthm-cable/botlife/telemetry"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	logStats := flag.Bool("log-stats", false, "Output stats via slog")
	windowTicks := flag.Int("window-ticks", 0, "Stats window size in ticks (0 = use config)")
	snapshots := flag.Bool("snapshots", false, "Save a world snapshot on each bookmark")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and config snapshot")
	seed := flag.Int64("seed", 0, "RNG seed (0 = time-based)")
	maxTicks := flag.Uint64("max-ticks", 0, "Stop after N ticks (0 = unlimited)")
	hallPath := flag.String("hall-of-fame", "", "Hall of fame JSON from a previous run to reseed from")
	archiveDSN := flag.String("archive-dsn", os.Getenv("BOTLIFE_ARCHIVE_DSN"), "Postgres DSN for the run archive (empty = disabled)")

	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	rngSeed := *seed
	if rngSeed == 0 {
		rngSeed = time.Now().UnixNano()
	}

	statsWindow := cfg.Telemetry.WindowTicks
	if *windowTicks > 0 {
		statsWindow = *windowTicks
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, rngSeed, runOptions{
		maxTicks:    *maxTicks,
		windowTicks: statsWindow,
		logStats:    *logStats,
		snapshots:   *snapshots,
		outputDir:   *outputDir,
		hallPath:    *hallPath,
		archiveDSN:  *archiveDSN,
	}); err != nil {
		slog.Error("simulation failed", "error", err)
		os.Exit(1)
	}
}

type runOptions struct {
	maxTicks    uint64
	windowTicks int
	logStats    bool
	snapshots   bool
	outputDir   string
	hallPath    string
	archiveDSN  string
}

func run(ctx context.Context, cfg *config.Config, seed int64, o runOptions) error {
	out, err := telemetry.NewOutputManager(o.outputDir)
	if err != nil {
		return err
	}
	defer out.Close()
	if err := out.WriteConfig(cfg); err != nil {
		return err
	}

	var rec *archive.Recorder
	if o.archiveDSN != "" {
		db, err := archive.OpenAndMigrate(ctx, o.archiveDSN)
		if err != nil {
			return err
		}
		if rec, err = archive.Start(ctx, db, seed, cfg); err != nil {
			return err
		}
		slog.Info("archiving run", "run_id", rec.RunID())
	}

	hooks := runner.NewHooks(ctx, runner.Options{
		WindowTicks:        o.windowTicks,
		TickEvery:          cfg.Telemetry.TickEvery,
		LogStats:           o.logStats,
		Output:             out,
		Recorder:           rec,
		SnapshotOnBookmark: o.snapshots,
	})
	opts := []sim.Option{sim.WithObserver(hooks.Observe), sim.WithMaxTicks(o.maxTicks)}
	if o.hallPath != "" {
		hall, err := telemetry.LoadHallOfFameFromFile(o.hallPath, cfg.HallOfFame, rand.New(rand.NewSource(seed)))
		if err != nil {
			return err
		}
		opts = append(opts, sim.WithHallOfFame(hall))
	}

	engine, err := sim.New(cfg, seed, opts...)
	if err != nil {
		return err
	}
	defer engine.Close()
	hooks.Bind(engine)

	slog.Info("starting headless simulation",
		"seed", seed,
		"window_ticks", o.windowTicks,
		"max_ticks", o.maxTicks,
	)
	runErr := engine.Run(ctx)
	slog.Info("simulation stopped", "tick", engine.Tick())

	// The archive run is closed even when the signal context has ended.
	if err := hooks.Finish(context.WithoutCancel(ctx), engine.Halted(), engine.HallOfFame()); err != nil {
		slog.Error("failed to write final artifacts", "error", err)
	}
	return runErr
}
