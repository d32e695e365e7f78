// Command simserver runs the simulation continuously and serves the control
// API over HTTP.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	hzserver "github.com/cloudwego/hertz/pkg/app/server"

	"github.com/pthm-cable/botlife/archive"
	"github.com/pthm-cable/botlife/config"
	"github.com/pthm-cable/botlife/runner"
	"github.com/pthm-cable/botlife/server"
	"github.com/pthm-cable/botlife/sim"
)

func main() {
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	addr := flag.String("addr", envOr("BOTLIFE_ADDR", ":8080"), "Listen address")
	seed := flag.Int64("seed", int64(intEnv("BOTLIFE_SEED", 0)), "RNG seed (0 = time-based)")
	interval := flag.Duration("tick-interval", 50*time.Millisecond, "Wall time between ticks (0 = as fast as possible)")
	paused := flag.Bool("paused", false, "Start paused and step through the API")
	logStats := flag.Bool("log-stats", false, "Output stats via slog")
	dsn := flag.String("archive-dsn", os.Getenv("BOTLIFE_ARCHIVE_DSN"), "Postgres DSN for the run archive (empty = disabled)")
	flag.Parse()

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
	ctx := context.Background()

	h := server.Handler{}
	var rec *archive.Recorder
	if *dsn != "" {
		db, err := archive.OpenAndMigrate(ctx, *dsn)
		if err != nil {
			slog.Error("failed to open archive", "error", err)
			os.Exit(1)
		}
		if rec, err = archive.Start(ctx, db, rngSeed, cfg); err != nil {
			slog.Error("failed to start archive run", "error", err)
			os.Exit(1)
		}
		h.Runs = archive.NewStore(db)
	}

	hooks := runner.NewHooks(ctx, runner.Options{
		WindowTicks: cfg.Telemetry.WindowTicks,
		LogStats:    *logStats,
		Recorder:    rec,
	})
	engine, err := sim.New(cfg, rngSeed, sim.WithObserver(hooks.Observe), sim.WithTickInterval(*interval))
	if err != nil {
		slog.Error("failed to create engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()
	hooks.Bind(engine)
	h.Engine = engine

	if *paused {
		engine.Pause()
	}
	go func() {
		if err := engine.Run(ctx); err != nil {
			slog.Error("run loop stopped", "error", err)
		}
	}()

	s := hzserver.Default(hzserver.WithHostPorts(*addr))
	h.RegisterRoutes(s)
	s.OnShutdown = append(s.OnShutdown, func(ctx context.Context) {
		engine.Stop()
		if err := hooks.Finish(ctx, engine.Halted(), engine.HallOfFame()); err != nil {
			slog.Error("failed to finish archive run", "error", err)
		}
	})

	slog.Info("simserver listening", "addr", *addr, "seed", rngSeed, "archive", rec != nil)
	s.Spin()
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
