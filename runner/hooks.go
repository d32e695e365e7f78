// Package runner wires an engine to its telemetry sinks: windowed stats,
// bookmarks, CSV output and the run archive.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pthm-cable/botlife/archive"
	"github.com/pthm-cable/botlife/sim"
	"github.com/pthm-cable/botlife/telemetry"
)

// Source is the engine surface the hooks sample at window boundaries.
type Source interface {
	Population() telemetry.Population
	Perf() telemetry.PerfStats
	Snapshot() *sim.Snapshot
}

// Options configures Hooks. Nil sinks are skipped.
type Options struct {
	WindowTicks int
	TickEvery   int // Write every Nth tick summary; 0 disables
	LogStats    bool
	Output      *telemetry.OutputManager
	Recorder    *archive.Recorder
	OnWindow    func(telemetry.WindowStats)

	// SnapshotOnBookmark writes the world snapshot as JSON for each bookmark.
	SnapshotOnBookmark bool
}

// Hooks receives tick summaries from the engine. Observe may be called
// from the run loop and from manual steps concurrently.
type Hooks struct {
	mu        sync.Mutex
	ctx       context.Context
	opts      Options
	src       Source
	collector *telemetry.Collector
	bookmarks *telemetry.BookmarkDetector
	windows   int
}

// NewHooks creates hooks. Bind must be called before the first tick.
func NewHooks(ctx context.Context, opts Options) *Hooks {
	return &Hooks{
		ctx:       ctx,
		opts:      opts,
		collector: telemetry.NewCollector(opts.WindowTicks),
		bookmarks: telemetry.NewBookmarkDetector(10),
	}
}

// Bind sets the engine the hooks sample.
func (h *Hooks) Bind(src Source) { h.src = src }

// Windows returns the number of flushed windows.
func (h *Hooks) Windows() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.windows
}

// Observe is registered with sim.WithObserver.
func (h *Hooks) Observe(sum sim.TickSummary) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.collector.Record(sum)

	if n := h.opts.TickEvery; n > 0 && sum.Tick%uint64(n) == 0 {
		if err := h.opts.Output.WriteTick(sum); err != nil {
			slog.Error("failed to write tick", "error", err)
		}
	}
	if h.opts.Recorder != nil {
		if err := h.opts.Recorder.RecordTick(h.ctx, sum); err != nil {
			slog.Error("failed to archive tick", "tick", sum.Tick, "error", err)
		}
	}

	if h.src != nil && h.collector.ShouldFlush(sum.Tick) {
		h.flush(sum.Tick)
	}
}

// flush closes the current stats window and fans it out.
func (h *Hooks) flush(tick uint64) {
	stats := h.collector.Flush(tick, h.src.Population())
	perf := h.src.Perf()
	h.windows++

	if h.opts.OnWindow != nil {
		h.opts.OnWindow(stats)
	}
	if h.opts.LogStats {
		stats.LogStats()
		perf.LogStats()
	}
	if err := h.opts.Output.WriteTelemetry(stats); err != nil {
		slog.Error("failed to write telemetry", "error", err)
	}
	if err := h.opts.Output.WritePerf(perf, stats.WindowEndTick); err != nil {
		slog.Error("failed to write perf", "error", err)
	}
	if h.opts.Recorder != nil {
		if err := h.opts.Recorder.RecordWindow(h.ctx, stats); err != nil {
			slog.Error("failed to archive window", "tick", tick, "error", err)
		}
	}

	for _, bm := range h.bookmarks.Check(stats) {
		if h.opts.LogStats {
			bm.LogBookmark()
		}
		if err := h.opts.Output.WriteBookmark(bm); err != nil {
			slog.Error("failed to write bookmark", "error", err)
		}
		if h.opts.SnapshotOnBookmark {
			name := fmt.Sprintf("snapshot_%s_%d.json", bm.Type, bm.Tick)
			if err := h.opts.Output.WriteJSON(name, h.src.Snapshot()); err != nil {
				slog.Error("failed to save snapshot", "error", err)
			}
		}
	}
}

// Finish writes the end-of-run artifacts and closes the archive run.
func (h *Hooks) Finish(ctx context.Context, halted error, hall *telemetry.HallOfFame) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.opts.Output.WriteHallOfFame(hall); err != nil {
		return err
	}
	if h.src != nil {
		if err := h.opts.Output.WriteJSON("final_snapshot.json", h.src.Snapshot()); err != nil {
			return err
		}
	}
	if h.opts.Recorder != nil {
		if err := h.opts.Recorder.Finish(ctx, halted, hall); err != nil {
			return fmt.Errorf("finish archive run: %w", err)
		}
	}
	return nil
}
