package archive

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/pthm-cable/botlife/config"
	"github.com/pthm-cable/botlife/telemetry"
)

func requireDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("BOTLIFE_TEST_DSN")
	if dsn == "" {
		t.Skip("BOTLIFE_TEST_DSN is required for integration test")
	}
	return dsn
}

func TestMigrationsOrdered(t *testing.T) {
	versions, err := migrations()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"0001_runs", "0002_windows"}
	if len(versions) != len(want) {
		t.Fatalf("expected %v, got %v", want, versions)
	}
	for i := range want {
		if versions[i] != want[i] {
			t.Errorf("expected %s at %d, got %s", want[i], i, versions[i])
		}
	}
}

func TestTickRowRoundTrip(t *testing.T) {
	s := telemetry.TickSummary{Tick: 12, Epoch: 1, EpochRan: true, Alive: 30, Died: 2, Born: 4, MeanEnergy: 81.5, NoOps: 3}
	row := tickRow(7, s)
	if row.RunID != 7 || row.Tick != 12 {
		t.Errorf("expected run 7 tick 12, got %d %d", row.RunID, row.Tick)
	}
	if got := row.Summary(); got != s {
		t.Errorf("expected %+v, got %+v", s, got)
	}
}

func TestWindowRowMix(t *testing.T) {
	row := windowRow(1, telemetry.WindowStats{WindowEndTick: 500, Alive: 10, GOAP: 6, QLearning: 4})
	mix := row.Mix()
	if mix[config.StrategyGOAP] != 6 || mix[config.StrategyQLearning] != 4 {
		t.Errorf("expected goap 6 qlearning 4, got %v", mix)
	}
	if _, ok := mix[config.StrategyUtility]; ok {
		t.Error("expected empty strategies omitted")
	}
}

func TestRecorderIntegration(t *testing.T) {
	dsn := requireDSN(t)
	ctx := context.Background()
	db, err := OpenAndMigrate(ctx, dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	// A second migrate is a no-op.
	if err := Migrate(ctx, db); err != nil {
		t.Fatalf("re-migrate: %v", err)
	}

	rec, err := Start(ctx, db, 42, config.Default())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = db.Exec("DELETE FROM runs WHERE id = ?", rec.RunID()).Error })
	rec.batchSize = 3

	for tick := uint64(1); tick <= 10; tick++ {
		if err := rec.RecordTick(ctx, telemetry.TickSummary{Tick: tick, Alive: int(tick), Born: 1}); err != nil {
			t.Fatalf("record tick %d: %v", tick, err)
		}
	}
	if err := rec.RecordWindow(ctx, telemetry.WindowStats{WindowEndTick: 10, Alive: 10, Utility: 10}); err != nil {
		t.Fatalf("record window: %v", err)
	}
	if err := rec.Finish(ctx, nil, nil); err != nil {
		t.Fatalf("finish: %v", err)
	}

	run, err := GetRun(ctx, db, rec.RunID())
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if run.FinalTick != 10 || run.Births != 10 || run.FinishedAt == nil {
		t.Errorf("expected finished run at tick 10 with 10 births, got %+v", run)
	}

	ticks, err := Ticks(ctx, db, rec.RunID(), 4, 6)
	if err != nil {
		t.Fatalf("ticks: %v", err)
	}
	if len(ticks) != 3 || ticks[0].Tick != 4 || ticks[2].Alive != 6 {
		t.Errorf("expected ticks 4..6, got %+v", ticks)
	}

	windows, err := Windows(ctx, db, rec.RunID())
	if err != nil {
		t.Fatalf("windows: %v", err)
	}
	if len(windows) != 1 || windows[0].Mix()[config.StrategyUtility] != 10 {
		t.Errorf("expected one window with 10 utility bots, got %+v", windows)
	}

	if _, err := GetRun(ctx, db, 1<<62); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
