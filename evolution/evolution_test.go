package evolution

import (
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/botlife/components"
	"github.com/pthm-cable/botlife/config"
	"github.com/pthm-cable/botlife/genetics"
	"github.com/pthm-cable/botlife/world"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.World.Width = 200
	cfg.World.Height = 200
	cfg.Population.MaxBots = 10
	cfg.Evolution.ReproductionCost = 20
	cfg.Evolution.OffspringEnergy = 30
	cfg.Evolution.Cooldown = 50
	cfg.Evolution.MateRadius = 50
	return cfg
}

func addBot(t *testing.T, w *world.World, x, y, energy float64) uint64 {
	t.Helper()
	id, err := w.AddBot(world.BotSpec{Position: r2.Vec{X: x, Y: y}, Genome: genetics.Default(), Energy: energy})
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func want(t *testing.T, w *world.World, id, partner uint64) {
	t.Helper()
	b, _ := w.Bot(id)
	b.Vitals.Intent = components.ReproIntent{Eligible: true, Partner: partner}
}

func TestDue(t *testing.T) {
	s := New(testConfig())
	for tick, due := range map[uint64]bool{0: false, 1: false, 100: true, 150: false, 200: true} {
		if s.Due(tick) != due {
			t.Errorf("Due(%d) expected %v", tick, due)
		}
	}
}

func TestRemovesDead(t *testing.T) {
	w := world.New(testConfig(), 1)
	dead := addBot(t, w, 10, 10, 50)
	alive := addBot(t, w, 20, 20, 50)
	w.MarkDead(dead)

	res, err := New(testConfig()).Run(w, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Removed) != 1 || res.Removed[0] != dead {
		t.Errorf("expected removed [%d], got %v", dead, res.Removed)
	}
	if w.Exists(dead) || !w.Exists(alive) {
		t.Error("expected only the dead bot to be removed")
	}
	if err := w.CheckConsistency(); err != nil {
		t.Error(err)
	}
}

func TestCullsOverCap(t *testing.T) {
	cfg := testConfig()
	cfg.Population.MaxBots = 3
	w := world.New(cfg, 1)
	var ids []uint64
	for i, e := range []float64{50, 10, 40, 10, 90} {
		ids = append(ids, addBot(t, w, float64(10+i*10), 10, e))
	}
	res, err := New(cfg).Run(w, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Culled) != 2 || res.Culled[0] != ids[1] || res.Culled[1] != ids[3] {
		t.Errorf("expected the two weakest culled, got %v", res.Culled)
	}
	if res.Alive != 3 || w.NumLiveBots() != 3 {
		t.Errorf("expected 3 alive, got %d", res.Alive)
	}
}

func TestSexualBirth(t *testing.T) {
	cfg := testConfig()
	w := world.New(cfg, 1)
	a := addBot(t, w, 50, 50, 100)
	b := addBot(t, w, 60, 50, 80)
	want(t, w, a, b)
	want(t, w, b, a)

	res, err := New(cfg).Run(w, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Births) != 1 {
		t.Fatalf("expected 1 birth, got %+v", res.Births)
	}
	birth := res.Births[0]
	if birth.ParentA != a || birth.ParentB != b {
		t.Errorf("expected parents %d and %d, got %+v", a, b, birth)
	}
	child, ok := w.Bot(birth.Child)
	if !ok {
		t.Fatal("expected child in world")
	}
	if child.Vitals.Generation != 1 || child.Vitals.Energy != 30 {
		t.Errorf("expected generation 1 energy 30, got %d %v", child.Vitals.Generation, child.Vitals.Energy)
	}
	p := child.Position.Vec()
	if r2.Norm(r2.Sub(p, r2.Vec{X: 55, Y: 50})) > cfg.Evolution.SpawnOffset*1.5 {
		t.Errorf("expected child near the parents' midpoint, got %v", p)
	}
	pa, _ := w.Bot(a)
	pb, _ := w.Bot(b)
	if pa.Vitals.Energy != 90 || pb.Vitals.Energy != 70 {
		t.Errorf("expected split cost, got %v and %v", pa.Vitals.Energy, pb.Vitals.Energy)
	}
	if pa.Vitals.Cooldown != 50 || pb.Vitals.Cooldown != 50 {
		t.Error("expected both parents on cooldown")
	}
	if pa.Vitals.Intent.Eligible || pb.Vitals.Intent.Eligible {
		t.Error("expected intents cleared")
	}
}

func TestAsexualAndUnpaired(t *testing.T) {
	cfg := testConfig()
	w := world.New(cfg, 1)
	solo := addBot(t, w, 20, 20, 100)
	lonely := addBot(t, w, 180, 180, 100) // wants a partner out of range
	want(t, w, solo, 0)
	want(t, w, lonely, solo)

	res, err := New(cfg).Run(w, rand.New(rand.NewSource(2)))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Births) != 2 {
		t.Fatalf("expected 2 clones, got %+v", res.Births)
	}
	for _, b := range res.Births {
		if b.ParentB != 0 {
			t.Errorf("expected asexual birth, got %+v", b)
		}
		p, _ := w.Bot(b.ParentA)
		if p.Vitals.Energy != 80 {
			t.Errorf("expected full cost paid, got %v", p.Vitals.Energy)
		}
	}
}

func TestBirthsRespectCap(t *testing.T) {
	cfg := testConfig()
	cfg.Population.MaxBots = 4
	w := world.New(cfg, 1)
	var ids []uint64
	for i, e := range []float64{60, 100, 80} {
		id := addBot(t, w, float64(20+i*60), 20, e)
		want(t, w, id, 0)
		ids = append(ids, id)
	}
	res, err := New(cfg).Run(w, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Births) != 1 || res.Births[0].ParentA != ids[1] {
		t.Errorf("expected one birth from the fittest bot %d, got %+v", ids[1], res.Births)
	}
	if w.NumLiveBots() > cfg.Population.MaxBots {
		t.Errorf("population %d over cap %d", w.NumLiveBots(), cfg.Population.MaxBots)
	}
}

func TestPoorParentsSkip(t *testing.T) {
	cfg := testConfig()
	w := world.New(cfg, 1)
	id := addBot(t, w, 20, 20, 15)
	want(t, w, id, 0)
	res, err := New(cfg).Run(w, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Births) != 0 {
		t.Errorf("expected no birth below the reproduction cost, got %+v", res.Births)
	}
}

func TestDeterministic(t *testing.T) {
	run := func() []genetics.Genome {
		cfg := testConfig()
		w := world.New(cfg, 1)
		rng := rand.New(rand.NewSource(9))
		for i := range 8 {
			id, _ := w.AddBot(world.BotSpec{
				Position: r2.Vec{X: float64(10 + i*20), Y: 100},
				Genome:   genetics.Random(rng),
				Energy:   100,
			})
			want(t, w, id, id-1)
		}
		res, err := New(cfg).Run(w, rng)
		if err != nil {
			t.Fatal(err)
		}
		var out []genetics.Genome
		for _, b := range res.Births {
			c, _ := w.Bot(b.Child)
			out = append(out, *c.Genome)
		}
		return out
	}
	a, b := run(), run()
	if len(a) == 0 || len(a) != len(b) {
		t.Fatalf("expected equal non-empty births, got %d and %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("birth %d differs", i)
		}
	}
}
