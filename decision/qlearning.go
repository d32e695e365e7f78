package decision

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"github.com/pthm-cable/botlife/action"
	"github.com/pthm-cable/botlife/components"
	"github.com/pthm-cable/botlife/config"
	"github.com/pthm-cable/botlife/genetics"
	"github.com/pthm-cable/botlife/memory"
	"github.com/pthm-cable/botlife/sensors"
	"github.com/pthm-cable/botlife/world"
)

// QAction is a discrete Q-learning action.
type QAction int

const (
	QMoveToFood QAction = iota
	QEat
	QFlee
	QAttack
	QReproduce
	QEmitFood
	QExplore
	QIdle
	NumQActions
)

var qActionNames = [NumQActions]string{"move_to_food", "eat", "flee", "attack", "reproduce", "emit_food", "explore", "idle"}

func (a QAction) String() string {
	if a < 0 || a >= NumQActions {
		return "unknown"
	}
	return qActionNames[a]
}

// State space dimensions.
const (
	energyBuckets  = 5
	foodBuckets    = 5
	densityBuckets = 3
	threatBuckets  = 2
	NumQStates     = energyBuckets * foodBuckets * densityBuckets * threatBuckets
)

// encodeState packs the bucket indices into one state number.
func encodeState(energy, food, density, threat int) int {
	return ((energy*foodBuckets+food)*densityBuckets+density)*threatBuckets + threat
}

func bucket(x float64, n int) int {
	return min(max(int(x*float64(n)), 0), n-1)
}

// qState discretises a decision environment.
func qState(e *env) int {
	energy := bucket(e.energy(), energyBuckets)
	food := foodBuckets - 1 // none seen
	if f, ok := e.food(); ok {
		food = bucket(f.Distance/e.g.Get(genetics.SensorRange), foodBuckets-1)
	}
	density := 0
	switch n := e.p.Count(components.KindBot); {
	case n >= 4:
		density = 2
	case n >= 1:
		density = 1
	}
	threat := 0
	if e.threatened() {
		threat = 1
	}
	return encodeState(energy, food, density, threat)
}

// QLearning is an epsilon-greedy tabular learner. The table belongs to one
// bot and starts at zero.
type QLearning struct {
	cfg *config.Config
	rng *rand.Rand

	q       []float64 // NumQStates rows of NumQActions
	visited []bool
	epsilon float64

	// Pending transition awaiting its next state.
	lastState  int
	lastAction QAction
	pending    bool
	hasReward  bool
	reward     float64

	updates int
}

// NewQLearning creates a learner with an empty table.
func NewQLearning(cfg *config.Config, rng *rand.Rand) *QLearning {
	return &QLearning{
		cfg:     cfg,
		rng:     rng,
		q:       make([]float64, NumQStates*int(NumQActions)),
		visited: make([]bool, NumQStates),
		epsilon: cfg.QLearning.Epsilon,
	}
}

func (s *QLearning) Name() string { return config.StrategyQLearning }

func (s *QLearning) row(state int) []float64 {
	n := int(NumQActions)
	return s.q[state*n : (state+1)*n]
}

// Value returns Q[state, a].
func (s *QLearning) Value(state int, a QAction) float64 { return s.row(state)[a] }

// Epsilon returns the current exploration rate.
func (s *QLearning) Epsilon() float64 { return s.epsilon }

// Reward stores the reward for the last action. A terminal reward is
// applied at once since no next state will follow.
func (s *QLearning) Reward(r float64, terminal bool) {
	if !s.pending {
		return
	}
	s.reward, s.hasReward = r, true
	if terminal {
		s.learn(s.lastState, s.lastAction, r, -1)
		s.pending, s.hasReward = false, false
	}
}

// learn applies Q[s,a] += alpha * (r + gamma * max Q[next] - Q[s,a]).
// next < 0 marks a terminal transition.
func (s *QLearning) learn(state int, a QAction, r float64, next int) {
	c := s.cfg.QLearning
	target := r
	if next >= 0 {
		target += c.Gamma * floats.Max(s.row(next))
	}
	row := s.row(state)
	row[a] += c.Alpha * (target - row[a])
	s.updates++
}

// choose picks an action among valid ones: random with probability
// epsilon, else the first best.
func (s *QLearning) choose(state int, valid [NumQActions]bool) QAction {
	var options []QAction
	for a := QAction(0); a < NumQActions; a++ {
		if valid[a] {
			options = append(options, a)
		}
	}
	if len(options) == 0 {
		return QIdle
	}
	if s.rng.Float64() < s.epsilon {
		return options[s.rng.Intn(len(options))]
	}
	masked := make([]float64, NumQActions)
	row := s.row(state)
	for a := range masked {
		masked[a] = math.Inf(-1)
		if valid[a] {
			masked[a] = row[a]
		}
	}
	return QAction(floats.MaxIdx(masked))
}

func (s *QLearning) decay() {
	c := s.cfg.QLearning
	s.epsilon = max(s.epsilon*c.EpsilonDecay, c.EpsilonMin)
}

func validActions(e *env) [NumQActions]bool {
	var v [NumQActions]bool
	_, v[QEat] = e.foodInReach()
	v[QMoveToFood] = e.seesFood() || e.remembersFood()
	v[QFlee] = e.threatened()
	_, v[QAttack] = e.preyInReach()
	v[QReproduce] = e.canReproduce()
	v[QEmitFood] = e.canSignal()
	v[QExplore] = true
	v[QIdle] = true
	return v
}

func (s *QLearning) perform(e *env, a QAction) action.Action {
	var (
		act action.Action
		ok  bool
	)
	switch a {
	case QMoveToFood:
		if act, ok = e.approachFood(); !ok {
			act, ok = e.recall()
		}
	case QEat:
		act, ok = e.eat()
	case QFlee:
		act, ok = e.flee()
	case QAttack:
		act, ok = e.hunt()
	case QReproduce:
		act, ok = e.reproduce()
	case QEmitFood:
		act, ok = action.Emit(world.SignalFood), true
	case QExplore:
		act, ok = e.explore(), true
	}
	if !ok {
		return action.Idle()
	}
	return act
}

func (s *QLearning) Decide(p *sensors.Perception, mem *memory.Memory, g genetics.Genome) action.Action {
	e := newEnv(s.cfg, s.rng, p, mem, g)
	state := qState(e)
	if s.pending && s.hasReward {
		s.learn(s.lastState, s.lastAction, s.reward, state)
	}
	a := s.choose(state, validActions(e))
	s.decay()
	s.visited[state] = true
	s.lastState, s.lastAction = state, a
	s.pending, s.hasReward = true, false
	return s.perform(e, a)
}

func (s *QLearning) Describe() State {
	visited := 0
	for _, v := range s.visited {
		if v {
			visited++
		}
	}
	st := State{
		Strategy: s.Name(),
		Epsilon:  s.epsilon,
		QState:   s.lastState,
		Visited:  visited,
		Updates:  s.updates,
	}
	if s.pending {
		st.LastChoice = s.lastAction.String()
	}
	return st
}
