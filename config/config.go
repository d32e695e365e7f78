// Package config provides configuration loading and access for the simulation.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Strategy names accepted by decision.mode and decision.chain.
const (
	StrategyBehaviorTree = "behavior_tree"
	StrategyUtility      = "utility"
	StrategyGOAP         = "goap"
	StrategyQLearning    = "qlearning"

	// ModeGenetic selects a bot's strategy from its strategy gene.
	ModeGenetic = "genetic"
	// ModeChain runs decision.chain as a priority-ordered fallback chain.
	ModeChain = "chain"
)

// StrategyNames lists the concrete strategies in gene order.
var StrategyNames = []string{StrategyBehaviorTree, StrategyUtility, StrategyGOAP, StrategyQLearning}

// Spatial index maintenance modes.
const (
	SpatialIncremental = "incremental"
	SpatialRebuild     = "rebuild"
)

// Config holds all simulation configuration parameters.
type Config struct {
	World      WorldConfig      `yaml:"world"`
	Spatial    SpatialConfig    `yaml:"spatial"`
	Population PopulationConfig `yaml:"population"`
	Energy     EnergyConfig     `yaml:"energy"`
	Resource   ResourceConfig   `yaml:"resource"`
	Actions    ActionsConfig    `yaml:"actions"`
	Signals    SignalsConfig    `yaml:"signals"`
	Sensors    SensorsConfig    `yaml:"sensors"`
	Memory     MemoryConfig     `yaml:"memory"`
	Decision   DecisionConfig   `yaml:"decision"`
	QLearning  QLearningConfig  `yaml:"qlearning"`
	Evolution  EvolutionConfig  `yaml:"evolution"`
	Mutation   MutationConfig   `yaml:"mutation"`
	Ambient    AmbientConfig    `yaml:"ambient"`
	Engine     EngineConfig     `yaml:"engine"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	HallOfFame HallOfFameConfig `yaml:"hall_of_fame"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// WorldConfig holds world bounds and initial obstacle layout.
type WorldConfig struct {
	Width           float64 `yaml:"width"`
	Height          float64 `yaml:"height"`
	Obstacles       int     `yaml:"obstacles"`         // Random obstacles placed at start
	ObstacleMinSize float64 `yaml:"obstacle_min_size"` // Full side length
	ObstacleMaxSize float64 `yaml:"obstacle_max_size"`
}

// SpatialConfig holds quadtree parameters.
type SpatialConfig struct {
	NodeCapacity int    `yaml:"node_capacity"` // Points per node before subdividing
	MaxDepth     int    `yaml:"max_depth"`     // Deepest level; holds any number of points
	Mode         string `yaml:"mode"`          // incremental or rebuild
}

// PopulationConfig holds initial counts and caps.
type PopulationConfig struct {
	InitialBots      int `yaml:"initial_bots"`
	MaxBots          int `yaml:"max_bots"`
	InitialResources int `yaml:"initial_resources"`
	MaxResources     int `yaml:"max_resources"`
}

// EnergyConfig holds bot energy parameters.
type EnergyConfig struct {
	Initial           float64 `yaml:"initial"`
	Max               float64 `yaml:"max"`
	BaseMetabolism    float64 `yaml:"base_metabolism"`    // Per tick, scaled by metabolism gene
	MoveCost          float64 `yaml:"move_cost"`          // Per unit distance moved
	TemperatureStress float64 `yaml:"temperature_stress"` // Extra metabolism per unit of temperature deviation
	MaxAge            int     `yaml:"max_age"`            // Ticks; 0 disables
}

// ResourceConfig holds resource quantity and regrowth parameters.
type ResourceConfig struct {
	MinQuantity   float64 `yaml:"min_quantity"`
	MaxQuantity   float64 `yaml:"max_quantity"`
	RegenRate     float64 `yaml:"regen_rate"`     // Quantity per tick, scaled by fertility and daylight
	SpawnChance   float64 `yaml:"spawn_chance"`   // Per tick probability of a new resource
	DayMultiplier float64 `yaml:"day_multiplier"` // Regrowth and spawn boost during day
}

// ActionsConfig holds action resolution parameters.
type ActionsConfig struct {
	InteractionRadius float64 `yaml:"interaction_radius"`
	EatAmount         float64 `yaml:"eat_amount"`
	AttackDamage      float64 `yaml:"attack_damage"`     // Scaled by attack gene
	AttackCost        float64 `yaml:"attack_cost"`       // Paid by attacker
	AttackEfficiency  float64 `yaml:"attack_efficiency"` // Fraction of damage gained by attacker
	SignalCost        float64 `yaml:"signal_cost"`
}

// SignalsConfig holds signal medium parameters.
type SignalsConfig struct {
	InitialStrength  float64 `yaml:"initial_strength"`
	DecayRate        float64 `yaml:"decay_rate"`         // Fraction of strength lost per tick
	RangePerStrength float64 `yaml:"range_per_strength"` // Audible radius = strength * this
	MinStrength      float64 `yaml:"min_strength"`       // Removed below this
	MaxSignals       int     `yaml:"max_signals"`        // Oldest evicted beyond this
	ExpandTicks      int     `yaml:"expand_ticks"`       // Ticks a new signal spreads before fading
}

// SensorsConfig holds perception parameters.
type SensorsConfig struct {
	MaxNeighbors int `yaml:"max_neighbors"`
}

// MemoryConfig holds per-bot memory bounds.
type MemoryConfig struct {
	Capacity      int     `yaml:"capacity"`       // Event ring size
	VisitCapacity int     `yaml:"visit_capacity"` // Recent-visit ring size
	CellSize      float64 `yaml:"cell_size"`      // Familiarity grid cell size
}

// DecisionConfig holds strategy selection and shared predicate thresholds.
type DecisionConfig struct {
	Mode              string   `yaml:"mode"`               // genetic, chain, or a strategy name
	Chain             []string `yaml:"chain"`              // Fallback order for mode chain
	HungerThreshold   float64  `yaml:"hunger_threshold"`   // Energy fraction below which a bot is hungry
	StarvingThreshold float64  `yaml:"starving_threshold"` // Energy fraction below which a bot is starving
	FullThreshold     float64  `yaml:"full_threshold"`     // Energy fraction above which a bot is full
	ThreatAggression  float64  `yaml:"threat_aggression"`  // Neighbour aggression counted as a threat
	DangerRadius      float64  `yaml:"danger_radius"`
	SignalCooldown    int      `yaml:"signal_cooldown"` // Ticks between own emissions
	PlanBudget        int      `yaml:"plan_budget"`     // GOAP node expansions
}

// QLearningConfig holds tabular learning parameters.
type QLearningConfig struct {
	Alpha        float64 `yaml:"alpha"`
	Gamma        float64 `yaml:"gamma"`
	Epsilon      float64 `yaml:"epsilon"`
	EpsilonDecay float64 `yaml:"epsilon_decay"`
	EpsilonMin   float64 `yaml:"epsilon_min"`
	DeathPenalty float64 `yaml:"death_penalty"`
	IntentBonus  float64 `yaml:"intent_bonus"` // Reward for an accepted reproduce intent
}

// EvolutionConfig holds epoch and reproduction parameters.
type EvolutionConfig struct {
	EpochLength      int     `yaml:"epoch_length"`
	MaturityAge      int     `yaml:"maturity_age"`
	ReproductionCost float64 `yaml:"reproduction_cost"` // Split between parents when sexual
	Cooldown         int     `yaml:"cooldown"`
	MateRadius       float64 `yaml:"mate_radius"`
	SpawnOffset      float64 `yaml:"spawn_offset"`
	OffspringEnergy  float64 `yaml:"offspring_energy"`
}

// MutationConfig holds mutation parameters.
type MutationConfig struct {
	Amount  float64 `yaml:"amount"`   // Perturbation as a fraction of gene span
	RateMin float64 `yaml:"rate_min"` // Bounds on the mutation-rate gene
	RateMax float64 `yaml:"rate_max"`
}

// AmbientConfig holds ambient field parameters.
type AmbientConfig struct {
	DayLength  int     `yaml:"day_length"`  // Ticks per day/night cycle
	NoiseScale float64 `yaml:"noise_scale"` // Spatial frequency of temperature/fertility noise
	Drift      float64 `yaml:"drift"`       // Temporal drift of temperature per tick
}

// EngineConfig holds scheduling parameters.
type EngineConfig struct {
	Workers           int  `yaml:"workers"`            // 0 uses GOMAXPROCS
	ParallelThreshold int  `yaml:"parallel_threshold"` // Bots below this decide sequentially
	CheckInvariants   bool `yaml:"check_invariants"`
}

// TelemetryConfig holds statistics collection parameters.
type TelemetryConfig struct {
	WindowTicks int `yaml:"window_ticks"` // Ticks per stats window
	TickEvery   int `yaml:"tick_every"`   // Write every Nth tick summary; 0 disables
}

// HallOfFameConfig holds the genome archive used to reseed crashed
// populations.
type HallOfFameConfig struct {
	Size           int     `yaml:"size"`         // Entries per strategy hall
	MinChildren    int     `yaml:"min_children"` // Entry by reproduction
	MinAge         int     `yaml:"min_age"`      // Entry by survival
	ChildrenWeight float64 `yaml:"children_weight"`
	SurvivalWeight float64 `yaml:"survival_weight"` // Per tick lived
	ForageWeight   float64 `yaml:"forage_weight"`   // Per unit of energy eaten
	KillsWeight    float64 `yaml:"kills_weight"`
	ReseedBelow    int     `yaml:"reseed_below"` // Live bots at an epoch that trigger a reseed; 0 disables
	ReseedCount    int     `yaml:"reseed_count"`
}

// DerivedConfig holds values computed from other config values.
type DerivedConfig struct {
	InteractionRadiusSq float64
	MaxAudibleRadius    float64 // Initial strength * range per strength
	DangerRadiusSq      float64
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration.
// Panics if Init has not been called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Default returns the embedded defaults. Panics if they fail to parse.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults: %v", err))
	}
	return cfg
}

// Load reads the embedded defaults and overlays the file at path, if any.
// The result is validated.
func Load(path string) (*Config, error) {
	// Start with embedded defaults
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.computeDerived()

	return cfg, nil
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	cp := *c
	cp.Decision.Chain = slices.Clone(c.Decision.Chain)
	return &cp
}

// Prepare validates c and recomputes its derived values. Callers that edit
// a config after Load call it before use.
func (c *Config) Prepare() error {
	if err := c.Validate(); err != nil {
		return err
	}
	c.computeDerived()
	return nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.InteractionRadiusSq = c.Actions.InteractionRadius * c.Actions.InteractionRadius
	c.Derived.MaxAudibleRadius = c.Signals.InitialStrength * c.Signals.RangePerStrength
	c.Derived.DangerRadiusSq = c.Decision.DangerRadius * c.Decision.DangerRadius
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
