package world

import (
	"math"

	opensimplex "github.com/ojrac/opensimplex-go"
	"gonum.org/v1/gonum/spatial/r2"
)

// Reading is an ambient sample at one point.
type Reading struct {
	Temperature float64 `json:"temperature"` // [0, 1], 0.5 is comfortable
	Fertility   float64 `json:"fertility"`   // [0, 1], scales resource regrowth
	Daylight    float64 `json:"daylight"`    // [0, 1], world-wide
}

// Ambient holds the world-wide overlay fields. Temperature drifts with time;
// fertility is static. Daylight follows a sinusoidal day/night cycle.
type Ambient struct {
	temperature opensimplex.Noise
	fertility   opensimplex.Noise
	scale       float64
	drift       float64
	dayLength   int
	tick        uint64
}

func newAmbient(seed int64, scale, drift float64, dayLength int) *Ambient {
	return &Ambient{
		temperature: opensimplex.NewNormalized(seed),
		fertility:   opensimplex.NewNormalized(seed + 1),
		scale:       scale,
		drift:       drift,
		dayLength:   max(dayLength, 1),
	}
}

// advance moves ambient time to tick.
func (a *Ambient) advance(tick uint64) { a.tick = tick }

// Daylight returns the current daylight level.
func (a *Ambient) Daylight() float64 {
	phase := float64(a.tick%uint64(a.dayLength)) / float64(a.dayLength)
	return 0.5 + 0.5*math.Sin(2*math.Pi*phase)
}

// IsDay reports whether daylight is at least half.
func (a *Ambient) IsDay() bool { return a.Daylight() >= 0.5 }

// Sample returns the ambient reading at p.
func (a *Ambient) Sample(p r2.Vec) Reading {
	x, y := p.X*a.scale, p.Y*a.scale
	return Reading{
		Temperature: a.temperature.Eval3(x, y, float64(a.tick)*a.drift),
		Fertility:   a.fertility.Eval2(x, y),
		Daylight:    a.Daylight(),
	}
}

// TemperatureStress is the distance of a reading from comfortable, in [0, 1].
func (r Reading) TemperatureStress() float64 {
	return math.Abs(r.Temperature-0.5) * 2
}
