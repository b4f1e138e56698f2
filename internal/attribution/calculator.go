package attribution

import (
	"math"
	"sort"
	"time"
)

const (
	DefaultWindow   = 90 * 24 * time.Hour
	DefaultHalfLife = 7 * 24 * time.Hour
)

// PositionWeights are the percentages given to the first touch, all middle
// touches together, and the last touch. They should sum to 100.
type PositionWeights struct {
	First  float64
	Middle float64
	Last   float64
}

var DefaultPositionWeights = PositionWeights{First: 40, Middle: 20, Last: 40}

// Calculator allocates conversion credit across a visitor's touchpoints.
type Calculator struct {
	// Window limits which touchpoints count; zero disables the limit.
	Window   time.Duration
	HalfLife time.Duration
	Position PositionWeights
	// History feeds the data-driven model.
	History []Path
}

func NewCalculator() *Calculator {
	return &Calculator{
		Window:   DefaultWindow,
		HalfLife: DefaultHalfLife,
		Position: DefaultPositionWeights,
	}
}

// Calculate applies model to the touchpoints that fall inside the window
// ending at at. The input slice is not modified. Unknown models fall back to
// last touch.
func (c *Calculator) Calculate(model Model, touchpoints []Touchpoint, conversionValue float64, at time.Time) Result {
	if at.IsZero() {
		at = time.Now()
	}

	tps := c.eligible(touchpoints, at)
	result := Result{
		Model:           model,
		Touchpoints:     tps,
		ConversionValue: conversionValue,
	}
	if len(tps) == 0 {
		return result
	}

	var shares []float64
	switch model {
	case FirstTouch:
		shares = firstTouchShares(len(tps))
	case Linear:
		shares = linearShares(len(tps))
	case TimeDecay:
		shares = c.timeDecayShares(tps)
	case PositionBased:
		shares = c.positionShares(len(tps))
	case DataDriven:
		shares = c.dataDrivenShares(tps)
	default:
		result.Model = LastTouch
		shares = lastTouchShares(len(tps))
	}

	for i := range tps {
		tps[i].Credit = round2(shares[i] * 100)
		tps[i].Value = round2(shares[i] * conversionValue)
	}
	result.TotalCredit = 100
	return result
}

func (c *Calculator) eligible(touchpoints []Touchpoint, at time.Time) []Touchpoint {
	var cutoff time.Time
	if c.Window > 0 {
		cutoff = at.Add(-c.Window)
	}

	out := make([]Touchpoint, 0, len(touchpoints))
	for _, tp := range touchpoints {
		if tp.Timestamp.After(at) {
			continue
		}
		if !cutoff.IsZero() && tp.Timestamp.Before(cutoff) {
			continue
		}
		tp.Credit = 0
		tp.Value = 0
		out = append(out, tp)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

func lastTouchShares(n int) []float64 {
	shares := make([]float64, n)
	shares[n-1] = 1
	return shares
}

func firstTouchShares(n int) []float64 {
	shares := make([]float64, n)
	shares[0] = 1
	return shares
}

func linearShares(n int) []float64 {
	shares := make([]float64, n)
	for i := range shares {
		shares[i] = 1 / float64(n)
	}
	return shares
}

// timeDecayShares halves a touchpoint's weight for every half-life between it
// and the last touchpoint.
func (c *Calculator) timeDecayShares(tps []Touchpoint) []float64 {
	halfLife := c.HalfLife
	if halfLife <= 0 {
		halfLife = DefaultHalfLife
	}

	latest := tps[len(tps)-1].Timestamp
	weights := make([]float64, len(tps))
	for i, tp := range tps {
		age := latest.Sub(tp.Timestamp)
		weights[i] = math.Pow(2, -float64(age)/float64(halfLife))
	}
	return normalize(weights)
}

func (c *Calculator) positionShares(n int) []float64 {
	switch n {
	case 1:
		return []float64{1}
	case 2:
		return []float64{0.5, 0.5}
	}

	w := c.Position
	if w.First+w.Middle+w.Last <= 0 {
		w = DefaultPositionWeights
	}
	total := w.First + w.Middle + w.Last

	shares := make([]float64, n)
	shares[0] = w.First / total
	shares[n-1] = w.Last / total
	middle := w.Middle / total / float64(n-2)
	for i := 1; i < n-1; i++ {
		shares[i] = middle
	}
	return shares
}

func normalize(weights []float64) []float64 {
	var sum float64
	for _, w := range weights {
		sum += w
	}
	if sum == 0 {
		return linearShares(len(weights))
	}
	out := make([]float64, len(weights))
	for i, w := range weights {
		out[i] = w / sum
	}
	return out
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
