package attribution

// Path is one historical visitor journey, reduced to the channels it touched
// and whether it ended in a conversion.
type Path struct {
	Channels  []string `json:"channels"`
	Converted bool     `json:"converted"`
}

// RemovalEffects estimates how much each channel contributes to conversions.
// Removing a channel turns every converting path that contains it into a
// non-conversion; the effect is the relative drop in conversion rate that
// causes. Returns nil when history holds no conversions.
func RemovalEffects(history []Path) map[string]float64 {
	var conversions int
	channels := make(map[string]struct{})
	for _, p := range history {
		if p.Converted {
			conversions++
		}
		for _, ch := range p.Channels {
			channels[ch] = struct{}{}
		}
	}
	if conversions == 0 {
		return nil
	}

	effects := make(map[string]float64, len(channels))
	for ch := range channels {
		var survivors int
		for _, p := range history {
			if p.Converted && !containsChannel(p.Channels, ch) {
				survivors++
			}
		}
		effects[ch] = 1 - float64(survivors)/float64(conversions)
	}
	return effects
}

// dataDrivenShares weights each channel in the path by its removal effect and
// splits that weight across the channel's touchpoints. Falls back to linear
// when history says nothing about these channels.
func (c *Calculator) dataDrivenShares(tps []Touchpoint) []float64 {
	effects := RemovalEffects(c.History)
	if effects == nil {
		return linearShares(len(tps))
	}

	counts := make(map[string]int)
	for _, tp := range tps {
		counts[tp.Channel()]++
	}

	weights := make([]float64, len(tps))
	for i, tp := range tps {
		ch := tp.Channel()
		weights[i] = effects[ch] / float64(counts[ch])
	}
	return normalize(weights)
}

func containsChannel(channels []string, ch string) bool {
	for _, c := range channels {
		if c == ch {
			return true
		}
	}
	return false
}
