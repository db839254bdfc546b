package risk

// Thresholds holds the score cut points between risk levels. Bounds are
// inclusive on the lower side: a score equal to a threshold falls into the
// higher band.
type Thresholds struct {
	Moderate float64
	High     float64
	VeryHigh float64
}

// DefaultThresholds returns the standard 25/50/75 stratification bands.
func DefaultThresholds() Thresholds {
	return Thresholds{Moderate: 25, High: 50, VeryHigh: 75}
}

// LevelFor maps a 0-100 score to its discrete risk level.
func (t Thresholds) LevelFor(score float64) Level {
	switch {
	case score >= t.VeryHigh:
		return LevelVeryHigh
	case score >= t.High:
		return LevelHigh
	case score >= t.Moderate:
		return LevelModerate
	default:
		return LevelLow
	}
}
