package bkt

import (
	"math"

	"github.com/yungbote/neurobridge-mastery/internal/platform/envutil"
)

type Config struct {
	MasteryThreshold float64
	MinMastery       float64
	MaxMastery       float64
	// DecayRate is the per-day exponential forgetting rate applied on read.
	DecayRate  float64
	DecayFloor float64

	// Re-estimation. The cutoffs and blend factor are product constants, not
	// fitted values.
	MinObservations   int
	HighMasteryCutoff float64
	LowMasteryCutoff  float64
	BlendFactor       float64

	MaxUserHistory  int
	MaxObservations int
}

func DefaultConfig() Config {
	return Config{
		MasteryThreshold:  0.95,
		MinMastery:        0.01,
		MaxMastery:        0.99,
		DecayRate:         0.015,
		DecayFloor:        0.05,
		MinObservations:   3,
		HighMasteryCutoff: 0.8,
		LowMasteryCutoff:  0.3,
		BlendFactor:       0.3,
		MaxUserHistory:    500,
		MaxObservations:   5000,
	}
}

// ConfigFromEnv overlays MASTERY_THRESHOLD, MASTERY_DECAY_RATE and
// BKT_BLEND_FACTOR on the defaults.
func ConfigFromEnv() Config {
	c := DefaultConfig()
	c.MasteryThreshold = envutil.Float("MASTERY_THRESHOLD", c.MasteryThreshold)
	c.DecayRate = envutil.Float("MASTERY_DECAY_RATE", c.DecayRate)
	c.BlendFactor = envutil.Float("BKT_BLEND_FACTOR", c.BlendFactor)
	c.MinObservations = envutil.Int("BKT_MIN_OBSERVATIONS", c.MinObservations)
	return c
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MasteryThreshold <= 0 || c.MasteryThreshold > 1 {
		c.MasteryThreshold = d.MasteryThreshold
	}
	if c.MinMastery <= 0 || c.MinMastery >= 1 {
		c.MinMastery = d.MinMastery
	}
	if c.MaxMastery <= c.MinMastery || c.MaxMastery >= 1 {
		c.MaxMastery = d.MaxMastery
	}
	if c.DecayRate < 0 || math.IsNaN(c.DecayRate) {
		c.DecayRate = d.DecayRate
	}
	if c.DecayFloor <= 0 || c.DecayFloor >= 1 {
		c.DecayFloor = d.DecayFloor
	}
	if c.MinObservations <= 0 {
		c.MinObservations = d.MinObservations
	}
	if c.HighMasteryCutoff <= 0 || c.HighMasteryCutoff >= 1 {
		c.HighMasteryCutoff = d.HighMasteryCutoff
	}
	if c.LowMasteryCutoff <= 0 || c.LowMasteryCutoff >= 1 {
		c.LowMasteryCutoff = d.LowMasteryCutoff
	}
	if c.BlendFactor <= 0 || c.BlendFactor > 1 {
		c.BlendFactor = d.BlendFactor
	}
	if c.MaxUserHistory <= 0 {
		c.MaxUserHistory = d.MaxUserHistory
	}
	if c.MaxObservations <= 0 {
		c.MaxObservations = d.MaxObservations
	}
	return c
}

func clamp01(x float64) float64 {
	return clampRange(x, 0, 1)
}

func clampRange(x float64, lo float64, hi float64) float64 {
	if math.IsNaN(x) {
		return lo
	}
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
