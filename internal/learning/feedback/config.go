package feedback

import (
	"time"

	"github.com/yungbote/neurobridge-mastery/internal/platform/envutil"
)

type Config struct {
	// Threshold recalibration.
	MinThresholdSamples   int
	MinThresholdSuccesses int
	AdjustmentRate        float64
	// ActiveMultiplier and SupportiveMultiplier scale the empirical mean of
	// successful outcomes. They are fixed, not learned.
	ActiveMultiplier     float64
	SupportiveMultiplier float64
	DefaultThresholds    Thresholds

	// Difficulty.
	TimeNormSeconds float64
	AttemptNorm     float64
	DefaultRating   float64

	// Pattern detection.
	MinPatternSamples        int
	MisconceptionSuccessRate float64
	DifficultConceptRating   float64
	DifficultConceptAttempts int
	IneffectiveSuccessRate   float64

	MinInterventionUses int

	MaxHistoryEntries int
	MaxHistoryAge     time.Duration
	StruggleWindow    time.Duration
}

func DefaultConfig() Config {
	return Config{
		MinThresholdSamples:   10,
		MinThresholdSuccesses: 5,
		AdjustmentRate:        0.1,
		ActiveMultiplier:      1.5,
		SupportiveMultiplier:  2,
		DefaultThresholds: Thresholds{
			Gentle:     Tier{ExplainClicks: 2, TestAttempts: 2, TimeSeconds: 120},
			Active:     Tier{ExplainClicks: 4, TestAttempts: 4, TimeSeconds: 300},
			Supportive: Tier{ExplainClicks: 6, TestAttempts: 6, TimeSeconds: 600},
		},
		TimeNormSeconds:          300,
		AttemptNorm:              5,
		DefaultRating:            0.5,
		MinPatternSamples:        5,
		MisconceptionSuccessRate: 0.5,
		DifficultConceptRating:   0.7,
		DifficultConceptAttempts: 10,
		IneffectiveSuccessRate:   0.3,
		MinInterventionUses:      3,
		MaxHistoryEntries:        1000,
		MaxHistoryAge:            90 * 24 * time.Hour,
		StruggleWindow:           24 * time.Hour,
	}
}

func ConfigFromEnv() Config {
	c := DefaultConfig()
	c.AdjustmentRate = envutil.Float("THRESHOLD_ADJUSTMENT_RATE", c.AdjustmentRate)
	c.MaxHistoryEntries = envutil.Int("FEEDBACK_MAX_HISTORY", c.MaxHistoryEntries)
	c.MaxHistoryAge = envutil.Duration("FEEDBACK_MAX_HISTORY_AGE", c.MaxHistoryAge)
	return c
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MinThresholdSamples <= 0 {
		c.MinThresholdSamples = d.MinThresholdSamples
	}
	if c.MinThresholdSuccesses <= 0 {
		c.MinThresholdSuccesses = d.MinThresholdSuccesses
	}
	if c.AdjustmentRate <= 0 || c.AdjustmentRate > 1 {
		c.AdjustmentRate = d.AdjustmentRate
	}
	if c.ActiveMultiplier <= 0 {
		c.ActiveMultiplier = d.ActiveMultiplier
	}
	if c.SupportiveMultiplier <= 0 {
		c.SupportiveMultiplier = d.SupportiveMultiplier
	}
	if c.DefaultThresholds == (Thresholds{}) {
		c.DefaultThresholds = d.DefaultThresholds
	}
	if c.TimeNormSeconds <= 0 {
		c.TimeNormSeconds = d.TimeNormSeconds
	}
	if c.AttemptNorm <= 0 {
		c.AttemptNorm = d.AttemptNorm
	}
	if c.DefaultRating <= 0 || c.DefaultRating > 1 {
		c.DefaultRating = d.DefaultRating
	}
	if c.MinPatternSamples <= 0 {
		c.MinPatternSamples = d.MinPatternSamples
	}
	if c.MisconceptionSuccessRate <= 0 {
		c.MisconceptionSuccessRate = d.MisconceptionSuccessRate
	}
	if c.DifficultConceptRating <= 0 {
		c.DifficultConceptRating = d.DifficultConceptRating
	}
	if c.DifficultConceptAttempts <= 0 {
		c.DifficultConceptAttempts = d.DifficultConceptAttempts
	}
	if c.IneffectiveSuccessRate <= 0 {
		c.IneffectiveSuccessRate = d.IneffectiveSuccessRate
	}
	if c.MinInterventionUses <= 0 {
		c.MinInterventionUses = d.MinInterventionUses
	}
	if c.MaxHistoryEntries <= 0 {
		c.MaxHistoryEntries = d.MaxHistoryEntries
	}
	if c.MaxHistoryAge <= 0 {
		c.MaxHistoryAge = d.MaxHistoryAge
	}
	if c.StruggleWindow <= 0 {
		c.StruggleWindow = d.StruggleWindow
	}
	return c
}
