package forecast

import (
	"fmt"
	"os"
	"strconv"
)

// PipelineConfig contains every tunable that influences forecasting
// outcomes. Centralizing them here keeps the magic numbers in one place
// and makes the calibration experiments reproducible.
type PipelineConfig struct {
	// Storage
	DataDir string // root of per-period artifact directories
	DbPath  string // sqlite database holding ratings, weights, bias, logs

	// === ELO ENGINE ===

	EloDefaultRating float64 // rating assigned to a team on first observation (default: 1500)
	EloHomeAdvantage float64 // rating points added to the home side (default: 65)
	EloBaseK         float64 // base K-factor (default: 20)
	EloDrawBase      float64 // draw probability at zero rating gap (default: 0.30)
	EloDrawDecay     float64 // draw probability lost per rating point of gap (default: 0.0003)
	EloDrawFloor     float64 // minimum draw probability (default: 0.08)

	// === GOAL MODEL ===

	MaxGoals           int     // scoreline matrix bound, goals 0..MaxGoals (default: 5)
	HomeXGFloor        float64 // clamp range for home expected goals
	HomeXGCap          float64
	AwayXGFloor        float64 // clamp range for away expected goals
	AwayXGCap          float64
	EloFallbackScale   float64 // baseline adjustment per 400 Elo points when stats are thin (default: 0.15)
	OddsXGWeight       float64 // share of odds-derived xG in the blend (default: 0.20)
	MinMatchesForStats int     // venue games needed before trusting rate stats (default: 4)
	DixonColesRho      float64 // low-score correlation parameter (default: -0.03)

	// Used when the standings snapshot carries no league averages
	DefaultHomeGoalsPerGame float64
	DefaultAwayGoalsPerGame float64

	// === ENSEMBLE BLENDER ===

	DefaultEloWeight       float64
	DefaultGoalModelWeight float64
	DefaultOddsWeight      float64
	ProbabilityFloor       float64 // no blended outcome may fall below this (default: 0.03)
	ConfidenceCap          float64 // stated confidence never exceeds this (default: 0.95)

	// === EVALUATION ===

	LogLossClampMin float64 // probability clamp feeding -ln(p) (default: 0.001)
	LogLossClampMax float64 // (default: 0.999)
	CalibrationBins int     // confidence buckets for the calibration curve (default: 5)

	// === BIAS CALIBRATION ===

	MinMatchesForBias int // finished matches a league needs before its bias is trusted (default: 10)

	// === ADAPTIVE WEIGHT CALIBRATION ===

	AdjustmentWindow        int     // evaluated periods considered per adjustment (default: 5)
	AdjustmentGain          float64 // accuracy-gap multiplier (default: 0.5)
	MaxWeightDelta          float64 // per-cycle clamp on each weight delta (default: 0.02)
	WeightFloor             float64 // no signal may be zeroed out (default: 0.05)
	WeightCeiling           float64 // no signal may dominate completely (default: 0.70)
	MinPeriodsForAdjustment int     // below this the calibrator is a no-op (default: 2)

	// === ORCHESTRATION ===

	EvaluationDelayHours   int     // hours after last kickoff before a period is evaluable (default: 3)
	MinResultCoverage      float64 // fraction of fixtures needing results (default: 0.80)
	StaleResultCoverage    float64 // relaxed coverage for stuck periods (default: 0.50)
	StalePeriodDays        int     // age at which the relaxed coverage applies (default: 7)
	PredictionWindowDays   int     // do not predict further out than this (default: 7)
	EmergencyWindowHours   int     // kickoffs closer than this log at elevated severity (default: 12)
	StepTimeoutMinutes     int     // hard bound on any single pipeline step (default: 5)
	RequestIntervalSeconds float64 // fixed delay between external requests (default: 2)

	// === DATASOURCE ===

	BaseURL   string // fixture/result source; empty means artifacts arrive externally
	CachePath string // downloaded payload cache

	// Season namespace the orchestrator operates on
	CurrentSeason string
}

// DefaultPipelineConfig returns the default configuration with all
// standard values.
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		DataDir: "./data",
		DbPath:  "./data/mypredictify.db",

		EloDefaultRating: 1500,
		EloHomeAdvantage: 65,
		EloBaseK:         20,
		EloDrawBase:      0.30,
		EloDrawDecay:     0.0003,
		EloDrawFloor:     0.08,

		MaxGoals:           5,
		HomeXGFloor:        0.4,
		HomeXGCap:          3.5,
		AwayXGFloor:        0.3,
		AwayXGCap:          3.0,
		EloFallbackScale:   0.15,
		OddsXGWeight:       0.20,
		MinMatchesForStats: 4,
		DixonColesRho:      -0.03,

		DefaultHomeGoalsPerGame: 1.5,
		DefaultAwayGoalsPerGame: 1.1,

		DefaultEloWeight:       0.30,
		DefaultGoalModelWeight: 0.40,
		DefaultOddsWeight:      0.30,
		ProbabilityFloor:       0.03,
		ConfidenceCap:          0.95,

		LogLossClampMin: 0.001,
		LogLossClampMax: 0.999,
		CalibrationBins: 5,

		MinMatchesForBias: 10,

		AdjustmentWindow:        5,
		AdjustmentGain:          0.5,
		MaxWeightDelta:          0.02,
		WeightFloor:             0.05,
		WeightCeiling:           0.70,
		MinPeriodsForAdjustment: 2,

		EvaluationDelayHours:   3,
		MinResultCoverage:      0.80,
		StaleResultCoverage:    0.50,
		StalePeriodDays:        7,
		PredictionWindowDays:   7,
		EmergencyWindowHours:   12,
		StepTimeoutMinutes:     5,
		RequestIntervalSeconds: 2,

		BaseURL:   "",
		CachePath: "./data/cache",

		CurrentSeason: "2025/2026",
	}
}

// Global configuration instance
var Config *PipelineConfig

func init() {
	Config = DefaultPipelineConfig()
}

// UpdateConfig replaces the global configuration
func UpdateConfig(newConfig *PipelineConfig) {
	Config = newConfig
}

// ApplyEnvOverrides overlays MYPREDICTIFY_* environment variables onto
// the configuration. Unset or malformed values leave the defaults alone.
func (c *PipelineConfig) ApplyEnvOverrides() {
	if v := os.Getenv("MYPREDICTIFY_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("MYPREDICTIFY_DB_PATH"); v != "" {
		c.DbPath = v
	}
	if v := os.Getenv("MYPREDICTIFY_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("MYPREDICTIFY_CACHE_PATH"); v != "" {
		c.CachePath = v
	}
	if v := os.Getenv("MYPREDICTIFY_SEASON"); v != "" {
		c.CurrentSeason = v
	}
	if v := os.Getenv("MYPREDICTIFY_REQUEST_INTERVAL"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			c.RequestIntervalSeconds = f
		}
	}
	if v := os.Getenv("MYPREDICTIFY_STEP_TIMEOUT_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.StepTimeoutMinutes = n
		}
	}
}

// ValidateConfig ensures all configuration values are within reasonable
// ranges before a run starts.
func ValidateConfig(config *PipelineConfig) error {
	if config.EloBaseK <= 0 {
		return fmt.Errorf("EloBaseK must be positive, got: %f", config.EloBaseK)
	}
	if config.EloDrawFloor < 0 || config.EloDrawFloor >= config.EloDrawBase {
		return fmt.Errorf("EloDrawFloor must be in [0, EloDrawBase), got: %f", config.EloDrawFloor)
	}
	if config.MaxGoals < 3 {
		return fmt.Errorf("MaxGoals should be at least 3 to capture realistic scores, got: %d", config.MaxGoals)
	}
	if config.DixonColesRho > 0 || config.DixonColesRho < -0.1 {
		return fmt.Errorf("DixonColesRho should be between -0.1 and 0, got: %f", config.DixonColesRho)
	}
	if config.ProbabilityFloor <= 0 || config.ProbabilityFloor >= 1.0/3.0 {
		return fmt.Errorf("ProbabilityFloor must be in (0, 1/3), got: %f", config.ProbabilityFloor)
	}
	if config.WeightFloor <= 0 || config.WeightCeiling >= 1 || config.WeightFloor >= config.WeightCeiling {
		return fmt.Errorf("weight bounds must satisfy 0 < floor < ceiling < 1, got: [%f, %f]", config.WeightFloor, config.WeightCeiling)
	}
	if 3*config.WeightFloor > 1 || 3*config.WeightCeiling < 1 {
		return fmt.Errorf("weight bounds [%f, %f] cannot bracket a normalized triple", config.WeightFloor, config.WeightCeiling)
	}
	if config.MaxWeightDelta <= 0 || config.MaxWeightDelta > 0.1 {
		return fmt.Errorf("MaxWeightDelta should be in (0, 0.1], got: %f", config.MaxWeightDelta)
	}
	if config.MinMatchesForBias < 1 {
		return fmt.Errorf("MinMatchesForBias must be at least 1, got: %d", config.MinMatchesForBias)
	}
	if config.MinResultCoverage <= 0 || config.MinResultCoverage > 1 {
		return fmt.Errorf("MinResultCoverage must be in (0, 1], got: %f", config.MinResultCoverage)
	}
	if config.StaleResultCoverage <= 0 || config.StaleResultCoverage > config.MinResultCoverage {
		return fmt.Errorf("StaleResultCoverage must be in (0, MinResultCoverage], got: %f", config.StaleResultCoverage)
	}
	w := config.DefaultEloWeight + config.DefaultGoalModelWeight + config.DefaultOddsWeight
	if w < 0.999 || w > 1.001 {
		return fmt.Errorf("default ensemble weights must sum to 1.000, got: %f", w)
	}
	return nil
}
