package forecast

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogLossClamping(t *testing.T) {
	resetConfig(t)

	assert.InDelta(t, -math.Log(0.5), logLoss(0.5), 1e-9)

	// A certainly-wrong prediction is clamped, never infinite
	assert.InDelta(t, -math.Log(Config.LogLossClampMin), logLoss(0), 1e-9)
	assert.InDelta(t, -math.Log(Config.LogLossClampMax), logLoss(1), 1e-9)
	assert.False(t, math.IsInf(logLoss(0), 1))
}

func TestBrierScore(t *testing.T) {
	// A perfect prediction scores zero
	assert.InDelta(t, 0.0, brierScore(Triple{Home: 1, Draw: 0, Away: 0}, OutcomeHome), 1e-9)

	// The uniform prediction scores 2/3 regardless of outcome
	third := 1.0 / 3.0
	uniform := Triple{Home: third, Draw: third, Away: third}
	assert.InDelta(t, 2.0/3.0, brierScore(uniform, OutcomeDraw), 1e-9)

	// Maximally wrong scores 2
	assert.InDelta(t, 2.0, brierScore(Triple{Home: 1, Draw: 0, Away: 0}, OutcomeAway), 1e-9)
}

func evalPrediction(id, league, outcome string, home, draw, away float64, score string, components ComponentBreakdown) *PredictionRecord {
	return &PredictionRecord{
		FixtureID:        id,
		League:           league,
		HomeWinProb:      home,
		DrawProb:         draw,
		AwayWinProb:      away,
		PredictedOutcome: outcome,
		PredictedScore:   score,
		Confidence:       Triple{Home: home, Draw: draw, Away: away}.Of(outcome),
		Components:       components,
	}
}

func TestEvaluatePeriod(t *testing.T) {
	resetConfig(t)

	homeLean := ComponentBreakdown{
		Elo:       Triple{Home: 0.6, Draw: 0.25, Away: 0.15},
		GoalModel: Triple{Home: 0.5, Draw: 0.3, Away: 0.2},
		Odds:      &Triple{Home: 0.45, Draw: 0.3, Away: 0.25},
	}
	awayLean := ComponentBreakdown{
		Elo:       Triple{Home: 0.2, Draw: 0.3, Away: 0.5},
		GoalModel: Triple{Home: 0.3, Draw: 0.3, Away: 0.4},
	}

	predictions := []*PredictionRecord{
		evalPrediction("f1", "premier-league", OutcomeHome, 0.55, 0.25, 0.20, "2-1", homeLean),
		evalPrediction("f2", "premier-league", OutcomeAway, 0.25, 0.30, 0.45, "0-2", awayLean),
		evalPrediction("f3", "championship", OutcomeHome, 0.50, 0.30, 0.20, "1-0", homeLean),
		evalPrediction("f4", "championship", OutcomeDraw, 0.30, 0.40, 0.30, "1-1", homeLean),
	}
	results := []*ResultRecord{
		{FixtureID: "f1", HomeGoals: 2, AwayGoals: 1, Status: StatusFinished},
		{FixtureID: "f2", HomeGoals: 1, AwayGoals: 0, Status: StatusFinished},
		{FixtureID: "f3", HomeGoals: 3, AwayGoals: 0, Status: StatusFinished},
		// f4 still live: must be excluded, not an error
		{FixtureID: "f4", HomeGoals: 0, AwayGoals: 0, Status: StatusLive},
	}

	record := EvaluatePeriod("2025/2026", "gw05", predictions, results)

	require.Equal(t, 3, record.Summary.Matches)
	// f1 and f3 correct, f2 wrong
	assert.InDelta(t, 2.0/3.0, record.Summary.OutcomeAccuracy, 1e-9)
	// Only f1 called the exact score
	assert.InDelta(t, 1.0/3.0, record.Summary.ScoreAccuracy, 1e-9)
	assert.Greater(t, record.Summary.AvgLogLoss, 0.0)

	// Per-league split
	require.Len(t, record.PerLeague, 2)
	assert.Equal(t, 2, record.PerLeague["premier-league"].Matches)
	assert.InDelta(t, 0.5, record.PerLeague["premier-league"].OutcomeAccuracy, 1e-9)
	assert.InDelta(t, 1.0, record.PerLeague["championship"].OutcomeAccuracy, 1e-9)

	// Elo leaned home on f1 (right), away on f2 (wrong), home on f3
	// (right)
	elo := record.PerComponent[ComponentElo]
	require.NotNil(t, elo)
	assert.Equal(t, 3, elo.Matches)
	assert.InDelta(t, 2.0/3.0, elo.Accuracy, 1e-9)

	// f2's components carried no odds triple
	odds := record.PerComponent[ComponentOdds]
	require.NotNil(t, odds)
	assert.Equal(t, 2, odds.Matches)

	// Calibration bins account for every evaluated match
	binned := 0
	for _, bin := range record.Calibration {
		binned += bin.Matches
		if bin.Matches > 0 {
			assert.GreaterOrEqual(t, bin.MeanConfidence, bin.Low)
			assert.LessOrEqual(t, bin.MeanConfidence, bin.High+1e-9)
		}
	}
	assert.Equal(t, 3, binned)
}

func TestEvaluatePeriodNoResults(t *testing.T) {
	resetConfig(t)

	predictions := []*PredictionRecord{
		evalPrediction("f1", "premier-league", OutcomeHome, 0.55, 0.25, 0.20, "2-1", ComponentBreakdown{}),
	}

	record := EvaluatePeriod("2025/2026", "gw06", predictions, nil)
	assert.Equal(t, 0, record.Summary.Matches)
	assert.Empty(t, record.PerMatch)
}

func TestEvaluationArtifactRoundTrip(t *testing.T) {
	resetConfig(t)
	dir := t.TempDir()

	assert.False(t, HasEvaluation(dir))

	record := EvaluatePeriod("2025/2026", "gw07", nil, nil)
	require.NoError(t, WriteEvaluation(dir, record))
	assert.True(t, HasEvaluation(dir), "artifact existence is the idempotency marker")

	loaded, err := LoadEvaluation(dir)
	require.NoError(t, err)
	assert.Equal(t, "gw07", loaded.Period)
	assert.Equal(t, "2025/2026", loaded.Season)
}
