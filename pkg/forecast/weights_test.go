package forecast

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedPerformance(t *testing.T, season string, n int, overall, elo, goalModel, odds float64) {
	t.Helper()
	base := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		row := &PeriodPerformance{
			Season:            season,
			Period:            fmt.Sprintf("gw%02d", i+1),
			Matches:           10,
			OutcomeAccuracy:   overall,
			EloMatches:        10,
			EloAccuracy:       elo,
			GoalModelMatches:  10,
			GoalModelAccuracy: goalModel,
			OddsMatches:       10,
			OddsAccuracy:      odds,
			EvaluatedAt:       base.Add(time.Duration(i) * 24 * time.Hour),
		}
		require.NoError(t, Save(row))
	}
}

func TestAdjustWeightsNudgesTowardAccurateSignal(t *testing.T) {
	resetConfig(t)
	require.NoError(t, InitDatabase(":memory:"))
	t.Cleanup(func() { CloseDatabase() })

	// Elo runs 5 points hot, odds 5 points cold: the raw delta of
	// 0.025 is clamped to the 0.02 per-cycle limit
	seedPerformance(t, "2025/2026", 3, 0.50, 0.55, 0.50, 0.45)

	adjusted, reason, err := AdjustWeights("2025/2026")
	require.NoError(t, err)
	assert.True(t, adjusted)
	assert.Contains(t, reason, "elo")

	w := LoadWeights()
	assert.InDelta(t, 0.32, w.Elo, 1e-9)
	assert.InDelta(t, 0.40, w.GoalModel, 1e-9)
	assert.InDelta(t, 0.28, w.Odds, 1e-9)
	assert.InDelta(t, 1.0, w.Elo+w.GoalModel+w.Odds, 1e-9)
	assert.False(t, w.LastAdjusted.IsZero())
}

func TestAdjustWeightsRequiresHistory(t *testing.T) {
	resetConfig(t)
	require.NoError(t, InitDatabase(":memory:"))
	t.Cleanup(func() { CloseDatabase() })

	seedPerformance(t, "2025/2026", 1, 0.50, 0.70, 0.40, 0.40)

	adjusted, reason, err := AdjustWeights("2025/2026")
	require.NoError(t, err)
	assert.False(t, adjusted, "one evaluated period is not enough")
	assert.Contains(t, reason, "need 2")

	w := LoadWeights()
	assert.Equal(t, Config.DefaultEloWeight, w.Elo)
}

func TestAdjustWeightsAbsentComponent(t *testing.T) {
	resetConfig(t)
	require.NoError(t, InitDatabase(":memory:"))
	t.Cleanup(func() { CloseDatabase() })

	// No odds data at all: the odds weight gets no accuracy-driven
	// delta, only the renormalization share
	base := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, Save(&PeriodPerformance{
			Season:            "2025/2026",
			Period:            fmt.Sprintf("gw%02d", i+1),
			Matches:           10,
			OutcomeAccuracy:   0.50,
			EloMatches:        10,
			EloAccuracy:       0.60,
			GoalModelMatches:  10,
			GoalModelAccuracy: 0.50,
			EvaluatedAt:       base.Add(time.Duration(i) * 24 * time.Hour),
		}))
	}

	adjusted, reason, err := AdjustWeights("2025/2026")
	require.NoError(t, err)
	assert.True(t, adjusted)
	assert.Contains(t, reason, "odds: no evaluated matches")

	w := LoadWeights()
	assert.Greater(t, w.Elo, Config.DefaultEloWeight)
	assert.InDelta(t, 1.0, w.Elo+w.GoalModel+w.Odds, 1e-9)
}

func TestAdjustWeightsRespectsBounds(t *testing.T) {
	resetConfig(t)
	require.NoError(t, InitDatabase(":memory:"))
	t.Cleanup(func() { CloseDatabase() })

	// Start at the ceiling: even a dominant signal cannot push past it
	require.NoError(t, Save(&EnsembleWeights{Elo: 0.70, GoalModel: 0.20, Odds: 0.10}))
	seedPerformance(t, "2025/2026", 3, 0.50, 0.90, 0.30, 0.30)

	adjusted, _, err := AdjustWeights("2025/2026")
	require.NoError(t, err)
	assert.True(t, adjusted)

	w := LoadWeights()
	assert.LessOrEqual(t, w.Elo, Config.WeightCeiling+1e-9)
	assert.GreaterOrEqual(t, w.Odds, Config.WeightFloor-1e-9)
	assert.InDelta(t, 1.0, w.Elo+w.GoalModel+w.Odds, 1e-9)
}

func TestAdjustWeightsAppendsHistory(t *testing.T) {
	resetConfig(t)
	require.NoError(t, InitDatabase(":memory:"))
	t.Cleanup(func() { CloseDatabase() })

	seedPerformance(t, "2025/2026", 3, 0.50, 0.55, 0.50, 0.45)

	_, _, err := AdjustWeights("2025/2026")
	require.NoError(t, err)

	history, err := FindAll(&WeightAdjustment{})
	require.NoError(t, err)
	require.Len(t, history, 1)

	entry := history[0].(*WeightAdjustment)
	assert.InDelta(t, Config.DefaultEloWeight, entry.OldElo, 1e-9)
	assert.InDelta(t, 0.32, entry.NewElo, 1e-9)
	assert.NotEmpty(t, entry.Reasons)
}

func TestRecordPeriodPerformance(t *testing.T) {
	resetConfig(t)
	require.NoError(t, InitDatabase(":memory:"))
	t.Cleanup(func() { CloseDatabase() })

	record := &EvaluationRecord{
		Season: "2025/2026",
		Period: "gw09",
		Summary: EvaluationSummary{
			Matches: 10, OutcomeAccuracy: 0.6, ScoreAccuracy: 0.1,
			AvgLogLoss: 0.95, AvgBrierScore: 0.55,
		},
		PerComponent: map[string]*ComponentAccuracy{
			ComponentElo:       {Matches: 10, Correct: 6, Accuracy: 0.6},
			ComponentGoalModel: {Matches: 10, Correct: 5, Accuracy: 0.5},
		},
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, RecordPeriodPerformance(record))

	rows, err := FindWhere(&PeriodPerformance{}, "season = ? AND period = ?", "2025/2026", "gw09")
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0].(*PeriodPerformance)
	assert.Equal(t, 10, row.Matches)
	assert.InDelta(t, 0.6, row.EloAccuracy, 1e-9)
	assert.Equal(t, 0, row.OddsMatches, "absent component stays at zero")

	// Upsert: re-recording the same period overwrites, not duplicates
	record.Summary.OutcomeAccuracy = 0.7
	require.NoError(t, RecordPeriodPerformance(record))
	rows, err = FindWhere(&PeriodPerformance{}, "season = ? AND period = ?", "2025/2026", "gw09")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.InDelta(t, 0.7, rows[0].(*PeriodPerformance).OutcomeAccuracy, 1e-9)
}
