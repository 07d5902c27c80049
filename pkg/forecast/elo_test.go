package forecast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetConfig(t *testing.T) {
	t.Helper()
	old := Config
	Config = DefaultPipelineConfig()
	t.Cleanup(func() { Config = old })
}

func TestEloExpectation(t *testing.T) {
	assert.InDelta(t, 0.5, EloExpectation(1500, 1500), 1e-9)
	assert.InDelta(t, 0.75974, EloExpectation(1700, 1500), 0.001)

	// Symmetry: expectations of the two sides sum to one
	a := EloExpectation(1620, 1480)
	b := EloExpectation(1480, 1620)
	assert.InDelta(t, 1.0, a+b, 1e-9)
}

func TestEloPredictWithRatingGap(t *testing.T) {
	resetConfig(t)

	// 1600 vs 1500: home advantage makes the adjusted gap 165 points
	p := EloPredict(1600, 1500)

	assert.InDelta(t, 0.2505, p.Draw, 0.0001, "draw decays linearly with the gap")
	assert.InDelta(t, 0.5404, p.Home, 0.001)
	assert.InDelta(t, 0.2091, p.Away, 0.001)
	assert.InDelta(t, 1.0, p.Sum(), 1e-9)
}

func TestEloPredictEqualRatingsFavorsHome(t *testing.T) {
	resetConfig(t)

	p := EloPredict(1500, 1500)
	assert.Greater(t, p.Home, p.Away, "home advantage should tilt equal ratings")
	assert.InDelta(t, 1.0, p.Sum(), 1e-9)
}

func TestEloPredictDrawFloor(t *testing.T) {
	resetConfig(t)

	// A gigantic gap must not push the draw below its floor
	p := EloPredict(2400, 1200)
	assert.GreaterOrEqual(t, p.Draw, Config.EloDrawFloor-1e-9)
	assert.Greater(t, p.Home, 0.8)
}

func TestMarginMultiplier(t *testing.T) {
	assert.Equal(t, 1.0, MarginMultiplier(0))
	assert.Equal(t, 1.0, MarginMultiplier(1))
	assert.Equal(t, 1.0, MarginMultiplier(-1))
	assert.InDelta(t, 1.5, MarginMultiplier(2), 1e-9)
	assert.InDelta(t, 1.5, MarginMultiplier(-2), 1e-9)
	assert.InDelta(t, 1.0+0.5*1.4142135, MarginMultiplier(3), 0.001)
}

func TestEloUpdateHomeWinByTwo(t *testing.T) {
	resetConfig(t)

	home := &TeamRating{TeamID: "arsenal", Rating: 1600}
	away := &TeamRating{TeamID: "everton", Rating: 1500}

	// 3-1: margin multiplier 1.5 makes the effective K 30
	deltaHome, deltaAway := EloUpdate(home, away, 3, 1)

	assert.InDelta(t, 8, deltaHome, 1e-9)
	assert.InDelta(t, -8, deltaAway, 1e-9)
	assert.Equal(t, 1608.0, home.Rating)
	assert.Equal(t, 1492.0, away.Rating)
}

func TestEloUpdateZeroSum(t *testing.T) {
	resetConfig(t)

	home := &TeamRating{TeamID: "a", Rating: 1550}
	away := &TeamRating{TeamID: "b", Rating: 1450}
	before := home.Rating + away.Rating

	EloUpdate(home, away, 0, 0)

	// Rounding each side to an integer can shift the total by at most 1
	assert.InDelta(t, before, home.Rating+away.Rating, 1.0)
}

func TestEloUpdateUpsetMovesMore(t *testing.T) {
	resetConfig(t)

	// The underdog beating a strong favourite is worth far more than
	// the favourite winning as expected
	deltaUpset, _ := EloUpdate(&TeamRating{Rating: 1400}, &TeamRating{Rating: 1700}, 1, 0)
	deltaExpected, _ := EloUpdate(&TeamRating{Rating: 1700}, &TeamRating{Rating: 1400}, 1, 0)

	assert.Greater(t, deltaExpected, 0.0)
	assert.Greater(t, deltaUpset, deltaExpected, "upset should move ratings further")
}

func TestGetTeamRatingSeedsDefault(t *testing.T) {
	resetConfig(t)
	require.NoError(t, InitDatabase(":memory:"))
	t.Cleanup(func() { CloseDatabase() })

	rating, err := GetTeamRating("newly-promoted", "premier-league")
	require.NoError(t, err)
	assert.Equal(t, Config.EloDefaultRating, rating.Rating)
	assert.Equal(t, "premier-league", rating.League)
}

func TestApplyPeriodResults(t *testing.T) {
	resetConfig(t)
	require.NoError(t, InitDatabase(":memory:"))
	t.Cleanup(func() { CloseDatabase() })

	kickoff := time.Date(2025, 8, 16, 15, 0, 0, 0, time.UTC)
	matches := []*MatchRecord{
		{FixtureID: "f1", League: "premier-league", HomeTeam: "arsenal", AwayTeam: "everton", Kickoff: kickoff},
		{FixtureID: "f2", League: "premier-league", HomeTeam: "leeds", AwayTeam: "spurs", Kickoff: kickoff},
	}
	results := []*ResultRecord{
		{FixtureID: "f1", HomeGoals: 3, AwayGoals: 1, Status: StatusFinished},
		{FixtureID: "f2", HomeGoals: 0, AwayGoals: 0, Status: StatusPostponed},
	}

	updated, err := ApplyPeriodResults("2025/2026", "gw01", matches, results)
	require.NoError(t, err)
	assert.Equal(t, 1, updated, "postponed match must not update ratings")

	arsenal, err := GetTeamRating("arsenal", "premier-league")
	require.NoError(t, err)
	assert.Greater(t, arsenal.Rating, Config.EloDefaultRating)

	leeds, err := GetTeamRating("leeds", "premier-league")
	require.NoError(t, err)
	assert.Equal(t, Config.EloDefaultRating, leeds.Rating)
}
