package forecast

import (
	"fmt"
	"math"
)

// GoalForecast is the Goal Model's full output for one fixture: the
// expected-goals pair, the bounded scoreline probability matrix and the
// distributions derived from it.
type GoalForecast struct {
	HomeXG           float64     `json:"homeXg"`
	AwayXG           float64     `json:"awayXg"`
	Matrix           [][]float64 `json:"-"`
	Outcomes         Triple      `json:"outcomes"`
	BothTeamsToScore float64     `json:"bothTeamsToScore"`
	Over1p5          float64     `json:"over1p5"`
	Over2p5          float64     `json:"over2p5"`
	UsedEloFallback  bool        `json:"usedEloFallback"`
	UsedMarketBlend  bool        `json:"usedMarketBlend"`
}

// ForecastGoals estimates expected goals for both sides of a fixture
// and derives the scoreline matrix. Elo ratings provide the fallback
// signal when per-team history is too thin, and market odds (when
// present) blend in information the rate statistics lack. League bias
// is the advisory correction produced by the bias calibrator.
func ForecastGoals(m *MatchRecord, homeElo, awayElo float64, market *Triple, bias *LeagueBias) (*GoalForecast, error) {
	if m == nil {
		return nil, fmt.Errorf("must pass a match record")
	}

	leagueHome, leagueAway := leagueAverages(m.Standings)

	forecast := &GoalForecast{}
	xgHome, xgAway, usedFallback := rateBasedExpectedGoals(m, leagueHome, leagueAway, homeElo, awayElo)
	forecast.UsedEloFallback = usedFallback

	if market != nil {
		xgHome, xgAway = blendMarketXG(xgHome, xgAway, market, leagueHome+leagueAway)
		forecast.UsedMarketBlend = true
	}

	if bias != nil && bias.MatchesAnalyzed > 0 {
		xgHome -= bias.HomeBias
		xgAway -= bias.AwayBias
	}

	forecast.HomeXG = clamp(xgHome, Config.HomeXGFloor, Config.HomeXGCap)
	forecast.AwayXG = clamp(xgAway, Config.AwayXGFloor, Config.AwayXGCap)

	forecast.Matrix = scorelineMatrix(forecast.HomeXG, forecast.AwayXG, Config.MaxGoals)
	forecast.Matrix = dixonColesCorrection(forecast.Matrix, forecast.HomeXG, forecast.AwayXG)

	forecast.Outcomes = outcomeProbabilities(forecast.Matrix)
	forecast.BothTeamsToScore = bothToScoreProbability(forecast.Matrix)
	forecast.Over1p5 = overGoalsProbability(forecast.Matrix, 1.5)
	forecast.Over2p5 = overGoalsProbability(forecast.Matrix, 2.5)

	return forecast, nil
}

// leagueAverages pulls the league scoring baselines out of a standings
// snapshot, falling back to configured defaults when absent.
func leagueAverages(s *StandingsSnapshot) (float64, float64) {
	home := Config.DefaultHomeGoalsPerGame
	away := Config.DefaultAwayGoalsPerGame
	if s != nil {
		if s.LeagueAvgHomeGoals > 0 {
			home = s.LeagueAvgHomeGoals
		}
		if s.LeagueAvgAwayGoals > 0 {
			away = s.LeagueAvgAwayGoals
		}
	}
	return home, away
}

// rateBasedExpectedGoals applies the standard attack/defense
// decomposition, isolating team quality from the venue's base scoring
// rate. When either side lacks enough venue history the league baseline
// is adjusted by the Elo gap instead.
func rateBasedExpectedGoals(m *MatchRecord, leagueHome, leagueAway, homeElo, awayElo float64) (float64, float64, bool) {
	var homeRates, awayRates VenueRates
	haveRates := false
	if m.Standings != nil {
		hr, okH := m.Standings.Teams[m.HomeTeam]
		ar, okA := m.Standings.Teams[m.AwayTeam]
		if okH && okA && hr.HomePlayed >= Config.MinMatchesForStats && ar.AwayPlayed >= Config.MinMatchesForStats {
			homeRates, awayRates = hr, ar
			haveRates = true
		}
	}

	if !haveRates {
		// Early season: nudge the league baseline by the rating gap,
		// home advantage included.
		eloDiff := (homeElo + Config.EloHomeAdvantage) - awayElo
		adjust := Config.EloFallbackScale * eloDiff / 400.0
		return leagueHome * (1 + adjust), leagueAway * (1 - adjust), true
	}

	homeAttack := homeRates.HomeScoredPerGame / nonZero(leagueHome)
	awayDefense := awayRates.AwayConcededPerGame / nonZero(leagueHome)
	awayAttack := awayRates.AwayScoredPerGame / nonZero(leagueAway)
	homeDefense := homeRates.HomeConcededPerGame / nonZero(leagueAway)

	xgHome := homeAttack * awayDefense * leagueHome
	xgAway := awayAttack * homeDefense * leagueAway
	return xgHome, xgAway, false
}

// blendMarketXG mixes the model xG with an odds-derived proxy: the
// market's home-win share scaled by the combined league-average total.
func blendMarketXG(xgHome, xgAway float64, market *Triple, leagueTotal float64) (float64, float64) {
	winMass := market.Home + market.Away
	if winMass <= 0 {
		return xgHome, xgAway
	}
	homeShare := market.Home / winMass

	oddsXGHome := homeShare * leagueTotal
	oddsXGAway := (1 - homeShare) * leagueTotal

	w := Config.OddsXGWeight
	return (1-w)*xgHome + w*oddsXGHome, (1-w)*xgAway + w*oddsXGAway
}

// poissonPMF returns P(X = k) for a Poisson distribution with mean
// lambda.
func poissonPMF(k int, lambda float64) float64 {
	if lambda <= 0 {
		if k == 0 {
			return 1.0
		}
		return 0.0
	}
	logP := -lambda + float64(k)*math.Log(lambda) - logFactorial(k)
	return math.Exp(logP)
}

func logFactorial(n int) float64 {
	lf := 0.0
	for i := 2; i <= n; i++ {
		lf += math.Log(float64(i))
	}
	return lf
}

// scorelineMatrix builds P(h,a) for h,a in [0, maxGoals]. The truncated
// tail mass is reassigned by normalization; beyond five goals it is
// negligible.
func scorelineMatrix(homeXG, awayXG float64, maxGoals int) [][]float64 {
	size := maxGoals + 1
	matrix := make([][]float64, size)
	for h := 0; h < size; h++ {
		matrix[h] = make([]float64, size)
		ph := poissonPMF(h, homeXG)
		for a := 0; a < size; a++ {
			matrix[h][a] = ph * poissonPMF(a, awayXG)
		}
	}
	return renormalizeMatrix(matrix)
}

// dixonColesCorrection adjusts the four low-scoring cells for the
// negative correlation the independent-Poisson product misses.
func dixonColesCorrection(matrix [][]float64, homeXG, awayXG float64) [][]float64 {
	rho := Config.DixonColesRho
	if len(matrix) < 2 || len(matrix[0]) < 2 {
		return matrix
	}

	corrected := make([][]float64, len(matrix))
	for i := range matrix {
		corrected[i] = make([]float64, len(matrix[i]))
		copy(corrected[i], matrix[i])
	}

	corrected[0][0] *= 1 - homeXG*awayXG*rho
	corrected[0][1] *= 1 + homeXG*rho
	corrected[1][0] *= 1 + awayXG*rho
	corrected[1][1] *= 1 - rho

	return renormalizeMatrix(corrected)
}

// renormalizeMatrix scales all cells so the matrix sums to 1
func renormalizeMatrix(matrix [][]float64) [][]float64 {
	total := 0.0
	for i := range matrix {
		for j := range matrix[i] {
			total += matrix[i][j]
		}
	}
	if total > 0 {
		for i := range matrix {
			for j := range matrix[i] {
				matrix[i][j] /= total
			}
		}
	}
	return matrix
}

// outcomeProbabilities sums the lower triangle, diagonal and upper
// triangle of the scoreline matrix into a home/draw/away triple.
func outcomeProbabilities(matrix [][]float64) Triple {
	var t Triple
	for h := range matrix {
		for a := range matrix[h] {
			switch {
			case h > a:
				t.Home += matrix[h][a]
			case h == a:
				t.Draw += matrix[h][a]
			default:
				t.Away += matrix[h][a]
			}
		}
	}
	return t.Normalized()
}

// bothToScoreProbability sums all cells where both sides score
func bothToScoreProbability(matrix [][]float64) float64 {
	p := 0.0
	for h := 1; h < len(matrix); h++ {
		for a := 1; a < len(matrix[h]); a++ {
			p += matrix[h][a]
		}
	}
	return p
}

// overGoalsProbability sums all cells whose total goals exceed the
// threshold
func overGoalsProbability(matrix [][]float64, threshold float64) float64 {
	p := 0.0
	for h := range matrix {
		for a := range matrix[h] {
			if float64(h+a) > threshold {
				p += matrix[h][a]
			}
		}
	}
	return p
}

// MostLikelyScoreFor returns the highest-probability scoreline among
// matrix cells consistent with the given outcome letter.
func (g *GoalForecast) MostLikelyScoreFor(outcome string) (int, int) {
	bestH, bestA := 0, 0
	bestP := -1.0
	for h := range g.Matrix {
		for a := range g.Matrix[h] {
			if OutcomeFromGoals(h, a) != outcome {
				continue
			}
			if g.Matrix[h][a] > bestP {
				bestP = g.Matrix[h][a]
				bestH, bestA = h, a
			}
		}
	}
	return bestH, bestA
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func nonZero(v float64) float64 {
	if v == 0 {
		return 1.0
	}
	return v
}
