package forecast

// ImpliedProbabilities converts three-way decimal odds into a fair
// probability triple by normalizing the raw reciprocals, stripping the
// bookmaker's overround. Returns nil when any odd is missing or zero:
// "no market signal" rather than an error.
func ImpliedProbabilities(odds *OddsSnapshot) *Triple {
	if odds == nil || odds.Home <= 0 || odds.Draw <= 0 || odds.Away <= 0 {
		return nil
	}

	rawHome := 1.0 / odds.Home
	rawDraw := 1.0 / odds.Draw
	rawAway := 1.0 / odds.Away
	total := rawHome + rawDraw + rawAway

	return &Triple{
		Home: rawHome / total,
		Draw: rawDraw / total,
		Away: rawAway / total,
	}
}
