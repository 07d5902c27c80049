package forecast

import (
	"fmt"
	"math"
	"time"
)

// TeamRating is the persisted Elo rating for a single team. Created on
// first observation, mutated after every finished match, never deleted.
// Ratings are unbounded; drift over seasons is expected.
type TeamRating struct {
	TeamID    string    `json:"teamId" column:"team_id" dbtype:"TEXT NOT NULL" primary:"true" index:"true"`
	Rating    float64   `json:"rating" column:"rating" dbtype:"REAL DEFAULT 1500"`
	League    string    `json:"league" column:"league" dbtype:"TEXT" index:"true"`
	UpdatedAt time.Time `json:"updatedAt" column:"updated_at" dbtype:"DATETIME"`
}

func (t *TeamRating) GetTableName() string {
	return "team_rating"
}

func (t *TeamRating) GetPrimaryKey() map[string]any {
	return map[string]any{"team_id": t.TeamID}
}

func (t *TeamRating) BeforeSave() error {
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// GetTeamRating loads a team's rating, seeding an unknown team at the
// default rating. Seeding is not an error condition.
func GetTeamRating(teamID, league string) (*TeamRating, error) {
	rating := &TeamRating{TeamID: teamID}
	err := FindByPrimaryKey(rating, rating.GetPrimaryKey())
	if err == nil {
		return rating, nil
	}
	return &TeamRating{
		TeamID: teamID,
		Rating: Config.EloDefaultRating,
		League: league,
	}, nil
}

// EloExpectation is the classic logistic expectation of a beating b
func EloExpectation(a, b float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (b-a)/400.0))
}

// EloPredict converts two ratings into a home/draw/away triple. The
// home side gets the configured home-field advantage; the draw is
// modeled separately as a linear decay in the adjusted rating gap, and
// the remaining mass is split in proportion to the expectation scores.
func EloPredict(homeRating, awayRating float64) Triple {
	adjustedHome := homeRating + Config.EloHomeAdvantage
	expectedHome := EloExpectation(adjustedHome, awayRating)
	expectedAway := 1.0 - expectedHome

	gap := math.Abs(adjustedHome - awayRating)
	drawProb := Config.EloDrawBase - gap*Config.EloDrawDecay
	if drawProb < Config.EloDrawFloor {
		drawProb = Config.EloDrawFloor
	}

	remaining := 1.0 - drawProb
	t := Triple{
		Home: expectedHome * remaining,
		Draw: drawProb,
		Away: expectedAway * remaining,
	}
	return t.Normalized().RoundedExact(4)
}

// MarginMultiplier scales the K-factor by margin of victory: blowouts
// move ratings further than one-goal results.
func MarginMultiplier(goalDiff int) float64 {
	if goalDiff < 0 {
		goalDiff = -goalDiff
	}
	if goalDiff <= 1 {
		return 1.0
	}
	return 1.0 + math.Sqrt(float64(goalDiff-1))*0.5
}

// EloUpdate applies a finished match to both ratings symmetrically and
// returns the (rounded) rating deltas. Deterministic and replayable
// given the same inputs.
func EloUpdate(home, away *TeamRating, homeGoals, awayGoals int) (float64, float64) {
	expectedHome := EloExpectation(home.Rating+Config.EloHomeAdvantage, away.Rating)
	expectedAway := 1.0 - expectedHome

	var actualHome, actualAway float64
	switch {
	case homeGoals > awayGoals:
		actualHome, actualAway = 1.0, 0.0
	case homeGoals < awayGoals:
		actualHome, actualAway = 0.0, 1.0
	default:
		actualHome, actualAway = 0.5, 0.5
	}

	effectiveK := Config.EloBaseK * MarginMultiplier(homeGoals-awayGoals)

	newHome := math.Round(home.Rating + effectiveK*(actualHome-expectedHome))
	newAway := math.Round(away.Rating + effectiveK*(actualAway-expectedAway))

	deltaHome := newHome - home.Rating
	deltaAway := newAway - away.Rating
	home.Rating = newHome
	away.Rating = newAway
	return deltaHome, deltaAway
}

// ApplyPeriodResults runs the Elo update for every finished match in a
// period and persists the new ratings. Each rating change is recorded
// in the change log.
func ApplyPeriodResults(season, period string, matches []*MatchRecord, results []*ResultRecord) (int, error) {
	resultsByFixture := make(map[string]*ResultRecord, len(results))
	for _, r := range results {
		resultsByFixture[r.FixtureID] = r
	}

	updated := 0
	for _, m := range matches {
		result, ok := resultsByFixture[m.FixtureID]
		if !ok || !result.IsFinished() {
			continue
		}

		home, err := GetTeamRating(m.HomeTeam, m.League)
		if err != nil {
			return updated, err
		}
		away, err := GetTeamRating(m.AwayTeam, m.League)
		if err != nil {
			return updated, err
		}

		deltaHome, deltaAway := EloUpdate(home, away, result.HomeGoals, result.AwayGoals)

		if err := BulkSave([]Persistable{home, away}); err != nil {
			return updated, fmt.Errorf("failed to save ratings for %s: %w", m.FixtureID, err)
		}

		AppendChange(ChangeRatingUpdate, season, period, fmt.Sprintf(
			"%s %s %s: %s %+0.0f -> %0.0f, %s %+0.0f -> %0.0f",
			m.FixtureID, result.ScoreString(), result.Outcome(),
			m.HomeTeam, deltaHome, home.Rating,
			m.AwayTeam, deltaAway, away.Rating))
		updated++
	}

	return updated, nil
}
