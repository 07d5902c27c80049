package forecast

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"
)

// Outcome letters
const (
	OutcomeHome = "H"
	OutcomeDraw = "D"
	OutcomeAway = "A"
)

// Result statuses delivered by the external result syncer
const (
	StatusFinished  = "finished"
	StatusLive      = "live"
	StatusPostponed = "postponed"
)

// Artifact file names inside a period directory
const (
	MatchesFile     = "matches.json"
	PredictionsFile = "predictions.json"
	ResultsFile     = "results.json"
	EvaluationFile  = "evaluation.json"
)

// Triple is a home/draw/away probability distribution. Component models
// each produce one and the blender folds them into a final triple.
type Triple struct {
	Home float64 `json:"home"`
	Draw float64 `json:"draw"`
	Away float64 `json:"away"`
}

// Sum returns the total probability mass
func (t Triple) Sum() float64 {
	return t.Home + t.Draw + t.Away
}

// Normalized scales the triple so it sums to 1. A zero triple is
// returned unchanged.
func (t Triple) Normalized() Triple {
	s := t.Sum()
	if s <= 0 {
		return t
	}
	return Triple{Home: t.Home / s, Draw: t.Draw / s, Away: t.Away / s}
}

// RoundedExact rounds draw and away to the given number of decimal
// places and recomputes home as the remainder, so the rounded triple
// sums to exactly 1.000. Any residual rounding error lands in the home
// term.
func (t Triple) RoundedExact(places int) Triple {
	f := math.Pow(10, float64(places))
	d := math.Round(t.Draw*f) / f
	a := math.Round(t.Away*f) / f
	h := math.Round((1-d-a)*f) / f
	return Triple{Home: h, Draw: d, Away: a}
}

// ArgMax returns the most likely outcome letter. Ties resolve in the
// order H, D, A: home wins any tie, draw wins a tie against away only.
func (t Triple) ArgMax() string {
	if t.Home >= t.Draw && t.Home >= t.Away {
		return OutcomeHome
	}
	if t.Draw >= t.Away {
		return OutcomeDraw
	}
	return OutcomeAway
}

// Of returns the probability assigned to an outcome letter
func (t Triple) Of(outcome string) float64 {
	switch outcome {
	case OutcomeHome:
		return t.Home
	case OutcomeDraw:
		return t.Draw
	default:
		return t.Away
	}
}

// VenueRates carries a team's in-season per-game scoring and conceding
// rates, split by venue.
type VenueRates struct {
	HomePlayed          int     `json:"homePlayed"`
	AwayPlayed          int     `json:"awayPlayed"`
	HomeScoredPerGame   float64 `json:"homeScoredPerGame"`
	HomeConcededPerGame float64 `json:"homeConcededPerGame"`
	AwayScoredPerGame   float64 `json:"awayScoredPerGame"`
	AwayConcededPerGame float64 `json:"awayConcededPerGame"`
}

// StandingsSnapshot is the pre-match statistical context for a fixture:
// league-wide scoring baselines and per-team venue rates.
type StandingsSnapshot struct {
	LeagueAvgHomeGoals float64               `json:"leagueAvgHomeGoals"`
	LeagueAvgAwayGoals float64               `json:"leagueAvgAwayGoals"`
	Teams              map[string]VenueRates `json:"teams"`
}

// OddsSnapshot holds bookmaker decimal odds for the three outcomes.
// A zero value in any slot means no usable market signal.
type OddsSnapshot struct {
	Home float64 `json:"home"`
	Draw float64 `json:"draw"`
	Away float64 `json:"away"`
}

// MatchRecord is a single fixture's pre-match context. Immutable once
// ingested.
type MatchRecord struct {
	FixtureID string             `json:"fixtureId"`
	League    string             `json:"league"`
	HomeTeam  string             `json:"homeTeam"`
	AwayTeam  string             `json:"awayTeam"`
	Kickoff   time.Time          `json:"kickoff"`
	Standings *StandingsSnapshot `json:"standings,omitempty"`
	Odds      *OddsSnapshot      `json:"odds,omitempty"`
}

// ResultRecord is produced by the external result syncer. The pipeline
// only reads it.
type ResultRecord struct {
	FixtureID string `json:"fixtureId"`
	HomeGoals int    `json:"homeGoals"`
	AwayGoals int    `json:"awayGoals"`
	Status    string `json:"status"`
}

// IsFinished reports whether the result is usable for evaluation
func (r *ResultRecord) IsFinished() bool {
	return r.Status == StatusFinished
}

// Outcome derives the outcome letter from the final score
func (r *ResultRecord) Outcome() string {
	return OutcomeFromGoals(r.HomeGoals, r.AwayGoals)
}

// ScoreString renders the final score as "2-1"
func (r *ResultRecord) ScoreString() string {
	return fmt.Sprintf("%d-%d", r.HomeGoals, r.AwayGoals)
}

// OutcomeFromGoals returns "H", "D" or "A" from a goal comparison
func OutcomeFromGoals(homeGoals, awayGoals int) string {
	if homeGoals > awayGoals {
		return OutcomeHome
	}
	if homeGoals < awayGoals {
		return OutcomeAway
	}
	return OutcomeDraw
}

/////////////////////////////////////////////////////////////////////////
////// Period artifact IO
/////////////////////////////////////////////////////////////////////////

// SeasonDirName flattens a season id such as "2025/2026" into a name
// safe for the filesystem.
func SeasonDirName(season string) string {
	safe := make([]rune, 0, len(season))
	for _, r := range season {
		if r == '/' {
			r = '-'
		}
		safe = append(safe, r)
	}
	return string(safe)
}

// PeriodDir returns the artifact directory for a scheduling period
func PeriodDir(dataDir, season, period string) string {
	return filepath.Join(dataDir, SeasonDirName(season), period)
}

func readJSONFile(path string, target any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func writeJSONFile(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// LoadMatches reads a period's matches.json
func LoadMatches(periodDir string) ([]*MatchRecord, error) {
	var matches []*MatchRecord
	if err := readJSONFile(filepath.Join(periodDir, MatchesFile), &matches); err != nil {
		return nil, err
	}
	return matches, nil
}

// LoadResults reads a period's results.json. A missing file yields an
// empty slice because results arrive asynchronously.
func LoadResults(periodDir string) ([]*ResultRecord, error) {
	var results []*ResultRecord
	err := readJSONFile(filepath.Join(periodDir, ResultsFile), &results)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return results, nil
}

// LoadPredictions reads a period's predictions.json
func LoadPredictions(periodDir string) ([]*PredictionRecord, error) {
	var preds []*PredictionRecord
	if err := readJSONFile(filepath.Join(periodDir, PredictionsFile), &preds); err != nil {
		return nil, err
	}
	return preds, nil
}

// WriteMatches writes a period's matches.json
func WriteMatches(periodDir string, matches []*MatchRecord) error {
	return writeJSONFile(filepath.Join(periodDir, MatchesFile), matches)
}

// WriteResults writes a period's results.json
func WriteResults(periodDir string, results []*ResultRecord) error {
	return writeJSONFile(filepath.Join(periodDir, ResultsFile), results)
}

// WritePredictions writes a period's predictions.json
func WritePredictions(periodDir string, preds []*PredictionRecord) error {
	return writeJSONFile(filepath.Join(periodDir, PredictionsFile), preds)
}
