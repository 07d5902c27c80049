package forecast

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/daxtrader54/mypredictify/internal/logger"
)

// LeagueBias is the systematic gap between what the rate model expects
// and what a league actually produces, measured separately for home and
// away goals. A positive bias means the model overestimates, so the
// goal model subtracts it before clamping.
type LeagueBias struct {
	League          string    `json:"league" column:"league" dbtype:"TEXT NOT NULL" primary:"true"`
	HomeBias        float64   `json:"homeBias" column:"home_bias" dbtype:"REAL DEFAULT 0"`
	AwayBias        float64   `json:"awayBias" column:"away_bias" dbtype:"REAL DEFAULT 0"`
	MatchesAnalyzed int       `json:"matchesAnalyzed" column:"matches_analyzed" dbtype:"INTEGER DEFAULT 0"`
	UpdatedAt       time.Time `json:"updatedAt" column:"updated_at" dbtype:"DATETIME"`
}

func (b *LeagueBias) GetTableName() string {
	return "league_bias"
}

func (b *LeagueBias) GetPrimaryKey() map[string]any {
	return map[string]any{"league": b.League}
}

func (b *LeagueBias) BeforeSave() error {
	b.UpdatedAt = time.Now().UTC()
	return nil
}

// LeagueBiasSnapshot is an immutable copy of a league's bias taken at
// each recalibration, so drift over a season can be inspected later.
type LeagueBiasSnapshot struct {
	ID              string    `json:"id" column:"id" dbtype:"TEXT NOT NULL" primary:"true"`
	League          string    `json:"league" column:"league" dbtype:"TEXT NOT NULL" index:"true"`
	Season          string    `json:"season" column:"season" dbtype:"TEXT"`
	HomeBias        float64   `json:"homeBias" column:"home_bias" dbtype:"REAL DEFAULT 0"`
	AwayBias        float64   `json:"awayBias" column:"away_bias" dbtype:"REAL DEFAULT 0"`
	MatchesAnalyzed int       `json:"matchesAnalyzed" column:"matches_analyzed" dbtype:"INTEGER DEFAULT 0"`
	CreatedAt       time.Time `json:"createdAt" column:"created_at" dbtype:"DATETIME" index:"true"`
}

func (s *LeagueBiasSnapshot) GetTableName() string {
	return "league_bias_snapshots"
}

func (s *LeagueBiasSnapshot) GetPrimaryKey() map[string]any {
	return map[string]any{"id": s.ID}
}

func (s *LeagueBiasSnapshot) BeforeSave() error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	return nil
}

// GetLeagueBias returns the stored bias for a league, or nil when the
// league has never been calibrated.
func GetLeagueBias(league string) *LeagueBias {
	bias := &LeagueBias{}
	if err := FindByPrimaryKey(bias, map[string]any{"league": league}); err != nil {
		return nil
	}
	return bias
}

type biasAccumulator struct {
	matches       int
	predictedHome float64
	predictedAway float64
	actualHome    float64
	actualAway    float64
}

// CalibrateBias re-measures every league's bias from the season's
// completed periods. It replays the pure rate model (no market blend,
// no existing bias correction) against the actual scores, so each
// recalibration measures the model's raw error rather than compounding
// previous corrections.
func CalibrateBias(season string) (int, error) {
	seasonDir := filepath.Join(Config.DataDir, SeasonDirName(season))
	entries, err := os.ReadDir(seasonDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read season directory: %w", err)
	}

	periods := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			periods = append(periods, entry.Name())
		}
	}
	sort.Strings(periods)

	accumulators := map[string]*biasAccumulator{}
	for _, period := range periods {
		dir := filepath.Join(seasonDir, period)
		matches, err := LoadMatches(dir)
		if err != nil || len(matches) == 0 {
			continue
		}
		results, err := LoadResults(dir)
		if err != nil || len(results) == 0 {
			continue
		}
		byFixture := map[string]*ResultRecord{}
		for _, r := range results {
			byFixture[r.FixtureID] = r
		}

		for _, m := range matches {
			result := byFixture[m.FixtureID]
			if result == nil || !result.IsFinished() {
				continue
			}
			leagueHome, leagueAway := leagueAverages(m.Standings)
			xgHome, xgAway, fellBack := rateBasedExpectedGoals(m, leagueHome, leagueAway, 0, 0)
			if fellBack {
				// Without venue stats the rate model says nothing
				// about this league's scoring level.
				continue
			}
			acc := accumulators[m.League]
			if acc == nil {
				acc = &biasAccumulator{}
				accumulators[m.League] = acc
			}
			acc.matches++
			acc.predictedHome += xgHome
			acc.predictedAway += xgAway
			acc.actualHome += float64(result.HomeGoals)
			acc.actualAway += float64(result.AwayGoals)
		}
	}

	calibrated := 0
	for league, acc := range accumulators {
		if acc.matches < Config.MinMatchesForBias {
			logger.Debug("Skipping bias calibration for league", league,
				fmt.Sprintf("%d matches, need %d", acc.matches, Config.MinMatchesForBias))
			continue
		}
		n := float64(acc.matches)
		bias := &LeagueBias{
			League:          league,
			HomeBias:        (acc.predictedHome - acc.actualHome) / n,
			AwayBias:        (acc.predictedAway - acc.actualAway) / n,
			MatchesAnalyzed: acc.matches,
		}
		if err := Save(bias); err != nil {
			logger.Warn("Failed to save league bias", league, err)
			continue
		}
		snapshot := &LeagueBiasSnapshot{
			League:          league,
			Season:          season,
			HomeBias:        bias.HomeBias,
			AwayBias:        bias.AwayBias,
			MatchesAnalyzed: bias.MatchesAnalyzed,
		}
		if err := Save(snapshot); err != nil {
			logger.Warn("Failed to save league bias snapshot", league, err)
		}
		AppendChange(ChangeBiasCalibration, season, "", fmt.Sprintf(
			"%s: home %+.3f away %+.3f over %d matches",
			league, bias.HomeBias, bias.AwayBias, bias.MatchesAnalyzed))
		calibrated++
	}

	if calibrated > 0 {
		logger.Info("Calibrated league bias", fmt.Sprintf("%d leagues", calibrated))
	}
	return calibrated, nil
}
