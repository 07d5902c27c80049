package forecast

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/daxtrader54/mypredictify/internal/logger"
)

// PeriodPerformance is one row of the performance log: the summary of a
// period's evaluation, kept so the weight calibrator can consume a
// rolling window without re-reading artifact files.
type PeriodPerformance struct {
	Season            string    `json:"season" column:"season" dbtype:"TEXT NOT NULL" primary:"true" index:"true"`
	Period            string    `json:"period" column:"period" dbtype:"TEXT NOT NULL" primary:"true"`
	Matches           int       `json:"matches" column:"matches" dbtype:"INTEGER DEFAULT 0"`
	OutcomeAccuracy   float64   `json:"outcomeAccuracy" column:"outcome_accuracy" dbtype:"REAL DEFAULT 0"`
	ScoreAccuracy     float64   `json:"scoreAccuracy" column:"score_accuracy" dbtype:"REAL DEFAULT 0"`
	AvgLogLoss        float64   `json:"avgLogLoss" column:"avg_log_loss" dbtype:"REAL DEFAULT 0"`
	AvgBrierScore     float64   `json:"avgBrierScore" column:"avg_brier_score" dbtype:"REAL DEFAULT 0"`
	EloMatches        int       `json:"eloMatches" column:"elo_matches" dbtype:"INTEGER DEFAULT 0"`
	EloAccuracy       float64   `json:"eloAccuracy" column:"elo_accuracy" dbtype:"REAL DEFAULT 0"`
	GoalModelMatches  int       `json:"goalModelMatches" column:"goal_model_matches" dbtype:"INTEGER DEFAULT 0"`
	GoalModelAccuracy float64   `json:"goalModelAccuracy" column:"goal_model_accuracy" dbtype:"REAL DEFAULT 0"`
	OddsMatches       int       `json:"oddsMatches" column:"odds_matches" dbtype:"INTEGER DEFAULT 0"`
	OddsAccuracy      float64   `json:"oddsAccuracy" column:"odds_accuracy" dbtype:"REAL DEFAULT 0"`
	EvaluatedAt       time.Time `json:"evaluatedAt" column:"evaluated_at" dbtype:"DATETIME" index:"true"`
}

func (p *PeriodPerformance) GetTableName() string {
	return "period_performance"
}

func (p *PeriodPerformance) GetPrimaryKey() map[string]any {
	return map[string]any{"season": p.Season, "period": p.Period}
}

func (p *PeriodPerformance) BeforeSave() error {
	if p.EvaluatedAt.IsZero() {
		p.EvaluatedAt = time.Now().UTC()
	}
	return nil
}

// RecordPeriodPerformance upserts a period's evaluation summary into
// the performance log.
func RecordPeriodPerformance(record *EvaluationRecord) error {
	row := &PeriodPerformance{
		Season:          record.Season,
		Period:          record.Period,
		Matches:         record.Summary.Matches,
		OutcomeAccuracy: record.Summary.OutcomeAccuracy,
		ScoreAccuracy:   record.Summary.ScoreAccuracy,
		AvgLogLoss:      record.Summary.AvgLogLoss,
		AvgBrierScore:   record.Summary.AvgBrierScore,
		EvaluatedAt:     record.CreatedAt,
	}
	if comp := record.PerComponent[ComponentElo]; comp != nil {
		row.EloMatches = comp.Matches
		row.EloAccuracy = comp.Accuracy
	}
	if comp := record.PerComponent[ComponentGoalModel]; comp != nil {
		row.GoalModelMatches = comp.Matches
		row.GoalModelAccuracy = comp.Accuracy
	}
	if comp := record.PerComponent[ComponentOdds]; comp != nil {
		row.OddsMatches = comp.Matches
		row.OddsAccuracy = comp.Accuracy
	}
	return Save(row)
}

// componentWindow is a component's match-count-weighted accuracy across
// the rolling window. present is false when the component contributed
// no evaluated matches, in which case it receives no adjustment at all.
type componentWindow struct {
	present bool
	matches int
	mean    float64
}

func windowAccuracy(rows []*PeriodPerformance, matches func(*PeriodPerformance) int, accuracy func(*PeriodPerformance) float64) componentWindow {
	totalMatches := 0
	weighted := 0.0
	for _, row := range rows {
		n := matches(row)
		totalMatches += n
		weighted += accuracy(row) * float64(n)
	}
	if totalMatches == 0 {
		return componentWindow{}
	}
	return componentWindow{present: true, matches: totalMatches, mean: weighted / float64(totalMatches)}
}

// AdjustWeights nudges the ensemble weights toward whichever signal has
// been most accurate over the rolling evaluation window. The nudge is
// deliberately timid: the per-cycle delta is clamped so the system
// cannot chase recent noise.
//
// Returns false with a reason when the window holds too little history
// to adjust from.
func AdjustWeights(season string) (bool, string, error) {
	raw, err := FindWhere(&PeriodPerformance{},
		"season = ? ORDER BY evaluated_at DESC LIMIT ?", season, Config.AdjustmentWindow)
	if err != nil {
		return false, "", fmt.Errorf("failed to load performance window: %w", err)
	}

	rows := make([]*PeriodPerformance, 0, len(raw))
	for _, r := range raw {
		if row, ok := r.(*PeriodPerformance); ok {
			rows = append(rows, row)
		}
	}

	if len(rows) < Config.MinPeriodsForAdjustment {
		return false, fmt.Sprintf("only %d evaluated periods in window, need %d",
			len(rows), Config.MinPeriodsForAdjustment), nil
	}

	overall := windowAccuracy(rows,
		func(p *PeriodPerformance) int { return p.Matches },
		func(p *PeriodPerformance) float64 { return p.OutcomeAccuracy })
	if !overall.present {
		return false, "no evaluated matches in window", nil
	}

	components := map[string]componentWindow{
		ComponentElo: windowAccuracy(rows,
			func(p *PeriodPerformance) int { return p.EloMatches },
			func(p *PeriodPerformance) float64 { return p.EloAccuracy }),
		ComponentGoalModel: windowAccuracy(rows,
			func(p *PeriodPerformance) int { return p.GoalModelMatches },
			func(p *PeriodPerformance) float64 { return p.GoalModelAccuracy }),
		ComponentOdds: windowAccuracy(rows,
			func(p *PeriodPerformance) int { return p.OddsMatches },
			func(p *PeriodPerformance) float64 { return p.OddsAccuracy }),
	}

	weights := LoadWeights()
	old := *weights

	var reasons []string
	delta := func(name string) float64 {
		comp := components[name]
		if !comp.present {
			reasons = append(reasons, fmt.Sprintf("%s: no evaluated matches, unchanged", name))
			return 0
		}
		d := (comp.mean - overall.mean) * Config.AdjustmentGain
		clamped := clamp(d, -Config.MaxWeightDelta, Config.MaxWeightDelta)
		reasons = append(reasons, fmt.Sprintf("%s: window accuracy %.3f vs overall %.3f, delta %+.3f",
			name, comp.mean, overall.mean, clamped))
		return clamped
	}

	weights.Elo += delta(ComponentElo)
	weights.GoalModel += delta(ComponentGoalModel)
	weights.Odds += delta(ComponentOdds)

	normalizeWeights(weights)
	weights.LastAdjusted = time.Now().UTC()

	if err := Save(weights); err != nil {
		return false, "", fmt.Errorf("failed to save weights: %w", err)
	}

	reason := strings.Join(reasons, "; ")
	history := &WeightAdjustment{
		OldElo:       old.Elo,
		OldGoalModel: old.GoalModel,
		OldOdds:      old.Odds,
		NewElo:       weights.Elo,
		NewGoalModel: weights.GoalModel,
		NewOdds:      weights.Odds,
		Reasons:      reason,
	}
	if err := Save(history); err != nil {
		logger.Warn("Failed to append weight adjustment history", err)
	}
	AppendChange(ChangeWeightAdjustment, season, "", fmt.Sprintf(
		"elo %.3f->%.3f goalModel %.3f->%.3f odds %.3f->%.3f (%s)",
		old.Elo, weights.Elo, old.GoalModel, weights.GoalModel, old.Odds, weights.Odds, reason))

	logger.Info("Adjusted ensemble weights", reason)
	return true, reason, nil
}

// normalizeWeights restores both invariants after the deltas land:
// every weight inside [WeightFloor, WeightCeiling] and the triple
// summing to exactly 1.000. The residual from clamping is spread evenly
// over the weights that still have room, so a weight pinned at a bound
// stays pinned. Elo and goal model are rounded to three decimals and
// odds is computed as the remainder.
func normalizeWeights(w *EnsembleWeights) {
	vals := []float64{w.Elo, w.GoalModel, w.Odds}
	for i := range vals {
		vals[i] = clamp(vals[i], Config.WeightFloor, Config.WeightCeiling)
	}
	for iter := 0; iter < 8; iter++ {
		diff := 1.0 - (vals[0] + vals[1] + vals[2])
		if math.Abs(diff) < 1e-9 {
			break
		}
		var room []int
		for i, v := range vals {
			if (diff > 0 && v < Config.WeightCeiling-1e-12) ||
				(diff < 0 && v > Config.WeightFloor+1e-12) {
				room = append(room, i)
			}
		}
		if len(room) == 0 {
			break
		}
		per := diff / float64(len(room))
		for _, i := range room {
			vals[i] = clamp(vals[i]+per, Config.WeightFloor, Config.WeightCeiling)
		}
	}

	w.Elo = math.Round(vals[0]*1000) / 1000
	w.GoalModel = math.Round(vals[1]*1000) / 1000
	w.Odds = math.Round((1-w.Elo-w.GoalModel)*1000) / 1000
}
