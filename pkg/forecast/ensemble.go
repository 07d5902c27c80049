package forecast

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// EnsembleWeights is the single global blend-weight record. Each weight
// stays inside [WeightFloor, WeightCeiling] and the three always sum to
// exactly 1.000.
type EnsembleWeights struct {
	ID           int       `json:"-" column:"id" dbtype:"INTEGER" primary:"true"`
	Elo          float64   `json:"elo" column:"elo" dbtype:"REAL"`
	GoalModel    float64   `json:"goalModel" column:"goal_model" dbtype:"REAL"`
	Odds         float64   `json:"odds" column:"odds" dbtype:"REAL"`
	LastAdjusted time.Time `json:"lastAdjusted" column:"last_adjusted" dbtype:"DATETIME"`
}

func (w *EnsembleWeights) GetTableName() string {
	return "ensemble_weights"
}

func (w *EnsembleWeights) GetPrimaryKey() map[string]any {
	return map[string]any{"id": w.ID}
}

func (w *EnsembleWeights) BeforeSave() error {
	w.ID = 1
	return nil
}

// LoadWeights returns the current ensemble weights, seeding the
// configured defaults on first use.
func LoadWeights() *EnsembleWeights {
	w := &EnsembleWeights{ID: 1}
	if err := FindByPrimaryKey(w, w.GetPrimaryKey()); err == nil {
		return w
	}
	return &EnsembleWeights{
		ID:        1,
		Elo:       Config.DefaultEloWeight,
		GoalModel: Config.DefaultGoalModelWeight,
		Odds:      Config.DefaultOddsWeight,
	}
}

// WeightAdjustment is one entry in the append-only adjustment history
type WeightAdjustment struct {
	ID           string    `json:"id" column:"id" dbtype:"TEXT" primary:"true"`
	OldElo       float64   `json:"oldElo" column:"old_elo" dbtype:"REAL"`
	OldGoalModel float64   `json:"oldGoalModel" column:"old_goal_model" dbtype:"REAL"`
	OldOdds      float64   `json:"oldOdds" column:"old_odds" dbtype:"REAL"`
	NewElo       float64   `json:"newElo" column:"new_elo" dbtype:"REAL"`
	NewGoalModel float64   `json:"newGoalModel" column:"new_goal_model" dbtype:"REAL"`
	NewOdds      float64   `json:"newOdds" column:"new_odds" dbtype:"REAL"`
	Reasons      string    `json:"reasons" column:"reasons" dbtype:"TEXT"`
	CreatedAt    time.Time `json:"createdAt" column:"created_at" dbtype:"DATETIME" index:"true"`
}

func (a *WeightAdjustment) GetTableName() string {
	return "weight_adjustment"
}

func (a *WeightAdjustment) GetPrimaryKey() map[string]any {
	return map[string]any{"id": a.ID}
}

func (a *WeightAdjustment) BeforeSave() error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	return nil
}

// ComponentBreakdown preserves each signal's standalone triple inside a
// prediction for auditing and per-component evaluation. Odds is nil
// when no market was available.
type ComponentBreakdown struct {
	Elo       Triple  `json:"elo"`
	GoalModel Triple  `json:"goalModel"`
	Odds      *Triple `json:"odds,omitempty"`
}

// PredictionRecord is the pipeline's primary output artifact for one
// fixture. Created once per period; never mutated afterward.
type PredictionRecord struct {
	FixtureID        string             `json:"fixtureId"`
	League           string             `json:"league"`
	HomeTeam         string             `json:"homeTeam"`
	AwayTeam         string             `json:"awayTeam"`
	Kickoff          time.Time          `json:"kickoff"`
	HomeWinProb      float64            `json:"homeWinProb"`
	DrawProb         float64            `json:"drawProb"`
	AwayWinProb      float64            `json:"awayWinProb"`
	PredictedScore   string             `json:"predictedScore"`
	PredictedOutcome string             `json:"predictedOutcome"`
	Confidence       float64            `json:"confidence"`
	BothTeamsToScore float64            `json:"bothTeamsToScore"`
	Over2p5          float64            `json:"over2p5"`
	Components       ComponentBreakdown `json:"componentBreakdown"`
}

// Probabilities returns the blended triple of a prediction
func (p *PredictionRecord) Probabilities() Triple {
	return Triple{Home: p.HomeWinProb, Draw: p.DrawProb, Away: p.AwayWinProb}
}

// BlendPrediction folds the component triples into one calibrated
// distribution and emits the PredictionRecord.
//
// When odds are absent the odds weight is redistributed between the Elo
// and Goal Model signals in proportion to their own weights, so the
// blend still sums to one. After blending, a probability floor keeps
// every outcome visible downstream, and a final rounding-correction
// step guarantees the three probabilities sum to exactly 1.000.
func BlendPrediction(m *MatchRecord, eloTriple, goalTriple Triple, oddsTriple *Triple, forecast *GoalForecast, weights *EnsembleWeights) *PredictionRecord {
	wElo, wGoal, wOdds := weights.Elo, weights.GoalModel, weights.Odds
	if oddsTriple == nil {
		share := wElo + wGoal
		if share > 0 {
			wElo += wOdds * wElo / share
			wGoal += wOdds * wGoal / share
		} else {
			wElo, wGoal = 0.5, 0.5
		}
		wOdds = 0
	}

	blended := Triple{
		Home: eloTriple.Home*wElo + goalTriple.Home*wGoal,
		Draw: eloTriple.Draw*wElo + goalTriple.Draw*wGoal,
		Away: eloTriple.Away*wElo + goalTriple.Away*wGoal,
	}
	if oddsTriple != nil {
		blended.Home += oddsTriple.Home * wOdds
		blended.Draw += oddsTriple.Draw * wOdds
		blended.Away += oddsTriple.Away * wOdds
	}

	blended = applyProbabilityFloor(blended.Normalized(), Config.ProbabilityFloor)
	blended = blended.RoundedExact(3)

	outcome := blended.ArgMax()
	confidence := math.Min(blended.Of(outcome), Config.ConfidenceCap)

	scoreH, scoreA := forecast.MostLikelyScoreFor(outcome)

	return &PredictionRecord{
		FixtureID:        m.FixtureID,
		League:           m.League,
		HomeTeam:         m.HomeTeam,
		AwayTeam:         m.AwayTeam,
		Kickoff:          m.Kickoff,
		HomeWinProb:      blended.Home,
		DrawProb:         blended.Draw,
		AwayWinProb:      blended.Away,
		PredictedScore:   fmt.Sprintf("%d-%d", scoreH, scoreA),
		PredictedOutcome: outcome,
		Confidence:       confidence,
		BothTeamsToScore: forecast.BothTeamsToScore,
		Over2p5:          forecast.Over2p5,
		Components: ComponentBreakdown{
			Elo:       eloTriple,
			GoalModel: goalTriple,
			Odds:      oddsTriple,
		},
	}
}

// applyProbabilityFloor lifts every term below the floor up to it, so
// no outcome is ever shown as zero confidence. The deficit is taken
// from the terms above the floor in proportion to their headroom over
// it, which can never drag a donor below the floor itself.
func applyProbabilityFloor(t Triple, floor float64) Triple {
	probs := []float64{t.Home, t.Draw, t.Away}

	deficit := 0.0
	headroom := 0.0
	for _, p := range probs {
		if p < floor {
			deficit += floor - p
		} else {
			headroom += p - floor
		}
	}
	if deficit == 0 || headroom <= 0 {
		return t
	}

	for i, p := range probs {
		if p < floor {
			probs[i] = floor
		} else {
			probs[i] = p - deficit*(p-floor)/headroom
		}
	}
	return Triple{Home: probs[0], Draw: probs[1], Away: probs[2]}
}
