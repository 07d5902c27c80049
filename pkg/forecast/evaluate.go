package forecast

import (
	"math"
	"os"
	"path/filepath"
	"time"
)

// MatchEvaluation scores one prediction against its finished result
type MatchEvaluation struct {
	FixtureID        string  `json:"fixtureId"`
	League           string  `json:"league"`
	PredictedOutcome string  `json:"predictedOutcome"`
	ActualOutcome    string  `json:"actualOutcome"`
	PredictedScore   string  `json:"predictedScore"`
	ActualScore      string  `json:"actualScore"`
	Confidence       float64 `json:"confidence"`
	OutcomeCorrect   bool    `json:"outcomeCorrect"`
	ScoreCorrect     bool    `json:"scoreCorrect"`
	LogLoss          float64 `json:"logLoss"`
	BrierScore       float64 `json:"brierScore"`
}

// EvaluationSummary aggregates scoring across a set of matches
type EvaluationSummary struct {
	Matches         int     `json:"matches"`
	OutcomeAccuracy float64 `json:"outcomeAccuracy"`
	ScoreAccuracy   float64 `json:"scoreAccuracy"`
	AvgLogLoss      float64 `json:"avgLogLoss"`
	AvgBrierScore   float64 `json:"avgBrierScore"`
}

// ComponentAccuracy measures one signal's standalone skill: its own
// argmax outcome compared to reality, independent of the ensemble.
type ComponentAccuracy struct {
	Matches  int     `json:"matches"`
	Correct  int     `json:"correct"`
	Accuracy float64 `json:"accuracy"`
}

// CalibrationBin records mean stated confidence against observed
// accuracy for one confidence band.
type CalibrationBin struct {
	Low              float64 `json:"low"`
	High             float64 `json:"high"`
	Matches          int     `json:"matches"`
	MeanConfidence   float64 `json:"meanConfidence"`
	ObservedAccuracy float64 `json:"observedAccuracy"`
}

// EvaluationRecord is the per-period evaluation artifact. Written once;
// re-running evaluation for an evaluated period is skipped upstream.
type EvaluationRecord struct {
	Period       string                        `json:"period"`
	Season       string                        `json:"season"`
	PerMatch     []*MatchEvaluation            `json:"perMatch"`
	Summary      EvaluationSummary             `json:"summary"`
	PerComponent map[string]*ComponentAccuracy `json:"perComponentAccuracy"`
	PerLeague    map[string]*EvaluationSummary `json:"perLeagueSummary"`
	Calibration  []*CalibrationBin             `json:"calibrationBins"`
	CreatedAt    time.Time                     `json:"createdAt"`
}

// Component names used in per-component accuracy maps
const (
	ComponentElo       = "elo"
	ComponentGoalModel = "goalModel"
	ComponentOdds      = "odds"
)

// logLoss is the proper scoring rule -ln(p) with the probability of the
// realized outcome clamped away from 0 and 1, so a miscalibrated
// certain prediction cannot produce infinite loss.
func logLoss(probOfActual float64) float64 {
	p := clamp(probOfActual, Config.LogLossClampMin, Config.LogLossClampMax)
	return -math.Log(p)
}

// brierScore sums squared distances between the predicted triple and
// the realized outcome indicator.
func brierScore(predicted Triple, actual string) float64 {
	score := 0.0
	for _, outcome := range []string{OutcomeHome, OutcomeDraw, OutcomeAway} {
		indicator := 0.0
		if outcome == actual {
			indicator = 1.0
		}
		diff := predicted.Of(outcome) - indicator
		score += diff * diff
	}
	return score
}

// EvaluatePeriod scores a period's predictions against its finished
// results. Predictions without a finished result are excluded, not
// treated as errors.
func EvaluatePeriod(season, period string, predictions []*PredictionRecord, results []*ResultRecord) *EvaluationRecord {
	resultsByFixture := make(map[string]*ResultRecord, len(results))
	for _, r := range results {
		if r.IsFinished() {
			resultsByFixture[r.FixtureID] = r
		}
	}

	record := &EvaluationRecord{
		Period:       period,
		Season:       season,
		PerComponent: map[string]*ComponentAccuracy{},
		PerLeague:    map[string]*EvaluationSummary{},
		CreatedAt:    time.Now().UTC(),
	}

	bins := make([]*CalibrationBin, Config.CalibrationBins)
	binWidth := 1.0 / float64(Config.CalibrationBins)
	for i := range bins {
		bins[i] = &CalibrationBin{Low: float64(i) * binWidth, High: float64(i+1) * binWidth}
	}

	leagueTotals := map[string]*EvaluationSummary{}

	for _, pred := range predictions {
		result, ok := resultsByFixture[pred.FixtureID]
		if !ok {
			continue
		}

		actual := result.Outcome()
		triple := pred.Probabilities()

		eval := &MatchEvaluation{
			FixtureID:        pred.FixtureID,
			League:           pred.League,
			PredictedOutcome: pred.PredictedOutcome,
			ActualOutcome:    actual,
			PredictedScore:   pred.PredictedScore,
			ActualScore:      result.ScoreString(),
			Confidence:       pred.Confidence,
			OutcomeCorrect:   pred.PredictedOutcome == actual,
			ScoreCorrect:     pred.PredictedScore == result.ScoreString(),
			LogLoss:          logLoss(triple.Of(actual)),
			BrierScore:       brierScore(triple, actual),
		}
		record.PerMatch = append(record.PerMatch, eval)

		accumulateSummary(&record.Summary, eval)

		league := leagueTotals[pred.League]
		if league == nil {
			league = &EvaluationSummary{}
			leagueTotals[pred.League] = league
		}
		accumulateSummary(league, eval)

		// Each signal's own argmax, regardless of what the ensemble said
		scoreComponent(record.PerComponent, ComponentElo, pred.Components.Elo, actual)
		scoreComponent(record.PerComponent, ComponentGoalModel, pred.Components.GoalModel, actual)
		if pred.Components.Odds != nil {
			scoreComponent(record.PerComponent, ComponentOdds, *pred.Components.Odds, actual)
		}

		bin := confidenceBin(bins, pred.Confidence)
		bin.Matches++
		bin.MeanConfidence += pred.Confidence
		if eval.OutcomeCorrect {
			bin.ObservedAccuracy++
		}
	}

	finalizeSummary(&record.Summary)
	for league, summary := range leagueTotals {
		finalizeSummary(summary)
		record.PerLeague[league] = summary
	}
	for _, comp := range record.PerComponent {
		if comp.Matches > 0 {
			comp.Accuracy = float64(comp.Correct) / float64(comp.Matches)
		}
	}
	for _, bin := range bins {
		if bin.Matches > 0 {
			bin.MeanConfidence /= float64(bin.Matches)
			bin.ObservedAccuracy /= float64(bin.Matches)
		}
	}
	record.Calibration = bins

	return record
}

// accumulateSummary abuses the summary fields as running totals until
// finalizeSummary divides them out.
func accumulateSummary(s *EvaluationSummary, eval *MatchEvaluation) {
	s.Matches++
	if eval.OutcomeCorrect {
		s.OutcomeAccuracy++
	}
	if eval.ScoreCorrect {
		s.ScoreAccuracy++
	}
	s.AvgLogLoss += eval.LogLoss
	s.AvgBrierScore += eval.BrierScore
}

func finalizeSummary(s *EvaluationSummary) {
	if s.Matches == 0 {
		return
	}
	n := float64(s.Matches)
	s.OutcomeAccuracy /= n
	s.ScoreAccuracy /= n
	s.AvgLogLoss /= n
	s.AvgBrierScore /= n
}

func scoreComponent(components map[string]*ComponentAccuracy, name string, triple Triple, actual string) {
	comp := components[name]
	if comp == nil {
		comp = &ComponentAccuracy{}
		components[name] = comp
	}
	comp.Matches++
	if triple.ArgMax() == actual {
		comp.Correct++
	}
}

func confidenceBin(bins []*CalibrationBin, confidence float64) *CalibrationBin {
	idx := int(confidence * float64(len(bins)))
	if idx >= len(bins) {
		idx = len(bins) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return bins[idx]
}

/////////////////////////////////////////////////////////////////////////
////// Evaluation artifact IO
/////////////////////////////////////////////////////////////////////////

// HasEvaluation reports whether a period's evaluation artifact already
// exists. Existence is the idempotency marker: an evaluated period is
// never re-derived.
func HasEvaluation(periodDir string) bool {
	_, err := os.Stat(filepath.Join(periodDir, EvaluationFile))
	return err == nil
}

// LoadEvaluation reads a period's evaluation.json
func LoadEvaluation(periodDir string) (*EvaluationRecord, error) {
	var record EvaluationRecord
	if err := readJSONFile(filepath.Join(periodDir, EvaluationFile), &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// WriteEvaluation writes a period's evaluation.json
func WriteEvaluation(periodDir string, record *EvaluationRecord) error {
	return writeJSONFile(filepath.Join(periodDir, EvaluationFile), record)
}
