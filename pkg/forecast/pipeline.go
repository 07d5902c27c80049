package forecast

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/daxtrader54/mypredictify/internal/logger"
)

// Period lifecycle states as detected from the artifact files on disk
const (
	StateEmpty           = "empty"
	StateHasMatches      = "has-matches"
	StateHasPredictions  = "has-predictions"
	StateResultsPartial  = "has-results(partial)"
	StateResultsComplete = "has-results(complete)"
	StateHasEvaluation   = "has-evaluation"
)

// PeriodState is a scheduling period's on-disk state at scan time. The
// orchestrator derives all triggers from it rather than keeping state
// of its own, so a crashed run resumes cleanly from the files.
type PeriodState struct {
	Period         string
	Dir            string
	Matches        []*MatchRecord
	Results        []*ResultRecord
	HasPredictions bool
	HasEvaluation  bool
	FirstKickoff   time.Time
	LastKickoff    time.Time
}

// State classifies the period into the pipeline lifecycle
func (p *PeriodState) State() string {
	switch {
	case len(p.Matches) == 0:
		return StateEmpty
	case p.HasEvaluation:
		return StateHasEvaluation
	case p.finishedResultCount() > 0:
		if p.Coverage() >= 1.0 {
			return StateResultsComplete
		}
		return StateResultsPartial
	case p.HasPredictions:
		return StateHasPredictions
	default:
		return StateHasMatches
	}
}

func (p *PeriodState) finishedResultCount() int {
	n := 0
	for _, r := range p.Results {
		if r.IsFinished() {
			n++
		}
	}
	return n
}

// Coverage is the fraction of the period's fixtures that have a
// finished result.
func (p *PeriodState) Coverage() float64 {
	if len(p.Matches) == 0 {
		return 0
	}
	return float64(p.finishedResultCount()) / float64(len(p.Matches))
}

// ScanPeriods reads every period directory under the season and builds
// its state. Periods sort lexically, which matches chronological order
// for zero-padded gameweek names.
func ScanPeriods(season string) ([]*PeriodState, error) {
	seasonDir := filepath.Join(Config.DataDir, SeasonDirName(season))
	entries, err := os.ReadDir(seasonDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read season directory %s: %w", seasonDir, err)
	}

	var periods []*PeriodState
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(seasonDir, entry.Name())
		state := &PeriodState{Period: entry.Name(), Dir: dir}

		if state.Matches, err = LoadMatches(dir); err != nil {
			logger.Warn("Skipping period with unreadable fixtures", entry.Name(), err)
			continue
		}
		if state.Results, err = LoadResults(dir); err != nil {
			logger.Warn("Ignoring unreadable results for period", entry.Name(), err)
			state.Results = nil
		}
		if _, err := os.Stat(filepath.Join(dir, PredictionsFile)); err == nil {
			state.HasPredictions = true
		}
		state.HasEvaluation = HasEvaluation(dir)

		for _, m := range state.Matches {
			if state.FirstKickoff.IsZero() || m.Kickoff.Before(state.FirstKickoff) {
				state.FirstKickoff = m.Kickoff
			}
			if m.Kickoff.After(state.LastKickoff) {
				state.LastKickoff = m.Kickoff
			}
		}
		periods = append(periods, state)
	}

	sort.Slice(periods, func(i, j int) bool { return periods[i].Period < periods[j].Period })
	return periods, nil
}

// Step outcome statuses
const (
	StepSuccess = "success"
	StepSkipped = "skipped"
	StepFailed  = "failed"
)

// StepResult is one sub-step's outcome
type StepResult struct {
	Status string
	Detail string
}

func stepOK(detail string) StepResult { return StepResult{Status: StepSuccess, Detail: detail} }

func stepSkip(detail string) StepResult { return StepResult{Status: StepSkipped, Detail: detail} }

func stepFail(err error) StepResult { return StepResult{Status: StepFailed, Detail: err.Error()} }

// ActionResult is one orchestrated action's outcome in the run summary
type ActionResult struct {
	Period    string `json:"period,omitempty"`
	Step      string `json:"step"`
	Essential bool   `json:"essential"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
}

// RunSummary is the cycle's complete account for external monitoring
type RunSummary struct {
	RunID      string         `json:"runId"`
	Season     string         `json:"season"`
	DryRun     bool           `json:"dryRun"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt"`
	Actions    []ActionResult `json:"actions"`
}

func (s *RunSummary) record(period, step string, essential bool, status, reason string) {
	s.Actions = append(s.Actions, ActionResult{
		Period: period, Step: step, Essential: essential, Status: status, Reason: reason,
	})
	switch status {
	case StepFailed:
		if essential {
			logger.Error("Step failed", period, step, reason)
		} else {
			logger.Warn("Non-essential step failed", period, step, reason)
		}
	case StepSkipped:
		logger.Info("Step skipped", period, step, reason)
	default:
		logger.Debug("Step succeeded", period, step)
	}
}

// EssentialFailure reports whether any essential action failed, which
// maps to the process exit code.
func (s *RunSummary) EssentialFailure() bool {
	for _, a := range s.Actions {
		if a.Essential && a.Status == StepFailed {
			return true
		}
	}
	return false
}

// Orchestrator drives one pipeline cycle from the on-disk period state.
// In dry-run mode every decision is made and logged but nothing is
// written and no derived state changes.
type Orchestrator struct {
	Season string
	DryRun bool
	Now    func() time.Time // overridable for tests
	Source *Datasource
}

// NewOrchestrator builds an orchestrator for the season
func NewOrchestrator(season string, dryRun bool) *Orchestrator {
	return &Orchestrator{Season: season, DryRun: dryRun, Now: time.Now, Source: GetDatasourceInstance()}
}

// RunCycle executes one full pass: ingest fixtures, evaluate every
// period whose results have settled (oldest first, so ratings and
// weights advance chronologically), then rescan and generate
// predictions for upcoming periods. Periods that were considered but
// not actionable land in the summary as skipped with a reason.
func (o *Orchestrator) RunCycle(ctx context.Context) *RunSummary {
	summary := &RunSummary{
		RunID:     uuid.New().String(),
		Season:    o.Season,
		DryRun:    o.DryRun,
		StartedAt: o.Now().UTC(),
	}
	logger.Highlight("Starting pipeline cycle", summary.RunID, o.Season)

	o.runStep(ctx, summary, "", "fixture-ingest", false, func(stepCtx context.Context) StepResult {
		if o.DryRun {
			return stepOK("dry-run, would ingest fixtures")
		}
		created, err := o.Source.IngestFixtures(stepCtx, o.Season)
		if err != nil {
			return stepFail(err)
		}
		return stepOK(fmt.Sprintf("%d new periods", created))
	})

	periods, err := ScanPeriods(o.Season)
	if err != nil {
		summary.record("", "period-scan", true, StepFailed, err.Error())
		summary.FinishedAt = o.Now().UTC()
		return summary
	}

	for _, period := range periods {
		if ok, reason := o.isEvaluationCandidate(period); ok {
			o.runEvaluationPass(ctx, summary, period)
		} else if reason != "" {
			summary.record(period.Period, "evaluation", false, StepSkipped, reason)
		}
	}

	// Evaluation may have updated ratings, weights and bias: rescan so
	// prediction passes see the settled state.
	periods, err = ScanPeriods(o.Season)
	if err != nil {
		summary.record("", "period-rescan", true, StepFailed, err.Error())
		summary.FinishedAt = o.Now().UTC()
		return summary
	}

	for _, period := range periods {
		if ok, reason := o.isPredictionCandidate(period); ok {
			o.runPredictionPass(ctx, summary, period)
		} else if reason != "" {
			summary.record(period.Period, "prediction", false, StepSkipped, reason)
		}
	}

	summary.FinishedAt = o.Now().UTC()
	logger.Highlight("Pipeline cycle finished", summary.RunID,
		fmt.Sprintf("%d actions, essential failure: %t", len(summary.Actions), summary.EssentialFailure()))
	return summary
}

// runStep executes one fallible sub-step under the configured timeout
// and records its outcome. Returns true only on success.
func (o *Orchestrator) runStep(ctx context.Context, summary *RunSummary, period, name string, essential bool, fn func(context.Context) StepResult) bool {
	stepCtx, cancel := context.WithTimeout(ctx, time.Duration(Config.StepTimeoutMinutes)*time.Minute)
	defer cancel()

	res := fn(stepCtx)
	summary.record(period, name, essential, res.Status, res.Detail)
	return res.Status == StepSuccess
}

// isEvaluationCandidate applies the evaluation trigger: predictions
// exist, no evaluation yet, and the last kickoff has settled. Result
// coverage is checked later, after the sync step has had its chance to
// top the results up.
func (o *Orchestrator) isEvaluationCandidate(p *PeriodState) (bool, string) {
	if len(p.Matches) == 0 || !p.HasPredictions {
		return false, ""
	}
	if p.HasEvaluation {
		return false, "already evaluated"
	}
	now := o.Now()
	settleAt := p.LastKickoff.Add(time.Duration(Config.EvaluationDelayHours) * time.Hour)
	if now.Before(settleAt) {
		return false, fmt.Sprintf("results not settled until %s", settleAt.Format(time.RFC3339))
	}
	return true, ""
}

// resultCoverageGate checks finished-result coverage against the
// threshold. Old periods stuck below the normal threshold fall back to
// a relaxed one so abandoned fixtures cannot block the pipeline
// forever.
func (o *Orchestrator) resultCoverageGate(p *PeriodState) (bool, string) {
	coverage := p.Coverage()
	required := Config.MinResultCoverage
	if o.Now().Sub(p.LastKickoff) > time.Duration(Config.StalePeriodDays)*24*time.Hour {
		required = Config.StaleResultCoverage
	}
	if coverage < required {
		return false, fmt.Sprintf("result coverage %.2f below required %.2f", coverage, required)
	}
	return true, ""
}

// isPredictionCandidate applies the prediction trigger: fixtures but no
// predictions, first kickoff in the future and inside the prediction
// window.
func (o *Orchestrator) isPredictionCandidate(p *PeriodState) (bool, string) {
	if len(p.Matches) == 0 || p.HasPredictions {
		return false, ""
	}
	now := o.Now()
	if p.FirstKickoff.Before(now) {
		return false, "first kickoff already in the past"
	}
	until := p.FirstKickoff.Sub(now)
	if until > time.Duration(Config.PredictionWindowDays)*24*time.Hour {
		return false, fmt.Sprintf("first kickoff %.1f days away, outside prediction window", until.Hours()/24)
	}
	if until < time.Duration(Config.EmergencyWindowHours)*time.Hour {
		logger.Warn("Emergency prediction window", p.Period,
			fmt.Sprintf("first kickoff in %.1f hours", until.Hours()))
	}
	return true, ""
}

// runEvaluationPass runs a settled period through the fixed sub-order:
// result sync, evaluation, Elo batch update, weight adjustment, bias
// calibration, performance log. The sync runs before the coverage gate
// so results arriving from the feed count toward it. Only the
// evaluation itself is essential; everything after it is best-effort.
func (o *Orchestrator) runEvaluationPass(ctx context.Context, summary *RunSummary, p *PeriodState) {
	o.runStep(ctx, summary, p.Period, "result-sync", false, func(stepCtx context.Context) StepResult {
		if o.DryRun {
			return stepOK("dry-run, would sync results")
		}
		results, err := o.Source.SyncResults(stepCtx, o.Season, p.Period)
		if err != nil {
			return stepFail(err)
		}
		p.Results = results
		return stepOK(fmt.Sprintf("%d results on disk", len(results)))
	})

	if ok, reason := o.resultCoverageGate(p); !ok {
		summary.record(p.Period, "evaluation", false, StepSkipped, reason)
		return
	}
	logger.Highlight("Evaluating period", p.Period, fmt.Sprintf("coverage %.2f", p.Coverage()))

	var record *EvaluationRecord
	evaluated := o.runStep(ctx, summary, p.Period, "evaluation", true, func(context.Context) StepResult {
		predictions, err := LoadPredictions(p.Dir)
		if err != nil {
			return stepFail(err)
		}
		record = EvaluatePeriod(o.Season, p.Period, predictions, p.Results)
		if o.DryRun {
			return stepOK(fmt.Sprintf("dry-run, would evaluate %d matches at %.2f accuracy",
				record.Summary.Matches, record.Summary.OutcomeAccuracy))
		}
		if err := WriteEvaluation(p.Dir, record); err != nil {
			return stepFail(err)
		}
		AppendChange(ChangeEvaluation, o.Season, p.Period, fmt.Sprintf(
			"%d matches, accuracy %.3f, log-loss %.3f",
			record.Summary.Matches, record.Summary.OutcomeAccuracy, record.Summary.AvgLogLoss))
		return stepOK(fmt.Sprintf("%d matches evaluated", record.Summary.Matches))
	})
	if !evaluated || o.DryRun {
		return
	}

	o.runStep(ctx, summary, p.Period, "elo-update", false, func(context.Context) StepResult {
		updated, err := ApplyPeriodResults(o.Season, p.Period, p.Matches, p.Results)
		if err != nil {
			return stepFail(err)
		}
		return stepOK(fmt.Sprintf("%d ratings updated", updated))
	})

	// The performance log runs after weight adjustment so the period
	// just evaluated is excluded from its own adjustment window.
	o.runStep(ctx, summary, p.Period, "weight-adjustment", false, func(context.Context) StepResult {
		adjusted, reason, err := AdjustWeights(o.Season)
		if err != nil {
			return stepFail(err)
		}
		if !adjusted {
			return stepSkip(reason)
		}
		return stepOK(reason)
	})

	o.runStep(ctx, summary, p.Period, "bias-calibration", false, func(context.Context) StepResult {
		leagues, err := CalibrateBias(o.Season)
		if err != nil {
			return stepFail(err)
		}
		if leagues == 0 {
			return stepSkip("no league reached the bias sample floor")
		}
		return stepOK(fmt.Sprintf("%d leagues calibrated", leagues))
	})

	o.runStep(ctx, summary, p.Period, "performance-log", false, func(context.Context) StepResult {
		if err := RecordPeriodPerformance(record); err != nil {
			return stepFail(err)
		}
		return stepOK("")
	})
}

// runPredictionPass blends all three signals for every fixture in the
// period and writes the predictions artifact once.
func (o *Orchestrator) runPredictionPass(ctx context.Context, summary *RunSummary, p *PeriodState) {
	o.runStep(ctx, summary, p.Period, "prediction", true, func(context.Context) StepResult {
		weights := LoadWeights()
		predictions := make([]*PredictionRecord, 0, len(p.Matches))

		for _, m := range p.Matches {
			homeRating, err := GetTeamRating(m.HomeTeam, m.League)
			if err != nil {
				return stepFail(fmt.Errorf("failed to load rating for %s: %w", m.HomeTeam, err))
			}
			awayRating, err := GetTeamRating(m.AwayTeam, m.League)
			if err != nil {
				return stepFail(fmt.Errorf("failed to load rating for %s: %w", m.AwayTeam, err))
			}

			oddsTriple := ImpliedProbabilities(m.Odds)
			forecast, err := ForecastGoals(m, homeRating.Rating, awayRating.Rating, oddsTriple, GetLeagueBias(m.League))
			if err != nil {
				return stepFail(fmt.Errorf("goal model failed for %s: %w", m.FixtureID, err))
			}
			eloTriple := EloPredict(homeRating.Rating, awayRating.Rating)

			predictions = append(predictions, BlendPrediction(m, eloTriple, forecast.Outcomes, oddsTriple, forecast, weights))
		}

		if o.DryRun {
			return stepOK(fmt.Sprintf("dry-run, would write %d predictions", len(predictions)))
		}
		if err := WritePredictions(p.Dir, predictions); err != nil {
			return stepFail(err)
		}
		AppendChange(ChangePrediction, o.Season, p.Period, fmt.Sprintf("%d predictions written", len(predictions)))
		return stepOK(fmt.Sprintf("%d predictions written", len(predictions)))
	})
}
