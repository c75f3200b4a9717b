package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/curriculum-engine/internal/data/artifacts"
	repos "github.com/yungbote/curriculum-engine/internal/data/repos/runs"
	types "github.com/yungbote/curriculum-engine/internal/domain"
	"github.com/yungbote/curriculum-engine/internal/domain/curriculum"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/budget"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/outline"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/planner"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/quality"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/research"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/retry"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/subunit"
	"github.com/yungbote/curriculum-engine/internal/observability"
	"github.com/yungbote/curriculum-engine/internal/pkg/dbctx"
	apperr "github.com/yungbote/curriculum-engine/internal/pkg/errors"
	"github.com/yungbote/curriculum-engine/internal/platform/logger"
	"github.com/yungbote/curriculum-engine/internal/platform/openai"
	"github.com/yungbote/curriculum-engine/internal/realtime"
	"github.com/yungbote/curriculum-engine/internal/realtime/bus"
)

// Architecture tags generation logs so older trees can be told apart.
const Architecture = "research-cascade-v2"

const UsageSummaryFile = "usage_summary.json"

// Deps are the services a run drives. Runs, Reports and Bus are optional.
type Deps struct {
	Outline   *outline.Store
	Store     artifacts.Store
	Client    openai.Client
	Cascade   *research.Cascade
	Planner   *planner.Planner
	Generator *subunit.Generator
	Gate      *quality.Gate
	Ledger    *budget.Ledger
	Runs      repos.GenerationRunRepo
	Reports   repos.ValidationReportRepo
	Bus       bus.Bus
	Metrics   *observability.Metrics
}

type Options struct {
	RunID  string
	DryRun bool
	// OutputDir receives usage_summary.json; empty skips writing it.
	OutputDir string
	Now       func() time.Time
}

type UnitResult struct {
	Unit      int                          `json:"week"`
	Status    string                       `json:"status"`
	Verdict   curriculum.Verdict           `json:"verdict,omitempty"`
	Fallbacks []string                     `json:"fallbacks,omitempty"`
	Failure   *curriculum.FailureDetail    `json:"failure,omitempty"`
	Report    *curriculum.ValidationReport `json:"-"`
}

type RunResult struct {
	RunID string         `json:"run_id"`
	Units []UnitResult   `json:"units"`
	Usage budget.Summary `json:"usage"`
}

// Runner drives units through research, planning, generation and the gate,
// strictly in ascending order.
type Runner struct {
	log  *logger.Logger
	deps Deps
	opts Options

	mu   sync.Mutex
	logs map[int]*curriculum.GenerationLog
	// verified holds units whose artifact tree passed the gate during this run.
	verified map[int]bool
}

func NewRunner(log *logger.Logger, deps Deps, opts Options) *Runner {
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if deps.Bus == nil {
		deps.Bus = bus.Nop{}
	}
	return &Runner{
		log:      log.With("service", "PipelineRunner", "run_id", opts.RunID),
		deps:     deps,
		opts:     opts,
		logs:     map[int]*curriculum.GenerationLog{},
		verified: map[int]bool{},
	}
}

func (r *Runner) RunID() string { return r.opts.RunID }

// Run processes units from..to. It stops at the first unit that fails or is
// blocked; a budget refusal ends the whole run.
func (r *Runner) Run(ctx context.Context, from, to int) (*RunResult, error) {
	if from < 1 || to < from || to > r.deps.Outline.Total() {
		return nil, fmt.Errorf("week range %d..%d outside 1..%d: %w", from, to, r.deps.Outline.Total(), apperr.ErrInvalidArgument)
	}
	res := &RunResult{RunID: r.opts.RunID}
	var runErr error
	for unit := from; unit <= to; unit++ {
		ur, err := r.RunUnit(ctx, unit)
		res.Units = append(res.Units, ur)
		if err != nil {
			runErr = err
			break
		}
	}
	if r.deps.Ledger != nil {
		res.Usage = r.deps.Ledger.Summary()
		if err := r.writeUsage(res.Usage); err != nil {
			r.log.Warn("Failed to write usage summary", "error", err)
		}
	}
	return res, runErr
}

// RunUnit runs one unit end to end, resuming whatever an earlier run left
// accepted in the store.
func (r *Runner) RunUnit(ctx context.Context, unit int) (UnitResult, error) {
	ur := UnitResult{Unit: unit, Status: types.RunStatusRunning}
	entry, err := r.deps.Outline.Entry(unit)
	if err != nil {
		return ur, err
	}
	ctx, span := observability.StartSpan(ctx, "pipeline.unit", attribute.Int("week", unit))
	defer span.End()

	if err := r.deps.Outline.ValidatePrerequisites(ctx, unit, r.passed); err != nil {
		ur.Status = types.RunStatusBlocked
		ur.Failure = &curriculum.FailureDetail{Step: "prerequisites", Reason: err.Error()}
		r.publish(ctx, realtime.ProgressEvent{Event: realtime.EventUnitBlocked, Unit: unit, Message: err.Error()})
		r.deps.Metrics.IncUnit(types.RunStatusBlocked)
		r.recordBlocked(ctx, unit, err)
		r.log.Warn("Week blocked", "week", unit, "error", err)
		return ur, err
	}

	r.mu.Lock()
	delete(r.verified, unit)
	r.mu.Unlock()

	started := r.opts.Now().UTC()
	glog := r.openLog(ctx, unit, started)
	defer r.closeLog(unit)
	row := r.startRow(ctx, unit, started)
	usageMark := r.usageCount()
	r.publish(ctx, realtime.ProgressEvent{Event: realtime.EventUnitStarted, Unit: unit, Message: entry.Title})
	r.log.Info("Week started", "week", unit, "title", entry.Title)

	st := &unitState{entry: entry}
	for _, stage := range r.stages() {
		if err := runStage(ctx, stage, st); err != nil {
			return r.fail(ctx, ur, glog, row, usageMark, stage.Name, err)
		}
		r.log.Debug("Stage done", "week", unit, "stage", stage.Name)
	}

	ur.Report = st.report
	ur.Verdict = st.report.Verdict
	ur.Status = types.RunStatusSucceeded
	ur.Fallbacks = glog.Fallbacks()

	r.mu.Lock()
	glog.Status = string(st.report.Verdict)
	finished := r.opts.Now().UTC()
	glog.FinishedAt = &finished
	if st.report.Verdict.Passing() {
		r.verified[unit] = true
	}
	r.mu.Unlock()
	if err := r.saveLog(ctx, unit); err != nil {
		return r.fail(ctx, ur, glog, row, usageMark, "generation_log", err)
	}
	r.finishRow(ctx, row, usageMark, map[string]any{
		"status":  types.RunStatusSucceeded,
		"verdict": string(st.report.Verdict),
	}, ur.Fallbacks)

	r.deps.Metrics.IncUnit(types.RunStatusSucceeded)
	r.publish(ctx, realtime.ProgressEvent{
		Event:   realtime.EventUnitCompleted,
		Unit:    unit,
		Message: string(st.report.Verdict),
		Data: map[string]any{
			"errors":    st.report.Count(curriculum.SeverityError),
			"warnings":  st.report.Count(curriculum.SeverityWarning),
			"fallbacks": len(ur.Fallbacks),
		},
	})
	r.log.Info("Week completed", "week", unit, "verdict", st.report.Verdict, "fallbacks", len(ur.Fallbacks))
	return ur, nil
}

// passed is the prerequisite check. A unit counts as present only when its
// stored artifact tree evaluates to ok or warn and no recorded verdict says
// fail. The stored report and the DB row can only veto.
func (r *Runner) passed(ctx context.Context, unit int) (bool, error) {
	r.mu.Lock()
	ok := r.verified[unit]
	r.mu.Unlock()
	if ok {
		return true, nil
	}

	report, err := quality.LoadReport(ctx, r.deps.Store, unit)
	switch {
	case err == nil:
		if !report.Verdict.Passing() {
			return false, nil
		}
	case !artifacts.IsNotFound(err):
		return false, err
	case r.deps.Reports != nil:
		row, err := r.deps.Reports.GetLatestByUnit(dbctx.Context{Ctx: ctx}, unit)
		if err != nil {
			return false, err
		}
		if row != nil && !curriculum.Verdict(row.Verdict).Passing() {
			return false, nil
		}
	}

	current, err := r.deps.Gate.Evaluate(ctx, unit)
	if err != nil {
		return false, err
	}
	if !current.Verdict.Passing() {
		r.log.Debug("Prerequisite tree does not pass", "week", unit, "errors", current.Count(curriculum.SeverityError))
		return false, nil
	}
	r.mu.Lock()
	r.verified[unit] = true
	r.mu.Unlock()
	return true, nil
}

func (r *Runner) fail(ctx context.Context, ur UnitResult, glog *curriculum.GenerationLog, row *types.GenerationRun, usageMark int, stage string, err error) (UnitResult, error) {
	unit := ur.Unit
	detail := failureDetail(stage, err)
	ur.Status = types.RunStatusFailed
	ur.Failure = detail

	r.mu.Lock()
	glog.Status = types.RunStatusFailed
	glog.Failure = detail
	finished := r.opts.Now().UTC()
	glog.FinishedAt = &finished
	r.mu.Unlock()
	// the log is written with a fresh context so a cancelled run still leaves its trail
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if serr := r.saveLog(saveCtx, unit); serr != nil {
		r.log.Warn("Failed to write generation log", "week", unit, "error", serr)
	}
	if serr := r.invalidateReport(saveCtx, unit, detail); serr != nil {
		r.log.Warn("Failed to invalidate validation report", "week", unit, "error", serr)
	}
	ur.Fallbacks = glog.Fallbacks()
	r.finishRow(saveCtx, row, usageMark, map[string]any{
		"status":          types.RunStatusFailed,
		"failed_step":     detail.Step,
		"failed_artifact": detail.Artifact,
		"error":           detail.Reason,
	}, ur.Fallbacks)

	r.deps.Metrics.IncUnit(types.RunStatusFailed)
	r.publish(saveCtx, realtime.ProgressEvent{
		Event:    realtime.EventUnitFailed,
		Unit:     unit,
		Step:     detail.Step,
		Artifact: detail.Artifact,
		Message:  detail.Reason,
	})
	r.log.Error("Week failed", "week", unit, "stage", detail.Step, "artifact", detail.Artifact, "error", err)
	return ur, fmt.Errorf("week %d %s: %w", unit, stage, err)
}

// invalidateReport replaces the unit's stored report with a failing one so a
// verdict from an earlier run cannot satisfy later prerequisite checks.
func (r *Runner) invalidateReport(ctx context.Context, unit int, detail *curriculum.FailureDetail) error {
	report := &curriculum.ValidationReport{Unit: unit, Findings: []curriculum.Finding{}}
	report.Add(curriculum.SeverityError, detail.Step, "generation failed: "+detail.Reason)
	report.Decide()
	return artifacts.PutJSON(ctx, r.deps.Store, curriculum.UnitKey(unit, curriculum.DocValidationReport), report)
}

func failureDetail(stage string, err error) *curriculum.FailureDetail {
	d := &curriculum.FailureDetail{Step: stage, Reason: err.Error()}
	var (
		ce *research.CascadeError
		sf *apperr.SpecGenerationFailedError
		ex *retry.ExhaustedRetriesError
	)
	switch {
	case errors.As(err, &ce):
		d.Step = string(ce.Step)
	case errors.As(err, &sf):
		d.Artifact = sf.Artifact
	case errors.As(err, &ex):
		d.Artifact = ex.Result.Task
	}
	return d
}

// ArtifactDone records generator provenance in the unit's generation log and
// publishes progress. It is wired as the generator's OnArtifact hook.
func (r *Runner) ArtifactDone(ctx context.Context, key curriculum.ArtifactKey, prov curriculum.Provenance) {
	r.mu.Lock()
	if l, ok := r.logs[key.Unit]; ok {
		l.Artifacts[key.Path()] = prov
	}
	r.mu.Unlock()
	ev := realtime.EventArtifactAccepted
	if prov.Status == curriculum.StatusFallback {
		ev = realtime.EventArtifactFallback
	}
	r.publish(ctx, realtime.ProgressEvent{
		Event:    ev,
		Unit:     key.Unit,
		SubUnit:  key.SubUnit,
		Artifact: key.Name,
		Attempt:  prov.Attempt,
		Message:  prov.Reason,
	})
}

// StepDone is the cascade's OnStep hook.
func (r *Runner) StepDone(ctx context.Context, unit int, key curriculum.StepKey, meta curriculum.StepMeta) {
	r.mu.Lock()
	if l, ok := r.logs[unit]; ok {
		l.Research[key] = meta
	}
	r.mu.Unlock()
	r.publish(ctx, realtime.ProgressEvent{
		Event:   realtime.EventStepCompleted,
		Unit:    unit,
		Step:    string(key),
		Message: string(meta.Method),
	})
}

// BudgetWarning is the ledger's OnWarning hook.
func (r *Runner) BudgetWarning(ctx context.Context, spent, capUSD float64) {
	r.log.Warn("Budget nearly spent", "spent_usd", spent, "cap_usd", capUSD)
	r.publish(ctx, realtime.ProgressEvent{
		Event:   realtime.EventBudgetWarning,
		Message: fmt.Sprintf("spent $%.4f of $%.2f", spent, capUSD),
		Data:    map[string]any{"spent_usd": spent, "cap_usd": capUSD},
	})
}

func (r *Runner) publish(ctx context.Context, ev realtime.ProgressEvent) {
	ev.RunID = r.opts.RunID
	ev.At = r.opts.Now().UTC()
	if err := r.deps.Bus.Publish(ctx, ev); err != nil {
		r.log.Debug("Progress event dropped", "event", ev.Event, "error", err)
	}
}

// openLog starts the unit's generation log, carrying artifact provenance
// over from an earlier run so resumed artifacts keep their history.
func (r *Runner) openLog(ctx context.Context, unit int, started time.Time) *curriculum.GenerationLog {
	glog := curriculum.NewGenerationLog(r.opts.RunID, unit, started)
	glog.Architecture = Architecture
	glog.DryRun = r.opts.DryRun
	glog.Status = types.RunStatusRunning
	glog.GitCommit = buildCommit()
	if r.deps.Client != nil {
		glog.Models[string(openai.TierGeneral)] = r.deps.Client.ModelFor(openai.TierGeneral)
		glog.Models[string(openai.TierReasoning)] = r.deps.Client.ModelFor(openai.TierReasoning)
	}
	var prior curriculum.GenerationLog
	if err := artifacts.GetJSON(ctx, r.deps.Store, curriculum.UnitKey(unit, curriculum.DocGenerationLog), &prior); err == nil {
		for path, p := range prior.Artifacts {
			glog.Artifacts[path] = p
		}
	}
	r.mu.Lock()
	r.logs[unit] = glog
	r.mu.Unlock()
	return glog
}

// buildCommit is the VCS revision stamped into the binary, if any.
func buildCommit() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			return s.Value
		}
	}
	return ""
}

func (r *Runner) closeLog(unit int) {
	r.mu.Lock()
	delete(r.logs, unit)
	r.mu.Unlock()
}

func (r *Runner) priorProvenance(unit int) map[string]curriculum.Provenance {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[string]curriculum.Provenance{}
	if l, ok := r.logs[unit]; ok {
		for k, v := range l.Artifacts {
			out[k] = v
		}
	}
	return out
}

func (r *Runner) saveLog(ctx context.Context, unit int) error {
	r.mu.Lock()
	l, ok := r.logs[unit]
	var b []byte
	var err error
	if ok {
		b, err = json.MarshalIndent(l, "", "  ")
	}
	r.mu.Unlock()
	if !ok {
		return nil
	}
	if err != nil {
		return fmt.Errorf("encode generation log: %w", err)
	}
	return r.deps.Store.Put(ctx, curriculum.UnitKey(unit, curriculum.DocGenerationLog), b)
}

func (r *Runner) usageCount() int {
	if r.deps.Ledger == nil {
		return 0
	}
	return len(r.deps.Ledger.Records())
}

func (r *Runner) startRow(ctx context.Context, unit int, started time.Time) *types.GenerationRun {
	if r.deps.Runs == nil {
		return nil
	}
	row := &types.GenerationRun{
		ID:        uuid.New(),
		RunID:     r.opts.RunID,
		Unit:      unit,
		Status:    types.RunStatusRunning,
		StartedAt: started,
	}
	if _, err := r.deps.Runs.Create(dbctx.Context{Ctx: ctx}, []*types.GenerationRun{row}); err != nil {
		r.log.Warn("Failed to record run start", "week", unit, "error", err)
		return nil
	}
	return row
}

func (r *Runner) recordBlocked(ctx context.Context, unit int, cause error) {
	if r.deps.Runs == nil {
		return
	}
	now := r.opts.Now().UTC()
	row := &types.GenerationRun{
		ID:         uuid.New(),
		RunID:      r.opts.RunID,
		Unit:       unit,
		Status:     types.RunStatusBlocked,
		FailedStep: "prerequisites",
		Error:      cause.Error(),
		StartedAt:  now,
		FinishedAt: &now,
	}
	if _, err := r.deps.Runs.Create(dbctx.Context{Ctx: ctx}, []*types.GenerationRun{row}); err != nil {
		r.log.Warn("Failed to record blocked week", "week", unit, "error", err)
	}
}

// finishRow closes the unit's run row with the usage spent since usageMark.
func (r *Runner) finishRow(ctx context.Context, row *types.GenerationRun, usageMark int, updates map[string]any, fallbacks []string) {
	if row == nil {
		return
	}
	if r.deps.Ledger != nil {
		recs := r.deps.Ledger.Records()
		if usageMark > len(recs) {
			usageMark = len(recs)
		}
		calls, in, out, cost := 0, 0, 0, 0.0
		for _, rec := range recs[usageMark:] {
			calls++
			in += rec.TokensIn
			out += rec.TokensOut
			cost += rec.Cost
		}
		updates["calls"] = calls
		updates["tokens_in"] = in
		updates["tokens_out"] = out
		updates["cost_usd"] = cost
	}
	if b, err := json.Marshal(fallbacks); err == nil {
		updates["fallbacks"] = b
	}
	updates["finished_at"] = r.opts.Now().UTC()
	if err := r.deps.Runs.UpdateFields(dbctx.Context{Ctx: ctx}, row.ID, updates); err != nil {
		r.log.Warn("Failed to record run result", "week", row.Unit, "error", err)
	}
}

func (r *Runner) writeUsage(s budget.Summary) error {
	if r.opts.OutputDir == "" {
		return nil
	}
	if err := os.MkdirAll(r.opts.OutputDir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(r.opts.OutputDir, UsageSummaryFile), b, 0o644)
}
