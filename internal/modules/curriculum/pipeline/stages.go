package pipeline

import (
	"context"
	"time"

	"github.com/yungbote/curriculum-engine/internal/domain/curriculum"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/planner"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/subunit"
)

// Stage is one step of a unit run. Stages run in order and share unitState.
type Stage struct {
	Name string
	// Timeout bounds the stage; zero means no bound beyond the caller's context.
	Timeout time.Duration
	Run     func(ctx context.Context, st *unitState) error
}

type unitState struct {
	entry    curriculum.UnitEntry
	findings *curriculum.ResearchFindings
	plan     *planner.PlanResult
	bundles  []*curriculum.SubUnitBundle
	report   *curriculum.ValidationReport
}

const (
	StageResearch  = "research"
	StagePlan      = "plan"
	StageSubUnits  = "subunits"
	StageGateCheck = "quality_gate"
)

func (r *Runner) stages() []Stage {
	return []Stage{
		{Name: StageResearch, Run: r.research},
		{Name: StagePlan, Run: r.plan},
		{Name: StageSubUnits, Run: r.subUnits},
		{Name: StageGateCheck, Run: r.gate},
	}
}

func runStage(ctx context.Context, s Stage, st *unitState) error {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	return s.Run(ctx, st)
}

// research reuses complete findings from the store and runs the cascade otherwise.
func (r *Runner) research(ctx context.Context, st *unitState) error {
	unit := st.entry.Ordinal
	findings, complete, err := r.deps.Cascade.Load(ctx, unit)
	if err != nil {
		return err
	}
	if complete {
		r.log.Info("Research findings reused", "week", unit)
	} else if findings, err = r.deps.Cascade.Run(ctx, unit); err != nil {
		return err
	}
	st.findings = findings
	r.mu.Lock()
	if l, ok := r.logs[unit]; ok {
		l.VocabularyVerified = curriculum.VerifyVocabulary(findings)
	}
	r.mu.Unlock()
	return nil
}

func (r *Runner) plan(ctx context.Context, st *unitState) error {
	res, err := r.deps.Planner.Plan(ctx, st.entry, st.findings)
	if err != nil {
		return err
	}
	unit := st.entry.Ordinal
	r.mu.Lock()
	if l, ok := r.logs[unit]; ok {
		for name, prov := range res.Provenance {
			l.Artifacts[curriculum.UnitKey(unit, name).Path()] = prov
		}
	}
	r.mu.Unlock()
	st.plan = res
	return nil
}

func (r *Runner) subUnits(ctx context.Context, st *unitState) error {
	unit := st.entry.Ordinal
	bundles, err := r.deps.Generator.GenerateAll(ctx, &subunit.UnitContext{
		Entry:   st.entry,
		Spec:    st.plan.Spec,
		SpecDoc: st.plan.SpecDoc,
		Prior:   r.priorProvenance(unit),
	})
	if err != nil {
		return err
	}
	st.bundles = bundles
	// the gate reads fallbacks from the stored log
	return r.saveLog(ctx, unit)
}

func (r *Runner) gate(ctx context.Context, st *unitState) error {
	report, err := r.deps.Gate.Check(ctx, r.opts.RunID, st.entry.Ordinal)
	if err != nil {
		return err
	}
	st.report = report
	return nil
}
