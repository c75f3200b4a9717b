package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/curriculum-engine/internal/data/artifacts"
	"github.com/yungbote/curriculum-engine/internal/domain/curriculum"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/outline"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/prompts"
	"github.com/yungbote/curriculum-engine/internal/observability"
	apperr "github.com/yungbote/curriculum-engine/internal/pkg/errors"
	"github.com/yungbote/curriculum-engine/internal/platform/logger"
	"github.com/yungbote/curriculum-engine/internal/platform/openai"
)

// CascadeError names the step that stopped the cascade.
type CascadeError struct {
	Unit int
	Step curriculum.StepKey
	Err  error
}

func (e *CascadeError) Error() string {
	return fmt.Sprintf("research week %d step %s: %v", e.Unit, e.Step, e.Err)
}

func (e *CascadeError) Unwrap() error { return e.Err }

type Options struct {
	// Parallel runs each dependency level concurrently.
	Parallel bool
	// Lookahead is how many upcoming weeks the prompts preview.
	Lookahead int
	// SpiralMin and SpiralMax bound the day 4 review share named in prompts.
	SpiralMin float64
	SpiralMax float64
	Metrics   *observability.Metrics
	Now       func() time.Time
	// OnStep is called after each step completes.
	OnStep func(ctx context.Context, unit int, key curriculum.StepKey, meta curriculum.StepMeta)
}

type Cascade struct {
	log     *logger.Logger
	client  openai.Client
	outline *outline.Store
	store   artifacts.Store
	opts    Options

	steps  map[curriculum.StepKey]Step
	order  []curriculum.StepKey
	levels [][]curriculum.StepKey
}

func NewCascade(log *logger.Logger, client openai.Client, o *outline.Store, store artifacts.Store, opts Options) (*Cascade, error) {
	return newCascade(log, client, o, store, opts, DefaultSteps())
}

func newCascade(log *logger.Logger, client openai.Client, o *outline.Store, store artifacts.Store, opts Options, steps []Step) (*Cascade, error) {
	if client == nil || o == nil || store == nil {
		return nil, fmt.Errorf("research cascade: client, outline and store are required")
	}
	order, levels, err := plan(steps)
	if err != nil {
		return nil, err
	}
	if opts.Lookahead <= 0 {
		opts.Lookahead = 3
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SpiralMin <= 0 && opts.SpiralMax <= 0 {
		opts.SpiralMin, opts.SpiralMax = 0.25, 0.40
	}
	byKey := make(map[curriculum.StepKey]Step, len(steps))
	for _, s := range steps {
		byKey[s.Key] = s
	}
	return &Cascade{
		log:     log.With("service", "ResearchCascade"),
		client:  client,
		outline: o,
		store:   store,
		opts:    opts,
		steps:   byKey,
		order:   order,
		levels:  levels,
	}, nil
}

// Order is the validated execution order.
func (c *Cascade) Order() []curriculum.StepKey {
	return append([]curriculum.StepKey(nil), c.order...)
}

// Load returns previously persisted findings, or ok=false when none exist.
func (c *Cascade) Load(ctx context.Context, unit int) (*curriculum.ResearchFindings, bool, error) {
	var f curriculum.ResearchFindings
	err := artifacts.GetJSON(ctx, c.store, curriculum.UnitKey(unit, curriculum.DocResearchFindings), &f)
	if artifacts.IsNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &f, true, nil
}

// Run executes every step for unit and persists research_findings.json.
// Nothing is persisted when a step fails.
func (c *Cascade) Run(ctx context.Context, unit int) (*curriculum.ResearchFindings, error) {
	entry, err := c.outline.Entry(unit)
	if err != nil {
		return nil, err
	}
	cumulative, err := c.outline.CumulativeConcepts(unit)
	if err != nil {
		return nil, err
	}

	ctx, span := observability.StartSpan(ctx, "research.cascade", attribute.Int("curriculum.week", unit))
	defer span.End()

	st := &runState{
		entry:      entry,
		cumulative: cumulative,
		results:    make(map[curriculum.StepKey]curriculum.StepResult, len(c.order)),
	}
	started := c.opts.Now().UTC()
	c.log.Info("Research cascade started", "week", unit, "steps", len(c.order), "parallel", c.opts.Parallel)

	if c.opts.Parallel {
		for _, level := range c.levels {
			g, gctx := errgroup.WithContext(ctx)
			for _, key := range level {
				key := key
				g.Go(func() error { return c.runStep(gctx, unit, key, st) })
			}
			if err := g.Wait(); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return nil, err
			}
		}
	} else {
		for _, key := range c.order {
			if err := c.runStep(ctx, unit, key, st); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return nil, err
			}
		}
	}

	findings := &curriculum.ResearchFindings{
		Unit:  unit,
		Steps: st.results,
		Provenance: curriculum.CascadeProvenance{
			StepsExecuted: c.Order(),
			FallbacksUsed: []curriculum.StepKey{},
			StartedAt:     started,
			FinishedAt:    c.opts.Now().UTC(),
		},
	}
	for _, key := range c.order {
		if st.results[key].Meta.Fallback {
			findings.Provenance.FallbacksUsed = append(findings.Provenance.FallbacksUsed, key)
		}
	}
	if err := artifacts.PutJSON(ctx, c.store, curriculum.UnitKey(unit, curriculum.DocResearchFindings), findings); err != nil {
		return nil, fmt.Errorf("persist research findings: %w", err)
	}
	c.log.Info("Research cascade finished",
		"week", unit,
		"fallbacks", len(findings.Provenance.FallbacksUsed),
		"elapsed", findings.Provenance.FinishedAt.Sub(started).String(),
	)
	return findings, nil
}

type runState struct {
	entry      curriculum.UnitEntry
	cumulative []string

	mu      sync.Mutex
	results map[curriculum.StepKey]curriculum.StepResult
}

func (st *runState) deps(keys []curriculum.StepKey) map[curriculum.StepKey]map[string]any {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make(map[curriculum.StepKey]map[string]any, len(keys))
	for _, k := range keys {
		out[k] = st.results[k].Data
	}
	return out
}

func (st *runState) set(key curriculum.StepKey, r curriculum.StepResult) {
	st.mu.Lock()
	st.results[key] = r
	st.mu.Unlock()
}

func (c *Cascade) runStep(ctx context.Context, unit int, key curriculum.StepKey, st *runState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	step := c.steps[key]
	start := time.Now()
	deps := st.deps(step.Deps)

	var (
		res curriculum.StepResult
		err error
	)
	if step.Kind == KindRule {
		res, err = c.runRule(step, ruleInput{Entry: st.entry, Cumulative: st.cumulative, Deps: deps})
	} else {
		res, err = c.runModel(ctx, unit, step, st, deps)
	}
	if err != nil {
		var ce *CascadeError
		if errors.As(err, &ce) || ctx.Err() != nil {
			return err
		}
		return &CascadeError{Unit: unit, Step: key, Err: err}
	}
	st.set(key, res)

	c.opts.Metrics.ObserveResearchStep(string(key), string(res.Meta.Method), time.Since(start))
	c.log.Debug("Research step completed", "week", unit, "step", key, "method", res.Meta.Method, "fallback", res.Meta.Fallback)
	if c.opts.OnStep != nil {
		c.opts.OnStep(ctx, unit, key, res.Meta)
	}
	return nil
}

func (c *Cascade) runRule(step Step, in ruleInput) (curriculum.StepResult, error) {
	data, err := step.Rule(in)
	if err != nil {
		return curriculum.StepResult{}, err
	}
	method := curriculum.MethodRule
	if step.Key == curriculum.StepWeekEntry {
		method = curriculum.MethodOutline
	}
	return curriculum.StepResult{
		Data: data,
		Meta: curriculum.StepMeta{GeneratedAt: c.opts.Now().UTC(), Method: method},
	}, nil
}

func (c *Cascade) runModel(ctx context.Context, unit int, step Step, st *runState, deps map[curriculum.StepKey]map[string]any) (curriculum.StepResult, error) {
	ctx, span := observability.StartSpan(ctx, "research.step",
		attribute.String("research.step", string(step.Key)),
		attribute.String("research.kind", string(step.Kind)),
	)
	defer span.End()

	in, err := c.promptInput(unit, st, deps)
	if err != nil {
		return curriculum.StepResult{}, err
	}
	p, err := prompts.Build(step.Prompt, in)
	if err != nil {
		return curriculum.StepResult{}, err
	}
	req := p.Request(unit, 0, fmt.Sprintf("week_%d_research_%s", unit, step.Key))
	req.Tier = step.tier()

	resp, err := c.client.Generate(ctx, req)
	fallback := false
	if err != nil && req.Tier == openai.TierReasoning && !errors.Is(err, apperr.ErrBudgetExceeded) && ctx.Err() == nil {
		c.log.Warn("Reasoning tier failed; retrying on general tier",
			"week", unit,
			"step", step.Key,
			"model", c.client.ModelFor(openai.TierReasoning),
			"error", err,
		)
		req.Tier = openai.TierGeneral
		req.Operation += "_fallback"
		resp, err = c.client.Generate(ctx, req)
		fallback = true
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return curriculum.StepResult{}, err
	}
	if len(resp.JSON) == 0 {
		return curriculum.StepResult{}, &apperr.MalformedResponse{Artifact: string(step.Key), Err: fmt.Errorf("empty JSON object")}
	}

	method := curriculum.MethodLLM
	if resp.Provider == openai.ProviderDryRun {
		method = curriculum.MethodDryRun
	}
	return curriculum.StepResult{
		Data: resp.JSON,
		Meta: curriculum.StepMeta{
			GeneratedAt: c.opts.Now().UTC(),
			Method:      method,
			Model:       resp.Model,
			Fallback:    fallback,
		},
	}, nil
}

func (c *Cascade) promptInput(unit int, st *runState, deps map[curriculum.StepKey]map[string]any) (prompts.Input, error) {
	e := st.entry
	in := prompts.Input{
		Unit:                  unit,
		UnitTitle:             e.Title,
		ContentFocus:          e.ContentFocus,
		GrammarFocus:          e.GrammarFocus,
		VocabularyDomain:      e.VocabularyDomain,
		Chant:                 e.Chant,
		VirtueFocus:           e.VirtueFocus,
		SessionDuration:       e.SessionDuration,
		IntroducesCSV:         strings.Join(e.Introduces, ", "),
		PriorSummary:          c.outline.PriorSummary(unit),
		UpcomingSummary:       c.outline.UpcomingSummary(unit, c.opts.Lookahead),
		CumulativeConceptsCSV: strings.Join(st.cumulative, ", "),
		ReviewShareMin:        Percent(c.opts.SpiralMin),
		ReviewShareMax:        Percent(c.opts.SpiralMax),
	}
	if len(deps) > 0 {
		named := make(map[string]map[string]any, len(deps))
		for k, v := range deps {
			named[string(k)] = v
		}
		b, err := json.MarshalIndent(named, "", "  ")
		if err != nil {
			return in, fmt.Errorf("encode research dependencies: %w", err)
		}
		in.DepsJSON = string(b)
	}
	return in, nil
}

// Percent renders a share as "25%".
func Percent(share float64) string {
	return strconv.FormatFloat(share*100, 'f', -1, 64) + "%"
}
