package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/curriculum-engine/internal/data/artifacts"
	"github.com/yungbote/curriculum-engine/internal/domain/curriculum"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/outline"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/policy"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/prompts"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/retry"
	apperr "github.com/yungbote/curriculum-engine/internal/pkg/errors"
	"github.com/yungbote/curriculum-engine/internal/platform/logger"
	"github.com/yungbote/curriculum-engine/internal/platform/openai"
)

type Options struct {
	// SpecRetry drives both the spec and the summary; exhaustion is always fatal.
	SpecRetry retry.Policy
	Lookahead int
	Now       func() time.Time
}

// PlanResult is the compiled plan of one unit.
type PlanResult struct {
	Spec    *curriculum.UnitSpec
	SpecDoc []byte
	Summary string
	// RoleContext is the unit-level tutor configuration document.
	RoleContext []byte
	Provenance  map[string]curriculum.Provenance
	// Resumed is set when the spec and summary were read back from the store.
	Resumed bool
}

type Planner struct {
	log     *logger.Logger
	client  openai.Client
	outline *outline.Store
	store   artifacts.Store
	policy  *policy.Policy
	runner  *retry.Runner
	opts    Options
}

func New(log *logger.Logger, client openai.Client, o *outline.Store, store artifacts.Store, pol *policy.Policy, runner *retry.Runner, opts Options) *Planner {
	if opts.Lookahead <= 0 {
		opts.Lookahead = 3
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SpecRetry.MaxAttempts <= 0 {
		opts.SpecRetry.MaxAttempts = 5
	}
	opts.SpecRetry.Decision = retry.DecideFatal
	return &Planner{
		log:     log.With("service", "UnitPlanner"),
		client:  client,
		outline: o,
		store:   store,
		policy:  pol,
		runner:  runner,
		opts:    opts,
	}
}

type generated[T any] struct {
	value T
	prov  curriculum.Provenance
}

// Plan compiles the unit spec and summary from research findings and
// persists week_spec.json, week_summary.md and role_context.json.
// Documents already stored and still valid are reused.
func (p *Planner) Plan(ctx context.Context, entry curriculum.UnitEntry, findings *curriculum.ResearchFindings) (*PlanResult, error) {
	unit := entry.Ordinal
	if findings == nil {
		return nil, fmt.Errorf("plan week %d: research findings required", unit)
	}
	res := &PlanResult{Provenance: map[string]curriculum.Provenance{}}

	spec, resumed := p.loadSpec(ctx, unit)
	if spec == nil {
		out, err := p.generateSpec(ctx, entry, findings)
		if err != nil {
			return nil, err
		}
		spec = out.value
		res.Provenance[curriculum.DocUnitSpec] = out.prov
	}
	doc, err := json.MarshalIndent(spec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode week spec: %w", err)
	}
	if !resumed {
		if err := p.store.Put(ctx, curriculum.UnitKey(unit, curriculum.DocUnitSpec), doc); err != nil {
			return nil, fmt.Errorf("persist week spec: %w", err)
		}
	}
	res.Spec, res.SpecDoc = spec, doc

	summary, summaryResumed := p.loadSummary(ctx, unit)
	if summary == "" {
		out, err := p.generateSummary(ctx, entry, spec, doc)
		if err != nil {
			return nil, err
		}
		summary = out.value
		res.Provenance[curriculum.DocUnitSummary] = out.prov
		if err := p.store.Put(ctx, curriculum.UnitKey(unit, curriculum.DocUnitSummary), []byte(summary)); err != nil {
			return nil, fmt.Errorf("persist week summary: %w", err)
		}
	}
	res.Summary = summary
	res.Resumed = resumed && summaryResumed

	role, err := json.MarshalIndent(p.unitRoleContext(entry, spec, findings), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode role context: %w", err)
	}
	if err := p.store.Put(ctx, curriculum.UnitKey(unit, curriculum.DocUnitRoleContext), role); err != nil {
		return nil, fmt.Errorf("persist role context: %w", err)
	}
	res.RoleContext = role
	res.Provenance[curriculum.DocUnitRoleContext] = curriculum.Provenance{
		GeneratedAt: p.opts.Now().UTC(),
		Attempt:     1,
		Method:      curriculum.MethodRule,
		Status:      curriculum.StatusAccepted,
	}

	p.log.Info("Week planned",
		"week", unit,
		"shape", spec.Shape,
		"vocabulary", len(spec.Vocabulary),
		"objectives", len(spec.Objectives),
		"resumed", res.Resumed,
	)
	return res, nil
}

// LoadSpec reads the stored spec of unit through the versioned parser.
func LoadSpec(ctx context.Context, store artifacts.Store, unit int) (*curriculum.UnitSpec, error) {
	raw, err := store.Get(ctx, curriculum.UnitKey(unit, curriculum.DocUnitSpec))
	if err != nil {
		return nil, err
	}
	obj, err := openai.ParseJSONObject(curriculum.DocUnitSpec, string(raw))
	if err != nil {
		return nil, err
	}
	return ParseSpec(obj)
}

func (p *Planner) loadSpec(ctx context.Context, unit int) (*curriculum.UnitSpec, bool) {
	spec, err := LoadSpec(ctx, p.store, unit)
	if err != nil {
		if !artifacts.IsNotFound(err) {
			p.log.Warn("Stored week spec unreadable; regenerating", "week", unit, "error", err)
		}
		return nil, false
	}
	if err := ValidateSpec(spec, unit, p.policy); err != nil {
		p.log.Warn("Stored week spec rejected; regenerating", "week", unit, "reason", err)
		return nil, false
	}
	return spec, true
}

func (p *Planner) loadSummary(ctx context.Context, unit int) (string, bool) {
	raw, err := p.store.Get(ctx, curriculum.UnitKey(unit, curriculum.DocUnitSummary))
	if err != nil {
		return "", false
	}
	if ValidateSummary(string(raw), p.policy) != nil {
		return "", false
	}
	return string(raw), true
}

func (p *Planner) baseInput(entry curriculum.UnitEntry) prompts.Input {
	cumulative, _ := p.outline.CumulativeConcepts(entry.Ordinal)
	return prompts.Input{
		Unit:                  entry.Ordinal,
		UnitTitle:             entry.Title,
		ContentFocus:          entry.ContentFocus,
		GrammarFocus:          entry.GrammarFocus,
		VocabularyDomain:      entry.VocabularyDomain,
		Chant:                 entry.Chant,
		VirtueFocus:           entry.VirtueFocus,
		SessionDuration:       entry.SessionDuration,
		IntroducesCSV:         strings.Join(entry.Introduces, ", "),
		PriorSummary:          p.outline.PriorSummary(entry.Ordinal),
		UpcomingSummary:       p.outline.UpcomingSummary(entry.Ordinal, p.opts.Lookahead),
		CumulativeConceptsCSV: strings.Join(cumulative, ", "),
	}
}

func (p *Planner) provenance(resp openai.Response, attempt int) curriculum.Provenance {
	method := curriculum.MethodLLM
	if resp.Provider == openai.ProviderDryRun {
		method = curriculum.MethodDryRun
	}
	return curriculum.Provenance{
		GeneratedAt: p.opts.Now().UTC(),
		Attempt:     attempt,
		Model:       resp.Model,
		Method:      method,
		Status:      curriculum.StatusAccepted,
	}
}

func (p *Planner) generateSpec(ctx context.Context, entry curriculum.UnitEntry, findings *curriculum.ResearchFindings) (generated[*curriculum.UnitSpec], error) {
	unit := entry.Ordinal
	data := make(map[string]map[string]any, len(findings.Steps))
	for k, r := range findings.Steps {
		data[string(k)] = r.Data
	}
	fj, err := json.Marshal(data)
	if err != nil {
		return generated[*curriculum.UnitSpec]{}, fmt.Errorf("encode findings: %w", err)
	}
	in := p.baseInput(entry)
	in.FindingsJSON = string(fj)

	task := retry.Task[generated[*curriculum.UnitSpec]]{
		Name: curriculum.DocUnitSpec,
		Unit: unit,
		Generate: func(ctx context.Context, attempt int, feedback string) (generated[*curriculum.UnitSpec], string, error) {
			in.Feedback = feedback
			pr, err := prompts.Build(prompts.PromptUnitSpec, in)
			if err != nil {
				return generated[*curriculum.UnitSpec]{}, "", err
			}
			resp, err := p.client.Generate(ctx, pr.Request(unit, 0, fmt.Sprintf("week_%d_spec_attempt%d", unit, attempt)))
			if err != nil {
				return generated[*curriculum.UnitSpec]{}, resp.Text, err
			}
			spec, err := ParseSpec(resp.JSON)
			if err != nil {
				return generated[*curriculum.UnitSpec]{}, resp.Text, err
			}
			return generated[*curriculum.UnitSpec]{value: spec, prov: p.provenance(resp, attempt)}, resp.Text, nil
		},
		Accept: func(g generated[*curriculum.UnitSpec]) error {
			return ValidateSpec(g.value, unit, p.policy)
		},
	}
	out, err := retry.Run(ctx, p.runner, task, p.opts.SpecRetry)
	if err != nil {
		return generated[*curriculum.UnitSpec]{}, specFailure(unit, curriculum.DocUnitSpec, err)
	}
	return out.Value, nil
}

func (p *Planner) generateSummary(ctx context.Context, entry curriculum.UnitEntry, spec *curriculum.UnitSpec, doc []byte) (generated[string], error) {
	unit := entry.Ordinal
	in := p.baseInput(entry)
	in.SpecJSON = string(doc)
	in.VocabularyCSV = strings.Join(spec.VocabularyWords(), ", ")

	task := retry.Task[generated[string]]{
		Name: curriculum.DocUnitSummary,
		Unit: unit,
		Generate: func(ctx context.Context, attempt int, feedback string) (generated[string], string, error) {
			in.Feedback = feedback
			pr, err := prompts.Build(prompts.PromptUnitSummary, in)
			if err != nil {
				return generated[string]{}, "", err
			}
			resp, err := p.client.Generate(ctx, pr.Request(unit, 0, fmt.Sprintf("week_%d_summary_attempt%d", unit, attempt)))
			if err != nil {
				return generated[string]{}, resp.Text, err
			}
			text := strings.TrimSpace(openai.StripFences(resp.Text)) + "\n"
			return generated[string]{value: text, prov: p.provenance(resp, attempt)}, resp.Text, nil
		},
		Accept: func(g generated[string]) error {
			return ValidateSummary(g.value, p.policy)
		},
	}
	out, err := retry.Run(ctx, p.runner, task, p.opts.SpecRetry)
	if err != nil {
		return generated[string]{}, specFailure(unit, curriculum.DocUnitSummary, err)
	}
	return out.Value, nil
}

// specFailure converts exhaustion into SpecGenerationFailed; budget,
// configuration and cancellation errors pass through unchanged.
func specFailure(unit int, artifact string, err error) error {
	var ex *retry.ExhaustedRetriesError
	if errors.As(err, &ex) {
		return &apperr.SpecGenerationFailedError{
			Unit:     unit,
			Artifact: artifact,
			Attempts: ex.Result.Attempts,
			Reason:   ex.Result.LastReason,
		}
	}
	return err
}
