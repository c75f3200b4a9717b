package subunit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/curriculum-engine/internal/data/artifacts"
	"github.com/yungbote/curriculum-engine/internal/domain/curriculum"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/outline"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/policy"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/prompts"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/research"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/retry"
	"github.com/yungbote/curriculum-engine/internal/observability"
	"github.com/yungbote/curriculum-engine/internal/platform/logger"
	"github.com/yungbote/curriculum-engine/internal/platform/openai"
)

type Options struct {
	// Retry drives the seven day artifacts; exhaustion degrades to a fallback.
	Retry retry.Policy
	// AssessmentRetry drives the quiz and answer key; exhaustion is fatal.
	AssessmentRetry retry.Policy
	SpiralMin       float64
	SpiralMax       float64
	Lookahead       int
	Metrics         *observability.Metrics
	Now             func() time.Time
	// OnArtifact is called once per artifact after it is persisted or resumed.
	OnArtifact func(ctx context.Context, key curriculum.ArtifactKey, prov curriculum.Provenance)
}

// UnitContext is what every day of a unit is generated from.
type UnitContext struct {
	Entry   curriculum.UnitEntry
	Spec    *curriculum.UnitSpec
	SpecDoc []byte
	// Prior is provenance recorded by an earlier run, keyed by artifact path.
	// Stored artifacts recorded as fallbacks are generated again.
	Prior map[string]curriculum.Provenance
}

type Generator struct {
	log     *logger.Logger
	client  openai.Client
	outline *outline.Store
	store   artifacts.Store
	policy  *policy.Policy
	runner  *retry.Runner
	opts    Options
}

func New(log *logger.Logger, client openai.Client, o *outline.Store, store artifacts.Store, pol *policy.Policy, runner *retry.Runner, opts Options) *Generator {
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry.MaxAttempts = 10
	}
	opts.Retry.Decision = retry.DecidePlaceholder
	if opts.AssessmentRetry.MaxAttempts <= 0 {
		opts.AssessmentRetry = opts.Retry
	}
	opts.AssessmentRetry.Decision = retry.DecideFatal
	if opts.SpiralMin <= 0 {
		opts.SpiralMin = 0.25
	}
	if opts.SpiralMax <= 0 {
		opts.SpiralMax = 0.40
	}
	if opts.Lookahead <= 0 {
		opts.Lookahead = 3
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Generator{
		log:     log.With("service", "SubUnitGenerator"),
		client:  client,
		outline: o,
		store:   store,
		policy:  pol,
		runner:  runner,
		opts:    opts,
	}
}

// GenerateAll produces the four days of a unit in order.
func (g *Generator) GenerateAll(ctx context.Context, uc *UnitContext) ([]*curriculum.SubUnitBundle, error) {
	out := make([]*curriculum.SubUnitBundle, 0, curriculum.SubUnitsPerUnit)
	for d := 1; d <= curriculum.SubUnitsPerUnit; d++ {
		b, err := g.Generate(ctx, uc, d)
		if err != nil {
			return out, err
		}
		out = append(out, b)
	}
	return out, nil
}

// Generate produces and persists one day's artifacts. The fourth day also
// gets the quiz and answer key. A day artifact that keeps failing
// acceptance degrades to a flagged fallback; the assessment never does.
func (g *Generator) Generate(ctx context.Context, uc *UnitContext, subUnit int) (*curriculum.SubUnitBundle, error) {
	if uc == nil || uc.Spec == nil || len(uc.SpecDoc) == 0 {
		return nil, fmt.Errorf("generate day %d: unit spec required", subUnit)
	}
	if subUnit < 1 || subUnit > curriculum.SubUnitsPerUnit {
		return nil, fmt.Errorf("generate day %d: out of range", subUnit)
	}
	unit := uc.Entry.Ordinal
	ctx, span := observability.StartSpan(ctx, "subunit.generate",
		attribute.Int("week", unit),
		attribute.Int("day", subUnit),
	)
	defer span.End()

	d := &day{g: g, uc: uc, unit: unit, sub: subUnit, bundle: curriculum.NewSubUnitBundle(unit, subUnit)}
	d.base = d.input()

	className, err := produce(ctx, d, d.textJob(curriculum.ArtClassName, prompts.PromptClassName,
		func(s string) error { return CheckClassName(s, g.policy) },
		func() string { return g.policy.ClassNameFallback(unit, subUnit) },
		CleanLine,
	))
	if err != nil {
		return nil, err
	}
	d.base.ClassName = className

	vocab := uc.Spec.VocabularyWords()
	if _, err := produce(ctx, d, d.textJob(curriculum.ArtSummary, prompts.PromptDaySummary,
		func(s string) error { return CheckDaySummary(s, g.policy, vocab) },
		func() string { return fallbackSummary(uc, subUnit) },
		nil,
	)); err != nil {
		return nil, err
	}

	if err := d.putRule(ctx, curriculum.ArtGradeLevel, []byte(g.policy.GradeLevel+"\n")); err != nil {
		return nil, err
	}

	role, err := produce(ctx, d, d.roleContextJob())
	if err != nil {
		return nil, err
	}
	roleDoc, _ := json.MarshalIndent(role, "", "  ")
	d.base.RoleContextJSON = string(roleDoc)

	if _, err := produce(ctx, d, d.textJob(curriculum.ArtGuidelines, prompts.PromptGuidelines,
		func(s string) error { return CheckGuidelines(s, subUnit, g.policy) },
		func() string { return fallbackGuidelines(uc, subUnit, research.Percent(g.opts.SpiralMin)) },
		nil,
	)); err != nil {
		return nil, err
	}

	if _, err := produce(ctx, d, d.packetJob()); err != nil {
		return nil, err
	}

	if _, err := produce(ctx, d, d.textJob(curriculum.ArtGreeting, prompts.PromptGreeting,
		func(s string) error { return CheckGreeting(s, g.policy) },
		func() string { return fallbackGreeting(unit, subUnit) },
		CleanLine,
	)); err != nil {
		return nil, err
	}

	if subUnit == curriculum.SubUnitsPerUnit {
		if err := d.assessment(ctx); err != nil {
			return nil, err
		}
	}

	g.log.Info("Day generated",
		"week", unit,
		"day", subUnit,
		"artifacts", len(d.bundle.Artifacts),
		"fallbacks", len(d.bundle.Flagged()),
	)
	return d.bundle, nil
}

// day carries the state of one sub-unit while its artifacts are chained.
type day struct {
	g      *Generator
	uc     *UnitContext
	unit   int
	sub    int
	base   prompts.Input
	bundle *curriculum.SubUnitBundle
}

func (d *day) input() prompts.Input {
	e := d.uc.Entry
	cumulative, _ := d.g.outline.CumulativeConcepts(e.Ordinal)
	return prompts.Input{
		Unit:                  e.Ordinal,
		SubUnit:               d.sub,
		UnitTitle:             e.Title,
		ContentFocus:          e.ContentFocus,
		GrammarFocus:          orDefault(d.uc.Spec.GrammarFocus, e.GrammarFocus),
		VocabularyDomain:      e.VocabularyDomain,
		Chant:                 e.Chant,
		VirtueFocus:           orDefault(d.uc.Spec.Metadata.VirtueFocus, e.VirtueFocus),
		SessionDuration:       e.SessionDuration,
		IntroducesCSV:         strings.Join(e.Introduces, ", "),
		PriorSummary:          d.g.outline.PriorSummary(e.Ordinal),
		UpcomingSummary:       d.g.outline.UpcomingSummary(e.Ordinal, d.g.opts.Lookahead),
		CumulativeConceptsCSV: strings.Join(cumulative, ", "),
		SpecJSON:              string(d.uc.SpecDoc),
		VocabularyCSV:         strings.Join(d.uc.Spec.VocabularyWords(), ", "),
		DayFocus:              curriculum.SubUnitFocus(d.sub),
		PacketDocsCSV:         strings.Join(curriculum.TeachingPacketDocs, ", "),
		GradeLevel:            d.g.policy.GradeLevel,
		ReviewShareMin:        research.Percent(d.g.opts.SpiralMin),
		ReviewShareMax:        research.Percent(d.g.opts.SpiralMax),
		GreetingMaxChars:      d.g.policy.Greeting.MaxChars,
		MinQuizItems:          d.g.policy.Assessment.MinItems,
	}
}

func (d *day) key(name string) curriculum.ArtifactKey {
	return curriculum.SubUnitKey(d.unit, d.sub, name)
}

func (d *day) provenance(resp openai.Response, attempt int) curriculum.Provenance {
	method := curriculum.MethodLLM
	if resp.Provider == openai.ProviderDryRun {
		method = curriculum.MethodDryRun
	}
	return curriculum.Provenance{
		GeneratedAt: d.g.opts.Now().UTC(),
		Attempt:     attempt,
		Model:       resp.Model,
		Method:      method,
		Status:      curriculum.StatusAccepted,
	}
}

func (d *day) record(ctx context.Context, name string, files map[string][]byte, prov curriculum.Provenance, outcome string) {
	for stored, content := range files {
		d.bundle.Put(&curriculum.Artifact{Key: d.key(stored), Content: content, Provenance: prov})
	}
	d.g.opts.Metrics.IncArtifact(name, outcome)
	if d.g.opts.OnArtifact != nil {
		d.g.opts.OnArtifact(ctx, d.key(name), prov)
	}
}

func (d *day) putRule(ctx context.Context, name string, content []byte) error {
	if err := d.g.store.Put(ctx, d.key(name), content); err != nil {
		return fmt.Errorf("persist %s: %w", d.key(name), err)
	}
	prov := curriculum.Provenance{
		GeneratedAt: d.g.opts.Now().UTC(),
		Attempt:     1,
		Method:      curriculum.MethodRule,
		Status:      curriculum.StatusAccepted,
	}
	d.record(ctx, name, map[string][]byte{name: content}, prov, string(curriculum.StatusAccepted))
	return nil
}

// job describes one artifact: how to ask for it, judge it, store it and
// read it back.
type job[T any] struct {
	name   string
	prompt prompts.PromptName
	input  func(feedback string) prompts.Input
	policy retry.Policy
	// stored lists the artifact names the job writes.
	stored   []string
	parse    func(resp openai.Response) (T, error)
	decode   func(files map[string][]byte) (T, error)
	accept   func(T) error
	fallback func() (T, bool)
	encode   func(T) (map[string][]byte, error)
}

type attemptResult[T any] struct {
	value T
	prov  curriculum.Provenance
}

// produce resumes the artifact from the store when it is present, accepted
// and not a recorded fallback; otherwise it runs the retry loop and persists
// whatever the loop settles on.
func produce[T any](ctx context.Context, d *day, j job[T]) (T, error) {
	var zero T
	if v, prov, ok := resume(ctx, d, j); ok {
		files, _ := j.encode(v)
		d.record(ctx, j.name, files, prov, "resumed")
		return v, nil
	}

	task := retry.Task[attemptResult[T]]{
		Name:    j.name,
		Unit:    d.unit,
		SubUnit: d.sub,
		Generate: func(ctx context.Context, attempt int, feedback string) (attemptResult[T], string, error) {
			pr, err := prompts.Build(j.prompt, j.input(feedback))
			if err != nil {
				return attemptResult[T]{}, "", err
			}
			op := fmt.Sprintf("week_%d_day_%d_%s_attempt%d", d.unit, d.sub, j.prompt, attempt)
			resp, err := d.g.client.Generate(ctx, pr.Request(d.unit, d.sub, op))
			if err != nil {
				return attemptResult[T]{}, resp.Text, err
			}
			v, err := j.parse(resp)
			if err != nil {
				return attemptResult[T]{}, resp.Text, err
			}
			return attemptResult[T]{value: v, prov: d.provenance(resp, attempt)}, resp.Text, nil
		},
		Accept: func(r attemptResult[T]) error { return j.accept(r.value) },
	}
	if j.fallback != nil {
		task.Fallback = func() (attemptResult[T], bool) {
			v, ok := j.fallback()
			return attemptResult[T]{value: v}, ok
		}
	}

	out, err := retry.Run(ctx, d.g.runner, task, j.policy)
	if err != nil {
		d.g.opts.Metrics.IncArtifact(j.name, string(curriculum.StatusFailed))
		return zero, fmt.Errorf("week %d day %d: %w", d.unit, d.sub, err)
	}
	prov := out.Value.prov
	outcome := string(curriculum.StatusAccepted)
	if out.UsedFallback {
		prov = curriculum.Provenance{
			GeneratedAt: d.g.opts.Now().UTC(),
			Attempt:     out.Attempts,
			Method:      curriculum.MethodFallback,
			Status:      curriculum.StatusFallback,
			Reason:      out.Exhausted.LastReason,
		}
		outcome = string(curriculum.StatusFallback)
	}

	files, err := j.encode(out.Value.value)
	if err != nil {
		return zero, fmt.Errorf("encode %s: %w", d.key(j.name), err)
	}
	for _, name := range j.stored {
		if err := d.g.store.Put(ctx, d.key(name), files[name]); err != nil {
			return zero, fmt.Errorf("persist %s: %w", d.key(name), err)
		}
	}
	d.record(ctx, j.name, files, prov, outcome)
	return out.Value.value, nil
}

func resume[T any](ctx context.Context, d *day, j job[T]) (T, curriculum.Provenance, bool) {
	var zero T
	prior, known := d.uc.Prior[d.key(j.name).Path()]
	if known && prior.Status != curriculum.StatusAccepted {
		return zero, curriculum.Provenance{}, false
	}
	files := make(map[string][]byte, len(j.stored))
	for _, name := range j.stored {
		b, err := d.g.store.Get(ctx, d.key(name))
		if err != nil {
			return zero, curriculum.Provenance{}, false
		}
		files[name] = b
	}
	v, err := j.decode(files)
	if err != nil {
		return zero, curriculum.Provenance{}, false
	}
	if err := j.accept(v); err != nil {
		d.g.log.Warn("Stored artifact no longer accepted; regenerating", "artifact", d.key(j.name).Path(), "reason", err)
		return zero, curriculum.Provenance{}, false
	}
	if !known {
		prior = curriculum.Provenance{
			GeneratedAt: d.g.opts.Now().UTC(),
			Attempt:     0,
			Method:      curriculum.MethodLLM,
			Status:      curriculum.StatusAccepted,
			Reason:      "resumed from store",
		}
	}
	return v, prior, true
}

// textJob is a single-file text artifact. clean post-processes the model
// text; nil only trims and restores the trailing newline.
func (d *day) textJob(name string, prompt prompts.PromptName, accept func(string) error, fallback func() string, clean func(string) string) job[string] {
	if clean == nil {
		clean = func(s string) string { return strings.TrimSpace(s) + "\n" }
	}
	return job[string]{
		name:   name,
		prompt: prompt,
		input:  d.withFeedback,
		policy: d.g.opts.Retry,
		stored: []string{name},
		parse: func(resp openai.Response) (string, error) {
			return clean(openai.StripFences(resp.Text)), nil
		},
		decode: func(files map[string][]byte) (string, error) {
			return clean(string(files[name])), nil
		},
		accept:   accept,
		fallback: func() (string, bool) { return fallback(), true },
		encode: func(s string) (map[string][]byte, error) {
			return map[string][]byte{name: []byte(s)}, nil
		},
	}
}

func (d *day) withFeedback(feedback string) prompts.Input {
	in := d.base
	in.Feedback = feedback
	return in
}

func (d *day) roleContextJob() job[map[string]any] {
	name := curriculum.ArtRoleContext
	check := func(raw map[string]any) error {
		_, err := CheckRoleContext(raw, d.unit, d.sub, d.g.policy)
		return err
	}
	return job[map[string]any]{
		name:   name,
		prompt: prompts.PromptRoleContext,
		input:  d.withFeedback,
		policy: d.g.opts.Retry,
		stored: []string{name},
		parse: func(resp openai.Response) (map[string]any, error) {
			if resp.JSON != nil {
				return resp.JSON, nil
			}
			return openai.ParseJSONObject(name, resp.Text)
		},
		decode: func(files map[string][]byte) (map[string]any, error) {
			return openai.ParseJSONObject(name, string(files[name]))
		},
		accept:   check,
		fallback: func() (map[string]any, bool) { return fallbackRoleContext(d.uc, d.sub), true },
		encode:   encodeJSON[map[string]any](name),
	}
}

func (d *day) packetJob() job[map[string]string] {
	stored := make([]string, 0, len(curriculum.TeachingPacketDocs))
	for _, doc := range curriculum.TeachingPacketDocs {
		stored = append(stored, curriculum.PacketDoc(doc))
	}
	return job[map[string]string]{
		name:   curriculum.ArtTeachingPacket,
		prompt: prompts.PromptTeachingPacket,
		input:  d.withFeedback,
		policy: d.g.opts.Retry,
		stored: stored,
		parse: func(resp openai.Response) (map[string]string, error) {
			raw := resp.JSON
			if raw == nil {
				var err error
				if raw, err = openai.ParseJSONObject(curriculum.ArtTeachingPacket, resp.Text); err != nil {
					return nil, err
				}
			}
			return PacketDocs(raw), nil
		},
		decode: func(files map[string][]byte) (map[string]string, error) {
			out := make(map[string]string, len(files))
			for _, doc := range curriculum.TeachingPacketDocs {
				out[doc] = string(files[curriculum.PacketDoc(doc)])
			}
			return out, nil
		},
		accept:   func(docs map[string]string) error { return CheckPacket(docs, d.g.policy) },
		fallback: func() (map[string]string, bool) { return fallbackPacket(d.uc), true },
		encode: func(docs map[string]string) (map[string][]byte, error) {
			out := make(map[string][]byte, len(docs))
			for _, doc := range curriculum.TeachingPacketDocs {
				out[curriculum.PacketDoc(doc)] = []byte(strings.TrimSpace(docs[doc]) + "\n")
			}
			return out, nil
		},
	}
}

// assessment produces the quiz and its answer key. Both are fatal on
// exhaustion: a day 4 without a valid assessment cannot be taught.
func (d *day) assessment(ctx context.Context) error {
	pol := d.g.policy
	quiz, err := produce(ctx, d, job[curriculum.Quiz]{
		name:   curriculum.ArtQuiz,
		prompt: prompts.PromptQuiz,
		input:  d.withFeedback,
		policy: d.g.opts.AssessmentRetry,
		stored: []string{curriculum.ArtQuiz},
		parse: func(resp openai.Response) (curriculum.Quiz, error) {
			return decodeQuiz([]byte(openai.StripFences(resp.Text)))
		},
		decode: func(files map[string][]byte) (curriculum.Quiz, error) {
			return decodeQuiz(files[curriculum.ArtQuiz])
		},
		accept: func(q curriculum.Quiz) error {
			return CheckQuiz(q, d.unit, pol, d.g.opts.SpiralMin, d.g.opts.SpiralMax)
		},
		encode: encodeJSON[curriculum.Quiz](curriculum.ArtQuiz),
	})
	if err != nil {
		return err
	}
	cov := quiz.Spiral()
	d.bundle.Spiral = &cov

	quizDoc, _ := json.MarshalIndent(quiz, "", "  ")
	keyJob := d.textJob(curriculum.ArtAnswerKey, prompts.PromptAnswerKey,
		func(s string) error { return CheckAnswerKey(s, quiz, pol) },
		nil, nil,
	)
	keyJob.fallback = nil
	keyJob.policy = d.g.opts.AssessmentRetry
	keyJob.input = func(feedback string) prompts.Input {
		in := d.withFeedback(feedback)
		in.QuizJSON = string(quizDoc)
		return in
	}
	if _, err := produce(ctx, d, keyJob); err != nil {
		return err
	}

	d.g.log.Info("Assessment generated",
		"week", d.unit,
		"items", cov.TotalItems,
		"review_items", cov.ReviewItems,
		"review_share", fmt.Sprintf("%.1f%%", cov.Fraction*100),
		"basis", cov.Basis,
	)
	return nil
}

func decodeQuiz(b []byte) (curriculum.Quiz, error) {
	var q curriculum.Quiz
	obj, err := openai.ParseJSONObject(curriculum.ArtQuiz, string(b))
	if err != nil {
		return q, err
	}
	raw, _ := json.Marshal(obj)
	if err := json.Unmarshal(raw, &q); err != nil {
		return q, fmt.Errorf("%s: %w", curriculum.ArtQuiz, err)
	}
	return q, nil
}

func encodeJSON[T any](name string) func(T) (map[string][]byte, error) {
	return func(v T) (map[string][]byte, error) {
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return nil, err
		}
		return map[string][]byte{name: append(b, '\n')}, nil
	}
}
