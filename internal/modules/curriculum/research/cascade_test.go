package research

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/yungbote/curriculum-engine/internal/data/artifacts"
	"github.com/yungbote/curriculum-engine/internal/domain/curriculum"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/outline"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/prompts"
	apperr "github.com/yungbote/curriculum-engine/internal/pkg/errors"
	"github.com/yungbote/curriculum-engine/internal/platform/logger"
	"github.com/yungbote/curriculum-engine/internal/platform/openai"
)

func testOutline(t *testing.T) *outline.Store {
	t.Helper()
	titles := []string{"Latin Alphabet and Sounds", "First Conjugation Verbs", "First Declension Nouns"}
	entries := make([]curriculum.UnitEntry, 0, len(titles))
	for i, title := range titles {
		entries = append(entries, curriculum.UnitEntry{
			Ordinal:      i + 1,
			Title:        title,
			GrammarFocus: "present tense",
			Chant:        "amo amas amat",
			VirtueFocus:  "Diligence",
			Introduces:   []string{title},
		})
	}
	o, err := outline.New(entries)
	if err != nil {
		t.Fatalf("outline.New: %v", err)
	}
	return o
}

var fixedNow = func() time.Time { return time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC) }

func newTestCascade(t *testing.T, client openai.Client, opts Options) (*Cascade, artifacts.Store) {
	t.Helper()
	o := testOutline(t)
	store := artifacts.NewMemoryStore()
	opts.Now = fixedNow
	c, err := NewCascade(logger.Nop(), client, o, store, opts)
	if err != nil {
		t.Fatalf("NewCascade: %v", err)
	}
	return c, store
}

func dryClient(t *testing.T) *openai.DryRunClient {
	return openai.NewDryRunClient(logger.Nop(), prompts.NewDryRunResponder(testOutline(t)))
}

// tierClient fails every request on the tiers listed in fail.
type tierClient struct {
	next openai.Client
	fail map[openai.Tier]error

	mu    sync.Mutex
	tiers []openai.Tier
}

func (c *tierClient) ModelFor(tier openai.Tier) string { return string(tier) + "-model" }

func (c *tierClient) Generate(ctx context.Context, req openai.Request) (openai.Response, error) {
	c.mu.Lock()
	c.tiers = append(c.tiers, req.Tier)
	c.mu.Unlock()
	if err := c.fail[req.Tier]; err != nil {
		return openai.Response{}, err
	}
	return c.next.Generate(ctx, req)
}

func TestPlanOrdersDependenciesFirst(t *testing.T) {
	steps := DefaultSteps()
	order, levels, err := plan(steps)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(order) != 12 || order[0] != curriculum.StepWeekEntry || order[11] != curriculum.StepAlignmentGuide {
		t.Fatalf("order: %v", order)
	}
	pos := map[curriculum.StepKey]int{}
	for i, k := range order {
		pos[k] = i
	}
	for _, s := range steps {
		for _, d := range s.Deps {
			if pos[d] >= pos[s.Key] {
				t.Fatalf("%s runs before its dependency %s", s.Key, d)
			}
		}
	}
	n := 0
	for _, l := range levels {
		n += len(l)
	}
	if n != 12 {
		t.Fatalf("levels hold %d steps", n)
	}
}

func TestPlanRejectsCyclesAndUnknownDeps(t *testing.T) {
	rule := func(ruleInput) (map[string]any, error) { return map[string]any{}, nil }
	cyclic := []Step{
		{Key: "a", Kind: KindRule, Rule: rule, Deps: []curriculum.StepKey{"b"}},
		{Key: "b", Kind: KindRule, Rule: rule, Deps: []curriculum.StepKey{"a"}},
	}
	if _, _, err := plan(cyclic); err == nil {
		t.Fatalf("expected cycle error")
	}
	unknown := []Step{{Key: "a", Kind: KindRule, Rule: rule, Deps: []curriculum.StepKey{"zz"}}}
	if _, _, err := plan(unknown); err == nil {
		t.Fatalf("expected unknown dependency error")
	}
}

func TestSessionDurationIsDeterministic(t *testing.T) {
	cases := map[int]int{1: 13, 8: 13, 9: 18, 20: 18, 21: 23, 35: 23}
	for week, want := range cases {
		in := ruleInput{Entry: curriculum.UnitEntry{Ordinal: week}}
		a, _ := sessionDuration(in)
		b, _ := sessionDuration(in)
		ja, _ := json.Marshal(a)
		jb, _ := json.Marshal(b)
		if string(ja) != string(jb) {
			t.Fatalf("week %d: outputs differ", week)
		}
		if got := a["recommended_duration_minutes"]; got != want {
			t.Fatalf("week %d: %v minutes, want %d", week, got, want)
		}
		tb := a["time_breakdown"].(map[string]any)
		if tb["grammar_instruction"] != want-10 {
			t.Fatalf("week %d: grammar_instruction %v", week, tb["grammar_instruction"])
		}
	}
}

func TestMaterialsPlanFromVocabulary(t *testing.T) {
	in := ruleInput{
		Entry: curriculum.UnitEntry{Ordinal: 2, GrammarFocus: "present tense"},
		Deps: map[curriculum.StepKey]map[string]any{
			curriculum.StepVocabulary: {
				"new_latin_words":      []any{map[string]any{"word": "amo"}, map[string]any{"word": "voco"}},
				"recycled_latin_words": []any{map[string]any{"word": "terra"}},
			},
		},
	}
	out, err := materialsPlan(in)
	if err != nil {
		t.Fatalf("materialsPlan: %v", err)
	}
	sets := out["flashcard_sets"].([]any)
	if got := sets[0].(map[string]any)["cards"]; !reflect.DeepEqual(got, []string{"amo", "voco"}) {
		t.Fatalf("new cards: %v", got)
	}
	if got := sets[1].(map[string]any)["cards"]; !reflect.DeepEqual(got, []string{"terra"}) {
		t.Fatalf("review cards: %v", got)
	}
}

func TestRunPersistsAllSteps(t *testing.T) {
	client := dryClient(t)
	c, _ := newTestCascade(t, client, Options{})

	f, err := c.Run(context.Background(), 2)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(f.Steps) != 12 || !reflect.DeepEqual(f.Provenance.StepsExecuted, c.Order()) {
		t.Fatalf("steps=%d executed=%v", len(f.Steps), f.Provenance.StepsExecuted)
	}
	if client.Calls() != 9 {
		t.Fatalf("model calls = %d, want 9", client.Calls())
	}
	if m := f.Steps[curriculum.StepSessionDuration].Meta.Method; m != curriculum.MethodRule {
		t.Fatalf("05 method %s", m)
	}
	if m := f.Steps[curriculum.StepVocabulary].Meta.Method; m != curriculum.MethodDryRun {
		t.Fatalf("04 method %s", m)
	}
	cards := f.StepData(curriculum.StepMaterialsPlan)["flashcard_sets"]
	if len(cards.([]any)) != 2 {
		t.Fatalf("materials plan: %v", cards)
	}

	loaded, ok, err := c.Load(context.Background(), 2)
	if err != nil || !ok || loaded.Unit != 2 || len(loaded.Steps) != 12 {
		t.Fatalf("Load: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := c.Load(context.Background(), 3); ok {
		t.Fatalf("week 3 should have no findings")
	}
}

func TestParallelMatchesSequential(t *testing.T) {
	seq, _ := newTestCascade(t, dryClient(t), Options{})
	par, _ := newTestCascade(t, dryClient(t), Options{Parallel: true})

	a, err := seq.Run(context.Background(), 3)
	if err != nil {
		t.Fatalf("sequential: %v", err)
	}
	b, err := par.Run(context.Background(), 3)
	if err != nil {
		t.Fatalf("parallel: %v", err)
	}
	for key, ra := range a.Steps {
		ja, _ := json.Marshal(ra.Data)
		jb, _ := json.Marshal(b.Steps[key].Data)
		if string(ja) != string(jb) {
			t.Fatalf("step %s differs between sequential and parallel runs", key)
		}
	}
}

func TestReasoningStepsFallBackToGeneralTier(t *testing.T) {
	client := &tierClient{
		next: dryClient(t),
		fail: map[openai.Tier]error{openai.TierReasoning: &apperr.TransientServiceError{Op: "x", StatusCode: 503}},
	}
	c, _ := newTestCascade(t, client, Options{})

	f, err := c.Run(context.Background(), 1)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []curriculum.StepKey{curriculum.StepPedagogical, curriculum.StepVocabulary, curriculum.StepAlignmentGuide}
	if !reflect.DeepEqual(f.Provenance.FallbacksUsed, want) {
		t.Fatalf("fallbacks: %v", f.Provenance.FallbacksUsed)
	}
	if !f.Steps[curriculum.StepVocabulary].Meta.Fallback {
		t.Fatalf("04 not marked as fallback")
	}
}

func TestCascadeFailsWhenBothTiersFail(t *testing.T) {
	boom := &apperr.TransientServiceError{Op: "x", StatusCode: 500}
	client := &tierClient{
		next: dryClient(t),
		fail: map[openai.Tier]error{openai.TierReasoning: boom, openai.TierGeneral: boom},
	}
	c, store := newTestCascade(t, client, Options{})

	_, err := c.Run(context.Background(), 1)
	var ce *CascadeError
	if !errors.As(err, &ce) || ce.Step != curriculum.StepBackwardAnalysis {
		t.Fatalf("expected CascadeError at 01, got %v", err)
	}
	if ok, _ := store.Exists(context.Background(), curriculum.UnitKey(1, curriculum.DocResearchFindings)); ok {
		t.Fatalf("findings persisted after failure")
	}
}

func TestBudgetExceededSkipsFallback(t *testing.T) {
	client := &tierClient{
		next: dryClient(t),
		fail: map[openai.Tier]error{openai.TierReasoning: &apperr.BudgetExceededError{Operation: "x", Cap: 1}},
	}
	c, _ := newTestCascade(t, client, Options{})

	_, err := c.Run(context.Background(), 1)
	if !errors.Is(err, apperr.ErrBudgetExceeded) {
		t.Fatalf("expected budget error, got %v", err)
	}
	if n := len(client.tiers); n != 3 || client.tiers[n-1] != openai.TierReasoning {
		t.Fatalf("general tier called after budget refusal: %v", client.tiers)
	}
}
