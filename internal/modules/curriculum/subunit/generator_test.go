package subunit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

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

func testOutline(t *testing.T) *outline.Store {
	t.Helper()
	o, err := outline.New([]curriculum.UnitEntry{
		{Ordinal: 1, Title: "Alphabet and Sounds", GrammarFocus: "pronunciation", Chant: "a e i o u", VirtueFocus: "Diligence", Introduces: []string{"vowels"}},
		{Ordinal: 2, Title: "First Conjugation Verbs", GrammarFocus: "present tense", Chant: "amo amas amat", VirtueFocus: "Patience", Introduces: []string{"verb endings"}},
	})
	if err != nil {
		t.Fatalf("outline.New: %v", err)
	}
	return o
}

func testUnit(t *testing.T, o *outline.Store, unit int) *UnitContext {
	t.Helper()
	entry, err := o.Entry(unit)
	if err != nil {
		t.Fatalf("Entry(%d): %v", unit, err)
	}
	spec := &curriculum.UnitSpec{
		Metadata:     curriculum.SpecMetadata{Unit: unit, Title: entry.Title, VirtueFocus: entry.VirtueFocus},
		Objectives:   []string{"Chant the week's forms"},
		Vocabulary:   []curriculum.VocabItem{{Latin: "amo", English: "I love"}, {Latin: "voco", English: "I call"}},
		GrammarFocus: entry.GrammarFocus,
		ChantName:    entry.Chant,
	}
	doc, _ := json.Marshal(spec)
	return &UnitContext{Entry: entry, Spec: spec, SpecDoc: doc}
}

type fixture struct {
	gen    *Generator
	client *openai.DryRunClient
	store  artifacts.Store
	outl   *outline.Store
}

// newFixture wires a generator over the dry-run responder; override replaces
// the answer for the prompts it handles.
func newFixture(t *testing.T, override func(req openai.Request) (string, bool)) *fixture {
	t.Helper()
	o := testOutline(t)
	base := prompts.NewDryRunResponder(o)
	respond := func(req openai.Request) (string, bool) {
		if override != nil {
			if s, ok := override(req); ok {
				return s, true
			}
		}
		return base(req)
	}
	client := openai.NewDryRunClient(logger.Nop(), respond)
	store := artifacts.NewMemoryStore()
	runner := retry.NewRunner(logger.Nop(), retry.NewStoreAuditor(store), nil)
	gen := New(logger.Nop(), client, o, store, policy.Default(), runner, Options{
		Retry:           retry.Policy{MaxAttempts: 3, Backoff: retry.BackoffNone, AuditRejected: true},
		AssessmentRetry: retry.Policy{MaxAttempts: 2, Backoff: retry.BackoffNone},
	})
	return &fixture{gen: gen, client: client, store: store, outl: o}
}

func TestGenerateAllDryRun(t *testing.T) {
	f := newFixture(t, nil)
	bundles, err := f.gen.GenerateAll(context.Background(), testUnit(t, f.outl, 2))
	if err != nil {
		t.Fatalf("GenerateAll: %v", err)
	}
	if len(bundles) != curriculum.SubUnitsPerUnit {
		t.Fatalf("bundles = %d", len(bundles))
	}
	// six model artifacts per day plus quiz and answer key on day 4
	if got := f.client.Calls(); got != 6*curriculum.SubUnitsPerUnit+2 {
		t.Fatalf("calls = %d", got)
	}
	ctx := context.Background()
	for _, b := range bundles {
		if flagged := b.Flagged(); len(flagged) != 0 {
			t.Fatalf("day %d flagged %v", b.SubUnit, flagged)
		}
		for _, name := range []string{curriculum.ArtClassName, curriculum.ArtSummary, curriculum.ArtGradeLevel, curriculum.ArtRoleContext, curriculum.ArtGuidelines, curriculum.ArtGreeting} {
			if ok, _ := f.store.Exists(ctx, curriculum.SubUnitKey(2, b.SubUnit, name)); !ok {
				t.Fatalf("day %d: %s not stored", b.SubUnit, name)
			}
		}
		for _, doc := range curriculum.TeachingPacketDocs {
			if ok, _ := f.store.Exists(ctx, curriculum.SubUnitKey(2, b.SubUnit, curriculum.PacketDoc(doc))); !ok {
				t.Fatalf("day %d: packet doc %s not stored", b.SubUnit, doc)
			}
		}
		if b.Text(curriculum.ArtGradeLevel) != "3-5\n" {
			t.Fatalf("grade level = %q", b.Text(curriculum.ArtGradeLevel))
		}
		if b.Artifacts[curriculum.ArtGradeLevel].Provenance.Method != curriculum.MethodRule {
			t.Fatalf("grade level provenance: %+v", b.Artifacts[curriculum.ArtGradeLevel].Provenance)
		}
	}
	last := bundles[len(bundles)-1]
	if last.Spiral == nil || last.Spiral.ReviewItems != 3 || last.Spiral.Basis != "time" {
		t.Fatalf("spiral coverage: %+v", last.Spiral)
	}
	if last.Text(curriculum.ArtAnswerKey) == "" {
		t.Fatalf("answer key missing from bundle")
	}
	if bundles[0].Spiral != nil {
		t.Fatalf("day 1 should carry no spiral coverage")
	}
}

func TestClassNameFallsBackAndAuditsRejections(t *testing.T) {
	offTopic := func(req openai.Request) (string, bool) {
		if req.Kind == string(prompts.PromptClassName) {
			return "Week 1 Day 1: algebra practice", true
		}
		return "", false
	}
	f := newFixture(t, offTopic)
	b, err := f.gen.Generate(context.Background(), testUnit(t, f.outl, 1), 1)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got := b.Text(curriculum.ArtClassName); got != "Week 1 Day 1: Latin Foundations" {
		t.Fatalf("class name = %q", got)
	}
	prov := b.Artifacts[curriculum.ArtClassName].Provenance
	if prov.Status != curriculum.StatusFallback || prov.Attempt != 3 || !strings.Contains(prov.Reason, "algebra") {
		t.Fatalf("provenance: %+v", prov)
	}
	if flagged := b.Flagged(); len(flagged) != 1 || flagged[0] != curriculum.ArtClassName {
		t.Fatalf("flagged = %v", flagged)
	}
	for attempt := 1; attempt <= 3; attempt++ {
		key := artifacts.RejectedKey(curriculum.SubUnitKey(1, 1, curriculum.ArtClassName), attempt)
		if ok, _ := f.store.Exists(context.Background(), key); !ok {
			t.Fatalf("rejected attempt %d not kept at %s", attempt, key)
		}
	}
}

func TestQuizWithoutReviewIsFatal(t *testing.T) {
	noReview := func(req openai.Request) (string, bool) {
		if req.Kind != string(prompts.PromptQuiz) {
			return "", false
		}
		q := curriculum.Quiz{}
		for i := 1; i <= 5; i++ {
			q.Items = append(q.Items, curriculum.QuizItem{
				ID: fmt.Sprintf("q%d", i), Prompt: "Translate amo", Answer: "I love",
				Tag: curriculum.TagNew, SourceUnit: 2, Minutes: 1,
			})
		}
		b, _ := json.Marshal(q)
		return string(b), true
	}
	f := newFixture(t, noReview)
	_, err := f.gen.Generate(context.Background(), testUnit(t, f.outl, 2), 4)
	if !errors.Is(err, apperr.ErrExhaustedRetries) {
		t.Fatalf("expected exhausted retries, got %v", err)
	}
	if !strings.Contains(err.Error(), "0.0%") {
		t.Fatalf("reason should name the measured share: %v", err)
	}
	if ok, _ := f.store.Exists(context.Background(), curriculum.SubUnitKey(2, 4, curriculum.ArtQuiz)); ok {
		t.Fatalf("rejected quiz was persisted")
	}
	if ok, _ := f.store.Exists(context.Background(), curriculum.SubUnitKey(2, 4, curriculum.ArtAnswerKey)); ok {
		t.Fatalf("answer key written without a quiz")
	}
}

func TestGenerateResumesStoredArtifacts(t *testing.T) {
	f := newFixture(t, nil)
	uc := testUnit(t, f.outl, 1)
	if _, err := f.gen.Generate(context.Background(), uc, 2); err != nil {
		t.Fatalf("first Generate: %v", err)
	}
	before := f.client.Calls()
	if _, err := f.gen.Generate(context.Background(), uc, 2); err != nil {
		t.Fatalf("second Generate: %v", err)
	}
	if f.client.Calls() != before {
		t.Fatalf("resume made %d new calls", f.client.Calls()-before)
	}

	uc.Prior = map[string]curriculum.Provenance{
		curriculum.SubUnitKey(1, 2, curriculum.ArtGreeting).Path(): {Status: curriculum.StatusFallback},
	}
	if _, err := f.gen.Generate(context.Background(), uc, 2); err != nil {
		t.Fatalf("third Generate: %v", err)
	}
	if f.client.Calls() != before+1 {
		t.Fatalf("only the fallback greeting should be regenerated, calls %d -> %d", before, f.client.Calls())
	}
}

func TestGenerateRejectsMissingSpec(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := f.gen.Generate(context.Background(), &UnitContext{}, 1); err == nil {
		t.Fatalf("expected error without a spec")
	}
	if _, err := f.gen.Generate(context.Background(), testUnit(t, f.outl, 1), 5); err == nil {
		t.Fatalf("expected error for day 5")
	}
}
