package quality

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/yungbote/curriculum-engine/internal/data/artifacts"
	"github.com/yungbote/curriculum-engine/internal/domain/curriculum"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/outline"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/policy"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/prompts"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/retry"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/subunit"
	"github.com/yungbote/curriculum-engine/internal/platform/logger"
	"github.com/yungbote/curriculum-engine/internal/platform/openai"
)

var testEntries = []curriculum.UnitEntry{
	{Ordinal: 1, Title: "Alphabet and Sounds", GrammarFocus: "pronunciation", Chant: "a e i o u", VirtueFocus: "Diligence", Introduces: []string{"vowels"}},
	{Ordinal: 2, Title: "First Conjugation Verbs", GrammarFocus: "present tense", Chant: "amo amas amat", VirtueFocus: "Patience", Introduces: []string{"verb endings"}},
}

// buildTree writes a complete dry-run artifact tree for unit into a fresh store.
func buildTree(t *testing.T, unit int) artifacts.Store {
	t.Helper()
	ctx := context.Background()
	o, err := outline.New(testEntries)
	if err != nil {
		t.Fatalf("outline.New: %v", err)
	}
	entry, _ := o.Entry(unit)
	store := artifacts.NewMemoryStore()

	spec := &curriculum.UnitSpec{
		Metadata:     curriculum.SpecMetadata{Unit: unit, Title: entry.Title, VirtueFocus: entry.VirtueFocus},
		Objectives:   []string{"Chant the forms"},
		Vocabulary:   []curriculum.VocabItem{{Latin: "amo", English: "I love"}},
		GrammarFocus: entry.GrammarFocus,
	}
	specDoc, _ := json.MarshalIndent(spec, "", "  ")
	findings := curriculum.ResearchFindings{
		Unit: unit,
		Steps: map[curriculum.StepKey]curriculum.StepResult{
			curriculum.StepWeekEntry: {Data: map[string]any{"week": unit, "title": entry.Title, "virtue_focus": entry.VirtueFocus}},
		},
	}
	mustPut(t, store, curriculum.UnitKey(unit, curriculum.DocUnitSpec), specDoc)
	mustPut(t, store, curriculum.UnitKey(unit, curriculum.DocUnitSummary), []byte("# Week summary\n\nLatin verbs, chants and the virtue of patience.\n"))
	mustPut(t, store, curriculum.UnitKey(unit, curriculum.DocUnitRoleContext), []byte(`{"sparky_role":"Latin tutor"}`))
	if err := artifacts.PutJSON(ctx, store, curriculum.UnitKey(unit, curriculum.DocResearchFindings), findings); err != nil {
		t.Fatalf("put findings: %v", err)
	}
	writeLog(t, store, unit, nil)

	client := openai.NewDryRunClient(logger.Nop(), prompts.NewDryRunResponder(o))
	gen := subunit.New(logger.Nop(), client, o, store, policy.Default(), retry.NewRunner(logger.Nop(), nil, nil), subunit.Options{
		Retry: retry.Policy{MaxAttempts: 2, Backoff: retry.BackoffNone},
	})
	if _, err := gen.GenerateAll(ctx, &subunit.UnitContext{Entry: entry, Spec: spec, SpecDoc: specDoc}); err != nil {
		t.Fatalf("GenerateAll: %v", err)
	}
	return store
}

func writeLog(t *testing.T, store artifacts.Store, unit int, artifactsProv map[string]curriculum.Provenance) {
	t.Helper()
	l := curriculum.NewGenerationLog("run-test", unit, time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC))
	for k, v := range artifactsProv {
		l.Artifacts[k] = v
	}
	if err := artifacts.PutJSON(context.Background(), store, curriculum.UnitKey(unit, curriculum.DocGenerationLog), l); err != nil {
		t.Fatalf("put generation log: %v", err)
	}
}

func mustPut(t *testing.T, store artifacts.Store, key curriculum.ArtifactKey, b []byte) {
	t.Helper()
	if err := store.Put(context.Background(), key, b); err != nil {
		t.Fatalf("put %s: %v", key, err)
	}
}

func newGate(store artifacts.Store) *Gate {
	return New(logger.Nop(), store, policy.Default(), Options{})
}

func TestEvaluateDryRunTreeIsOK(t *testing.T) {
	store := buildTree(t, 2)
	report, err := newGate(store).Evaluate(context.Background(), 2)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if report.Verdict != curriculum.VerdictOK {
		t.Fatalf("verdict = %s, findings %+v", report.Verdict, report.Findings)
	}
	if report.Metrics["spiral_fraction"] != 0.3 {
		t.Fatalf("spiral fraction = %v", report.Metrics["spiral_fraction"])
	}
}

func TestEvaluateIsIdempotent(t *testing.T) {
	store := buildTree(t, 2)
	g := newGate(store)
	first, err := g.Evaluate(context.Background(), 2)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	second, err := g.Evaluate(context.Background(), 2)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("reports differ:\n%+v\n%+v", first, second)
	}
}

func TestLowSpiralCoverageFails(t *testing.T) {
	store := buildTree(t, 2)
	q := curriculum.Quiz{}
	for i := 0; i < 10; i++ {
		it := curriculum.QuizItem{ID: fmt.Sprintf("q%d", i+1), Prompt: "Translate amo", Answer: "I love", Tag: curriculum.TagNew, SourceUnit: 2}
		if i == 0 {
			it.Tag, it.SourceUnit = curriculum.TagReview, 1
		}
		q.Items = append(q.Items, it)
	}
	b, _ := json.Marshal(q)
	mustPut(t, store, curriculum.SubUnitKey(2, 4, curriculum.ArtQuiz), b)

	report, err := newGate(store).Evaluate(context.Background(), 2)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if report.Verdict != curriculum.VerdictFail {
		t.Fatalf("verdict = %s", report.Verdict)
	}
	var found *curriculum.Finding
	for i := range report.Findings {
		if strings.Contains(report.Findings[i].Message, "10.0%") {
			found = &report.Findings[i]
		}
	}
	if found == nil || found.Severity != curriculum.SeverityError || found.SuggestedPatch != "swap 2 items for review items" {
		t.Fatalf("spiral finding: %+v", report.Findings)
	}
}

func TestWeekOneSpiralIsInformational(t *testing.T) {
	store := buildTree(t, 1)
	report, err := newGate(store).Evaluate(context.Background(), 1)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if report.Verdict != curriculum.VerdictOK || report.Count(curriculum.SeverityInfo) != 1 {
		t.Fatalf("week 1 report: %s %+v", report.Verdict, report.Findings)
	}
}

func TestMissingArtifactFails(t *testing.T) {
	store := buildTree(t, 2)
	mem := artifacts.NewMemoryStore()
	keys, _ := store.List(context.Background(), 2)
	greeting := curriculum.SubUnitKey(2, 3, curriculum.ArtGreeting)
	for _, k := range keys {
		if k == greeting {
			continue
		}
		b, _ := store.Get(context.Background(), k)
		mustPut(t, mem, k, b)
	}
	report, err := newGate(mem).Evaluate(context.Background(), 2)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if report.Verdict != curriculum.VerdictFail {
		t.Fatalf("verdict = %s", report.Verdict)
	}
	if report.Findings[0].Location != greeting.Path() || report.Findings[0].Message != "missing" {
		t.Fatalf("first finding: %+v", report.Findings[0])
	}
}

func TestFallbackArtifactsWarn(t *testing.T) {
	store := buildTree(t, 2)
	path := curriculum.SubUnitKey(2, 1, curriculum.ArtSummary).Path()
	writeLog(t, store, 2, map[string]curriculum.Provenance{
		path: {Attempt: 10, Method: curriculum.MethodFallback, Status: curriculum.StatusFallback, Reason: "too short"},
	})
	report, err := newGate(store).Evaluate(context.Background(), 2)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if report.Verdict != curriculum.VerdictWarn {
		t.Fatalf("verdict = %s, findings %+v", report.Verdict, report.Findings)
	}
	last := report.Findings[len(report.Findings)-1]
	if last.Location != path || !strings.Contains(last.Message, "too short") {
		t.Fatalf("fallback finding: %+v", last)
	}
}

func TestCheckPersistsReport(t *testing.T) {
	store := buildTree(t, 2)
	report, err := newGate(store).Check(context.Background(), "run-test", 2)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	stored, err := LoadReport(context.Background(), store, 2)
	if err != nil {
		t.Fatalf("LoadReport: %v", err)
	}
	if stored.Verdict != report.Verdict || len(stored.Findings) != len(report.Findings) {
		t.Fatalf("stored %+v, returned %+v", stored, report)
	}
}
