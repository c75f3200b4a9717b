package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/yungbote/curriculum-engine/internal/data/artifacts"
	repos "github.com/yungbote/curriculum-engine/internal/data/repos/runs"
	types "github.com/yungbote/curriculum-engine/internal/domain"
	"github.com/yungbote/curriculum-engine/internal/domain/curriculum"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/budget"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/outline"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/planner"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/policy"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/prompts"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/quality"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/research"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/retry"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/subunit"
	"github.com/yungbote/curriculum-engine/internal/pkg/dbctx"
	apperr "github.com/yungbote/curriculum-engine/internal/pkg/errors"
	"github.com/yungbote/curriculum-engine/internal/platform/logger"
	"github.com/yungbote/curriculum-engine/internal/platform/openai"
	"github.com/yungbote/curriculum-engine/internal/realtime"
)

type recordingBus struct {
	mu     sync.Mutex
	events []realtime.ProgressEvent
}

func (b *recordingBus) Publish(ctx context.Context, ev realtime.ProgressEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
	return nil
}

func (b *recordingBus) StartForwarder(ctx context.Context, onEvent func(ev realtime.ProgressEvent)) error {
	return nil
}

func (b *recordingBus) Close() error { return nil }

func (b *recordingBus) count(t realtime.ProgressEventType) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, ev := range b.events {
		if ev.Event == t {
			n++
		}
	}
	return n
}

type fixture struct {
	runner *Runner
	store  artifacts.Store
	bus    *recordingBus
	dir    string
}

// newFixture wires the full stack against the dry-run client. override, when
// set, answers before the dry-run responder.
func newFixture(t *testing.T, override openai.Responder) *fixture {
	t.Helper()
	return newFixtureOn(t, override, artifacts.NewMemoryStore(), nil)
}

// newFixtureOn builds a fresh runner over an existing store, as a later
// invocation of the command would.
func newFixtureOn(t *testing.T, override openai.Responder, store artifacts.Store, reports repos.ValidationReportRepo) *fixture {
	t.Helper()
	log := logger.Nop()
	o, err := outline.New([]curriculum.UnitEntry{
		{Ordinal: 1, Title: "Alphabet and Sounds", GrammarFocus: "pronunciation", Chant: "a e i o u", VirtueFocus: "Diligence", Introduces: []string{"vowels"}},
		{Ordinal: 2, Title: "First Conjugation Verbs", GrammarFocus: "present tense", Chant: "amo amas amat", VirtueFocus: "Patience", Introduces: []string{"verb endings"}},
	})
	if err != nil {
		t.Fatalf("outline.New: %v", err)
	}
	dry := prompts.NewDryRunResponder(o)
	respond := dry
	if override != nil {
		respond = func(req openai.Request) (string, bool) {
			if text, ok := override(req); ok {
				return text, true
			}
			return dry(req)
		}
	}
	bus := &recordingBus{}
	dir := t.TempDir()
	pol := policy.Default()
	now := func() time.Time { return time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC) }

	var r *Runner
	ledger, err := budget.NewLedger(log, budget.Options{Cap: 5})
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	client := budget.NewMeteredClient(log, openai.NewDryRunClient(log, respond), ledger, "run-test")
	cascade, err := research.NewCascade(log, client, o, store, research.Options{
		Now: now,
		OnStep: func(ctx context.Context, unit int, key curriculum.StepKey, meta curriculum.StepMeta) {
			r.StepDone(ctx, unit, key, meta)
		},
	})
	if err != nil {
		t.Fatalf("NewCascade: %v", err)
	}
	runs := retry.NewRunner(log, retry.NewStoreAuditor(store), nil)
	plan := planner.New(log, client, o, store, pol, runs, planner.Options{
		SpecRetry: retry.Policy{MaxAttempts: 2, Backoff: retry.BackoffNone},
		Now:       now,
	})
	gen := subunit.New(log, client, o, store, pol, runs, subunit.Options{
		Retry: retry.Policy{MaxAttempts: 2, Backoff: retry.BackoffNone},
		Now:   now,
		OnArtifact: func(ctx context.Context, key curriculum.ArtifactKey, prov curriculum.Provenance) {
			r.ArtifactDone(ctx, key, prov)
		},
	})
	gate := quality.New(log, store, pol, quality.Options{Now: now})

	r = NewRunner(log, Deps{
		Outline:   o,
		Store:     store,
		Client:    client,
		Cascade:   cascade,
		Planner:   plan,
		Generator: gen,
		Gate:      gate,
		Ledger:    ledger,
		Reports:   reports,
		Bus:       bus,
	}, Options{RunID: "run-test", DryRun: true, OutputDir: dir, Now: now})
	return &fixture{runner: r, store: store, bus: bus, dir: dir}
}

func TestRunGeneratesPassingWeek(t *testing.T) {
	f := newFixture(t, nil)
	res, err := f.runner.Run(context.Background(), 1, 1)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Units) != 1 || !res.Units[0].Verdict.Passing() {
		t.Fatalf("units: %+v", res.Units)
	}
	if res.Usage.Calls == 0 {
		t.Fatalf("usage not recorded")
	}

	var glog curriculum.GenerationLog
	if err := artifacts.GetJSON(context.Background(), f.store, curriculum.UnitKey(1, curriculum.DocGenerationLog), &glog); err != nil {
		t.Fatalf("read generation log: %v", err)
	}
	if glog.Status != string(res.Units[0].Verdict) || glog.FinishedAt == nil || !glog.DryRun {
		t.Fatalf("generation log header: %+v", glog)
	}
	if _, ok := glog.Artifacts[curriculum.SubUnitKey(1, 3, curriculum.ArtGreeting).Path()]; !ok {
		t.Fatalf("generation log lacks day 3 greeting")
	}
	if _, ok := glog.Artifacts[curriculum.UnitKey(1, curriculum.DocUnitSpec).Path()]; !ok {
		t.Fatalf("generation log lacks the week spec")
	}
	if len(glog.Research) == 0 {
		t.Fatalf("generation log lacks research steps")
	}
	if v := glog.VocabularyVerified; v == nil || !v.LatinOnly || v.AlignmentCheck["matches_grammar_topic"] != true {
		t.Fatalf("generation log vocabulary verification: %+v", v)
	}

	if _, err := quality.LoadReport(context.Background(), f.store, 1); err != nil {
		t.Fatalf("validation report: %v", err)
	}
	if _, err := os.Stat(filepath.Join(f.dir, UsageSummaryFile)); err != nil {
		t.Fatalf("usage summary: %v", err)
	}
	if f.bus.count(realtime.EventUnitStarted) != 1 || f.bus.count(realtime.EventUnitCompleted) != 1 {
		t.Fatalf("unexpected lifecycle events: %+v", f.bus.events)
	}
	if f.bus.count(realtime.EventArtifactAccepted) == 0 {
		t.Fatalf("no artifact events published")
	}
}

func TestRunResumesAcceptedArtifacts(t *testing.T) {
	f := newFixture(t, nil)
	first, err := f.runner.Run(context.Background(), 1, 1)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	calls := first.Usage.Calls
	second, err := f.runner.Run(context.Background(), 1, 1)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if second.Usage.Calls != calls {
		t.Fatalf("resumed run spent %d more calls", second.Usage.Calls-calls)
	}
}

func TestRunBlocksOnMissingPrerequisite(t *testing.T) {
	f := newFixture(t, nil)
	res, err := f.runner.Run(context.Background(), 2, 2)
	var mp *apperr.MissingPrerequisiteError
	if !errors.As(err, &mp) || len(mp.Missing) != 1 || mp.Missing[0] != 1 {
		t.Fatalf("expected missing week 1, got %v", err)
	}
	if res.Units[0].Status != "blocked" || res.Usage.Calls != 0 {
		t.Fatalf("blocked unit: %+v usage %+v", res.Units[0], res.Usage)
	}
	if f.bus.count(realtime.EventUnitBlocked) != 1 {
		t.Fatalf("no blocked event")
	}
}

func TestRunStopsAtFailedWeek(t *testing.T) {
	wrongWeek := func(req openai.Request) (string, bool) {
		if req.Kind == string(prompts.PromptUnitSpec) {
			return `{"metadata":{"week":7,"title":"Other"},"objectives":["x"],"vocabulary":[{"latin":"amo"}],"grammar_focus":"g"}`, true
		}
		return "", false
	}
	f := newFixture(t, wrongWeek)
	res, err := f.runner.Run(context.Background(), 1, 2)
	if !errors.Is(err, apperr.ErrSpecGenerationFailed) {
		t.Fatalf("expected spec failure, got %v", err)
	}
	if len(res.Units) != 1 {
		t.Fatalf("run continued past the failed week: %+v", res.Units)
	}
	u := res.Units[0]
	if u.Status != "failed" || u.Failure == nil || u.Failure.Step != StagePlan || u.Failure.Artifact != curriculum.DocUnitSpec {
		t.Fatalf("failure detail: %+v", u.Failure)
	}
	var glog curriculum.GenerationLog
	if err := artifacts.GetJSON(context.Background(), f.store, curriculum.UnitKey(1, curriculum.DocGenerationLog), &glog); err != nil {
		t.Fatalf("read generation log: %v", err)
	}
	if glog.Status != "failed" || glog.Failure == nil {
		t.Fatalf("generation log: %+v", glog)
	}
	if f.bus.count(realtime.EventUnitFailed) != 1 {
		t.Fatalf("no failure event")
	}
}

type reportRows struct {
	latest *types.ValidationReportRow
}

func (r *reportRows) Create(dbc dbctx.Context, row *types.ValidationReportRow) error {
	r.latest = row
	return nil
}

func (r *reportRows) GetLatestByUnit(dbc dbctx.Context, unit int) (*types.ValidationReportRow, error) {
	if r.latest == nil || r.latest.Unit != unit {
		return nil, nil
	}
	return r.latest, nil
}

func expectBlockedOnWeekOne(t *testing.T, f *fixture) {
	t.Helper()
	res, err := f.runner.Run(context.Background(), 2, 2)
	var mp *apperr.MissingPrerequisiteError
	if !errors.Is(err, apperr.ErrMissingPrerequisite) || !errors.As(err, &mp) || mp.Smallest() != 1 {
		t.Fatalf("expected week 1 missing, got %v", err)
	}
	if res.Units[0].Status != "blocked" || res.Usage.Calls != 0 {
		t.Fatalf("blocked unit: %+v usage %+v", res.Units[0], res.Usage)
	}
}

func storeVerdict(t *testing.T, store artifacts.Store, unit int, v curriculum.Verdict) {
	t.Helper()
	report := curriculum.ValidationReport{Unit: unit, Verdict: v, Findings: []curriculum.Finding{}}
	if err := artifacts.PutJSON(context.Background(), store, curriculum.UnitKey(unit, curriculum.DocValidationReport), report); err != nil {
		t.Fatalf("store report: %v", err)
	}
}

func TestRunBlocksOnFailedPrerequisite(t *testing.T) {
	first := newFixture(t, nil)
	if _, err := first.runner.Run(context.Background(), 1, 1); err != nil {
		t.Fatalf("week 1: %v", err)
	}
	storeVerdict(t, first.store, 1, curriculum.VerdictFail)

	expectBlockedOnWeekOne(t, newFixtureOn(t, nil, first.store, nil))
}

func TestRunBlocksWhenOnlyAVerdictExists(t *testing.T) {
	store := artifacts.NewMemoryStore()
	storeVerdict(t, store, 1, curriculum.VerdictOK)
	expectBlockedOnWeekOne(t, newFixtureOn(t, nil, store, nil))

	rows := &reportRows{latest: &types.ValidationReportRow{Unit: 1, Verdict: string(curriculum.VerdictOK)}}
	expectBlockedOnWeekOne(t, newFixtureOn(t, nil, artifacts.NewMemoryStore(), rows))
}

func TestRunAcceptsPrerequisiteFromEarlierRun(t *testing.T) {
	first := newFixture(t, nil)
	if _, err := first.runner.Run(context.Background(), 1, 1); err != nil {
		t.Fatalf("week 1: %v", err)
	}
	f := newFixtureOn(t, nil, first.store, nil)
	res, err := f.runner.Run(context.Background(), 2, 2)
	if err != nil {
		t.Fatalf("week 2: %v", err)
	}
	if !res.Units[0].Verdict.Passing() {
		t.Fatalf("week 2 verdict: %+v", res.Units[0])
	}
}

func TestRunFailureInvalidatesStoredVerdict(t *testing.T) {
	store := artifacts.NewMemoryStore()
	storeVerdict(t, store, 1, curriculum.VerdictOK)
	wrongWeek := func(req openai.Request) (string, bool) {
		if req.Kind == string(prompts.PromptUnitSpec) {
			return `{"metadata":{"week":7,"title":"Other"},"objectives":["x"],"vocabulary":[{"latin":"amo"}],"grammar_focus":"g"}`, true
		}
		return "", false
	}
	f := newFixtureOn(t, wrongWeek, store, nil)
	if _, err := f.runner.Run(context.Background(), 1, 1); !errors.Is(err, apperr.ErrSpecGenerationFailed) {
		t.Fatalf("expected spec failure, got %v", err)
	}
	report, err := quality.LoadReport(context.Background(), store, 1)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if report.Verdict != curriculum.VerdictFail || report.Count(curriculum.SeverityError) != 1 {
		t.Fatalf("stale verdict survived the failure: %+v", report)
	}
}
