package prompts

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/yungbote/curriculum-engine/internal/domain/curriculum"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/outline"
	"github.com/yungbote/curriculum-engine/internal/platform/openai"
)

var allPrompts = []PromptName{
	PromptBackwardAnalysis, PromptForwardAnalysis, PromptPedagogicalResearch, PromptVocabularyPlan,
	PromptVirtueFaith, PromptAssessmentPlan, PromptDifferentiation, PromptMasterAnalysis, PromptAlignmentGuide,
	PromptUnitSpec, PromptUnitSummary,
	PromptClassName, PromptDaySummary, PromptRoleContext, PromptGuidelines, PromptTeachingPacket,
	PromptGreeting, PromptQuiz, PromptAnswerKey,
}

func fullInput() Input {
	return Input{
		Unit: 2, SubUnit: 4,
		UnitTitle:    "First Conjugation Verbs",
		GrammarFocus: "present tense endings",
		SpecJSON:     `{"metadata":{"week":2}}`,
		QuizJSON:     `{"items":[]}`,
	}
}

func TestEveryPromptBuilds(t *testing.T) {
	for _, name := range allPrompts {
		p, err := Build(name, fullInput())
		if err != nil {
			t.Fatalf("Build(%s): %v", name, err)
		}
		if p.System == "" || p.User == "" {
			t.Fatalf("%s rendered empty", name)
		}
		if strings.Contains(p.User, "<no value>") {
			t.Fatalf("%s rendered a missing key", name)
		}
	}
}

func TestBuildRunsValidators(t *testing.T) {
	if _, err := Build(PromptClassName, Input{Unit: 2, SubUnit: 5, SpecJSON: "{}"}); err == nil {
		t.Fatalf("expected sub-unit validation error")
	}
	if _, err := Build(PromptUnitSpec, Input{Unit: 0, UnitTitle: "x"}); err == nil {
		t.Fatalf("expected unit validation error")
	}
	if _, err := Build("nope", Input{}); err == nil {
		t.Fatalf("expected unknown prompt error")
	}
}

func TestFeedbackIsAppended(t *testing.T) {
	in := fullInput()
	in.Feedback = "class name mentions ecosystem"
	p, err := Build(PromptClassName, in)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !strings.Contains(p.User, "PREVIOUS ATTEMPT WAS REJECTED") || !strings.Contains(p.User, "ecosystem") {
		t.Fatalf("feedback missing from prompt:\n%s", p.User)
	}
	in.Feedback = ""
	p, _ = Build(PromptClassName, in)
	if strings.Contains(p.User, "PREVIOUS ATTEMPT") {
		t.Fatalf("feedback block rendered without feedback")
	}
}

func TestRequestCarriesShapeAndTier(t *testing.T) {
	p, err := Build(PromptVocabularyPlan, fullInput())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	req := p.Request(2, 0, "week_2_vocab")
	if req.Shape != openai.ShapeJSON || req.Tier != openai.TierReasoning || req.Kind != string(PromptVocabularyPlan) {
		t.Fatalf("request: %+v", req)
	}
}

func testOutline(t *testing.T) *outline.Store {
	t.Helper()
	entries := []curriculum.UnitEntry{}
	for i := 1; i <= 3; i++ {
		entries = append(entries, curriculum.UnitEntry{
			Ordinal: i, Title: "Latin Sounds " + string(rune('A'+i-1)), GrammarFocus: "pronunciation",
			Chant: "Salve chant", VirtueFocus: "Diligence", Introduces: []string{"vowels"},
		})
	}
	o, err := outline.New(entries)
	if err != nil {
		t.Fatalf("outline.New: %v", err)
	}
	return o
}

func TestDryRunResponderCoversJSONPrompts(t *testing.T) {
	respond := NewDryRunResponder(testOutline(t))
	for _, name := range allPrompts {
		p, err := Build(name, fullInput())
		if err != nil {
			t.Fatalf("Build(%s): %v", name, err)
		}
		text, ok := respond(p.Request(2, 4, ""))
		if !ok || text == "" {
			t.Fatalf("%s: no canned response", name)
		}
		if p.Shape == openai.ShapeJSON {
			if _, err := openai.ParseJSONObject(string(name), text); err != nil {
				t.Fatalf("%s: %v", name, err)
			}
		}
	}
}

func TestDryRunQuizHasReviewShare(t *testing.T) {
	respond := NewDryRunResponder(testOutline(t))
	text, _ := respond(openai.Request{Kind: string(PromptQuiz), Unit: 2, SubUnit: 4})
	var q curriculum.Quiz
	if err := json.Unmarshal([]byte(text), &q); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if c := q.Spiral(); c.Fraction < 0.25 || c.Fraction > 0.40 {
		t.Fatalf("spiral fraction %.2f outside 25-40%%", c.Fraction)
	}
	text, _ = respond(openai.Request{Kind: string(PromptQuiz), Unit: 1, SubUnit: 4})
	q = curriculum.Quiz{}
	_ = json.Unmarshal([]byte(text), &q)
	if c := q.Spiral(); c.ReviewItems != 0 {
		t.Fatalf("week 1 quiz has %d review items", c.ReviewItems)
	}
}

func TestDryRunResponderUnknownUnit(t *testing.T) {
	respond := NewDryRunResponder(testOutline(t))
	if _, ok := respond(openai.Request{Kind: string(PromptQuiz), Unit: 9}); ok {
		t.Fatalf("expected no response for a unit outside the outline")
	}
}
