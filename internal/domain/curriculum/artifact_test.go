package curriculum

import "testing"

func TestArtifactKeyPathRoundTrip(t *testing.T) {
	keys := []ArtifactKey{
		UnitKey(3, DocUnitSpec),
		SubUnitKey(12, 4, ArtQuiz),
		SubUnitKey(1, 2, PacketDoc(TeachingPacketDocs[0])),
	}
	for _, k := range keys {
		got, err := ParseKeyPath(k.Path())
		if err != nil {
			t.Fatalf("ParseKeyPath(%q): %v", k.Path(), err)
		}
		if got != k {
			t.Fatalf("round trip: want=%+v got=%+v", k, got)
		}
	}
	if p := SubUnitKey(7, 1, ArtClassName).Path(); p != "Week07/Day1/01_class_name.txt" {
		t.Fatalf("path: got=%q", p)
	}
}

func TestParseKeyPathRejectsForeignPaths(t *testing.T) {
	for _, p := range []string{"manifest.json", "Week01/Day9/x", "WeekX/internal_documents/a", "Week01/notes/a"} {
		if _, err := ParseKeyPath(p); err == nil {
			t.Fatalf("expected error for %q", p)
		}
	}
}

func TestReportDecide(t *testing.T) {
	r := &ValidationReport{Unit: 1}
	if r.Decide() != VerdictOK {
		t.Fatalf("empty report should be ok")
	}
	r.Add(SeverityInfo, "Week01", "note")
	if r.Decide() != VerdictOK {
		t.Fatalf("info-only report should be ok")
	}
	r.Add(SeverityWarning, "Week01", "thin")
	if r.Decide() != VerdictWarn {
		t.Fatalf("warning should warn")
	}
	r.Add(SeverityError, "Week01", "broken")
	if r.Decide() != VerdictFail {
		t.Fatalf("error should fail")
	}
	if VerdictFail.Passing() || !VerdictWarn.Passing() {
		t.Fatalf("Passing mismatch")
	}
}

func TestBundleFlaggedSorted(t *testing.T) {
	b := NewSubUnitBundle(1, 1)
	b.Put(&Artifact{Key: SubUnitKey(1, 1, ArtGreeting), Provenance: Provenance{Status: StatusFallback}})
	b.Put(&Artifact{Key: SubUnitKey(1, 1, ArtClassName), Provenance: Provenance{Status: StatusFallback}})
	b.Put(&Artifact{Key: SubUnitKey(1, 1, ArtSummary), Provenance: Provenance{Status: StatusAccepted}})
	got := b.Flagged()
	if len(got) != 2 || got[0] != ArtClassName || got[1] != ArtGreeting {
		t.Fatalf("flagged: %v", got)
	}
}

func TestVerifyVocabulary(t *testing.T) {
	if VerifyVocabulary(&ResearchFindings{Unit: 2}) != nil {
		t.Fatalf("verification without a vocabulary plan")
	}
	f := &ResearchFindings{Unit: 2, Steps: map[StepKey]StepResult{
		StepVocabulary: {Data: map[string]any{
			"alignment_check": map[string]any{"matches_grammar_topic": true, "latin_only": true},
		}},
	}}
	v := VerifyVocabulary(f)
	if v == nil || !v.LatinOnly || v.AlignmentCheck["matches_grammar_topic"] != true {
		t.Fatalf("verification: %+v", v)
	}
	f.Steps[StepVocabulary] = StepResult{Data: map[string]any{}}
	if v := VerifyVocabulary(f); v == nil || v.LatinOnly || v.AlignmentCheck == nil {
		t.Fatalf("missing alignment check: %+v", v)
	}
}
