package outline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/yungbote/curriculum-engine/internal/domain/curriculum"
	apperr "github.com/yungbote/curriculum-engine/internal/pkg/errors"
)

const sampleOutline = `
total_weeks: 3
weeks:
  - week: 1
    title: "Latin Alphabet and Pronunciation"
    content_focus: "Sounds of Latin"
    grammar_focus: "Alphabet, vowels, diphthongs"
    vocabulary_domain: "Classroom greetings"
    chant: "Vowel chant"
    virtue_focus: "Attentiveness"
    session_duration: "13 minutes"
    prerequisites: []
    introduces: ["alphabet", "vowels", "diphthongs", "greetings"]
  - week: 2
    title: "First Declension Nouns"
    content_focus: "Feminine nouns"
    grammar_focus: "First declension, nominative and accusative"
    vocabulary_domain: "Family"
    chant: "First declension endings"
    virtue_focus: "Patience"
    session_duration: "13 minutes"
    prerequisites: [1]
    introduces: ["first declension", "nominative case"]
  - week: 3
    title: "Sum, Esse"
    content_focus: "To be"
    grammar_focus: "Present tense of sum"
    vocabulary_domain: "Places"
    chant: "Sum es est"
    virtue_focus: "Honesty"
    session_duration: "13 minutes"
    prerequisites: [1, 2]
    introduces: ["sum esse"]
`

func mustLoad(t *testing.T) *Store {
	t.Helper()
	s, err := Load(strings.NewReader(sampleOutline))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return s
}

func TestEntryAndRange(t *testing.T) {
	s := mustLoad(t)
	if s.Total() != 3 {
		t.Fatalf("total: %d", s.Total())
	}
	e, err := s.Entry(2)
	if err != nil || e.Title != "First Declension Nouns" {
		t.Fatalf("Entry(2): %+v %v", e, err)
	}
	for _, bad := range []int{0, 4, -1} {
		if _, err := s.Entry(bad); !errors.Is(err, ErrOrdinalOutOfRange) || !errors.Is(err, apperr.ErrInvalidArgument) {
			t.Fatalf("Entry(%d): expected out of range, got %v", bad, err)
		}
	}
}

func TestEntryIsACopy(t *testing.T) {
	s := mustLoad(t)
	e, _ := s.Entry(1)
	e.Introduces[0] = "mutated"
	again, _ := s.Entry(1)
	if again.Introduces[0] != "alphabet" {
		t.Fatalf("outline entries must be immutable")
	}
}

func TestCumulativeAndPreview(t *testing.T) {
	s := mustLoad(t)
	got, err := s.CumulativeConcepts(2)
	if err != nil {
		t.Fatalf("CumulativeConcepts: %v", err)
	}
	want := []string{"alphabet", "vowels", "diphthongs", "greetings", "first declension", "nominative case"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("cumulative: %v", got)
	}
	up, err := s.UpcomingPreview(1, 5)
	if err != nil || len(up) != 2 || up[0].Ordinal != 2 {
		t.Fatalf("preview: %+v %v", up, err)
	}
	if !strings.Contains(s.UpcomingSummary(1, 1), "DO NOT teach: first declension, nominative case") {
		t.Fatalf("upcoming summary: %q", s.UpcomingSummary(1, 1))
	}
	if s.UpcomingSummary(3, 2) != "No upcoming weeks (final week)" {
		t.Fatalf("final week summary: %q", s.UpcomingSummary(3, 2))
	}
	if s.PriorSummary(1) != "No prior weeks (this is Week 1)" {
		t.Fatalf("prior summary for week 1: %q", s.PriorSummary(1))
	}
	if !strings.HasPrefix(s.PriorSummary(3), "Week 1: Latin Alphabet and Pronunciation (introduced: alphabet, vowels, diphthongs...)") {
		t.Fatalf("prior summary: %q", s.PriorSummary(3))
	}
}

func TestValidatePrerequisites(t *testing.T) {
	s := mustLoad(t)
	ctx := context.Background()
	present := map[int]bool{1: true}
	check := func(_ context.Context, unit int) (bool, error) { return present[unit], nil }

	if err := s.ValidatePrerequisites(ctx, 1, check); err != nil {
		t.Fatalf("week 1 has no prerequisites: %v", err)
	}
	if err := s.ValidatePrerequisites(ctx, 2, check); err != nil {
		t.Fatalf("week 2 should pass: %v", err)
	}
	err := s.ValidatePrerequisites(ctx, 3, check)
	var mp *apperr.MissingPrerequisiteError
	if !errors.As(err, &mp) || mp.Smallest() != 2 || mp.Unit != 3 {
		t.Fatalf("expected missing week 2, got %v", err)
	}

	present = map[int]bool{}
	err = s.ValidatePrerequisites(ctx, 3, check)
	if !errors.As(err, &mp) || mp.Smallest() != 1 || len(mp.Missing) != 2 {
		t.Fatalf("expected weeks 1 and 2 missing, got %v", err)
	}
}

func TestNewRejectsBadOutlines(t *testing.T) {
	cases := map[string][]curriculum.UnitEntry{
		"gap":          {{Ordinal: 1, Title: "a"}, {Ordinal: 3, Title: "c"}},
		"forward dep":  {{Ordinal: 1, Title: "a", Prerequisites: []int{2}}, {Ordinal: 2, Title: "b"}},
		"self dep":     {{Ordinal: 1, Title: "a", Prerequisites: []int{1}}},
		"missing name": {{Ordinal: 1}},
		"empty":        {},
	}
	for name, entries := range cases {
		if _, err := New(entries); !errors.Is(err, apperr.ErrInvalidArgument) {
			t.Fatalf("%s: expected invalid argument, got %v", name, err)
		}
	}
}

func TestLoadRejectsCountMismatch(t *testing.T) {
	bad := strings.Replace(sampleOutline, "total_weeks: 3", "total_weeks: 35", 1)
	if _, err := Load(strings.NewReader(bad)); err == nil {
		t.Fatalf("expected total mismatch error")
	}
}
