package research

import (
	"github.com/yungbote/curriculum-engine/internal/domain/curriculum"
	"github.com/yungbote/curriculum-engine/internal/pkg/anyx"
)

type ruleInput struct {
	Entry      curriculum.UnitEntry
	Cumulative []string
	Deps       map[curriculum.StepKey]map[string]any
}

func weekEntry(in ruleInput) (map[string]any, error) {
	e := in.Entry
	return map[string]any{
		"week":                e.Ordinal,
		"title":               e.Title,
		"content_focus":       e.ContentFocus,
		"grammar_focus":       e.GrammarFocus,
		"vocabulary_domain":   e.VocabularyDomain,
		"chant":               e.Chant,
		"virtue_focus":        e.VirtueFocus,
		"session_duration":    e.SessionDuration,
		"prerequisites":       append([]int{}, e.Prerequisites...),
		"introduces":          append([]string{}, e.Introduces...),
		"cumulative_concepts": append([]string{}, in.Cumulative...),
	}, nil
}

// SessionMinutes is the recommended lesson length for a week.
func SessionMinutes(week int) (minutes int, rationale string) {
	switch {
	case week <= 8:
		return 13, "Weeks 1-8: novice attention span, building stamina"
	case week <= 20:
		return 18, "Weeks 9-20: building stamina, more content"
	default:
		return 23, "Weeks 21-35: established routine, complex topics"
	}
}

func sessionDuration(in ruleInput) (map[string]any, error) {
	minutes, rationale := SessionMinutes(in.Entry.Ordinal)
	return map[string]any{
		"week_number":                  in.Entry.Ordinal,
		"recommended_duration_minutes": minutes,
		"rationale":                    rationale,
		"time_breakdown": map[string]any{
			"greeting_and_spiral": 3,
			"chant_practice":      3,
			"grammar_instruction": minutes - 10,
			"guided_practice":     3,
			"virtue_closure":      1,
		},
	}, nil
}

func words(list any) []string {
	out := []string{}
	for _, item := range anyx.Slice(list) {
		if w := anyx.String(anyx.Map(item)["word"]); w != "" {
			out = append(out, w)
		}
	}
	return out
}

func materialsPlan(in ruleInput) (map[string]any, error) {
	vocab := in.Deps[curriculum.StepVocabulary]
	assessment := in.Deps[curriculum.StepAssessmentPlan]

	components := []string{}
	for _, c := range anyx.Slice(assessment["day_4_quiz_components"]) {
		if name := anyx.String(anyx.Map(c)["component"]); name != "" {
			components = append(components, name)
		}
	}
	grammar := in.Entry.GrammarFocus
	if grammar == "" {
		grammar = in.Entry.Title
	}
	return map[string]any{
		"chant_charts": []any{
			map[string]any{
				"title":   "Week Paradigm Chart",
				"content": grammar,
				"format":  "Large poster, laminated",
			},
		},
		"flashcard_sets": []any{
			map[string]any{
				"set_name": "New Vocabulary",
				"cards":    words(vocab["new_latin_words"]),
				"format":   "3x5 index cards, Latin front / English and pronunciation back",
			},
			map[string]any{
				"set_name": "Review Vocabulary",
				"cards":    words(vocab["recycled_latin_words"]),
				"format":   "Same style, marked REVIEW",
			},
		},
		"worksheets": []any{
			map[string]any{
				"title":     "Practice Sheet",
				"exercises": []string{"Fill in the blank", "Translation", "Parsing"},
			},
		},
		"assessment_materials": components,
		"visual_aids":          []string{"Picture cards for concrete nouns", "Grammar charts"},
	}, nil
}
