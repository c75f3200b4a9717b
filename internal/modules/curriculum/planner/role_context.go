package planner

import (
	"github.com/yungbote/curriculum-engine/internal/domain/curriculum"
	"github.com/yungbote/curriculum-engine/internal/pkg/anyx"
)

type dayPlan struct {
	Day   int    `json:"day"`
	Focus string `json:"focus"`
}

type unitRoleContext struct {
	Unit           int       `json:"week"`
	Title          string    `json:"title"`
	SparkyRole     string    `json:"sparky_role"`
	VirtueFocus    string    `json:"virtue_focus"`
	GrammarFocus   string    `json:"grammar_focus"`
	Vocabulary     []string  `json:"vocabulary"`
	PriorKnowledge []string  `json:"prior_knowledge"`
	SpiralTargets  []string  `json:"spiral_targets"`
	CommonMistakes []string  `json:"common_mistakes"`
	Scaffolds      []string  `json:"scaffolds"`
	Extensions     []string  `json:"extensions"`
	Days           []dayPlan `json:"days"`
}

// unitRoleContext derives the week's tutor profile from the spec and research;
// it never calls the model.
func (p *Planner) unitRoleContext(entry curriculum.UnitEntry, spec *curriculum.UnitSpec, f *curriculum.ResearchFindings) unitRoleContext {
	prior := []string{}
	if entry.Ordinal > 1 {
		prior, _ = p.outline.CumulativeConcepts(entry.Ordinal - 1)
	}
	backward := f.StepData(curriculum.StepBackwardAnalysis)
	diff := f.StepData(curriculum.StepDifferentiation)

	rc := unitRoleContext{
		Unit:           entry.Ordinal,
		Title:          entry.Title,
		SparkyRole:     "Latin tutor",
		VirtueFocus:    firstNonEmpty(spec.Metadata.VirtueFocus, entry.VirtueFocus),
		GrammarFocus:   firstNonEmpty(spec.GrammarFocus, entry.GrammarFocus),
		Vocabulary:     spec.VocabularyWords(),
		PriorKnowledge: anyx.Dedupe(prior),
		SpiralTargets:  append([]string{}, spec.SpiralLinks...),
		CommonMistakes: anyx.StringSlice(backward["common_mistakes_by_now"]),
		Scaffolds:      anyx.StringSlice(anyx.Map(diff["struggling_students"])["scaffolds"]),
		Extensions:     anyx.StringSlice(anyx.Map(diff["advanced_students"])["extensions"]),
	}
	for d := 1; d <= curriculum.SubUnitsPerUnit; d++ {
		rc.Days = append(rc.Days, dayPlan{Day: d, Focus: curriculum.SubUnitFocus(d)})
	}
	return rc
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
