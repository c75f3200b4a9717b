package subunit

import (
	"fmt"
	"strings"

	"github.com/yungbote/curriculum-engine/internal/domain/curriculum"
)

// Deterministic degraded content. Everything here is flagged as a fallback
// in provenance, so the quality gate reports it even when it parses cleanly.

func fallbackSummary(uc *UnitContext, subUnit int) string {
	return fmt.Sprintf("## Day %d: %s\n\nStudents continue their Latin study of %s with the vocabulary %s. Review the chant and close with the week's virtue, %s.\n",
		subUnit,
		curriculum.SubUnitFocus(subUnit),
		orDefault(uc.Spec.GrammarFocus, uc.Entry.GrammarFocus),
		vocabList(uc.Spec),
		orDefault(uc.Spec.Metadata.VirtueFocus, uc.Entry.VirtueFocus),
	)
}

func fallbackRoleContext(uc *UnitContext, subUnit int) map[string]any {
	emphasis := []any{}
	if uc.Entry.Ordinal > 1 {
		for _, link := range uc.Spec.SpiralLinks {
			emphasis = append(emphasis, link)
		}
		for back := uc.Entry.Ordinal - 1; back >= 1 && len(emphasis) < 2; back-- {
			emphasis = append(emphasis, fmt.Sprintf("Week %d vocabulary", back))
		}
	}
	return map[string]any{
		"sparky_role":     "Latin tutor",
		"focus_mode":      strings.ToLower(curriculum.SubUnitFocus(subUnit)),
		"hints_enabled":   subUnit < curriculum.SubUnitsPerUnit,
		"spiral_emphasis": emphasis,
		"encouragement_triggers": []any{
			"Student recites the chant",
			"Student corrects a mistake",
			"Student uses a new Latin word",
		},
	}
}

func fallbackGuidelines(uc *UnitContext, subUnit int, reviewMin string) string {
	prior := []string{}
	if uc.Entry.Ordinal > 1 {
		prior = append(prior, fmt.Sprintf("week %d", uc.Entry.Ordinal-1))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "---\nprior_knowledge: [%s]\nvocabulary: [%s]\ngrammar_focus: %q\nvirtue: %q\n---\n\n",
		strings.Join(prior, ", "),
		vocabList(uc.Spec),
		orDefault(uc.Spec.GrammarFocus, uc.Entry.GrammarFocus),
		orDefault(uc.Spec.Metadata.VirtueFocus, uc.Entry.VirtueFocus),
	)
	fmt.Fprintf(&b, "# Sparky guidelines, day %d\n\nLead the %s portion of the week. Say each Latin word aloud and have students echo it.\n",
		subUnit, strings.ToLower(curriculum.SubUnitFocus(subUnit)))
	if subUnit == curriculum.SubUnitsPerUnit {
		fmt.Fprintf(&b, "\nSpend at least %s of the session on spiral review of prior weeks before the quiz.\n", reviewMin)
	}
	return b.String()
}

func fallbackPacket(uc *UnitContext) map[string]string {
	spec := uc.Spec
	keys := make([]string, 0, len(spec.Vocabulary))
	for _, v := range spec.Vocabulary {
		keys = append(keys, strings.TrimSpace(v.Latin+" - "+v.English))
	}
	virtue := orDefault(spec.Metadata.VirtueFocus, uc.Entry.VirtueFocus)
	chant := orDefault(spec.ChantName, uc.Entry.Chant)
	return map[string]string{
		"spiral_review_document.txt":      "Spiral review: open each day by revisiting Latin words and chants from earlier weeks.",
		"weekly_topics_document.txt":      fmt.Sprintf("Week %d topics: %s. Grammar focus: %s.", uc.Entry.Ordinal, uc.Entry.Title, orDefault(spec.GrammarFocus, uc.Entry.GrammarFocus)),
		"virtue_and_faith_document.txt":   fmt.Sprintf("Virtue of the week: %s. Connect each lesson to this virtue and to our faith.", virtue),
		"vocabulary_key_document.txt":     "Vocabulary key for this week: " + strings.Join(keys, "; "),
		"chant_chart_document.txt":        fmt.Sprintf("Chant chart: %s. Chant it slowly, then briskly, then from memory.", chant),
		"teacher_voice_tips_document.txt": "Voice tips: speak slowly and clearly, praise effort, and let students echo every Latin word.",
	}
}

func fallbackGreeting(unit, subUnit int) string {
	return fmt.Sprintf("Salvete, discipuli! Welcome to week %d, day %d of our Latin adventure.", unit, subUnit)
}

func vocabList(spec *curriculum.UnitSpec) string {
	return strings.Join(spec.VocabularyWords(), ", ")
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) != "" {
		return v
	}
	return def
}
