package curriculum

import "fmt"

// SubUnitsPerUnit is fixed: every unit (week) has four sub-units (days).
const SubUnitsPerUnit = 4

// UnitEntry is one row of the curriculum outline. Loaded once, never mutated.
type UnitEntry struct {
	Ordinal          int      `yaml:"week" json:"week"`
	Title            string   `yaml:"title" json:"title"`
	ContentFocus     string   `yaml:"content_focus" json:"content_focus"`
	GrammarFocus     string   `yaml:"grammar_focus" json:"grammar_focus"`
	VocabularyDomain string   `yaml:"vocabulary_domain" json:"vocabulary_domain"`
	Chant            string   `yaml:"chant" json:"chant"`
	VirtueFocus      string   `yaml:"virtue_focus" json:"virtue_focus"`
	SessionDuration  string   `yaml:"session_duration" json:"session_duration"`
	Prerequisites    []int    `yaml:"prerequisites" json:"prerequisites"`
	Introduces       []string `yaml:"introduces" json:"introduces"`
}

// SubUnitFocus is the pedagogical focus of each day.
func SubUnitFocus(subUnit int) string {
	switch subUnit {
	case 1:
		return "Introduction and exploration"
	case 2:
		return "Practice and reinforcement"
	case 3:
		return "Application and extension"
	case 4:
		return "Review and spiral (prior-unit content)"
	default:
		return ""
	}
}

func UnitDir(unit int) string { return fmt.Sprintf("Week%02d", unit) }

func SubUnitDir(subUnit int) string { return fmt.Sprintf("Day%d", subUnit) }
