package curriculum

import "strings"

// SpecShape tags which historical document layout a unit spec arrived in.
type SpecShape string

const (
	ShapeCanonical SpecShape = "canonical_v2"
	ShapeFileKeyed SpecShape = "file_keyed_v1"
	ShapeWrapped   SpecShape = "wrapped"
	ShapeUnknown   SpecShape = "unknown"
)

type VocabItem struct {
	Latin        string `json:"latin"`
	English      string `json:"english"`
	PartOfSpeech string `json:"part_of_speech,omitempty"`
}

type SpecMetadata struct {
	Unit            int    `json:"week"`
	Title           string `json:"title"`
	Theme           string `json:"theme,omitempty"`
	VirtueFocus     string `json:"virtue_focus,omitempty"`
	SessionDuration string `json:"session_duration,omitempty"`
}

// UnitSpec is the canonical compiled specification of a unit, whatever shape it was parsed from.
type UnitSpec struct {
	Metadata     SpecMetadata   `json:"metadata"`
	Objectives   []string       `json:"objectives"`
	Vocabulary   []VocabItem    `json:"vocabulary"`
	GrammarFocus string         `json:"grammar_focus"`
	FocusTopic   string         `json:"focus_topic,omitempty"`
	ChantName    string         `json:"chant_name,omitempty"`
	ChantText    string         `json:"chant_text,omitempty"`
	SpiralLinks  []string       `json:"spiral_links,omitempty"`
	Shape        SpecShape      `json:"-"`
	Raw          map[string]any `json:"-"`
}

// VocabularyWords returns the lowercase Latin headwords.
func (s *UnitSpec) VocabularyWords() []string {
	out := make([]string, 0, len(s.Vocabulary))
	for _, v := range s.Vocabulary {
		if v.Latin != "" {
			out = append(out, strings.ToLower(strings.TrimSpace(v.Latin)))
		}
	}
	return out
}
