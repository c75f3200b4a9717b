package planner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/yungbote/curriculum-engine/internal/domain/curriculum"
	"github.com/yungbote/curriculum-engine/internal/pkg/anyx"
	apperr "github.com/yungbote/curriculum-engine/internal/pkg/errors"
)

const fileKeyedMetadata = "01_metadata.json"

// DetectShape tags which historical layout a decoded spec document uses.
func DetectShape(raw map[string]any) curriculum.SpecShape {
	if len(raw) == 0 {
		return curriculum.ShapeUnknown
	}
	if inner, ok := raw["week_spec"].(map[string]any); ok && len(raw) == 1 {
		if DetectShape(inner) == curriculum.ShapeCanonical {
			return curriculum.ShapeWrapped
		}
		return curriculum.ShapeUnknown
	}
	if _, ok := raw[fileKeyedMetadata]; ok {
		return curriculum.ShapeFileKeyed
	}
	if _, ok := raw["metadata"].(map[string]any); ok {
		return curriculum.ShapeCanonical
	}
	return curriculum.ShapeUnknown
}

// ParseSpec converts any known layout into the canonical UnitSpec.
func ParseSpec(raw map[string]any) (*curriculum.UnitSpec, error) {
	shape := DetectShape(raw)
	var (
		spec *curriculum.UnitSpec
		err  error
	)
	switch shape {
	case curriculum.ShapeCanonical:
		spec, err = parseCanonical(raw)
	case curriculum.ShapeWrapped:
		spec, err = parseCanonical(anyx.Map(raw["week_spec"]))
	case curriculum.ShapeFileKeyed:
		spec, err = parseFileKeyed(raw)
	default:
		keys := make([]string, 0, len(raw))
		for k := range raw {
			keys = append(keys, k)
		}
		return nil, &apperr.MalformedResponse{Artifact: curriculum.DocUnitSpec, Err: fmt.Errorf("unrecognized spec layout (keys: %s)", strings.Join(sortedStrings(keys), ", "))}
	}
	if err != nil {
		return nil, &apperr.MalformedResponse{Artifact: curriculum.DocUnitSpec, Err: err}
	}
	spec.Shape = shape
	spec.Raw = raw
	return spec, nil
}

func parseCanonical(raw map[string]any) (*curriculum.UnitSpec, error) {
	meta := anyx.Map(raw["metadata"])
	if meta == nil {
		return nil, fmt.Errorf("metadata is not an object")
	}
	spec := &curriculum.UnitSpec{
		Metadata: curriculum.SpecMetadata{
			Unit:            anyx.Int(meta["week"], 0),
			Title:           anyx.String(meta["title"]),
			Theme:           anyx.String(meta["theme"]),
			VirtueFocus:     anyx.String(meta["virtue_focus"]),
			SessionDuration: anyx.String(meta["session_duration"]),
		},
		Objectives:   anyx.StringSlice(raw["objectives"]),
		Vocabulary:   parseVocabulary(raw["vocabulary"]),
		GrammarFocus: textOf(raw["grammar_focus"]),
		FocusTopic:   anyx.String(raw["focus_topic"]),
		ChantName:    anyx.String(raw["chant_name"]),
		ChantText:    anyx.String(raw["chant_text"]),
		SpiralLinks:  anyx.StringSlice(raw["spiral_links"]),
	}
	if chant := anyx.Map(raw["chant"]); chant != nil {
		if spec.ChantName == "" {
			spec.ChantName = anyx.String(chant["name"])
		}
		if spec.ChantText == "" {
			spec.ChantText = anyx.String(chant["text"])
		}
	}
	return spec, nil
}

// parseFileKeyed reads the legacy layout where every part was its own file.
func parseFileKeyed(raw map[string]any) (*curriculum.UnitSpec, error) {
	meta := anyx.Map(raw[fileKeyedMetadata])
	if meta == nil {
		return nil, fmt.Errorf("%s is not an object", fileKeyedMetadata)
	}
	week := anyx.Int(meta["week_number"], 0)
	if week == 0 {
		week = anyx.Int(meta["week"], 0)
	}
	spec := &curriculum.UnitSpec{
		Metadata: curriculum.SpecMetadata{
			Unit:        week,
			Title:       anyx.String(meta["title"]),
			Theme:       anyx.String(meta["theme"]),
			VirtueFocus: anyx.String(meta["virtue_focus"]),
		},
		GrammarFocus: textOf(raw["04_grammar_focus.md"]),
	}

	switch obj := raw["02_objectives.json"].(type) {
	case map[string]any:
		spec.Objectives = anyx.StringSlice(obj["objectives"])
	default:
		spec.Objectives = anyx.StringSlice(obj)
	}

	switch v := raw["03_vocabulary.json"].(type) {
	case map[string]any:
		spec.Vocabulary = parseVocabulary(v["new_vocabulary"])
	default:
		spec.Vocabulary = parseVocabulary(v)
	}

	if chant := anyx.Map(raw["05_chant.json"]); chant != nil {
		spec.ChantName = anyx.String(chant["name"])
		spec.ChantText = anyx.String(chant["text"])
	}

	switch links := raw["09_spiral_links.json"].(type) {
	case map[string]any:
		for _, k := range sortedKeys(links) {
			spec.SpiralLinks = append(spec.SpiralLinks, anyx.StringSlice(links[k])...)
		}
	default:
		spec.SpiralLinks = anyx.StringSlice(links)
	}
	return spec, nil
}

// parseVocabulary accepts objects ({latin|word, english|translation}) or
// "word – meaning" strings.
func parseVocabulary(v any) []curriculum.VocabItem {
	out := []curriculum.VocabItem{}
	for _, item := range anyx.Slice(v) {
		switch t := item.(type) {
		case map[string]any:
			latin := anyx.String(t["latin"])
			if latin == "" {
				latin = anyx.String(t["word"])
			}
			english := anyx.String(t["english"])
			if english == "" {
				english = anyx.String(t["translation"])
			}
			if latin == "" {
				continue
			}
			out = append(out, curriculum.VocabItem{Latin: latin, English: english, PartOfSpeech: anyx.String(t["part_of_speech"])})
		case string:
			latin, english := splitGloss(t)
			if latin != "" {
				out = append(out, curriculum.VocabItem{Latin: latin, English: english})
			}
		}
	}
	return out
}

func splitGloss(s string) (string, string) {
	for _, sep := range []string{" – ", " - ", ": ", " = "} {
		if i := strings.Index(s, sep); i > 0 {
			return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+len(sep):])
		}
	}
	return strings.TrimSpace(s), ""
}

// textOf flattens a string or a {"summary"|"description"} object.
func textOf(v any) string {
	if m := anyx.Map(v); m != nil {
		for _, k := range []string{"summary", "description", "topic", "name"} {
			if s := anyx.String(m[k]); s != "" {
				return s
			}
		}
		return ""
	}
	return anyx.String(v)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return sortedStrings(keys)
}

func sortedStrings(ss []string) []string {
	sort.Strings(ss)
	return ss
}
