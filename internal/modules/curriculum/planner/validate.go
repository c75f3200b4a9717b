package planner

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yungbote/curriculum-engine/internal/domain/curriculum"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/policy"
	apperr "github.com/yungbote/curriculum-engine/internal/pkg/errors"
)

// ValidateSpec is the acceptance predicate of a unit spec.
func ValidateSpec(spec *curriculum.UnitSpec, unit int, pol *policy.Policy) error {
	if spec == nil {
		return apperr.Reject(curriculum.DocUnitSpec, "spec is empty")
	}
	for _, key := range pol.Spec.RequiredKeys {
		if !hasSection(spec, key) {
			return apperr.Reject(curriculum.DocUnitSpec, "missing required key %q", key)
		}
	}
	if spec.Metadata.Unit != unit {
		return apperr.Reject(curriculum.DocUnitSpec, "metadata.week is %d, expected %d", spec.Metadata.Unit, unit)
	}
	if len(spec.Objectives) < pol.Spec.MinObjectives {
		return apperr.Reject(curriculum.DocUnitSpec, "%d objectives, need at least %d", len(spec.Objectives), pol.Spec.MinObjectives)
	}
	if len(spec.Vocabulary) < pol.Spec.MinVocabulary {
		return apperr.Reject(curriculum.DocUnitSpec, "vocabulary list is empty - no Latin words defined")
	}
	text := specText(spec)
	if p, ok := pol.FindPlaceholder(text); ok {
		return apperr.Reject(curriculum.DocUnitSpec, "contains placeholder text %q", p)
	}
	return nil
}

// ValidateSummary is the acceptance predicate of the unit summary.
func ValidateSummary(text string, pol *policy.Policy) error {
	trimmed := strings.TrimSpace(text)
	if n := len([]rune(trimmed)); n < pol.Summary.MinChars {
		return apperr.Reject(curriculum.DocUnitSummary, "summary is %d characters, need at least %d", n, pol.Summary.MinChars)
	}
	if p, ok := pol.FindPlaceholder(trimmed); ok {
		return apperr.Reject(curriculum.DocUnitSummary, "contains placeholder text %q", p)
	}
	lower := strings.ToLower(trimmed)
	for _, h := range pol.Summary.RequiredHeadings {
		if !strings.Contains(lower, strings.ToLower(h)) {
			return apperr.Reject(curriculum.DocUnitSummary, "missing heading %q", h)
		}
	}
	return nil
}

func hasSection(spec *curriculum.UnitSpec, key string) bool {
	switch key {
	case "metadata":
		return spec.Metadata.Unit != 0 || spec.Metadata.Title != ""
	case "objectives":
		return len(spec.Objectives) > 0
	case "vocabulary":
		return len(spec.Vocabulary) > 0
	case "grammar_focus":
		return strings.TrimSpace(spec.GrammarFocus) != ""
	case "focus_topic":
		return strings.TrimSpace(spec.FocusTopic) != ""
	case "chant_name", "chant":
		return strings.TrimSpace(spec.ChantName) != ""
	case "spiral_links":
		return len(spec.SpiralLinks) > 0
	default:
		_, ok := spec.Raw[key]
		return ok
	}
}

// specText is the text scanned for placeholders: the raw document when
// present, else the canonical form.
func specText(spec *curriculum.UnitSpec) string {
	var v any = spec
	if spec.Raw != nil {
		v = spec.Raw
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
