package subunit

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/curriculum-engine/internal/domain/curriculum"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/policy"
	"github.com/yungbote/curriculum-engine/internal/pkg/anyx"
	apperr "github.com/yungbote/curriculum-engine/internal/pkg/errors"
)

// CleanLine trims whitespace and surrounding quotes from a one-line answer.
func CleanLine(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"'`")
	return strings.TrimSpace(s)
}

func CheckClassName(text string, pol *policy.Policy) error {
	name := curriculum.ArtClassName
	switch {
	case text == "":
		return apperr.Reject(name, "class name is empty")
	case strings.ContainsAny(text, "\r\n"):
		return apperr.Reject(name, "class name must be a single line")
	case len([]rune(text)) > pol.ClassName.MaxChars:
		return apperr.Reject(name, "class name is %d characters, limit %d", len([]rune(text)), pol.ClassName.MaxChars)
	}
	if p, ok := pol.FindPlaceholder(text); ok {
		return apperr.Reject(name, "contains placeholder text %q", p)
	}
	if term, ok := pol.ClassNameOffTopic(text); ok {
		return apperr.Reject(name, "off-topic term %q; the class name must be about Latin", term)
	}
	return nil
}

func CheckDaySummary(text string, pol *policy.Policy, vocabulary []string) error {
	name := curriculum.ArtSummary
	if n := len([]rune(strings.TrimSpace(text))); n < pol.DaySummary.MinChars {
		return apperr.Reject(name, "summary is %d characters, need at least %d", n, pol.DaySummary.MinChars)
	}
	if p, ok := pol.FindPlaceholder(text); ok {
		return apperr.Reject(name, "contains placeholder text %q", p)
	}
	if term, ok := pol.SummaryOffTopic(text); ok {
		return apperr.Reject(name, "off-topic term %q; the summary must stay on Latin", term)
	}
	if !pol.MentionsDomain(text, vocabulary...) {
		return apperr.Reject(name, "summary never mentions Latin, grammar or this week's vocabulary")
	}
	return nil
}

// CheckRoleContext validates the decoded JSON object and returns the typed form.
// Week 1 has no earlier weeks, so the spiral minimum applies from week 2 on.
func CheckRoleContext(raw map[string]any, unit, subUnit int, pol *policy.Policy) (curriculum.RoleContext, error) {
	name := curriculum.ArtRoleContext
	var rc curriculum.RoleContext
	for _, k := range pol.RoleContext.RequiredKeys {
		if _, ok := raw[k]; !ok {
			return rc, apperr.Reject(name, "missing required key %q", k)
		}
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return rc, apperr.Reject(name, "role context is not encodable: %v", err)
	}
	if err := json.Unmarshal(b, &rc); err != nil {
		return rc, apperr.Reject(name, "role context has wrong field types: %v", err)
	}
	if p, ok := pol.FindPlaceholder(string(b)); ok {
		return rc, apperr.Reject(name, "contains placeholder text %q", p)
	}
	if strings.TrimSpace(rc.SparkyRole) == "" {
		return rc, apperr.Reject(name, "sparky_role is empty")
	}
	if min := pol.MinSpiralEmphasis(subUnit); unit > 1 && len(rc.SpiralEmphasis) < min {
		return rc, apperr.Reject(name, "day %d needs at least %d spiral_emphasis entries, got %d", subUnit, min, len(rc.SpiralEmphasis))
	}
	if min := pol.RoleContext.MinEncouragementTriggers; len(rc.EncouragementTriggers) < min {
		return rc, apperr.Reject(name, "needs at least %d encouragement_triggers, got %d", min, len(rc.EncouragementTriggers))
	}
	return rc, nil
}

// SplitFrontmatter separates a leading YAML block delimited by --- lines.
func SplitFrontmatter(text string) (map[string]any, string, error) {
	t := strings.TrimLeft(text, "\uFEFF \t\r\n")
	if !strings.HasPrefix(t, "---") {
		return nil, text, fmt.Errorf("no frontmatter")
	}
	rest := strings.TrimPrefix(t, "---")
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return nil, text, fmt.Errorf("frontmatter is not closed")
	}
	fm := map[string]any{}
	if err := yaml.Unmarshal([]byte(rest[:end]), &fm); err != nil {
		return nil, text, fmt.Errorf("frontmatter: %w", err)
	}
	body := rest[end+len("\n---"):]
	if i := strings.IndexByte(body, '\n'); i >= 0 {
		body = body[i+1:]
	} else {
		body = ""
	}
	return fm, body, nil
}

func CheckGuidelines(text string, subUnit int, pol *policy.Policy) error {
	name := curriculum.ArtGuidelines
	fm, body, err := SplitFrontmatter(text)
	if err != nil {
		return apperr.Reject(name, "guidelines need YAML frontmatter: %v", err)
	}
	for _, k := range pol.Guidelines.FrontmatterKeys {
		if _, ok := fm[k]; !ok {
			return apperr.Reject(name, "frontmatter is missing %q", k)
		}
	}
	if strings.TrimSpace(body) == "" {
		return apperr.Reject(name, "guidelines body is empty")
	}
	if p, ok := pol.FindPlaceholder(text); ok {
		return apperr.Reject(name, "contains placeholder text %q", p)
	}
	if subUnit == curriculum.SubUnitsPerUnit && !pol.MentionsReview(body) {
		return apperr.Reject(name, "day 4 guidelines must describe the spiral review of prior weeks")
	}
	return nil
}

// CheckPacket validates the six teaching-packet documents.
func CheckPacket(docs map[string]string, pol *policy.Policy) error {
	name := curriculum.ArtTeachingPacket
	for _, doc := range curriculum.TeachingPacketDocs {
		text := strings.TrimSpace(docs[doc])
		if text == "" {
			return apperr.Reject(name, "document %s is missing", doc)
		}
		if n := len([]rune(text)); n < pol.TeachingPacket.MinChars {
			return apperr.Reject(name, "document %s is %d characters, need at least %d", doc, n, pol.TeachingPacket.MinChars)
		}
		if p, ok := pol.FindPlaceholder(text); ok {
			return apperr.Reject(name, "document %s contains placeholder text %q", doc, p)
		}
	}
	return nil
}

// PacketDocs reads the document map out of a decoded JSON object, accepting
// keys with or without the .txt suffix.
func PacketDocs(raw map[string]any) map[string]string {
	out := map[string]string{}
	for _, doc := range curriculum.TeachingPacketDocs {
		v, ok := raw[doc]
		if !ok {
			v = raw[strings.TrimSuffix(doc, ".txt")]
		}
		out[doc] = anyx.String(v)
	}
	return out
}

var sentenceEnd = regexp.MustCompile(`[.!?]+(\s|$)`)

// CountSentences counts terminal punctuation runs; unterminated text is one sentence.
func CountSentences(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	n := len(sentenceEnd.FindAllStringIndex(text, -1))
	last := text[len(text)-1]
	if last != '.' && last != '!' && last != '?' {
		n++
	}
	return n
}

func CheckGreeting(text string, pol *policy.Policy) error {
	name := curriculum.ArtGreeting
	switch {
	case text == "":
		return apperr.Reject(name, "greeting is empty")
	case len([]rune(text)) > pol.Greeting.MaxChars:
		return apperr.Reject(name, "greeting is %d characters, limit %d", len([]rune(text)), pol.Greeting.MaxChars)
	}
	if n := CountSentences(text); n > pol.Greeting.MaxSentences {
		return apperr.Reject(name, "greeting has %d sentences, limit %d", n, pol.Greeting.MaxSentences)
	}
	if p, ok := pol.FindPlaceholder(text); ok {
		return apperr.Reject(name, "contains placeholder text %q", p)
	}
	return nil
}

// CheckQuiz validates items and, from week 2 on, the review share.
func CheckQuiz(q curriculum.Quiz, unit int, pol *policy.Policy, spiralMin, spiralMax float64) error {
	name := curriculum.ArtQuiz
	if len(q.Items) < pol.Assessment.MinItems {
		return apperr.Reject(name, "quiz has %d items, need at least %d", len(q.Items), pol.Assessment.MinItems)
	}
	seen := map[string]bool{}
	for i, it := range q.Items {
		label := it.ID
		if label == "" {
			label = fmt.Sprintf("#%d", i+1)
		}
		switch {
		case it.ID == "":
			return apperr.Reject(name, "item %s has no id", label)
		case seen[it.ID]:
			return apperr.Reject(name, "duplicate item id %s", it.ID)
		case strings.TrimSpace(it.Prompt) == "" || strings.TrimSpace(it.Answer) == "":
			return apperr.Reject(name, "item %s needs a prompt and an answer", label)
		case it.Tag != curriculum.TagNew && it.Tag != curriculum.TagReview:
			return apperr.Reject(name, "item %s has tag %q, want new or review", label, it.Tag)
		case it.Tag == curriculum.TagReview && (it.SourceUnit < 1 || it.SourceUnit >= unit):
			return apperr.Reject(name, "review item %s must come from an earlier week, got source_unit %d", label, it.SourceUnit)
		}
		seen[it.ID] = true
		if p, ok := pol.FindPlaceholder(it.Prompt + " " + it.Answer); ok {
			return apperr.Reject(name, "item %s contains placeholder text %q", label, p)
		}
	}
	c := q.Spiral()
	if unit == 1 {
		if c.ReviewItems > 0 {
			return apperr.Reject(name, "week 1 has no earlier weeks to review, found %d review items", c.ReviewItems)
		}
		return nil
	}
	if c.Fraction < spiralMin || c.Fraction > spiralMax {
		return apperr.Reject(name, "review share is %.1f%% by %s, must be between %.0f%% and %.0f%%",
			c.Fraction*100, c.Basis, spiralMin*100, spiralMax*100)
	}
	return nil
}

func CheckAnswerKey(text string, q curriculum.Quiz, pol *policy.Policy) error {
	name := curriculum.ArtAnswerKey
	if strings.TrimSpace(text) == "" {
		return apperr.Reject(name, "answer key is empty")
	}
	if p, ok := pol.FindPlaceholder(text); ok {
		return apperr.Reject(name, "contains placeholder text %q", p)
	}
	for _, it := range q.Items {
		if !strings.Contains(text, it.ID) {
			return apperr.Reject(name, "answer key skips item %s", it.ID)
		}
	}
	return nil
}
