package policy

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed default_policy.yaml
var defaultPolicyYAML []byte

// Policy is the data every acceptance predicate and gate check reads.
// Changing it never requires a code change.
type Policy struct {
	Version int `yaml:"version" validate:"min=1"`

	Spec struct {
		RequiredKeys  []string `yaml:"required_keys" validate:"min=1"`
		MinVocabulary int      `yaml:"min_vocabulary" validate:"min=1"`
		MinObjectives int      `yaml:"min_objectives" validate:"min=0"`
	} `yaml:"spec"`

	Summary struct {
		MinChars         int      `yaml:"min_chars" validate:"min=0"`
		RequiredHeadings []string `yaml:"required_headings"`
	} `yaml:"summary"`

	Placeholders []string `yaml:"placeholders"`

	ClassName struct {
		MaxChars      int      `yaml:"max_chars" validate:"min=1"`
		Fallback      string   `yaml:"fallback" validate:"required"`
		OffTopicTerms []string `yaml:"off_topic_terms"`
	} `yaml:"class_name"`

	DaySummary struct {
		MinChars       int      `yaml:"min_chars" validate:"min=0"`
		OffTopicTerms  []string `yaml:"off_topic_terms"`
		DomainKeywords []string `yaml:"domain_keywords"`
	} `yaml:"day_summary"`

	GradeLevel string `yaml:"grade_level" validate:"required"`

	RoleContext struct {
		RequiredKeys             []string    `yaml:"required_keys"`
		MinEncouragementTriggers int         `yaml:"min_encouragement_triggers" validate:"min=0"`
		MinSpiralEmphasis        map[int]int `yaml:"min_spiral_emphasis"`
	} `yaml:"role_context"`

	Guidelines struct {
		FrontmatterKeys []string `yaml:"frontmatter_keys"`
		ReviewDayTerms  []string `yaml:"review_day_terms"`
	} `yaml:"guidelines"`

	TeachingPacket struct {
		MinChars int `yaml:"min_chars" validate:"min=1"`
	} `yaml:"teaching_packet"`

	Greeting struct {
		MaxChars     int `yaml:"max_chars" validate:"min=1"`
		MaxSentences int `yaml:"max_sentences" validate:"min=1"`
	} `yaml:"greeting"`

	Assessment struct {
		MinItems          int `yaml:"min_items" validate:"min=1"`
		AnswerKeyMinChars int `yaml:"answer_key_min_chars" validate:"min=0"`
	} `yaml:"assessment"`

	Thematic struct {
		Terms       []string `yaml:"terms"`
		MinMentions int      `yaml:"min_mentions" validate:"min=0"`
	} `yaml:"thematic"`
}

var validate = validator.New()

// Default returns the embedded policy.
func Default() *Policy {
	p, err := Parse(defaultPolicyYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded policy invalid: %v", err))
	}
	return p
}

// Load reads a policy file. An empty path yields Default.
// Keys missing from the file keep their default values.
func Load(path string) (*Policy, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse overlays raw YAML on the embedded defaults and validates the result.
func Parse(raw []byte) (*Policy, error) {
	p := &Policy{}
	if err := decodeStrict(defaultPolicyYAML, p); err != nil {
		return nil, fmt.Errorf("decode default policy: %w", err)
	}
	if !bytes.Equal(raw, defaultPolicyYAML) {
		if err := decodeStrict(raw, p); err != nil {
			return nil, fmt.Errorf("decode policy: %w", err)
		}
	}
	if err := validate.Struct(p); err != nil {
		return nil, fmt.Errorf("policy invalid: %w", err)
	}
	return p, nil
}

func decodeStrict(raw []byte, out *Policy) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	return dec.Decode(out)
}

// ClassNameFallback renders the fallback class name for a day.
func (p *Policy) ClassNameFallback(unit, subUnit int) string {
	r := strings.NewReplacer("{week}", strconv.Itoa(unit), "{day}", strconv.Itoa(subUnit))
	return r.Replace(p.ClassName.Fallback)
}

// MinSpiralEmphasis is the minimum spiral_emphasis entries for a day.
func (p *Policy) MinSpiralEmphasis(subUnit int) int {
	return p.RoleContext.MinSpiralEmphasis[subUnit]
}

// FindPlaceholder returns the first placeholder pattern text contains, case-insensitively.
func (p *Policy) FindPlaceholder(text string) (string, bool) {
	return findTerm(text, p.Placeholders)
}

func (p *Policy) ClassNameOffTopic(text string) (string, bool) {
	return findTerm(text, p.ClassName.OffTopicTerms)
}

func (p *Policy) SummaryOffTopic(text string) (string, bool) {
	return findTerm(text, p.DaySummary.OffTopicTerms)
}

// MentionsDomain reports whether text names a domain keyword or one of extra (e.g. the unit's vocabulary).
func (p *Policy) MentionsDomain(text string, extra ...string) bool {
	if _, ok := findTerm(text, p.DaySummary.DomainKeywords); ok {
		return true
	}
	_, ok := findTerm(text, extra)
	return ok
}

func (p *Policy) MentionsReview(text string) bool {
	_, ok := findTerm(text, p.Guidelines.ReviewDayTerms)
	return ok
}

func findTerm(text string, terms []string) (string, bool) {
	lower := strings.ToLower(text)
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(t)) {
			return t, true
		}
	}
	return "", false
}

// CountMentions counts case-insensitive occurrences of term in text.
func CountMentions(text, term string) int {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return 0
	}
	return strings.Count(strings.ToLower(text), term)
}
