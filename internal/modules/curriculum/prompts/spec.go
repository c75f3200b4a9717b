package prompts

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/yungbote/curriculum-engine/internal/platform/openai"
)

// Spec is the declaration format used in RegisterAll.
type Spec struct {
	Name    PromptName
	Version int
	Shape   openai.ResponseShape
	Tier    openai.Tier
	// MaxOutputTokens caps the completion and sizes the budget reservation.
	MaxOutputTokens int
	// System and User are go templates over Input.
	System     string
	User       string
	Validators []Validator
}

// MakeTemplate compiles a Spec into a Template.
func MakeTemplate(s Spec) (Template, error) {
	if strings.TrimSpace(string(s.Name)) == "" {
		return Template{}, fmt.Errorf("missing prompt name")
	}
	if s.Version <= 0 {
		return Template{}, fmt.Errorf("invalid version for %s", s.Name)
	}
	if s.Shape == "" {
		s.Shape = openai.ShapeText
	}
	if s.Tier == "" {
		s.Tier = openai.TierGeneral
	}
	sysT, err := template.New("system").Option("missingkey=zero").Parse(s.System)
	if err != nil {
		return Template{}, fmt.Errorf("%s system template parse: %w", s.Name, err)
	}
	userT, err := template.New("user").Option("missingkey=zero").Parse(s.User + feedbackBlock)
	if err != nil {
		return Template{}, fmt.Errorf("%s user template parse: %w", s.Name, err)
	}
	render := func(t *template.Template, in Input) string {
		var b bytes.Buffer
		_ = t.Execute(&b, in)
		return strings.TrimSpace(b.String())
	}
	tt := Template{
		Name:            s.Name,
		Version:         s.Version,
		Shape:           s.Shape,
		Tier:            s.Tier,
		MaxOutputTokens: s.MaxOutputTokens,
		System:          func(in Input) string { return render(sysT, in) },
		User:            func(in Input) string { return render(userT, in) },
	}
	if len(s.Validators) > 0 {
		tt.Validate = func(in Input) error {
			for _, v := range s.Validators {
				if v == nil {
					continue
				}
				if err := v(in); err != nil {
					return err
				}
			}
			return nil
		}
	}
	return tt, nil
}

const feedbackBlock = `
{{if .Feedback}}
PREVIOUS ATTEMPT WAS REJECTED:
{{.Feedback}}
Fix exactly this problem in the new answer.{{end}}`

// RegisterSpec panics on a malformed Spec; it only runs from RegisterAll.
func RegisterSpec(s Spec) {
	t, err := MakeTemplate(s)
	if err != nil {
		panic(err)
	}
	Register(t)
}
