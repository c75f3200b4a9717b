package prompts

import (
	"fmt"
	"strings"
	"sync"

	"github.com/yungbote/curriculum-engine/internal/platform/openai"
	"github.com/yungbote/curriculum-engine/internal/platform/promptstyle"
)

type Template struct {
	Name            PromptName
	Version         int
	Shape           openai.ResponseShape
	Tier            openai.Tier
	MaxOutputTokens int
	System          func(Input) string
	User            func(Input) string
	Validate        Validator
}

// Prompt is a rendered system/user pair.
type Prompt struct {
	Name            string
	Version         int
	Shape           openai.ResponseShape
	Tier            openai.Tier
	MaxOutputTokens int
	System          string
	User            string
}

// Request turns the prompt into a generation request tagged for accounting.
func (p Prompt) Request(unit, subUnit int, operation string) openai.Request {
	return openai.Request{
		System:          p.System,
		User:            p.User,
		Shape:           p.Shape,
		Tier:            p.Tier,
		Kind:            p.Name,
		Unit:            unit,
		SubUnit:         subUnit,
		Operation:       operation,
		MaxOutputTokens: p.MaxOutputTokens,
	}
}

var (
	registryMu   sync.RWMutex
	registry     = map[PromptName]Template{}
	registerOnce sync.Once
)

// Register registers a compiled Template.
func Register(t Template) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[t.Name] = t
}

// Build renders the named prompt.
func Build(name PromptName, in Input) (Prompt, error) {
	registerOnce.Do(RegisterAll)

	registryMu.RLock()
	t, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return Prompt{}, fmt.Errorf("unknown prompt: %s", string(name))
	}
	if t.System == nil || t.User == nil {
		return Prompt{}, fmt.Errorf("prompt %s missing system/user renderers", string(name))
	}
	if t.Validate != nil {
		if err := t.Validate(in); err != nil {
			return Prompt{}, fmt.Errorf("%s: %w", string(name), err)
		}
	}
	return Prompt{
		Name:            string(t.Name),
		Version:         t.Version,
		Shape:           t.Shape,
		Tier:            t.Tier,
		MaxOutputTokens: t.MaxOutputTokens,
		System:          promptstyle.ApplySystem(t.System(in), t.Shape == openai.ShapeJSON),
		User:            strings.TrimSpace(t.User(in)),
	}, nil
}
