package research

import (
	"fmt"

	"github.com/yungbote/curriculum-engine/internal/domain/curriculum"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/prompts"
	"github.com/yungbote/curriculum-engine/internal/platform/openai"
)

type Kind string

const (
	KindRule       Kind = "rule"
	KindExtraction Kind = "extraction"
	KindReasoning  Kind = "reasoning"
	KindSynthesis  Kind = "synthesis"
)

// Step is one node of the cascade. Rule steps compute their data locally;
// every other kind renders Prompt and calls the generation client.
type Step struct {
	Key    curriculum.StepKey
	Deps   []curriculum.StepKey
	Kind   Kind
	Prompt prompts.PromptName
	Rule   func(in ruleInput) (map[string]any, error)
}

func (s Step) tier() openai.Tier {
	if s.Kind == KindReasoning {
		return openai.TierReasoning
	}
	return openai.TierGeneral
}

// DefaultSteps is the twelve-step cascade in declaration order.
func DefaultSteps() []Step {
	const (
		s00 = curriculum.StepWeekEntry
		s01 = curriculum.StepBackwardAnalysis
		s02 = curriculum.StepForwardAnalysis
		s03 = curriculum.StepPedagogical
		s04 = curriculum.StepVocabulary
		s05 = curriculum.StepSessionDuration
		s06 = curriculum.StepVirtueStrategy
		s07 = curriculum.StepAssessmentPlan
		s08 = curriculum.StepDifferentiation
		s09 = curriculum.StepMaterialsPlan
		s10 = curriculum.StepMasterAnalysis
		s11 = curriculum.StepAlignmentGuide
	)
	return []Step{
		{Key: s00, Kind: KindRule, Rule: weekEntry},
		{Key: s01, Deps: []curriculum.StepKey{s00}, Kind: KindExtraction, Prompt: prompts.PromptBackwardAnalysis},
		{Key: s02, Deps: []curriculum.StepKey{s00}, Kind: KindExtraction, Prompt: prompts.PromptForwardAnalysis},
		{Key: s03, Deps: []curriculum.StepKey{s00}, Kind: KindReasoning, Prompt: prompts.PromptPedagogicalResearch},
		{Key: s04, Deps: []curriculum.StepKey{s01, s02, s03}, Kind: KindReasoning, Prompt: prompts.PromptVocabularyPlan},
		{Key: s05, Deps: []curriculum.StepKey{s00}, Kind: KindRule, Rule: sessionDuration},
		{Key: s06, Deps: []curriculum.StepKey{s00}, Kind: KindSynthesis, Prompt: prompts.PromptVirtueFaith},
		{Key: s07, Deps: []curriculum.StepKey{s04}, Kind: KindSynthesis, Prompt: prompts.PromptAssessmentPlan},
		{Key: s08, Deps: []curriculum.StepKey{s04}, Kind: KindSynthesis, Prompt: prompts.PromptDifferentiation},
		{Key: s09, Deps: []curriculum.StepKey{s04, s07}, Kind: KindRule, Rule: materialsPlan},
		{Key: s10, Kind: KindExtraction, Prompt: prompts.PromptMasterAnalysis},
		{Key: s11, Deps: []curriculum.StepKey{s00, s01, s02, s03, s04, s05, s06, s07, s08, s09, s10}, Kind: KindReasoning, Prompt: prompts.PromptAlignmentGuide},
	}
}

// plan orders steps with a Kahn topological sort, stable by declaration
// order, and groups them into levels whose members share no dependency.
func plan(steps []Step) (order []curriculum.StepKey, levels [][]curriculum.StepKey, err error) {
	seen := map[curriculum.StepKey]bool{}
	for _, s := range steps {
		if s.Key == "" {
			return nil, nil, fmt.Errorf("step missing key")
		}
		if seen[s.Key] {
			return nil, nil, fmt.Errorf("duplicate step %q", s.Key)
		}
		if s.Kind == KindRule && s.Rule == nil {
			return nil, nil, fmt.Errorf("rule step %q has no rule", s.Key)
		}
		if s.Kind != KindRule && s.Prompt == "" {
			return nil, nil, fmt.Errorf("step %q has no prompt", s.Key)
		}
		seen[s.Key] = true
	}
	deg := map[curriculum.StepKey]int{}
	out := map[curriculum.StepKey][]curriculum.StepKey{}
	for _, s := range steps {
		for _, dep := range s.Deps {
			if !seen[dep] {
				return nil, nil, fmt.Errorf("step %q depends on unknown step %q", s.Key, dep)
			}
			deg[s.Key]++
			out[dep] = append(out[dep], s.Key)
		}
	}

	level := map[curriculum.StepKey]int{}
	added := map[curriculum.StepKey]bool{}
	for {
		progressed := false
		for _, s := range steps {
			if added[s.Key] || deg[s.Key] != 0 {
				continue
			}
			added[s.Key] = true
			order = append(order, s.Key)
			for _, d := range s.Deps {
				if level[d]+1 > level[s.Key] {
					level[s.Key] = level[d] + 1
				}
			}
			for _, n := range out[s.Key] {
				deg[n]--
			}
			progressed = true
		}
		if !progressed {
			break
		}
	}
	if len(order) != len(steps) {
		return nil, nil, fmt.Errorf("cycle detected in research steps")
	}

	for _, k := range order {
		l := level[k]
		for len(levels) <= l {
			levels = append(levels, nil)
		}
		levels[l] = append(levels[l], k)
	}
	return order, levels, nil
}
