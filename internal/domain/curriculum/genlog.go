package curriculum

import (
	"sort"
	"time"
)

// GenerationLog is the per-unit audit trail written to generation_log.json.
type GenerationLog struct {
	RunID        string                `json:"run_id"`
	Unit         int                   `json:"week"`
	Status       string                `json:"status"`
	Architecture string                `json:"architecture"`
	DryRun       bool                  `json:"dry_run"`
	Models       map[string]string     `json:"models"`
	GitCommit    string                `json:"git_commit,omitempty"`
	Research     map[StepKey]StepMeta  `json:"research,omitempty"`
	// VocabularyVerified mirrors the vocabulary plan's own alignment check.
	VocabularyVerified *VocabularyVerification `json:"vocabulary_verified,omitempty"`
	// Artifacts maps artifact paths to their provenance.
	Artifacts map[string]Provenance `json:"artifacts"`
	Failure   *FailureDetail        `json:"failure,omitempty"`
	StartedAt time.Time             `json:"started_at"`
	// FinishedAt is nil while the unit is still in flight.
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

type VocabularyVerification struct {
	LatinOnly      bool           `json:"latin_only"`
	AlignmentCheck map[string]any `json:"alignment_check"`
}

// VerifyVocabulary reads the alignment check reported by the vocabulary plan
// step. It returns nil when the step has not run.
func VerifyVocabulary(f *ResearchFindings) *VocabularyVerification {
	step, ok := f.Step(StepVocabulary)
	if !ok {
		return nil
	}
	check, _ := step.Data["alignment_check"].(map[string]any)
	if check == nil {
		check = map[string]any{}
	}
	latin, _ := check["latin_only"].(bool)
	return &VocabularyVerification{LatinOnly: latin, AlignmentCheck: check}
}

type FailureDetail struct {
	Step     string `json:"step,omitempty"`
	Artifact string `json:"artifact,omitempty"`
	Reason   string `json:"reason"`
}

func NewGenerationLog(runID string, unit int, started time.Time) *GenerationLog {
	return &GenerationLog{
		RunID:     runID,
		Unit:      unit,
		Models:    map[string]string{},
		Research:  map[StepKey]StepMeta{},
		Artifacts: map[string]Provenance{},
		StartedAt: started,
	}
}

// Fallbacks lists artifact paths that were filled with fallback content.
func (l *GenerationLog) Fallbacks() []string {
	out := []string{}
	for path, p := range l.Artifacts {
		if p.Status == StatusFallback {
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out
}
