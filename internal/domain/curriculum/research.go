package curriculum

import "time"

type StepKey string

const (
	StepWeekEntry        StepKey = "00_week_entry"
	StepBackwardAnalysis StepKey = "01_backward_analysis"
	StepForwardAnalysis  StepKey = "02_forward_analysis"
	StepPedagogical      StepKey = "03_pedagogical_research"
	StepVocabulary       StepKey = "04_vocabulary_plan"
	StepSessionDuration  StepKey = "05_session_duration"
	StepVirtueStrategy   StepKey = "06_virtue_faith_strategy"
	StepAssessmentPlan   StepKey = "07_assessment_plan"
	StepDifferentiation  StepKey = "08_differentiation_plan"
	StepMaterialsPlan    StepKey = "09_materials_plan"
	StepMasterAnalysis   StepKey = "10_master_analysis"
	StepAlignmentGuide   StepKey = "11_alignment_guide"
)

// GenerationMethod says how a piece of content came to exist.
type GenerationMethod string

const (
	MethodLLM      GenerationMethod = "llm"
	MethodRule     GenerationMethod = "rule"
	MethodFallback GenerationMethod = "fallback"
	MethodDryRun   GenerationMethod = "dry_run"
	MethodOutline  GenerationMethod = "outline"
)

type StepMeta struct {
	GeneratedAt time.Time        `json:"generated_at"`
	Method      GenerationMethod `json:"method"`
	Model       string           `json:"model,omitempty"`
	// Fallback is set when a reasoning-tier step was served by the general tier.
	Fallback bool   `json:"fallback,omitempty"`
	Note     string `json:"note,omitempty"`
}

type StepResult struct {
	Data map[string]any `json:"data"`
	Meta StepMeta       `json:"_metadata"`
}

type CascadeProvenance struct {
	StepsExecuted []StepKey `json:"steps_executed"`
	FallbacksUsed []StepKey `json:"fallbacks_used"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
}

// ResearchFindings is immutable once stored.
type ResearchFindings struct {
	Unit       int                    `json:"week"`
	Steps      map[StepKey]StepResult `json:"steps"`
	Provenance CascadeProvenance      `json:"provenance"`
}

func (f *ResearchFindings) Step(key StepKey) (StepResult, bool) {
	if f == nil || f.Steps == nil {
		return StepResult{}, false
	}
	r, ok := f.Steps[key]
	return r, ok
}

// StepData returns the data map of a step or an empty map.
func (f *ResearchFindings) StepData(key StepKey) map[string]any {
	r, ok := f.Step(key)
	if !ok || r.Data == nil {
		return map[string]any{}
	}
	return r.Data
}
