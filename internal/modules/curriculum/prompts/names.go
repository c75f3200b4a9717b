package prompts

import "github.com/yungbote/curriculum-engine/internal/domain/curriculum"

type PromptName string

const (
	// Research
	PromptBackwardAnalysis    PromptName = PromptName(curriculum.StepBackwardAnalysis)
	PromptForwardAnalysis     PromptName = PromptName(curriculum.StepForwardAnalysis)
	PromptPedagogicalResearch PromptName = PromptName(curriculum.StepPedagogical)
	PromptVocabularyPlan      PromptName = PromptName(curriculum.StepVocabulary)
	PromptVirtueFaith         PromptName = PromptName(curriculum.StepVirtueStrategy)
	PromptAssessmentPlan      PromptName = PromptName(curriculum.StepAssessmentPlan)
	PromptDifferentiation     PromptName = PromptName(curriculum.StepDifferentiation)
	PromptMasterAnalysis      PromptName = PromptName(curriculum.StepMasterAnalysis)
	PromptAlignmentGuide      PromptName = PromptName(curriculum.StepAlignmentGuide)

	// Unit planning
	PromptUnitSpec    PromptName = "week_spec"
	PromptUnitSummary PromptName = "week_summary"

	// Sub-unit artifacts
	PromptClassName      PromptName = "class_name"
	PromptDaySummary     PromptName = "day_summary"
	PromptRoleContext    PromptName = "role_context"
	PromptGuidelines     PromptName = "guidelines"
	PromptTeachingPacket PromptName = "teaching_packet"
	PromptGreeting       PromptName = "greeting"
	PromptQuiz           PromptName = "quiz"
	PromptAnswerKey      PromptName = "answer_key"
)
