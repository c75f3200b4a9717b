package prompts

import "github.com/yungbote/curriculum-engine/internal/platform/openai"

const unitContext = `
WEEK {{.Unit}}: {{.UnitTitle}}
Content focus: {{.ContentFocus}}
Grammar focus: {{.GrammarFocus}}
Vocabulary domain: {{.VocabularyDomain}}
Chant: {{.Chant}}
Virtue focus: {{.VirtueFocus}}
Introduces: {{.IntroducesCSV}}

PRIOR WEEKS (students already know this):
{{.PriorSummary}}

UPCOMING WEEKS (preview only, DO NOT teach yet):
{{.UpcomingSummary}}`

const researchSystem = `
You are a classical Latin curriculum researcher planning a grade 3-5 course taught in short daily sessions.
Ground every claim in the week entry and prior research provided.
Return a single JSON object only. No prose outside the object.`

const daySystem = `
You write daily Latin lesson materials for grade 3-5 students and for Sparky, the classroom tutor.
Stay strictly on Latin language learning plus the week's virtue and faith integration.
Never teach content reserved for upcoming weeks.
Never output template placeholders, bracketed instructions or elided JSON.`

var unitValidators = []Validator{
	RequireUnit(),
	RequireNonEmpty("UnitTitle", func(in Input) string { return in.UnitTitle }),
}

var dayValidators = []Validator{
	RequireUnit(),
	RequireSubUnit(),
	RequireNonEmpty("SpecJSON", func(in Input) string { return in.SpecJSON }),
}

func RegisterAll() {
	// ---------- Research ----------

	RegisterSpec(Spec{
		Name:            PromptBackwardAnalysis,
		Version:         1,
		Shape:           openai.ShapeJSON,
		MaxOutputTokens: 2048,
		System:          researchSystem,
		User: unitContext + `

Cumulative concepts through this week: {{.CumulativeConceptsCSV}}

Task: analyze what students know entering week {{.Unit}}.
Output keys:
- prior_weeks_reviewed: list of week numbers
- cumulative_latin_vocabulary: [{word, week_introduced, part_of_speech}]
- cumulative_grammar_concepts: [{concept, week_introduced, mastery_level}]
- student_knowledge_state: short summary
- common_mistakes_by_now: list
- spiral_review_target_percentage: number between 0.25 and 0.40`,
		Validators: unitValidators,
	})

	RegisterSpec(Spec{
		Name:            PromptForwardAnalysis,
		Version:         1,
		Shape:           openai.ShapeJSON,
		MaxOutputTokens: 2048,
		System:          researchSystem,
		User: unitContext + `

Task: describe what later weeks need from week {{.Unit}}.
Output keys:
- future_weeks_previewed: list of week numbers
- upcoming_topics: [{week, title, dependency_on_current_week}]
- prerequisites_this_week_must_establish: list
- vocabulary_seeds_for_future: [{word, future_use}]`,
		Validators: unitValidators,
	})

	RegisterSpec(Spec{
		Name:            PromptPedagogicalResearch,
		Version:         1,
		Shape:           openai.ShapeJSON,
		Tier:            openai.TierReasoning,
		MaxOutputTokens: 4096,
		System:          researchSystem,
		User: unitContext + `

Task: how do classical Latin curricula teach this week's topic to grade 3 students?
Output keys:
- research_question
- classical_approach: detailed description
- standard_vocabulary_for_this_topic: list of Latin words
- time_tested_chants: list
- common_misconceptions: list, each with its correction`,
		Validators: unitValidators,
	})

	RegisterSpec(Spec{
		Name:            PromptVocabularyPlan,
		Version:         1,
		Shape:           openai.ShapeJSON,
		Tier:            openai.TierReasoning,
		MaxOutputTokens: 4096,
		System:          researchSystem,
		User: unitContext + `

PRIOR RESEARCH:
{{.DepsJSON}}

Task: decide this week's vocabulary. New words must fit the grammar focus and must not
repeat earlier weeks; recycled words come only from prior weeks.
Output keys:
- vocabulary_reasoning
- new_latin_words: [{word, english, part_of_speech, rationale}] with 4 to 8 entries
- recycled_latin_words: [{word, originally_taught_week, spiral_purpose}]
- alignment_check: {matches_grammar_topic, age_appropriate, latin_only}`,
		Validators: unitValidators,
	})

	RegisterSpec(Spec{
		Name:            PromptVirtueFaith,
		Version:         1,
		Shape:           openai.ShapeJSON,
		MaxOutputTokens: 2048,
		System:          researchSystem,
		User: unitContext + `

Task: plan virtue and faith integration for the week.
Output keys:
- virtue_focus
- virtue_connection_to_language_learning
- scripture_reference: {passage, text, application}
- faith_phrase: a short Latin phrase
- faith_phrase_explanation
- virtue_practice_in_lesson: list`,
		Validators: unitValidators,
	})

	RegisterSpec(Spec{
		Name:            PromptAssessmentPlan,
		Version:         1,
		Shape:           openai.ShapeJSON,
		MaxOutputTokens: 2048,
		System:          researchSystem,
		User: unitContext + `

VOCABULARY PLAN:
{{.DepsJSON}}

Task: design the day 4 assessment. Between {{.ReviewShareMin}} and {{.ReviewShareMax}} of it must review prior weeks.
Output keys:
- day_4_quiz_components: [{component, format, words_tested, mastery_target}]
- success_indicators: list
- preparation_for_next_week`,
		Validators: unitValidators,
	})

	RegisterSpec(Spec{
		Name:            PromptDifferentiation,
		Version:         1,
		Shape:           openai.ShapeJSON,
		MaxOutputTokens: 2048,
		System:          researchSystem,
		User: unitContext + `

VOCABULARY PLAN:
{{.DepsJSON}}

Task: plan differentiation.
Output keys:
- struggling_students: {scaffolds: list, modified_success_criteria}
- advanced_students: {extensions: list, advanced_practice}
- english_language_learners: {pronunciation_support: list, vocabulary_support}`,
		Validators: unitValidators,
	})

	RegisterSpec(Spec{
		Name:            PromptMasterAnalysis,
		Version:         1,
		Shape:           openai.ShapeJSON,
		MaxOutputTokens: 2048,
		System:          researchSystem,
		User: `
Task: describe the house style for weekly Latin lessons in this course.
Output keys:
- class_name_pattern
- summary_style_guide: {tone, structure, opening_pattern, closing_pattern}
- vocabulary_format: {simple_style, advanced_style, typography_rules}
- tutor_voice_characteristics: list
- quality_markers: list`,
	})

	RegisterSpec(Spec{
		Name:            PromptAlignmentGuide,
		Version:         1,
		Shape:           openai.ShapeJSON,
		Tier:            openai.TierReasoning,
		MaxOutputTokens: 4096,
		System:          researchSystem,
		User: unitContext + `

ALL PRIOR RESEARCH:
{{.DepsJSON}}

Task: reconcile the research with the house style into concrete guidance for the writers.
Output keys:
- aligned_class_names: {day_1, day_2, day_3, day_4}
- aligned_summaries: {opening, closing}
- aligned_vocabulary_format: list of "word – translation" lines
- tutor_voice_samples: {greeting, encouragement, correction}`,
		Validators: unitValidators,
	})

	// ---------- Unit planning ----------

	RegisterSpec(Spec{
		Name:            PromptUnitSpec,
		Version:         2,
		Shape:           openai.ShapeJSON,
		MaxOutputTokens: 6000,
		System: `
You compile the weekly specification for a grade 3-5 classical Latin course.
Use ONLY the verified vocabulary from the research. Return one JSON object.`,
		User: unitContext + `

RESEARCH FINDINGS:
{{.FindingsJSON}}

Output a JSON object with exactly these keys:
- metadata: {week: {{.Unit}}, title, theme, virtue_focus, session_duration}
- objectives: list of concrete, measurable objectives
- vocabulary: [{latin, english, part_of_speech}] taken from the vocabulary plan
- grammar_focus: string
- focus_topic: string
- chant_name: string
- chant_text: string
- spiral_links: list naming prior-week content to review (empty for week 1)`,
		Validators: unitValidators,
	})

	RegisterSpec(Spec{
		Name:            PromptUnitSummary,
		Version:         1,
		Shape:           openai.ShapeText,
		MaxOutputTokens: 2048,
		System: `
You write the teacher-facing weekly overview for a grade 3-5 Latin course in markdown.`,
		User: unitContext + `

WEEK SPEC:
{{.SpecJSON}}

Write a markdown overview of the week: goals, vocabulary, grammar, chant, virtue,
and how the four days build on each other. No placeholders.`,
		Validators: append(unitValidators, RequireNonEmpty("SpecJSON", func(in Input) string { return in.SpecJSON })),
	})

	// ---------- Sub-unit artifacts ----------

	RegisterSpec(Spec{
		Name:            PromptClassName,
		Version:         1,
		MaxOutputTokens: 64,
		System:          daySystem,
		User: unitContext + `

WEEK SPEC:
{{.SpecJSON}}

Day {{.SubUnit}} focus: {{.DayFocus}}

Write the class name for week {{.Unit}} day {{.SubUnit}}: one line, at most 100 characters,
clearly about Latin. Output only the class name.`,
		Validators: dayValidators,
	})

	RegisterSpec(Spec{
		Name:            PromptDaySummary,
		Version:         1,
		MaxOutputTokens: 1024,
		System:          daySystem,
		User: unitContext + `

WEEK SPEC:
{{.SpecJSON}}

Class: {{.ClassName}}
Day {{.SubUnit}} focus: {{.DayFocus}}

Write a short markdown summary of today's Latin lesson for the teacher. Name the Latin
vocabulary and grammar practiced today.`,
		Validators: dayValidators,
	})

	RegisterSpec(Spec{
		Name:            PromptRoleContext,
		Version:         1,
		Shape:           openai.ShapeJSON,
		MaxOutputTokens: 1024,
		System:          daySystem,
		User: unitContext + `

WEEK SPEC:
{{.SpecJSON}}

Day {{.SubUnit}} focus: {{.DayFocus}}

Configure Sparky for today. Output a JSON object:
- sparky_role: string
- focus_mode: string
- hints_enabled: boolean
- spiral_emphasis: list of prior-week items to revisit (empty on day 1, at least one on days 2-3, at least two on day 4)
- encouragement_triggers: at least three situations that call for encouragement`,
		Validators: dayValidators,
	})

	RegisterSpec(Spec{
		Name:            PromptGuidelines,
		Version:         1,
		MaxOutputTokens: 2048,
		System:          daySystem,
		User: unitContext + `

WEEK SPEC:
{{.SpecJSON}}

ROLE CONTEXT:
{{.RoleContextJSON}}

Day {{.SubUnit}} focus: {{.DayFocus}}

Write Sparky's guidelines for today as markdown that starts with YAML frontmatter:
---
prior_knowledge: [list]
vocabulary: [list of Latin words]
grammar_focus: string
virtue: string
---
Then the lesson guidance. On day 4 explain how {{.ReviewShareMin}} to {{.ReviewShareMax}} of the session spirals back to prior weeks.`,
		Validators: dayValidators,
	})

	RegisterSpec(Spec{
		Name:            PromptTeachingPacket,
		Version:         1,
		Shape:           openai.ShapeJSON,
		MaxOutputTokens: 6000,
		System:          daySystem,
		User: unitContext + `

WEEK SPEC:
{{.SpecJSON}}

Class: {{.ClassName}}
Day {{.SubUnit}} focus: {{.DayFocus}}

Write Sparky's teaching packet. Output a JSON object whose keys are exactly
{{.PacketDocsCSV}}
and whose values are the full plain-text documents. Every document must be substantive.`,
		Validators: dayValidators,
	})

	RegisterSpec(Spec{
		Name:            PromptGreeting,
		Version:         1,
		MaxOutputTokens: 128,
		System:          daySystem,
		User: unitContext + `

Class: {{.ClassName}}

Write Sparky's opening greeting for day {{.SubUnit}}: one or two sentences, at most
{{.GreetingMaxChars}} characters, warm and about today's Latin. Output only the greeting.`,
		Validators: dayValidators,
	})

	RegisterSpec(Spec{
		Name:            PromptQuiz,
		Version:         1,
		Shape:           openai.ShapeJSON,
		MaxOutputTokens: 4096,
		System:          daySystem,
		User: unitContext + `

WEEK SPEC:
{{.SpecJSON}}

Write the day 4 quiz. Output a JSON object:
- items: at least {{.MinQuizItems}} entries of {id, prompt, answer, tag, source_unit, minutes}
  tag is "new" for week {{.Unit}} content or "review" for earlier weeks; source_unit is the week the item comes from.
  {{if gt .Unit 1}}Between {{.ReviewShareMin}} and {{.ReviewShareMax}} of the items must be review items.{{else}}Week 1 has no earlier weeks; every item is new.{{end}}
- lesson_flow: [{step, minutes, kind}] for the session`,
		Validators: dayValidators,
	})

	RegisterSpec(Spec{
		Name:            PromptAnswerKey,
		Version:         1,
		MaxOutputTokens: 2048,
		System:          daySystem,
		User: `
WEEK {{.Unit}}: {{.UnitTitle}}

QUIZ:
{{.QuizJSON}}

Write the teacher's answer key in markdown: every item id with its answer and a one-line
explanation. Mark review items with the week they come from.`,
		Validators: []Validator{
			RequireUnit(),
			RequireNonEmpty("QuizJSON", func(in Input) string { return in.QuizJSON }),
		},
	})
}
