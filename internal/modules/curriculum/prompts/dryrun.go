package prompts

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yungbote/curriculum-engine/internal/domain/curriculum"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/outline"
	"github.com/yungbote/curriculum-engine/internal/platform/openai"
)

type dryWord struct {
	Latin, English, POS string
}

var dryWordPool = []dryWord{
	{"amo", "I love", "verb"}, {"laudo", "I praise", "verb"}, {"voco", "I call", "verb"}, {"oro", "I pray", "verb"},
	{"terra", "earth", "noun"}, {"aqua", "water", "noun"}, {"via", "road", "noun"}, {"stella", "star", "noun"},
	{"porto", "I carry", "verb"}, {"specto", "I look at", "verb"}, {"ambulo", "I walk", "verb"}, {"canto", "I sing", "verb"},
	{"puella", "girl", "noun"}, {"agricola", "farmer", "noun"}, {"nauta", "sailor", "noun"}, {"regina", "queen", "noun"},
	{"servus", "servant", "noun"}, {"dominus", "lord", "noun"}, {"amicus", "friend", "noun"}, {"filius", "son", "noun"},
	{"bonus", "good", "adjective"}, {"magnus", "great", "adjective"}, {"parvus", "small", "adjective"}, {"novus", "new", "adjective"},
	{"video", "I see", "verb"}, {"habeo", "I have", "verb"}, {"moneo", "I warn", "verb"}, {"doceo", "I teach", "verb"},
	{"rex", "king", "noun"}, {"lux", "light", "noun"}, {"pax", "peace", "noun"}, {"lex", "law", "noun"},
	{"duco", "I lead", "verb"}, {"dico", "I say", "verb"}, {"mitto", "I send", "verb"}, {"scribo", "I write", "verb"},
}

func dryVocabulary(unit int) []dryWord {
	if unit < 1 {
		return nil
	}
	out := make([]dryWord, 0, 4)
	start := ((unit - 1) * 4) % len(dryWordPool)
	for i := 0; i < 4; i++ {
		out = append(out, dryWordPool[(start+i)%len(dryWordPool)])
	}
	return out
}

// dryQuizReview is the review item count of the dry-run quiz: 3 of 10 (30%).
const (
	dryQuizItems  = 10
	dryQuizReview = 3
)

// NewDryRunResponder answers every registered prompt with well-formed canned
// content built from the outline, so a dry run exercises the whole pipeline
// including acceptance predicates and the quality gate.
func NewDryRunResponder(o *outline.Store) openai.Responder {
	return func(req openai.Request) (string, bool) {
		if o == nil {
			return "", false
		}
		entry, err := o.Entry(req.Unit)
		if err != nil {
			return "", false
		}
		d := dryRun{o: o, e: entry, unit: req.Unit, sub: req.SubUnit}
		var v any
		switch PromptName(req.Kind) {
		case PromptBackwardAnalysis:
			v = d.backward()
		case PromptForwardAnalysis:
			v = d.forward()
		case PromptPedagogicalResearch:
			v = d.pedagogy()
		case PromptVocabularyPlan:
			v = d.vocabularyPlan()
		case PromptVirtueFaith:
			v = d.virtue()
		case PromptAssessmentPlan:
			v = d.assessment()
		case PromptDifferentiation:
			v = d.differentiation()
		case PromptMasterAnalysis:
			v = d.masters()
		case PromptAlignmentGuide:
			v = d.alignment()
		case PromptUnitSpec:
			v = d.spec()
		case PromptRoleContext:
			v = d.roleContext()
		case PromptTeachingPacket:
			v = d.packet()
		case PromptQuiz:
			v = d.quiz()
		case PromptUnitSummary:
			return d.unitSummary(), true
		case PromptClassName:
			return d.className(), true
		case PromptDaySummary:
			return d.daySummary(), true
		case PromptGuidelines:
			return d.guidelines(), true
		case PromptGreeting:
			return fmt.Sprintf("Salvete, discipuli! Welcome to day %d of week %d, where we keep growing our Latin together.", d.sub, d.unit), true
		case PromptAnswerKey:
			return d.answerKey(), true
		default:
			return "", false
		}
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return "", false
		}
		return string(b), true
	}
}

type dryRun struct {
	o    *outline.Store
	e    curriculum.UnitEntry
	unit int
	sub  int
}

func (d dryRun) words() []dryWord { return dryVocabulary(d.unit) }

func (d dryRun) latinList() string {
	ws := d.words()
	out := make([]string, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Latin)
	}
	return strings.Join(out, ", ")
}

func (d dryRun) virtue() map[string]any {
	return map[string]any{
		"virtue_focus":                          d.e.VirtueFocus,
		"virtue_connection_to_language_learning": "Careful daily Latin practice builds " + strings.ToLower(d.e.VirtueFocus) + ".",
		"scripture_reference": map[string]any{
			"passage":     "Colossians 3:23",
			"text":        "Whatever you do, work heartily, as for the Lord.",
			"application": "We give our best effort to every chant and translation.",
		},
		"faith_phrase":             "Deo gratias",
		"faith_phrase_explanation": "Thanks be to God; we close each lesson with gratitude.",
		"virtue_practice_in_lesson": []string{"Encourage a classmate", "Finish the chant with care"},
	}
}

func (d dryRun) backward() map[string]any {
	vocab := []map[string]any{}
	prior := []int{}
	for k := 1; k < d.unit; k++ {
		prior = append(prior, k)
		for _, w := range dryVocabulary(k) {
			vocab = append(vocab, map[string]any{"word": w.Latin, "week_introduced": k, "part_of_speech": w.POS})
		}
	}
	concepts := []map[string]any{}
	if d.unit > 1 {
		cc, _ := d.o.CumulativeConcepts(d.unit - 1)
		for _, c := range cc {
			concepts = append(concepts, map[string]any{"concept": c, "mastery_level": "developing"})
		}
	}
	return map[string]any{
		"prior_weeks_reviewed":            prior,
		"cumulative_latin_vocabulary":     vocab,
		"cumulative_grammar_concepts":     concepts,
		"student_knowledge_state":         fmt.Sprintf("Students enter week %d with %d Latin words.", d.unit, len(vocab)),
		"common_mistakes_by_now":          []string{"Dropping verb endings", "Confusing long and short vowels"},
		"spiral_review_target_percentage": 0.3,
	}
}

func (d dryRun) forward() map[string]any {
	upcoming, _ := d.o.UpcomingPreview(d.unit, 3)
	topics := []map[string]any{}
	weeks := []int{}
	for _, u := range upcoming {
		weeks = append(weeks, u.Ordinal)
		topics = append(topics, map[string]any{
			"week":                      u.Ordinal,
			"title":                     u.Title,
			"dependency_on_current_week": "Builds on " + d.e.GrammarFocus,
		})
	}
	seeds := []map[string]any{}
	if next := dryVocabulary(d.unit + 1); len(next) > 0 {
		seeds = append(seeds, map[string]any{"word": next[0].Latin, "future_use": "Introduced next week"})
	}
	return map[string]any{
		"future_weeks_previewed":                 weeks,
		"upcoming_topics":                        topics,
		"prerequisites_this_week_must_establish": []string{d.e.GrammarFocus},
		"vocabulary_seeds_for_future":            seeds,
	}
}

func (d dryRun) pedagogy() map[string]any {
	return map[string]any{
		"research_question":                  "How do classical curricula teach " + d.e.GrammarFocus + "?",
		"classical_approach":                 "Chant first, then guided Latin practice and oral translation.",
		"standard_vocabulary_for_this_topic": strings.Split(d.latinList(), ", "),
		"time_tested_chants":                 []string{d.e.Chant},
		"common_misconceptions":              []string{"Students translate word by word; model whole phrases instead."},
	}
}

func (d dryRun) vocabularyPlan() map[string]any {
	newWords := []map[string]any{}
	for _, w := range d.words() {
		newWords = append(newWords, map[string]any{"word": w.Latin, "english": w.English, "part_of_speech": w.POS, "rationale": "Fits " + d.e.GrammarFocus})
	}
	recycled := []map[string]any{}
	for _, w := range dryVocabulary(d.unit - 1) {
		recycled = append(recycled, map[string]any{"word": w.Latin, "originally_taught_week": d.unit - 1, "spiral_purpose": "Day 4 review"})
	}
	return map[string]any{
		"vocabulary_reasoning": "Words chosen to practice " + d.e.GrammarFocus + ".",
		"new_latin_words":      newWords,
		"recycled_latin_words": recycled,
		"alignment_check":      map[string]any{"matches_grammar_topic": true, "age_appropriate": true, "latin_only": true},
	}
}

func (d dryRun) assessment() map[string]any {
	return map[string]any{
		"day_4_quiz_components": []map[string]any{
			{"component": "Vocabulary recall", "format": "oral", "words_tested": d.latinList(), "mastery_target": "80%"},
			{"component": "Spiral review", "format": "written", "words_tested": "prior weeks", "mastery_target": "75%"},
		},
		"success_indicators":        []string{"Recites the chant", "Translates new Latin words"},
		"preparation_for_next_week": "Keep chanting daily.",
	}
}

func (d dryRun) differentiation() map[string]any {
	return map[string]any{
		"struggling_students":       map[string]any{"scaffolds": []string{"Picture cards", "Echo chanting"}, "modified_success_criteria": "Three of four words"},
		"advanced_students":         map[string]any{"extensions": []string{"Write a Latin sentence"}, "advanced_practice": "Derivative hunt"},
		"english_language_learners": map[string]any{"pronunciation_support": []string{"Slow modeling"}, "vocabulary_support": "Picture glossary"},
	}
}

func (d dryRun) masters() map[string]any {
	return map[string]any{
		"class_name_pattern": "Week N Day D: Topic",
		"summary_style_guide": map[string]any{
			"tone": "warm", "structure": "goal, practice, closure",
			"opening_pattern": "Today we", "closing_pattern": "Deo gratias",
		},
		"vocabulary_format":           map[string]any{"simple_style": "word – meaning", "advanced_style": "word, principal parts – meaning", "typography_rules": "Latin in italics"},
		"tutor_voice_characteristics": []string{"encouraging", "patient"},
		"quality_markers":             []string{"clear objectives", "spiral review"},
	}
}

func (d dryRun) alignment() map[string]any {
	names := map[string]any{}
	for day := 1; day <= curriculum.SubUnitsPerUnit; day++ {
		names[fmt.Sprintf("day_%d", day)] = d.classNameFor(day)
	}
	lines := []string{}
	for _, w := range d.words() {
		lines = append(lines, w.Latin+" – "+w.English)
	}
	return map[string]any{
		"aligned_class_names":       names,
		"aligned_summaries":         map[string]any{"opening": "Today we", "closing": "Deo gratias"},
		"aligned_vocabulary_format": lines,
		"tutor_voice_samples":       map[string]any{"greeting": "Salvete!", "encouragement": "Optime!", "correction": "Try once more."},
	}
}

func (d dryRun) spec() map[string]any {
	vocab := []map[string]any{}
	for _, w := range d.words() {
		vocab = append(vocab, map[string]any{"latin": w.Latin, "english": w.English, "part_of_speech": w.POS})
	}
	links := []string{}
	if d.unit > 1 {
		prev, _ := d.o.Entry(d.unit - 1)
		links = append(links, fmt.Sprintf("Week %d: %s", prev.Ordinal, prev.Title))
	}
	return map[string]any{
		"metadata": map[string]any{
			"week":             d.unit,
			"title":            d.e.Title,
			"theme":            d.e.ContentFocus,
			"virtue_focus":     d.e.VirtueFocus,
			"session_duration": d.e.SessionDuration,
		},
		"objectives": []string{
			"Chant " + d.e.Chant + " from memory",
			"Translate the new Latin words " + d.latinList(),
			"Identify " + d.e.GrammarFocus + " in short Latin phrases",
		},
		"vocabulary":    vocab,
		"grammar_focus": d.e.GrammarFocus,
		"focus_topic":   d.e.ContentFocus,
		"chant_name":    d.e.Chant,
		"chant_text":    d.e.Chant,
		"spiral_links":  links,
	}
}

func (d dryRun) unitSummary() string {
	return fmt.Sprintf(`# Week %d: %s

## Goals
Students practice %s with the Latin vocabulary %s and chant %s.

## Virtue and faith
This week we grow in %s; every lesson closes by connecting our Latin work to our faith.

## Flow
Day 1 introduces, days 2 and 3 practice and apply, day 4 reviews with a spiral back to prior weeks.
`, d.unit, d.e.Title, d.e.GrammarFocus, d.latinList(), d.e.Chant, d.e.VirtueFocus)
}

func (d dryRun) classNameFor(day int) string {
	name := fmt.Sprintf("Week %d Day %d: Latin %s", d.unit, day, d.e.Title)
	if r := []rune(name); len(r) > 100 {
		name = string(r[:100])
	}
	return name
}

func (d dryRun) className() string { return d.classNameFor(d.sub) }

func (d dryRun) daySummary() string {
	return fmt.Sprintf("## Day %d: %s\n\nToday students work on %s in Latin, using the vocabulary %s. The lesson ends with a short reflection on %s.\n",
		d.sub, curriculum.SubUnitFocus(d.sub), d.e.GrammarFocus, d.latinList(), d.e.VirtueFocus)
}

func (d dryRun) emphasis() []string {
	n := d.sub - 1
	if n > 2 {
		n = 2
	}
	out := []string{}
	for i := 0; i < n; i++ {
		if d.unit > 1 {
			back := d.unit - 1 - i
			if back < 1 {
				back = 1
			}
			out = append(out, fmt.Sprintf("Week %d vocabulary", back))
		} else {
			out = append(out, fmt.Sprintf("Day %d vocabulary", i+1))
		}
	}
	return out
}

func (d dryRun) roleContext() map[string]any {
	return map[string]any{
		"sparky_role":   "Latin tutor",
		"focus_mode":    strings.ToLower(curriculum.SubUnitFocus(d.sub)),
		"hints_enabled": d.sub < 4,
		"spiral_emphasis": d.emphasis(),
		"encouragement_triggers": []string{
			"Student recites the chant",
			"Student corrects a mistake",
			"Student tries a new Latin word",
		},
	}
}

func (d dryRun) guidelines() string {
	prior := []string{}
	if d.unit > 1 {
		prev, _ := d.o.Entry(d.unit - 1)
		prior = append(prior, prev.Title)
	}
	fm := fmt.Sprintf("---\nprior_knowledge: [%s]\nvocabulary: [%s]\ngrammar_focus: %q\nvirtue: %q\n---\n",
		strings.Join(prior, ", "), d.latinList(), d.e.GrammarFocus, d.e.VirtueFocus)
	body := fmt.Sprintf("\n# Sparky guidelines, day %d\n\nGuide students through %s. Model each Latin word aloud and invite echo responses.\nTie the lesson to the virtue of %s and to our faith.\n",
		d.sub, strings.ToLower(curriculum.SubUnitFocus(d.sub)), d.e.VirtueFocus)
	if d.sub == curriculum.SubUnitsPerUnit {
		body += "\nToday is a spiral review day: roughly 30% of the session revisits prior weeks before the quiz.\n"
	}
	return fm + body
}

func (d dryRun) packet() map[string]any {
	docs := map[string]string{
		"spiral_review_document.txt":      "Spiral review: revisit earlier Latin words and chants for a few minutes each day, growing to a third of day 4.",
		"weekly_topics_document.txt":      fmt.Sprintf("This week: %s. Grammar focus: %s. Chant: %s.", d.e.Title, d.e.GrammarFocus, d.e.Chant),
		"virtue_and_faith_document.txt":   fmt.Sprintf("Virtue: %s. Faith phrase: Deo gratias. We connect our virtue practice to our faith every day.", d.e.VirtueFocus),
		"vocabulary_key_document.txt":     "Vocabulary key: " + d.vocabKey(),
		"chant_chart_document.txt":        fmt.Sprintf("Chant chart for %s: chant slowly, then briskly, then from memory.", d.e.Chant),
		"teacher_voice_tips_document.txt": "Voice tips: speak slowly, praise effort, and let students echo every Latin word twice.",
	}
	out := map[string]any{}
	for k, v := range docs {
		out[k] = v
	}
	return out
}

func (d dryRun) vocabKey() string {
	lines := []string{}
	for _, w := range d.words() {
		lines = append(lines, w.Latin+" – "+w.English)
	}
	return strings.Join(lines, "; ")
}

func (d dryRun) quiz() curriculum.Quiz {
	q := curriculum.Quiz{}
	review := 0
	if d.unit > 1 {
		review = dryQuizReview
	}
	words := d.words()
	prev := dryVocabulary(d.unit - 1)
	for i := 0; i < dryQuizItems; i++ {
		item := curriculum.QuizItem{ID: fmt.Sprintf("q%d", i+1), Minutes: 1, Tag: curriculum.TagNew, SourceUnit: d.unit}
		w := words[i%len(words)]
		if i < review {
			w = prev[i%len(prev)]
			item.Tag = curriculum.TagReview
			item.SourceUnit = d.unit - 1
		}
		item.Prompt = fmt.Sprintf("What does the Latin word %q mean?", w.Latin)
		item.Answer = w.English
		q.Items = append(q.Items, item)
	}
	q.LessonFlow = []curriculum.FlowStep{
		{Step: "Greeting and chant", Minutes: 5, Kind: "review"},
		{Step: "Quiz", Minutes: 10, Kind: "assessment"},
		{Step: "Virtue closure", Minutes: 3, Kind: "closure"},
	}
	return q
}

func (d dryRun) answerKey() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Week %d answer key\n\n", d.unit)
	for _, it := range d.quiz().Items {
		line := fmt.Sprintf("- **%s**: %s", it.ID, it.Answer)
		if it.Tag == curriculum.TagReview {
			line += fmt.Sprintf(" (review from week %d)", it.SourceUnit)
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}
