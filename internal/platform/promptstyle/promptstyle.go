package promptstyle

import "strings"

const marker = "LATIN_CURRICULUM_PROMPT_STYLE_V1"

// ApplySystem prepends the house writing guidance to a system prompt.
// Applying it twice is a no-op.
func ApplySystem(system string, jsonOutput bool) string {
	base := strings.TrimSpace(system)
	if base == "" {
		return base
	}
	if strings.Contains(base, marker) {
		return base
	}

	var b strings.Builder
	b.WriteString(marker)
	b.WriteString("\nYou write classroom material for a 35-week Latin course taught to grades 3-5.")
	b.WriteString("\nStay inside the week's grammar, vocabulary and virtue; never teach a later week's material early.")
	b.WriteString("\nUse warm, simple sentences a nine-year-old can follow.")
	b.WriteString("\nNever leave template markers, TODOs or bracketed blanks in the output.")
	if jsonOutput {
		b.WriteString("\nReturn a single JSON object with exactly the requested keys and nothing around it.")
	} else {
		b.WriteString("\nReturn only the requested text, without preamble or commentary.")
	}
	b.WriteString("\n---\n")
	b.WriteString(base)
	return b.String()
}
