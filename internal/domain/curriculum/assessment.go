package curriculum

const (
	TagNew    = "new"
	TagReview = "review"
)

type QuizItem struct {
	ID         string  `json:"id"`
	Prompt     string  `json:"prompt"`
	Answer     string  `json:"answer"`
	Tag        string  `json:"tag"`
	SourceUnit int     `json:"source_unit"`
	Minutes    float64 `json:"minutes,omitempty"`
}

type FlowStep struct {
	Step    string  `json:"step"`
	Minutes float64 `json:"minutes"`
	Kind    string  `json:"kind"`
}

// Quiz is the fourth sub-unit assessment.
type Quiz struct {
	Items      []QuizItem `json:"items"`
	LessonFlow []FlowStep `json:"lesson_flow,omitempty"`
}

// Spiral measures review share. Time is the basis when every item carries
// minutes; otherwise items are counted.
func (q Quiz) Spiral() SpiralCoverage {
	c := SpiralCoverage{TotalItems: len(q.Items), Basis: "items"}
	timed := len(q.Items) > 0
	for _, it := range q.Items {
		review := it.Tag == TagReview
		if review {
			c.ReviewItems++
		}
		if it.Minutes <= 0 {
			timed = false
			continue
		}
		c.TotalMinutes += it.Minutes
		if review {
			c.ReviewMinutes += it.Minutes
		}
	}
	switch {
	case timed && c.TotalMinutes > 0:
		c.Basis = "time"
		c.Fraction = c.ReviewMinutes / c.TotalMinutes
	case c.TotalItems > 0:
		c.Fraction = float64(c.ReviewItems) / float64(c.TotalItems)
	}
	return c
}

// RoleContext is the per-day tutor configuration.
type RoleContext struct {
	SparkyRole            string   `json:"sparky_role"`
	FocusMode             string   `json:"focus_mode"`
	HintsEnabled          bool     `json:"hints_enabled"`
	SpiralEmphasis        []string `json:"spiral_emphasis"`
	EncouragementTriggers []string `json:"encouragement_triggers"`
}
