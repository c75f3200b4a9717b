package curriculum

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

type Verdict string

const (
	VerdictOK   Verdict = "ok"
	VerdictWarn Verdict = "warn"
	VerdictFail Verdict = "fail"
)

// Passing reports whether the verdict satisfies the prerequisite check of later units.
func (v Verdict) Passing() bool { return v == VerdictOK || v == VerdictWarn }

type Finding struct {
	Severity       Severity `json:"severity"`
	Location       string   `json:"location"`
	Message        string   `json:"message"`
	SuggestedPatch string   `json:"suggested_patch,omitempty"`
}

type ValidationReport struct {
	Unit     int                `json:"week"`
	Verdict  Verdict            `json:"verdict"`
	Findings []Finding          `json:"findings"`
	Metrics  map[string]float64 `json:"metrics,omitempty"`
}

func (r *ValidationReport) Add(sev Severity, location, message string) {
	r.Findings = append(r.Findings, Finding{Severity: sev, Location: location, Message: message})
}

func (r *ValidationReport) Count(sev Severity) int {
	n := 0
	for _, f := range r.Findings {
		if f.Severity == sev {
			n++
		}
	}
	return n
}

// Decide applies the gate rule: any error fails, otherwise any warning warns.
func (r *ValidationReport) Decide() Verdict {
	switch {
	case r.Count(SeverityError) > 0:
		r.Verdict = VerdictFail
	case r.Count(SeverityWarning) > 0:
		r.Verdict = VerdictWarn
	default:
		r.Verdict = VerdictOK
	}
	return r.Verdict
}
