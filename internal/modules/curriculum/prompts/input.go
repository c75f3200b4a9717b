package prompts

// Input is a superset of all fields any prompt might need.
// Missing fields render empty strings (templates use missingkey=zero).
type Input struct {
	Unit    int
	SubUnit int

	// Outline entry
	UnitTitle        string
	ContentFocus     string
	GrammarFocus     string
	VocabularyDomain string
	Chant            string
	VirtueFocus      string
	SessionDuration  string
	IntroducesCSV    string

	// Sequence context
	PriorSummary          string
	UpcomingSummary       string
	CumulativeConceptsCSV string

	// Research
	DepsJSON     string
	FindingsJSON string

	// Planning
	SpecJSON      string
	VocabularyCSV string

	// Sub-unit
	DayFocus        string
	ClassName       string
	RoleContextJSON string
	PacketDocsCSV   string
	QuizJSON        string

	// Limits rendered into instructions
	GradeLevel       string
	ReviewShareMin   string
	ReviewShareMax   string
	GreetingMaxChars int
	MinQuizItems     int

	// Feedback is the rejection reason of the previous attempt.
	Feedback string
}
