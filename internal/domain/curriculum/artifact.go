package curriculum

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Unit-level documents (SubUnit 0).
const (
	DocResearchFindings = "research_findings.json"
	DocUnitSpec         = "week_spec.json"
	DocUnitSummary      = "week_summary.md"
	DocUnitRoleContext  = "role_context.json"
	DocGenerationLog    = "generation_log.json"
	DocValidationReport = "validation_report.json"
)

// Sub-unit artifacts, in generation order.
const (
	ArtClassName      = "01_class_name.txt"
	ArtSummary        = "02_summary.md"
	ArtGradeLevel     = "03_grade_level.txt"
	ArtRoleContext    = "04_role_context.json"
	ArtGuidelines     = "05_guidelines.md"
	ArtTeachingPacket = "06_teaching_packet"
	ArtGreeting       = "07_greeting.txt"

	ArtQuiz      = "assessment/quiz.json"
	ArtAnswerKey = "assessment/answer_key.md"
)

// SubUnitArtifacts lists the seven artifacts every sub-unit must carry.
var SubUnitArtifacts = []string{
	ArtClassName,
	ArtSummary,
	ArtGradeLevel,
	ArtRoleContext,
	ArtGuidelines,
	ArtTeachingPacket,
	ArtGreeting,
}

// TeachingPacketDocs are the six documents inside the compound teaching-packet artifact.
var TeachingPacketDocs = []string{
	"spiral_review_document.txt",
	"weekly_topics_document.txt",
	"virtue_and_faith_document.txt",
	"vocabulary_key_document.txt",
	"chant_chart_document.txt",
	"teacher_voice_tips_document.txt",
}

// UnitDocuments are required at the unit level before the gate can pass.
var UnitDocuments = []string{
	DocResearchFindings,
	DocUnitSpec,
	DocUnitSummary,
	DocUnitRoleContext,
	DocGenerationLog,
}

func PacketDoc(doc string) string { return ArtTeachingPacket + "/" + doc }

// ArtifactKey identifies one stored document: (unit, sub-unit, artifact name).
// SubUnit 0 addresses unit-level documents.
type ArtifactKey struct {
	Unit    int
	SubUnit int
	Name    string
}

func UnitKey(unit int, name string) ArtifactKey {
	return ArtifactKey{Unit: unit, Name: name}
}

func SubUnitKey(unit, subUnit int, name string) ArtifactKey {
	return ArtifactKey{Unit: unit, SubUnit: subUnit, Name: name}
}

// Path renders the key as a slash-separated relative path.
func (k ArtifactKey) Path() string {
	if k.SubUnit == 0 {
		return UnitDir(k.Unit) + "/internal_documents/" + k.Name
	}
	return UnitDir(k.Unit) + "/" + SubUnitDir(k.SubUnit) + "/" + k.Name
}

func (k ArtifactKey) String() string { return k.Path() }

// ParseKeyPath is the inverse of ArtifactKey.Path.
func ParseKeyPath(p string) (ArtifactKey, error) {
	p = strings.TrimPrefix(strings.ReplaceAll(p, "\\", "/"), "/")
	parts := strings.SplitN(p, "/", 3)
	if len(parts) < 3 || !strings.HasPrefix(parts[0], "Week") {
		return ArtifactKey{}, fmt.Errorf("not an artifact path: %q", p)
	}
	unit, err := strconv.Atoi(strings.TrimPrefix(parts[0], "Week"))
	if err != nil || unit <= 0 {
		return ArtifactKey{}, fmt.Errorf("bad unit in path %q", p)
	}
	if parts[1] == "internal_documents" {
		return ArtifactKey{Unit: unit, Name: parts[2]}, nil
	}
	if !strings.HasPrefix(parts[1], "Day") {
		return ArtifactKey{}, fmt.Errorf("bad sub-unit in path %q", p)
	}
	sub, err := strconv.Atoi(strings.TrimPrefix(parts[1], "Day"))
	if err != nil || sub < 1 || sub > SubUnitsPerUnit {
		return ArtifactKey{}, fmt.Errorf("bad sub-unit in path %q", p)
	}
	return ArtifactKey{Unit: unit, SubUnit: sub, Name: parts[2]}, nil
}

type AcceptanceStatus string

const (
	StatusAccepted AcceptanceStatus = "accepted"
	StatusFallback AcceptanceStatus = "fallback"
	StatusFailed   AcceptanceStatus = "failed"
)

// Provenance is enough to reproduce or audit an artifact.
type Provenance struct {
	GeneratedAt time.Time        `json:"generated_at"`
	Attempt     int              `json:"attempt"`
	Model       string           `json:"model,omitempty"`
	Method      GenerationMethod `json:"method"`
	Status      AcceptanceStatus `json:"status"`
	Reason      string           `json:"reason,omitempty"`
}

type Artifact struct {
	Key        ArtifactKey
	Content    []byte
	Provenance Provenance
}

// SubUnitBundle holds the artifacts generated for one day.
type SubUnitBundle struct {
	Unit      int
	SubUnit   int
	Artifacts map[string]*Artifact
	// Spiral is set on the fourth sub-unit only.
	Spiral *SpiralCoverage
}

func NewSubUnitBundle(unit, subUnit int) *SubUnitBundle {
	return &SubUnitBundle{Unit: unit, SubUnit: subUnit, Artifacts: map[string]*Artifact{}}
}

func (b *SubUnitBundle) Put(a *Artifact) {
	if b.Artifacts == nil {
		b.Artifacts = map[string]*Artifact{}
	}
	b.Artifacts[a.Key.Name] = a
}

func (b *SubUnitBundle) Text(name string) string {
	if a, ok := b.Artifacts[name]; ok && a != nil {
		return string(a.Content)
	}
	return ""
}

// Flagged lists artifacts that degraded to a fallback.
func (b *SubUnitBundle) Flagged() []string {
	out := []string{}
	for name, a := range b.Artifacts {
		if a != nil && a.Provenance.Status == StatusFallback {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// SpiralCoverage measures how much of the final sub-unit reinforces prior units.
type SpiralCoverage struct {
	ReviewItems   int     `json:"review_items"`
	TotalItems    int     `json:"total_items"`
	ReviewMinutes float64 `json:"review_minutes"`
	TotalMinutes  float64 `json:"total_minutes"`
	Fraction      float64 `json:"fraction"`
	// Basis is "items" or "time", whichever the measurement used.
	Basis string `json:"basis"`
}
