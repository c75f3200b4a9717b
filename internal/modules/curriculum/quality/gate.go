package quality

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"

	"github.com/yungbote/curriculum-engine/internal/data/artifacts"
	repos "github.com/yungbote/curriculum-engine/internal/data/repos/runs"
	types "github.com/yungbote/curriculum-engine/internal/domain"
	"github.com/yungbote/curriculum-engine/internal/domain/curriculum"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/planner"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/policy"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/subunit"
	"github.com/yungbote/curriculum-engine/internal/observability"
	"github.com/yungbote/curriculum-engine/internal/pkg/dbctx"
	apperr "github.com/yungbote/curriculum-engine/internal/pkg/errors"
	"github.com/yungbote/curriculum-engine/internal/platform/logger"
)

type Options struct {
	SpiralMin float64
	SpiralMax float64
	Metrics   *observability.Metrics
	// Reports, when set, receives a row for every recorded evaluation.
	Reports repos.ValidationReportRepo
	Now     func() time.Time
}

// Gate judges a unit's stored artifact tree. Evaluate reads only the store,
// so evaluating an unchanged tree twice yields the same report.
type Gate struct {
	log    *logger.Logger
	store  artifacts.Store
	policy *policy.Policy
	opts   Options
}

func New(log *logger.Logger, store artifacts.Store, pol *policy.Policy, opts Options) *Gate {
	if opts.SpiralMin <= 0 {
		opts.SpiralMin = 0.25
	}
	if opts.SpiralMax <= 0 {
		opts.SpiralMax = 0.40
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Gate{
		log:    log.With("service", "QualityGate"),
		store:  store,
		policy: pol,
		opts:   opts,
	}
}

// check accumulates findings for one evaluation.
type check struct {
	g      *Gate
	ctx    context.Context
	unit   int
	report *curriculum.ValidationReport
}

func (c *check) errorf(key curriculum.ArtifactKey, format string, args ...any) {
	c.report.Add(curriculum.SeverityError, key.Path(), fmt.Sprintf(format, args...))
}

func (c *check) warnf(key curriculum.ArtifactKey, format string, args ...any) {
	c.report.Add(curriculum.SeverityWarning, key.Path(), fmt.Sprintf(format, args...))
}

func (c *check) infof(key curriculum.ArtifactKey, format string, args ...any) {
	c.report.Add(curriculum.SeverityInfo, key.Path(), fmt.Sprintf(format, args...))
}

// read returns the artifact, or nil after recording a missing-artifact error.
func (c *check) read(key curriculum.ArtifactKey) []byte {
	b, err := c.g.store.Get(c.ctx, key)
	if err != nil {
		if artifacts.IsNotFound(err) {
			c.errorf(key, "missing")
		} else {
			c.errorf(key, "unreadable: %v", err)
		}
		return nil
	}
	return b
}

// Evaluate runs every check over unit's artifacts and decides the verdict.
func (g *Gate) Evaluate(ctx context.Context, unit int) (*curriculum.ValidationReport, error) {
	if unit < 1 {
		return nil, fmt.Errorf("evaluate week %d: invalid week", unit)
	}
	ctx, span := observability.StartSpan(ctx, "quality.evaluate", attribute.Int("week", unit))
	defer span.End()

	c := &check{
		g:      g,
		ctx:    ctx,
		unit:   unit,
		report: &curriculum.ValidationReport{Unit: unit, Findings: []curriculum.Finding{}, Metrics: map[string]float64{}},
	}
	c.unitDocuments()
	thematic := &strings.Builder{}
	for d := 1; d <= curriculum.SubUnitsPerUnit; d++ {
		c.subUnit(d, thematic)
	}
	c.assessment()
	c.consistency()
	c.thematic(thematic.String())
	c.fallbacks()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.report.Decide()
	return c.report, nil
}

// Check evaluates unit, persists validation_report.json and records the
// verdict in the report repo when one is configured.
func (g *Gate) Check(ctx context.Context, runID string, unit int) (*curriculum.ValidationReport, error) {
	report, err := g.Evaluate(ctx, unit)
	if err != nil {
		return nil, err
	}
	if err := artifacts.PutJSON(ctx, g.store, curriculum.UnitKey(unit, curriculum.DocValidationReport), report); err != nil {
		return nil, fmt.Errorf("persist validation report: %w", err)
	}
	g.opts.Metrics.IncVerdict(string(report.Verdict))
	if g.opts.Reports != nil {
		raw, _ := json.Marshal(report)
		row := &types.ValidationReportRow{
			RunID:     runID,
			Unit:      unit,
			Verdict:   string(report.Verdict),
			Errors:    report.Count(curriculum.SeverityError),
			Warnings:  report.Count(curriculum.SeverityWarning),
			Report:    datatypes.JSON(raw),
			CreatedAt: g.opts.Now().UTC(),
		}
		if err := g.opts.Reports.Create(dbctx.Context{Ctx: ctx}, row); err != nil {
			g.log.Warn("Failed to record validation report", "week", unit, "error", err)
		}
	}
	g.log.Info("Week evaluated",
		"week", unit,
		"verdict", report.Verdict,
		"errors", report.Count(curriculum.SeverityError),
		"warnings", report.Count(curriculum.SeverityWarning),
	)
	return report, nil
}

// LoadReport reads the stored report of unit.
func LoadReport(ctx context.Context, store artifacts.Store, unit int) (*curriculum.ValidationReport, error) {
	var r curriculum.ValidationReport
	if err := artifacts.GetJSON(ctx, store, curriculum.UnitKey(unit, curriculum.DocValidationReport), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *check) unitDocuments() {
	for _, name := range curriculum.UnitDocuments {
		key := curriculum.UnitKey(c.unit, name)
		b := c.read(key)
		if b == nil {
			continue
		}
		if strings.HasSuffix(name, ".json") && !json.Valid(b) {
			c.errorf(key, "not valid JSON")
			continue
		}
		if name == curriculum.DocUnitSummary {
			if p, ok := c.g.policy.FindPlaceholder(string(b)); ok {
				c.errorf(key, "contains placeholder text %q", p)
			}
		}
	}
}

func (c *check) subUnit(d int, thematic *strings.Builder) {
	pol := c.g.policy
	key := func(name string) curriculum.ArtifactKey { return curriculum.SubUnitKey(c.unit, d, name) }
	reject := func(k curriculum.ArtifactKey, err error) {
		if err != nil {
			c.errorf(k, "%s", rejectionReason(err))
		}
	}

	if b := c.read(key(curriculum.ArtClassName)); b != nil {
		reject(key(curriculum.ArtClassName), subunit.CheckClassName(subunit.CleanLine(string(b)), pol))
	}
	if b := c.read(key(curriculum.ArtSummary)); b != nil {
		if p, ok := pol.FindPlaceholder(string(b)); ok {
			c.errorf(key(curriculum.ArtSummary), "contains placeholder text %q", p)
		} else if term, ok := pol.SummaryOffTopic(string(b)); ok {
			c.warnf(key(curriculum.ArtSummary), "off-topic term %q", term)
		}
	}
	if b := c.read(key(curriculum.ArtGradeLevel)); b != nil && strings.TrimSpace(string(b)) != pol.GradeLevel {
		c.errorf(key(curriculum.ArtGradeLevel), "grade level is %q, expected %q", strings.TrimSpace(string(b)), pol.GradeLevel)
	}
	if b := c.read(key(curriculum.ArtRoleContext)); b != nil {
		raw := map[string]any{}
		if err := json.Unmarshal(b, &raw); err != nil {
			c.errorf(key(curriculum.ArtRoleContext), "not valid JSON: %v", err)
		} else {
			_, err := subunit.CheckRoleContext(raw, c.unit, d, pol)
			reject(key(curriculum.ArtRoleContext), err)
		}
	}
	if b := c.read(key(curriculum.ArtGuidelines)); b != nil {
		reject(key(curriculum.ArtGuidelines), subunit.CheckGuidelines(string(b), d, pol))
		thematic.Write(b)
	}
	docs := map[string]string{}
	missing := false
	for _, doc := range curriculum.TeachingPacketDocs {
		b := c.read(key(curriculum.PacketDoc(doc)))
		if b == nil {
			missing = true
			continue
		}
		docs[doc] = string(b)
		thematic.Write(b)
		thematic.WriteByte('\n')
	}
	if !missing {
		reject(key(curriculum.ArtTeachingPacket), subunit.CheckPacket(docs, pol))
	}
	if b := c.read(key(curriculum.ArtGreeting)); b != nil {
		reject(key(curriculum.ArtGreeting), subunit.CheckGreeting(subunit.CleanLine(string(b)), pol))
	}
}

func (c *check) assessment() {
	pol := c.g.policy
	day := curriculum.SubUnitsPerUnit
	quizKey := curriculum.SubUnitKey(c.unit, day, curriculum.ArtQuiz)
	answerKey := curriculum.SubUnitKey(c.unit, day, curriculum.ArtAnswerKey)

	if b := c.read(answerKey); b != nil {
		if n := len([]rune(strings.TrimSpace(string(b)))); n < pol.Assessment.AnswerKeyMinChars {
			c.warnf(answerKey, "answer key is only %d characters, expected at least %d", n, pol.Assessment.AnswerKeyMinChars)
		}
	}

	b := c.read(quizKey)
	if b == nil {
		return
	}
	var q curriculum.Quiz
	if err := json.Unmarshal(b, &q); err != nil {
		c.errorf(quizKey, "not valid JSON: %v", err)
		return
	}
	if len(q.Items) < pol.Assessment.MinItems {
		c.errorf(quizKey, "quiz has %d items, need at least %d", len(q.Items), pol.Assessment.MinItems)
	}
	cov := q.Spiral()
	c.report.Metrics["spiral_fraction"] = round3(cov.Fraction)
	c.report.Metrics["review_items"] = float64(cov.ReviewItems)
	c.report.Metrics["total_items"] = float64(cov.TotalItems)

	if c.unit == 1 {
		c.infof(quizKey, "week 1 has no earlier weeks; spiral coverage not required")
		return
	}
	lo, hi := c.g.opts.SpiralMin, c.g.opts.SpiralMax
	pct := cov.Fraction * 100
	switch {
	case cov.Fraction < lo:
		n := int(math.Ceil(lo*float64(cov.TotalItems))) - cov.ReviewItems
		c.report.Findings = append(c.report.Findings, curriculum.Finding{
			Severity:       curriculum.SeverityError,
			Location:       quizKey.Path(),
			Message:        fmt.Sprintf("spiral review is %.1f%% of day 4 by %s, below the %.0f%% minimum", pct, cov.Basis, lo*100),
			SuggestedPatch: fmt.Sprintf("swap %d items for review items", max(n, 1)),
		})
	case cov.Fraction > hi:
		n := cov.ReviewItems - int(math.Floor(hi*float64(cov.TotalItems)))
		c.report.Findings = append(c.report.Findings, curriculum.Finding{
			Severity:       curriculum.SeverityError,
			Location:       quizKey.Path(),
			Message:        fmt.Sprintf("spiral review is %.1f%% of day 4 by %s, above the %.0f%% maximum", pct, cov.Basis, hi*100),
			SuggestedPatch: fmt.Sprintf("swap %d review items for new items", max(n, 1)),
		})
	}
}

// consistency compares the spec against the outline entry captured by research.
func (c *check) consistency() {
	specKey := curriculum.UnitKey(c.unit, curriculum.DocUnitSpec)
	spec, err := planner.LoadSpec(c.ctx, c.g.store, c.unit)
	if err != nil {
		// a missing spec is already reported as a structural error
		if !artifacts.IsNotFound(err) {
			c.errorf(specKey, "spec does not parse: %v", err)
		}
		return
	}
	if spec.Metadata.Unit != c.unit {
		c.errorf(specKey, "metadata.week is %d, expected %d", spec.Metadata.Unit, c.unit)
	}

	var findings curriculum.ResearchFindings
	if err := artifacts.GetJSON(c.ctx, c.g.store, curriculum.UnitKey(c.unit, curriculum.DocResearchFindings), &findings); err != nil {
		return
	}
	entry := findings.StepData(curriculum.StepWeekEntry)
	if title, _ := entry["title"].(string); title != "" && !strings.EqualFold(strings.TrimSpace(spec.Metadata.Title), strings.TrimSpace(title)) {
		c.warnf(specKey, "title %q differs from the outline title %q", spec.Metadata.Title, title)
	}
	if virtue, _ := entry["virtue_focus"].(string); virtue != "" && spec.Metadata.VirtueFocus != "" &&
		!strings.EqualFold(strings.TrimSpace(spec.Metadata.VirtueFocus), strings.TrimSpace(virtue)) {
		c.warnf(specKey, "virtue %q differs from the outline virtue %q", spec.Metadata.VirtueFocus, virtue)
	}
}

func (c *check) thematic(text string) {
	pol := c.g.policy
	for _, term := range pol.Thematic.Terms {
		n := policy.CountMentions(text, term)
		c.report.Metrics["thematic_"+term] = float64(n)
		if n < pol.Thematic.MinMentions {
			c.report.Findings = append(c.report.Findings, curriculum.Finding{
				Severity: curriculum.SeverityWarning,
				Location: curriculum.UnitDir(c.unit),
				Message:  fmt.Sprintf("%q is mentioned %d times across guidelines and teaching packets, expected at least %d", term, n, pol.Thematic.MinMentions),
			})
		}
	}
}

func (c *check) fallbacks() {
	var log curriculum.GenerationLog
	if err := artifacts.GetJSON(c.ctx, c.g.store, curriculum.UnitKey(c.unit, curriculum.DocGenerationLog), &log); err != nil {
		return
	}
	for _, path := range log.Fallbacks() {
		prov := log.Artifacts[path]
		c.report.Findings = append(c.report.Findings, curriculum.Finding{
			Severity: curriculum.SeverityWarning,
			Location: path,
			Message:  fmt.Sprintf("fallback content after %d attempts: %s", prov.Attempt, prov.Reason),
		})
	}
	c.report.Metrics["fallbacks"] = float64(len(log.Fallbacks()))
}

func rejectionReason(err error) string {
	var rej *apperr.AcceptanceRejected
	if errors.As(err, &rej) {
		return rej.Reason
	}
	return err.Error()
}

func round3(f float64) float64 { return math.Round(f*1000) / 1000 }
