package outline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/curriculum-engine/internal/domain/curriculum"
	apperr "github.com/yungbote/curriculum-engine/internal/pkg/errors"
)

var ErrOrdinalOutOfRange = fmt.Errorf("ordinal out of range: %w", apperr.ErrInvalidArgument)

type document struct {
	TotalUnits int                    `yaml:"total_weeks"`
	Units      []curriculum.UnitEntry `yaml:"weeks"`
}

// Store is the read-only scope and sequence. Every method is a pure read.
type Store struct {
	entries []curriculum.UnitEntry
}

// Load parses a YAML (or JSON) outline.
func Load(r io.Reader) (*Store, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode outline: %w", err)
	}
	if doc.TotalUnits > 0 && doc.TotalUnits != len(doc.Units) {
		return nil, fmt.Errorf("outline declares %d weeks but lists %d: %w", doc.TotalUnits, len(doc.Units), apperr.ErrInvalidArgument)
	}
	return New(doc.Units)
}

func LoadFile(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open outline: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// New validates that ordinals run 1..N without gaps and that every
// prerequisite points at an earlier unit.
func New(entries []curriculum.UnitEntry) (*Store, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("outline has no weeks: %w", apperr.ErrInvalidArgument)
	}
	sorted := make([]curriculum.UnitEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Ordinal < sorted[j].Ordinal })

	for i, e := range sorted {
		if e.Ordinal != i+1 {
			return nil, fmt.Errorf("outline week %d found at position %d (weeks must run 1..%d): %w", e.Ordinal, i+1, len(sorted), apperr.ErrInvalidArgument)
		}
		if strings.TrimSpace(e.Title) == "" {
			return nil, fmt.Errorf("outline week %d has no title: %w", e.Ordinal, apperr.ErrInvalidArgument)
		}
		for _, p := range e.Prerequisites {
			if p < 1 || p >= e.Ordinal {
				return nil, fmt.Errorf("outline week %d lists prerequisite %d, which is not an earlier week: %w", e.Ordinal, p, apperr.ErrInvalidArgument)
			}
		}
		sorted[i].Prerequisites = append([]int(nil), e.Prerequisites...)
		sorted[i].Introduces = append([]string(nil), e.Introduces...)
	}
	return &Store{entries: sorted}, nil
}

func (s *Store) Total() int { return len(s.entries) }

func (s *Store) Entry(ordinal int) (curriculum.UnitEntry, error) {
	if ordinal < 1 || ordinal > len(s.entries) {
		return curriculum.UnitEntry{}, fmt.Errorf("week %d (valid 1-%d): %w", ordinal, len(s.entries), ErrOrdinalOutOfRange)
	}
	e := s.entries[ordinal-1]
	e.Prerequisites = append([]int(nil), e.Prerequisites...)
	e.Introduces = append([]string(nil), e.Introduces...)
	return e, nil
}

func (s *Store) Prerequisites(ordinal int) ([]int, error) {
	e, err := s.Entry(ordinal)
	if err != nil {
		return nil, err
	}
	return e.Prerequisites, nil
}

// CumulativeConcepts lists the concepts introduced in weeks 1..ordinal, in order.
func (s *Store) CumulativeConcepts(ordinal int) ([]string, error) {
	if _, err := s.Entry(ordinal); err != nil {
		return nil, err
	}
	out := []string{}
	for _, e := range s.entries[:ordinal] {
		out = append(out, e.Introduces...)
	}
	return out, nil
}

// UpcomingPreview returns up to lookahead entries after ordinal.
func (s *Store) UpcomingPreview(ordinal, lookahead int) ([]curriculum.UnitEntry, error) {
	if _, err := s.Entry(ordinal); err != nil {
		return nil, err
	}
	end := ordinal + lookahead
	if end > len(s.entries) {
		end = len(s.entries)
	}
	out := []curriculum.UnitEntry{}
	for i := ordinal; i < end; i++ {
		out = append(out, s.entries[i])
	}
	return out, nil
}

// PriorSummary renders one line per earlier week for prompt context.
func (s *Store) PriorSummary(ordinal int) string {
	if ordinal <= 1 {
		return "No prior weeks (this is Week 1)"
	}
	if ordinal > len(s.entries)+1 {
		ordinal = len(s.entries) + 1
	}
	lines := make([]string, 0, ordinal-1)
	for _, e := range s.entries[:ordinal-1] {
		lines = append(lines, fmt.Sprintf("Week %d: %s (introduced: %s...)", e.Ordinal, e.Title, strings.Join(head(e.Introduces, 3), ", ")))
	}
	return strings.Join(lines, "\n")
}

// UpcomingSummary names the concepts of the next weeks that must not be taught yet.
func (s *Store) UpcomingSummary(ordinal, lookahead int) string {
	upcoming, err := s.UpcomingPreview(ordinal, lookahead)
	if err != nil || len(upcoming) == 0 {
		return "No upcoming weeks (final week)"
	}
	lines := make([]string, 0, len(upcoming))
	for _, e := range upcoming {
		lines = append(lines, fmt.Sprintf("Week %d: %s (DO NOT teach: %s)", e.Ordinal, e.Title, strings.Join(head(e.Introduces, 2), ", ")))
	}
	return strings.Join(lines, "\n")
}

// ExistenceCheck reports whether unit k is present with a passing quality verdict.
type ExistenceCheck func(ctx context.Context, unit int) (bool, error)

// Required lists every week that must pass the quality gate before ordinal may
// start: all earlier weeks, which always covers the declared prerequisites.
func (s *Store) Required(ordinal int) ([]int, error) {
	if _, err := s.Entry(ordinal); err != nil {
		return nil, err
	}
	out := make([]int, 0, ordinal-1)
	for k := 1; k < ordinal; k++ {
		out = append(out, k)
	}
	return out, nil
}

// ValidatePrerequisites fails with *MissingPrerequisiteError when any required
// earlier week is absent or gated fail.
func (s *Store) ValidatePrerequisites(ctx context.Context, ordinal int, check ExistenceCheck) error {
	required, err := s.Required(ordinal)
	if err != nil {
		return err
	}
	if check == nil {
		return errors.New("existence check required")
	}
	missing := []int{}
	for _, p := range required {
		ok, err := check(ctx, p)
		if err != nil {
			return fmt.Errorf("check prerequisite week %d: %w", p, err)
		}
		if !ok {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return &apperr.MissingPrerequisiteError{Unit: ordinal, Missing: missing}
	}
	return nil
}

func head(ss []string, n int) []string {
	if len(ss) <= n {
		return ss
	}
	return ss[:n]
}
