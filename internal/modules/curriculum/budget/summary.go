package budget

import (
	"math"
	"time"

	"github.com/yungbote/curriculum-engine/internal/domain/curriculum"
)

// MaxSessions bounds the per-call history kept in a Summary.
const MaxSessions = 1000

type Bucket struct {
	Requests  int     `json:"requests"`
	TokensIn  int     `json:"tokens_prompt"`
	TokensOut int     `json:"tokens_completion"`
	CostUSD   float64 `json:"cost_usd"`
}

func (b *Bucket) add(r curriculum.UsageRecord) {
	b.Requests++
	b.TokensIn += r.TokensIn
	b.TokensOut += r.TokensOut
	b.CostUSD += r.Cost
}

type Session struct {
	Timestamp time.Time `json:"timestamp"`
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	Operation string    `json:"operation"`
	Tokens    int       `json:"tokens"`
	CostUSD   float64   `json:"cost_usd"`
}

type Summary struct {
	Calls          int               `json:"total_requests"`
	TotalTokensIn  int               `json:"total_tokens_prompt"`
	TotalTokensOut int               `json:"total_tokens_completion"`
	TotalCost      float64           `json:"estimated_cost_usd"`
	Cap            float64           `json:"budget_cap_usd"`
	ByOperation    map[string]Bucket `json:"by_operation"`
	ByModel        map[string]Bucket `json:"by_model"`
	ByProvider     map[string]Bucket `json:"by_provider"`
	Sessions       []Session         `json:"sessions"`
	LastUpdated    time.Time         `json:"last_updated"`
}

// Summarize folds usage records, oldest first, into totals and breakdowns.
func Summarize(records []curriculum.UsageRecord, capUSD float64) Summary {
	s := Summary{
		Cap:         capUSD,
		ByOperation: map[string]Bucket{},
		ByModel:     map[string]Bucket{},
		ByProvider:  map[string]Bucket{},
		Sessions:    []Session{},
	}
	for _, r := range records {
		s.Calls++
		s.TotalTokensIn += r.TokensIn
		s.TotalTokensOut += r.TokensOut
		s.TotalCost += r.Cost

		for _, pair := range []struct {
			m   map[string]Bucket
			key string
		}{{s.ByOperation, r.Operation}, {s.ByModel, r.Model}, {s.ByProvider, r.Provider}} {
			b := pair.m[pair.key]
			b.add(r)
			pair.m[pair.key] = b
		}

		s.Sessions = append(s.Sessions, Session{
			Timestamp: r.At,
			Provider:  r.Provider,
			Model:     r.Model,
			Operation: r.Operation,
			Tokens:    r.TotalTokens(),
			CostUSD:   round4(r.Cost),
		})
		if r.At.After(s.LastUpdated) {
			s.LastUpdated = r.At
		}
	}
	if len(s.Sessions) > MaxSessions {
		s.Sessions = s.Sessions[len(s.Sessions)-MaxSessions:]
	}
	return s
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
