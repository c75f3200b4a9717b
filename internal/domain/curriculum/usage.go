package curriculum

import "time"

// UsageRecord is one generation call. Append-only.
type UsageRecord struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id,omitempty"`
	Operation string    `json:"operation"`
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	TokensIn  int       `json:"tokens_prompt"`
	TokensOut int       `json:"tokens_completion"`
	Cost      float64   `json:"cost_usd"`
	At        time.Time `json:"timestamp"`
}

func (u UsageRecord) TotalTokens() int { return u.TokensIn + u.TokensOut }
