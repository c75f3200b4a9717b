package budget

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/curriculum-engine/internal/domain/curriculum"
	"github.com/yungbote/curriculum-engine/internal/platform/logger"
	"github.com/yungbote/curriculum-engine/internal/platform/openai"
)

// DefaultOutputReserve is the completion size assumed when a request sets no cap.
const DefaultOutputReserve = 4096

// The four-characters rule undercounts macron-heavy Latin and ignores chat
// framing, so input reservations are padded.
const (
	inputTokenPadding = 1.3
	messageOverhead   = 8
)

// ReserveInputTokens is the input size held against the cap for req.
func ReserveInputTokens(req openai.Request) int {
	n := 0
	messages := 0
	for _, text := range []string{req.System, req.User} {
		if text == "" {
			continue
		}
		n += openai.EstimateTokens(text)
		messages++
	}
	return int(math.Ceil(float64(n)*inputTokenPadding)) + messages*messageOverhead
}

// MeteredClient wraps a generation client with the ledger's reserve/commit protocol.
// No call reaches the inner client unless its upper-bound cost fits under the cap.
type MeteredClient struct {
	next   openai.Client
	ledger *Ledger
	runID  string
	log    *logger.Logger
	now    func() time.Time
}

func NewMeteredClient(log *logger.Logger, next openai.Client, ledger *Ledger, runID string) *MeteredClient {
	return &MeteredClient{
		next:   next,
		ledger: ledger,
		runID:  runID,
		log:    log.With("service", "MeteredClient"),
		now:    time.Now,
	}
}

func (m *MeteredClient) ModelFor(tier openai.Tier) string { return m.next.ModelFor(tier) }

func (m *MeteredClient) Generate(ctx context.Context, req openai.Request) (openai.Response, error) {
	op := operationName(req)
	model := m.next.ModelFor(req.Tier)

	outReserve := req.MaxOutputTokens
	if outReserve <= 0 {
		outReserve = DefaultOutputReserve
	}
	estimate := m.ledger.EstimateCost(CallSpec{
		Model:     model,
		TokensIn:  ReserveInputTokens(req),
		TokensOut: outReserve,
	})

	res, err := m.ledger.Reserve(ctx, op, estimate)
	if err != nil {
		return openai.Response{}, err
	}

	resp, callErr := m.next.Generate(ctx, req)
	if callErr != nil && resp.Usage.TokensIn == 0 && resp.Usage.TokensOut == 0 {
		m.ledger.Release(ctx, res)
		return resp, callErr
	}

	if resp.Model != "" {
		model = resp.Model
	}
	rec := curriculum.UsageRecord{
		ID:        uuid.NewString(),
		RunID:     m.runID,
		Operation: op,
		Provider:  resp.Provider,
		Model:     model,
		TokensIn:  resp.Usage.TokensIn,
		TokensOut: resp.Usage.TokensOut,
		Cost: m.ledger.EstimateCost(CallSpec{
			Model:     model,
			TokensIn:  resp.Usage.TokensIn,
			TokensOut: resp.Usage.TokensOut,
		}),
		At: m.now().UTC(),
	}
	if err := m.ledger.Commit(ctx, res, rec); err != nil {
		m.log.Error("Failed to commit usage", "operation", op, "error", err)
		if callErr == nil {
			return resp, fmt.Errorf("commit usage: %w", err)
		}
	}
	if rec.Cost > estimate {
		m.log.Debug("Actual cost exceeded reservation", "operation", op, "estimate_usd", estimate, "actual_usd", rec.Cost)
	}
	return resp, callErr
}

func operationName(req openai.Request) string {
	if req.Operation != "" {
		return req.Operation
	}
	if req.Kind != "" {
		if req.Unit > 0 {
			return fmt.Sprintf("week_%d_%s", req.Unit, req.Kind)
		}
		return req.Kind
	}
	return "generate"
}
