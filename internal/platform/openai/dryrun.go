package openai

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/yungbote/curriculum-engine/internal/platform/logger"
)

const ProviderDryRun = "dry_run"

// Responder produces canned output for a request. ok=false falls back to a generic placeholder.
type Responder func(req Request) (text string, ok bool)

// DryRunClient never leaves the process: it answers every request with
// placeholder content and zero token usage.
type DryRunClient struct {
	log     *logger.Logger
	respond Responder
	calls   atomic.Int64
}

func NewDryRunClient(log *logger.Logger, respond Responder) *DryRunClient {
	return &DryRunClient{log: log.With("service", "DryRunClient"), respond: respond}
}

func (c *DryRunClient) ModelFor(tier Tier) string { return ProviderDryRun }

func (c *DryRunClient) Calls() int { return int(c.calls.Load()) }

func (c *DryRunClient) Generate(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	c.calls.Add(1)

	text, ok := "", false
	if c.respond != nil {
		text, ok = c.respond(req)
	}
	if !ok {
		if req.Shape == ShapeJSON {
			text = fmt.Sprintf(`{"dry_run": true, "kind": %q, "week": %d}`, req.Kind, req.Unit)
		} else {
			text = fmt.Sprintf("Dry run placeholder for %s (week %d).", req.Kind, req.Unit)
		}
	}
	c.log.Debug("Dry run generation", "operation", req.Operation, "kind", req.Kind)

	out := Response{Text: text, Model: ProviderDryRun, Provider: ProviderDryRun}
	if req.Shape == ShapeJSON {
		obj, err := ParseJSONObject(req.Operation, text)
		if err != nil {
			return out, err
		}
		out.JSON = obj
	}
	return out, nil
}
