package openai

import "context"

type ResponseShape string

const (
	ShapeText ResponseShape = "text"
	ShapeJSON ResponseShape = "json"
)

// Tier selects which configured model serves a request.
type Tier string

const (
	TierGeneral   Tier = "general"
	TierReasoning Tier = "reasoning"
)

type Request struct {
	System string
	User   string
	Shape  ResponseShape
	Tier   Tier
	// Kind names the artifact or research step being produced.
	Kind    string
	Unit    int
	SubUnit int
	// Operation tags the call for usage accounting, e.g. "week_3_spec_attempt2".
	Operation   string
	Temperature *float64
	// MaxOutputTokens caps the completion; 0 uses the client default.
	MaxOutputTokens int
}

type Usage struct {
	TokensIn  int
	TokensOut int
}

type Response struct {
	Text     string
	JSON     map[string]any
	Usage    Usage
	Model    string
	Provider string
}

// Client is the narrow call contract every pipeline stage generates through.
// Errors are *errors.TransientServiceError, *errors.ServiceConfigurationError
// or *errors.MalformedResponse when a JSON shape could not be parsed.
type Client interface {
	Generate(ctx context.Context, req Request) (Response, error)
	// ModelFor reports the model a tier resolves to, for cost estimation.
	ModelFor(tier Tier) string
}
