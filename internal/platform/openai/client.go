package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/yungbote/curriculum-engine/internal/observability"
	apperr "github.com/yungbote/curriculum-engine/internal/pkg/errors"
	"github.com/yungbote/curriculum-engine/internal/pkg/httpx"
	"github.com/yungbote/curriculum-engine/internal/platform/logger"
)

const ProviderOpenAI = "openai"

type Config struct {
	APIKey            string
	BaseURL           string
	Model             string
	ReasoningModel    string
	Temperature       float64
	Timeout           time.Duration
	MaxRetries        int
	RequestsPerMinute int
	MaxOutputTokens   int
	// RetryBaseDelay is the first transport backoff; it doubles per retry.
	RetryBaseDelay time.Duration
}

type client struct {
	log        *logger.Logger
	api        *goopenai.Client
	cfg        Config
	limiter    *rate.Limiter
	maxRetries int
}

func NewClient(log *logger.Logger, cfg Config) (Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &apperr.ServiceConfigurationError{Op: "openai.NewClient", Reason: "missing OPENAI_API_KEY"}
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, &apperr.ServiceConfigurationError{Op: "openai.NewClient", Reason: "model required"}
	}
	if cfg.ReasoningModel == "" {
		cfg.ReasoningModel = cfg.Model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 180 * time.Second
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = 4096
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = time.Second
	}

	apiCfg := goopenai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); base != "" {
		apiCfg.BaseURL = base
	}
	apiCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1)
	}

	log.Info("Generation client initialized",
		"provider", ProviderOpenAI,
		"model", cfg.Model,
		"reasoning_model", cfg.ReasoningModel,
		"rpm", cfg.RequestsPerMinute,
	)
	return &client{
		log:        log.With("service", "OpenAIClient"),
		api:        goopenai.NewClientWithConfig(apiCfg),
		cfg:        cfg,
		limiter:    limiter,
		maxRetries: cfg.MaxRetries,
	}, nil
}

func (c *client) ModelFor(tier Tier) string {
	if tier == TierReasoning {
		return c.cfg.ReasoningModel
	}
	return c.cfg.Model
}

// isReasoningModel matches the o-series, which reject system messages,
// temperature and JSON response formats.
func isReasoningModel(model string) bool {
	m := strings.ToLower(strings.TrimSpace(model))
	return strings.HasPrefix(m, "o1") || strings.HasPrefix(m, "o3") || strings.HasPrefix(m, "o4")
}

func (c *client) buildRequest(req Request, model string) goopenai.ChatCompletionRequest {
	out := goopenai.ChatCompletionRequest{Model: model}
	maxTokens := req.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = c.cfg.MaxOutputTokens
	}
	out.MaxCompletionTokens = maxTokens

	if isReasoningModel(model) {
		user := req.User
		if strings.TrimSpace(req.System) != "" {
			user = req.System + "\n\n" + req.User
		}
		out.Messages = []goopenai.ChatCompletionMessage{{Role: goopenai.ChatMessageRoleUser, Content: user}}
		return out
	}

	out.Messages = []goopenai.ChatCompletionMessage{
		{Role: goopenai.ChatMessageRoleSystem, Content: req.System},
		{Role: goopenai.ChatMessageRoleUser, Content: req.User},
	}
	temp := c.cfg.Temperature
	if req.Temperature != nil {
		temp = *req.Temperature
	}
	out.Temperature = float32(temp)
	if req.Shape == ShapeJSON {
		out.ResponseFormat = &goopenai.ChatCompletionResponseFormat{Type: goopenai.ChatCompletionResponseFormatTypeJSONObject}
	}
	return out
}

func (c *client) Generate(ctx context.Context, req Request) (Response, error) {
	model := c.ModelFor(req.Tier)
	ctx, span := observability.StartSpan(ctx, "llm.generate",
		attribute.String("llm.model", model),
		attribute.String("llm.operation", req.Operation),
		attribute.String("llm.shape", string(req.Shape)),
	)
	defer span.End()

	resp, err := c.doWithRetry(ctx, req.Operation, c.buildRequest(req, model))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Response{}, err
	}
	if len(resp.Choices) == 0 {
		return Response{}, &apperr.MalformedResponse{Artifact: req.Operation, Err: fmt.Errorf("no choices returned")}
	}

	out := Response{
		Text:     resp.Choices[0].Message.Content,
		Model:    firstNonEmpty(resp.Model, model),
		Provider: ProviderOpenAI,
		Usage: Usage{
			TokensIn:  resp.Usage.PromptTokens,
			TokensOut: resp.Usage.CompletionTokens,
		},
	}
	span.SetAttributes(
		attribute.Int("llm.tokens_in", out.Usage.TokensIn),
		attribute.Int("llm.tokens_out", out.Usage.TokensOut),
	)
	if req.Shape == ShapeJSON {
		obj, perr := ParseJSONObject(req.Operation, out.Text)
		if perr != nil {
			// usage is still returned so the caller can account for the spend
			return out, perr
		}
		out.JSON = obj
	}
	return out, nil
}

func (c *client) doWithRetry(ctx context.Context, op string, req goopenai.ChatCompletionRequest) (goopenai.ChatCompletionResponse, error) {
	backoff := c.cfg.RetryBaseDelay
	start := time.Now()

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return goopenai.ChatCompletionResponse{}, classify(op, err)
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return goopenai.ChatCompletionResponse{}, classify(op, err)
			}
		}

		resp, err := c.api.CreateChatCompletion(ctx, req)
		if err == nil {
			if metrics := observability.Current(); metrics != nil {
				metrics.ObserveLLMRequest(req.Model, op, "200", time.Since(start), resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
			}
			return resp, nil
		}

		classified := classify(op, err)
		if !errors.Is(classified, apperr.ErrTransientService) || attempt >= c.maxRetries {
			if metrics := observability.Current(); metrics != nil {
				metrics.ObserveLLMRequest(req.Model, op, statusLabel(err), time.Since(start), 0, 0)
			}
			return goopenai.ChatCompletionResponse{}, classified
		}

		sleepFor := httpx.JitterSleep(backoff)
		c.log.Warn("OpenAI request retrying",
			"operation", op,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		if err := httpx.Sleep(ctx, sleepFor); err != nil {
			return goopenai.ChatCompletionResponse{}, classify(op, err)
		}
		backoff *= 2
	}
}

func statusCode(err error) int {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

// classify maps transport failures onto the error taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	code := statusCode(err)
	switch {
	case code == http.StatusBadRequest || httpx.IsConfigurationHTTPStatus(code):
		return &apperr.ServiceConfigurationError{Op: op, Reason: fmt.Sprintf("request rejected with status %d", code), Err: err}
	case code > 0 && httpx.IsRetryableHTTPStatus(code):
		return &apperr.TransientServiceError{Op: op, StatusCode: code, Err: err}
	case code > 0:
		return &apperr.ServiceConfigurationError{Op: op, Reason: fmt.Sprintf("unexpected status %d", code), Err: err}
	}
	// network failures, timeouts and deadline expiry are all worth another attempt
	return &apperr.TransientServiceError{Op: op, Err: err}
}

func statusLabel(err error) string {
	if code := statusCode(err); code > 0 {
		return strconv.Itoa(code)
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "error"
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
