package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/curriculum-engine/internal/config"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/outline"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/prompts"
	"github.com/yungbote/curriculum-engine/internal/platform/logger"
	"github.com/yungbote/curriculum-engine/internal/platform/openai"
	"github.com/yungbote/curriculum-engine/internal/platform/redisx"
)

type Clients struct {
	// LLM is the unmetered client; services receive it wrapped by the ledger.
	LLM   openai.Client
	Redis *goredis.Client
}

func wireClients(ctx context.Context, log *logger.Logger, cfg config.Config, o *outline.Store) (Clients, error) {
	log.Info("Wiring clients...")
	var out Clients

	if cfg.Run.DryRun {
		out.LLM = openai.NewDryRunClient(log, prompts.NewDryRunResponder(o))
	} else {
		llm, err := openai.NewClient(log, openai.Config{
			APIKey:            cfg.LLM.APIKey,
			BaseURL:           cfg.LLM.BaseURL,
			Model:             cfg.LLM.Model,
			ReasoningModel:    cfg.LLM.ReasoningModel,
			Temperature:       cfg.LLM.Temperature,
			Timeout:           cfg.LLM.Timeout(),
			MaxRetries:        cfg.LLM.MaxRetries,
			RequestsPerMinute: cfg.LLM.RequestsPerMinute,
			RetryBaseDelay:    time.Second,
		})
		if err != nil {
			return Clients{}, fmt.Errorf("init generation client: %w", err)
		}
		out.LLM = llm
	}

	if strings.TrimSpace(cfg.Redis.Addr) != "" {
		rdb, err := redisx.Open(ctx, cfg.Redis.Addr)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis: %w", err)
		}
		out.Redis = rdb
	}
	return out, nil
}

func (c Clients) Close() error {
	if c.Redis != nil {
		return c.Redis.Close()
	}
	return nil
}
