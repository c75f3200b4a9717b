package app

import (
	"context"
	"fmt"

	"github.com/yungbote/curriculum-engine/internal/config"
	"github.com/yungbote/curriculum-engine/internal/data/artifacts"
	"github.com/yungbote/curriculum-engine/internal/domain/curriculum"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/budget"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/outline"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/pipeline"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/planner"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/policy"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/quality"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/research"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/retry"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/subunit"
	"github.com/yungbote/curriculum-engine/internal/observability"
	"github.com/yungbote/curriculum-engine/internal/platform/logger"
	"github.com/yungbote/curriculum-engine/internal/realtime/bus"
)

type Services struct {
	Ledger  *budget.Ledger
	Cascade *research.Cascade
	Planner *planner.Planner
	Gate    *quality.Gate
	Runner  *pipeline.Runner
}

type serviceDeps struct {
	cfg     config.Config
	runID   string
	outline *outline.Store
	policy  *policy.Policy
	store   artifacts.Store
	clients Clients
	repos   Repos
	bus     bus.Bus
	metrics *observability.Metrics
}

func retryPolicy(cfg config.Config, maxAttempts int) retry.Policy {
	return retry.Policy{
		MaxAttempts:    maxAttempts,
		Backoff:        retry.Backoff(cfg.Retry.Backoff),
		BaseDelay:      cfg.Retry.BaseDelay(),
		MaxDelay:       cfg.Retry.MaxDelay(),
		AttemptTimeout: cfg.Run.StepTimeout(cfg.LLM),
		AuditRejected:  cfg.Retry.AuditRejected,
	}
}

func wireServices(log *logger.Logger, d serviceDeps) (Services, error) {
	log.Info("Wiring services...")
	cfg := d.cfg

	// The runner is built last; hooks registered below reach it through this variable.
	var runner *pipeline.Runner

	counter := budget.NewMemoryCounter()
	if cfg.Budget.Backend == "redis" {
		if d.clients.Redis == nil {
			return Services{}, fmt.Errorf("budget backend redis requires redis.addr")
		}
		c, err := budget.NewRedisCounter(log, d.clients.Redis, d.runID)
		if err != nil {
			return Services{}, err
		}
		counter = c
	}
	var sink budget.Sink
	if d.repos.UsageRecords != nil {
		sink = budget.NewRepoSink(d.repos.UsageRecords)
	}
	ledger, err := budget.NewLedger(log, budget.Options{
		Cap:       cfg.Budget.Cap,
		WarnRatio: cfg.Budget.WarnRatio,
		Pricing:   budget.NewPricing(cfg.Budget.Pricing),
		Counter:   counter,
		Sink:      sink,
		Metrics:   d.metrics,
		OnWarning: func(ctx context.Context, spent, capUSD float64) {
			if runner != nil {
				runner.BudgetWarning(ctx, spent, capUSD)
			}
		},
	})
	if err != nil {
		return Services{}, err
	}
	client := budget.NewMeteredClient(log, d.clients.LLM, ledger, d.runID)

	var auditor retry.Auditor
	if cfg.Retry.AuditRejected {
		auditor = retry.NewStoreAuditor(d.store)
	}
	retries := retry.NewRunner(log, auditor, d.metrics)

	cascade, err := research.NewCascade(log, client, d.outline, d.store, research.Options{
		Parallel:  cfg.Run.Parallel,
		SpiralMin: cfg.Quality.SpiralMin,
		SpiralMax: cfg.Quality.SpiralMax,
		Metrics:   d.metrics,
		OnStep: func(ctx context.Context, unit int, key curriculum.StepKey, meta curriculum.StepMeta) {
			if runner != nil {
				runner.StepDone(ctx, unit, key, meta)
			}
		},
	})
	if err != nil {
		return Services{}, err
	}

	plan := planner.New(log, client, d.outline, d.store, d.policy, retries, planner.Options{
		SpecRetry: retryPolicy(cfg, cfg.Retry.SpecMaxAttempts),
	})

	gen := subunit.New(log, client, d.outline, d.store, d.policy, retries, subunit.Options{
		Retry:     retryPolicy(cfg, cfg.Retry.MaxAttempts),
		SpiralMin: cfg.Quality.SpiralMin,
		SpiralMax: cfg.Quality.SpiralMax,
		Metrics:   d.metrics,
		OnArtifact: func(ctx context.Context, key curriculum.ArtifactKey, prov curriculum.Provenance) {
			if runner != nil {
				runner.ArtifactDone(ctx, key, prov)
			}
		},
	})

	gate := quality.New(log, d.store, d.policy, quality.Options{
		SpiralMin: cfg.Quality.SpiralMin,
		SpiralMax: cfg.Quality.SpiralMax,
		Metrics:   d.metrics,
		Reports:   d.repos.ValidationReports,
	})

	runner = pipeline.NewRunner(log, pipeline.Deps{
		Outline:   d.outline,
		Store:     d.store,
		Client:    client,
		Cascade:   cascade,
		Planner:   plan,
		Generator: gen,
		Gate:      gate,
		Ledger:    ledger,
		Runs:      d.repos.GenerationRuns,
		Reports:   d.repos.ValidationReports,
		Bus:       d.bus,
		Metrics:   d.metrics,
	}, pipeline.Options{
		RunID:     d.runID,
		DryRun:    cfg.Run.DryRun,
		OutputDir: cfg.Run.OutputDir,
	})

	return Services{
		Ledger:  ledger,
		Cascade: cascade,
		Planner: plan,
		Gate:    gate,
		Runner:  runner,
	}, nil
}
