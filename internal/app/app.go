package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/curriculum-engine/internal/config"
	"github.com/yungbote/curriculum-engine/internal/data/artifacts"
	"github.com/yungbote/curriculum-engine/internal/data/db"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/outline"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/policy"
	"github.com/yungbote/curriculum-engine/internal/observability"
	"github.com/yungbote/curriculum-engine/internal/platform/logger"
	"github.com/yungbote/curriculum-engine/internal/realtime"
	"github.com/yungbote/curriculum-engine/internal/realtime/bus"
)

type App struct {
	Log      *logger.Logger
	Cfg      config.Config
	RunID    string
	Outline  *outline.Store
	Policy   *policy.Policy
	Store    artifacts.Store
	Metrics  *observability.Metrics
	Bus      bus.Bus
	Clients  Clients
	Repos    Repos
	Services Services

	db      *db.Service
	closers []func() error
	cancel  context.CancelFunc
}

// New builds every component from cfg. Close releases them in reverse order.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	log, err := logger.NewWithOptions(logger.Options{Mode: cfg.Log.Mode, Level: cfg.Log.Level})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a := &App{Log: log, Cfg: cfg}
	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg, log := a.Cfg, a.Log

	a.RunID = strings.TrimSpace(cfg.Run.RunID)
	if a.RunID == "" {
		a.RunID = uuid.NewString()
	}

	shutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		Enabled:     cfg.Observability.OtelEnabled,
		ServiceName: cfg.Observability.ServiceName,
		Environment: cfg.Observability.Environment,
	})
	a.closers = append(a.closers, func() error { return shutdown(context.Background()) })
	a.Metrics = observability.Init()

	o, err := outline.LoadFile(cfg.OutlinePath)
	if err != nil {
		return fmt.Errorf("load outline: %w", err)
	}
	if o.Total() != cfg.Run.TotalUnits {
		log.Warn("Outline length differs from configured total", "outline", o.Total(), "configured", cfg.Run.TotalUnits)
	}
	a.Outline = o

	pol := policy.Default()
	if cfg.PolicyPath != "" {
		if pol, err = policy.Load(cfg.PolicyPath); err != nil {
			return fmt.Errorf("load policy: %w", err)
		}
	}
	if len(cfg.Quality.ThematicTerms) > 0 {
		pol.Thematic.Terms = cfg.Quality.ThematicTerms
		pol.Thematic.MinMentions = cfg.Quality.MinThematicMentions
	}
	a.Policy = pol

	store, closeStore, err := wireStore(ctx, log, cfg)
	if err != nil {
		return fmt.Errorf("init artifact store: %w", err)
	}
	a.Store = store
	a.closers = append(a.closers, closeStore)

	if cfg.Database.Driver != "" && cfg.Database.Driver != "none" {
		svc, err := db.Open(log, cfg.Database.Driver, cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("init database: %w", err)
		}
		a.db = svc
		a.closers = append(a.closers, svc.Close)
		if err := svc.AutoMigrateAll(); err != nil {
			return fmt.Errorf("database automigrate: %w", err)
		}
		a.Repos = wireRepos(svc.DB(), log)
	}

	clients, err := wireClients(ctx, log, cfg, o)
	if err != nil {
		return err
	}
	a.Clients = clients
	a.closers = append(a.closers, clients.Close)

	if clients.Redis != nil {
		b, err := bus.NewRedisBus(log, clients.Redis, cfg.Redis.Channel)
		if err != nil {
			return fmt.Errorf("init progress bus: %w", err)
		}
		a.Bus = b
	} else {
		a.Bus = bus.NewMemoryBus()
	}
	a.closers = append(a.closers, a.Bus.Close)

	services, err := wireServices(log, serviceDeps{
		cfg:     cfg,
		runID:   a.RunID,
		outline: o,
		policy:  pol,
		store:   store,
		clients: clients,
		repos:   a.Repos,
		bus:     a.Bus,
		metrics: a.Metrics,
	})
	if err != nil {
		return err
	}
	a.Services = services
	return nil
}

// Start runs the metrics endpoint and, when progress is true, logs every
// progress event as it is published.
func (a *App) Start(progress bool) error {
	if a == nil || a.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if addr := strings.TrimSpace(a.Cfg.Observability.MetricsAddr); addr != "" {
		a.Metrics.StartServer(ctx, a.Log, addr)
	}
	if !progress {
		return nil
	}
	plog := a.Log.With("service", "Progress")
	return a.Bus.StartForwarder(ctx, func(ev realtime.ProgressEvent) {
		kv := []any{"week", ev.Unit}
		if ev.SubUnit > 0 {
			kv = append(kv, "day", ev.SubUnit)
		}
		if ev.Step != "" {
			kv = append(kv, "step", ev.Step)
		}
		if ev.Artifact != "" {
			kv = append(kv, "artifact", ev.Artifact)
		}
		if ev.Message != "" {
			kv = append(kv, "message", ev.Message)
		}
		plog.Info(string(ev.Event), kv...)
	})
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && a.Log != nil {
			a.Log.Warn("Shutdown step failed", "error", err)
		}
	}
	a.closers = nil
	if a.Log != nil {
		a.Log.Sync()
	}
}
