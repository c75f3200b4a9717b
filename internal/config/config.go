package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"

	"github.com/yungbote/curriculum-engine/internal/platform/envutil"
)

const (
	DefaultTotalUnits      = 35
	DefaultModel           = "gpt-4o"
	DefaultReasoningModel  = "o1-mini"
	DefaultMaxAttempts     = 10
	DefaultSpecMaxAttempts = 5
	DefaultSpiralMin       = 0.25
	DefaultSpiralMax       = 0.40
	DefaultBudgetWarnRatio = 0.80
)

// Config is built once per run and passed explicitly to every component.
type Config struct {
	Run           RunConfig           `toml:"run"`
	LLM           LLMConfig           `toml:"llm"`
	Budget        BudgetConfig        `toml:"budget"`
	Retry         RetryConfig         `toml:"retry"`
	Quality       QualityConfig       `toml:"quality"`
	Storage       StorageConfig       `toml:"storage"`
	Database      DatabaseConfig      `toml:"database"`
	Redis         RedisConfig         `toml:"redis"`
	Observability ObservabilityConfig `toml:"observability"`
	Log           LogConfig           `toml:"log"`

	OutlinePath string `toml:"outline_path" validate:"required"`
	// PolicyPath overrides the embedded acceptance policy when set.
	PolicyPath string `toml:"policy_path"`
}

type RunConfig struct {
	RunID      string `toml:"run_id"`
	OutputDir  string `toml:"output_dir" validate:"required"`
	TotalUnits int    `toml:"total_units" validate:"min=1,max=52"`
	DryRun     bool   `toml:"dry_run"`
	// Parallel runs independent research steps concurrently.
	Parallel bool `toml:"parallel"`
	// StepTimeoutSeconds bounds each generation call; 0 means the llm timeout.
	StepTimeoutSeconds int `toml:"step_timeout_seconds" validate:"min=0"`
}

type LLMConfig struct {
	APIKey            string  `toml:"api_key"`
	BaseURL           string  `toml:"base_url"`
	Model             string  `toml:"model" validate:"required"`
	ReasoningModel    string  `toml:"reasoning_model"`
	Temperature       float64 `toml:"temperature" validate:"min=0,max=2"`
	TimeoutSeconds    int     `toml:"timeout_seconds" validate:"min=1"`
	MaxRetries        int     `toml:"max_retries" validate:"min=0,max=10"`
	RequestsPerMinute int     `toml:"requests_per_minute" validate:"min=0"`
}

type BudgetConfig struct {
	// Cap is the run-level ceiling in USD. 0 disables enforcement.
	Cap       float64 `toml:"cap" validate:"min=0"`
	WarnRatio float64 `toml:"warn_ratio" validate:"min=0,max=1"`
	Backend   string  `toml:"backend" validate:"oneof=memory redis"`
	// Pricing maps model name to [input, output] USD per million tokens.
	Pricing map[string][2]float64 `toml:"pricing"`
}

type RetryConfig struct {
	MaxAttempts     int    `toml:"max_attempts" validate:"min=1,max=50"`
	SpecMaxAttempts int    `toml:"spec_max_attempts" validate:"min=1,max=50"`
	Backoff         string `toml:"backoff" validate:"oneof=linear exponential none"`
	BaseDelayMS     int    `toml:"base_delay_ms" validate:"min=0"`
	MaxDelayMS      int    `toml:"max_delay_ms" validate:"min=0"`
	AuditRejected   bool   `toml:"audit_rejected"`
}

type QualityConfig struct {
	SpiralMin           float64  `toml:"spiral_min" validate:"min=0,max=1"`
	SpiralMax           float64  `toml:"spiral_max" validate:"min=0,max=1,gtefield=SpiralMin"`
	ThematicTerms       []string `toml:"thematic_terms"`
	MinThematicMentions int      `toml:"min_thematic_mentions" validate:"min=0"`
}

type StorageConfig struct {
	Backend           string `toml:"backend" validate:"oneof=fs memory gcs badger"`
	Bucket            string `toml:"bucket" validate:"required_if=Backend gcs"`
	Prefix            string `toml:"prefix"`
	BadgerPath        string `toml:"badger_path"`
	ObjectStorageMode string `toml:"object_storage_mode" validate:"omitempty,oneof=gcs gcs_emulator"`
	EmulatorHost      string `toml:"emulator_host"`
}

type DatabaseConfig struct {
	Driver string `toml:"driver" validate:"oneof=none sqlite postgres"`
	DSN    string `toml:"dsn" validate:"required_unless=Driver none"`
}

type RedisConfig struct {
	Addr    string `toml:"addr"`
	Channel string `toml:"channel"`
}

type ObservabilityConfig struct {
	OtelEnabled bool   `toml:"otel_enabled"`
	ServiceName string `toml:"service_name"`
	Environment string `toml:"environment"`
	MetricsAddr string `toml:"metrics_addr"`
}

type LogConfig struct {
	Mode  string `toml:"mode"`
	Level string `toml:"level"`
}

func Default() Config {
	return Config{
		Run: RunConfig{
			OutputDir:  "curriculum",
			TotalUnits: DefaultTotalUnits,
		},
		LLM: LLMConfig{
			Model:             DefaultModel,
			ReasoningModel:    DefaultReasoningModel,
			Temperature:       0.7,
			TimeoutSeconds:    180,
			MaxRetries:        3,
			RequestsPerMinute: 60,
		},
		Budget: BudgetConfig{
			WarnRatio: DefaultBudgetWarnRatio,
			Backend:   "memory",
		},
		Retry: RetryConfig{
			MaxAttempts:     DefaultMaxAttempts,
			SpecMaxAttempts: DefaultSpecMaxAttempts,
			Backoff:         "linear",
			BaseDelayMS:     2000,
			MaxDelayMS:      10000,
			AuditRejected:   true,
		},
		Quality: QualityConfig{
			SpiralMin:           DefaultSpiralMin,
			SpiralMax:           DefaultSpiralMax,
			ThematicTerms:       []string{"virtue", "faith"},
			MinThematicMentions: 2,
		},
		Storage: StorageConfig{
			Backend: "fs",
		},
		Database: DatabaseConfig{
			Driver: "none",
		},
		Redis: RedisConfig{
			Channel: "curriculum.progress",
		},
		Observability: ObservabilityConfig{
			ServiceName: "curriculum-engine",
			Environment: "dev",
		},
		Log: LogConfig{
			Mode: "development",
		},
		OutlinePath: "curriculum_outline.yaml",
	}
}

// Load layers defaults, the optional TOML file at path, and environment overrides,
// then validates the result.
func Load(path string) (Config, error) {
	return load(path, false)
}

// LoadOffline is Load for commands that never call the generation API:
// the run is forced into dry-run so no API key is required.
func LoadOffline(path string) (Config, error) {
	return load(path, true)
}

func load(path string, offline bool) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := toml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	if offline {
		cfg.Run.DryRun = true
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.LLM.APIKey = envutil.String("OPENAI_API_KEY", cfg.LLM.APIKey)
	cfg.LLM.BaseURL = envutil.String("OPENAI_BASE_URL", cfg.LLM.BaseURL)
	cfg.LLM.Model = envutil.String("CURRICULUM_MODEL", cfg.LLM.Model)
	cfg.LLM.ReasoningModel = envutil.String("CURRICULUM_REASONING_MODEL", cfg.LLM.ReasoningModel)
	cfg.LLM.TimeoutSeconds = envutil.Int("CURRICULUM_LLM_TIMEOUT_SECONDS", cfg.LLM.TimeoutSeconds)

	cfg.Run.OutputDir = envutil.String("CURRICULUM_OUTPUT_DIR", cfg.Run.OutputDir)
	cfg.Run.DryRun = envutil.Bool("CURRICULUM_DRY_RUN", cfg.Run.DryRun)
	cfg.Run.Parallel = envutil.Bool("CURRICULUM_PARALLEL_RESEARCH", cfg.Run.Parallel)

	cfg.Budget.Cap = envutil.Float("CURRICULUM_BUDGET_CAP", cfg.Budget.Cap)
	cfg.Budget.Backend = envutil.String("CURRICULUM_BUDGET_BACKEND", cfg.Budget.Backend)

	cfg.Retry.MaxAttempts = envutil.Int("CURRICULUM_MAX_ATTEMPTS", cfg.Retry.MaxAttempts)

	cfg.Storage.Backend = envutil.String("CURRICULUM_STORAGE_BACKEND", cfg.Storage.Backend)
	cfg.Storage.Bucket = envutil.String("CURRICULUM_GCS_BUCKET", cfg.Storage.Bucket)
	cfg.Storage.ObjectStorageMode = envutil.String("OBJECT_STORAGE_MODE", cfg.Storage.ObjectStorageMode)
	cfg.Storage.EmulatorHost = envutil.String("STORAGE_EMULATOR_HOST", cfg.Storage.EmulatorHost)

	cfg.Database.Driver = envutil.String("CURRICULUM_DB_DRIVER", cfg.Database.Driver)
	cfg.Database.DSN = envutil.String("CURRICULUM_DB_DSN", cfg.Database.DSN)

	cfg.Redis.Addr = envutil.String("REDIS_ADDR", cfg.Redis.Addr)

	cfg.Observability.OtelEnabled = envutil.Bool("OTEL_ENABLED", cfg.Observability.OtelEnabled)
	cfg.Observability.MetricsAddr = envutil.String("CURRICULUM_METRICS_ADDR", cfg.Observability.MetricsAddr)

	cfg.Log.Mode = envutil.String("LOG_MODE", cfg.Log.Mode)
	cfg.Log.Level = envutil.String("LOG_LEVEL", cfg.Log.Level)

	cfg.OutlinePath = envutil.String("CURRICULUM_OUTLINE_PATH", cfg.OutlinePath)
	cfg.PolicyPath = envutil.String("CURRICULUM_POLICY_PATH", cfg.PolicyPath)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func Validate(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if !cfg.Run.DryRun && strings.TrimSpace(cfg.LLM.APIKey) == "" {
		return fmt.Errorf("invalid config: llm.api_key (or OPENAI_API_KEY) is required unless run.dry_run is set")
	}
	if cfg.Budget.Backend == "redis" && strings.TrimSpace(cfg.Redis.Addr) == "" {
		return fmt.Errorf("invalid config: budget.backend=redis requires redis.addr")
	}
	return nil
}

func (c RetryConfig) BaseDelay() time.Duration {
	return time.Duration(c.BaseDelayMS) * time.Millisecond
}

func (c RetryConfig) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelayMS) * time.Millisecond
}

func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c RunConfig) StepTimeout(llm LLMConfig) time.Duration {
	if c.StepTimeoutSeconds > 0 {
		return time.Duration(c.StepTimeoutSeconds) * time.Second
	}
	return llm.Timeout()
}
