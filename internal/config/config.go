// Package config provides configuration types and loading for the office.
package config

import "time"

// Config is the root configuration struct. It is built once at process
// start and passed by pointer into every component.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Brain     BrainConfig     `yaml:"brain"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Recall    RecallConfig    `yaml:"recall"`
	Slack     SlackConfig     `yaml:"slack"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Autonomy  AutonomyConfig  `yaml:"autonomy"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Log       LogConfig       `yaml:"log"`
}

// ---------------------------------------------------------------------------
// Server – inbound HTTP surface
// ---------------------------------------------------------------------------

// ServerConfig configures the webhook/API listener.
type ServerConfig struct {
	Host string `yaml:"host" envconfig:"HOST"`
	Port int    `yaml:"port" envconfig:"PORT"`
	// PublicURL is the externally reachable base used for agent endpoints.
	PublicURL      string        `yaml:"publicURL" envconfig:"PUBLIC_URL"`
	RequestTimeout time.Duration `yaml:"requestTimeout" envconfig:"REQUEST_TIMEOUT"`
	WorkerTimeout  time.Duration `yaml:"workerTimeout" envconfig:"WORKER_TIMEOUT"`
}

// ---------------------------------------------------------------------------
// Store – relational + vector persistence
// ---------------------------------------------------------------------------

// StoreConfig selects and configures the memory store backend.
// Driver is one of "sqlite", "postgrest" or "none". An empty driver with a
// Supabase URL selects postgrest.
type StoreConfig struct {
	Driver     string        `yaml:"driver" envconfig:"DRIVER"`
	SQLitePath string        `yaml:"sqlitePath" envconfig:"SQLITE_PATH"`
	URL        string        `yaml:"url" envconfig:"SUPABASE_URL"`
	ServiceKey string        `yaml:"serviceKey" envconfig:"SUPABASE_SERVICE_KEY"`
	Timeout    time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
}

// ---------------------------------------------------------------------------
// Brain – decision service
// ---------------------------------------------------------------------------

// BrainConfig configures the decision service. Kind "http" posts the
// assembled context to URL; kind "openai" uses a chat completion endpoint.
type BrainConfig struct {
	Kind    string        `yaml:"kind" envconfig:"KIND"`
	URL     string        `yaml:"url" envconfig:"BRAIN_URL"`
	APIKey  string        `yaml:"apiKey" envconfig:"OPENAI_API_KEY"`
	APIBase string        `yaml:"apiBase" envconfig:"API_BASE"`
	Model   string        `yaml:"model" envconfig:"MODEL"`
	Timeout time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
}

// EmbeddingConfig configures the embedding service.
type EmbeddingConfig struct {
	Enabled    bool          `yaml:"enabled" envconfig:"ENABLED"`
	APIKey     string        `yaml:"apiKey" envconfig:"OPENAI_API_KEY"`
	APIBase    string        `yaml:"apiBase" envconfig:"API_BASE"`
	Model      string        `yaml:"model" envconfig:"MODEL"`
	Dimensions int           `yaml:"dimensions" envconfig:"DIMENSIONS"`
	Timeout    time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
}

// ---------------------------------------------------------------------------
// Recall – ranking weights
// ---------------------------------------------------------------------------

// RecallConfig holds the canonical ranking defaults. The Agent* fields
// override weights for department-scoped agent calls.
type RecallConfig struct {
	Limit         int     `yaml:"limit" envconfig:"LIMIT"`
	MinSimilarity float64 `yaml:"minSimilarity" envconfig:"MIN_SIMILARITY"`
	HalfLifeDays  float64 `yaml:"halfLifeDays" envconfig:"HALF_LIFE_DAYS"`
	Alpha         float64 `yaml:"alpha" envconfig:"ALPHA"`
	Beta          float64 `yaml:"beta" envconfig:"BETA"`
	AgentAlpha    float64 `yaml:"agentAlpha" envconfig:"AGENT_ALPHA"`
	AgentBeta     float64 `yaml:"agentBeta" envconfig:"AGENT_BETA"`
}

// ---------------------------------------------------------------------------
// Channels – outbound delivery
// ---------------------------------------------------------------------------

// SlackConfig configures Slack delivery.
type SlackConfig struct {
	BotToken string `yaml:"botToken" envconfig:"SLACK_BOT_TOKEN"`
	// SigningSecret verifies inbound webhooks when set.
	SigningSecret string `yaml:"signingSecret" envconfig:"SLACK_SIGNING_SECRET"`
	APIURL        string `yaml:"apiURL" envconfig:"API_URL"`
	CEOChannelID  string `yaml:"ceoChannelID" envconfig:"CEO_SLACK_CHANNEL_ID"`
}

// TelegramConfig configures Telegram delivery.
type TelegramConfig struct {
	BotToken    string `yaml:"botToken" envconfig:"TELEGRAM_BOT_TOKEN"`
	APIEndpoint string `yaml:"apiEndpoint" envconfig:"API_ENDPOINT"`
	// WebhookSecret must match X-Telegram-Bot-Api-Secret-Token when set.
	WebhookSecret string `yaml:"webhookSecret" envconfig:"WEBHOOK_SECRET"`
}

// KafkaConfig configures the office event stream.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled" envconfig:"ENABLED"`
	Brokers []string `yaml:"brokers" envconfig:"BROKERS"`
	Topic   string   `yaml:"topic" envconfig:"TOPIC"`
}

// ---------------------------------------------------------------------------
// Autonomy and scheduling
// ---------------------------------------------------------------------------

// AutonomyConfig bounds the planning and execution cycle.
type AutonomyConfig struct {
	ExecuteBatch   int    `yaml:"executeBatch" envconfig:"EXECUTE_BATCH"`
	PlanMaxTasks   int    `yaml:"planMaxTasks" envconfig:"PLAN_MAX_TASKS"`
	KPILimit       int    `yaml:"kpiLimit" envconfig:"KPI_LIMIT"`
	MemoryLimit    int    `yaml:"memoryLimit" envconfig:"MEMORY_LIMIT"`
	NotifyChannel  string `yaml:"notifyChannel" envconfig:"NOTIFY_CHANNEL"`
	NotifyTarget   string `yaml:"notifyTarget" envconfig:"NOTIFY_TARGET"`
	WebIngestLimit int64  `yaml:"webIngestLimit" envconfig:"WEB_INGEST_LIMIT"`
}

// SchedulerConfig configures periodic jobs.
type SchedulerConfig struct {
	Enabled         bool          `yaml:"enabled" envconfig:"ENABLED"`
	TickInterval    time.Duration `yaml:"tickInterval" envconfig:"TICK_INTERVAL"`
	LockPath        string        `yaml:"lockPath" envconfig:"LOCK_PATH"`
	AutonomyCron    string        `yaml:"autonomyCron" envconfig:"AUTONOMY_CRON"`
	DailyReportCron string        `yaml:"dailyReportCron" envconfig:"DAILY_REPORT_CRON"`
	MaxConcLLM      int           `yaml:"maxConcLLM" envconfig:"MAX_CONC_LLM"`
	MaxConcDefault  int           `yaml:"maxConcDefault" envconfig:"MAX_CONC_DEFAULT"`
}

// ---------------------------------------------------------------------------
// Observability
// ---------------------------------------------------------------------------

// TelemetryConfig configures OpenTelemetry. Exporter is "stdout", "otlp"
// or "none".
type TelemetryConfig struct {
	Enabled     bool    `yaml:"enabled" envconfig:"ENABLED"`
	Exporter    string  `yaml:"exporter" envconfig:"EXPORTER"`
	Endpoint    string  `yaml:"endpoint" envconfig:"ENDPOINT"`
	ServiceName string  `yaml:"serviceName" envconfig:"SERVICE_NAME"`
	SampleRate  float64 `yaml:"sampleRate" envconfig:"SAMPLE_RATE"`
}

// LogConfig configures the default slog handler.
type LogConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL"`
	Format string `yaml:"format" envconfig:"FORMAT"`
}

// DefaultConfig returns a config populated with default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			PublicURL:      "http://localhost:8080",
			RequestTimeout: 30 * time.Second,
			WorkerTimeout:  2 * time.Minute,
		},
		Store: StoreConfig{
			SQLitePath: "~/.suzieq/office.db",
			Timeout:    10 * time.Second,
		},
		Brain: BrainConfig{
			Kind:    "http",
			URL:     "https://suzie-q-brain.onrender.com/analyze",
			APIBase: "https://api.openai.com/v1",
			Model:   "gpt-4o-mini",
			Timeout: 60 * time.Second,
		},
		Embedding: EmbeddingConfig{
			APIBase:    "https://api.openai.com/v1",
			Model:      "text-embedding-3-small",
			Dimensions: 1536,
			Timeout:    20 * time.Second,
		},
		Recall: RecallConfig{
			Limit:         5,
			MinSimilarity: 0.20,
			HalfLifeDays:  14,
			Alpha:         0.15,
			Beta:          0.10,
			AgentAlpha:    0.25,
			AgentBeta:     0.05,
		},
		Slack: SlackConfig{
			APIURL: "https://slack.com/api/",
		},
		Kafka: KafkaConfig{
			Topic: "suzieq.office.events",
		},
		Autonomy: AutonomyConfig{
			ExecuteBatch:   5,
			PlanMaxTasks:   10,
			KPILimit:       20,
			MemoryLimit:    20,
			NotifyChannel:  "slack",
			WebIngestLimit: 2 << 20,
		},
		Scheduler: SchedulerConfig{
			TickInterval:    60 * time.Second,
			LockPath:        "~/.suzieq/scheduler.lock",
			AutonomyCron:    "*/30 * * * *",
			DailyReportCron: "0 9 * * *",
			MaxConcLLM:      2,
			MaxConcDefault:  4,
		},
		Telemetry: TelemetryConfig{
			Exporter:    "stdout",
			ServiceName: "suzieq",
			SampleRate:  1.0,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
