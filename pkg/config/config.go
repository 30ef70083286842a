// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Kafka, Redis, Indexer, Search, Expansion, etc.).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Indexer   IndexerConfig   `yaml:"indexer"`
	Search    SearchConfig    `yaml:"search"`
	Expansion ExpansionConfig `yaml:"expansion"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
}

// PostgresConfig holds PostgreSQL connection parameters. An empty Host
// disables run history.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings. No brokers disables
// both the ingest consumer and the event producer.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	DocumentIngest  string `yaml:"documentIngest"`
	ExpansionEvents string `yaml:"expansionEvents"`
}

// RedisConfig holds Redis connection and caching parameters. An empty Addr
// disables the expansion cache.
type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	PoolSize  int           `yaml:"poolSize"`
	CacheTTL  time.Duration `yaml:"cacheTTL"`
	Namespace string        `yaml:"namespace"`
}

// IndexerConfig controls the indexing engine's memory thresholds and flush
// interval, and where the forward index lives.
type IndexerConfig struct {
	DataDir         string        `yaml:"dataDir"`
	SegmentMaxSize  int64         `yaml:"segmentMaxSize"`
	FlushInterval   time.Duration `yaml:"flushInterval"`
	NumShards       int           `yaml:"numShards"`
	InMemoryVectors bool          `yaml:"inMemoryVectors"`
}

// SearchConfig controls query execution limits and timeouts.
// RetrievalAttempts bounds how often a failed feedback retrieval is tried.
type SearchConfig struct {
	MaxResults        int           `yaml:"maxResults"`
	DefaultLimit      int           `yaml:"defaultLimit"`
	TimeoutPerShard   time.Duration `yaml:"timeoutPerShard"`
	RetrievalAttempts int           `yaml:"retrievalAttempts"`
}

// MaxVocabularyCeiling bounds expansion.maxVocabulary. The co-occurrence
// matrix of a run holds maxVocabulary² float64 cells.
const MaxVocabularyCeiling = 10000

// ExpansionConfig holds the default model parameters. Requests may override
// MaxGrams, FeedbackDocs, Scorer and TopGrams.
type ExpansionConfig struct {
	MaxGrams      int     `yaml:"maxGrams"`
	FeedbackDocs  int     `yaml:"feedbackDocs"`
	MinFrequency  int     `yaml:"minFrequency"`
	MaxVocabulary int     `yaml:"maxVocabulary"`
	Lambda        float64 `yaml:"lambda"`
	Iterations    int     `yaml:"iterations"`
	Scorer        string  `yaml:"scorer"`
	Smoothing     string  `yaml:"smoothing"`
	Workers       int     `yaml:"workers"`
	TopGrams      int     `yaml:"topGrams"`
}

// RateLimitConfig bounds the request rate of the expand endpoint.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls OpenTelemetry tracing. Exporter is "stdout" or
// "otlp"; Endpoint is only used by the latter.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"`
	Endpoint    string  `yaml:"endpoint"`
	SampleRate  float64 `yaml:"sampleRate"`
	ServiceName string  `yaml:"serviceName"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Default returns the built-in configuration without reading any file or
// environment variable.
func Default() *Config {
	return defaultConfig()
}

// Validate rejects values the services cannot run with.
func (c *Config) Validate() error {
	var errs []error
	e := c.Expansion
	if e.MaxGrams < 1 {
		errs = append(errs, fmt.Errorf("expansion.maxGrams must be at least 1, got %d", e.MaxGrams))
	}
	if e.FeedbackDocs < 1 {
		errs = append(errs, fmt.Errorf("expansion.feedbackDocs must be at least 1, got %d", e.FeedbackDocs))
	}
	if e.MinFrequency < 0 {
		errs = append(errs, fmt.Errorf("expansion.minFrequency must not be negative"))
	}
	if e.MaxVocabulary < 1 || e.MaxVocabulary > MaxVocabularyCeiling {
		errs = append(errs, fmt.Errorf("expansion.maxVocabulary must be within [1, %d], got %d",
			MaxVocabularyCeiling, e.MaxVocabulary))
	}
	if e.Lambda < 0 || e.Lambda > 1 {
		errs = append(errs, fmt.Errorf("expansion.lambda must be within [0, 1], got %v", e.Lambda))
	}
	if e.Iterations < 0 {
		errs = append(errs, fmt.Errorf("expansion.iterations must not be negative"))
	}
	switch e.Scorer {
	case "randomwalk", "languagemodel":
	default:
		errs = append(errs, fmt.Errorf("expansion.scorer must be randomwalk or languagemodel, got %q", e.Scorer))
	}
	switch e.Smoothing {
	case "", "dirichlet", "jm":
	default:
		errs = append(errs, fmt.Errorf("expansion.smoothing must be empty, dirichlet or jm, got %q", e.Smoothing))
	}
	if c.Indexer.NumShards < 1 {
		errs = append(errs, fmt.Errorf("indexer.numShards must be at least 1, got %d", c.Indexer.NumShards))
	}
	if c.Search.MaxResults < 1 {
		errs = append(errs, fmt.Errorf("search.maxResults must be at least 1"))
	}
	if c.Tracing.Enabled && c.Tracing.Exporter != "stdout" && c.Tracing.Exporter != "otlp" {
		errs = append(errs, fmt.Errorf("tracing.exporter must be stdout or otlp, got %q", c.Tracing.Exporter))
	}
	return errors.Join(errs...)
}

// defaultConfig returns a Config with production-ready defaults for local
// development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RequestTimeout:  10 * time.Second,
		},
		Postgres: PostgresConfig{
			Port:            5432,
			Database:        "expansion",
			User:            "expansion",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			ConsumerGroup: "expansion-indexer",
			Topics: KafkaTopics{
				DocumentIngest:  "document-ingest",
				ExpansionEvents: "expansion-events",
			},
		},
		Redis: RedisConfig{
			PoolSize:  10,
			CacheTTL:  5 * time.Minute,
			Namespace: "qx:",
		},
		Indexer: IndexerConfig{
			DataDir:        "data/index",
			SegmentMaxSize: 16 << 20,
			FlushInterval:  30 * time.Second,
			NumShards:      2,
		},
		Search: SearchConfig{
			MaxResults:        100,
			DefaultLimit:      10,
			TimeoutPerShard:   2 * time.Second,
			RetrievalAttempts: 2,
		},
		Expansion: ExpansionConfig{
			MaxGrams:      2,
			FeedbackDocs:  10,
			MinFrequency:  0,
			MaxVocabulary: 4000,
			Lambda:        0.3,
			Iterations:    500,
			Scorer:        "randomwalk",
			Workers:       4,
			TopGrams:      50,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 20,
			Burst:             40,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Exporter:    "stdout",
			SampleRate:  1,
			ServiceName: "query-expander",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads QX_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	envInt("QX_SERVER_PORT", &cfg.Server.Port)
	envString("QX_POSTGRES_HOST", &cfg.Postgres.Host)
	envInt("QX_POSTGRES_PORT", &cfg.Postgres.Port)
	envString("QX_POSTGRES_DATABASE", &cfg.Postgres.Database)
	envString("QX_POSTGRES_USER", &cfg.Postgres.User)
	envString("QX_POSTGRES_PASSWORD", &cfg.Postgres.Password)
	envString("QX_POSTGRES_SSLMODE", &cfg.Postgres.SSLMode)
	if v := os.Getenv("QX_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	envString("QX_REDIS_ADDR", &cfg.Redis.Addr)
	envString("QX_REDIS_PASSWORD", &cfg.Redis.Password)
	envString("QX_REDIS_NAMESPACE", &cfg.Redis.Namespace)
	envString("QX_INDEXER_DATA_DIR", &cfg.Indexer.DataDir)
	envInt("QX_INDEXER_NUM_SHARDS", &cfg.Indexer.NumShards)
	envInt("QX_EXPANSION_MAX_GRAMS", &cfg.Expansion.MaxGrams)
	envInt("QX_EXPANSION_FEEDBACK_DOCS", &cfg.Expansion.FeedbackDocs)
	envInt("QX_EXPANSION_MIN_FREQUENCY", &cfg.Expansion.MinFrequency)
	envInt("QX_EXPANSION_MAX_VOCABULARY", &cfg.Expansion.MaxVocabulary)
	envInt("QX_EXPANSION_ITERATIONS", &cfg.Expansion.Iterations)
	envInt("QX_EXPANSION_WORKERS", &cfg.Expansion.Workers)
	envString("QX_EXPANSION_SCORER", &cfg.Expansion.Scorer)
	envString("QX_EXPANSION_SMOOTHING", &cfg.Expansion.Smoothing)
	if v := os.Getenv("QX_EXPANSION_LAMBDA"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Expansion.Lambda = f
		}
	}
	envString("QX_LOGGING_LEVEL", &cfg.Logging.Level)
	envString("QX_LOGGING_FORMAT", &cfg.Logging.Format)
	if v := os.Getenv("QX_TRACING_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Tracing.Enabled = b
		}
	}
	envString("QX_TRACING_EXPORTER", &cfg.Tracing.Exporter)
	envString("QX_TRACING_ENDPOINT", &cfg.Tracing.Endpoint)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
