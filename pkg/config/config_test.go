package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Expansion.MaxGrams)
	assert.Equal(t, 0.3, cfg.Expansion.Lambda)
	assert.Equal(t, 500, cfg.Expansion.Iterations)
	assert.Equal(t, "randomwalk", cfg.Expansion.Scorer)
	assert.Equal(t, 4000, cfg.Expansion.MaxVocabulary)
	assert.Equal(t, "document-ingest", cfg.Kafka.Topics.DocumentIngest)
	assert.Empty(t, cfg.Redis.Addr)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
  requestTimeout: 3s
expansion:
  maxGrams: 3
  scorer: languagemodel
  smoothing: dirichlet
redis:
  addr: cache:6379
`), 0o644))

	t.Setenv("QX_SERVER_PORT", "9100")
	t.Setenv("QX_EXPANSION_LAMBDA", "0.5")
	t.Setenv("QX_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, 3, cfg.Expansion.MaxGrams)
	assert.Equal(t, "languagemodel", cfg.Expansion.Scorer)
	assert.Equal(t, "dirichlet", cfg.Expansion.Smoothing)
	assert.Equal(t, 0.5, cfg.Expansion.Lambda)
	assert.Equal(t, 500, cfg.Expansion.Iterations)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"max grams", func(c *Config) { c.Expansion.MaxGrams = 0 }, "maxGrams"},
		{"feedback docs", func(c *Config) { c.Expansion.FeedbackDocs = 0 }, "feedbackDocs"},
		{"lambda", func(c *Config) { c.Expansion.Lambda = 2 }, "lambda"},
		{"vocabulary unbounded", func(c *Config) { c.Expansion.MaxVocabulary = 0 }, "maxVocabulary"},
		{"vocabulary too large", func(c *Config) { c.Expansion.MaxVocabulary = MaxVocabularyCeiling + 1 }, "maxVocabulary"},
		{"scorer", func(c *Config) { c.Expansion.Scorer = "bm25" }, "scorer"},
		{"smoothing", func(c *Config) { c.Expansion.Smoothing = "laplace" }, "smoothing"},
		{"shards", func(c *Config) { c.Indexer.NumShards = 0 }, "numShards"},
		{"exporter", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "zipkin"
		}, "exporter"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
	assert.NoError(t, Default().Validate())
}

func TestLoadRejectsBadFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("expansion:\n  scorer: nope\n"), 0o644))
	_, err = Load(path)
	assert.ErrorContains(t, err, "scorer")
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "d", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=d sslmode=disable", p.DSN())
}
