package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tunestore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)

	cfg, err := Load("api", nil, nil)

	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "postgres", cfg.Store)
	assert.Equal(t, "log", cfg.NotifySink)
	assert.Equal(t, "postgres", cfg.TicketStore)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 15*time.Minute, cfg.TokenExpiry)
}

func TestLoad_FileThenEnvThenFlags(t *testing.T) {
	path := writeConfig(t, `
http_addr: ":9000"
jwt_secret: "`+testSecret+`"
token_expiry: 1h
notify_sink: smtp
kafka:
  brokers: ["k1:9092", "k2:9092"]
  topic: from-file
smtp:
  host: mail.internal
`)
	t.Setenv("KAFKA_TOPIC", "from-env")
	t.Setenv("NOTIFY_SINK", "kafka")

	cfg, err := Load("api", []string{"--config", path, "--notify-sink", "log"}, nil)

	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.HTTPAddr)
	assert.Equal(t, time.Hour, cfg.TokenExpiry)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "from-env", cfg.Kafka.Topic)
	assert.Equal(t, "mail.internal", cfg.SMTP.Host)
	assert.Equal(t, "1025", cfg.SMTP.Port)
	assert.Equal(t, "log", cfg.NotifySink)
}

func TestLoad_ConfigFileFromEnv(t *testing.T) {
	path := writeConfig(t, `jwt_secret: "`+testSecret+`"
store: memory
`)
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load("api", nil, nil)

	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Store)
}

func TestLoad_KafkaBrokersFromEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("KAFKA_BROKERS", "a:1,b:2")

	cfg, err := Load("notifier", nil, nil)

	require.NoError(t, err)
	assert.Equal(t, []string{"a:1", "b:2"}, cfg.Kafka.Brokers)
}

func TestLoad_ExtraFlags(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	var seed string

	_, err := Load("bootstrap", []string{"--seed", "seed.yaml"}, func(fs *pflag.FlagSet) {
		fs.StringVar(&seed, "seed", "", "seed file")
	})

	require.NoError(t, err)
	assert.Equal(t, "seed.yaml", seed)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		t.Setenv("JWT_SECRET", testSecret)
		_, err := Load("api", []string{"--config", filepath.Join(t.TempDir(), "nope.yaml")}, nil)
		assert.Error(t, err)
	})
	t.Run("bad yaml", func(t *testing.T) {
		t.Setenv("JWT_SECRET", testSecret)
		_, err := Load("api", []string{"--config", writeConfig(t, "http_addr: [")}, nil)
		assert.Error(t, err)
	})
	t.Run("unknown flag", func(t *testing.T) {
		t.Setenv("JWT_SECRET", testSecret)
		_, err := Load("api", []string{"--bogus"}, nil)
		assert.Error(t, err)
	})
	t.Run("short secret", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "short")
		_, err := Load("api", nil, nil)
		assert.ErrorContains(t, err, "JWT_SECRET")
	})
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.JWTSecret = testSecret
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"unknown store", func(c *Config) { c.Store = "sqlite" }, "unknown store"},
		{"unknown sink", func(c *Config) { c.NotifySink = "pigeon" }, "unknown notify sink"},
		{"sqs without queue", func(c *Config) { c.NotifySink = "sqs" }, "SQS_QUEUE_URL"},
		{"sqs with queue", func(c *Config) { c.NotifySink = "sqs"; c.SQSQueueURL = "https://q" }, ""},
		{"unknown ticket store", func(c *Config) { c.TicketStore = "mongo" }, "unknown ticket store"},
		{"dynamodb without table", func(c *Config) { c.TicketStore = "dynamodb"; c.DynamoTicketsTable = "" }, "DYNAMO_TICKETS_TABLE"},
		{"zero expiry", func(c *Config) { c.TokenExpiry = 0 }, "token expiry"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
