package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, `
pipelines:
  - pipeline_id: p1
    initial_node_id: A
    elements:
      - element_id: A
        node_type: cel-transform
        settings:
          forward.ok: B
          error.default: B
      - element_id: B
        node_type: log-sink
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Engine.LookupTimeout)
	assert.Equal(t, 5*time.Second, cfg.Engine.BindTimeout)
	assert.Equal(t, 64, cfg.Engine.NodeBufferSize)

	require.Len(t, cfg.Pipelines, 1)
	p := cfg.Pipelines[0]
	assert.Equal(t, "p1", p.PipelineID)
	require.Len(t, p.Elements, 2)
	assert.Equal(t, "B", p.Elements[0].Settings["forward.ok"])
	assert.Equal(t, "B", p.Elements[0].Settings["error.default"])
}

func TestLoadConfig_ExampleFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("..", "..", "configs", "switchyard.yaml"))
	require.NoError(t, err)

	require.Len(t, cfg.Dispatchers, 1)
	d := cfg.Dispatchers[0]
	assert.Equal(t, "ingest", d.DispatcherID)
	assert.Equal(t, "broadcast", d.Policy.Type)
	assert.Equal(t, "uppercase", d.Policy.Settings["destinations"])
	assert.True(t, d.Source.Enabled())
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("BROKER_KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("SERVER_PORT", "9090")

	cfg, err := LoadConfig(writeConfig(t, "broker:\n  kafka:\n    group_id: g\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Broker.Kafka.Brokers)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestValidateStatic(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server: ServerConfig{Port: 8080, ReadTimeout: time.Second, WriteTimeout: time.Second},
			Engine: EngineConfig{
				LookupTimeout:  time.Second,
				BindTimeout:    time.Second,
				RequestTimeout: time.Second,
				NodeBufferSize: 8,
			},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 0 }, field: "server.port"},
		{name: "zero buffer", mutate: func(c *Config) { c.Engine.NodeBufferSize = 0 }, field: "engine.node_buffer_size"},
		{
			name:   "mirror without host",
			mutate: func(c *Config) { c.Directory.Redis = RedisConfig{Enabled: true, Port: 6379, QueueSize: 1} },
			field:  "directory.redis.host",
		},
		{
			name: "source without brokers",
			mutate: func(c *Config) {
				c.Dispatchers = []DispatcherConfig{{DispatcherID: "d", Policy: PolicyConfig{Type: "broadcast"}, Source: SourceConfig{Topic: "t"}}}
			},
			field: "broker.kafka.brokers",
		},
		{
			name: "duplicate dispatcher",
			mutate: func(c *Config) {
				d := DispatcherConfig{DispatcherID: "d", Policy: PolicyConfig{Type: "broadcast"}}
				c.Dispatchers = []DispatcherConfig{d, d}
			},
			field: "dispatchers[1].dispatcher_id",
		},
		{
			name: "unknown target kind",
			mutate: func(c *Config) {
				c.Dispatchers = []DispatcherConfig{{DispatcherID: "d", TargetKind: "ROUTER", Policy: PolicyConfig{Type: "broadcast"}}}
			},
			field: "dispatchers[0].target_kind",
		},
		{
			name:   "bad mongo uri",
			mutate: func(c *Config) { c.Database.MongoDB = MongoDBConfig{URI: "http://x", Database: "db"} },
			field:  "database.mongodb.uri",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := ValidateStatic(cfg)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}
