package config

import (
	"time"

	"switchyard/pkg/models"
)

type Config struct {
	Server         ServerConfig            `mapstructure:"server"`
	Logging        LoggingConfig           `mapstructure:"logging"`
	Engine         EngineConfig            `mapstructure:"engine"`
	Directory      DirectoryConfig         `mapstructure:"directory"`
	Broker         BrokerConfig            `mapstructure:"broker"`
	Database       DatabaseConfig          `mapstructure:"database"`
	CircuitBreaker CircuitBreakerConfig    `mapstructure:"circuit_breaker"`
	Tracing        TracingConfig           `mapstructure:"tracing"`
	Admin          AdminConfig             `mapstructure:"admin"`
	Pipelines      []models.PipelineConfig `mapstructure:"pipelines"`
	Dispatchers    []DispatcherConfig      `mapstructure:"dispatchers"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type EngineConfig struct {
	// NodeName identifies this process in mirrored directory entries.
	NodeName       string        `mapstructure:"node_name"`
	LookupTimeout  time.Duration `mapstructure:"lookup_timeout"`
	BindTimeout    time.Duration `mapstructure:"bind_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	NodeBufferSize int           `mapstructure:"node_buffer_size"`
}

type DirectoryConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
	QueueSize int    `mapstructure:"queue_size"`
}

type BrokerConfig struct {
	Kafka KafkaConfig `mapstructure:"kafka"`
}

type KafkaConfig struct {
	Brokers  []string    `mapstructure:"brokers"`
	GroupID  string      `mapstructure:"group_id"`
	DLQTopic string      `mapstructure:"dlq_topic"`
	Retry    RetryConfig `mapstructure:"retry"`
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig `mapstructure:"postgres"`
	MongoDB       MongoDBConfig  `mapstructure:"mongodb"`
	RunMigrations bool           `mapstructure:"run_migrations"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type MongoDBConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

type AdminConfig struct {
	Enabled   bool            `mapstructure:"enabled"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	RPS             float64 `mapstructure:"rps"`
	Burst           int     `mapstructure:"burst"`
	CleanupInterval int     `mapstructure:"cleanup_interval"`
	MaxAge          int     `mapstructure:"max_age"`
}

type DispatcherConfig struct {
	DispatcherID string       `mapstructure:"dispatcher_id"`
	TargetKind   string       `mapstructure:"target_kind"`
	Policy       PolicyConfig `mapstructure:"policy"`
	Source       SourceConfig `mapstructure:"source"`
}

type PolicyConfig struct {
	Type     string            `mapstructure:"type"`
	Settings map[string]string `mapstructure:"settings"`
}

type SourceConfig struct {
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

func (c SourceConfig) Enabled() bool {
	return c.Topic != ""
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
