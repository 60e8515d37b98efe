package config

import (
	"errors"
	"fmt"
	"strings"

	"switchyard/internal/component"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ValidateStatic checks the shape of the configuration. Pipeline element
// wiring is validated by the supervisor when each pipeline is set up.
func ValidateStatic(cfg *Config) error {
	var errs []error

	validators := []func(*Config) error{
		func(c *Config) error { return validateServer(c.Server) },
		func(c *Config) error { return validateEngine(c.Engine) },
		func(c *Config) error { return validateDirectory(c.Directory) },
		func(c *Config) error { return validateBroker(c.Broker, c.Dispatchers) },
		func(c *Config) error { return validateDatabase(c.Database) },
		func(c *Config) error { return validatePipelines(c) },
		func(c *Config) error { return validateDispatchers(c.Dispatchers) },
	}
	for _, validate := range validators {
		if err := validate(cfg); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeout <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeout <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout",
			Message: "write timeout must be positive",
		}
	}

	return nil
}

func validateEngine(cfg EngineConfig) error {
	if cfg.LookupTimeout <= 0 {
		return &ValidationError{Field: "engine.lookup_timeout", Message: "lookup timeout must be positive"}
	}
	if cfg.BindTimeout <= 0 {
		return &ValidationError{Field: "engine.bind_timeout", Message: "bind timeout must be positive"}
	}
	if cfg.RequestTimeout <= 0 {
		return &ValidationError{Field: "engine.request_timeout", Message: "request timeout must be positive"}
	}
	if cfg.NodeBufferSize < 1 {
		return &ValidationError{
			Field:   "engine.node_buffer_size",
			Message: fmt.Sprintf("buffer size must be at least 1, got %d", cfg.NodeBufferSize),
		}
	}
	return nil
}

func validateDirectory(cfg DirectoryConfig) error {
	if !cfg.Redis.Enabled {
		return nil
	}

	if cfg.Redis.Host == "" {
		return &ValidationError{
			Field:   "directory.redis.host",
			Message: "Redis host is required when the directory mirror is enabled",
		}
	}

	if cfg.Redis.Port < 1 || cfg.Redis.Port > 65535 {
		return &ValidationError{
			Field:   "directory.redis.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Redis.Port),
		}
	}

	if cfg.Redis.QueueSize < 1 {
		return &ValidationError{
			Field:   "directory.redis.queue_size",
			Message: "queue size must be at least 1",
		}
	}

	return nil
}

func validateBroker(cfg BrokerConfig, dispatchers []DispatcherConfig) error {
	needsKafka := len(cfg.Kafka.Brokers) > 0
	for _, d := range dispatchers {
		if d.Source.Enabled() {
			needsKafka = true
		}
	}
	if !needsKafka {
		return nil
	}
	return validateKafka(cfg.Kafka)
}

func validateKafka(cfg KafkaConfig) error {
	if len(cfg.Brokers) == 0 {
		return &ValidationError{
			Field:   "broker.kafka.brokers",
			Message: "at least one Kafka broker is required",
		}
	}

	for i, broker := range cfg.Brokers {
		if broker == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("broker.kafka.brokers[%d]", i),
				Message: "broker address cannot be empty",
			}
		}
	}

	if cfg.GroupID == "" {
		return &ValidationError{
			Field:   "broker.kafka.group_id",
			Message: "Kafka consumer group ID is required",
		}
	}

	if cfg.Retry.MaxAttempts < 0 {
		return &ValidationError{
			Field:   "broker.kafka.retry.max_attempts",
			Message: "max_attempts must be non-negative",
		}
	}

	if cfg.Retry.InitialInterval < 0 {
		return &ValidationError{
			Field:   "broker.kafka.retry.initial_interval",
			Message: "initial_interval must be non-negative",
		}
	}

	if cfg.Retry.MaxInterval < 0 {
		return &ValidationError{
			Field:   "broker.kafka.retry.max_interval",
			Message: "max_interval must be non-negative",
		}
	}

	if cfg.Retry.MaxInterval > 0 && cfg.Retry.InitialInterval > 0 && cfg.Retry.MaxInterval < cfg.Retry.InitialInterval {
		return &ValidationError{
			Field:   "broker.kafka.retry.max_interval",
			Message: "max_interval must be greater than or equal to initial_interval",
		}
	}

	if cfg.Retry.Multiplier <= 0 {
		return &ValidationError{
			Field:   "broker.kafka.retry.multiplier",
			Message: "multiplier must be positive",
		}
	}

	return nil
}

func validateDatabase(cfg DatabaseConfig) error {
	if cfg.Postgres.Host != "" || cfg.Postgres.Port > 0 {
		if err := validatePostgres(cfg.Postgres); err != nil {
			return err
		}
	}

	if cfg.MongoDB.URI != "" {
		if err := validateMongoDB(cfg.MongoDB); err != nil {
			return err
		}
	}

	return nil
}

func validatePostgres(cfg PostgresConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.postgres.host",
			Message: "PostgreSQL host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.postgres.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.User == "" {
		return &ValidationError{
			Field:   "database.postgres.user",
			Message: "PostgreSQL user is required",
		}
	}

	if cfg.DBName == "" {
		return &ValidationError{
			Field:   "database.postgres.dbname",
			Message: "PostgreSQL database name is required",
		}
	}

	validSSLModes := map[string]bool{
		"disable": true, "allow": true, "prefer": true,
		"require": true, "verify-ca": true, "verify-full": true,
	}
	if cfg.SSLMode != "" && !validSSLModes[strings.ToLower(cfg.SSLMode)] {
		return &ValidationError{
			Field:   "database.postgres.sslmode",
			Message: fmt.Sprintf("invalid SSL mode: %s (valid: disable, allow, prefer, require, verify-ca, verify-full)", cfg.SSLMode),
		}
	}

	return nil
}

func validateMongoDB(cfg MongoDBConfig) error {
	if !strings.HasPrefix(cfg.URI, "mongodb://") && !strings.HasPrefix(cfg.URI, "mongodb+srv://") {
		return &ValidationError{
			Field:   "database.mongodb.uri",
			Message: "MongoDB URI must start with mongodb:// or mongodb+srv://",
		}
	}

	if cfg.Database == "" {
		return &ValidationError{
			Field:   "database.mongodb.database",
			Message: "MongoDB database name is required",
		}
	}

	return nil
}

func validatePipelines(cfg *Config) error {
	seen := make(map[string]bool, len(cfg.Pipelines))
	for i, p := range cfg.Pipelines {
		field := fmt.Sprintf("pipelines[%d].pipeline_id", i)
		if strings.TrimSpace(p.PipelineID) == "" {
			return &ValidationError{Field: field, Message: "pipeline id is required"}
		}
		if seen[p.PipelineID] {
			return &ValidationError{Field: field, Message: fmt.Sprintf("duplicate pipeline id %q", p.PipelineID)}
		}
		seen[p.PipelineID] = true
	}
	return nil
}

func validateDispatchers(dispatchers []DispatcherConfig) error {
	seen := make(map[string]bool, len(dispatchers))
	for i, d := range dispatchers {
		prefix := fmt.Sprintf("dispatchers[%d]", i)
		if strings.TrimSpace(d.DispatcherID) == "" {
			return &ValidationError{Field: prefix + ".dispatcher_id", Message: "dispatcher id is required"}
		}
		if seen[d.DispatcherID] {
			return &ValidationError{
				Field:   prefix + ".dispatcher_id",
				Message: fmt.Sprintf("duplicate dispatcher id %q", d.DispatcherID),
			}
		}
		seen[d.DispatcherID] = true

		if d.Policy.Type == "" {
			return &ValidationError{Field: prefix + ".policy.type", Message: "policy type is required"}
		}
		if d.TargetKind != "" {
			if _, ok := component.ParseKind(d.TargetKind); !ok {
				return &ValidationError{
					Field:   prefix + ".target_kind",
					Message: fmt.Sprintf("unknown component kind %q", d.TargetKind),
				}
			}
		}
	}
	return nil
}
