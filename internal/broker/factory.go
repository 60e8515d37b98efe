package broker

import (
	"fmt"

	"switchyard/internal/config"
	"switchyard/internal/logger"
)

func NewProducer(cfg config.BrokerConfig, log logger.Logger) (Producer, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are not configured")
	}
	return NewKafkaProducer(cfg.Kafka, log), nil
}

// NewConsumer builds a consumer for one dispatcher source. The source group id
// overrides the broker-wide one.
func NewConsumer(cfg config.BrokerConfig, source config.SourceConfig, log logger.Logger) (Consumer, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are not configured")
	}
	kcfg := cfg.Kafka
	if source.GroupID != "" {
		kcfg.GroupID = source.GroupID
	}
	return NewKafkaConsumer(kcfg, log), nil
}
