package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
)

// KafkaConfig configures the Kafka notification sink.
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
	Acks     string
}

// KafkaSink publishes notifications to a Kafka topic keyed by order id, so
// all notifications of one swap land on one partition in order.
type KafkaSink struct {
	producer *kafka.Producer
	topic    string
	logger   *zap.Logger
	done     chan struct{}
}

// NewKafkaSink creates a producer and starts its delivery report loop.
func NewKafkaSink(cfg KafkaConfig, logger *zap.Logger) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: brokers and topic are required")
	}
	if cfg.Acks == "" {
		cfg.Acks = "all"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "htlc-relayer"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":  strings.Join(cfg.Brokers, ","),
		"client.id":          cfg.ClientID,
		"acks":               cfg.Acks,
		"enable.idempotence": true,
		"linger.ms":          5,
	})
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	s := &KafkaSink{
		producer: producer,
		topic:    cfg.Topic,
		logger:   logger.Named("kafka-sink"),
		done:     make(chan struct{}),
	}
	go s.reportLoop()
	return s, nil
}

// Name implements Sink.
func (s *KafkaSink) Name() string { return "kafka" }

// Deliver enqueues n on the producer. Delivery failures are reported
// asynchronously by reportLoop.
func (s *KafkaSink) Deliver(_ context.Context, n Notification) error {
	value, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	return s.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &s.topic, Partition: kafka.PartitionAny},
		Key:            []byte(n.Key()),
		Value:          value,
		Headers:        []kafka.Header{{Key: "type", Value: []byte(n.Kind)}},
	}, nil)
}

func (s *KafkaSink) reportLoop() {
	defer close(s.done)
	for e := range s.producer.Events() {
		switch ev := e.(type) {
		case *kafka.Message:
			if ev.TopicPartition.Error != nil {
				s.logger.Warn("kafka delivery failed",
					zap.ByteString("key", ev.Key),
					zap.Error(ev.TopicPartition.Error),
				)
			}
		case kafka.Error:
			s.logger.Warn("kafka producer error", zap.Error(ev))
		}
	}
}

// Close flushes outstanding messages and closes the producer.
func (s *KafkaSink) Close() {
	if remaining := s.producer.Flush(5000); remaining > 0 {
		s.logger.Warn("kafka flush incomplete", zap.Int("remaining", remaining))
	}
	s.producer.Close()
	<-s.done
}
