// Package queue wires the manager's optional live flow-record fan-out
// (SPEC_FULL.md §3.2) onto Kafka, adapted from the teacher's
// internal/queue/kafka.go producer.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"
)

// ProducerConfig mirrors pkg/config.KafkaConfig without importing it, to
// keep this package free of a dependency on pkg/config.
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	Compression  string
	Async        bool
	MaxAttempts  int
	RequiredAcks int
}

// Producer publishes flow records to Kafka, partitioned by source IP.
type Producer struct {
	writer *kafka.Writer
}

// NewProducer creates an optimized Kafka producer from config.
func NewProducer(cfg ProducerConfig) *Producer {
	var compression compress.Compression
	switch cfg.Compression {
	case "snappy":
		compression = compress.Snappy
	case "lz4":
		compression = compress.Lz4
	case "gzip":
		compression = compress.Gzip
	case "zstd":
		compression = compress.Zstd
	}

	var requiredAcks kafka.RequiredAcks
	switch cfg.RequiredAcks {
	case -1:
		requiredAcks = kafka.RequireAll
	case 0:
		requiredAcks = kafka.RequireNone
	default:
		requiredAcks = kafka.RequireOne
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		Compression:  compression,
		Async:        cfg.Async,
		RequiredAcks: requiredAcks,
		MaxAttempts:  cfg.MaxAttempts,
	}

	return &Producer{writer: writer}
}

// Publish sends a flow record, keyed by source IP for partition stability.
func (p *Producer) Publish(ctx context.Context, key string, value []byte) error {
	msg := kafka.Message{Key: []byte(key), Value: value}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish flow record: %w", err)
	}
	return nil
}

// Close closes the producer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

// CreateTopic creates a Kafka topic. Every failure, including "already
// exists", is returned to the caller; cmd/manager logs it and carries on,
// the way the teacher's cmd/server/main.go treats topic-creation failures
// as advisory rather than fatal.
func CreateTopic(brokers []string, topic string, numPartitions, replicationFactor int) error {
	if len(brokers) == 0 {
		return fmt.Errorf("no Kafka brokers configured")
	}

	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("failed to dial broker: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("failed to get controller: %w", err)
	}

	controllerConn, err := kafka.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	if err != nil {
		return fmt.Errorf("failed to dial controller: %w", err)
	}
	defer controllerConn.Close()

	return controllerConn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     numPartitions,
		ReplicationFactor: replicationFactor,
	})
}
