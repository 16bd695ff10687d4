package changelog

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaSinkConfig configures a Kafka-backed change-log sink.
type KafkaSinkConfig struct {
	// Brokers are the seed broker addresses.
	Brokers []string

	// Topic is the changelog topic. Created on first use if absent.
	Topic string

	// Partitions is the partition count used when creating the topic.
	// Default: 1.
	Partitions int32

	// ReplicationFactor is used when creating the topic. Default: 1.
	ReplicationFactor int16

	// RetentionMs bounds the topic's delete retention; it should match the
	// store's retention period so the changelog does not outlive the
	// windows it can restore. Zero leaves the broker default.
	RetentionMs int64

	// ClientID identifies this producer. Default: "windowkv-" plus a
	// random suffix.
	ClientID string
}

// KafkaSink appends change-log records to a Kafka topic. Appends are
// synchronous with acks from all in-sync replicas, which is what gives the
// overlay its durability-before-acknowledge guarantee.
type KafkaSink struct {
	client *kgo.Client
	topic  string
}

func (cfg *KafkaSinkConfig) normalize() error {
	if len(cfg.Brokers) == 0 {
		return errors.New("changelog: no brokers configured")
	}
	if cfg.Topic == "" {
		return errors.New("changelog: no topic configured")
	}
	if cfg.Partitions <= 0 {
		cfg.Partitions = 1
	}
	if cfg.ReplicationFactor <= 0 {
		cfg.ReplicationFactor = 1
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "windowkv-" + uuid.NewString()[:8]
	}
	return nil
}

// topicConfigs returns the creation configs for the changelog topic.
// Windowed changelogs use compact,delete cleanup so superseded windows
// compact away while expired ones age out.
func (cfg *KafkaSinkConfig) topicConfigs() map[string]*string {
	configs := map[string]*string{
		"cleanup.policy": kadm.StringPtr("compact,delete"),
	}
	if cfg.RetentionMs > 0 {
		configs["retention.ms"] = kadm.StringPtr(strconv.FormatInt(cfg.RetentionMs, 10))
	}
	return configs
}

// NewKafkaSink connects to the cluster and ensures the changelog topic
// exists.
func NewKafkaSink(ctx context.Context, cfg KafkaSinkConfig) (*KafkaSink, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("changelog: kafka client: %w", err)
	}

	adm := kadm.NewClient(client)
	if _, err := adm.CreateTopic(ctx, cfg.Partitions, cfg.ReplicationFactor, cfg.topicConfigs(), cfg.Topic); err != nil {
		if !errors.Is(err, kerr.TopicAlreadyExists) {
			client.Close()
			return nil, fmt.Errorf("changelog: create topic %q: %w", cfg.Topic, err)
		}
	}

	return &KafkaSink{client: client, topic: cfg.Topic}, nil
}

// Append produces one record synchronously.
func (s *KafkaSink) Append(ctx context.Context, key, value []byte) error {
	results := s.client.ProduceSync(ctx, &kgo.Record{
		Topic: s.topic,
		Key:   key,
		Value: value,
	})
	if err := results.FirstErr(); err != nil {
		return fmt.Errorf("changelog: produce to %q: %w", s.topic, err)
	}
	return nil
}

// Close flushes and closes the Kafka client.
func (s *KafkaSink) Close() error {
	s.client.Close()
	return nil
}

// Ensure KafkaSink implements Sink.
var _ Sink = (*KafkaSink)(nil)
