// Package audit publishes ledger events to the audit log.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"
)

// Audit topics
const (
	TopicRewardGranted     = "reward.granted"
	TopicRewardUnlocked    = "reward.unlocked"
	TopicRewardForceUnlock = "reward.force_unlocked"
	TopicTransferCompleted = "transfer.completed"

	defaultPublishTimeout = 10 * time.Second
)

// Publisher sends one JSON message to a topic
type Publisher interface {
	Publish(ctx context.Context, topic string, message interface{}) error
}

// Keyed messages choose their Kafka partition key
type Keyed interface {
	PartitionKey() string
}

// MessageWriter is the subset of *kafka.Writer the publisher needs
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes audit events to Kafka, one topic per event kind
type KafkaPublisher struct {
	writer      MessageWriter
	topicPrefix string
	timeout     time.Duration
}

func NewKafkaPublisher(brokers []string, topicPrefix string) *KafkaPublisher {
	return NewKafkaPublisherWithWriter(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}, topicPrefix)
}

func NewKafkaPublisherWithWriter(writer MessageWriter, topicPrefix string) *KafkaPublisher {
	return &KafkaPublisher{
		writer:      writer,
		topicPrefix: topicPrefix,
		timeout:     defaultPublishTimeout,
	}
}

// Topic returns the Kafka topic name for an audit topic
func (k *KafkaPublisher) Topic(topic string) string {
	if k.topicPrefix == "" {
		return topic
	}
	return k.topicPrefix + "." + topic
}

func (k *KafkaPublisher) Publish(ctx context.Context, topic string, message interface{}) error {
	value, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to encode audit message: %w", err)
	}

	msg := kafka.Message{
		Topic: k.Topic(topic),
		Value: value,
		Time:  time.Now().UTC(),
	}
	if keyed, ok := message.(Keyed); ok {
		msg.Key = []byte(keyed.PartitionKey())
	}

	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", msg.Topic, err)
	}
	return nil
}

func (k *KafkaPublisher) Close() error {
	return k.writer.Close()
}

// LogPublisher writes audit events to the application log. Used when no brokers are configured.
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, topic string, message interface{}) error {
	value, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to encode audit message: %w", err)
	}
	log.WithField("topic", topic).Info("[Audit] " + string(value))
	return nil
}
