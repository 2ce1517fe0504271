package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisherWritesKeyedMessage(t *testing.T) {
	writer := &recordingWriter{}
	pub := NewKafkaPublisherWithWriter(writer, "reward-ledger")

	event := GrantEvent{
		UserID:          "user-1",
		EventType:       "signup_bonus",
		Tier:            10000,
		TotalAmount:     decimal.NewFromInt(700),
		ImmediateAmount: decimal.NewFromInt(350),
		LockedAmount:    decimal.NewFromInt(350),
		OccurredAt:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, pub.Publish(context.Background(), TopicRewardGranted, event))

	require.Len(t, writer.messages, 1)
	msg := writer.messages[0]
	assert.Equal(t, "reward-ledger.reward.granted", msg.Topic)
	assert.Equal(t, []byte("user-1"), msg.Key)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "signup_bonus", decoded["event_type"])
	assert.Equal(t, "350", decoded["immediate_amount"])

	require.NoError(t, pub.Close())
	assert.True(t, writer.closed)
}

func TestKafkaPublisherWrapsWriteError(t *testing.T) {
	writer := &recordingWriter{err: errors.New("broker down")}
	pub := NewKafkaPublisherWithWriter(writer, "")

	err := pub.Publish(context.Background(), TopicTransferCompleted, map[string]string{"a": "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transfer.completed")
	assert.Contains(t, err.Error(), "broker down")
}

func TestLogPublisherRejectsUnencodableMessage(t *testing.T) {
	err := LogPublisher{}.Publish(context.Background(), TopicRewardUnlocked, make(chan int))
	require.Error(t, err)

	require.NoError(t, LogPublisher{}.Publish(context.Background(), TopicRewardUnlocked, UnlockEvent{UserID: "u"}))
}
