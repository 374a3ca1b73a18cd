package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/carpool-match/internal/models"
)

const publishTimeout = 2 * time.Second

// KafkaProducer publishes profile change events keyed by commuter id, so
// all events for one commuter land on the same partition in order.
type KafkaProducer struct {
	writer *kafka.Writer
}

func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return &KafkaProducer{writer: w}
}

func (k *KafkaProducer) PublishProfile(ctx context.Context, ev models.ProfileEvent) error {
	msg, err := profileMessage(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return k.writer.WriteMessages(ctx, msg)
}

func profileMessage(ev models.ProfileEvent) (kafka.Message, error) {
	if ev.CommuterID == "" {
		return kafka.Message{}, fmt.Errorf("profile event without commuter id")
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{Key: []byte(ev.CommuterID), Value: b, Time: ev.UpdatedAt}, nil
}

// DecodeProfile parses a message written by PublishProfile.
func DecodeProfile(m kafka.Message) (models.ProfileEvent, error) {
	var ev models.ProfileEvent
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		return ev, fmt.Errorf("decode profile event at offset %d: %w", m.Offset, err)
	}
	if ev.CommuterID == "" {
		ev.CommuterID = string(m.Key)
	}
	return ev, nil
}

func (k *KafkaProducer) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
