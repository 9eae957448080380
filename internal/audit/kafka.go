package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaSink publishes events to the operation-events topic. Records are
// keyed by correlation id so one operation's transitions stay ordered within
// a partition.
type KafkaSink struct {
	client *kgo.Client
	topic  string
}

// NewKafkaSink connects to the brokers and returns a sink, or nil when no
// brokers are configured.
func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	if len(brokers) == 0 {
		return nil, nil
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchMaxBytes(1<<20),
		kgo.RecordRetries(3),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	return &KafkaSink{client: client, topic: topic}, nil
}

type kafkaPayload struct {
	Timestamp     string `json:"timestamp"`
	OperationID   string `json:"operation_id,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
	Kind          string `json:"kind,omitempty"`
	Action        string `json:"action"`
	Subject       string `json:"subject,omitempty"`
	Initiator     string `json:"initiator,omitempty"`
	Amount        int64  `json:"amount,omitempty"`
	DestAmount    int64  `json:"dest_amount,omitempty"`
	Outcome       string `json:"outcome,omitempty"`
	Reason        string `json:"reason,omitempty"`
	RequestID     string `json:"request_id,omitempty"`
}

func (s *KafkaSink) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(kafkaPayload{
		Timestamp:     event.Timestamp.Format(time.RFC3339Nano),
		OperationID:   event.OperationID,
		CorrelationID: event.CorrelationID,
		Kind:          event.Kind,
		Action:        event.Action,
		Subject:       event.Subject,
		Initiator:     event.Initiator,
		Amount:        event.Amount,
		DestAmount:    event.DestAmount,
		Outcome:       event.Outcome,
		Reason:        event.Reason,
		RequestID:     event.RequestID,
	})
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.CorrelationID),
		Value: payload,
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce event: %w", err)
	}
	return nil
}

// Close flushes and releases the Kafka client.
func (s *KafkaSink) Close() {
	s.client.Close()
}
