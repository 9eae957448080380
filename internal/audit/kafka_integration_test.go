//go:build integration

package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"istsi/pkg/testutil/containers"
)

const sinkTestTopic = "istsi-operation-events"

type KafkaSinkSuite struct {
	suite.Suite
	redpanda *containers.RedpandaContainer
	sink     *KafkaSink
}

func TestKafkaSinkSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaSinkSuite))
}

func (s *KafkaSinkSuite) SetupSuite() {
	s.redpanda = containers.NewRedpandaContainer(s.T())

	sink, err := NewKafkaSink(s.redpanda.Brokers, sinkTestTopic)
	s.Require().NoError(err)
	s.Require().NotNil(sink)
	s.sink = sink
	s.T().Cleanup(sink.Close)
}

func (s *KafkaSinkSuite) TestPublish() {
	ctx := context.Background()
	base := time.Now().UTC()

	events := []Event{
		{Timestamp: base, OperationID: "op-1", CorrelationID: "op-1", Action: ActionStateTransition, Subject: "1234", Amount: 100_000_000, Outcome: "compliance_verified"},
		{Timestamp: base.Add(time.Millisecond), OperationID: "op-1", CorrelationID: "op-1", Action: ActionStateTransition, Subject: "1234", Amount: 100_000_000, Outcome: "settled"},
	}
	for _, e := range events {
		s.Require().NoError(s.sink.Publish(ctx, e))
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(s.redpanda.Brokers...),
		kgo.ConsumeTopics(sinkTestTopic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer client.Close()

	pollCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var records []*kgo.Record
	for len(records) < len(events) {
		fetches := client.PollFetches(pollCtx)
		s.Require().Empty(fetches.Errors())
		records = append(records, fetches.Records()...)
	}
	s.Require().Len(records, len(events))

	// Records share the correlation key, so they land on one partition in
	// publish order.
	for _, record := range records {
		s.Equal("op-1", string(record.Key))
	}

	var first, second kafkaPayload
	s.Require().NoError(json.Unmarshal(records[0].Value, &first))
	s.Require().NoError(json.Unmarshal(records[1].Value, &second))
	s.Equal(ActionStateTransition, first.Action)
	s.Equal("compliance_verified", first.Outcome)
	s.Equal("settled", second.Outcome)
	s.Equal(int64(100_000_000), first.Amount)
}

func (s *KafkaSinkSuite) TestNoBrokersMeansNoSink() {
	sink, err := NewKafkaSink(nil, sinkTestTopic)
	s.NoError(err)
	s.Nil(sink)
}
