//go:build integration

package audit_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"formdesk/internal/audit"
	"formdesk/pkg/testutil/containers"
)

type KafkaStoreSuite struct {
	suite.Suite
	broker *containers.RedpandaContainer
}

func TestKafkaStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaStoreSuite))
}

func (s *KafkaStoreSuite) SetupSuite() {
	s.broker = containers.NewRedpandaContainer(s.T())
}

func (s *KafkaStoreSuite) TestAppendProducesKeyedJSON() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	const topic = "formdesk.audit.test"
	store, err := audit.NewKafkaStore(ctx, s.broker.Brokers, topic)
	s.Require().NoError(err)
	defer store.Close()

	// A second constructor call sees the topic already present.
	again, err := audit.NewKafkaStore(ctx, s.broker.Brokers, topic)
	s.Require().NoError(err)
	again.Close()

	s.Require().NoError(store.Append(ctx, audit.Event{
		Timestamp: time.Now().UTC(),
		Action:    audit.ActionPaymentVerified,
		Subject:   "app-123",
	}))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.broker.Brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	s.Require().Empty(fetches.Errors())
	records := fetches.Records()
	s.Require().NotEmpty(records)

	s.Equal("app-123", string(records[0].Key))
	var got audit.Event
	s.Require().NoError(json.Unmarshal(records[0].Value, &got))
	s.Equal(audit.ActionPaymentVerified, got.Action)
}
