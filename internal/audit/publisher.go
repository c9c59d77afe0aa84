// Package audit publishes append-only events for spends, settlements, and
// job transitions. Publishing is fire-and-forget: audit failures are logged
// and never block or fail the operation that emitted them.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Publisher fans events out to a Kafka topic when brokers are configured and
// to the structured log otherwise.
type Publisher struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// NewPublisher connects a franz-go producer. With no brokers the publisher
// degrades to log-only, which is the dev and unit-test mode.
func NewPublisher(brokers []string, topic string, logger *slog.Logger) (*Publisher, error) {
	p := &Publisher{topic: topic, logger: logger}
	if len(brokers) == 0 {
		return p, nil
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, err
	}
	p.client = client
	return p, nil
}

// Emit records one event. Never returns an error: audit is a non-critical
// side effect per the propagation policy.
func (p *Publisher) Emit(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("marshal audit event", "action", event.Action, "error", err)
		return
	}

	if p.client == nil {
		p.logger.Info("audit",
			"action", event.Action,
			"account_id", event.AccountID,
			"subject", event.Subject,
			"amount", event.Amount,
		)
		return
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.AccountID),
		Value: payload,
	}
	p.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			p.logger.Error("publish audit event", "action", event.Action, "error", err)
		}
	})
}

// Close flushes and releases the producer.
func (p *Publisher) Close() {
	if p.client != nil {
		p.client.Close()
	}
}
