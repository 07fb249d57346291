package kafka

import (
	"context"
	"fmt"

	wbfkafka "github.com/wb-go/wbf/kafka"
	"github.com/wb-go/wbf/retry"

	"github.com/aliskhannn/thumbnailer/internal/model"
)

// Publisher sends jobs to the jobs topic.
type Publisher struct {
	client   sender
	strategy retry.Strategy
}

// NewPublisher creates a producer for topic.
func NewPublisher(brokers []string, topic string, s retry.Strategy) *Publisher {
	return NewPublisherWithClient(wbfkafka.NewProducer(brokers, topic), s)
}

// NewPublisherWithClient wraps an existing producer.
func NewPublisherWithClient(client sender, s retry.Strategy) *Publisher {
	if s.Attempts < 1 {
		s.Attempts = 1
	}

	return &Publisher{client: client, strategy: s}
}

// Publish serializes the job and sends it keyed by the object key, so all
// jobs for one object land on the same partition.
func (p *Publisher) Publish(ctx context.Context, job model.Job) error {
	data, err := job.Encode()
	if err != nil {
		return err
	}

	if err := p.client.SendWithRetry(ctx, p.strategy, []byte(job.Key), data); err != nil {
		return fmt.Errorf("failed to send job: %w", err)
	}

	return nil
}

// Close closes the producer.
func (p *Publisher) Close() error {
	return p.client.Close()
}
