// Package kafka carries jobs over Kafka topics.
//
// Kafka has no per-message redelivery, so a released message is kept and
// handed out again by the same Source. After MaxDeliveries attempts it is
// published to the dead letter topic and its offset is committed.
package kafka

import (
	"context"
	"fmt"
	"sync"

	"github.com/segmentio/kafka-go"
	wbfkafka "github.com/wb-go/wbf/kafka"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/thumbnailer/internal/queue"
)

// fetcher is the subset of *wbfkafka.Consumer used by Source.
type fetcher interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, msg kafka.Message) error
	Close() error
}

// sender is the subset of *wbfkafka.Producer used for dead letters and jobs.
type sender interface {
	SendWithRetry(ctx context.Context, strategy retry.Strategy, key, value []byte) error
	Close() error
}

// Options configures the consumer side.
type Options struct {
	Brokers         []string
	Topic           string
	GroupID         string
	DeadLetterTopic string
	MaxDeliveries   int
}

// Source receives jobs from a consumer group.
type Source struct {
	client        fetcher
	deadLetter    sender
	strategy      retry.Strategy
	maxDeliveries int

	mu       sync.Mutex
	released []kafka.Message
	attempts map[string]int
}

// New connects a consumer group reader and, when a dead letter topic is
// configured, a producer for it.
func New(opts Options, s retry.Strategy) *Source {
	var dl sender
	if opts.DeadLetterTopic != "" {
		dl = wbfkafka.NewProducer(opts.Brokers, opts.DeadLetterTopic)
	}

	return NewSource(wbfkafka.NewConsumer(opts.Brokers, opts.Topic, opts.GroupID), dl, opts.MaxDeliveries, s)
}

// NewSource wraps existing clients. deadLetter may be nil, in which case
// exhausted messages are logged and committed.
func NewSource(client fetcher, deadLetter sender, maxDeliveries int, s retry.Strategy) *Source {
	if s.Attempts < 1 {
		s.Attempts = 1
	}

	return &Source{
		client:        client,
		deadLetter:    deadLetter,
		strategy:      s,
		maxDeliveries: maxDeliveries,
		attempts:      make(map[string]int),
	}
}

// Receive returns a released message first, otherwise fetches the next one.
func (s *Source) Receive(ctx context.Context) (queue.Delivery, error) {
	s.mu.Lock()
	if len(s.released) > 0 {
		msg := s.released[0]
		s.released = s.released[1:]
		d := s.deliveryLocked(msg)
		s.mu.Unlock()
		return d, nil
	}
	s.mu.Unlock()

	msg, err := s.client.Fetch(ctx)
	if err != nil {
		return queue.Delivery{}, fmt.Errorf("failed to fetch message: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.deliveryLocked(msg), nil
}

// Ack commits the message offset.
func (s *Source) Ack(ctx context.Context, d queue.Delivery) error {
	msg, err := message(d)
	if err != nil {
		return err
	}

	if err := s.client.Commit(ctx, msg); err != nil {
		return fmt.Errorf("failed to commit offset %d: %w", msg.Offset, err)
	}

	s.forget(d.ID)

	return nil
}

// Nack releases the message for another attempt, or dead-letters it.
func (s *Source) Nack(ctx context.Context, d queue.Delivery) error {
	msg, err := message(d)
	if err != nil {
		return err
	}

	if s.maxDeliveries <= 0 || d.Attempt < s.maxDeliveries {
		s.mu.Lock()
		s.released = append(s.released, msg)
		s.mu.Unlock()
		return nil
	}

	if s.deadLetter != nil {
		if err := s.deadLetter.SendWithRetry(ctx, s.strategy, msg.Key, msg.Value); err != nil {
			return fmt.Errorf("failed to dead-letter offset %d: %w", msg.Offset, err)
		}
	}

	zlog.Logger.Warn().
		Str("id", d.ID).
		Int("attempts", d.Attempt).
		Bool("dead_letter_topic", s.deadLetter != nil).
		Msg("delivery attempts exhausted")

	return s.Ack(ctx, d)
}

// Close closes the reader and the dead letter producer.
func (s *Source) Close() error {
	err := s.client.Close()
	if s.deadLetter != nil {
		if dlErr := s.deadLetter.Close(); err == nil {
			err = dlErr
		}
	}

	return err
}

func (s *Source) deliveryLocked(msg kafka.Message) queue.Delivery {
	id := messageID(msg)
	s.attempts[id]++

	return queue.Delivery{ID: id, Body: msg.Value, Attempt: s.attempts[id], Ref: msg}
}

func (s *Source) forget(id string) {
	s.mu.Lock()
	delete(s.attempts, id)
	s.mu.Unlock()
}

func messageID(msg kafka.Message) string {
	return fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset)
}

func message(d queue.Delivery) (kafka.Message, error) {
	msg, ok := d.Ref.(kafka.Message)
	if !ok {
		return kafka.Message{}, fmt.Errorf("delivery %s is not a kafka message", d.ID)
	}

	return msg, nil
}
