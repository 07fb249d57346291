package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/retry"

	"github.com/aliskhannn/thumbnailer/internal/model"
)

type fakeConsumer struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	fetchErr  error
	commitErr error
	committed []int64
	closed    bool
}

func (f *fakeConsumer) Fetch(context.Context) (kafka.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fetchErr != nil {
		return kafka.Message{}, f.fetchErr
	}
	if len(f.msgs) == 0 {
		return kafka.Message{}, errors.New("no messages")
	}
	msg := f.msgs[0]
	f.msgs = f.msgs[1:]
	return msg, nil
}

func (f *fakeConsumer) Commit(_ context.Context, msg kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.commitErr != nil {
		return f.commitErr
	}
	f.committed = append(f.committed, msg.Offset)
	return nil
}

func (f *fakeConsumer) Close() error {
	f.closed = true
	return nil
}

type fakeProducer struct {
	strategies []retry.Strategy
	keys       [][]byte
	values     [][]byte
	err        error
	closed     bool
}

func (f *fakeProducer) SendWithRetry(_ context.Context, s retry.Strategy, key, value []byte) error {
	f.strategies = append(f.strategies, s)
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, key)
	f.values = append(f.values, value)
	return nil
}

func (f *fakeProducer) Close() error {
	f.closed = true
	return nil
}

var strategy = retry.Strategy{Attempts: 1, Delay: time.Millisecond, Backoff: 1}

func msg(offset int64, value string) kafka.Message {
	return kafka.Message{Topic: "jobs", Partition: 0, Offset: offset, Key: []byte("k"), Value: []byte(value)}
}

func TestSource_ReceiveAck(t *testing.T) {
	c := &fakeConsumer{msgs: []kafka.Message{msg(7, "a")}}
	s := NewSource(c, nil, 3, strategy)

	d, err := s.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "jobs/0/7", d.ID)
	assert.Equal(t, []byte("a"), d.Body)
	assert.Equal(t, 1, d.Attempt)

	require.NoError(t, s.Ack(context.Background(), d))
	assert.Equal(t, []int64{7}, c.committed)
}

func TestSource_NackRedeliversLocally(t *testing.T) {
	c := &fakeConsumer{msgs: []kafka.Message{msg(1, "a"), msg(2, "b")}}
	s := NewSource(c, nil, 3, strategy)
	ctx := context.Background()

	d, err := s.Receive(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Nack(ctx, d))
	assert.Empty(t, c.committed)

	again, err := s.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, d.ID, again.ID)
	assert.Equal(t, 2, again.Attempt)

	next, err := s.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), next.Body)
}

func TestSource_NackExhaustedGoesToDeadLetter(t *testing.T) {
	c := &fakeConsumer{msgs: []kafka.Message{msg(4, "poison")}}
	dl := &fakeProducer{}
	s := NewSource(c, dl, 2, strategy)
	ctx := context.Background()

	d, err := s.Receive(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Nack(ctx, d))

	d, err = s.Receive(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Nack(ctx, d))

	assert.Equal(t, [][]byte{[]byte("poison")}, dl.values)
	assert.Equal(t, []int64{4}, c.committed)
}

func TestSource_DeadLetterFailureKeepsOffset(t *testing.T) {
	c := &fakeConsumer{msgs: []kafka.Message{msg(4, "poison")}}
	dl := &fakeProducer{err: errors.New("broker down")}
	s := NewSource(c, dl, 1, strategy)
	ctx := context.Background()

	d, err := s.Receive(ctx)
	require.NoError(t, err)
	assert.Error(t, s.Nack(ctx, d))
	assert.Empty(t, c.committed)
}

func TestSource_Errors(t *testing.T) {
	c := &fakeConsumer{fetchErr: errors.New("coordinator not available")}
	s := NewSource(c, nil, 0, strategy)

	_, err := s.Receive(context.Background())
	assert.ErrorContains(t, err, "failed to fetch message")

	c.fetchErr = nil
	c.msgs = []kafka.Message{msg(1, "a")}
	c.commitErr = errors.New("rebalance in progress")
	d, err := s.Receive(context.Background())
	require.NoError(t, err)
	assert.ErrorContains(t, s.Ack(context.Background(), d), "failed to commit offset 1")
}

func TestSource_Close(t *testing.T) {
	c := &fakeConsumer{}
	dl := &fakeProducer{}
	require.NoError(t, NewSource(c, dl, 1, strategy).Close())
	assert.True(t, c.closed)
	assert.True(t, dl.closed)
}

func TestPublisher_Publish(t *testing.T) {
	p := &fakeProducer{}
	pub := NewPublisherWithClient(p, strategy)

	require.NoError(t, pub.Publish(context.Background(), model.Job{Bucket: "b", Key: "uploads/a.jpg"}))
	require.Len(t, p.values, 1)
	assert.Equal(t, []byte("uploads/a.jpg"), p.keys[0])

	job, err := model.DecodeJob(p.values[0])
	require.NoError(t, err)
	assert.Equal(t, model.Job{Bucket: "b", Key: "uploads/a.jpg"}, job)

	p.err = errors.New("broker down")
	assert.ErrorContains(t, pub.Publish(context.Background(), model.Job{Bucket: "b", Key: "k"}), "failed to send job")
}

func TestZeroAttemptsAreClamped(t *testing.T) {
	zero := retry.Strategy{Delay: time.Millisecond}

	p := &fakeProducer{}
	require.NoError(t, NewPublisherWithClient(p, zero).Publish(context.Background(), model.Job{Bucket: "b", Key: "k"}))

	c := &fakeConsumer{msgs: []kafka.Message{msg(3, "poison")}}
	dl := &fakeProducer{}
	s := NewSource(c, dl, 1, zero)
	d, err := s.Receive(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.Nack(context.Background(), d))

	for _, got := range append(p.strategies, dl.strategies...) {
		assert.Equal(t, 1, got.Attempts)
	}
	assert.Len(t, dl.strategies, 1)
}
