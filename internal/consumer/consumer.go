// Package consumer pulls deliveries from a job source and hands them to the worker.
package consumer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/thumbnailer/internal/model"
	"github.com/aliskhannn/thumbnailer/internal/queue"
)

// source is the job queue the consumer reads from.
type source interface {
	Receive(ctx context.Context) (queue.Delivery, error)
	Ack(ctx context.Context, d queue.Delivery) error
	Nack(ctx context.Context, d queue.Delivery) error
}

// handler processes decoded jobs and records undecodable ones.
type handler interface {
	Handle(ctx context.Context, job model.Job) error
	Reject(ctx context.Context, job model.Job, body []byte, cause error) error
}

// Options configures the consumer.
type Options struct {
	Concurrency int
	// Backoff is the pause after a receive failure that outlived its retries.
	Backoff time.Duration
	// AckTimeout bounds ack and nack calls, which run even during shutdown.
	AckTimeout time.Duration
}

// Consumer runs a fixed number of independent receive loops.
type Consumer struct {
	source   source
	handler  handler
	strategy retry.Strategy
	opts     Options
}

// New creates a new Consumer.
func New(src source, h handler, s retry.Strategy, opts Options) *Consumer {
	if s.Attempts < 1 {
		s.Attempts = 1
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 500 * time.Millisecond
	}
	if opts.AckTimeout <= 0 {
		opts.AckTimeout = 5 * time.Second
	}

	return &Consumer{source: src, handler: h, strategy: s, opts: opts}
}

// Run starts the receive loops and blocks until all of them have stopped,
// which happens once ctx is canceled.
func (c *Consumer) Run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	zlog.Logger.Info().
		Int("concurrency", c.opts.Concurrency).
		Msg("starting consumer")

	var loops sync.WaitGroup
	for i := 0; i < c.opts.Concurrency; i++ {
		loops.Add(1)
		go func(id int) {
			defer loops.Done()
			c.loop(ctx, id)
		}(i)
	}

	loops.Wait()
	zlog.Logger.Info().Msg("consumer stopped")
}

func (c *Consumer) loop(ctx context.Context, id int) {
	for {
		if ctx.Err() != nil {
			return
		}

		d, ok, stopped := c.receive(ctx, id)
		if stopped {
			return
		}
		if !ok {
			sleep(ctx, c.opts.Backoff)
			continue
		}

		c.process(ctx, d)
	}
}

// receive fetches the next delivery with retries. Retrying stops as soon as
// ctx is done or the source is closed, which is reported through stopped.
func (c *Consumer) receive(ctx context.Context, id int) (d queue.Delivery, ok, stopped bool) {
	err := retry.Do(func() error {
		if ctx.Err() != nil {
			stopped = true
			return nil
		}

		var recvErr error
		d, recvErr = c.source.Receive(ctx)
		switch {
		case recvErr == nil:
			ok = true
		case ctx.Err() != nil || errors.Is(recvErr, queue.ErrClosed):
			stopped = true
			return nil
		}

		return recvErr
	}, c.strategy)

	if stopped {
		return queue.Delivery{}, false, true
	}
	if err != nil {
		zlog.Logger.Error().Err(err).Int("loop", id).Msg("failed to receive job")
	}

	return d, ok, false
}

// process handles one delivery and settles it: acked when handled for good,
// released when the failure may go away on redelivery.
func (c *Consumer) process(ctx context.Context, d queue.Delivery) {
	job, err := model.DecodeJob(d.Body)
	if err != nil {
		err = c.handler.Reject(ctx, job, d.Body, err)
	} else {
		err = c.handler.Handle(ctx, job)
	}

	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.AckTimeout)
	defer cancel()

	if err != nil {
		zlog.Logger.Warn().
			Err(err).
			Str("id", d.ID).
			Int("attempt", d.Attempt).
			Msg("releasing job for redelivery")

		if nackErr := c.source.Nack(settleCtx, d); nackErr != nil {
			zlog.Logger.Error().Err(nackErr).Str("id", d.ID).Msg("failed to release job")
		}
		return
	}

	if ackErr := c.source.Ack(settleCtx, d); ackErr != nil {
		zlog.Logger.Error().Err(ackErr).Str("id", d.ID).Msg("failed to acknowledge job")
		return
	}

	zlog.Logger.Debug().
		Str("id", d.ID).
		Str("key", job.Key).
		Msg("job acknowledged")
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
