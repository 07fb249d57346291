// Package sqs carries jobs over an Amazon SQS queue.
//
// Redelivery relies on the visibility timeout: a released message is made
// visible again after RetryDelay, and the queue's redrive policy moves it to
// the dead letter queue once its receive count exceeds the configured limit.
package sqs

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/aliskhannn/thumbnailer/internal/queue"
)

// api is the subset of *sqs.Client used by Source and Publisher.
type api interface {
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, in *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// ClientOptions configures the SQS client.
type ClientOptions struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// Options configures polling.
type Options struct {
	QueueURL          string
	WaitTime          time.Duration
	VisibilityTimeout time.Duration
	MaxMessages       int
	RetryDelay        time.Duration
}

// NewClient builds an SQS client from the default credential chain.
func NewClient(ctx context.Context, opts ClientOptions) (*sqs.Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	return sqs.NewFromConfig(cfg, func(o *sqs.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	}), nil
}

// Source long-polls the queue. Messages from one poll are buffered and
// handed out one per Receive call.
type Source struct {
	client api
	opts   Options

	mu      sync.Mutex
	pending []types.Message
}

// NewSource creates a Source. MaxMessages is clamped to the SQS range 1..10.
func NewSource(client api, opts Options) *Source {
	if opts.MaxMessages < 1 {
		opts.MaxMessages = 1
	}
	if opts.MaxMessages > 10 {
		opts.MaxMessages = 10
	}

	return &Source{client: client, opts: opts}
}

// Receive blocks until a message arrives or ctx is done.
func (s *Source) Receive(ctx context.Context) (queue.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.pending) == 0 {
		if err := ctx.Err(); err != nil {
			return queue.Delivery{}, err
		}

		out, err := s.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(s.opts.QueueURL),
			MaxNumberOfMessages: int32(s.opts.MaxMessages),
			WaitTimeSeconds:     seconds(s.opts.WaitTime),
			VisibilityTimeout:   seconds(s.opts.VisibilityTimeout),
			MessageSystemAttributeNames: []types.MessageSystemAttributeName{
				types.MessageSystemAttributeNameApproximateReceiveCount,
			},
		})
		if err != nil {
			return queue.Delivery{}, fmt.Errorf("failed to receive messages: %w", err)
		}

		s.pending = out.Messages
	}

	msg := s.pending[0]
	s.pending = s.pending[1:]

	attempt, err := strconv.Atoi(msg.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)])
	if err != nil || attempt < 1 {
		attempt = 1
	}

	return queue.Delivery{
		ID:      aws.ToString(msg.MessageId),
		Body:    []byte(aws.ToString(msg.Body)),
		Attempt: attempt,
		Ref:     aws.ToString(msg.ReceiptHandle),
	}, nil
}

// Ack deletes the message.
func (s *Source) Ack(ctx context.Context, d queue.Delivery) error {
	handle, err := receiptHandle(d)
	if err != nil {
		return err
	}

	_, err = s.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(s.opts.QueueURL),
		ReceiptHandle: aws.String(handle),
	})
	if err != nil {
		return fmt.Errorf("failed to delete message %s: %w", d.ID, err)
	}

	return nil
}

// Nack makes the message visible again after RetryDelay.
func (s *Source) Nack(ctx context.Context, d queue.Delivery) error {
	handle, err := receiptHandle(d)
	if err != nil {
		return err
	}

	_, err = s.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(s.opts.QueueURL),
		ReceiptHandle:     aws.String(handle),
		VisibilityTimeout: seconds(s.opts.RetryDelay),
	})
	if err != nil {
		return fmt.Errorf("failed to release message %s: %w", d.ID, err)
	}

	return nil
}

func receiptHandle(d queue.Delivery) (string, error) {
	handle, ok := d.Ref.(string)
	if !ok || handle == "" {
		return "", fmt.Errorf("delivery %s has no receipt handle", d.ID)
	}

	return handle, nil
}

func seconds(d time.Duration) int32 {
	return int32(d / time.Second)
}
