package sqs

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/aliskhannn/thumbnailer/internal/model"
)

// Publisher sends jobs to a queue.
type Publisher struct {
	client   api
	queueURL string
}

// NewPublisher creates a Publisher for queueURL.
func NewPublisher(client api, queueURL string) *Publisher {
	return &Publisher{client: client, queueURL: queueURL}
}

// Publish sends the job as the message body.
func (p *Publisher) Publish(ctx context.Context, job model.Job) error {
	data, err := job.Encode()
	if err != nil {
		return err
	}

	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(data)),
	})
	if err != nil {
		return fmt.Errorf("failed to send job: %w", err)
	}

	return nil
}
