package main

import (
	"context"
	"fmt"

	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/thumbnailer/internal/config"
	"github.com/aliskhannn/thumbnailer/internal/migrations"
	"github.com/aliskhannn/thumbnailer/internal/model"
	"github.com/aliskhannn/thumbnailer/internal/queue"
	kafkaqueue "github.com/aliskhannn/thumbnailer/internal/queue/kafka"
	memqueue "github.com/aliskhannn/thumbnailer/internal/queue/memory"
	sqsqueue "github.com/aliskhannn/thumbnailer/internal/queue/sqs"
	auditrepo "github.com/aliskhannn/thumbnailer/internal/repository/audit"
	"github.com/aliskhannn/thumbnailer/internal/repository/dynamo"
	memrepo "github.com/aliskhannn/thumbnailer/internal/repository/memory"
	statusrepo "github.com/aliskhannn/thumbnailer/internal/repository/status"
	"github.com/aliskhannn/thumbnailer/internal/storage/file"
	memstorage "github.com/aliskhannn/thumbnailer/internal/storage/memory"
	s3storage "github.com/aliskhannn/thumbnailer/internal/storage/s3"
)

type blobStore interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) error
	Delete(ctx context.Context, bucket, key string) error
}

type statusStore interface {
	Set(ctx context.Context, st model.ProcessingStatus) error
	Get(ctx context.Context, key string) (model.ProcessingStatus, error)
}

type auditLog interface {
	Append(ctx context.Context, e model.AuditEntry) error
}

type jobSource interface {
	Receive(ctx context.Context) (queue.Delivery, error)
	Ack(ctx context.Context, d queue.Delivery) error
	Nack(ctx context.Context, d queue.Delivery) error
}

type jobPublisher interface {
	Publish(ctx context.Context, job model.Job) error
}

// closers collects resources to release on shutdown, in reverse order.
type closers []func() error

func (c *closers) add(name string, fn func() error) {
	*c = append(*c, func() error {
		if err := fn(); err != nil {
			return fmt.Errorf("failed to close %s: %w", name, err)
		}
		return nil
	})
}

func (c closers) closeAll() {
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			zlog.Logger.Error().Err(err).Msg("shutdown")
		}
	}
}

func newBlobStore(ctx context.Context, cfg config.Storage) (blobStore, error) {
	switch cfg.Backend {
	case "minio":
		return file.NewStorage(ctx, cfg.Endpoint, cfg.AccessKey, cfg.SecretKey, cfg.BucketName, cfg.UseSSL)
	case "s3":
		return s3storage.NewStorage(ctx, s3storage.Options{
			Region:    cfg.Region,
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
		})
	default:
		return memstorage.New(), nil
	}
}

func newRecords(ctx context.Context, cfg config.Records, cl *closers) (statusStore, auditLog, error) {
	switch cfg.Backend {
	case "postgres":
		if cfg.Database.Migrate {
			if err := migrations.Run(ctx, cfg.Database.Master.DSN()); err != nil {
				return nil, nil, err
			}
		}

		// Collect slave DSNs for replica connections.
		slaveDSNs := make([]string, 0, len(cfg.Database.Slaves))
		for _, s := range cfg.Database.Slaves {
			slaveDSNs = append(slaveDSNs, s.DSN())
		}

		db, err := dbpg.New(cfg.Database.Master.DSN(), slaveDSNs, &dbpg.Options{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		cl.add("master db", db.Master.Close)
		for _, s := range db.Slaves {
			cl.add("slave db", s.Close)
		}

		return statusrepo.NewRepository(db.Master), auditrepo.NewRepository(db.Master), nil

	case "dynamodb":
		client, err := dynamo.NewClient(ctx, dynamo.Options{
			Region:    cfg.DynamoDB.AWS.Region,
			Endpoint:  cfg.DynamoDB.AWS.Endpoint,
			AccessKey: cfg.DynamoDB.AWS.AccessKey,
			SecretKey: cfg.DynamoDB.AWS.SecretKey,
		})
		if err != nil {
			return nil, nil, err
		}

		return dynamo.NewStatusTable(client, cfg.DynamoDB.StatusTable), dynamo.NewAuditTable(client, cfg.DynamoDB.AuditTable), nil

	default:
		return memrepo.NewStatusStore(), memrepo.NewAuditLog(), nil
	}
}

// newQueue builds the consumer side when the worker runs and the publishing
// side when the server runs.
func newQueue(ctx context.Context, cfg *config.Config, s retry.Strategy, cl *closers) (jobSource, jobPublisher, error) {
	qc := cfg.Queue

	switch qc.Backend {
	case "kafka":
		var (
			src jobSource
			pub jobPublisher
		)
		if cfg.Worker.Enabled {
			source := kafkaqueue.New(kafkaqueue.Options{
				Brokers:         qc.Kafka.Brokers,
				Topic:           qc.Kafka.Topic,
				GroupID:         qc.Kafka.GroupID,
				DeadLetterTopic: qc.Kafka.DeadLetterTopic,
				MaxDeliveries:   qc.MaxDeliveries,
			}, s)
			cl.add("kafka consumer", source.Close)
			src = source
		}
		if cfg.Server.Enabled {
			publisher := kafkaqueue.NewPublisher(qc.Kafka.Brokers, qc.Kafka.Topic, s)
			cl.add("kafka producer", publisher.Close)
			pub = publisher
		}
		return src, pub, nil

	case "sqs":
		client, err := sqsqueue.NewClient(ctx, sqsqueue.ClientOptions{
			Region:    qc.SQS.AWS.Region,
			Endpoint:  qc.SQS.AWS.Endpoint,
			AccessKey: qc.SQS.AWS.AccessKey,
			SecretKey: qc.SQS.AWS.SecretKey,
		})
		if err != nil {
			return nil, nil, err
		}

		src := sqsqueue.NewSource(client, sqsqueue.Options{
			QueueURL:          qc.SQS.QueueURL,
			WaitTime:          qc.SQS.WaitTime,
			VisibilityTimeout: qc.SQS.VisibilityTimeout,
			MaxMessages:       qc.SQS.MaxMessages,
			RetryDelay:        qc.SQS.RetryDelay,
		})
		return src, sqsqueue.NewPublisher(client, qc.SQS.QueueURL), nil

	default:
		q := memqueue.New(qc.MaxDeliveries)
		cl.add("memory queue", q.Close)
		return q, q, nil
	}
}
