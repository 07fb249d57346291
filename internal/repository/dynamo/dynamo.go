// Package dynamo stores processing statuses and audit entries in DynamoDB tables.
//
// The status table is keyed by "id" (the object key). The audit table is keyed
// by "pk" (APP#<ACTION>) and "sk" (a unique id).
package dynamo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/aliskhannn/thumbnailer/internal/model"
	"github.com/aliskhannn/thumbnailer/internal/repository/status"
)

// api is the subset of *dynamodb.Client used by the tables.
type api interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// Options configures the DynamoDB client.
type Options struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// NewClient builds a DynamoDB client from the default credential chain.
func NewClient(ctx context.Context, opts Options) (*dynamodb.Client, error) {
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

	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	}), nil
}

// StatusTable implements the status store on a DynamoDB table.
type StatusTable struct {
	client api
	table  string
}

// NewStatusTable creates a StatusTable.
func NewStatusTable(client api, table string) *StatusTable {
	return &StatusTable{client: client, table: table}
}

// Set overwrites the item for st.Key.
func (t *StatusTable) Set(ctx context.Context, st model.ProcessingStatus) error {
	item, err := attributevalue.MarshalMap(st)
	if err != nil {
		return fmt.Errorf("set: failed to marshal status: %w", err)
	}

	_, err = t.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(t.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("set: failed to save status: %w", err)
	}

	return nil
}

// Get reads the item for key with a strongly consistent read.
func (t *StatusTable) Get(ctx context.Context, key string) (model.ProcessingStatus, error) {
	out, err := t.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(t.table),
		Key:            map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: key}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return model.ProcessingStatus{}, fmt.Errorf("get: failed to get status: %w", err)
	}
	if len(out.Item) == 0 {
		return model.ProcessingStatus{}, status.ErrNotFound
	}

	var st model.ProcessingStatus
	if err := attributevalue.UnmarshalMap(out.Item, &st); err != nil {
		return model.ProcessingStatus{}, fmt.Errorf("get: failed to unmarshal status: %w", err)
	}

	return st, nil
}

// AuditTable implements the audit log on a DynamoDB table.
type AuditTable struct {
	client api
	table  string
}

// NewAuditTable creates an AuditTable.
func NewAuditTable(client api, table string) *AuditTable {
	return &AuditTable{client: client, table: table}
}

// Append puts the entry; a condition on pk keeps existing entries immutable.
func (t *AuditTable) Append(ctx context.Context, e model.AuditEntry) error {
	item, err := attributevalue.MarshalMap(e)
	if err != nil {
		return fmt.Errorf("append: failed to marshal audit entry: %w", err)
	}

	var data any
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return fmt.Errorf("append: invalid audit data: %w", err)
	}

	item["data"], err = attributevalue.Marshal(data)
	if err != nil {
		return fmt.Errorf("append: failed to marshal audit data: %w", err)
	}

	_, err = t.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(t.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(pk)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("append: duplicate audit entry %s/%s", e.PK, e.SK)
		}

		return fmt.Errorf("append: failed to save audit entry: %w", err)
	}

	return nil
}
