package dynamo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aliskhannn/thumbnailer/internal/model"
	"github.com/aliskhannn/thumbnailer/internal/repository/status"
)

type fakeAPI struct {
	items  map[string]map[string]types.AttributeValue
	puts   []*dynamodb.PutItemInput
	putErr error
}

func newFake() *fakeAPI {
	return &fakeAPI{items: map[string]map[string]types.AttributeValue{}}
}

func (f *fakeAPI) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	f.puts = append(f.puts, in)
	if id, ok := in.Item["id"].(*types.AttributeValueMemberS); ok {
		f.items[id.Value] = in.Item
	}
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeAPI) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	id := in.Key["id"].(*types.AttributeValueMemberS).Value
	return &dynamodb.GetItemOutput{Item: f.items[id]}, nil
}

func TestStatusTable_SetGet(t *testing.T) {
	api := newFake()
	tbl := NewStatusTable(api, "kcl-ProcessingStatus")
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

	_, err := tbl.Get(ctx, "uploads/dom.jpg")
	require.ErrorIs(t, err, status.ErrNotFound)

	want := model.ProcessingStatus{
		Key:       "uploads/dom.jpg",
		Status:    model.StatusDone,
		ThumbKey:  "thumb/dom.jpg",
		UpdatedAt: now,
	}
	require.NoError(t, tbl.Set(ctx, want))
	assert.Equal(t, "kcl-ProcessingStatus", aws.ToString(api.puts[0].TableName))

	got, err := tbl.Get(ctx, "uploads/dom.jpg")
	require.NoError(t, err)
	assert.Equal(t, want.Status, got.Status)
	assert.Equal(t, want.ThumbKey, got.ThumbKey)
	assert.True(t, want.UpdatedAt.Equal(got.UpdatedAt))
}

func TestAuditTable_Append(t *testing.T) {
	api := newFake()
	tbl := NewAuditTable(api, "kcl-AuditLogs")

	err := tbl.Append(context.Background(), model.AuditEntry{
		PK:   "APP#UPDATE",
		SK:   "abc",
		Data: []byte(`{"key":"uploads/dom.jpg","status":"DONE"}`),
		TS:   "2025-05-01T10:00:00Z",
	})
	require.NoError(t, err)
	require.Len(t, api.puts, 1)

	item := api.puts[0].Item
	assert.Equal(t, "APP#UPDATE", item["pk"].(*types.AttributeValueMemberS).Value)
	assert.Equal(t, "abc", item["sk"].(*types.AttributeValueMemberS).Value)
	data := item["data"].(*types.AttributeValueMemberM).Value
	assert.Equal(t, "DONE", data["status"].(*types.AttributeValueMemberS).Value)
	assert.Equal(t, "attribute_not_exists(pk)", aws.ToString(api.puts[0].ConditionExpression))
}

func TestAuditTable_AppendError(t *testing.T) {
	api := newFake()
	api.putErr = errors.New("throttled")

	err := NewAuditTable(api, "t").Append(context.Background(), model.AuditEntry{PK: "APP#CREATE", Data: []byte(`{}`)})
	assert.ErrorContains(t, err, "throttled")
}
