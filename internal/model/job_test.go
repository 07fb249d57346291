package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJob(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    Job
		wantErr bool
	}{
		{
			name: "plain body",
			body: `{"bucket":"biblioteca-kcl","key":"uploads/dom.jpg"}`,
			want: Job{Bucket: "biblioteca-kcl", Key: "uploads/dom.jpg"},
		},
		{
			name: "extra fields are ignored",
			body: `{"book_id":"7","bucket":"b","key":"uploads/a.png"}`,
			want: Job{Bucket: "b", Key: "uploads/a.png"},
		},
		{
			name: "topic envelope",
			body: `{"TopicArn":"arn:aws:sns:us-east-1:1:t","Message":"{\"bucket\":\"b\",\"key\":\"uploads/x.jpg\"}"}`,
			want: Job{Bucket: "b", Key: "uploads/x.jpg"},
		},
		{
			name:    "missing key",
			body:    `{"bucket":"b"}`,
			want:    Job{Bucket: "b"},
			wantErr: true,
		},
		{
			name:    "missing bucket keeps the key",
			body:    `{"key":"uploads/y.jpg"}`,
			want:    Job{Key: "uploads/y.jpg"},
			wantErr: true,
		},
		{
			name:    "not json",
			body:    `hello`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeJob([]byte(tt.body))
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidJob)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJobEncodeDecode(t *testing.T) {
	job := Job{Bucket: "b", Key: "uploads/k.jpg"}

	body, err := job.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"bucket":"b","key":"uploads/k.jpg"}`, string(body))

	got, err := DecodeJob(body)
	require.NoError(t, err)
	assert.Equal(t, job, got)
}

func TestNewAuditEntry(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 5, time.FixedZone("x", 3600))

	e, err := NewAuditEntry(AuditUpdate, "id-1", map[string]string{"key": "k", "status": "DONE"}, now)
	require.NoError(t, err)

	assert.Equal(t, "APP#UPDATE", e.PK)
	assert.Equal(t, "id-1", e.SK)
	assert.Equal(t, "2025-03-01T11:00:00.000000005Z", e.TS)
	assert.JSONEq(t, `{"key":"k","status":"DONE"}`, string(e.Data))
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.True(t, StatusDone.Terminal())
	assert.True(t, StatusError.Terminal())
}
