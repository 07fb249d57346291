package model

import (
	"encoding/json"
	"time"
)

// AuditAction is the kind of change recorded in the audit log.
type AuditAction string

const (
	AuditCreate AuditAction = "CREATE"
	AuditUpdate AuditAction = "UPDATE"
	AuditDelete AuditAction = "DELETE"
)

// PartitionKey returns the audit partition key for the action, e.g. "APP#UPDATE".
func (a AuditAction) PartitionKey() string {
	return "APP#" + string(a)
}

// AuditEntry is one append-only audit record.
type AuditEntry struct {
	PK   string          `json:"pk" dynamodbav:"pk"`
	SK   string          `json:"sk" dynamodbav:"sk"`
	Data json.RawMessage `json:"data" dynamodbav:"-"`
	TS   string          `json:"ts" dynamodbav:"ts"`
}

// NewAuditEntry builds an entry for action with a unique sort key and an
// ISO-8601 timestamp taken from now.
func NewAuditEntry(action AuditAction, id string, data any, now time.Time) (AuditEntry, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return AuditEntry{}, err
	}

	return AuditEntry{
		PK:   action.PartitionKey(),
		SK:   id,
		Data: raw,
		TS:   now.UTC().Format(time.RFC3339Nano),
	}, nil
}
