package model

import "time"

// Status is the processing state of one original object.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusDone    Status = "DONE"
	StatusError   Status = "ERROR"
)

// Terminal reports whether s ends a processing attempt.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// ProcessingStatus is the per-key status record written by the worker.
type ProcessingStatus struct {
	Key       string    `json:"key" dynamodbav:"id"`
	Status    Status    `json:"status" dynamodbav:"status"`
	Message   string    `json:"message" dynamodbav:"message"`
	ThumbKey  string    `json:"thumb_key,omitempty" dynamodbav:"thumb_key,omitempty"`
	UpdatedAt time.Time `json:"updated_at" dynamodbav:"updated_at"`
}
