package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/aliskhannn/thumbnailer/internal/model"
)

// retriable is implemented by errors that know whether a redelivery can help.
type retriable interface {
	Retriable() bool
}

// IsRetriable reports whether the job that produced err should be left
// unacknowledged so the queue delivers it again.
func IsRetriable(err error) bool {
	if err == nil {
		return false
	}

	var r retriable
	if errors.As(err, &r) {
		return r.Retriable()
	}

	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

// InvalidJobError means the message did not describe a job.
type InvalidJobError struct {
	Err error
}

func (e *InvalidJobError) Error() string   { return fmt.Sprintf("invalid job: %v", e.Err) }
func (e *InvalidJobError) Unwrap() error   { return e.Err }
func (e *InvalidJobError) Retriable() bool { return false }

// FetchError means the original could not be downloaded.
// A missing object is final, an unreachable store is not.
type FetchError struct {
	Key     string
	Missing bool
	Err     error
}

func (e *FetchError) Error() string {
	if e.Missing {
		return fmt.Sprintf("original %s not found: %v", e.Key, e.Err)
	}

	return fmt.Sprintf("failed to fetch original %s: %v", e.Key, e.Err)
}

func (e *FetchError) Unwrap() error   { return e.Err }
func (e *FetchError) Retriable() bool { return !e.Missing }

// TransformError means the original is not a decodable image.
type TransformError struct {
	Key string
	Err error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("failed to transform %s: %v", e.Key, e.Err)
}

func (e *TransformError) Unwrap() error   { return e.Err }
func (e *TransformError) Retriable() bool { return false }

// StoreWriteError means the thumbnail could not be written.
type StoreWriteError struct {
	Key string
	Err error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("failed to store thumbnail %s: %v", e.Key, e.Err)
}

func (e *StoreWriteError) Unwrap() error   { return e.Err }
func (e *StoreWriteError) Retriable() bool { return true }

// StatusStoreError means a status record could not be written.
// The job is redelivered so the record converges.
type StatusStoreError struct {
	Key    string
	Status model.Status
	Err    error
}

func (e *StatusStoreError) Error() string {
	return fmt.Sprintf("failed to set status %s for %s: %v", e.Status, e.Key, e.Err)
}

func (e *StatusStoreError) Unwrap() error   { return e.Err }
func (e *StatusStoreError) Retriable() bool { return true }

// AuditLogError means an audit entry could not be appended. It is logged and
// never causes a redelivery.
type AuditLogError struct {
	Key string
	Err error
}

func (e *AuditLogError) Error() string {
	return fmt.Sprintf("failed to append audit entry for %s: %v", e.Key, e.Err)
}

func (e *AuditLogError) Unwrap() error   { return e.Err }
func (e *AuditLogError) Retriable() bool { return false }
