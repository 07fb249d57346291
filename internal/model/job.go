package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidJob is returned when a queue message cannot be turned into a Job.
var ErrInvalidJob = errors.New("invalid job")

// Job identifies one stored original that awaits thumbnailing.
type Job struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// envelope is the notification wrapper used when jobs are fanned out through a topic.
type envelope struct {
	TopicArn string `json:"TopicArn"`
	Message  string `json:"Message"`
}

// Validate reports whether both the bucket and the key are present.
func (j Job) Validate() error {
	if j.Bucket == "" {
		return fmt.Errorf("%w: missing bucket", ErrInvalidJob)
	}
	if j.Key == "" {
		return fmt.Errorf("%w: missing key", ErrInvalidJob)
	}

	return nil
}

// Encode serializes the job into the queue message body.
func (j Job) Encode() ([]byte, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}

	return data, nil
}

// DecodeJob parses a queue message body. Topic envelopes are unwrapped first.
//
// On a validation failure the partially decoded job is still returned, so the
// caller can record the error against the key when one was present.
func DecodeJob(body []byte) (Job, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Job{}, fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}
	if env.TopicArn != "" && env.Message != "" {
		body = []byte(env.Message)
	}

	var job Job
	if err := json.Unmarshal(body, &job); err != nil {
		return Job{}, fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}

	if err := job.Validate(); err != nil {
		return job, err
	}

	return job, nil
}
