// Package queue defines the delivery unit shared by the job queue backends.
package queue

import "errors"

// ErrClosed is returned by Receive once a source has been closed.
var ErrClosed = errors.New("queue closed")

// Delivery is one received message.
//
// Attempt starts at 1 and grows every time the same message is delivered
// again. Ref is the backend handle needed to ack or release the message.
type Delivery struct {
	ID      string
	Body    []byte
	Attempt int
	Ref     any
}
