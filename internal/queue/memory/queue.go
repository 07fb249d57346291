// Package memory is an in-process job queue with bounded redelivery.
package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/aliskhannn/thumbnailer/internal/model"
	"github.com/aliskhannn/thumbnailer/internal/queue"
)

type message struct {
	id   string
	body []byte
}

// Queue is safe for concurrent use by any number of producers and receivers.
type Queue struct {
	maxDeliveries int

	mu       sync.Mutex
	ready    []message
	attempts map[string]int
	dead     [][]byte
	acked    int
	seq      int
	closed   bool

	signal chan struct{}
}

// New creates a queue. A message released more than maxDeliveries times
// goes to the dead letter list; zero means unlimited.
func New(maxDeliveries int) *Queue {
	return &Queue{
		maxDeliveries: maxDeliveries,
		attempts:      make(map[string]int),
		signal:        make(chan struct{}, 1),
	}
}

// Publish enqueues the job.
func (q *Queue) Publish(_ context.Context, job model.Job) error {
	body, err := job.Encode()
	if err != nil {
		return err
	}

	return q.Send(body)
}

// Send enqueues a raw message body.
func (q *Queue) Send(body []byte) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return queue.ErrClosed
	}
	q.seq++
	q.ready = append(q.ready, message{id: strconv.Itoa(q.seq), body: body})
	q.notifyLocked()
	q.mu.Unlock()

	return nil
}

// Receive blocks until a message is available or ctx is done.
func (q *Queue) Receive(ctx context.Context) (queue.Delivery, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return queue.Delivery{}, queue.ErrClosed
		}
		if len(q.ready) > 0 {
			msg := q.ready[0]
			q.ready = q.ready[1:]
			q.attempts[msg.id]++
			d := queue.Delivery{ID: msg.id, Body: msg.body, Attempt: q.attempts[msg.id], Ref: msg}
			if len(q.ready) > 0 {
				q.notifyLocked()
			}
			q.mu.Unlock()

			return d, nil
		}
		q.mu.Unlock()

		select {
		case <-q.signal:
		case <-ctx.Done():
			return queue.Delivery{}, ctx.Err()
		}
	}
}

// Ack removes the message for good.
func (q *Queue) Ack(_ context.Context, d queue.Delivery) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.attempts[d.ID]; !ok {
		return fmt.Errorf("unknown delivery %s", d.ID)
	}
	delete(q.attempts, d.ID)
	q.acked++

	return nil
}

// Nack makes the message available again, or dead-letters it once it has
// been delivered maxDeliveries times.
func (q *Queue) Nack(_ context.Context, d queue.Delivery) error {
	msg, ok := d.Ref.(message)
	if !ok {
		return fmt.Errorf("delivery %s does not belong to this queue", d.ID)
	}

	q.mu.Lock()
	if q.maxDeliveries > 0 && q.attempts[d.ID] >= q.maxDeliveries {
		delete(q.attempts, d.ID)
		q.dead = append(q.dead, msg.body)
		q.mu.Unlock()
		return nil
	}
	q.ready = append(q.ready, msg)
	q.notifyLocked()
	q.mu.Unlock()

	return nil
}

// Close wakes blocked receivers; later calls to Receive return queue.ErrClosed.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.signal)
	}

	return nil
}

// Len returns the number of messages waiting to be received.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready)
}

// Acked returns the number of acknowledged messages.
func (q *Queue) Acked() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.acked
}

// Dead returns the dead-lettered bodies in order.
func (q *Queue) Dead() [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([][]byte(nil), q.dead...)
}

// notifyLocked wakes one receiver. q.mu must be held.
func (q *Queue) notifyLocked() {
	if q.closed {
		return
	}
	select {
	case q.signal <- struct{}{}:
	default:
	}
}
