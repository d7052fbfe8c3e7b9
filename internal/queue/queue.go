// Package queue carries "model ready" notifications from the API to the
// processing workers.
//
// The queue is only a wake-up signal: the database row stays the source of
// truth, workers claim models atomically and also poll, so a lost or
// duplicated message never loses or double-processes a model.
package queue

import (
	"context"
	"errors"
)

// ErrClosed is returned by Pop after Close.
var ErrClosed = errors.New("queue closed")

// Queue delivers model ids to workers.
type Queue interface {
	// Push enqueues a model id without blocking on consumers.
	Push(ctx context.Context, modelID string) error
	// Pop blocks until an id is available, ctx is done or the queue is closed.
	Pop(ctx context.Context) (string, error)
	// Depth reports how many ids are waiting.
	Depth(ctx context.Context) (int64, error)
	Close() error
}

// MemoryQueue is an in-process Queue backed by a buffered channel. When the
// buffer is full Push drops the id; the worker poll picks the model up.
type MemoryQueue struct {
	ch     chan string
	closed chan struct{}
}

// NewMemoryQueue creates an in-process queue with the given buffer size.
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 256
	}
	return &MemoryQueue{
		ch:     make(chan string, size),
		closed: make(chan struct{}),
	}
}

func (q *MemoryQueue) Push(ctx context.Context, modelID string) error {
	select {
	case <-q.closed:
		return ErrClosed
	default:
	}
	select {
	case q.ch <- modelID:
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	return nil
}

func (q *MemoryQueue) Pop(ctx context.Context) (string, error) {
	select {
	case id := <-q.ch:
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-q.closed:
		return "", ErrClosed
	}
}

// Close unblocks every Pop. It must be called at most once.
func (q *MemoryQueue) Close() error {
	close(q.closed)
	return nil
}

func (q *MemoryQueue) Depth(context.Context) (int64, error) {
	return int64(len(q.ch)), nil
}
