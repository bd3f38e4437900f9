package workqueue

import (
	"context"
	"sync"

	"sceneflow/internal/scene"
)

// Queue is an unbounded FIFO of scenes shared by one producer and one consumer.
// Push never blocks; Dequeue blocks until a scene is available.
type Queue struct {
	mu     sync.Mutex
	items  []scene.Scene
	notify chan struct{}
	pushed int
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Push appends s to the tail of the queue.
func (q *Queue) Push(s scene.Scene) {
	q.mu.Lock()
	q.items = append(q.items, s)
	q.pushed++
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// PushStop appends the end-of-work sentinel.
func (q *Queue) PushStop() {
	q.Push(scene.Stop())
}

// Dequeue removes and returns the head of the queue, waiting until one is
// pushed or ctx is done.
func (q *Queue) Dequeue(ctx context.Context) (scene.Scene, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			head := q.items[0]
			q.items[0] = scene.Scene{}
			q.items = q.items[1:]
			remaining := len(q.items)
			q.mu.Unlock()
			if remaining > 0 {
				// Keep the signal armed for the next Dequeue.
				select {
				case q.notify <- struct{}{}:
				default:
				}
			}
			return head, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return scene.Scene{}, ctx.Err()
		case <-q.notify:
		}
	}
}

// Len returns the number of queued scenes, including any sentinel.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Pushed returns the total number of scenes ever pushed.
func (q *Queue) Pushed() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pushed
}
