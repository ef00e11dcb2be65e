package admission

import (
	"errors"
	"log/slog"
	"sync"
)

var (
	ErrQueueFull   = errors.New("admission queue is full")
	ErrQueueClosed = errors.New("admission queue is closed")
)

// Task is one unit of work bound to a single caller.
type Task func()

type queuedTask struct {
	seq uint64
	run Task
}

// Queue serializes the tasks of one operation class. A single worker drains
// it in submission order and moves to the next task only after the current
// one returns.
type Queue struct {
	class      Class
	maxBacklog int
	logger     *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	pending []queuedTask
	nextSeq uint64
	closed  bool

	done chan struct{}
}

// NewQueue creates the queue and starts its worker. maxBacklog <= 0 means
// the backlog is unbounded.
func NewQueue(class Class, maxBacklog int, logger *slog.Logger) *Queue {
	q := &Queue{
		class:      class,
		maxBacklog: maxBacklog,
		logger:     logger.With(slog.String("operation_class", string(class))),
		done:       make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)

	go q.run()
	return q
}

// Submit enqueues task without waiting for it to run and returns its
// sequence number within the class.
func (q *Queue) Submit(task Task) (uint64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return 0, ErrQueueClosed
	}
	if q.maxBacklog > 0 && len(q.pending) >= q.maxBacklog {
		return 0, ErrQueueFull
	}

	q.nextSeq++
	q.pending = append(q.pending, queuedTask{seq: q.nextSeq, run: task})
	q.cond.Signal()
	return q.nextSeq, nil
}

// Len is the number of tasks waiting to run.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close stops accepting tasks, lets the worker drain what is already queued
// and waits for it to exit.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		q.cond.Broadcast()
	}
	q.mu.Unlock()
	<-q.done
}

func (q *Queue) run() {
	defer close(q.done)

	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.pending) == 0 {
			q.mu.Unlock()
			return
		}
		next := q.pending[0]
		q.pending[0] = queuedTask{}
		q.pending = q.pending[1:]
		q.mu.Unlock()

		q.execute(next)
	}
}

// execute contains a panicking task so the loop always moves on.
func (q *Queue) execute(task queuedTask) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("queued task panicked",
				slog.Uint64("seq", task.seq),
				slog.Any("panic", r),
			)
		}
	}()
	task.run()
}
