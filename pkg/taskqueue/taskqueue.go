package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/shardkeep/shardkeep/pkg/log"
	"github.com/shardkeep/shardkeep/pkg/metrics"
)

const (
	defaultWorkers = 4
	defaultTimeout = 10 * time.Minute
)

// ErrQueueClosed is returned by AddTask once Close has been called.
var ErrQueueClosed = errors.New("taskqueue: queue is closed")

// ErrNoHandler is returned by AddTask when no handler is registered
// for the task's type.
var ErrNoHandler = errors.New("taskqueue: no handler registered for task type")

// Status is a task's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// HandlerFunc runs a task's payload to completion. emit sends a
// progress message to any OnTaskMessage/OnAnyTaskMessage subscribers;
// it is safe to call zero or many times before returning.
type HandlerFunc func(ctx context.Context, data interface{}, emit func(msg interface{})) (interface{}, error)

// Task is a single unit of queued work and its outcome.
type Task struct {
	ID   string
	Type string
	Data interface{}

	mu     sync.Mutex
	status Status
	result interface{}
	err    error
	done   chan struct{}
}

// GetStatus returns the task's current lifecycle state.
func (t *Task) GetStatus() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Result returns the task's output and error once it has reached a
// terminal state. Before that it returns (nil, nil).
func (t *Task) Result() (interface{}, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result, t.err
}

func (t *Task) isTerminal() bool {
	return t.status == StatusCompleted || t.status == StatusFailed
}

// QueueStatus is a snapshot of the queue's task counts (spec section
// 4.5's getStatus()).
type QueueStatus struct {
	Pending   int
	Running   int
	Completed int
	Failed    int
	Total     int
}

// Config tunes a Queue's concurrency and per-task timeout.
type Config struct {
	Workers        int
	DefaultTimeout time.Duration
}

// Queue is a bounded worker pool dispatching typed tasks to registered
// handlers (spec section 4.5).
type Queue struct {
	timeout time.Duration
	sem     chan struct{}
	logger  zerolog.Logger

	mu       sync.Mutex
	handlers map[string]HandlerFunc
	tasks    map[string]*Task
	closed   bool
	wg       sync.WaitGroup

	nextSubID      uint64
	completeSubs   map[string]map[uint64]func(*Task)
	messageSubs    map[string]map[uint64]func(interface{})
	anyMessageSubs map[uint64]func(taskID string, msg interface{})
}

// New creates a queue with up to cfg.Workers tasks running
// concurrently. Zero values fall back to the package defaults.
func New(cfg Config) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = defaultTimeout
	}
	return &Queue{
		timeout:        cfg.DefaultTimeout,
		sem:            make(chan struct{}, cfg.Workers),
		logger:         log.WithComponent("taskqueue"),
		handlers:       make(map[string]HandlerFunc),
		tasks:          make(map[string]*Task),
		completeSubs:   make(map[string]map[uint64]func(*Task)),
		messageSubs:    make(map[string]map[uint64]func(interface{})),
		anyMessageSubs: make(map[uint64]func(string, interface{})),
	}
}

// RegisterHandler installs the handler for taskType. Handlers must be
// registered before any task of that type is added; the registry is
// not intended to change once the queue is running (spec section 9's
// "global mutable state" note).
func (q *Queue) RegisterHandler(taskType string, h HandlerFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[taskType] = h
}

// AddTask enqueues a task and returns immediately; it runs
// asynchronously, dispatched as soon as a worker slot is free.
func (q *Queue) AddTask(taskType string, data interface{}) (*Task, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, ErrQueueClosed
	}
	handler, ok := q.handlers[taskType]
	if !ok {
		q.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrNoHandler, taskType)
	}
	task := &Task{
		ID:     uuid.NewString(),
		Type:   taskType,
		Data:   data,
		status: StatusPending,
		done:   make(chan struct{}),
	}
	q.tasks[task.ID] = task
	q.mu.Unlock()

	metrics.TaskQueueDepth.Inc()
	q.wg.Add(1)
	go q.run(task, handler)
	return task, nil
}

// AwaitTask enqueues a task and blocks until it completes or ctx is
// done, whichever comes first.
func (q *Queue) AwaitTask(ctx context.Context, taskType string, data interface{}) (*Task, error) {
	task, err := q.AddTask(taskType, data)
	if err != nil {
		return nil, err
	}
	select {
	case <-task.done:
		return task, nil
	case <-ctx.Done():
		return task, ctx.Err()
	}
}

// AwaitAllTasks blocks until every task added so far has reached a
// terminal state, or ctx is done. It does not cancel running tasks
// (spec section 4.5: "awaitAllTasks simply waits for natural
// completion").
func (q *Queue) AwaitAllTasks(ctx context.Context) error {
	allDone := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(allDone)
	}()
	select {
	case <-allDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetStatus returns the current task counts by lifecycle state.
func (q *Queue) GetStatus() QueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()

	var s QueueStatus
	for _, t := range q.tasks {
		switch t.GetStatus() {
		case StatusPending:
			s.Pending++
		case StatusRunning:
			s.Running++
		case StatusCompleted:
			s.Completed++
		case StatusFailed:
			s.Failed++
		}
	}
	s.Total = len(q.tasks)
	return s
}

// Close stops accepting new tasks and waits for in-flight tasks to
// finish (spec section 5: "close() is cooperative ... in-flight
// operations complete first").
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	return q.AwaitAllTasks(ctx)
}

// OnTaskComplete subscribes fn to the completion of the task with
// taskID. If the task has already reached a terminal state, fn fires
// immediately. The returned func removes the subscription.
func (q *Queue) OnTaskComplete(taskID string, fn func(*Task)) func() {
	q.mu.Lock()
	id := q.nextSubID
	q.nextSubID++
	if q.completeSubs[taskID] == nil {
		q.completeSubs[taskID] = make(map[uint64]func(*Task))
	}
	q.completeSubs[taskID][id] = fn
	task, alreadyDone := q.tasks[taskID]
	q.mu.Unlock()

	if alreadyDone {
		task.mu.Lock()
		done := task.isTerminal()
		task.mu.Unlock()
		if done {
			fn(task)
		}
	}
	return func() {
		q.mu.Lock()
		delete(q.completeSubs[taskID], id)
		q.mu.Unlock()
	}
}

// OnTaskMessage subscribes fn to progress messages emitted by the task
// with taskID while it runs. The returned func removes the
// subscription.
func (q *Queue) OnTaskMessage(taskID string, fn func(msg interface{})) func() {
	q.mu.Lock()
	defer q.mu.Unlock()
	id := q.nextSubID
	q.nextSubID++
	if q.messageSubs[taskID] == nil {
		q.messageSubs[taskID] = make(map[uint64]func(interface{}))
	}
	q.messageSubs[taskID][id] = fn
	return func() {
		q.mu.Lock()
		delete(q.messageSubs[taskID], id)
		q.mu.Unlock()
	}
}

// OnAnyTaskMessage subscribes fn to progress messages emitted by any
// task. The returned func removes the subscription.
func (q *Queue) OnAnyTaskMessage(fn func(taskID string, msg interface{})) func() {
	q.mu.Lock()
	defer q.mu.Unlock()
	id := q.nextSubID
	q.nextSubID++
	q.anyMessageSubs[id] = fn
	return func() {
		q.mu.Lock()
		delete(q.anyMessageSubs, id)
		q.mu.Unlock()
	}
}

func (q *Queue) run(task *Task, handler HandlerFunc) {
	defer q.wg.Done()
	defer metrics.TaskQueueDepth.Dec()

	q.sem <- struct{}{}
	defer func() { <-q.sem }()

	task.mu.Lock()
	task.status = StatusRunning
	task.mu.Unlock()

	logger := log.WithTaskID(task.ID)
	logger.Debug().Str("type", task.Type).Msg("task started")

	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	timer := metrics.NewTimer()
	result, err := handler(ctx, task.Data, func(msg interface{}) { q.notifyMessage(task.ID, msg) })
	timer.ObserveDuration(metrics.TaskDuration)

	task.mu.Lock()
	if err != nil {
		task.status = StatusFailed
		task.err = err
	} else {
		task.status = StatusCompleted
		task.result = result
	}
	task.mu.Unlock()
	close(task.done)

	status := "success"
	if err != nil {
		status = "error"
		if errors.Is(err, context.DeadlineExceeded) {
			status = "timeout"
		}
		logger.Error().Err(err).Msg("task failed")
	} else {
		logger.Debug().Msg("task completed")
	}
	metrics.TasksCompletedTotal.WithLabelValues(status).Inc()

	q.notifyComplete(task)
}

func (q *Queue) notifyComplete(task *Task) {
	q.mu.Lock()
	subs := make([]func(*Task), 0, len(q.completeSubs[task.ID]))
	for _, fn := range q.completeSubs[task.ID] {
		subs = append(subs, fn)
	}
	q.mu.Unlock()
	for _, fn := range subs {
		fn(task)
	}
}

func (q *Queue) notifyMessage(taskID string, msg interface{}) {
	q.mu.Lock()
	subs := make([]func(interface{}), 0, len(q.messageSubs[taskID]))
	for _, fn := range q.messageSubs[taskID] {
		subs = append(subs, fn)
	}
	anySubs := make([]func(string, interface{}), 0, len(q.anyMessageSubs))
	for _, fn := range q.anyMessageSubs {
		anySubs = append(anySubs, fn)
	}
	q.mu.Unlock()

	for _, fn := range subs {
		fn(msg)
	}
	for _, fn := range anySubs {
		fn(taskID, msg)
	}
}
