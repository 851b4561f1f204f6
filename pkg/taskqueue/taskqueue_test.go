package taskqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoHandler(ctx context.Context, data interface{}, emit func(interface{})) (interface{}, error) {
	return data, nil
}

func TestAwaitTaskReturnsHandlerResult(t *testing.T) {
	q := New(Config{Workers: 2})
	q.RegisterHandler("echo", echoHandler)

	task, err := q.AwaitTask(context.Background(), "echo", "hello")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, task.GetStatus())
	result, taskErr := task.Result()
	require.NoError(t, taskErr)
	assert.Equal(t, "hello", result)
}

func TestAddTaskUnknownTypeFails(t *testing.T) {
	q := New(Config{})
	_, err := q.AddTask("nope", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoHandler))
}

func TestHandlerErrorMarksTaskFailed(t *testing.T) {
	q := New(Config{Workers: 1})
	boom := errors.New("boom")
	q.RegisterHandler("fail", func(ctx context.Context, data interface{}, emit func(interface{})) (interface{}, error) {
		return nil, boom
	})

	task, err := q.AwaitTask(context.Background(), "fail", nil)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, task.GetStatus())
	_, taskErr := task.Result()
	assert.ErrorIs(t, taskErr, boom)
}

func TestConcurrencyBoundedByWorkers(t *testing.T) {
	const workers = 3
	q := New(Config{Workers: workers})

	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0
	release := make(chan struct{})
	q.RegisterHandler("slow", func(ctx context.Context, data interface{}, emit func(interface{})) (interface{}, error) {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()

		<-release

		mu.Lock()
		inFlight--
		mu.Unlock()
		return nil, nil
	})

	for i := 0; i < workers*3; i++ {
		_, err := q.AddTask("slow", nil)
		require.NoError(t, err)
	}

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	observed := maxInFlight
	mu.Unlock()
	assert.LessOrEqual(t, observed, workers)

	close(release)
	require.NoError(t, q.AwaitAllTasks(context.Background()))

	status := q.GetStatus()
	assert.Equal(t, workers*3, status.Total)
	assert.Equal(t, workers*3, status.Completed)
}

func TestOnTaskCompleteFiresOnceTerminal(t *testing.T) {
	q := New(Config{Workers: 1})
	q.RegisterHandler("echo", echoHandler)

	var called int32
	task, err := q.AddTask("echo", 42)
	require.NoError(t, err)

	unsubscribe := q.OnTaskComplete(task.ID, func(done *Task) {
		atomic.AddInt32(&called, 1)
	})
	defer unsubscribe()

	require.NoError(t, q.AwaitAllTasks(context.Background()))
	assert.Equal(t, int32(1), atomic.LoadInt32(&called))

	// Subscribing after completion fires immediately exactly once.
	var calledAfter int32
	q.OnTaskComplete(task.ID, func(done *Task) { atomic.AddInt32(&calledAfter, 1) })
	assert.Equal(t, int32(1), atomic.LoadInt32(&calledAfter))
}

func TestOnTaskMessageAndOnAnyTaskMessage(t *testing.T) {
	q := New(Config{Workers: 1})
	q.RegisterHandler("chatty", func(ctx context.Context, data interface{}, emit func(interface{})) (interface{}, error) {
		emit("progress 1")
		emit("progress 2")
		return nil, nil
	})

	var direct []interface{}
	var any []string
	var mu sync.Mutex

	task, err := q.AddTask("chatty", nil)
	require.NoError(t, err)

	q.OnTaskMessage(task.ID, func(msg interface{}) {
		mu.Lock()
		direct = append(direct, msg)
		mu.Unlock()
	})
	q.OnAnyTaskMessage(func(taskID string, msg interface{}) {
		mu.Lock()
		any = append(any, taskID)
		mu.Unlock()
	})

	require.NoError(t, q.AwaitAllTasks(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, direct, 2)
	assert.Len(t, any, 2)
}

func TestCloseRejectsNewTasksAfterInFlightFinish(t *testing.T) {
	q := New(Config{Workers: 1})
	q.RegisterHandler("echo", echoHandler)

	_, err := q.AddTask("echo", 1)
	require.NoError(t, err)

	require.NoError(t, q.Close(context.Background()))

	_, err = q.AddTask("echo", 2)
	require.ErrorIs(t, err, ErrQueueClosed)
}

func TestAwaitTaskRespectsContextTimeout(t *testing.T) {
	q := New(Config{Workers: 1})
	block := make(chan struct{})
	q.RegisterHandler("stuck", func(ctx context.Context, data interface{}, emit func(interface{})) (interface{}, error) {
		<-block
		return nil, nil
	})
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := q.AwaitTask(ctx, "stuck", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
