package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/storyagent/internal/services/story"
)

type countingAnalyzer struct {
	calls   atomic.Int32
	release chan struct{}
	panicOn string

	mu  sync.Mutex
	ids []string
}

func (a *countingAnalyzer) Analyze(ctx context.Context, req story.Request) story.Response {
	if a.release != nil {
		<-a.release
	}
	a.calls.Add(1)
	a.mu.Lock()
	a.ids = append(a.ids, req.RecordID)
	a.mu.Unlock()
	if req.RecordID == a.panicOn {
		panic("analysis exploded")
	}
	return story.Response{StatusCode: 200, Body: story.ResponseBody{Success: true, Emiten: req.Emiten}}
}

func TestWorkerPool_ProcessesSubmittedRequests(t *testing.T) {
	analyzer := &countingAnalyzer{}
	pool := NewWorkerPool(analyzer, arbor.NewNoOpLogger(), 2, 8)
	pool.Start()

	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, pool.Submit(story.Request{Emiten: "BBCA", RecordID: id}))
	}

	require.NoError(t, pool.Stop(context.Background()))
	assert.Equal(t, int32(3), analyzer.calls.Load())
	assert.ElementsMatch(t, []string{"1", "2", "3"}, analyzer.ids)
}

func TestWorkerPool_QueueFull(t *testing.T) {
	analyzer := &countingAnalyzer{release: make(chan struct{})}
	pool := NewWorkerPool(analyzer, arbor.NewNoOpLogger(), 1, 1)
	pool.Start()

	// First request occupies the worker, second fills the queue
	require.NoError(t, pool.Submit(story.Request{Emiten: "BBCA", RecordID: "1"}))
	require.Eventually(t, func() bool { return len(pool.jobs) == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, pool.Submit(story.Request{Emiten: "BBCA", RecordID: "2"}))

	assert.ErrorIs(t, pool.Submit(story.Request{Emiten: "BBCA", RecordID: "3"}), ErrQueueFull)

	close(analyzer.release)
	require.NoError(t, pool.Stop(context.Background()))
	assert.Equal(t, int32(2), analyzer.calls.Load())
}

func TestWorkerPool_SubmitAfterStop(t *testing.T) {
	pool := NewWorkerPool(&countingAnalyzer{}, arbor.NewNoOpLogger(), 1, 1)
	pool.Start()
	require.NoError(t, pool.Stop(context.Background()))

	assert.ErrorIs(t, pool.Submit(story.Request{Emiten: "BBCA", RecordID: "1"}), ErrPoolStopped)
	assert.NoError(t, pool.Stop(context.Background()))
}

func TestWorkerPool_StopTimeout(t *testing.T) {
	analyzer := &countingAnalyzer{release: make(chan struct{})}
	pool := NewWorkerPool(analyzer, arbor.NewNoOpLogger(), 1, 1)
	pool.Start()
	require.NoError(t, pool.Submit(story.Request{Emiten: "BBCA", RecordID: "1"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, pool.Stop(ctx), context.DeadlineExceeded)

	close(analyzer.release)
}

func TestWorkerPool_PanicDoesNotKillWorker(t *testing.T) {
	analyzer := &countingAnalyzer{panicOn: "1"}
	pool := NewWorkerPool(analyzer, arbor.NewNoOpLogger(), 1, 4)
	pool.Start()

	require.NoError(t, pool.Submit(story.Request{Emiten: "BBCA", RecordID: "1"}))
	require.NoError(t, pool.Submit(story.Request{Emiten: "BBCA", RecordID: "2"}))

	require.NoError(t, pool.Stop(context.Background()))
	assert.Equal(t, int32(2), analyzer.calls.Load())
}
