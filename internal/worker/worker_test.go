package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hungson175/hd-tts/internal/breaker"
	"github.com/hungson175/hd-tts/internal/broker"
	"github.com/hungson175/hd-tts/internal/engine"
	"github.com/hungson175/hd-tts/internal/queue"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSynth struct {
	result engine.Result
	err    error
	calls  int
}

func (f *fakeSynth) Synthesize(ctx context.Context, req engine.Request) (engine.Result, error) {
	f.calls++
	return f.result, f.err
}

type fakePreprocessor struct{}

func (fakePreprocessor) Preprocess(ctx context.Context, raw []byte, trimTo int) (engine.PreprocessedReference, error) {
	return engine.PreprocessedReference{AudioWAV: raw}, nil
}

func newTestQueue(t *testing.T) *queue.Service {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return queue.New(broker.NewFromClient(client), 300*time.Second, 10*time.Millisecond)
}

func TestWorkerProcessesJobToCompletion(t *testing.T) {
	q := newTestQueue(t)
	synth := &fakeSynth{result: engine.Result{AudioWAV: []byte("wav"), GenerationTime: 1.2, AudioDuration: 2.0}}
	w := New(Config{ID: "w1", Quality: queue.QualityHigh, DequeueTimeout: 50 * time.Millisecond, HeartbeatEvery: time.Minute, HeartbeatTTL: time.Minute},
		q, synth, fakePreprocessor{}, nil, zap.NewNop())

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, queue.Job{JobID: "job-1", Text: "hi", Quality: queue.QualityHigh, CreatedAt: time.Now()}))

	job, ok, err := q.Dequeue(ctx, queue.QualityHigh, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	w.processJob(ctx, job)

	result, ok, err := q.GetResult(ctx, "job-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, queue.StatusCompleted, result.Status)
	require.Equal(t, []byte("wav"), result.Audio)
	require.Equal(t, 1, synth.calls)
}

func TestWorkerStoresErrorResultOnEngineFailure(t *testing.T) {
	q := newTestQueue(t)
	synth := &fakeSynth{err: errors.New("boom")}
	w := New(Config{ID: "w1", Quality: queue.QualityFast, DequeueTimeout: 50 * time.Millisecond, HeartbeatEvery: time.Minute, HeartbeatTTL: time.Minute},
		q, synth, fakePreprocessor{}, nil, zap.NewNop())

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, queue.Job{JobID: "job-2", Text: "hi", Quality: queue.QualityFast, CreatedAt: time.Now()}))
	job, ok, err := q.Dequeue(ctx, queue.QualityFast, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	w.processJob(ctx, job)

	result, ok, err := q.GetResult(ctx, "job-2")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, queue.StatusError, result.Status)
	require.Equal(t, "engine_error", result.ErrorCode)

	metrics, err := q.Metrics(ctx)
	require.NoError(t, err)
	require.Equal(t, "1", metrics["jobs_failed"])
}

func TestWorkerNeverConsumesOtherQualityQueue(t *testing.T) {
	q := newTestQueue(t)
	synth := &fakeSynth{result: engine.Result{}}
	w := New(Config{ID: "w-fast", Quality: queue.QualityFast, DequeueTimeout: 30 * time.Millisecond, HeartbeatEvery: time.Minute, HeartbeatTTL: time.Minute},
		q, synth, fakePreprocessor{}, nil, zap.NewNop())

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, queue.Job{JobID: "high-job", Quality: queue.QualityHigh, CreatedAt: time.Now()}))

	job, ok, err := q.Dequeue(ctx, w.quality, 30*time.Millisecond)
	require.NoError(t, err)
	require.False(t, ok)
	require.Empty(t, job.JobID)

	status, ok, err := q.GetStatus(ctx, "high-job")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, queue.StatusPending, status)
}

func TestBreakerOpensOnEngineFailureAndInFlightJobGetsErrorResult(t *testing.T) {
	q := newTestQueue(t)
	synth := &fakeSynth{err: errors.New("down")}
	cb := breaker.New(time.Minute, 50*time.Millisecond, 0.5, 1)
	w := New(Config{ID: "w1", Quality: queue.QualityHigh, DequeueTimeout: 20 * time.Millisecond, HeartbeatEvery: time.Minute, HeartbeatTTL: time.Minute},
		q, synth, fakePreprocessor{}, cb, zap.NewNop())

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, queue.Job{JobID: "job-3", Quality: queue.QualityHigh, CreatedAt: time.Now()}))
	job, ok, err := q.Dequeue(ctx, queue.QualityHigh, time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	w.processJob(ctx, job)
	require.Equal(t, breaker.Open, cb.State())

	result, ok, err := q.GetResult(ctx, "job-3")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, queue.StatusError, result.Status)
}
