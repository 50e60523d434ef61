package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hungson175/hd-tts/internal/broker"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	b := broker.NewFromClient(client)
	return New(b, 300*time.Second, 10*time.Millisecond)
}

func TestEnqueueSetsStatusPending(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	job := Job{JobID: "job-1", Text: "xin chao", Quality: QualityHigh, CreatedAt: time.Now()}
	require.NoError(t, svc.Enqueue(ctx, job))

	status, ok, err := svc.GetStatus(ctx, "job-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, StatusPending, status)
}

func TestEnqueueDequeueRoundTrip(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	job := Job{JobID: "job-2", Text: "hello", Quality: QualityFast, Speed: 1.0, CreatedAt: time.Now()}
	require.NoError(t, svc.Enqueue(ctx, job))

	got, ok, err := svc.Dequeue(ctx, QualityFast, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, job.JobID, got.JobID)
	require.Equal(t, job.Text, got.Text)
	require.Equal(t, job.Quality, got.Quality)
}

func TestFIFOOrderWithinQuality(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.Enqueue(ctx, Job{JobID: "a", Quality: QualityHigh, CreatedAt: time.Now()}))
	require.NoError(t, svc.Enqueue(ctx, Job{JobID: "b", Quality: QualityHigh, CreatedAt: time.Now()}))

	first, ok, err := svc.Dequeue(ctx, QualityHigh, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "a", first.JobID)

	second, ok, err := svc.Dequeue(ctx, QualityHigh, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "b", second.JobID)
}

func TestDequeueTimesOutOnEmptyQueue(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, ok, err := svc.Dequeue(ctx, QualityHigh, 20*time.Millisecond)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestQueuePositionCountsJobsAhead(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.Enqueue(ctx, Job{JobID: "a", Quality: QualityHigh, CreatedAt: time.Now()}))
	require.NoError(t, svc.Enqueue(ctx, Job{JobID: "b", Quality: QualityHigh, CreatedAt: time.Now()}))
	require.NoError(t, svc.Enqueue(ctx, Job{JobID: "c", Quality: QualityHigh, CreatedAt: time.Now()}))

	pos, err := svc.QueuePosition(ctx, "a", QualityHigh)
	require.NoError(t, err)
	require.Equal(t, 0, pos)

	pos, err = svc.QueuePosition(ctx, "c", QualityHigh)
	require.NoError(t, err)
	require.Equal(t, 2, pos)

	pos, err = svc.QueuePosition(ctx, "missing", QualityHigh)
	require.NoError(t, err)
	require.Equal(t, -1, pos)
}

func TestStoreResultThenGetResultRoundTrips(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	result := Result{Status: StatusCompleted, Audio: []byte("wav-bytes"), GenerationTime: 1.5, AudioDuration: 2.0, CompletedAt: time.Now()}
	require.NoError(t, svc.StoreResult(ctx, "job-3", result))

	got, ok, err := svc.GetResult(ctx, "job-3")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, result.Status, got.Status)
	require.Equal(t, result.Audio, got.Audio)

	status, ok, err := svc.GetStatus(ctx, "job-3")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, StatusCompleted, status)
}

func TestWaitForResultReturnsImmediatelyWithZeroTimeout(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	start := time.Now()
	_, ok, err := svc.WaitForResult(ctx, "nonexistent", 0)
	require.NoError(t, err)
	require.False(t, ok)
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestWaitForResultWakesOnStoreResult(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	done := make(chan Result, 1)
	go func() {
		r, ok, err := svc.WaitForResult(ctx, "job-4", time.Second)
		require.NoError(t, err)
		require.True(t, ok)
		done <- r
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, svc.StoreResult(ctx, "job-4", Result{Status: StatusCompleted, CompletedAt: time.Now()}))

	select {
	case r := <-done:
		require.Equal(t, StatusCompleted, r.Status)
	case <-time.After(time.Second):
		t.Fatal("WaitForResult did not return after StoreResult")
	}
}

func TestWaitForResultTimesOutWhenNoResultArrives(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	start := time.Now()
	_, ok, err := svc.WaitForResult(ctx, "never", 50*time.Millisecond)
	require.NoError(t, err)
	require.False(t, ok)
	require.WithinDuration(t, start.Add(50*time.Millisecond), time.Now(), 100*time.Millisecond)
}

func TestQueueSizeTracksEnqueueDequeue(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	n, err := svc.QueueSize(ctx, QualityHigh)
	require.NoError(t, err)
	require.EqualValues(t, 0, n)

	require.NoError(t, svc.Enqueue(ctx, Job{JobID: "x", Quality: QualityHigh, CreatedAt: time.Now()}))
	n, err = svc.QueueSize(ctx, QualityHigh)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	_, _, err = svc.Dequeue(ctx, QualityHigh, time.Second)
	require.NoError(t, err)
	n, err = svc.QueueSize(ctx, QualityHigh)
	require.NoError(t, err)
	require.EqualValues(t, 0, n)
}

func TestRegisterAndGroupWorkersByQuality(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.RegisterWorker(ctx, "w1", QualityHigh, time.Minute))
	require.NoError(t, svc.RegisterWorker(ctx, "w2", QualityFast, time.Minute))

	groups, err := svc.GetWorkersByQuality(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"w1"}, groups[QualityHigh])
	require.ElementsMatch(t, []string{"w2"}, groups[QualityFast])

	require.NoError(t, svc.UnregisterWorker(ctx, "w1"))
	groups, err = svc.GetWorkersByQuality(ctx)
	require.NoError(t, err)
	require.Empty(t, groups[QualityHigh])
}

func TestIncrementMetricIsAdditive(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.IncrementMetric(ctx, "jobs_completed", 1))
	require.NoError(t, svc.IncrementMetric(ctx, "jobs_completed", 2))

	m, err := svc.Metrics(ctx)
	require.NoError(t, err)
	require.Equal(t, "3", m["jobs_completed"])
}
