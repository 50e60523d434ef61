package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/hungson175/hd-tts/internal/broker"
)

const (
	metricsKey = "metrics"
)

func jobsKey(q Quality) string       { return fmt.Sprintf("jobs:%s", q) }
func statusKey(id string) string     { return fmt.Sprintf("status:%s", id) }
func resultKey(id string) string     { return fmt.Sprintf("result:%s", id) }
func workerKey(id string) string     { return fmt.Sprintf("worker:%s", id) }
func notifyChannel(id string) string { return fmt.Sprintf("notify:%s", id) }

// Service implements the Job Queue Service contract of spec §4.3. It is
// stateless: every field it reads or writes lives in the broker.
type Service struct {
	broker    broker.Broker
	resultTTL time.Duration
	pollEvery time.Duration
}

func New(b broker.Broker, resultTTL, pollEvery time.Duration) *Service {
	return &Service{broker: b, resultTTL: resultTTL, pollEvery: pollEvery}
}

// Enqueue writes status:{id}=pending (TTL) then pushes the job onto its
// quality queue. Order matters: a worker must never observe a job in the
// list before its status key exists.
func (s *Service) Enqueue(ctx context.Context, job Job) error {
	if !job.Quality.Valid() {
		return fmt.Errorf("invalid quality %q", job.Quality)
	}
	if err := s.broker.Set(ctx, statusKey(job.JobID), string(StatusPending), s.resultTTL); err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	payload, err := job.Marshal()
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := s.broker.Push(ctx, jobsKey(job.Quality), payload); err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Dequeue blocks up to timeout for the oldest job of the given quality.
func (s *Service) Dequeue(ctx context.Context, quality Quality, timeout time.Duration) (Job, bool, error) {
	payload, ok, err := s.broker.BlockingPop(ctx, jobsKey(quality), timeout)
	if err != nil || !ok {
		return Job{}, false, err
	}
	job, err := UnmarshalJob(payload)
	if err != nil {
		return Job{}, false, fmt.Errorf("unmarshal job: %w", err)
	}
	return job, true, nil
}

// SetStatus writes status:{id} with the queue's result TTL (re-extended on
// every write so a long job does not expire mid-flight — SPEC_FULL open
// question decision).
func (s *Service) SetStatus(ctx context.Context, id string, status Status) error {
	return s.broker.Set(ctx, statusKey(id), string(status), s.resultTTL)
}

// StoreResult writes the terminal result and status, then publishes to the
// per-job notification channel so a waiting gateway handler can wake up
// immediately instead of on its next poll tick.
func (s *Service) StoreResult(ctx context.Context, id string, result Result) error {
	payload, err := result.Marshal()
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := s.broker.Set(ctx, resultKey(id), payload, s.resultTTL); err != nil {
		return fmt.Errorf("set result: %w", err)
	}
	if err := s.broker.Set(ctx, statusKey(id), string(result.Status), s.resultTTL); err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	_ = s.broker.Publish(ctx, notifyChannel(id), string(result.Status))
	return nil
}

func (s *Service) GetStatus(ctx context.Context, id string) (Status, bool, error) {
	v, ok, err := s.broker.Get(ctx, statusKey(id))
	if err != nil || !ok {
		return "", ok, err
	}
	return Status(v), true, nil
}

func (s *Service) GetResult(ctx context.Context, id string) (Result, bool, error) {
	v, ok, err := s.broker.Get(ctx, resultKey(id))
	if err != nil || !ok {
		return Result{}, ok, err
	}
	r, err := UnmarshalResult(v)
	if err != nil {
		return Result{}, false, fmt.Errorf("unmarshal result: %w", err)
	}
	return r, true, nil
}

// WaitForResult is the bounded rendezvous of spec §4.3/§9: it subscribes to
// the job's notification channel as the fast path, but always falls back to
// polling get_result on a fixed interval so a missed pub/sub message (or a
// broker without pub/sub, per the interface contract) cannot hang the
// caller past its deadline. Returns (Result{}, false, nil) on timeout, never
// an error solely because the deadline elapsed.
func (s *Service) WaitForResult(ctx context.Context, id string, timeout time.Duration) (Result, bool, error) {
	if timeout <= 0 {
		return s.GetResult(ctx, id)
	}
	deadline := time.Now().Add(timeout)
	waitCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	notifications := s.broker.Subscribe(waitCtx, notifyChannel(id))
	ticker := time.NewTicker(s.pollEvery)
	defer ticker.Stop()

	for {
		if r, ok, err := s.GetResult(ctx, id); err != nil {
			return Result{}, false, err
		} else if ok {
			return r, true, nil
		}
		select {
		case <-waitCtx.Done():
			return s.GetResult(ctx, id)
		case _, ok := <-notifications:
			if !ok {
				notifications = nil
			}
			continue
		case <-ticker.C:
			continue
		}
	}
}

// QueueSize returns the size of one quality's queue, or the total across
// both when quality is empty.
func (s *Service) QueueSize(ctx context.Context, quality Quality) (int64, error) {
	if quality != "" {
		return s.broker.Len(ctx, jobsKey(quality))
	}
	var total int64
	for _, q := range []Quality{QualityHigh, QualityFast} {
		n, err := s.broker.Len(ctx, jobsKey(q))
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// QueuePosition returns the zero-based FIFO position of id within its
// quality's queue, or -1 if absent. Jobs are pushed to the head (LPUSH) and
// consumed from the tail (BRPOP), so the job at the tail (highest index) is
// next to be dequeued: position 0. A job at list index i in a list of
// length n is preceded by the n-1-i elements between it and the tail.
func (s *Service) QueuePosition(ctx context.Context, id string, quality Quality) (int, error) {
	values, err := s.broker.Range(ctx, jobsKey(quality), 0, -1)
	if err != nil {
		return -1, err
	}
	for i, v := range values {
		job, err := UnmarshalJob(v)
		if err != nil {
			continue
		}
		if job.JobID == id {
			return len(values) - 1 - i, nil
		}
	}
	return -1, nil
}

// RegisterWorker (re)writes worker:{id} with a refreshed TTL.
func (s *Service) RegisterWorker(ctx context.Context, workerID string, quality Quality, ttl time.Duration) error {
	reg := WorkerRegistration{Timestamp: time.Now(), Quality: quality}
	payload, err := reg.Marshal()
	if err != nil {
		return err
	}
	return s.broker.Set(ctx, workerKey(workerID), payload, ttl)
}

// UnregisterWorker removes the worker key on graceful shutdown.
func (s *Service) UnregisterWorker(ctx context.Context, workerID string) error {
	return s.broker.Delete(ctx, workerKey(workerID))
}

// GetWorkersByQuality groups active (key-present) worker ids by quality.
func (s *Service) GetWorkersByQuality(ctx context.Context) (map[Quality][]string, error) {
	keys, err := s.broker.ScanPrefix(ctx, "worker:")
	if err != nil {
		return nil, err
	}
	out := map[Quality][]string{QualityHigh: {}, QualityFast: {}}
	for _, k := range keys {
		v, ok, err := s.broker.Get(ctx, k)
		if err != nil || !ok {
			continue
		}
		reg, err := UnmarshalWorkerRegistration(v)
		if err != nil {
			continue
		}
		id := k[len("worker:"):]
		out[reg.Quality] = append(out[reg.Quality], id)
	}
	return out, nil
}

// IncrementMetric bumps a counter in the shared metrics hash.
func (s *Service) IncrementMetric(ctx context.Context, name string, delta int64) error {
	_, err := s.broker.HashIncr(ctx, metricsKey, name, delta)
	return err
}

// Metrics returns the full metrics hash snapshot.
func (s *Service) Metrics(ctx context.Context) (map[string]string, error) {
	return s.broker.HashGetAll(ctx, metricsKey)
}

// Ping proxies the broker health check.
func (s *Service) Ping(ctx context.Context) bool {
	return s.broker.Ping(ctx)
}
