// Package worker implements the Worker component (spec §4.5): a long-lived
// process that loads the synthesis engine once, then loops: heartbeat,
// blocking-dequeue on its assigned quality class, process, store result.
// Shaped after the teacher's internal/worker goroutine-per-worker,
// breaker-gated loop, but the dequeue/retry mechanics are replaced
// end-to-end: no processing list, no retries, no dead-letter queue — the
// broker's TTL is the only garbage collector (spec §4.6, Non-goals).
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/hungson175/hd-tts/internal/breaker"
	"github.com/hungson175/hd-tts/internal/engine"
	"github.com/hungson175/hd-tts/internal/obs"
	"github.com/hungson175/hd-tts/internal/queue"
	"go.uber.org/zap"
)

// Worker consumes exactly one quality class for its entire lifetime (spec
// §4.5 "Quality selection").
type Worker struct {
	id       string
	quality  queue.Quality
	queue    *queue.Service
	synth    engine.Synth
	pre      engine.Preprocessor
	nfeSteps int

	heartbeatEvery time.Duration
	heartbeatTTL   time.Duration
	dequeueTimeout time.Duration

	breaker *breaker.CircuitBreaker
	log     *zap.Logger
}

type Config struct {
	ID             string
	Quality        queue.Quality
	NFESteps       int
	HeartbeatEvery time.Duration
	HeartbeatTTL   time.Duration
	DequeueTimeout time.Duration
}

func New(cfg Config, q *queue.Service, synth engine.Synth, pre engine.Preprocessor, cb *breaker.CircuitBreaker, log *zap.Logger) *Worker {
	return &Worker{
		id:             cfg.ID,
		quality:        cfg.Quality,
		queue:          q,
		synth:          synth,
		pre:            pre,
		nfeSteps:       cfg.NFESteps,
		heartbeatEvery: cfg.HeartbeatEvery,
		heartbeatTTL:   cfg.HeartbeatTTL,
		dequeueTimeout: cfg.DequeueTimeout,
		breaker:        cb,
		log:            log,
	}
}

// Run executes the main loop (spec §4.5) until ctx is cancelled. On return,
// the worker has already unregistered itself; the caller has no separate
// cleanup step to run.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.queue.RegisterWorker(ctx, w.id, w.quality, w.heartbeatTTL); err != nil {
		return fmt.Errorf("register worker: %w", err)
	}
	defer func() {
		// Shutdown must not be skipped just because the parent context is
		// already cancelled — use a short detached context.
		uctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := w.queue.UnregisterWorker(uctx, w.id); err != nil {
			w.log.Warn("unregister worker failed", obs.String("worker_id", w.id), obs.Err(err))
		}
	}()

	lastHeartbeat := time.Now()
	for {
		if ctx.Err() != nil {
			return nil
		}
		if time.Since(lastHeartbeat) >= w.heartbeatEvery {
			if err := w.queue.RegisterWorker(ctx, w.id, w.quality, w.heartbeatTTL); err != nil {
				w.log.Warn("heartbeat failed", obs.Err(err))
			}
			lastHeartbeat = time.Now()
		}

		if w.breaker != nil && !w.breaker.Allow() {
			// Engine unhealthy: pause dequeue, keep heartbeating.
			time.Sleep(w.dequeueTimeout)
			continue
		}

		job, ok, err := w.queue.Dequeue(ctx, w.quality, w.dequeueTimeout)
		if err != nil {
			w.log.Warn("dequeue error", obs.Err(err))
			time.Sleep(w.dequeueTimeout)
			continue
		}
		if !ok {
			continue
		}

		w.processJob(ctx, job)
	}
}

// processJob runs steps 3-6 of spec §4.5's main loop. It never returns an
// error to Run: every failure path is converted into a terminal Result and
// stored. If the broker write of that Result itself fails, the failure is
// only logged and the job's status stays at processing.
func (w *Worker) processJob(ctx context.Context, job queue.Job) {
	start := time.Now()
	if err := w.queue.SetStatus(ctx, job.JobID, queue.StatusProcessing); err != nil {
		w.log.Error("set status processing failed", obs.String("job_id", job.JobID), obs.Err(err))
	}

	var preprocessed *engine.PreprocessedReference
	if job.Reference != nil && len(job.Reference.ReferenceAudio) > 0 {
		ref, err := w.pre.Preprocess(ctx, job.Reference.ReferenceAudio, job.Reference.TrimAudioTo)
		if err != nil {
			w.fail(ctx, job, start, "reference_preprocessing_failed", err)
			return
		}
		ref.Text = job.Reference.ReferenceText
		preprocessed = &ref
	}

	req := engine.Request{
		Text:      job.Text,
		Voice:     engine.VoiceAttrs{Gender: job.Voice.Gender, Area: job.Voice.Area, Emotion: job.Voice.Emotion},
		Speed:     job.Speed,
		NFESteps:  w.nfeSteps,
		Reference: preprocessed,
	}

	// Re-extend status:{id}'s TTL right before the blocking engine call so a
	// synthesis that outlives Queue.ResultTTL does not let the status key
	// expire mid-flight (a job still in flight would otherwise 404).
	if err := w.queue.SetStatus(ctx, job.JobID, queue.StatusProcessing); err != nil {
		w.log.Error("set status processing failed", obs.String("job_id", job.JobID), obs.Err(err))
	}

	result, err := w.synth.Synthesize(ctx, req)
	if w.breaker != nil {
		w.breaker.Record(err == nil)
	}
	if err != nil {
		w.fail(ctx, job, start, "engine_error", err)
		return
	}

	if err := w.queue.StoreResult(ctx, job.JobID, queue.Result{
		Status:         queue.StatusCompleted,
		Audio:          result.AudioWAV,
		GenerationTime: result.GenerationTime,
		AudioDuration:  result.AudioDuration,
		CompletedAt:    time.Now(),
	}); err != nil {
		w.log.Error("store result failed", obs.String("job_id", job.JobID), obs.Err(err))
		return
	}
	_ = w.queue.IncrementMetric(ctx, "jobs_completed", 1)
	obs.JobsCompleted.WithLabelValues(string(w.quality)).Inc()
	obs.JobProcessingDuration.WithLabelValues(string(w.quality)).Observe(time.Since(start).Seconds())
}

func (w *Worker) fail(ctx context.Context, job queue.Job, _ time.Time, code string, cause error) {
	w.log.Error("job failed", obs.String("job_id", job.JobID), obs.String("error_code", code), obs.Err(cause))
	if err := w.queue.StoreResult(ctx, job.JobID, queue.Result{
		Status:      queue.StatusError,
		Error:       cause.Error(),
		ErrorCode:   code,
		CompletedAt: time.Now(),
	}); err != nil {
		w.log.Error("store error result failed", obs.String("job_id", job.JobID), obs.Err(err))
	}
	_ = w.queue.IncrementMetric(ctx, "jobs_failed", 1)
	obs.JobsFailed.WithLabelValues(string(w.quality)).Inc()
}
