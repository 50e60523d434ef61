package gateway

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/hungson175/hd-tts/internal/obs"
	"github.com/hungson175/hd-tts/internal/queue"
)

// avgGenerationTimeSeconds is the assumed per-job generation cost used to
// estimate a pending async job's wait, in the absence of a running average
// maintained anywhere in the broker (spec §4.4 estimated_wait formula).
const avgGenerationTimeSeconds = 3.0

func decodeTTSRequest(r *http.Request) (TTSRequest, *ValidationError) {
	var req TTSRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return TTSRequest{}, &ValidationError{Field: "body", Message: "invalid JSON"}
	}
	if verr := req.Normalize(); verr != nil {
		return TTSRequest{}, verr
	}
	return req, nil
}

func (req TTSRequest) toJob(jobID string, timeout time.Duration) (queue.Job, error) {
	job := queue.Job{
		JobID:      jobID,
		Text:       req.Text,
		Voice:      queue.VoiceAttrs{Gender: req.Gender, Area: req.Area, Emotion: req.Emotion},
		Speed:      req.Speed,
		Quality:    queue.Quality(req.Quality),
		CreatedAt:  time.Now(),
		TimeoutSec: timeout.Seconds(),
	}
	if req.ReferenceAudio != "" {
		raw, err := base64.StdEncoding.DecodeString(req.ReferenceAudio)
		if err != nil {
			return queue.Job{}, fmt.Errorf("decode reference_audio: %w", err)
		}
		job.Reference = &queue.Reference{
			ReferenceAudio: raw,
			ReferenceText:  req.ReferenceText,
			TrimAudioTo:    req.TrimAudioTo,
		}
	}
	return job, nil
}

// handleSynthesize is POST /synthesize: enqueue, block for the result, then
// return either audio bytes, a worker error, or a timeout (spec §4.4
// "Synchronous submission").
func (g *Gateway) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	req, verr := decodeTTSRequest(r)
	if verr != nil {
		writeError(w, http.StatusUnprocessableEntity, verr.Error())
		return
	}

	jobID := uuid.NewString()
	timeout := g.cfg.DefaultJobTimeout
	job, err := req.toJob(jobID, timeout)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	ctx := r.Context()
	if err := g.queue.Enqueue(ctx, job); err != nil {
		writeError(w, http.StatusInternalServerError, "enqueue failed")
		return
	}
	obs.JobsEnqueued.WithLabelValues(string(job.Quality)).Inc()
	position, _ := g.queue.QueuePosition(ctx, jobID, job.Quality)

	result, ok, err := g.queue.WaitForResult(ctx, jobID, timeout)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "result rendezvous failed")
		return
	}
	if !ok {
		obs.JobsTimedOut.Inc()
		writeError(w, http.StatusRequestTimeout, "Synthesis timeout")
		return
	}

	switch result.Status {
	case queue.StatusCompleted:
		if auth, ok := authFromContext(ctx); ok && auth.authenticated {
			_ = g.credentials.Increment(ctx, auth.info.KeyID, result.AudioDuration)
		}
		w.Header().Set("Content-Type", "audio/wav")
		w.Header().Set("X-Job-Id", jobID)
		w.Header().Set("X-Generation-Time", fmt.Sprintf("%.3f", result.GenerationTime))
		w.Header().Set("X-Audio-Duration", fmt.Sprintf("%.3f", result.AudioDuration))
		w.Header().Set("X-Queue-Position", fmt.Sprintf("%d", position))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(result.Audio)
	case queue.StatusError:
		writeError(w, http.StatusInternalServerError, result.Error)
	default:
		// Terminal wait returned a non-terminal status only if the broker
		// lost the result between write and read; treat as a timeout.
		writeError(w, http.StatusRequestTimeout, "Synthesis timeout")
	}
}

type asyncResponse struct {
	JobID          string   `json:"job_id"`
	Status         string   `json:"status"`
	QueuePosition  int      `json:"queue_position"`
	EstimatedWait  *float64 `json:"estimated_wait,omitempty"`
}

// handleSynthesizeAsync is POST /synthesize/async: enqueue and return
// immediately with the job id and an estimated wait (spec §4.4
// "Asynchronous submission").
func (g *Gateway) handleSynthesizeAsync(w http.ResponseWriter, r *http.Request) {
	req, verr := decodeTTSRequest(r)
	if verr != nil {
		writeError(w, http.StatusUnprocessableEntity, verr.Error())
		return
	}

	jobID := uuid.NewString()
	job, err := req.toJob(jobID, g.cfg.DefaultJobTimeout)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	ctx := r.Context()
	if err := g.queue.Enqueue(ctx, job); err != nil {
		writeError(w, http.StatusInternalServerError, "enqueue failed")
		return
	}
	obs.JobsEnqueued.WithLabelValues(string(job.Quality)).Inc()

	if auth, ok := authFromContext(ctx); ok && auth.authenticated {
		_ = g.credentials.Increment(ctx, auth.info.KeyID, 0)
	}

	position, _ := g.queue.QueuePosition(ctx, jobID, job.Quality)
	resp := asyncResponse{JobID: jobID, Status: string(queue.StatusPending), QueuePosition: position}

	workers, err := g.queue.GetWorkersByQuality(ctx)
	if err == nil {
		active := len(workers[job.Quality])
		if active > 0 {
			wait := (float64(position) + 1) / float64(active) * avgGenerationTimeSeconds
			resp.EstimatedWait = &wait
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
