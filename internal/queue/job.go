// Package queue implements the Job Queue Service (spec §4.3): the
// enqueue/dequeue contract, the result rendezvous, worker registration, and
// metrics. All state lives in the broker; this package is stateless logic.
package queue

import (
	"encoding/json"
	"time"
)

// Quality is the named bucket that selects both a queue and the engine's
// internal refinement cost (spec Glossary: "Quality class").
type Quality string

const (
	QualityHigh Quality = "high"
	QualityFast Quality = "fast"
)

func (q Quality) Valid() bool {
	return q == QualityHigh || q == QualityFast
}

// VoiceAttrs are the optional voice-shaping fields of a Job.
type VoiceAttrs struct {
	Gender  string `json:"gender,omitempty"`
	Area    string `json:"area,omitempty"`
	Emotion string `json:"emotion,omitempty"`
}

// Reference carries optional voice-cloning inputs. ReferenceAudio holds the
// caller's raw audio bytes (base64-decoded by the gateway, otherwise
// untouched); the worker decodes and silence-trims them before synthesis.
type Reference struct {
	ReferenceAudio []byte `json:"reference_audio,omitempty"`
	ReferenceText  string `json:"reference_text,omitempty"`
	TrimAudioTo    int    `json:"trim_audio_to,omitempty"`
}

// Job is immutable once enqueued (spec §3).
type Job struct {
	JobID      string      `json:"job_id"`
	Text       string      `json:"text"`
	Voice      VoiceAttrs  `json:"voice"`
	Speed      float64     `json:"speed"`
	Quality    Quality     `json:"quality"`
	Reference  *Reference  `json:"reference,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	TimeoutSec float64     `json:"timeout_seconds"`
}

func (j Job) Marshal() (string, error) {
	b, err := json.Marshal(j)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func UnmarshalJob(s string) (Job, error) {
	var j Job
	err := json.Unmarshal([]byte(s), &j)
	return j, err
}

// Status is one of pending|processing|completed|error (spec §3 JobStatus).
// Transitions are pending->processing->{completed,error}; no other
// transition is legal (enforced by the worker, not by this type).
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Result is stored at result:{job_id} once a worker reaches a terminal state.
type Result struct {
	Status         Status    `json:"status"`
	Audio          []byte    `json:"audio,omitempty"`
	GenerationTime float64   `json:"generation_time,omitempty"`
	AudioDuration  float64   `json:"audio_duration,omitempty"`
	Error          string    `json:"error,omitempty"`
	ErrorCode      string    `json:"error_code,omitempty"`
	CompletedAt    time.Time `json:"completed_at"`
}

func (r Result) Marshal() (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func UnmarshalResult(s string) (Result, error) {
	var r Result
	err := json.Unmarshal([]byte(s), &r)
	return r, err
}

// WorkerRegistration is the value stored at worker:{worker_id} (spec §3).
type WorkerRegistration struct {
	Timestamp time.Time `json:"timestamp"`
	Quality   Quality   `json:"quality"`
}

func (w WorkerRegistration) Marshal() (string, error) {
	b, err := json.Marshal(w)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func UnmarshalWorkerRegistration(s string) (WorkerRegistration, error) {
	var w WorkerRegistration
	err := json.Unmarshal([]byte(s), &w)
	return w, err
}
