// Package engine declares the two external collaborators the worker calls
// out to (spec §1 "OUT OF SCOPE"): the speech-synthesis engine itself and
// the reference-audio preprocessor. Both are handed to the worker at
// startup. No synthesis engine is implemented here; the preprocessor has one
// implementation in this package (DefaultPreprocessor, over the pure trim
// function in wav.go), so the worker can depend on both interfaces without
// knowing which concrete engine is wired.
package engine

import "context"

// VoiceAttrs mirrors queue.VoiceAttrs without importing internal/queue, to
// keep this package a leaf the worker, the gateway, and test fakes can all
// depend on independently.
type VoiceAttrs struct {
	Gender  string
	Area    string
	Emotion string
}

// Request is everything the engine needs to synthesize one job.
type Request struct {
	Text      string
	Voice     VoiceAttrs
	Speed     float64
	NFESteps  int
	Reference *PreprocessedReference
}

// PreprocessedReference is the canonical WAV + text pair handed to the
// engine for voice cloning. Preprocess fills AudioWAV only; the worker sets
// Text from the job's reference text.
type PreprocessedReference struct {
	AudioWAV []byte
	Text     string
}

// Result is the engine's synthesis output.
type Result struct {
	AudioWAV       []byte
	GenerationTime float64
	AudioDuration  float64
}

// Synth is the single blocking operation the synthesis engine exposes
// (spec §1b): synthesize(text, voice_attrs, optional_reference) ->
// (audio_bytes, duration_seconds). It is not safe for concurrent use by a
// single worker (spec §9: "Single-instance engine in worker") — a Worker
// only ever calls it from its one serial loop.
type Synth interface {
	Synthesize(ctx context.Context, req Request) (Result, error)
}

// Preprocessor decodes raw reference-audio bytes and trims leading/trailing
// silence, producing the canonical WAV fed to the engine (spec §1b, §9
// "Reference preprocessing").
type Preprocessor interface {
	Preprocess(ctx context.Context, rawAudio []byte, trimToSeconds int) (PreprocessedReference, error)
}
