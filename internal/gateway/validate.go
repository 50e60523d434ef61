package gateway

import (
	"fmt"
	"unicode/utf8"

	"github.com/hungson175/hd-tts/internal/queue"
)

var (
	validGenders  = map[string]bool{"male": true, "female": true}
	validAreas    = map[string]bool{"northern": true, "southern": true, "central": true}
	validEmotions = map[string]bool{
		"neutral": true, "serious": true, "monotone": true, "sad": true,
		"surprised": true, "happy": true, "angry": true,
	}
)

// TTSRequest is the wire schema for /synthesize and /synthesize/async
// (spec §6 "TTSRequest schema"), translated from the original's pydantic
// model into explicit Go validation.
type TTSRequest struct {
	Text          string  `json:"text"`
	Gender        string  `json:"gender,omitempty"`
	Area          string  `json:"area,omitempty"`
	Emotion       string  `json:"emotion,omitempty"`
	Speed         float64 `json:"speed,omitempty"`
	Quality       string  `json:"quality,omitempty"`
	ReferenceAudio string `json:"reference_audio,omitempty"` // base64
	ReferenceText string  `json:"reference_text,omitempty"`
	TrimAudioTo   int     `json:"trim_audio_to,omitempty"`
}

// ValidationError is a 422 per spec §7.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return fmt.Sprintf("%s: %s", e.Field, e.Message) }

// Normalize fills defaults and validates every field per spec §6/§3,
// returning a *ValidationError (never a plain error) on failure so
// handlers can always map it to 422.
func (r *TTSRequest) Normalize() *ValidationError {
	if l := utf8.RuneCountInString(r.Text); l < 1 || l > 5000 {
		return &ValidationError{"text", "must be 1-5000 characters"}
	}
	if r.Gender != "" && !validGenders[r.Gender] {
		return &ValidationError{"gender", "must be one of male, female"}
	}
	if r.Area != "" && !validAreas[r.Area] {
		return &ValidationError{"area", "must be one of northern, southern, central"}
	}
	if r.Emotion != "" && !validEmotions[r.Emotion] {
		return &ValidationError{"emotion", "must be a recognized emotion"}
	}
	if r.Speed == 0 {
		r.Speed = 1.0
	}
	if r.Speed < 0.5 || r.Speed > 2.0 {
		return &ValidationError{"speed", "must be between 0.5 and 2.0"}
	}
	if r.Quality == "" {
		r.Quality = string(queue.QualityHigh)
	}
	if r.Quality != string(queue.QualityHigh) && r.Quality != string(queue.QualityFast) {
		return &ValidationError{"quality", "must be \"high\" or \"fast\""}
	}
	if r.ReferenceAudio != "" {
		if r.TrimAudioTo == 0 {
			r.TrimAudioTo = 30
		}
		if r.TrimAudioTo < 1 || r.TrimAudioTo > 60 {
			return &ValidationError{"trim_audio_to", "must be between 1 and 60 seconds"}
		}
	}
	return nil
}

// VoiceOptions is the static enumeration served at GET /voices (spec §4.4).
// Group is the content-category list from original_source's gateway
// main.py, not an emotion grouping — a flat list, per spec §6.
type VoiceOptions struct {
	Gender  []string `json:"gender"`
	Area    []string `json:"area"`
	Emotion []string `json:"emotion"`
	Group   []string `json:"group"`
}

func NewVoiceOptions() VoiceOptions {
	return VoiceOptions{
		Gender:  []string{"male", "female"},
		Area:    []string{"northern", "southern", "central"},
		Emotion: []string{"neutral", "serious", "monotone", "sad", "surprised", "happy", "angry"},
		Group:   []string{"story", "news", "audiobook", "interview", "review"},
	}
}
