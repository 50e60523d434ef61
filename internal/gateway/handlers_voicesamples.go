package gateway

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/hungson175/hd-tts/internal/audit"
	"github.com/hungson175/hd-tts/internal/obs"
)

type voiceSampleUpload struct {
	Audio         string `json:"audio"`
	ReferenceText string `json:"reference_text"`
	Name          string `json:"name,omitempty"`
}

type voiceSampleAudioResponse struct {
	Audio         string `json:"audio"`
	ReferenceText string `json:"reference_text"`
}

// handleCreateVoiceSample is POST /voice-samples: decode the base64 audio,
// trim silence, store it, and log the mutation (spec §4.4 "Voice-sample
// catalog").
func (g *Gateway) handleCreateVoiceSample(w http.ResponseWriter, r *http.Request) {
	if g.uploadBucket != nil && !g.uploadBucket.Allow() {
		writeError(w, http.StatusTooManyRequests, "voice sample upload rate limit exceeded")
		return
	}

	var body voiceSampleUpload
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid JSON")
		return
	}
	raw, err := base64.StdEncoding.DecodeString(body.Audio)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "audio must be base64-encoded")
		return
	}

	ctx := r.Context()
	preprocessed, err := g.pre.Preprocess(ctx, raw, 0)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "could not decode reference audio")
		return
	}

	sample, err := g.samples.Create(preprocessed.AudioWAV, body.ReferenceText, body.Name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not store voice sample")
		return
	}

	g.logAudit(audit.Entry{
		Action:  "voice_sample.create",
		Subject: sample.ID,
		Source:  clientAddr(r),
		Result:  "ok",
	})
	writeJSON(w, http.StatusOK, sample)
}

// handleListVoiceSamples is GET /voice-samples.
func (g *Gateway) handleListVoiceSamples(w http.ResponseWriter, r *http.Request) {
	samples, err := g.samples.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not list voice samples")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"samples": samples})
}

// handleGetVoiceSampleAudio is GET /voice-samples/{id}/audio.
func (g *Gateway) handleGetVoiceSampleAudio(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sample, audioBytes, ok, err := g.samples.Get(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not read voice sample")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "unknown voice sample id")
		return
	}
	writeJSON(w, http.StatusOK, voiceSampleAudioResponse{
		Audio:         base64.StdEncoding.EncodeToString(audioBytes),
		ReferenceText: sample.ReferenceText,
	})
}

// handleDeleteVoiceSample is DELETE /voice-samples/{id}.
func (g *Gateway) handleDeleteVoiceSample(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ok, err := g.samples.Delete(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not delete voice sample")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "unknown voice sample id")
		return
	}
	g.logAudit(audit.Entry{
		Action:  "voice_sample.delete",
		Subject: id,
		Source:  clientAddr(r),
		Result:  "ok",
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}

func (g *Gateway) logAudit(entry audit.Entry) {
	if g.audit == nil {
		return
	}
	entry.Timestamp = time.Now()
	if err := g.audit.Log(entry); err != nil {
		g.log.Warn("audit log write failed", obs.Err(err))
	}
}
