package gateway

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/hungson175/hd-tts/internal/queue"
)

type jobStatusResponse struct {
	JobID          string  `json:"job_id"`
	Status         string  `json:"status"`
	QueuePosition  *int    `json:"queue_position,omitempty"`
	AudioURL       string  `json:"audio_url,omitempty"`
	GenerationTime float64 `json:"generation_time,omitempty"`
	Error          string  `json:"error,omitempty"`
}

// handleGetJob is GET /job/{id} (spec §4.4 "Inspection").
func (g *Gateway) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ctx := r.Context()

	status, ok, err := g.queue.GetStatus(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "status lookup failed")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "unknown or expired job id")
		return
	}

	resp := jobStatusResponse{JobID: id, Status: string(status)}
	switch status {
	case queue.StatusPending, queue.StatusProcessing:
		for _, q := range []queue.Quality{queue.QualityHigh, queue.QualityFast} {
			if pos, err := g.queue.QueuePosition(ctx, id, q); err == nil && pos >= 0 {
				resp.QueuePosition = &pos
				break
			}
		}
	case queue.StatusCompleted:
		resp.AudioURL = fmt.Sprintf("/job/%s/audio", id)
		if result, ok, err := g.queue.GetResult(ctx, id); err == nil && ok {
			resp.GenerationTime = result.GenerationTime
		}
	case queue.StatusError:
		if result, ok, err := g.queue.GetResult(ctx, id); err == nil && ok {
			resp.Error = result.Error
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGetJobAudio is GET /job/{id}/audio: 200 WAV bytes iff the stored
// result is terminal completed; 400 when a stored result is not completed;
// 404 when no result is stored, which includes a job still pending or
// processing (spec §4.4 "Inspection": get_audio).
func (g *Gateway) handleGetJobAudio(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ctx := r.Context()

	result, ok, err := g.queue.GetResult(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "result lookup failed")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "unknown or expired job id")
		return
	}
	if result.Status != queue.StatusCompleted {
		writeError(w, http.StatusBadRequest, "job is not completed")
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.wav", id))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Audio)
}
