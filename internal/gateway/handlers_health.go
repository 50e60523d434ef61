package gateway

import (
	"net/http"

	"github.com/hungson175/hd-tts/internal/queue"
)

type workersInfo struct {
	Active   int                         `json:"active"`
	IDs      []string                    `json:"ids"`
	ByQuality map[queue.Quality][]string `json:"by_quality"`
}

type healthResponse struct {
	Status     string            `json:"status"`
	QueueSize  int64             `json:"queue_size"`
	QueueSizes map[string]int64  `json:"queue_sizes"`
	Workers    workersInfo       `json:"workers"`
	Metrics    map[string]string `json:"metrics,omitempty"`
}

// handleHealth is GET /health (spec §4.4 "Health"): broker ping, per-class
// and total queue sizes, worker count/grouping, and the metrics hash.
// Grounded on the teacher's internal/admin.Stats aggregation shape, adapted
// to this system's broker.Broker/queue.Service rather than raw Redis keys.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !g.queue.Ping(ctx) {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unhealthy"})
		return
	}

	sizes := map[string]int64{}
	var total int64
	for _, q := range []queue.Quality{queue.QualityHigh, queue.QualityFast} {
		n, err := g.queue.QueueSize(ctx, q)
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unhealthy"})
			return
		}
		sizes[string(q)] = n
		total += n
	}

	byQuality, err := g.queue.GetWorkersByQuality(ctx)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unhealthy"})
		return
	}
	var ids []string
	for _, list := range byQuality {
		ids = append(ids, list...)
	}

	metrics, _ := g.queue.Metrics(ctx)

	writeJSON(w, http.StatusOK, healthResponse{
		Status:     "healthy",
		QueueSize:  total,
		QueueSizes: sizes,
		Workers: workersInfo{
			Active:    len(ids),
			IDs:       ids,
			ByQuality: byQuality,
		},
		Metrics: metrics,
	})
}

// handleVoices is GET /voices (spec §4.4 "Voice enumeration").
func (g *Gateway) handleVoices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, NewVoiceOptions())
}

// handleBanner is GET / (spec §6 "API banner").
func (g *Gateway) handleBanner(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "hd-tts dispatch gateway",
		"status":  "ok",
	})
}
