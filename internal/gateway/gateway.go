// Package gateway implements the HTTP surface (spec §4.4): synchronous and
// asynchronous synthesis submission, job inspection, health aggregation,
// voice enumeration, and the voice-sample catalog CRUD. It is the only
// package in this module that writes HTTP responses; everything else stays
// transport-agnostic.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hungson175/hd-tts/internal/audit"
	"github.com/hungson175/hd-tts/internal/broker"
	"github.com/hungson175/hd-tts/internal/config"
	"github.com/hungson175/hd-tts/internal/credential"
	"github.com/hungson175/hd-tts/internal/engine"
	"github.com/hungson175/hd-tts/internal/queue"
	"github.com/hungson175/hd-tts/internal/voicesamples"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Gateway holds every collaborator a handler needs. One instance is built at
// startup and its methods wired onto a gorilla/mux router.
type Gateway struct {
	cfg         config.Gateway
	credentials *credential.Store
	queue       *queue.Service
	samples     *voicesamples.Catalog
	pre         engine.Preprocessor
	audit       *audit.Logger
	log         *zap.Logger

	limiter      *rateLimiter          // credential-gate fixed-window limiter
	uploadBucket *rate.Limiter         // token bucket for POST /voice-samples
	startedAt    time.Time
}

// New wires a Gateway from its collaborators. The upload token bucket is
// built from cfg.RateLimitPerSec and cfg.RateLimitBurst; RateLimitPerSec <= 0
// leaves it unset (uploads unbounded), the same switch that disables the
// credential-gate limiter.
func New(cfg config.Gateway, creds *credential.Store, q *queue.Service, samples *voicesamples.Catalog, pre engine.Preprocessor, lim *rateLimiter, al *audit.Logger, log *zap.Logger) *Gateway {
	var bucket *rate.Limiter
	if cfg.RateLimitPerSec > 0 {
		bucket = rate.NewLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)
	}
	return &Gateway{
		cfg:          cfg,
		credentials:  creds,
		queue:        q,
		samples:      samples,
		pre:          pre,
		audit:        al,
		log:          log,
		limiter:      lim,
		uploadBucket: bucket,
		startedAt:    time.Now(),
	}
}

// NewRateLimiter exposes newRateLimiter to callers outside the package
// (cmd/gateway) without making the rateLimiter type itself public.
func NewRateLimiter(b broker.Broker, perSec int) *rateLimiter {
	return newRateLimiter(b, perSec)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}

func clientAddr(r *http.Request) string {
	return r.RemoteAddr
}

// context helper shared by handlers that need a short-lived context
// independent of the request's (used for audit writes that must complete
// even if the client disconnects mid-response).
func detachedContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}
