package gateway

import (
	"net/http"

	"github.com/gorilla/mux"
)

// Router builds the gorilla/mux router exposing every endpoint of spec §6's
// HTTP interface table. The credential gate wraps only the writing
// endpoints (spec §4.4: "Each writing endpoint applies the credential
// gate.") — read-only inspection, health, and enumeration stay open to any
// caller that can reach the gateway.
func (g *Gateway) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/", g.handleBanner).Methods(http.MethodGet)
	r.HandleFunc("/health", g.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/voices", g.handleVoices).Methods(http.MethodGet)
	r.HandleFunc("/job/{id}", g.handleGetJob).Methods(http.MethodGet)
	r.HandleFunc("/job/{id}/audio", g.handleGetJobAudio).Methods(http.MethodGet)
	r.HandleFunc("/voice-samples", g.handleListVoiceSamples).Methods(http.MethodGet)
	r.HandleFunc("/voice-samples/{id}/audio", g.handleGetVoiceSampleAudio).Methods(http.MethodGet)

	r.Handle("/synthesize", g.credentialGate(http.HandlerFunc(g.handleSynthesize))).Methods(http.MethodPost)
	r.Handle("/synthesize/async", g.credentialGate(http.HandlerFunc(g.handleSynthesizeAsync))).Methods(http.MethodPost)
	r.Handle("/voice-samples", g.credentialGate(http.HandlerFunc(g.handleCreateVoiceSample))).Methods(http.MethodPost)
	r.Handle("/voice-samples/{id}", g.credentialGate(http.HandlerFunc(g.handleDeleteVoiceSample))).Methods(http.MethodDelete)

	return r
}
