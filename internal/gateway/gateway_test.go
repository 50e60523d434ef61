package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hungson175/hd-tts/internal/audit"
	"github.com/hungson175/hd-tts/internal/broker"
	"github.com/hungson175/hd-tts/internal/config"
	"github.com/hungson175/hd-tts/internal/credential"
	"github.com/hungson175/hd-tts/internal/engine"
	"github.com/hungson175/hd-tts/internal/queue"
	"github.com/hungson175/hd-tts/internal/voicesamples"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type passthroughPreprocessor struct{}

func (passthroughPreprocessor) Preprocess(ctx context.Context, raw []byte, trimTo int) (engine.PreprocessedReference, error) {
	return engine.PreprocessedReference{AudioWAV: raw}, nil
}

func newTestGateway(t *testing.T) (*Gateway, *queue.Service, *credential.Store) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	b := broker.NewFromClient(client)

	q := queue.New(b, 300*time.Second, 5*time.Millisecond)
	creds := credential.New(b)
	samples, err := voicesamples.New(t.TempDir(), 3)
	require.NoError(t, err)
	al, err := audit.New(config.Audit{Enabled: false})
	require.NoError(t, err)

	cfg := config.Gateway{DefaultJobTimeout: time.Second, TrustProxyHeaders: false}
	gw := New(cfg, creds, q, samples, passthroughPreprocessor{}, newRateLimiter(b, 0), al, zap.NewNop())
	return gw, q, creds
}

func simulateWorker(t *testing.T, q *queue.Service, quality queue.Quality, result queue.Result) {
	t.Helper()
	go func() {
		job, ok, err := q.Dequeue(context.Background(), quality, time.Second)
		if err != nil || !ok {
			return
		}
		result.CompletedAt = time.Now()
		_ = q.StoreResult(context.Background(), job.JobID, result)
	}()
}

func TestSynthesizeHappyPathFromLocalhost(t *testing.T) {
	gw, q, _ := newTestGateway(t)
	simulateWorker(t, q, queue.QualityHigh, queue.Result{Status: queue.StatusCompleted, Audio: []byte("wav-bytes"), GenerationTime: 0.5, AudioDuration: 1.2})

	body := `{"text":"xin chao","gender":"female","area":"northern","quality":"high"}`
	req := httptest.NewRequest(http.MethodPost, "/synthesize", bytes.NewBufferString(body))
	req.RemoteAddr = "127.0.0.1:5555"
	rec := httptest.NewRecorder()

	gw.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "wav-bytes", rec.Body.String())
	require.NotEmpty(t, rec.Header().Get("X-Job-Id"))
}

func TestSynthesizeAsyncRequiresCredentialFromRemote(t *testing.T) {
	gw, _, _ := newTestGateway(t)

	body := `{"text":"hello"}`
	req := httptest.NewRequest(http.MethodPost, "/synthesize/async", bytes.NewBufferString(body))
	req.RemoteAddr = "203.0.113.9:1111"
	rec := httptest.NewRecorder()
	gw.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req2 := httptest.NewRequest(http.MethodPost, "/synthesize/async", bytes.NewBufferString(body))
	req2.RemoteAddr = "203.0.113.9:1111"
	req2.Header.Set("X-API-Key", "vvtts_deadbeefdeadbeefdeadbeefdeadbeef")
	rec2 := httptest.NewRecorder()
	gw.Router().ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusUnauthorized, rec2.Code)
}

func TestSynthesizeAsyncAcceptsValidCredential(t *testing.T) {
	gw, _, creds := newTestGateway(t)
	secret, _, err := creds.Create(context.Background(), "test-client")
	require.NoError(t, err)

	body := `{"text":"hello","quality":"fast"}`
	req := httptest.NewRequest(http.MethodPost, "/synthesize/async", bytes.NewBufferString(body))
	req.RemoteAddr = "203.0.113.9:1111"
	req.Header.Set("X-API-Key", secret)
	rec := httptest.NewRecorder()
	gw.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp asyncResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "pending", resp.Status)
	require.NotEmpty(t, resp.JobID)
}

func TestSynthesizeValidationRejectsOverlongText(t *testing.T) {
	gw, _, _ := newTestGateway(t)
	tooLong := make([]byte, 5001)
	for i := range tooLong {
		tooLong[i] = 'a'
	}
	payload, _ := json.Marshal(map[string]string{"text": string(tooLong)})
	req := httptest.NewRequest(http.MethodPost, "/synthesize", bytes.NewReader(payload))
	req.RemoteAddr = "127.0.0.1:5555"
	rec := httptest.NewRecorder()
	gw.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestGetJobReturns404ForUnknownID(t *testing.T) {
	gw, _, _ := newTestGateway(t)
	req := httptest.NewRequest(http.MethodGet, "/job/does-not-exist", nil)
	rec := httptest.NewRecorder()
	gw.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetJobAudioReturns404WhenResultAbsent(t *testing.T) {
	gw, q, _ := newTestGateway(t)
	require.NoError(t, q.Enqueue(context.Background(), queue.Job{JobID: "job-x", Quality: queue.QualityHigh, CreatedAt: time.Now()}))

	req := httptest.NewRequest(http.MethodGet, "/job/job-x/audio", nil)
	rec := httptest.NewRecorder()
	gw.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetJobAudioReturns400WhenTerminalButNotCompleted(t *testing.T) {
	gw, q, _ := newTestGateway(t)
	require.NoError(t, q.StoreResult(context.Background(), "job-err", queue.Result{Status: queue.StatusError, Error: "engine blew up"}))

	req := httptest.NewRequest(http.MethodGet, "/job/job-err/audio", nil)
	rec := httptest.NewRecorder()
	gw.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthReportsQueueSizes(t *testing.T) {
	gw, q, _ := newTestGateway(t)
	require.NoError(t, q.Enqueue(context.Background(), queue.Job{JobID: "h1", Quality: queue.QualityHigh, CreatedAt: time.Now()}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	gw.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "healthy", resp.Status)
	require.Equal(t, int64(1), resp.QueueSizes["high"])
}

func TestVoiceSampleCreateListDeleteRoundTrip(t *testing.T) {
	gw, _, _ := newTestGateway(t)
	payload, _ := json.Marshal(voiceSampleUpload{
		Audio:         base64.StdEncoding.EncodeToString([]byte("raw-audio")),
		ReferenceText: "hello there",
		Name:          "greeting",
	})
	req := httptest.NewRequest(http.MethodPost, "/voice-samples", bytes.NewReader(payload))
	req.RemoteAddr = "127.0.0.1:5555"
	rec := httptest.NewRecorder()
	gw.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var sample voicesamples.Sample
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sample))
	require.True(t, sample.IsNamed)

	listReq := httptest.NewRequest(http.MethodGet, "/voice-samples", nil)
	listRec := httptest.NewRecorder()
	gw.Router().ServeHTTP(listRec, listReq)
	require.Equal(t, http.StatusOK, listRec.Code)

	delReq := httptest.NewRequest(http.MethodDelete, "/voice-samples/"+sample.ID, nil)
	delReq.RemoteAddr = "127.0.0.1:5555"
	delRec := httptest.NewRecorder()
	gw.Router().ServeHTTP(delRec, delReq)
	require.Equal(t, http.StatusOK, delRec.Code)
}

func TestVoicesEnumeratesStaticSets(t *testing.T) {
	gw, _, _ := newTestGateway(t)
	req := httptest.NewRequest(http.MethodGet, "/voices", nil)
	rec := httptest.NewRecorder()
	gw.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var opts VoiceOptions
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &opts))
	require.Contains(t, opts.Gender, "male")
}
