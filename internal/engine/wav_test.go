package engine

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func makeMonoPCM16(samples []int16) pcm16WAV {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return pcm16WAV{sampleRate: 16000, numChannels: 1, bitsPerSample: 16, samples: buf}
}

func TestTrimSilenceRemovesLeadingAndTrailingQuiet(t *testing.T) {
	samples := []int16{0, 0, 0, 20000, 18000, -19000, 0, 0}
	w := makeMonoPCM16(samples)
	trimmed := TrimSilence(w, -40)
	require.Equal(t, 3*2, len(trimmed.samples))
}

func TestTrimSilenceLeavesLoudBufferUnchanged(t *testing.T) {
	samples := []int16{20000, 20000, 20000}
	w := makeMonoPCM16(samples)
	trimmed := TrimSilence(w, -40)
	require.Equal(t, len(w.samples), len(trimmed.samples))
}

func TestTrimSilenceAllSilentYieldsEmpty(t *testing.T) {
	samples := []int16{0, 0, 0, 0}
	w := makeMonoPCM16(samples)
	trimmed := TrimSilence(w, -40)
	require.Empty(t, trimmed.samples)
}

func TestEncodeDecodeWAVRoundTrips(t *testing.T) {
	w := makeMonoPCM16([]int16{100, -100, 200, -200})
	raw := encodeWAV(w)
	got, err := decodeWAV(raw)
	require.NoError(t, err)
	require.Equal(t, w.samples, got.samples)
	require.Equal(t, w.sampleRate, got.sampleRate)
	require.Equal(t, w.numChannels, got.numChannels)
}
