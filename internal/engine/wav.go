package engine

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
)

// pcm16WAV is the minimal subset of RIFF/WAVE this package needs: a mono or
// stereo 16-bit PCM stream plus its sample rate. Anything richer (float
// PCM, compressed codecs) is rejected rather than guessed at.
type pcm16WAV struct {
	sampleRate    uint32
	numChannels   uint16
	bitsPerSample uint16
	samples       []byte // raw little-endian PCM payload
}

func decodeWAV(raw []byte) (pcm16WAV, error) {
	r := bytes.NewReader(raw)
	var riffHeader [12]byte
	if _, err := r.Read(riffHeader[:]); err != nil {
		return pcm16WAV{}, fmt.Errorf("read riff header: %w", err)
	}
	if string(riffHeader[0:4]) != "RIFF" || string(riffHeader[8:12]) != "WAVE" {
		return pcm16WAV{}, fmt.Errorf("not a RIFF/WAVE file")
	}

	var out pcm16WAV
	for {
		var chunkID [4]byte
		var chunkSize uint32
		if _, err := r.Read(chunkID[:]); err != nil {
			break
		}
		if err := binary.Read(r, binary.LittleEndian, &chunkSize); err != nil {
			break
		}
		body := make([]byte, chunkSize)
		if _, err := r.Read(body); err != nil {
			return pcm16WAV{}, fmt.Errorf("read chunk %q: %w", chunkID, err)
		}
		switch string(chunkID[:]) {
		case "fmt ":
			if len(body) < 16 {
				return pcm16WAV{}, fmt.Errorf("fmt chunk too short")
			}
			out.numChannels = binary.LittleEndian.Uint16(body[2:4])
			out.sampleRate = binary.LittleEndian.Uint32(body[4:8])
			out.bitsPerSample = binary.LittleEndian.Uint16(body[14:16])
		case "data":
			out.samples = body
		}
		if chunkSize%2 == 1 {
			r.Seek(1, 1) // chunks are word-aligned
		}
	}
	if out.bitsPerSample != 16 {
		return pcm16WAV{}, fmt.Errorf("unsupported bits per sample: %d", out.bitsPerSample)
	}
	if out.samples == nil {
		return pcm16WAV{}, fmt.Errorf("no data chunk found")
	}
	return out, nil
}

func encodeWAV(w pcm16WAV) []byte {
	var buf bytes.Buffer
	byteRate := w.sampleRate * uint32(w.numChannels) * uint32(w.bitsPerSample/8)
	blockAlign := w.numChannels * (w.bitsPerSample / 8)
	dataSize := uint32(len(w.samples))

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, w.numChannels)
	binary.Write(&buf, binary.LittleEndian, w.sampleRate)
	binary.Write(&buf, binary.LittleEndian, byteRate)
	binary.Write(&buf, binary.LittleEndian, blockAlign)
	binary.Write(&buf, binary.LittleEndian, w.bitsPerSample)
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, dataSize)
	buf.Write(w.samples)
	return buf.Bytes()
}

// silenceThresholdDBFS mirrors original_source/backend/worker/main.py's
// trim_silence default (-40 dBFS).
const silenceThresholdDBFS = -40.0

func dbfsToAmplitude(dbfs float64) float64 {
	return math.Pow(10, dbfs/20) * 32768
}

// TrimSilence removes leading and trailing silence from 16-bit PCM samples,
// the pure function spec §1(b) and §9 call for ("Reference preprocessing").
// It mirrors detect_leading_silence run forward and on the reversed buffer.
func TrimSilence(w pcm16WAV, thresholdDBFS float64) pcm16WAV {
	frameBytes := int(w.numChannels) * 2
	if frameBytes == 0 || len(w.samples) < frameBytes {
		return w
	}
	threshold := dbfsToAmplitude(thresholdDBFS)
	numFrames := len(w.samples) / frameBytes

	isSilent := func(frame int) bool {
		off := frame * frameBytes
		for c := 0; c < int(w.numChannels); c++ {
			v := int16(binary.LittleEndian.Uint16(w.samples[off+c*2 : off+c*2+2]))
			if math.Abs(float64(v)) > threshold {
				return false
			}
		}
		return true
	}

	start := 0
	for start < numFrames && isSilent(start) {
		start++
	}
	end := numFrames
	for end > start && isSilent(end-1) {
		end--
	}
	if start == 0 && end == numFrames {
		return w
	}
	trimmed := pcm16WAV{
		sampleRate:    w.sampleRate,
		numChannels:   w.numChannels,
		bitsPerSample: w.bitsPerSample,
		samples:       w.samples[start*frameBytes : end*frameBytes],
	}
	return trimmed
}

// truncateToSeconds caps the sample buffer at maxSeconds, honoring
// TrimAudioTo (spec §3, 1–60s range validated at the HTTP boundary).
func truncateToSeconds(w pcm16WAV, maxSeconds int) pcm16WAV {
	if maxSeconds <= 0 {
		return w
	}
	frameBytes := int(w.numChannels) * 2
	maxFrames := maxSeconds * int(w.sampleRate)
	maxBytes := maxFrames * frameBytes
	if maxBytes <= 0 || maxBytes >= len(w.samples) {
		return w
	}
	w.samples = w.samples[:maxBytes]
	return w
}

// DefaultPreprocessor implements Preprocessor over the pure WAV trim above.
type DefaultPreprocessor struct{}

func (DefaultPreprocessor) Preprocess(ctx context.Context, rawAudio []byte, trimToSeconds int) (PreprocessedReference, error) {
	wav, err := decodeWAV(rawAudio)
	if err != nil {
		return PreprocessedReference{}, fmt.Errorf("decode reference audio: %w", err)
	}
	trimmed := TrimSilence(wav, silenceThresholdDBFS)
	trimmed = truncateToSeconds(trimmed, trimToSeconds)
	return PreprocessedReference{AudioWAV: encodeWAV(trimmed)}, nil
}
