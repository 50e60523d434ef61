// Package voicesamples implements the file-backed voice-sample catalog
// (spec §4.4, §6, §9): a directory holding one WAV file per sample plus a
// single JSON index, rewritten atomically (write-temp-then-rename) on every
// mutation so a crash mid-write cannot leave a torn index behind.
package voicesamples

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
)

// Sample is one catalog entry (spec §4.4).
type Sample struct {
	ID            string    `json:"id"`
	Name          string    `json:"name,omitempty"`
	ReferenceText string    `json:"reference_text"`
	CreatedAt     time.Time `json:"created_at"`
	IsNamed       bool      `json:"is_named"`
}

// Catalog is a single-writer CRUD store (spec §5: "a single writer
// assumption suffices (gateway process)").
type Catalog struct {
	mu         sync.Mutex
	dir        string
	maxUnnamed int
}

func New(dir string, maxUnnamed int) (*Catalog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create voice sample dir: %w", err)
	}
	return &Catalog{dir: dir, maxUnnamed: maxUnnamed}, nil
}

func (c *Catalog) indexPath() string   { return filepath.Join(c.dir, "index.json") }
func (c *Catalog) audioPath(id string) string { return filepath.Join(c.dir, id+".wav") }

func (c *Catalog) readIndex() ([]Sample, error) {
	b, err := os.ReadFile(c.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read index: %w", err)
	}
	var samples []Sample
	if err := json.Unmarshal(b, &samples); err != nil {
		return nil, fmt.Errorf("unmarshal index: %w", err)
	}
	return samples, nil
}

// writeIndex replaces the index atomically: write to a temp file in the
// same directory, then rename over the original (spec §9 design note).
func (c *Catalog) writeIndex(samples []Sample) error {
	b, err := json.MarshalIndent(samples, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}
	tmp, err := os.CreateTemp(c.dir, "index-*.json.tmp")
	if err != nil {
		return fmt.Errorf("create temp index: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp index: %w", err)
	}
	if err := os.Rename(tmpName, c.indexPath()); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp index: %w", err)
	}
	return nil
}

// Create stores a (already trimmed) WAV and appends an index entry. When
// name is empty the sample is unnamed and subject to the MaxUnnamed cap:
// the oldest unnamed sample is evicted once the cap would be exceeded.
func (c *Catalog) Create(audio []byte, referenceText, name string) (Sample, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	samples, err := c.readIndex()
	if err != nil {
		return Sample{}, err
	}

	sample := Sample{
		ID:            uuid.NewString(),
		Name:          name,
		ReferenceText: referenceText,
		CreatedAt:     time.Now(),
		IsNamed:       name != "",
	}
	if err := os.WriteFile(c.audioPath(sample.ID), audio, 0o644); err != nil {
		return Sample{}, fmt.Errorf("write sample audio: %w", err)
	}
	samples = append(samples, sample)

	if !sample.IsNamed {
		samples = c.evictExcessUnnamed(samples)
	}

	if err := c.writeIndex(samples); err != nil {
		return Sample{}, err
	}
	return sample, nil
}

// evictExcessUnnamed keeps at most MaxUnnamed unnamed samples, dropping the
// oldest first, and removes their audio files.
func (c *Catalog) evictExcessUnnamed(samples []Sample) []Sample {
	var unnamed []int
	for i, s := range samples {
		if !s.IsNamed {
			unnamed = append(unnamed, i)
		}
	}
	if len(unnamed) <= c.maxUnnamed {
		return samples
	}
	sort.Slice(unnamed, func(a, b int) bool {
		return samples[unnamed[a]].CreatedAt.Before(samples[unnamed[b]].CreatedAt)
	})
	toRemove := len(unnamed) - c.maxUnnamed
	removeIdx := make(map[int]bool, toRemove)
	for _, idx := range unnamed[:toRemove] {
		removeIdx[idx] = true
		_ = os.Remove(c.audioPath(samples[idx].ID))
	}
	out := samples[:0]
	for i, s := range samples {
		if !removeIdx[i] {
			out = append(out, s)
		}
	}
	return out
}

// List returns samples ordered named-first, then newest-first within each
// group (spec §4.4).
func (c *Catalog) List() ([]Sample, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	samples, err := c.readIndex()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(samples, func(i, j int) bool {
		if samples[i].IsNamed != samples[j].IsNamed {
			return samples[i].IsNamed
		}
		return samples[i].CreatedAt.After(samples[j].CreatedAt)
	})
	return samples, nil
}

// Get returns one sample's metadata and audio bytes.
func (c *Catalog) Get(id string) (Sample, []byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	samples, err := c.readIndex()
	if err != nil {
		return Sample{}, nil, false, err
	}
	for _, s := range samples {
		if s.ID == id {
			audio, err := os.ReadFile(c.audioPath(id))
			if err != nil {
				return Sample{}, nil, false, fmt.Errorf("read sample audio: %w", err)
			}
			return s, audio, true, nil
		}
	}
	return Sample{}, nil, false, nil
}

// Delete removes a sample's audio file and index entry.
func (c *Catalog) Delete(id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	samples, err := c.readIndex()
	if err != nil {
		return false, err
	}
	out := samples[:0]
	found := false
	for _, s := range samples {
		if s.ID == id {
			found = true
			continue
		}
		out = append(out, s)
	}
	if !found {
		return false, nil
	}
	if err := c.writeIndex(out); err != nil {
		return false, err
	}
	_ = os.Remove(c.audioPath(id))
	return true, nil
}

// RepairIndex sweeps the sample directory for .wav files with no matching
// index entry (left behind by a crash between WriteFile and writeIndex)
// and removes them, grounded on the teacher's producer include/exclude
// glob use (bmatcuk/doublestar) repurposed from file discovery to orphan
// cleanup.
func (c *Catalog) RepairIndex() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	samples, err := c.readIndex()
	if err != nil {
		return 0, err
	}
	known := make(map[string]bool, len(samples))
	for _, s := range samples {
		known[s.ID] = true
	}
	matches, err := doublestar.Glob(os.DirFS(c.dir), "*.wav")
	if err != nil {
		return 0, fmt.Errorf("glob sample dir: %w", err)
	}
	removed := 0
	for _, m := range matches {
		id := m[:len(m)-len(".wav")]
		if !known[id] {
			if err := os.Remove(filepath.Join(c.dir, m)); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}
