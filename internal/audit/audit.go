// Package audit is a rotating, append-only log of mutations that destroy
// state a caller cannot get back. Its one writer is the gateway's
// voice-sample create/delete handlers; credential create/delete (cmd/keyctl,
// internal/credential) is not written to it. Adapted from the teacher's
// internal/rbac-and-tokens/audit.go, which is the one audit implementation
// in the retrieval pack that genuinely uses lumberjack rather than
// hand-rolling rotation.
package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/hungson175/hd-tts/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Entry is one audit record.
type Entry struct {
	Timestamp time.Time              `json:"timestamp"`
	Action    string                 `json:"action"`   // e.g. "credential.create", "voice_sample.delete"
	Subject   string                 `json:"subject"`  // key_id or sample_id
	Source    string                 `json:"source"`   // caller's remote address
	Result    string                 `json:"result"`   // "ok" | "denied" | "error"
	Details   map[string]interface{} `json:"details,omitempty"`
}

// Logger writes audit entries to a rotating, compressed log file.
type Logger struct {
	mu       sync.Mutex
	writer   io.Writer
	file     *lumberjack.Logger
	cfg      config.Audit
	filterFn func(*Entry) *Entry
}

// New builds a Logger per cfg. When cfg.Enabled is false, Log is a no-op —
// callers never need to branch on whether auditing is turned on.
func New(cfg config.Audit) (*Logger, error) {
	if !cfg.Enabled {
		return &Logger{cfg: cfg, filterFn: passthroughFilter}, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.LogPath), 0o755); err != nil {
		return nil, fmt.Errorf("create audit log directory: %w", err)
	}
	file := &lumberjack.Logger{
		Filename:   cfg.LogPath,
		MaxSize:    cfg.RotateSizeMB,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	}
	l := &Logger{writer: file, file: file, cfg: cfg, filterFn: passthroughFilter}
	if cfg.FilterSensitive {
		l.filterFn = sensitiveFilter
	}
	return l, nil
}

// Log appends one entry, filtering sensitive fields if configured.
func (l *Logger) Log(entry Entry) error {
	if !l.cfg.Enabled {
		return nil
	}
	filtered := l.filterFn(&entry)
	if filtered == nil {
		return nil
	}
	if filtered.Timestamp.IsZero() {
		filtered.Timestamp = time.Now()
	}
	b, err := json.Marshal(filtered)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = l.writer.Write(append(b, '\n'))
	return err
}

// Filter describes a query over Query's results.
type Filter struct {
	Action    string
	Subject   string
	Result    string
	StartTime time.Time
	EndTime   time.Time
	Limit     int
}

// Query reads matching entries back from the log file, newest first. This
// is a file scan, not an index — adequate at this system's audit volume
// (credential and voice-sample mutations are rare compared to job traffic).
func (l *Logger) Query(filter Filter) ([]*Entry, error) {
	if !l.cfg.Enabled {
		return nil, nil
	}
	f, err := os.Open(l.cfg.LogPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	var entries []*Entry
	dec := json.NewDecoder(f)
	for {
		var e Entry
		if err := dec.Decode(&e); err != nil {
			if err == io.EOF {
				break
			}
			continue
		}
		if matches(&e, &filter) {
			entries = append(entries, &e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Timestamp.After(entries[j].Timestamp) })
	if filter.Limit > 0 && len(entries) > filter.Limit {
		entries = entries[:filter.Limit]
	}
	return entries, nil
}

func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

func passthroughFilter(e *Entry) *Entry { return e }

func sensitiveFilter(e *Entry) *Entry {
	if e == nil {
		return nil
	}
	filtered := *e
	if filtered.Details != nil {
		out := make(map[string]interface{}, len(filtered.Details))
		for k, v := range filtered.Details {
			switch k {
			case "secret", "full_secret", "audio_bytes":
				out[k] = "[REDACTED]"
			default:
				out[k] = v
			}
		}
		filtered.Details = out
	}
	return &filtered
}

func matches(e *Entry, f *Filter) bool {
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.Subject != "" && e.Subject != f.Subject {
		return false
	}
	if f.Result != "" && e.Result != f.Result {
		return false
	}
	if !f.StartTime.IsZero() && e.Timestamp.Before(f.StartTime) {
		return false
	}
	if !f.EndTime.IsZero() && e.Timestamp.After(f.EndTime) {
		return false
	}
	return true
}
