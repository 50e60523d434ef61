package audit

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/hungson175/hd-tts/internal/config"
	"github.com/stretchr/testify/require"
)

func TestLogThenQueryRoundTrips(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Audit{Enabled: true, LogPath: filepath.Join(dir, "audit.log"), RotateSizeMB: 10, MaxBackups: 1}
	logger, err := New(cfg)
	require.NoError(t, err)
	defer logger.Close()

	require.NoError(t, logger.Log(Entry{Action: "credential.create", Subject: "abcd1234", Result: "ok"}))
	require.NoError(t, logger.Log(Entry{Action: "credential.delete", Subject: "abcd1234", Result: "ok"}))

	entries, err := logger.Query(Filter{Subject: "abcd1234"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	// newest first
	require.Equal(t, "credential.delete", entries[0].Action)
}

func TestSensitiveFilterRedactsSecret(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Audit{Enabled: true, LogPath: filepath.Join(dir, "audit.log"), FilterSensitive: true}
	logger, err := New(cfg)
	require.NoError(t, err)
	defer logger.Close()

	require.NoError(t, logger.Log(Entry{
		Action: "credential.create", Subject: "abcd1234", Result: "ok",
		Details: map[string]interface{}{"secret": "vvtts_deadbeef", "name": "prod"},
	}))

	entries, err := logger.Query(Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "[REDACTED]", entries[0].Details["secret"])
	require.Equal(t, "prod", entries[0].Details["name"])
}

func TestDisabledLoggerIsNoOp(t *testing.T) {
	cfg := config.Audit{Enabled: false}
	logger, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, logger.Log(Entry{Action: "x", Timestamp: time.Now()}))
	entries, err := logger.Query(Filter{})
	require.NoError(t, err)
	require.Empty(t, entries)
}
