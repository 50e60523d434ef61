// Package credential implements the Credential Store (spec §4.2): keyed
// records holding a hashed secret and running usage counters. Grounded on
// _examples/original_source/backend/shared/auth.py, with the one mandated
// behavior change: usage counters are atomic broker hash-field increments,
// not a read-decode-mutate-write of the whole record (spec §9 design note,
// property I7).
package credential

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/hungson175/hd-tts/internal/broker"
)

const (
	keyPrefix   = "vvtts"
	secretBytes = 16 // 32 hex chars
	keyIDLen    = 8
)

// Info is the caller-visible record: everything but the secret itself.
type Info struct {
	KeyID         string    `json:"key_id"`
	Name          string    `json:"name"`
	CreatedAt     time.Time `json:"created_at"`
	RequestsCount int64     `json:"requests_count"`
	AudioSeconds  float64   `json:"audio_seconds"`
	LastUsedAt    time.Time `json:"last_used_at,omitempty"`
}

type record struct {
	KeyID      string    `json:"key_id"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
	SecretHash string    `json:"secret_hash"`
	LastUsedAt time.Time `json:"last_used_at,omitempty"`
}

func recordKey(keyID string) string  { return fmt.Sprintf("apikey:%s", keyID) }
func usageKey(keyID string) string   { return fmt.Sprintf("apikey:%s:usage", keyID) }
func indexKey() string               { return "apikey:index" }

// Store is the broker-backed credential store.
type Store struct {
	broker broker.Broker
}

func New(b broker.Broker) *Store {
	return &Store{broker: b}
}

// generateSecret returns prefix + 32 hex chars, mirroring
// original_source's generate_api_key.
func generateSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return keyPrefix + "_" + hex.EncodeToString(buf), nil
}

// KeyID returns the public suffix (last 8 chars) used to identify a secret
// without revealing it, mirroring get_key_id_from_full_key.
func KeyID(fullSecret string) string {
	if len(fullSecret) < keyIDLen {
		return fullSecret
	}
	return fullSecret[len(fullSecret)-keyIDLen:]
}

func hashSecret(fullSecret string) string {
	sum := sha256.Sum256([]byte(fullSecret))
	return hex.EncodeToString(sum[:])
}

// Create mints a new secret and persists its record. Returns the full
// secret (shown to the caller once) and the public Info.
func (s *Store) Create(ctx context.Context, name string) (string, Info, error) {
	secret, err := generateSecret()
	if err != nil {
		return "", Info{}, err
	}
	keyID := KeyID(secret)
	now := time.Now()
	rec := record{KeyID: keyID, Name: name, CreatedAt: now, SecretHash: hashSecret(secret)}
	payload, err := json.Marshal(rec)
	if err != nil {
		return "", Info{}, fmt.Errorf("marshal record: %w", err)
	}
	if err := s.broker.Set(ctx, recordKey(keyID), string(payload), 0); err != nil {
		return "", Info{}, fmt.Errorf("store record: %w", err)
	}
	if err := s.addToIndex(ctx, keyID); err != nil {
		return "", Info{}, err
	}
	return secret, Info{KeyID: keyID, Name: name, CreatedAt: now}, nil
}

// Validate checks a caller-supplied full secret against the store. It
// returns (Info, false, nil) when the secret is malformed or unknown, never
// an error purely for an invalid credential.
func (s *Store) Validate(ctx context.Context, fullSecret string) (Info, bool, error) {
	if len(fullSecret) < keyIDLen {
		return Info{}, false, nil
	}
	keyID := KeyID(fullSecret)
	rec, ok, err := s.getRecord(ctx, keyID)
	if err != nil || !ok {
		return Info{}, false, err
	}
	want := hashSecret(fullSecret)
	if subtle.ConstantTimeCompare([]byte(want), []byte(rec.SecretHash)) != 1 {
		return Info{}, false, nil
	}
	// Best-effort: a valid credential stays valid even if the last_used_at
	// stamp fails to persist.
	if touched, err := s.touch(ctx, rec); err == nil {
		rec = touched
	}
	info, err := s.infoFromRecord(ctx, rec)
	if err != nil {
		return Info{}, false, err
	}
	return info, true, nil
}

// Delete removes a credential's record, usage counters, and index entry.
func (s *Store) Delete(ctx context.Context, keyID string) (bool, error) {
	_, ok, err := s.getRecord(ctx, keyID)
	if err != nil || !ok {
		return false, err
	}
	if err := s.broker.Delete(ctx, recordKey(keyID)); err != nil {
		return false, err
	}
	if err := s.broker.Delete(ctx, usageKey(keyID)); err != nil {
		return false, err
	}
	if err := s.removeFromIndex(ctx, keyID); err != nil {
		return false, err
	}
	return true, nil
}

// List returns every credential's Info, sorted by created_at descending.
func (s *Store) List(ctx context.Context) ([]Info, error) {
	ids, err := s.indexIDs(ctx)
	if err != nil {
		return nil, err
	}
	infos := make([]Info, 0, len(ids))
	for _, id := range ids {
		rec, ok, err := s.getRecord(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		info, err := s.infoFromRecord(ctx, rec)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].CreatedAt.After(infos[j].CreatedAt) })
	return infos, nil
}

// Increment atomically bumps both usage counters. This is the fix for the
// original's racy read-modify-write (spec §9, property I7): requests_count
// and audio_millis are independent broker hash fields, each updated with a
// single atomic HINCRBY-equivalent call.
func (s *Store) Increment(ctx context.Context, keyID string, audioSeconds float64) error {
	if _, err := s.broker.HashIncr(ctx, usageKey(keyID), "requests_count", 1); err != nil {
		return fmt.Errorf("increment requests_count: %w", err)
	}
	// audio_seconds is a float; broker.HashIncr is integer-only (mirrors
	// Redis HINCRBY), so seconds are tracked in millisecond-integer units
	// internally and converted back to float64 at read time.
	millis := int64(audioSeconds * 1000)
	if millis != 0 {
		if _, err := s.broker.HashIncr(ctx, usageKey(keyID), "audio_millis", millis); err != nil {
			return fmt.Errorf("increment audio_millis: %w", err)
		}
	}
	return nil
}

func (s *Store) getRecord(ctx context.Context, keyID string) (record, bool, error) {
	v, ok, err := s.broker.Get(ctx, recordKey(keyID))
	if err != nil || !ok {
		return record{}, ok, err
	}
	var rec record
	if err := json.Unmarshal([]byte(v), &rec); err != nil {
		return record{}, false, fmt.Errorf("unmarshal record: %w", err)
	}
	return rec, true, nil
}

func (s *Store) infoFromRecord(ctx context.Context, rec record) (Info, error) {
	usage, err := s.broker.HashGetAll(ctx, usageKey(rec.KeyID))
	if err != nil {
		return Info{}, err
	}
	var requests int64
	var millis int64
	fmt.Sscanf(usage["requests_count"], "%d", &requests)
	fmt.Sscanf(usage["audio_millis"], "%d", &millis)
	return Info{
		KeyID:         rec.KeyID,
		Name:          rec.Name,
		CreatedAt:     rec.CreatedAt,
		RequestsCount: requests,
		AudioSeconds:  float64(millis) / 1000.0,
		LastUsedAt:    rec.LastUsedAt,
	}, nil
}

// touch stamps LastUsedAt on a successful Validate. Best-effort: a failure
// to persist the stamp must not fail the credential check that triggered
// it, so the caller only logs via the returned error if it cares to.
func (s *Store) touch(ctx context.Context, rec record) (record, error) {
	rec.LastUsedAt = time.Now()
	payload, err := json.Marshal(rec)
	if err != nil {
		return rec, fmt.Errorf("marshal record: %w", err)
	}
	if err := s.broker.Set(ctx, recordKey(rec.KeyID), string(payload), 0); err != nil {
		return rec, fmt.Errorf("store record: %w", err)
	}
	return rec, nil
}

func (s *Store) indexIDs(ctx context.Context) ([]string, error) {
	v, ok, err := s.broker.Get(ctx, indexKey())
	if err != nil || !ok {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal([]byte(v), &ids); err != nil {
		return nil, fmt.Errorf("unmarshal index: %w", err)
	}
	return ids, nil
}

func (s *Store) addToIndex(ctx context.Context, keyID string) error {
	ids, err := s.indexIDs(ctx)
	if err != nil {
		return err
	}
	ids = append(ids, keyID)
	return s.writeIndex(ctx, ids)
}

func (s *Store) removeFromIndex(ctx context.Context, keyID string) error {
	ids, err := s.indexIDs(ctx)
	if err != nil {
		return err
	}
	out := ids[:0]
	for _, id := range ids {
		if id != keyID {
			out = append(out, id)
		}
	}
	return s.writeIndex(ctx, out)
}

func (s *Store) writeIndex(ctx context.Context, ids []string) error {
	payload, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}
	return s.broker.Set(ctx, indexKey(), string(payload), 0)
}
