package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/medcityai/pubgate/internal/core"
)

// Cache is the durable key-value storage behind the gateway. A nil value
// with a nil error is a miss.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Envelope is the persisted form of a cached response.
type Envelope struct {
	TS   int64           `json:"ts"`
	Data json.RawMessage `json:"data"`
}

var errCorruptEntry = errors.New("corrupt cache entry")

// EncodeEnvelope wraps payload for storage. Text payloads are stored as a
// JSON string; JSON payloads are stored as-is.
func EncodeEnvelope(rt core.ResponseType, payload []byte, at time.Time) ([]byte, error) {
	data := payload
	if rt == core.ResponseText {
		encoded, err := marshalNoEscape(string(payload))
		if err != nil {
			return nil, err
		}
		data = encoded
	}
	return marshalNoEscape(Envelope{TS: at.UnixMilli(), Data: data})
}

// DecodeEnvelope unwraps a stored entry into its timestamp and payload.
func DecodeEnvelope(rt core.ResponseType, raw []byte) (time.Time, []byte, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return time.Time{}, nil, errCorruptEntry
	}
	if env.TS <= 0 || len(env.Data) == 0 || string(env.Data) == "null" {
		return time.Time{}, nil, errCorruptEntry
	}

	ts := time.UnixMilli(env.TS).UTC()
	if rt == core.ResponseText {
		var text string
		if err := json.Unmarshal(env.Data, &text); err != nil {
			return time.Time{}, nil, errCorruptEntry
		}
		return ts, []byte(text), nil
	}
	return ts, []byte(env.Data), nil
}

func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemoryCache returns an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string][]byte)}
}

func (m *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), value...), nil
}

func (m *MemoryCache) Set(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries == nil {
		m.entries = make(map[string][]byte)
	}
	m.entries[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Len returns the number of stored entries.
func (m *MemoryCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
