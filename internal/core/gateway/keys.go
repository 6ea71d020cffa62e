package gateway

import (
	"net/url"
	"strings"

	"github.com/medcityai/pubgate/internal/core"
)

// BuildURL returns the canonical request URL. Query keys are sorted so
// parameter order never changes the result.
func BuildURL(baseURL, path string, params url.Values, apiKey string) string {
	query := url.Values{}
	for key, values := range params {
		query[key] = append([]string(nil), values...)
	}
	if apiKey != "" {
		query.Set("api_key", apiKey)
	}
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(path, "/") + "?" + query.Encode()
}

// CacheKey identifies a persisted response.
func CacheKey(namespace string, rt core.ResponseType, rawURL string) string {
	return namespace + ":" + string(rt) + ":" + rawURL
}

// InflightKey identifies an outstanding request.
func InflightKey(rt core.ResponseType, rawURL string) string {
	return string(rt) + ":" + rawURL
}

// UniqueIDs trims ids, drops empties and keeps the first occurrence of each.
func UniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Chunk splits ids into consecutive slices of at most size elements.
func Chunk(ids []string, size int) [][]string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	chunks := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
