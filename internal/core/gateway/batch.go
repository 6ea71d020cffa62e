package gateway

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// ChunkProgress reports a completed batch chunk.
type ChunkProgress struct {
	Index int
	Total int
	Size  int
}

// BatchOption customises FetchBatchByIDs.
type BatchOption func(*batchOptions)

type batchOptions struct {
	onChunk func(ChunkProgress)
}

// WithChunkProgress registers a callback invoked after each chunk succeeds.
func WithChunkProgress(fn func(ChunkProgress)) BatchOption {
	return func(o *batchOptions) { o.onChunk = fn }
}

// FetchBatchByIDs fetches efetch XML for ids in chunks of at most chunkSize
// and returns the chunk bodies in order. A non-positive chunkSize uses the
// configured default. The first failing chunk fails the whole batch.
func (g *Gateway) FetchBatchByIDs(ctx context.Context, ids []string, chunkSize int, opts ...BatchOption) ([]string, error) {
	o := batchOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if chunkSize <= 0 {
		chunkSize = g.cfg.ChunkSize
	}

	chunks := Chunk(UniqueIDs(ids), chunkSize)
	results := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		params := url.Values{}
		params.Set("db", "pubmed")
		params.Set("id", strings.Join(chunk, ","))
		params.Set("retmode", "xml")

		body, err := g.RequestText(ctx, "efetch.fcgi", params)
		if err != nil {
			return nil, fmt.Errorf("efetch chunk %d/%d: %w", i+1, len(chunks), err)
		}
		results = append(results, body)

		if o.onChunk != nil {
			o.onChunk(ChunkProgress{Index: i, Total: len(chunks), Size: len(chunk)})
		}
	}
	return results, nil
}
