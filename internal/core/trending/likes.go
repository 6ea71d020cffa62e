// Package trending merges like counts with article metadata to pick the
// articles shown in the trending list and the weekly featured report.
package trending

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultLikesURL is the spreadsheet-backed like counter.
const DefaultLikesURL = "https://script.google.com/macros/s/AKfycbw2g5z_1ALbqWjcdY7YsCkwpOpztGJhjOgfRxhGhB8dDA1nwtvySoB5nivNpCnaxIz4/exec?action=getCounts"

// Likes maps a PMID to its like count.
type Likes map[string]int

// Ranked is a PMID with its like count.
type Ranked struct {
	PMID  string `json:"pmid"`
	Likes int    `json:"likes"`
}

// Ranked returns PMIDs ordered by likes descending, then PMID ascending.
func (l Likes) Ranked() []Ranked {
	out := make([]Ranked, 0, len(l))
	for pmid, count := range l {
		out = append(out, Ranked{PMID: pmid, Likes: count})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Likes != out[j].Likes {
			return out[i].Likes > out[j].Likes
		}
		return out[i].PMID < out[j].PMID
	})
	return out
}

// LikeSource reads like counts from the counter endpoint.
type LikeSource struct {
	URL     string
	Client  *http.Client
	Timeout time.Duration
}

// Fetch returns the current like counts.
func (s *LikeSource) Fetch(ctx context.Context) (Likes, error) {
	if s == nil || strings.TrimSpace(s.URL) == "" {
		return nil, errors.New("likes source is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch likes: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch likes: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read likes: %w", err)
	}
	return ParseLikes(body)
}

// ParseLikes decodes a {pmid: count} document. Counts may be numbers or
// numeric strings; anything else counts as zero.
func ParseLikes(data []byte) (Likes, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode likes: %w", err)
	}

	likes := make(Likes, len(raw))
	for pmid, value := range raw {
		pmid = strings.TrimSpace(pmid)
		if pmid == "" {
			continue
		}
		likes[pmid] = likeCount(value)
	}
	return likes, nil
}

func likeCount(value json.RawMessage) int {
	var number float64
	if err := json.Unmarshal(value, &number); err == nil {
		return clampCount(number)
	}
	var text string
	if err := json.Unmarshal(value, &text); err == nil {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(text), 64); err == nil {
			return clampCount(parsed)
		}
	}
	return 0
}

func clampCount(value float64) int {
	if math.IsNaN(value) || value <= 0 {
		return 0
	}
	if value > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(value)
}
