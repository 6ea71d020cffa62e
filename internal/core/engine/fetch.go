package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// HTTPDoer is satisfied by *http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RetryPolicy bounds the attempts made for a single dispatched request.
type RetryPolicy struct {
	MaxRetries  int
	Timeout     time.Duration
	NetworkBase time.Duration
	StatusBase  time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy mirrors the upstream client contract: four retries,
// 20s per attempt, and exponential backoff capped at 8s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:  4,
		Timeout:     20 * time.Second,
		NetworkBase: 500 * time.Millisecond,
		StatusBase:  400 * time.Millisecond,
		MaxDelay:    8 * time.Second,
	}
}

// RetryEvent describes a failed attempt that will be retried.
type RetryEvent struct {
	URL        string
	Attempt    int
	Delay      time.Duration
	StatusCode int
	Err        error
	RetryAfter bool
}

// Fetcher performs GET requests with per-attempt timeouts and retries.
type Fetcher struct {
	Client    HTTPDoer
	Policy    RetryPolicy
	Sleep     SleepFunc
	Clock     func() time.Time
	UserAgent string
	OnRetry   func(RetryEvent)
}

// Fetch returns the body of a successful (2xx) response for rawURL.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if f == nil {
		return nil, errors.New("fetcher is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	policy := f.Policy
	redacted := RedactURL(rawURL)

	for attempt := 0; ; attempt++ {
		result, err := f.try(ctx, rawURL)
		if err != nil {
			if ctx.Err() != nil {
				return nil, &RequestError{Kind: KindNetwork, URL: redacted, Attempts: attempt + 1, Err: ctx.Err()}
			}
			if attempt >= policy.MaxRetries {
				return nil, &RequestError{Kind: KindNetwork, URL: redacted, Attempts: attempt + 1, Err: err}
			}
			delay := Backoff(policy.NetworkBase, attempt, policy.MaxDelay)
			f.notify(RetryEvent{URL: redacted, Attempt: attempt, Delay: delay, Err: err})
			if err := f.sleep(ctx, delay); err != nil {
				return nil, &RequestError{Kind: KindNetwork, URL: redacted, Attempts: attempt + 1, Err: err}
			}
			continue
		}

		if result.status >= 200 && result.status < 300 {
			return result.body, nil
		}

		if !IsRetriableStatus(result.status) || attempt >= policy.MaxRetries {
			return nil, &RequestError{Kind: KindStatus, URL: redacted, StatusCode: result.status, Attempts: attempt + 1}
		}

		delay, fromHeader := RetryAfter(result.header, f.now())
		if !fromHeader {
			delay = Backoff(policy.StatusBase, attempt, policy.MaxDelay)
		}
		f.notify(RetryEvent{URL: redacted, Attempt: attempt, Delay: delay, StatusCode: result.status, RetryAfter: fromHeader})
		if err := f.sleep(ctx, delay); err != nil {
			return nil, &RequestError{Kind: KindStatus, URL: redacted, StatusCode: result.status, Attempts: attempt + 1, Err: err}
		}
	}
}

type attemptResult struct {
	status int
	header http.Header
	body   []byte
}

func (f *Fetcher) try(ctx context.Context, rawURL string) (*attemptResult, error) {
	timeout := f.Policy.Timeout
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	result := &attemptResult{status: resp.StatusCode, header: resp.Header}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return result, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	result.body = body
	return result, nil
}

// Backoff returns min(max, base*2^attempt).
func Backoff(base time.Duration, attempt int, max time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		attempt = 30
	}
	delay := base * time.Duration(1<<uint(attempt))
	if max > 0 && (delay > max || delay < 0) {
		return max
	}
	return delay
}

// RetryAfter parses a Retry-After header given as seconds or an HTTP date.
func RetryAfter(header http.Header, now time.Time) (time.Duration, bool) {
	if header == nil {
		return 0, false
	}

	retry := strings.TrimSpace(header.Get("Retry-After"))
	if retry == "" {
		return 0, false
	}

	if seconds, err := strconv.ParseFloat(retry, 64); err == nil {
		if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds * float64(time.Second)), true
	}
	if parsed, err := http.ParseTime(retry); err == nil {
		wait := parsed.Sub(now)
		if wait < 0 {
			wait = 0
		}
		return wait, true
	}

	return 0, false
}

func (f *Fetcher) notify(event RetryEvent) {
	if f.OnRetry != nil {
		f.OnRetry(event)
	}
}

func (f *Fetcher) now() time.Time {
	if f != nil && f.Clock != nil {
		return f.Clock()
	}
	return time.Now().UTC()
}

func (f *Fetcher) sleep(ctx context.Context, d time.Duration) error {
	if f != nil && f.Sleep != nil {
		return f.Sleep(ctx, d)
	}
	return Sleep(ctx, d)
}
