package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/medcityai/pubgate/internal/core"
	"github.com/medcityai/pubgate/internal/core/engine"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func noSleep(ctx context.Context, d time.Duration) error { return nil }

type failingCache struct{}

func (failingCache) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, errors.New("storage unavailable")
}

func (failingCache) Set(ctx context.Context, key string, value []byte) error {
	return errors.New("quota exceeded")
}

func (failingCache) Delete(ctx context.Context, key string) error {
	return errors.New("storage unavailable")
}

func newTestGateway(t *testing.T, server *httptest.Server, mutate func(*Config), opts ...Option) *Gateway {
	t.Helper()
	cfg := DefaultConfig()
	cfg.BaseURL = server.URL
	cfg.MinInterval = time.Millisecond
	if mutate != nil {
		mutate(&cfg)
	}
	base := []Option{WithHTTPClient(server.Client()), WithSleep(noSleep)}
	g, err := New(cfg, append(base, opts...)...)
	require.NoError(t, err)
	return g
}

func searchParams() url.Values {
	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("term", "mayo clinic")
	params.Set("retmode", "json")
	return params
}

func TestRequestJSONServesCachedResponse(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"esearchresult": {"count": "2", "idlist": ["1", "2"], "note": "a < b"}}`))
	}))
	defer server.Close()

	g := newTestGateway(t, server, nil)

	first, err := g.RequestJSON(context.Background(), "esearch.fcgi", searchParams())
	require.NoError(t, err)
	second, err := g.RequestJSON(context.Background(), "esearch.fcgi", searchParams())
	require.NoError(t, err)

	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
	require.Equal(t, []byte(first), []byte(second))
	require.JSONEq(t, `{"esearchresult":{"count":"2","idlist":["1","2"],"note":"a < b"}}`, string(second))
}

func TestCacheEntryExpires(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		_, _ = fmt.Fprintf(w, `{"call": %d}`, n)
	}))
	defer server.Close()

	clock := newTestClock()
	g := newTestGateway(t, server, nil, WithClock(clock.Now))

	_, err := g.RequestJSON(context.Background(), "esummary.fcgi", searchParams())
	require.NoError(t, err)

	clock.Advance(DefaultCacheTTL - time.Millisecond)
	body, err := g.RequestJSON(context.Background(), "esummary.fcgi", searchParams())
	require.NoError(t, err)
	require.JSONEq(t, `{"call":1}`, string(body))
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))

	clock.Advance(time.Millisecond)
	body, err = g.RequestJSON(context.Background(), "esummary.fcgi", searchParams())
	require.NoError(t, err)
	require.JSONEq(t, `{"call":2}`, string(body))
	require.Equal(t, int32(2), atomic.LoadInt32(&calls))

	// the refreshed entry is served again
	body, err = g.RequestJSON(context.Background(), "esummary.fcgi", searchParams())
	require.NoError(t, err)
	require.JSONEq(t, `{"call":2}`, string(body))
	require.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestConcurrentRequestsShareOneCall(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		<-release
		_, _ = w.Write([]byte("<PubmedArticleSet/>"))
	}))
	defer server.Close()

	g := newTestGateway(t, server, nil)

	const callers = 12
	var wg sync.WaitGroup
	results := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = g.RequestText(context.Background(), "efetch.fcgi", url.Values{"id": {"42"}})
		}(i)
	}

	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, 2*time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, "<PubmedArticleSet/>", results[i])
	}
}

func TestSharedFailureReachesEveryCaller(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			<-release
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	defer server.Close()

	g := newTestGateway(t, server, nil)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = g.RequestJSON(context.Background(), "esearch.fcgi", searchParams())
		}(i)
	}
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, 2*time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, err := range errs {
		if err == nil {
			// a caller that arrived after the failure settled issues its own call
			continue
		}
		reqErr, ok := engine.AsRequestError(err)
		require.True(t, ok)
		require.Equal(t, http.StatusBadRequest, reqErr.StatusCode)
	}

	// failures are not cached and the in-flight registration is cleared
	body, err := g.RequestJSON(context.Background(), "esearch.fcgi", searchParams())
	require.NoError(t, err)
	require.JSONEq(t, `{"ok":true}`, string(body))
}

func TestCallerCancellationDoesNotAbortSharedCall(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		<-release
		_, _ = w.Write([]byte("done"))
	}))
	defer server.Close()

	cache := NewMemoryCache()
	g := newTestGateway(t, server, nil, WithCache(cache))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := g.RequestText(ctx, "efetch.fcgi", url.Values{"id": {"7"}})
		errCh <- err
	}()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, 2*time.Second, time.Millisecond)
	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)

	close(release)
	require.Eventually(t, func() bool { return cache.Len() == 1 }, 2*time.Second, time.Millisecond)

	body, err := g.RequestText(context.Background(), "efetch.fcgi", url.Values{"id": {"7"}})
	require.NoError(t, err)
	require.Equal(t, "done", body)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCorruptEntryIsReplaced(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`[1,2,3]`))
	}))
	defer server.Close()

	cache := NewMemoryCache()
	g := newTestGateway(t, server, nil, WithCache(cache))

	key := CacheKey(DefaultNamespace, core.ResponseJSON, g.URL("esearch.fcgi", searchParams()))
	require.NoError(t, cache.Set(context.Background(), key, []byte("{not json")))

	body, err := g.RequestJSON(context.Background(), "esearch.fcgi", searchParams())
	require.NoError(t, err)
	require.Equal(t, "[1,2,3]", string(body))
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))

	raw, err := cache.Get(context.Background(), key)
	require.NoError(t, err)
	var env Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	require.Equal(t, "[1,2,3]", string(env.Data))
}

func TestCacheFailuresAreSwallowed(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte("payload"))
	}))
	defer server.Close()

	g := newTestGateway(t, server, nil, WithCache(failingCache{}))

	for i := 0; i < 2; i++ {
		body, err := g.RequestText(context.Background(), "efetch.fcgi", url.Values{"id": {"1"}})
		require.NoError(t, err)
		require.Equal(t, "payload", body)
	}
	require.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestTextPayloadStoredAsJSONString(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<a href="x">&amp;</a>`))
	}))
	defer server.Close()

	clock := newTestClock()
	cache := NewMemoryCache()
	g := newTestGateway(t, server, nil, WithCache(cache), WithClock(clock.Now))

	params := url.Values{"id": {"9"}}
	_, err := g.RequestText(context.Background(), "efetch.fcgi", params)
	require.NoError(t, err)

	raw, err := cache.Get(context.Background(), CacheKey("pubmed", core.ResponseText, g.URL("efetch.fcgi", params)))
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	require.Equal(t, clock.Now().UnixMilli(), env.TS)

	var text string
	require.NoError(t, json.Unmarshal(env.Data, &text))
	require.Equal(t, `<a href="x">&amp;</a>`, text)
}

func TestInvalidJSONIsDecodeErrorAndNotCached(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte("<html>maintenance</html>"))
	}))
	defer server.Close()

	cache := NewMemoryCache()
	g := newTestGateway(t, server, nil, WithCache(cache))

	_, err := g.RequestJSON(context.Background(), "esearch.fcgi", searchParams())
	require.Error(t, err)
	reqErr, ok := engine.AsRequestError(err)
	require.True(t, ok)
	require.Equal(t, engine.KindDecode, reqErr.Kind)
	require.Equal(t, 0, cache.Len())

	_, err = g.RequestJSON(context.Background(), "esearch.fcgi", searchParams())
	require.Error(t, err)
	require.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestAPIKeyIsSentAndRedacted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "s3cret", r.URL.Query().Get("api_key"))
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	g := newTestGateway(t, server, func(cfg *Config) {
		cfg.APIKey = "s3cret"
		cfg.MinInterval = 0
	})

	settings := g.Settings()
	require.True(t, settings.APIKeyEnabled)
	require.Equal(t, engine.KeyedMinInterval, settings.MinInterval)
	require.Equal(t, DefaultCacheTTL, settings.CacheTTL)
	require.Equal(t, 20*time.Second, settings.RequestTimeout)
	require.Equal(t, 4, settings.MaxRetries)
	require.Equal(t, DefaultChunkSize, settings.ChunkSize)

	_, err := g.RequestJSON(context.Background(), "esearch.fcgi", searchParams())
	require.Error(t, err)
	require.NotContains(t, err.Error(), "s3cret")
}

func TestFetchBatchByIDsChunks(t *testing.T) {
	var (
		mu    sync.Mutex
		sizes []int
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/efetch.fcgi", r.URL.Path)
		query := r.URL.Query()
		require.Equal(t, "pubmed", query.Get("db"))
		require.Equal(t, "xml", query.Get("retmode"))
		ids := strings.Split(query.Get("id"), ",")

		mu.Lock()
		sizes = append(sizes, len(ids))
		mu.Unlock()
		_, _ = fmt.Fprintf(w, "<chunk first=%q/>", ids[0])
	}))
	defer server.Close()

	g := newTestGateway(t, server, nil)

	ids := make([]string, 0, 400)
	for i := 1; i <= 320; i++ {
		ids = append(ids, fmt.Sprintf("%d", 1000+i))
	}
	ids = append(ids, "1001", "1002", "", "  ", "1320")

	var progress []ChunkProgress
	chunks, err := g.FetchBatchByIDs(context.Background(), ids, 150, WithChunkProgress(func(p ChunkProgress) {
		progress = append(progress, p)
	}))
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	require.Equal(t, []int{150, 150, 20}, sizes)
	require.Equal(t, `<chunk first="1001"/>`, chunks[0])
	require.Equal(t, `<chunk first="1151"/>`, chunks[1])
	require.Equal(t, `<chunk first="1301"/>`, chunks[2])

	require.Len(t, progress, 3)
	require.Equal(t, ChunkProgress{Index: 2, Total: 3, Size: 20}, progress[2])
}

func TestFetchBatchByIDsDefaultChunkSize(t *testing.T) {
	var (
		mu    sync.Mutex
		sizes []int
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		sizes = append(sizes, len(strings.Split(r.URL.Query().Get("id"), ",")))
		mu.Unlock()
		_, _ = w.Write([]byte("<ok/>"))
	}))
	defer server.Close()

	g := newTestGateway(t, server, nil)

	ids := make([]string, 0, 80)
	for i := 0; i < 80; i++ {
		ids = append(ids, fmt.Sprintf("%d", i+1))
	}

	chunks, err := g.FetchBatchByIDs(context.Background(), ids, 0)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	require.Equal(t, []int{75, 5}, sizes)

	empty, err := g.FetchBatchByIDs(context.Background(), nil, 0)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestFetchBatchByIDsStopsAtFirstFailure(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 2 {
			w.WriteHeader(http.StatusRequestURITooLong)
			return
		}
		_, _ = w.Write([]byte("<ok/>"))
	}))
	defer server.Close()

	g := newTestGateway(t, server, nil)

	_, err := g.FetchBatchByIDs(context.Background(), []string{"1", "2", "3", "4", "5"}, 2)
	require.Error(t, err)
	require.Contains(t, err.Error(), "efetch chunk 2/3")
	require.Equal(t, int32(2), atomic.LoadInt32(&calls))

	reqErr, ok := engine.AsRequestError(err)
	require.True(t, ok)
	require.Equal(t, http.StatusRequestURITooLong, reqErr.StatusCode)
}

func TestBuildURLIsCanonical(t *testing.T) {
	a := url.Values{}
	a.Set("term", "cancer")
	a.Set("db", "pubmed")
	b := url.Values{}
	b.Set("db", "pubmed")
	b.Set("term", "cancer")

	require.Equal(t, BuildURL("https://eutils.example/", "/esearch.fcgi", a, ""), BuildURL("https://eutils.example", "esearch.fcgi", b, ""))
	require.Equal(t, "https://eutils.example/esearch.fcgi?api_key=k&db=pubmed&term=cancer", BuildURL("https://eutils.example", "esearch.fcgi", a, "k"))
	require.Empty(t, a.Get("api_key"))

	require.Equal(t, "pubmed:text:https://x/efetch.fcgi?id=1", CacheKey("pubmed", core.ResponseText, "https://x/efetch.fcgi?id=1"))
	require.Equal(t, "json:https://x/esearch.fcgi?", InflightKey(core.ResponseJSON, "https://x/esearch.fcgi?"))
}

func TestNewRejectsInvalidBaseURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseURL = "not a url"
	_, err := New(cfg)
	require.Error(t, err)

	g, err := New(Config{})
	require.NoError(t, err)
	require.Equal(t, engine.AnonymousMinInterval, g.Settings().MinInterval)
	require.Equal(t, DefaultBaseURL, g.Settings().BaseURL)
}
