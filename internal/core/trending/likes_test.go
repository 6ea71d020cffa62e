package trending

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseLikes(t *testing.T) {
	likes, err := ParseLikes([]byte(`{"1": 3, "2": "7", "3": "x", "4": 2.9, " ": 1, "5": -1, "6": null}`))
	require.NoError(t, err)
	require.Equal(t, Likes{"1": 3, "2": 7, "3": 0, "4": 2, "5": 0, "6": 0}, likes)

	_, err = ParseLikes([]byte(`[1,2]`))
	require.Error(t, err)
}

func TestLikesRanked(t *testing.T) {
	ranked := Likes{"b": 2, "a": 2, "c": 5}.Ranked()
	require.Equal(t, []Ranked{{PMID: "c", Likes: 5}, {PMID: "a", Likes: 2}, {PMID: "b", Likes: 2}}, ranked)
}

func TestLikeSourceFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "getCounts", r.URL.Query().Get("action"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"39500001": 4, "39500002": "1"}`))
	}))
	defer server.Close()

	source := &LikeSource{URL: server.URL + "/exec?action=getCounts", Client: server.Client(), Timeout: time.Second}
	likes, err := source.Fetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, Likes{"39500001": 4, "39500002": 1}, likes)
}

func TestLikeSourceErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := (&LikeSource{URL: server.URL, Client: server.Client()}).Fetch(context.Background())
	require.ErrorContains(t, err, "502")

	_, err = (&LikeSource{}).Fetch(context.Background())
	require.Error(t, err)
}
