package handlers

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/medcityai/pubgate/internal/core"
	"github.com/medcityai/pubgate/internal/core/engine"
	"github.com/medcityai/pubgate/internal/core/gateway"
	"github.com/medcityai/pubgate/internal/core/pubmed"
	"github.com/medcityai/pubgate/internal/core/trending"
	apperrors "github.com/medcityai/pubgate/internal/errors"
)

const (
	maxSearchResults = 10000
	maxRequestIDs    = 500
)

// PubMedService is the PubMed client surface exposed over HTTP.
type PubMedService interface {
	Search(ctx context.Context, query pubmed.SearchQuery) (*core.SearchResult, error)
	Summaries(ctx context.Context, ids []string) ([]core.Summary, error)
	FetchArticles(ctx context.Context, ids []string, chunkSize int, opts ...gateway.BatchOption) ([]core.Article, error)
	Stats(ctx context.Context, term string, now time.Time) (*pubmed.ActivityStats, error)
}

// GatewayInspector reports gateway configuration and queue state.
type GatewayInspector interface {
	Settings() gateway.Settings
	State() core.DispatchState
}

// TrendingService produces the trending list.
type TrendingService interface {
	Trending(ctx context.Context, limit int) ([]trending.Entry, error)
}

// API serves the /api/v1 endpoints.
type API struct {
	PubMed       PubMedService
	Gateway      GatewayInspector
	Trending     TrendingService
	Fs           afero.Fs
	FeaturedPath string
	Clock        func() time.Time
}

// GatewayResponse describes the gateway endpoint payload.
type GatewayResponse struct {
	Settings gateway.Settings   `json:"settings"`
	State    core.DispatchState `json:"state"`
}

// SummariesResponse wraps esummary results.
type SummariesResponse struct {
	Count     int            `json:"count"`
	Summaries []core.Summary `json:"summaries"`
}

// ArticlesResponse wraps efetch results.
type ArticlesResponse struct {
	Count    int            `json:"count"`
	Articles []core.Article `json:"articles"`
}

// TrendingResponse wraps the trending list.
type TrendingResponse struct {
	Count    int              `json:"count"`
	Articles []trending.Entry `json:"articles"`
}

// Search handles GET /api/v1/search.
func (a *API) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	term := strings.TrimSpace(q.Get("term"))
	if term == "" {
		respondWithError(w, r, apperrors.NewInvalidInputError("query parameter 'term' is required"))
		return
	}

	query := pubmed.SearchQuery{
		Term:     term,
		Sort:     q.Get("sort"),
		DateType: q.Get("datetype"),
		MinDate:  q.Get("mindate"),
		MaxDate:  q.Get("maxdate"),
	}
	var err error
	if query.RetMax, err = intParam(q.Get("retmax"), 20, 0, maxSearchResults); err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "invalid 'retmax'"))
		return
	}
	if query.RetStart, err = intParam(q.Get("retstart"), 0, 0, 1<<30); err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "invalid 'retstart'"))
		return
	}
	if query.RelDate, err = intParam(q.Get("reldate"), 0, 0, 1<<20); err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "invalid 'reldate'"))
		return
	}

	result, err := a.PubMed.Search(r.Context(), query)
	if err != nil {
		respondWithError(w, r, upstreamError(r.Context(), err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Summaries handles GET /api/v1/summaries?ids=1,2,3.
func (a *API) Summaries(w http.ResponseWriter, r *http.Request) {
	ids, ok := a.requireIDs(w, r)
	if !ok {
		return
	}
	summaries, err := a.PubMed.Summaries(r.Context(), ids)
	if err != nil {
		respondWithError(w, r, upstreamError(r.Context(), err))
		return
	}
	writeJSON(w, http.StatusOK, SummariesResponse{Count: len(summaries), Summaries: summaries})
}

// Articles handles GET /api/v1/articles?ids=1,2,3.
func (a *API) Articles(w http.ResponseWriter, r *http.Request) {
	ids, ok := a.requireIDs(w, r)
	if !ok {
		return
	}
	chunk, err := intParam(r.URL.Query().Get("chunk_size"), 0, 0, maxRequestIDs)
	if err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "invalid 'chunk_size'"))
		return
	}
	articles, err := a.PubMed.FetchArticles(r.Context(), ids, chunk)
	if err != nil {
		respondWithError(w, r, upstreamError(r.Context(), err))
		return
	}
	writeJSON(w, http.StatusOK, ArticlesResponse{Count: len(articles), Articles: articles})
}

// Stats handles GET /api/v1/stats.
func (a *API) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.PubMed.Stats(r.Context(), r.URL.Query().Get("term"), a.now())
	if err != nil {
		respondWithError(w, r, upstreamError(r.Context(), err))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// TrendingList handles GET /api/v1/trending.
func (a *API) TrendingList(w http.ResponseWriter, r *http.Request) {
	if a.Trending == nil {
		respondWithError(w, r, apperrors.NewServiceUnavailableError("trending is not configured"))
		return
	}
	limit, err := intParam(r.URL.Query().Get("limit"), 0, 0, 100)
	if err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "invalid 'limit'"))
		return
	}
	entries, err := a.Trending.Trending(r.Context(), limit)
	if err != nil {
		if stderrors.Is(err, trending.ErrNoCatalog) {
			respondWithError(w, r, apperrors.NewServiceUnavailableError(err.Error()))
			return
		}
		respondWithError(w, r, apperrors.WrapExternalService(r.Context(), err, "trending sources unavailable"))
		return
	}
	writeJSON(w, http.StatusOK, TrendingResponse{Count: len(entries), Articles: entries})
}

// Featured handles GET /api/v1/featured, serving the last written report.
func (a *API) Featured(w http.ResponseWriter, r *http.Request) {
	if strings.TrimSpace(a.FeaturedPath) == "" {
		respondWithError(w, r, apperrors.NewServiceUnavailableError("featured report is not configured"))
		return
	}
	fsys := a.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	report, err := trending.ReadFeatured(fsys, a.FeaturedPath)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			respondWithError(w, r, apperrors.NewNotFoundError("no featured report has been generated yet"))
			return
		}
		respondWithError(w, r, apperrors.WrapInternal(r.Context(), err, "failed to read featured report"))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// GatewayStatus handles GET /api/v1/gateway.
func (a *API) GatewayStatus(w http.ResponseWriter, r *http.Request) {
	if a.Gateway == nil {
		respondWithError(w, r, apperrors.NewServiceUnavailableError("gateway is not configured"))
		return
	}
	writeJSON(w, http.StatusOK, GatewayResponse{
		Settings: a.Gateway.Settings(),
		State:    a.Gateway.State(),
	})
}

func (a *API) requireIDs(w http.ResponseWriter, r *http.Request) ([]string, bool) {
	ids := splitIDs(r.URL.Query()["ids"])
	if len(ids) == 0 {
		respondWithError(w, r, apperrors.NewInvalidInputError("query parameter 'ids' is required"))
		return nil, false
	}
	if len(ids) > maxRequestIDs {
		respondWithError(w, r, apperrors.NewInvalidInputError("too many ids requested (max "+strconv.Itoa(maxRequestIDs)+")"))
		return nil, false
	}
	for _, id := range ids {
		if _, err := strconv.ParseUint(id, 10, 64); err != nil {
			respondWithError(w, r, apperrors.NewInvalidInputError("invalid pmid: "+id))
			return nil, false
		}
	}
	return ids, true
}

func (a *API) now() time.Time {
	if a.Clock != nil {
		return a.Clock()
	}
	return time.Now()
}

// splitIDs accepts repeated and comma separated values.
func splitIDs(values []string) []string {
	var ids []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				ids = append(ids, part)
			}
		}
	}
	return gateway.UniqueIDs(ids)
}

func intParam(raw string, fallback, min, max int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if value < min || value > max {
		return 0, stderrors.New("value out of range " + strconv.Itoa(min) + ".." + strconv.Itoa(max))
	}
	return value, nil
}

func upstreamError(ctx context.Context, err error) error {
	if _, ok := engine.AsRequestError(err); ok || stderrors.Is(err, context.DeadlineExceeded) {
		return apperrors.WrapUpstream(ctx, err)
	}
	return apperrors.WrapExternalService(ctx, err, "pubmed request failed")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
