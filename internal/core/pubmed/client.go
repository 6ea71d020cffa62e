// Package pubmed implements the E-utilities operations used by the site on
// top of the request gateway.
package pubmed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/medcityai/pubgate/internal/core"
	"github.com/medcityai/pubgate/internal/core/gateway"
)

// DefaultLocationTerm matches articles with a Rochester, MN affiliation.
const DefaultLocationTerm = `("Rochester"[AD] AND ("Minnesota"[AD] OR "MN"[AD]))`

// SummaryChunkSize bounds the ids sent in a single esummary call.
const SummaryChunkSize = 200

// DefaultLocalKeywords flag an author as local when found in an affiliation.
var DefaultLocalKeywords = []string{"rochester", "mayo"}

// Requester is the subset of the gateway used by the client.
type Requester interface {
	RequestJSON(ctx context.Context, path string, params url.Values) (json.RawMessage, error)
	FetchBatchByIDs(ctx context.Context, ids []string, chunkSize int, opts ...gateway.BatchOption) ([]string, error)
}

// Client performs PubMed searches, summaries and article fetches.
type Client struct {
	Gateway       Requester
	LocalKeywords []string
	Logger        *logging.Logger
}

// SearchQuery describes an esearch call.
type SearchQuery struct {
	Term     string
	RetMax   int
	RetStart int
	Sort     string
	DateType string
	RelDate  int
	MinDate  string
	MaxDate  string
}

type esearchResponse struct {
	Result struct {
		Count            string   `json:"count"`
		RetMax           string   `json:"retmax"`
		IDList           []string `json:"idlist"`
		QueryTranslation string   `json:"querytranslation"`
		Error            string   `json:"ERROR"`
	} `json:"esearchresult"`
}

// Search runs an esearch query against the pubmed database.
func (c *Client) Search(ctx context.Context, query SearchQuery) (*core.SearchResult, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	term := strings.TrimSpace(query.Term)
	if term == "" {
		return nil, errors.New("search term is required")
	}

	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("term", term)
	params.Set("retmode", "json")
	if query.RetMax > 0 {
		params.Set("retmax", strconv.Itoa(query.RetMax))
	}
	if query.RetStart > 0 {
		params.Set("retstart", strconv.Itoa(query.RetStart))
	}
	if sort := strings.TrimSpace(query.Sort); sort != "" {
		params.Set("sort", sort)
	}

	dateType := strings.TrimSpace(query.DateType)
	if query.RelDate > 0 {
		params.Set("reldate", strconv.Itoa(query.RelDate))
		if dateType == "" {
			dateType = "pdat"
		}
	}
	if query.MinDate != "" && query.MaxDate != "" {
		params.Set("mindate", query.MinDate)
		params.Set("maxdate", query.MaxDate)
		if dateType == "" {
			dateType = "pdat"
		}
	}
	if dateType != "" {
		params.Set("datetype", dateType)
	}

	raw, err := c.Gateway.RequestJSON(ctx, "esearch.fcgi", params)
	if err != nil {
		return nil, err
	}

	var resp esearchResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode esearch response: %w", err)
	}
	if resp.Result.Error != "" {
		return nil, fmt.Errorf("esearch: %s", resp.Result.Error)
	}

	result := &core.SearchResult{
		Count:            atoi(resp.Result.Count),
		RetMax:           atoi(resp.Result.RetMax),
		IDs:              resp.Result.IDList,
		QueryTranslation: resp.Result.QueryTranslation,
	}
	if result.IDs == nil {
		result.IDs = []string{}
	}
	return result, nil
}

// Count returns the number of records matching term.
func (c *Client) Count(ctx context.Context, term string) (int, error) {
	if err := c.ready(); err != nil {
		return 0, err
	}
	term = strings.TrimSpace(term)
	if term == "" {
		return 0, errors.New("search term is required")
	}

	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("term", term)
	params.Set("rettype", "count")
	params.Set("retmode", "json")

	raw, err := c.Gateway.RequestJSON(ctx, "esearch.fcgi", params)
	if err != nil {
		return 0, err
	}

	var resp esearchResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return 0, fmt.Errorf("decode esearch count: %w", err)
	}
	if resp.Result.Error != "" {
		return 0, fmt.Errorf("esearch: %s", resp.Result.Error)
	}
	return atoi(resp.Result.Count), nil
}

// ActivityStats counts recently added records for a term.
type ActivityStats struct {
	Term  string    `json:"term"`
	AsOf  time.Time `json:"as_of"`
	Day   int       `json:"day"`
	Week  int       `json:"week"`
	Month int       `json:"month"`
	Total int       `json:"total"`
}

// Stats counts records entered in the last 1, 7 and 30 days. Total is the
// sum of the three windows.
func (c *Client) Stats(ctx context.Context, term string, now time.Time) (*ActivityStats, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		term = DefaultLocationTerm
	}
	now = now.UTC()

	stats := &ActivityStats{Term: term, AsOf: now}
	windows := []struct {
		days int
		dest *int
	}{
		{1, &stats.Day},
		{7, &stats.Week},
		{30, &stats.Month},
	}
	for _, window := range windows {
		count, err := c.Count(ctx, EntryDateTerm(term, now.AddDate(0, 0, -window.days), now))
		if err != nil {
			return nil, err
		}
		*window.dest = count
	}
	stats.Total = stats.Day + stats.Week + stats.Month
	return stats, nil
}

// EntryDateTerm restricts term to records entered between start and end.
func EntryDateTerm(term string, start, end time.Time) string {
	return fmt.Sprintf(`("%s" : "%s"[edat]) AND %s`, start.Format("2006/01/02"), end.Format("2006/01/02"), term)
}

type esummaryResponse struct {
	Result map[string]json.RawMessage `json:"result"`
}

type esummaryDoc struct {
	UID             string `json:"uid"`
	Title           string `json:"title"`
	Source          string `json:"source"`
	FullJournalName string `json:"fulljournalname"`
	PubDate         string `json:"pubdate"`
	SortPubDate     string `json:"sortpubdate"`
	Authors         []struct {
		Name string `json:"name"`
	} `json:"authors"`
}

// Summaries returns esummary records for ids in request order.
func (c *Client) Summaries(ctx context.Context, ids []string) ([]core.Summary, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	summaries := make([]core.Summary, 0, len(ids))
	for _, chunk := range gateway.Chunk(gateway.UniqueIDs(ids), SummaryChunkSize) {
		params := url.Values{}
		params.Set("db", "pubmed")
		params.Set("id", strings.Join(chunk, ","))
		params.Set("retmode", "json")

		raw, err := c.Gateway.RequestJSON(ctx, "esummary.fcgi", params)
		if err != nil {
			return nil, err
		}

		parsed, err := parseSummaries(raw)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, parsed...)
	}
	return summaries, nil
}

func parseSummaries(raw json.RawMessage) ([]core.Summary, error) {
	var resp esummaryResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode esummary response: %w", err)
	}

	var uids []string
	if value, ok := resp.Result["uids"]; ok {
		if err := json.Unmarshal(value, &uids); err != nil {
			return nil, fmt.Errorf("decode esummary uids: %w", err)
		}
	}

	out := make([]core.Summary, 0, len(uids))
	for _, uid := range uids {
		value, ok := resp.Result[uid]
		if !ok {
			continue
		}
		var doc esummaryDoc
		if err := json.Unmarshal(value, &doc); err != nil {
			continue
		}
		if doc.UID == "" {
			doc.UID = uid
		}

		authors := make([]string, 0, len(doc.Authors))
		for _, author := range doc.Authors {
			if name := strings.TrimSpace(author.Name); name != "" {
				authors = append(authors, name)
			}
		}

		out = append(out, core.Summary{
			PMID:        doc.UID,
			Title:       doc.Title,
			Source:      doc.Source,
			Journal:     doc.FullJournalName,
			PubDate:     doc.PubDate,
			SortPubDate: doc.SortPubDate,
			Authors:     authors,
			URL:         core.ArticleURL(doc.UID),
		})
	}
	return out, nil
}

// FetchArticles fetches and parses efetch records for ids.
func (c *Client) FetchArticles(ctx context.Context, ids []string, chunkSize int, opts ...gateway.BatchOption) ([]core.Article, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	chunks, err := c.Gateway.FetchBatchByIDs(ctx, ids, chunkSize, opts...)
	if err != nil {
		return nil, err
	}

	parser := Parser{LocalKeywords: c.localKeywords()}
	articles := make([]core.Article, 0, len(ids))
	for i, chunk := range chunks {
		parsed, err := parser.Parse([]byte(chunk))
		if err != nil {
			return nil, fmt.Errorf("parse efetch chunk %d: %w", i+1, err)
		}
		articles = append(articles, parsed...)
	}

	if c.Logger != nil {
		c.Logger.Debug("Fetched PubMed articles",
			zap.Int("requested", len(ids)),
			zap.Int("chunks", len(chunks)),
			zap.Int("articles", len(articles)))
	}
	return articles, nil
}

func (c *Client) ready() error {
	if c == nil || c.Gateway == nil {
		return errors.New("pubmed client is not configured")
	}
	return nil
}

func (c *Client) localKeywords() []string {
	if c != nil && len(c.LocalKeywords) > 0 {
		return c.LocalKeywords
	}
	return DefaultLocalKeywords
}

func atoi(value string) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return n
}
