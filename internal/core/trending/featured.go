package trending

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/medcityai/pubgate/internal/core"
	"github.com/medcityai/pubgate/internal/core/gateway"
)

// DefaultFeaturedLimit is the number of articles in a weekly report.
const DefaultFeaturedLimit = 10

// ErrNoLikes is returned when there is nothing to rank.
var ErrNoLikes = errors.New("no liked articles")

// ArticleFetcher fetches article metadata by PMID.
type ArticleFetcher interface {
	FetchArticles(ctx context.Context, ids []string, chunkSize int, opts ...gateway.BatchOption) ([]core.Article, error)
}

// FeaturedArticle is an article in the weekly report.
type FeaturedArticle struct {
	PMID           string `json:"pmid"`
	Title          string `json:"title"`
	Abstract       string `json:"abstract"`
	Journal        string `json:"journal"`
	PubDate        string `json:"pubdate"`
	Year           string `json:"year"`
	Month          string `json:"month"`
	Day            string `json:"day"`
	Authors        string `json:"authors"`
	AuthorsDisplay string `json:"authors_display"`
	Affiliations   string `json:"affiliations"`
	URL            string `json:"url"`
	Likes          int    `json:"likes"`
	FeaturedDate   string `json:"featured_date"`
	WeekStart      string `json:"week_start"`
	WeekEnd        string `json:"week_end"`
}

// FeaturedReport is the weekly featured articles document.
type FeaturedReport struct {
	RunID                  string            `json:"run_id"`
	GeneratedDate          time.Time         `json:"generated_date"`
	WeekStart              string            `json:"week_start"`
	WeekEnd                string            `json:"week_end"`
	TotalArticlesProcessed int               `json:"total_articles_processed"`
	FeaturedCount          int               `json:"featured_count"`
	Articles               []FeaturedArticle `json:"articles"`
}

// PriorWeek returns the most recent completed Sunday-to-Saturday week.
// When now is a Saturday the week ending today is returned.
func PriorWeek(now time.Time) (time.Time, time.Time) {
	daysSinceSaturday := (int(now.Weekday()) + 1) % 7
	saturday := now.AddDate(0, 0, -daysSinceSaturday)
	sunday := saturday.AddDate(0, 0, -6)

	loc := now.Location()
	start := time.Date(sunday.Year(), sunday.Month(), sunday.Day(), 0, 0, 0, 0, loc)
	end := time.Date(saturday.Year(), saturday.Month(), saturday.Day(), 23, 59, 59, 999999000, loc)
	return start, end
}

// BuildFeatured ranks liked PMIDs, fetches metadata for the top limit in a
// single batch and assembles the weekly report. PMIDs PubMed does not
// return are skipped.
func BuildFeatured(ctx context.Context, likes Likes, fetcher ArticleFetcher, now time.Time, limit int) (*FeaturedReport, error) {
	if fetcher == nil {
		return nil, errors.New("article fetcher is required")
	}
	if len(likes) == 0 {
		return nil, ErrNoLikes
	}
	if limit <= 0 {
		limit = DefaultFeaturedLimit
	}

	ranked := likes.Ranked()
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	ids := make([]string, 0, len(ranked))
	for _, item := range ranked {
		ids = append(ids, item.PMID)
	}

	articles, err := fetcher.FetchArticles(ctx, ids, 0)
	if err != nil {
		return nil, fmt.Errorf("fetch featured metadata: %w", err)
	}
	byPMID := make(map[string]core.Article, len(articles))
	for _, article := range articles {
		byPMID[article.PMID] = article
	}

	start, end := PriorWeek(now)
	weekStart := start.Format("2006-01-02")
	weekEnd := end.Format("2006-01-02")
	featuredDate := now.Format("2006-01-02")

	report := &FeaturedReport{
		RunID:                  uuid.NewString(),
		GeneratedDate:          now,
		WeekStart:              weekStart,
		WeekEnd:                weekEnd,
		TotalArticlesProcessed: len(likes),
		Articles:               make([]FeaturedArticle, 0, len(ranked)),
	}
	for _, item := range ranked {
		article, ok := byPMID[item.PMID]
		if !ok {
			continue
		}
		report.Articles = append(report.Articles, FeaturedArticle{
			PMID:           article.PMID,
			Title:          article.Title,
			Abstract:       article.Abstract,
			Journal:        article.Journal,
			PubDate:        article.PubDate,
			Year:           article.Year,
			Month:          article.Month,
			Day:            article.Day,
			Authors:        joinAuthorNames(article.Authors),
			AuthorsDisplay: article.AuthorsDisplay,
			Affiliations:   strings.Join(article.Affiliations, "|"),
			URL:            article.URL,
			Likes:          item.Likes,
			FeaturedDate:   featuredDate,
			WeekStart:      weekStart,
			WeekEnd:        weekEnd,
		})
	}
	report.FeaturedCount = len(report.Articles)
	return report, nil
}

// WriteFeatured writes report as indented JSON.
func WriteFeatured(fs afero.Fs, path string, report *FeaturedReport) error {
	if report == nil {
		return errors.New("report is required")
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("encode featured report: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
	}
	if err := afero.WriteFile(fs, path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write featured report: %w", err)
	}
	return nil
}

// ReadFeatured loads a report written by WriteFeatured.
func ReadFeatured(fs afero.Fs, path string) (*FeaturedReport, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}
	var report FeaturedReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("decode featured report: %w", err)
	}
	return &report, nil
}
