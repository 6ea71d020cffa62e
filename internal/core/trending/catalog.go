package trending

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/medcityai/pubgate/internal/core"
)

// CatalogEntry is one row of the article metadata catalog.
type CatalogEntry struct {
	PMID           string `json:"pmid"`
	Title          string `json:"title"`
	AuthorsDisplay string `json:"authors_display"`
	Authors        string `json:"authors"`
	PubDate        string `json:"pubdate"`
	URL            string `json:"url"`
}

// CatalogColumns is the header written by WriteCatalog.
var CatalogColumns = []string{
	"pmid", "title", "abstract", "journal", "pubdate", "year", "month", "day",
	"authors", "local_authors", "affiliations", "authors_display", "url",
}

// ReadCatalog parses a catalog CSV. Columns are matched by header name and
// unknown columns are ignored.
func ReadCatalog(r io.Reader) ([]CatalogEntry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return []CatalogEntry{}, nil
		}
		return nil, fmt.Errorf("read catalog header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		index[strings.ToLower(name)] = i
	}
	if _, ok := index["pmid"]; !ok {
		return nil, errors.New("catalog is missing the pmid column")
	}

	field := func(record []string, name string) string {
		i, ok := index[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	entries := make([]CatalogEntry, 0)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read catalog: %w", err)
		}

		pmid := field(record, "pmid")
		if pmid == "" {
			continue
		}
		entries = append(entries, CatalogEntry{
			PMID:           pmid,
			Title:          field(record, "title"),
			AuthorsDisplay: field(record, "authors_display"),
			Authors:        field(record, "authors"),
			PubDate:        field(record, "pubdate"),
			URL:            field(record, "url"),
		})
	}
	return entries, nil
}

// LoadCatalog reads a catalog CSV from fs.
func LoadCatalog(fs afero.Fs, path string) ([]CatalogEntry, error) {
	file, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer file.Close() // nolint:errcheck // read-only handle
	return ReadCatalog(file)
}

// FetchCatalog downloads a catalog CSV.
func FetchCatalog(ctx context.Context, client *http.Client, rawURL string) ([]CatalogEntry, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch catalog: unexpected status %d", resp.StatusCode)
	}
	return ReadCatalog(resp.Body)
}

// CatalogFromArticles converts parsed articles into catalog entries.
func CatalogFromArticles(articles []core.Article) []CatalogEntry {
	entries := make([]CatalogEntry, 0, len(articles))
	for _, article := range articles {
		entries = append(entries, CatalogEntry{
			PMID:           article.PMID,
			Title:          article.Title,
			AuthorsDisplay: article.AuthorsDisplay,
			Authors:        joinAuthorNames(article.Authors),
			PubDate:        article.PubDate,
			URL:            article.URL,
		})
	}
	return entries
}

// WriteCatalog writes articles as a catalog CSV, most recent first.
// Articles without a parseable publication date sort last.
func WriteCatalog(fs afero.Fs, path string, articles []core.Article) error {
	sorted := append([]core.Article(nil), articles...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return newer(sorted[i].Published, sorted[j].Published)
	})

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create catalog directory: %w", err)
		}
	}

	file, err := fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create catalog: %w", err)
	}

	writer := csv.NewWriter(file)
	if err := writer.Write(CatalogColumns); err != nil {
		_ = file.Close()
		return err
	}
	for _, article := range sorted {
		record := []string{
			article.PMID,
			article.Title,
			article.Abstract,
			article.Journal,
			article.PubDate,
			article.Year,
			article.Month,
			article.Day,
			joinAuthorNames(article.Authors),
			strings.Join(article.LocalAuthors(), "|"),
			strings.Join(article.Affiliations, "|"),
			article.AuthorsDisplay,
			article.URL,
		}
		if err := writer.Write(record); err != nil {
			_ = file.Close()
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		_ = file.Close()
		return fmt.Errorf("write catalog: %w", err)
	}
	return file.Close()
}

func joinAuthorNames(authors []core.Author) string {
	names := make([]string, 0, len(authors))
	for _, author := range authors {
		names = append(names, author.Name)
	}
	return strings.Join(names, "|")
}

func newer(a, b *time.Time) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	default:
		return a.After(*b)
	}
}
