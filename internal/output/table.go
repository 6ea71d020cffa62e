package output

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/medcityai/pubgate/internal/core"
	"github.com/medcityai/pubgate/internal/core/pubmed"
	"github.com/medcityai/pubgate/internal/core/store"
	"github.com/medcityai/pubgate/internal/core/trending"
)

const titleWidth = 70

// TableFormatter renders results as an ASCII table.
type TableFormatter struct{}

func newTable(header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	if header != nil {
		t.AppendHeader(header)
	}
	return t
}

// FormatSearch renders an esearch result.
func (f *TableFormatter) FormatSearch(result *core.SearchResult) (string, error) {
	if result == nil {
		return "", nil
	}

	t := newTable(table.Row{"#", "PMID", "URL"})
	for i, id := range result.IDs {
		t.AppendRow(table.Row{i + 1, id, core.ArticleURL(id)})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d of %d", len(result.IDs), result.Count), ""})

	rendered := t.Render()
	if result.QueryTranslation != "" {
		rendered += "\n\nQuery: " + result.QueryTranslation
	}
	return rendered, nil
}

// FormatSummaries renders esummary documents.
func (f *TableFormatter) FormatSummaries(summaries []core.Summary) (string, error) {
	t := newTable(table.Row{"PMID", "Title", "Journal", "Published", "Authors"})
	for _, s := range summaries {
		t.AppendRow(table.Row{
			s.PMID,
			truncate(s.Title, titleWidth),
			journalOf(s),
			s.PubDate,
			truncate(summaryAuthors(s.Authors), 40),
		})
	}
	return t.Render(), nil
}

// FormatArticles renders parsed efetch articles.
func (f *TableFormatter) FormatArticles(articles []core.Article) (string, error) {
	t := newTable(table.Row{"PMID", "Title", "Journal", "Published", "Authors", "Local"})
	for _, a := range articles {
		t.AppendRow(table.Row{
			a.PMID,
			truncate(a.Title, titleWidth),
			truncate(a.Journal, 30),
			a.PubDate,
			truncate(a.AuthorsDisplay, 40),
			strings.Join(a.LocalAuthors(), ", "),
		})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d articles", len(articles)), "", "", "", ""})
	return t.Render(), nil
}

// FormatTrending renders the trending list.
func (f *TableFormatter) FormatTrending(entries []trending.Entry) (string, error) {
	t := newTable(table.Row{"#", "Likes", "Article", "Published"})
	for i, e := range entries {
		t.AppendRow(table.Row{i + 1, e.Likes, truncate(e.Label(), titleWidth+20), e.PubDate})
	}
	return t.Render(), nil
}

// FormatFeatured renders a featured report.
func (f *TableFormatter) FormatFeatured(report *trending.FeaturedReport) (string, error) {
	if report == nil {
		return "", nil
	}

	t := newTable(table.Row{"#", "PMID", "Likes", "Title", "Journal"})
	t.SetTitle(fmt.Sprintf("Featured articles %s to %s", report.WeekStart, report.WeekEnd))
	for i, a := range report.Articles {
		t.AppendRow(table.Row{i + 1, a.PMID, a.Likes, truncate(a.Title, titleWidth), truncate(a.Journal, 30)})
	}
	t.AppendFooter(table.Row{"", "", "", fmt.Sprintf("%d featured of %d liked", report.FeaturedCount, report.TotalArticlesProcessed), ""})
	return t.Render(), nil
}

// FormatStats renders activity counts.
func (f *TableFormatter) FormatStats(stats *pubmed.ActivityStats) (string, error) {
	if stats == nil {
		return "", nil
	}

	t := newTable(table.Row{"Window", "New records"})
	t.AppendRow(table.Row{"Last day", humanize.Comma(int64(stats.Day))})
	t.AppendRow(table.Row{"Last 7 days", humanize.Comma(int64(stats.Week))})
	t.AppendRow(table.Row{"Last 30 days", humanize.Comma(int64(stats.Month))})
	t.AppendFooter(table.Row{"Total", humanize.Comma(int64(stats.Total))})
	return t.Render() + "\n\nTerm: " + stats.Term, nil
}

// FormatCacheStats renders cache statistics.
func (f *TableFormatter) FormatCacheStats(stats *store.CacheStats) (string, error) {
	if stats == nil {
		return "", nil
	}

	t := newTable(nil)
	t.AppendRow(table.Row{"Driver", stats.Driver})
	t.AppendRow(table.Row{"Entries", humanize.Comma(stats.Entries)})
	t.AppendRow(table.Row{"Size", humanize.Bytes(uint64(max(stats.Bytes, 0)))})
	t.AppendRow(table.Row{"Oldest", formatTime(stats.Oldest)})
	t.AppendRow(table.Row{"Newest", formatTime(stats.Newest)})
	return t.Render(), nil
}

// FormatGateway renders gateway settings and state.
func (f *TableFormatter) FormatGateway(view GatewayView) (string, error) {
	s := view.Settings
	t := newTable(nil)
	t.AppendRow(table.Row{"Base URL", s.BaseURL})
	t.AppendRow(table.Row{"Namespace", s.Namespace})
	t.AppendRow(table.Row{"API key", enabledLabel(s.APIKeyEnabled)})
	t.AppendRow(table.Row{"Min interval", s.MinInterval.String()})
	t.AppendRow(table.Row{"Cache TTL", s.CacheTTL.String()})
	t.AppendRow(table.Row{"Request timeout", s.RequestTimeout.String()})
	t.AppendRow(table.Row{"Max retries", s.MaxRetries})
	t.AppendRow(table.Row{"Chunk size", s.ChunkSize})
	t.AppendSeparator()
	t.AppendRow(table.Row{"Dispatched", view.State.Dispatched})
	t.AppendRow(table.Row{"Queued", view.State.Queued})
	t.AppendRow(table.Row{"Last dispatch", formatTime(view.State.LastDispatch)})
	return t.Render(), nil
}

func enabledLabel(enabled bool) string {
	if enabled {
		return "configured"
	}
	return "not configured"
}
