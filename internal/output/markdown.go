package output

import (
	"fmt"
	"strings"

	"github.com/medcityai/pubgate/internal/core"
	"github.com/medcityai/pubgate/internal/core/pubmed"
	"github.com/medcityai/pubgate/internal/core/store"
	"github.com/medcityai/pubgate/internal/core/trending"
)

// MarkdownFormatter renders results as markdown tables.
type MarkdownFormatter struct{}

// FormatSearch renders an esearch result.
func (f *MarkdownFormatter) FormatSearch(result *core.SearchResult) (string, error) {
	if result == nil {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Search results (%d of %d)\n\n", len(result.IDs), result.Count))
	for _, id := range result.IDs {
		sb.WriteString(fmt.Sprintf("- [%s](%s)\n", id, core.ArticleURL(id)))
	}
	if result.QueryTranslation != "" {
		sb.WriteString(fmt.Sprintf("\n**Query**: `%s`\n", result.QueryTranslation))
	}
	return sb.String(), nil
}

// FormatSummaries renders esummary documents.
func (f *MarkdownFormatter) FormatSummaries(summaries []core.Summary) (string, error) {
	var sb strings.Builder
	sb.WriteString("| PMID | Title | Journal | Published | Authors |\n")
	sb.WriteString("|------|-------|---------|-----------|---------|\n")
	for _, s := range summaries {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s |\n",
			escapeMarkdownCell(s.PMID),
			markdownLink(s.Title, s.URL),
			escapeMarkdownCell(journalOf(s)),
			escapeMarkdownCell(s.PubDate),
			escapeMarkdownCell(summaryAuthors(s.Authors)),
		))
	}
	return sb.String(), nil
}

// FormatArticles renders parsed efetch articles, one section per article.
func (f *MarkdownFormatter) FormatArticles(articles []core.Article) (string, error) {
	var sb strings.Builder
	for i, a := range articles {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(fmt.Sprintf("### %s\n\n", markdownLink(a.Title, a.URL)))
		sb.WriteString(fmt.Sprintf("*%s*, %s. PMID %s\n\n", a.Journal, a.PubDate, a.PMID))
		if a.AuthorsDisplay != "" {
			sb.WriteString(a.AuthorsDisplay + "\n\n")
		}
		sb.WriteString(a.Abstract + "\n")
	}
	return sb.String(), nil
}

// FormatTrending renders the trending list.
func (f *MarkdownFormatter) FormatTrending(entries []trending.Entry) (string, error) {
	var sb strings.Builder
	sb.WriteString("## Trending articles\n\n")
	for i, e := range entries {
		sb.WriteString(fmt.Sprintf("%d. [%s](%s) (%d likes)\n", i+1, escapeMarkdownText(e.Label()), e.URL, e.Likes))
	}
	return sb.String(), nil
}

// FormatFeatured renders a featured report.
func (f *MarkdownFormatter) FormatFeatured(report *trending.FeaturedReport) (string, error) {
	if report == nil {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Featured articles, week of %s to %s\n\n", report.WeekStart, report.WeekEnd))
	sb.WriteString("| # | Title | Journal | Likes |\n")
	sb.WriteString("|---|-------|---------|-------|\n")
	for i, a := range report.Articles {
		sb.WriteString(fmt.Sprintf("| %d | %s | %s | %d |\n",
			i+1,
			markdownLink(a.Title, a.URL),
			escapeMarkdownCell(a.Journal),
			a.Likes,
		))
	}
	sb.WriteString(fmt.Sprintf("\n**Featured**: %d of %d liked articles\n", report.FeaturedCount, report.TotalArticlesProcessed))
	return sb.String(), nil
}

// FormatStats renders activity counts.
func (f *MarkdownFormatter) FormatStats(stats *pubmed.ActivityStats) (string, error) {
	if stats == nil {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString("| Window | New records |\n")
	sb.WriteString("|--------|-------------|\n")
	sb.WriteString(fmt.Sprintf("| Last day | %d |\n", stats.Day))
	sb.WriteString(fmt.Sprintf("| Last 7 days | %d |\n", stats.Week))
	sb.WriteString(fmt.Sprintf("| Last 30 days | %d |\n", stats.Month))
	sb.WriteString(fmt.Sprintf("\n**Total**: %d\n", stats.Total))
	return sb.String(), nil
}

// FormatCacheStats renders cache statistics.
func (f *MarkdownFormatter) FormatCacheStats(stats *store.CacheStats) (string, error) {
	if stats == nil {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|-------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Driver | %s |\n", escapeMarkdownCell(stats.Driver)))
	sb.WriteString(fmt.Sprintf("| Entries | %d |\n", stats.Entries))
	sb.WriteString(fmt.Sprintf("| Bytes | %d |\n", stats.Bytes))
	sb.WriteString(fmt.Sprintf("| Oldest | %s |\n", formatTime(stats.Oldest)))
	sb.WriteString(fmt.Sprintf("| Newest | %s |\n", formatTime(stats.Newest)))
	return sb.String(), nil
}

// FormatGateway renders gateway settings and state.
func (f *MarkdownFormatter) FormatGateway(view GatewayView) (string, error) {
	s := view.Settings
	var sb strings.Builder
	sb.WriteString("| Setting | Value |\n")
	sb.WriteString("|---------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Base URL | %s |\n", s.BaseURL))
	sb.WriteString(fmt.Sprintf("| API key | %s |\n", enabledLabel(s.APIKeyEnabled)))
	sb.WriteString(fmt.Sprintf("| Min interval | %s |\n", s.MinInterval))
	sb.WriteString(fmt.Sprintf("| Cache TTL | %s |\n", s.CacheTTL))
	sb.WriteString(fmt.Sprintf("| Max retries | %d |\n", s.MaxRetries))
	sb.WriteString(fmt.Sprintf("| Dispatched | %d |\n", view.State.Dispatched))
	return sb.String(), nil
}

func markdownLink(title, url string) string {
	title = escapeMarkdownCell(escapeMarkdownText(title))
	if url == "" {
		return title
	}
	return fmt.Sprintf("[%s](%s)", title, url)
}

func escapeMarkdownText(value string) string {
	replacer := strings.NewReplacer("[", "\\[", "]", "\\]")
	return replacer.Replace(value)
}

func escapeMarkdownCell(value string) string {
	return strings.ReplaceAll(value, "|", "\\|")
}
