package output

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/medcityai/pubgate/internal/core"
	"github.com/medcityai/pubgate/internal/core/pubmed"
	"github.com/medcityai/pubgate/internal/core/store"
	"github.com/medcityai/pubgate/internal/core/trending"
)

// JSONFormatter renders results as JSON.
type JSONFormatter struct {
	Indent bool
}

func (f *JSONFormatter) encode(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if f.Indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

// FormatSearch renders an esearch result.
func (f *JSONFormatter) FormatSearch(result *core.SearchResult) (string, error) {
	return f.encode(result)
}

// FormatSummaries renders esummary documents.
func (f *JSONFormatter) FormatSummaries(summaries []core.Summary) (string, error) {
	if summaries == nil {
		summaries = []core.Summary{}
	}
	return f.encode(summaries)
}

// FormatArticles renders parsed efetch articles.
func (f *JSONFormatter) FormatArticles(articles []core.Article) (string, error) {
	if articles == nil {
		articles = []core.Article{}
	}
	return f.encode(articles)
}

// FormatTrending renders the trending list.
func (f *JSONFormatter) FormatTrending(entries []trending.Entry) (string, error) {
	if entries == nil {
		entries = []trending.Entry{}
	}
	return f.encode(entries)
}

// FormatFeatured renders a featured report.
func (f *JSONFormatter) FormatFeatured(report *trending.FeaturedReport) (string, error) {
	return f.encode(report)
}

// FormatStats renders activity counts.
func (f *JSONFormatter) FormatStats(stats *pubmed.ActivityStats) (string, error) {
	return f.encode(stats)
}

// FormatCacheStats renders cache statistics.
func (f *JSONFormatter) FormatCacheStats(stats *store.CacheStats) (string, error) {
	return f.encode(stats)
}

// FormatGateway renders gateway settings and state.
func (f *JSONFormatter) FormatGateway(view GatewayView) (string, error) {
	return f.encode(view)
}
