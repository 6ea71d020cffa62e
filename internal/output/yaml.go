package output

import (
	"encoding/json"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/medcityai/pubgate/internal/core"
	"github.com/medcityai/pubgate/internal/core/pubmed"
	"github.com/medcityai/pubgate/internal/core/store"
	"github.com/medcityai/pubgate/internal/core/trending"
)

// YAMLFormatter renders results as YAML. Keys follow the JSON field names.
type YAMLFormatter struct{}

func (f *YAMLFormatter) encode(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return "", err
	}
	out, err := yaml.Marshal(generic)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(out), "\n"), nil
}

// FormatSearch renders an esearch result.
func (f *YAMLFormatter) FormatSearch(result *core.SearchResult) (string, error) {
	return f.encode(result)
}

// FormatSummaries renders esummary documents.
func (f *YAMLFormatter) FormatSummaries(summaries []core.Summary) (string, error) {
	return f.encode(summaries)
}

// FormatArticles renders parsed efetch articles.
func (f *YAMLFormatter) FormatArticles(articles []core.Article) (string, error) {
	return f.encode(articles)
}

// FormatTrending renders the trending list.
func (f *YAMLFormatter) FormatTrending(entries []trending.Entry) (string, error) {
	return f.encode(entries)
}

// FormatFeatured renders a featured report.
func (f *YAMLFormatter) FormatFeatured(report *trending.FeaturedReport) (string, error) {
	return f.encode(report)
}

// FormatStats renders activity counts.
func (f *YAMLFormatter) FormatStats(stats *pubmed.ActivityStats) (string, error) {
	return f.encode(stats)
}

// FormatCacheStats renders cache statistics.
func (f *YAMLFormatter) FormatCacheStats(stats *store.CacheStats) (string, error) {
	return f.encode(stats)
}

// FormatGateway renders gateway settings and state.
func (f *YAMLFormatter) FormatGateway(view GatewayView) (string, error) {
	return f.encode(view)
}
