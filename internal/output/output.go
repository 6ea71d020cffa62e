package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/medcityai/pubgate/internal/core"
	"github.com/medcityai/pubgate/internal/core/gateway"
	"github.com/medcityai/pubgate/internal/core/pubmed"
	"github.com/medcityai/pubgate/internal/core/store"
	"github.com/medcityai/pubgate/internal/core/trending"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatYAML     Format = "yaml"
)

// GatewayView pairs gateway settings with its queue state.
type GatewayView struct {
	Settings gateway.Settings   `json:"settings"`
	State    core.DispatchState `json:"state"`
}

// Formatter renders command results.
type Formatter interface {
	FormatSearch(result *core.SearchResult) (string, error)
	FormatSummaries(summaries []core.Summary) (string, error)
	FormatArticles(articles []core.Article) (string, error)
	FormatTrending(entries []trending.Entry) (string, error)
	FormatFeatured(report *trending.FeaturedReport) (string, error)
	FormatStats(stats *pubmed.ActivityStats) (string, error)
	FormatCacheStats(stats *store.CacheStats) (string, error)
	FormatGateway(view GatewayView) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	case string(FormatYAML), "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	case FormatYAML:
		return &YAMLFormatter{}
	default:
		return &TableFormatter{}
	}
}

func truncate(value string, max int) string {
	value = strings.Join(strings.Fields(value), " ")
	runes := []rune(value)
	if max <= 3 || len(runes) <= max {
		return value
	}
	return string(runes[:max-3]) + "..."
}

func summaryAuthors(authors []string) string {
	switch {
	case len(authors) == 0:
		return ""
	case len(authors) <= 3:
		return strings.Join(authors, ", ")
	default:
		return strings.Join(authors[:3], ", ") + ", et al."
	}
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func journalOf(s core.Summary) string {
	if s.Source != "" {
		return s.Source
	}
	return s.Journal
}
