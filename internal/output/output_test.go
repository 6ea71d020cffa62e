package output

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/medcityai/pubgate/internal/core"
	"github.com/medcityai/pubgate/internal/core/gateway"
	"github.com/medcityai/pubgate/internal/core/pubmed"
	"github.com/medcityai/pubgate/internal/core/store"
	"github.com/medcityai/pubgate/internal/core/trending"
)

func TestParseFormat(t *testing.T) {
	format, err := ParseFormat("table")
	require.NoError(t, err)
	require.Equal(t, FormatTable, format)

	format, err = ParseFormat("JSON")
	require.NoError(t, err)
	require.Equal(t, FormatJSON, format)

	format, err = ParseFormat("")
	require.NoError(t, err)
	require.Equal(t, FormatTable, format)

	format, err = ParseFormat("yml")
	require.NoError(t, err)
	require.Equal(t, FormatYAML, format)

	format, err = ParseFormat("md")
	require.NoError(t, err)
	require.Equal(t, FormatMarkdown, format)

	_, err = ParseFormat("csv")
	require.Error(t, err)
}

func sampleArticles() []core.Article {
	return []core.Article{
		{
			PMID:           "39000001",
			Title:          "Outcomes of <robotic> surgery | a cohort",
			Abstract:       "Background text.",
			Journal:        "Mayo Clin Proc",
			PubDate:        "Mar 4, 2025",
			Authors:        []core.Author{{Name: "Smith J", Local: true}, {Name: "Doe A"}},
			AuthorsDisplay: "Smith J, Doe A",
			URL:            core.ArticleURL("39000001"),
		},
	}
}

func TestJSONFormatterDoesNotEscapeHTML(t *testing.T) {
	rendered, err := NewFormatter(FormatJSON).FormatArticles(sampleArticles())
	require.NoError(t, err)
	require.Contains(t, rendered, "<robotic>")
	require.Contains(t, rendered, "\"pmid\": \"39000001\"")

	var decoded []core.Article
	require.NoError(t, json.Unmarshal([]byte(rendered), &decoded))
	require.Equal(t, "Smith J, Doe A", decoded[0].AuthorsDisplay)

	empty, err := NewFormatter(FormatJSON).FormatSummaries(nil)
	require.NoError(t, err)
	require.Equal(t, "[]", empty)
}

func TestYAMLFormatterUsesJSONKeys(t *testing.T) {
	stats := &pubmed.ActivityStats{Term: "asthma", Day: 1, Week: 4, Month: 9, Total: 14}
	rendered, err := NewFormatter(FormatYAML).FormatStats(stats)
	require.NoError(t, err)
	require.Contains(t, rendered, "term: asthma")
	require.Contains(t, rendered, "total: 14")

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(rendered), &decoded))
	require.Equal(t, 9, decoded["month"])
}

func TestTableFormatter(t *testing.T) {
	f := NewFormatter(FormatTable)

	rendered, err := f.FormatArticles(sampleArticles())
	require.NoError(t, err)
	require.Contains(t, rendered, "PMID")
	require.Contains(t, rendered, "39000001")
	require.Contains(t, rendered, "Smith J")
	require.Contains(t, strings.ToLower(rendered), "1 articles")

	search, err := f.FormatSearch(&core.SearchResult{Count: 40, IDs: []string{"1", "2"}, QueryTranslation: "asthma[All Fields]"})
	require.NoError(t, err)
	require.Contains(t, strings.ToLower(search), "2 of 40")
	require.Contains(t, search, "Query: asthma[All Fields]")

	stats, err := f.FormatStats(&pubmed.ActivityStats{Term: "x", Day: 1200, Week: 3, Month: 4, Total: 1207})
	require.NoError(t, err)
	require.Contains(t, stats, "1,200")
	require.Contains(t, stats, "1,207")

	oldest := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	cache, err := f.FormatCacheStats(&store.CacheStats{Driver: "sqlite", Entries: 3, Bytes: 2048, Oldest: &oldest})
	require.NoError(t, err)
	require.Contains(t, cache, "sqlite")
	require.Contains(t, cache, "2.0 kB")
	require.Contains(t, cache, "2025-03-01T00:00:00Z")

	gw, err := f.FormatGateway(GatewayView{Settings: gateway.Settings{BaseURL: gateway.DefaultBaseURL, MinInterval: 350 * time.Millisecond}})
	require.NoError(t, err)
	require.Contains(t, gw, "350ms")
	require.Contains(t, gw, "not configured")
}

func TestMarkdownFormatter(t *testing.T) {
	f := NewFormatter(FormatMarkdown)

	rendered, err := f.FormatSummaries([]core.Summary{{
		PMID:    "5",
		Title:   "A | B [draft]",
		Source:  "JAMA",
		PubDate: "2025 Mar",
		Authors: []string{"A", "B", "C", "D"},
		URL:     core.ArticleURL("5"),
	}})
	require.NoError(t, err)
	require.Contains(t, rendered, "| PMID | Title |")
	require.Contains(t, rendered, "A \\| B \\[draft\\]")
	require.Contains(t, rendered, "A, B, C, et al.")

	trendingRendered, err := f.FormatTrending([]trending.Entry{{PMID: "7", Likes: 3, Title: "Heart", AuthorsDisplay: "Jane Roe", URL: core.ArticleURL("7")}})
	require.NoError(t, err)
	require.Contains(t, trendingRendered, "1. [Roe et al. \"Heart\"](https://pubmed.ncbi.nlm.nih.gov/7/) (3 likes)")

	featured, err := f.FormatFeatured(&trending.FeaturedReport{
		WeekStart:              "2025-03-09",
		WeekEnd:                "2025-03-15",
		FeaturedCount:          1,
		TotalArticlesProcessed: 4,
		Articles:               []trending.FeaturedArticle{{PMID: "7", Title: "Heart", Journal: "Circ", Likes: 3}},
	})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(featured, "## Featured articles, week of 2025-03-09 to 2025-03-15"))
	require.Contains(t, featured, "**Featured**: 1 of 4")
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "short", truncate("short", 10))
	require.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	require.Equal(t, "a b", truncate("a\n  b", 10))
}
