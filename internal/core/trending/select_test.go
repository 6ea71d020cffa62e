package trending

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func sampleCatalog() []CatalogEntry {
	return []CatalogEntry{
		{PMID: "1", Title: "Alpha", AuthorsDisplay: "Smith J, Doe A", PubDate: "Mar 18, 2025", URL: "https://example.org/1"},
		{PMID: "2", Title: "Beta", AuthorsDisplay: "Lee K", PubDate: "2025-03-15"},
		{PMID: "3", Title: "Gamma", Authors: "Ng A|Ito M", PubDate: "Mar 1, 2025"},
		{PMID: "4", Title: "Delta", PubDate: "Mar 19, 2025"},
		{PMID: "5", Title: "Epsilon", PubDate: "Feb, 2025"},
		{PMID: "6", Title: "Zeta", PubDate: ""},
	}
}

func pmids(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry.PMID)
	}
	return out
}

func TestSelectFillsInStages(t *testing.T) {
	now := time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC)
	likes := Likes{"1": 3, "2": 10, "3": 50, "99": 7}

	entries := Select(sampleCatalog(), likes, now, Options{})
	require.Equal(t, []string{"2", "1", "4", "3", "5"}, pmids(entries))

	require.Equal(t, 10, entries[0].Likes)
	require.Equal(t, 0, entries[2].Likes)
	require.Equal(t, 50, entries[3].Likes)

	require.Equal(t, "https://pubmed.ncbi.nlm.nih.gov/2/", entries[0].URL)
	require.Equal(t, "https://example.org/1", entries[1].URL)
	require.Equal(t, "Ng A, Ito M", entries[3].AuthorsDisplay)
}

func TestSelectRespectsLimit(t *testing.T) {
	now := time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC)
	likes := Likes{"1": 3, "2": 10, "4": 1}

	entries := Select(sampleCatalog(), likes, now, Options{Limit: 2})
	require.Equal(t, []string{"2", "1"}, pmids(entries))
}

func TestSelectWindowBoundary(t *testing.T) {
	now := time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC)
	catalog := []CatalogEntry{
		{PMID: "edge", Title: "Edge", PubDate: "Mar 6, 2025"},
		{PMID: "old", Title: "Old", PubDate: "Mar 5, 2025"},
	}

	entries := Select(catalog, Likes{"edge": 1, "old": 9}, now, Options{Limit: 1})
	require.Equal(t, []string{"edge"}, pmids(entries))
}

func TestSelectWithoutLikesUsesRecency(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	catalog := append(sampleCatalog(), CatalogEntry{PMID: "4", Title: "Delta duplicate", PubDate: "Mar 19, 2025"})

	entries := Select(catalog, nil, now, Options{Limit: 10})
	require.Equal(t, []string{"4", "1", "2", "3", "5", "6"}, pmids(entries))
	require.Nil(t, entries[5].Published)
}

func TestSelectEmptyCatalog(t *testing.T) {
	require.Empty(t, Select(nil, Likes{"1": 1}, time.Now(), Options{}))
}

func TestEntryLabel(t *testing.T) {
	entry := Entry{Title: "Alpha", AuthorsDisplay: "Smith, Doe"}
	require.Equal(t, "Smith", entry.FirstAuthor())
	require.Equal(t, `Smith et al. "Alpha"`, entry.Label())

	require.Equal(t, "J", Entry{AuthorsDisplay: "Smith J, Doe A"}.FirstAuthor())
	require.Equal(t, "Unknown", Entry{}.FirstAuthor())
}

func TestParseDate(t *testing.T) {
	cases := map[string]time.Time{
		"2025-03-15":           time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
		"2025-03-15T10:30:00Z": time.Date(2025, 3, 15, 10, 30, 0, 0, time.UTC),
		"Nov 21, 2025":         time.Date(2025, 11, 21, 0, 0, 0, 0, time.UTC),
		"November 21, 2025":    time.Date(2025, 11, 21, 0, 0, 0, 0, time.UTC),
		"Nov, 2025":            time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC),
		"2025 Jan 5":           time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC),
		"2025/01/05 00:00":     time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC),
		"2024":                 time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	for input, expected := range cases {
		parsed, ok := ParseDate(input)
		require.True(t, ok, input)
		require.Equal(t, expected, parsed, input)
	}

	_, ok := ParseDate("Spring 2025")
	require.False(t, ok)
	_, ok = ParseDate("")
	require.False(t, ok)
}
