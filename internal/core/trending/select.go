package trending

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/medcityai/pubgate/internal/core"
)

const (
	DefaultWindow = 14 * 24 * time.Hour
	DefaultLimit  = 5
)

// Options tunes Select.
type Options struct {
	Window time.Duration
	Limit  int
}

// Entry is one article in the trending list.
type Entry struct {
	PMID           string     `json:"pmid"`
	Likes          int        `json:"likes"`
	Title          string     `json:"title"`
	AuthorsDisplay string     `json:"authors_display"`
	PubDate        string     `json:"pubdate"`
	URL            string     `json:"url"`
	Published      *time.Time `json:"published,omitempty"`
}

// FirstAuthor returns the last word of the first display author.
func (e Entry) FirstAuthor() string {
	first := strings.TrimSpace(strings.Split(e.AuthorsDisplay, ",")[0])
	if first == "" {
		return "Unknown"
	}
	words := strings.Split(first, " ")
	return words[len(words)-1]
}

// Label renders the entry as shown in the trending list.
func (e Entry) Label() string {
	return fmt.Sprintf("%s et al. \"%s\"", e.FirstAuthor(), e.Title)
}

// Select picks the trending articles: liked articles published inside the
// window by likes, then other in-window articles by recency, then any
// remaining article by recency, up to the limit.
func Select(catalog []CatalogEntry, likes Likes, now time.Time, opts Options) []Entry {
	window := opts.Window
	if window <= 0 {
		window = DefaultWindow
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	cutoff := now.Add(-window)

	byPMID := make(map[string]CatalogEntry, len(catalog))
	for _, entry := range catalog {
		byPMID[entry.PMID] = entry
	}

	inWindow := func(published *time.Time) bool {
		return published != nil && !published.Before(cutoff)
	}

	selected := make([]Entry, 0, limit)
	taken := make(map[string]struct{})

	for _, ranked := range likes.Ranked() {
		meta, ok := byPMID[ranked.PMID]
		if !ok {
			continue
		}
		entry := toEntry(meta, ranked.Likes)
		if !inWindow(entry.Published) {
			continue
		}
		selected = append(selected, entry)
		taken[entry.PMID] = struct{}{}
	}

	fill := func(include func(Entry) bool) {
		if len(selected) >= limit {
			return
		}
		candidates := make([]Entry, 0)
		seen := make(map[string]struct{})
		for _, meta := range catalog {
			if _, ok := taken[meta.PMID]; ok {
				continue
			}
			if _, ok := seen[meta.PMID]; ok {
				continue
			}
			entry := toEntry(meta, likes[meta.PMID])
			if !include(entry) {
				continue
			}
			seen[meta.PMID] = struct{}{}
			candidates = append(candidates, entry)
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			return newer(candidates[i].Published, candidates[j].Published)
		})
		for _, entry := range candidates {
			if len(selected) >= limit {
				break
			}
			selected = append(selected, entry)
			taken[entry.PMID] = struct{}{}
		}
	}

	fill(func(e Entry) bool { return inWindow(e.Published) })
	fill(func(Entry) bool { return true })

	if len(selected) > limit {
		selected = selected[:limit]
	}
	return selected
}

func toEntry(meta CatalogEntry, likes int) Entry {
	entry := Entry{
		PMID:           meta.PMID,
		Likes:          likes,
		Title:          meta.Title,
		AuthorsDisplay: meta.AuthorsDisplay,
		PubDate:        meta.PubDate,
		URL:            meta.URL,
	}
	if entry.AuthorsDisplay == "" {
		entry.AuthorsDisplay = strings.ReplaceAll(meta.Authors, "|", ", ")
	}
	if entry.URL == "" {
		entry.URL = core.ArticleURL(meta.PMID)
	}
	if published, ok := ParseDate(meta.PubDate); ok {
		entry.Published = &published
	}
	return entry
}
