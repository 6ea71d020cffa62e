package core

import "time"

// ResponseType identifies how an upstream response body is decoded.
type ResponseType string

const (
	ResponseJSON ResponseType = "json"
	ResponseText ResponseType = "text"
)

// Author is a single article author as rendered for display.
type Author struct {
	Name  string `json:"name"`
	Local bool   `json:"is_local"`
}

// Article is the metadata extracted from a PubMed efetch record.
type Article struct {
	PMID           string     `json:"pmid"`
	Title          string     `json:"title"`
	Abstract       string     `json:"abstract"`
	Journal        string     `json:"journal"`
	PubDate        string     `json:"pubdate"`
	Published      *time.Time `json:"pub_datetime,omitempty"`
	Year           string     `json:"year,omitempty"`
	Month          string     `json:"month,omitempty"`
	Day            string     `json:"day,omitempty"`
	Authors        []Author   `json:"authors"`
	AuthorsDisplay string     `json:"authors_display"`
	Affiliations   []string   `json:"affiliations,omitempty"`
	URL            string     `json:"url"`
}

// LocalAuthors returns the names of authors flagged as local.
func (a Article) LocalAuthors() []string {
	names := make([]string, 0)
	for _, author := range a.Authors {
		if author.Local {
			names = append(names, author.Name)
		}
	}
	return names
}

// Summary is a compact esummary record.
type Summary struct {
	PMID        string   `json:"pmid"`
	Title       string   `json:"title"`
	Source      string   `json:"source"`
	Journal     string   `json:"journal,omitempty"`
	PubDate     string   `json:"pubdate"`
	SortPubDate string   `json:"sort_pubdate,omitempty"`
	Authors     []string `json:"authors"`
	URL         string   `json:"url"`
}

// SearchResult is the outcome of an esearch query.
type SearchResult struct {
	Count            int      `json:"count"`
	RetMax           int      `json:"retmax"`
	IDs              []string `json:"ids"`
	QueryTranslation string   `json:"query_translation,omitempty"`
}

// ArticleURL returns the canonical PubMed URL for a PMID.
func ArticleURL(pmid string) string {
	return "https://pubmed.ncbi.nlm.nih.gov/" + pmid + "/"
}
