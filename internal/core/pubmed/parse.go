package pubmed

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/medcityai/pubgate/internal/core"
)

const (
	noTitle    = "No title"
	noAbstract = "No abstract available."

	// displayAuthorLimit is the author count above which the display list
	// is abbreviated.
	displayAuthorLimit = 16
)

var monthNames = []string{"", "Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

// Parser converts efetch XML into articles.
type Parser struct {
	LocalKeywords []string
}

// ParseArticles parses a PubmedArticleSet document with the default keywords.
func ParseArticles(data []byte) ([]core.Article, error) {
	return Parser{LocalKeywords: DefaultLocalKeywords}.Parse(data)
}

type articleSet struct {
	Articles []pubmedArticle `xml:"PubmedArticle"`
}

type pubmedArticle struct {
	Citation struct {
		PMID    string `xml:"PMID"`
		Article struct {
			Journal struct {
				Title           string `xml:"Title"`
				ISOAbbreviation string `xml:"ISOAbbreviation"`
				PubDate         struct {
					Year        string `xml:"Year"`
					Month       string `xml:"Month"`
					Day         string `xml:"Day"`
					MedlineDate string `xml:"MedlineDate"`
				} `xml:"JournalIssue>PubDate"`
			} `xml:"Journal"`
			Title    *mixedText `xml:"ArticleTitle"`
			Abstract *struct {
				Texts []mixedText `xml:"AbstractText"`
			} `xml:"Abstract"`
			Authors []xmlAuthor `xml:"AuthorList>Author"`
		} `xml:"Article"`
	} `xml:"MedlineCitation"`
}

type xmlAuthor struct {
	LastName     string   `xml:"LastName"`
	ForeName     string   `xml:"ForeName"`
	Affiliations []string `xml:"AffiliationInfo>Affiliation"`
}

// mixedText collects the character data of an element and its children.
type mixedText string

func (m *mixedText) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var b strings.Builder
	depth := 0
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.CharData:
			b.Write(t)
		case xml.StartElement:
			depth++
		case xml.EndElement:
			if depth == 0 {
				*m = mixedText(b.String())
				return nil
			}
			depth--
		}
	}
}

// Parse parses a PubmedArticleSet document.
func (p Parser) Parse(data []byte) ([]core.Article, error) {
	var set articleSet
	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.Entity = xml.HTMLEntity
	if err := decoder.Decode(&set); err != nil {
		return nil, fmt.Errorf("decode PubmedArticleSet: %w", err)
	}

	keywords := make([]string, 0, len(p.LocalKeywords))
	for _, keyword := range p.LocalKeywords {
		if keyword = strings.ToLower(strings.TrimSpace(keyword)); keyword != "" {
			keywords = append(keywords, keyword)
		}
	}

	articles := make([]core.Article, 0, len(set.Articles))
	for _, raw := range set.Articles {
		article := p.convert(raw, keywords)
		if article.PMID == "" {
			continue
		}
		articles = append(articles, article)
	}
	return articles, nil
}

func (p Parser) convert(raw pubmedArticle, keywords []string) core.Article {
	citation := raw.Citation
	pmid := strings.TrimSpace(citation.PMID)

	title := noTitle
	if citation.Article.Title != nil {
		title = strings.TrimSpace(string(*citation.Article.Title))
	}

	abstract := ""
	if citation.Article.Abstract != nil {
		parts := make([]string, 0, len(citation.Article.Abstract.Texts))
		for _, text := range citation.Article.Abstract.Texts {
			if value := strings.TrimSpace(string(text)); value != "" {
				parts = append(parts, value)
			}
		}
		abstract = strings.Join(parts, " ")
	}
	if abstract == "" {
		abstract = noAbstract
	}

	journal := strings.TrimSpace(citation.Article.Journal.Title)
	abbreviation := strings.TrimSpace(citation.Article.Journal.ISOAbbreviation)
	if len(strings.Fields(journal)) > 10 && abbreviation != "" {
		journal = abbreviation
	}

	date := citation.Article.Journal.PubDate
	year := strings.TrimSpace(date.Year)
	if year == "" {
		year = medlineYear(date.MedlineDate)
	}
	month := normalizeMonth(date.Month)
	day := strings.TrimSpace(date.Day)
	pubdate, published := formatPubDate(year, month, day)

	authors := make([]core.Author, 0, len(citation.Article.Authors))
	affiliations := make([]string, 0)
	seenAffiliation := make(map[string]struct{})
	for _, author := range citation.Article.Authors {
		local := false
		for _, affiliation := range author.Affiliations {
			affiliation = strings.TrimSpace(affiliation)
			if affiliation == "" {
				continue
			}
			if _, ok := seenAffiliation[affiliation]; !ok {
				seenAffiliation[affiliation] = struct{}{}
				affiliations = append(affiliations, affiliation)
			}
			if containsAny(strings.ToLower(affiliation), keywords) {
				local = true
			}
		}

		name := authorName(author.LastName, author.ForeName)
		if name == "" {
			continue
		}
		authors = append(authors, core.Author{Name: name, Local: local})
	}

	return core.Article{
		PMID:           pmid,
		Title:          title,
		Abstract:       abstract,
		Journal:        journal,
		PubDate:        pubdate,
		Published:      published,
		Year:           year,
		Month:          month,
		Day:            day,
		Authors:        authors,
		AuthorsDisplay: DisplayAuthors(authors),
		Affiliations:   affiliations,
		URL:            core.ArticleURL(pmid),
	}
}

// DisplayAuthors joins author names, abbreviating long lists to the first
// fifteen, the last author and "et al.".
func DisplayAuthors(authors []core.Author) string {
	names := make([]string, 0, len(authors))
	for _, author := range authors {
		names = append(names, author.Name)
	}
	if len(names) > displayAuthorLimit {
		head := append(append([]string(nil), names[:displayAuthorLimit-1]...), names[len(names)-1], "et al.")
		return strings.Join(head, ", ")
	}
	return strings.Join(names, ", ")
}

func authorName(lastName, foreName string) string {
	lastName = strings.TrimSpace(lastName)
	foreName = strings.TrimSpace(foreName)
	if foreName == "" {
		return lastName
	}
	if lastName == "" {
		return ""
	}

	initials := make([]string, 0, 2)
	for _, part := range strings.Fields(foreName) {
		r := []rune(part)
		initials = append(initials, string(r[0]))
	}
	return lastName + " " + strings.Join(initials, " ")
}

func normalizeMonth(month string) string {
	month = strings.TrimSpace(month)
	if n, err := strconv.Atoi(month); err == nil && n >= 1 && n <= 12 {
		return monthNames[n]
	}
	return month
}

func formatPubDate(year, month, day string) (string, *time.Time) {
	switch {
	case year != "" && month != "" && day != "":
		return fmt.Sprintf("%s %s, %s", month, day, year), buildDate(year, month, day)
	case year != "" && month != "":
		return fmt.Sprintf("%s, %s", month, year), buildDate(year, month, "1")
	case year != "":
		return year, buildDate(year, "Jan", "1")
	default:
		return "", nil
	}
}

func buildDate(year, month, day string) *time.Time {
	y, err := strconv.Atoi(year)
	if err != nil {
		return nil
	}
	d, err := strconv.Atoi(day)
	if err != nil {
		return nil
	}
	m := 0
	for i, name := range monthNames {
		if i > 0 && name == month {
			m = i
			break
		}
	}
	if m == 0 {
		return nil
	}

	value := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if value.Day() != d || int(value.Month()) != m {
		return nil
	}
	return &value
}

func medlineYear(medlineDate string) string {
	medlineDate = strings.TrimSpace(medlineDate)
	if len(medlineDate) < 4 {
		return ""
	}
	prefix := medlineDate[:4]
	for _, r := range prefix {
		if !unicode.IsDigit(r) {
			return ""
		}
	}
	return prefix
}

func containsAny(value string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(value, keyword) {
			return true
		}
	}
	return false
}
