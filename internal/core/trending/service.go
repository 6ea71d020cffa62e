package trending

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// ErrNoCatalog is returned when neither a catalog path nor URL is configured.
var ErrNoCatalog = errors.New("article catalog is not configured")

// Service assembles the trending list from the like counter and the
// article catalog.
type Service struct {
	Likes       *LikeSource
	Fs          afero.Fs
	CatalogPath string
	CatalogURL  string
	Client      *http.Client
	Options     Options
	Clock       func() time.Time
}

// Catalog loads the article catalog, preferring the local path.
func (s *Service) Catalog(ctx context.Context) ([]CatalogEntry, error) {
	if path := strings.TrimSpace(s.CatalogPath); path != "" {
		fs := s.Fs
		if fs == nil {
			fs = afero.NewOsFs()
		}
		return LoadCatalog(fs, path)
	}
	if rawURL := strings.TrimSpace(s.CatalogURL); rawURL != "" {
		return FetchCatalog(ctx, s.Client, rawURL)
	}
	return nil, ErrNoCatalog
}

// Trending returns up to limit entries. A non-positive limit uses the
// configured option.
func (s *Service) Trending(ctx context.Context, limit int) ([]Entry, error) {
	if s == nil {
		return nil, errors.New("trending service is not configured")
	}
	catalog, err := s.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	likes, err := s.Likes.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	opts := s.Options
	if limit > 0 {
		opts.Limit = limit
	}
	return Select(catalog, likes, s.now(), opts), nil
}

func (s *Service) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}
