package pagination

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/plagcheck-client/pkg/logging"
)

// Config holds batch fetcher configuration
type Config struct {
	// MaxConcurrency is the maximum number of parallel page requests
	MaxConcurrency int

	// Timeout per page fetch
	Timeout time.Duration

	// MaxPages caps the page count reported by the backend (0 means no cap)
	MaxPages int
}

// DefaultConfig returns the default batch fetcher configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 4,
		Timeout:        15 * time.Second,
		MaxPages:       500,
	}
}

// PageFetcher fetches a single page and reports the total page count.
type PageFetcher interface {
	FetchPage(ctx context.Context, path string, pageNum int) (data []byte, totalPages int, err error)
}

// BatchFetcher handles parallel fetching of multiple pages
type BatchFetcher struct {
	fetcher PageFetcher
	config  Config
}

// NewBatchFetcher creates a new batch fetcher
func NewBatchFetcher(fetcher PageFetcher, config Config) *BatchFetcher {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}

	return &BatchFetcher{
		fetcher: fetcher,
		config:  config,
	}
}

// FetchAllPages fetches all pages of path and returns pageNumber -> body.
func (bf *BatchFetcher) FetchAllPages(ctx context.Context, path string) (map[int][]byte, error) {
	start := time.Now()
	logger := logging.NewLogger(logging.ComponentPagination)

	firstPage, totalPages, err := bf.fetchOne(ctx, path, 1)
	if err != nil {
		return nil, fmt.Errorf("fetch first page: %w", err)
	}
	if totalPages < 1 {
		totalPages = 1
	}
	if bf.config.MaxPages > 0 && totalPages > bf.config.MaxPages {
		logger.Warn().
			Str("path", path).
			Int("reported_pages", totalPages).
			Int("max_pages", bf.config.MaxPages).
			Msg("Page count capped")
		totalPages = bf.config.MaxPages
	}

	results := map[int][]byte{1: firstPage}
	if totalPages == 1 {
		return results, nil
	}

	logger.Debug().
		Str("path", path).
		Int("total_pages", totalPages).
		Msg("Starting parallel page fetch")

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bf.config.MaxConcurrency)

	for page := 2; page <= totalPages; page++ {
		g.Go(func() error {
			data, _, err := bf.fetchOne(gctx, path, page)
			if err != nil {
				return fmt.Errorf("fetch page %d: %w", page, err)
			}
			mu.Lock()
			results[page] = data
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Warn().
			Err(err).
			Str("path", path).
			Int("total_pages", totalPages).
			Msg("Page fetch failed")
		return nil, err
	}

	logger.Debug().
		Str("path", path).
		Int("pages", totalPages).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return results, nil
}

func (bf *BatchFetcher) fetchOne(ctx context.Context, path string, page int) ([]byte, int, error) {
	pageCtx, cancel := context.WithTimeout(ctx, bf.config.Timeout)
	defer cancel()
	return bf.fetcher.FetchPage(pageCtx, path, page)
}

// Ordered returns the page bodies in page order.
func Ordered(results map[int][]byte) [][]byte {
	pages := make([]int, 0, len(results))
	for page := range results {
		pages = append(pages, page)
	}
	sort.Ints(pages)

	out := make([][]byte, 0, len(pages))
	for _, page := range pages {
		out = append(out, results[page])
	}
	return out
}
