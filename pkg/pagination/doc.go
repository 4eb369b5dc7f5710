// Package pagination fetches every page of a paginated list endpoint in parallel.
//
// The backend reports the page count in the X-Total-Pages response header and
// selects a page with the "page" query parameter. Pages are fetched through the
// cached client, so a repeated walk of the same list is served from the cache
// while the entries are fresh.
//
// Example usage:
//
//	pages := pagination.NewClientPages(cachedClient, url.Values{"status": {"checked"}})
//	fetcher := pagination.NewBatchFetcher(pages, pagination.DefaultConfig())
//	results, err := fetcher.FetchAllPages(ctx, "/theses")
//
// The batch fetcher:
//   - Fetches page 1 to determine total pages
//   - Fetches the remaining pages with at most MaxConcurrency in flight
//   - Fails as a whole if any page fails
package pagination
