package pagination

import (
	"context"
	"net/url"
	"strconv"

	"github.com/Sternrassler/plagcheck-client/pkg/client"
)

const (
	// PageParam selects the page of a list endpoint.
	PageParam = "page"

	// HeaderTotalPages reports the number of pages of a list endpoint.
	HeaderTotalPages = "X-Total-Pages"
)

// Getter is the read side of the cached client.
type Getter interface {
	Get(ctx context.Context, path string, opts *client.RequestOptions) (*client.Response, error)
}

// ClientPages adapts a cached client to PageFetcher.
type ClientPages struct {
	getter Getter
	params url.Values
}

// NewClientPages creates a PageFetcher that sends params with every page request.
func NewClientPages(getter Getter, params url.Values) *ClientPages {
	return &ClientPages{getter: getter, params: params}
}

// FetchPage implements PageFetcher.
func (p *ClientPages) FetchPage(ctx context.Context, path string, pageNum int) ([]byte, int, error) {
	params := make(url.Values, len(p.params)+1)
	for k, v := range p.params {
		params[k] = append([]string(nil), v...)
	}
	params.Set(PageParam, strconv.Itoa(pageNum))

	resp, err := p.getter.Get(ctx, path, &client.RequestOptions{Params: params})
	if err != nil {
		return nil, 0, err
	}
	return resp.Data, totalPages(resp), nil
}

func totalPages(resp *client.Response) int {
	n, err := strconv.Atoi(resp.Header.Get(HeaderTotalPages))
	if err != nil || n < 1 {
		return 1
	}
	return n
}
