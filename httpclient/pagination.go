/*
Copyright © 2026 ApiFetch Authors.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Paginator extracts the URL of the next page from a response.
// The returned URL may be relative to the request's URL.
type Paginator interface {
	NextPageURL(resp *http.Response) (nextURL string, ok bool)
}

// LinkPaginator follows Link response headers (RFC 8288) with rel="next".
type LinkPaginator struct {
	// Rel is the relation to follow, "next" by default.
	Rel string
}

// NextPageURL implements the Paginator interface.
func (p LinkPaginator) NextPageURL(resp *http.Response) (string, bool) {
	rel := p.Rel
	if rel == "" {
		rel = "next"
	}
	links := ParseLinkHeader(resp.Header.Values("Link"))
	nextURL, ok := links[rel]
	return nextURL, ok && nextURL != ""
}

// ParseLinkHeader parses Link header values into a rel -> URL map.
// A value looks like: <https://api.example.com/items?page=2>; rel="next".
func ParseLinkHeader(values []string) map[string]string {
	links := make(map[string]string)
	for _, value := range values {
		for _, link := range strings.Split(value, ",") {
			parts := strings.Split(link, ";")
			if len(parts) < 2 {
				continue
			}
			target := strings.TrimSpace(parts[0])
			if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
				continue
			}
			target = target[1 : len(target)-1]
			for _, param := range parts[1:] {
				name, paramValue, found := strings.Cut(strings.TrimSpace(param), "=")
				if !found || !strings.EqualFold(strings.TrimSpace(name), "rel") {
					continue
				}
				rel := strings.Trim(strings.TrimSpace(paramValue), `"`)
				if rel != "" {
					links[rel] = target
				}
			}
		}
	}
	return links
}

// PageHandler consumes one fetched page. The handler owns the response body
// and must close it. Returning an error stops fetching.
type PageHandler func(pageNum int, resp *http.Response) error

// PagedFetcher walks a paginated collection, fetching pages sequentially
// until the paginator finds no next page or MaxPages is reached.
type PagedFetcher struct {
	// Client performs the requests. http.DefaultClient is used if nil.
	Client *http.Client

	// Paginator extracts the next page URL. LinkPaginator{} is used if nil.
	Paginator Paginator

	// MaxPages bounds the walk; 0 means no bound.
	MaxPages int
}

// Fetch fetches all pages starting from startURL and passes each response to handle.
func (f *PagedFetcher) Fetch(ctx context.Context, startURL string, handle PageHandler) error {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	paginator := f.Paginator
	if paginator == nil {
		paginator = LinkPaginator{}
	}

	pageURL := startURL
	for pageNum := 1; ; pageNum++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
		if err != nil {
			return fmt.Errorf("build request for page %d: %w", pageNum, err)
		}

		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("fetch page %d: %w", pageNum, err)
		}

		nextURL, hasNext := paginator.NextPageURL(resp)

		if handleErr := handle(pageNum, resp); handleErr != nil {
			return handleErr
		}

		if !hasNext {
			return nil
		}
		if f.MaxPages > 0 && pageNum >= f.MaxPages {
			return nil
		}

		resolvedURL, err := resolvePageURL(req.URL, nextURL)
		if err != nil {
			return fmt.Errorf("resolve next page URL after page %d: %w", pageNum, err)
		}
		pageURL = resolvedURL
	}
}

func resolvePageURL(base *url.URL, next string) (string, error) {
	nextURL, err := url.Parse(next)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(nextURL).String(), nil
}
