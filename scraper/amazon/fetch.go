package amazon

import (
	"context"
	"fmt"
	"time"

	"github.com/gocolly/colly/v2"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36"

// browserHeaders mimic a desktop Chrome navigation. Accept-Encoding is left to
// net/http so gzip bodies are decoded transparently.
var browserHeaders = map[string]string{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,image/apng,*/*;q=0.8",
	"Accept-Language":           "en-US,en;q=0.9",
	"Connection":                "keep-alive",
	"Upgrade-Insecure-Requests": "1",
	"Cache-Control":             "max-age=0",
}

// Page is a fetched document. StatusCode is 0 when the transport cannot report it.
type Page struct {
	URL        string
	StatusCode int
	Body       []byte
}

// PageFetcher retrieves a page without judging its status code: HTTP errors
// come back as a Page, and only network failures are returned as errors.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*Page, error)
}

// CollyFetcher fetches pages over plain HTTP with a browser-like header set.
type CollyFetcher struct {
	timeout time.Duration
}

// NewCollyFetcher creates a fetcher whose requests time out after timeout.
func NewCollyFetcher(timeout time.Duration) *CollyFetcher {
	return &CollyFetcher{timeout: timeout}
}

// Fetch performs a single GET. A fresh collector is built per call so
// concurrent fetches never share callbacks.
func (f *CollyFetcher) Fetch(ctx context.Context, url string) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := colly.NewCollector(
		colly.UserAgent(userAgent),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
	)
	c.SetRequestTimeout(f.timeout)

	var page *Page
	c.OnRequest(func(r *colly.Request) {
		for k, v := range browserHeaders {
			r.Headers.Set(k, v)
		}
	})
	c.OnResponse(func(r *colly.Response) {
		page = &Page{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       r.Body,
		}
	})

	if err := c.Visit(url); err != nil {
		return nil, fmt.Errorf("colly: visit %s: %w", url, err)
	}
	if page == nil {
		return nil, fmt.Errorf("colly: no response for %s", url)
	}
	return page, nil
}
