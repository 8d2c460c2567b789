// Package amazon fetches a marketplace product page and turns it into a
// models.Listing, classifying every way that can fail.
package amazon

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"

	"listing-optimizer/apperr"
	"listing-optimizer/config"
	"listing-optimizer/models"
	"listing-optimizer/utils"
)

// Extractor acquires listing snapshots from Amazon product pages.
type Extractor struct {
	cfg     *config.Config
	fetcher PageFetcher
	logger  *utils.Logger
	now     func() time.Time
}

// New creates an Extractor. A nil fetcher selects one from cfg.FetchMode.
func New(cfg *config.Config, fetcher PageFetcher, logger *utils.Logger) *Extractor {
	if fetcher == nil {
		fetcher = NewFetcher(cfg)
	}
	return &Extractor{
		cfg:     cfg,
		fetcher: fetcher,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// NewFetcher returns the PageFetcher configured by FETCH_MODE.
func NewFetcher(cfg *config.Config) PageFetcher {
	if cfg.FetchMode == config.FetchModeBrowser {
		return NewBrowserFetcher(cfg.ChromeBin, cfg.FetchTimeout)
	}
	return NewCollyFetcher(cfg.FetchTimeout)
}

// ProductURL builds the canonical product page URL for asin on the given
// marketplace selector. Unknown selectors resolve to the default marketplace.
func (e *Extractor) ProductURL(asin, marketplace string) (string, string) {
	key, base := e.cfg.MarketplaceURL(marketplace)
	return key, fmt.Sprintf("%s/dp/%s", base, asin)
}

// Extract fetches and parses one product page. The returned listing has no ID;
// persisting it is the caller's job.
func (e *Extractor) Extract(ctx context.Context, asin, marketplace string) (*models.Listing, error) {
	asin = models.NormalizeASIN(asin)
	if !models.IsValidASIN(asin) {
		return nil, apperr.Newf(apperr.KindValidation, "invalid ASIN %q", asin)
	}

	market, url := e.ProductURL(asin, marketplace)
	e.logger.Info("[amazon] Fetching %s", url)

	page, err := e.fetcher.Fetch(ctx, url)
	if err != nil {
		e.logger.Warn("[amazon] Fetch failed for %s: %v", asin, err)
		return nil, apperr.Wrap(apperr.KindTransport, "could not reach the marketplace", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindExtractionFailed, "could not parse product page", err)
	}

	if err := classify(page.StatusCode, doc); err != nil {
		e.logger.Warn("[amazon] %s (%s): %v (status %d)", asin, market, err, page.StatusCode)
		return nil, err
	}

	listing := &models.Listing{
		ASIN:         asin,
		Marketplace:  market,
		Title:        extractTitle(doc),
		BulletPoints: extractBullets(doc),
		Description:  models.TruncateDescription(extractDescription(doc)),
		Price:        models.StringPtr(extractPrice(doc)),
		ImageURL:     models.StringPtr(extractImage(doc)),
		FetchedAt:    e.now(),
	}
	if listing.Title == "" {
		e.logger.Warn("[amazon] No product title found for %s", asin)
		return nil, apperr.Newf(apperr.KindExtractionFailed, "no product title found for %s", asin)
	}

	e.logger.Info("[amazon] Extracted %s: %d bullets, %d description chars",
		asin, len(listing.BulletPoints), len([]rune(listing.Description)))
	return listing, nil
}

// classify maps a fetched page to a failure kind, or nil when it looks like a
// product page. Bot checks win over status codes because they are often
// served with 200 or 503.
func classify(status int, doc *goquery.Document) error {
	if isBlocked(doc) {
		return apperr.New(apperr.KindBlocked, "the marketplace served a bot check")
	}
	switch {
	case status == http.StatusNotFound || status == http.StatusGone:
		return apperr.New(apperr.KindNotFound, "product not found")
	case isNotFound(doc):
		return apperr.New(apperr.KindNotFound, "product not found")
	case status == http.StatusForbidden || status == http.StatusTooManyRequests:
		return apperr.Newf(apperr.KindBlocked, "the marketplace refused the request (%d)", status)
	case status >= http.StatusInternalServerError:
		return apperr.Newf(apperr.KindTransport, "the marketplace answered %d", status)
	}
	return nil
}
