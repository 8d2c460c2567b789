package models

import "time"

// Optimization is one persisted rewrite transaction. It always references the
// Listing snapshot that was used as input.
type Optimization struct {
	ID                   int64     `json:"id"`
	ListingID            int64     `json:"listingId"`
	ASIN                 string    `json:"asin"`
	OptimizedTitle       string    `json:"optimizedTitle"`
	OptimizedBullets     []string  `json:"optimizedBullets"`
	OptimizedDescription string    `json:"optimizedDescription"`
	Keywords             []string  `json:"keywords"`
	ModelUsed            string    `json:"modelUsed"`
	PromptTokens         *int      `json:"promptTokens"`
	CompletionTokens     *int      `json:"completionTokens"`
	CreatedAt            time.Time `json:"createdAt"`
}

// OptimizationDetail is an Optimization joined with its source listing.
type OptimizationDetail struct {
	Optimization
	OriginalTitle       string   `json:"originalTitle"`
	OriginalBullets     []string `json:"originalBullets"`
	OriginalDescription string   `json:"originalDescription"`
	OriginalPrice       *string  `json:"originalPrice"`
	OriginalImageURL    *string  `json:"originalImageUrl"`
}

// RecentOptimization is one row of the "latest per ASIN" feed.
type RecentOptimization struct {
	ID               int64     `json:"id"`
	ASIN             string    `json:"asin"`
	OptimizedTitle   string    `json:"optimizedTitle"`
	ModelUsed        string    `json:"modelUsed"`
	CreatedAt        time.Time `json:"createdAt"`
	OriginalTitle    string    `json:"originalTitle"`
	OriginalImageURL *string   `json:"originalImageUrl"`
}

// HistoryPage is a paginated slice of optimizations for one ASIN.
type HistoryPage struct {
	ASIN          string         `json:"asin"`
	Optimizations []Optimization `json:"optimizations"`
	Total         int            `json:"total"`
	Limit         int            `json:"limit"`
	Offset        int            `json:"offset"`
}

// OriginalListing is the source side of a side-by-side comparison.
type OriginalListing struct {
	Title        string   `json:"title"`
	BulletPoints []string `json:"bulletPoints"`
	Description  string   `json:"description"`
	Price        *string  `json:"price,omitempty"`
	ImageURL     *string  `json:"imageUrl,omitempty"`
}

// OptimizationResult is what a pipeline run hands back to its caller.
type OptimizationResult struct {
	ID        int64            `json:"id"`
	ASIN      string           `json:"asin"`
	Original  OriginalListing  `json:"original"`
	Optimized OptimizedListing `json:"optimized"`
	ModelUsed string           `json:"modelUsed"`
	CacheHit  bool             `json:"cacheHit"`
	CreatedAt time.Time        `json:"createdAt"`
}
