package cli

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"listing-optimizer/models"
)

const (
	ansiReset  = "\033[0m"
	ansiBold   = "\033[1m"
	ansiTitle  = "\033[1;35m"
	ansiHeader = "\033[1;33m"
	ansiGood   = "\033[1;32m"
	ansiBad    = "\033[1;31m"
)

var (
	sep  = strings.Repeat("═", 64)
	thin = strings.Repeat("─", 64)
)

// PrintComparison writes the original and optimized copy one after the other.
func PrintComparison(w io.Writer, r *models.OptimizationResult) {
	source := "fresh scrape"
	if r.CacheHit {
		source = "cached snapshot"
	}

	fmt.Fprintf(w, "\n%s%s%s\n", ansiTitle, sep, ansiReset)
	fmt.Fprintf(w, "%s  %s  optimization #%d (%s)%s\n", ansiTitle, r.ASIN, r.ID, source, ansiReset)
	fmt.Fprintf(w, "%s%s%s\n\n", ansiTitle, sep, ansiReset)

	section(w, "Original")
	fmt.Fprintf(w, "  Title : %s\n", r.Original.Title)
	if r.Original.Price != nil {
		fmt.Fprintf(w, "  Price : %s\n", *r.Original.Price)
	}
	bullets(w, r.Original.BulletPoints)
	fmt.Fprintf(w, "  %s\n\n", truncate(r.Original.Description, 300))

	section(w, "Optimized")
	fmt.Fprintf(w, "  Title : %s%s%s\n", ansiGood, r.Optimized.Title, ansiReset)
	bullets(w, r.Optimized.BulletPoints)
	fmt.Fprintf(w, "  %s\n", truncate(r.Optimized.Description, 300))
	if len(r.Optimized.Keywords) > 0 {
		fmt.Fprintf(w, "  Keywords : %s\n", strings.Join(r.Optimized.Keywords, ", "))
	}
	fmt.Fprintf(w, "\n  Model : %s | %s\n", r.ModelUsed, r.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(w, "%s%s%s\n", ansiTitle, sep, ansiReset)
}

// PrintHistory writes one line per optimization, newest first.
func PrintHistory(w io.Writer, page *models.HistoryPage) {
	section(w, fmt.Sprintf("History for %s (%d of %d)", page.ASIN, len(page.Optimizations), page.Total))
	if len(page.Optimizations) == 0 {
		fmt.Fprintf(w, "  No optimizations recorded\n")
		return
	}
	for _, o := range page.Optimizations {
		fmt.Fprintf(w, "  %s#%-6d%s %s  %-44s %s\n",
			ansiBold, o.ID, ansiReset,
			o.CreatedAt.Format("2006-01-02 15:04"),
			truncate(o.OptimizedTitle, 42),
			o.ModelUsed)
	}
}

// PrintRecent writes the latest optimization for each ASIN.
func PrintRecent(w io.Writer, items []models.RecentOptimization) {
	section(w, "Recent optimizations")
	if len(items) == 0 {
		fmt.Fprintf(w, "  No optimizations recorded\n")
		return
	}
	for i, it := range items {
		fmt.Fprintf(w, "  %s%d.%s %s  %-44s %s\n",
			ansiBold, i+1, ansiReset,
			it.ASIN,
			truncate(it.OptimizedTitle, 42),
			it.CreatedAt.Format("2006-01-02 15:04"))
	}
}

// PrintBatchSummary reports how many runs of a batch succeeded and why the
// others failed.
func PrintBatchSummary(w io.Writer, results []batchResult) {
	ok := 0
	for _, r := range results {
		if r.Err == nil {
			ok++
		}
	}

	fmt.Fprintln(w)
	section(w, "Batch summary")
	fmt.Fprintf(w, "  Succeeded : %s%d%s\n", ansiGood, ok, ansiReset)
	fmt.Fprintf(w, "  Failed    : %s%d%s\n", ansiBad, len(results)-ok, ansiReset)
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(w, "  %s  %s\n", r.ASIN, truncate(r.Err.Error(), 56))
		}
	}
}

func section(w io.Writer, title string) {
	fmt.Fprintf(w, "%s  %s%s\n", ansiHeader, title, ansiReset)
	fmt.Fprintf(w, "  %s\n", thin)
}

func bullets(w io.Writer, items []string) {
	for _, b := range items {
		fmt.Fprintf(w, "  • %s\n", truncate(b, 120))
	}
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max-3]) + "..."
}
