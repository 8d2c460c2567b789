package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"listing-optimizer/models"
)

// csvListSeparator joins array columns into one cell.
const csvListSeparator = " | "

// CSVWriter exports optimization history to a CSV file.
// It is safe for concurrent use.
type CSVWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewCSVWriter creates (or truncates) the CSV file at the given path and
// writes the header row. Intermediate directories are created automatically.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv: create file %q: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write([]string{
		"id", "asin", "listing_id", "optimized_title", "optimized_bullets", "optimized_description",
		"keywords", "model_used", "prompt_tokens", "completion_tokens", "created_at",
	}); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv: write header: %w", err)
	}
	w.Flush()

	return &CSVWriter{file: f, writer: w}, nil
}

// WriteOptimizations appends one row per optimization.
func (c *CSVWriter) WriteOptimizations(opts []models.Optimization) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, o := range opts {
		row := []string{
			strconv.FormatInt(o.ID, 10),
			o.ASIN,
			strconv.FormatInt(o.ListingID, 10),
			o.OptimizedTitle,
			strings.Join(o.OptimizedBullets, csvListSeparator),
			o.OptimizedDescription,
			strings.Join(o.Keywords, csvListSeparator),
			o.ModelUsed,
			formatTokens(o.PromptTokens),
			formatTokens(o.CompletionTokens),
			o.CreatedAt.Format(time.RFC3339),
		}
		if err := c.writer.Write(row); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}

	c.writer.Flush()
	return c.writer.Error()
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.writer.Flush()
	return c.file.Close()
}

func formatTokens(n *int) string {
	if n == nil {
		return ""
	}
	return strconv.Itoa(*n)
}
