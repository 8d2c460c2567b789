// Package gemini is a thin JSON-mode wrapper around the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"listing-optimizer/config"
	"listing-optimizer/utils"
)

// ErrNotConfigured is returned when no API key was provided.
var ErrNotConfigured = errors.New("gemini: GEMINI_API_KEY is not set")

// Generation is one model answer plus the metadata the provider reported.
// Token counts stay nil when the provider omits them.
type Generation struct {
	Text             string
	ModelVersion     string
	PromptTokens     *int
	CompletionTokens *int
}

// Client calls generateContent with a response schema.
type Client struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	logger  *utils.Logger
}

// New creates a Client from config. A missing API key yields a Client whose
// calls fail with ErrNotConfigured, so the rest of the service can still start.
func New(ctx context.Context, cfg *config.Config, logger *utils.Logger) (*Client, error) {
	c := &Client{model: cfg.GeminiModel, timeout: cfg.GeminiTimeout, logger: logger}
	if cfg.GeminiAPIKey == "" {
		logger.Warn("[gemini] GEMINI_API_KEY not set, rewrites will fail")
		return c, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	c.client = client
	return c, nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Generate sends prompt and asks for a JSON body matching schema.
func (c *Client) Generate(ctx context.Context, prompt string, schema *genai.Schema) (*Generation, error) {
	if c.client == nil {
		return nil, ErrNotConfigured
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: generate content: %w", err)
	}

	gen := &Generation{
		Text:         strings.TrimSpace(resp.Text()),
		ModelVersion: resp.ModelVersion,
	}
	if u := resp.UsageMetadata; u != nil {
		if u.PromptTokenCount > 0 {
			n := int(u.PromptTokenCount)
			gen.PromptTokens = &n
		}
		if u.CandidatesTokenCount > 0 {
			n := int(u.CandidatesTokenCount)
			gen.CompletionTokens = &n
		}
	}

	c.logger.Debug("[gemini] %s answered in %v (%d chars)", c.model, time.Since(start).Round(time.Millisecond), len(gen.Text))
	return gen, nil
}
