package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"listing-optimizer/apperr"
	"listing-optimizer/gemini"
	"listing-optimizer/models"
	"listing-optimizer/utils"
)

const (
	expectedBullets  = 5
	expectedKeywords = 5
	rewriteFailure   = "AI optimization service is temporarily unavailable, please try again"
)

// Generator produces a JSON document for a prompt. gemini.Client is the
// production implementation.
type Generator interface {
	Generate(ctx context.Context, prompt string, schema *genai.Schema) (*gemini.Generation, error)
}

// rewriteSchema is the structured-output contract sent with every request.
var rewriteSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"title":       {Type: genai.TypeString},
		"bullets":     {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"description": {Type: genai.TypeString},
		"keywords":    {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
	},
	Required: []string{"title", "bullets", "description", "keywords"},
}

// rewriteResponse uses pointers and nil slices so missing fields can be told
// apart from empty ones.
type rewriteResponse struct {
	Title       *string  `json:"title"`
	Bullets     []string `json:"bullets"`
	Description *string  `json:"description"`
	Keywords    []string `json:"keywords"`
}

// Rewriter turns a listing snapshot into optimized copy.
type Rewriter struct {
	gen    Generator
	model  string
	logger *utils.Logger
}

// NewRewriter creates a Rewriter. model is reported when the provider does
// not name the version it served.
func NewRewriter(gen Generator, model string, logger *utils.Logger) *Rewriter {
	return &Rewriter{gen: gen, model: model, logger: logger}
}

// Rewrite asks the model for optimized copy. Every failure, whether the call
// itself or a malformed answer, is reported as KindRewriteUnavailable.
func (r *Rewriter) Rewrite(ctx context.Context, listing *models.Listing) (*models.Rewrite, error) {
	gen, err := r.gen.Generate(ctx, buildPrompt(listing), rewriteSchema)
	if err != nil {
		r.logger.Error("[rewriter] %s: generation failed: %v", listing.ASIN, err)
		return nil, apperr.Wrap(apperr.KindRewriteUnavailable, rewriteFailure, err)
	}

	optimized, err := parseRewrite(gen.Text)
	if err != nil {
		r.logger.Error("[rewriter] %s: rejected model output: %v", listing.ASIN, err)
		return nil, apperr.Wrap(apperr.KindRewriteUnavailable, rewriteFailure, err)
	}

	if n := len(optimized.BulletPoints); n != expectedBullets {
		r.logger.Warn("[rewriter] %s: expected %d bullets, got %d", listing.ASIN, expectedBullets, n)
	}
	if n := len(optimized.Keywords); n != expectedKeywords {
		r.logger.Warn("[rewriter] %s: expected %d keywords, got %d", listing.ASIN, expectedKeywords, n)
	}

	model := gen.ModelVersion
	if model == "" {
		model = r.model
	}
	return &models.Rewrite{
		Optimized:        *optimized,
		ModelUsed:        model,
		PromptTokens:     gen.PromptTokens,
		CompletionTokens: gen.CompletionTokens,
	}, nil
}

// parseRewrite decodes and validates the model's JSON body.
func parseRewrite(body string) (*models.OptimizedListing, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, errors.New("empty response body")
	}

	var resp rewriteResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if resp.Title == nil || strings.TrimSpace(*resp.Title) == "" {
		return nil, errors.New("missing or empty title")
	}
	if resp.Description == nil || strings.TrimSpace(*resp.Description) == "" {
		return nil, errors.New("missing or empty description")
	}
	bullets := compact(resp.Bullets)
	if len(bullets) == 0 {
		return nil, errors.New("missing or empty bullets")
	}
	keywords := compact(resp.Keywords)
	if len(keywords) == 0 {
		return nil, errors.New("missing or empty keywords")
	}

	return &models.OptimizedListing{
		Title:        strings.TrimSpace(*resp.Title),
		BulletPoints: bullets,
		Description:  strings.TrimSpace(*resp.Description),
		Keywords:     keywords,
	}, nil
}

func compact(items []string) []string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func buildPrompt(l *models.Listing) string {
	var b strings.Builder

	b.WriteString("You are an experienced Amazon marketplace listing strategist. You know how the ")
	b.WriteString("marketplace search ranks listings, how shoppers scan a product page, and what ")
	b.WriteString("the seller content policy allows.\n\n")
	b.WriteString("Rewrite the listing below to improve search visibility, click-through and ")
	b.WriteString("conversion while staying compliant with marketplace policy.\n\n")

	b.WriteString("CURRENT LISTING\n")
	fmt.Fprintf(&b, "ASIN: %s\n", l.ASIN)
	fmt.Fprintf(&b, "Title: %s\n", l.Title)
	b.WriteString("Bullet points:\n")
	if len(l.BulletPoints) == 0 {
		b.WriteString("  (none provided, infer likely benefits from the title and description)\n")
	} else {
		for i, bp := range l.BulletPoints {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, bp)
		}
	}
	if l.Description == "" {
		b.WriteString("Description: (none provided, infer product details from the title and bullets)\n\n")
	} else {
		fmt.Fprintf(&b, "Description: %s\n\n", l.Description)
	}

	b.WriteString("INSTRUCTIONS\n")
	b.WriteString("1. title: at most 200 characters. Put the main search phrase in the first 80 characters, ")
	b.WriteString("keep any brand name at the start, use Title Case, and write readable English rather ")
	b.WriteString("than a keyword list. No ALL CAPS, symbols or promotional phrases.\n")
	b.WriteString("2. bullets: exactly 5 entries of 150 to 250 characters each. Start each with a short ")
	b.WriteString("capitalised benefit phrase and a colon, then explain the feature behind it. Order: ")
	b.WriteString("main benefit, key differentiator, materials and build, ideal use or audience, ")
	b.WriteString("what is included or warranty. No HTML, emojis or symbols.\n")
	b.WriteString("3. description: 800 to 1500 characters of plain text. Open with the shopper's need, ")
	b.WriteString("expand on concrete benefits in two or three short paragraphs, and close with a call ")
	b.WriteString("to action. No HTML, markdown or emojis.\n")
	b.WriteString("4. keywords: exactly 5 search phrases of 2 to 4 words that do not already appear in ")
	b.WriteString("the rewritten title, bullets or description. No brand names, ASINs or single words.\n\n")
	b.WriteString("Never use superlatives such as \"best\" or \"#1\", time-limited offers, references to ")
	b.WriteString("competitors, or medical and health claims.\n\n")
	b.WriteString("Respond with a single JSON object with the fields title, bullets, description and keywords.")

	return b.String()
}
