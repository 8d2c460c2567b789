package amazon

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// bulletStrategies are tried in order; the first one that yields at least
// one accepted line wins.
var bulletStrategies = []string{
	"#feature-bullets ul li span.a-list-item",
	"#feature-bullets ul li",
	"#featurebullets_feature_div li span.a-list-item",
	"#productFactsDesktopExpander ul li span.a-list-item",
}

var priceSelectors = []string{
	"#corePrice_feature_div .a-price .a-offscreen",
	"#corePriceDisplay_desktop_feature_div .a-price .a-offscreen",
	".a-price .a-offscreen",
	"#priceblock_ourprice",
	"#priceblock_dealprice",
	"#price_inside_buybox",
	".a-color-price",
}

var descriptionFallbacks = []string{
	"#aplus",
	"#aplus_feature_div",
	".aplus-v2",
}

var notFoundPhrases = []string{
	"not a functioning page on our site",
	"couldn't find that page",
	"couldn’t find that page",
}

// isBlocked reports whether the document is a bot-check interstitial.
func isBlocked(doc *goquery.Document) bool {
	title := strings.ToLower(doc.Find("title").First().Text())
	if strings.Contains(title, "robot check") {
		return true
	}
	return doc.Find(`form[action*="validateCaptcha"]`).Length() > 0 ||
		doc.Find("#captchacharacters").Length() > 0
}

// isNotFound reports whether the document is the marketplace's missing-product page.
func isNotFound(doc *goquery.Document) bool {
	title := strings.ToLower(doc.Find("title").First().Text())
	if strings.Contains(title, "page not found") {
		return true
	}
	if doc.Find(`a[href*="cs_404"], img[alt*="Dogs of Amazon"]`).Length() > 0 {
		return true
	}
	body := strings.ToLower(doc.Find("body").Text())
	for _, phrase := range notFoundPhrases {
		if strings.Contains(body, phrase) {
			return true
		}
	}
	return false
}

func extractTitle(doc *goquery.Document) string {
	return normaliseText(doc.Find("#productTitle").First().Text())
}

func extractBullets(doc *goquery.Document) []string {
	for _, selector := range bulletStrategies {
		var bullets []string
		seen := make(map[string]struct{})
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			text, ok := cleanBullet(s.Text())
			if !ok {
				return
			}
			if _, dup := seen[text]; dup {
				return
			}
			seen[text] = struct{}{}
			bullets = append(bullets, text)
		})
		if len(bullets) > 0 {
			return bullets
		}
	}
	return []string{}
}

// extractDescription prefers #productDescription and falls back to the A+
// content blocks, which frequently carry inline CSS. A fallback shorter than
// minDescriptionLength after cleanup is skipped.
func extractDescription(doc *goquery.Document) string {
	primary := ""
	if sel := doc.Find("#productDescription").First(); sel.Length() > 0 {
		primary = normaliseText(textWithoutScripts(sel))
	}
	if len([]rune(primary)) >= minDescriptionLength {
		return primary
	}

	for _, selector := range descriptionFallbacks {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}
		text := stripCodeFragments(textWithoutScripts(sel))
		if looksLikeCode(text) || len([]rune(text)) < minDescriptionLength {
			continue
		}
		return text
	}
	return primary
}

func textWithoutScripts(sel *goquery.Selection) string {
	clone := sel.Clone()
	clone.Find("style, script, noscript, link").Remove()
	return clone.Text()
}

func extractPrice(doc *goquery.Document) string {
	for _, selector := range priceSelectors {
		var price string
		doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			price = cleanPrice(s.Text())
			return price == ""
		})
		if price != "" {
			return price
		}
	}
	return ""
}

// extractImage reads the main product image. data-a-dynamic-image maps URLs
// to dimensions; its first key is the preferred rendition.
func extractImage(doc *goquery.Document) string {
	img := doc.Find("#landingImage, #imgBlkFront, #main-image").First()
	if img.Length() == 0 {
		return ""
	}
	if raw, ok := img.Attr("data-a-dynamic-image"); ok {
		if key, ok := firstJSONKey(raw); ok {
			return key
		}
	}
	if hires := strings.TrimSpace(img.AttrOr("data-old-hires", "")); hires != "" {
		return hires
	}
	src := strings.TrimSpace(img.AttrOr("src", ""))
	if strings.HasPrefix(src, "data:") {
		return ""
	}
	return src
}

// firstJSONKey returns the first key of a JSON object in document order.
// encoding/json maps lose ordering, so the object is walked as a token stream.
func firstJSONKey(raw string) (string, bool) {
	if !json.Valid([]byte(raw)) {
		return "", false
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return "", false
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return "", false
	}
	tok, err = dec.Token()
	if err != nil {
		return "", false
	}
	key, ok := tok.(string)
	if !ok || strings.TrimSpace(key) == "" {
		return "", false
	}
	return key, true
}
