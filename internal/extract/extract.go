package extract

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
)

// Content holds the structured fields extracted from a fetched page
type Content struct {
	Title            string   `json:"title,omitempty"`
	Description      string   `json:"description,omitempty"`
	Text             string   `json:"text,omitempty"`
	Headings         []string `json:"headings,omitempty"`
	Links            []string `json:"links,omitempty"`
	Images           []string `json:"images,omitempty"`
	WordCount        int      `json:"word_count"`
	Language         string   `json:"language,omitempty"`
	ReadabilityScore float64  `json:"readability_score"`
	DataType         string   `json:"data_type"`
}

// Extractor parses fetched bodies into structured content. It is a pure
// transformation of its inputs: malformed markup yields a partial Content,
// never an error or a panic.
type Extractor struct{}

// New creates an Extractor.
func New() *Extractor {
	return &Extractor{}
}

// Extract parses an HTML body fetched from pageURL into structured fields.
func (e *Extractor) Extract(body []byte, pageURL string) *Content {
	content := &Content{DataType: "other"}
	if len(body) == 0 {
		return content
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		log.Debug().Err(err).Str("url", pageURL).Msg("Failed to parse HTML, falling back to raw text")
		content.Text = strings.TrimSpace(string(body))
		content.WordCount = len(strings.Fields(content.Text))
		return content
	}

	base, _ := url.Parse(pageURL)

	content.Title = strings.TrimSpace(doc.Find("title").First().Text())
	if content.Title == "" {
		content.Title = strings.TrimSpace(doc.Find("h1").First().Text())
	}

	if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		content.Description = strings.TrimSpace(desc)
	}
	if content.Description == "" {
		if desc, ok := doc.Find(`meta[property="og:description"]`).Attr("content"); ok {
			content.Description = strings.TrimSpace(desc)
		}
	}

	doc.Find("h1, h2, h3").Each(func(_ int, s *goquery.Selection) {
		if heading := strings.TrimSpace(s.Text()); heading != "" {
			content.Headings = append(content.Headings, heading)
		}
	})

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" || href == "#" || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
			return
		}
		content.Links = append(content.Links, resolveRef(base, href))
	})

	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		if src := strings.TrimSpace(s.AttrOr("src", "")); src != "" {
			content.Images = append(content.Images, resolveRef(base, src))
		}
	})

	// Strip non-content elements before collecting body text
	doc.Find("script, style, noscript, nav, header, footer, aside").Remove()

	mainText := doc.Find("article, main").First()
	if mainText.Length() > 0 {
		content.Text = collapseWhitespace(mainText.Text())
	} else {
		content.Text = collapseWhitespace(doc.Find("body").Text())
	}

	content.WordCount = len(strings.Fields(content.Text))
	content.Language = detectLanguage(content.Text)
	content.ReadabilityScore = readabilityScore(content.Text)
	content.DataType = classify(doc, pageURL)

	return content
}

// Apply evaluates named CSS selector rules against body and returns the
// first match's text per rule. Unmatched rules are omitted; a body that
// fails to parse yields an empty map.
func (e *Extractor) Apply(body []byte, rules map[string]string) map[string]string {
	fields := make(map[string]string)
	if len(body) == 0 || len(rules) == 0 {
		return fields
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return fields
	}

	for name, selector := range rules {
		if value := strings.TrimSpace(doc.Find(selector).First().Text()); value != "" {
			fields[name] = value
		}
	}
	return fields
}

func resolveRef(base *url.URL, ref string) string {
	if base == nil {
		return ref
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(parsed).String()
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// classify maps page signals to a content-type classification.
func classify(doc *goquery.Document, pageURL string) string {
	if ogType, ok := doc.Find(`meta[property="og:type"]`).Attr("content"); ok {
		switch {
		case strings.Contains(ogType, "article"):
			return "article"
		case strings.Contains(ogType, "product"):
			return "product"
		case strings.Contains(ogType, "profile"):
			return "profile"
		case strings.Contains(ogType, "video"), strings.Contains(ogType, "image"):
			return "media"
		}
	}

	lower := strings.ToLower(pageURL)
	switch {
	case strings.Contains(lower, "/product"), strings.Contains(lower, "/shop/"):
		return "product"
	case strings.Contains(lower, "/article"), strings.Contains(lower, "/blog/"), strings.Contains(lower, "/news/"):
		return "article"
	case strings.Contains(lower, "/profile"), strings.Contains(lower, "/user/"):
		return "profile"
	case strings.HasSuffix(lower, ".pdf"), strings.HasSuffix(lower, ".doc"), strings.HasSuffix(lower, ".docx"):
		return "document"
	}

	if doc.Find("article").Length() > 0 {
		return "article"
	}
	if doc.Find(`[itemtype*="Product"]`).Length() > 0 {
		return "product"
	}
	return "other"
}
