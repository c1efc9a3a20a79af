// Package extractor parses HTML responses into page metadata and outbound
// links, adapted from the crawler's content extractor but extended with the
// keywords, publish_time, and base-href-aware link resolution the
// specification requires.
package extractor

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// SoftFieldLimit truncates extracted text fields before storage.
const SoftFieldLimit = 1024

// deniedLinkSchemes are never surfaced as outbound links.
var deniedLinkSchemes = map[string]struct{}{
	"javascript": {},
	"mailto":     {},
	"tel":        {},
	"data":       {},
}

// Metadata is the result of extracting one HTML document.
type Metadata struct {
	Title       string
	Author      string
	Description string
	Keywords    string
	PublishTime string
	Links       []string
	ContentHash string
}

// Extractor parses HTML bodies into Metadata using goquery.
type Extractor struct{}

// New builds an Extractor. It holds no state; a value receiver would do,
// but a type keeps the package symmetric with the rest of the engine's
// component constructors.
func New() *Extractor { return &Extractor{} }

// Extract parses body as HTML relative to baseURL. If contentType does not
// indicate HTML, it returns empty Metadata and no error — the caller stores
// the record as completed with no extracted fields.
func (e *Extractor) Extract(body io.Reader, baseURL, contentType string) (Metadata, error) {
	if !isHTML(contentType) {
		return Metadata{}, nil
	}

	raw, err := io.ReadAll(body)
	if err != nil {
		return Metadata{}, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(raw)))
	if err != nil {
		// A parse failure degrades to "no metadata" per the specification's
		// ExtractorError policy: the record is still written as completed.
		return Metadata{}, nil
	}

	base := resolveBase(doc, baseURL)
	sum := sha256.Sum256(raw)

	return Metadata{
		Title:       truncate(extractTitle(doc)),
		Author:      truncate(extractAuthor(doc)),
		Description: truncate(extractDescription(doc)),
		Keywords:    truncate(extractKeywords(doc)),
		PublishTime: truncate(extractPublishTime(doc)),
		Links:       extractLinks(doc, base),
		ContentHash: hex.EncodeToString(sum[:]),
	}, nil
}

func isHTML(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml+xml")
}

func resolveBase(doc *goquery.Document, fallback string) *url.URL {
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if parsedFallback, err := url.Parse(fallback); err == nil {
			if resolved, err := parsedFallback.Parse(href); err == nil {
				return resolved
			}
		}
	}
	parsed, err := url.Parse(fallback)
	if err != nil {
		return &url.URL{}
	}
	return parsed
}

func extractTitle(doc *goquery.Document) string {
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	return attrOr(doc, `meta[property="og:title"]`, "content", "")
}

func extractAuthor(doc *goquery.Document) string {
	if author := attrOr(doc, `meta[name="author"]`, "content", ""); author != "" {
		return author
	}
	if author := attrOr(doc, `meta[property="article:author"]`, "content", ""); author != "" {
		return author
	}
	return strings.TrimSpace(doc.Find(`a[rel="author"]`).First().Text())
}

func extractDescription(doc *goquery.Document) string {
	if desc := attrOr(doc, `meta[name="description"]`, "content", ""); desc != "" {
		return desc
	}
	return attrOr(doc, `meta[property="og:description"]`, "content", "")
}

func extractKeywords(doc *goquery.Document) string {
	return attrOr(doc, `meta[name="keywords"]`, "content", "")
}

func extractPublishTime(doc *goquery.Document) string {
	if t := attrOr(doc, `meta[property="article:published_time"]`, "content", ""); t != "" {
		return t
	}
	if t, ok := doc.Find("time[datetime]").First().Attr("datetime"); ok && strings.TrimSpace(t) != "" {
		return strings.TrimSpace(t)
	}
	return attrOr(doc, `meta[itemprop="datePublished"]`, "content", "")
}

func extractLinks(doc *goquery.Document, base *url.URL) []string {
	seen := make(map[string]struct{})
	links := make([]string, 0)

	collect := func(_ int, sel *goquery.Selection, attr string) {
		raw, ok := sel.Attr(attr)
		if !ok {
			return
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return
		}
		resolved := resolveLink(base, raw)
		if resolved == "" {
			return
		}
		if _, dup := seen[resolved]; dup {
			return
		}
		seen[resolved] = struct{}{}
		links = append(links, resolved)
	}

	doc.Find("a[href]").Each(func(i int, sel *goquery.Selection) { collect(i, sel, "href") })
	doc.Find("img[src]").Each(func(i int, sel *goquery.Selection) { collect(i, sel, "src") })

	return links
}

func resolveLink(base *url.URL, raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}

	var resolved *url.URL
	if base != nil {
		resolved = base.ResolveReference(parsed)
	} else {
		resolved = parsed
	}

	if _, denied := deniedLinkSchemes[strings.ToLower(resolved.Scheme)]; denied {
		return ""
	}
	if resolved.Scheme == "" || resolved.Host == "" {
		return ""
	}
	return resolved.String()
}

func attrOr(doc *goquery.Document, selector, attr, fallback string) string {
	if val, ok := doc.Find(selector).First().Attr(attr); ok {
		if trimmed := strings.TrimSpace(val); trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func truncate(s string) string {
	if len(s) <= SoftFieldLimit {
		return s
	}
	return s[:SoftFieldLimit]
}
