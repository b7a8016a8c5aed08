package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
)

// maxPageBytes bounds how much of a page is parsed for metadata
const maxPageBytes = 2 << 20

// PageMetadata is what a source page says about itself
type PageMetadata struct {
	Title       string
	SiteName    string
	Description string // Markdown
}

// PageScraper reads title, creator and description from a source page when
// the downloader reports none
type PageScraper struct {
	client *http.Client
	logger arbor.ILogger
}

// NewPageScraper creates a scraper with the given request timeout
func NewPageScraper(timeout time.Duration, logger arbor.ILogger) *PageScraper {
	return &PageScraper{
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Scrape fetches pageURL and extracts its metadata
func (s *PageScraper) Scrape(ctx context.Context, pageURL string) (*PageMetadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; VoiceNote/1.0)")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch page: status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	meta := ParsePage(doc, pageURL)

	s.logger.Debug().
		Str("url", pageURL).
		Str("title", meta.Title).
		Str("site", meta.SiteName).
		Int("description_length", len(meta.Description)).
		Msg("Page metadata scraped")

	return meta, nil
}

// ParsePage extracts metadata from a parsed document. Relative links in the
// description resolve against baseURL.
func ParsePage(doc *goquery.Document, baseURL string) *PageMetadata {
	meta := &PageMetadata{
		Title:    firstNonEmpty(metaContent(doc, "meta[property='og:title']"), metaContent(doc, "meta[name='twitter:title']"), strings.TrimSpace(doc.Find("title").First().Text())),
		SiteName: firstNonEmpty(metaContent(doc, "meta[name='author']"), metaContent(doc, "link[itemprop='name']"), metaContent(doc, "meta[property='og:site_name']")),
	}

	// Rich descriptions are converted to markdown; meta tags carry plain text
	if html, err := doc.Find("[itemprop='description'], #description").First().Html(); err == nil && strings.TrimSpace(html) != "" {
		converter := md.NewConverter(baseURL, true, nil)
		if markdown, err := converter.ConvertString(html); err == nil {
			meta.Description = strings.TrimSpace(markdown)
		}
	}
	if meta.Description == "" {
		meta.Description = firstNonEmpty(metaContent(doc, "meta[property='og:description']"), metaContent(doc, "meta[name='description']"))
	}

	return meta
}

func metaContent(doc *goquery.Document, selector string) string {
	if v, ok := doc.Find(selector).First().Attr("content"); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
