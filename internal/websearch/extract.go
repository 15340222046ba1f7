package websearch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/wingleeio/chat-zeron/internal/log"
)

// maxFetchBytes caps how much of a page is read before extraction.
const maxFetchBytes = 2 << 20 // 2 MB

// Extractor fetches a page and reduces it to readable text.
// Live fetch is the only mode; there is no cache layer.
type Extractor struct {
	http   *http.Client
	logger log.Logger
}

// NewExtractor creates an Extractor. A nil httpClient gets a bounded default.
func NewExtractor(httpClient *http.Client, logger log.Logger) *Extractor {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	return &Extractor{http: httpClient, logger: logger}
}

// Content fetches pageURL and returns its readable text, truncated to
// maxChars runes. Readability extraction is attempted first; on failure a
// bare DOM text pass is used.
func (e *Extractor) Content(ctx context.Context, pageURL string, maxChars int) (string, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("parsing page url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("building fetch request: %w", err)
	}
	req.Header.Set("User-Agent", "zeron-research/1.0")

	resp, err := e.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", pageURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching %s: unexpected status %d", pageURL, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", pageURL, err)
	}

	article, err := readability.FromReader(bytes.NewReader(raw), parsed)
	text := strings.TrimSpace(article.TextContent)
	if err != nil || text == "" {
		e.logger.Debug("readability extraction failed, using DOM text", "url", pageURL, "error", err)
		text, err = domText(bytes.NewReader(raw))
		if err != nil {
			return "", fmt.Errorf("extracting %s: %w", pageURL, err)
		}
	}

	return Truncate(text, maxChars), nil
}

// domText extracts whitespace-normalized body text as a fallback.
func domText(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", err
	}
	doc.Find("script, style, noscript").Remove()
	return strings.Join(strings.Fields(doc.Find("body").Text()), " "), nil
}

// Truncate limits s to n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
