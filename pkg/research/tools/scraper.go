package tools

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	DefaultMaxChars = 8000
	maxPageBytes    = 2 << 20
	userAgent       = "Mozilla/5.0 (compatible; research-console/2.0)"
)

// Scraper fetches a page and extracts its readable text.
type Scraper struct {
	HTTP     *http.Client
	MaxChars int
	Logger   *slog.Logger
}

func NewScraper() *Scraper {
	return &Scraper{
		HTTP:     &http.Client{Timeout: 10 * time.Second},
		MaxChars: DefaultMaxChars,
		Logger:   slog.Default(),
	}
}

// Scrape returns the visible text of url, without scripts, styles,
// navigation and footers, truncated to MaxChars runes.
func (s *Scraper) Scrape(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("failed to parse %s: %w", url, err)
	}

	text := PageText(doc)
	if limit := s.MaxChars; limit > 0 {
		if r := []rune(text); len(r) > limit {
			text = string(r[:limit])
		}
	}
	s.Logger.Debug("Page scraped", "url", url, "chars", len(text))
	return text, nil
}

func skipped(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Nav, atom.Footer, atom.Noscript, atom.Template:
		return true
	}
	return false
}

// PageText collects the text nodes of doc, one trimmed phrase per line.
func PageText(doc *html.Node) string {
	var lines []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skipped(n) {
			return
		}
		if n.Type == html.TextNode {
			for _, line := range strings.Split(n.Data, "\n") {
				for _, phrase := range strings.Split(line, "  ") {
					if p := strings.TrimSpace(phrase); p != "" {
						lines = append(lines, p)
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.Join(lines, "\n")
}
