// Package tools holds the source lookups used by the development research
// backend.
package tools

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const DefaultArxivURL = "https://export.arxiv.org/api/query"

// ArxivEntry struct to hold arXiv entry data
type ArxivEntry struct {
	Title     string      `xml:"title"`
	Summary   string      `xml:"summary"`
	Published string      `xml:"published"`
	Link      []ArxivLink `xml:"link"`
}

// ArxivLink struct to hold arXiv link data
type ArxivLink struct {
	Href string `xml:"href,attr"`
	Type string `xml:"type,attr"`
	Rel  string `xml:"rel,attr"`
}

// ArxivFeed struct to hold the entire arXiv feed
type ArxivFeed struct {
	XMLName xml.Name     `xml:"feed"`
	Entry   []ArxivEntry `xml:"entry"`
}

// Paper is one search hit.
type Paper struct {
	Title     string
	Summary   string
	Published string
	URL       string
}

type Arxiv struct {
	BaseURL string
	HTTP    *http.Client
	Logger  *slog.Logger
}

func NewArxiv(baseURL string) *Arxiv {
	if baseURL == "" {
		baseURL = DefaultArxivURL
	}
	return &Arxiv{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		Logger:  slog.Default(),
	}
}

// Search queries the arXiv API and returns at most maxResults papers.
func (a *Arxiv) Search(ctx context.Context, query string, maxResults int) ([]Paper, error) {
	if maxResults <= 0 {
		maxResults = 5
	}

	params := url.Values{}
	params.Add("search_query", "all:"+query)
	params.Add("max_results", strconv.Itoa(maxResults))
	params.Add("start", "0")
	apiURL := a.BaseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := a.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make API request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		a.Logger.Error("API returned non-200 status code", "status", resp.StatusCode, "query", query)
		return nil, fmt.Errorf("API returned non-200 status code: %d, body: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var feed ArxivFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal XML: %w", err)
	}

	papers := make([]Paper, 0, len(feed.Entry))
	for _, entry := range feed.Entry {
		title := collapseSpace(entry.Title)
		if title == "" {
			continue
		}
		papers = append(papers, Paper{
			Title:     title,
			Summary:   collapseSpace(entry.Summary),
			Published: entry.Published,
			URL:       entry.pageURL(),
		})
	}

	a.Logger.Info("Arxiv search successful", "query", query, "count", len(papers))
	return papers, nil
}

// pageURL prefers the abstract page over the PDF.
func (e ArxivEntry) pageURL() string {
	var pdf string
	for _, link := range e.Link {
		switch {
		case link.Rel == "alternate" || link.Type == "text/html":
			return link.Href
		case link.Type == "application/pdf" && pdf == "":
			pdf = link.Href
		}
	}
	return pdf
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
