package search

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/mikeboe/deep-search/pkg/research"
)

const arxivEndpoint = "https://export.arxiv.org/api/query"

type arxivEntry struct {
	ID        string      `xml:"id"`
	Title     string      `xml:"title"`
	Summary   string      `xml:"summary"`
	Published string      `xml:"published"`
	Link      []arxivLink `xml:"link"`
}

type arxivLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
}

type arxivFeed struct {
	XMLName xml.Name     `xml:"feed"`
	Entry   []arxivEntry `xml:"entry"`
}

// Arxiv searches the arXiv Atom API. Useful for academic questions where the
// web providers return mostly press coverage.
type Arxiv struct {
	Endpoint   string
	MaxResults int
	client     *http.Client
	logger     *slog.Logger
}

func NewArxiv(maxResults int, client *http.Client, logger *slog.Logger) *Arxiv {
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Arxiv{Endpoint: arxivEndpoint, MaxResults: maxResults, client: client, logger: logger}
}

func (a *Arxiv) Search(ctx context.Context, query string) ([]research.SearchHit, error) {
	params := url.Values{}
	params.Add("search_query", "all:"+query)
	params.Add("max_results", strconv.Itoa(a.MaxResults))
	params.Add("start", "0")
	apiURL := a.Endpoint + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		a.logger.Error("arXiv API returned non-200 status code", "status", resp.StatusCode, "body", string(bodyBytes))
		return nil, fmt.Errorf("API returned non-200 status code: %d", resp.StatusCode)
	}

	var feed arxivFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal XML: %w", err)
	}
	a.logger.Debug("arXiv response received", "query", query, "entries", len(feed.Entry))

	hits := make([]research.SearchHit, 0, len(feed.Entry))
	for _, entry := range feed.Entry {
		link := entry.ID
		for _, l := range entry.Link {
			if l.Rel == "alternate" && l.Href != "" {
				link = l.Href
				break
			}
		}
		snippet := collapseSpace(entry.Summary)
		if entry.Published != "" {
			snippet = "Published " + entry.Published + ". " + snippet
		}
		hits = append(hits, research.SearchHit{
			Title:   collapseSpace(entry.Title),
			URL:     link,
			Snippet: snippet,
		})
	}
	return hits, nil
}
