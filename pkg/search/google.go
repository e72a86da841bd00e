package search

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/mikeboe/deep-search/pkg/research"
)

const googleSearchPrompt = `Conduct a targeted Google Search to gather the most recent, credible information on "%s" and synthesize it into a verifiable text artifact.
Only include information found in the search results. Track the source of every claim.`

// Google answers a query with Gemini and the Google Search grounding tool,
// turning the grounding metadata into hits.
type Google struct {
	client     *genai.Client
	model      string
	maxResults int
}

func NewGoogle(client *genai.Client, model string, maxResults int) *Google {
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	return &Google{client: client, model: model, maxResults: maxResults}
}

func (g *Google) Search(ctx context.Context, query string) ([]research.SearchHit, error) {
	temperature := float32(0)
	resp, err := g.client.Models.GenerateContent(ctx, g.model, []*genai.Content{
		{Role: string(genai.RoleUser), Parts: []*genai.Part{{Text: fmt.Sprintf(googleSearchPrompt, query)}}},
	}, &genai.GenerateContentConfig{
		Tools:       []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
		Temperature: &temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("google search: %w", err)
	}
	hits := hitsFromGrounding(resp)
	if len(hits) > g.maxResults {
		hits = hits[:g.maxResults]
	}
	return hits, nil
}

// hitsFromGrounding maps grounding chunks to hits in chunk order and attaches
// every supported segment to the chunks it cites.
func hitsFromGrounding(resp *genai.GenerateContentResponse) []research.SearchHit {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].GroundingMetadata == nil {
		return []research.SearchHit{}
	}
	md := resp.Candidates[0].GroundingMetadata

	snippets := make([][]string, len(md.GroundingChunks))
	for _, support := range md.GroundingSupports {
		if support == nil || support.Segment == nil {
			continue
		}
		text := strings.TrimSpace(support.Segment.Text)
		if text == "" {
			continue
		}
		for _, idx := range support.GroundingChunkIndices {
			if int(idx) >= 0 && int(idx) < len(snippets) {
				snippets[idx] = append(snippets[idx], text)
			}
		}
	}

	hits := make([]research.SearchHit, 0, len(md.GroundingChunks))
	for i, chunk := range md.GroundingChunks {
		if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" {
			continue
		}
		hits = append(hits, research.SearchHit{
			Title:   chunk.Web.Title,
			URL:     chunk.Web.URI,
			Snippet: strings.Join(snippets[i], " "),
		})
	}
	return hits
}
