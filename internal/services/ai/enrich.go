package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// EntryInsights captures the JSON payload returned by the model for one
// entry. Scores arrive unclamped; callers coerce them into storage ranges.
type EntryInsights struct {
	Summary         string   `json:"summary"`
	Sentiment       string   `json:"sentiment"`
	Readability     float64  `json:"readability_score"`
	Engagement      int      `json:"engagement_score"`
	Keywords        []string `json:"keywords"`
	EngagementTypes []string `json:"engagement_types"`
	Raw             string   `json:"-"`
}

// EnrichmentPrompt instructs the model to analyze one article and answer
// with a single JSON object.
const EnrichmentPrompt = `You are an editorial analyst. Analyze the article supplied by the user and respond with a single JSON object, no prose, using exactly these keys:
{
  "summary": "2-4 sentence summary of the article",
  "sentiment": "Positive" | "Negative" | "Neutral" | "Mixed",
  "readability_score": number from 0 to 100 (higher is easier to read),
  "engagement_score": integer from 0 to 1000 estimating audience pull,
  "keywords": up to 8 short topical keywords,
  "engagement_types": subset of ["Shared", "Liked", "Commented"] predicting likely audience reactions
}`

// AnalyzeEntry asks the model to summarize and score one article. The title
// and body are combined into a single user prompt; overly long bodies are
// truncated to keep requests inside provider limits.
func (c *Client) AnalyzeEntry(ctx context.Context, title, body string) (EntryInsights, error) {
	var empty EntryInsights
	body = strings.TrimSpace(body)
	if body == "" {
		return empty, errors.New("ai analyze: article body required")
	}
	if c.cfg.APIKey == "" {
		return empty, errors.New("ai analyze: api key required")
	}

	content, err := c.CompleteJSON(ctx, EnrichmentPrompt, buildEntryPrompt(title, body))
	if err != nil {
		return empty, err
	}
	var parsed EntryInsights
	if err := DecodeModelJSON(content, &parsed); err != nil {
		return empty, fmt.Errorf("ai analyze: parse payload: %w", err)
	}
	parsed.Raw = content
	parsed.Summary = strings.TrimSpace(parsed.Summary)
	parsed.Sentiment = strings.TrimSpace(parsed.Sentiment)
	return parsed, nil
}

const maxPromptBodyRunes = 24000

func buildEntryPrompt(title, body string) string {
	runes := []rune(body)
	if len(runes) > maxPromptBodyRunes {
		body = string(runes[:maxPromptBodyRunes])
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return body
	}
	return "Title: " + title + "\n\n" + body
}
