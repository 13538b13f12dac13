// Package search provides the live web search context provider, backed by
// the Serper.dev Google Search API.
//
// The provider never returns an error to the caller: transport failures,
// bad responses, and a missing API key all degrade to fixed sentinel
// strings so downstream prompt assembly is unconditionally text-safe.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Sentinel strings returned in place of search results.
const (
	NoResults       = "No search results found for this query."
	ServiceDegraded = "Web search is temporarily unavailable; answering from model knowledge only."
	NotConfigured   = "Web search is not configured on this server; answering from model knowledge only."
)

const maxResults = 5

// resultSeparator joins formatted result blocks.
const resultSeparator = "\n---\n"

// Client calls the Serper.dev search API.
type Client struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewClient creates a web search client. An empty apiKey degrades every
// search to the NotConfigured sentinel.
func NewClient(endpoint, apiKey string) *Client {
	if endpoint == "" {
		endpoint = "https://google.serper.dev"
	}
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool { return c.apiKey != "" }

type serperRequest struct {
	Q string `json:"q"`
}

type serperResponse struct {
	Organic []struct {
		Title   string `json:"title"`
		Snippet string `json:"snippet"`
		Link    string `json:"link"`
	} `json:"organic"`
	AnswerBox struct {
		Answer  string `json:"answer"`
		Snippet string `json:"snippet"`
		Title   string `json:"title"`
	} `json:"answerBox"`
}

// Search runs a web search and formats up to 5 organic results as
// Title / Snippet / Source blocks. If no organic results exist but a
// direct-answer box does, the answer box is returned instead.
func (c *Client) Search(ctx context.Context, query string) string {
	if !c.Configured() {
		return NotConfigured
	}

	body, _ := json.Marshal(serperRequest{Q: query})
	url := c.endpoint + "/search"
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		log.Warn().Err(err).Msg("Web search: create request failed")
		return ServiceDegraded
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-KEY", c.apiKey)

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		log.Warn().Err(err).Msg("Web search: request failed")
		return ServiceDegraded
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		log.Warn().Int("status", httpResp.StatusCode).Str("body", truncate(string(respBody), 200)).Msg("Web search: bad status")
		return ServiceDegraded
	}

	var resp serperResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		log.Warn().Err(err).Msg("Web search: decode response failed")
		return ServiceDegraded
	}

	if len(resp.Organic) > 0 {
		var blocks []string
		for i, r := range resp.Organic {
			if i >= maxResults {
				break
			}
			blocks = append(blocks, fmt.Sprintf("Title: %s\nSnippet: %s\nSource: %s", r.Title, r.Snippet, r.Link))
		}
		return strings.Join(blocks, resultSeparator)
	}

	// No organic results: fall back to the direct-answer box if present.
	if resp.AnswerBox.Answer != "" {
		return resp.AnswerBox.Answer
	}
	if resp.AnswerBox.Snippet != "" {
		return resp.AnswerBox.Snippet
	}

	return NoResults
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
