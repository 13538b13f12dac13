package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sofia-labs/sofia/orchestrator/internal/history"
	"github.com/sofia-labs/sofia/orchestrator/pkg/models"
)

// Groq is the fast primary provider. It speaks the OpenAI chat-completions
// convention and handles text-only prompts.
type Groq struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
}

// NewGroq creates a Groq provider driver.
func NewGroq(endpoint, apiKey, model string) *Groq {
	if endpoint == "" {
		endpoint = "https://api.groq.com/openai/v1"
	}
	if model == "" {
		model = "llama-3.3-70b-versatile"
	}
	return &Groq{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		client:   &http.Client{Timeout: 60 * time.Second},
	}
}

func (g *Groq) Name() string         { return "groq" }
func (g *Groq) Available() bool      { return g.apiKey != "" }
func (g *Groq) SupportsVision() bool { return false }

type groqMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type groqRequest struct {
	Model    string        `json:"model"`
	Messages []groqMessage `json:"messages"`
}

type groqResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (g *Groq) Complete(ctx context.Context, bundle *models.PromptBundle) (string, error) {
	if !g.Available() {
		return "", ErrUnavailable
	}
	if len(bundle.Inline) > 0 {
		return "", fmt.Errorf("groq: inline file input not supported")
	}

	messages := make([]groqMessage, 0, len(bundle.History)+2)
	if bundle.System != "" {
		messages = append(messages, groqMessage{Role: "system", Content: bundle.System})
	}
	for _, t := range history.Encode(bundle.History).OpenAI {
		messages = append(messages, groqMessage{Role: t.Role, Content: t.Text})
	}
	messages = append(messages, groqMessage{Role: "user", Content: bundle.Text})

	body, _ := json.Marshal(groqRequest{Model: g.model, Messages: messages})

	url := g.endpoint + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("groq: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)

	httpResp, err := g.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("groq: request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		return "", fmt.Errorf("groq: status %d: %s", httpResp.StatusCode, string(respBody))
	}

	var resp groqResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return "", fmt.Errorf("groq: decode response: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("groq: response missing content")
	}

	return resp.Choices[0].Message.Content, nil
}
