package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sofia-labs/sofia/orchestrator/internal/history"
	"github.com/sofia-labs/sofia/orchestrator/pkg/models"
)

// Gemini is the general-purpose secondary provider. It speaks the Google
// generativelanguage generateContent convention and accepts inline images
// and documents alongside text.
type Gemini struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
}

// NewGemini creates a Gemini provider driver.
func NewGemini(endpoint, apiKey, model string) *Gemini {
	if endpoint == "" {
		endpoint = "https://generativelanguage.googleapis.com"
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &Gemini{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		client:   &http.Client{Timeout: 120 * time.Second},
	}
}

func (g *Gemini) Name() string         { return "gemini" }
func (g *Gemini) Available() bool      { return g.apiKey != "" }
func (g *Gemini) SupportsVision() bool { return true }

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"` // base64
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"system_instruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (g *Gemini) Complete(ctx context.Context, bundle *models.PromptBundle) (string, error) {
	if !g.Available() {
		return "", ErrUnavailable
	}

	req := geminiRequest{}
	if bundle.System != "" {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: bundle.System}}}
	}

	for _, t := range history.Encode(bundle.History).Gemini {
		req.Contents = append(req.Contents, geminiContent{
			Role:  t.Role,
			Parts: []geminiPart{{Text: t.Text}},
		})
	}

	// The final user turn carries the message plus any inline files.
	userParts := make([]geminiPart, 0, len(bundle.Inline)+1)
	if bundle.Text != "" {
		userParts = append(userParts, geminiPart{Text: bundle.Text})
	}
	for _, in := range bundle.Inline {
		userParts = append(userParts, geminiPart{InlineData: &geminiInlineData{
			MimeType: in.MimeType,
			Data:     base64.StdEncoding.EncodeToString(in.Data),
		}})
	}
	req.Contents = append(req.Contents, geminiContent{Role: "user", Parts: userParts})

	body, _ := json.Marshal(req)

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", g.endpoint, g.model, g.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("gemini: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := g.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("gemini: request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		return "", fmt.Errorf("gemini: status %d: %s", httpResp.StatusCode, string(respBody))
	}

	var resp geminiResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return "", fmt.Errorf("gemini: decode response: %w", err)
	}

	text := ""
	if len(resp.Candidates) > 0 {
		for _, p := range resp.Candidates[0].Content.Parts {
			text += p.Text
		}
	}
	if text == "" {
		return "", fmt.Errorf("gemini: response missing content")
	}

	return text, nil
}
