// Package extract turns raw bytes and URLs into plain text for prompt
// assembly: PDF/DOCX attachments, YouTube transcripts, and configured
// remote documents fetched by keyword.
//
// Extractors are pure functions with best-effort logging. Attachment
// extraction substitutes empty text on failure and is never fatal to the
// request; transcript and keyword-document fetches return an explicit
// absent value so the caller can produce a user-facing message.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ── Document Codec ──────────────────────────────────────────

// DocumentCodec extracts plain text from binary document formats. The
// codec implementations live outside the orchestrator; this is the
// capability it consumes.
type DocumentCodec interface {
	ExtractPdf(data []byte) (string, error)
	ExtractDocx(data []byte) (string, error)
}

// AttachmentText routes an attachment to the right codec by MIME type.
// Any parse failure is logged and degrades to the empty string; images
// and unknown types are not text-extracted here.
func AttachmentText(codec DocumentCodec, data []byte, mimeType string) string {
	if codec == nil || len(data) == 0 {
		return ""
	}

	switch {
	case mimeType == "application/pdf":
		text, err := codec.ExtractPdf(data)
		if err != nil {
			log.Warn().Err(err).Msg("PDF extraction failed, substituting empty text")
			return ""
		}
		return text
	case mimeType == "application/vnd.openxmlformats-officedocument.wordprocessingml.document" ||
		strings.HasSuffix(mimeType, "msword"):
		text, err := codec.ExtractDocx(data)
		if err != nil {
			log.Warn().Err(err).Msg("DOCX extraction failed, substituting empty text")
			return ""
		}
		return text
	default:
		return ""
	}
}

// ── YouTube Transcript ──────────────────────────────────────

// TranscriptClient fetches video transcripts from a transcript service.
type TranscriptClient struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewTranscriptClient creates a transcript client. An empty endpoint
// means transcripts are unavailable and every fetch returns absent.
func NewTranscriptClient(endpoint, apiKey string) *TranscriptClient {
	return &TranscriptClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 20 * time.Second},
	}
}

// Fetch retrieves the transcript for a video id. The boolean is false when
// the transcript cannot be fetched; the caller must produce a user-facing
// "couldn't get transcript" response rather than silently degrading.
func (t *TranscriptClient) Fetch(ctx context.Context, videoID string) (string, bool) {
	if t.endpoint == "" || videoID == "" {
		return "", false
	}

	u := fmt.Sprintf("%s/transcript?video_id=%s", t.endpoint, url.QueryEscape(videoID))
	httpReq, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		log.Warn().Err(err).Str("video", videoID).Msg("Transcript: create request failed")
		return "", false
	}
	if t.apiKey != "" {
		httpReq.Header.Set("X-API-KEY", t.apiKey)
	}

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		log.Warn().Err(err).Str("video", videoID).Msg("Transcript: request failed")
		return "", false
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		log.Warn().Int("status", httpResp.StatusCode).Str("video", videoID).Msg("Transcript: bad status")
		return "", false
	}

	var resp struct {
		Transcript string `json:"transcript"`
	}
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		log.Warn().Err(err).Str("video", videoID).Msg("Transcript: decode response failed")
		return "", false
	}
	if resp.Transcript == "" {
		return "", false
	}
	return resp.Transcript, true
}

// ── Keyword Documents ───────────────────────────────────────

// DocFetcher retrieves configured documents from a remote document store.
type DocFetcher struct {
	endpoint string
	client   *http.Client
}

// NewDocFetcher creates a keyword-document fetcher.
func NewDocFetcher(endpoint string) *DocFetcher {
	return &DocFetcher{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 20 * time.Second},
	}
}

// Fetch downloads a stored document by filename. The boolean is false on
// any failure; the caller returns an explicit per-filename error message.
func (d *DocFetcher) Fetch(ctx context.Context, filename string) ([]byte, bool) {
	if d.endpoint == "" || filename == "" {
		return nil, false
	}

	u := d.endpoint + "/" + url.PathEscape(filename)
	httpReq, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		log.Warn().Err(err).Str("filename", filename).Msg("Doc fetch: create request failed")
		return nil, false
	}

	httpResp, err := d.client.Do(httpReq)
	if err != nil {
		log.Warn().Err(err).Str("filename", filename).Msg("Doc fetch: request failed")
		return nil, false
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		log.Warn().Int("status", httpResp.StatusCode).Str("filename", filename).Msg("Doc fetch: bad status")
		return nil, false
	}

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		log.Warn().Err(err).Str("filename", filename).Msg("Doc fetch: read body failed")
		return nil, false
	}
	return data, true
}
