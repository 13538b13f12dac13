// Package orchestrator implements the response pipeline: quota check,
// intent classification, context aggregation, prompt assembly, provider
// dispatch, and conversation persistence.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sofia-labs/sofia/orchestrator/internal/dispatch"
	"github.com/sofia-labs/sofia/orchestrator/internal/extract"
	"github.com/sofia-labs/sofia/orchestrator/internal/history"
	"github.com/sofia-labs/sofia/orchestrator/internal/intent"
	"github.com/sofia-labs/sofia/orchestrator/internal/library"
	"github.com/sofia-labs/sofia/orchestrator/internal/quota"
	"github.com/sofia-labs/sofia/orchestrator/internal/search"
	"github.com/sofia-labs/sofia/orchestrator/internal/store"
	"github.com/sofia-labs/sofia/orchestrator/pkg/models"
)

// User-facing messages for multimodal fetch failures. These are answers,
// not errors: the request still succeeded from the client's point of view.
const (
	transcriptUnavailableMsg = "Sorry, I couldn't get the transcript for that video. It may not have captions available."
)

const conversationTitleLimit = 50

// Orchestrator coordinates one chat turn end to end.
type Orchestrator struct {
	quota      *quota.Manager
	classifier *intent.Classifier
	web        *search.Client
	library    *library.Searcher
	history    *history.Provider
	dispatcher *dispatch.Dispatcher

	codec       extract.DocumentCodec
	transcripts *extract.TranscriptClient
	docs        *extract.DocFetcher

	conversations store.ConversationStore
}

// Options carries the orchestrator's collaborators. Codec may be nil, in
// which case PDF and DOCX attachments degrade to empty extracted text.
type Options struct {
	Quota         *quota.Manager
	Classifier    *intent.Classifier
	Web           *search.Client
	Library       *library.Searcher
	History       *history.Provider
	Dispatcher    *dispatch.Dispatcher
	Codec         extract.DocumentCodec
	Transcripts   *extract.TranscriptClient
	Docs          *extract.DocFetcher
	Conversations store.ConversationStore
}

// New creates the orchestrator.
func New(opts Options) *Orchestrator {
	return &Orchestrator{
		quota:         opts.Quota,
		classifier:    opts.Classifier,
		web:           opts.Web,
		library:       opts.Library,
		history:       opts.History,
		dispatcher:    opts.Dispatcher,
		codec:         opts.Codec,
		transcripts:   opts.Transcripts,
		docs:          opts.Docs,
		conversations: opts.Conversations,
	}
}

// Respond executes one chat turn. The returned error is either a
// *quota.DeniedError (surface the hint, do not call a provider) or an
// internal failure loading user state; provider failures never surface
// here because the dispatcher degrades them to the fixed apology.
func (o *Orchestrator) Respond(ctx context.Context, userID string, req *models.ChatRequest) (*models.ChatResponse, error) {
	// Message quota is consumed before any provider work.
	if err := o.quota.Consume(ctx, userID, models.QuotaMessage); err != nil {
		return nil, err
	}

	mode := o.classifier.Classify(req)
	log.Info().Str("user", userID).Str("mode", string(mode)).Bool("ephemeral", req.IsEphemeral).Msg("Classified request")

	if mode == models.ModeMultimodal {
		return o.respondMultimodal(ctx, userID, req)
	}

	// Search-backed modes consume the web search quota as well; denial
	// aborts the turn before any search or provider call.
	if mode == models.ModeWebSearch || mode == models.ModeSecuritySearch {
		if err := o.quota.Consume(ctx, userID, models.QuotaWebSearch); err != nil {
			return nil, err
		}
	}

	bundle := o.gatherContext(ctx, userID, mode, req)
	pb := dispatch.BuildBundle(mode, req.Text, bundle, nil)

	text, provider := o.dispatcher.Dispatch(ctx, pb)
	o.persistTurn(ctx, userID, req, text)

	return &models.ChatResponse{Response: text, Provider: provider, Mode: mode}, nil
}

// gatherContext assembles the per-request context bundle for text modes.
// Every provider degrades independently; a failed source never aborts the
// turn.
func (o *Orchestrator) gatherContext(ctx context.Context, userID string, mode models.OperatingMode, req *models.ChatRequest) *models.ContextBundle {
	bundle := &models.ContextBundle{
		History: o.history.RecentTurns(ctx, userID, req.IsEphemeral),
	}

	if mode == models.ModeWebSearch || mode == models.ModeSecuritySearch {
		bundle.WebContext = o.web.Search(ctx, req.Text)
	}

	// The document library augments plain chat and general web search, but
	// not security flows or code review.
	if mode == models.ModePlainChat || mode == models.ModeWebSearch {
		if text, ok := o.library.Search(ctx, userID, req.Text); ok {
			bundle.LibraryContext = text
			bundle.HasLibrary = true
		}
	}

	return bundle
}

// ── Multimodal ──────────────────────────────────────────────

// respondMultimodal handles attachments, YouTube links, and configured
// document keywords. The first matching source wins, in that order.
func (o *Orchestrator) respondMultimodal(ctx context.Context, userID string, req *models.ChatRequest) (*models.ChatResponse, error) {
	text := req.Text
	var inline []models.InlineData

	switch {
	case req.Attachment != nil && len(req.Attachment.Data) > 0:
		if req.Attachment.IsImage() {
			// Images pass through untouched to a vision provider.
			inline = append(inline, models.InlineData{
				MimeType: req.Attachment.MimeType,
				Data:     req.Attachment.Data,
			})
		} else {
			extracted := extract.AttachmentText(o.codec, req.Attachment.Data, req.Attachment.MimeType)
			if extracted != "" {
				text = attachDocument(text, req.Attachment.MimeType, extracted)
			} else {
				// Unextractable documents go inline for a provider that can
				// read them natively.
				inline = append(inline, models.InlineData{
					MimeType: req.Attachment.MimeType,
					Data:     req.Attachment.Data,
				})
			}
		}

	case intent.ExtractYoutubeID(req.Text) != "":
		videoID := intent.ExtractYoutubeID(req.Text)
		transcript, ok := o.transcripts.Fetch(ctx, videoID)
		if !ok {
			// A missing transcript is a terminal, user-facing answer.
			o.persistTurn(ctx, userID, req, transcriptUnavailableMsg)
			return &models.ChatResponse{Response: transcriptUnavailableMsg, Mode: models.ModeMultimodal}, nil
		}
		text = fmt.Sprintf("Video transcript:\n%s\n\nUser request: %s", transcript, req.Text)

	default:
		filename := o.classifier.MatchDocKeyword(req.Text)
		if filename != "" {
			data, ok := o.docs.Fetch(ctx, filename)
			if !ok {
				msg := fmt.Sprintf("Sorry, I couldn't retrieve the document %q right now. Please try again later.", filename)
				o.persistTurn(ctx, userID, req, msg)
				return &models.ChatResponse{Response: msg, Mode: models.ModeMultimodal}, nil
			}
			mimeType := docMimeType(filename)
			extracted := extract.AttachmentText(o.codec, data, mimeType)
			if extracted != "" {
				text = attachDocument(text, mimeType, extracted)
			} else {
				inline = append(inline, models.InlineData{MimeType: mimeType, Data: data})
			}
		}
	}

	bundle := &models.ContextBundle{
		History: o.history.RecentTurns(ctx, userID, req.IsEphemeral),
	}
	pb := dispatch.BuildBundle(models.ModeMultimodal, text, bundle, inline)

	respText, provider := o.dispatcher.Dispatch(ctx, pb)
	o.persistTurn(ctx, userID, req, respText)

	return &models.ChatResponse{Response: respText, Provider: provider, Mode: models.ModeMultimodal}, nil
}

// attachDocument folds extracted document text into the prompt.
func attachDocument(userText, mimeType, extracted string) string {
	return fmt.Sprintf("Document content (%s):\n%s\n\nUser request: %s", mimeType, extracted, userText)
}

// docMimeType guesses a stored document's MIME type from its extension.
func docMimeType(filename string) string {
	switch {
	case strings.HasSuffix(strings.ToLower(filename), ".pdf"):
		return "application/pdf"
	case strings.HasSuffix(strings.ToLower(filename), ".docx"):
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	default:
		return "application/octet-stream"
	}
}

// ── Persistence ─────────────────────────────────────────────

// persistTurn appends the user/assistant turn pair to the user's most
// recent conversation, creating one when none exists. Ephemeral requests
// leave no trace. Persistence failures are logged, never surfaced.
func (o *Orchestrator) persistTurn(ctx context.Context, userID string, req *models.ChatRequest, responseText string) {
	if req.IsEphemeral {
		return
	}

	turns := []models.ConversationTurn{
		{Role: models.RoleUser, Text: req.Text},
		{Role: models.RoleAssistant, Text: responseText},
	}

	conv, err := o.conversations.MostRecentConversation(ctx, userID)
	if err != nil {
		if !store.IsNotFound(err) {
			log.Warn().Err(err).Str("user", userID).Msg("Failed to load conversation for persistence")
			return
		}
		now := time.Now().UTC()
		conv = &models.Conversation{
			ID:        uuid.NewString(),
			UserID:    userID,
			Title:     conversationTitle(req.Text),
			Turns:     turns,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := o.conversations.CreateConversation(ctx, conv); err != nil {
			log.Warn().Err(err).Str("user", userID).Msg("Failed to create conversation")
		}
		return
	}

	conv.Turns = append(conv.Turns, turns...)
	conv.UpdatedAt = time.Now().UTC()
	if err := o.conversations.UpdateConversation(ctx, conv); err != nil {
		log.Warn().Err(err).Str("user", userID).Msg("Failed to append conversation turns")
	}
}

// conversationTitle derives a short title from the opening message.
func conversationTitle(text string) string {
	trimmed := strings.TrimSpace(text)
	runes := []rune(trimmed)
	if len(runes) <= conversationTitleLimit {
		return trimmed
	}
	return string(runes[:conversationTitleLimit]) + "…"
}
