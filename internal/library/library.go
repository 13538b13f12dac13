// Package library provides keyword search over a user's uploaded-document
// library, and fire-and-forget summarization of newly uploaded documents.
package library

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/sofia-labs/sofia/orchestrator/internal/store"
	"github.com/sofia-labs/sofia/orchestrator/pkg/models"
)

const (
	maxMatches    = 3
	excerptLength = 300
)

const snippetSeparator = "\n---\n"

// Searcher runs keyword searches over the library store.
type Searcher struct {
	store store.LibraryStore
}

// NewSearcher creates a library searcher.
func NewSearcher(s store.LibraryStore) *Searcher {
	return &Searcher{store: s}
}

// Search splits the query into whitespace tokens and returns a formatted
// context block for up to 3 documents containing every token
// (case-insensitive, order-independent). The boolean is false when there
// are zero matches, so the caller can distinguish "no library context"
// from an empty context string.
func (s *Searcher) Search(ctx context.Context, userID, query string) (string, bool) {
	tokens := strings.Fields(query)
	if len(tokens) == 0 {
		return "", false
	}

	items, err := s.store.SearchLibrary(ctx, userID, tokens, maxMatches)
	if err != nil {
		log.Warn().Err(err).Str("user", userID).Msg("Library search failed")
		return "", false
	}
	if len(items) == 0 {
		return "", false
	}

	var blocks []string
	for _, item := range items {
		blocks = append(blocks, fmt.Sprintf("From your document %q:\n%s", item.Filename, excerpt(item.Content)))
	}
	return strings.Join(blocks, snippetSeparator), true
}

// excerpt returns the first 300 characters of content, rune-safe.
func excerpt(content string) string {
	runes := []rune(content)
	if len(runes) <= excerptLength {
		return content
	}
	return string(runes[:excerptLength]) + "…"
}

// ── Background Summarization ────────────────────────────────

// Completer is the minimal dispatcher capability the summarizer needs.
type Completer interface {
	Complete(ctx context.Context, bundle *models.PromptBundle) (string, string, error)
}

// Summarizer fills in document summaries on detached goroutines after
// upload. A failed summarization is logged and the item stays "pending",
// visible to the user on next read; there is no retry.
type Summarizer struct {
	store     store.LibraryStore
	completer Completer
}

// NewSummarizer creates a background document summarizer.
func NewSummarizer(s store.LibraryStore, c Completer) *Summarizer {
	return &Summarizer{store: s, completer: c}
}

// SummarizeAsync dispatches summarization of one item on a detached
// goroutine. It never blocks the originating request. The goroutine works
// on a copy: the caller may keep reading its item (e.g. while encoding the
// upload response) without synchronizing with the summary write.
func (s *Summarizer) SummarizeAsync(item *models.LibraryItem) {
	cp := *item
	go s.summarize(context.Background(), &cp)
}

func (s *Summarizer) summarize(ctx context.Context, item *models.LibraryItem) {
	bundle := &models.PromptBundle{
		System: "You summarize documents. Reply with a concise summary of at most three sentences.",
		Text:   "Summarize this document:\n\n" + item.Content,
	}

	text, provider, err := s.completer.Complete(ctx, bundle)
	if err != nil || text == "" {
		log.Warn().Err(err).Str("item", item.ID).Msg("Library summarization failed, leaving pending")
		return
	}

	item.Summary = text
	item.SummaryStatus = models.SummaryReady
	if err := s.store.UpdateLibraryItem(ctx, item); err != nil {
		log.Warn().Err(err).Str("item", item.ID).Str("provider", provider).Msg("Failed to store library summary")
	}
}
