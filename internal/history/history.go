// Package history provides the recent-turns context provider: a bounded
// window over the user's most recently updated conversation.
package history

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/sofia-labs/sofia/orchestrator/internal/store"
	"github.com/sofia-labs/sofia/orchestrator/pkg/models"
)

// windowSize bounds how many trailing turns are material to context
// assembly.
const windowSize = 10

// Provider reads recent conversation turns from the store.
type Provider struct {
	store store.ConversationStore
}

// NewProvider creates a history provider.
func NewProvider(s store.ConversationStore) *Provider {
	return &Provider{store: s}
}

// RecentTurns returns the last 10 turns of the user's most recently
// updated conversation. Ephemeral requests and users with no conversation
// yet get an empty sequence.
func (p *Provider) RecentTurns(ctx context.Context, userID string, ephemeral bool) []models.ConversationTurn {
	if ephemeral {
		return nil
	}

	conv, err := p.store.MostRecentConversation(ctx, userID)
	if err != nil {
		if !store.IsNotFound(err) {
			log.Warn().Err(err).Str("user", userID).Msg("Failed to load conversation history")
		}
		return nil
	}

	turns := conv.Turns
	if len(turns) > windowSize {
		turns = turns[len(turns)-windowSize:]
	}
	return turns
}

// EncodedTurn is one history turn rendered in a provider's role convention.
type EncodedTurn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Encodings holds the same history rendered in both provider role
// conventions simultaneously, because the dispatcher may need either
// depending on which provider ultimately serves the request.
type Encodings struct {
	// Gemini uses user/model roles.
	Gemini []EncodedTurn
	// OpenAI-compatible providers use user/assistant roles.
	OpenAI []EncodedTurn
}

// Encode renders turns into both role conventions.
func Encode(turns []models.ConversationTurn) Encodings {
	enc := Encodings{
		Gemini: make([]EncodedTurn, 0, len(turns)),
		OpenAI: make([]EncodedTurn, 0, len(turns)),
	}
	for _, t := range turns {
		geminiRole := "user"
		openaiRole := "user"
		if t.Role == models.RoleAssistant {
			geminiRole = "model"
			openaiRole = "assistant"
		}
		enc.Gemini = append(enc.Gemini, EncodedTurn{Role: geminiRole, Text: t.Text})
		enc.OpenAI = append(enc.OpenAI, EncodedTurn{Role: openaiRole, Text: t.Text})
	}
	return enc
}
