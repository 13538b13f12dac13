// Package dispatch executes the provider fallback chain: providers are
// attempted in fixed priority order, and the first non-empty text answer
// wins. Raw provider errors never reach the caller.
package dispatch

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/sofia-labs/sofia/orchestrator/internal/llm"
	"github.com/sofia-labs/sofia/orchestrator/pkg/models"
)

// Apology is the fixed, non-specific terminal failure message. It is the
// only text a user ever sees when every fallback is exhausted.
const Apology = "I'm sorry, I'm having trouble responding right now. Please try again in a moment."

// Dispatcher holds the ordered provider chain.
type Dispatcher struct {
	providers []llm.Provider
}

// NewDispatcher creates a dispatcher over the given providers, in fallback
// priority order (fast primary first).
func NewDispatcher(providers ...llm.Provider) *Dispatcher {
	return &Dispatcher{providers: providers}
}

// Providers returns the names of the configured chain, in order.
func (d *Dispatcher) Providers() []string {
	names := make([]string, 0, len(d.providers))
	for _, p := range d.providers {
		names = append(names, p.Name())
	}
	return names
}

// Complete runs the chain once and returns the first successful non-empty
// answer with the provider name that produced it. Unavailable providers
// and, for multimodal bundles, providers without vision support are
// skipped. An error is returned only when every provider failed.
func (d *Dispatcher) Complete(ctx context.Context, bundle *models.PromptBundle) (string, string, error) {
	needsVision := len(bundle.Inline) > 0

	var lastErr error
	attempted := 0
	for _, p := range d.providers {
		if !p.Available() {
			log.Debug().Str("provider", p.Name()).Msg("Provider unavailable, skipping")
			continue
		}
		if needsVision && !p.SupportsVision() {
			continue
		}

		attempted++
		text, err := p.Complete(ctx, bundle)
		if err != nil {
			log.Warn().Str("provider", p.Name()).Err(err).Msg("Provider call failed, trying next")
			lastErr = err
			continue
		}
		if text == "" {
			lastErr = fmt.Errorf("%s: empty response", p.Name())
			continue
		}
		return text, p.Name(), nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no provider available")
	}
	return "", "", fmt.Errorf("all %d providers failed: %w", attempted, lastErr)
}

// Dispatch runs the full failure-handling state machine: the chain once,
// then one retry with a minimal history-stripped bundle (defensive
// degradation against oversized or malformed context), then the fixed
// apology. The returned text is always safe to show the user.
func (d *Dispatcher) Dispatch(ctx context.Context, bundle *models.PromptBundle) (string, string) {
	text, provider, err := d.Complete(ctx, bundle)
	if err == nil {
		return text, provider
	}

	if len(bundle.History) > 0 {
		log.Warn().Err(err).Msg("Provider chain exhausted, retrying without history")
		minimal := *bundle
		minimal.History = nil
		text, provider, err = d.Complete(ctx, &minimal)
		if err == nil {
			return text, provider
		}
	}

	log.Error().Err(err).Msg("All providers failed, returning apology")
	return Apology, ""
}
