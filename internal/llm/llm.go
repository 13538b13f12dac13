// Package llm defines the uniform AI provider capability interface and the
// concrete provider drivers (Groq, Google Gemini). Each driver maps the
// provider-neutral PromptBundle onto its own calling convention; new
// providers are added without touching dispatch logic.
package llm

import (
	"context"
	"fmt"

	"github.com/sofia-labs/sofia/orchestrator/pkg/models"
)

// Provider is one interchangeable AI backend.
type Provider interface {
	// Name identifies the provider in logs and results.
	Name() string

	// Available reports whether the provider has credentials configured.
	// Unavailable providers are skipped by the dispatcher, not errored.
	Available() bool

	// SupportsVision reports whether the provider accepts inline images
	// and documents as first-class input.
	SupportsVision() bool

	// Complete sends the bundle and returns the text answer. Transport
	// errors, non-2xx statuses, and malformed responses (missing expected
	// fields) are all returned as errors for the dispatcher's fallback
	// chain; they are never surfaced to the end user directly.
	Complete(ctx context.Context, bundle *models.PromptBundle) (string, error)
}

// ErrUnavailable is returned when a provider is called without credentials.
var ErrUnavailable = fmt.Errorf("provider not configured")
