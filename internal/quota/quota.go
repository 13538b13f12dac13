// Package quota enforces per-user daily usage limits for rate-limited
// capabilities (chat messages, web searches). Counters reset at UTC
// midnight. Premium and admin accounts bypass all limits.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sofia-labs/sofia/orchestrator/internal/store"
	"github.com/sofia-labs/sofia/orchestrator/pkg/models"
)

// Upgrade hints surfaced to the user on denial.
const (
	MessageLimitHint   = "You've reached your daily message limit. Upgrade to Premium for unlimited messages."
	WebSearchLimitHint = "You've used your daily web search. Upgrade to Premium for unlimited searches."
)

// DeniedError is returned when a quota check fails. The caller must surface
// Hint to the user without attempting the AI call.
type DeniedError struct {
	Kind models.QuotaKind
	Hint string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("quota exceeded for %s", e.Kind)
}

// IsDenied reports whether err is a quota denial.
func IsDenied(err error) (*DeniedError, bool) {
	de, ok := err.(*DeniedError)
	return de, ok
}

// Manager tracks and enforces daily usage counters against the store.
type Manager struct {
	store store.UserStore

	// now is injectable for tests; defaults to time.Now.
	now func() time.Time
}

// NewManager creates a quota manager backed by the given user store.
func NewManager(s store.UserStore) *Manager {
	return &Manager{store: s, now: time.Now}
}

// Consume checks the quota for one capability and, if allowed, increments
// the counter and persists it immediately. Consumption happens strictly
// before the corresponding AI call is attempted. The read-modify-write is
// not transactional: concurrent requests from the same user may both pass
// before either commits, so the limit may be exceeded by a small margin
// under bursts. That race is accepted and bounded.
func (m *Manager) Consume(ctx context.Context, userID string, kind models.QuotaKind) error {
	user, err := m.store.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("load quota state: %w", err)
	}

	// Premium and admin users never consume counters.
	if user.IsPremium || user.IsAdmin {
		return nil
	}

	today := m.now().UTC().Format("2006-01-02")

	// Any call on a new UTC day zeroes both counters before evaluating.
	if user.LastResetDate != today {
		user.MessagesUsedToday = 0
		user.WebSearchesUsedToday = 0
		user.LastResetDate = today
	}

	switch kind {
	case models.QuotaMessage:
		if user.MessagesUsedToday >= models.DailyMessageLimit {
			return &DeniedError{Kind: kind, Hint: MessageLimitHint}
		}
		user.MessagesUsedToday++
	case models.QuotaWebSearch:
		if user.WebSearchesUsedToday >= models.DailyWebSearchLimit {
			return &DeniedError{Kind: kind, Hint: WebSearchLimitHint}
		}
		user.WebSearchesUsedToday++
	default:
		return fmt.Errorf("unknown quota kind %q", kind)
	}

	if err := m.store.UpdateQuota(ctx, userID, user.MessagesUsedToday, user.WebSearchesUsedToday, user.LastResetDate); err != nil {
		// Fail open on the count, not on the outcome: the request proceeds
		// even if the counter write was lost.
		log.Warn().Err(err).Str("user", userID).Str("kind", string(kind)).Msg("Failed to persist quota counters")
	}
	return nil
}
