// Package store provides the storage interface and implementations for the
// Sofia orchestrator. The in-memory store (with JSON snapshot persistence)
// is the zero-config default; PostgreSQL-backed persistence is used when
// DATABASE_URL is set.
package store

import (
	"context"
	"time"

	"github.com/sofia-labs/sofia/orchestrator/pkg/models"
)

// Store is the primary storage interface. All orchestrator code depends on
// this interface, making it easy to swap between in-memory (tests) and
// PostgreSQL (production) implementations.
type Store interface {
	UserStore
	ConversationStore
	LibraryStore

	// Ping checks if the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the store.
	Close() error
}

// ── User Store ──────────────────────────────────────────────

// UserStore owns account records and their daily usage counters.
type UserStore interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
	UpdateUser(ctx context.Context, user *models.User) error

	// UpdateQuota persists the usage counters for a user. The write is a
	// last-write-wins update; concurrent requests may briefly overshoot a
	// quota, which is an accepted bounded race.
	UpdateQuota(ctx context.Context, userID string, messages, webSearches int, lastReset string) error
}

// ── Conversation Store ──────────────────────────────────────

type ConversationStore interface {
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	UpdateConversation(ctx context.Context, conv *models.Conversation) error
	ListConversations(ctx context.Context, userID string, limit int) ([]models.Conversation, error)

	// MostRecentConversation returns the user's most recently updated
	// conversation, or ErrNotFound if none exists yet.
	MostRecentConversation(ctx context.Context, userID string) (*models.Conversation, error)

	DeleteConversation(ctx context.Context, id string) error

	// ListConversationsUpdatedBefore returns conversations across all users
	// whose last update is older than cutoff, oldest first, up to limit.
	// Used by the retention janitor.
	ListConversationsUpdatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Conversation, error)
}

// ── Library Store ───────────────────────────────────────────

type LibraryStore interface {
	GetLibraryItem(ctx context.Context, userID, id string) (*models.LibraryItem, error)
	CreateLibraryItem(ctx context.Context, item *models.LibraryItem) error
	UpdateLibraryItem(ctx context.Context, item *models.LibraryItem) error
	DeleteLibraryItem(ctx context.Context, userID, id string) error
	ListLibraryItems(ctx context.Context, userID string) ([]models.LibraryItem, error)

	// SearchLibrary returns items whose content contains every token,
	// case-insensitive and order-independent, up to limit results.
	SearchLibrary(ctx context.Context, userID string, tokens []string, limit int) ([]models.LibraryItem, error)
}

// ── Errors ──────────────────────────────────────────────────

// ErrNotFound is returned when a requested entity does not exist.
type ErrNotFound struct {
	Entity string
	Key    string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.Key
}

// IsNotFound reports whether err is an ErrNotFound.
func IsNotFound(err error) bool {
	_, ok := err.(*ErrNotFound)
	return ok
}
