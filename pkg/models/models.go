// Package models defines the shared domain types for the Sofia response
// orchestrator: chat requests and responses, operating modes, user quota
// state, conversations, library items, and the transient context bundle
// assembled for each request.
package models

import (
	"strings"
	"time"
)

// ── Operating Mode ───────────────────────────────────────────

// OperatingMode is the single classification outcome governing which
// context sources and prompt template are used for one request.
type OperatingMode string

const (
	ModePlainChat        OperatingMode = "chat"
	ModeWebSearch        OperatingMode = "web_search"
	ModeSecuritySearch   OperatingMode = "security_search"
	ModeCodeSecurityScan OperatingMode = "code_security_scan"
	ModeMultimodal       OperatingMode = "multimodal"
)

// ParseMode maps the client-facing mode string onto an OperatingMode.
// Unknown or empty values fall back to the generic chat mode.
func ParseMode(s string) OperatingMode {
	switch OperatingMode(strings.TrimSpace(strings.ToLower(s))) {
	case ModeWebSearch:
		return ModeWebSearch
	case ModeSecuritySearch:
		return ModeSecuritySearch
	case ModeCodeSecurityScan:
		return ModeCodeSecurityScan
	default:
		return ModePlainChat
	}
}

// ── Chat Request / Response ──────────────────────────────────

// Attachment is an inline file sent with a chat request, already
// base64-decoded by the HTTP layer.
type Attachment struct {
	Data     []byte `json:"-"`
	MimeType string `json:"mime_type"`
}

// IsImage reports whether the attachment is a visual input that should be
// passed through to a vision-capable provider instead of text-extracted.
func (a *Attachment) IsImage() bool {
	return a != nil && strings.HasPrefix(a.MimeType, "image/")
}

// ChatRequest is the immutable inbound payload consumed by the orchestrator.
type ChatRequest struct {
	Text        string      `json:"text"`
	Attachment  *Attachment `json:"-"`
	Mode        string      `json:"mode,omitempty"`
	IsEphemeral bool        `json:"is_temporary,omitempty"`
}

// ChatResponse is the outbound success payload.
type ChatResponse struct {
	Response string `json:"response"`

	// Provider and Mode are informational; the web layer may drop them.
	Provider string        `json:"provider,omitempty"`
	Mode     OperatingMode `json:"mode,omitempty"`
}

// ── User & Quota State ───────────────────────────────────────

// Daily quota limits for free-tier users.
const (
	DailyMessageLimit   = 15
	DailyWebSearchLimit = 1
)

// User is the account record. The orchestrator only reads the flags and
// mutates the usage counters; everything else is owned by the account
// service.
type User struct {
	ID        string `json:"id" db:"id"`
	Email     string `json:"email" db:"email"`
	Name      string `json:"name" db:"name"`
	IsAdmin   bool   `json:"is_admin" db:"is_admin"`
	IsPremium bool   `json:"is_premium" db:"is_premium"`

	// Usage counters, reset at UTC midnight.
	MessagesUsedToday    int    `json:"messages_used_today" db:"messages_used"`
	WebSearchesUsedToday int    `json:"web_searches_used_today" db:"web_searches_used"`
	LastResetDate        string `json:"last_reset_date" db:"last_reset_date"` // YYYY-MM-DD (UTC)

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// QuotaKind identifies a rate-limited capability.
type QuotaKind string

const (
	QuotaMessage   QuotaKind = "message"
	QuotaWebSearch QuotaKind = "web_search"
)

// ── Conversation ─────────────────────────────────────────────

// TurnRole is the author of a conversation turn.
type TurnRole string

const (
	RoleUser      TurnRole = "user"
	RoleAssistant TurnRole = "assistant"
)

// ConversationTurn is one message in a conversation, read-only to the
// orchestrator.
type ConversationTurn struct {
	Role TurnRole `json:"role"`
	Text string   `json:"text"`
}

// Conversation is an ordered sequence of turns owned by one user.
type Conversation struct {
	ID        string             `json:"id" db:"id"`
	UserID    string             `json:"user_id" db:"user_id"`
	Title     string             `json:"title,omitempty" db:"title"`
	Turns     []ConversationTurn `json:"turns"`
	CreatedAt time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt time.Time          `json:"updated_at" db:"updated_at"`
}

// ── Library ──────────────────────────────────────────────────

// LibraryItem is one document in a user's uploaded-document library.
type LibraryItem struct {
	ID       string `json:"id" db:"id"`
	UserID   string `json:"user_id" db:"user_id"`
	Filename string `json:"filename" db:"filename"`
	Content  string `json:"content" db:"content"`

	// Summary is filled in by a background task after upload. It stays
	// "pending" if summarization fails; there is no retry.
	Summary       string `json:"summary,omitempty" db:"summary"`
	SummaryStatus string `json:"summary_status" db:"summary_status"` // pending, ready

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

const (
	SummaryPending = "pending"
	SummaryReady   = "ready"
)

// ── Context Bundle ───────────────────────────────────────────

// ContextBundle is the request-scoped aggregation of non-conversational
// context, already formatted as prompt-ready text by the providers that
// produced it. It is never persisted.
type ContextBundle struct {
	WebContext     string             `json:"web_context,omitempty"`
	LibraryContext string             `json:"library_context,omitempty"`
	HasLibrary     bool               `json:"has_library"`
	History        []ConversationTurn `json:"history,omitempty"`
}

// ── Provider Prompt Bundle ───────────────────────────────────

// InlineData is a binary blob (image, PDF, DOCX) attached to a prompt for
// providers that accept inline file input.
type InlineData struct {
	MimeType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

// PromptBundle is the provider-neutral request assembled by the dispatcher.
// Each provider driver maps it onto its own calling convention.
type PromptBundle struct {
	System  string             `json:"system,omitempty"`
	History []ConversationTurn `json:"history,omitempty"`
	Text    string             `json:"text"`
	Inline  []InlineData       `json:"inline,omitempty"`
}
