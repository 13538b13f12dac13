// Package store — in-memory Store implementation.
// Used when PostgreSQL is not configured (local dev, tests). Supports
// file-based snapshot persistence so data survives restarts.
package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sofia-labs/sofia/orchestrator/pkg/models"
)

// snapshot is the JSON-serializable shape written to disk.
type snapshot struct {
	Users         map[string]*models.User         `json:"users"`
	Conversations map[string]*models.Conversation `json:"conversations"`
	LibraryItems  map[string]*models.LibraryItem  `json:"library_items"` // key: userID:id
}

// MemoryStore implements Store with in-memory maps.
type MemoryStore struct {
	mu            sync.RWMutex
	users         map[string]*models.User         // key: id
	conversations map[string]*models.Conversation // key: id
	libraryItems  map[string]*models.LibraryItem  // key: userID:id

	// Persistence
	snapshotPath string        // empty = no persistence
	saveMu       sync.Mutex    // guards file writes
	saveCh       chan struct{} // debounce channel
	doneCh       chan struct{} // signals background goroutines to stop
	closeOnce    sync.Once
}

// NewMemoryStore creates a new in-memory store.
// If SOFIA_DATA_DIR is set, data is persisted to a JSON file in that
// directory. Otherwise defaults to ~/.sofia/data.json.
func NewMemoryStore() *MemoryStore {
	m := &MemoryStore{
		users:         make(map[string]*models.User),
		conversations: make(map[string]*models.Conversation),
		libraryItems:  make(map[string]*models.LibraryItem),
		saveCh:        make(chan struct{}, 1),
		doneCh:        make(chan struct{}),
	}

	dataDir := os.Getenv("SOFIA_DATA_DIR")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			dataDir = filepath.Join(home, ".sofia")
		}
	}
	if dataDir != "" {
		m.snapshotPath = filepath.Join(dataDir, "data.json")
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			log.Warn().Err(err).Str("dir", dataDir).Msg("Cannot create data dir, persistence disabled")
			m.snapshotPath = ""
		}
	}

	if m.snapshotPath != "" {
		m.loadSnapshot()
		go m.saveLoop()
	}

	log.Info().Str("snapshot", m.snapshotPath).Msg("Memory store configured")
	return m
}

// requestSave signals the background goroutine to persist data.
// Non-blocking: coalesces multiple rapid writes into one disk flush.
func (m *MemoryStore) requestSave() {
	if m.snapshotPath == "" {
		return
	}
	select {
	case m.saveCh <- struct{}{}:
	default:
		// Already pending
	}
}

// saveLoop runs in a goroutine, debouncing save requests (max 1 write per 500ms).
func (m *MemoryStore) saveLoop() {
	for {
		select {
		case <-m.doneCh:
			return
		case <-m.saveCh:
			time.Sleep(500 * time.Millisecond) // debounce
			m.saveSnapshot()
		}
	}
}

// saveSnapshot persists all data to disk as JSON.
func (m *MemoryStore) saveSnapshot() {
	m.mu.RLock()
	snap := snapshot{
		Users:         m.users,
		Conversations: m.conversations,
		LibraryItems:  m.libraryItems,
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	m.mu.RUnlock()

	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal snapshot")
		return
	}

	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	// Write to temp file then rename for atomicity
	tmp := m.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		log.Error().Err(err).Str("path", tmp).Msg("Failed to write snapshot tmp")
		return
	}
	if err := os.Rename(tmp, m.snapshotPath); err != nil {
		log.Error().Err(err).Str("path", m.snapshotPath).Msg("Failed to rename snapshot")
		return
	}

	log.Debug().Str("path", m.snapshotPath).Msg("Snapshot saved")
}

// loadSnapshot reads data from disk on startup.
func (m *MemoryStore) loadSnapshot() {
	data, err := os.ReadFile(m.snapshotPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", m.snapshotPath).Msg("No snapshot file found, starting fresh")
			return
		}
		log.Warn().Err(err).Str("path", m.snapshotPath).Msg("Failed to read snapshot")
		return
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Warn().Err(err).Str("path", m.snapshotPath).Msg("Failed to parse snapshot, starting fresh")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if snap.Users != nil {
		m.users = snap.Users
	}
	if snap.Conversations != nil {
		m.conversations = snap.Conversations
	}
	if snap.LibraryItems != nil {
		m.libraryItems = snap.LibraryItems
	}

	log.Info().
		Int("users", len(m.users)).
		Int("conversations", len(m.conversations)).
		Int("library_items", len(m.libraryItems)).
		Msg("Snapshot loaded")
}

// Ping always succeeds for the in-memory store.
func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

// Close flushes a final snapshot and stops background goroutines.
func (m *MemoryStore) Close() error {
	m.closeOnce.Do(func() {
		close(m.doneCh)
		if m.snapshotPath != "" {
			m.saveSnapshot()
		}
	})
	return nil
}

// ── User Store ──────────────────────────────────────────────

func (m *MemoryStore) GetUser(_ context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "user", Key: id}
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, &ErrNotFound{Entity: "user", Key: email}
}

func (m *MemoryStore) CreateUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	cp := *user
	m.users[user.ID] = &cp
	m.mu.Unlock()

	m.requestSave()
	return nil
}

func (m *MemoryStore) UpdateUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[user.ID]; !ok {
		return &ErrNotFound{Entity: "user", Key: user.ID}
	}
	cp := *user
	m.users[user.ID] = &cp

	m.requestSave()
	return nil
}

func (m *MemoryStore) UpdateQuota(_ context.Context, userID string, messages, webSearches int, lastReset string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return &ErrNotFound{Entity: "user", Key: userID}
	}
	u.MessagesUsedToday = messages
	u.WebSearchesUsedToday = webSearches
	u.LastResetDate = lastReset

	m.requestSave()
	return nil
}

// ── Conversation Store ──────────────────────────────────────

func (m *MemoryStore) GetConversation(_ context.Context, id string) (*models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.conversations[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "conversation", Key: id}
	}
	cp := *c
	cp.Turns = append([]models.ConversationTurn(nil), c.Turns...)
	return &cp, nil
}

func (m *MemoryStore) CreateConversation(_ context.Context, conv *models.Conversation) error {
	m.mu.Lock()
	cp := *conv
	cp.Turns = append([]models.ConversationTurn(nil), conv.Turns...)
	m.conversations[conv.ID] = &cp
	m.mu.Unlock()

	m.requestSave()
	return nil
}

func (m *MemoryStore) UpdateConversation(_ context.Context, conv *models.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.conversations[conv.ID]; !ok {
		return &ErrNotFound{Entity: "conversation", Key: conv.ID}
	}
	cp := *conv
	cp.Turns = append([]models.ConversationTurn(nil), conv.Turns...)
	cp.UpdatedAt = time.Now().UTC()
	m.conversations[conv.ID] = &cp

	m.requestSave()
	return nil
}

func (m *MemoryStore) ListConversations(_ context.Context, userID string, limit int) ([]models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []models.Conversation
	for _, c := range m.conversations {
		if c.UserID == userID {
			result = append(result, *c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryStore) DeleteConversation(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.conversations[id]; !ok {
		return &ErrNotFound{Entity: "conversation", Key: id}
	}
	delete(m.conversations, id)

	m.requestSave()
	return nil
}

func (m *MemoryStore) ListConversationsUpdatedBefore(_ context.Context, cutoff time.Time, limit int) ([]models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []models.Conversation
	for _, c := range m.conversations {
		if c.UpdatedAt.Before(cutoff) {
			cp := *c
			cp.Turns = append([]models.ConversationTurn(nil), c.Turns...)
			result = append(result, cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.Before(result[j].UpdatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryStore) MostRecentConversation(ctx context.Context, userID string) (*models.Conversation, error) {
	convs, err := m.ListConversations(ctx, userID, 1)
	if err != nil {
		return nil, err
	}
	if len(convs) == 0 {
		return nil, &ErrNotFound{Entity: "conversation", Key: userID}
	}
	return &convs[0], nil
}

// ── Library Store ───────────────────────────────────────────

func libraryKey(userID, id string) string { return userID + ":" + id }

func (m *MemoryStore) GetLibraryItem(_ context.Context, userID, id string) (*models.LibraryItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.libraryItems[libraryKey(userID, id)]
	if !ok {
		return nil, &ErrNotFound{Entity: "library item", Key: id}
	}
	cp := *item
	return &cp, nil
}

func (m *MemoryStore) CreateLibraryItem(_ context.Context, item *models.LibraryItem) error {
	m.mu.Lock()
	cp := *item
	m.libraryItems[libraryKey(item.UserID, item.ID)] = &cp
	m.mu.Unlock()

	m.requestSave()
	return nil
}

func (m *MemoryStore) UpdateLibraryItem(_ context.Context, item *models.LibraryItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := libraryKey(item.UserID, item.ID)
	if _, ok := m.libraryItems[key]; !ok {
		return &ErrNotFound{Entity: "library item", Key: item.ID}
	}
	cp := *item
	m.libraryItems[key] = &cp

	m.requestSave()
	return nil
}

func (m *MemoryStore) DeleteLibraryItem(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := libraryKey(userID, id)
	if _, ok := m.libraryItems[key]; !ok {
		return &ErrNotFound{Entity: "library item", Key: id}
	}
	delete(m.libraryItems, key)

	m.requestSave()
	return nil
}

func (m *MemoryStore) ListLibraryItems(_ context.Context, userID string) ([]models.LibraryItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []models.LibraryItem
	for _, item := range m.libraryItems {
		if item.UserID == userID {
			result = append(result, *item)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (m *MemoryStore) SearchLibrary(_ context.Context, userID string, tokens []string, limit int) ([]models.LibraryItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []models.LibraryItem
	for _, item := range m.libraryItems {
		if item.UserID != userID {
			continue
		}
		if containsAllTokens(item.Content, tokens) {
			result = append(result, *item)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// containsAllTokens reports whether content contains every token,
// case-insensitive and in any order.
func containsAllTokens(content string, tokens []string) bool {
	if len(tokens) == 0 {
		return false
	}
	lower := strings.ToLower(content)
	for _, tok := range tokens {
		if !strings.Contains(lower, strings.ToLower(tok)) {
			return false
		}
	}
	return true
}
