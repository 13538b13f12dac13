// Package handlers implements the HTTP handlers for the Sofia response
// orchestrator: the chat endpoint, user info, the document library, and
// conversation history.
package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sofia-labs/sofia/orchestrator/internal/api/middleware"
	"github.com/sofia-labs/sofia/orchestrator/internal/extract"
	"github.com/sofia-labs/sofia/orchestrator/internal/library"
	"github.com/sofia-labs/sofia/orchestrator/internal/orchestrator"
	"github.com/sofia-labs/sofia/orchestrator/internal/quota"
	"github.com/sofia-labs/sofia/orchestrator/internal/store"
	"github.com/sofia-labs/sofia/orchestrator/pkg/models"
)

// Handlers holds all handler dependencies.
type Handlers struct {
	Store        store.Store
	Orchestrator *orchestrator.Orchestrator
	Summarizer   *library.Summarizer
	Codec        extract.DocumentCodec
}

// New creates a new Handlers instance with all dependencies.
func New(s store.Store, o *orchestrator.Orchestrator, sum *library.Summarizer, codec extract.DocumentCodec) *Handlers {
	return &Handlers{
		Store:        s,
		Orchestrator: o,
		Summarizer:   sum,
		Codec:        codec,
	}
}

// ── Chat ─────────────────────────────────────────────────────

type chatPayload struct {
	Text        string `json:"text"`
	FileData    string `json:"fileData,omitempty"` // base64
	FileType    string `json:"fileType,omitempty"`
	Mode        string `json:"mode,omitempty"`
	IsTemporary bool   `json:"isTemporary,omitempty"`
}

// Chat handles one conversational turn.
func (h *Handlers) Chat(w http.ResponseWriter, r *http.Request) {
	var payload chatPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if payload.Text == "" && payload.FileData == "" {
		respondError(w, http.StatusBadRequest, "Request must include 'text' or 'fileData'")
		return
	}

	userID := middleware.GetUserID(r.Context())
	if err := h.ensureUser(r.Context(), userID); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	req := &models.ChatRequest{
		Text:        payload.Text,
		Mode:        payload.Mode,
		IsEphemeral: payload.IsTemporary,
	}

	if payload.FileData != "" {
		data, err := base64.StdEncoding.DecodeString(payload.FileData)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid base64 in 'fileData'")
			return
		}
		req.Attachment = &models.Attachment{Data: data, MimeType: payload.FileType}
	}

	resp, err := h.Orchestrator.Respond(r.Context(), userID, req)
	if err != nil {
		if denied, ok := quota.IsDenied(err); ok {
			respondJSON(w, http.StatusTooManyRequests, map[string]interface{}{
				"error":            denied.Hint,
				"upgrade_required": true,
			})
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// ── User ─────────────────────────────────────────────────────

// GetUser returns the calling user's profile and remaining quota.
func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if err := h.ensureUser(r.Context(), userID); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	user, err := h.Store.GetUser(r.Context(), userID)
	if err != nil {
		if store.IsNotFound(err) {
			respondError(w, http.StatusNotFound, err.Error())
		} else {
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	messagesLeft := models.DailyMessageLimit - user.MessagesUsedToday
	searchesLeft := models.DailyWebSearchLimit - user.WebSearchesUsedToday
	if messagesLeft < 0 {
		messagesLeft = 0
	}
	if searchesLeft < 0 {
		searchesLeft = 0
	}
	// Counters from a previous UTC day are stale; report full quota.
	today := time.Now().UTC().Format("2006-01-02")
	if user.LastResetDate != today {
		messagesLeft = models.DailyMessageLimit
		searchesLeft = models.DailyWebSearchLimit
	}
	if user.IsPremium || user.IsAdmin {
		messagesLeft = -1
		searchesLeft = -1
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"user":                 user,
		"messages_remaining":   messagesLeft,
		"web_searches_remaining": searchesLeft,
	})
}

// ensureUser provisions a free-tier account the first time an identity is
// seen. Account upgrades (premium, admin) are owned elsewhere.
func (h *Handlers) ensureUser(ctx context.Context, userID string) error {
	_, err := h.Store.GetUser(ctx, userID)
	if err == nil {
		return nil
	}
	if !store.IsNotFound(err) {
		return err
	}

	user := &models.User{
		ID:            userID,
		Email:         userID + "@users.sofia.local",
		Name:          userID,
		LastResetDate: time.Now().UTC().Format("2006-01-02"),
		CreatedAt:     time.Now().UTC(),
	}
	if err := h.Store.CreateUser(ctx, user); err != nil {
		return err
	}
	log.Info().Str("user", userID).Msg("User provisioned")
	return nil
}

// ── Library ──────────────────────────────────────────────────

type libraryUploadPayload struct {
	Filename string `json:"filename"`
	Content  string `json:"content,omitempty"`
	FileData string `json:"fileData,omitempty"` // base64
	FileType string `json:"fileType,omitempty"`
}

func (h *Handlers) ListLibrary(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	items, err := h.Store.ListLibraryItems(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if items == nil {
		items = []models.LibraryItem{}
	}
	// Content can be large; the listing returns metadata and summaries only.
	for i := range items {
		items[i].Content = ""
	}
	respondJSON(w, http.StatusOK, items)
}

func (h *Handlers) UploadLibraryItem(w http.ResponseWriter, r *http.Request) {
	var payload libraryUploadPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if payload.Filename == "" {
		respondError(w, http.StatusBadRequest, "Request must include 'filename'")
		return
	}

	content := payload.Content
	if content == "" && payload.FileData != "" {
		data, err := base64.StdEncoding.DecodeString(payload.FileData)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid base64 in 'fileData'")
			return
		}
		content = extract.AttachmentText(h.Codec, data, payload.FileType)
	}
	if content == "" {
		respondError(w, http.StatusBadRequest, "Document has no extractable text content")
		return
	}

	userID := middleware.GetUserID(r.Context())
	item := &models.LibraryItem{
		ID:            uuid.New().String(),
		UserID:        userID,
		Filename:      payload.Filename,
		Content:       content,
		SummaryStatus: models.SummaryPending,
		CreatedAt:     time.Now().UTC(),
	}

	if err := h.Store.CreateLibraryItem(r.Context(), item); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Summarization runs in the background; the item is usable immediately.
	h.Summarizer.SummarizeAsync(item)

	log.Info().Str("user", userID).Str("item", item.ID).Str("filename", item.Filename).Msg("Library document uploaded")
	respondJSON(w, http.StatusCreated, item)
}

func (h *Handlers) GetLibraryItem(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	itemID := chi.URLParam(r, "itemId")

	item, err := h.Store.GetLibraryItem(r.Context(), userID, itemID)
	if err != nil {
		if store.IsNotFound(err) {
			respondError(w, http.StatusNotFound, err.Error())
		} else {
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	respondJSON(w, http.StatusOK, item)
}

func (h *Handlers) DeleteLibraryItem(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	itemID := chi.URLParam(r, "itemId")

	if err := h.Store.DeleteLibraryItem(r.Context(), userID, itemID); err != nil {
		if store.IsNotFound(err) {
			respondError(w, http.StatusNotFound, err.Error())
		} else {
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Conversations ────────────────────────────────────────────

func (h *Handlers) ListConversations(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	convs, err := h.Store.ListConversations(r.Context(), userID, 50)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if convs == nil {
		convs = []models.Conversation{}
	}
	// Listing returns metadata only; turns come from the detail endpoint.
	for i := range convs {
		convs[i].Turns = nil
	}
	respondJSON(w, http.StatusOK, convs)
}

func (h *Handlers) GetConversation(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	convID := chi.URLParam(r, "conversationId")

	conv, err := h.Store.GetConversation(r.Context(), convID)
	if err != nil {
		if store.IsNotFound(err) {
			respondError(w, http.StatusNotFound, err.Error())
		} else {
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	// Conversations are private to their owner.
	if conv.UserID != userID {
		respondError(w, http.StatusNotFound, "conversation not found: "+convID)
		return
	}
	respondJSON(w, http.StatusOK, conv)
}

func (h *Handlers) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	convID := chi.URLParam(r, "conversationId")

	conv, err := h.Store.GetConversation(r.Context(), convID)
	if err != nil {
		if store.IsNotFound(err) {
			respondError(w, http.StatusNotFound, err.Error())
		} else {
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	if conv.UserID != userID {
		respondError(w, http.StatusNotFound, "conversation not found: "+convID)
		return
	}

	if err := h.Store.DeleteConversation(r.Context(), convID); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Helpers ──────────────────────────────────────────────────

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
