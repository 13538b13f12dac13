package store_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/sofia-labs/sofia/orchestrator/internal/store"
	"github.com/sofia-labs/sofia/orchestrator/pkg/models"
)

// newTestStore creates a fresh in-memory store for tests.
func newTestStore(t *testing.T) store.Store {
	t.Helper()
	// Use a temp dir so tests don't write to ~/.sofia/
	dir := t.TempDir()
	os.Setenv("SOFIA_DATA_DIR", dir)
	defer os.Unsetenv("SOFIA_DATA_DIR")
	s := store.NewMemoryStore()
	t.Cleanup(func() { s.Close() })
	return s
}

// ─── User CRUD ───────────────────────────────────────────────

func TestCreateAndGetUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user := &models.User{
		ID:            "u1",
		Email:         "u1@example.com",
		Name:          "Test User",
		LastResetDate: "2026-09-01",
	}

	if err := s.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	got, err := s.GetUser(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUser() error = %v", err)
	}
	if got.Email != "u1@example.com" {
		t.Errorf("GetUser().Email = %q, want %q", got.Email, "u1@example.com")
	}
	if got.IsPremium {
		t.Error("New user should not be premium")
	}
}

func TestGetUserByEmail_CaseInsensitive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.CreateUser(ctx, &models.User{ID: "u1", Email: "Admin@Example.com"})

	got, err := s.GetUserByEmail(ctx, "admin@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail() error = %v", err)
	}
	if got.ID != "u1" {
		t.Errorf("GetUserByEmail().ID = %q, want %q", got.ID, "u1")
	}
}

func TestGetUser_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetUser(context.Background(), "missing")
	if !store.IsNotFound(err) {
		t.Errorf("GetUser() error = %v, want ErrNotFound", err)
	}
}

func TestUpdateQuota(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.CreateUser(ctx, &models.User{ID: "u1", LastResetDate: "2026-08-31"})

	if err := s.UpdateQuota(ctx, "u1", 7, 1, "2026-09-01"); err != nil {
		t.Fatalf("UpdateQuota() error = %v", err)
	}

	got, _ := s.GetUser(ctx, "u1")
	if got.MessagesUsedToday != 7 {
		t.Errorf("MessagesUsedToday = %d, want 7", got.MessagesUsedToday)
	}
	if got.WebSearchesUsedToday != 1 {
		t.Errorf("WebSearchesUsedToday = %d, want 1", got.WebSearchesUsedToday)
	}
	if got.LastResetDate != "2026-09-01" {
		t.Errorf("LastResetDate = %q, want %q", got.LastResetDate, "2026-09-01")
	}
}

// ─── Conversations ───────────────────────────────────────────

func TestMostRecentConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := &models.Conversation{
		ID: "c1", UserID: "u1",
		UpdatedAt: time.Now().UTC().Add(-time.Hour),
	}
	recent := &models.Conversation{
		ID: "c2", UserID: "u1",
		Turns:     []models.ConversationTurn{{Role: models.RoleUser, Text: "hi"}},
		UpdatedAt: time.Now().UTC(),
	}
	s.CreateConversation(ctx, old)
	s.CreateConversation(ctx, recent)
	s.CreateConversation(ctx, &models.Conversation{ID: "c3", UserID: "other", UpdatedAt: time.Now().UTC().Add(time.Hour)})

	got, err := s.MostRecentConversation(ctx, "u1")
	if err != nil {
		t.Fatalf("MostRecentConversation() error = %v", err)
	}
	if got.ID != "c2" {
		t.Errorf("MostRecentConversation().ID = %q, want %q", got.ID, "c2")
	}
	if len(got.Turns) != 1 {
		t.Errorf("Turns length = %d, want 1", len(got.Turns))
	}
}

func TestMostRecentConversation_None(t *testing.T) {
	s := newTestStore(t)

	_, err := s.MostRecentConversation(context.Background(), "nobody")
	if !store.IsNotFound(err) {
		t.Errorf("MostRecentConversation() error = %v, want ErrNotFound", err)
	}
}

func TestListConversations_SortedAndLimited(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i, id := range []string{"c1", "c2", "c3"} {
		s.CreateConversation(ctx, &models.Conversation{
			ID: id, UserID: "u1", UpdatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}

	convs, err := s.ListConversations(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("ListConversations() error = %v", err)
	}
	if len(convs) != 2 {
		t.Fatalf("ListConversations() length = %d, want 2", len(convs))
	}
	if convs[0].ID != "c3" {
		t.Errorf("First conversation = %q, want most recent %q", convs[0].ID, "c3")
	}
}

// ─── Library ─────────────────────────────────────────────────

func TestLibraryItemCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	item := &models.LibraryItem{
		ID: "d1", UserID: "u1", Filename: "notes.pdf",
		Content:       "quarterly revenue projections",
		SummaryStatus: models.SummaryPending,
	}
	if err := s.CreateLibraryItem(ctx, item); err != nil {
		t.Fatalf("CreateLibraryItem() error = %v", err)
	}

	item.Summary = "Revenue notes."
	item.SummaryStatus = models.SummaryReady
	if err := s.UpdateLibraryItem(ctx, item); err != nil {
		t.Fatalf("UpdateLibraryItem() error = %v", err)
	}

	got, err := s.GetLibraryItem(ctx, "u1", "d1")
	if err != nil {
		t.Fatalf("GetLibraryItem() error = %v", err)
	}
	if got.SummaryStatus != models.SummaryReady {
		t.Errorf("SummaryStatus = %q, want %q", got.SummaryStatus, models.SummaryReady)
	}

	// Another user cannot see the item.
	if _, err := s.GetLibraryItem(ctx, "u2", "d1"); !store.IsNotFound(err) {
		t.Errorf("Cross-user GetLibraryItem() error = %v, want ErrNotFound", err)
	}

	if err := s.DeleteLibraryItem(ctx, "u1", "d1"); err != nil {
		t.Fatalf("DeleteLibraryItem() error = %v", err)
	}
	if _, err := s.GetLibraryItem(ctx, "u1", "d1"); !store.IsNotFound(err) {
		t.Errorf("After delete, error = %v, want ErrNotFound", err)
	}
}

func TestSearchLibrary_AllTokensAnyOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.CreateLibraryItem(ctx, &models.LibraryItem{
		ID: "d1", UserID: "u1", Filename: "match.txt",
		Content: "The beta rollout depends on the alpha results",
	})
	s.CreateLibraryItem(ctx, &models.LibraryItem{
		ID: "d2", UserID: "u1", Filename: "partial.txt",
		Content: "Only alpha appears here",
	})

	items, err := s.SearchLibrary(ctx, "u1", []string{"alpha", "beta"}, 3)
	if err != nil {
		t.Fatalf("SearchLibrary() error = %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("SearchLibrary() matched %d items, want 1", len(items))
	}
	if items[0].ID != "d1" {
		t.Errorf("Matched item = %q, want %q", items[0].ID, "d1")
	}
}

func TestSearchLibrary_CaseInsensitive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.CreateLibraryItem(ctx, &models.LibraryItem{
		ID: "d1", UserID: "u1", Content: "Kubernetes Deployment Guide",
	})

	items, _ := s.SearchLibrary(ctx, "u1", []string{"kubernetes", "guide"}, 3)
	if len(items) != 1 {
		t.Errorf("SearchLibrary() matched %d items, want 1", len(items))
	}
}

// ─── Snapshot Persistence ────────────────────────────────────

func TestSnapshotPersistence(t *testing.T) {
	dir := t.TempDir()
	os.Setenv("SOFIA_DATA_DIR", dir)
	defer os.Unsetenv("SOFIA_DATA_DIR")

	ctx := context.Background()

	s1 := store.NewMemoryStore()
	s1.CreateUser(ctx, &models.User{ID: "u1", Email: "persist@example.com"})
	// Close flushes the final snapshot.
	if err := s1.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	s2 := store.NewMemoryStore()
	defer s2.Close()

	got, err := s2.GetUser(ctx, "u1")
	if err != nil {
		t.Fatalf("After reload, GetUser() error = %v", err)
	}
	if got.Email != "persist@example.com" {
		t.Errorf("After reload, Email = %q, want %q", got.Email, "persist@example.com")
	}
}
