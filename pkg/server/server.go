// Package server provides the public entry point for initializing the
// Sofia orchestrator server.
//
// This package exists in pkg/ (not internal/) so that deployment wrappers
// can import it and compose the full server with their own middleware.
//
// Usage:
//
//	srv, err := server.New(ctx)
//	http.ListenAndServe(":8080", srv.Handler)
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sofia-labs/sofia/orchestrator/internal/api"
	"github.com/sofia-labs/sofia/orchestrator/internal/api/handlers"
	"github.com/sofia-labs/sofia/orchestrator/internal/config"
	"github.com/sofia-labs/sofia/orchestrator/internal/dispatch"
	"github.com/sofia-labs/sofia/orchestrator/internal/extract"
	"github.com/sofia-labs/sofia/orchestrator/internal/history"
	"github.com/sofia-labs/sofia/orchestrator/internal/intent"
	"github.com/sofia-labs/sofia/orchestrator/internal/library"
	"github.com/sofia-labs/sofia/orchestrator/internal/llm"
	"github.com/sofia-labs/sofia/orchestrator/internal/orchestrator"
	"github.com/sofia-labs/sofia/orchestrator/internal/quota"
	"github.com/sofia-labs/sofia/orchestrator/internal/retention"
	"github.com/sofia-labs/sofia/orchestrator/internal/search"
	"github.com/sofia-labs/sofia/orchestrator/internal/store"
	"github.com/sofia-labs/sofia/orchestrator/internal/telemetry"
	"github.com/sofia-labs/sofia/orchestrator/pkg/models"
)

// Options customizes server construction. The zero value uses environment
// configuration throughout.
type Options struct {
	// Codec extracts text from PDF and DOCX uploads. Nil degrades those
	// attachments to inline provider input.
	Codec extract.DocumentCodec
}

// Server holds the initialized Sofia orchestrator.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Store is the backing data store.
	Store store.Store

	// Config is the loaded configuration.
	Config *config.Config

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc should be called on graceful shutdown to flush telemetry.
	ShutdownFunc func(context.Context) error
}

// New initializes all orchestrator components from the environment and
// returns a ready Server.
func New(ctx context.Context) (*Server, error) {
	return NewWithOptions(ctx, Options{})
}

// NewWithOptions initializes the orchestrator with explicit options.
func NewWithOptions(ctx context.Context, opts Options) (*Server, error) {
	cfg := config.Load()

	shutdown, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	// PostgreSQL when configured, in-memory with snapshot persistence
	// otherwise.
	var dataStore store.Store
	if cfg.Database.URL != "" {
		pg, err := store.NewPostgresStore(ctx, cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		dataStore = pg
		log.Info().Msg("PostgreSQL store initialized")
	} else {
		dataStore = store.NewMemoryStore()
		log.Info().Msg("In-memory store initialized")
	}

	seedAdminUser(ctx, dataStore, cfg.AdminEmail)

	// Provider chain: Groq first (fast, text-only), Gemini second
	// (multimodal fallback).
	dispatcher := dispatch.NewDispatcher(
		llm.NewGroq(cfg.Providers.GroqEndpoint, cfg.Providers.GroqAPIKey, cfg.Providers.GroqModel),
		llm.NewGemini(cfg.Providers.GeminiEndpoint, cfg.Providers.GeminiAPIKey, cfg.Providers.GeminiModel),
	)
	log.Info().Strs("providers", dispatcher.Providers()).Msg("Provider chain initialized")

	summarizer := library.NewSummarizer(dataStore, dispatcher)

	orch := orchestrator.New(orchestrator.Options{
		Quota:         quota.NewManager(dataStore),
		Classifier:    intent.NewClassifier(cfg.Documents.Keywords),
		Web:           search.NewClient(cfg.Search.SerperEndpoint, cfg.Search.SerperAPIKey),
		Library:       library.NewSearcher(dataStore),
		History:       history.NewProvider(dataStore),
		Dispatcher:    dispatcher,
		Codec:         opts.Codec,
		Transcripts:   extract.NewTranscriptClient(cfg.Documents.TranscriptEndpoint, cfg.Documents.TranscriptAPIKey),
		Docs:          extract.NewDocFetcher(cfg.Documents.DocStoreEndpoint),
		Conversations: dataStore,
	})

	h := handlers.New(dataStore, orch, summarizer, opts.Codec)
	router := api.NewRouter(cfg, h)

	// Conversation retention runs in the background when a window is
	// configured. Archive-and-purge if an archive dir is set, purge-only
	// otherwise.
	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	if cfg.Retention.Days > 0 {
		janitor := retention.NewJanitor(dataStore, time.Hour, time.Duration(cfg.Retention.Days)*24*time.Hour)
		if cfg.Retention.ArchiveDir != "" {
			janitor.RegisterArchiver(retention.NewLocalFileArchiver(cfg.Retention.ArchiveDir, cfg.Retention.CompressArchives))
		}
		go janitor.Start(janitorCtx)
	}

	return &Server{
		Handler: router,
		Store:   dataStore,
		Config:  cfg,
		Port:    cfg.Port,
		ShutdownFunc: func(ctx context.Context) error {
			stopJanitor()
			return shutdown(ctx)
		},
	}, nil
}

// seedAdminUser marks the configured admin account. The admin bypasses
// all quotas; everything else about the record stays untouched.
func seedAdminUser(ctx context.Context, s store.Store, email string) {
	if email == "" {
		return
	}

	user, err := s.GetUserByEmail(ctx, email)
	if err != nil {
		if !store.IsNotFound(err) {
			log.Warn().Err(err).Str("email", email).Msg("Failed to look up admin user")
			return
		}
		user = &models.User{
			ID:            uuid.New().String(),
			Email:         email,
			Name:          "Admin",
			IsAdmin:       true,
			LastResetDate: time.Now().UTC().Format("2006-01-02"),
			CreatedAt:     time.Now().UTC(),
		}
		if err := s.CreateUser(ctx, user); err != nil {
			log.Warn().Err(err).Str("email", email).Msg("Failed to seed admin user")
			return
		}
		log.Info().Str("email", email).Msg("Admin user seeded")
		return
	}

	if !user.IsAdmin {
		user.IsAdmin = true
		if err := s.UpdateUser(ctx, user); err != nil {
			log.Warn().Err(err).Str("email", email).Msg("Failed to promote admin user")
			return
		}
		log.Info().Str("email", email).Msg("Existing user promoted to admin")
	}
}
