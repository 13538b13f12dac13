package retention

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sofia-labs/sofia/orchestrator/pkg/models"
)

// LocalFileArchiver writes expired conversations as JSONL files to a local
// directory. This is the default archive backend for local deployments.
//
// Directory structure:
//
//	{basePath}/conversations/2026-09-01T15-04-05Z.jsonl[.gz]
type LocalFileArchiver struct {
	basePath string
	compress bool
}

// NewLocalFileArchiver creates a file-based archiver. If basePath is empty,
// it defaults to "~/.sofia/archive".
func NewLocalFileArchiver(basePath string, compress bool) *LocalFileArchiver {
	if basePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			basePath = "/tmp/sofia/archive"
		} else {
			basePath = filepath.Join(home, ".sofia", "archive")
		}
	}
	return &LocalFileArchiver{basePath: basePath, compress: compress}
}

func (a *LocalFileArchiver) Kind() string { return "local" }

func (a *LocalFileArchiver) ArchiveConversations(_ context.Context, convs []models.Conversation) (string, error) {
	dir := filepath.Join(a.basePath, "conversations")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}

	filename := time.Now().UTC().Format("2006-01-02T15-04-05Z") + ".jsonl"
	if a.compress {
		filename += ".gz"
	}
	fpath := filepath.Join(dir, filename)

	f, err := os.Create(fpath)
	if err != nil {
		return "", fmt.Errorf("create archive file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	if a.compress {
		gw := gzip.NewWriter(f)
		defer gw.Close()
		enc = json.NewEncoder(gw)
	}

	for _, c := range convs {
		if err := enc.Encode(c); err != nil {
			return "", fmt.Errorf("encode conversation %s: %w", c.ID, err)
		}
	}

	log.Debug().
		Str("path", fpath).
		Int("count", len(convs)).
		Msg("Archived conversations to local file")

	return fpath, nil
}
