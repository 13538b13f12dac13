package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/sofia-labs/sofia/orchestrator/pkg/models"
)

// PostgresStore implements Store backed by PostgreSQL via pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to PostgreSQL and creates the required tables
// if they don't exist.
func NewPostgresStore(ctx context.Context, connURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connURL)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}

	log.Info().Msg("PostgreSQL store initialized")
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS sofia_users (
			id               TEXT PRIMARY KEY,
			email            TEXT NOT NULL DEFAULT '',
			name             TEXT NOT NULL DEFAULT '',
			is_admin         BOOLEAN NOT NULL DEFAULT FALSE,
			is_premium       BOOLEAN NOT NULL DEFAULT FALSE,
			messages_used    INT NOT NULL DEFAULT 0,
			web_searches_used INT NOT NULL DEFAULT 0,
			last_reset_date  TEXT NOT NULL DEFAULT '',
			created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_sofia_users_email ON sofia_users (LOWER(email));

		CREATE TABLE IF NOT EXISTS sofia_conversations (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			title      TEXT NOT NULL DEFAULT '',
			turns      JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_sofia_conversations_user ON sofia_conversations (user_id, updated_at DESC);

		CREATE TABLE IF NOT EXISTS sofia_library_items (
			id             TEXT NOT NULL,
			user_id        TEXT NOT NULL,
			filename       TEXT NOT NULL DEFAULT '',
			content        TEXT NOT NULL DEFAULT '',
			summary        TEXT NOT NULL DEFAULT '',
			summary_status TEXT NOT NULL DEFAULT 'pending',
			created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (user_id, id)
		);
	`
	_, err := s.pool.Exec(ctx, ddl)
	return err
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// ── User Store ──────────────────────────────────────────────

const userColumns = `id, email, name, is_admin, is_premium, messages_used, web_searches_used, last_reset_date, created_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.IsAdmin, &u.IsPremium,
		&u.MessagesUsedToday, &u.WebSearchesUsedToday, &u.LastResetDate, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM sofia_users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err == pgx.ErrNoRows {
		return nil, &ErrNotFound{Entity: "user", Key: id}
	}
	return u, err
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM sofia_users WHERE LOWER(email) = LOWER($1)`, email)
	u, err := scanUser(row)
	if err == pgx.ErrNoRows {
		return nil, &ErrNotFound{Entity: "user", Key: email}
	}
	return u, err
}

func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sofia_users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`,
		user.ID, user.Email, user.Name, user.IsAdmin, user.IsPremium,
		user.MessagesUsedToday, user.WebSearchesUsedToday, user.LastResetDate, user.CreatedAt)
	return err
}

func (s *PostgresStore) UpdateUser(ctx context.Context, user *models.User) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sofia_users SET email = $2, name = $3, is_admin = $4, is_premium = $5,
			messages_used = $6, web_searches_used = $7, last_reset_date = $8
		WHERE id = $1`,
		user.ID, user.Email, user.Name, user.IsAdmin, user.IsPremium,
		user.MessagesUsedToday, user.WebSearchesUsedToday, user.LastResetDate)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "user", Key: user.ID}
	}
	return nil
}

func (s *PostgresStore) UpdateQuota(ctx context.Context, userID string, messages, webSearches int, lastReset string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sofia_users SET messages_used = $2, web_searches_used = $3, last_reset_date = $4
		WHERE id = $1`,
		userID, messages, webSearches, lastReset)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "user", Key: userID}
	}
	return nil
}

// ── Conversation Store ──────────────────────────────────────

func scanConversation(row pgx.Row) (*models.Conversation, error) {
	var c models.Conversation
	var turns []byte
	err := row.Scan(&c.ID, &c.UserID, &c.Title, &turns, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(turns, &c.Turns); err != nil {
		return nil, fmt.Errorf("decode turns: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, title, turns, created_at, updated_at
		FROM sofia_conversations WHERE id = $1`, id)
	c, err := scanConversation(row)
	if err == pgx.ErrNoRows {
		return nil, &ErrNotFound{Entity: "conversation", Key: id}
	}
	return c, err
}

func (s *PostgresStore) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	turns, err := json.Marshal(conv.Turns)
	if err != nil {
		return fmt.Errorf("encode turns: %w", err)
	}
	now := time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = now
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO sofia_conversations (id, user_id, title, turns, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		conv.ID, conv.UserID, conv.Title, turns, conv.CreatedAt, conv.UpdatedAt)
	return err
}

func (s *PostgresStore) UpdateConversation(ctx context.Context, conv *models.Conversation) error {
	turns, err := json.Marshal(conv.Turns)
	if err != nil {
		return fmt.Errorf("encode turns: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE sofia_conversations SET title = $2, turns = $3, updated_at = NOW()
		WHERE id = $1`,
		conv.ID, conv.Title, turns)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "conversation", Key: conv.ID}
	}
	return nil
}

func (s *PostgresStore) ListConversations(ctx context.Context, userID string, limit int) ([]models.Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, title, turns, created_at, updated_at
		FROM sofia_conversations WHERE user_id = $1
		ORDER BY updated_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}
	return result, rows.Err()
}

func (s *PostgresStore) DeleteConversation(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sofia_conversations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "conversation", Key: id}
	}
	return nil
}

func (s *PostgresStore) ListConversationsUpdatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Conversation, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, title, turns, created_at, updated_at
		FROM sofia_conversations WHERE updated_at < $1
		ORDER BY updated_at ASC LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}
	return result, rows.Err()
}

func (s *PostgresStore) MostRecentConversation(ctx context.Context, userID string) (*models.Conversation, error) {
	convs, err := s.ListConversations(ctx, userID, 1)
	if err != nil {
		return nil, err
	}
	if len(convs) == 0 {
		return nil, &ErrNotFound{Entity: "conversation", Key: userID}
	}
	return &convs[0], nil
}

// ── Library Store ───────────────────────────────────────────

const libraryColumns = `id, user_id, filename, content, summary, summary_status, created_at`

func scanLibraryItem(row pgx.Row) (*models.LibraryItem, error) {
	var item models.LibraryItem
	err := row.Scan(&item.ID, &item.UserID, &item.Filename, &item.Content,
		&item.Summary, &item.SummaryStatus, &item.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *PostgresStore) GetLibraryItem(ctx context.Context, userID, id string) (*models.LibraryItem, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+libraryColumns+` FROM sofia_library_items
		WHERE user_id = $1 AND id = $2`, userID, id)
	item, err := scanLibraryItem(row)
	if err == pgx.ErrNoRows {
		return nil, &ErrNotFound{Entity: "library item", Key: id}
	}
	return item, err
}

func (s *PostgresStore) CreateLibraryItem(ctx context.Context, item *models.LibraryItem) error {
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sofia_library_items (`+libraryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		item.ID, item.UserID, item.Filename, item.Content,
		item.Summary, item.SummaryStatus, item.CreatedAt)
	return err
}

func (s *PostgresStore) UpdateLibraryItem(ctx context.Context, item *models.LibraryItem) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sofia_library_items SET filename = $3, content = $4, summary = $5, summary_status = $6
		WHERE user_id = $1 AND id = $2`,
		item.UserID, item.ID, item.Filename, item.Content, item.Summary, item.SummaryStatus)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "library item", Key: item.ID}
	}
	return nil
}

func (s *PostgresStore) DeleteLibraryItem(ctx context.Context, userID, id string) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM sofia_library_items WHERE user_id = $1 AND id = $2`, userID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "library item", Key: id}
	}
	return nil
}

func (s *PostgresStore) ListLibraryItems(ctx context.Context, userID string) ([]models.LibraryItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+libraryColumns+` FROM sofia_library_items
		WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.LibraryItem
	for rows.Next() {
		item, err := scanLibraryItem(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *item)
	}
	return result, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLikePattern escapes ILIKE wildcards so a search token matches
// literally, the same way the in-memory store's substring match does.
func escapeLikePattern(token string) string {
	return likeEscaper.Replace(token)
}

func (s *PostgresStore) SearchLibrary(ctx context.Context, userID string, tokens []string, limit int) ([]models.LibraryItem, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 3
	}

	// Every token must be present, in any order, case-insensitive.
	var sb strings.Builder
	sb.WriteString(`SELECT ` + libraryColumns + ` FROM sofia_library_items WHERE user_id = $1`)
	args := []interface{}{userID}
	for i, tok := range tokens {
		sb.WriteString(fmt.Sprintf(" AND content ILIKE $%d", i+2))
		args = append(args, "%"+escapeLikePattern(tok)+"%")
	}
	sb.WriteString(fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d", limit))

	rows, err := s.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.LibraryItem
	for rows.Next() {
		item, err := scanLibraryItem(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *item)
	}
	return result, rows.Err()
}
