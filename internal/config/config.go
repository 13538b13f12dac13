package config

import (
	"os"
	"strconv"
	"strings"
)

// Config holds all configuration for the Sofia orchestrator. It is built
// once at process start and passed into constructors; nothing reads the
// environment inside a request path.
type Config struct {
	Port      int
	Version   string
	Database  DatabaseConfig
	Telemetry TelemetryConfig
	Providers ProviderConfig
	Search    SearchConfig
	Documents DocumentConfig
	Retention RetentionConfig

	// AdminEmail marks the account that always bypasses quotas.
	AdminEmail string
}

type DatabaseConfig struct {
	// URL is the PostgreSQL connection string. Empty means the in-memory
	// store with JSON snapshot persistence is used instead.
	URL            string
	MaxConnections int
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

// ProviderConfig holds credentials and endpoints for the AI providers.
// A missing key degrades that provider to unavailable; it does not fail
// the process.
type ProviderConfig struct {
	GroqAPIKey   string
	GroqEndpoint string
	GroqModel    string

	GeminiAPIKey   string
	GeminiEndpoint string
	GeminiModel    string
}

type SearchConfig struct {
	SerperAPIKey   string
	SerperEndpoint string
}

// DocumentConfig configures the content extractors.
type DocumentConfig struct {
	// TranscriptEndpoint is the base URL of the YouTube transcript service.
	TranscriptEndpoint string
	TranscriptAPIKey   string

	// DocStoreEndpoint is the base URL of the remote document store used by
	// the keyword-document fetcher.
	DocStoreEndpoint string

	// Keywords maps a trigger keyword (lower case) to a stored filename.
	Keywords map[string]string
}

// RetentionConfig controls pruning of stale conversation history.
type RetentionConfig struct {
	// Days is the conversation retention window. Zero disables the janitor.
	Days int

	// ArchiveDir, when set, makes the janitor archive conversations as
	// JSONL files there before deleting them.
	ArchiveDir string

	CompressArchives bool
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:       envInt("SOFIA_PORT", 8080),
		Version:    envStr("SOFIA_VERSION", "0.4.0"),
		AdminEmail: envStr("SOFIA_ADMIN_EMAIL", ""),
		Database: DatabaseConfig{
			URL:            envStr("DATABASE_URL", ""),
			MaxConnections: envInt("DATABASE_MAX_CONNECTIONS", 25),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "sofia-orchestrator"),
		},
		Providers: ProviderConfig{
			GroqAPIKey:     envStr("GROQ_API_KEY", ""),
			GroqEndpoint:   envStr("GROQ_ENDPOINT", "https://api.groq.com/openai/v1"),
			GroqModel:      envStr("GROQ_MODEL", "llama-3.3-70b-versatile"),
			GeminiAPIKey:   envStr("GOOGLE_API_KEY", ""),
			GeminiEndpoint: envStr("GEMINI_ENDPOINT", "https://generativelanguage.googleapis.com"),
			GeminiModel:    envStr("GEMINI_MODEL", "gemini-2.0-flash"),
		},
		Search: SearchConfig{
			SerperAPIKey:   envStr("SERPER_API_KEY", ""),
			SerperEndpoint: envStr("SERPER_ENDPOINT", "https://google.serper.dev"),
		},
		Documents: DocumentConfig{
			TranscriptEndpoint: envStr("TRANSCRIPT_ENDPOINT", ""),
			TranscriptAPIKey:   envStr("YOUTUBE_API_KEY", ""),
			DocStoreEndpoint:   envStr("DOCSTORE_ENDPOINT", ""),
			Keywords:           envKeywords("SOFIA_DOC_KEYWORDS"),
		},
		Retention: RetentionConfig{
			Days:             envInt("SOFIA_RETENTION_DAYS", 0),
			ArchiveDir:       envStr("SOFIA_ARCHIVE_DIR", ""),
			CompressArchives: envBool("SOFIA_ARCHIVE_COMPRESS", false),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// envKeywords parses "keyword=filename,keyword2=filename2" pairs.
func envKeywords(key string) map[string]string {
	out := map[string]string{}
	for _, pair := range strings.Split(os.Getenv(key), ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		k = strings.ToLower(strings.TrimSpace(k))
		v = strings.TrimSpace(v)
		if k != "" && v != "" {
			out[k] = v
		}
	}
	return out
}
