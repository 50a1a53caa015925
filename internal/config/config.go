package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	VariantDecisionSupport = "decision_support"
	VariantQA              = "qa"
)

var (
	ErrMissingAPIKey  = errors.New("LLM_API_KEY is not set")
	ErrInvalidVariant = errors.New("APP_VARIANT must be decision_support or qa")
)

type Config struct {
	Port          string
	AllowedOrigin string
	// Completion endpoint
	APIKey     string
	BaseURL    string
	Model      string
	LLMTimeout time.Duration
	// Which follow-up step the UI offers
	Variant     string
	PromptsFile string
	// Sessions and uploads
	SessionTTL     time.Duration
	MaxUploadBytes int64
	// Optional call journal
	DatabaseURL   string
	MigrationsDir string
	// Logging
	LogLevel string
	LogFile  string
}

// Load reads configuration from the environment after merging .env and any
// extra env files. Variables already set in the environment win.
func Load(envFiles ...string) Config {
	for _, f := range append([]string{".env"}, envFiles...) {
		if f == "" {
			continue
		}
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("failed to load env file", "file", f, "error", err)
		}
	}
	cfg := Config{
		Port:           getEnvDefault("PORT", "8080"),
		AllowedOrigin:  getEnvDefault("ALLOWED_ORIGIN", "*"),
		APIKey:         firstEnv("LLM_API_KEY", "GROQ_API_KEY", "OPENAI_API_KEY"),
		BaseURL:        getEnvDefault("LLM_BASE_URL", "https://api.groq.com/openai/v1"),
		Model:          getEnvDefault("LLM_MODEL", "llama3-groq-70b-8192-tool-use-preview"),
		LLMTimeout:     getEnvDurationDefault("LLM_TIMEOUT", 60*time.Second),
		Variant:        strings.ToLower(getEnvDefault("APP_VARIANT", VariantDecisionSupport)),
		PromptsFile:    os.Getenv("PROMPTS_FILE"),
		SessionTTL:     getEnvDurationDefault("SESSION_TTL", 30*time.Minute),
		MaxUploadBytes: getEnvInt64Default("MAX_UPLOAD_BYTES", 10<<20),
		DatabaseURL:    os.Getenv("DB_URL"),
		MigrationsDir:  getEnvDefault("MIGRATIONS_DIR", "./migrations"),
		LogLevel:       getEnvDefault("LOG_LEVEL", "info"),
		LogFile:        os.Getenv("LOG_FILE"),
	}
	if cfg.APIKey == "" {
		slog.Warn("LLM_API_KEY is not set; the server will refuse to start until provided")
	}
	return cfg
}

// Validate reports configuration errors that must stop startup.
func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return ErrMissingAPIKey
	}
	if c.Variant != VariantDecisionSupport && c.Variant != VariantQA {
		return fmt.Errorf("%w: got %q", ErrInvalidVariant, c.Variant)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL)
	}
	return nil
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func getEnvDurationDefault(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
		slog.Warn("ignoring invalid duration", "key", key, "value", v)
	}
	return def
}

func getEnvInt64Default(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return n
		}
		slog.Warn("ignoring invalid integer", "key", key, "value", v)
	}
	return def
}
