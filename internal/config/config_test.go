package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"LLM_API_KEY", "GROQ_API_KEY", "OPENAI_API_KEY", "LLM_BASE_URL", "LLM_MODEL",
		"LLM_TIMEOUT", "APP_VARIANT", "PROMPTS_FILE", "PORT", "SESSION_TTL",
		"MAX_UPLOAD_BYTES", "DB_URL", "LOG_FILE", "LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg := Load("does-not-exist.env")

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "https://api.groq.com/openai/v1", cfg.BaseURL)
	assert.Equal(t, "llama3-groq-70b-8192-tool-use-preview", cfg.Model)
	assert.Equal(t, VariantDecisionSupport, cfg.Variant)
	assert.Equal(t, 60*time.Second, cfg.LLMTimeout)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Equal(t, int64(10<<20), cfg.MaxUploadBytes)
	assert.Empty(t, cfg.APIKey)
}

func TestLoadAPIKeyFallbacks(t *testing.T) {
	clearEnv(t)
	t.Setenv("GROQ_API_KEY", "gsk_test")
	t.Setenv("OPENAI_API_KEY", "sk_other")

	cfg := Load("does-not-exist.env")
	assert.Equal(t, "gsk_test", cfg.APIKey)

	t.Setenv("LLM_API_KEY", "primary")
	cfg = Load("does-not-exist.env")
	assert.Equal(t, "primary", cfg.APIKey)
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("LLM_TIMEOUT", "soon")
	t.Setenv("MAX_UPLOAD_BYTES", "lots")

	cfg := Load("does-not-exist.env")
	assert.Equal(t, 60*time.Second, cfg.LLMTimeout)
	assert.Equal(t, int64(10<<20), cfg.MaxUploadBytes)
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	base := Load("does-not-exist.env")

	t.Run("missing credential", func(t *testing.T) {
		err := base.Validate()
		require.ErrorIs(t, err, ErrMissingAPIKey)
	})

	t.Run("unknown variant", func(t *testing.T) {
		cfg := base
		cfg.APIKey = "k"
		cfg.Variant = "chat"
		require.ErrorIs(t, cfg.Validate(), ErrInvalidVariant)
	})

	t.Run("qa variant ok", func(t *testing.T) {
		cfg := base
		cfg.APIKey = "k"
		cfg.Variant = VariantQA
		require.NoError(t, cfg.Validate())
	})

	t.Run("non-positive upload cap", func(t *testing.T) {
		cfg := base
		cfg.APIKey = "k"
		cfg.MaxUploadBytes = 0
		require.Error(t, cfg.Validate())
	})
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("LLM_MODEL")
	os.Unsetenv("APP_VARIANT")
	t.Setenv("PORT", "9000")

	path := filepath.Join(t.TempDir(), "audit.env")
	require.NoError(t, os.WriteFile(path, []byte("LLM_MODEL=llama-3.3-70b-versatile\nAPP_VARIANT=QA\nPORT=1234\n"), 0o600))

	cfg := Load(path)
	assert.Equal(t, "llama-3.3-70b-versatile", cfg.Model)
	assert.Equal(t, VariantQA, cfg.Variant)
	// the process environment wins over the file
	assert.Equal(t, "9000", cfg.Port)
}
