package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EnvDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("JWT_SECRET", "0123456789abcdef0123")
	t.Setenv("CONFIG_PATH", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr)
	assert.Equal(t, ProviderXAI, cfg.AI.Provider)
	assert.Equal(t, 20*time.Second, cfg.AI.Timeout)
	assert.Equal(t, "dev-business-id", cfg.Pipeline.DefaultBusinessID)
	assert.Equal(t, 5, cfg.Pipeline.HistoryLimit)
	assert.Equal(t, 4, cfg.Queue.Workers)
	assert.Equal(t, time.Minute, cfg.Queue.RecoverInterval)
	assert.Equal(t, "my_secret_token", cfg.WhatsApp.VerifyToken)
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "config.yaml")
	yaml := "auth:\n  jwt_secret: yaml-secret-0123456789\nai:\n  provider: groq\nqueue:\n  workers: 2\n  size: 8\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ProviderGroq, cfg.AI.Provider)
	assert.Equal(t, 2, cfg.Queue.Workers)
	assert.Equal(t, 8, cfg.Queue.Size)
}

func TestLoad_ShortSecret(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("JWT_SECRET", "short")
	t.Setenv("CONFIG_PATH", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt secret")
}

func TestValidate_UnknownProvider(t *testing.T) {
	cfg := Config{
		Auth:  AuthConfig{JWTSecret: "0123456789abcdef"},
		AI:    AIConfig{Provider: "openrouter"},
		Queue: QueueConfig{Workers: 1, Size: 1},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openrouter")
}

func TestAIConfig_Profile(t *testing.T) {
	p, ok := AIConfig{Provider: "GROQ"}.Profile()
	require.True(t, ok)
	assert.Equal(t, "https://api.groq.com/openai/v1", p.BaseURL)
	assert.Equal(t, "llama-3.3-70b-versatile", p.Model)

	p, ok = AIConfig{Provider: "xai", BaseURL: "http://localhost:9999/v1/", Model: "grok-2"}.Profile()
	require.True(t, ok)
	assert.Equal(t, "http://localhost:9999/v1", p.BaseURL)
	assert.Equal(t, "grok-2", p.Model)
}

func TestAIConfig_Enabled(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"", false},
		{"   ", false},
		{"sk-placeholder", false},
		{"short", false},
		{"your_openai_key_here", false},
		{"gsk_live_0123456789", true},
		{"xai-0123456789abcdef", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AIConfig{APIKey: tt.key}.Enabled(), "key %q", tt.key)
	}
}

func TestWhatsAppConfig_Live(t *testing.T) {
	assert.False(t, WhatsAppConfig{}.Live())
	assert.False(t, WhatsAppConfig{AccessToken: "mock-token", PhoneNumberID: "1"}.Live())
	assert.False(t, WhatsAppConfig{AccessToken: "your_whatsapp_token", PhoneNumberID: "1"}.Live())
	assert.False(t, WhatsAppConfig{AccessToken: "EAAG-real"}.Live())
	assert.True(t, WhatsAppConfig{AccessToken: "EAAG-real", PhoneNumberID: "1"}.Live())
}
