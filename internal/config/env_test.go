package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	// t.Setenv registers the restore; the unset makes LookupEnv miss.
	for _, key := range []string{
		"EMBED_MODEL", "EMBED_DIM", "PORT", "CHUNK_SIZE", "CHUNK_OVERLAP",
	} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	cfg := LoadConfig()
	assert.Equal(t, "text-embedding-004", cfg.EmbedModel)
	assert.Equal(t, 768, cfg.EmbedDim)
	assert.Equal(t, 4000, cfg.ChunkSize)
	assert.Equal(t, 200, cfg.ChunkOverlap)
}

func TestLoadConfigReadsEnvironment(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/chatppc")
	t.Setenv("GEMINI_API_KEY", "key")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("CHUNK_SIZE", "1234")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")

	cfg := LoadConfig()
	assert.Equal(t, "postgres://localhost/chatppc", cfg.DatabaseURL)
	assert.Equal(t, 1234, cfg.ChunkSize)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CorsOrigins)
}

func TestLoadConfigBadIntFallsBack(t *testing.T) {
	t.Setenv("CHUNK_SIZE", "not-a-number")
	cfg := LoadConfig()
	assert.Equal(t, 4000, cfg.ChunkSize)
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	require.Error(t, cfg.ValidateIngest())

	cfg.DatabaseURL = "postgres://localhost/chatppc"
	require.Error(t, cfg.ValidateIngest())

	cfg.AIAPIKey = "key"
	require.NoError(t, cfg.ValidateIngest())

	// The server additionally needs the admin token secret.
	require.Error(t, cfg.ValidateServer())
	cfg.JWTSecret = "secret"
	require.NoError(t, cfg.ValidateServer())
}

func TestObjectStoreConfigured(t *testing.T) {
	cfg := &Config{}
	assert.False(t, cfg.ObjectStoreConfigured())

	cfg.AwsAccessKey = "ak"
	cfg.AwsSecretKey = "sk"
	assert.False(t, cfg.ObjectStoreConfigured())

	cfg.BucketName = "chatppc-uploads"
	assert.True(t, cfg.ObjectStoreConfigured())
}
