package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL  string
	AIAPIKey     string
	EmbedModel   string
	EmbedDim     int
	JWTSecret    string
	Port         string
	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string
	ChunkSize    int
	ChunkOverlap int
	CorsOrigins  []string
	Debug        bool
}

// LoadConfig loads the environment (including a .env file if present)
// and returns the config. Validation happens separately so the ingest
// CLI can report missing settings with a proper exit code.
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		AIAPIKey:     getEnv("GEMINI_API_KEY", ""),
		EmbedModel:   getEnv("EMBED_MODEL", "text-embedding-004"),
		EmbedDim:     getEnvInt("EMBED_DIM", 768),
		JWTSecret:    getEnv("JWT_SECRET", ""),
		Port:         getEnv("PORT", "8080"),
		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		BucketName:   getEnv("BUCKET_NAME", ""),
		ChunkSize:    getEnvInt("CHUNK_SIZE", 4000),
		ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 200),
		CorsOrigins:  splitList(getEnv("CORS_ORIGINS", "http://localhost:3000")),
		Debug:        getEnv("DEBUG", "") == "true",
	}
}

// ValidateServer checks everything the API server needs before any I/O.
func (c *Config) ValidateServer() error {
	if err := c.ValidateIngest(); err != nil {
		return err
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET not set")
	}
	return nil
}

// ValidateIngest checks the settings required to ingest documents:
// the store endpoint/credential and the embeddings credential.
func (c *Config) ValidateIngest() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL not set")
	}
	if c.AIAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY not set")
	}
	return nil
}

// ObjectStoreConfigured reports whether the optional S3 archive is usable.
func (c *Config) ObjectStoreConfigured() bool {
	return c.AwsAccessKey != "" && c.AwsSecretKey != "" && c.BucketName != ""
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}
