package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/markdave123-py/docvault/internal/logger"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	BackendLocal = "local"
	BackendS3    = "s3"

	ProviderOllama = "ollama"
	ProviderGemini = "gemini"

	DecoderPDF     = "pdf"
	DecoderDocconv = "docconv"
)

// Model defaults per provider, used when EMBED_MODEL or GEN_MODEL is unset.
const (
	OllamaEmbedModel = "nomic-embed-text"
	OllamaGenModel   = "gemma3:1b"
	GeminiEmbedModel = "text-embedding-004"
	GeminiGenModel   = "gemini-1.5-flash"
)

// defaultModels returns the embedding and completion models of provider.
// An unknown provider gets the Ollama names; Validate rejects it anyway.
func defaultModels(provider string) (embed, gen string) {
	if provider == ProviderGemini {
		return GeminiEmbedModel, GeminiGenModel
	}
	return OllamaEmbedModel, OllamaGenModel
}

type Config struct {
	DBDriver         string
	DatabaseURL      string
	OutputDir        string
	Decoder          string
	ImageBackend     string
	AwsAccessKey     string
	AwsSecretKey     string
	AwsRegion        string
	BucketName       string
	EmbedProvider    string
	OllamaURL        string
	AIAPIKey         string
	EmbedModel       string
	GenModel         string
	EnableCompletion bool
	ChunkSize        int
	ChunkOverlap     int
	EmbedTimeout     time.Duration
	IngestWorkers    int
	WriteArtifacts   bool
	JWTSecret        string
	Port             string
	Verbose          bool
}

// LoadConfig loads the environment variables and return config
func LoadConfig() *Config {

	_ = godotenv.Load()

	provider := getEnv("EMBED_PROVIDER", ProviderOllama)
	embedModel, genModel := defaultModels(provider)

	return &Config{
		DBDriver:         getEnv("DB_DRIVER", DriverSQLite),
		DatabaseURL:      getEnv("DATABASE_URL", filepath.Join("data", "pdf_data.db")),
		OutputDir:        getEnv("OUTPUT_DIR", "extracted_content"),
		Decoder:          getEnv("DECODER", DecoderPDF),
		ImageBackend:     getEnv("IMAGE_BACKEND", BackendLocal),
		AwsAccessKey:     getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey:     getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:        getEnv("AWS_REGION", "us-east-2"),
		BucketName:       getEnv("BUCKET_NAME", "docvault-images"),
		EmbedProvider:    provider,
		OllamaURL:        getEnv("OLLAMA_URL", "http://localhost:11434"),
		AIAPIKey:         getEnv("GEMINI_API_KEY", ""),
		EmbedModel:       getEnv("EMBED_MODEL", embedModel),
		GenModel:         getEnv("GEN_MODEL", genModel),
		EnableCompletion: getEnvBool("ENABLE_COMPLETION", false),
		ChunkSize:        getEnvInt("CHUNK_SIZE", 1000),
		ChunkOverlap:     getEnvInt("CHUNK_OVERLAP", 200),
		EmbedTimeout:     getEnvDuration("EMBED_TIMEOUT", 60*time.Second),
		IngestWorkers:    getEnvInt("INGEST_WORKERS", 1),
		WriteArtifacts:   getEnvBool("WRITE_ARTIFACTS", true),
		JWTSecret:        getEnv("JWT_SECRET", ""),
		Port:             getEnv("PORT", "8080"),
		Verbose:          getEnvBool("VERBOSE", false),
	}
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("DB_DRIVER %q: want %q or %q", c.DBDriver, DriverSQLite, DriverPostgres)
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL not set")
	}
	switch c.Decoder {
	case DecoderPDF, DecoderDocconv:
	default:
		return fmt.Errorf("DECODER %q: want %q or %q", c.Decoder, DecoderPDF, DecoderDocconv)
	}
	switch c.ImageBackend {
	case BackendLocal:
	case BackendS3:
		if c.AwsAccessKey == "" || c.AwsSecretKey == "" {
			return fmt.Errorf("IMAGE_BACKEND=s3 requires AWS_ACCESS_KEY and AWS_SECRET_KEY")
		}
		if c.BucketName == "" {
			return fmt.Errorf("IMAGE_BACKEND=s3 requires BUCKET_NAME")
		}
	default:
		return fmt.Errorf("IMAGE_BACKEND %q: want %q or %q", c.ImageBackend, BackendLocal, BackendS3)
	}
	switch c.EmbedProvider {
	case ProviderOllama:
	case ProviderGemini:
		if c.AIAPIKey == "" {
			return fmt.Errorf("EMBED_PROVIDER=gemini requires GEMINI_API_KEY")
		}
	default:
		return fmt.Errorf("EMBED_PROVIDER %q: want %q or %q", c.EmbedProvider, ProviderOllama, ProviderGemini)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap <= 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP must be in (0, %d), got %d", c.ChunkSize, c.ChunkOverlap)
	}
	if c.IngestWorkers <= 0 {
		return fmt.Errorf("INGEST_WORKERS must be positive, got %d", c.IngestWorkers)
	}
	return nil
}

// ImagesDir, TextDir and EquationsDir are the output subfolders.
func (c *Config) ImagesDir() string    { return filepath.Join(c.OutputDir, "images") }
func (c *Config) TextDir() string      { return filepath.Join(c.OutputDir, "text") }
func (c *Config) EquationsDir() string { return filepath.Join(c.OutputDir, "equations") }

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logger.Warn("Config: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvBool(key string, def bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		logger.Warn("Config: %s=%q not a bool, using default %t", key, v, def)
		return def
	}
	return b
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		logger.Warn("Config: %s=%q not a duration, using default %s", key, v, def)
		return def
	}
	return d
}
