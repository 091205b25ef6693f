// Package config loads docqa configuration from an optional YAML file
// overlaid with environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no explicit config path is given.
const DefaultPath = "docqa.yaml"

// Store backends.
const (
	StoreQdrant   = "qdrant"
	StorePgvector = "pgvector"
	StoreMemory   = "memory"
)

// Generation backends.
const (
	GeneratorOllama = "ollama"
	GeneratorOpenAI = "openai"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// ChunkingConfig controls how extracted text is split.
type ChunkingConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// RetrievalConfig controls how many chunks are retrieved per question and how
// similarity is measured.
type RetrievalConfig struct {
	TopK   int    `yaml:"top_k"`
	Metric string `yaml:"metric"`
}

// EmbeddingConfig configures the OpenAI-compatible embeddings endpoint.
type EmbeddingConfig struct {
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	BatchSize int    `yaml:"batch_size"`
}

// GenerationConfig configures the answer-generating model.
type GenerationConfig struct {
	Backend     string  `yaml:"backend"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
}

// QdrantConfig holds connection details for the Qdrant gRPC endpoint.
type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	APIKey     string `yaml:"api_key"`
	UseTLS     bool   `yaml:"use_tls"`
	Collection string `yaml:"collection"`
}

// PostgresConfig holds the connection string for the pgvector backend.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// StoreConfig selects the vector index backend.
type StoreConfig struct {
	Backend  string         `yaml:"backend"`
	Qdrant   QdrantConfig   `yaml:"qdrant"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// ExtractionConfig controls text extraction.
type ExtractionConfig struct {
	MinChars int `yaml:"min_chars"`
}

// GitHubConfig authenticates document fetches from GitHub. The token is
// optional; without it requests share the anonymous rate limit.
type GitHubConfig struct {
	Token string `yaml:"token"`
}

// ServerConfig controls the MCP server process.
type ServerConfig struct {
	Port string `yaml:"port"`
	// HTTP serves MCP over streamable HTTP instead of stdio.
	HTTP bool `yaml:"http"`
	// Stateless disables MCP session tracking on the HTTP transport.
	Stateless bool `yaml:"stateless"`
}

// Config is the root configuration.
type Config struct {
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Store      StoreConfig      `yaml:"store"`
	Extraction ExtractionConfig `yaml:"extraction"`
	GitHub     GitHubConfig     `yaml:"github"`
	Server     ServerConfig     `yaml:"server"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Chunking:  ChunkingConfig{Size: 1000, Overlap: 200},
		Retrieval: RetrievalConfig{TopK: 5, Metric: "cosine"},
		Embedding: EmbeddingConfig{
			Model:     "text-embedding-3-small",
			Dimension: 1536,
			BatchSize: 500,
		},
		Generation: GenerationConfig{
			Backend:     GeneratorOllama,
			Model:       "llama3:instruct",
			Temperature: 0.2,
			BaseURL:     "http://localhost:11434",
		},
		Store: StoreConfig{
			Backend: StoreQdrant,
			Qdrant: QdrantConfig{
				Host:       "localhost",
				Port:       6334,
				Collection: "docqa",
			},
		},
		Extraction: ExtractionConfig{MinChars: 100},
		Server:     ServerConfig{Port: "8080"},
	}
}

// Load reads path (if it exists) over the defaults and then applies
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Chunking.Size = getEnvInt("DOCQA_CHUNK_SIZE", c.Chunking.Size)
	c.Chunking.Overlap = getEnvInt("DOCQA_CHUNK_OVERLAP", c.Chunking.Overlap)
	c.Retrieval.TopK = getEnvInt("DOCQA_TOP_K", c.Retrieval.TopK)
	c.Retrieval.Metric = getEnv("DOCQA_SIMILARITY_METRIC", c.Retrieval.Metric)

	c.Embedding.Model = getEnv("DOCQA_EMBEDDING_MODEL", c.Embedding.Model)
	c.Embedding.Dimension = getEnvInt("DOCQA_EMBEDDING_DIMENSION", c.Embedding.Dimension)
	c.Embedding.BaseURL = getEnv("DOCQA_EMBEDDING_BASE_URL", c.Embedding.BaseURL)
	c.Embedding.APIKey = getEnv("OPENAI_API_KEY", c.Embedding.APIKey)
	c.Embedding.BatchSize = getEnvInt("DOCQA_EMBEDDING_BATCH_SIZE", c.Embedding.BatchSize)

	c.Generation.Backend = getEnv("DOCQA_LLM_BACKEND", c.Generation.Backend)
	c.Generation.Model = getEnv("DOCQA_LLM_MODEL", c.Generation.Model)
	c.Generation.Temperature = getEnvFloat("DOCQA_LLM_TEMPERATURE", c.Generation.Temperature)
	c.Generation.BaseURL = getEnv("DOCQA_LLM_BASE_URL", c.Generation.BaseURL)
	c.Generation.APIKey = getEnv("OPENAI_API_KEY", c.Generation.APIKey)

	c.Store.Backend = getEnv("DOCQA_STORE", c.Store.Backend)
	c.Store.Qdrant.Host = getEnv("QDRANT_HOST", c.Store.Qdrant.Host)
	c.Store.Qdrant.Port = getEnvInt("QDRANT_PORT", c.Store.Qdrant.Port)
	c.Store.Qdrant.APIKey = getEnv("QDRANT_API_KEY", c.Store.Qdrant.APIKey)
	c.Store.Qdrant.UseTLS = getEnv("QDRANT_USE_TLS", strconv.FormatBool(c.Store.Qdrant.UseTLS)) == "true"
	c.Store.Qdrant.Collection = getEnv("QDRANT_COLLECTION", c.Store.Qdrant.Collection)
	c.Store.Postgres.DSN = getEnv("DATABASE_URL", c.Store.Postgres.DSN)

	c.Extraction.MinChars = getEnvInt("DOCQA_MIN_CHARS", c.Extraction.MinChars)

	c.GitHub.Token = getEnv("GITHUB_TOKEN", c.GitHub.Token)

	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.HTTP = getEnv("SERVER_MODE", strconv.FormatBool(c.Server.HTTP)) == "true"
	c.Server.Stateless = getEnv("MCP_STATELESS", strconv.FormatBool(c.Server.Stateless)) == "true"
}

// usesOpenAI reports whether a base URL points at the hosted OpenAI API,
// which is the case when it is empty.
func usesOpenAI(baseURL string) bool {
	return baseURL == "" || strings.Contains(baseURL, "api.openai.com")
}

// Validate checks the configuration once at startup. Missing credentials are
// reported here rather than on first use.
func (c *Config) Validate() error {
	var errs []error

	if c.Chunking.Size <= 0 {
		errs = append(errs, fmt.Errorf("chunking.size must be positive, got %d", c.Chunking.Size))
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		errs = append(errs, fmt.Errorf("chunking.overlap must be in [0, size), got %d", c.Chunking.Overlap))
	}
	if c.Retrieval.TopK <= 0 {
		errs = append(errs, fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK))
	}
	switch c.Retrieval.Metric {
	case "cosine", "dot", "euclid":
	default:
		errs = append(errs, fmt.Errorf("retrieval.metric %q is not one of cosine, dot, euclid", c.Retrieval.Metric))
	}

	if c.Embedding.Model == "" {
		errs = append(errs, errors.New("embedding.model is required"))
	}
	if c.Embedding.Dimension <= 0 {
		errs = append(errs, fmt.Errorf("embedding.dimension must be positive, got %d", c.Embedding.Dimension))
	}
	if usesOpenAI(c.Embedding.BaseURL) && c.Embedding.APIKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is required for the hosted embeddings endpoint"))
	}

	switch c.Generation.Backend {
	case GeneratorOllama:
		if c.Generation.BaseURL == "" {
			errs = append(errs, errors.New("generation.base_url is required for ollama"))
		}
	case GeneratorOpenAI:
		if usesOpenAI(c.Generation.BaseURL) && c.Generation.APIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required for the openai generation backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("generation.backend %q is not one of ollama, openai", c.Generation.Backend))
	}
	if c.Generation.Model == "" {
		errs = append(errs, errors.New("generation.model is required"))
	}
	if c.Generation.Temperature < 0 || c.Generation.Temperature > 2 {
		errs = append(errs, fmt.Errorf("generation.temperature must be in [0, 2], got %v", c.Generation.Temperature))
	}

	switch c.Store.Backend {
	case StoreQdrant:
		if c.Store.Qdrant.Host == "" || c.Store.Qdrant.Collection == "" {
			errs = append(errs, errors.New("store.qdrant.host and store.qdrant.collection are required"))
		}
	case StorePgvector:
		if c.Store.Postgres.DSN == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the pgvector store"))
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("store.backend %q is not one of qdrant, pgvector, memory", c.Store.Backend))
	}

	if c.Extraction.MinChars < 0 {
		errs = append(errs, fmt.Errorf("extraction.min_chars must not be negative, got %d", c.Extraction.MinChars))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		var i int
		if _, err := fmt.Sscanf(v, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
