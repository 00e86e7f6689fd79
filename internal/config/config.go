package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"qvrag/internal/domain"
	"qvrag/internal/engine"
)

// EngineConfig configures chunking, the collection and query defaults.
type EngineConfig struct {
	CollectionName string `yaml:"collection_name"`
	ChunkSize      int    `yaml:"chunk_size"`
	ChunkOverlap   int    `yaml:"chunk_overlap"`
	DefaultTopK    int    `yaml:"default_top_k"`
	LoadWorkers    int    `yaml:"load_workers"`
}

// HashingEmbedderConfig configures the offline hashing embedder.
type HashingEmbedderConfig struct {
	Dimensions int `yaml:"dimensions"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	Dimensions  int    `yaml:"dimensions"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	BatchSize   int    `yaml:"batch_size"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type      string                `yaml:"type"`
	CacheSize int                   `yaml:"cache_size"`
	Hashing   HashingEmbedderConfig `yaml:"hashing"`
	OpenAI    OpenAIEmbedderConfig  `yaml:"openai"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type   string       `yaml:"type"`
	SQLite SQLiteConfig `yaml:"sqlite"`
	Qdrant QdrantConfig `yaml:"qdrant"`
}

// SQLiteConfig locates the persistent store and tunes its HNSW graph.
type SQLiteConfig struct {
	Path         string `yaml:"path"`
	HNSWM        int    `yaml:"hnsw_m"`
	HNSWEfSearch int    `yaml:"hnsw_ef_search"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
// The collection is engine.collection_name.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Engine      EngineConfig      `yaml:"engine"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
// Keys missing from the file keep their default values.
func Load(path string) (*AppConfig, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidConfiguration, "parse config", path, err)
	}
	applyConfigDefaults(cfg)
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/qvrag/config.yaml.
// If neither exists, it writes defaults to ~/.config/qvrag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := DefaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// DefaultUserConfigPath returns ~/.config/qvrag/config.yaml.
func DefaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "qvrag", "config.yaml"), nil
}

// Validate checks option ranges and component types.
func (c *AppConfig) Validate() error {
	if err := c.EngineOptions().Validate(); err != nil {
		return err
	}
	const op = "validate config"
	switch c.Embedder.Type {
	case "hashing", "openai":
	default:
		return domain.Errorf(domain.ErrInvalidConfiguration, op, "", "unknown embedder type %q", c.Embedder.Type)
	}
	switch c.VectorStore.Type {
	case "memory":
	case "sqlite":
		if c.VectorStore.SQLite.Path == "" {
			return domain.Errorf(domain.ErrInvalidConfiguration, op, "", "vector_store.sqlite.path is empty")
		}
	case "qdrant":
		if c.VectorStore.Qdrant.URL == "" {
			return domain.Errorf(domain.ErrInvalidConfiguration, op, "", "vector_store.qdrant.url is empty")
		}
	default:
		return domain.Errorf(domain.ErrInvalidConfiguration, op, "", "unknown vector store type %q", c.VectorStore.Type)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return domain.Errorf(domain.ErrInvalidConfiguration, op, "", "unknown log format %q", c.Logging.Format)
	}
	return nil
}

// EngineOptions converts the engine section into engine.Config.
func (c *AppConfig) EngineOptions() engine.Config {
	return engine.Config{
		CollectionName: c.Engine.CollectionName,
		ChunkSize:      c.Engine.ChunkSize,
		ChunkOverlap:   c.Engine.ChunkOverlap,
		DefaultTopK:    c.Engine.DefaultTopK,
		LoadWorkers:    c.Engine.LoadWorkers,
	}
}

// OpenAITimeout returns the embedder request timeout.
func (c *AppConfig) OpenAITimeout() time.Duration {
	return time.Duration(c.Embedder.OpenAI.TimeoutSecs) * time.Second
}

// QdrantTimeout returns the Qdrant request timeout.
func (c *AppConfig) QdrantTimeout() time.Duration {
	return time.Duration(c.VectorStore.Qdrant.TimeoutSecs) * time.Second
}

func (c *AppConfig) String() string {
	return fmt.Sprintf("collection=%s embedder=%s store=%s chunk=%d/%d",
		c.Engine.CollectionName, c.Embedder.Type, c.VectorStore.Type, c.Engine.ChunkSize, c.Engine.ChunkOverlap)
}

func defaultConfig() *AppConfig {
	e := engine.DefaultConfig()
	cfg := &AppConfig{
		Engine: EngineConfig{
			CollectionName: e.CollectionName,
			ChunkSize:      e.ChunkSize,
			ChunkOverlap:   e.ChunkOverlap,
			DefaultTopK:    e.DefaultTopK,
			LoadWorkers:    e.LoadWorkers,
		},
		Embedder: EmbedderConfig{
			Type:      "hashing",
			CacheSize: 1024,
			Hashing:   HashingEmbedderConfig{Dimensions: 512},
		},
		VectorStore: VectorStoreConfig{Type: "sqlite"},
		Logging:     LoggingConfig{Level: "info", Format: "text"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Engine.LoadWorkers <= 0 {
		cfg.Engine.LoadWorkers = 4
	}
	if cfg.Embedder.Hashing.Dimensions <= 0 {
		cfg.Embedder.Hashing.Dimensions = 512
	}
	oa := &cfg.Embedder.OpenAI
	if oa.BaseURL == "" {
		oa.BaseURL = "https://api.openai.com/v1"
	}
	if oa.APIKeyEnv == "" {
		oa.APIKeyEnv = "OPENAI_API_KEY"
	}
	if oa.Model == "" {
		oa.Model = "text-embedding-3-small"
	}
	if oa.TimeoutSecs == 0 {
		oa.TimeoutSecs = 30
	}
	if oa.BatchSize == 0 {
		oa.BatchSize = 32
	}
	sq := &cfg.VectorStore.SQLite
	if sq.Path == "" {
		sq.Path = filepath.Join(".qvrag", "store.db")
	}
	if sq.HNSWM == 0 {
		sq.HNSWM = 16
	}
	if sq.HNSWEfSearch == 0 {
		sq.HNSWEfSearch = 64
	}
	qd := &cfg.VectorStore.Qdrant
	if qd.URL == "" {
		qd.URL = "http://localhost:6333"
	}
	if qd.TimeoutSecs == 0 {
		qd.TimeoutSecs = 15
	}
}
