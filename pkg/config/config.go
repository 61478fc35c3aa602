// Package config provides unified configuration for the chatlens pipeline.
// All binaries load the same chatlens.yaml so that parsing, chunking, and
// indexing settings stay consistent between the analyzer, the processing
// worker, and the chat server.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the unified chatlens configuration
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Milvus    MilvusConfig    `yaml:"milvus"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Insights  InsightsConfig  `yaml:"insights"`
	Parser    ParserConfig    `yaml:"parser"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Server    ServerConfig    `yaml:"server"`
}

type DatabaseConfig struct {
	SQLite string `yaml:"sqlite"`
}

type MilvusConfig struct {
	Address    string             `yaml:"address"`
	Collection string             `yaml:"collection"`
	Index      MilvusIndexConfig  `yaml:"index"`
	Search     MilvusSearchConfig `yaml:"search"`
}

type MilvusIndexConfig struct {
	Type           string `yaml:"type"`
	Metric         string `yaml:"metric"`
	M              int    `yaml:"m"`
	EfConstruction int    `yaml:"ef_construction"`
}

type MilvusSearchConfig struct {
	Ef int `yaml:"ef"`
}

// EmbeddingConfig selects and tunes the embedding backend. Provider is
// either "gemini" (Google AI) or "openai" (any OpenAI-compatible server).
type EmbeddingConfig struct {
	Provider    string `yaml:"provider"`
	BaseURL     string `yaml:"base_url"`
	Model       string `yaml:"model"`
	Dimension   int    `yaml:"dimension"`
	BatchSize   int    `yaml:"batch_size"`
	Concurrency int    `yaml:"concurrency"`
}

type ChunkingConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

type RetrievalConfig struct {
	Limit int `yaml:"limit"`
}

type InsightsConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Model          string `yaml:"model"`
	MaxRetries     int    `yaml:"max_retries"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	SampleSize     int    `yaml:"sample_size"`
}

// ParserConfig holds the phrase lists used by the aggregation engine.
// System phrases are substring-matched against rendered message text to
// detect service records (joins, pins, bans); apology phrases feed the
// sorry-counter. Both are locale-specific, hence configurable.
type ParserConfig struct {
	SystemPhrases  []string `yaml:"system_phrases"`
	ApologyPhrases []string `yaml:"apology_phrases"`
}

type PipelineConfig struct {
	Retries        int `yaml:"retries"`
	BackoffSeconds int `yaml:"backoff_seconds"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			SQLite: "chatlens.db",
		},
		Milvus: MilvusConfig{
			Address:    "localhost:19530",
			Collection: "chat_chunks",
			Index: MilvusIndexConfig{
				Type:           "HNSW",
				Metric:         "COSINE",
				M:              16,
				EfConstruction: 256,
			},
			Search: MilvusSearchConfig{
				Ef: 128,
			},
		},
		Embedding: EmbeddingConfig{
			Provider:    "gemini",
			BaseURL:     "http://127.0.0.1:11434/v1",
			Model:       "gemini-embedding-001",
			Dimension:   1536,
			BatchSize:   20,
			Concurrency: 4,
		},
		Chunking: ChunkingConfig{
			Size:    7,
			Overlap: 2,
		},
		Retrieval: RetrievalConfig{
			Limit: 5,
		},
		Insights: InsightsConfig{
			Enabled:        true,
			Model:          "gemini-1.5-flash",
			MaxRetries:     3,
			TimeoutSeconds: 60,
			SampleSize:     50,
		},
		Parser: ParserConfig{
			SystemPhrases: []string{
				"joined the group",
				"created the group",
				"changed the group",
				"pinned a message",
				"left the group",
				"invited",
				"banned",
			},
			ApologyPhrases: []string{
				"sorry",
				"apolog",
				"regret",
				"forgive",
				"my bad",
				"my fault",
			},
		},
		Pipeline: PipelineConfig{
			Retries:        3,
			BackoffSeconds: 2,
		},
		Server: ServerConfig{
			Addr: ":8090",
		},
	}
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default() // Start with defaults
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// LoadFromDir looks for chatlens.yaml in the given directory or parent directories
func LoadFromDir(dir string) (*Config, error) {
	current := dir
	for {
		path := filepath.Join(current, "chatlens.yaml")
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}

		parent := filepath.Dir(current)
		if parent == current {
			break // Reached root
		}
		current = parent
	}

	return nil, fmt.Errorf("chatlens.yaml not found in %s or parent directories", dir)
}

// LoadOrDefault tries to load from chatlens.yaml, falls back to defaults
func LoadOrDefault(dir string) *Config {
	cfg, err := LoadFromDir(dir)
	if err != nil {
		return Default()
	}
	return cfg
}

// LoadFromFlagOrDir loads an explicit config path if given, otherwise walks
// up from dir looking for chatlens.yaml.
func LoadFromFlagOrDir(path, dir string) (*Config, error) {
	if path != "" {
		return Load(path)
	}
	return LoadFromDir(dir)
}

// Hash returns a SHA256 hash of the configuration for change detection
func (c *Config) Hash() string {
	data, _ := yaml.Marshal(c)
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// EmbeddingIdentity returns a string identifying the embedding configuration.
// Use this to detect mismatches between index and query embeddings.
func (c *Config) EmbeddingIdentity() string {
	return fmt.Sprintf("%s:%s:%d", c.Embedding.Provider, c.Embedding.Model, c.Embedding.Dimension)
}
