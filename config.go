package studyforge

import (
	"os"
	"path/filepath"
	"time"

	"github.com/bbiangul/studyforge/llm"
)

// Config holds all configuration for the pipeline. See SPEC_FULL.md §6 for
// the enumerated configuration surface.
type Config struct {
	// DBPath is the full path to the SQLite database file.
	// If empty, defaults to ~/.studyforge/<DBName>.db
	DBPath string `json:"db_path" yaml:"db_path"`

	// DBName is the name for the database (used when DBPath is empty).
	DBName string `json:"db_name" yaml:"db_name"`

	// StorageDir controls where the database is created when DBPath
	// is not explicitly set. "home" (default) uses ~/.studyforge/,
	// "local" uses the current working directory.
	StorageDir string `json:"storage_dir" yaml:"storage_dir"`

	// LLM endpoint configuration. Chat and Embedding may point at the
	// same or different providers/models.
	LLM       llm.Config `json:"llm" yaml:"llm"`
	Embedding llm.Config `json:"embedding" yaml:"embedding"`

	// Retrieval configures the External Retrieval Router and the
	// local-RAG-priority policy (SPEC_FULL.md §6).
	Retrieval RetrievalConfig `json:"retrieval" yaml:"retrieval"`

	// Expansion configures the Expander agent and the revision loop.
	Expansion ExpansionConfig `json:"expansion" yaml:"expansion"`

	// Streaming controls whether analyze_page emits ProgressEvents or
	// only returns the final PageAnalysis.
	Streaming StreamingConfig `json:"streaming" yaml:"streaming"`

	// VectorStore configures chunking and embedding parameters.
	VectorStore VectorStoreConfig `json:"vector_store" yaml:"vector_store"`

	// Timeouts, one per remote-call category (SPEC_FULL.md §5).
	LLMTimeout      time.Duration `json:"llm_timeout" yaml:"llm_timeout"`
	EmbeddingTimeout time.Duration `json:"embedding_timeout" yaml:"embedding_timeout"`
	SearchTimeout   time.Duration `json:"search_timeout" yaml:"search_timeout"`
	PageTimeout     time.Duration `json:"page_timeout" yaml:"page_timeout"`
}

// RetrievalConfig is the `retrieval.*` configuration surface.
type RetrievalConfig struct {
	PreferredSources []string `json:"preferred_sources" yaml:"preferred_sources"`
	MaxResults       int      `json:"max_results" yaml:"max_results"`
	LocalRAGPriority bool     `json:"local_rag_priority" yaml:"local_rag_priority"`
	MinScore         float64  `json:"min_score" yaml:"min_score"`
}

// ExpansionConfig is the `expansion.*` configuration surface.
type ExpansionConfig struct {
	MaxRevisions    int     `json:"max_revisions" yaml:"max_revisions"`
	MinGapPriority  int     `json:"min_gap_priority" yaml:"min_gap_priority"`
	Temperature     float64 `json:"temperature" yaml:"temperature"`
}

// StreamingConfig is the `streaming.*` configuration surface.
type StreamingConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// VectorStoreConfig is the `vector_store.*` configuration surface.
type VectorStoreConfig struct {
	Path           string `json:"path" yaml:"path"`
	ChunkSize      int    `json:"chunk_size" yaml:"chunk_size"`
	ChunkOverlap   int    `json:"chunk_overlap" yaml:"chunk_overlap"`
	EmbeddingModel string `json:"embedding_model" yaml:"embedding_model"`
	EmbeddingDim   int    `json:"embedding_dim" yaml:"embedding_dim"`
}

// DefaultConfig returns a Config with sensible defaults for local inference
// against an Ollama endpoint.
func DefaultConfig() Config {
	return Config{
		DBName:     "studyforge",
		StorageDir: "home",
		LLM: llm.Config{
			Provider: "ollama",
			Model:    "llama3.1:8b",
			BaseURL:  "http://localhost:11434",
		},
		Embedding: llm.Config{
			Provider: "ollama",
			Model:    "nomic-embed-text",
			BaseURL:  "http://localhost:11434",
		},
		Retrieval: RetrievalConfig{
			PreferredSources: []string{"academic", "encyclopedia", "web"},
			MaxResults:       5,
			LocalRAGPriority: true,
			MinScore:         0.6,
		},
		Expansion: ExpansionConfig{
			MaxRevisions:   2,
			MinGapPriority: 3,
			Temperature:    0.5,
		},
		Streaming: StreamingConfig{Enabled: true},
		VectorStore: VectorStoreConfig{
			ChunkSize:      1200,
			ChunkOverlap:   150,
			EmbeddingModel: "nomic-embed-text",
			EmbeddingDim:   768,
		},
		LLMTimeout:       60 * time.Second,
		EmbeddingTimeout: 30 * time.Second,
		SearchTimeout:    10 * time.Second,
		PageTimeout:      5 * time.Minute,
	}
}

// resolveDBPath computes the final database path from config fields.
func (c *Config) resolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}

	name := c.DBName
	if name == "" {
		name = "studyforge"
	}

	switch c.StorageDir {
	case "local", "cwd":
		return name + ".db"
	default: // "home" or empty
		home, err := os.UserHomeDir()
		if err != nil {
			return name + ".db" // fallback to cwd
		}
		dir := filepath.Join(home, ".studyforge")
		return filepath.Join(dir, name+".db")
	}
}
