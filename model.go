package docrag

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flarexio/docrag/answer"
	"github.com/flarexio/docrag/chunker"
	"github.com/flarexio/docrag/ingest"
	"github.com/flarexio/docrag/retrieval"
	"github.com/flarexio/docrag/vector"
)

var (
	ErrEmptyQuery      = errors.New("query is empty")
	ErrInvalidFileName = errors.New("invalid file name")
	ErrInvalidConfig   = errors.New("invalid config")
	ErrUnknownEmbedder = errors.New("unknown embedder type")
	ErrUnknownModel    = errors.New("unknown completion type")
)

const (
	DefaultCollectionName  = "documents"
	DefaultSourceDirectory = "uploads"
	DefaultSampleSize      = 3
)

type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	str := d.Duration().String()
	return json.Marshal(str)
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	duration, err := time.ParseDuration(str)
	if err != nil {
		return err
	}

	*d = Duration(duration)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.Duration().String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var str string
	if err := value.Decode(&str); err != nil {
		return err
	}

	duration, err := time.ParseDuration(str)
	if err != nil {
		return err
	}

	*d = Duration(duration)
	return nil
}

type EmbedderType string

const (
	EmbedderTypeOpenAI  EmbedderType = "openai"
	EmbedderTypeHashing EmbedderType = "hashing"
)

type CompletionType string

const (
	CompletionTypeOpenAI CompletionType = "openai"
)

type Config struct {
	SourceDirectory string            `json:"source_directory" yaml:"source_directory"`
	CollectionName  string            `json:"collection_name" yaml:"collection_name"`
	ChunkSize       int               `json:"chunk_size" yaml:"chunk_size"`
	ChunkOverlap    int               `json:"chunk_overlap" yaml:"chunk_overlap"`
	SearchLimit     int               `json:"search_limit" yaml:"search_limit"`
	ScoreThreshold  float32           `json:"score_threshold" yaml:"score_threshold"`
	IDStrategy      ingest.IDStrategy `json:"id_strategy" yaml:"id_strategy"`
	Embedder        EmbedderConfig    `json:"embedder" yaml:"embedder"`
	Completion      CompletionConfig  `json:"completion" yaml:"completion"`
	Answer          AnswerConfig      `json:"answer" yaml:"answer"`
	Vector          VectorConfig      `json:"vector" yaml:"vector"`
}

type EmbedderConfig struct {
	Type       EmbedderType `json:"type" yaml:"type"`
	BaseURL    string       `json:"base_url" yaml:"base_url"`
	APIKeyEnv  string       `json:"api_key_env" yaml:"api_key_env"`
	Model      string       `json:"model" yaml:"model"`
	Dimension  int          `json:"dimension" yaml:"dimension"`
	BatchSize  int          `json:"batch_size" yaml:"batch_size"`
	Timeout    Duration     `json:"timeout" yaml:"timeout"`
	MaxRetries int          `json:"max_retries" yaml:"max_retries"`
}

// APIKey reads the key from the configured environment variable.
func (cfg EmbedderConfig) APIKey() string {
	return os.Getenv(cfg.APIKeyEnv)
}

type CompletionConfig struct {
	Type        CompletionType `json:"type" yaml:"type"`
	BaseURL     string         `json:"base_url" yaml:"base_url"`
	APIKeyEnv   string         `json:"api_key_env" yaml:"api_key_env"`
	Model       string         `json:"model" yaml:"model"`
	Temperature float64        `json:"temperature" yaml:"temperature"`
	Timeout     Duration       `json:"timeout" yaml:"timeout"`
	MaxRetries  int            `json:"max_retries" yaml:"max_retries"`
}

func (cfg CompletionConfig) APIKey() string {
	return os.Getenv(cfg.APIKeyEnv)
}

type AnswerConfig struct {
	ShortCircuitOnEmptyContext bool `json:"short_circuit_on_empty_context" yaml:"short_circuit_on_empty_context"`
}

type VectorConfig struct {
	Backend    vector.Backend `json:"backend" yaml:"backend"`
	Persistent bool           `json:"persistent" yaml:"persistent"`
	Path       string         `json:"path" yaml:"path"`
	URL        string         `json:"url" yaml:"url"`
	APIKey     string         `json:"api_key" yaml:"api_key"`
	Timeout    Duration       `json:"timeout" yaml:"timeout"`
	HNSWEf     int            `json:"hnsw_ef" yaml:"hnsw_ef"`
}

func (cfg VectorConfig) StoreConfig() vector.Config {
	return vector.Config{
		Backend:    cfg.Backend,
		Persistent: cfg.Persistent,
		Path:       cfg.Path,
		URL:        cfg.URL,
		APIKey:     cfg.APIKey,
		Timeout:    cfg.Timeout.Duration(),
		HNSWEf:     cfg.HNSWEf,
	}
}

// DefaultConfig returns the settings used for any field a config file
// leaves out.
func DefaultConfig() Config {
	return Config{
		SourceDirectory: DefaultSourceDirectory,
		CollectionName:  DefaultCollectionName,
		ChunkSize:       chunker.DefaultSize,
		ChunkOverlap:    chunker.DefaultOverlap,
		SearchLimit:     retrieval.DefaultLimit,
		ScoreThreshold:  retrieval.DefaultScoreThreshold,
		IDStrategy:      ingest.IDSequential,
		Embedder: EmbedderConfig{
			Type:       EmbedderTypeOpenAI,
			APIKeyEnv:  "OPENAI_API_KEY",
			Model:      "text-embedding-3-small",
			BatchSize:  ingest.DefaultBatchSize,
			Timeout:    Duration(30 * time.Second),
			MaxRetries: 3,
		},
		Completion: CompletionConfig{
			Type:        CompletionTypeOpenAI,
			APIKeyEnv:   "OPENAI_API_KEY",
			Model:       "gpt-4o-mini",
			Temperature: answer.DefaultTemperature,
			Timeout:     Duration(60 * time.Second),
			MaxRetries:  3,
		},
		Vector: VectorConfig{
			Backend: vector.BackendChromem,
			Timeout: Duration(15 * time.Second),
		},
	}
}

func (cfg Config) Validate() error {
	if err := chunker.Validate(cfg.ChunkSize, cfg.ChunkOverlap); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if cfg.CollectionName == "" {
		return fmt.Errorf("%w: collection_name is required", ErrInvalidConfig)
	}

	if cfg.SourceDirectory == "" {
		return fmt.Errorf("%w: source_directory is required", ErrInvalidConfig)
	}

	if cfg.SearchLimit < 0 {
		return fmt.Errorf("%w: search_limit must not be negative", ErrInvalidConfig)
	}

	if cfg.ScoreThreshold < -1 || cfg.ScoreThreshold > 1 {
		return fmt.Errorf("%w: score_threshold must be within [-1, 1]", ErrInvalidConfig)
	}

	if _, err := ingest.ParseIDStrategy(string(cfg.IDStrategy)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	switch cfg.Embedder.Type {
	case EmbedderTypeOpenAI, EmbedderTypeHashing:
	default:
		return fmt.Errorf("%w: %w: %s", ErrInvalidConfig, ErrUnknownEmbedder, cfg.Embedder.Type)
	}

	if cfg.Embedder.BatchSize < 0 || cfg.Embedder.Dimension < 0 {
		return fmt.Errorf("%w: embedder batch_size and dimension must not be negative", ErrInvalidConfig)
	}

	switch cfg.Completion.Type {
	case CompletionTypeOpenAI:
	default:
		return fmt.Errorf("%w: %w: %s", ErrInvalidConfig, ErrUnknownModel, cfg.Completion.Type)
	}

	switch cfg.Vector.Backend {
	case vector.BackendChromem:
		if cfg.Vector.Persistent && cfg.Vector.Path == "" {
			return fmt.Errorf("%w: vector.path is required for a persistent store", ErrInvalidConfig)
		}

	case vector.BackendQdrant:
		if cfg.Vector.URL == "" {
			return fmt.Errorf("%w: vector.url is required for qdrant", ErrInvalidConfig)
		}

	default:
		return fmt.Errorf("%w: %w: %s", ErrInvalidConfig, vector.ErrUnknownBackend, cfg.Vector.Backend)
	}

	return nil
}

type FileInfo struct {
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

type CollectionInfo struct {
	Name      string         `json:"name"`
	Count     int            `json:"count"`
	Dimension int            `json:"dimension"`
	Embedder  string         `json:"embedder"`
	Sample    []vector.Point `json:"sample"`
}
