package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/flarexio/docrag"
	"github.com/flarexio/docrag/completion"
	"github.com/flarexio/docrag/embedding"
	"github.com/flarexio/docrag/embedding/hashing"
	"github.com/flarexio/docrag/persistence/chromem"
	"github.com/flarexio/docrag/persistence/qdrant"
	"github.com/flarexio/docrag/vector"

	chatOpenAI "github.com/flarexio/docrag/completion/openai"
	embedOpenAI "github.com/flarexio/docrag/embedding/openai"
)

// loadEnv reads .env from the working directory and the service path.
// Variables already set in the environment win.
func loadEnv(path string) error {
	for _, file := range []string{".env", filepath.Join(path, ".env")} {
		err := godotenv.Load(file)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}

	return nil
}

// loadConfig overlays <path>/config.yaml on the defaults. A missing file
// leaves the defaults untouched.
func loadConfig(path string) (docrag.Config, error) {
	cfg := docrag.DefaultConfig()

	f, err := os.Open(filepath.Join(path, "config.yaml"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			zap.L().Warn("config not found, using defaults", zap.String("path", path))
			return cfg, nil
		}

		return cfg, err
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return cfg, err
	}

	if cfg.Vector.Persistent && cfg.Vector.Path == "" {
		cfg.Vector.Path = filepath.Join(path, "vectors")
	}

	return cfg, nil
}

func newEmbedder(cfg docrag.EmbedderConfig) (embedding.Embedder, error) {
	switch cfg.Type {
	case docrag.EmbedderTypeHashing:
		return hashing.NewEmbedder(cfg.Dimension), nil

	case docrag.EmbedderTypeOpenAI:
		apiKey := cfg.APIKey()
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: environment variable %s is not set", cfg.APIKeyEnv)
		}

		return embedOpenAI.NewClient(embedOpenAI.Config{
			BaseURL:    cfg.BaseURL,
			APIKey:     apiKey,
			Model:      cfg.Model,
			Dimension:  cfg.Dimension,
			Timeout:    cfg.Timeout.Duration(),
			MaxRetries: cfg.MaxRetries,
		})

	default:
		return nil, fmt.Errorf("%w: %s", docrag.ErrUnknownEmbedder, cfg.Type)
	}
}

func newCompleter(cfg docrag.CompletionConfig) (completion.Completer, error) {
	switch cfg.Type {
	case docrag.CompletionTypeOpenAI:
		apiKey := cfg.APIKey()
		if apiKey == "" {
			return nil, fmt.Errorf("completion: environment variable %s is not set", cfg.APIKeyEnv)
		}

		return chatOpenAI.NewClient(chatOpenAI.Config{
			BaseURL:    cfg.BaseURL,
			APIKey:     apiKey,
			Model:      cfg.Model,
			Timeout:    cfg.Timeout.Duration(),
			MaxRetries: cfg.MaxRetries,
		})

	default:
		return nil, fmt.Errorf("%w: %s", docrag.ErrUnknownModel, cfg.Type)
	}
}

func newStore(cfg docrag.VectorConfig) (vector.Store, error) {
	switch cfg.Backend {
	case vector.BackendChromem, "":
		return chromem.NewChromemStore(cfg.StoreConfig())

	case vector.BackendQdrant:
		return qdrant.NewQdrantStore(cfg.StoreConfig())

	default:
		return nil, fmt.Errorf("%w: %s", vector.ErrUnknownBackend, cfg.Backend)
	}
}

// newService builds the service from <path>. When requireCompleter is false
// a missing completion model only disables answering.
func newService(path string, requireCompleter bool) (docrag.Service, error) {
	cfg, err := loadConfig(path)
	if err != nil {
		return nil, err
	}

	embedder, err := newEmbedder(cfg.Embedder)
	if err != nil {
		return nil, err
	}

	var completer completion.Completer
	if c, err := newCompleter(cfg.Completion); err != nil {
		if requireCompleter {
			return nil, err
		}

		zap.L().Warn("answering disabled", zap.Error(err))
	} else {
		completer = c
	}

	store, err := newStore(cfg.Vector)
	if err != nil {
		return nil, err
	}

	return docrag.NewService(cfg, embedder, completer, store)
}
