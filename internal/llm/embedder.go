package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/pkolbe/ontograph-go/internal/config"
)

// Embedder produces similarity vectors for extracted entities. Vectors with
// a dimension other than the configured one are rejected rather than stored,
// since the vector index is declared with a fixed dimension.
type Embedder struct {
	backend   embeddings.Embedder
	dimension int
	modelName string
}

// NewEmbedder creates an embedder for the configured provider. Ollama and
// OpenAI expose embedding endpoints; Anthropic does not, so an Anthropic
// extraction model is typically paired with an Ollama embedder.
func NewEmbedder(cfg config.Config) (*Embedder, error) {
	backend, err := newEmbeddingBackend(cfg)
	if err != nil {
		return nil, err
	}
	return &Embedder{
		backend:   backend,
		dimension: cfg.EmbedDimension,
		modelName: cfg.EmbedModel,
	}, nil
}

func newEmbeddingBackend(cfg config.Config) (embeddings.Embedder, error) {
	switch cfg.EmbedProvider {
	case config.ProviderOllama:
		client, err := ollama.New(
			ollama.WithModel(cfg.EmbedModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama client: %w", err)
		}
		return embeddings.NewEmbedder(client)

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		client, err := openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithEmbeddingModel(cfg.EmbedModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai client: %w", err)
		}
		return embeddings.NewEmbedder(client)

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.EmbedProvider)
	}
}

// Embed returns the vector for one entity text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	vectors, err := e.backend.EmbedDocuments(ctx, []string{text})
	if err != nil {
		slog.Warn("embedding failed",
			"model", e.modelName, "text_len", len(text),
			"duration_ms", time.Since(start).Milliseconds(), "error", err)
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}

	vector := vectors[0]
	if len(vector) != e.dimension {
		return nil, fmt.Errorf("dimension mismatch: got %d, want %d", len(vector), e.dimension)
	}
	return vector, nil
}
