// Package embedding provides vector embedding generation for semantic
// deduplication. Supports two backends: Google GenAI (cloud) and Ollama
// (local).
package embedding

import (
	"context"
	"fmt"
	"math"

	"caseforge/internal/config"
	"caseforge/internal/logging"
)

// Engine generates vector embeddings for text.
type Engine interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of embeddings.
	Dimensions() int

	// Name returns the engine name.
	Name() string
}

// NewEngine creates an embedding engine from configuration.
// An empty provider returns (nil, nil): embeddings unavailable, a valid
// degraded mode for deduplication.
func NewEngine(cfg config.EmbeddingConfig) (Engine, error) {
	switch cfg.Provider {
	case "":
		logging.Embedding("No embedding provider configured; semantic dedup disabled")
		return nil, nil
	case "genai":
		logging.Embedding("Initializing GenAI embedding engine: model=%s", cfg.GenAIModel)
		return NewGenAIEngine(cfg.GenAIAPIKey, cfg.GenAIModel)
	case "ollama":
		logging.Embedding("Initializing Ollama embedding engine: endpoint=%s, model=%s", cfg.OllamaEndpoint, cfg.OllamaModel)
		return NewOllamaEngine(cfg.OllamaEndpoint, cfg.OllamaModel)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s (use 'genai' or 'ollama')", cfg.Provider)
	}
}

// CosineSimilarity calculates the cosine similarity between two vectors.
// Returns a value in [-1, 1]. Mismatched lengths or a zero-magnitude vector
// yield 0: dedup treats "cannot compare" as "not a duplicate", never as an
// error.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, aMagnitude, bMagnitude float64
	for i := 0; i < len(a); i++ {
		dotProduct += float64(a[i]) * float64(b[i])
		aMagnitude += float64(a[i]) * float64(a[i])
		bMagnitude += float64(b[i]) * float64(b[i])
	}

	if aMagnitude == 0 || bMagnitude == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(aMagnitude) * math.Sqrt(bMagnitude))
}
