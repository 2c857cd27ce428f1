package knowledge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/croplink/voice-gateway/internal/metrics"
)

// Retriever answers "what do we know about this" for the advisory channel:
// embed the question, search the agronomy collection, join the passages.
type Retriever struct {
	embedder       *Embedder
	qdrant         *Qdrant
	collection     string
	topK           int
	scoreThreshold float64
}

// RetrieverConfig holds configuration for the retriever.
type RetrieverConfig struct {
	Embedder       *Embedder
	Qdrant         *Qdrant
	Collection     string
	TopK           int
	ScoreThreshold float64
}

// NewRetriever creates a knowledge retriever.
func NewRetriever(cfg RetrieverConfig) *Retriever {
	if cfg.TopK <= 0 {
		cfg.TopK = 3
	}
	return &Retriever{
		embedder:       cfg.Embedder,
		qdrant:         cfg.Qdrant,
		collection:     cfg.Collection,
		topK:           cfg.TopK,
		scoreThreshold: cfg.ScoreThreshold,
	}
}

// RetrieveContext embeds the query, searches the knowledge base, and returns
// the matching passages joined for prompt injection. Returns empty string
// when nothing relevant is found.
func (r *Retriever) RetrieveContext(ctx context.Context, query string) (string, error) {
	start := time.Now()

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return "", fmt.Errorf("embed query: %w", err)
	}

	hits, err := r.qdrant.Search(ctx, r.collection, vector, r.topK, r.scoreThreshold)
	if err != nil {
		return "", fmt.Errorf("qdrant search: %w", err)
	}

	metrics.StageDuration.WithLabelValues("retrieval").Observe(time.Since(start).Seconds())

	if len(hits) == 0 {
		return "", nil
	}
	return formatHits(hits), nil
}

func formatHits(hits []Hit) string {
	parts := make([]string, 0, len(hits))
	for _, h := range hits {
		text, ok := h.Payload["text"].(string)
		if !ok {
			text = fmt.Sprintf("%v", h.Payload["text"])
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n---\n")
}
