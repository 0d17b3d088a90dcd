package knowledge

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/lead-pipeline/internal/conversation"
	"github.com/wolfman30/lead-pipeline/internal/llm"
	"github.com/wolfman30/lead-pipeline/internal/observability/metrics"
	"github.com/wolfman30/lead-pipeline/pkg/logging"
)

const (
	DefaultTopK          = 4
	DefaultMinSimilarity = 0.7
)

var tracer = otel.Tracer("lead-pipeline/knowledge")

// Retriever embeds a message and searches the category's chunks plus the general pool.
type Retriever struct {
	embedder      llm.Embedder
	searcher      Searcher
	cache         EmbeddingCache
	topK          int
	minSimilarity float64
	metrics       *metrics.PipelineMetrics
	logger        *logging.Logger
}

type Option func(*Retriever)

func WithCache(c EmbeddingCache) Option {
	return func(r *Retriever) { r.cache = c }
}

func WithLimits(topK int, minSimilarity float64) Option {
	return func(r *Retriever) {
		if topK > 0 {
			r.topK = topK
		}
		if minSimilarity > 0 {
			r.minSimilarity = minSimilarity
		}
	}
}

func WithMetrics(m *metrics.PipelineMetrics) Option {
	return func(r *Retriever) { r.metrics = m }
}

func NewRetriever(embedder llm.Embedder, searcher Searcher, logger *logging.Logger, opts ...Option) *Retriever {
	if logger == nil {
		logger = logging.Default()
	}
	r := &Retriever{
		embedder:      embedder,
		searcher:      searcher,
		topK:          DefaultTopK,
		minSimilarity: DefaultMinSimilarity,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve returns up to topK chunks above the similarity threshold. Failures are logged and
// yield no chunks so a reply can still be produced.
func (r *Retriever) Retrieve(ctx context.Context, conversationID, text, category string) []Chunk {
	if r == nil || r.embedder == nil || r.searcher == nil || strings.TrimSpace(text) == "" {
		return nil
	}
	ctx, span := tracer.Start(ctx, "knowledge.retrieve")
	defer span.End()
	span.SetAttributes(
		attribute.String("conversation.id", conversationID),
		attribute.String("conversation.category", category),
	)
	logger := r.logger.ForConversation(conversationID)

	vec, err := r.embed(ctx, logger, text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embed failed")
		logger.Warn("knowledge embedding failed", "error", err)
		return nil
	}

	chunks, err := r.searcher.Search(ctx, vec, searchCategories(category), r.minSimilarity, r.topK)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "search failed")
		logger.Warn("knowledge search failed", "error", err)
		return nil
	}
	span.SetAttributes(attribute.Int("knowledge.results", len(chunks)))
	r.metrics.ObserveKnowledgeResults(len(chunks))
	logger.Debug("knowledge retrieved", "category", category, "results", len(chunks))
	return chunks
}

func (r *Retriever) embed(ctx context.Context, logger *logging.Logger, text string) ([]float32, error) {
	model := r.embedder.ModelID()
	if r.cache != nil {
		vec, ok, err := r.cache.Get(ctx, model, text)
		if err != nil {
			logger.Warn("embedding cache read failed", "error", err)
		} else if ok {
			return vec, nil
		}
	}
	vec, err := r.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		if err := r.cache.Set(ctx, model, text, vec); err != nil {
			logger.Warn("embedding cache write failed", "error", err)
		}
	}
	return vec, nil
}

func searchCategories(category string) []string {
	if category == "" || category == conversation.CategoryGeneral {
		return []string{conversation.CategoryGeneral}
	}
	return []string{category, conversation.CategoryGeneral}
}
