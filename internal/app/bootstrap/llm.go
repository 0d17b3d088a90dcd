package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/wolfman30/lead-pipeline/internal/config"
	"github.com/wolfman30/lead-pipeline/internal/llm"
	"github.com/wolfman30/lead-pipeline/pkg/logging"
)

// EmbeddingDimensions matches the knowledge_chunks vector column.
const EmbeddingDimensions = 1024

// BuildLLMClient wires Bedrock Converse with an optional Gemini fallback. It returns nil when
// neither is configured; model-backed features then run on heuristics only.
func BuildLLMClient(ctx context.Context, awsCfg aws.Config, cfg *appconfig.Config, logger *logging.Logger) (llm.Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var primary llm.Client
	if model := strings.TrimSpace(cfg.BedrockModelID); model != "" {
		primary = llm.NewBedrockClient(bedrockruntime.NewFromConfig(awsCfg), model)
		logger.Info("bedrock completions enabled", "model", model)
	}

	var fallback llm.Client
	if strings.TrimSpace(cfg.GeminiAPIKey) != "" {
		gemini, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: gemini client: %w", err)
		}
		fallback = gemini
		logger.Info("gemini completions enabled", "model", cfg.GeminiModelID)
	}

	switch {
	case primary != nil && fallback != nil:
		return llm.NewFallbackClient(primary, fallback, logger), nil
	case primary != nil:
		return primary, nil
	case fallback != nil:
		return fallback, nil
	default:
		logger.Warn("no completion model configured; classifier escalation, extraction and scoring use heuristics")
		return nil, nil
	}
}

// BuildEmbedder returns the Bedrock embedder or nil when no embedding model is configured.
func BuildEmbedder(awsCfg aws.Config, cfg *appconfig.Config, logger *logging.Logger) llm.Embedder {
	if cfg == nil || strings.TrimSpace(cfg.BedrockEmbeddingModelID) == "" {
		if logger != nil {
			logger.Warn("no embedding model configured; knowledge retrieval disabled")
		}
		return nil
	}
	return llm.NewBedrockEmbedder(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockEmbeddingModelID, EmbeddingDimensions)
}
