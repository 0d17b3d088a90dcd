package llm

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/lead-pipeline/pkg/logging"
)

var tracer = otel.Tracer("lead-pipeline/llm")

// FallbackClient tries a primary client and retries once with a fallback provider.
type FallbackClient struct {
	primary  Client
	fallback Client
	logger   *logging.Logger
}

// NewFallbackClient creates a fallback-enabled client. fallback may be nil.
func NewFallbackClient(primary, fallback Client, logger *logging.Logger) *FallbackClient {
	if primary == nil {
		panic("llm: primary client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &FallbackClient{primary: primary, fallback: fallback, logger: logger}
}

func (c *FallbackClient) Complete(ctx context.Context, req Request) (Response, error) {
	ctx, span := tracer.Start(ctx, "llm.complete")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", req.Model))

	resp, err := c.primary.Complete(ctx, req)
	if err == nil {
		span.SetAttributes(attribute.String("llm.provider", "primary"))
		return resp, nil
	}
	c.logger.Warn("primary LLM failed, attempting fallback",
		"error", err.Error(),
		"fallback_available", c.fallback != nil,
	)
	if c.fallback == nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "primary failed")
		return Response{}, err
	}

	resp, fallbackErr := c.fallback.Complete(ctx, req)
	if fallbackErr != nil {
		c.logger.Error("fallback LLM also failed",
			"primary_error", err.Error(),
			"fallback_error", fallbackErr.Error(),
		)
		span.RecordError(fallbackErr)
		span.SetStatus(codes.Error, "fallback failed")
		return Response{}, fallbackErr
	}
	span.SetAttributes(attribute.String("llm.provider", "fallback"))
	return resp, nil
}
