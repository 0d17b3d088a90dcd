package mainconfig

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfman30/lead-pipeline/internal/app/bootstrap"
	"github.com/wolfman30/lead-pipeline/internal/buffer"
	appconfig "github.com/wolfman30/lead-pipeline/internal/config"
	"github.com/wolfman30/lead-pipeline/pkg/logging"
)

// Runtime is everything a binary needs to serve the pipeline.
type Runtime struct {
	*bootstrap.Components
	DB       *bootstrap.Database
	Provider string
}

// Close releases connections held by the runtime. Call Drain first to let background
// jobs finish.
func (r *Runtime) Close() {
	if r == nil {
		return
	}
	r.DB.Close()
}

// Drain waits for the buffer worker, when one runs in this process, and then for the
// lead-score and assignment jobs its replies started. It gives up when ctx ends.
func (r *Runtime) Drain(ctx context.Context, worker *buffer.Worker) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if worker != nil {
			worker.Wait()
		}
		if r != nil && r.Components != nil && r.Trigger != nil {
			r.Trigger.Wait()
		}
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ready reports whether the database is reachable.
func (r *Runtime) Ready(ctx context.Context) error {
	return r.DB.Ping(ctx)
}

// BuildRuntime connects every backing service and wires the pipeline components.
func BuildRuntime(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, reg prometheus.Registerer) (*Runtime, error) {
	awsCfg, err := LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	db, err := bootstrap.BuildDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	client, err := bootstrap.BuildLLMClient(ctx, awsCfg, cfg, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	sender, provider := bootstrap.BuildOutboundSender(cfg, logger)

	components, err := bootstrap.BuildComponents(ctx, cfg, bootstrap.Resources{
		DB:         db,
		Redis:      bootstrap.BuildRedisClient(ctx, cfg, logger, true),
		AWS:        awsCfg,
		LLM:        client,
		Embedder:   bootstrap.BuildEmbedder(awsCfg, cfg, logger),
		Sender:     sender,
		Email:      bootstrap.BuildEmailSender(awsCfg, cfg, logger),
		Registerer: reg,
	}, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Runtime{Components: components, DB: db, Provider: provider}, nil
}
