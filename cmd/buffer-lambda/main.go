package main

import (
	"context"
	"errors"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfman30/lead-pipeline/cmd/mainconfig"
	"github.com/wolfman30/lead-pipeline/internal/buffer"
	appconfig "github.com/wolfman30/lead-pipeline/internal/config"
	"github.com/wolfman30/lead-pipeline/pkg/logging"
)

type invocationHandler interface {
	Handle(ctx context.Context, body string) (buffer.Run, error)
}

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	rt, err := mainconfig.BuildRuntime(context.Background(), cfg, logger, prometheus.NewRegistry())
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}

	lambda.Start(func(ctx context.Context, evt events.SQSEvent) (events.SQSEventResponse, error) {
		resp := handle(ctx, rt.Runner, evt, logger)
		// Follow-up jobs must finish before the execution environment freezes.
		rt.Trigger.Wait()
		return resp, nil
	})
}

// handle runs each record and reports processing failures for redelivery. Malformed bodies
// are acknowledged so they are not retried forever.
func handle(ctx context.Context, runner invocationHandler, evt events.SQSEvent, logger *logging.Logger) events.SQSEventResponse {
	var resp events.SQSEventResponse
	for _, record := range evt.Records {
		run, err := runner.Handle(ctx, record.Body)
		switch {
		case err == nil:
			continue
		case errors.Is(err, buffer.ErrMalformedInvocation):
			logger.Warn("acknowledging malformed invocation", "message_id", record.MessageId)
		default:
			logger.Error("buffer invocation failed", "message_id", record.MessageId, "run_id", run.RunID, "error", err)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
	}
	return resp
}
