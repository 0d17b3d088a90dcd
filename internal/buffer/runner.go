package buffer

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/lead-pipeline/internal/observability/metrics"
	"github.com/wolfman30/lead-pipeline/pkg/logging"
)

// ErrMalformedInvocation marks queue bodies that can never be processed.
var ErrMalformedInvocation = errors.New("buffer: malformed invocation")

// OutcomeDeferred is recorded when an invocation arrived early and was re-queued.
const OutcomeDeferred Outcome = "deferred"

// earlyTolerance absorbs clock skew between the scheduler and the worker.
const earlyTolerance = time.Second

// RunRecorder persists a record of each invocation.
type RunRecorder interface {
	Record(ctx context.Context, run Run) error
}

// Runner turns one queue body into one processor invocation. It is shared by the long-running
// worker and the Lambda entrypoint.
type Runner struct {
	processor Processor
	queue     Queue
	ledger    RunRecorder
	metrics   *metrics.PipelineMetrics
	logger    *logging.Logger
	now       func() time.Time
}

// NewRunner builds a runner. queue and ledger are optional.
func NewRunner(processor Processor, queue Queue, ledger RunRecorder, m *metrics.PipelineMetrics, logger *logging.Logger) *Runner {
	if processor == nil {
		panic("buffer: processor cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Runner{
		processor: processor,
		queue:     queue,
		ledger:    ledger,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// Handle decodes body and runs the processor for its conversation.
func (r *Runner) Handle(ctx context.Context, body string) (Run, error) {
	inv, err := decodeInvocation(body)
	if err != nil {
		r.logger.Error("dropping malformed buffer invocation", "error", err)
		return Run{}, errors.Join(ErrMalformedInvocation, err)
	}
	log := r.logger.ForConversation(inv.ConversationID).With("invocation_id", inv.ID)

	started := r.now().UTC()
	run := Run{
		RunID:          uuid.NewString(),
		InvocationID:   inv.ID,
		ConversationID: inv.ConversationID,
		StartedAt:      started.Format(time.RFC3339Nano),
	}

	if wait := inv.NotBefore.Sub(started); wait > earlyTolerance && r.queue != nil {
		inv.Attempt++
		_, next, err := encodeInvocation(inv)
		if err == nil {
			err = r.queue.Send(ctx, next, wait)
		}
		if err == nil {
			run.Outcome = OutcomeDeferred
			log.Debug("invocation arrived early, re-queued", "wait", wait)
			r.record(ctx, run)
			return run, nil
		}
		log.Warn("failed to re-queue early invocation, processing now", "error", err)
	}

	res, err := r.processor.Process(ctx, inv.ConversationID)
	finished := r.now().UTC()
	run.FinishedAt = finished.Format(time.RFC3339Nano)
	run.BufferID = res.BufferID
	run.Outcome = res.Outcome
	run.ErrorMessage = res.Failure
	r.metrics.ObserveBufferOutcome(string(res.Outcome), finished.Sub(started).Seconds())
	if err != nil {
		run.ErrorMessage = err.Error()
		log.Error("buffer processing failed", "error", err, "buffer_id", res.BufferID)
		r.record(ctx, run)
		return run, err
	}

	if res.Outcome.Contention() {
		log.Debug("buffer invocation skipped", "outcome", res.Outcome, "buffer_id", res.BufferID, "remaining", res.Remaining)
	} else {
		log.Info("buffer processed",
			"outcome", res.Outcome,
			"buffer_id", res.BufferID,
			"category", res.Category,
			"dispatch_status", res.DispatchStatus,
		)
	}
	r.record(ctx, run)
	return run, nil
}

func (r *Runner) record(ctx context.Context, run Run) {
	if r.ledger == nil {
		return
	}
	if err := r.ledger.Record(ctx, run); err != nil {
		r.logger.Warn("failed to record buffer run", "run_id", run.RunID, "error", err)
	}
}
