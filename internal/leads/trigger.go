package leads

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/wolfman30/lead-pipeline/internal/conversation"
	"github.com/wolfman30/lead-pipeline/pkg/logging"
)

const (
	defaultMaxConcurrent = 4
	defaultJobTimeout    = 30 * time.Second
)

// Job is one follow-up that runs after a conversation changes.
type Job struct {
	Name string
	Run  func(ctx context.Context, conversationID string) error
}

// AsyncTrigger runs follow-up jobs off the reply path. At most maxConcurrent conversations
// are handled at once; notifications beyond that are dropped and picked up by the
// recency refresh.
type AsyncTrigger struct {
	jobs    []Job
	sem     *semaphore.Weighted
	timeout time.Duration
	logger  *logging.Logger
	wg      sync.WaitGroup
}

var _ conversation.ChangeListener = (*AsyncTrigger)(nil)

func NewAsyncTrigger(logger *logging.Logger, maxConcurrent int, jobs ...Job) *AsyncTrigger {
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AsyncTrigger{
		jobs:    jobs,
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		timeout: defaultJobTimeout,
		logger:  logger,
	}
}

// ScoreJob wraps a Scorer as a Job.
func ScoreJob(s *Scorer) Job {
	return Job{Name: "lead_score", Run: func(ctx context.Context, id string) error {
		_, err := s.Score(ctx, id)
		return err
	}}
}

// ConversationChanged schedules every job for the conversation and returns immediately.
func (t *AsyncTrigger) ConversationChanged(_ context.Context, conversationID string) {
	if len(t.jobs) == 0 || conversationID == "" {
		return
	}
	if !t.sem.TryAcquire(1) {
		t.logger.Warn("follow-up jobs saturated, skipping", "conversation_id", conversationID)
		return
	}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer t.sem.Release(1)
		// The caller's context ends with its request; jobs get their own deadline.
		ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
		defer cancel()
		t.run(ctx, conversationID)
	}()
}

func (t *AsyncTrigger) run(ctx context.Context, conversationID string) {
	for _, job := range t.jobs {
		if err := job.Run(ctx, conversationID); err != nil {
			t.logger.Warn("follow-up job failed", "job", job.Name, "conversation_id", conversationID, "error", err)
		}
	}
}

// Wait blocks until running jobs finish.
func (t *AsyncTrigger) Wait() {
	t.wg.Wait()
}
