package buffer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/lead-pipeline/internal/conversation"
	"github.com/wolfman30/lead-pipeline/internal/observability/metrics"
	"github.com/wolfman30/lead-pipeline/pkg/logging"
)

// DefaultWindow is the debounce window applied when none is configured.
const DefaultWindow = 60 * time.Second

// fallbackTimeout bounds an in-process fallback run.
const fallbackTimeout = 2 * time.Minute

// SchedulePath records how the delayed invocation was arranged.
type SchedulePath string

const (
	PathQueue       SchedulePath = "queue"
	PathInProcess   SchedulePath = "in_process"
	PathUnscheduled SchedulePath = "unscheduled"
)

// InboundRecorder persists the raw customer fragment as a transcript message.
type InboundRecorder interface {
	RecordInbound(ctx context.Context, conversationID, text string) (conversation.Message, error)
}

// ScheduleResult is returned by Append.
type ScheduleResult struct {
	BufferID        string       `json:"buffer_id"`
	ConversationID  string       `json:"conversation_id"`
	Fragments       int          `json:"fragments"`
	ShouldProcessAt time.Time    `json:"should_process_at"`
	Path            SchedulePath `json:"path"`
}

// Scheduler appends inbound fragments and arranges a delayed processor invocation.
type Scheduler struct {
	store     Store
	queue     Queue
	recorder  InboundRecorder
	fallback  Processor
	window    time.Duration
	metrics   *metrics.PipelineMetrics
	logger    *logging.Logger
	now       func() time.Time
	afterFunc func(time.Duration, func()) *time.Timer
}

// SchedulerOption customizes a Scheduler.
type SchedulerOption func(*Scheduler)

// WithWindow sets the debounce window.
func WithWindow(window time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if window > 0 {
			s.window = window
		}
	}
}

// WithRecorder persists each buffered fragment as a transcript message.
func WithRecorder(r InboundRecorder) SchedulerOption {
	return func(s *Scheduler) { s.recorder = r }
}

// WithFallbackProcessor enables the in-process delayed retry used when the queue fails.
func WithFallbackProcessor(p Processor) SchedulerOption {
	return func(s *Scheduler) { s.fallback = p }
}

// WithSchedulerMetrics records the scheduling path taken.
func WithSchedulerMetrics(m *metrics.PipelineMetrics) SchedulerOption {
	return func(s *Scheduler) { s.metrics = m }
}

// NewScheduler builds a scheduler. queue may be nil, in which case only the fallback path runs.
func NewScheduler(store Store, queue Queue, logger *logging.Logger, opts ...SchedulerOption) *Scheduler {
	if store == nil {
		panic("buffer: store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Scheduler{
		store:     store,
		queue:     queue,
		window:    DefaultWindow,
		logger:    logger,
		now:       time.Now,
		afterFunc: time.AfterFunc,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetFallbackProcessor wires the fallback after construction.
func (s *Scheduler) SetFallbackProcessor(p Processor) {
	s.fallback = p
}

// Append adds the fragment to the open buffer with a fresh deadline, records it in the
// transcript and schedules processing at that deadline.
func (s *Scheduler) Append(ctx context.Context, conversationID, text string) (ScheduleResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return ScheduleResult{}, ErrEmptyFragment
	}
	log := s.logger.ForConversation(conversationID)

	now := s.now().UTC()
	deadline := now.Add(s.window)
	buf, err := s.store.Append(ctx, conversationID, text, deadline)
	if err != nil {
		return ScheduleResult{}, fmt.Errorf("buffer: append fragment: %w", err)
	}

	// Recorded only once buffered: a failed append is redelivered by the channel.
	if s.recorder != nil {
		if _, err := s.recorder.RecordInbound(ctx, conversationID, text); err != nil {
			log.Warn("failed to record inbound message", "error", err)
		}
	}

	path := s.schedule(ctx, conversationID, deadline, now)
	s.metrics.ObserveSchedule(string(path))
	log.Info("fragment buffered",
		"buffer_id", buf.ID,
		"fragments", len(buf.Messages),
		"should_process_at", buf.ShouldProcessAt,
		"schedule_path", path,
	)
	return ScheduleResult{
		BufferID:        buf.ID,
		ConversationID:  conversationID,
		Fragments:       len(buf.Messages),
		ShouldProcessAt: buf.ShouldProcessAt,
		Path:            path,
	}, nil
}

func (s *Scheduler) schedule(ctx context.Context, conversationID string, deadline, now time.Time) SchedulePath {
	delay := deadline.Sub(now)
	if s.queue != nil {
		_, body, err := encodeInvocation(invocation{ConversationID: conversationID, NotBefore: deadline})
		if err == nil {
			err = s.queue.Send(ctx, body, delay)
		}
		if err == nil {
			return PathQueue
		}
		s.logger.Warn("failed to schedule buffer invocation, using in-process fallback",
			"conversation_id", conversationID,
			"error", err,
		)
	}
	if s.fallback == nil {
		s.logger.Error("no scheduling path available", "conversation_id", conversationID)
		return PathUnscheduled
	}
	s.afterFunc(delay, func() {
		runCtx, cancel := context.WithTimeout(context.Background(), fallbackTimeout)
		defer cancel()
		res, err := s.fallback.Process(runCtx, conversationID)
		if err != nil {
			s.logger.Error("in-process buffer run failed", "conversation_id", conversationID, "error", err)
			return
		}
		s.logger.Debug("in-process buffer run finished", "conversation_id", conversationID, "outcome", res.Outcome)
	})
	return PathInProcess
}
